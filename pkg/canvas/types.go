package canvas

import (
	"encoding/json"
	"fmt"
)

// FileResponse represents the response from the file endpoint.
// It contains the file metadata and the complete document tree.
type FileResponse struct {
	Name          string `json:"name"`
	LastModified  string `json:"lastModified"`
	ThumbnailURL  string `json:"thumbnailUrl"`
	Version       string `json:"version"`
	Document      Node   `json:"document"`
	SchemaVersion int    `json:"schemaVersion"`
	Err           string `json:"err,omitempty"`
}

// NodesResponse represents the response from the nodes endpoint when
// fetching specific nodes. It contains file metadata and a map of node
// identifiers to their corresponding NodeData.
type NodesResponse struct {
	Name         string              `json:"name"`
	LastModified string              `json:"lastModified"`
	ThumbnailURL string              `json:"thumbnailUrl"`
	Version      string              `json:"version"`
	Nodes        map[string]NodeData `json:"nodes"`
	Err          string              `json:"err,omitempty"`
}

// NodeData wraps a node with its document structure and optional component
// and style information. This is the structure returned for each requested
// node in a NodesResponse.
type NodeData struct {
	Document   Node                 `json:"document"`
	Components map[string]Component `json:"components,omitempty"`
	Styles     map[string]Style     `json:"styles,omitempty"`
}

// ImagesResponse represents the response from the image-render endpoint.
// Images maps node identifiers to short-lived, pre-signed download URLs;
// an entry may be empty when the node could not be rendered.
type ImagesResponse struct {
	Err    string            `json:"err,omitempty"`
	Images map[string]string `json:"images"`
	Status int               `json:"status,omitempty"`
}

// Component represents a reusable component definition with its metadata.
type Component struct {
	Key         string `json:"key"`
	Name        string `json:"name"`
	Description string `json:"description"`
}

// Style represents a published style with its basic properties.
type Style struct {
	Key         string `json:"key"`
	Name        string `json:"name"`
	Description string `json:"description"`
	StyleType   string `json:"style_type"`
}

// Rectangle represents a bounding box with position (X, Y) and dimensions
// (Width, Height) in absolute canvas coordinates.
type Rectangle struct {
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// Node represents a single element in the document tree hierarchy.
//
// The API attaches an open-ended set of type-specific fields to each node
// (fills, strokes, layout properties, plugin data, and whatever future
// schema versions add). Only the fields the export pipeline acts on are
// typed; everything else is preserved verbatim in Extra so a node survives
// a decode/encode round trip through the response cache without loss.
type Node struct {
	ID                  string     `json:"id"`
	Name                string     `json:"name"`
	Type                string     `json:"type"`
	Visible             *bool      `json:"visible,omitempty"`
	AbsoluteBoundingBox *Rectangle `json:"absoluteBoundingBox,omitempty"`
	Children            []Node     `json:"children,omitempty"`

	// Extra holds every field not modeled above, keyed by its JSON name.
	Extra map[string]json.RawMessage `json:"-"`
}

// IsVisible reports whether the node is visible. The API omits the visible
// field for visible nodes and only sends it, as false, for hidden ones.
func (n *Node) IsVisible() bool {
	return n.Visible == nil || *n.Visible
}

// nodeFields enumerates the JSON keys with typed counterparts on Node.
// Keys listed here are stripped from Extra during decoding and re-emitted
// from the typed fields during encoding.
var nodeFields = []string{"id", "name", "type", "visible", "absoluteBoundingBox", "children"}

// UnmarshalJSON decodes the typed core of a node and captures all remaining
// fields in Extra.
func (n *Node) UnmarshalJSON(data []byte) error {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		return err
	}

	take := func(key string, dst any) error {
		raw, ok := fields[key]
		if !ok {
			return nil
		}
		if err := json.Unmarshal(raw, dst); err != nil {
			return fmt.Errorf("node field %q: %w", key, err)
		}
		return nil
	}

	if err := take("id", &n.ID); err != nil {
		return err
	}
	if err := take("name", &n.Name); err != nil {
		return err
	}
	if err := take("type", &n.Type); err != nil {
		return err
	}
	if err := take("visible", &n.Visible); err != nil {
		return err
	}
	if err := take("absoluteBoundingBox", &n.AbsoluteBoundingBox); err != nil {
		return err
	}
	if err := take("children", &n.Children); err != nil {
		return err
	}

	for _, key := range nodeFields {
		delete(fields, key)
	}
	if len(fields) > 0 {
		n.Extra = fields
	}

	return nil
}

// MarshalJSON encodes the typed core alongside the preserved Extra fields.
func (n Node) MarshalJSON() ([]byte, error) {
	out := make(map[string]json.RawMessage, len(n.Extra)+len(nodeFields))
	for key, raw := range n.Extra {
		out[key] = raw
	}

	put := func(key string, v any) error {
		raw, err := json.Marshal(v)
		if err != nil {
			return fmt.Errorf("node field %q: %w", key, err)
		}
		out[key] = raw
		return nil
	}

	if err := put("id", n.ID); err != nil {
		return nil, err
	}
	if err := put("name", n.Name); err != nil {
		return nil, err
	}
	if err := put("type", n.Type); err != nil {
		return nil, err
	}
	if n.Visible != nil {
		if err := put("visible", n.Visible); err != nil {
			return nil, err
		}
	}
	if n.AbsoluteBoundingBox != nil {
		if err := put("absoluteBoundingBox", n.AbsoluteBoundingBox); err != nil {
			return nil, err
		}
	}
	if len(n.Children) > 0 {
		if err := put("children", n.Children); err != nil {
			return nil, err
		}
	}

	return json.Marshal(out)
}
