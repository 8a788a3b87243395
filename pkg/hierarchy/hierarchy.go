// Package hierarchy reconstructs reporting views from raw document trees:
// a structured, depth-bounded ViewNode form with bounds translated to the
// root's own origin, and a filtered human-readable outline for verbose
// display. Both are produced by one recursive traversal parameterized by a
// visitor, so the filtering rules and the tree walk cannot drift apart.
package hierarchy

import (
	"fmt"
	"io"
	"math"
	"strings"

	"github.com/hellenic-development/canvas-export/pkg/canvas"
)

// Visitor receives every node of a Walk. Enter reports whether the node was
// accepted (emitted or printed) and whether the walk should descend into
// its children; the depth passed to children increments only past accepted
// nodes. Leave is called after a node's subtree completes.
type Visitor interface {
	Enter(n *canvas.Node, depth int) (accepted, descend bool)
	Leave(n *canvas.Node, accepted bool)
}

// Walk traverses the tree rooted at root in document order, driving the
// visitor. Children are visited exactly in the order they appear in the
// source tree; that ordering carries z-order and must never be re-sorted.
func Walk(root *canvas.Node, v Visitor) {
	walk(root, 0, v)
}

func walk(n *canvas.Node, depth int, v Visitor) {
	accepted, descend := v.Enter(n, depth)
	if descend {
		childDepth := depth
		if accepted {
			childDepth++
		}
		for i := range n.Children {
			walk(&n.Children[i], childDepth, v)
		}
	}
	v.Leave(n, accepted)
}

// Bounds is a node's extent translated into the reference frame of the
// tree's root node and rounded to whole pixels.
type Bounds struct {
	X      int `json:"x"`
	Y      int `json:"y"`
	Width  int `json:"width"`
	Height int `json:"height"`
}

// ViewNode is the structured reporting form of a document node.
type ViewNode struct {
	ID       string      `json:"id"`
	Name     string      `json:"name"`
	Type     string      `json:"type"`
	Visible  bool        `json:"visible"`
	Bounds   *Bounds     `json:"bounds,omitempty"`
	Children []*ViewNode `json:"children,omitempty"`
}

// Build transforms a raw node tree into its ViewNode form. Bounds are
// translated relative to the root node's own origin, so every bounds in one
// view shares a single reference frame regardless of nesting. Children are
// included only while includeChildren is true and the node sits above
// maxDepth; past the limit they are omitted entirely.
func Build(root *canvas.Node, maxDepth int, includeChildren bool) *ViewNode {
	var origin canvas.Rectangle
	if root.AbsoluteBoundingBox != nil {
		origin = *root.AbsoluteBoundingBox
	}

	b := &builder{origin: origin, maxDepth: maxDepth, includeChildren: includeChildren}
	Walk(root, b)
	return b.root
}

// builder emits every visited node and bounds-translates against the
// captured root origin.
type builder struct {
	origin          canvas.Rectangle
	maxDepth        int
	includeChildren bool

	root  *ViewNode
	stack []*ViewNode
}

func (b *builder) Enter(n *canvas.Node, depth int) (accepted, descend bool) {
	view := &ViewNode{
		ID:      n.ID,
		Name:    n.Name,
		Type:    n.Type,
		Visible: n.IsVisible(),
	}
	if bbox := n.AbsoluteBoundingBox; bbox != nil {
		view.Bounds = &Bounds{
			X:      int(math.Round(bbox.X - b.origin.X)),
			Y:      int(math.Round(bbox.Y - b.origin.Y)),
			Width:  int(math.Round(bbox.Width)),
			Height: int(math.Round(bbox.Height)),
		}
	}

	if len(b.stack) == 0 {
		b.root = view
	} else {
		parent := b.stack[len(b.stack)-1]
		parent.Children = append(parent.Children, view)
	}
	b.stack = append(b.stack, view)

	return true, b.includeChildren && depth < b.maxDepth
}

func (b *builder) Leave(n *canvas.Node, accepted bool) {
	b.stack = b.stack[:len(b.stack)-1]
}

// shapeTypes are leaf geometry types excluded from the printed outline.
var shapeTypes = map[string]bool{
	"VECTOR":            true,
	"RECTANGLE":         true,
	"ELLIPSE":           true,
	"LINE":              true,
	"STAR":              true,
	"BOOLEAN_OPERATION": true,
	"REGULAR_POLYGON":   true,
}

// frameTypes are structural container types that appear in the outline
// even without a name, as long as they sit within the first
// DefaultFrameDepth printed levels.
var frameTypes = map[string]bool{
	"FRAME":         true,
	"GROUP":         true,
	"SECTION":       true,
	"COMPONENT":     true,
	"COMPONENT_SET": true,
	"INSTANCE":      true,
}

// DefaultFrameDepth is the printed-depth cutoff for unnamed structural
// frames. The cutoff is cosmetic: it keeps stacks of anonymous wrapper
// frames from flooding the outline while still showing the top structure.
const DefaultFrameDepth = 3

// Fprint writes a human-readable outline of the tree to w. Leaf shape
// types are skipped, as is any unnamed node that is not a structural frame
// within the first DefaultFrameDepth printed levels. Skipped nodes do not
// indent their children: the indentation depth advances only past printed
// nodes. This filter is independent of Build's maxDepth truncation.
func Fprint(w io.Writer, root *canvas.Node) error {
	return FprintDepth(w, root, DefaultFrameDepth)
}

// FprintDepth is Fprint with a custom unnamed-frame depth cutoff.
func FprintDepth(w io.Writer, root *canvas.Node, frameDepth int) error {
	p := &printer{w: w, frameDepth: frameDepth}
	Walk(root, p)
	return p.err
}

// Sprint returns the Fprint outline as a string.
func Sprint(root *canvas.Node) string {
	var sb strings.Builder
	Fprint(&sb, root)
	return sb.String()
}

// printer renders the display outline. Filtering is display-only: a
// skipped node's children are still visited at the same printed depth.
type printer struct {
	w          io.Writer
	frameDepth int
	err        error
}

func (p *printer) Enter(n *canvas.Node, depth int) (accepted, descend bool) {
	if shapeTypes[n.Type] {
		return false, true
	}

	accepted = n.Name != "" || (frameTypes[n.Type] && depth < p.frameDepth)
	if accepted && p.err == nil {
		name := n.Name
		if name == "" {
			name = n.Type
		}
		label := fmt.Sprintf("%s- %s [%s] (%s)", strings.Repeat("  ", depth), name, n.Type, n.ID)
		if !n.IsVisible() {
			label += " (hidden)"
		}
		_, p.err = fmt.Fprintln(p.w, label)
	}

	return accepted, true
}

func (p *printer) Leave(n *canvas.Node, accepted bool) {}
