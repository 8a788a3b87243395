package canvasexport

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/hellenic-development/canvas-export/pkg/canvas"
	"github.com/hellenic-development/canvas-export/pkg/hierarchy"
	"github.com/hellenic-development/canvas-export/pkg/imager"
)

// NewMCPServer builds an MCP server exposing the export pipeline as tools.
// The base options carry the credential, cache and output settings; each
// tool call supplies the file URL and per-call parameters.
func NewMCPServer(base Options) *mcp.Server {
	srv := mcp.NewServer(&mcp.Implementation{
		Name:    "canvas-export",
		Version: canvas.Version,
	}, nil)
	RegisterMCP(srv, base)
	return srv
}

// RegisterMCP registers the export tools on an MCP server.
func RegisterMCP(srv *mcp.Server, base Options) {
	registerGetNodesTool(srv, base)
	registerExportImagesTool(srv, base)
}

func inputSchema(properties map[string]any, required []string) map[string]any {
	s := map[string]any{
		"type":       "object",
		"properties": properties,
	}
	if len(required) > 0 {
		s["required"] = required
	}
	return s
}

// runTool adapts an endpoint to the MCP handler contract: decode failures
// and pipeline errors become tool errors on the result, never protocol
// errors, and successful responses are serialized into text content.
func runTool[Req any](endpoint func(ctx context.Context, r *Req) (any, error)) func(context.Context, *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return func(ctx context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		var r Req
		if len(req.Params.Arguments) > 0 {
			if err := json.Unmarshal(req.Params.Arguments, &r); err != nil {
				var res mcp.CallToolResult
				res.SetError(fmt.Errorf("invalid arguments: %w", err))
				return &res, nil
			}
		}

		resp, err := endpoint(ctx, &r)
		if err != nil {
			var res mcp.CallToolResult
			res.SetError(errors.New(err.Error()))
			return &res, nil
		}

		data, err := json.Marshal(resp)
		if err != nil {
			var res mcp.CallToolResult
			res.SetError(fmt.Errorf("marshal: %w", err))
			return &res, nil
		}
		return &mcp.CallToolResult{
			Content: []mcp.Content{&mcp.TextContent{Text: string(data)}},
		}, nil
	}
}

func splitNodeIDs(s string) []string {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	return strings.Split(s, ",")
}

// --- get nodes ---

type getNodesReq struct {
	URL     string `json:"url"`
	NodeIDs string `json:"nodeIds"`
	Depth   int    `json:"depth"`
}

type getNodesResp struct {
	FileID   string                `json:"fileId"`
	FileName string                `json:"fileName"`
	Nodes    []*hierarchy.ViewNode `json:"nodes"`
	Skipped  []string              `json:"skipped,omitempty"`
}

func registerGetNodesTool(srv *mcp.Server, base Options) {
	tool := &mcp.Tool{
		Name:        "canvas_get_nodes",
		Description: "Fetch design file nodes and return their reconstructed hierarchy as JSON.",
		InputSchema: inputSchema(map[string]any{
			"url":     map[string]any{"type": "string", "description": "Design file URL, optionally carrying a node-id parameter"},
			"nodeIds": map[string]any{"type": "string", "description": "Comma-separated node identifiers; overrides the URL's node-id"},
			"depth":   map[string]any{"type": "integer", "description": "Hierarchy depth bound; omit for unbounded"},
		}, []string{"url"}),
	}

	srv.AddTool(tool, runTool(func(ctx context.Context, r *getNodesReq) (any, error) {
		opts := base
		opts.FileURL = r.URL
		opts.NodeIDs = splitNodeIDs(r.NodeIDs)
		opts.Depth = r.Depth
		opts.ExportImages = false

		result, err := Run(ctx, opts)
		if err != nil {
			return nil, err
		}
		return &getNodesResp{
			FileID:   result.FileID,
			FileName: result.FileName,
			Nodes:    result.Nodes,
			Skipped:  result.Skipped,
		}, nil
	}))
}

// --- export images ---

type exportImagesReq struct {
	URL          string  `json:"url"`
	NodeIDs      string  `json:"nodeIds"`
	Format       string  `json:"format"`
	Scale        float64 `json:"scale"`
	WithMetadata bool    `json:"withMetadata"`
}

type exportImagesResp struct {
	FileID   string         `json:"fileId"`
	FileName string         `json:"fileName"`
	OutDir   string         `json:"outDir"`
	Assets   []imager.Asset `json:"assets"`
	Skipped  []string       `json:"skipped,omitempty"`
}

func registerExportImagesTool(srv *mcp.Server, base Options) {
	tool := &mcp.Tool{
		Name:        "canvas_export_images",
		Description: "Render design file nodes and write the images plus optional metadata to disk.",
		InputSchema: inputSchema(map[string]any{
			"url":          map[string]any{"type": "string", "description": "Design file URL, optionally carrying a node-id parameter"},
			"nodeIds":      map[string]any{"type": "string", "description": "Comma-separated node identifiers; overrides the URL's node-id"},
			"format":       map[string]any{"type": "string", "description": "Render format: png, jpg, svg or pdf"},
			"scale":        map[string]any{"type": "number", "description": "Render scale factor, 1 to 4"},
			"withMetadata": map[string]any{"type": "boolean", "description": "Write a sibling .json metadata file per asset"},
		}, []string{"url"}),
	}

	srv.AddTool(tool, runTool(func(ctx context.Context, r *exportImagesReq) (any, error) {
		opts := base
		opts.FileURL = r.URL
		opts.NodeIDs = splitNodeIDs(r.NodeIDs)
		if r.Format != "" {
			opts.Format = r.Format
		}
		if r.Scale != 0 {
			opts.Scale = r.Scale
		}
		opts.WithMetadata = r.WithMetadata
		opts.ExportImages = true

		result, err := Run(ctx, opts)
		if err != nil {
			return nil, err
		}
		if opts.OutDir == "" {
			opts.OutDir = "canvas-assets"
		}
		return &exportImagesResp{
			FileID:   result.FileID,
			FileName: result.FileName,
			OutDir:   opts.OutDir,
			Assets:   result.Assets,
			Skipped:  result.Skipped,
		}, nil
	}))
}
