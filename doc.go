// Package canvasexport exports nodes and rendered assets from design
// files via the HTTP API: it resolves file and node identifiers from a
// shared URL, reconstructs the node hierarchy, renders images through the
// API, and produces a markdown report of everything it wrote.
//
// The CLI lives in cmd/canvas-export; this root package exposes the same
// pipeline as a Go API so that callers can embed exports in their own
// tools without shelling out.
//
// # Import
//
// The module path contains a hyphen but Go package names cannot, so the
// package is named canvasexport:
//
//	import "github.com/hellenic-development/canvas-export" // package canvasexport
//
// # Quick start
//
//	result, err := canvasexport.Run(ctx, canvasexport.Options{
//	    Token:        os.Getenv("CANVAS_TOKEN"),
//	    FileURL:      "https://www.canvascloud.io/design/ABC123/My-Design?node-id=1-2",
//	    ExportImages: true,
//	    Format:       "png",
//	    OutDir:       "assets",
//	})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	os.WriteFile("export.md", []byte(result.Markdown), 0644)
//
// # Node selection
//
// Populate [Options.NodeIDs], or include a node-id query parameter in the
// URL, to export specific frames or components. Identifiers may use the
// URL form ("1-2") or the canonical form ("1:2"); both are accepted. When
// no identifier is given anywhere the file's top-level frames are
// exported.
//
// # Caching
//
// Set [Options.UseCache] to persist API responses on disk and reuse them
// across runs until they expire. The cache is an optimization only; a
// cache directory that cannot be created downgrades to plain API calls.
//
// # Logging
//
// Pass a [zerolog.Logger] in [Options.Logger] to receive progress
// messages and warnings. The zero value discards all output. The access
// token is carried in request headers only and never logged.
//
// # MCP server
//
// [NewMCPServer] wraps the pipeline in a Model Context Protocol server
// exposing canvas_get_nodes and canvas_export_images tools, so agent
// frameworks can drive exports over stdio. See cmd/canvas-export's serve
// subcommand.
package canvasexport
