package canvas

// Version is the canvas-export release version, shared by the CLI and the
// MCP server implementation info.
const Version = "0.4.0"
