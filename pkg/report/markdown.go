// Package report renders export results into markdown documentation.
package report

import (
	"fmt"
	"strings"

	"github.com/hellenic-development/canvas-export/pkg/hierarchy"
	"github.com/hellenic-development/canvas-export/pkg/imager"
)

// Report collects everything one export produced.
type Report struct {
	FileName string
	FileID   string
	Format   string
	Scale    float64
	Assets   []imager.Asset
	Nodes    []*hierarchy.ViewNode
	Skipped  []string // node identifiers skipped with a warning
}

// ToMarkdown transforms an export report into a markdown document with the
// exported asset table and the reconstructed node hierarchy, ready to drop
// into project documentation next to the asset directory.
func ToMarkdown(r *Report) string {
	var sb strings.Builder

	sb.WriteString(fmt.Sprintf("# Canvas Export - %s\n\n", r.FileName))
	sb.WriteString(fmt.Sprintf("Source file `%s`, rendered as %s at %gx scale.\n\n", r.FileID, strings.ToUpper(r.Format), r.Scale))

	if len(r.Assets) > 0 {
		sb.WriteString("## Exported Assets\n\n")
		sb.WriteString("| Node | File | Format | Scale |\n")
		sb.WriteString("|------|------|--------|-------|\n")
		for _, asset := range r.Assets {
			name := asset.NodeName
			if name == "" {
				name = asset.NodeID
			}
			sb.WriteString(fmt.Sprintf("| %s | `%s` | %s | %gx |\n", name, asset.FileName, strings.ToUpper(asset.Format), asset.Scale))
		}
		sb.WriteString("\n")
	}

	if len(r.Skipped) > 0 {
		sb.WriteString("## Skipped Nodes\n\n")
		sb.WriteString("The following nodes produced no asset; see the export log for the reason.\n\n")
		for _, id := range r.Skipped {
			sb.WriteString(fmt.Sprintf("- `%s`\n", id))
		}
		sb.WriteString("\n")
	}

	if len(r.Nodes) > 0 {
		sb.WriteString("## Node Hierarchy\n\n")
		for _, root := range r.Nodes {
			writeNode(&sb, root, 0)
		}
		sb.WriteString("\n")
	}

	return sb.String()
}

// writeNode renders one ViewNode and its children as a nested list entry.
func writeNode(sb *strings.Builder, n *hierarchy.ViewNode, depth int) {
	name := n.Name
	if name == "" {
		name = n.Type
	}

	line := fmt.Sprintf("%s- **%s** (`%s`, `%s`)", strings.Repeat("  ", depth), name, n.Type, n.ID)
	if n.Bounds != nil {
		line += fmt.Sprintf(" %dx%d at (%d, %d)", n.Bounds.Width, n.Bounds.Height, n.Bounds.X, n.Bounds.Y)
	}
	if !n.Visible {
		line += " _(hidden)_"
	}
	sb.WriteString(line + "\n")

	for _, child := range n.Children {
		writeNode(sb, child, depth+1)
	}
}
