// Package imager writes exported image assets and their metadata sidecars
// to disk under a deterministic naming contract, so downstream consumers
// can locate an asset from its file and node identifiers alone.
package imager

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// maxNameLength caps the sanitized node-name segment of a file name.
const maxNameLength = 50

// Asset describes a single written image asset.
type Asset struct {
	NodeID   string  `json:"nodeId"`
	NodeName string  `json:"nodeName"`
	FileName string  `json:"fileName"`
	Format   string  `json:"format"`
	Scale    float64 `json:"scale"`
}

// Writer persists assets into a single output directory.
type Writer struct {
	dir string
}

// NewWriter creates a writer rooted at dir, creating the directory if
// needed.
func NewWriter(dir string) (*Writer, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create output directory %q: %w", dir, err)
	}
	return &Writer{dir: dir}, nil
}

// Dir returns the output directory the writer was created with.
func (w *Writer) Dir() string {
	return w.dir
}

// Write stores one rendered image under the contract name and returns its
// asset record.
func (w *Writer) Write(fileID, nodeID, nodeName, format string, scale float64, data []byte) (Asset, error) {
	fileName := BuildFileName(fileID, nodeID, nodeName, format)

	destPath := filepath.Join(w.dir, fileName)
	if err := os.WriteFile(destPath, data, 0o644); err != nil {
		return Asset{}, fmt.Errorf("failed to write %q: %w", destPath, err)
	}

	return Asset{
		NodeID:   nodeID,
		NodeName: nodeName,
		FileName: fileName,
		Format:   format,
		Scale:    scale,
	}, nil
}

// WriteMetadata stores the sibling .json metadata file for an asset and
// returns the metadata file name.
func (w *Writer) WriteMetadata(asset Asset, meta any) (string, error) {
	data, err := json.MarshalIndent(meta, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to encode metadata: %w", err)
	}

	fileName := MetadataFileName(asset.FileName)
	destPath := filepath.Join(w.dir, fileName)
	if err := os.WriteFile(destPath, data, 0o644); err != nil {
		return "", fmt.Errorf("failed to write %q: %w", destPath, err)
	}

	return fileName, nil
}

// BuildFileName produces the contract file name for an exported asset:
// the file identifier, the node identifier with its colon flattened to a
// hyphen, and the sanitized node name, joined by underscores.
func BuildFileName(fileID, nodeID, nodeName, format string) string {
	name := sanitizeName(nodeName)
	if name == "" {
		name = "asset"
	}
	return fmt.Sprintf("%s_%s_%s.%s", fileID, strings.ReplaceAll(nodeID, ":", "-"), name, format)
}

// MetadataFileName maps an asset file name to its sibling metadata name.
func MetadataFileName(assetFileName string) string {
	ext := filepath.Ext(assetFileName)
	return strings.TrimSuffix(assetFileName, ext) + ".json"
}

// sanitizeName lowercases a node name and collapses every run of
// characters unsafe in file names, whitespace included, into a single
// underscore. Leading and trailing underscores are stripped and the result
// is capped at maxNameLength characters.
func sanitizeName(name string) string {
	name = strings.ToLower(name)

	var sb strings.Builder
	lastUnderscore := false
	for _, r := range name {
		switch {
		case (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') || r == '-' || r == '.':
			sb.WriteRune(r)
			lastUnderscore = false
		case lastUnderscore:
			// collapse the run
		default:
			sb.WriteByte('_')
			lastUnderscore = true
		}
	}

	s := strings.Trim(sb.String(), "_")
	if len(s) > maxNameLength {
		s = strings.Trim(s[:maxNameLength], "_")
	}
	return s
}
