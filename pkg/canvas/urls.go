package canvas

import (
	"net/url"
	"regexp"
	"strings"
)

// Match patterns like:
// https://example.com/file/ABC123/Design-Name
// https://example.com/design/ABC123?node-id=1-2
// https://example.com/proto/ABC123/Prototype
// The host is not pinned: self-hosted and white-label deployments serve the
// same path shapes under their own domains. Anchored so the identifier is
// taken from the path segment only.
var fileURLPattern = regexp.MustCompile(`^https?://[^/\s]+/(?:file|design|proto)/([A-Za-z0-9]+)(?:[/?#]|$)`)

// nodeIDSeparator locates a hyphen between two numeric runs, the form the
// web app uses for the node-id query parameter ("12-34" for node "12:34").
var nodeIDSeparator = regexp.MustCompile(`\d-\d`)

// ParseFileID extracts the file identifier from a design file URL.
// It accepts /file/, /design/ and /proto/ path shapes on any host and
// returns an *InvalidURLError when none match.
func ParseFileID(rawURL string) (string, error) {
	matches := fileURLPattern.FindStringSubmatch(rawURL)
	if len(matches) < 2 {
		return "", &InvalidURLError{URL: rawURL}
	}
	return matches[1], nil
}

// ParseNodeID extracts the raw node-id query parameter from a design file
// URL. The second return value reports whether the parameter was present.
// A missing parameter or an unparseable URL is not an error; the value is
// returned exactly as it appears in the URL, without normalization.
func ParseNodeID(rawURL string) (string, bool) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", false
	}
	id := u.Query().Get("node-id")
	if id == "" {
		return "", false
	}
	return id, true
}

// NormalizeNodeID converts a node identifier to the canonical "major:minor"
// form by replacing the first hyphen separating two numeric runs with a
// colon. Identifiers already in canonical form, and strings matching
// neither form, are returned unchanged.
func NormalizeNodeID(raw string) string {
	loc := nodeIDSeparator.FindStringIndex(raw)
	if loc == nil {
		return raw
	}
	i := loc[0] + 1
	return raw[:i] + ":" + raw[i+1:]
}

// ParseNodeIDs extracts every node identifier from a design file URL's
// node-id parameter. The parameter may hold a comma-separated list; each
// entry is trimmed, normalized to canonical form, and deduplicated while
// preserving first-seen order. Returns an empty slice when the URL carries
// no node identifiers.
func ParseNodeIDs(rawURL string) []string {
	raw, ok := ParseNodeID(rawURL)
	if !ok {
		return []string{}
	}

	parts := strings.Split(raw, ",")
	ids := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed == "" {
			continue
		}
		ids = append(ids, NormalizeNodeID(trimmed))
	}

	return dedupeNodeIDs(ids)
}

// IsValidURL reports whether the URL carries a recognizable file identifier.
func IsValidURL(rawURL string) bool {
	_, err := ParseFileID(rawURL)
	return err == nil
}

// dedupeNodeIDs removes duplicate identifiers, keeping the first occurrence
// of each and preserving the original ordering.
func dedupeNodeIDs(ids []string) []string {
	seen := make(map[string]bool, len(ids))
	result := make([]string, 0, len(ids))
	for _, id := range ids {
		if seen[id] {
			continue
		}
		seen[id] = true
		result = append(result, id)
	}
	return result
}
