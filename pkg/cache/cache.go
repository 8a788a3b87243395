// Package cache persists raw API responses on disk so repeated exports of
// the same nodes stay within the upstream rate limit.
//
// Entries are content-addressed: the key is a deterministic hash of the
// file identifier and the sorted node-identifier set, so the same logical
// query always lands on the same entry regardless of argument order. Every
// entry carries its own TTL; an entry past its TTL is treated as absent
// without being deleted. Caching is strictly a performance optimization:
// all failures degrade to a miss or a dropped write.
package cache

import (
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

const (
	// DefaultTTL bounds how long an entry is served before it is treated
	// as logically absent.
	DefaultTTL = 24 * time.Hour

	// DefaultDir is the cache directory used when none is configured.
	DefaultDir = ".cache"
)

// FileCache stores one JSON file per cache key inside a flat directory.
// Concurrent readers and writers to different keys are safe; concurrent
// writers to the same key race to last-write-wins, which the atomic
// rename below keeps free of torn reads.
type FileCache struct {
	dir    string
	ttl    time.Duration
	logger zerolog.Logger

	now func() time.Time
}

// Option configures a FileCache.
type Option func(*FileCache)

// WithTTL overrides the TTL stamped on new entries.
func WithTTL(ttl time.Duration) Option {
	return func(c *FileCache) {
		if ttl > 0 {
			c.ttl = ttl
		}
	}
}

// WithLogger sets the cache logger. The default discards everything.
func WithLogger(logger zerolog.Logger) Option {
	return func(c *FileCache) { c.logger = logger }
}

// New creates a file cache rooted at dir, creating the directory if needed.
// An empty dir selects DefaultDir.
func New(dir string, opts ...Option) (*FileCache, error) {
	if dir == "" {
		dir = DefaultDir
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create cache directory %q: %w", dir, err)
	}

	c := &FileCache{
		dir:    dir,
		ttl:    DefaultTTL,
		logger: zerolog.Nop(),
		now:    time.Now,
	}

	for _, o := range opts {
		o(c)
	}

	return c, nil
}

// entryMetadata describes the query an entry answers and its lifetime.
type entryMetadata struct {
	FileID    string        `json:"fileId"`
	NodeIDs   []string      `json:"nodeIds"`
	Timestamp time.Time     `json:"timestamp"`
	TTL       time.Duration `json:"ttl"`
}

// entry is the on-disk record: the query metadata plus the verbatim
// response bytes.
type entry struct {
	Metadata entryMetadata   `json:"metadata"`
	Data     json.RawMessage `json:"data"`
}

// Key computes the deterministic cache key for a query: a sha-256 hex
// digest over the file identifier and the sorted node identifiers. The
// input slice is not modified. Permutations of the same identifier set
// produce the same key.
func Key(fileID string, nodeIDs []string) string {
	sorted := make([]string, len(nodeIDs))
	copy(sorted, nodeIDs)
	sort.Strings(sorted)

	sum := sha256.Sum256([]byte(fileID + ":" + strings.Join(sorted, ",")))
	return fmt.Sprintf("%x", sum)
}

// Lookup returns the cached response bytes for a query, or ok == false when
// no entry exists, the entry cannot be parsed, or the entry's TTL has
// elapsed. Corrupt entries are logged and ignored; expired entries are left
// on disk and simply skipped.
func (c *FileCache) Lookup(fileID string, nodeIDs []string) (json.RawMessage, bool) {
	path := c.path(Key(fileID, nodeIDs))

	data, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			c.logger.Warn().Err(err).Str("file_id", fileID).Msg("cache read failed")
		}
		return nil, false
	}

	var e entry
	if err := json.Unmarshal(data, &e); err != nil {
		c.logger.Warn().Err(err).Str("file_id", fileID).Msg("corrupt cache entry ignored")
		return nil, false
	}

	if c.now().Sub(e.Metadata.Timestamp) > e.Metadata.TTL {
		c.logger.Debug().Str("file_id", fileID).Time("cached_at", e.Metadata.Timestamp).Msg("cache entry expired")
		return nil, false
	}

	return e.Data, true
}

// Store persists the response bytes for a query, overwriting any prior
// entry for the same key. The write goes to a temporary file first and is
// renamed into place so concurrent readers never observe a partial entry.
func (c *FileCache) Store(fileID string, nodeIDs []string, data json.RawMessage) error {
	e := entry{
		Metadata: entryMetadata{
			FileID:    fileID,
			NodeIDs:   nodeIDs,
			Timestamp: c.now(),
			TTL:       c.ttl,
		},
		Data: data,
	}

	encoded, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("failed to encode cache entry: %w", err)
	}

	path := c.path(Key(fileID, nodeIDs))
	tmpPath := path + fmt.Sprintf(".tmp.%d", rand.Int())
	if err := os.WriteFile(tmpPath, encoded, 0o644); err != nil {
		return fmt.Errorf("failed to write cache entry: %w", err)
	}

	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to finalize cache entry: %w", err)
	}

	return nil
}

// path maps a cache key to its backing file.
func (c *FileCache) path(key string) string {
	return filepath.Join(c.dir, key+".json")
}
