// Package cache provides the content-addressed disk store for model
// responses and the middleware that consults it. Entries are keyed by the
// canonical request hash, written atomically via temp-file rename, and
// persist across runs: a re-run over identical inputs is served entirely
// from disk with zero provider calls.
package cache

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	llmerrors "github.com/ahrav/go-evalrun/internal/llm/errors"
	"github.com/ahrav/go-evalrun/internal/llm/transport"
)

// Entry is the persisted form of a successful model response.
// Content-addressed and append-only: concurrent writers of the same key
// produce identical content, so overwrite is idempotent. There is no
// in-process eviction.
type Entry struct {
	Provider       string                    `json:"provider"`
	Model          string                    `json:"model"`
	Content        string                    `json:"content"`
	Usage          transport.NormalizedUsage `json:"usage"`
	LatencyMs      int64                     `json:"latency_ms"`
	RequestID      string                    `json:"request_id,omitempty"`
	Raw            map[string]any            `json:"raw,omitempty"`
	StoredAtUnixMs int64                     `json:"stored_at_ms"`
}

// DiskCache is a file-per-key response store. Safe for concurrent use:
// writes go through an atomic rename so readers never observe a partial
// entry, and same-key writers race benignly.
type DiskCache struct {
	root    string
	enabled bool
	logger  *slog.Logger
}

// NewDiskCache opens (creating if needed) a cache rooted at dir.
// A disabled cache is valid: every Get misses and Put is a no-op, which is
// how operators force fresh provider calls without deleting entries.
func NewDiskCache(dir string, enabled bool) (*DiskCache, error) {
	if enabled {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create cache dir %s: %w", dir, err)
		}
	}
	return &DiskCache{
		root:    dir,
		enabled: enabled,
		logger:  slog.Default().With("component", "cache"),
	}, nil
}

// Enabled reports whether lookups and stores are active.
func (c *DiskCache) Enabled() bool { return c.enabled }

func (c *DiskCache) pathForKey(key transport.CacheKey) string {
	return filepath.Join(c.root, string(key)+".json")
}

// Get returns the cached entry for key, or ok=false on a miss. A miss is
// never an error. Disk faults and corrupted entries degrade to a miss: the
// entry is discarded, a CacheIOError is returned alongside ok=false so the
// caller can log it, and execution continues.
func (c *DiskCache) Get(key transport.CacheKey) (*Entry, bool, error) {
	if !c.enabled {
		return nil, false, nil
	}

	path := c.pathForKey(key)
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, false, nil
		}
		return nil, false, &llmerrors.CacheIOError{Op: "get", Key: string(key), Err: err}
	}

	var entry Entry
	if err := json.Unmarshal(data, &entry); err != nil {
		// Corrupted entry: discard so the next run rewrites it cleanly.
		c.logger.Warn("corrupted cache entry discarded", "key", key, "error", err)
		if rmErr := os.Remove(path); rmErr != nil && !errors.Is(rmErr, fs.ErrNotExist) {
			c.logger.Warn("failed to remove corrupted cache entry", "key", key, "error", rmErr)
		}
		return nil, false, &llmerrors.CacheIOError{Op: "get", Key: string(key), Err: err}
	}
	return &entry, true, nil
}

// Put stores an entry atomically: the JSON is written to a temp file in the
// cache root and renamed into place, so concurrent readers see either the
// previous complete entry or the new one, never a partial write.
func (c *DiskCache) Put(key transport.CacheKey, entry *Entry) error {
	if !c.enabled {
		return nil
	}
	if entry.StoredAtUnixMs == 0 {
		entry.StoredAtUnixMs = time.Now().UnixMilli()
	}

	data, err := json.Marshal(entry)
	if err != nil {
		return &llmerrors.CacheIOError{Op: "put", Key: string(key), Err: err}
	}

	tmp, err := os.CreateTemp(c.root, "put-*.tmp")
	if err != nil {
		return &llmerrors.CacheIOError{Op: "put", Key: string(key), Err: err}
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return &llmerrors.CacheIOError{Op: "put", Key: string(key), Err: err}
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return &llmerrors.CacheIOError{Op: "put", Key: string(key), Err: err}
	}
	if err := os.Rename(tmpName, c.pathForKey(key)); err != nil {
		os.Remove(tmpName)
		return &llmerrors.CacheIOError{Op: "put", Key: string(key), Err: err}
	}
	return nil
}

// Delete removes an entry. Missing entries are not an error.
func (c *DiskCache) Delete(key transport.CacheKey) error {
	if !c.enabled {
		return nil
	}
	if err := os.Remove(c.pathForKey(key)); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return &llmerrors.CacheIOError{Op: "delete", Key: string(key), Err: err}
	}
	return nil
}
