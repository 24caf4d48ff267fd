// Package cache implements the TTL-qualified content cache over the shared
// key-value store.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/tangentleman/docpull/internal/kv"
	"github.com/tangentleman/docpull/internal/scrape"
)

// Namespace is the kv namespace holding cache entries.
const Namespace = "cache"

// assetSuffix marks entries recorded for binary assets. Assets are resolved
// at classification time and never fetched, so their entries carry no content.
const assetSuffix = "#asset"

// ErrMiss signals an absent or stale entry.
var ErrMiss = errors.New("cache miss")

// Entry is the stored value for one fetched page. Staleness is decided at
// read time against the caller-supplied max age; entries are never evicted.
type Entry struct {
	Content   string    `json:"content"`
	SourceURL string    `json:"source_url"`
	Timestamp time.Time `json:"timestamp"`
}

// Cache reads and writes content entries keyed by (site, path).
type Cache struct {
	store kv.Store
	clock scrape.Clock
}

// New constructs a Cache.
func New(store kv.Store, clock scrape.Clock) *Cache {
	return &Cache{store: store, clock: clock}
}

// Key returns the cache key for a (site, path) pair.
func Key(siteID, path string) string {
	return siteID + ":" + path
}

// Get returns the cached entry if it is younger than maxAge, or ErrMiss.
// A maxAge of zero always misses, which is how force-refresh bypasses the
// cache without touching stored entries.
func (c *Cache) Get(ctx context.Context, siteID, path string, maxAge time.Duration) (Entry, error) {
	if maxAge <= 0 {
		return Entry{}, ErrMiss
	}
	raw, err := c.store.Get(ctx, Namespace, Key(siteID, path))
	if errors.Is(err, kv.ErrNotFound) {
		return Entry{}, ErrMiss
	}
	if err != nil {
		return Entry{}, fmt.Errorf("read cache entry: %w", err)
	}
	var entry Entry
	if err := json.Unmarshal(raw, &entry); err != nil {
		return Entry{}, fmt.Errorf("decode cache entry: %w", err)
	}
	if c.clock.Now().Sub(entry.Timestamp) > maxAge {
		return Entry{}, ErrMiss
	}
	return entry, nil
}

// Set overwrites the entry for (site, path) unconditionally. Last write
// wins; the batch planner guarantees no two workers share a path.
func (c *Cache) Set(ctx context.Context, siteID, path, content, sourceURL string) error {
	entry := Entry{
		Content:   content,
		SourceURL: sourceURL,
		Timestamp: c.clock.Now(),
	}
	raw, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("encode cache entry: %w", err)
	}
	if err := c.store.Set(ctx, Namespace, Key(siteID, path), raw); err != nil {
		return fmt.Errorf("write cache entry: %w", err)
	}
	return nil
}

// MarkAsset records a binary-asset URL under a distinguished key suffix so
// later lookups recognize it as already resolved without a fetch.
func (c *Cache) MarkAsset(ctx context.Context, siteID, path, sourceURL string) error {
	entry := Entry{
		SourceURL: sourceURL,
		Timestamp: c.clock.Now(),
	}
	raw, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("encode asset entry: %w", err)
	}
	if err := c.store.Set(ctx, Namespace, Key(siteID, path)+assetSuffix, raw); err != nil {
		return fmt.Errorf("write asset entry: %w", err)
	}
	return nil
}

// IsAsset reports whether (site, path) was previously recorded as an asset.
func (c *Cache) IsAsset(ctx context.Context, siteID, path string) (bool, error) {
	_, err := c.store.Get(ctx, Namespace, Key(siteID, path)+assetSuffix)
	if errors.Is(err, kv.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("read asset entry: %w", err)
	}
	return true, nil
}
