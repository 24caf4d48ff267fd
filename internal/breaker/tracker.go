// Package breaker implements the per-path circuit breaker: a failure
// counter with time-boxed auto-expiry backed by the shared key-value store.
package breaker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/tangentleman/docpull/internal/kv"
	"github.com/tangentleman/docpull/internal/scrape"
)

// Namespace is the kv namespace holding error records.
const Namespace = "errors"

// Defaults for the circuit breaker. A path is blocked after three failures
// and recovers automatically a day after the last one.
const (
	DefaultThreshold = 3
	DefaultExpiry    = 24 * time.Hour
)

// Record is the stored failure state for one (site, path) key.
type Record struct {
	Count     int       `json:"count"`
	LastError string    `json:"last_error"`
	Timestamp time.Time `json:"timestamp"`
}

// Tracker counts consecutive fetch failures per path and answers whether a
// path should be skipped without a fetch attempt.
type Tracker struct {
	store     kv.Store
	clock     scrape.Clock
	threshold int
	expiry    time.Duration
}

// New constructs a Tracker. Non-positive threshold or expiry fall back to
// the defaults.
func New(store kv.Store, clock scrape.Clock, threshold int, expiry time.Duration) *Tracker {
	if threshold <= 0 {
		threshold = DefaultThreshold
	}
	if expiry <= 0 {
		expiry = DefaultExpiry
	}
	return &Tracker{store: store, clock: clock, threshold: threshold, expiry: expiry}
}

func key(siteID, path string) string {
	return siteID + ":" + path
}

// ShouldSkip reports whether the circuit is open for (site, path): the
// failure count reached the threshold and the record is younger than the
// expiry window. Stale records are ignored rather than purged, which gives
// persistently failing paths automatic recovery.
func (t *Tracker) ShouldSkip(ctx context.Context, siteID, path string) (bool, error) {
	raw, err := t.store.Get(ctx, Namespace, key(siteID, path))
	if errors.Is(err, kv.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("read error record: %w", err)
	}
	var rec Record
	if err := json.Unmarshal(raw, &rec); err != nil {
		return false, fmt.Errorf("decode error record: %w", err)
	}
	if rec.Count < t.threshold {
		return false, nil
	}
	return t.clock.Now().Sub(rec.Timestamp) < t.expiry, nil
}

// RecordFailure atomically increments the failure count and stamps the
// record with the current time, so each new failure resets the expiry
// window and keeps a persistently failing path blocked.
func (t *Tracker) RecordFailure(ctx context.Context, siteID, path, message string) error {
	now := t.clock.Now()
	err := t.store.Update(ctx, Namespace, key(siteID, path), func(current []byte, exists bool) ([]byte, error) {
		rec := Record{}
		if exists {
			if err := json.Unmarshal(current, &rec); err != nil {
				// Corrupt records start over rather than block the write.
				rec = Record{}
			}
		}
		rec.Count++
		rec.LastError = message
		rec.Timestamp = now
		return json.Marshal(rec)
	})
	if err != nil {
		return fmt.Errorf("record failure: %w", err)
	}
	return nil
}

// RecordSuccess deletes the record, fully resetting the breaker for the key.
func (t *Tracker) RecordSuccess(ctx context.Context, siteID, path string) error {
	if err := t.store.Delete(ctx, Namespace, key(siteID, path)); err != nil {
		return fmt.Errorf("clear error record: %w", err)
	}
	return nil
}

// ForceClear is the explicit external override used by force-refresh
// submissions. It behaves like RecordSuccess; cache bypass is handled by
// the zero max-age read.
func (t *Tracker) ForceClear(ctx context.Context, siteID, path string) error {
	return t.RecordSuccess(ctx, siteID, path)
}
