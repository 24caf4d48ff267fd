package scrape

import (
	"context"
	"time"
)

// PageFetcher fetches one page for a configured site and returns the
// extracted content. Implementations must bound their own request time and
// must not retry internally; retry policy lives in the orchestration layer.
type PageFetcher interface {
	Fetch(ctx context.Context, site SiteConfig, path string) (PageContent, error)
}

// SiteResolver maps a raw URL onto a configured site and its path.
type SiteResolver interface {
	Resolve(rawURL string) (siteID string, path string, ok bool)
	Lookup(siteID string) (SiteConfig, bool)
	List() []SiteConfig
}

// Publisher pushes job completion events to Pub/Sub (or similar).
type Publisher interface {
	Publish(ctx context.Context, topic string, payload any) (string, error)
}

// BlobStore archives extracted content and returns a URI.
type BlobStore interface {
	PutObject(ctx context.Context, path string, contentType string, data []byte) (string, error)
}

// Clock returns the current time (useful for testing).
type Clock interface {
	Now() time.Time
}

// IDGenerator produces opaque job tokens.
type IDGenerator interface {
	NewID() (string, error)
}
