package headless

import (
	"context"
	"errors"

	"github.com/tangentleman/docpull/internal/scrape"
)

// Noop implements scrape.PageFetcher but always returns an error. It stands
// in for the browser fetcher when headless rendering is disabled.
type Noop struct{}

// NewNoop creates a new Noop fetcher.
func NewNoop() *Noop {
	return &Noop{}
}

// Fetch returns an error since headless browsing is not available.
func (Noop) Fetch(_ context.Context, _ scrape.SiteConfig, _ string) (scrape.PageContent, error) {
	return scrape.PageContent{}, errors.New("headless fetcher not configured")
}
