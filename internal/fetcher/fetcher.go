// Package fetcher routes page fetches to the strategy configured for each
// site: plain HTTP crawl or headless browser rendering.
package fetcher

import (
	"context"
	"errors"
	"fmt"

	"github.com/tangentleman/docpull/internal/scrape"
)

// ErrUnknownSite signals a fetch against a site id with no configuration.
// The worker loop treats it as fatal for the whole batch.
var ErrUnknownSite = errors.New("unknown site configuration")

// Mux dispatches on SiteConfig.Mode. A nil strategy for a configured mode
// is a wiring error surfaced at fetch time.
type Mux struct {
	fetch   scrape.PageFetcher
	browser scrape.PageFetcher
}

// NewMux constructs a Mux over the two strategy implementations.
func NewMux(fetch, browser scrape.PageFetcher) *Mux {
	return &Mux{fetch: fetch, browser: browser}
}

// Fetch delegates to the fetcher for the site's mode.
func (m *Mux) Fetch(ctx context.Context, site scrape.SiteConfig, path string) (scrape.PageContent, error) {
	var f scrape.PageFetcher
	switch site.Mode {
	case scrape.ModeFetch, "":
		f = m.fetch
	case scrape.ModeBrowser:
		f = m.browser
	default:
		return scrape.PageContent{}, fmt.Errorf("site %s: unknown mode %q", site.ID, site.Mode)
	}
	if f == nil {
		return scrape.PageContent{}, fmt.Errorf("site %s: no fetcher for mode %q", site.ID, site.Mode)
	}
	return f.Fetch(ctx, site, path)
}
