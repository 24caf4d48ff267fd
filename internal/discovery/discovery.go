// Package discovery enumerates the documentation links of a configured
// site by crawling from its start URLs.
package discovery

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/tangentleman/docpull/internal/extract"
	"github.com/tangentleman/docpull/internal/scrape"
)

// ErrNoLinksConfig signals a discovery request against a site whose
// configuration carries no links block.
var ErrNoLinksConfig = errors.New("site has no links configuration")

// ErrUnknownSite signals a discovery request for an unconfigured site id.
var ErrUnknownSite = errors.New("unknown site")

// maxPages bounds one discovery run regardless of depth, so a site whose
// pages cross-link heavily cannot crawl without end.
const maxPages = 500

// Crawler walks a site breadth-first from its configured start URLs and
// collects every same-host link matching the site's pattern.
type Crawler struct {
	fetcher scrape.PageFetcher
	sites   scrape.SiteResolver
	logger  *zap.Logger
}

// New constructs a Crawler over the shared fetcher and site registry.
func New(fetcher scrape.PageFetcher, sites scrape.SiteResolver, logger *zap.Logger) *Crawler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Crawler{fetcher: fetcher, sites: sites, logger: logger}
}

// Links discovers the documentation URLs of a site. Fetch mode crawls
// breadth-first to the configured depth; browser mode renders the first
// start URL and reads its links in one pass, since a rendered index page
// carries the full navigation tree. Per-page fetch failures are logged and
// skipped; the crawl continues.
func (c *Crawler) Links(ctx context.Context, siteID string) ([]string, error) {
	site, ok := c.sites.Lookup(siteID)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownSite, siteID)
	}
	if site.Links == nil {
		return nil, fmt.Errorf("site %s: %w", siteID, ErrNoLinksConfig)
	}
	if site.Links.WaitFor != "" {
		site.WaitFor = site.Links.WaitFor
	}

	if site.Mode == scrape.ModeBrowser {
		return c.singlePage(ctx, site)
	}
	return c.crawl(ctx, site)
}

type crawlItem struct {
	path  string
	depth int
}

func (c *Crawler) crawl(ctx context.Context, site scrape.SiteConfig) ([]string, error) {
	found := make(map[string]struct{})
	visited := make(map[string]struct{})
	queue := make([]crawlItem, 0, len(site.Links.StartURLs))
	for _, path := range site.Links.StartURLs {
		queue = append(queue, crawlItem{path: path})
	}

	for len(queue) > 0 {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("discovery canceled: %w", err)
		}
		item := queue[0]
		queue = queue[1:]
		if _, done := visited[item.path]; done {
			continue
		}
		if len(visited) >= maxPages {
			c.logger.Warn("discovery page budget reached", zap.String("site", site.ID))
			break
		}
		visited[item.path] = struct{}{}

		links, err := c.pageLinks(ctx, site, item.path)
		if err != nil {
			c.logger.Warn("discovery fetch failed",
				zap.String("site", site.ID),
				zap.String("path", item.path),
				zap.Error(err),
			)
			continue
		}
		for _, link := range links {
			found[link] = struct{}{}
			path, under := strings.CutPrefix(link, site.BaseURL)
			if !under || item.depth >= site.Links.MaxDepth {
				continue
			}
			if _, done := visited[path]; !done {
				queue = append(queue, crawlItem{path: path, depth: item.depth + 1})
			}
		}
	}
	return sorted(found), nil
}

func (c *Crawler) singlePage(ctx context.Context, site scrape.SiteConfig) ([]string, error) {
	path := site.Links.StartURLs[0]
	links, err := c.pageLinks(ctx, site, path)
	if err != nil {
		return nil, fmt.Errorf("discover %s%s: %w", site.BaseURL, path, err)
	}
	found := make(map[string]struct{}, len(links))
	for _, link := range links {
		found[link] = struct{}{}
	}
	return sorted(found), nil
}

func (c *Crawler) pageLinks(ctx context.Context, site scrape.SiteConfig, path string) ([]string, error) {
	page, err := c.fetcher.Fetch(ctx, site, path)
	if err != nil {
		return nil, err
	}
	return extract.Links(page.HTML, site.BaseURL, site.Links.Pattern)
}

func sorted(set map[string]struct{}) []string {
	out := make([]string, 0, len(set))
	for link := range set {
		out = append(out, link)
	}
	sort.Strings(out)
	return out
}
