// Package sites maintains the registry of configured documentation targets
// and resolves raw URLs onto (site, path) pairs.
package sites

import (
	"fmt"
	"net/url"
	"sort"
	"strings"

	"github.com/tangentleman/docpull/internal/scrape"
)

// Registry holds the configured sites, ordered for deterministic listing.
type Registry struct {
	byID  map[string]scrape.SiteConfig
	order []string
}

// NewRegistry validates and indexes the provided site configurations.
func NewRegistry(configs []scrape.SiteConfig) (*Registry, error) {
	r := &Registry{byID: make(map[string]scrape.SiteConfig, len(configs))}
	for _, cfg := range configs {
		if cfg.ID == "" {
			return nil, fmt.Errorf("site id is required")
		}
		if _, dup := r.byID[cfg.ID]; dup {
			return nil, fmt.Errorf("duplicate site id %q", cfg.ID)
		}
		if cfg.BaseURL == "" {
			return nil, fmt.Errorf("site %s: base_url is required", cfg.ID)
		}
		if _, err := url.Parse(cfg.BaseURL); err != nil {
			return nil, fmt.Errorf("site %s: parse base_url: %w", cfg.ID, err)
		}
		switch cfg.Mode {
		case scrape.ModeFetch, scrape.ModeBrowser:
		case "":
			cfg.Mode = scrape.ModeFetch
		default:
			return nil, fmt.Errorf("site %s: unknown mode %q", cfg.ID, cfg.Mode)
		}
		if cfg.Selector == "" {
			cfg.Selector = "body"
		}
		if cfg.Method == "" {
			cfg.Method = scrape.ExtractInnerHTML
		}
		if cfg.Links != nil {
			links := *cfg.Links
			if len(links.StartURLs) == 0 {
				links.StartURLs = []string{""}
			}
			if links.MaxDepth <= 0 {
				links.MaxDepth = 2
			}
			cfg.Links = &links
		}
		cfg.BaseURL = strings.TrimSuffix(cfg.BaseURL, "/")
		r.byID[cfg.ID] = cfg
		r.order = append(r.order, cfg.ID)
	}
	sort.Strings(r.order)
	return r, nil
}

// Lookup returns the configuration for a site id.
func (r *Registry) Lookup(siteID string) (scrape.SiteConfig, bool) {
	cfg, ok := r.byID[siteID]
	return cfg, ok
}

// List returns all configured sites ordered by id.
func (r *Registry) List() []scrape.SiteConfig {
	out := make([]scrape.SiteConfig, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, r.byID[id])
	}
	return out
}

// Resolve matches a raw URL against the configured base URLs and returns
// the owning site and the path relative to its base. When several bases
// match, the longest prefix wins. Malformed and unmatched URLs resolve to
// ok == false; resolution never errors.
func (r *Registry) Resolve(rawURL string) (siteID, path string, ok bool) {
	u, err := url.Parse(rawURL)
	if err != nil || u.Host == "" {
		return "", "", false
	}
	normalized := normalize(u)

	bestLen := -1
	for id, cfg := range r.byID {
		base := cfg.BaseURL
		bu, err := url.Parse(base)
		if err != nil {
			continue
		}
		if !strings.EqualFold(bu.Host, u.Host) {
			continue
		}
		basePath := strings.TrimSuffix(bu.Path, "/")
		rest, ok := pathUnder(normalized, basePath)
		if !ok {
			continue
		}
		if len(basePath) > bestLen {
			bestLen = len(basePath)
			siteID = id
			path = rest
		}
	}
	if bestLen < 0 {
		return "", "", false
	}
	if path == "" {
		path = "/"
	}
	return siteID, path, true
}

// pathUnder reports whether p lies under base as a path segment. A base of
// /docs owns /docs, /docs/x and /docs?q but not /docs-v2/x.
func pathUnder(p, base string) (rest string, ok bool) {
	if base == "" {
		return p, true
	}
	if !strings.HasPrefix(p, base) {
		return "", false
	}
	rest = p[len(base):]
	if rest == "" || rest[0] == '/' || rest[0] == '?' {
		return rest, true
	}
	return "", false
}

func normalize(u *url.URL) string {
	p := u.Path
	if p == "" {
		p = "/"
	}
	// Fragments never reach the server; queries are part of the page key.
	if u.RawQuery != "" {
		p += "?" + u.RawQuery
	}
	return p
}
