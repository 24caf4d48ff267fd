package sites

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/tangentleman/docpull/internal/scrape"
)

func testConfigs() []scrape.SiteConfig {
	return []scrape.SiteConfig{
		{ID: "siteA", Name: "Site A", BaseURL: "https://a.test", Mode: scrape.ModeFetch},
		{ID: "siteB", Name: "Site B", BaseURL: "https://b.test", Mode: scrape.ModeBrowser, Selector: "main"},
		{ID: "siteA-docs", Name: "Site A Docs", BaseURL: "https://a.test/docs", Mode: scrape.ModeFetch},
	}
}

func TestNewRegistryValidates(t *testing.T) {
	t.Parallel()

	_, err := NewRegistry([]scrape.SiteConfig{{BaseURL: "https://a.test"}})
	require.Error(t, err)

	_, err = NewRegistry([]scrape.SiteConfig{{ID: "a"}})
	require.Error(t, err)

	_, err = NewRegistry([]scrape.SiteConfig{
		{ID: "a", BaseURL: "https://a.test"},
		{ID: "a", BaseURL: "https://b.test"},
	})
	require.Error(t, err)

	_, err = NewRegistry([]scrape.SiteConfig{
		{ID: "a", BaseURL: "https://a.test", Mode: "carrier-pigeon"},
	})
	require.Error(t, err)
}

func TestNewRegistryAppliesDefaults(t *testing.T) {
	t.Parallel()

	r, err := NewRegistry([]scrape.SiteConfig{{ID: "a", BaseURL: "https://a.test/"}})
	require.NoError(t, err)

	cfg, ok := r.Lookup("a")
	require.True(t, ok)
	require.Equal(t, scrape.ModeFetch, cfg.Mode)
	require.Equal(t, "body", cfg.Selector)
	require.Equal(t, scrape.ExtractInnerHTML, cfg.Method)
	require.Equal(t, "https://a.test", cfg.BaseURL)
}

func TestNewRegistryDefaultsLinksConfig(t *testing.T) {
	t.Parallel()

	r, err := NewRegistry([]scrape.SiteConfig{
		{ID: "a", BaseURL: "https://a.test", Links: &scrape.LinksConfig{Pattern: "/docs"}},
	})
	require.NoError(t, err)

	cfg, ok := r.Lookup("a")
	require.True(t, ok)
	require.NotNil(t, cfg.Links)
	require.Equal(t, []string{""}, cfg.Links.StartURLs)
	require.Equal(t, 2, cfg.Links.MaxDepth)
	require.Equal(t, "/docs", cfg.Links.Pattern)
}

func TestRegistryResolve(t *testing.T) {
	t.Parallel()

	r, err := NewRegistry(testConfigs())
	require.NoError(t, err)

	tests := []struct {
		name     string
		url      string
		wantSite string
		wantPath string
		wantOK   bool
	}{
		{name: "plain path", url: "https://a.test/guide", wantSite: "siteA", wantPath: "/guide", wantOK: true},
		{name: "root", url: "https://a.test", wantSite: "siteA", wantPath: "/", wantOK: true},
		{name: "longest prefix wins", url: "https://a.test/docs/intro", wantSite: "siteA-docs", wantPath: "/intro", wantOK: true},
		{name: "other host", url: "https://b.test/z", wantSite: "siteB", wantPath: "/z", wantOK: true},
		{name: "query preserved", url: "https://a.test/guide?page=2", wantSite: "siteA", wantPath: "/guide?page=2", wantOK: true},
		{name: "base boundary respected", url: "https://a.test/docsify", wantSite: "siteA", wantPath: "/docsify", wantOK: true},
		{name: "base exact with query", url: "https://a.test/docs?page=2", wantSite: "siteA-docs", wantPath: "?page=2", wantOK: true},
		{name: "unknown host", url: "https://c.test/z", wantOK: false},
		{name: "malformed", url: "://not-a-url", wantOK: false},
		{name: "relative", url: "/just/a/path", wantOK: false},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			site, path, ok := r.Resolve(tc.url)
			require.Equal(t, tc.wantOK, ok)
			if tc.wantOK {
				require.Equal(t, tc.wantSite, site)
				require.Equal(t, tc.wantPath, path)
			}
		})
	}
}

func TestResolveSiblingBaseUnmatched(t *testing.T) {
	t.Parallel()

	r, err := NewRegistry([]scrape.SiteConfig{
		{ID: "docs", BaseURL: "https://x.test/docs"},
	})
	require.NoError(t, err)

	_, _, ok := r.Resolve("https://x.test/docs-v2/intro")
	require.False(t, ok)

	site, path, ok := r.Resolve("https://x.test/docs/intro")
	require.True(t, ok)
	require.Equal(t, "docs", site)
	require.Equal(t, "/intro", path)
}

func TestRegistryListOrdered(t *testing.T) {
	t.Parallel()

	r, err := NewRegistry(testConfigs())
	require.NoError(t, err)

	list := r.List()
	require.Len(t, list, 3)
	require.Equal(t, "siteA", list[0].ID)
	require.Equal(t, "siteA-docs", list[1].ID)
	require.Equal(t, "siteB", list[2].ID)
}
