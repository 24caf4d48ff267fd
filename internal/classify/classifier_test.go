package classify

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/tangentleman/docpull/internal/cache"
	"github.com/tangentleman/docpull/internal/kv/memory"
	"github.com/tangentleman/docpull/internal/scrape"
	"github.com/tangentleman/docpull/internal/sites"
)

type fakeClock struct {
	now time.Time
}

func (c *fakeClock) Now() time.Time { return c.now }

func newClassifier(t *testing.T) (*Classifier, *cache.Cache) {
	t.Helper()
	registry, err := sites.NewRegistry([]scrape.SiteConfig{
		{ID: "siteA", BaseURL: "https://a.test", Mode: scrape.ModeFetch},
		{ID: "siteB", BaseURL: "https://b.test", Mode: scrape.ModeFetch},
	})
	require.NoError(t, err)
	contentCache := cache.New(memory.NewStore(), &fakeClock{now: time.Unix(1000, 0).UTC()})
	return New(registry, contentCache, zap.NewNop()), contentCache
}

func TestClassifyGroupsBySite(t *testing.T) {
	t.Parallel()

	classifier, _ := newClassifier(t)
	got := classifier.Classify(context.Background(), []string{
		"https://a.test/x",
		"https://a.test/y",
		"https://b.test/z",
	})

	require.Equal(t, map[string][]string{
		"siteA": {"/x", "/y"},
		"siteB": {"/z"},
	}, got.BySite)
	require.Empty(t, got.Assets)
	require.Empty(t, got.Unknown)
}

func TestClassifyDeduplicatesPreservingOrder(t *testing.T) {
	t.Parallel()

	classifier, _ := newClassifier(t)
	got := classifier.Classify(context.Background(), []string{
		"https://a.test/y",
		"https://a.test/x",
		"https://a.test/y",
	})

	require.Equal(t, []string{"/y", "/x"}, got.BySite["siteA"])
}

func TestClassifyAssetsAreCachedNotScraped(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	classifier, contentCache := newClassifier(t)
	got := classifier.Classify(ctx, []string{
		"https://a.test/img.png",
		"https://a.test/x",
		"https://elsewhere.test/archive.zip",
	})

	require.Equal(t, []string{"/x"}, got.BySite["siteA"])
	require.Len(t, got.Assets, 2)
	require.Equal(t, scrape.AssetRef{URL: "https://a.test/img.png", SiteID: "siteA", Path: "/img.png"}, got.Assets[0])
	// Assets on unknown hosts stay assets, just unresolved.
	require.Equal(t, scrape.AssetRef{URL: "https://elsewhere.test/archive.zip"}, got.Assets[1])

	isAsset, err := contentCache.IsAsset(ctx, "siteA", "/img.png")
	require.NoError(t, err)
	require.True(t, isAsset)
}

func TestClassifyUnknownAndMalformed(t *testing.T) {
	t.Parallel()

	classifier, _ := newClassifier(t)
	got := classifier.Classify(context.Background(), []string{
		"https://c.test/unmatched",
		"not a url at all",
		"https://a.test/ok",
	})

	require.Equal(t, []string{"https://c.test/unmatched", "not a url at all"}, got.Unknown)
	require.Equal(t, []string{"/ok"}, got.BySite["siteA"])
}

func TestIsBinaryAsset(t *testing.T) {
	t.Parallel()

	tests := []struct {
		url  string
		want bool
	}{
		{"https://a.test/img.png", true},
		{"https://a.test/IMG.PNG", true},
		{"https://a.test/release.tar.gz", true},
		{"https://a.test/manual.pdf", true},
		{"https://a.test/clip.mp4", true},
		{"https://a.test/guide", false},
		{"https://a.test/guide.html", false},
		{"https://a.test/api/v2.1/resources", false},
	}
	for _, tc := range tests {
		require.Equal(t, tc.want, IsBinaryAsset(tc.url), tc.url)
	}
}
