package headless

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/chromedp/cdproto/network"
	"github.com/stretchr/testify/require"

	"github.com/tangentleman/docpull/internal/scrape"
)

func TestNewChromedpLimiterValidation(t *testing.T) {
	t.Parallel()

	_, err := NewChromedp(Config{MaxParallel: -1})
	require.Error(t, err)

	fetcher, err := NewChromedp(Config{MaxParallel: 2})
	require.NoError(t, err)
	t.Cleanup(fetcher.Close)
	require.Equal(t, 2, cap(fetcher.limiter))
}

func TestFetcherNavTimeoutDefault(t *testing.T) {
	t.Parallel()

	fetcher := &Fetcher{}
	require.Equal(t, 45*time.Second, fetcher.navTimeout())

	fetcher.cfg.NavigationTimeout = time.Second
	require.Equal(t, time.Second, fetcher.navTimeout())
}

func TestResponseMetaCaptureAndFallbacks(t *testing.T) {
	t.Parallel()

	meta := newResponseMeta()
	meta.capture(&network.EventResponseReceived{
		Type: network.ResourceTypeDocument,
		Response: &network.Response{
			Status: 204,
			URL:    "https://example.com/rendered",
		},
	})
	status, _, url := meta.snapshotWithFallbacks("https://req", "")
	require.Equal(t, 204, status)
	require.Equal(t, "https://example.com/rendered", url)

	meta = newResponseMeta()
	status, _, url = meta.snapshotWithFallbacks("https://req", "https://final")
	require.Equal(t, http.StatusOK, status)
	require.Equal(t, "https://final", url)

	meta = newResponseMeta()
	_, _, url = meta.snapshotWithFallbacks("https://req", "")
	require.Equal(t, "https://req", url)
}

func TestAcquireRespectsCancellation(t *testing.T) {
	t.Parallel()

	fetcher := &Fetcher{limiter: make(chan struct{}, 1)}
	require.NoError(t, fetcher.acquire(context.Background()))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := fetcher.acquire(ctx)
	require.ErrorIs(t, err, context.Canceled)

	fetcher.release()
	require.NoError(t, fetcher.acquire(context.Background()))
}

func TestNoopFetcherError(t *testing.T) {
	t.Parallel()

	fetcher := NewNoop()
	_, err := fetcher.Fetch(context.Background(), scrape.SiteConfig{ID: "docs"}, "/guide")
	require.Error(t, err)
}
