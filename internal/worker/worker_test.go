package worker

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/tangentleman/docpull/internal/breaker"
	"github.com/tangentleman/docpull/internal/cache"
	"github.com/tangentleman/docpull/internal/id/token"
	"github.com/tangentleman/docpull/internal/kv/memory"
	"github.com/tangentleman/docpull/internal/registry"
	"github.com/tangentleman/docpull/internal/scrape"
	"github.com/tangentleman/docpull/internal/sites"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

type fakeFetcher struct {
	mu      sync.Mutex
	fetched []string
	fail    map[string]error
	content string
}

func (f *fakeFetcher) Fetch(_ context.Context, site scrape.SiteConfig, path string) (scrape.PageContent, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fetched = append(f.fetched, path)
	if err, ok := f.fail[path]; ok {
		return scrape.PageContent{}, err
	}
	return scrape.PageContent{Content: f.content, SourceURL: site.BaseURL + path}, nil
}

type fixture struct {
	worker   *Worker
	registry *registry.Registry
	cache    *cache.Cache
	breaker  *breaker.Tracker
	fetcher  *fakeFetcher
	jobID    string
}

func newFixture(t *testing.T, paths int, fail map[string]error) *fixture {
	t.Helper()

	store := memory.NewStore()
	clock := &fakeClock{now: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)}
	reg := registry.New(store, clock, token.New(), zap.NewNop())

	siteRegistry, err := sites.NewRegistry([]scrape.SiteConfig{
		{ID: "docs", Name: "Docs", BaseURL: "https://docs.example.com", Mode: scrape.ModeFetch},
	})
	require.NoError(t, err)

	contentCache := cache.New(store, clock)
	tracker := breaker.New(store, clock, 3, 24*time.Hour)
	fetcher := &fakeFetcher{fail: fail, content: "body"}

	w := New(reg, contentCache, tracker, fetcher, siteRegistry, nil, zap.NewNop())

	jobID, err := reg.Create(context.Background(), scrape.InputSummary{TotalURLs: paths, ToScrape: paths, Sites: []string{"docs"}})
	require.NoError(t, err)
	require.NoError(t, reg.SetWorkerTotal(context.Background(), jobID, 1))

	return &fixture{worker: w, registry: reg, cache: contentCache, breaker: tracker, fetcher: fetcher, jobID: jobID}
}

func TestRunAllSuccess(t *testing.T) {
	t.Parallel()

	paths := []string{"/a", "/b", "/c"}
	f := newFixture(t, len(paths), nil)

	f.worker.Run(context.Background(), Task{
		JobID:  f.jobID,
		Batch:  scrape.Batch{SiteID: "docs", Paths: paths},
		MaxAge: time.Hour,
	})

	job, err := f.registry.Read(context.Background(), f.jobID)
	require.NoError(t, err)
	require.Equal(t, scrape.JobStatusCompleted, job.Status)
	require.Equal(t, 3, job.Progress.Success)
	require.Equal(t, 3, job.Progress.Completed)
	require.Equal(t, 1, job.Workers.Completed)
	require.Empty(t, job.Errors)

	entry, err := f.cache.Get(context.Background(), "docs", "/a", time.Hour)
	require.NoError(t, err)
	require.Equal(t, "body", entry.Content)
}

func TestRunCacheHitSkips(t *testing.T) {
	t.Parallel()

	paths := []string{"/a", "/b"}
	f := newFixture(t, len(paths), nil)
	require.NoError(t, f.cache.Set(context.Background(), "docs", "/a", "cached", "https://docs.example.com/a"))

	f.worker.Run(context.Background(), Task{
		JobID:  f.jobID,
		Batch:  scrape.Batch{SiteID: "docs", Paths: paths},
		MaxAge: time.Hour,
	})

	job, err := f.registry.Read(context.Background(), f.jobID)
	require.NoError(t, err)
	require.Equal(t, 1, job.Progress.Skipped)
	require.Equal(t, 1, job.Progress.Success)
	require.Equal(t, []string{"/b"}, f.fetcher.fetched)
}

func TestRunZeroMaxAgeForcesRefetch(t *testing.T) {
	t.Parallel()

	paths := []string{"/a"}
	f := newFixture(t, len(paths), nil)
	require.NoError(t, f.cache.Set(context.Background(), "docs", "/a", "stale", "https://docs.example.com/a"))

	f.worker.Run(context.Background(), Task{
		JobID:  f.jobID,
		Batch:  scrape.Batch{SiteID: "docs", Paths: paths},
		MaxAge: 0,
	})

	require.Equal(t, []string{"/a"}, f.fetcher.fetched)
	entry, err := f.cache.Get(context.Background(), "docs", "/a", time.Hour)
	require.NoError(t, err)
	require.Equal(t, "body", entry.Content)
}

func TestRunBreakerOpenSkips(t *testing.T) {
	t.Parallel()

	paths := []string{"/bad"}
	f := newFixture(t, len(paths), nil)
	for i := 0; i < 3; i++ {
		require.NoError(t, f.breaker.RecordFailure(context.Background(), "docs", "/bad", "boom"))
	}

	f.worker.Run(context.Background(), Task{
		JobID:  f.jobID,
		Batch:  scrape.Batch{SiteID: "docs", Paths: paths},
		MaxAge: time.Hour,
	})

	job, err := f.registry.Read(context.Background(), f.jobID)
	require.NoError(t, err)
	require.Equal(t, 1, job.Progress.Skipped)
	require.Empty(t, f.fetcher.fetched)
}

func TestRunFetchFailureRecorded(t *testing.T) {
	t.Parallel()

	paths := []string{"/ok", "/bad"}
	f := newFixture(t, len(paths), map[string]error{"/bad": errors.New("status 500")})

	f.worker.Run(context.Background(), Task{
		JobID:  f.jobID,
		Batch:  scrape.Batch{SiteID: "docs", Paths: paths},
		MaxAge: time.Hour,
	})

	job, err := f.registry.Read(context.Background(), f.jobID)
	require.NoError(t, err)
	require.Equal(t, 1, job.Progress.Success)
	require.Equal(t, 1, job.Progress.Failed)
	require.Len(t, job.Errors, 1)
	require.Equal(t, "/bad", job.Errors[0].Path)
	require.Contains(t, job.Errors[0].Error, "status 500")

	skip, err := f.breaker.ShouldSkip(context.Background(), "docs", "/bad")
	require.NoError(t, err)
	require.False(t, skip, "one failure should not open the breaker")
}

func TestRunUnknownSiteFailsWholeBatch(t *testing.T) {
	t.Parallel()

	paths := []string{"/a", "/b", "/c"}
	f := newFixture(t, len(paths), nil)

	f.worker.Run(context.Background(), Task{
		JobID:  f.jobID,
		Batch:  scrape.Batch{SiteID: "ghost", Paths: paths},
		MaxAge: time.Hour,
	})

	job, err := f.registry.Read(context.Background(), f.jobID)
	require.NoError(t, err)
	require.Equal(t, 3, job.Progress.Failed)
	require.Equal(t, 3, job.Progress.Completed)
	require.Len(t, job.Errors, 3)
	require.Empty(t, f.fetcher.fetched, "fatal condition must not attempt fetches")
	require.Equal(t, scrape.JobStatusCompleted, job.Status)
}

func TestRunMissingJobSwallowed(t *testing.T) {
	t.Parallel()

	f := newFixture(t, 1, nil)

	// Must not panic or error when the job record is gone.
	f.worker.Run(context.Background(), Task{
		JobID:  "vanished",
		Batch:  scrape.Batch{SiteID: "docs", Paths: []string{"/a"}},
		MaxAge: time.Hour,
	})
}

func TestSanitizePath(t *testing.T) {
	t.Parallel()

	require.Equal(t, "index", sanitizePath("/"))
	require.Equal(t, "guide_intro", sanitizePath("/guide/intro"))
	require.Equal(t, "page_v_2", sanitizePath("/page?v=2"))
}
