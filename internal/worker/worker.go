// Package worker implements the per-batch execution loop: cache check,
// circuit-breaker check, fetch, record, and the single terminal report into
// the job registry.
package worker

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/tangentleman/docpull/internal/breaker"
	"github.com/tangentleman/docpull/internal/cache"
	"github.com/tangentleman/docpull/internal/fetcher"
	"github.com/tangentleman/docpull/internal/metrics"
	"github.com/tangentleman/docpull/internal/registry"
	"github.com/tangentleman/docpull/internal/scrape"
)

// maxErrorLen truncates captured fetch error messages before they are
// reported into the job record.
const maxErrorLen = 200

// Task is one batch handed to a worker invocation.
type Task struct {
	JobID  string
	Batch  scrape.Batch
	Delay  time.Duration
	MaxAge time.Duration
}

// Worker processes batches sequentially and reports exactly one result per
// batch into the registry. Workers share no memory; all coordination goes
// through the key-value store.
type Worker struct {
	registry *registry.Registry
	cache    *cache.Cache
	breaker  *breaker.Tracker
	fetcher  scrape.PageFetcher
	sites    scrape.SiteResolver
	archive  scrape.BlobStore
	logger   *zap.Logger
}

// New constructs a Worker. The archive store is optional; a nil archive
// disables content archiving.
func New(
	reg *registry.Registry,
	contentCache *cache.Cache,
	tracker *breaker.Tracker,
	pageFetcher scrape.PageFetcher,
	sites scrape.SiteResolver,
	archive scrape.BlobStore,
	logger *zap.Logger,
) *Worker {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Worker{
		registry: reg,
		cache:    contentCache,
		breaker:  tracker,
		fetcher:  pageFetcher,
		sites:    sites,
		archive:  archive,
		logger:   logger,
	}
}

// Run processes every path in the task's batch in order and folds the
// tallies into the job record. It never returns an error to its caller;
// all failures become data in the job record or log lines.
func (w *Worker) Run(ctx context.Context, task Task) {
	metrics.IncActiveWorkers()
	defer metrics.DecActiveWorkers()

	log := w.logger.With(
		zap.String("job_id", task.JobID),
		zap.String("site_id", task.Batch.SiteID),
		zap.Int("paths", len(task.Batch.Paths)),
	)

	result := w.process(ctx, task, log)

	err := w.registry.ApplyWorkerResult(ctx, task.JobID, result)
	if errors.Is(err, registry.ErrNotFound) {
		// The job record expired under us. The work is done either way;
		// nothing to replay.
		log.Warn("job record missing on worker report")
		return
	}
	if err != nil {
		log.Error("apply worker result failed", zap.Error(err))
		return
	}
	log.Info("batch complete",
		zap.Int("success", result.Success),
		zap.Int("skipped", result.Skipped),
		zap.Int("failed", result.Failed),
	)
}

func (w *Worker) process(ctx context.Context, task Task, log *zap.Logger) scrape.WorkerResult {
	site, ok := w.sites.Lookup(task.Batch.SiteID)
	if !ok {
		return w.failAll(task, fmt.Sprintf("unknown site configuration: %s", task.Batch.SiteID))
	}

	var result scrape.WorkerResult
	fetched := false
	for _, path := range task.Batch.Paths {
		if _, err := w.cache.Get(ctx, site.ID, path, task.MaxAge); err == nil {
			result.Skipped++
			metrics.ObservePath(site.ID, "skipped")
			continue
		} else if !errors.Is(err, cache.ErrMiss) {
			log.Warn("cache read failed", zap.String("path", path), zap.Error(err))
		}

		skip, err := w.breaker.ShouldSkip(ctx, site.ID, path)
		if err != nil {
			log.Warn("breaker read failed", zap.String("path", path), zap.Error(err))
		}
		if skip {
			result.Skipped++
			metrics.ObservePath(site.ID, "skipped")
			continue
		}

		// Space out fetch attempts within the batch. No sleep before the
		// first attempt or after the last.
		if fetched && task.Delay > 0 {
			if !sleepCtx(ctx, task.Delay) {
				w.failRemaining(&result, task, path, "canceled: "+ctx.Err().Error())
				return result
			}
		}
		fetched = true

		fatal := w.fetchOne(ctx, site, path, &result, log)
		if fatal {
			w.failRemaining(&result, task, path, fmt.Sprintf("unknown site configuration: %s", task.Batch.SiteID))
			return result
		}
	}
	return result
}

// fetchOne attempts a single path and updates tallies and shared state.
// It reports whether the failure is fatal for the whole batch.
func (w *Worker) fetchOne(ctx context.Context, site scrape.SiteConfig, path string, result *scrape.WorkerResult, log *zap.Logger) bool {
	start := time.Now()
	page, err := w.fetcher.Fetch(ctx, site, path)
	metrics.ObserveFetch(site.ID, string(site.Mode), time.Since(start))
	if err != nil {
		if errors.Is(err, fetcher.ErrUnknownSite) {
			return true
		}
		msg := truncate(err.Error(), maxErrorLen)
		if recErr := w.breaker.RecordFailure(ctx, site.ID, path, msg); recErr != nil {
			log.Warn("record failure failed", zap.String("path", path), zap.Error(recErr))
		}
		result.Failed++
		result.Errors = append(result.Errors, scrape.JobError{Path: path, Error: msg})
		metrics.ObservePath(site.ID, "failed")
		return false
	}

	if err := w.cache.Set(ctx, site.ID, path, page.Content, page.SourceURL); err != nil {
		log.Warn("cache write failed", zap.String("path", path), zap.Error(err))
	}
	if err := w.breaker.RecordSuccess(ctx, site.ID, path); err != nil {
		log.Warn("breaker reset failed", zap.String("path", path), zap.Error(err))
	}
	w.archiveContent(ctx, site, path, page, log)

	result.Success++
	metrics.ObservePath(site.ID, "success")
	return false
}

// archiveContent writes the extracted content to the blob store.
// Best effort: archive failures never fail the path.
func (w *Worker) archiveContent(ctx context.Context, site scrape.SiteConfig, path string, page scrape.PageContent, log *zap.Logger) {
	if w.archive == nil {
		return
	}
	objectPath := site.ID + "/" + sanitizePath(path) + ".md"
	if _, err := w.archive.PutObject(ctx, objectPath, "text/markdown", []byte(page.Content)); err != nil {
		log.Warn("archive write failed", zap.String("path", path), zap.Error(err))
	}
}

// failAll marks every path in the batch failed without fetching, for the
// fatal unknown-site condition.
func (w *Worker) failAll(task Task, msg string) scrape.WorkerResult {
	var result scrape.WorkerResult
	msg = truncate(msg, maxErrorLen)
	for _, path := range task.Batch.Paths {
		result.Failed++
		result.Errors = append(result.Errors, scrape.JobError{Path: path, Error: msg})
		metrics.ObservePath(task.Batch.SiteID, "failed")
	}
	return result
}

// failRemaining marks fromPath and every path after it failed.
func (w *Worker) failRemaining(result *scrape.WorkerResult, task Task, fromPath, msg string) {
	msg = truncate(msg, maxErrorLen)
	seen := false
	for _, path := range task.Batch.Paths {
		if path == fromPath {
			seen = true
		}
		if !seen {
			continue
		}
		result.Failed++
		result.Errors = append(result.Errors, scrape.JobError{Path: path, Error: msg})
		metrics.ObservePath(task.Batch.SiteID, "failed")
	}
}

func sleepCtx(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}

func sanitizePath(path string) string {
	path = strings.Trim(path, "/")
	if path == "" {
		return "index"
	}
	replacer := strings.NewReplacer("/", "_", "?", "_", "&", "_", "=", "_", "#", "_")
	return replacer.Replace(path)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
