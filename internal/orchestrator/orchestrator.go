// Package orchestrator ties classification, planning, and dispatch
// together: it turns one bulk URL submission into a job record and a
// fire-and-forget fan-out of worker invocations.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/tangentleman/docpull/internal/batch"
	"github.com/tangentleman/docpull/internal/breaker"
	"github.com/tangentleman/docpull/internal/classify"
	"github.com/tangentleman/docpull/internal/metrics"
	"github.com/tangentleman/docpull/internal/registry"
	"github.com/tangentleman/docpull/internal/scrape"
	"github.com/tangentleman/docpull/internal/worker"
)

// ErrEmptySubmission is the submission-time rejection for an empty URL list.
var ErrEmptySubmission = errors.New("no URLs submitted")

// Options tune one submission.
type Options struct {
	// MaxAge is the cache TTL applied at read time. Zero falls back to the
	// orchestrator default; Force overrides it to bypass the cache.
	MaxAge time.Duration
	// Force bypasses the cache and clears open breakers for every
	// submitted path.
	Force bool
}

// Submission is the immediate response to a bulk submit. An empty JobID
// with Status completed means nothing was scrapeable and no job record
// exists.
type Submission struct {
	JobID   string              `json:"job_id"`
	Status  scrape.JobStatus    `json:"status"`
	Batches int                 `json:"batches"`
	Input   scrape.InputSummary `json:"input"`
	Message string              `json:"message,omitempty"`
}

// CompletionEvent is published when a job reaches its terminal state.
type CompletionEvent struct {
	JobID    string           `json:"job_id"`
	Status   scrape.JobStatus `json:"status"`
	Progress scrape.Progress  `json:"progress"`
	Sites    []string         `json:"sites"`
}

// Config carries the orchestrator's fixed parameters.
type Config struct {
	// DefaultMaxAge applies when a submission carries no explicit max age.
	DefaultMaxAge time.Duration
	// Delay is the minimum spacing between fetch attempts within a batch.
	Delay time.Duration
	// CompletionTopic names the topic completion events are published to.
	// Empty disables publishing.
	CompletionTopic string
}

// Orchestrator accepts bulk submissions and supervises nothing: workers
// are dispatched detached and report through the shared store.
type Orchestrator struct {
	classifier *classify.Classifier
	planner    *batch.Planner
	registry   *registry.Registry
	worker     *worker.Worker
	tracker    *breaker.Tracker
	publisher  scrape.Publisher
	cfg        Config
	logger     *zap.Logger

	// wg tracks in-flight workers for clean shutdown in tests and main.
	wg sync.WaitGroup
}

// New constructs an Orchestrator. The publisher is optional.
func New(
	classifier *classify.Classifier,
	planner *batch.Planner,
	reg *registry.Registry,
	w *worker.Worker,
	tracker *breaker.Tracker,
	publisher scrape.Publisher,
	cfg Config,
	logger *zap.Logger,
) *Orchestrator {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.DefaultMaxAge <= 0 {
		cfg.DefaultMaxAge = time.Hour
	}
	return &Orchestrator{
		classifier: classifier,
		planner:    planner,
		registry:   reg,
		worker:     w,
		tracker:    tracker,
		publisher:  publisher,
		cfg:        cfg,
		logger:     logger,
	}
}

// Submit classifies the URLs, plans batches, creates the job record, and
// dispatches one detached worker per batch. It returns as soon as the
// batches are handed off; callers poll the registry for the outcome.
func (o *Orchestrator) Submit(ctx context.Context, urls []string, opts Options) (Submission, error) {
	if len(urls) == 0 {
		return Submission{}, ErrEmptySubmission
	}

	classification := o.classifier.Classify(ctx, urls)
	input := summarize(urls, classification)

	maxAge := opts.MaxAge
	if maxAge <= 0 {
		maxAge = o.cfg.DefaultMaxAge
	}
	if opts.Force {
		maxAge = 0
		o.clearBreakers(ctx, classification.BySite)
	}

	batches := o.planner.Plan(classification.BySite)
	if len(batches) == 0 {
		// Nothing to scrape: no job record, terminal answer right away.
		return Submission{
			Status:  scrape.JobStatusCompleted,
			Input:   input,
			Message: "no scrapeable URLs",
		}, nil
	}

	jobID, err := o.registry.Create(ctx, input)
	if err != nil {
		return Submission{}, fmt.Errorf("create job: %w", err)
	}
	if err := o.registry.SetWorkerTotal(ctx, jobID, len(batches)); err != nil {
		return Submission{}, fmt.Errorf("set worker total: %w", err)
	}
	metrics.ObserveJob(string(scrape.JobStatusInProgress))

	for _, b := range batches {
		task := worker.Task{
			JobID:  jobID,
			Batch:  b,
			Delay:  o.cfg.Delay,
			MaxAge: maxAge,
		}
		o.wg.Add(1)
		go func() {
			defer o.wg.Done()
			// Detached from the request context: submission returns
			// immediately and there is no cancellation primitive for
			// in-flight workers.
			o.worker.Run(context.Background(), task)
			o.afterWorker(jobID)
		}()
	}

	o.logger.Info("job dispatched",
		zap.String("job_id", jobID),
		zap.Int("batches", len(batches)),
		zap.Int("to_scrape", input.ToScrape),
		zap.Int("assets", input.Assets),
		zap.Int("unknown", input.Unknown),
	)

	return Submission{
		JobID:   jobID,
		Status:  scrape.JobStatusInProgress,
		Batches: len(batches),
		Input:   input,
	}, nil
}

// Wait blocks until every dispatched worker has reported. Used by shutdown
// and tests; ordinary callers poll instead.
func (o *Orchestrator) Wait() {
	o.wg.Wait()
}

// afterWorker publishes the completion event once the final worker has
// reported in. Best effort: publish failures are logged only.
func (o *Orchestrator) afterWorker(jobID string) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	job, err := o.registry.Read(ctx, jobID)
	if err != nil {
		o.logger.Warn("read job after worker", zap.String("job_id", jobID), zap.Error(err))
		return
	}
	if job.Status != scrape.JobStatusCompleted {
		return
	}
	metrics.ObserveJob(string(scrape.JobStatusCompleted))
	if o.publisher == nil || o.cfg.CompletionTopic == "" {
		return
	}
	event := CompletionEvent{
		JobID:    job.ID,
		Status:   job.Status,
		Progress: job.Progress,
		Sites:    job.Input.Sites,
	}
	if _, err := o.publisher.Publish(ctx, o.cfg.CompletionTopic, event); err != nil {
		o.logger.Warn("publish completion event", zap.String("job_id", jobID), zap.Error(err))
	}
}

// clearBreakers resets open circuits ahead of a forced refresh.
func (o *Orchestrator) clearBreakers(ctx context.Context, bySite map[string][]string) {
	for siteID, paths := range bySite {
		for _, path := range paths {
			if err := o.tracker.ForceClear(ctx, siteID, path); err != nil {
				o.logger.Warn("force clear breaker failed",
					zap.String("site_id", siteID), zap.String("path", path), zap.Error(err))
			}
		}
	}
}

func summarize(urls []string, c scrape.Classification) scrape.InputSummary {
	toScrape := 0
	sites := make([]string, 0, len(c.BySite))
	for siteID, paths := range c.BySite {
		toScrape += len(paths)
		sites = append(sites, siteID)
	}
	sort.Strings(sites)
	return scrape.InputSummary{
		TotalURLs: len(urls),
		ToScrape:  toScrape,
		Assets:    len(c.Assets),
		Unknown:   len(c.Unknown),
		Sites:     sites,
	}
}
