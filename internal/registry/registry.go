// Package registry implements the job state machine over the shared
// key-value store: creation, worker-total assignment, atomic result
// folding, and status reads.
package registry

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/tangentleman/docpull/internal/kv"
	"github.com/tangentleman/docpull/internal/scrape"
)

// Namespace is the kv namespace holding job records.
const Namespace = "jobs"

// indexKey holds the bounded most-recent-first list of job ids used by List.
const indexKey = "_index"

// maxIndexed bounds the recent-jobs index.
const maxIndexed = 100

// maxErrorLen truncates captured per-path error messages.
const maxErrorLen = 200

// ErrNotFound signals an unknown job id.
var ErrNotFound = errors.New("job not found")

// Registry creates, reads, and atomically updates job records.
type Registry struct {
	store  kv.Store
	clock  scrape.Clock
	idGen  scrape.IDGenerator
	logger *zap.Logger
}

// New constructs a Registry.
func New(store kv.Store, clock scrape.Clock, idGen scrape.IDGenerator, logger *zap.Logger) *Registry {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Registry{store: store, clock: clock, idGen: idGen, logger: logger}
}

// Create initializes a pending job record with zeroed counters and returns
// its id.
func (r *Registry) Create(ctx context.Context, input scrape.InputSummary) (string, error) {
	jobID, err := r.idGen.NewID()
	if err != nil {
		return "", fmt.Errorf("generate job id: %w", err)
	}
	now := r.clock.Now()
	job := scrape.Job{
		ID:        jobID,
		Status:    scrape.JobStatusPending,
		CreatedAt: now,
		UpdatedAt: now,
		Input:     input,
	}
	raw, err := json.Marshal(job)
	if err != nil {
		return "", fmt.Errorf("encode job: %w", err)
	}
	if err := r.store.Set(ctx, Namespace, jobID, raw); err != nil {
		return "", fmt.Errorf("write job: %w", err)
	}
	if err := r.indexJob(ctx, jobID); err != nil {
		// The job itself is intact; a stale index only affects listing.
		r.logger.Warn("index job failed", zap.String("job_id", jobID), zap.Error(err))
	}
	return jobID, nil
}

// SetWorkerTotal records the planned worker count and advances the job out
// of pending: to in_progress for n > 0, directly to completed for n == 0.
func (r *Registry) SetWorkerTotal(ctx context.Context, jobID string, n int) error {
	err := r.update(ctx, jobID, func(job *scrape.Job) {
		job.Workers.Total = n
		if n == 0 {
			job.Status = scrape.JobStatusCompleted
		} else {
			job.Status = scrape.JobStatusInProgress
		}
	})
	if err != nil {
		return fmt.Errorf("set worker total: %w", err)
	}
	return nil
}

// ApplyWorkerResult atomically folds one worker's tallies into the job:
// progress counters, worker completion, capped error entries, and the
// terminal transition once every worker has reported. Safe under
// concurrent callers; a lost update here would starve the job of ever
// completing.
func (r *Registry) ApplyWorkerResult(ctx context.Context, jobID string, result scrape.WorkerResult) error {
	err := r.update(ctx, jobID, func(job *scrape.Job) {
		job.Progress.Success += result.Success
		job.Progress.Skipped += result.Skipped
		job.Progress.Failed += result.Failed
		job.Progress.Completed += result.Success + result.Skipped + result.Failed
		job.Workers.Completed++

		for _, jobErr := range result.Errors {
			if len(job.Errors) >= scrape.MaxJobErrors {
				break
			}
			jobErr.Error = truncate(jobErr.Error, maxErrorLen)
			job.Errors = append(job.Errors, jobErr)
		}

		if job.Workers.Total > 0 && job.Workers.Completed >= job.Workers.Total {
			job.Status = scrape.JobStatusCompleted
		}
	})
	if err != nil {
		return fmt.Errorf("apply worker result: %w", err)
	}
	return nil
}

// Read returns a snapshot of the job, or ErrNotFound.
func (r *Registry) Read(ctx context.Context, jobID string) (scrape.Job, error) {
	raw, err := r.store.Get(ctx, Namespace, jobID)
	if errors.Is(err, kv.ErrNotFound) {
		return scrape.Job{}, ErrNotFound
	}
	if err != nil {
		return scrape.Job{}, fmt.Errorf("read job: %w", err)
	}
	var job scrape.Job
	if err := json.Unmarshal(raw, &job); err != nil {
		return scrape.Job{}, fmt.Errorf("decode job: %w", err)
	}
	return job, nil
}

// List returns recent jobs, most recent first, up to limit.
func (r *Registry) List(ctx context.Context, limit int) ([]scrape.Job, error) {
	if limit <= 0 || limit > maxIndexed {
		limit = maxIndexed
	}
	raw, err := r.store.Get(ctx, Namespace, indexKey)
	if errors.Is(err, kv.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read job index: %w", err)
	}
	var ids []string
	if err := json.Unmarshal(raw, &ids); err != nil {
		return nil, fmt.Errorf("decode job index: %w", err)
	}

	jobs := make([]scrape.Job, 0, limit)
	for _, id := range ids {
		if len(jobs) >= limit {
			break
		}
		job, err := r.Read(ctx, id)
		if errors.Is(err, ErrNotFound) {
			// Externally expired; skip.
			continue
		}
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, job)
	}
	return jobs, nil
}

func (r *Registry) update(ctx context.Context, jobID string, mutate func(*scrape.Job)) error {
	return r.store.Update(ctx, Namespace, jobID, func(current []byte, exists bool) ([]byte, error) {
		if !exists {
			return nil, ErrNotFound
		}
		var job scrape.Job
		if err := json.Unmarshal(current, &job); err != nil {
			return nil, fmt.Errorf("decode job: %w", err)
		}
		mutate(&job)
		job.UpdatedAt = r.clock.Now()
		next, err := json.Marshal(job)
		if err != nil {
			return nil, fmt.Errorf("encode job: %w", err)
		}
		return next, nil
	})
}

func (r *Registry) indexJob(ctx context.Context, jobID string) error {
	return r.store.Update(ctx, Namespace, indexKey, func(current []byte, exists bool) ([]byte, error) {
		var ids []string
		if exists {
			if err := json.Unmarshal(current, &ids); err != nil {
				ids = nil
			}
		}
		ids = append([]string{jobID}, ids...)
		if len(ids) > maxIndexed {
			ids = ids[:maxIndexed]
		}
		return json.Marshal(ids)
	})
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
