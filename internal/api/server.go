// Package api exposes the HTTP interface for the scraping service.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/tangentleman/docpull/internal/cache"
	"github.com/tangentleman/docpull/internal/config"
	"github.com/tangentleman/docpull/internal/discovery"
	"github.com/tangentleman/docpull/internal/metrics"
	"github.com/tangentleman/docpull/internal/orchestrator"
	"github.com/tangentleman/docpull/internal/registry"
	"github.com/tangentleman/docpull/internal/scrape"
)

// maxStatusErrors bounds the error list returned by the status endpoint.
const maxStatusErrors = 10

// Deps bundles the collaborators the HTTP layer drives.
type Deps struct {
	Orchestrator *orchestrator.Orchestrator
	Registry     *registry.Registry
	Sites        scrape.SiteResolver
	Cache        *cache.Cache
	Fetcher      scrape.PageFetcher
	Links        *discovery.Crawler
	Clock        scrape.Clock
}

// Server wires HTTP handlers to the orchestrator and registry.
type Server struct {
	router   chi.Router
	orch     *orchestrator.Orchestrator
	registry *registry.Registry
	sites    scrape.SiteResolver
	cache    *cache.Cache
	fetcher  scrape.PageFetcher
	links    *discovery.Crawler
	clock    scrape.Clock
	cfg      config.Config
	logger   *zap.Logger
}

// NewServer constructs a Server with middleware and routes.
func NewServer(deps Deps, cfg config.Config, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{
		orch:     deps.Orchestrator,
		registry: deps.Registry,
		sites:    deps.Sites,
		cache:    deps.Cache,
		fetcher:  deps.Fetcher,
		links:    deps.Links,
		clock:    deps.Clock,
		cfg:      cfg,
		logger:   logger,
	}
	r := chi.NewRouter()
	r.Use(requestIDMiddleware)
	r.Use(loggingMiddleware(logger))
	r.Use(recoverMiddleware(logger))
	r.Use(timeoutMiddleware(60 * time.Second))

	r.Get("/healthz", s.healthz)
	r.Get("/readyz", s.readyz)
	r.Method(http.MethodGet, "/metrics", metrics.Handler())

	r.Route("/v1", func(r chi.Router) {
		if cfg.Auth.Enabled {
			r.Use(apiKeyMiddleware(cfg.Auth.APIKey))
		}
		r.Route("/jobs", func(r chi.Router) {
			r.Get("/", s.listJobs)
			r.Post("/bulk", s.submitBulk)
			r.Get("/{job_id}/status", s.getJobStatus)
		})
		r.Route("/sites", func(r chi.Router) {
			r.Get("/", s.listSites)
			r.Get("/{site_id}/links", s.siteLinks)
			r.Get("/{site_id}/content", s.siteContent)
		})
	})

	s.router = r
	return s
}

// Handler returns the Router for use with http.Server.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) readyz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

type bulkRequest struct {
	URLs          []string `json:"urls"`
	MaxAgeSeconds *int     `json:"max_age_seconds"`
	Force         bool     `json:"force"`
}

func (s *Server) submitBulk(w http.ResponseWriter, r *http.Request) {
	var req bulkRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}

	opts := orchestrator.Options{Force: req.Force}
	if req.MaxAgeSeconds != nil {
		if *req.MaxAgeSeconds < 0 {
			writeError(w, http.StatusBadRequest, "max_age_seconds must be >= 0")
			return
		}
		opts.MaxAge = time.Duration(*req.MaxAgeSeconds) * time.Second
	}

	sub, err := s.orch.Submit(r.Context(), req.URLs, opts)
	if errors.Is(err, orchestrator.ErrEmptySubmission) {
		writeError(w, http.StatusBadRequest, "urls required")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if sub.JobID == "" {
		// Terminal right away: nothing was scrapeable, no job to poll.
		writeJSON(w, http.StatusOK, sub)
		return
	}
	writeJSON(w, http.StatusAccepted, sub)
}

type jobStatusResponse struct {
	JobID          string              `json:"job_id"`
	Status         scrape.JobStatus    `json:"status"`
	ProgressPct    float64             `json:"progress_pct"`
	ElapsedSeconds float64             `json:"elapsed_seconds"`
	Input          scrape.InputSummary `json:"input"`
	Progress       scrape.Progress     `json:"progress"`
	Workers        scrape.WorkerState  `json:"workers"`
	Errors         []scrape.JobError   `json:"errors,omitempty"`
}

func (s *Server) getJobStatus(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "job_id")
	job, err := s.registry.Read(r.Context(), jobID)
	if errors.Is(err, registry.ErrNotFound) {
		writeError(w, http.StatusNotFound, "job not found")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	resp := jobStatusResponse{
		JobID:          job.ID,
		Status:         job.Status,
		ProgressPct:    progressPct(job),
		ElapsedSeconds: s.clock.Now().Sub(job.CreatedAt).Seconds(),
		Input:          job.Input,
		Progress:       job.Progress,
		Workers:        job.Workers,
		Errors:         job.Errors,
	}
	if len(resp.Errors) > maxStatusErrors {
		resp.Errors = resp.Errors[:maxStatusErrors]
	}
	writeJSON(w, http.StatusOK, resp)
}

type jobListEntry struct {
	JobID     string           `json:"job_id"`
	Status    scrape.JobStatus `json:"status"`
	CreatedAt time.Time        `json:"created_at"`
	Workers   string           `json:"workers"`
	Progress  scrape.Progress  `json:"progress"`
}

func (s *Server) listJobs(w http.ResponseWriter, r *http.Request) {
	jobs, err := s.registry.List(r.Context(), 0)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	entries := make([]jobListEntry, 0, len(jobs))
	for _, job := range jobs {
		entries = append(entries, jobListEntry{
			JobID:     job.ID,
			Status:    job.Status,
			CreatedAt: job.CreatedAt,
			Workers:   fmt.Sprintf("%d/%d", job.Workers.Completed, job.Workers.Total),
			Progress:  job.Progress,
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"jobs": entries})
}

func (s *Server) listSites(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"sites": s.sites.List()})
}

func (s *Server) siteLinks(w http.ResponseWriter, r *http.Request) {
	siteID := chi.URLParam(r, "site_id")
	links, err := s.links.Links(r.Context(), siteID)
	if errors.Is(err, discovery.ErrUnknownSite) {
		writeError(w, http.StatusNotFound, "site not found")
		return
	}
	if errors.Is(err, discovery.ErrNoLinksConfig) {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err != nil {
		writeError(w, http.StatusBadGateway, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"site":  siteID,
		"links": links,
		"count": len(links),
	})
}

type pageContentResponse struct {
	Site      string `json:"site"`
	Path      string `json:"path"`
	Content   string `json:"content"`
	SourceURL string `json:"source_url"`
	FromCache bool   `json:"from_cache"`
}

// siteContent serves one page, from the cache when fresh enough. A max_age
// of zero forces a live fetch; a successful live fetch refreshes the cache.
func (s *Server) siteContent(w http.ResponseWriter, r *http.Request) {
	siteID := chi.URLParam(r, "site_id")
	site, ok := s.sites.Lookup(siteID)
	if !ok {
		writeError(w, http.StatusNotFound, "site not found")
		return
	}
	path := r.URL.Query().Get("path")
	if path == "" {
		writeError(w, http.StatusBadRequest, "path query parameter required")
		return
	}
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}

	maxAge := s.cfg.DefaultMaxAge()
	if raw := r.URL.Query().Get("max_age"); raw != "" {
		seconds, err := strconv.Atoi(raw)
		if err != nil || seconds < 0 {
			writeError(w, http.StatusBadRequest, "max_age must be a non-negative integer")
			return
		}
		maxAge = time.Duration(seconds) * time.Second
	}

	entry, err := s.cache.Get(r.Context(), siteID, path, maxAge)
	if err == nil {
		writeJSON(w, http.StatusOK, pageContentResponse{
			Site:      siteID,
			Path:      path,
			Content:   entry.Content,
			SourceURL: entry.SourceURL,
			FromCache: true,
		})
		return
	}
	if !errors.Is(err, cache.ErrMiss) {
		s.logger.Warn("content cache read failed", zap.String("site", siteID), zap.Error(err))
	}

	page, err := s.fetcher.Fetch(r.Context(), site, path)
	if err != nil {
		writeError(w, http.StatusBadGateway, err.Error())
		return
	}
	if err := s.cache.Set(r.Context(), siteID, path, page.Content, page.SourceURL); err != nil {
		s.logger.Warn("content cache write failed", zap.String("site", siteID), zap.Error(err))
	}
	writeJSON(w, http.StatusOK, pageContentResponse{
		Site:      siteID,
		Path:      path,
		Content:   page.Content,
		SourceURL: page.SourceURL,
		FromCache: false,
	})
}

// progressPct reports completion as a percentage with one decimal place.
// A job with nothing to scrape is 100 percent done by definition.
func progressPct(job scrape.Job) float64 {
	if job.Input.ToScrape == 0 {
		return 100
	}
	pct := float64(job.Progress.Completed) / float64(job.Input.ToScrape) * 100
	return math.Round(pct*10) / 10
}

func requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reqID := uuid.NewString()
		ctx := context.WithValue(r.Context(), requestIDKey{}, reqID)
		w.Header().Set("X-Request-ID", reqID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func loggingMiddleware(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := &responseWriter{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(ww, r)
			duration := time.Since(start)
			logger.Info("request completed",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", ww.status),
				zap.Int64("duration_ms", duration.Milliseconds()),
			)
			metrics.ObserveHTTPRequest(r.Method, r.URL.Path, ww.status, duration)
		})
	}
}

func recoverMiddleware(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if rec := recover(); rec != nil {
					logger.Error("panic recovered", zap.Any("error", rec))
					writeError(w, http.StatusInternalServerError, "internal server error")
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}

func timeoutMiddleware(d time.Duration) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.TimeoutHandler(next, d, "request timed out")
	}
}

func apiKeyMiddleware(expected string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := r.Header.Get("X-API-Key")
			if key == "" {
				key = r.URL.Query().Get("api_key")
			}
			if key != expected {
				writeError(w, http.StatusForbidden, "unauthorized")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

type responseWriter struct {
	http.ResponseWriter
	status int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.status = code
	rw.ResponseWriter.WriteHeader(code)
}

type requestIDKey struct{}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
