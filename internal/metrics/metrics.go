// Package metrics exposes Prometheus collectors for the scraping service.
package metrics

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	docpullJobsTotal            *prometheus.CounterVec
	docpullPathsTotal           *prometheus.CounterVec
	docpullFetchDurationSeconds *prometheus.HistogramVec
	docpullActiveWorkers        prometheus.Gauge
	httpRequestsTotal           *prometheus.CounterVec
	httpRequestDurationSeconds  *prometheus.HistogramVec

	once sync.Once
)

// Init initializes the Prometheus metrics collectors.
// It is safe to call this function multiple times.
func Init() {
	once.Do(func() {
		docpullJobsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "docpull_jobs_total",
				Help: "Total number of scrape jobs, labeled by terminal status.",
			},
			[]string{"status"},
		)

		docpullPathsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "docpull_paths_total",
				Help: "Total number of processed paths, labeled by site and outcome.",
			},
			[]string{"site", "outcome"},
		)

		docpullFetchDurationSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "docpull_fetch_duration_seconds",
				Help:    "Histogram of page fetch latencies, labeled by site and mode.",
				Buckets: []float64{0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
			},
			[]string{"site", "mode"},
		)

		docpullActiveWorkers = promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "docpull_active_workers",
				Help: "Number of workers currently processing a batch.",
			},
		)

		httpRequestsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests, labeled by method and code.",
			},
			[]string{"method", "code"},
		)

		httpRequestDurationSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "Histogram of HTTP request latencies, labeled by method and route.",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5},
			},
			[]string{"method", "route"},
		)
	})
}

// Handler returns an http.Handler for exposing Prometheus metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}

// ObserveJob increments the job counter for the given status.
func ObserveJob(status string) {
	if docpullJobsTotal == nil {
		return
	}
	docpullJobsTotal.WithLabelValues(status).Inc()
}

// ObservePath records one processed path with its outcome
// (success, skipped, or failed).
func ObservePath(site, outcome string) {
	if docpullPathsTotal == nil {
		return
	}
	docpullPathsTotal.WithLabelValues(site, outcome).Inc()
}

// ObserveFetch records the duration of one page fetch.
func ObserveFetch(site, mode string, duration time.Duration) {
	if docpullFetchDurationSeconds == nil {
		return
	}
	docpullFetchDurationSeconds.WithLabelValues(site, mode).Observe(duration.Seconds())
}

// IncActiveWorkers increments the active workers gauge.
func IncActiveWorkers() {
	if docpullActiveWorkers == nil {
		return
	}
	docpullActiveWorkers.Inc()
}

// DecActiveWorkers decrements the active workers gauge.
func DecActiveWorkers() {
	if docpullActiveWorkers == nil {
		return
	}
	docpullActiveWorkers.Dec()
}

// ObserveHTTPRequest increments the HTTP request metrics.
func ObserveHTTPRequest(method, route string, code int, duration time.Duration) {
	if httpRequestsTotal == nil || httpRequestDurationSeconds == nil {
		return
	}
	httpRequestsTotal.WithLabelValues(method, strconv.Itoa(code)).Inc()
	httpRequestDurationSeconds.WithLabelValues(method, route).Observe(duration.Seconds())
}
