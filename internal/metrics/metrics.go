// Package metrics exposes Prometheus collectors for the monitoring engine.
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
	crawlsTotal                *prometheus.CounterVec
	claimsExtractedTotal       prometheus.Counter
	eventsTotal                *prometheus.CounterVec
	jobsTotal                  *prometheus.CounterVec
	evidenceTotal              *prometheus.CounterVec
	alertsDroppedTotal         prometheus.Counter
	httpRequestsTotal          *prometheus.CounterVec
	httpRequestDurationSeconds *prometheus.HistogramVec
	activeWorkers              prometheus.Gauge

	once sync.Once
)

// Init initializes the Prometheus metrics collectors.
// It is safe to call this function multiple times.
func Init() {
	once.Do(func() {
		crawlsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "trustwatch_crawls_total",
				Help: "Total crawl executions, labeled by outcome (changed, unchanged, failed).",
			},
			[]string{"outcome"},
		)

		claimsExtractedTotal = promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "trustwatch_claims_extracted_total",
				Help: "Total claims extracted from fetched pages.",
			},
		)

		eventsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "trustwatch_change_events_total",
				Help: "Total change events emitted, labeled by type and severity.",
			},
			[]string{"type", "severity"},
		)

		jobsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "trustwatch_jobs_total",
				Help: "Total queue jobs finished, labeled by queue and status.",
			},
			[]string{"queue", "status"},
		)

		evidenceTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "trustwatch_evidence_total",
				Help: "Total evidence rows transitioned, labeled by status.",
			},
			[]string{"status"},
		)

		alertsDroppedTotal = promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "trustwatch_alerts_rate_limited_total",
				Help: "Critical alerts dropped by the per-company hourly cap.",
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

		activeWorkers = promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "trustwatch_active_workers",
				Help: "Number of workers currently processing a job.",
			},
		)
	})
}

// Handler returns an http.Handler for exposing Prometheus metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}

// ObserveCrawl increments the crawl counter for the given outcome.
func ObserveCrawl(outcome string) {
	Init()
	crawlsTotal.WithLabelValues(outcome).Inc()
}

// ObserveClaims adds to the extracted-claims counter.
func ObserveClaims(n int) {
	Init()
	if n > 0 {
		claimsExtractedTotal.Add(float64(n))
	}
}

// ObserveEvent increments the event counter.
func ObserveEvent(eventType, severity string) {
	Init()
	eventsTotal.WithLabelValues(eventType, severity).Inc()
}

// ObserveJob increments the job counter for the given queue and status.
func ObserveJob(queue, status string) {
	Init()
	jobsTotal.WithLabelValues(queue, status).Inc()
}

// ObserveEvidence increments the evidence counter for the given status.
func ObserveEvidence(status string) {
	Init()
	evidenceTotal.WithLabelValues(status).Inc()
}

// ObserveAlertDropped increments the rate-limited alert counter.
func ObserveAlertDropped() {
	Init()
	alertsDroppedTotal.Inc()
}

// ObserveHTTPRequest increments the HTTP request metrics.
func ObserveHTTPRequest(method, route string, code int, duration time.Duration) {
	Init()
	httpRequestsTotal.WithLabelValues(method, strconv.Itoa(code)).Inc()
	httpRequestDurationSeconds.WithLabelValues(method, route).Observe(duration.Seconds())
}

// IncActiveWorkers increments the active workers gauge.
func IncActiveWorkers() {
	Init()
	activeWorkers.Inc()
}

// DecActiveWorkers decrements the active workers gauge.
func DecActiveWorkers() {
	Init()
	activeWorkers.Dec()
}
