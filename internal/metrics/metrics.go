// Package metrics provides Prometheus metrics for the advisor engine.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "advisor"

// Metrics holds the engine's Prometheus collectors. A nil *Metrics is valid
// and records nothing.
type Metrics struct {
	registry *prometheus.Registry

	TurnsTotal           *prometheus.CounterVec
	TurnDuration         prometheus.Histogram
	InputRejectionsTotal *prometheus.CounterVec
	ResponseIssuesTotal  *prometheus.CounterVec
	DedupLookupsTotal    *prometheus.CounterVec
	RateLimitDenials     *prometheus.CounterVec
	ContextTokens        prometheus.Histogram
	ContextDegraded      prometheus.Counter
	CacheEntries         prometheus.Gauge
	JobRunsTotal         *prometheus.CounterVec

	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec
	HTTPInFlight        prometheus.Gauge
}

// New creates the collectors and registers them on reg. A nil reg gets a
// fresh registry.
func New(reg *prometheus.Registry) *Metrics {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	f := promauto.With(reg)

	return &Metrics{
		registry: reg,

		TurnsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "turns_total",
			Help:      "Conversation turns handled, by outcome.",
		}, []string{"outcome"}),
		TurnDuration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "turn_duration_seconds",
			Help:      "Duration of conversation turns, model call included.",
			Buckets:   []float64{.01, .05, .1, .25, .5, 1, 2.5, 5, 10, 30, 60},
		}),
		InputRejectionsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "input_rejections_total",
			Help:      "User inputs rejected by the input validator, by reason.",
		}, []string{"reason"}),
		ResponseIssuesTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "response_issues_total",
			Help:      "Issues raised by the response validator, by rule.",
		}, []string{"rule"}),
		DedupLookupsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "dedup_lookups_total",
			Help:      "Duplicate-question lookups, by source and result.",
		}, []string{"source", "result"}),
		RateLimitDenials: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ratelimit_denials_total",
			Help:      "Requests denied by the conversation rate limiter, by reason.",
		}, []string{"reason"}),
		ContextTokens: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "context_tokens",
			Help:      "Estimated tokens of built context windows.",
			Buckets:   prometheus.ExponentialBuckets(250, 2, 8),
		}),
		ContextDegraded: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "context_degraded_total",
			Help:      "Context windows that still exceeded their budget after trimming.",
		}),
		CacheEntries: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "cache_entries",
			Help:      "Entries held by the shared cache.",
		}),
		JobRunsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "job_runs_total",
			Help:      "Scheduled maintenance job runs, by job and status.",
		}, []string{"job", "status"}),

		HTTPRequestsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests, by route and status code.",
		}, []string{"route", "code"}),
		HTTPRequestDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "Duration of HTTP requests in seconds.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"route"}),
		HTTPInFlight: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "http_requests_in_flight",
			Help:      "HTTP requests currently being served.",
		}),
	}
}

// Registry returns the registry the collectors are registered on.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// RecordTurn records a finished turn.
func (m *Metrics) RecordTurn(outcome string, d time.Duration) {
	if m == nil {
		return
	}
	m.TurnsTotal.WithLabelValues(outcome).Inc()
	m.TurnDuration.Observe(d.Seconds())
}

// RecordInputRejection records a rejected user input.
func (m *Metrics) RecordInputRejection(reason string) {
	if m == nil {
		return
	}
	m.InputRejectionsTotal.WithLabelValues(reason).Inc()
}

// RecordResponseIssue records one response validation issue.
func (m *Metrics) RecordResponseIssue(rule string) {
	if m == nil {
		return
	}
	m.ResponseIssuesTotal.WithLabelValues(rule).Inc()
}

// RecordDedupLookup records a duplicate lookup against source ("history" or "index").
func (m *Metrics) RecordDedupLookup(source string, hit bool) {
	if m == nil {
		return
	}
	result := "miss"
	if hit {
		result = "hit"
	}
	m.DedupLookupsTotal.WithLabelValues(source, result).Inc()
}

// RecordRateLimitDenial records a rate-limit denial.
func (m *Metrics) RecordRateLimitDenial(reason string) {
	if m == nil {
		return
	}
	m.RateLimitDenials.WithLabelValues(reason).Inc()
}

// RecordContext records a built context window.
func (m *Metrics) RecordContext(tokens int, degraded bool) {
	if m == nil {
		return
	}
	m.ContextTokens.Observe(float64(tokens))
	if degraded {
		m.ContextDegraded.Inc()
	}
}

// SetCacheEntries reports the shared cache size.
func (m *Metrics) SetCacheEntries(n int) {
	if m == nil {
		return
	}
	m.CacheEntries.Set(float64(n))
}

// RecordJob records a maintenance job run.
func (m *Metrics) RecordJob(job string, err error) {
	if m == nil {
		return
	}
	status := "success"
	if err != nil {
		status = "error"
	}
	m.JobRunsTotal.WithLabelValues(job, status).Inc()
}

// RecordHTTPRequest records a served HTTP request.
func (m *Metrics) RecordHTTPRequest(route string, code int, d time.Duration) {
	if m == nil {
		return
	}
	m.HTTPRequestsTotal.WithLabelValues(route, strconv.Itoa(code)).Inc()
	m.HTTPRequestDuration.WithLabelValues(route).Observe(d.Seconds())
}
