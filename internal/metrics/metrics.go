// Package metrics exposes Prometheus instrumentation for generations, LLM calls,
// test runs and the HTTP API.
//
// All methods are safe on a nil *Metrics so callers that do not care about
// instrumentation can pass nil.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "unitforge"

// Generation outcomes
const (
	OutcomeSuccess = "success" // at least one test case extracted
	OutcomeEmpty   = "empty"   // reply parsed but yielded no test cases
	OutcomeError   = "error"
)

// Run outcomes
const (
	RunPassed  = "passed"
	RunFailed  = "failed"
	RunTimeout = "timeout"
	RunError   = "error"
)

// Metrics holds every collector used by unitforge
type Metrics struct {
	GenerationsTotal    *prometheus.CounterVec
	TestCasesTotal      prometheus.Counter
	LLMRequestDuration  *prometheus.HistogramVec
	LLMTokensTotal      *prometheus.CounterVec
	ExtractionsTotal    *prometheus.CounterVec
	RunsTotal           *prometheus.CounterVec
	RunDuration         prometheus.Histogram
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec

	gatherer prometheus.Gatherer
}

// New registers the collectors on reg. Registering twice on the same registry panics.
func New(reg *prometheus.Registry) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		GenerationsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "generation",
				Name:      "total",
				Help:      "Generations by outcome",
			},
			[]string{"outcome"},
		),
		TestCasesTotal: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "generation",
				Name:      "test_cases_total",
				Help:      "Test cases extracted from model replies",
			},
		),
		LLMRequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "llm",
				Name:      "request_duration_seconds",
				Help:      "LLM request latency by provider and status",
				Buckets:   []float64{1, 2.5, 5, 10, 20, 30, 60, 120, 300},
			},
			[]string{"provider", "status"},
		),
		LLMTokensTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "llm",
				Name:      "tokens_total",
				Help:      "Tokens reported by the provider by direction",
			},
			[]string{"provider", "direction"},
		),
		ExtractionsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "extractor",
				Name:      "strategy_total",
				Help:      "Extractions by the strategy that produced the result",
			},
			[]string{"strategy"},
		),
		RunsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "runner",
				Name:      "runs_total",
				Help:      "Toolchain runs by outcome",
			},
			[]string{"outcome"},
		),
		RunDuration: factory.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "runner",
				Name:      "run_duration_seconds",
				Help:      "Wall time of make test plus coverage",
				Buckets:   []float64{1, 5, 15, 30, 60, 120, 300, 600},
			},
		),
		HTTPRequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "http",
				Name:      "requests_total",
				Help:      "HTTP requests by method, route and status",
			},
			[]string{"method", "route", "status"},
		),
		HTTPRequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "http",
				Name:      "request_duration_seconds",
				Help:      "HTTP request latency by method and route",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"method", "route"},
		),
		gatherer: reg,
	}
}

// Handler serves the registry in the Prometheus exposition format
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}

// ObserveGeneration records one finished generation
func (m *Metrics) ObserveGeneration(outcome string, testCases int) {
	if m == nil {
		return
	}
	m.GenerationsTotal.WithLabelValues(outcome).Inc()
	m.TestCasesTotal.Add(float64(testCases))
}

// ObserveLLM records the latency and token usage of one provider call
func (m *Metrics) ObserveLLM(provider string, d time.Duration, inputTokens, outputTokens int, err error) {
	if m == nil {
		return
	}
	status := "ok"
	if err != nil {
		status = "error"
	}
	if provider == "" {
		provider = "unknown"
	}
	m.LLMRequestDuration.WithLabelValues(provider, status).Observe(d.Seconds())
	if inputTokens > 0 {
		m.LLMTokensTotal.WithLabelValues(provider, "input").Add(float64(inputTokens))
	}
	if outputTokens > 0 {
		m.LLMTokensTotal.WithLabelValues(provider, "output").Add(float64(outputTokens))
	}
}

// ObserveExtraction counts the strategy that produced a result
func (m *Metrics) ObserveExtraction(strategy string) {
	if m == nil {
		return
	}
	m.ExtractionsTotal.WithLabelValues(strategy).Inc()
}

// ObserveRun records one toolchain run
func (m *Metrics) ObserveRun(outcome string, d time.Duration) {
	if m == nil {
		return
	}
	m.RunsTotal.WithLabelValues(outcome).Inc()
	m.RunDuration.Observe(d.Seconds())
}

// ObserveHTTP records one served request. route is the matched route pattern, not the raw path.
func (m *Metrics) ObserveHTTP(method, route string, status int, d time.Duration) {
	if m == nil {
		return
	}
	if route == "" {
		route = "unmatched"
	}
	m.HTTPRequestsTotal.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, route).Observe(d.Seconds())
}
