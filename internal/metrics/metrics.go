// Package metrics exposes Prometheus instrumentation for the advisor.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collector holds all Prometheus metrics for the application.
// A nil *Collector is valid and records nothing.
type Collector struct {
	registry *prometheus.Registry

	HTTPRequests *prometheus.CounterVec
	HTTPDuration *prometheus.HistogramVec

	Routes      *prometheus.CounterVec
	Turns       *prometheus.CounterVec
	LLMCalls    *prometheus.CounterVec
	LLMDuration *prometheus.HistogramVec
	Retrievals  *prometheus.CounterVec
	Denials     *prometheus.CounterVec
	BreakerOpen *prometheus.GaugeVec
	CacheEvents *prometheus.CounterVec
}

// NewCollector creates a collector with its own registry.
func NewCollector(namespace string) *Collector {
	registry := prometheus.NewRegistry()

	c := &Collector{
		registry: registry,
		HTTPRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests",
		}, []string{"method", "route", "status"}),
		HTTPDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request duration in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route"}),
		Routes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "route_decisions_total",
			Help:      "Routing decisions per responder",
		}, []string{"responder"}),
		Turns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "turns_total",
			Help:      "Completed advising turns by status",
		}, []string{"status"}),
		LLMCalls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "llm_calls_total",
			Help:      "LLM calls by model and outcome",
		}, []string{"model", "outcome"}),
		LLMDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "llm_call_duration_seconds",
			Help:      "LLM call latency in seconds",
			Buckets:   []float64{0.25, 0.5, 1, 2, 4, 8, 16, 32},
		}, []string{"model"}),
		Retrievals: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "retrievals_total",
			Help:      "Retrievals per agent by outcome",
		}, []string{"agent", "outcome"}),
		Denials: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "namespace_denials_total",
			Help:      "Namespace permission denials per agent",
		}, []string{"agent"}),
		BreakerOpen: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "circuit_breaker_open",
			Help:      "1 when the named circuit breaker is open",
		}, []string{"name"}),
		CacheEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_events_total",
			Help:      "Cache hits and misses per cache",
		}, []string{"cache", "result"}),
	}

	registry.MustRegister(
		c.HTTPRequests, c.HTTPDuration, c.Routes, c.Turns, c.LLMCalls,
		c.LLMDuration, c.Retrievals, c.Denials, c.BreakerOpen, c.CacheEvents,
	)
	return c
}

// Handler serves the collector's registry.
func (c *Collector) Handler() http.Handler {
	if c == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}

// Registry exposes the underlying registry, mainly for tests.
func (c *Collector) Registry() *prometheus.Registry {
	if c == nil {
		return nil
	}
	return c.registry
}

func (c *Collector) RecordHTTP(method, route, status string, d time.Duration) {
	if c == nil {
		return
	}
	c.HTTPRequests.WithLabelValues(method, route, status).Inc()
	c.HTTPDuration.WithLabelValues(method, route).Observe(d.Seconds())
}

func (c *Collector) RecordRoute(responder string) {
	if c == nil {
		return
	}
	c.Routes.WithLabelValues(responder).Inc()
}

func (c *Collector) RecordTurn(status string) {
	if c == nil {
		return
	}
	c.Turns.WithLabelValues(status).Inc()
}

func (c *Collector) RecordLLM(model, outcome string, d time.Duration) {
	if c == nil {
		return
	}
	c.LLMCalls.WithLabelValues(model, outcome).Inc()
	c.LLMDuration.WithLabelValues(model).Observe(d.Seconds())
}

func (c *Collector) RecordRetrieval(agent, outcome string) {
	if c == nil {
		return
	}
	c.Retrievals.WithLabelValues(agent, outcome).Inc()
}

func (c *Collector) RecordDenial(agent string) {
	if c == nil {
		return
	}
	c.Denials.WithLabelValues(agent).Inc()
}

func (c *Collector) SetBreakerOpen(name string, open bool) {
	if c == nil {
		return
	}
	v := 0.0
	if open {
		v = 1
	}
	c.BreakerOpen.WithLabelValues(name).Set(v)
}

func (c *Collector) RecordCache(cache string, hit bool) {
	if c == nil {
		return
	}
	result := "miss"
	if hit {
		result = "hit"
	}
	c.CacheEvents.WithLabelValues(cache, result).Inc()
}
