// Package metrics provides Prometheus metrics for the image relay.
package metrics

import (
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

// Default histogram buckets for request latency.
var defaultBuckets = []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10}

// Relay outcomes recorded in RelayResults.
const (
	ResultOK             = "ok"
	ResultMissingSrc     = "missing_src"
	ResultInvalidSrc     = "invalid_src"
	ResultHostForbidden  = "host_forbidden"
	ResultUpstreamFailed = "upstream_failed"
)

// Cache events recorded in CacheEvents.
const (
	CacheHit    = "hit"
	CacheMiss   = "miss"
	CacheStore  = "store"
	CacheSkip   = "skip"
	CacheErrors = "error"
)

// Metrics holds all Prometheus metric collectors for the relay.
type Metrics struct {
	Registry *prometheus.Registry

	RequestsTotal    *prometheus.CounterVec
	RequestDuration  *prometheus.HistogramVec
	RequestsInFlight prometheus.Gauge

	UpstreamDuration  prometheus.Histogram
	UpstreamResponses *prometheus.CounterVec

	RelayResults *prometheus.CounterVec
	CacheEvents  *prometheus.CounterVec
}

// New creates a Metrics instance with a custom registry and all collectors registered.
func New() *Metrics {
	reg := prometheus.NewRegistry()

	reg.MustRegister(collectors.NewGoCollector())
	reg.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	m := &Metrics{
		Registry: reg,

		RequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "image_relay_http_requests_total",
			Help: "Total inbound HTTP requests.",
		}, []string{"method", "status_code", "path_prefix"}),

		RequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "image_relay_http_request_duration_seconds",
			Help:    "Inbound HTTP request latency in seconds.",
			Buckets: defaultBuckets,
		}, []string{"method", "status_code", "path_prefix"}),

		RequestsInFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "image_relay_http_requests_in_flight",
			Help: "Number of HTTP requests currently being processed.",
		}),

		UpstreamDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "image_relay_upstream_request_duration_seconds",
			Help:    "Upstream image fetch latency until response headers, in seconds.",
			Buckets: defaultBuckets,
		}),

		UpstreamResponses: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "image_relay_upstream_responses_total",
			Help: "Total upstream responses by status code (\"error\" for transport failures).",
		}, []string{"status_code"}),

		RelayResults: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "image_relay_relay_results_total",
			Help: "Relay outcomes by result.",
		}, []string{"result"}),

		CacheEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "image_relay_cache_events_total",
			Help: "Fetch-layer cache events by kind.",
		}, []string{"event"}),
	}

	reg.MustRegister(
		m.RequestsTotal,
		m.RequestDuration,
		m.RequestsInFlight,
		m.UpstreamDuration,
		m.UpstreamResponses,
		m.RelayResults,
		m.CacheEvents,
	)

	return m
}

// knownMethods lists the allowed HTTP method label values (bounded cardinality).
var knownMethods = map[string]bool{
	"GET": true, "POST": true, "PUT": true, "DELETE": true,
	"PATCH": true, "HEAD": true, "OPTIONS": true,
}

// NormalizeMethod returns a bounded HTTP method label for Prometheus metrics.
// Non-standard methods are mapped to "other" to prevent cardinality explosion.
func NormalizeMethod(method string) string {
	if knownMethods[method] {
		return method
	}
	return "other"
}

// PathNormalizer maps request paths onto a fixed set of route prefixes.
type PathNormalizer struct {
	prefixes []string
}

// NewPathNormalizer creates a PathNormalizer for the given route prefixes.
func NewPathNormalizer(prefixes ...string) *PathNormalizer {
	return &PathNormalizer{prefixes: prefixes}
}

// Normalize returns a bounded path label for Prometheus metrics.
func (n *PathNormalizer) Normalize(path string) string {
	for _, prefix := range n.prefixes {
		if path == prefix || strings.HasPrefix(path, prefix+"/") || strings.HasPrefix(path, prefix+"?") {
			return prefix
		}
	}
	return "other"
}
