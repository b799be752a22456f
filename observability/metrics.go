package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// MetricsConfig holds configuration for the Metrics collector.
type MetricsConfig struct {
	Namespace      string   `yaml:"namespace" json:"namespace"`
	Subsystem      string   `yaml:"subsystem" json:"subsystem"`
	MetricsPath    string   `yaml:"metricsPath" json:"metricsPath"`
	EnabledMetrics []string `yaml:"enabledMetrics" json:"enabledMetrics"`
}

// DefaultMetricsConfig returns the default configuration.
func DefaultMetricsConfig() MetricsConfig {
	return MetricsConfig{
		Namespace:      "nlflow",
		MetricsPath:    "/metrics",
		EnabledMetrics: []string{"parse", "model", "cache", "http"},
	}
}

func metricsEnabled(enabledList []string, name string) bool {
	for _, e := range enabledList {
		if e == name {
			return true
		}
	}
	return false
}

// Metrics wraps the Prometheus metrics of the parser service. A nil *Metrics
// is valid and records nothing.
type Metrics struct {
	config   MetricsConfig
	registry *prometheus.Registry

	ParsesTotal         *prometheus.CounterVec
	ParseDuration       *prometheus.HistogramVec
	StepsDetected       prometheus.Histogram
	ModelCalls          *prometheus.CounterVec
	CacheLookups        *prometheus.CounterVec
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec
}

// NewMetrics creates a Metrics collector with its own Prometheus registry.
func NewMetrics() *Metrics {
	return NewMetricsWithConfig(DefaultMetricsConfig())
}

// NewMetricsWithConfig creates a Metrics collector with the given config.
func NewMetricsWithConfig(cfg MetricsConfig) *Metrics {
	reg := prometheus.NewRegistry()
	enabled := cfg.EnabledMetrics
	ns := cfg.Namespace
	sub := cfg.Subsystem

	m := &Metrics{config: cfg, registry: reg}

	if metricsEnabled(enabled, "parse") {
		m.ParsesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: ns,
			Subsystem: sub,
			Name:      "parses_total",
			Help:      "Total number of parsed instructions by outcome",
		}, []string{"outcome"})

		m.ParseDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: ns,
			Subsystem: sub,
			Name:      "parse_duration_seconds",
			Help:      "Duration of parse calls in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"outcome"})

		m.StepsDetected = prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: ns,
			Subsystem: sub,
			Name:      "workflow_steps",
			Help:      "Number of top-level steps in returned workflows",
			Buckets:   []float64{0, 1, 2, 3, 5, 8, 13},
		})

		reg.MustRegister(m.ParsesTotal, m.ParseDuration, m.StepsDetected)
	}

	if metricsEnabled(enabled, "model") {
		m.ModelCalls = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: ns,
			Subsystem: sub,
			Name:      "model_calls_total",
			Help:      "Total number of language model calls",
		}, []string{"provider", "status"})

		reg.MustRegister(m.ModelCalls)
	}

	if metricsEnabled(enabled, "cache") {
		m.CacheLookups = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: ns,
			Subsystem: sub,
			Name:      "model_cache_lookups_total",
			Help:      "Model response cache lookups by result",
		}, []string{"result"})

		reg.MustRegister(m.CacheLookups)
	}

	if metricsEnabled(enabled, "http") {
		m.HTTPRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: ns,
			Subsystem: sub,
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests",
		}, []string{"method", "path", "status_code"})

		m.HTTPRequestDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: ns,
			Subsystem: sub,
			Name:      "http_request_duration_seconds",
			Help:      "Duration of HTTP requests in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "path"})

		reg.MustRegister(m.HTTPRequestsTotal, m.HTTPRequestDuration)
	}

	return m
}

// MetricsPath returns the configured metrics endpoint path.
func (m *Metrics) MetricsPath() string { return m.config.MetricsPath }

// Registry returns the underlying Prometheus registry.
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

// Handler returns an HTTP handler that serves Prometheus metrics.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// RecordParse records one parse call.
func (m *Metrics) RecordParse(outcome string, steps int, duration time.Duration) {
	if m == nil {
		return
	}
	if m.ParsesTotal != nil {
		m.ParsesTotal.WithLabelValues(outcome).Inc()
	}
	if m.ParseDuration != nil {
		m.ParseDuration.WithLabelValues(outcome).Observe(duration.Seconds())
	}
	if m.StepsDetected != nil {
		m.StepsDetected.Observe(float64(steps))
	}
}

// RecordModelCall records a model call. status is "success" or "error".
func (m *Metrics) RecordModelCall(provider, status string) {
	if m == nil || m.ModelCalls == nil {
		return
	}
	m.ModelCalls.WithLabelValues(provider, status).Inc()
}

// RecordCacheLookup records a cache hit or miss.
func (m *Metrics) RecordCacheLookup(hit bool) {
	if m == nil || m.CacheLookups == nil {
		return
	}
	result := "miss"
	if hit {
		result = "hit"
	}
	m.CacheLookups.WithLabelValues(result).Inc()
}

// RecordHTTPRequest records an HTTP request metric.
func (m *Metrics) RecordHTTPRequest(method, path string, statusCode int, duration time.Duration) {
	if m == nil {
		return
	}
	if m.HTTPRequestsTotal != nil {
		m.HTTPRequestsTotal.WithLabelValues(method, path, strconv.Itoa(statusCode)).Inc()
	}
	if m.HTTPRequestDuration != nil {
		m.HTTPRequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
	}
}
