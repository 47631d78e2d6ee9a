// Package metrics holds the Prometheus collectors of the dashboard.
package metrics

import (
	"net/http"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics groups the collectors registered on one registry.
type Metrics struct {
	registry *prometheus.Registry

	datasetLoads        *prometheus.CounterVec
	datasetLoadDuration prometheus.Histogram
	datasetRows         prometheus.Gauge
	cacheLookups        *prometheus.CounterVec
	pageRenders         *prometheus.CounterVec
	renderDuration      *prometheus.HistogramVec
	httpRequests        *prometheus.CounterVec
	httpDuration        *prometheus.HistogramVec
}

// New creates the collectors and registers them with a fresh registry,
// alongside the Go runtime and process collectors.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{registry: reg}
	m.datasetLoads = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "crashlens_dataset_loads_total",
			Help: "Total number of dataset loads",
		},
		[]string{"status"}, // status: success, error
	)
	m.datasetLoadDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "crashlens_dataset_load_duration_seconds",
			Help:    "Time taken to read and normalize the dataset",
			Buckets: prometheus.ExponentialBuckets(0.01, 2, 12),
		},
	)
	m.datasetRows = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "crashlens_dataset_rows",
			Help: "Rows in the most recently loaded normalized table",
		},
	)
	m.cacheLookups = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "crashlens_cache_lookups_total",
			Help: "Session cache lookups by result",
		},
		[]string{"result"}, // result: hit, miss
	)
	m.pageRenders = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "crashlens_page_renders_total",
			Help: "Dashboard renders by output format",
		},
		[]string{"format"}, // format: html, json, chart
	)
	m.renderDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "crashlens_render_duration_seconds",
			Help:    "Time taken to render pages and charts",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"format"},
	)
	m.httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "crashlens_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status_code"},
	)
	m.httpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "crashlens_http_request_duration_seconds",
			Help:    "Time taken for HTTP requests",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)
	reg.MustRegister(
		m.datasetLoads, m.datasetLoadDuration, m.datasetRows, m.cacheLookups,
		m.pageRenders, m.renderDuration, m.httpRequests, m.httpDuration,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// RecordLoad records one dataset load.
func (m *Metrics) RecordLoad(seconds float64, rows int, err error) {
	if err != nil {
		m.datasetLoads.WithLabelValues("error").Inc()
		return
	}
	m.datasetLoads.WithLabelValues("success").Inc()
	m.datasetLoadDuration.Observe(seconds)
	m.datasetRows.Set(float64(rows))
}

// RecordCache records a cache lookup.
func (m *Metrics) RecordCache(hit bool) {
	result := "miss"
	if hit {
		result = "hit"
	}
	m.cacheLookups.WithLabelValues(result).Inc()
}

// RecordRender records a page or chart render.
func (m *Metrics) RecordRender(format string, seconds float64) {
	m.pageRenders.WithLabelValues(format).Inc()
	m.renderDuration.WithLabelValues(format).Observe(seconds)
}

// RecordHTTPRequest records a served request.
func (m *Metrics) RecordHTTPRequest(method, path string, statusCode int, seconds float64) {
	m.httpRequests.WithLabelValues(method, path, strconv.Itoa(statusCode)).Inc()
	m.httpDuration.WithLabelValues(method, path).Observe(seconds)
}
