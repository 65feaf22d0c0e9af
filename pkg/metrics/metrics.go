// Package metrics exposes Prometheus collectors for the console.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "tagging_console"

// Metrics holds every collector. A nil *Metrics is valid and records nothing.
type Metrics struct {
	registry *prometheus.Registry

	BackendRequests *prometheus.CounterVec
	BackendDuration *prometheus.HistogramVec
	HTTPRequests    *prometheus.CounterVec
	SentenceSaves   *prometheus.CounterVec
	Ingestions      *prometheus.CounterVec
	DraftsActive    prometheus.Gauge
}

// New registers the collectors on a fresh registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		registry: reg,
		BackendRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "backend_requests_total",
			Help:      "Calls to the tagging backend by operation and outcome.",
		}, []string{"operation", "status"}),
		BackendDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "backend_request_duration_seconds",
			Help:      "Latency of calls to the tagging backend.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"operation"}),
		HTTPRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Requests served by the console.",
		}, []string{"method", "code"}),
		SentenceSaves: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sentence_saves_total",
			Help:      "Sentence save attempts by result.",
		}, []string{"result"}),
		Ingestions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ingestions_total",
			Help:      "Tagging runs submitted by input kind and result.",
		}, []string{"kind", "result"}),
		DraftsActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "drafts_active",
			Help:      "Editor drafts held in the in-memory store.",
		}),
	}
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.BackendRequests,
		m.BackendDuration,
		m.HTTPRequests,
		m.SentenceSaves,
		m.Ingestions,
		m.DraftsActive,
	)
	return m
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

// ObserveBackend records one backend call. status is the HTTP status code,
// or 0 for a transport failure.
func (m *Metrics) ObserveBackend(operation string, status int, d time.Duration) {
	if m == nil {
		return
	}
	label := "transport_error"
	if status > 0 {
		label = strconv.Itoa(status)
	}
	m.BackendRequests.WithLabelValues(operation, label).Inc()
	m.BackendDuration.WithLabelValues(operation).Observe(d.Seconds())
}

// ObserveHTTP records one served request.
func (m *Metrics) ObserveHTTP(method string, code int) {
	if m == nil {
		return
	}
	m.HTTPRequests.WithLabelValues(method, strconv.Itoa(code)).Inc()
}

// ObserveSave records a sentence save outcome.
func (m *Metrics) ObserveSave(err error) {
	if m == nil {
		return
	}
	m.SentenceSaves.WithLabelValues(result(err)).Inc()
}

// ObserveIngest records a tagging run outcome; kind is "text" or "file".
func (m *Metrics) ObserveIngest(kind string, err error) {
	if m == nil {
		return
	}
	m.Ingestions.WithLabelValues(kind, result(err)).Inc()
}

// SetDrafts sets the active draft gauge.
func (m *Metrics) SetDrafts(n int) {
	if m == nil {
		return
	}
	m.DraftsActive.Set(float64(n))
}

func result(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}
