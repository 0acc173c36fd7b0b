// Package metrics defines the Prometheus collectors used by the credit
// services and exposes an HTTP handler for scraping.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus collectors. A nil *Metrics is valid and
// records nothing.
type Metrics struct {
	HTTPRequestsTotal    *prometheus.CounterVec
	HTTPRequestDuration  *prometheus.HistogramVec
	HTTPRequestsInFlight prometheus.Gauge
	IngestItemsTotal     *prometheus.CounterVec
	CompensationsTotal   *prometheus.CounterVec
	EventsPublishedTotal *prometheus.CounterVec
	ReplayTotal          *prometheus.CounterVec
	QueueMessagesTotal   *prometheus.CounterVec
	CacheHitsTotal       prometheus.Counter
	CacheMissesTotal     prometheus.Counter
}

// New creates the collectors and registers them with the default registry.
func New() *Metrics {
	return NewWithRegistry(prometheus.DefaultRegisterer)
}

// NewWithRegistry creates the collectors and registers them with reg.
func NewWithRegistry(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		HTTPRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests by method, route, and status.",
			},
			[]string{"method", "path", "status"},
		),
		HTTPRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "HTTP request latency in seconds.",
				Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
			},
			[]string{"method", "path"},
		),
		HTTPRequestsInFlight: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "http_requests_in_flight",
				Help: "Number of HTTP requests currently being processed.",
			},
		),
		IngestItemsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "credit_ingest_items_total",
				Help: "Credits submitted for ingestion by outcome (accepted, store_failed, publish_failed).",
			},
			[]string{"outcome"},
		),
		CompensationsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "credit_compensations_total",
				Help: "Compensating deletes after a failed publish by result (deleted, failed).",
			},
			[]string{"result"},
		),
		EventsPublishedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "credit_events_published_total",
				Help: "Credit events published by result (ok, error).",
			},
			[]string{"result"},
		),
		ReplayTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "credit_replay_total",
				Help: "Credit events replayed into the store by result (inserted, skipped, error).",
			},
			[]string{"result"},
		),
		QueueMessagesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "queue_messages_total",
				Help: "Queue messages settled by outcome (completed, dead_lettered, dropped).",
			},
			[]string{"outcome"},
		),
		CacheHitsTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "cache_hits_total",
				Help: "Total number of lookup cache hits.",
			},
		),
		CacheMissesTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "cache_misses_total",
				Help: "Total number of lookup cache misses.",
			},
		),
	}

	reg.MustRegister(
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.HTTPRequestsInFlight,
		m.IngestItemsTotal,
		m.CompensationsTotal,
		m.EventsPublishedTotal,
		m.ReplayTotal,
		m.QueueMessagesTotal,
		m.CacheHitsTotal,
		m.CacheMissesTotal,
	)

	return m
}

func (m *Metrics) IngestItem(outcome string) {
	if m != nil {
		m.IngestItemsTotal.WithLabelValues(outcome).Inc()
	}
}

func (m *Metrics) Compensation(result string) {
	if m != nil {
		m.CompensationsTotal.WithLabelValues(result).Inc()
	}
}

func (m *Metrics) EventPublished(result string) {
	if m != nil {
		m.EventsPublishedTotal.WithLabelValues(result).Inc()
	}
}

func (m *Metrics) Replay(result string) {
	if m != nil {
		m.ReplayTotal.WithLabelValues(result).Inc()
	}
}

func (m *Metrics) QueueMessage(outcome string) {
	if m != nil {
		m.QueueMessagesTotal.WithLabelValues(outcome).Inc()
	}
}

func (m *Metrics) CacheHit() {
	if m != nil {
		m.CacheHitsTotal.Inc()
	}
}

func (m *Metrics) CacheMiss() {
	if m != nil {
		m.CacheMissesTotal.Inc()
	}
}

// Handler returns the Prometheus scrape HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}
