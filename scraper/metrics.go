package scraper

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics bundles Prometheus collectors for the scrape run.
type Metrics struct {
	Registry      *prometheus.Registry
	StreetsTotal  *prometheus.CounterVec
	FetchDuration prometheus.Histogram
	RetriesTotal  prometheus.Counter
	ErrorsTotal   *prometheus.CounterVec
}

// NewMetrics constructs and registers all metrics on a dedicated registry.
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()

	streets := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "abfall_streets_total",
			Help: "Streets processed, by outcome.",
		},
		[]string{"outcome"},
	)
	fetchDuration := prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "abfall_fetch_duration_seconds",
			Help:    "HTTP fetch latency for street pages.",
			Buckets: prometheus.DefBuckets,
		},
	)
	retries := prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "abfall_retries_total",
			Help: "Retry attempts after transient fetch failures.",
		},
	)
	errorsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "abfall_errors_total",
			Help: "Fetch errors by type.",
		},
		[]string{"error_type"},
	)

	registry.MustRegister(streets, fetchDuration, retries, errorsTotal)

	return &Metrics{
		Registry:      registry,
		StreetsTotal:  streets,
		FetchDuration: fetchDuration,
		RetriesTotal:  retries,
		ErrorsTotal:   errorsTotal,
	}
}

// IncStreet counts a processed street by outcome.
func (m *Metrics) IncStreet(outcome string) {
	if m == nil {
		return
	}
	m.StreetsTotal.WithLabelValues(outcome).Inc()
}

// ObserveFetch records a street page fetch duration.
func (m *Metrics) ObserveFetch(d time.Duration) {
	if m == nil {
		return
	}
	m.FetchDuration.Observe(d.Seconds())
}

// IncRetries increments the retry counter.
func (m *Metrics) IncRetries() {
	if m == nil {
		return
	}
	m.RetriesTotal.Inc()
}

// IncError increments the errors counter for a type label.
func (m *Metrics) IncError(errorType string) {
	if m == nil {
		return
	}
	m.ErrorsTotal.WithLabelValues(errorType).Inc()
}
