package receipt

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/zombor/bill-splitter/internal/scanning"
)

// Metrics holds the service's Prometheus collectors. A nil *Metrics is
// valid and records nothing.
type Metrics struct {
	registry           *prometheus.Registry
	extractionAttempts *prometheus.CounterVec
	extractionDuration *prometheus.HistogramVec
	receiptsCreated    *prometheus.CounterVec
	unallocatedSplits  prometheus.Counter
	requestDuration    *prometheus.HistogramVec
}

// NewMetrics registers the collectors on a fresh registry
func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		extractionAttempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "bill_splitter_extraction_attempts_total",
			Help: "Receipt extraction attempts by strategy and outcome.",
		}, []string{"strategy", "outcome"}),
		extractionDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "bill_splitter_extraction_duration_seconds",
			Help:    "Time spent in a single extraction attempt.",
			Buckets: []float64{0.5, 1, 2.5, 5, 10, 20, 40, 80},
		}, []string{"strategy"}),
		receiptsCreated: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "bill_splitter_receipts_created_total",
			Help: "Receipts created by source.",
		}, []string{"source"}),
		unallocatedSplits: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "bill_splitter_unallocated_splits_total",
			Help: "Splits computed with item cost that no participant pays for.",
		}),
		requestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "bill_splitter_http_request_duration_seconds",
			Help:    "HTTP request latency by route.",
			Buckets: prometheus.DefBuckets,
		}, []string{"route", "method", "status"}),
	}

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.extractionAttempts,
		m.extractionDuration,
		m.receiptsCreated,
		m.unallocatedSplits,
		m.requestDuration,
	)
	return m
}

// Handler serves the registry in the Prometheus exposition format
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// ObserveAttempt records one extraction attempt. It matches the signature
// scanning.WithAttemptHook expects.
func (m *Metrics) ObserveAttempt(a scanning.Attempt) {
	if m == nil {
		return
	}
	m.extractionAttempts.WithLabelValues(a.Strategy, string(a.Outcome)).Inc()
	m.extractionDuration.WithLabelValues(a.Strategy).Observe(a.Duration.Seconds())
}

func (m *Metrics) receiptCreated(source Source) {
	if m == nil {
		return
	}
	m.receiptsCreated.WithLabelValues(string(source)).Inc()
}

func (m *Metrics) unallocatedSplit() {
	if m == nil {
		return
	}
	m.unallocatedSplits.Inc()
}

func (m *Metrics) observeRequest(route, method string, status int, d time.Duration) {
	if m == nil {
		return
	}
	m.requestDuration.WithLabelValues(route, method, strconv.Itoa(status)).Observe(d.Seconds())
}
