// Package metrics exposes Prometheus instruments for digest runs.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "newsdigest"

// Outcome labels for RunsTotal.
const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
)

// Metrics holds every digest instrument. A nil *Metrics records nothing.
type Metrics struct {
	registry *prometheus.Registry

	ItemsFetched   *prometheus.CounterVec
	ItemsSelected  *prometheus.CounterVec
	SourceFailures *prometheus.CounterVec
	SourceDuration *prometheus.HistogramVec
	SpendUSD       *prometheus.CounterVec

	RunsTotal   *prometheus.CounterVec
	LastSuccess prometheus.Gauge
}

// New registers the instruments on a private registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,
		ItemsFetched: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "items_fetched_total",
			Help:      "Items returned by source adapters inside the window",
		}, []string{"source"}),
		ItemsSelected: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "items_selected_total",
			Help:      "Items written to the digest",
		}, []string{"source"}),
		SourceFailures: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "source_failures_total",
			Help:      "Source units that failed and were skipped",
		}, []string{"source"}),
		SourceDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "source_duration_seconds",
			Help:      "Wall time spent on one source unit",
			Buckets:   []float64{1, 5, 15, 30, 60, 120, 300, 600},
		}, []string{"source"}),
		SpendUSD: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "estimated_spend_usd_total",
			Help:      "Estimated language model spend",
		}, []string{"stage"}),
		RunsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "runs_total",
			Help:      "Digest runs by outcome",
		}, []string{"outcome"}),
		LastSuccess: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_success_timestamp_seconds",
			Help:      "Unix time of the last successful run",
		}),
	}
}

// Handler serves the registry for /metrics.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// ObserveSource records one finished source unit.
func (m *Metrics) ObserveSource(source string, fetched, selected int, failed bool, took time.Duration) {
	if m == nil {
		return
	}
	m.ItemsFetched.WithLabelValues(source).Add(float64(fetched))
	m.ItemsSelected.WithLabelValues(source).Add(float64(selected))
	if failed {
		m.SourceFailures.WithLabelValues(source).Inc()
	}
	m.SourceDuration.WithLabelValues(source).Observe(took.Seconds())
}

// AddSpend adds an estimated cost in USD for stage, "summary" for example.
func (m *Metrics) AddSpend(stage string, usd float64) {
	if m == nil || usd <= 0 {
		return
	}
	m.SpendUSD.WithLabelValues(stage).Add(usd)
}

// ObserveRun records the outcome of a whole digest run.
func (m *Metrics) ObserveRun(err error, at time.Time) {
	if m == nil {
		return
	}
	if err != nil {
		m.RunsTotal.WithLabelValues(OutcomeFailure).Inc()
		return
	}
	m.RunsTotal.WithLabelValues(OutcomeSuccess).Inc()
	m.LastSuccess.Set(float64(at.Unix()))
}
