package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// QueryMetrics instruments the read API use cases. A nil *QueryMetrics records nothing.
type QueryMetrics struct {
	latency *prometheus.HistogramVec
	errors  *prometheus.CounterVec
	cache   *prometheus.CounterVec
}

func NewQueryMetrics(reg prometheus.Registerer) *QueryMetrics {
	f := promauto.With(reg)
	return &QueryMetrics{
		latency: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "pricesentinel",
				Subsystem: "query",
				Name:      "latency_seconds",
				Help:      "Latency of read API queries",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"endpoint"},
		),
		errors: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "pricesentinel",
				Subsystem: "query",
				Name:      "errors_total",
				Help:      "Errors by read API endpoint",
			},
			[]string{"endpoint"},
		),
		cache: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "pricesentinel",
				Subsystem: "query",
				Name:      "cache_total",
				Help:      "Read API cache lookups by result",
			},
			[]string{"endpoint", "result"},
		),
	}
}

func (m *QueryMetrics) ObserveLatency(endpoint string, start time.Time) {
	if m == nil {
		return
	}
	m.latency.WithLabelValues(endpoint).Observe(time.Since(start).Seconds())
}

func (m *QueryMetrics) IncError(endpoint string) {
	if m == nil {
		return
	}
	m.errors.WithLabelValues(endpoint).Inc()
}

func (m *QueryMetrics) CacheLookup(endpoint string, hit bool) {
	if m == nil {
		return
	}
	result := "miss"
	if hit {
		result = "hit"
	}
	m.cache.WithLabelValues(endpoint, result).Inc()
}
