package metrics

import (
	"PriceSentinel/internal/domain/models"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Recorder implements domain.repository.Metrics using Prometheus.
type Recorder struct {
	observations *prometheus.CounterVec
	signals      *prometheus.CounterVec
	errorsTotal  *prometheus.CounterVec
	lastPrice    *prometheus.GaugeVec
	latency      *prometheus.HistogramVec
	deliveries   *prometheus.CounterVec
	subscribers  prometheus.Gauge
}

// New registers the collectors on reg (prometheus.DefaultRegisterer in production).
func New(reg prometheus.Registerer) *Recorder {
	f := promauto.With(reg)
	return &Recorder{
		observations: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pricesentinel_observations_total",
				Help: "Total number of price observations stored",
			},
			[]string{"symbol"},
		),
		signals: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pricesentinel_signals_total",
				Help: "Total number of anomaly signals detected",
			},
			[]string{"symbol", "type"},
		),
		errorsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pricesentinel_errors_total",
				Help: "Total number of errors encountered, by phase",
			},
			[]string{"phase"},
		),
		lastPrice: f.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "pricesentinel_last_price",
				Help: "Last stored price for a symbol",
			},
			[]string{"symbol"},
		),
		latency: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "pricesentinel_operation_duration_seconds",
				Help:    "Duration of operations in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"operation"},
		),
		deliveries: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pricesentinel_deliveries_total",
				Help: "Signal deliveries to subscribers, by result",
			},
			[]string{"result"},
		),
		subscribers: f.NewGauge(
			prometheus.GaugeOpts{
				Name: "pricesentinel_subscribers",
				Help: "Currently registered real-time subscribers",
			},
		),
	}
}

func (r *Recorder) RecordObservation(symbol string, price float64) {
	r.observations.WithLabelValues(symbol).Inc()
	r.lastPrice.WithLabelValues(symbol).Set(price)
}

func (r *Recorder) RecordSignal(symbol string, kind models.SignalKind) {
	r.signals.WithLabelValues(symbol, string(kind)).Inc()
}

func (r *Recorder) RecordError(phase string) {
	r.errorsTotal.WithLabelValues(phase).Inc()
}

// RecordLatency records operation latency in seconds.
func (r *Recorder) RecordLatency(op string, seconds float64) {
	r.latency.WithLabelValues(op).Observe(seconds)
}

func (r *Recorder) RecordDelivery(result string) {
	r.deliveries.WithLabelValues(result).Inc()
}

func (r *Recorder) SetSubscribers(n int) {
	r.subscribers.Set(float64(n))
}

// Nop discards everything; handy for tests and tools.
type Nop struct{}

func (Nop) RecordObservation(string, float64) {}
func (Nop) RecordSignal(string, models.SignalKind) {}
func (Nop) RecordError(string) {}
func (Nop) RecordLatency(string, float64) {}
func (Nop) RecordDelivery(string) {}
func (Nop) SetSubscribers(int) {}
