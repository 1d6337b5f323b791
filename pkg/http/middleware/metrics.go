package middleware

import (
	"strconv"
	"time"

	applogger "PriceSentinel/pkg/logger"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// HTTPMetrics holds request collectors. Labels use the route template, not the raw URL.
type HTTPMetrics struct {
	requests *prometheus.CounterVec
	duration *prometheus.HistogramVec
	inFlight *prometheus.GaugeVec
}

func NewHTTPMetrics(reg prometheus.Registerer) *HTTPMetrics {
	f := promauto.With(reg)
	return &HTTPMetrics{
		requests: f.NewCounterVec(prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		}, []string{"route", "method", "status"}),
		duration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		}, []string{"route", "method", "class"}),
		inFlight: f.NewGaugeVec(prometheus.GaugeOpts{
			Name: "http_in_flight_requests",
			Help: "Current number of in-flight HTTP requests",
		}, []string{"route", "method"}),
	}
}

// Metrics records request metrics and logs 5xx and slow requests.
func Metrics(m *HTTPMetrics, l *applogger.Logger, slowThreshold time.Duration) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			route := c.Path()
			if route == "" {
				route = "unmatched"
			}
			method := c.Request().Method

			m.inFlight.WithLabelValues(route, method).Inc()
			start := time.Now()
			err := next(c)
			if err != nil {
				// let echo write the error first so the status below is final
				c.Error(err)
			}
			duration := time.Since(start)
			m.inFlight.WithLabelValues(route, method).Dec()

			code := c.Response().Status
			status := strconv.Itoa(code)
			m.requests.WithLabelValues(route, method, status).Inc()
			m.duration.WithLabelValues(route, method, statusClass(code)).Observe(duration.Seconds())

			fields := []applogger.Field{
				applogger.String("route", route),
				applogger.String("method", method),
				applogger.String("status", status),
				applogger.Duration("duration_ms", duration),
			}
			switch {
			case code >= 500:
				l.Error("http request failed", fields...)
			case slowThreshold > 0 && duration >= slowThreshold:
				l.Warn("http request slow", fields...)
			}
			return nil
		}
	}
}

func statusClass(code int) string {
	switch {
	case code < 200:
		return "1xx"
	case code < 300:
		return "2xx"
	case code < 400:
		return "3xx"
	case code < 500:
		return "4xx"
	default:
		return "5xx"
	}
}
