package middleware

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
)

// HTTPObserver receives one observation per finished request.
type HTTPObserver interface {
	ObserveHTTP(method, route, status string, seconds float64)
}

// Metrics records request count and latency by route pattern.
func Metrics(observer HTTPObserver) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		observer.ObserveHTTP(c.Request.Method, routeOf(c), strconv.Itoa(c.Writer.Status()), time.Since(start).Seconds())
	}
}

// PrometheusHTTPObserver is the prometheus backed HTTPObserver.
type PrometheusHTTPObserver struct {
	requests *prometheus.CounterVec
	duration *prometheus.HistogramVec
}

// NewPrometheusHTTPObserver registers the HTTP collectors on reg.
func NewPrometheusHTTPObserver(reg prometheus.Registerer) *PrometheusHTTPObserver {
	o := &PrometheusHTTPObserver{
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "exforge",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "HTTP requests by method, route and status.",
		}, []string{"method", "route", "status"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "exforge",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request latency.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route"}),
	}
	reg.MustRegister(o.requests, o.duration)
	return o
}

func (o *PrometheusHTTPObserver) ObserveHTTP(method, route, status string, seconds float64) {
	o.requests.WithLabelValues(method, route, status).Inc()
	o.duration.WithLabelValues(method, route).Observe(seconds)
}
