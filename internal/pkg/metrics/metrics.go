package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	PromRegistry  = prometheus.NewRegistry()
	OtaRegisterer = prometheus.WrapRegistererWithPrefix("bundleota_", PromRegistry)
	UpdatesTotal  = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "updates_total",
			Help: "Total number of update operations by flow and outcome",
		},
		[]string{"flow", "outcome"},
	)
	UpdateDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "update_duration_seconds",
			Help:    "Duration of update operations in seconds",
			Buckets: prometheus.ExponentialBuckets(0.05, 4, 10),
		},
		[]string{"flow"},
	)
	HttpRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests processed.",
		},
		[]string{"code", "method", "path"},
	)
	HttpRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Duration of HTTP requests in seconds.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"code", "method", "path"},
	)
)

func init() {
	// register collectors
	OtaRegisterer.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	OtaRegisterer.MustRegister(collectors.NewGoCollector())
	// register update metrics
	OtaRegisterer.MustRegister(UpdatesTotal)
	OtaRegisterer.MustRegister(UpdateDuration)
	OtaRegisterer.MustRegister(HttpRequestsTotal)
	OtaRegisterer.MustRegister(HttpRequestDuration)
}

// UpdateRecorder reports orchestrator outcomes to the package collectors.
type UpdateRecorder struct{}

func (UpdateRecorder) ObserveUpdate(flow, outcome string, duration time.Duration) {
	UpdatesTotal.WithLabelValues(flow, outcome).Inc()
	UpdateDuration.WithLabelValues(flow).Observe(duration.Seconds())
}

// Handler serves the registry in the Prometheus exposition format.
func Handler() http.Handler {
	return promhttp.HandlerFor(PromRegistry, promhttp.HandlerOpts{Registry: OtaRegisterer})
}

// PrometheusMiddleware is a Gin middleware that instruments HTTP requests.
func PrometheusMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		startTime := time.Now()
		c.Next()

		statusCode := c.Writer.Status()
		method := c.Request.Method
		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}

		duration := time.Since(startTime).Seconds()

		labels := prometheus.Labels{
			"code":   strconv.Itoa(statusCode),
			"method": method,
			"path":   path,
		}
		HttpRequestsTotal.With(labels).Inc()
		HttpRequestDuration.With(labels).Observe(duration)
	}
}
