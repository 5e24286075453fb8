package monitoring

import (
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	RequestCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "endpoint", "status"},
	)

	RequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Duration of HTTP requests",
			Buckets: []float64{0.1, 0.5, 1, 2, 5},
		},
		[]string{"method", "endpoint"},
	)

	// AutosaveCounter 自动保存结果，result 为 ok / failed / stale
	AutosaveCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "academy_autosave_total",
			Help: "Autosave attempts by trigger and result",
		},
		[]string{"trigger", "result"},
	)

	AutosaveDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "academy_autosave_duration_seconds",
			Help:    "Duration of response upserts",
			Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 5},
		},
	)

	RewriteCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "academy_ai_rewrite_total",
			Help: "AI rewrite calls by prompt type and result",
		},
		[]string{"prompt_type", "result"},
	)

	UploadCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "academy_image_upload_total",
			Help: "Persona image uploads by outcome (stored / local_only)",
		},
		[]string{"outcome"},
	)

	ActiveSessions = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "academy_active_lesson_sessions",
			Help: "Lesson sessions currently held in memory",
		},
	)
)

var initOnce sync.Once

func Init() {
	initOnce.Do(func() {
		prometheus.MustRegister(
			RequestCounter,
			RequestDuration,
			AutosaveCounter,
			AutosaveDuration,
			RewriteCounter,
			UploadCounter,
			ActiveSessions,
		)
	})
}

func MetricsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		duration := time.Since(start).Seconds()
		status := c.Writer.Status()

		RequestCounter.WithLabelValues(
			c.Request.Method,
			c.FullPath(),
			strconv.Itoa(status),
		).Inc()

		RequestDuration.WithLabelValues(
			c.Request.Method,
			c.FullPath(),
		).Observe(duration)
	}
}

func PrometheusHandler() gin.HandlerFunc {
	h := promhttp.Handler()
	return func(c *gin.Context) {
		h.ServeHTTP(c.Writer, c.Request)
	}
}
