package metrics

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	CaptureOutcomes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lectureattend_capture_outcomes_total",
			Help: "Capture attempts by outcome",
		},
		[]string{"outcome"},
	)

	SessionTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lectureattend_session_transitions_total",
			Help: "Class session starts and ends",
		},
		[]string{"transition"},
	)

	MatchDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "lectureattend_match_duration_seconds",
			Help:    "Time spent scanning the enrolled pool for a template",
			Buckets: prometheus.ExponentialBuckets(0.0001, 4, 8),
		},
	)

	ProvenanceEvents = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lectureattend_provenance_events_total",
			Help: "Provenance events by stage and result",
		},
		[]string{"stage", "result"},
	)

	APIRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "lectureattend_api_request_duration_seconds",
			Help:    "API request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"path", "method", "status"},
	)
)

// GinMiddleware observes request latency by route template.
func GinMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}
		APIRequestDuration.
			WithLabelValues(path, c.Request.Method, strconv.Itoa(c.Writer.Status())).
			Observe(time.Since(start).Seconds())
	}
}
