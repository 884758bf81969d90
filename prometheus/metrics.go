package prometheus

import (
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
)

var (
	// HTTP request counter by endpoint and status
	HTTPRequestCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	// HTTP request duration
	HTTPRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Duration of HTTP requests in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	// Visitor state transitions that committed
	VisitorTransitionCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "visitor_transitions_total",
			Help: "Total number of committed visitor lifecycle operations",
		},
		[]string{"event"},
	)

	// Lifecycle operations rejected by validation, permission, state or storage
	LifecycleErrorCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "visitor_lifecycle_errors_total",
			Help: "Total number of rejected visitor lifecycle operations",
		},
		[]string{"operation", "kind"},
	)

	// Tool invocations requested by the assistant
	ToolCallCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "copilot_tool_calls_total",
			Help: "Total number of assistant tool invocations",
		},
		[]string{"tool", "status"},
	)

	// Language model calls
	ModelCallDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "copilot_model_call_duration_seconds",
			Help:    "Duration of language model calls in seconds",
			Buckets: []float64{0.25, 0.5, 1, 2, 5, 10, 30},
		},
		[]string{"pass", "outcome"},
	)

	// Push notifications handed to a sink
	NotificationCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "notifications_total",
			Help: "Total number of push notifications by sink and outcome",
		},
		[]string{"sink", "outcome"},
	)

	// Database operation metrics
	DBOperationDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "db_operation_duration_seconds",
			Help:    "Duration of database operations in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"operation"},
	)
)

// Register registers every collector with the given registerer.
func Register(reg prometheus.Registerer) {
	reg.MustRegister(
		HTTPRequestCounter,
		HTTPRequestDuration,
		VisitorTransitionCounter,
		LifecycleErrorCounter,
		ToolCallCounter,
		ModelCallDuration,
		NotificationCounter,
		DBOperationDuration,
	)
}

// TrackDBOperation returns a function that records the duration of a database operation
func TrackDBOperation(operation string) func(startTime time.Time) {
	return func(startTime time.Time) {
		DBOperationDuration.WithLabelValues(operation).Observe(time.Since(startTime).Seconds())
	}
}

// RecordTransition counts a committed lifecycle event
func RecordTransition(event string) {
	VisitorTransitionCounter.WithLabelValues(event).Inc()
}

// RecordLifecycleError counts a rejected lifecycle operation
func RecordLifecycleError(operation, kind string) {
	LifecycleErrorCounter.WithLabelValues(operation, kind).Inc()
}

// RecordToolCall counts an assistant tool invocation
func RecordToolCall(tool, status string) {
	ToolCallCounter.WithLabelValues(tool, status).Inc()
}

// ObserveModelCall records the duration of a language model call
func ObserveModelCall(pass, outcome string, started time.Time) {
	ModelCallDuration.WithLabelValues(pass, outcome).Observe(time.Since(started).Seconds())
}

// RecordNotification counts a push notification outcome
func RecordNotification(sink, outcome string) {
	NotificationCounter.WithLabelValues(sink, outcome).Inc()
}

// MetricsMiddleware records HTTP request metrics
func MetricsMiddleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()

			err := next(c)

			status := c.Response().Status
			if he, ok := err.(*echo.HTTPError); ok {
				status = he.Code
			}
			path := c.Path()

			HTTPRequestCounter.WithLabelValues(c.Request().Method, path, strconv.Itoa(status)).Inc()
			HTTPRequestDuration.WithLabelValues(c.Request().Method, path).Observe(time.Since(start).Seconds())

			return err
		}
	}
}
