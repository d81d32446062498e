package observability

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
)

var (
	httpRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chat_http_requests_total",
			Help: "Total number of HTTP requests processed by the chat relay.",
		},
		[]string{"method", "route", "status"},
	)
	httpRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "chat_http_request_duration_seconds",
			Help:    "HTTP request latencies in seconds.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"route"},
	)
	wsActiveConnections = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "chat_ws_active_connections",
			Help: "Number of active websocket connections on the relay.",
		},
	)
	wsEventsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chat_ws_events_total",
			Help: "Total number of relay websocket events.",
		},
		[]string{"event"},
	)
	amqpPublishErrorsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "chat_amqp_publish_errors_total",
			Help: "Total number of AMQP publish errors.",
		},
	)
	sessionConnected = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "chat_session_connected",
			Help: "1 while the client session is connected, 0 otherwise.",
		},
	)
	sessionEventsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chat_session_events_total",
			Help: "Client session lifecycle events.",
		},
		[]string{"event"},
	)
	sessionFramesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chat_session_frames_total",
			Help: "Frames exchanged by the client session.",
		},
		[]string{"direction"},
	)
	sessionFramesDroppedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chat_session_frames_dropped_total",
			Help: "Frames discarded or rejected by the client session.",
		},
		[]string{"reason"},
	)
)

func init() {
	prometheus.MustRegister(
		httpRequestsTotal,
		httpRequestDuration,
		wsActiveConnections,
		wsEventsTotal,
		amqpPublishErrorsTotal,
		sessionConnected,
		sessionEventsTotal,
		sessionFramesTotal,
		sessionFramesDroppedTotal,
	)
}

func HTTPMetricsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = c.Request.URL.Path
		}
		status := c.Writer.Status()

		httpRequestsTotal.WithLabelValues(c.Request.Method, route, strconv.Itoa(status)).Inc()
		httpRequestDuration.WithLabelValues(route).Observe(time.Since(start).Seconds())
	}
}

func IncWSActive() {
	wsActiveConnections.Inc()
}

func DecWSActive() {
	wsActiveConnections.Dec()
}

func IncWSEvent(event string) {
	wsEventsTotal.WithLabelValues(event).Inc()
}

func IncAMQPPublishError() {
	amqpPublishErrorsTotal.Inc()
}

func SetSessionConnected(connected bool) {
	if connected {
		sessionConnected.Set(1)
		return
	}
	sessionConnected.Set(0)
}

func IncSessionEvent(event string) {
	sessionEventsTotal.WithLabelValues(event).Inc()
}

func IncFrame(direction string) {
	sessionFramesTotal.WithLabelValues(direction).Inc()
}

func IncFrameDropped(reason string) {
	sessionFramesDroppedTotal.WithLabelValues(reason).Inc()
}
