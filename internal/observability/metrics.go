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
			Name: "mentorwire_http_requests_total",
			Help: "Total number of HTTP requests processed.",
		},
		[]string{"method", "route", "status"},
	)
	httpRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "mentorwire_http_request_duration_seconds",
			Help:    "HTTP request latencies in seconds.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"route"},
	)
	wsActiveConnections = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "mentorwire_ws_active_connections",
			Help: "Number of open websocket connections.",
		},
	)
	onlineUsers = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "mentorwire_online_users",
			Help: "Number of users with at least one joined connection.",
		},
	)
	wsEventsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mentorwire_ws_inbound_events_total",
			Help: "Total number of inbound websocket events by kind.",
		},
		[]string{"event"},
	)
	messagesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mentorwire_messages_total",
			Help: "Chat messages handled by the relay by outcome.",
		},
		[]string{"outcome"},
	)
	callsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mentorwire_calls_total",
			Help: "Calls that reached a terminal state, by state and reason.",
		},
		[]string{"state", "reason"},
	)
	notificationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mentorwire_notifications_total",
			Help: "Notifications created by type.",
		},
		[]string{"type"},
	)
	droppedEventsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "mentorwire_dropped_events_total",
			Help: "Outbound events dropped because a connection buffer was full or closed.",
		},
	)
	amqpPublishErrorsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "mentorwire_amqp_publish_errors_total",
			Help: "Total number of AMQP publish errors.",
		},
	)
)

func init() {
	prometheus.MustRegister(
		httpRequestsTotal,
		httpRequestDuration,
		wsActiveConnections,
		onlineUsers,
		wsEventsTotal,
		messagesTotal,
		callsTotal,
		notificationsTotal,
		droppedEventsTotal,
		amqpPublishErrorsTotal,
	)
}

// HTTPMetricsMiddleware records request counts and latencies per route.
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

func IncWSActive() { wsActiveConnections.Inc() }

func DecWSActive() { wsActiveConnections.Dec() }

func SetOnlineUsers(n int) { onlineUsers.Set(float64(n)) }

func IncWSEvent(event string) { wsEventsTotal.WithLabelValues(event).Inc() }

// IncMessage records a relay outcome: delivered, offline, duplicate, rejected or failed.
func IncMessage(outcome string) { messagesTotal.WithLabelValues(outcome).Inc() }

func IncCall(state, reason string) { callsTotal.WithLabelValues(state, reason).Inc() }

func IncNotification(kind string) { notificationsTotal.WithLabelValues(kind).Inc() }

func IncDroppedEvent() { droppedEventsTotal.Inc() }

func IncAMQPPublishError() { amqpPublishErrorsTotal.Inc() }
