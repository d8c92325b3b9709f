package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// RedisErrors counts Redis errors by command name.
	RedisErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "blango_redis_errors_total",
		Help: "Total number of Redis errors by command",
	}, []string{"command"})

	// DatabaseQueryLatency records database query latency by operation and table.
	DatabaseQueryLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "blango_database_query_latency_seconds",
		Help:    "Database query latency in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"operation", "table"})

	// ThrottledRequests counts requests rejected by a throttle scope.
	ThrottledRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "blango_throttled_requests_total",
		Help: "Requests rejected with 429 by throttle scope",
	}, []string{"scope"})

	// ResponseCacheResults counts whole-response cache lookups by outcome.
	ResponseCacheResults = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "blango_response_cache_total",
		Help: "Response cache lookups by result (hit, miss, unreachable)",
	}, []string{"route", "result"})

	// InactiveUsersDeleted counts accounts removed by the activation cleanup sweep.
	InactiveUsersDeleted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "blango_inactive_users_deleted_total",
		Help: "Inactive accounts deleted after the activation window elapsed",
	})

	// CommentFeedConnections is the number of open live-comment websockets.
	CommentFeedConnections = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "blango_comment_feed_connections",
		Help: "Open websocket connections on live comment feeds",
	})

	// CommentFeedDrops counts live-comment messages dropped for slow or closed clients.
	CommentFeedDrops = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "blango_comment_feed_drops_total",
		Help: "Live comment messages dropped by reason",
	}, []string{"reason"})

	// EmailsSent counts outgoing mail by kind and result.
	EmailsSent = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "blango_emails_sent_total",
		Help: "Outgoing emails by kind and result",
	}, []string{"kind", "result"})
)

// TrackQuery returns a function that records query latency when called (e.g. defer).
func TrackQuery(operation, table string) func() {
	start := time.Now()
	return func() {
		DatabaseQueryLatency.WithLabelValues(operation, table).Observe(time.Since(start).Seconds())
	}
}
