// Package metrics provides Prometheus instrumentation for the payment sync service.
package metrics

import (
	"context"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "paysync"

var (
	// HTTPRequestsTotal counts HTTP requests by method, path, and status.
	HTTPRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Total HTTP requests by method, path pattern, and status code.",
		},
		[]string{"method", "path", "status"},
	)

	// HTTPRequestDuration observes request latency by method and path.
	HTTPRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	// GatewayRequestsTotal counts outbound gateway calls by operation and outcome.
	GatewayRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "gateway_requests_total",
			Help:      "Outbound gateway calls by operation and outcome (ok, api_error, transport_error).",
		},
		[]string{"operation", "outcome"},
	)

	// GatewayRequestDuration observes outbound gateway latency.
	GatewayRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "gateway_request_duration_seconds",
			Help:      "Outbound gateway call duration in seconds.",
			Buckets:   []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 20, 45},
		},
		[]string{"operation"},
	)

	// WebhookVerdictsTotal counts webhook verification outcomes.
	WebhookVerdictsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "webhook_verdicts_total",
			Help:      "Webhook deliveries by verification verdict (verified, rejected, indeterminate, ignored).",
		},
		[]string{"verdict"},
	)

	// WebhookDispatchTotal counts dispatched webhook events by type and result.
	WebhookDispatchTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "webhook_dispatch_total",
			Help:      "Dispatched webhook events by event type and result.",
		},
		[]string{"event_type", "result"},
	)

	// ReconciledTransactionsTotal counts externally added transactions found during sync.
	ReconciledTransactionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reconciled_transactions_total",
			Help:      "Transactions inserted by reconciliation, by type.",
		},
		[]string{"txn_type"},
	)

	// AdminActionsTotal counts operator actions by action and outcome.
	AdminActionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "admin_actions_total",
			Help:      "Admin payment actions by action and outcome.",
		},
		[]string{"action", "outcome"},
	)

	// MerchantAlertsTotal counts merchant alerts raised by kind.
	MerchantAlertsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "merchant_alerts_total",
			Help:      "Merchant alerts raised by kind.",
		},
		[]string{"kind"},
	)

	DBTotalConns = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "db_total_connections",
		Help:      "Total connections in the pgx pool.",
	})

	DBAcquiredConns = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "db_acquired_connections",
		Help:      "Connections currently acquired from the pgx pool.",
	})
)

func init() {
	prometheus.MustRegister(
		HTTPRequestsTotal,
		HTTPRequestDuration,
		GatewayRequestsTotal,
		GatewayRequestDuration,
		WebhookVerdictsTotal,
		WebhookDispatchTotal,
		ReconciledTransactionsTotal,
		AdminActionsTotal,
		MerchantAlertsTotal,
		DBTotalConns,
		DBAcquiredConns,
	)
}

// StartPoolStatsCollector samples pgx pool stats into gauges until ctx is done.
func StartPoolStatsCollector(ctx context.Context, pool *pgxpool.Pool, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			stats := pool.Stat()
			DBTotalConns.Set(float64(stats.TotalConns()))
			DBAcquiredConns.Set(float64(stats.AcquiredConns()))
		}
	}
}

// Middleware returns a gin middleware that records request metrics.
func Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		timer := prometheus.NewTimer(HTTPRequestDuration.WithLabelValues(
			c.Request.Method,
			c.FullPath(),
		))

		c.Next()

		timer.ObserveDuration()
		HTTPRequestsTotal.WithLabelValues(
			c.Request.Method,
			c.FullPath(),
			statusBucket(c.Writer.Status()),
		).Inc()
	}
}

// Handler returns the Prometheus metrics HTTP handler for /metrics endpoint.
func Handler() gin.HandlerFunc {
	h := promhttp.Handler()
	return func(c *gin.Context) {
		h.ServeHTTP(c.Writer, c.Request)
	}
}

// ObserveGateway records one outbound gateway call.
func ObserveGateway(operation, outcome string, elapsed time.Duration) {
	GatewayRequestsTotal.WithLabelValues(operation, outcome).Inc()
	GatewayRequestDuration.WithLabelValues(operation).Observe(elapsed.Seconds())
}

func statusBucket(code int) string {
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
