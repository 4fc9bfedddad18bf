package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// CreditRequestsTotal counts credit requests by the status they entered.
	CreditRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "creditflow_requests_total",
		Help: "Total number of credit requests by resulting status",
	}, []string{"status"})

	// CodesMintedTotal counts verification codes minted, by kind (bound or free).
	CodesMintedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "creditflow_codes_minted_total",
		Help: "Total number of verification codes minted",
	}, []string{"kind"})

	// RedemptionsTotal counts redemption attempts by result.
	RedemptionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "creditflow_redemptions_total",
		Help: "Total number of verification code redemption attempts by result",
	}, []string{"result"})

	// CodesEvictedTotal counts codes removed by the retention sweep.
	CodesEvictedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "creditflow_codes_evicted_total",
		Help: "Total number of expired verification codes evicted",
	})

	// RedisErrorRate counts Redis errors by operation type.
	RedisErrorRate = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "creditflow_redis_errors_total",
		Help: "Total number of Redis errors by operation type",
	}, []string{"operation"})

	// WebSocketConnectionsTotal is the gauge of open event stream connections.
	WebSocketConnectionsTotal = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "creditflow_websocket_connections",
		Help: "Number of active WebSocket connections",
	})

	// WebSocketBackpressureDrops counts events dropped for slow clients.
	WebSocketBackpressureDrops = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "creditflow_websocket_backpressure_drops_total",
		Help: "Total number of WebSocket messages dropped due to backpressure",
	}, []string{"hub"})
)

// RedemptionResult is the metrics label for a redemption outcome.
func RedemptionResult(reason string) string {
	if reason == "" {
		return "valid"
	}
	return reason
}
