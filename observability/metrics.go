package observability

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// GatewayMetrics wraps collectors tracking lifecycle and reward engine health.
type GatewayMetrics struct {
	transitions    *prometheus.CounterVec
	upstreamErrors *prometheus.CounterVec
	rewardsTracked *prometheus.CounterVec
	payouts        *prometheus.CounterVec
}

var (
	gatewayMetricsOnce sync.Once
	gatewayRegistry    *GatewayMetrics
)

// Gateway returns the lazily-initialised metrics registry for the service.
func Gateway() *GatewayMetrics {
	gatewayMetricsOnce.Do(func() {
		gatewayRegistry = &GatewayMetrics{
			transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "mintgate",
				Subsystem: "lifecycle",
				Name:      "transitions_total",
				Help:      "Lifecycle transition attempts segmented by axis and outcome.",
			}, []string{"axis", "outcome"}),
			upstreamErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "mintgate",
				Subsystem: "gateway",
				Name:      "upstream_errors_total",
				Help:      "External gateway call failures segmented by collaborator.",
			}, []string{"gateway"}),
			rewardsTracked: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "mintgate",
				Subsystem: "rewards",
				Name:      "tracked_total",
				Help:      "Learner actions tracked segmented by outcome.",
			}, []string{"outcome"}),
			payouts: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "mintgate",
				Subsystem: "rewards",
				Name:      "payouts_total",
				Help:      "Reward payout attempts segmented by outcome.",
			}, []string{"outcome"}),
		}
		prometheus.MustRegister(
			gatewayRegistry.transitions,
			gatewayRegistry.upstreamErrors,
			gatewayRegistry.rewardsTracked,
			gatewayRegistry.payouts,
		)
	})
	return gatewayRegistry
}

// RecordTransition counts one transition attempt. Outcomes should be stable
// strings such as "applied", "noop", or "rejected".
func (m *GatewayMetrics) RecordTransition(axis, outcome string) {
	if m == nil {
		return
	}
	if axis == "" {
		axis = "unknown"
	}
	if outcome == "" {
		outcome = "unspecified"
	}
	m.transitions.WithLabelValues(axis, outcome).Inc()
}

// RecordUpstreamError counts a failed call to an external collaborator.
func (m *GatewayMetrics) RecordUpstreamError(gateway string) {
	if m == nil {
		return
	}
	if gateway == "" {
		gateway = "unknown"
	}
	m.upstreamErrors.WithLabelValues(gateway).Inc()
}

// RecordReward counts one Track call outcome ("recorded" or "duplicate").
func (m *GatewayMetrics) RecordReward(outcome string) {
	if m == nil {
		return
	}
	if outcome == "" {
		outcome = "unspecified"
	}
	m.rewardsTracked.WithLabelValues(outcome).Inc()
}

// RecordPayout counts one per-entry payout outcome ("paid" or "failed").
func (m *GatewayMetrics) RecordPayout(outcome string) {
	if m == nil {
		return
	}
	if outcome == "" {
		outcome = "unspecified"
	}
	m.payouts.WithLabelValues(outcome).Inc()
}
