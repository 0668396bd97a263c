package observability

import (
	"math/big"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// StakingMetrics records pool activity for scraping via /metrics.
type StakingMetrics struct {
	operations  *prometheus.CounterVec
	latency     *prometheus.HistogramVec
	totalStaked prometheus.Gauge
	rewardsPaid prometheus.Counter
}

var (
	stakingMetricsOnce sync.Once
	stakingRegistry    *StakingMetrics
)

// Staking returns the lazily-initialised staking metrics registry.
func Staking() *StakingMetrics {
	stakingMetricsOnce.Do(func() {
		stakingRegistry = &StakingMetrics{
			operations: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "stakepool",
				Subsystem: "ledger",
				Name:      "operations_total",
				Help:      "Total ledger operations segmented by operation and outcome.",
			}, []string{"operation", "outcome"}),
			latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
				Namespace: "stakepool",
				Subsystem: "ledger",
				Name:      "operation_duration_seconds",
				Help:      "Latency distribution for ledger operations.",
				Buckets:   prometheus.DefBuckets,
			}, []string{"operation"}),
			totalStaked: prometheus.NewGauge(prometheus.GaugeOpts{
				Namespace: "stakepool",
				Subsystem: "ledger",
				Name:      "total_staked",
				Help:      "Sum of all open position principals.",
			}),
			rewardsPaid: prometheus.NewCounter(prometheus.CounterOpts{
				Namespace: "stakepool",
				Subsystem: "ledger",
				Name:      "rewards_paid_total",
				Help:      "Cumulative reward units paid out by claims.",
			}),
		}
		prometheus.MustRegister(
			stakingRegistry.operations,
			stakingRegistry.latency,
			stakingRegistry.totalStaked,
			stakingRegistry.rewardsPaid,
		)
	})
	return stakingRegistry
}

// ObserveOperation records one ledger operation with its outcome and timing.
func (m *StakingMetrics) ObserveOperation(operation, outcome string, seconds float64) {
	if m == nil {
		return
	}
	m.operations.WithLabelValues(operation, outcome).Inc()
	m.latency.WithLabelValues(operation).Observe(seconds)
}

// SetTotalStaked publishes the pool aggregate. Precision loss past float64
// range is acceptable for a gauge.
func (m *StakingMetrics) SetTotalStaked(v *big.Int) {
	if m == nil || v == nil {
		return
	}
	f, _ := new(big.Float).SetInt(v).Float64()
	m.totalStaked.Set(f)
}

// AddRewardPaid accumulates reward payouts.
func (m *StakingMetrics) AddRewardPaid(v *big.Int) {
	if m == nil || v == nil || v.Sign() <= 0 {
		return
	}
	f, _ := new(big.Float).SetInt(v).Float64()
	m.rewardsPaid.Add(f)
}
