package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/shopspring/decimal"
)

// Outcome labels for settlement decisions.
const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
)

// SettlementMetrics tracks money-moving decisions and sweep results.
type SettlementMetrics struct {
	decisions         *prometheus.CounterVec
	liquidations      prometheus.Counter
	recovered         prometheus.Counter
	fgcCoverages      prometheus.Counter
	fgcCovered        prometheus.Counter
	liquidityWarnings prometheus.Counter
	reserve           *prometheus.GaugeVec
}

// NewSettlementMetrics registers the settlement metrics on the provided registerer.
// A nil registerer yields a no-op recorder.
func NewSettlementMetrics(reg prometheus.Registerer) *SettlementMetrics {
	if reg == nil {
		return &SettlementMetrics{}
	}
	m := &SettlementMetrics{
		decisions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "decisions_total",
			Help:      "Approve/reject decisions by record kind, type and outcome.",
		}, []string{"kind", "type", "action", "outcome"}),
		liquidations: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "liquidation",
			Name:      "loans_total",
			Help:      "Loans processed by the liquidation sweep.",
		}),
		recovered: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "liquidation",
			Name:      "recovered_amount_total",
			Help:      "Debt recovered by seizing quotas.",
		}),
		fgcCoverages: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "guarantee_fund",
			Name:      "loans_total",
			Help:      "Loans covered by the credit guarantee fund.",
		}),
		fgcCovered: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "guarantee_fund",
			Name:      "covered_amount_total",
			Help:      "Debt absorbed by the credit guarantee fund.",
		}),
		liquidityWarnings: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "liquidity_warnings_total",
			Help:      "Withdrawals approved while exceeding real liquidity.",
		}),
		reserve: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "reserve",
			Name:      "bucket_amount",
			Help:      "Last observed reserve bucket balances.",
		}, []string{"bucket"}),
	}
	reg.MustRegister(m.decisions, m.liquidations, m.recovered, m.fgcCoverages, m.fgcCovered, m.liquidityWarnings, m.reserve)
	return m
}

// ObserveDecision counts one approve/reject attempt.
func (m *SettlementMetrics) ObserveDecision(kind, recordType, action string, success bool) {
	if m == nil || m.decisions == nil {
		return
	}
	outcome := OutcomeFailure
	if success {
		outcome = OutcomeSuccess
	}
	m.decisions.WithLabelValues(normalizeLabel(kind), normalizeLabel(recordType), normalizeLabel(action), outcome).Inc()
}

// ObserveLiquidation records a liquidated loan and the amount applied to its debt.
func (m *SettlementMetrics) ObserveLiquidation(applied decimal.Decimal) {
	if m == nil || m.liquidations == nil {
		return
	}
	m.liquidations.Inc()
	if applied.IsPositive() {
		m.recovered.Add(applied.InexactFloat64())
	}
}

// ObserveFgcCoverage records a loan absorbed by the guarantee fund.
func (m *SettlementMetrics) ObserveFgcCoverage(covered decimal.Decimal) {
	if m == nil || m.fgcCoverages == nil {
		return
	}
	m.fgcCoverages.Inc()
	if covered.IsPositive() {
		m.fgcCovered.Add(covered.InexactFloat64())
	}
}

// IncLiquidityWarning counts a withdrawal approved above real liquidity.
func (m *SettlementMetrics) IncLiquidityWarning() {
	if m == nil || m.liquidityWarnings == nil {
		return
	}
	m.liquidityWarnings.Inc()
}

// SetReserveBucket publishes the latest balance of one reserve bucket.
func (m *SettlementMetrics) SetReserveBucket(bucket string, amount decimal.Decimal) {
	if m == nil || m.reserve == nil {
		return
	}
	m.reserve.WithLabelValues(normalizeLabel(bucket)).Set(amount.InexactFloat64())
}
