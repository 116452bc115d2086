package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/shopspring/decimal"
)

func TestSettlementMetricsDecisions(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewSettlementMetrics(reg)

	m.ObserveDecision("transaction", "BUY_QUOTA", "APPROVE", true)
	m.ObserveDecision("transaction", "BUY_QUOTA", "APPROVE", true)
	m.ObserveDecision("loan", "", "REJECT", false)

	mfs, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather metrics: %v", err)
	}
	mf := findMetricFamily(mfs, "settlement_decisions_total")
	if mf == nil {
		t.Fatal("decisions metric not registered")
	}

	var approved, failedLoan float64
	for _, metric := range mf.GetMetric() {
		labels := labelMap(metric.GetLabel())
		switch {
		case labels["type"] == "BUY_QUOTA" && labels["outcome"] == OutcomeSuccess:
			approved = metric.GetCounter().GetValue()
		case labels["kind"] == "loan" && labels["type"] == "unknown" && labels["outcome"] == OutcomeFailure:
			failedLoan = metric.GetCounter().GetValue()
		}
	}
	if approved != 2 {
		t.Fatalf("expected 2 approved BUY_QUOTA decisions, got %f", approved)
	}
	if failedLoan != 1 {
		t.Fatalf("expected 1 failed loan decision, got %f", failedLoan)
	}
}

func TestSettlementMetricsSweeps(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewSettlementMetrics(reg)

	m.ObserveLiquidation(decimal.RequireFromString("100.50"))
	m.ObserveFgcCoverage(decimal.RequireFromString("40"))
	m.ObserveFgcCoverage(decimal.Zero)
	m.IncLiquidityWarning()
	m.SetReserveBucket("operating_cash", decimal.RequireFromString("1234.56"))

	mfs, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather metrics: %v", err)
	}

	if got := fetchPlainCounter(mfs, "settlement_liquidation_recovered_amount_total"); got != 100.5 {
		t.Fatalf("expected recovered 100.5, got %f", got)
	}
	if got := fetchPlainCounter(mfs, "settlement_guarantee_fund_loans_total"); got != 2 {
		t.Fatalf("expected 2 fgc loans, got %f", got)
	}
	if got := fetchPlainCounter(mfs, "settlement_guarantee_fund_covered_amount_total"); got != 40 {
		t.Fatalf("expected covered 40, got %f", got)
	}
	if got := fetchPlainCounter(mfs, "settlement_liquidity_warnings_total"); got != 1 {
		t.Fatalf("expected 1 liquidity warning, got %f", got)
	}

	gauge := findMetricFamily(mfs, "settlement_reserve_bucket_amount")
	if gauge == nil || gauge.GetMetric()[0].GetGauge().GetValue() != 1234.56 {
		t.Fatalf("unexpected reserve gauge %+v", gauge)
	}
}

func TestSettlementMetricsNilSafe(t *testing.T) {
	var m *SettlementMetrics
	m.ObserveDecision("loan", "", "APPROVE", true)
	m.ObserveLiquidation(decimal.NewFromInt(1))
	m.ObserveFgcCoverage(decimal.NewFromInt(1))
	m.IncLiquidityWarning()
	m.SetReserveBucket("x", decimal.Zero)

	NewSettlementMetrics(nil).ObserveDecision("loan", "", "APPROVE", true)
}

func labelMap(pairs []*dto.LabelPair) map[string]string {
	out := make(map[string]string, len(pairs))
	for _, pair := range pairs {
		out[pair.GetName()] = pair.GetValue()
	}
	return out
}
