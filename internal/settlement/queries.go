package settlement

import (
	"context"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/quotaclub/settlement/internal/audit"
	"github.com/quotaclub/settlement/internal/notifications"
	"github.com/quotaclub/settlement/internal/reserve"
	"github.com/quotaclub/settlement/internal/scope"
)

// ReserveReport is every reserve bucket plus the liquidity figures derived from them.
type ReserveReport struct {
	reserve.Snapshot
	CommittedReserves decimal.Decimal `json:"committed_reserves"`
	LendableCash      decimal.Decimal `json:"lendable_cash"`
	MemberBalances    decimal.Decimal `json:"member_balances"`
	FixedCosts        decimal.Decimal `json:"fixed_costs"`
	RealLiquidity     decimal.Decimal `json:"real_liquidity"`
}

// ReserveSnapshot reads the reserve without locking it and publishes the
// bucket gauges.
func (s *Service) ReserveSnapshot(ctx context.Context) scope.Result[*ReserveReport] {
	res := scope.Run(ctx, s.runner, func(ctx context.Context, tx *gorm.DB) (*ReserveReport, error) {
		acct, err := s.reserve.WithTx(tx).Get(ctx)
		if err != nil {
			return nil, err
		}
		balances, err := s.balances.WithTx(tx).SumBalances(ctx)
		if err != nil {
			return nil, err
		}
		return &ReserveReport{
			Snapshot:          acct.Snapshot(),
			CommittedReserves: acct.CommittedReserves(),
			LendableCash:      acct.LendableCash(),
			MemberBalances:    balances,
			FixedCosts:        s.cfg.MonthlyFixedCosts,
			RealLiquidity:     acct.RealLiquidity(balances, s.cfg.MonthlyFixedCosts),
		}, nil
	})
	if !res.Success {
		logFailure(ctx, s.logg, "reserve snapshot failed", res)
		return res
	}

	report := res.Data
	for bucket, amount := range map[string]decimal.Decimal{
		"operating_cash":        report.OperatingCash,
		"profit_pool":           report.ProfitPool,
		"tax_reserve":           report.TaxReserve,
		"operational_reserve":   report.OperationalReserve,
		"owner_profit":          report.OwnerProfit,
		"investment_reserve":    report.InvestmentReserve,
		"credit_guarantee_fund": report.CreditGuaranteeFund,
		"real_liquidity":        report.RealLiquidity,
	} {
		s.metrics.SetReserveBucket(bucket, amount)
	}
	return res
}

// AuditTrail pages through the audit log, newest first.
func (s *Service) AuditTrail(ctx context.Context, params audit.ListParams) scope.Result[*audit.ListResult] {
	page, err := s.auditTrail.List(ctx, params)
	return envelope(page, err)
}

// MemberNotifications pages through one member's inbox.
func (s *Service) MemberNotifications(ctx context.Context, params notifications.ListParams) scope.Result[*notifications.ListResult] {
	page, err := s.inbox.List(ctx, params)
	return envelope(page, err)
}

// MarkNotificationsRead clears a member's unread notices.
func (s *Service) MarkNotificationsRead(ctx context.Context, userID uuid.UUID) scope.Result[int64] {
	updated, err := s.inbox.MarkAllRead(ctx, userID)
	return envelope(updated, err)
}
