package settlement

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/multierr"
	"gorm.io/gorm"

	"github.com/quotaclub/settlement/internal/guaranteefund"
	"github.com/quotaclub/settlement/internal/liquidation"
	"github.com/quotaclub/settlement/internal/scope"
	"github.com/quotaclub/settlement/pkg/enums"
	pkgerrors "github.com/quotaclub/settlement/pkg/errors"
)

// LiquidationSummary reports one liquidation pass.
type LiquidationSummary struct {
	Candidates      int             `json:"candidates"`
	LiquidatedCount int             `json:"liquidatedCount"`
	Skipped         int             `json:"skipped"`
	Failed          int             `json:"failed"`
	Recovered       decimal.Decimal `json:"recovered"`

	errs error
}

// Err combines the per-loan failures of the pass.
func (s *LiquidationSummary) Err() error { return s.errs }

// FgcSummary reports one guarantee fund pass.
type FgcSummary struct {
	Candidates   int             `json:"candidates"`
	CoveredCount int             `json:"coveredCount"`
	TotalValue   decimal.Decimal `json:"totalValue"`
	Partial      int             `json:"partial"`
	ForcedPaid   int             `json:"forcedPaid"`
	Skipped      int             `json:"skipped"`
	Failed       int             `json:"failed"`

	errs error
}

// Err combines the per-loan failures of the pass.
func (s *FgcSummary) Err() error { return s.errs }

// ReferralRetrySummary reports one pass over pending referral bonuses.
type ReferralRetrySummary struct {
	Pending  int             `json:"pending"`
	Approved int             `json:"approved"`
	Paid     decimal.Decimal `json:"paid"`
	Blocked  bool            `json:"blocked"`
	Failed   int             `json:"failed"`

	errs error
}

// Err combines the per-bonus failures of the pass.
func (s *ReferralRetrySummary) Err() error { return s.errs }

// RunLiquidationSweep liquidates every approved loan past the grace period,
// one scope per loan. A failing loan does not stop the pass.
func (s *Service) RunLiquidationSweep(ctx context.Context) scope.Result[*LiquidationSummary] {
	ids, err := s.liquidation.Candidates(ctx)
	if err != nil {
		res := envelope[*LiquidationSummary](nil, err)
		logFailure(ctx, s.logg, "list liquidation candidates", res)
		return res
	}

	summary := &LiquidationSummary{Candidates: len(ids), Recovered: decimal.Zero}
	for _, id := range ids {
		if err := ctx.Err(); err != nil {
			summary.errs = multierr.Append(summary.errs, err)
			break
		}
		loanCtx := s.logg.WithLoanID(ctx, id.String())
		res := scope.Run(loanCtx, s.runner, func(ctx context.Context, tx *gorm.DB) (*liquidation.Result, error) {
			return s.liquidation.Liquidate(ctx, tx, id)
		})
		if !res.Success {
			if s.countSkip(res.Err) {
				summary.Skipped++
				continue
			}
			summary.Failed++
			summary.errs = multierr.Append(summary.errs, loanFailure(id, res.Err))
			logFailure(loanCtx, s.logg, "liquidation failed", res)
			continue
		}
		if res.Data.Skipped {
			summary.Skipped++
			continue
		}
		summary.LiquidatedCount++
		summary.Recovered = summary.Recovered.Add(res.Data.Recovered)
		s.metrics.ObserveLiquidation(res.Data.Recovered)
		s.notify(loanCtx, res.Data.Notices)
	}

	s.logg.Info(s.logg.WithFields(ctx, map[string]any{
		"candidates": summary.Candidates,
		"liquidated": summary.LiquidatedCount,
		"skipped":    summary.Skipped,
		"failed":     summary.Failed,
		"recovered":  summary.Recovered.StringFixed(2),
	}), "liquidation sweep finished")
	return scope.Result[*LiquidationSummary]{Success: true, Data: summary}
}

// RunFgcSweep writes off severely delinquent loans against the guarantee
// fund, one scope per loan.
func (s *Service) RunFgcSweep(ctx context.Context) scope.Result[*FgcSummary] {
	ids, err := s.guaranteeFund.Candidates(ctx)
	if err != nil {
		res := envelope[*FgcSummary](nil, err)
		logFailure(ctx, s.logg, "list guarantee fund candidates", res)
		return res
	}

	summary := &FgcSummary{Candidates: len(ids), TotalValue: decimal.Zero}
	for _, id := range ids {
		if err := ctx.Err(); err != nil {
			summary.errs = multierr.Append(summary.errs, err)
			break
		}
		loanCtx := s.logg.WithLoanID(ctx, id.String())
		res := scope.Run(loanCtx, s.runner, func(ctx context.Context, tx *gorm.DB) (*guaranteefund.Result, error) {
			return s.guaranteeFund.Cover(ctx, tx, id)
		})
		if !res.Success {
			if s.countSkip(res.Err) {
				summary.Skipped++
				continue
			}
			summary.Failed++
			summary.errs = multierr.Append(summary.errs, loanFailure(id, res.Err))
			logFailure(loanCtx, s.logg, "guarantee fund coverage failed", res)
			continue
		}
		switch {
		case res.Data.ForcedPaid:
			summary.ForcedPaid++
		case res.Data.Skipped:
			summary.Skipped++
		default:
			summary.CoveredCount++
			summary.TotalValue = summary.TotalValue.Add(res.Data.Covered)
			if res.Data.Partial {
				summary.Partial++
			}
			s.metrics.ObserveFgcCoverage(res.Data.Covered)
			s.notify(loanCtx, res.Data.Notices)
		}
	}

	s.logg.Info(s.logg.WithFields(ctx, map[string]any{
		"candidates":  summary.Candidates,
		"covered":     summary.CoveredCount,
		"total_value": summary.TotalValue.StringFixed(2),
		"partial":     summary.Partial,
		"failed":      summary.Failed,
	}), "guarantee fund sweep finished")
	return scope.Result[*FgcSummary]{Success: true, Data: summary}
}

// RetryPendingReferralBonuses approves pending referral bonuses oldest first
// and stops at the first one the profit pool cannot cover.
func (s *Service) RetryPendingReferralBonuses(ctx context.Context, limit int) scope.Result[*ReferralRetrySummary] {
	if limit <= 0 {
		limit = defaultReferralBatch
	}
	pending, err := s.ledger.ListPendingByType(ctx, enums.TransactionTypeReferralBonus, limit)
	if err != nil {
		res := envelope[*ReferralRetrySummary](nil, err)
		logFailure(ctx, s.logg, "list pending referral bonuses", res)
		return res
	}

	summary := &ReferralRetrySummary{Pending: len(pending), Paid: decimal.Zero}
	for _, txn := range pending {
		if err := ctx.Err(); err != nil {
			summary.errs = multierr.Append(summary.errs, err)
			break
		}
		res := s.ApproveOrRejectTransaction(ctx, txn.ID, enums.ApprovalActionApprove, nil)
		if res.Success {
			summary.Approved++
			summary.Paid = summary.Paid.Add(res.Data.Transaction.Amount)
			continue
		}
		if res.Err.Code() == pkgerrors.CodeInsufficientLiquidity {
			summary.Blocked = true
			break
		}
		if s.countSkip(res.Err) {
			continue
		}
		summary.Failed++
		summary.errs = multierr.Append(summary.errs, fmt.Errorf("referral bonus %s: %w", txn.ID, res.Err))
	}

	s.logg.Info(s.logg.WithFields(ctx, map[string]any{
		"pending":  summary.Pending,
		"approved": summary.Approved,
		"blocked":  summary.Blocked,
		"paid":     summary.Paid.StringFixed(2),
	}), "referral bonus retry finished")
	return scope.Result[*ReferralRetrySummary]{Success: true, Data: summary}
}

// countSkip reports whether a failed step lost a race with another writer.
func (s *Service) countSkip(err *pkgerrors.Error) bool {
	return err != nil && err.Code() == pkgerrors.CodeAlreadyProcessed
}

func loanFailure(id uuid.UUID, err *pkgerrors.Error) error {
	return fmt.Errorf("loan %s: %w", id, err)
}
