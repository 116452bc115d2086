package cron

import (
	"context"
	"fmt"

	"github.com/quotaclub/settlement/internal/scope"
	"github.com/quotaclub/settlement/internal/settlement"
	"github.com/quotaclub/settlement/pkg/logger"
)

const (
	LiquidationSweepJobName   = "liquidation-sweep"
	GuaranteeFundSweepJobName = "guarantee-fund-sweep"
	ReferralRetryJobName      = "referral-bonus-retry"
)

type liquidationSweeper interface {
	RunLiquidationSweep(ctx context.Context) scope.Result[*settlement.LiquidationSummary]
}

type guaranteeFundSweeper interface {
	RunFgcSweep(ctx context.Context) scope.Result[*settlement.FgcSummary]
}

type referralRetrier interface {
	RetryPendingReferralBonuses(ctx context.Context, limit int) scope.Result[*settlement.ReferralRetrySummary]
}

// LiquidationSweepJobParams configure the liquidation job.
type LiquidationSweepJobParams struct {
	Logger  *logger.Logger
	Sweeper liquidationSweeper
}

// NewLiquidationSweepJob builds the job that seizes collateral of loans past the grace period.
func NewLiquidationSweepJob(params LiquidationSweepJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Sweeper == nil {
		return nil, fmt.Errorf("liquidation sweeper required")
	}
	return &liquidationSweepJob{logg: params.Logger, sweeper: params.Sweeper}, nil
}

type liquidationSweepJob struct {
	logg    *logger.Logger
	sweeper liquidationSweeper
}

func (j *liquidationSweepJob) Name() string { return LiquidationSweepJobName }

func (j *liquidationSweepJob) Run(ctx context.Context) error {
	res := j.sweeper.RunLiquidationSweep(ctx)
	if !res.Success {
		return fmt.Errorf("liquidation sweep: %w", res.Err)
	}
	j.logg.Info(j.logg.WithFields(ctx, map[string]any{
		"liquidated_count": res.Data.LiquidatedCount,
		"failed":           res.Data.Failed,
	}), "liquidation sweep summary")
	if err := res.Data.Err(); err != nil {
		return fmt.Errorf("liquidation sweep: %d loans failed: %w", res.Data.Failed, err)
	}
	return nil
}

// GuaranteeFundSweepJobParams configure the guarantee fund job.
type GuaranteeFundSweepJobParams struct {
	Logger  *logger.Logger
	Sweeper guaranteeFundSweeper
}

// NewGuaranteeFundSweepJob builds the job that writes off loans delinquent
// past the guarantee fund threshold.
func NewGuaranteeFundSweepJob(params GuaranteeFundSweepJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Sweeper == nil {
		return nil, fmt.Errorf("guarantee fund sweeper required")
	}
	return &guaranteeFundSweepJob{logg: params.Logger, sweeper: params.Sweeper}, nil
}

type guaranteeFundSweepJob struct {
	logg    *logger.Logger
	sweeper guaranteeFundSweeper
}

func (j *guaranteeFundSweepJob) Name() string { return GuaranteeFundSweepJobName }

func (j *guaranteeFundSweepJob) Run(ctx context.Context) error {
	res := j.sweeper.RunFgcSweep(ctx)
	if !res.Success {
		return fmt.Errorf("guarantee fund sweep: %w", res.Err)
	}
	j.logg.Info(j.logg.WithFields(ctx, map[string]any{
		"covered_count": res.Data.CoveredCount,
		"total_value":   res.Data.TotalValue.StringFixed(2),
		"failed":        res.Data.Failed,
	}), "guarantee fund sweep summary")
	if err := res.Data.Err(); err != nil {
		return fmt.Errorf("guarantee fund sweep: %d loans failed: %w", res.Data.Failed, err)
	}
	return nil
}

// ReferralRetryJobParams configure the pending referral bonus job.
type ReferralRetryJobParams struct {
	Logger    *logger.Logger
	Retrier   referralRetrier
	BatchSize int
}

// NewReferralRetryJob builds the job that pays referral bonuses deferred for
// lack of profit.
func NewReferralRetryJob(params ReferralRetryJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Retrier == nil {
		return nil, fmt.Errorf("referral retrier required")
	}
	return &referralRetryJob{logg: params.Logger, retrier: params.Retrier, batch: params.BatchSize}, nil
}

type referralRetryJob struct {
	logg    *logger.Logger
	retrier referralRetrier
	batch   int
}

func (j *referralRetryJob) Name() string { return ReferralRetryJobName }

func (j *referralRetryJob) Run(ctx context.Context) error {
	res := j.retrier.RetryPendingReferralBonuses(ctx, j.batch)
	if !res.Success {
		return fmt.Errorf("referral retry: %w", res.Err)
	}
	if res.Data.Blocked {
		j.logg.Warn(j.logg.WithField(ctx, "approved", res.Data.Approved), "profit pool exhausted; remaining referral bonuses stay pending")
	}
	return res.Data.Err()
}
