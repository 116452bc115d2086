// Package settlement is the boundary the rest of the club talks to. Every
// operation runs in its own scope and answers with a success/failure
// envelope; member notices go out only after the scope has committed.
package settlement

import (
	"context"
	"fmt"
	"time"

	"github.com/quotaclub/settlement/internal/audit"
	"github.com/quotaclub/settlement/internal/balances"
	"github.com/quotaclub/settlement/internal/guaranteefund"
	"github.com/quotaclub/settlement/internal/ledger"
	"github.com/quotaclub/settlement/internal/liquidation"
	"github.com/quotaclub/settlement/internal/loans"
	"github.com/quotaclub/settlement/internal/notifications"
	"github.com/quotaclub/settlement/internal/reserve"
	"github.com/quotaclub/settlement/internal/scope"
	"github.com/quotaclub/settlement/internal/transactions"
	"github.com/quotaclub/settlement/pkg/config"
	pkgerrors "github.com/quotaclub/settlement/pkg/errors"
	"github.com/quotaclub/settlement/pkg/logger"
	"github.com/quotaclub/settlement/pkg/metrics"
)

const defaultReferralBatch = 100

// Params wires the collaborators a Service needs.
type Params struct {
	Runner        scope.Runner
	Transactions  *transactions.StateMachine
	Loans         *loans.Manager
	Liquidation   *liquidation.Processor
	GuaranteeFund *guaranteefund.Processor
	Ledger        ledger.Repository
	Reserve       reserve.Repository
	Balances      balances.Ledger
	AuditTrail    *audit.Reader
	Inbox         notifications.Service
	Sink          notifications.Sink
	Metrics       *metrics.SettlementMetrics
	Config        config.LedgerConfig
	Logger        *logger.Logger
	Now           func() time.Time
}

// Service exposes the settlement operations.
type Service struct {
	runner        scope.Runner
	transactions  *transactions.StateMachine
	loans         *loans.Manager
	liquidation   *liquidation.Processor
	guaranteeFund *guaranteefund.Processor
	ledger        ledger.Repository
	reserve       reserve.Repository
	balances      balances.Ledger
	auditTrail    *audit.Reader
	inbox         notifications.Service
	sink          notifications.Sink
	metrics       *metrics.SettlementMetrics
	cfg           config.LedgerConfig
	logg          *logger.Logger
	now           func() time.Time
}

// New validates params and returns a Service.
func New(params Params) (*Service, error) {
	switch {
	case params.Runner == nil:
		return nil, fmt.Errorf("transaction runner required")
	case params.Transactions == nil:
		return nil, fmt.Errorf("transaction state machine required")
	case params.Loans == nil:
		return nil, fmt.Errorf("loan manager required")
	case params.Liquidation == nil:
		return nil, fmt.Errorf("liquidation processor required")
	case params.GuaranteeFund == nil:
		return nil, fmt.Errorf("guarantee fund processor required")
	case params.Ledger == nil:
		return nil, fmt.Errorf("ledger repository required")
	case params.Reserve == nil:
		return nil, fmt.Errorf("reserve repository required")
	case params.Balances == nil:
		return nil, fmt.Errorf("balance ledger required")
	case params.AuditTrail == nil:
		return nil, fmt.Errorf("audit reader required")
	case params.Inbox == nil:
		return nil, fmt.Errorf("notification service required")
	}
	if params.Logger == nil {
		params.Logger = logger.Nop()
	}
	if params.Now == nil {
		params.Now = time.Now
	}
	return &Service{
		runner:        params.Runner,
		transactions:  params.Transactions,
		loans:         params.Loans,
		liquidation:   params.Liquidation,
		guaranteeFund: params.GuaranteeFund,
		ledger:        params.Ledger,
		reserve:       params.Reserve,
		balances:      params.Balances,
		auditTrail:    params.AuditTrail,
		inbox:         params.Inbox,
		sink:          params.Sink,
		metrics:       params.Metrics,
		cfg:           params.Config,
		logg:          params.Logger,
		now:           params.Now,
	}, nil
}

func (s *Service) notify(ctx context.Context, messages []notifications.Message) {
	if s.sink == nil || len(messages) == 0 {
		return
	}
	s.sink.Notify(ctx, messages...)
}

// Drain waits for notices still being delivered in the background.
func (s *Service) Drain() {
	if waiter, ok := s.sink.(interface{ Wait() }); ok {
		waiter.Wait()
	}
}

// logFailure records the unfiltered cause of a failed envelope.
func logFailure[T any](ctx context.Context, logg *logger.Logger, msg string, res scope.Result[T]) {
	if res.Success || res.Err == nil {
		return
	}
	ctx = logg.WithField(ctx, "error_code", string(res.Err.Code()))
	if res.Err.Retryable() {
		if cause := res.Cause(); cause != nil {
			ctx = logg.WithField(ctx, "error_dump", pkgerrors.Dump(cause))
		}
		logg.Error(ctx, msg, res.Cause())
		return
	}
	logg.Warn(ctx, msg+": "+res.Err.Message())
}

// envelope wraps a plain call that ran outside a scope.
func envelope[T any](data T, err error) scope.Result[T] {
	if err != nil {
		return scope.Failed[T](scope.Classify(err))
	}
	return scope.Result[T]{Success: true, Data: data}
}
