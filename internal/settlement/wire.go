package settlement

import (
	"time"

	"github.com/quotaclub/settlement/internal/audit"
	"github.com/quotaclub/settlement/internal/balances"
	"github.com/quotaclub/settlement/internal/gateway"
	"github.com/quotaclub/settlement/internal/guaranteefund"
	"github.com/quotaclub/settlement/internal/ledger"
	"github.com/quotaclub/settlement/internal/liquidation"
	"github.com/quotaclub/settlement/internal/loans"
	"github.com/quotaclub/settlement/internal/marketplace"
	"github.com/quotaclub/settlement/internal/notifications"
	"github.com/quotaclub/settlement/internal/quotas"
	"github.com/quotaclub/settlement/internal/reserve"
	"github.com/quotaclub/settlement/internal/transactions"
	"github.com/quotaclub/settlement/pkg/config"
	"github.com/quotaclub/settlement/pkg/db"
	"github.com/quotaclub/settlement/pkg/logger"
	"github.com/quotaclub/settlement/pkg/metrics"
)

// Options carries what Build cannot derive from the database client.
type Options struct {
	Ledger    config.LedgerConfig
	Gateway   config.GatewayConfig
	Logger    *logger.Logger
	Publisher notifications.Publisher
	Sink      notifications.Sink
	Metrics   *metrics.SettlementMetrics
	Now       func() time.Time
}

// Build assembles a Service backed by client. When opts.Sink is nil notices
// go to the member inbox and, if opts.Publisher is set, to Pub/Sub.
func Build(client *db.Client, opts Options) (*Service, error) {
	conn := client.DB()
	if opts.Logger == nil {
		opts.Logger = logger.Nop()
	}

	ledgerRepo := ledger.NewRepository(conn)
	ledgerSvc, err := ledger.NewService(ledgerRepo)
	if err != nil {
		return nil, err
	}
	auditRepo := audit.NewRepository(conn)
	recorder, err := audit.NewRecorder(auditRepo)
	if err != nil {
		return nil, err
	}
	reader, err := audit.NewReader(auditRepo)
	if err != nil {
		return nil, err
	}
	notificationRepo := notifications.NewRepository(conn)
	inbox, err := notifications.NewService(notificationRepo)
	if err != nil {
		return nil, err
	}
	sink := opts.Sink
	if sink == nil {
		sink = notifications.NewNotifier(notificationRepo, opts.Publisher, opts.Logger)
	}

	loanRepo := loans.NewRepository(conn)
	reserveRepo := reserve.NewRepository(conn)
	members := balances.NewLedger(conn)
	quotaRepo := quotas.NewRepository(conn)

	machine, err := transactions.NewStateMachine(transactions.Params{
		Transactions: ledgerRepo,
		Ledger:       ledgerSvc,
		Loans:        loanRepo,
		Reserve:      reserveRepo,
		Balances:     members,
		Quotas:       quotaRepo,
		Marketplace:  marketplace.NewRepository(conn),
		Gateway:      gateway.NewCalculator(opts.Gateway),
		Audit:        recorder,
		Config:       opts.Ledger,
		Logger:       opts.Logger,
		Now:          opts.Now,
	})
	if err != nil {
		return nil, err
	}
	manager, err := loans.NewManager(loans.ManagerParams{
		Loans:    loanRepo,
		Reserve:  reserveRepo,
		Balances: members,
		Quotas:   quotaRepo,
		Ledger:   ledgerSvc,
		Audit:    recorder,
		Config:   opts.Ledger,
		Logger:   opts.Logger,
		Now:      opts.Now,
	})
	if err != nil {
		return nil, err
	}
	liquidator, err := liquidation.NewProcessor(liquidation.Params{
		Loans:    loanRepo,
		Reserve:  reserveRepo,
		Balances: members,
		Quotas:   quotaRepo,
		Ledger:   ledgerSvc,
		Audit:    recorder,
		Config:   opts.Ledger,
		Logger:   opts.Logger,
		Now:      opts.Now,
	})
	if err != nil {
		return nil, err
	}
	fund, err := guaranteefund.NewProcessor(guaranteefund.Params{
		Loans:   loanRepo,
		Reserve: reserveRepo,
		Ledger:  ledgerSvc,
		Audit:   recorder,
		Config:  opts.Ledger,
		Logger:  opts.Logger,
		Now:     opts.Now,
	})
	if err != nil {
		return nil, err
	}

	return New(Params{
		Runner:        client,
		Transactions:  machine,
		Loans:         manager,
		Liquidation:   liquidator,
		GuaranteeFund: fund,
		Ledger:        ledgerRepo,
		Reserve:       reserveRepo,
		Balances:      members,
		AuditTrail:    reader,
		Inbox:         inbox,
		Sink:          sink,
		Metrics:       opts.Metrics,
		Config:        opts.Ledger,
		Logger:        opts.Logger,
		Now:           opts.Now,
	})
}
