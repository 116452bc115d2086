package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/quotaclub/settlement/internal/settlement"
	"github.com/quotaclub/settlement/pkg/config"
	"github.com/quotaclub/settlement/pkg/db"
	"github.com/quotaclub/settlement/pkg/logger"
)

const serviceName = "settlement-admin"

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	a := &app{boot: bootstrap}
	err := newRootCmd(a).ExecuteContext(ctx)
	a.close()
	stop()
	if err != nil {
		os.Exit(1)
	}
}

// bootstrap loads config and opens the ledger. Logs go to stderr so stdout
// carries only the JSON envelope.
func bootstrap(ctx context.Context) (*settlement.Service, func(), error) {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		return nil, nil, err
	}
	logg := logger.New(logger.Options{
		ServiceName: serviceName,
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		Format:      cfg.App.LogFormat,
		WarnStack:   cfg.App.LogWarnStack,
		Output:      os.Stderr,
	})
	ctx = logg.WithField(ctx, "env", cfg.App.Env)

	dbClient, err := db.New(ctx, cfg.DB, logg)
	if err != nil {
		return nil, nil, err
	}
	closeDB := func() {
		if err := dbClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing database", err)
		}
	}

	svc, err := settlement.Build(dbClient, settlement.Options{
		Ledger:  cfg.Ledger,
		Gateway: cfg.Gateway,
		Logger:  logg,
	})
	if err != nil {
		closeDB()
		return nil, nil, err
	}
	return svc, func() {
		svc.Drain()
		closeDB()
	}, nil
}
