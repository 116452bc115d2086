package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/quotaclub/settlement/internal/cron"
	"github.com/quotaclub/settlement/internal/notifications"
	"github.com/quotaclub/settlement/internal/settlement"
	"github.com/quotaclub/settlement/pkg/config"
	"github.com/quotaclub/settlement/pkg/db"
	"github.com/quotaclub/settlement/pkg/instance"
	"github.com/quotaclub/settlement/pkg/logger"
	"github.com/quotaclub/settlement/pkg/metrics"
	"github.com/quotaclub/settlement/pkg/migrate"
	"github.com/quotaclub/settlement/pkg/pubsub"
	"github.com/quotaclub/settlement/pkg/redis"
)

const serviceName = "cron-worker"

func main() {
	logg := logger.New(logger.Options{ServiceName: serviceName})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}
	cfg.Service.Kind = serviceName

	logg = logger.New(logger.Options{
		ServiceName: serviceName,
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		Format:      cfg.App.LogFormat,
		WarnStack:   cfg.App.LogWarnStack,
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx = logg.WithFields(ctx, map[string]any{
		"env":         cfg.App.Env,
		"serviceKind": cfg.Service.Kind,
		"workerId":    instance.GetID(),
	})

	dbClient, err := db.New(ctx, cfg.DB, logg)
	if err != nil {
		logg.Error(ctx, "failed to bootstrap database", err)
		os.Exit(1)
	}
	defer func() {
		if err := dbClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing database", err)
		}
	}()

	if err := migrate.MaybeRunDev(ctx, cfg, logg, dbClient); err != nil {
		logg.Error(ctx, "failed to run dev migrations", err)
		os.Exit(1)
	}

	lock, closeLock := buildLock(ctx, cfg, logg)
	defer closeLock()

	publisher, closePublisher := buildPublisher(ctx, cfg, logg)
	defer closePublisher()

	promRegistry := prometheus.NewRegistry()
	promRegistry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	dbStats, err := dbClient.StatsCollector("settlement")
	if err != nil {
		logg.Error(ctx, "failed to read database pool stats", err)
		os.Exit(1)
	}
	promRegistry.MustRegister(dbStats)

	svc, err := settlement.Build(dbClient, settlement.Options{
		Ledger:    cfg.Ledger,
		Gateway:   cfg.Gateway,
		Logger:    logg,
		Publisher: publisher,
		Metrics:   metrics.NewSettlementMetrics(promRegistry),
	})
	if err != nil {
		logg.Error(ctx, "failed to build settlement service", err)
		os.Exit(1)
	}

	registry, err := buildRegistry(logg, svc)
	if err != nil {
		logg.Error(ctx, "failed to build cron jobs", err)
		os.Exit(1)
	}

	service, err := cron.NewService(cron.ServiceParams{
		Logger:   logg,
		Registry: registry,
		Lock:     lock,
		Metrics:  metrics.NewCronJobMetrics(promRegistry),
		Interval: cfg.Cron.Interval,
	})
	if err != nil {
		logg.Error(ctx, "failed to create cron service", err)
		os.Exit(1)
	}

	go func() {
		if err := metrics.Serve(ctx, cfg.Service.MetricsAddr, promRegistry, logg); err != nil {
			logg.Error(ctx, "metrics endpoint stopped", err)
		}
	}()

	logg.Info(ctx, "starting cron worker")
	if err := service.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logg.Error(ctx, "cron worker stopped unexpectedly", err)
		os.Exit(1)
	}
	svc.Drain()
	logg.Info(ctx, "cron worker shutting down gracefully")
}

// buildRegistry registers the sweeps in run order: seize collateral first so
// the guarantee fund only absorbs what liquidation could not recover.
func buildRegistry(logg *logger.Logger, svc *settlement.Service) (*cron.Registry, error) {
	liquidationJob, err := cron.NewLiquidationSweepJob(cron.LiquidationSweepJobParams{Logger: logg, Sweeper: svc})
	if err != nil {
		return nil, err
	}
	fundJob, err := cron.NewGuaranteeFundSweepJob(cron.GuaranteeFundSweepJobParams{Logger: logg, Sweeper: svc})
	if err != nil {
		return nil, err
	}
	referralJob, err := cron.NewReferralRetryJob(cron.ReferralRetryJobParams{Logger: logg, Retrier: svc})
	if err != nil {
		return nil, err
	}
	return cron.NewRegistry(liquidationJob, fundJob, referralJob)
}

func buildLock(ctx context.Context, cfg *config.Config, logg *logger.Logger) (cron.Lock, func()) {
	if cfg.Redis.URL == "" && cfg.Redis.Address == "" {
		if !cfg.App.IsDev() {
			logg.Error(ctx, "redis is required outside dev", errors.New("missing redis configuration"))
			os.Exit(1)
		}
		logg.Warn(ctx, "redis not configured; sweeps are serialized in-process only")
		return &cron.LocalLock{}, func() {}
	}

	redisClient, err := redis.New(ctx, cfg.Redis, logg)
	if err != nil {
		logg.Error(ctx, "failed to bootstrap redis", err)
		os.Exit(1)
	}
	lock, err := cron.NewRedisLock(redisClient, lockName(cfg.App.Env), cfg.Cron.LockTTL)
	if err != nil {
		logg.Error(ctx, "failed to create cron lock", err)
		os.Exit(1)
	}
	return lock, func() {
		if err := redisClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing redis", err)
		}
	}
}

func buildPublisher(ctx context.Context, cfg *config.Config, logg *logger.Logger) (notifications.Publisher, func()) {
	if !cfg.PubSub.Enabled() || cfg.GCP.ProjectID == "" {
		logg.Info(ctx, "pubsub disabled; notifications stay in the member inbox")
		return nil, func() {}
	}
	client, err := pubsub.NewClient(ctx, cfg.GCP, cfg.PubSub, logg)
	if err != nil {
		logg.Error(ctx, "failed to bootstrap pubsub", err)
		os.Exit(1)
	}
	return pubsub.NewMessagePublisher(client.NotificationPublisher()), func() {
		if err := client.Close(); err != nil {
			logg.Error(context.Background(), "error closing pubsub", err)
		}
	}
}

func lockName(env string) string {
	if env == "" {
		env = "local"
	}
	return "cron-worker:" + env
}
