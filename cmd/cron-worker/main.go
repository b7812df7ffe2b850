package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/angelmondragon/marketledger-backend/internal/bootstrap"
	"github.com/angelmondragon/marketledger-backend/internal/cron"
	"github.com/angelmondragon/marketledger-backend/internal/payouts"
	"github.com/angelmondragon/marketledger-backend/internal/vendors"
	"github.com/angelmondragon/marketledger-backend/pkg/metrics"
	"github.com/angelmondragon/marketledger-backend/pkg/outbox"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "cron-worker:", err)
		os.Exit(1)
	}
}

func run() error {
	rt, err := bootstrap.Load("cron-worker")
	if err != nil {
		return err
	}
	defer rt.Close()
	cfg, logg := rt.Config, rt.Logger

	ctx, stop := rt.SignalContext()
	defer stop()

	dbClient, err := rt.Database(ctx)
	if err != nil {
		return err
	}
	redisClient, err := rt.Redis(ctx)
	if err != nil {
		return err
	}

	lock, err := cron.NewRedisLock(redisClient, redisClient.LockKey(lockName(cfg.App.Env)), cfg.Cron.LockTTL)
	if err != nil {
		return fmt.Errorf("cron lock: %w", err)
	}

	outboxRepo := outbox.NewRepository(dbClient.DB())
	payoutService, err := payouts.NewService(payouts.ServiceParams{
		TX:       dbClient,
		Repo:     payouts.NewRepository(dbClient.DB()),
		Vendors:  vendors.NewRepository(dbClient.DB()),
		Outbox:   outbox.NewService(outboxRepo, logg),
		Currency: cfg.Settlement.Currency,
		Metrics:  metrics.NewSettlementMetrics(prometheus.DefaultRegisterer),
		Logger:   logg,
		Now:      time.Now,
	})
	if err != nil {
		return fmt.Errorf("payout service: %w", err)
	}

	payoutJob, err := cron.NewPayoutAggregationJob(cron.PayoutAggregationJobParams{
		Logger:  logg,
		Payouts: payoutService,
	})
	if err != nil {
		return fmt.Errorf("payout job: %w", err)
	}
	retentionJob, err := cron.NewOutboxRetentionJob(cron.OutboxRetentionJobParams{
		Logger:       logg,
		DB:           dbClient,
		Repository:   outboxRepo,
		DeadLetters:  outbox.NewDLQRepository(dbClient.DB()),
		Retention:    cfg.Outbox.RetentionDays,
		DLQRetention: cfg.Outbox.DLQRetentionDays,
	})
	if err != nil {
		return fmt.Errorf("outbox retention job: %w", err)
	}

	service, err := cron.NewService(cron.ServiceParams{
		Logger:     logg,
		Registry:   cron.NewRegistry(payoutJob, retentionJob),
		Lock:       lock,
		Metrics:    metrics.NewCronJobMetrics(prometheus.DefaultRegisterer),
		Interval:   cfg.Cron.Interval,
		JobTimeout: cfg.Cron.JobTimeout,
	})
	if err != nil {
		return fmt.Errorf("cron service: %w", err)
	}

	logg.Info(ctx, "cron_worker.starting")
	if err := service.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logg.Error(ctx, "cron_worker.stopped", err)
		return err
	}
	logg.Info(ctx, "cron_worker.shutdown")
	return nil
}

// lockName scopes the lock per environment so staging and production
// workers sharing one Redis do not block each other.
func lockName(env string) string {
	if env == "" {
		env = "local"
	}
	return "cron-worker:" + env
}
