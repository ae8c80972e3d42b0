package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/hibiken/asynq"

	"github.com/punchamoorthee/coopledger/internal/config"
	"github.com/punchamoorthee/coopledger/internal/jobs"
	"github.com/punchamoorthee/coopledger/internal/observability"
	"github.com/punchamoorthee/coopledger/internal/service"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}
	logger := config.NewLogger(cfg)
	if cfg.RedisAddr == "" {
		logger.Error("REDIS_ADDR is required for the worker")
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	ledgerStore, err := cfg.OpenStore(ctx)
	if err != nil {
		logger.Error("open ledger store", slog.Any("error", err))
		os.Exit(1)
	}
	defer ledgerStore.Close()

	ledger := service.New(ledgerStore,
		service.WithLogger(logger),
		service.WithMetrics(observability.NewLedgerMetrics(nil)))
	verifyJob := jobs.NewLedgerVerifyJob(ledger, logger, observability.NewJobMetrics(nil))

	var cron []jobs.CronRegistration
	if cfg.IntegrityCron != "" {
		nightly, err := jobs.NewLedgerVerifyTask(jobs.LedgerVerifyPayload{})
		if err != nil {
			logger.Error("build verify task", slog.Any("error", err))
			os.Exit(1)
		}
		cron = append(cron, jobs.CronRegistration{Spec: cfg.IntegrityCron, Task: nightly, Options: []asynq.Option{asynq.MaxRetry(3)}})
	}

	worker, err := jobs.NewWorker(jobs.WorkerConfig{
		RedisOpts: asynq.RedisClientOpt{Addr: cfg.RedisAddr},
		Logger:    logger,
		Handlers: []jobs.TaskHandler{
			{Type: jobs.TaskLedgerVerify, Handler: verifyJob.Handle},
		},
		Cron: cron,
	})
	if err != nil {
		logger.Error("init worker", slog.Any("error", err))
		os.Exit(1)
	}

	if err := worker.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("worker run", slog.Any("error", err))
		os.Exit(1)
	}
}
