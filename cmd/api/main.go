package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/punchamoorthee/coopledger/internal/api"
	"github.com/punchamoorthee/coopledger/internal/cache"
	"github.com/punchamoorthee/coopledger/internal/config"
	"github.com/punchamoorthee/coopledger/internal/jobs"
	"github.com/punchamoorthee/coopledger/internal/observability"
	"github.com/punchamoorthee/coopledger/internal/operations"
	"github.com/punchamoorthee/coopledger/internal/service"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}
	logger := config.NewLogger(cfg)
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	ledgerStore, err := cfg.OpenStore(ctx)
	if err != nil {
		logger.Error("open ledger store", slog.String("driver", cfg.StoreDriver), slog.Any("error", err))
		os.Exit(1)
	}
	defer ledgerStore.Close()

	opts := []service.Option{
		service.WithLogger(logger),
		service.WithMetrics(observability.NewLedgerMetrics(nil)),
	}

	var queue api.IntegrityQueue
	if cfg.RedisAddr != "" {
		redisClient, err := cache.NewClient(ctx, cfg.RedisAddr)
		if err != nil {
			logger.Warn("redis unavailable, statements are not cached", slog.Any("error", err))
		} else {
			defer redisClient.Close()
			opts = append(opts, service.WithStatementCache(cache.NewStatements(redisClient, cfg.StatementCacheTTL)))
		}

		jobClient := jobs.NewClient(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
		defer jobClient.Close()
		queue = jobClient
	}

	ledger := service.New(ledgerStore, opts...)
	handler := api.NewHandler(ledger, operations.New(ledger, logger), queue, logger)
	router := api.NewRouter(handler, promhttp.Handler(), api.MiddlewareConfig{
		Logger:             logger,
		Production:         cfg.IsProduction(),
		RateLimitPerMinute: cfg.RateLimitPerMinute,
	})

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadTimeout:       cfg.ReadTimeout,
		ReadHeaderTimeout: cfg.ReadTimeout,
		WriteTimeout:      cfg.WriteTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("server starting", slog.String("addr", srv.Addr), slog.String("store", cfg.StoreDriver))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server failed", slog.Any("error", err))
			os.Exit(1)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown", slog.Any("error", err))
	}
	logger.Info("server stopped")
}
