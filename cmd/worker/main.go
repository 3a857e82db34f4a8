package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/josh-kwaku/wallet-transfer-engine/internal/config"
	"github.com/josh-kwaku/wallet-transfer-engine/internal/fx"
	"github.com/josh-kwaku/wallet-transfer-engine/internal/handler"
	"github.com/josh-kwaku/wallet-transfer-engine/internal/logging"
	"github.com/josh-kwaku/wallet-transfer-engine/internal/notify"
	"github.com/josh-kwaku/wallet-transfer-engine/internal/queue"
	"github.com/josh-kwaku/wallet-transfer-engine/internal/repository"
	"github.com/josh-kwaku/wallet-transfer-engine/internal/service"
	"github.com/josh-kwaku/wallet-transfer-engine/internal/service/transfer"
)

func main() {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		slog.Warn("failed to load .env file", "error", err)
	}

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := logging.Init("transfer-worker", cfg.LogLevel, cfg.AppEnv)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := repository.NewPostgresDB(ctx, cfg.DatabaseURL, repository.PoolConfig{
		MaxOpenConns:     cfg.DBMaxOpenConns,
		MaxIdleConns:     cfg.DBMaxIdleConns,
		ConnMaxLifetimeS: cfg.DBConnMaxLifetimeS,
		ConnMaxIdleTimeS: cfg.DBConnMaxIdleTimeS,
	}, 30)
	if err != nil {
		slog.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	defer rdb.Close()

	redisOpt := asynq.RedisClientOpt{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	}
	queueClient := queue.NewClient(redisOpt, cfg.TransferRetryLimit, cfg.JobTimeout())
	defer queueClient.Close()

	idempotencyRepo := repository.NewIdempotencyRepository(db)
	userRepo := repository.NewUserRepository(db)

	transfers := transfer.NewService(
		idempotencyRepo,
		repository.NewLedgerRepository(db),
		repository.NewWalletRepository(db),
		repository.NewTransferRepository(db),
		fx.NewRateService(fx.NewSource(cfg, rdb), cfg.FXSpreadPct),
		queueClient,
		notify.NewNotifier(queueClient),
		repository.NewDB(db),
		cfg,
	)

	mux := queue.NewServeMux(
		queue.NewTransferHandler(transfers, logger),
		notify.NewHandler(userRepo, notify.NewLogSender(logger), logger),
	)

	srv := queue.NewServer(redisOpt, queue.ServerConfig{
		Concurrency:     cfg.WorkerConcurrency,
		RetryBase:       cfg.TransferBackoff(),
		ShutdownTimeout: 30 * time.Second,
	}, logger)

	if err := srv.Start(mux); err != nil {
		slog.Error("failed to start worker pool", "error", err)
		os.Exit(1)
	}
	slog.Info("worker pool started", "concurrency", cfg.WorkerConcurrency)

	sweeper := service.NewSweeper(idempotencyRepo, transfers, logger.With("component", "sweeper"), service.SweeperConfig{
		Interval:    cfg.SweepInterval(),
		StaleAfter:  cfg.SweepStaleAfter(),
		ExpireAfter: cfg.SweepExpireAfter(),
		BatchSize:   cfg.SweepBatchSize,
	})
	sweepDone := make(chan struct{})
	go func() {
		defer close(sweepDone)
		sweeper.Start(ctx)
	}()

	health := handler.NewHealthHandler(map[string]handler.Pinger{
		"database": db,
		"redis": handler.PingFunc(func(ctx context.Context) error {
			return rdb.Ping(ctx).Err()
		}),
	})
	opsMux := http.NewServeMux()
	opsMux.Handle("GET /metrics", promhttp.Handler())
	opsMux.HandleFunc("GET /health", health.Liveness)
	opsMux.HandleFunc("GET /health/ready", health.Readiness)

	opsSrv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.MetricsPort),
		Handler:           opsMux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		slog.Info("metrics server started", "addr", opsSrv.Addr)
		if err := opsSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("metrics server error", "error", err)
		}
	}()

	<-ctx.Done()

	slog.Info("shutting down worker")
	srv.Shutdown()
	<-sweepDone

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := opsSrv.Shutdown(shutdownCtx); err != nil {
		slog.Warn("metrics server shutdown", "error", err)
	}
	slog.Info("worker stopped")
}
