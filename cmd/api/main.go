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

	logging.Init("transfer-api", cfg.LogLevel, cfg.AppEnv)

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

	queueClient := queue.NewClient(asynq.RedisClientOpt{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	}, cfg.TransferRetryLimit, cfg.JobTimeout())
	defer queueClient.Close()

	idempotencyRepo := repository.NewIdempotencyRepository(db)
	ledgerRepo := repository.NewLedgerRepository(db)
	walletRepo := repository.NewWalletRepository(db)
	transferRepo := repository.NewTransferRepository(db)
	userRepo := repository.NewUserRepository(db)

	rates := fx.NewRateService(fx.NewSource(cfg, rdb), cfg.FXSpreadPct)

	transfers := transfer.NewService(
		idempotencyRepo,
		ledgerRepo,
		walletRepo,
		transferRepo,
		rates,
		queueClient,
		notify.NewNotifier(queueClient),
		repository.NewDB(db),
		cfg,
	)
	wallets := service.NewWalletService(walletRepo, ledgerRepo, userRepo)

	router := newRouter(routerDeps{
		cfg:       cfg,
		rdb:       rdb,
		transfers: handler.NewTransferHandler(transfers, cfg.StatusStreamInterval()),
		wallets:   handler.NewWalletHandler(wallets),
		auth:      handler.NewAuthHandler(userRepo, cfg.JWTSecret, cfg.JWTExpiry),
		admin:     handler.NewAdminHandler(transfers),
		fx:        handler.NewFXHandler(rates),
		health: handler.NewHealthHandler(map[string]handler.Pinger{
			"database": db,
			"redis": handler.PingFunc(func(ctx context.Context) error {
				return rdb.Ping(ctx).Err()
			}),
		}),
	})

	addr := fmt.Sprintf(":%d", cfg.Port)
	srv := &http.Server{
		Addr:              addr,
		Handler:           router,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
		ReadHeaderTimeout: 5 * time.Second,
	}

	metricsSrv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.MetricsPort),
		Handler:           promhttp.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		slog.Info("server started", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server error", "error", err)
			stop()
		}
	}()

	go func() {
		slog.Info("metrics server started", "addr", metricsSrv.Addr)
		if err := metricsSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("metrics server error", "error", err)
		}
	}()

	<-ctx.Done()

	slog.Info("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := metricsSrv.Shutdown(shutdownCtx); err != nil {
		slog.Warn("metrics server shutdown", "error", err)
	}
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("server forced to shutdown", "error", err)
		os.Exit(1)
	}
	slog.Info("server stopped")
}
