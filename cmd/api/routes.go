package main

import (
	"net/http"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/josh-kwaku/wallet-transfer-engine/internal/config"
	"github.com/josh-kwaku/wallet-transfer-engine/internal/domain"
	"github.com/josh-kwaku/wallet-transfer-engine/internal/handler"
	"github.com/josh-kwaku/wallet-transfer-engine/internal/middleware"
)

type routerDeps struct {
	cfg       *config.Config
	rdb       *redis.Client
	transfers *handler.TransferHandler
	wallets   *handler.WalletHandler
	auth      *handler.AuthHandler
	admin     *handler.AdminHandler
	fx        *handler.FXHandler
	health    *handler.HealthHandler
}

func newRouter(d routerDeps) http.Handler {
	mux := http.NewServeMux()

	authed := middleware.Auth(d.cfg.JWTSecret)
	limited := middleware.RateLimit(d.rdb, "transfers", d.cfg.RateLimitPerMinute, time.Minute)
	operator := middleware.RequireRole(domain.UserRoleAdmin, domain.UserRoleSuperAdmin)

	mux.HandleFunc("GET /health", d.health.Liveness)
	mux.HandleFunc("GET /health/ready", d.health.Readiness)

	mux.HandleFunc("POST /api/v1/auth/login", d.auth.Login)

	mux.Handle("POST /api/v1/transfers", authed(limited(http.HandlerFunc(d.transfers.Create))))
	mux.Handle("GET /api/v1/transfers/{key}/status", authed(http.HandlerFunc(d.transfers.Status)))
	mux.Handle("GET /api/v1/transfers/{key}/stream", authed(http.HandlerFunc(d.transfers.Stream)))

	mux.Handle("POST /api/v1/wallets", authed(http.HandlerFunc(d.wallets.Create)))
	mux.Handle("GET /api/v1/wallets", authed(http.HandlerFunc(d.wallets.List)))
	mux.Handle("GET /api/v1/wallets/{id}/balance", authed(http.HandlerFunc(d.wallets.Balance)))
	mux.Handle("GET /api/v1/wallets/{id}/ledger", authed(http.HandlerFunc(d.wallets.Ledger)))

	mux.Handle("GET /api/v1/fx/quote", authed(http.HandlerFunc(d.fx.Quote)))

	mux.Handle("GET /api/v1/admin/idempotency/{key}", authed(operator(http.HandlerFunc(d.admin.IdempotencyRecord))))

	return middleware.Tracing(middleware.Logging(middleware.Recovery(middleware.Metrics(mux))))
}
