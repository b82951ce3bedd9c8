package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"ecotrack/api-gateway/internal/app"
	"ecotrack/api-gateway/internal/config"
	"ecotrack/api-gateway/internal/logging"
)

// @title EcoTrack API Gateway
// @version 1.0.0
// @description Single entrypoint for the EcoTrack services (users, containers, gamification).
// The gateway authenticates every request with a JWT bearer token except a small set of public
// routes, forwards requests to the owning service by mount path, rate limits clients by IP and
// probes the services' health endpoints in the background.
//
// Environment variables of interest:
// - `JWT_SECRET` (required): HMAC secret shared with the users service.
// - `GATEWAY_PORT` (default 3000), `FRONTEND_URL` (CORS origin).
// - `USERS_SERVICE_URL`, `CONTAINERS_SERVICE_URL`, `GAMIFICATION_SERVICE_URL` or their `*_PORT`.
// - `HEALTH_CHECK_INTERVAL`, `HEALTH_CHECK_TIMEOUT` (ms), `ALLOWED_HEALTH_CHECK_HOSTS`.
// - `CATALOG_DATABASE_URL`, `CATALOG_DB_SCHEMA`: optional Postgres service catalogue.
// - `RATE_LIMIT_REDIS_ADDR`: optional Redis shared between gateway replicas.
// - `GATEWAY_TRUSTED_PROXIES`: proxies whose X-Forwarded-For is believed for rate limiting.
//
// @contact.name EcoTrack Platform Team
// @BasePath /
// @schemes http https
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization
// @tag.name admin
// @tag.description Registry and health introspection, ADMIN role only
// @tag.name system
// @tag.description Health and documentation endpoints

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "api-gateway: %v\n", err)
		os.Exit(1)
	}

	logger, err := logging.New(cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		fmt.Fprintf(os.Stderr, "api-gateway: logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	srv, err := app.New(ctx, cfg, logger)
	if err != nil {
		logger.Error("startup aborted", zap.Error(err))
		_ = logger.Sync()
		os.Exit(1)
	}

	if err := srv.Run(ctx); err != nil {
		logger.Error("server stopped with error", zap.Error(err))
		_ = logger.Sync()
		os.Exit(1)
	}
	logger.Info("server stopped")
}
