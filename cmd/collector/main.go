package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/pulsewatch/collector/internal/app/migrate"
	httpx "github.com/pulsewatch/collector/internal/http"
	"github.com/pulsewatch/collector/internal/repository/postgres"
	"github.com/pulsewatch/collector/internal/service/alert"
	"github.com/pulsewatch/collector/internal/service/dashboard"
	"github.com/pulsewatch/collector/internal/service/health"
	"github.com/pulsewatch/collector/internal/service/incident"
	"github.com/pulsewatch/collector/internal/service/ingest"
	"github.com/pulsewatch/collector/internal/service/realtime"
	"github.com/pulsewatch/collector/internal/service/stats"
	"github.com/pulsewatch/collector/internal/ws"
	"github.com/pulsewatch/collector/pkg/config"
	"github.com/pulsewatch/collector/pkg/logger"
)

func main() {
	cfg := config.LoadCollectorConfig()
	log := logger.New("collector", logger.ParseLevel(cfg.LogLevel))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}

	runner, err := migrate.New(pool, cfg.DatabaseURL, cfg.MigrationsDir, log)
	if err != nil {
		log.Error("failed to configure migrations", "error", err)
		os.Exit(1)
	}
	defer runner.Close()
	if err := runner.Ping(ctx); err != nil {
		log.Error("database ping failed", "error", err)
		os.Exit(1)
	}
	if err := runner.Ensure(ctx); err != nil {
		log.Error("migrations failed", "error", err)
		os.Exit(1)
	}

	repo := postgres.New(pool)
	hub := ws.NewHub()

	statsSvc := stats.New(repo, log)
	healthSvc := health.New(statsSvc, log)
	dashboardSvc := dashboard.New(repo, repo, repo, repo, statsSvc, log)
	broadcaster := realtime.New(hub, healthSvc, dashboardSvc, cfg.HealthWindow, cfg.HealthPushEvery, log)
	incidentSvc := incident.New(repo, broadcaster, log)
	alertSvc := alert.New(repo, broadcaster, log)
	ingestSvc := ingest.New(repo, repo, alertSvc, incidentSvc, broadcaster, log, cfg.ViolationQueueSize)

	go func() {
		if err := ingestSvc.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			log.Error("violation worker stopped", "error", err)
		}
	}()
	go func() {
		if err := broadcaster.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			log.Error("realtime push loop stopped", "error", err)
		}
	}()

	limiter := httpx.NewMemoryRateLimiter()
	if addr := strings.TrimSpace(cfg.RateLimitRedisAddr); addr != "" {
		redisLimiter, err := httpx.NewRedisRateLimiter(addr, cfg.RateLimitRedisPass, cfg.RateLimitRedisDB, log)
		if err != nil {
			log.Warn("redis rate limiter unavailable", "error", err)
		} else {
			limiter = redisLimiter
		}
	}

	router := httpx.NewRouter(log, ingestSvc, statsSvc, healthSvc, incidentSvc, alertSvc, dashboardSvc, hub, limiter, cfg.MaxPageSize, cfg.HealthWindow, pool.Ping)
	defer router.Close()

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errorCh := make(chan error, 1)
	go func() {
		log.Info("collector server starting", "addr", cfg.Addr)
		errorCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Error("graceful shutdown failed", "error", err)
		}
		log.Info("collector server stopped")
	case err := <-errorCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("server error", "error", err)
			os.Exit(1)
		}
	}
}
