package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"go.uber.org/zap"

	"studiobook/backend/internal/cache"
	"studiobook/backend/internal/config"
	"studiobook/backend/internal/httpapi"
	"studiobook/backend/internal/logger"
	"studiobook/backend/internal/scheduler"
	"studiobook/backend/internal/service"
	"studiobook/backend/internal/store"
	"studiobook/backend/internal/store/memory"
	pgstore "studiobook/backend/internal/store/postgres"
)

func main() {
	cfg := config.Load()
	log, err := logger.New(logger.Config{
		ServiceName: "studiobook-backend",
		Environment: cfg.Environment,
		Level:       cfg.LogLevel,
		Format:      cfg.LogFormat,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = log.Sync() }()
	if cfg.ConfigFileErr != nil {
		log.Warn("config file unreadable, using environment only", zap.Error(cfg.ConfigFileErr))
	}

	if err := validateSecurityConfig(cfg); err != nil {
		log.Fatal("invalid security configuration", zap.Error(err))
	}
	loc, err := loadLocation(cfg.StudioTimezone)
	if err != nil {
		log.Fatal("invalid studio timezone", zap.Error(err))
	}

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	var repo store.Repository
	closers := make([]func() error, 0, 2)
	usingPostgres := false

	if cfg.DatabaseURL != "" {
		pg, err := pgstore.New(ctx, cfg.DatabaseURL, pgstore.PoolConfig{
			MaxOpenConns: cfg.DBMaxOpenConns,
			MaxIdleConns: cfg.DBMaxIdleConns,
		})
		if err != nil {
			log.Fatal("postgres unavailable and DATABASE_URL is set; refusing to start with in-memory fallback", zap.Error(err))
		}
		if err := pg.Migrate(ctx); err != nil {
			log.Fatal("schema migration failed", zap.Error(err))
		}
		repo = pg
		usingPostgres = true
		closers = append(closers, pg.Close)
		log.Info("repository: postgres")
	} else {
		repo = memory.NewSeeded()
		log.Info("repository: in-memory (seeded demo data)")
	}

	dashboards := cache.DashboardCache(cache.NoopDashboardCache{})
	if cfg.RedisAddr != "" {
		redisCache := cache.NewRedisDashboardCache(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		if err := redisCache.Ping(ctx); err != nil {
			log.Warn("redis unavailable, using noop dashboard cache", zap.Error(err))
			_ = redisCache.Close()
		} else {
			dashboards = redisCache
			closers = append(closers, redisCache.Close)
			log.Info("cache: redis", zap.String("addr", cfg.RedisAddr))
		}
	} else {
		log.Info("cache: noop")
	}

	svc := service.New(repo, dashboards, service.Options{
		DashboardTTL:      time.Duration(cfg.DashboardCacheTTLSeconds) * time.Second,
		LowStockThreshold: cfg.LowStockThreshold,
		Location:          loc,
		Logger:            log,
	})
	auth := httpapi.NewAuthManager(cfg.AuthSecret, cfg.AuthIssuer, time.Duration(cfg.AccessTokenTTLMinutes)*time.Minute, repo, log)
	if usingPostgres {
		created, err := auth.EnsureOwner(ctx, cfg.OwnerUsername, cfg.OwnerPassword)
		if err != nil {
			log.Fatal("owner bootstrap failed", zap.Error(err))
		}
		if created {
			log.Info("first owner account created; OWNER_PASSWORD can now be removed from the environment")
		}
	}
	api := httpapi.New(svc, auth, httpapi.Options{
		AllowedOrigin: cfg.AllowedOrigin,
		StudioName:    cfg.StudioName,
		Location:      loc,
		Logger:        log,
	})

	var jobs *scheduler.Scheduler
	if cfg.SchedulerEnabled {
		jobs, err = scheduler.New(svc, cfg.DailySummaryCron, loc, log)
		if err != nil {
			log.Fatal("scheduler setup failed", zap.Error(err))
		}
		jobs.Start()
	}

	server := &http.Server{
		Addr:              cfg.Address(),
		Handler:           api.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		log.Info("studio backend listening", zap.String("addr", cfg.Address()), zap.String("timezone", loc.String()))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("server error", zap.Error(err))
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 8*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("shutdown error", zap.Error(err))
	}
	if jobs != nil {
		jobs.Stop(shutdownCtx)
	}

	for _, closeFn := range closers {
		if err := closeFn(); err != nil {
			log.Error("close error", zap.Error(err))
		}
	}

	log.Info("server stopped")
}

func validateSecurityConfig(cfg config.Config) error {
	if len(cfg.AuthSecret) < 32 {
		return fmt.Errorf("AUTH_SECRET must be set and at least 32 characters")
	}
	if cfg.IsProduction() && strings.TrimSpace(cfg.AllowedOrigin) == "*" {
		return fmt.Errorf("ALLOWED_ORIGIN must name the back office origin in production")
	}
	return nil
}

func loadLocation(name string) (*time.Location, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return time.UTC, nil
	}
	return time.LoadLocation(name)
}
