package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"

	"github.com/sentra-auth/sentra/internal/app"
	"github.com/sentra-auth/sentra/internal/audit"
	"github.com/sentra-auth/sentra/internal/auth"
	"github.com/sentra-auth/sentra/internal/authz"
	"github.com/sentra-auth/sentra/internal/observability"
	"github.com/sentra-auth/sentra/internal/platform/db"
	"github.com/sentra-auth/sentra/internal/users"
	"github.com/sentra-auth/sentra/jobs"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping runtime startup")
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}

	logger := app.NewLogger(cfg)

	pool, err := db.New(ctx, cfg.PGDSN)
	if err != nil {
		logger.Error("connect postgres", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()

	redisClient := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
	if err := redisClient.Ping(ctx).Err(); err != nil {
		logger.Warn("redis ping", slog.Any("error", err))
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()

	metrics := observability.NewMetrics()
	authzMetrics := observability.NewAuthzMetrics(metrics.Registerer())

	roleTable := authz.NewRoleTable(authz.DefaultRolePermissions())
	permCache := authz.NewCache(cfg.PermCacheSize, cfg.PermCacheTTL, authzMetrics)
	authzRepo := authz.NewRepository(pool)
	bus := authz.NewRedisBus(redisClient, permCache, logger)
	auditLogger := audit.NewLogger(pool)

	resolver := authz.NewResolver(authzRepo, roleTable, permCache, logger, authzMetrics)
	manager := authz.NewManager(authzRepo, roleTable, permCache, auditLogger, bus, logger, authzMetrics)
	if err := manager.LoadOverrides(ctx); err != nil {
		logger.Error("load role overrides", slog.Any("error", err))
		os.Exit(1)
	}

	go func() {
		if err := bus.Listen(ctx); err != nil && ctx.Err() == nil {
			logger.Warn("invalidation listener stopped", slog.Any("error", err))
		}
	}()

	guard := authz.Middleware{Resolver: resolver, Logger: logger}

	sessionManager := auth.NewSessionManager(redisClient, "sentra_session", cfg.SessionTTL, cfg.IsProduction())
	authService := auth.NewService(auth.NewRepository(pool))
	authHandler := auth.NewHandler(logger, authService, sessionManager)

	authzHandler := authz.NewHandler(logger, resolver, manager, roleTable, guard)

	usersService := users.NewService(users.NewRepository(pool), manager, auditLogger, logger)
	usersHandler := users.NewHandler(logger, usersService, guard)

	auditService := audit.NewService(audit.NewRepository(pool))
	auditHandler := audit.NewHandler(logger, auditService, guard)

	inspector := asynq.NewInspector(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
	defer func() {
		if err := inspector.Close(); err != nil {
			logger.Warn("inspector close", slog.Any("error", err))
		}
	}()
	jobHandler := jobs.NewHandler(inspector, logger)

	router := app.NewRouter(app.RouterParams{
		Logger:         logger,
		Config:         cfg,
		SessionManager: sessionManager,
		AuthHandler:    authHandler,
		AuthzHandler:   authzHandler,
		UsersHandler:   usersHandler,
		AuditHandler:   auditHandler,
		JobHandler:     jobHandler,
		Metrics:        metrics,
	})

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	go func() {
		logger.Info("starting http server", slog.String("addr", cfg.AppAddr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("http server", slog.Any("error", err))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown", slog.Any("error", err))
	}
}
