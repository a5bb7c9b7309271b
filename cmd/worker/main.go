package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"

	"github.com/sentra-auth/sentra/internal/app"
	"github.com/sentra-auth/sentra/internal/audit"
	"github.com/sentra-auth/sentra/internal/authz"
	"github.com/sentra-auth/sentra/internal/platform/db"
	"github.com/sentra-auth/sentra/jobs"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping worker startup")
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
		logger.Error("connect database", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()

	authzRepo := authz.NewRepository(pool)
	auditRepo := audit.NewRepository(pool)

	purgeTask, err := jobs.NewPurgeExpiredGrantsTask(time.Now().UTC())
	if err != nil {
		logger.Error("build purge task", slog.Any("error", err))
		os.Exit(1)
	}
	retentionTask, err := jobs.NewAuditRetentionTask(time.Now().UTC())
	if err != nil {
		logger.Error("build retention task", slog.Any("error", err))
		os.Exit(1)
	}

	redisOpts := asynq.RedisClientOpt{Addr: cfg.RedisAddr}
	worker, err := jobs.NewWorker(jobs.WorkerConfig{
		RedisOpts: redisOpts,
		Logger:    logger,
		Handlers: []jobs.TaskHandler{
			{Type: jobs.TaskPurgeExpiredGrants, Handler: jobs.NewPurgeExpiredGrantsHandler(authzRepo, cfg.GrantPurgeKeep, logger)},
			{Type: jobs.TaskAuditRetention, Handler: jobs.NewAuditRetentionHandler(auditRepo, cfg.AuditRetentionKeep, logger)},
		},
		Cron: []jobs.CronRegistration{
			{Spec: "30 3 * * *", Task: purgeTask},
			{Spec: "45 3 * * 0", Task: retentionTask},
		},
	})
	if err != nil {
		logger.Error("build worker", slog.Any("error", err))
		os.Exit(1)
	}

	logger.Info("starting worker")
	if err := worker.Run(ctx); err != nil && ctx.Err() == nil {
		logger.Error("worker stopped", slog.Any("error", err))
		os.Exit(1)
	}
}
