package jobs

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	"github.com/sentra-auth/sentra/internal/audit"
	"github.com/sentra-auth/sentra/internal/authz"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskPurgeExpiredGrants trims long-expired explicit grants.
	TaskPurgeExpiredGrants = "authz:purge_expired_grants"
	// TaskAuditRetention trims audit records past the retention window.
	TaskAuditRetention = "audit:retention"
)

// MaintenancePayload carries scheduling metadata for cleanup tasks.
type MaintenancePayload struct {
	ScheduledFor time.Time `json:"scheduled_for"`
}

// NewPurgeExpiredGrantsTask constructs an Asynq task for grant cleanup.
func NewPurgeExpiredGrantsTask(at time.Time) (*asynq.Task, error) {
	body, err := json.Marshal(MaintenancePayload{ScheduledFor: at})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskPurgeExpiredGrants, body, asynq.Queue(QueueDefault)), nil
}

// NewAuditRetentionTask constructs an Asynq task for audit trimming.
func NewAuditRetentionTask(at time.Time) (*asynq.Task, error) {
	body, err := json.Marshal(MaintenancePayload{ScheduledFor: at})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskAuditRetention, body, asynq.Queue(QueueDefault)), nil
}

// NewPurgeExpiredGrantsHandler deletes grants whose expiry passed more than
// `keep` ago. Expiry is enforced at resolution time by comparison; this only
// removes rows that no longer serve audit history, so no cache invalidation
// is needed.
func NewPurgeExpiredGrantsHandler(repo *authz.PGRepository, keep time.Duration, logger *slog.Logger) asynq.HandlerFunc {
	return func(ctx context.Context, t *asynq.Task) error {
		var payload MaintenancePayload
		if err := json.Unmarshal(t.Payload(), &payload); err != nil {
			return asynq.SkipRetry
		}
		cutoff := time.Now().Add(-keep)
		removed, err := repo.PurgeExpiredGrants(ctx, cutoff)
		if err != nil {
			return err
		}
		logger.Info("purged expired grants",
			slog.Int64("removed", removed),
			slog.Time("cutoff", cutoff))
		return nil
	}
}

// NewAuditRetentionHandler trims audit records older than the retention window.
func NewAuditRetentionHandler(repo *audit.PGRepository, keep time.Duration, logger *slog.Logger) asynq.HandlerFunc {
	return func(ctx context.Context, t *asynq.Task) error {
		var payload MaintenancePayload
		if err := json.Unmarshal(t.Payload(), &payload); err != nil {
			return asynq.SkipRetry
		}
		cutoff := audit.RetentionCutoff(time.Now(), keep)
		removed, err := repo.TrimBefore(ctx, cutoff)
		if err != nil {
			return err
		}
		logger.Info("trimmed audit log",
			slog.Int64("removed", removed),
			slog.Time("cutoff", cutoff))
		return nil
	}
}
