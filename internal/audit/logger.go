package audit

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Logger appends records into audit_logs.
type Logger struct {
	pool *pgxpool.Pool
}

// NewLogger returns a new Logger.
func NewLogger(pool *pgxpool.Pool) *Logger {
	return &Logger{pool: pool}
}

// Record persists the log entry. CreatedAt defaults to now when zero.
func (l *Logger) Record(ctx context.Context, rec Record) error {
	if l == nil {
		return errors.New("audit logger not initialised")
	}
	if rec.Action == "" || rec.TargetType == "" || rec.TargetID == "" {
		return errors.New("audit record requires action/target_type/target_id")
	}
	detailsJSON, err := json.Marshal(rec.Details)
	if err != nil {
		return err
	}
	createdAt := pgtype.Timestamptz{Time: rec.CreatedAt.UTC(), Valid: !rec.CreatedAt.IsZero()}
	_, err = l.pool.Exec(ctx,
		`INSERT INTO audit_logs (actor_id, action, target_type, target_id, details, created_at)
		 VALUES ($1, $2, $3, $4, $5, COALESCE($6, NOW()))`,
		rec.ActorID, rec.Action, rec.TargetType, rec.TargetID, detailsJSON, createdAt)
	return err
}

// RetentionCutoff computes the deletion cutoff for timeline trimming.
func RetentionCutoff(now time.Time, keep time.Duration) time.Time {
	return now.Add(-keep).UTC()
}
