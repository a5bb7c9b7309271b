package audit

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PGRepository reads audit_logs from PostgreSQL.
type PGRepository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a PostgreSQL repository.
func NewRepository(pool *pgxpool.Pool) *PGRepository {
	return &PGRepository{pool: pool}
}

// TimelineWindow fetches one page of the timeline, newest first.
func (r *PGRepository) TimelineWindow(ctx context.Context, q TimelineQuery) ([]Record, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, actor_id, action, target_type, target_id, details, created_at
		 FROM audit_logs
		 WHERE ($1::timestamptz IS NULL OR created_at >= $1)
		   AND ($2::timestamptz IS NULL OR created_at < $2)
		   AND ($3::bigint = 0 OR actor_id = $3)
		   AND ($4::text = '' OR action = $4)
		   AND ($5::text = '' OR target_type = $5)
		 ORDER BY created_at DESC, id DESC
		 OFFSET $6 LIMIT $7`,
		toPgTime(q.From), toPgTime(q.To), q.ActorID,
		strings.TrimSpace(q.Action), strings.TrimSpace(q.TargetType),
		q.Offset, q.Limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []Record
	for rows.Next() {
		var (
			rec       Record
			details   []byte
			createdAt pgtype.Timestamptz
		)
		if err := rows.Scan(&rec.ID, &rec.ActorID, &rec.Action, &rec.TargetType, &rec.TargetID, &details, &createdAt); err != nil {
			return nil, err
		}
		if len(details) > 0 {
			if err := json.Unmarshal(details, &rec.Details); err != nil {
				return nil, err
			}
		}
		rec.CreatedAt = createdAt.Time
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return records, nil
}

// TrimBefore deletes records older than the cutoff. Used by the retention job;
// the writer itself never deletes.
func (r *PGRepository) TrimBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := r.pool.Exec(ctx, `DELETE FROM audit_logs WHERE created_at < $1`,
		pgtype.Timestamptz{Time: cutoff.UTC(), Valid: true})
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

func toPgTime(t time.Time) pgtype.Timestamptz {
	if t.IsZero() {
		return pgtype.Timestamptz{}
	}
	return pgtype.Timestamptz{Time: t, Valid: true}
}

var _ Repository = (*PGRepository)(nil)
