package authz

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/sentra-auth/sentra/internal/platform/db"
	"github.com/sentra-auth/sentra/internal/shared"
)

// Repository defines persistence operations for the authorization subsystem.
type Repository interface {
	GetProfile(ctx context.Context, userID int64) (Profile, error)
	ListGrants(ctx context.Context, userID int64) ([]ExplicitGrant, error)
	UpsertGrant(ctx context.Context, grant ExplicitGrant) error
	DeleteGrants(ctx context.Context, userID int64, perm Permission) (int64, error)
	ListRoleOverrides(ctx context.Context) (map[Role][]Permission, error)
	ReplaceRoleOverride(ctx context.Context, role Role, perms []Permission) error
}

// PGRepository implements Repository using PostgreSQL.
type PGRepository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a PostgreSQL repository.
func NewRepository(pool *pgxpool.Pool) *PGRepository {
	return &PGRepository{pool: pool}
}

// GetProfile fetches the role-bearing slice of a user row.
func (r *PGRepository) GetProfile(ctx context.Context, userID int64) (Profile, error) {
	var (
		profile Profile
		role    string
	)
	err := r.pool.QueryRow(ctx,
		`SELECT id, role, is_active FROM users WHERE id = $1`, userID,
	).Scan(&profile.UserID, &role, &profile.IsActive)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Profile{}, shared.ErrNotFound
		}
		return Profile{}, err
	}
	parsed, err := ParseRole(role)
	if err != nil {
		// A row with an unknown role grants nothing rather than erroring a check.
		parsed = ""
	}
	profile.Role = parsed
	return profile, nil
}

// ListGrants returns every explicit grant for the user, expired ones included.
// Expiry filtering happens at resolution time, not in the query, so grants
// stay visible for audit history.
func (r *PGRepository) ListGrants(ctx context.Context, userID int64) ([]ExplicitGrant, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT user_id, permission, granted_by, granted_at, expires_at
		 FROM permission_grants WHERE user_id = $1 ORDER BY permission`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var grants []ExplicitGrant
	for rows.Next() {
		var (
			grant     ExplicitGrant
			perm      string
			grantedAt pgtype.Timestamptz
			expiresAt pgtype.Timestamptz
		)
		if err := rows.Scan(&grant.UserID, &perm, &grant.GrantedBy, &grantedAt, &expiresAt); err != nil {
			return nil, err
		}
		grant.Permission = Permission(perm)
		grant.GrantedAt = grantedAt.Time
		if expiresAt.Valid {
			t := expiresAt.Time
			grant.ExpiresAt = &t
		}
		grants = append(grants, grant)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return grants, nil
}

// UpsertGrant inserts the grant, overwriting expiry and grantor on re-grant.
func (r *PGRepository) UpsertGrant(ctx context.Context, grant ExplicitGrant) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO permission_grants (user_id, permission, granted_by, granted_at, expires_at)
		 VALUES ($1, $2, $3, $4, $5)
		 ON CONFLICT (user_id, permission)
		 DO UPDATE SET granted_by = EXCLUDED.granted_by,
		               granted_at = EXCLUDED.granted_at,
		               expires_at = EXCLUDED.expires_at`,
		grant.UserID, string(grant.Permission), grant.GrantedBy,
		pgtype.Timestamptz{Time: grant.GrantedAt.UTC(), Valid: true},
		toPgTime(grant.ExpiresAt))
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23503" {
			return shared.ErrNotFound
		}
		return err
	}
	return nil
}

// DeleteGrants removes matching grant rows and reports how many were deleted.
func (r *PGRepository) DeleteGrants(ctx context.Context, userID int64, perm Permission) (int64, error) {
	tag, err := r.pool.Exec(ctx,
		`DELETE FROM permission_grants WHERE user_id = $1 AND permission = $2`,
		userID, string(perm))
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

// ListRoleOverrides loads persisted role-permission rows, keyed by role.
func (r *PGRepository) ListRoleOverrides(ctx context.Context) (map[Role][]Permission, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT role, permission FROM role_permissions ORDER BY role, permission`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	overrides := make(map[Role][]Permission)
	for rows.Next() {
		var role, perm string
		if err := rows.Scan(&role, &perm); err != nil {
			return nil, err
		}
		overrides[Role(role)] = append(overrides[Role(role)], Permission(perm))
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return overrides, nil
}

// ReplaceRoleOverride persists one role's permission list wholesale.
func (r *PGRepository) ReplaceRoleOverride(ctx context.Context, role Role, perms []Permission) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `DELETE FROM role_permissions WHERE role = $1`, string(role)); err != nil {
			return err
		}
		for _, perm := range perms {
			if _, err := tx.Exec(ctx,
				`INSERT INTO role_permissions (role, permission) VALUES ($1, $2)`,
				string(role), string(perm)); err != nil {
				return err
			}
		}
		return nil
	})
}

// PurgeExpiredGrants hard-deletes grants whose expiry passed before the cutoff.
// Expiry itself is enforced by time comparison at resolution; this only trims
// rows that no longer serve audit history.
func (r *PGRepository) PurgeExpiredGrants(ctx context.Context, before time.Time) (int64, error) {
	tag, err := r.pool.Exec(ctx,
		`DELETE FROM permission_grants WHERE expires_at IS NOT NULL AND expires_at < $1`,
		pgtype.Timestamptz{Time: before.UTC(), Valid: true})
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

func toPgTime(t *time.Time) pgtype.Timestamptz {
	if t == nil {
		return pgtype.Timestamptz{}
	}
	return pgtype.Timestamptz{Time: t.UTC(), Valid: true}
}

var _ Repository = (*PGRepository)(nil)
