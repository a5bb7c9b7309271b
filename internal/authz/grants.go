package authz

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/sentra-auth/sentra/internal/audit"
	"github.com/sentra-auth/sentra/internal/observability"
	"github.com/sentra-auth/sentra/internal/shared"
)

// AuditSink receives records for every mutation. Audit failures are logged,
// not fatal: authorization correctness takes priority over audit completeness.
type AuditSink interface {
	Record(ctx context.Context, rec audit.Record) error
}

// Manager mutates explicit grants and the role table, keeping the cache
// consistent. Each mutation is strictly ordered: store write, then cache
// invalidation, then audit record. The invalidation completes before the
// call returns, so the very next resolver call sees fresh state.
type Manager struct {
	repo    Repository
	table   *RoleTable
	cache   *Cache
	audit   AuditSink
	bus     Broadcaster
	logger  *slog.Logger
	metrics *observability.AuthzMetrics

	now func() time.Time
}

// NewManager constructs a Manager. The bus may be nil for single-process
// deployments.
func NewManager(repo Repository, table *RoleTable, cache *Cache, sink AuditSink, bus Broadcaster, logger *slog.Logger, metrics *observability.AuthzMetrics) *Manager {
	return &Manager{
		repo:    repo,
		table:   table,
		cache:   cache,
		audit:   sink,
		bus:     bus,
		logger:  logger,
		metrics: metrics,
		now:     time.Now,
	}
}

// LoadOverrides applies persisted role-permission rows on top of the seeded
// table. Called once at startup so bulk edits survive restarts.
func (m *Manager) LoadOverrides(ctx context.Context) error {
	overrides, err := m.repo.ListRoleOverrides(ctx)
	if err != nil {
		return fmt.Errorf("authz: load role overrides: %w", err)
	}
	for role, perms := range overrides {
		if !role.Valid() {
			continue
		}
		m.table.Replace(role, perms)
	}
	return nil
}

// Grant assigns a permission to a user, optionally time-limited. Re-granting
// an existing pair overwrites the expiry. A grant created with a past expiry
// is stored but never counts as held.
func (m *Manager) Grant(ctx context.Context, userID int64, perm Permission, grantedBy int64, expiresAt *time.Time) error {
	if !perm.Valid() {
		return fmt.Errorf("%w: unknown permission %q", shared.ErrValidation, perm)
	}

	grant := ExplicitGrant{
		UserID:     userID,
		Permission: perm,
		GrantedBy:  grantedBy,
		GrantedAt:  m.now().UTC(),
		ExpiresAt:  expiresAt,
	}
	if err := m.repo.UpsertGrant(ctx, grant); err != nil {
		return err
	}

	m.invalidateUser(ctx, userID)

	details := map[string]any{"permission": string(perm)}
	if expiresAt != nil {
		details["expires_at"] = expiresAt.UTC().Format(time.RFC3339)
	}
	m.writeAudit(ctx, audit.Record{
		ActorID:    grantedBy,
		Action:     audit.ActionGrantPermission,
		TargetType: audit.TargetUser,
		TargetID:   strconv.FormatInt(userID, 10),
		Details:    details,
	})
	return nil
}

// Revoke removes a user's explicit grant. Revoking a grant that does not
// exist is a no-op success.
func (m *Manager) Revoke(ctx context.Context, userID int64, perm Permission, revokedBy int64) error {
	if !perm.Valid() {
		return fmt.Errorf("%w: unknown permission %q", shared.ErrValidation, perm)
	}

	removed, err := m.repo.DeleteGrants(ctx, userID, perm)
	if err != nil {
		return err
	}

	m.invalidateUser(ctx, userID)

	m.writeAudit(ctx, audit.Record{
		ActorID:    revokedBy,
		Action:     audit.ActionRevokePermission,
		TargetType: audit.TargetUser,
		TargetID:   strconv.FormatInt(userID, 10),
		Details:    map[string]any{"permission": string(perm), "removed": removed},
	})
	return nil
}

// SetRolePermissions replaces one role's entry in the role table. The local
// cache is purged so fresh resolutions see the new mapping immediately; peer
// processes converge via the bus or their own TTL, so callers needing
// cross-process immediate consistency must invalidate affected users
// explicitly.
func (m *Manager) SetRolePermissions(ctx context.Context, role Role, perms []Permission, adminID int64) error {
	if !role.Valid() {
		return fmt.Errorf("%w: unknown role %q", shared.ErrValidation, role)
	}
	for _, perm := range perms {
		if !perm.Valid() {
			return fmt.Errorf("%w: unknown permission %q", shared.ErrValidation, perm)
		}
	}

	if err := m.repo.ReplaceRoleOverride(ctx, role, perms); err != nil {
		return err
	}
	m.table.Replace(role, perms)
	m.cache.Purge()
	if m.bus != nil {
		m.bus.Broadcast(ctx, InvalidationEvent{Kind: EventRole, Role: role})
	}

	names := make([]string, len(perms))
	for i, perm := range perms {
		names[i] = string(perm)
	}
	m.writeAudit(ctx, audit.Record{
		ActorID:    adminID,
		Action:     audit.ActionSetRolePerms,
		TargetType: audit.TargetRole,
		TargetID:   string(role),
		Details:    map[string]any{"permissions": names},
	})
	return nil
}

// InvalidateUser drops the user's cached permissions, locally now and on
// peers best-effort.
func (m *Manager) InvalidateUser(ctx context.Context, userID int64) {
	m.invalidateUser(ctx, userID)
}

func (m *Manager) invalidateUser(ctx context.Context, userID int64) {
	m.cache.Invalidate(userID)
	if m.bus != nil {
		m.bus.Broadcast(ctx, InvalidationEvent{Kind: EventUser, UserID: userID})
	}
}

func (m *Manager) writeAudit(ctx context.Context, rec audit.Record) {
	if m.audit == nil {
		return
	}
	if err := m.audit.Record(ctx, rec); err != nil {
		if m.metrics != nil {
			m.metrics.AuditFailures.Inc()
		}
		if m.logger != nil {
			m.logger.Error("audit write failed",
				slog.String("action", rec.Action),
				slog.String("target_id", rec.TargetID),
				slog.Any("error", err))
		}
	}
}
