package users

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/sentra-auth/sentra/internal/audit"
	"github.com/sentra-auth/sentra/internal/authz"
	"github.com/sentra-auth/sentra/internal/shared"
)

// RepositoryPort defines data access methods for users.
type RepositoryPort interface {
	ListUsers(ctx context.Context) ([]User, error)
	GetUser(ctx context.Context, id int64) (User, error)
	UpdateRole(ctx context.Context, id int64, role string) (bool, error)
	UpdateStatus(ctx context.Context, id int64, active bool) (bool, error)
}

// Invalidator drops cached permissions for a user after a mutation.
type Invalidator interface {
	InvalidateUser(ctx context.Context, userID int64)
}

// AuditSink receives records for administrative mutations.
type AuditSink interface {
	Record(ctx context.Context, rec audit.Record) error
}

// Service handles user management logic. Role and status changes alter a
// user's effective permissions, so both invalidate the permission cache
// before they return.
type Service struct {
	repo        RepositoryPort
	invalidator Invalidator
	audit       AuditSink
	logger      *slog.Logger
}

// NewService builds Service instance.
func NewService(repo RepositoryPort, invalidator Invalidator, sink AuditSink, logger *slog.Logger) *Service {
	return &Service{repo: repo, invalidator: invalidator, audit: sink, logger: logger}
}

// ListUsers returns all users.
func (s *Service) ListUsers(ctx context.Context) ([]User, error) {
	return s.repo.ListUsers(ctx)
}

// GetUser returns one user.
func (s *Service) GetUser(ctx context.Context, id int64) (User, error) {
	return s.repo.GetUser(ctx, id)
}

// SetRole changes a user's role.
func (s *Service) SetRole(ctx context.Context, userID int64, role authz.Role, adminID int64) error {
	if !role.Valid() {
		return fmt.Errorf("%w: unknown role %q", shared.ErrValidation, role)
	}
	matched, err := s.repo.UpdateRole(ctx, userID, string(role))
	if err != nil {
		return err
	}
	if !matched {
		return shared.ErrNotFound
	}
	if s.invalidator != nil {
		s.invalidator.InvalidateUser(ctx, userID)
	}
	s.writeAudit(ctx, audit.Record{
		ActorID:    adminID,
		Action:     audit.ActionSetUserRole,
		TargetType: audit.TargetUser,
		TargetID:   strconv.FormatInt(userID, 10),
		Details:    map[string]any{"role": string(role)},
	})
	return nil
}

// SetStatus activates or suspends a user account.
func (s *Service) SetStatus(ctx context.Context, userID int64, active bool, adminID int64) error {
	matched, err := s.repo.UpdateStatus(ctx, userID, active)
	if err != nil {
		return err
	}
	if !matched {
		return shared.ErrNotFound
	}
	if s.invalidator != nil {
		s.invalidator.InvalidateUser(ctx, userID)
	}
	s.writeAudit(ctx, audit.Record{
		ActorID:    adminID,
		Action:     audit.ActionSetUserStatus,
		TargetType: audit.TargetUser,
		TargetID:   strconv.FormatInt(userID, 10),
		Details:    map[string]any{"active": active},
	})
	return nil
}

func (s *Service) writeAudit(ctx context.Context, rec audit.Record) {
	if s.audit == nil {
		return
	}
	if err := s.audit.Record(ctx, rec); err != nil && s.logger != nil {
		s.logger.Error("audit write failed",
			slog.String("action", rec.Action),
			slog.String("target_id", rec.TargetID),
			slog.Any("error", err))
	}
}
