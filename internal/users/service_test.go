package users

import (
	"context"
	"errors"
	"testing"

	"github.com/sentra-auth/sentra/internal/audit"
	"github.com/sentra-auth/sentra/internal/authz"
	"github.com/sentra-auth/sentra/internal/shared"
	_ "github.com/sentra-auth/sentra/testing"
)

type stubUserRepo struct {
	users     map[int64]User
	updateErr error
	roles     map[int64]string
	statuses  map[int64]bool
}

func newStubUserRepo() *stubUserRepo {
	return &stubUserRepo{
		users:    make(map[int64]User),
		roles:    make(map[int64]string),
		statuses: make(map[int64]bool),
	}
}

func (s *stubUserRepo) ListUsers(_ context.Context) ([]User, error) {
	out := make([]User, 0, len(s.users))
	for _, u := range s.users {
		out = append(out, u)
	}
	return out, nil
}

func (s *stubUserRepo) GetUser(_ context.Context, id int64) (User, error) {
	u, ok := s.users[id]
	if !ok {
		return User{}, shared.ErrNotFound
	}
	return u, nil
}

func (s *stubUserRepo) UpdateRole(_ context.Context, id int64, role string) (bool, error) {
	if s.updateErr != nil {
		return false, s.updateErr
	}
	if _, ok := s.users[id]; !ok {
		return false, nil
	}
	s.roles[id] = role
	return true, nil
}

func (s *stubUserRepo) UpdateStatus(_ context.Context, id int64, active bool) (bool, error) {
	if s.updateErr != nil {
		return false, s.updateErr
	}
	if _, ok := s.users[id]; !ok {
		return false, nil
	}
	s.statuses[id] = active
	return true, nil
}

type stubInvalidator struct {
	invalidated []int64
}

func (s *stubInvalidator) InvalidateUser(_ context.Context, userID int64) {
	s.invalidated = append(s.invalidated, userID)
}

type stubSink struct {
	records []audit.Record
	err     error
}

func (s *stubSink) Record(_ context.Context, rec audit.Record) error {
	if s.err != nil {
		return s.err
	}
	s.records = append(s.records, rec)
	return nil
}

func TestSetRole(t *testing.T) {
	repo := newStubUserRepo()
	repo.users[7] = User{ID: 7, Role: authz.RoleUser}
	inv := &stubInvalidator{}
	sink := &stubSink{}
	svc := NewService(repo, inv, sink, nil)

	if err := svc.SetRole(context.Background(), 7, authz.RoleModerator, 1); err != nil {
		t.Fatalf("set role: %v", err)
	}
	if repo.roles[7] != string(authz.RoleModerator) {
		t.Fatalf("role not persisted: %q", repo.roles[7])
	}
	if len(inv.invalidated) != 1 || inv.invalidated[0] != 7 {
		t.Fatalf("cache not invalidated: %v", inv.invalidated)
	}
	if len(sink.records) != 1 || sink.records[0].Action != audit.ActionSetUserRole {
		t.Fatalf("unexpected audit records: %+v", sink.records)
	}
}

func TestSetRoleRejectsUnknownRole(t *testing.T) {
	repo := newStubUserRepo()
	repo.users[7] = User{ID: 7}
	inv := &stubInvalidator{}
	svc := NewService(repo, inv, &stubSink{}, nil)

	err := svc.SetRole(context.Background(), 7, authz.Role("root"), 1)
	if !errors.Is(err, shared.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
	if len(inv.invalidated) != 0 {
		t.Fatalf("rejected edit must not invalidate")
	}
}

func TestSetRoleUnknownUser(t *testing.T) {
	svc := NewService(newStubUserRepo(), &stubInvalidator{}, &stubSink{}, nil)
	err := svc.SetRole(context.Background(), 404, authz.RoleUser, 1)
	if !errors.Is(err, shared.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestSetStatusSuspends(t *testing.T) {
	repo := newStubUserRepo()
	repo.users[7] = User{ID: 7, IsActive: true}
	inv := &stubInvalidator{}
	sink := &stubSink{}
	svc := NewService(repo, inv, sink, nil)

	if err := svc.SetStatus(context.Background(), 7, false, 1); err != nil {
		t.Fatalf("set status: %v", err)
	}
	if repo.statuses[7] {
		t.Fatalf("status not persisted")
	}
	if len(inv.invalidated) != 1 {
		t.Fatalf("suspension must invalidate cached permissions")
	}
	if len(sink.records) != 1 || sink.records[0].Action != audit.ActionSetUserStatus {
		t.Fatalf("unexpected audit records: %+v", sink.records)
	}
}

func TestSetStatusAuditFailureNonFatal(t *testing.T) {
	repo := newStubUserRepo()
	repo.users[7] = User{ID: 7, IsActive: true}
	sink := &stubSink{err: errors.New("audit down")}
	svc := NewService(repo, &stubInvalidator{}, sink, nil)

	if err := svc.SetStatus(context.Background(), 7, false, 1); err != nil {
		t.Fatalf("mutation must survive audit failure, got %v", err)
	}
}
