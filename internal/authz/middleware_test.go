package authz

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/sentra-auth/sentra/internal/shared"
)

func guardFixture(t *testing.T) (Middleware, *stubRepo) {
	t.Helper()
	repo := newStubRepo()
	table := NewRoleTable(DefaultRolePermissions())
	cache := NewCache(DefaultCacheSize, time.Minute, nil)
	resolver := NewResolver(repo, table, cache, nil, nil)
	return Middleware{Resolver: resolver}, repo
}

func doGuarded(guard func(http.Handler) http.Handler, principal *shared.Principal) *httptest.ResponseRecorder {
	next := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	if principal != nil {
		req = req.WithContext(shared.ContextWithPrincipal(context.Background(), *principal))
	}
	rec := httptest.NewRecorder()
	guard(next).ServeHTTP(rec, req)
	return rec
}

func TestRequireAnyWithoutPrincipal(t *testing.T) {
	guard, _ := guardFixture(t)
	rec := doGuarded(guard.RequireAny(PermEditUsers), nil)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403 without principal, got %d", rec.Code)
	}
}

func TestRequireAnyPassesOnOneMatch(t *testing.T) {
	guard, repo := guardFixture(t)
	repo.profiles[7] = Profile{UserID: 7, Role: RoleAdmin, IsActive: true}

	rec := doGuarded(guard.RequireAny(PermManageRoles, PermEditUsers), &shared.Principal{UserID: 7})
	if rec.Code != http.StatusNoContent {
		t.Fatalf("admin holds edit-users, expected pass, got %d", rec.Code)
	}
}

func TestRequireAllDeniesOnMissingPermission(t *testing.T) {
	guard, repo := guardFixture(t)
	repo.profiles[7] = Profile{UserID: 7, Role: RoleAdmin, IsActive: true}

	rec := doGuarded(guard.RequireAll(PermEditUsers, PermManageRoles), &shared.Principal{UserID: 7})
	if rec.Code != http.StatusForbidden {
		t.Fatalf("admin lacks manage-roles, expected 403, got %d", rec.Code)
	}
}

func TestRequireAllPassesWhenAllHeld(t *testing.T) {
	guard, repo := guardFixture(t)
	repo.profiles[7] = Profile{UserID: 7, Role: RoleSuperAdmin, IsActive: true}

	rec := doGuarded(guard.RequireAll(PermEditUsers, PermManageRoles), &shared.Principal{UserID: 7})
	if rec.Code != http.StatusNoContent {
		t.Fatalf("super admin holds both, expected pass, got %d", rec.Code)
	}
}

func TestGuardResolverErrorIsServerError(t *testing.T) {
	guard, repo := guardFixture(t)
	repo.profileErr = errors.New("store down")

	rec := doGuarded(guard.RequireAny(PermEditUsers), &shared.Principal{UserID: 7})
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("a failed check must not pass as deny-with-403 nor allow, got %d", rec.Code)
	}
}

func TestGuardUnknownUserDenied(t *testing.T) {
	guard, _ := guardFixture(t)
	rec := doGuarded(guard.RequireAny(PermEditUsers), &shared.Principal{UserID: 999})
	if rec.Code != http.StatusForbidden {
		t.Fatalf("unknown user must be denied, got %d", rec.Code)
	}
}
