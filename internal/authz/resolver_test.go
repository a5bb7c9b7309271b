package authz

import (
	"context"
	"errors"
	"sort"
	"testing"
	"time"

	"github.com/sentra-auth/sentra/internal/shared"
	_ "github.com/sentra-auth/sentra/testing"
)

// stubRepo is an in-memory Repository shared by the resolver and manager tests.
type stubRepo struct {
	profiles  map[int64]Profile
	grants    map[int64][]ExplicitGrant
	overrides map[Role][]Permission

	profileErr error
	grantsErr  error
	upsertErr  error

	profileCalls int
	grantCalls   int
}

func newStubRepo() *stubRepo {
	return &stubRepo{
		profiles:  make(map[int64]Profile),
		grants:    make(map[int64][]ExplicitGrant),
		overrides: make(map[Role][]Permission),
	}
}

func (s *stubRepo) GetProfile(_ context.Context, userID int64) (Profile, error) {
	s.profileCalls++
	if s.profileErr != nil {
		return Profile{}, s.profileErr
	}
	profile, ok := s.profiles[userID]
	if !ok {
		return Profile{}, shared.ErrNotFound
	}
	return profile, nil
}

func (s *stubRepo) ListGrants(_ context.Context, userID int64) ([]ExplicitGrant, error) {
	s.grantCalls++
	if s.grantsErr != nil {
		return nil, s.grantsErr
	}
	return s.grants[userID], nil
}

func (s *stubRepo) UpsertGrant(_ context.Context, grant ExplicitGrant) error {
	if s.upsertErr != nil {
		return s.upsertErr
	}
	existing := s.grants[grant.UserID]
	for i, g := range existing {
		if g.Permission == grant.Permission {
			existing[i] = grant
			return nil
		}
	}
	s.grants[grant.UserID] = append(existing, grant)
	return nil
}

func (s *stubRepo) DeleteGrants(_ context.Context, userID int64, perm Permission) (int64, error) {
	var (
		kept    []ExplicitGrant
		removed int64
	)
	for _, g := range s.grants[userID] {
		if g.Permission == perm {
			removed++
			continue
		}
		kept = append(kept, g)
	}
	s.grants[userID] = kept
	return removed, nil
}

func (s *stubRepo) ListRoleOverrides(_ context.Context) (map[Role][]Permission, error) {
	return s.overrides, nil
}

func (s *stubRepo) ReplaceRoleOverride(_ context.Context, role Role, perms []Permission) error {
	s.overrides[role] = append([]Permission(nil), perms...)
	return nil
}

var _ Repository = (*stubRepo)(nil)

func newTestResolver(repo Repository) *Resolver {
	table := NewRoleTable(DefaultRolePermissions())
	cache := NewCache(DefaultCacheSize, time.Minute, nil)
	return NewResolver(repo, table, cache, nil, nil)
}

func TestResolverUnionsRoleAndGrants(t *testing.T) {
	repo := newStubRepo()
	repo.profiles[7] = Profile{UserID: 7, Role: RoleUser, IsActive: true}
	repo.grants[7] = []ExplicitGrant{{UserID: 7, Permission: PermPublishPost}}

	resolver := newTestResolver(repo)
	ctx := context.Background()

	ok, err := resolver.HasPermission(ctx, 7, PermPublishPost)
	if err != nil || !ok {
		t.Fatalf("explicit grant should be held, ok=%v err=%v", ok, err)
	}
	ok, err = resolver.HasPermission(ctx, 7, PermCreatePost)
	if err != nil || !ok {
		t.Fatalf("role permission should be held, ok=%v err=%v", ok, err)
	}
	ok, err = resolver.HasPermission(ctx, 7, PermDeleteAnyPost)
	if err != nil || ok {
		t.Fatalf("unrelated permission must be denied, ok=%v err=%v", ok, err)
	}

	perms, err := resolver.UserPermissions(ctx, 7)
	if err != nil {
		t.Fatalf("user permissions: %v", err)
	}
	if !sort.SliceIsSorted(perms, func(i, j int) bool { return perms[i] < perms[j] }) {
		t.Fatalf("expected sorted permission list, got %v", perms)
	}
}

func TestResolverExpiredGrantIsInert(t *testing.T) {
	repo := newStubRepo()
	repo.profiles[7] = Profile{UserID: 7, Role: RoleUser, IsActive: true}
	expired := time.Now().Add(-24 * time.Hour)
	repo.grants[7] = []ExplicitGrant{{UserID: 7, Permission: PermDeleteAnyPost, ExpiresAt: &expired}}

	resolver := newTestResolver(repo)
	ok, err := resolver.HasPermission(context.Background(), 7, PermDeleteAnyPost)
	if err != nil {
		t.Fatalf("has permission: %v", err)
	}
	if ok {
		t.Fatalf("expired grant must never be held")
	}
}

func TestResolverUnknownUserDeniedNotCached(t *testing.T) {
	repo := newStubRepo()
	resolver := newTestResolver(repo)
	ctx := context.Background()

	ok, err := resolver.HasPermission(ctx, 42, PermCreatePost)
	if err != nil {
		t.Fatalf("unknown user must not be an error, got %v", err)
	}
	if ok {
		t.Fatalf("unknown user must hold nothing")
	}

	// The user appears; a fresh check must see them immediately.
	repo.profiles[42] = Profile{UserID: 42, Role: RoleUser, IsActive: true}
	ok, err = resolver.HasPermission(ctx, 42, PermCreatePost)
	if err != nil || !ok {
		t.Fatalf("newly created user should resolve immediately, ok=%v err=%v", ok, err)
	}
}

func TestResolverSuspendedUserHoldsNothing(t *testing.T) {
	repo := newStubRepo()
	repo.profiles[7] = Profile{UserID: 7, Role: RoleAdmin, IsActive: false}
	repo.grants[7] = []ExplicitGrant{{UserID: 7, Permission: PermPublishPost}}

	resolver := newTestResolver(repo)
	ctx := context.Background()

	ok, err := resolver.HasPermission(ctx, 7, PermEditUsers)
	if err != nil || ok {
		t.Fatalf("suspended admin must hold nothing, ok=%v err=%v", ok, err)
	}
	ok, err = resolver.HasPermission(ctx, 7, PermPublishPost)
	if err != nil || ok {
		t.Fatalf("explicit grants are inert while suspended, ok=%v err=%v", ok, err)
	}

	// Reactivation plus the invalidate that accompanies it restores access.
	repo.profiles[7] = Profile{UserID: 7, Role: RoleAdmin, IsActive: true}
	resolver.Invalidate(7)
	ok, err = resolver.HasPermission(ctx, 7, PermEditUsers)
	if err != nil || !ok {
		t.Fatalf("reactivated admin should resolve immediately, ok=%v err=%v", ok, err)
	}
}

func TestResolverStoreErrorPropagates(t *testing.T) {
	repo := newStubRepo()
	storeErr := errors.New("connection refused")
	repo.profileErr = storeErr

	resolver := newTestResolver(repo)
	if _, err := resolver.HasPermission(context.Background(), 7, PermCreatePost); !errors.Is(err, storeErr) {
		t.Fatalf("expected store error to propagate, got %v", err)
	}
}

func TestResolverCachesAcrossCalls(t *testing.T) {
	repo := newStubRepo()
	repo.profiles[7] = Profile{UserID: 7, Role: RoleAdmin, IsActive: true}

	resolver := newTestResolver(repo)
	ctx := context.Background()

	if _, err := resolver.HasPermission(ctx, 7, PermEditUsers); err != nil {
		t.Fatalf("first check: %v", err)
	}
	if _, err := resolver.UserPermissions(ctx, 7); err != nil {
		t.Fatalf("second check: %v", err)
	}
	if _, err := resolver.HasPermission(ctx, 7, PermManageRoles); err != nil {
		t.Fatalf("third check: %v", err)
	}

	if repo.profileCalls != 1 {
		t.Fatalf("expected 1 store round-trip, got %d", repo.profileCalls)
	}

	resolver.Invalidate(7)
	if _, err := resolver.HasPermission(ctx, 7, PermEditUsers); err != nil {
		t.Fatalf("post-invalidate check: %v", err)
	}
	if repo.profileCalls != 2 {
		t.Fatalf("expected re-resolution after invalidate, got %d calls", repo.profileCalls)
	}
}

func TestResolverRoleEditVisibleAfterPurge(t *testing.T) {
	repo := newStubRepo()
	repo.profiles[7] = Profile{UserID: 7, Role: RoleModerator, IsActive: true}

	table := NewRoleTable(DefaultRolePermissions())
	cache := NewCache(DefaultCacheSize, time.Minute, nil)
	resolver := NewResolver(repo, table, cache, nil, nil)
	ctx := context.Background()

	ok, err := resolver.HasPermission(ctx, 7, PermDeleteAnyPost)
	if err != nil || !ok {
		t.Fatalf("moderator should start with delete-any-post, ok=%v err=%v", ok, err)
	}

	table.Replace(RoleModerator, []Permission{PermCreatePost})
	cache.Purge()

	ok, err = resolver.HasPermission(ctx, 7, PermDeleteAnyPost)
	if err != nil {
		t.Fatalf("re-check: %v", err)
	}
	if ok {
		t.Fatalf("role edit must be visible once the cache is purged")
	}
}
