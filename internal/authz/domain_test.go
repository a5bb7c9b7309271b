package authz

import (
	"errors"
	"testing"
	"time"

	"github.com/sentra-auth/sentra/internal/shared"
)

func TestParseRole(t *testing.T) {
	role, err := ParseRole("  Moderator ")
	if err != nil {
		t.Fatalf("parse role: %v", err)
	}
	if role != RoleModerator {
		t.Fatalf("expected moderator, got %s", role)
	}

	if _, err := ParseRole("root"); !errors.Is(err, shared.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestParsePermission(t *testing.T) {
	perm, err := ParsePermission("publish-post")
	if err != nil {
		t.Fatalf("parse permission: %v", err)
	}
	if perm != PermPublishPost {
		t.Fatalf("expected publish-post, got %s", perm)
	}

	if _, err := ParsePermission("drop-tables"); !errors.Is(err, shared.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestGrantActive(t *testing.T) {
	now := time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC)

	unbounded := ExplicitGrant{Permission: PermPublishPost}
	if !unbounded.Active(now) {
		t.Fatalf("grant without expiry should be active")
	}

	future := now.Add(time.Hour)
	if !(ExplicitGrant{Permission: PermPublishPost, ExpiresAt: &future}).Active(now) {
		t.Fatalf("grant expiring in the future should be active")
	}

	past := now.Add(-time.Hour)
	if (ExplicitGrant{Permission: PermPublishPost, ExpiresAt: &past}).Active(now) {
		t.Fatalf("expired grant must be inert")
	}
}

func TestPermissionSetCloneIsIndependent(t *testing.T) {
	set := NewPermissionSet(PermCreatePost)
	clone := set.Clone()
	clone.Add(PermPublishPost)
	if set.Has(PermPublishPost) {
		t.Fatalf("clone mutation leaked into original")
	}
}

func TestRoleTableReplaceAndSnapshot(t *testing.T) {
	table := NewRoleTable(DefaultRolePermissions())

	table.Replace(RoleUser, []Permission{PermCreatePost})
	set := table.PermissionsFor(RoleUser)
	if len(set) != 1 || !set.Has(PermCreatePost) {
		t.Fatalf("expected only create-post, got %v", set.List())
	}

	// Returned sets are copies; mutating one must not alter the table.
	set.Add(PermDeleteUsers)
	if table.PermissionsFor(RoleUser).Has(PermDeleteUsers) {
		t.Fatalf("returned set aliases the table")
	}

	snapshot := table.Snapshot()
	if len(snapshot[RoleUser]) != 1 {
		t.Fatalf("snapshot mismatch: %v", snapshot[RoleUser])
	}

	if len(table.PermissionsFor(Role("ghost"))) != 0 {
		t.Fatalf("unknown role must carry no permissions")
	}
}
