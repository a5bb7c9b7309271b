package authz

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/sentra-auth/sentra/internal/shared"
)

// Role is a named bundle of permissions assigned to a user.
type Role string

// The closed set of roles. Unknown identifiers are rejected at the boundary.
const (
	RoleUser       Role = "user"
	RoleModerator  Role = "moderator"
	RoleAdmin      Role = "admin"
	RoleSuperAdmin Role = "super_admin"
)

// Permission is an atomic capability token.
type Permission string

// The closed permission catalogue.
const (
	PermEditUsers    Permission = "edit-users"
	PermManageRoles  Permission = "manage-roles"
	PermSuspendUsers Permission = "suspend-users"
	PermDeleteUsers  Permission = "delete-users"
	PermViewAuditLog Permission = "view-audit-log"

	PermCreatePost    Permission = "create-post"
	PermPublishPost   Permission = "publish-post"
	PermSchedulePost  Permission = "schedule-post"
	PermEditOwnPost   Permission = "edit-own-post"
	PermEditAnyPost   Permission = "edit-any-post"
	PermDeleteOwnPost Permission = "delete-own-post"
	PermDeleteAnyPost Permission = "delete-any-post"
)

var knownRoles = map[Role]struct{}{
	RoleUser:       {},
	RoleModerator:  {},
	RoleAdmin:      {},
	RoleSuperAdmin: {},
}

var knownPermissions = map[Permission]struct{}{
	PermEditUsers:     {},
	PermManageRoles:   {},
	PermSuspendUsers:  {},
	PermDeleteUsers:   {},
	PermViewAuditLog:  {},
	PermCreatePost:    {},
	PermPublishPost:   {},
	PermSchedulePost:  {},
	PermEditOwnPost:   {},
	PermEditAnyPost:   {},
	PermDeleteOwnPost: {},
	PermDeleteAnyPost: {},
}

// ParseRole validates a role identifier.
func ParseRole(raw string) (Role, error) {
	role := Role(strings.TrimSpace(strings.ToLower(raw)))
	if _, ok := knownRoles[role]; !ok {
		return "", fmt.Errorf("%w: unknown role %q", shared.ErrValidation, raw)
	}
	return role, nil
}

// ParsePermission validates a permission identifier.
func ParsePermission(raw string) (Permission, error) {
	perm := Permission(strings.TrimSpace(strings.ToLower(raw)))
	if _, ok := knownPermissions[perm]; !ok {
		return "", fmt.Errorf("%w: unknown permission %q", shared.ErrValidation, raw)
	}
	return perm, nil
}

// Valid reports whether the role is part of the catalogue.
func (r Role) Valid() bool {
	_, ok := knownRoles[r]
	return ok
}

// Valid reports whether the permission is part of the catalogue.
func (p Permission) Valid() bool {
	_, ok := knownPermissions[p]
	return ok
}

// Roles returns the role catalogue.
func Roles() []Role {
	return []Role{RoleUser, RoleModerator, RoleAdmin, RoleSuperAdmin}
}

// Permissions returns the permission catalogue sorted by name.
func Permissions() []Permission {
	perms := make([]Permission, 0, len(knownPermissions))
	for p := range knownPermissions {
		perms = append(perms, p)
	}
	sort.Slice(perms, func(i, j int) bool { return perms[i] < perms[j] })
	return perms
}

// PermissionSet is a membership set over the permission catalogue.
type PermissionSet map[Permission]struct{}

// NewPermissionSet builds a set from the given permissions.
func NewPermissionSet(perms ...Permission) PermissionSet {
	set := make(PermissionSet, len(perms))
	for _, p := range perms {
		set[p] = struct{}{}
	}
	return set
}

// Has reports membership.
func (s PermissionSet) Has(perm Permission) bool {
	_, ok := s[perm]
	return ok
}

// Add inserts a permission.
func (s PermissionSet) Add(perm Permission) {
	s[perm] = struct{}{}
}

// Clone returns an independent copy of the set.
func (s PermissionSet) Clone() PermissionSet {
	clone := make(PermissionSet, len(s))
	for p := range s {
		clone[p] = struct{}{}
	}
	return clone
}

// List returns the members sorted by name.
func (s PermissionSet) List() []Permission {
	perms := make([]Permission, 0, len(s))
	for p := range s {
		perms = append(perms, p)
	}
	sort.Slice(perms, func(i, j int) bool { return perms[i] < perms[j] })
	return perms
}

// ExplicitGrant assigns a permission to one user independent of role.
// A grant whose expiry has passed is inert but stays persisted for audit history.
type ExplicitGrant struct {
	UserID     int64
	Permission Permission
	GrantedBy  int64
	GrantedAt  time.Time
	ExpiresAt  *time.Time
}

// Active reports whether the grant counts as held at the given instant.
func (g ExplicitGrant) Active(now time.Time) bool {
	return g.ExpiresAt == nil || g.ExpiresAt.After(now)
}

// Profile is the slice of a user row the resolver needs.
type Profile struct {
	UserID   int64
	Role     Role
	IsActive bool
}
