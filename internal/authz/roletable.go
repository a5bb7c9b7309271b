package authz

import "sync"

// DefaultRolePermissions seeds the role table. The table is mutable at runtime
// through SetRolePermissions; these are the values a fresh deployment starts with.
func DefaultRolePermissions() map[Role][]Permission {
	return map[Role][]Permission{
		RoleUser: {
			PermCreatePost,
			PermEditOwnPost,
			PermDeleteOwnPost,
		},
		RoleModerator: {
			PermCreatePost,
			PermEditOwnPost,
			PermDeleteOwnPost,
			PermPublishPost,
			PermSchedulePost,
			PermEditAnyPost,
			PermDeleteAnyPost,
		},
		RoleAdmin: {
			PermCreatePost,
			PermEditOwnPost,
			PermDeleteOwnPost,
			PermPublishPost,
			PermSchedulePost,
			PermEditAnyPost,
			PermDeleteAnyPost,
			PermEditUsers,
			PermSuspendUsers,
			PermViewAuditLog,
		},
		RoleSuperAdmin: {
			PermCreatePost,
			PermEditOwnPost,
			PermDeleteOwnPost,
			PermPublishPost,
			PermSchedulePost,
			PermEditAnyPost,
			PermDeleteAnyPost,
			PermEditUsers,
			PermSuspendUsers,
			PermViewAuditLog,
			PermManageRoles,
			PermDeleteUsers,
		},
	}
}

// RoleTable maps each role to the permissions it carries. Reads dominate;
// the bulk-edit path replaces one role's entry wholesale. Concurrent writers
// of the same role are last-writer-wins.
type RoleTable struct {
	mu    sync.RWMutex
	table map[Role]PermissionSet
}

// NewRoleTable builds a table from the given mapping.
func NewRoleTable(seed map[Role][]Permission) *RoleTable {
	table := make(map[Role]PermissionSet, len(seed))
	for role, perms := range seed {
		table[role] = NewPermissionSet(perms...)
	}
	return &RoleTable{table: table}
}

// PermissionsFor returns a copy of the permission set carried by the role.
func (t *RoleTable) PermissionsFor(role Role) PermissionSet {
	t.mu.RLock()
	defer t.mu.RUnlock()
	set, ok := t.table[role]
	if !ok {
		return PermissionSet{}
	}
	return set.Clone()
}

// Replace swaps the entry for one role with the given permissions.
func (t *RoleTable) Replace(role Role, perms []Permission) {
	set := NewPermissionSet(perms...)
	t.mu.Lock()
	t.table[role] = set
	t.mu.Unlock()
}

// Snapshot returns a copy of the whole table for UI rendering.
func (t *RoleTable) Snapshot() map[Role][]Permission {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make(map[Role][]Permission, len(t.table))
	for role, set := range t.table {
		out[role] = set.List()
	}
	return out
}
