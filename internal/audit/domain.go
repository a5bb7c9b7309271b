package audit

import "time"

// Record is one append-only administrative action entry. Records are never
// mutated or deleted by the writer; retention trimming is a worker concern.
type Record struct {
	ID         int64
	ActorID    int64
	Action     string
	TargetType string
	TargetID   string
	Details    map[string]any
	CreatedAt  time.Time
}

// Actions written by the authorization subsystem.
const (
	ActionGrantPermission  = "permission.grant"
	ActionRevokePermission = "permission.revoke"
	ActionSetRolePerms     = "role.permissions.replace"
	ActionSetUserRole      = "user.role.change"
	ActionSetUserStatus    = "user.status.change"
)

// Target types referenced by audit records.
const (
	TargetUser = "user"
	TargetRole = "role"
)
