// Package authz decides which actors may perform which key lifecycle
// actions. Checks are explicit: callers ask before acting, and a denial
// carries a reason suitable for logging and error responses.
package authz

// Role classifies an actor.
type Role string

// Roles known to the system.
const (
	RoleSchoolPersonnel Role = "school_personnel"
	RoleAdmin           Role = "admin"
	RoleSystem          Role = "system"
)

// Action is an operation subject to permission checks.
type Action string

// Actions subject to permission checks.
const (
	ActionIssueKey   Action = "issue_key"
	ActionRevokeKey  Action = "revoke_key"
	ActionExpireKeys Action = "expire_keys"
	ActionViewKey    Action = "view_key"
	ActionViewLogs   Action = "view_logs"
	ActionManage     Action = "manage"
)

// Actor is an authenticated principal.
type Actor struct {
	ID   string
	Role Role
	// SchoolID is set for school personnel and scopes what they may view.
	SchoolID string
}

// Decision is the result of a permission check.
type Decision struct {
	Allowed bool
	Reason  string
}

var rolePermissions = map[Role]map[Action]bool{
	RoleSchoolPersonnel: {
		ActionIssueKey: true,
		ActionViewKey:  true,
		ActionViewLogs: true,
	},
	RoleAdmin: {
		ActionRevokeKey:  true,
		ActionExpireKeys: true,
		ActionViewKey:    true,
		ActionViewLogs:   true,
		ActionManage:     true,
	},
	RoleSystem: {
		ActionExpireKeys: true,
	},
}

// Check reports whether actor may perform action. Unknown roles and unknown
// actions are denied.
func Check(actor Actor, action Action) Decision {
	perms, ok := rolePermissions[actor.Role]
	if !ok {
		return Decision{Reason: "unknown role " + string(actor.Role)}
	}
	if !perms[action] {
		return Decision{Reason: "role " + string(actor.Role) + " may not " + string(action)}
	}
	return Decision{Allowed: true}
}
