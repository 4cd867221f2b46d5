package types

import "time"

// User is an operator identity. The core does not manage sessions; it
// records who initiated each update and checks permission levels.
type User struct {
	ID        string    `json:"id"`
	Username  string    `json:"username"`
	Admin     bool      `json:"admin,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// SyncUserID is the synthetic identity sync executions and post-build
// fan-out run under. It bypasses permission checks.
const SyncUserID = "sync"

// UserTargetKind discriminates who a permission binds
type UserTargetKind string

const (
	UserTargetUser  UserTargetKind = "User"
	UserTargetGroup UserTargetKind = "UserGroup"
)

// UserTarget names a user or user group.
type UserTarget struct {
	Type UserTargetKind `json:"type"`
	ID   string         `json:"id"`
}

// Permission grants a level on one resource to one user target.
type Permission struct {
	UserTarget UserTarget      `json:"user_target"`
	Resource   ResourceTarget  `json:"resource"`
	Level      PermissionLevel `json:"level"`
}

// PermissionToml is the TOML rendering used in user_group blocks; the
// target id holds a resource name or a \regex\ expanded at sync time.
type PermissionToml struct {
	Target ResourceTarget  `json:"target" toml:"target"`
	Level  PermissionLevel `json:"level" toml:"level"`
}

// UserGroup names a set of users granted shared permissions.
type UserGroup struct {
	ID          string           `json:"id"`
	Name        string           `json:"name"`
	Users       []string         `json:"users,omitempty"` // user ids
	Permissions []PermissionToml `json:"permissions,omitempty"`
	UpdatedAt   time.Time        `json:"updated_at"`
}

// Variable is a non-secret interpolation source, managed in the DB.
// Secrets come from core config and never leave the process unredacted.
type Variable struct {
	Name        string `json:"name" toml:"name"`
	Description string `json:"description,omitempty" toml:"description,omitempty"`
	Value       string `json:"value,omitempty" toml:"value,omitempty"`
	IsSecret    bool   `json:"is_secret,omitempty" toml:"is_secret,omitempty"`
}

// Tag labels resources for filtering and sync scoping.
type Tag struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}
