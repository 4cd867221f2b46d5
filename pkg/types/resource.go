package types

import (
	"fmt"
	"time"
)

// ResourceKind identifies a managed resource type
type ResourceKind string

const (
	KindServer         ResourceKind = "Server"
	KindDeployment     ResourceKind = "Deployment"
	KindStack          ResourceKind = "Stack"
	KindBuild          ResourceKind = "Build"
	KindRepo           ResourceKind = "Repo"
	KindProcedure      ResourceKind = "Procedure"
	KindAction         ResourceKind = "Action"
	KindResourceSync   ResourceKind = "ResourceSync"
	KindBuilder        ResourceKind = "Builder"
	KindAlerter        ResourceKind = "Alerter"
	KindServerTemplate ResourceKind = "ServerTemplate"
)

// AllResourceKinds lists every kind in sync execution order.
// Earlier kinds never depend on later ones.
var AllResourceKinds = []ResourceKind{
	KindResourceSync,
	KindServerTemplate,
	KindServer,
	KindAlerter,
	KindAction,
	KindBuilder,
	KindRepo,
	KindBuild,
	KindDeployment,
	KindStack,
	KindProcedure,
}

// ResourceTarget names one resource: a kind plus its id.
type ResourceTarget struct {
	Type ResourceKind `json:"type" toml:"type"`
	ID   string       `json:"id" toml:"id"`
}

func (t ResourceTarget) String() string {
	return fmt.Sprintf("%s:%s", t.Type, t.ID)
}

// IsZero reports whether the target is unset.
func (t ResourceTarget) IsZero() bool {
	return t.Type == "" && t.ID == ""
}

// SystemTarget marks updates not tied to a single resource.
func SystemTarget() ResourceTarget {
	return ResourceTarget{Type: "System", ID: "system"}
}

// PermissionLevel orders what a user may do with a resource
type PermissionLevel string

const (
	PermissionNone    PermissionLevel = "None"
	PermissionRead    PermissionLevel = "Read"
	PermissionExecute PermissionLevel = "Execute"
	PermissionWrite   PermissionLevel = "Write"
)

var permissionRank = map[PermissionLevel]int{
	PermissionNone:    0,
	PermissionRead:    1,
	PermissionExecute: 2,
	PermissionWrite:   3,
}

// Satisfies reports whether level grants at least required.
func (l PermissionLevel) Satisfies(required PermissionLevel) bool {
	return permissionRank[l] >= permissionRank[required]
}

// Max returns the higher of two levels.
func (l PermissionLevel) Max(other PermissionLevel) PermissionLevel {
	if permissionRank[other] > permissionRank[l] {
		return other
	}
	return l
}

// Resource is the generic container for every managed kind. Config is
// user-editable; Info is derived and overwritten by background refresh.
type Resource[C any, I any] struct {
	ID             string          `json:"id"`
	Name           string          `json:"name"`
	Description    string          `json:"description,omitempty"`
	Tags           []string        `json:"tags,omitempty"` // tag ids; rendered as names in TOML
	Config         C               `json:"config"`
	Info           I               `json:"info"`
	BasePermission PermissionLevel `json:"base_permission,omitempty"`
	UpdatedAt      time.Time       `json:"updated_at"`
}

// Target returns the resource's target for the given kind.
func (r *Resource[C, I]) Target(kind ResourceKind) ResourceTarget {
	return ResourceTarget{Type: kind, ID: r.ID}
}

// Concrete resource kinds.
type (
	Server         = Resource[ServerConfig, ServerInfo]
	Deployment     = Resource[DeploymentConfig, DeploymentInfo]
	Stack          = Resource[StackConfig, StackInfo]
	Build          = Resource[BuildConfig, BuildInfo]
	Repo           = Resource[RepoConfig, RepoInfo]
	Procedure      = Resource[ProcedureConfig, NoInfo]
	Action         = Resource[ActionConfig, ActionInfo]
	ResourceSync   = Resource[SyncConfig, SyncInfo]
	Builder        = Resource[BuilderConfig, NoInfo]
	Alerter        = Resource[AlerterConfig, NoInfo]
	ServerTemplate = Resource[ServerTemplateConfig, NoInfo]
)

// NoInfo is the derived state of kinds that have none.
type NoInfo struct{}
