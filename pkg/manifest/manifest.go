// Package manifest is the TOML codec for declarative resource files:
// parsing resource sets, projecting sparse configs onto defaults,
// minimizing configs for export, diffing, and rewriting linked ids to
// names and back.
package manifest

import (
	"fmt"

	"github.com/pelletier/go-toml/v2"

	"github.com/komodohq/komodo/pkg/types"
)

// ResourceToml is one [[kind]] block. Config stays a raw map until it is
// projected onto the kind's defaults, so absent fields revert to default
// values rather than zero values.
type ResourceToml struct {
	Name        string         `toml:"name" json:"name"`
	Description string         `toml:"description,omitempty" json:"description,omitempty"`
	Tags        []string       `toml:"tags,omitempty" json:"tags,omitempty"`
	Deploy      bool           `toml:"deploy,omitempty" json:"deploy,omitempty"`
	After       []string       `toml:"after,omitempty" json:"after,omitempty"`
	Config      map[string]any `toml:"config,omitempty" json:"config,omitempty"`
}

// UserGroupToml is one [[user_group]] block.
type UserGroupToml struct {
	Name        string                 `toml:"name" json:"name"`
	Users       []string               `toml:"users,omitempty" json:"users,omitempty"`
	Permissions []types.PermissionToml `toml:"permissions,omitempty" json:"permissions,omitempty"`
}

// ResourcesToml is a full parsed resource set.
type ResourcesToml struct {
	Servers         []ResourceToml   `toml:"server,omitempty"`
	Deployments     []ResourceToml   `toml:"deployment,omitempty"`
	Stacks          []ResourceToml   `toml:"stack,omitempty"`
	Builds          []ResourceToml   `toml:"build,omitempty"`
	Repos           []ResourceToml   `toml:"repo,omitempty"`
	Procedures      []ResourceToml   `toml:"procedure,omitempty"`
	Actions         []ResourceToml   `toml:"action,omitempty"`
	Builders        []ResourceToml   `toml:"builder,omitempty"`
	Alerters        []ResourceToml   `toml:"alerter,omitempty"`
	ServerTemplates []ResourceToml   `toml:"server_template,omitempty"`
	ResourceSyncs   []ResourceToml   `toml:"resource_sync,omitempty"`
	Variables       []types.Variable `toml:"variable,omitempty"`
	UserGroups      []UserGroupToml  `toml:"user_group,omitempty"`
}

// Parse decodes one TOML document.
func Parse(data []byte) (*ResourcesToml, error) {
	var out ResourcesToml
	if err := toml.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("failed to parse resource toml: %w", err)
	}
	return &out, nil
}

// Serialize encodes a resource set back to TOML.
func Serialize(r *ResourcesToml) ([]byte, error) {
	data, err := toml.Marshal(r)
	if err != nil {
		return nil, fmt.Errorf("failed to serialize resource toml: %w", err)
	}
	return data, nil
}

// Merge appends other's resources onto r. Multi-file sources merge in
// file order.
func (r *ResourcesToml) Merge(other *ResourcesToml) {
	r.Servers = append(r.Servers, other.Servers...)
	r.Deployments = append(r.Deployments, other.Deployments...)
	r.Stacks = append(r.Stacks, other.Stacks...)
	r.Builds = append(r.Builds, other.Builds...)
	r.Repos = append(r.Repos, other.Repos...)
	r.Procedures = append(r.Procedures, other.Procedures...)
	r.Actions = append(r.Actions, other.Actions...)
	r.Builders = append(r.Builders, other.Builders...)
	r.Alerters = append(r.Alerters, other.Alerters...)
	r.ServerTemplates = append(r.ServerTemplates, other.ServerTemplates...)
	r.ResourceSyncs = append(r.ResourceSyncs, other.ResourceSyncs...)
	r.Variables = append(r.Variables, other.Variables...)
	r.UserGroups = append(r.UserGroups, other.UserGroups...)
}

// ByKind returns the blocks for one resource kind.
func (r *ResourcesToml) ByKind(kind types.ResourceKind) []ResourceToml {
	switch kind {
	case types.KindServer:
		return r.Servers
	case types.KindDeployment:
		return r.Deployments
	case types.KindStack:
		return r.Stacks
	case types.KindBuild:
		return r.Builds
	case types.KindRepo:
		return r.Repos
	case types.KindProcedure:
		return r.Procedures
	case types.KindAction:
		return r.Actions
	case types.KindBuilder:
		return r.Builders
	case types.KindAlerter:
		return r.Alerters
	case types.KindServerTemplate:
		return r.ServerTemplates
	case types.KindResourceSync:
		return r.ResourceSyncs
	default:
		return nil
	}
}
