package types

import "time"

// SyncConfig declares where a resource sync reads its TOML from and
// which resources it owns. Exactly one source applies: inline
// FileContents, files on the core host, or a git repo.
type SyncConfig struct {
	FileContents string   `json:"file_contents,omitempty" toml:"file_contents,omitempty"`
	FilesOnHost  bool     `json:"files_on_host,omitempty" toml:"files_on_host,omitempty"`
	ResourcePath []string `json:"resource_path,omitempty" toml:"resource_path,omitempty"`
	Repo         string   `json:"repo,omitempty" toml:"repo,omitempty"`
	Branch       string   `json:"branch,omitempty" toml:"branch,omitempty"`
	Commit       string   `json:"commit,omitempty" toml:"commit,omitempty"`
	GitProvider  string   `json:"git_provider,omitempty" toml:"git_provider,omitempty"`
	GitAccount   string   `json:"git_account,omitempty" toml:"git_account,omitempty"`
	// Managed means the sync owns the listed resources; unmatched DB
	// resources of a matched kind are deleted. Delete forces the same
	// behavior without full management.
	Managed bool `json:"managed,omitempty" toml:"managed,omitempty"`
	Delete  bool `json:"delete,omitempty" toml:"delete,omitempty"`
	// MatchTags restricts the sync to resources carrying every listed tag.
	MatchTags []string `json:"match_tags,omitempty" toml:"match_tags,omitempty"`
	// MatchResourceType restricts the sync to one resource kind.
	MatchResourceType ResourceKind `json:"match_resource_type,omitempty" toml:"match_resource_type,omitempty"`
	// MatchResources restricts the sync to the named resources.
	MatchResources []string `json:"match_resources,omitempty" toml:"match_resources,omitempty"`
	WebhookEnabled bool     `json:"webhook_enabled,omitempty" toml:"webhook_enabled,omitempty"`
	WebhookSecret  string   `json:"webhook_secret,omitempty" toml:"webhook_secret,omitempty"`
}

// SyncKindSummary counts the pending changes for one resource kind.
type SyncKindSummary struct {
	Kind     ResourceKind `json:"kind"`
	ToCreate int          `json:"to_create,omitempty"`
	ToUpdate int          `json:"to_update,omitempty"`
	ToDelete int          `json:"to_delete,omitempty"`
}

// SyncInfo is derived sync state, refreshed without executing.
type SyncInfo struct {
	LastSyncTS      time.Time         `json:"last_sync_ts,omitempty"`
	LastSyncHash    string            `json:"last_sync_hash,omitempty"`
	LastSyncMessage string            `json:"last_sync_message,omitempty"`
	PendingHash     string            `json:"pending_hash,omitempty"`
	PendingMessage  string            `json:"pending_message,omitempty"`
	PendingError    string            `json:"pending_error,omitempty"`
	Pending         []SyncKindSummary `json:"pending,omitempty"`
	PendingDeploys  []string          `json:"pending_deploys,omitempty"`
	RemoteContents  []FileContents    `json:"remote_contents,omitempty"`
	RemoteErrors    []FileContents    `json:"remote_errors,omitempty"`
}

// DefaultSyncConfig returns the config a fresh resource sync starts from.
func DefaultSyncConfig() SyncConfig {
	return SyncConfig{
		Branch:         "main",
		ResourcePath:   []string{"resources"},
		WebhookEnabled: true,
	}
}
