package types

import "time"

// RepoConfig drives a git repo cloned onto a server via its periphery.
type RepoConfig struct {
	ServerID         string        `json:"server_id" toml:"server_id"`
	Repo             string        `json:"repo,omitempty" toml:"repo,omitempty"`
	Branch           string        `json:"branch,omitempty" toml:"branch,omitempty"`
	Commit           string        `json:"commit,omitempty" toml:"commit,omitempty"`
	GitProvider      string        `json:"git_provider,omitempty" toml:"git_provider,omitempty"`
	GitAccount       string        `json:"git_account,omitempty" toml:"git_account,omitempty"`
	Path             string        `json:"path,omitempty" toml:"path,omitempty"`
	OnClone          SystemCommand `json:"on_clone,omitempty" toml:"on_clone,omitempty"`
	OnPull           SystemCommand `json:"on_pull,omitempty" toml:"on_pull,omitempty"`
	Environment      string        `json:"environment,omitempty" toml:"environment,omitempty"`
	EnvFilePath      string        `json:"env_file_path,omitempty" toml:"env_file_path,omitempty"`
	SkipSecretInterp bool          `json:"skip_secret_interp,omitempty" toml:"skip_secret_interp,omitempty"`
	WebhookEnabled   bool          `json:"webhook_enabled,omitempty" toml:"webhook_enabled,omitempty"`
	WebhookSecret    string        `json:"webhook_secret,omitempty" toml:"webhook_secret,omitempty"`
}

// RepoInfo tracks the last observed clone or pull.
type RepoInfo struct {
	LastPulledAt  time.Time `json:"last_pulled_at,omitempty"`
	LatestHash    string    `json:"latest_hash,omitempty"`
	LatestMessage string    `json:"latest_message,omitempty"`
	EnvFilePath   string    `json:"env_file_path,omitempty"`
}

// DefaultRepoConfig returns the config a fresh repo starts from.
func DefaultRepoConfig() RepoConfig {
	return RepoConfig{
		Branch:         "main",
		WebhookEnabled: true,
	}
}
