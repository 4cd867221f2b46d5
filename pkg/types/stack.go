package types

import "time"

// SystemCommand is a shell command run from a working directory.
type SystemCommand struct {
	Path    string `json:"path,omitempty" toml:"path,omitempty"`
	Command string `json:"command,omitempty" toml:"command,omitempty"`
}

// IsNone reports whether no command is configured.
func (c SystemCommand) IsNone() bool {
	return c.Command == ""
}

// FileContents pairs a file path with its contents. Also used for
// per-path remote errors, with the error text in Contents.
type FileContents struct {
	Path     string `json:"path"`
	Contents string `json:"contents"`
}

// StackService is one service parsed out of a compose file.
type StackService struct {
	Service string `json:"service"`
	Image   string `json:"image,omitempty"`
}

// StackConfig drives a docker compose project on one server. Compose
// files come from exactly one of: inline FileContents, files already on
// the host, or a git repo.
type StackConfig struct {
	ServerID           string        `json:"server_id" toml:"server_id"`
	ProjectName        string        `json:"project_name,omitempty" toml:"project_name,omitempty"`
	RunDirectory       string        `json:"run_directory,omitempty" toml:"run_directory,omitempty"`
	FilePaths          []string      `json:"file_paths,omitempty" toml:"file_paths,omitempty"`
	FilesOnHost        bool          `json:"files_on_host,omitempty" toml:"files_on_host,omitempty"`
	FileContents       string        `json:"file_contents,omitempty" toml:"file_contents,omitempty"`
	Repo               string        `json:"repo,omitempty" toml:"repo,omitempty"`
	Branch             string        `json:"branch,omitempty" toml:"branch,omitempty"`
	Commit             string        `json:"commit,omitempty" toml:"commit,omitempty"`
	GitProvider        string        `json:"git_provider,omitempty" toml:"git_provider,omitempty"`
	GitAccount         string        `json:"git_account,omitempty" toml:"git_account,omitempty"`
	RegistryProvider   string        `json:"registry_provider,omitempty" toml:"registry_provider,omitempty"`
	RegistryAccount    string        `json:"registry_account,omitempty" toml:"registry_account,omitempty"`
	ExtraArgs          []string      `json:"extra_args,omitempty" toml:"extra_args,omitempty"`
	BuildExtraArgs     []string      `json:"build_extra_args,omitempty" toml:"build_extra_args,omitempty"`
	PreDeploy          SystemCommand `json:"pre_deploy,omitempty" toml:"pre_deploy,omitempty"`
	Environment        string        `json:"environment,omitempty" toml:"environment,omitempty"`
	EnvFilePath        string        `json:"env_file_path,omitempty" toml:"env_file_path,omitempty"`
	AdditionalEnvFiles []string      `json:"additional_env_files,omitempty" toml:"additional_env_files,omitempty"`
	SkipSecretInterp   bool          `json:"skip_secret_interp,omitempty" toml:"skip_secret_interp,omitempty"`
	IgnoreServices     []string      `json:"ignore_services,omitempty" toml:"ignore_services,omitempty"`
	WebhookEnabled     bool          `json:"webhook_enabled,omitempty" toml:"webhook_enabled,omitempty"`
	WebhookSecret      string        `json:"webhook_secret,omitempty" toml:"webhook_secret,omitempty"`
}

// StackInfo is derived state. Deployed fields reflect the last
// successful DeployStack and are authoritative over current config when
// deciding which compose project to tear down.
type StackInfo struct {
	MissingFiles        []string       `json:"missing_files,omitempty"`
	DeployedProjectName string         `json:"deployed_project_name,omitempty"`
	DeployedHash        string         `json:"deployed_hash,omitempty"`
	DeployedMessage     string         `json:"deployed_message,omitempty"`
	DeployedContents    []FileContents `json:"deployed_contents,omitempty"`
	DeployedServices    []StackService `json:"deployed_services,omitempty"`
	LatestServices      []StackService `json:"latest_services,omitempty"`
	RemoteContents      []FileContents `json:"remote_contents,omitempty"`
	RemoteErrors        []FileContents `json:"remote_errors,omitempty"`
	LatestHash          string         `json:"latest_hash,omitempty"`
	LatestMessage       string         `json:"latest_message,omitempty"`
	LastDeployedAt      time.Time      `json:"last_deployed_at,omitempty"`
}

// StackProjectName returns the compose project name for the stack, preferring
// the configured override, then the last deployed name, then the stack name.
func StackProjectName(s *Stack, fallbackDeployed bool) string {
	if s.Config.ProjectName != "" {
		return s.Config.ProjectName
	}
	if fallbackDeployed && s.Info.DeployedProjectName != "" {
		return s.Info.DeployedProjectName
	}
	return s.Name
}

// DefaultStackConfig returns the config a fresh stack starts from.
func DefaultStackConfig() StackConfig {
	return StackConfig{
		RunDirectory:   ".",
		FilePaths:      []string{"compose.yaml"},
		Branch:         "main",
		WebhookEnabled: true,
	}
}
