package types

import "time"

// ImageRegistryConfig names where a built image is pushed and under
// which account.
type ImageRegistryConfig struct {
	Domain       string `json:"domain,omitempty" toml:"domain,omitempty"`
	Account      string `json:"account,omitempty" toml:"account,omitempty"`
	Organization string `json:"organization,omitempty" toml:"organization,omitempty"`
}

// BuildConfig drives a docker image build on a builder.
type BuildConfig struct {
	BuilderID      string              `json:"builder_id" toml:"builder_id"`
	Version        Version             `json:"version" toml:"version"`
	ImageName      string              `json:"image_name,omitempty" toml:"image_name,omitempty"`
	ImageTag       string              `json:"image_tag,omitempty" toml:"image_tag,omitempty"`
	ImageRegistry  ImageRegistryConfig `json:"image_registry,omitempty" toml:"image_registry,omitempty"`
	Repo           string              `json:"repo,omitempty" toml:"repo,omitempty"`
	Branch         string              `json:"branch,omitempty" toml:"branch,omitempty"`
	Commit         string              `json:"commit,omitempty" toml:"commit,omitempty"`
	GitProvider    string              `json:"git_provider,omitempty" toml:"git_provider,omitempty"`
	GitAccount     string              `json:"git_account,omitempty" toml:"git_account,omitempty"`
	PreBuild       SystemCommand       `json:"pre_build,omitempty" toml:"pre_build,omitempty"`
	BuildPath      string              `json:"build_path,omitempty" toml:"build_path,omitempty"`
	DockerfilePath string              `json:"dockerfile_path,omitempty" toml:"dockerfile_path,omitempty"`
	ExtraArgs      []string            `json:"extra_args,omitempty" toml:"extra_args,omitempty"`
	BuildArgs      string              `json:"build_args,omitempty" toml:"build_args,omitempty"` // KEY=VALUE lines
	Labels         string              `json:"labels,omitempty" toml:"labels,omitempty"`         // KEY=VALUE lines
	SkipSecretInterp bool              `json:"skip_secret_interp,omitempty" toml:"skip_secret_interp,omitempty"`
	WebhookEnabled bool                `json:"webhook_enabled,omitempty" toml:"webhook_enabled,omitempty"`
	WebhookSecret  string              `json:"webhook_secret,omitempty" toml:"webhook_secret,omitempty"`
}

// BuildInfo tracks the last successful run.
type BuildInfo struct {
	LastBuiltAt  time.Time `json:"last_built_at,omitempty"`
	BuiltHash    string    `json:"built_hash,omitempty"`
	BuiltMessage string    `json:"built_message,omitempty"`
}

// DefaultBuildConfig returns the config a fresh build starts from.
func DefaultBuildConfig() BuildConfig {
	return BuildConfig{
		Branch:         "main",
		BuildPath:      ".",
		DockerfilePath: "Dockerfile",
		WebhookEnabled: true,
	}
}
