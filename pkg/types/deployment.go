package types

// ImageKind discriminates the deployment image variant
type ImageKind string

const (
	// ImageKindImage deploys a raw image reference.
	ImageKindImage ImageKind = "Image"
	// ImageKindBuild deploys the image produced by a linked Build.
	ImageKindBuild ImageKind = "Build"
)

// DeploymentImage selects what a deployment runs: either a raw image
// reference or the output of a linked Build at a pinned or latest version.
type DeploymentImage struct {
	Type ImageKind `json:"type" toml:"type"`
	// Image is the full reference, eg "nginx:1.25". Image variant only.
	Image string `json:"image,omitempty" toml:"image,omitempty"`
	// BuildID links the Build. Rendered as the build name in TOML.
	BuildID string `json:"build_id,omitempty" toml:"build_id,omitempty"`
	// Version pins a built version. Zero means latest.
	Version Version `json:"version,omitempty" toml:"version,omitempty"`
}

// TerminationSignal is sent to a container on stop/destroy
type TerminationSignal string

const (
	SigHup  TerminationSignal = "SIGHUP"
	SigInt  TerminationSignal = "SIGINT"
	SigQuit TerminationSignal = "SIGQUIT"
	SigTerm TerminationSignal = "SIGTERM"
)

// RestartMode is the docker restart policy
type RestartMode string

const (
	RestartNo            RestartMode = "no"
	RestartOnFailure     RestartMode = "on-failure"
	RestartAlways        RestartMode = "always"
	RestartUnlessStopped RestartMode = "unless-stopped"
)

// DeploymentConfig drives a single docker container on one server.
type DeploymentConfig struct {
	ServerID             string            `json:"server_id" toml:"server_id"`
	Image                DeploymentImage   `json:"image" toml:"image"`
	ImageRegistryAccount string            `json:"image_registry_account,omitempty" toml:"image_registry_account,omitempty"`
	SkipSecretInterp     bool              `json:"skip_secret_interp,omitempty" toml:"skip_secret_interp,omitempty"`
	RedeployOnBuild      bool              `json:"redeploy_on_build,omitempty" toml:"redeploy_on_build,omitempty"`
	Network              string            `json:"network,omitempty" toml:"network,omitempty"`
	Restart              RestartMode       `json:"restart,omitempty" toml:"restart,omitempty"`
	Command              string            `json:"command,omitempty" toml:"command,omitempty"`
	ExtraArgs            []string          `json:"extra_args,omitempty" toml:"extra_args,omitempty"`
	Ports                []string          `json:"ports,omitempty" toml:"ports,omitempty"`     // "host:container"
	Volumes              []string          `json:"volumes,omitempty" toml:"volumes,omitempty"` // "local:container"
	Environment          string            `json:"environment,omitempty" toml:"environment,omitempty"` // KEY=VALUE lines
	Labels               string            `json:"labels,omitempty" toml:"labels,omitempty"`           // KEY=VALUE lines
	TerminationSignal    TerminationSignal `json:"termination_signal,omitempty" toml:"termination_signal,omitempty"`
	TerminationTimeout   int               `json:"termination_timeout,omitempty" toml:"termination_timeout,omitempty"` // seconds
}

// DeploymentInfo tracks the outcome of the last successful Deploy.
type DeploymentInfo struct {
	DeployedImage   string `json:"deployed_image,omitempty"`
	DeployedVersion string `json:"deployed_version,omitempty"`
}

// DefaultDeploymentConfig returns the config a fresh deployment starts
// from; sparse TOML configs are projected onto these values.
func DefaultDeploymentConfig() DeploymentConfig {
	return DeploymentConfig{
		Image:              DeploymentImage{Type: ImageKindImage},
		Network:            "bridge",
		Restart:            RestartNo,
		TerminationSignal:  SigTerm,
		TerminationTimeout: 10,
	}
}
