package types

import "time"

// AlertLevel grades an alert
type AlertLevel string

const (
	AlertOk       AlertLevel = "Ok"
	AlertWarning  AlertLevel = "Warning"
	AlertCritical AlertLevel = "Critical"
)

// Alert is a persisted event of note: an unreachable server, a failed
// deploy, a builder instance that would not terminate.
type Alert struct {
	ID         string         `json:"id"`
	Level      AlertLevel     `json:"level"`
	Target     ResourceTarget `json:"target"`
	Message    string         `json:"message"`
	Data       map[string]string `json:"data,omitempty"`
	Resolved   bool           `json:"resolved"`
	OpenedAt   time.Time      `json:"opened_at"`
	ResolvedAt time.Time      `json:"resolved_at,omitempty"`
}

// AlerterEndpoint is where alert delivery (out of process) sends.
type AlerterEndpoint struct {
	Type string `json:"type,omitempty" toml:"type,omitempty"` // Custom | Slack | Discord | Ntfy
	URL  string `json:"url,omitempty" toml:"url,omitempty"`
}

// AlerterConfig filters which alerts a delivery endpoint receives.
type AlerterConfig struct {
	Enabled         bool             `json:"enabled" toml:"enabled"`
	Endpoint        AlerterEndpoint  `json:"endpoint,omitempty" toml:"endpoint,omitempty"`
	AlertTypes      []string         `json:"alert_types,omitempty" toml:"alert_types,omitempty"`
	Resources       []ResourceTarget `json:"resources,omitempty" toml:"resources,omitempty"`
	ExceptResources []ResourceTarget `json:"except_resources,omitempty" toml:"except_resources,omitempty"`
}

// DefaultAlerterConfig returns the config a fresh alerter starts from.
func DefaultAlerterConfig() AlerterConfig {
	return AlerterConfig{
		Enabled:  true,
		Endpoint: AlerterEndpoint{Type: "Custom"},
	}
}

// ServerTemplateConfig is a tagged variant describing how to launch new
// servers on a cloud provider.
type ServerTemplateConfig struct {
	Type    BuilderKind          `json:"type" toml:"type"` // Aws | Hetzner
	Aws     AwsBuilderConfig     `json:"aws,omitempty" toml:"aws,omitempty"`
	Hetzner HetznerBuilderConfig `json:"hetzner,omitempty" toml:"hetzner,omitempty"`
}

// DefaultServerTemplateConfig returns the config a fresh template starts from.
func DefaultServerTemplateConfig() ServerTemplateConfig {
	return ServerTemplateConfig{Type: BuilderAws}
}
