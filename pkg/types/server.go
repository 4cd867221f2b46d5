package types

import "time"

// ServerConfig points the core at one periphery agent.
type ServerConfig struct {
	// Address is the full agent address, eg "https://10.0.0.4:8120".
	Address string `json:"address" toml:"address"`
	// Passkey overrides the core-wide periphery passkey when set.
	Passkey string `json:"passkey,omitempty" toml:"passkey,omitempty"`
	Region  string `json:"region,omitempty" toml:"region,omitempty"`
	Enabled bool   `json:"enabled" toml:"enabled"`
	// SendUnreachableAlerts opens a Warning alert when the agent stops
	// answering health checks.
	SendUnreachableAlerts bool `json:"send_unreachable_alerts,omitempty" toml:"send_unreachable_alerts,omitempty"`
}

// ServerInfo is maintained by the state monitor.
type ServerInfo struct {
	Version  string    `json:"version,omitempty"` // agent version
	LastSeen time.Time `json:"last_seen,omitempty"`
}

// DefaultServerConfig returns the config a fresh server starts from.
func DefaultServerConfig() ServerConfig {
	return ServerConfig{
		Enabled:               true,
		SendUnreachableAlerts: true,
	}
}
