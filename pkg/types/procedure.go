package types

import "time"

// Execution is one operation a procedure stage runs against a target
// resource, referenced by name or id.
type Execution struct {
	Operation Operation `json:"operation" toml:"operation"`
	Target    string    `json:"target" toml:"target"`
	Enabled   bool      `json:"enabled" toml:"enabled"`
}

// ProcedureStage groups executions that run in parallel. Stages run in
// order; a failed stage stops the procedure.
type ProcedureStage struct {
	Name       string      `json:"name" toml:"name"`
	Enabled    bool        `json:"enabled" toml:"enabled"`
	Executions []Execution `json:"executions,omitempty" toml:"executions,omitempty"`
}

// ProcedureConfig is an ordered list of stages.
type ProcedureConfig struct {
	Stages         []ProcedureStage `json:"stages,omitempty" toml:"stages,omitempty"`
	WebhookEnabled bool             `json:"webhook_enabled,omitempty" toml:"webhook_enabled,omitempty"`
	WebhookSecret  string           `json:"webhook_secret,omitempty" toml:"webhook_secret,omitempty"`
}

// DefaultProcedureConfig returns the config a fresh procedure starts from.
func DefaultProcedureConfig() ProcedureConfig {
	return ProcedureConfig{WebhookEnabled: true}
}

// ActionConfig holds a user script. Execution requires an action
// runtime, which the core does not ship; actions still sync as resources.
type ActionConfig struct {
	FileContents   string `json:"file_contents,omitempty" toml:"file_contents,omitempty"`
	WebhookEnabled bool   `json:"webhook_enabled,omitempty" toml:"webhook_enabled,omitempty"`
	WebhookSecret  string `json:"webhook_secret,omitempty" toml:"webhook_secret,omitempty"`
}

// ActionInfo tracks the last run.
type ActionInfo struct {
	LastRunAt time.Time `json:"last_run_at,omitempty"`
}

// DefaultActionConfig returns the config a fresh action starts from.
func DefaultActionConfig() ActionConfig {
	return ActionConfig{WebhookEnabled: true}
}
