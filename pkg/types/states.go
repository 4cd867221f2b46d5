package types

// ResourceState is the live docker-derived state of a Deployment or
// Stack. Unknown propagates into sync decisions ("cannot decide").
type ResourceState string

const (
	StateRunning     ResourceState = "Running"
	StatePaused      ResourceState = "Paused"
	StateStopped     ResourceState = "Stopped"
	StateCreated     ResourceState = "Created"
	StateRestarting  ResourceState = "Restarting"
	StateDead        ResourceState = "Dead"
	StateRemoving    ResourceState = "Removing"
	StateUnhealthy   ResourceState = "Unhealthy"
	StateDown        ResourceState = "Down"
	StateNotDeployed ResourceState = "NotDeployed"
	StateUnknown     ResourceState = "Unknown"
)

// ServerState is the reachability of a managed host.
type ServerState string

const (
	ServerOk       ServerState = "Ok"
	ServerNotOk    ServerState = "NotOk"
	ServerDisabled ServerState = "Disabled"
)

// Container is one live container as reported by a periphery agent.
type Container struct {
	Name   string        `json:"name"`
	Image  string        `json:"image"`
	State  ResourceState `json:"state"`
	Status string        `json:"status,omitempty"`
	// Labels carries the compose project/service labels when present.
	Labels map[string]string `json:"labels,omitempty"`
}

// ContainerStateFromDocker maps a docker state string to a ResourceState.
func ContainerStateFromDocker(s string) ResourceState {
	switch s {
	case "running":
		return StateRunning
	case "paused":
		return StatePaused
	case "exited", "stopped":
		return StateStopped
	case "created":
		return StateCreated
	case "restarting":
		return StateRestarting
	case "dead":
		return StateDead
	case "removing":
		return StateRemoving
	case "unhealthy":
		return StateUnhealthy
	default:
		return StateUnknown
	}
}
