// Package state caches the live docker state of every managed server and
// derives Deployment and Stack states from it. The cache is the only
// source sync decisions read container state from; servers that cannot
// be polled mark their resources Unknown.
package state

import (
	"strings"
	"sync"
	"time"

	"github.com/komodohq/komodo/pkg/types"
)

// ComposeProjectLabel is the label compose stamps on every container of
// a project.
const ComposeProjectLabel = "com.docker.compose.project"

// ServerStatus is one server's last poll result.
type ServerStatus struct {
	State      types.ServerState
	Version    string
	Containers []types.Container
	PolledAt   time.Time
}

// Cache is the process-wide server state table. Construct once at
// startup.
type Cache struct {
	mu      sync.RWMutex
	servers map[string]ServerStatus
}

// NewCache returns an empty cache.
func NewCache() *Cache {
	return &Cache{servers: make(map[string]ServerStatus)}
}

// SetServer records a successful poll.
func (c *Cache) SetServer(serverID, version string, containers []types.Container) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.servers[serverID] = ServerStatus{
		State:      types.ServerOk,
		Version:    version,
		Containers: containers,
		PolledAt:   time.Now(),
	}
}

// MarkUnreachable records a failed poll. Resources on the server derive
// Unknown until the next successful poll.
func (c *Cache) MarkUnreachable(serverID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.servers[serverID] = ServerStatus{
		State:    types.ServerNotOk,
		PolledAt: time.Now(),
	}
}

// MarkDisabled records a server excluded from polling.
func (c *Cache) MarkDisabled(serverID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.servers[serverID] = ServerStatus{
		State:    types.ServerDisabled,
		PolledAt: time.Now(),
	}
}

// Drop removes a deleted server from the cache.
func (c *Cache) Drop(serverID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.servers, serverID)
}

// Server returns the last poll result and whether the server has been
// polled at all.
func (c *Cache) Server(serverID string) (ServerStatus, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	status, ok := c.servers[serverID]
	return status, ok
}

// DeploymentState derives the state of a deployment by its container
// name on its server.
func (c *Cache) DeploymentState(serverID, containerName string) types.ResourceState {
	status, ok := c.Server(serverID)
	if !ok || status.State == types.ServerNotOk {
		return types.StateUnknown
	}
	if status.State == types.ServerDisabled {
		return types.StateUnknown
	}
	for _, container := range status.Containers {
		if container.Name == containerName {
			return container.State
		}
	}
	return types.StateNotDeployed
}

// StackState derives the aggregate state of a compose project from its
// containers: Running only when every container runs, NotDeployed when
// none exist, otherwise the most alarming member state.
func (c *Cache) StackState(serverID, project string) types.ResourceState {
	status, ok := c.Server(serverID)
	if !ok || status.State != types.ServerOk {
		return types.StateUnknown
	}
	var members []types.Container
	for _, container := range status.Containers {
		if container.Labels[ComposeProjectLabel] == project {
			members = append(members, container)
		}
	}
	if len(members) == 0 {
		return types.StateNotDeployed
	}
	allRunning := true
	worst := types.StateRunning
	for _, m := range members {
		if m.State != types.StateRunning {
			allRunning = false
			if severity(m.State) > severity(worst) {
				worst = m.State
			}
		}
	}
	if allRunning {
		return types.StateRunning
	}
	return worst
}

// severity orders non-running states so the aggregate picks the most
// alarming one.
func severity(s types.ResourceState) int {
	switch s {
	case types.StateRunning:
		return 0
	case types.StateCreated:
		return 1
	case types.StatePaused:
		return 2
	case types.StateStopped:
		return 3
	case types.StateRestarting:
		return 4
	case types.StateRemoving:
		return 5
	case types.StateUnhealthy:
		return 6
	case types.StateDead:
		return 7
	case types.StateDown:
		return 8
	default:
		return 9
	}
}

// ContainerName returns the container a deployment runs as. Deployment
// names map directly onto container names with spaces collapsed.
func ContainerName(deploymentName string) string {
	return strings.ReplaceAll(deploymentName, " ", "-")
}
