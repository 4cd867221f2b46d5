// Package execute implements every user-initiated operation: action
// guard acquisition, update journaling, config resolution, secret
// interpolation, periphery dispatch and cache refresh.
package execute

import (
	"context"
	"time"

	"github.com/komodohq/komodo/pkg/access"
	"github.com/komodohq/komodo/pkg/actionstate"
	"github.com/komodohq/komodo/pkg/alerts"
	"github.com/komodohq/komodo/pkg/builder"
	"github.com/komodohq/komodo/pkg/cancel"
	"github.com/komodohq/komodo/pkg/config"
	"github.com/komodohq/komodo/pkg/interpolate"
	"github.com/komodohq/komodo/pkg/periphery"
	"github.com/komodohq/komodo/pkg/pulls"
	"github.com/komodohq/komodo/pkg/state"
	"github.com/komodohq/komodo/pkg/storage"
	"github.com/komodohq/komodo/pkg/types"
	"github.com/komodohq/komodo/pkg/updates"
)

// Engine wires the process-wide singletons every operation needs. All
// fields are established at startup before the first request.
type Engine struct {
	Store    *storage.BoltStore
	Cfg      *config.Config
	Guards   *actionstate.Registry
	Journal  *updates.Journal
	Cancels  *cancel.Hub
	Pulls    *pulls.Cache
	States   *state.Cache
	Monitor  *state.Monitor
	Alerts   *alerts.Broker
	Builders *builder.Manager
	Access   *access.Checker

	// RunSync is wired at startup to the sync runner; the syncer package
	// depends on the engine for its deploy drain, not the reverse.
	RunSync func(ctx context.Context, user, nameOrID string) (*types.Update, error)
}

// interpolator snapshots variables and secrets at operation start.
// Database variables flagged secret join the config secrets so their
// values are redacted everywhere.
func (e *Engine) interpolator() (*interpolate.Interpolator, error) {
	variables, err := e.Store.ListVariables()
	if err != nil {
		return nil, err
	}
	vars := map[string]string{}
	secrets := map[string]string{}
	for k, v := range e.Cfg.Secrets {
		secrets[k] = v
	}
	for _, v := range variables {
		if v.IsSecret {
			secrets[v.Name] = v.Value
		} else {
			vars[v.Name] = v.Value
		}
	}
	return interpolate.New(vars, secrets), nil
}

// serverFor loads a resource's server and returns its periphery client.
func (e *Engine) serverFor(serverID string) (*types.Server, *periphery.Client, error) {
	server, err := storage.GetResource[types.ServerConfig, types.ServerInfo](e.Store, types.KindServer, serverID)
	if err != nil {
		return nil, nil, err
	}
	return server, periphery.ForServer(server, e.Cfg.Passkey), nil
}

// openUpdate journals a fresh InProgress row for the operation.
func (e *Engine) openUpdate(op types.Operation, target types.ResourceTarget, user string) (*types.Update, error) {
	u := &types.Update{
		Operation: op,
		Target:    target,
		Operator:  user,
		StartTS:   time.Now(),
	}
	if err := e.Journal.Open(u); err != nil {
		return nil, err
	}
	return u, nil
}

// finish refreshes the touched server's cache and finalizes the update.
// Cache refresh failures never fail the operation.
func (e *Engine) finish(ctx context.Context, u *types.Update, serverID string) *types.Update {
	if serverID != "" {
		e.Monitor.RefreshServer(ctx, serverID)
	}
	e.Journal.Finalize(u)
	e.maybeAlertFailure(u)
	return u
}

// maybeAlertFailure opens a Warning alert for failed deploys and builds.
func (e *Engine) maybeAlertFailure(u *types.Update) {
	if u.Success {
		return
	}
	switch u.Operation {
	case types.OpDeploy, types.OpDeployStack, types.OpRunBuild:
		name, err := e.Store.ResourceName(u.Target.Type, u.Target.ID)
		if err != nil {
			name = u.Target.ID
		}
		e.Alerts.Warning(u.Target, string(u.Operation)+" failed for "+name, map[string]string{
			"resource_id":   u.Target.ID,
			"resource_name": name,
			"update_id":     u.ID,
		})
	}
}
