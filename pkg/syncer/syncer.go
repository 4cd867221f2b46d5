// Package syncer reconciles declarative TOML resource files against the
// resource database: loading from inline contents, host files or a git
// repo, computing per-kind create/update/delete sets, and draining a
// dependency-ordered deploy cache.
package syncer

import (
	"context"
	"fmt"
	"time"

	"github.com/komodohq/komodo/pkg/actionstate"
	"github.com/komodohq/komodo/pkg/execute"
	"github.com/komodohq/komodo/pkg/log"
	"github.com/komodohq/komodo/pkg/metrics"
	"github.com/komodohq/komodo/pkg/storage"
	"github.com/komodohq/komodo/pkg/types"
)

// Syncer runs resource syncs through the execution engine's singletons.
type Syncer struct {
	eng *execute.Engine
}

// New builds the syncer. Wire eng.RunSync to (*Syncer).RunSync at
// startup so procedures and webhooks can dispatch syncs.
func New(eng *execute.Engine) *Syncer {
	return &Syncer{eng: eng}
}

func (s *Syncer) resolveSync(user, nameOrID string) (*types.ResourceSync, error) {
	sync, err := storage.FindResource[types.SyncConfig, types.SyncInfo](s.eng.Store, types.KindResourceSync, nameOrID)
	if err != nil {
		return nil, err
	}
	target := types.ResourceTarget{Type: types.KindResourceSync, ID: sync.ID}
	if err := s.eng.Access.Require(user, target, sync.BasePermission, types.PermissionExecute); err != nil {
		return nil, err
	}
	return sync, nil
}

// RunSync loads the sync's resource files, applies every kind in
// dependency order, then drains the deploy cache.
func (s *Syncer) RunSync(ctx context.Context, user, nameOrID string) (*types.Update, error) {
	sync, err := s.resolveSync(user, nameOrID)
	if err != nil {
		return nil, err
	}
	guard, err := s.eng.Guards.Acquire(types.KindResourceSync, sync.ID, func(f *actionstate.Flags) { f.Syncing = true })
	if err != nil {
		return nil, err
	}
	defer guard.Release()

	u, err := s.openUpdate(types.OpRunSync, sync, user)
	if err != nil {
		return nil, err
	}
	defer func() {
		outcome := "success"
		if !u.Success {
			outcome = "failure"
		}
		metrics.SyncRuns.WithLabelValues(outcome).Inc()
	}()

	remote, err := s.loadRemote(ctx, sync)
	if err != nil {
		u.PushError("Load Resources", err)
		s.eng.Journal.Finalize(u)
		return u, nil
	}
	for _, l := range remote.Logs {
		u.PushLog(l)
	}
	u.CommitHash = remote.Hash

	tables, err := s.loadTables()
	if err != nil {
		u.PushError("Load Name Tables", err)
		s.eng.Journal.Finalize(u)
		return u, nil
	}

	// The deploy cache decides against the pre-sync DB and live state, so
	// it is computed before any kind is applied.
	deploys, err := s.buildDeployCache(remote.Resources, sync, tables)
	if err != nil {
		u.PushError("Build Deploy Cache", err)
		s.eng.Journal.Finalize(u)
		return u, nil
	}

	s.applyVariables(sync, remote.Resources.Variables, u)
	s.applyUserGroups(sync, remote.Resources.UserGroups, tables, u)

	for _, kind := range types.AllResourceKinds {
		s.applyKind(ctx, sync, kind, remote.Resources.ByKind(kind), tables, u)
	}

	s.drainDeploys(ctx, deploys, u)

	sync.Info.LastSyncTS = time.Now()
	sync.Info.LastSyncHash = remote.Hash
	sync.Info.LastSyncMessage = remote.Message
	sync.Info.PendingHash = ""
	sync.Info.PendingMessage = ""
	sync.Info.PendingError = ""
	sync.Info.Pending = nil
	sync.Info.PendingDeploys = nil
	sync.Info.RemoteContents = remote.Files
	sync.Info.RemoteErrors = remote.FileErrors
	if err := storage.SaveResource(s.eng.Store, types.KindResourceSync, sync); err != nil {
		u.PushError("Persist Sync Info", err)
	}

	s.eng.Journal.Finalize(u)
	if !u.Success {
		logger := log.WithTarget(string(types.KindResourceSync), sync.ID)
		logger.Warn().Msg("sync completed with failures")
	}
	return u, nil
}

// RefreshSync recomputes the sync's pending changes without applying
// anything, persisting them on the sync info.
func (s *Syncer) RefreshSync(ctx context.Context, user, nameOrID string) error {
	sync, err := s.resolveSync(user, nameOrID)
	if err != nil {
		return err
	}

	remote, err := s.loadRemote(ctx, sync)
	if err != nil {
		sync.Info.PendingError = err.Error()
		return storage.SaveResource(s.eng.Store, types.KindResourceSync, sync)
	}

	tables, err := s.loadTables()
	if err != nil {
		return err
	}

	var pending []types.SyncKindSummary
	for _, kind := range types.AllResourceKinds {
		summary := s.planSummary(sync, kind, remote.Resources.ByKind(kind), tables)
		if summary.ToCreate+summary.ToUpdate+summary.ToDelete > 0 {
			pending = append(pending, summary)
		}
	}

	deploys, err := s.buildDeployCache(remote.Resources, sync, tables)
	if err != nil {
		sync.Info.PendingError = err.Error()
		return storage.SaveResource(s.eng.Store, types.KindResourceSync, sync)
	}
	var deployNames []string
	for _, d := range deploys {
		deployNames = append(deployNames, fmt.Sprintf("%s %s (%s)", d.target.Type, d.name, d.reason))
	}

	sync.Info.PendingHash = remote.Hash
	sync.Info.PendingMessage = remote.Message
	sync.Info.PendingError = ""
	sync.Info.Pending = pending
	sync.Info.PendingDeploys = deployNames
	sync.Info.RemoteContents = remote.Files
	sync.Info.RemoteErrors = remote.FileErrors
	return storage.SaveResource(s.eng.Store, types.KindResourceSync, sync)
}

func (s *Syncer) openUpdate(op types.Operation, sync *types.ResourceSync, user string) (*types.Update, error) {
	u := &types.Update{
		Operation: op,
		Target:    types.ResourceTarget{Type: types.KindResourceSync, ID: sync.ID},
		Operator:  user,
		StartTS:   time.Now(),
	}
	if err := s.eng.Journal.Open(u); err != nil {
		return nil, err
	}
	return u, nil
}
