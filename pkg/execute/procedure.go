package execute

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/komodohq/komodo/pkg/actionstate"
	"github.com/komodohq/komodo/pkg/errs"
	"github.com/komodohq/komodo/pkg/storage"
	"github.com/komodohq/komodo/pkg/types"
)

func (e *Engine) resolveProcedure(user, nameOrID string) (*types.Procedure, error) {
	p, err := storage.FindResource[types.ProcedureConfig, types.NoInfo](e.Store, types.KindProcedure, nameOrID)
	if err != nil {
		return nil, err
	}
	target := types.ResourceTarget{Type: types.KindProcedure, ID: p.ID}
	if err := e.Access.Require(user, target, p.BasePermission, types.PermissionExecute); err != nil {
		return nil, err
	}
	return p, nil
}

// RunProcedure runs the procedure's stages in order. Enabled executions
// within a stage run in parallel under the caller's identity; a stage
// with any failed execution stops the procedure.
func (e *Engine) RunProcedure(ctx context.Context, user, nameOrID string) (*types.Update, error) {
	p, err := e.resolveProcedure(user, nameOrID)
	if err != nil {
		return nil, err
	}
	guard, err := e.Guards.Acquire(types.KindProcedure, p.ID, func(f *actionstate.Flags) { f.Running = true })
	if err != nil {
		return nil, err
	}
	defer guard.Release()

	u, err := e.openUpdate(types.OpRunProcedure, types.ResourceTarget{Type: types.KindProcedure, ID: p.ID}, user)
	if err != nil {
		return nil, err
	}

	for _, stage := range p.Config.Stages {
		if !stage.Enabled {
			continue
		}
		failures := e.runStage(ctx, user, stage)
		if len(failures) > 0 {
			u.PushError("Stage: "+stage.Name,
				fmt.Errorf("failed executions: %s", strings.Join(failures, ", ")))
			break
		}
		u.PushLog(types.SimpleLog("Stage: "+stage.Name, "all executions succeeded"))
	}

	e.Journal.Finalize(u)
	return u, nil
}

// runStage runs every enabled execution in parallel and reports the
// failed ones.
func (e *Engine) runStage(ctx context.Context, user string, stage types.ProcedureStage) []string {
	var mu sync.Mutex
	var failures []string
	var g errgroup.Group
	for _, exec := range stage.Executions {
		if !exec.Enabled {
			continue
		}
		exec := exec
		g.Go(func() error {
			u, err := e.Execute(ctx, user, exec.Operation, exec.Target)
			if err != nil || !u.Success {
				mu.Lock()
				detail := fmt.Sprintf("%s %s", exec.Operation, exec.Target)
				if err != nil {
					detail += ": " + err.Error()
				}
				failures = append(failures, detail)
				mu.Unlock()
			}
			return nil
		})
	}
	g.Wait()
	return failures
}

// RunAction exists so actions dispatch uniformly, but the core ships no
// script runtime to execute them with.
func (e *Engine) RunAction(ctx context.Context, user, nameOrID string) (*types.Update, error) {
	a, err := storage.FindResource[types.ActionConfig, types.ActionInfo](e.Store, types.KindAction, nameOrID)
	if err != nil {
		return nil, err
	}
	target := types.ResourceTarget{Type: types.KindAction, ID: a.ID}
	if err := e.Access.Require(user, target, a.BasePermission, types.PermissionExecute); err != nil {
		return nil, err
	}
	return nil, errs.InvalidConfig("run action", "no action runtime configured")
}
