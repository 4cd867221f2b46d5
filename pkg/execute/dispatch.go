package execute

import (
	"context"

	"github.com/komodohq/komodo/pkg/errs"
	"github.com/komodohq/komodo/pkg/types"
)

// Execute dispatches a named operation against a target resource. This
// is the entry point procedures, webhooks and batches share; override
// parameters (signal, stop time, service) take their defaults.
func (e *Engine) Execute(ctx context.Context, user string, op types.Operation, target string) (*types.Update, error) {
	switch op {
	case types.OpDeploy:
		return e.Deploy(ctx, user, target)
	case types.OpPullDeployment:
		return e.PullDeployment(ctx, user, target)
	case types.OpStartContainer:
		return e.StartContainer(ctx, user, target)
	case types.OpRestartContainer:
		return e.RestartContainer(ctx, user, target)
	case types.OpPauseContainer:
		return e.PauseContainer(ctx, user, target)
	case types.OpUnpauseContainer:
		return e.UnpauseContainer(ctx, user, target)
	case types.OpStopContainer:
		return e.StopContainer(ctx, user, target, "", 0)
	case types.OpDestroyContainer:
		return e.DestroyDeployment(ctx, user, target, "", 0)

	case types.OpDeployStack:
		return e.DeployStack(ctx, user, target, "")
	case types.OpDeployStackIfChanged:
		return e.DeployStackIfChanged(ctx, user, target)
	case types.OpPullStack:
		return e.PullStack(ctx, user, target)
	case types.OpStartStack:
		return e.StartStack(ctx, user, target)
	case types.OpRestartStack:
		return e.RestartStack(ctx, user, target)
	case types.OpPauseStack:
		return e.PauseStack(ctx, user, target)
	case types.OpUnpauseStack:
		return e.UnpauseStack(ctx, user, target)
	case types.OpStopStack:
		return e.StopStack(ctx, user, target, "", 0)
	case types.OpDestroyStack:
		return e.DestroyStack(ctx, user, target, "", 0)

	case types.OpRunBuild:
		return e.RunBuild(ctx, user, target)
	case types.OpCancelBuild:
		return e.CancelBuild(ctx, user, target)

	case types.OpCloneRepo:
		return e.CloneRepo(ctx, user, target)
	case types.OpPullRepo:
		return e.PullRepo(ctx, user, target)

	case types.OpRunProcedure:
		return e.RunProcedure(ctx, user, target)
	case types.OpRunAction:
		return e.RunAction(ctx, user, target)

	case types.OpRunSync:
		if e.RunSync == nil {
			return nil, errs.InvalidConfig("execute", "no sync runner configured")
		}
		return e.RunSync(ctx, user, target)

	default:
		return nil, errs.InvalidConfig("execute", "operation %q is not executable", op)
	}
}

// executionKind maps an operation to the resource kind its target names.
func executionKind(op types.Operation) (types.ResourceKind, bool) {
	switch op {
	case types.OpDeploy, types.OpPullDeployment, types.OpStartContainer,
		types.OpRestartContainer, types.OpPauseContainer, types.OpUnpauseContainer,
		types.OpStopContainer, types.OpDestroyContainer:
		return types.KindDeployment, true
	case types.OpDeployStack, types.OpDeployStackIfChanged, types.OpPullStack,
		types.OpStartStack, types.OpRestartStack, types.OpPauseStack,
		types.OpUnpauseStack, types.OpStopStack, types.OpDestroyStack:
		return types.KindStack, true
	case types.OpRunBuild, types.OpCancelBuild:
		return types.KindBuild, true
	case types.OpCloneRepo, types.OpPullRepo:
		return types.KindRepo, true
	case types.OpRunProcedure:
		return types.KindProcedure, true
	case types.OpRunAction:
		return types.KindAction, true
	case types.OpRunSync:
		return types.KindResourceSync, true
	default:
		return "", false
	}
}
