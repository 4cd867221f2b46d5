package execute

import (
	"context"
	"time"

	"github.com/komodohq/komodo/pkg/actionstate"
	"github.com/komodohq/komodo/pkg/interpolate"
	"github.com/komodohq/komodo/pkg/periphery"
	"github.com/komodohq/komodo/pkg/storage"
	"github.com/komodohq/komodo/pkg/types"
)

func (e *Engine) resolveRepo(user, nameOrID string, level types.PermissionLevel) (*types.Repo, error) {
	r, err := storage.FindResource[types.RepoConfig, types.RepoInfo](e.Store, types.KindRepo, nameOrID)
	if err != nil {
		return nil, err
	}
	target := types.ResourceTarget{Type: types.KindRepo, ID: r.ID}
	if err := e.Access.Require(user, target, r.BasePermission, level); err != nil {
		return nil, err
	}
	return r, nil
}

// CloneRepo clones the repo fresh on its server.
func (e *Engine) CloneRepo(ctx context.Context, user, nameOrID string) (*types.Update, error) {
	return e.repoOp(ctx, user, nameOrID, types.OpCloneRepo,
		func(client *periphery.Client, ctx context.Context, req periphery.RepoRequest) (periphery.RepoActionResponse, error) {
			return client.CloneRepo(ctx, req)
		})
}

// PullRepo pulls the repo on its server, cloning when absent.
func (e *Engine) PullRepo(ctx context.Context, user, nameOrID string) (*types.Update, error) {
	return e.repoOp(ctx, user, nameOrID, types.OpPullRepo,
		func(client *periphery.Client, ctx context.Context, req periphery.RepoRequest) (periphery.RepoActionResponse, error) {
			return client.PullOrCloneRepo(ctx, req)
		})
}

func (e *Engine) repoOp(
	ctx context.Context,
	user, nameOrID string,
	op types.Operation,
	dispatch func(client *periphery.Client, ctx context.Context, req periphery.RepoRequest) (periphery.RepoActionResponse, error),
) (*types.Update, error) {
	r, err := e.resolveRepo(user, nameOrID, types.PermissionExecute)
	if err != nil {
		return nil, err
	}
	guard, err := e.Guards.Acquire(types.KindRepo, r.ID, func(f *actionstate.Flags) { f.Cloning = true })
	if err != nil {
		return nil, err
	}
	defer guard.Release()

	u, err := e.openUpdate(op, types.ResourceTarget{Type: types.KindRepo, ID: r.ID}, user)
	if err != nil {
		return nil, err
	}

	dispatchCfg := r.Config
	var replacers []interpolate.Replacer
	if !r.Config.SkipSecretInterp {
		interp, err := e.interpolator()
		if err != nil {
			u.PushError("Interpolate", err)
			return e.finish(ctx, u, ""), nil
		}
		if err := interpolateRepo(interp, &dispatchCfg); err != nil {
			u.PushError("Interpolate", err)
			return e.finish(ctx, u, ""), nil
		}
		if summary := interp.SummaryLog(); summary != nil {
			u.PushLog(*summary)
		}
		replacers = interp.Replacers()
	}

	_, client, err := e.serverFor(r.Config.ServerID)
	if err != nil {
		u.PushError("Resolve Server", err)
		return e.finish(ctx, u, ""), nil
	}

	provider := gitProvider(r.Config.GitProvider)
	resp, err := dispatch(client, ctx, periphery.RepoRequest{
		Name:        r.Name,
		Repo:        dispatchCfg.Repo,
		Branch:      dispatchCfg.Branch,
		Commit:      dispatchCfg.Commit,
		Token:       e.Cfg.GitToken(provider, r.Config.GitAccount),
		Path:        dispatchCfg.Path,
		OnClone:     dispatchCfg.OnClone,
		OnPull:      dispatchCfg.OnPull,
		Environment: dispatchCfg.Environment,
		EnvFilePath: dispatchCfg.EnvFilePath,
		Replacers:   replacers,
	})
	if err != nil {
		u.PushError(string(op), err)
		return e.finish(ctx, u, r.Config.ServerID), nil
	}
	for _, l := range resp.Logs {
		u.PushLog(l)
	}
	u.CommitHash = resp.CommitHash

	if u.AllLogsSuccessful() {
		r.Info.LastPulledAt = time.Now()
		r.Info.LatestHash = resp.CommitHash
		r.Info.LatestMessage = resp.CommitMessage
		r.Info.EnvFilePath = resp.EnvFilePath
		if err := storage.SaveResource(e.Store, types.KindRepo, r); err != nil {
			u.PushError("Persist Repo Info", err)
		}
	}
	return e.finish(ctx, u, r.Config.ServerID), nil
}

func interpolateRepo(interp *interpolate.Interpolator, cfg *types.RepoConfig) error {
	var err error
	if cfg.Environment, err = interp.String(cfg.Environment); err != nil {
		return err
	}
	if cfg.OnClone, err = interp.Command(cfg.OnClone); err != nil {
		return err
	}
	if cfg.OnPull, err = interp.Command(cfg.OnPull); err != nil {
		return err
	}
	return nil
}
