package execute

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/komodohq/komodo/pkg/actionstate"
	"github.com/komodohq/komodo/pkg/cancel"
	"github.com/komodohq/komodo/pkg/errs"
	"github.com/komodohq/komodo/pkg/interpolate"
	"github.com/komodohq/komodo/pkg/log"
	"github.com/komodohq/komodo/pkg/periphery"
	"github.com/komodohq/komodo/pkg/registry"
	"github.com/komodohq/komodo/pkg/state"
	"github.com/komodohq/komodo/pkg/storage"
	"github.com/komodohq/komodo/pkg/types"
)

// cancelFinalizeAfter bounds how long a CancelBuild update may stay
// InProgress when no in-flight build consumes the signal.
const cancelFinalizeAfter = 60 * time.Second

func (e *Engine) resolveBuild(user, nameOrID string, level types.PermissionLevel) (*types.Build, error) {
	b, err := storage.FindResource[types.BuildConfig, types.BuildInfo](e.Store, types.KindBuild, nameOrID)
	if err != nil {
		return nil, err
	}
	target := types.ResourceTarget{Type: types.KindBuild, ID: b.ID}
	if err := e.Access.Require(user, target, b.BasePermission, level); err != nil {
		return nil, err
	}
	return b, nil
}

// RunBuild provisions the build's builder, clones the repo on it, runs
// the build, and tears the builder down on every exit path. The bumped
// version and last_built_at are only persisted when every stage
// succeeded.
func (e *Engine) RunBuild(ctx context.Context, user, nameOrID string) (*types.Update, error) {
	b, err := e.resolveBuild(user, nameOrID, types.PermissionExecute)
	if err != nil {
		return nil, err
	}
	guard, err := e.Guards.Acquire(types.KindBuild, b.ID, func(f *actionstate.Flags) { f.Building = true })
	if err != nil {
		return nil, err
	}
	defer guard.Release()

	u, err := e.openUpdate(types.OpRunBuild, types.ResourceTarget{Type: types.KindBuild, ID: b.ID}, user)
	if err != nil {
		return nil, err
	}

	// Bump in memory; the DB write waits for overall success.
	version := b.Config.Version.Bumped()
	u.Version = version

	cancellable, err := e.builderIsEphemeral(b.Config.BuilderID)
	if err != nil {
		u.PushError("Resolve Builder", err)
		return e.finish(ctx, u, ""), nil
	}

	buildCtx, cancelRun := context.WithCancel(ctx)
	defer cancelRun()

	// The listener must be live before any fallible work so a cancel
	// published mid-run is never missed.
	sub := e.Cancels.Subscribe()
	defer e.Cancels.Unsubscribe(sub)
	go e.listenForCancel(sub, b, cancellable, cancelRun)

	client, cleanup, err := e.Builders.GetPeriphery(buildCtx, b, version)
	if err != nil {
		u.PushError("Provision Builder", err)
		if cleanup != nil {
			u.PushLog(e.Builders.TearDown(ctx, b, cleanup))
		}
		return e.finish(ctx, u, ""), nil
	}

	commitMessage := e.runOnBuilder(buildCtx, b, u, version, client)

	built := u.AllLogsSuccessful()
	if built {
		b.Config.Version = version
		b.Info.BuiltHash = u.CommitHash
		b.Info.BuiltMessage = commitMessage
		if err := storage.SaveResource(e.Store, types.KindBuild, b); err != nil {
			u.PushError("Persist Build Version", err)
			built = false
		} else {
			e.postBuildRedeploy(ctx, b, version, u)
		}
	}

	u.PushLog(e.Builders.TearDown(ctx, b, cleanup))
	e.finish(ctx, u, "")

	// last_built_at records the update's end_ts, never a separate clock
	// read.
	if built {
		b.Info.LastBuiltAt = u.EndTS
		if err := storage.SaveResource(e.Store, types.KindBuild, b); err != nil {
			logger := log.WithTarget(string(types.KindBuild), b.ID)
			logger.Error().Err(err).
				Msg("failed to persist last_built_at")
		}
	}
	return u, nil
}

// runOnBuilder clones the repo on the builder agent and invokes the
// build RPC, appending every stage to u. Returns the cloned commit
// message for the build info.
func (e *Engine) runOnBuilder(ctx context.Context, b *types.Build, u *types.Update, version types.Version, client *periphery.Client) string {
	dispatch := *b
	dispatch.Config.Version = version

	var replacers []interpolate.Replacer
	if !b.Config.SkipSecretInterp {
		interp, err := e.interpolator()
		if err != nil {
			u.PushError("Interpolate", err)
			return ""
		}
		if err := interpolateBuild(interp, &dispatch.Config); err != nil {
			u.PushError("Interpolate", err)
			return ""
		}
		if summary := interp.SummaryLog(); summary != nil {
			u.PushLog(*summary)
		}
		replacers = interp.Replacers()
	}

	provider := gitProvider(b.Config.GitProvider)
	cloneResp, err := client.CloneRepo(ctx, periphery.RepoRequest{
		Name:      registry.ToSafeName(b.Name),
		Repo:      b.Config.Repo,
		Branch:    b.Config.Branch,
		Commit:    b.Config.Commit,
		Token:     e.Cfg.GitToken(provider, b.Config.GitAccount),
		Replacers: replacers,
	})
	if err != nil {
		u.PushError("Clone Repo", err)
		return ""
	}
	for _, l := range cloneResp.Logs {
		u.PushLog(l)
	}
	u.CommitHash = cloneResp.CommitHash
	if !u.AllLogsSuccessful() {
		return cloneResp.CommitMessage
	}

	token := registry.Token(e.Cfg, b.Config.ImageRegistry.Domain, b.Config.ImageRegistry.Account)
	buildLogs, err := client.Build(ctx, periphery.BuildRequest{
		Build:         &dispatch,
		RegistryToken: token,
		Replacers:     replacers,
	})
	if err != nil {
		u.PushError("Build Image", err)
		return cloneResp.CommitMessage
	}
	for _, l := range buildLogs {
		u.PushLog(l)
	}
	return cloneResp.CommitMessage
}

func interpolateBuild(interp *interpolate.Interpolator, cfg *types.BuildConfig) error {
	var err error
	if cfg.BuildArgs, err = interp.String(cfg.BuildArgs); err != nil {
		return err
	}
	if cfg.Labels, err = interp.String(cfg.Labels); err != nil {
		return err
	}
	if cfg.ExtraArgs, err = interp.Strings(cfg.ExtraArgs); err != nil {
		return err
	}
	if cfg.PreBuild, err = interp.Command(cfg.PreBuild); err != nil {
		return err
	}
	return nil
}

// builderIsEphemeral reports whether the build's builder is a cloud
// instance, which is the only path where cancellation can abort the run.
func (e *Engine) builderIsEphemeral(builderID string) (bool, error) {
	bld, err := storage.GetResource[types.BuilderConfig, types.NoInfo](e.Store, types.KindBuilder, builderID)
	if err != nil {
		return false, err
	}
	switch bld.Config.Type {
	case types.BuilderAws, types.BuilderHetzner:
		return true, nil
	default:
		return false, nil
	}
}

// listenForCancel consumes cancel signals until the subscription closes.
// A matching signal finalizes the cancel operation's own update and, on
// ephemeral builders, aborts the run.
func (e *Engine) listenForCancel(sub cancel.Subscriber, b *types.Build, cancellable bool, cancelRun context.CancelFunc) {
	for sig := range sub {
		if sig.BuildID != b.ID {
			continue
		}
		if cancellable {
			sig.Update.PushLog(types.SimpleLog("Cancel Build",
				fmt.Sprintf("cancelling build %s", b.Name)))
			cancelRun()
		} else {
			sig.Update.PushLog(types.SimpleLog("Cancel Build",
				"cancellation is not possible on a server builder; use an ephemeral builder"))
		}
		e.Journal.Finalize(sig.Update)
		return
	}
}

// postBuildRedeploy redeploys every Running deployment wired to this
// build with redeploy_on_build. Runs under the synthetic sync identity;
// failures are summarized but never fail the build.
func (e *Engine) postBuildRedeploy(ctx context.Context, b *types.Build, version types.Version, u *types.Update) {
	deployments, err := storage.ListResources[types.DeploymentConfig, types.DeploymentInfo](e.Store, types.KindDeployment)
	if err != nil {
		u.PushLog(types.SimpleLog("Redeploy Deployments",
			fmt.Sprintf("failed to list deployments: %v", err)))
		return
	}

	var targets []*types.Deployment
	for _, d := range deployments {
		if d.Config.Image.Type != types.ImageKindBuild || d.Config.Image.BuildID != b.ID {
			continue
		}
		if !d.Config.RedeployOnBuild {
			continue
		}
		if e.States.DeploymentState(d.Config.ServerID, state.ContainerName(d.Name)) != types.StateRunning {
			continue
		}
		targets = append(targets, d)
	}
	if len(targets) == 0 {
		return
	}

	var mu sync.Mutex
	var redeployed, failed []string
	var g errgroup.Group
	for _, d := range targets {
		d := d
		g.Go(func() error {
			du, err := e.Deploy(ctx, types.SyncUserID, d.ID)
			mu.Lock()
			defer mu.Unlock()
			if err != nil || !du.Success {
				failed = append(failed, d.Name)
			} else {
				redeployed = append(redeployed, d.Name)
			}
			return nil
		})
	}
	g.Wait()

	summary := types.SimpleLog("Redeploy Deployments",
		fmt.Sprintf("redeployed after build v%s: %s", version, joinOrNone(redeployed)))
	if len(failed) > 0 {
		summary.Stderr = fmt.Sprintf("failed to redeploy: %s", strings.Join(failed, ", "))
		logger := log.WithTarget(string(types.KindBuild), b.ID)
		logger.Warn().
			Strs("deployments", failed).Msg("post-build redeploy failures")
	}
	u.PushLog(summary)
}

func joinOrNone(names []string) string {
	if len(names) == 0 {
		return "none"
	}
	return strings.Join(names, ", ")
}

// CancelBuild publishes a cancellation for an in-flight build. The
// running build's listener finalizes the returned update; if nothing
// consumes the signal within 60 s it is force-finalized so the row never
// sticks InProgress.
func (e *Engine) CancelBuild(ctx context.Context, user, nameOrID string) (*types.Update, error) {
	b, err := e.resolveBuild(user, nameOrID, types.PermissionExecute)
	if err != nil {
		return nil, err
	}
	if !e.Guards.Get(types.KindBuild, b.ID).Building {
		return nil, errs.InvalidConfig("cancel build", "build %s is not running", b.Name)
	}
	guard, err := e.Guards.Acquire(types.KindBuild, b.ID, func(f *actionstate.Flags) { f.Cancelling = true })
	if err != nil {
		return nil, err
	}
	defer guard.Release()

	u, err := e.openUpdate(types.OpCancelBuild, types.ResourceTarget{Type: types.KindBuild, ID: b.ID}, user)
	if err != nil {
		return nil, err
	}

	e.Cancels.Publish(cancel.Signal{BuildID: b.ID, Update: u})

	go func() {
		time.Sleep(cancelFinalizeAfter)
		stored, err := e.Store.GetUpdate(u.ID)
		if err != nil || stored.Status != types.UpdateInProgress {
			return
		}
		stored.PushLog(types.SimpleLog("Cancel Build", "no in-flight build consumed the cancellation"))
		e.Journal.Finalize(stored)
	}()

	return u, nil
}
