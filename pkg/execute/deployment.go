package execute

import (
	"context"
	"fmt"

	"github.com/komodohq/komodo/pkg/actionstate"
	"github.com/komodohq/komodo/pkg/errs"
	"github.com/komodohq/komodo/pkg/interpolate"
	"github.com/komodohq/komodo/pkg/periphery"
	"github.com/komodohq/komodo/pkg/registry"
	"github.com/komodohq/komodo/pkg/state"
	"github.com/komodohq/komodo/pkg/storage"
	"github.com/komodohq/komodo/pkg/types"
)

// resolveDeployment loads the deployment and checks the caller may
// execute against it.
func (e *Engine) resolveDeployment(user, nameOrID string) (*types.Deployment, error) {
	d, err := storage.FindResource[types.DeploymentConfig, types.DeploymentInfo](e.Store, types.KindDeployment, nameOrID)
	if err != nil {
		return nil, err
	}
	target := types.ResourceTarget{Type: types.KindDeployment, ID: d.ID}
	if err := e.Access.Require(user, target, d.BasePermission, types.PermissionExecute); err != nil {
		return nil, err
	}
	return d, nil
}

// resolveImage turns the deployment's image variant into a concrete
// "name:tag" reference. Build-kind images inherit the build's registry
// account when the deployment carries none.
func (e *Engine) resolveImage(d *types.Deployment) (image, account string, version types.Version, err error) {
	account = d.Config.ImageRegistryAccount
	switch d.Config.Image.Type {
	case types.ImageKindImage:
		if d.Config.Image.Image == "" {
			return "", "", types.Version{}, errs.InvalidConfig("resolve image", "deployment %s has no image configured", d.Name)
		}
		return d.Config.Image.Image, account, types.Version{}, nil

	case types.ImageKindBuild:
		build, err := storage.GetResource[types.BuildConfig, types.BuildInfo](e.Store, types.KindBuild, d.Config.Image.BuildID)
		if err != nil {
			return "", "", types.Version{}, err
		}
		version := d.Config.Image.Version
		if version.IsZero() {
			version = build.Config.Version
		}
		image, err := registry.ResolveBuildImage(build, version)
		if err != nil {
			return "", "", types.Version{}, errs.InvalidConfig("resolve image", "%v", err)
		}
		if account == "" {
			account = build.Config.ImageRegistry.Account
		}
		return image, account, version, nil

	default:
		return "", "", types.Version{}, errs.InvalidConfig("resolve image", "deployment %s has unknown image type %q", d.Name, d.Config.Image.Type)
	}
}

// Deploy runs the deployment's container on its server, resolving the
// image, registry token and secrets first.
func (e *Engine) Deploy(ctx context.Context, user, nameOrID string) (*types.Update, error) {
	d, err := e.resolveDeployment(user, nameOrID)
	if err != nil {
		return nil, err
	}
	guard, err := e.Guards.Acquire(types.KindDeployment, d.ID, func(f *actionstate.Flags) { f.Deploying = true })
	if err != nil {
		return nil, err
	}
	defer guard.Release()

	u, err := e.openUpdate(types.OpDeploy, types.ResourceTarget{Type: types.KindDeployment, ID: d.ID}, user)
	if err != nil {
		return nil, err
	}
	e.deploy(ctx, d, u)
	return e.finish(ctx, u, d.Config.ServerID), nil
}

// deploy is the guard-free inner path, shared with sync drain and the
// post-build fan-out through Deploy.
func (e *Engine) deploy(ctx context.Context, d *types.Deployment, u *types.Update) {
	image, account, version, err := e.resolveImage(d)
	if err != nil {
		u.PushError("Resolve Image", err)
		return
	}
	if !version.IsZero() {
		u.Version = version
	}

	// The periphery receives a copy with the image variant collapsed to
	// the resolved reference.
	dispatch := *d
	dispatch.Config.Image = types.DeploymentImage{Type: types.ImageKindImage, Image: image}
	dispatch.Config.ImageRegistryAccount = account

	var replacers []interpolate.Replacer
	if !d.Config.SkipSecretInterp {
		interp, err := e.interpolator()
		if err != nil {
			u.PushError("Interpolate", err)
			return
		}
		if err := interpolateDeployment(interp, &dispatch.Config); err != nil {
			u.PushError("Interpolate", err)
			return
		}
		if summary := interp.SummaryLog(); summary != nil {
			u.PushLog(*summary)
		}
		replacers = interp.Replacers()
	}

	_, client, err := e.serverFor(d.Config.ServerID)
	if err != nil {
		u.PushError("Resolve Server", err)
		return
	}

	token := registry.Token(e.Cfg, registry.ImageDomain(image), account)
	deployLog, err := client.Deploy(ctx, periphery.DeployRequest{
		Deployment:    &dispatch,
		StopSignal:    terminationSignal(&d.Config),
		StopTime:      terminationTimeout(&d.Config),
		RegistryToken: token,
		Replacers:     replacers,
	})
	if err != nil {
		u.PushError("Deploy Container", err)
		return
	}
	u.PushLog(deployLog)
	if !deployLog.Success {
		return
	}

	d.Info.DeployedImage = image
	if !version.IsZero() {
		d.Info.DeployedVersion = version.String()
	} else {
		d.Info.DeployedVersion = imageTag(image)
	}
	if err := storage.SaveResource(e.Store, types.KindDeployment, d); err != nil {
		u.PushError("Persist Deployment Info", err)
	}
}

func interpolateDeployment(interp *interpolate.Interpolator, cfg *types.DeploymentConfig) error {
	var err error
	if cfg.Environment, err = interp.String(cfg.Environment); err != nil {
		return err
	}
	if cfg.Command, err = interp.String(cfg.Command); err != nil {
		return err
	}
	if cfg.ExtraArgs, err = interp.Strings(cfg.ExtraArgs); err != nil {
		return err
	}
	if cfg.Ports, err = interp.Strings(cfg.Ports); err != nil {
		return err
	}
	if cfg.Volumes, err = interp.Strings(cfg.Volumes); err != nil {
		return err
	}
	return nil
}

func terminationSignal(cfg *types.DeploymentConfig) types.TerminationSignal {
	if cfg.TerminationSignal == "" {
		return types.SigTerm
	}
	return cfg.TerminationSignal
}

func terminationTimeout(cfg *types.DeploymentConfig) int {
	if cfg.TerminationTimeout == 0 {
		return 10
	}
	return cfg.TerminationTimeout
}

// imageTag extracts the tag portion of an image reference, defaulting to
// latest.
func imageTag(image string) string {
	for i := len(image) - 1; i >= 0; i-- {
		switch image[i] {
		case ':':
			return image[i+1:]
		case '/':
			return "latest"
		}
	}
	return "latest"
}

// PullDeployment pulls the deployment's resolved image through the
// dedup cache, so concurrent pulls of one image on one server coalesce.
func (e *Engine) PullDeployment(ctx context.Context, user, nameOrID string) (*types.Update, error) {
	d, err := e.resolveDeployment(user, nameOrID)
	if err != nil {
		return nil, err
	}
	guard, err := e.Guards.Acquire(types.KindDeployment, d.ID, func(f *actionstate.Flags) { f.Pulling = true })
	if err != nil {
		return nil, err
	}
	defer guard.Release()

	u, err := e.openUpdate(types.OpPullDeployment, types.ResourceTarget{Type: types.KindDeployment, ID: d.ID}, user)
	if err != nil {
		return nil, err
	}

	image, account, _, err := e.resolveImage(d)
	if err != nil {
		u.PushError("Resolve Image", err)
		return e.finish(ctx, u, ""), nil
	}
	_, client, err := e.serverFor(d.Config.ServerID)
	if err != nil {
		u.PushError("Resolve Server", err)
		return e.finish(ctx, u, ""), nil
	}

	token := registry.Token(e.Cfg, registry.ImageDomain(image), account)
	pullLog, err := e.Pulls.Pull(ctx, d.Config.ServerID, image, func(ctx context.Context) (types.Log, error) {
		return client.PullImage(ctx, periphery.PullImageRequest{
			Name:    image,
			Account: account,
			Token:   token,
		})
	})
	if err != nil {
		u.PushError("Pull Image", err)
	} else {
		u.PushLog(pullLog)
	}
	return e.finish(ctx, u, d.Config.ServerID), nil
}

// containerOp is the shared thin wrapper for direct container commands.
func (e *Engine) containerOp(
	ctx context.Context,
	user, nameOrID string,
	op types.Operation,
	set func(*actionstate.Flags),
	stage string,
	dispatch func(ctx context.Context, client *periphery.Client, d *types.Deployment) (types.Log, error),
) (*types.Update, error) {
	d, err := e.resolveDeployment(user, nameOrID)
	if err != nil {
		return nil, err
	}
	guard, err := e.Guards.Acquire(types.KindDeployment, d.ID, set)
	if err != nil {
		return nil, err
	}
	defer guard.Release()

	u, err := e.openUpdate(op, types.ResourceTarget{Type: types.KindDeployment, ID: d.ID}, user)
	if err != nil {
		return nil, err
	}
	_, client, err := e.serverFor(d.Config.ServerID)
	if err != nil {
		u.PushError("Resolve Server", err)
		return e.finish(ctx, u, ""), nil
	}
	opLog, err := dispatch(ctx, client, d)
	if err != nil {
		u.PushError(stage, err)
	} else {
		u.PushLog(opLog)
	}
	return e.finish(ctx, u, d.Config.ServerID), nil
}

func (e *Engine) StartContainer(ctx context.Context, user, nameOrID string) (*types.Update, error) {
	return e.containerOp(ctx, user, nameOrID, types.OpStartContainer,
		func(f *actionstate.Flags) { f.Starting = true }, "Start Container",
		func(ctx context.Context, client *periphery.Client, d *types.Deployment) (types.Log, error) {
			return client.StartContainer(ctx, state.ContainerName(d.Name))
		})
}

func (e *Engine) RestartContainer(ctx context.Context, user, nameOrID string) (*types.Update, error) {
	return e.containerOp(ctx, user, nameOrID, types.OpRestartContainer,
		func(f *actionstate.Flags) { f.Restarting = true }, "Restart Container",
		func(ctx context.Context, client *periphery.Client, d *types.Deployment) (types.Log, error) {
			return client.RestartContainer(ctx, state.ContainerName(d.Name))
		})
}

func (e *Engine) PauseContainer(ctx context.Context, user, nameOrID string) (*types.Update, error) {
	return e.containerOp(ctx, user, nameOrID, types.OpPauseContainer,
		func(f *actionstate.Flags) { f.Pausing = true }, "Pause Container",
		func(ctx context.Context, client *periphery.Client, d *types.Deployment) (types.Log, error) {
			return client.PauseContainer(ctx, state.ContainerName(d.Name))
		})
}

func (e *Engine) UnpauseContainer(ctx context.Context, user, nameOrID string) (*types.Update, error) {
	return e.containerOp(ctx, user, nameOrID, types.OpUnpauseContainer,
		func(f *actionstate.Flags) { f.Unpausing = true }, "Unpause Container",
		func(ctx context.Context, client *periphery.Client, d *types.Deployment) (types.Log, error) {
			return client.UnpauseContainer(ctx, state.ContainerName(d.Name))
		})
}

// StopContainer stops the deployment's container. Signal and time
// override the config defaults when non-zero.
func (e *Engine) StopContainer(ctx context.Context, user, nameOrID string, signal types.TerminationSignal, stopTime int) (*types.Update, error) {
	return e.containerOp(ctx, user, nameOrID, types.OpStopContainer,
		func(f *actionstate.Flags) { f.Stopping = true }, "Stop Container",
		func(ctx context.Context, client *periphery.Client, d *types.Deployment) (types.Log, error) {
			return client.StopContainer(ctx, periphery.StopContainerRequest{
				Name:   state.ContainerName(d.Name),
				Signal: overrideSignal(signal, &d.Config),
				Time:   overrideTimeout(stopTime, &d.Config),
			})
		})
}

// DestroyDeployment removes the deployment's container. The DB record
// survives.
func (e *Engine) DestroyDeployment(ctx context.Context, user, nameOrID string, signal types.TerminationSignal, stopTime int) (*types.Update, error) {
	return e.containerOp(ctx, user, nameOrID, types.OpDestroyContainer,
		func(f *actionstate.Flags) { f.Destroying = true }, "Destroy Container",
		func(ctx context.Context, client *periphery.Client, d *types.Deployment) (types.Log, error) {
			return client.RemoveContainer(ctx, periphery.StopContainerRequest{
				Name:   state.ContainerName(d.Name),
				Signal: overrideSignal(signal, &d.Config),
				Time:   overrideTimeout(stopTime, &d.Config),
			})
		})
}

func overrideSignal(signal types.TerminationSignal, cfg *types.DeploymentConfig) types.TerminationSignal {
	if signal != "" {
		return signal
	}
	return terminationSignal(cfg)
}

func overrideTimeout(stopTime int, cfg *types.DeploymentConfig) int {
	if stopTime > 0 {
		return stopTime
	}
	return terminationTimeout(cfg)
}

// RenameDeployment renames the DB record and, when deployed, the live
// container first. An Unknown container state rejects the rename.
func (e *Engine) RenameDeployment(ctx context.Context, user, nameOrID, newName string) (*types.Update, error) {
	d, err := storage.FindResource[types.DeploymentConfig, types.DeploymentInfo](e.Store, types.KindDeployment, nameOrID)
	if err != nil {
		return nil, err
	}
	target := types.ResourceTarget{Type: types.KindDeployment, ID: d.ID}
	if err := e.Access.Require(user, target, d.BasePermission, types.PermissionWrite); err != nil {
		return nil, err
	}

	containerState := e.States.DeploymentState(d.Config.ServerID, state.ContainerName(d.Name))
	if containerState == types.StateUnknown {
		return nil, errs.InvalidConfig("rename deployment", "cannot rename %s while its container state is unknown", d.Name)
	}

	guard, err := e.Guards.Acquire(types.KindDeployment, d.ID, func(f *actionstate.Flags) { f.Renaming = true })
	if err != nil {
		return nil, err
	}
	defer guard.Release()

	u, err := e.openUpdate(types.OpRenameDeployment, target, user)
	if err != nil {
		return nil, err
	}

	if containerState != types.StateNotDeployed {
		_, client, err := e.serverFor(d.Config.ServerID)
		if err != nil {
			u.PushError("Resolve Server", err)
			return e.finish(ctx, u, ""), nil
		}
		renameLog, err := client.RenameContainer(ctx, state.ContainerName(d.Name), state.ContainerName(newName))
		if err != nil {
			// Abort the DB rename when the live rename failed.
			u.PushError("Rename Container", err)
			return e.finish(ctx, u, d.Config.ServerID), nil
		}
		u.PushLog(renameLog)
		if !renameLog.Success {
			return e.finish(ctx, u, d.Config.ServerID), nil
		}
	}

	oldName := d.Name
	d.Name = newName
	if err := storage.SaveResource(e.Store, types.KindDeployment, d); err != nil {
		u.PushError("Persist Rename", err)
		return e.finish(ctx, u, d.Config.ServerID), nil
	}
	u.PushLog(types.SimpleLog("Rename Deployment", fmt.Sprintf("renamed %s to %s", oldName, newName)))
	return e.finish(ctx, u, d.Config.ServerID), nil
}

// DeleteDeployment destroys the live container best-effort, then the
// permissions naming the deployment, then the row.
func (e *Engine) DeleteDeployment(ctx context.Context, user, nameOrID string) (*types.Update, error) {
	d, err := storage.FindResource[types.DeploymentConfig, types.DeploymentInfo](e.Store, types.KindDeployment, nameOrID)
	if err != nil {
		return nil, err
	}
	target := types.ResourceTarget{Type: types.KindDeployment, ID: d.ID}
	if err := e.Access.Require(user, target, d.BasePermission, types.PermissionWrite); err != nil {
		return nil, err
	}
	guard, err := e.Guards.Acquire(types.KindDeployment, d.ID, func(f *actionstate.Flags) { f.Deleting = true })
	if err != nil {
		return nil, err
	}
	defer guard.Release()

	u, err := e.openUpdate(types.OpDeleteDeployment, target, user)
	if err != nil {
		return nil, err
	}

	// Destroy the container first; an unreachable server does not block
	// deletion.
	containerState := e.States.DeploymentState(d.Config.ServerID, state.ContainerName(d.Name))
	if d.Config.ServerID != "" && containerState != types.StateNotDeployed {
		if _, client, err := e.serverFor(d.Config.ServerID); err == nil {
			removeLog, err := client.RemoveContainer(ctx, periphery.StopContainerRequest{
				Name:   state.ContainerName(d.Name),
				Signal: terminationSignal(&d.Config),
				Time:   terminationTimeout(&d.Config),
			})
			if err != nil {
				u.PushLog(types.SimpleLog("Destroy Container",
					fmt.Sprintf("server unreachable, skipping container destroy: %v", err)))
			} else {
				u.PushLog(removeLog)
			}
		}
	}

	if err := e.Store.DeletePermissionsForResource(target); err != nil {
		u.PushError("Delete Permissions", err)
	}
	if err := e.Store.DeleteResource(types.KindDeployment, d.ID); err != nil {
		u.PushError("Delete Deployment", err)
		return e.finish(ctx, u, d.Config.ServerID), nil
	}
	e.Guards.Clear(types.KindDeployment, d.ID)
	u.PushLog(types.SimpleLog("Delete Deployment", fmt.Sprintf("deleted deployment %s", d.Name)))
	return e.finish(ctx, u, d.Config.ServerID), nil
}
