package execute

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/komodohq/komodo/pkg/actionstate"
	"github.com/komodohq/komodo/pkg/compose"
	"github.com/komodohq/komodo/pkg/errs"
	"github.com/komodohq/komodo/pkg/git"
	"github.com/komodohq/komodo/pkg/interpolate"
	"github.com/komodohq/komodo/pkg/periphery"
	"github.com/komodohq/komodo/pkg/registry"
	"github.com/komodohq/komodo/pkg/storage"
	"github.com/komodohq/komodo/pkg/types"
)

func (e *Engine) resolveStack(user, nameOrID string, level types.PermissionLevel) (*types.Stack, error) {
	s, err := storage.FindResource[types.StackConfig, types.StackInfo](e.Store, types.KindStack, nameOrID)
	if err != nil {
		return nil, err
	}
	target := types.ResourceTarget{Type: types.KindStack, ID: s.ID}
	if err := e.Access.Require(user, target, s.BasePermission, level); err != nil {
		return nil, err
	}
	return s, nil
}

// DeployStack brings the stack's compose project up on its server.
func (e *Engine) DeployStack(ctx context.Context, user, nameOrID, service string) (*types.Update, error) {
	s, err := e.resolveStack(user, nameOrID, types.PermissionExecute)
	if err != nil {
		return nil, err
	}
	guard, err := e.Guards.Acquire(types.KindStack, s.ID, func(f *actionstate.Flags) { f.Deploying = true })
	if err != nil {
		return nil, err
	}
	defer guard.Release()

	u, err := e.openUpdate(types.OpDeployStack, types.ResourceTarget{Type: types.KindStack, ID: s.ID}, user)
	if err != nil {
		return nil, err
	}
	e.deployStack(ctx, s, u, service)
	return e.finish(ctx, u, s.Config.ServerID), nil
}

// deployStack is the guard-free inner path, shared with
// DeployStackIfChanged and the sync drain.
func (e *Engine) deployStack(ctx context.Context, s *types.Stack, u *types.Update, service string) {
	dispatch := *s

	var replacers []interpolate.Replacer
	if !s.Config.SkipSecretInterp {
		interp, err := e.interpolator()
		if err != nil {
			u.PushError("Interpolate", err)
			return
		}
		if err := interpolateStack(interp, &dispatch.Config); err != nil {
			u.PushError("Interpolate", err)
			return
		}
		if summary := interp.SummaryLog(); summary != nil {
			u.PushLog(*summary)
		}
		replacers = interp.Replacers()
	}

	_, client, err := e.serverFor(s.Config.ServerID)
	if err != nil {
		u.PushError("Resolve Server", err)
		return
	}

	resp, err := client.ComposeUp(ctx, periphery.ComposeUpRequest{
		Stack:         &dispatch,
		Service:       service,
		GitToken:      e.Cfg.GitToken(gitProvider(s.Config.GitProvider), s.Config.GitAccount),
		RegistryToken: registry.Token(e.Cfg, s.Config.RegistryProvider, s.Config.RegistryAccount),
		Replacers:     replacers,
	})
	if err != nil {
		u.PushError("Compose Up", err)
		return
	}
	for _, l := range resp.Logs {
		u.PushLog(l)
	}
	u.CommitHash = resp.CommitHash

	s.Info.MissingFiles = resp.MissingFiles
	if resp.Deployed {
		s.Info.DeployedProjectName = types.StackProjectName(s, false)
		s.Info.DeployedContents = resp.FileContents
		s.Info.DeployedServices = resp.Services
		s.Info.DeployedHash = resp.CommitHash
		s.Info.DeployedMessage = resp.CommitMessage
		s.Info.LastDeployedAt = u.StartTS
	}
	if len(resp.Services) > 0 {
		s.Info.LatestServices = resp.Services
	}
	// Remote fields track remotely sourced stacks only; inline contents
	// are already authoritative in config.
	if s.Config.FileContents == "" {
		if len(resp.FileContents) > 0 {
			s.Info.RemoteContents = resp.FileContents
		}
		s.Info.RemoteErrors = resp.RemoteErrors
		if resp.CommitHash != "" {
			s.Info.LatestHash = resp.CommitHash
			s.Info.LatestMessage = resp.CommitMessage
		}
	}
	if err := storage.SaveResource(e.Store, types.KindStack, s); err != nil {
		u.PushError("Persist Stack Info", err)
	}
}

func interpolateStack(interp *interpolate.Interpolator, cfg *types.StackConfig) error {
	var err error
	if cfg.FileContents, err = interp.String(cfg.FileContents); err != nil {
		return err
	}
	if cfg.Environment, err = interp.String(cfg.Environment); err != nil {
		return err
	}
	if cfg.ExtraArgs, err = interp.Strings(cfg.ExtraArgs); err != nil {
		return err
	}
	if cfg.BuildExtraArgs, err = interp.Strings(cfg.BuildExtraArgs); err != nil {
		return err
	}
	if cfg.PreDeploy, err = interp.Command(cfg.PreDeploy); err != nil {
		return err
	}
	return nil
}

func gitProvider(provider string) string {
	if provider == "" {
		return "github.com"
	}
	return provider
}

// DeployStackIfChanged refreshes the stack's remote contents and only
// deploys when they diverge from what is deployed. The guard is taken
// once here; the deploy goes through the inner path.
func (e *Engine) DeployStackIfChanged(ctx context.Context, user, nameOrID string) (*types.Update, error) {
	s, err := e.resolveStack(user, nameOrID, types.PermissionExecute)
	if err != nil {
		return nil, err
	}
	guard, err := e.Guards.Acquire(types.KindStack, s.ID, func(f *actionstate.Flags) { f.Deploying = true })
	if err != nil {
		return nil, err
	}
	defer guard.Release()

	u, err := e.openUpdate(types.OpDeployStackIfChanged, types.ResourceTarget{Type: types.KindStack, ID: s.ID}, user)
	if err != nil {
		return nil, err
	}

	remote, err := e.RefreshStackRemote(ctx, s)
	if err != nil {
		u.PushError("Refresh Remote Contents", err)
		return e.finish(ctx, u, ""), nil
	}

	if !stackContentsChanged(s.Info.DeployedContents, remote) {
		u.PushLog(types.SimpleLog("Compare Contents", "stack contents have not changed; skipping deploy"))
		return e.finish(ctx, u, ""), nil
	}

	u.PushLog(types.SimpleLog("Compare Contents", "stack contents have changed; deploying"))
	e.deployStack(ctx, s, u, "")
	return e.finish(ctx, u, s.Config.ServerID), nil
}

// stackContentsChanged compares by (path, contents) equality.
func stackContentsChanged(deployed, remote []types.FileContents) bool {
	if len(deployed) != len(remote) {
		return true
	}
	byPath := map[string]string{}
	for _, f := range deployed {
		byPath[f.Path] = f.Contents
	}
	for _, f := range remote {
		contents, ok := byPath[f.Path]
		if !ok || contents != f.Contents {
			return true
		}
	}
	return false
}

// RefreshStackRemote recomputes the stack's remote compose contents on
// the core and persists them on the stack info. Inline stacks answer
// their config contents; files_on_host stacks keep the agent-reported
// cache since their files never touch the core host.
func (e *Engine) RefreshStackRemote(ctx context.Context, s *types.Stack) ([]types.FileContents, error) {
	if s.Config.FileContents != "" {
		return []types.FileContents{{Path: firstFilePath(&s.Config), Contents: s.Config.FileContents}}, nil
	}
	if s.Config.FilesOnHost {
		return s.Info.RemoteContents, nil
	}
	if s.Config.Repo == "" {
		return nil, errs.InvalidConfig("refresh stack", "stack %s has no compose source configured", s.Name)
	}

	dest := filepath.Join(e.Cfg.DataDir, "stacks", s.ID)
	result, err := git.PullOrClone(ctx, git.CloneArgs{
		Repo:     s.Config.Repo,
		Provider: gitProvider(s.Config.GitProvider),
		Branch:   s.Config.Branch,
		Commit:   s.Config.Commit,
		Token:    e.Cfg.GitToken(gitProvider(s.Config.GitProvider), s.Config.GitAccount),
		Dest:     dest,
	})
	if err != nil {
		return nil, err
	}

	var contents []types.FileContents
	var remoteErrors []types.FileContents
	for _, path := range filePaths(&s.Config) {
		full := filepath.Join(dest, s.Config.RunDirectory, path)
		data, err := readFile(full)
		if err != nil {
			remoteErrors = append(remoteErrors, types.FileContents{Path: path, Contents: err.Error()})
			continue
		}
		contents = append(contents, types.FileContents{Path: path, Contents: data})
	}

	s.Info.RemoteContents = contents
	s.Info.RemoteErrors = remoteErrors
	s.Info.LatestHash = result.Hash
	s.Info.LatestMessage = result.Message
	s.Info.LatestServices = compose.ExtractAllServices(contents, s.Config.IgnoreServices)
	if err := storage.SaveResource(e.Store, types.KindStack, s); err != nil {
		return nil, err
	}
	return contents, nil
}

func readFile(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

func filePaths(cfg *types.StackConfig) []string {
	if len(cfg.FilePaths) > 0 {
		return cfg.FilePaths
	}
	return []string{"compose.yaml"}
}

func firstFilePath(cfg *types.StackConfig) string {
	return filePaths(cfg)[0]
}

// stackOp is the shared wrapper for compose lifecycle commands. The
// deployed project name is authoritative when targeting an existing
// project.
func (e *Engine) stackOp(
	ctx context.Context,
	user, nameOrID string,
	op types.Operation,
	set func(*actionstate.Flags),
	command string,
	signal types.TerminationSignal,
	stopTime int,
) (*types.Update, error) {
	s, err := e.resolveStack(user, nameOrID, types.PermissionExecute)
	if err != nil {
		return nil, err
	}
	guard, err := e.Guards.Acquire(types.KindStack, s.ID, set)
	if err != nil {
		return nil, err
	}
	defer guard.Release()

	u, err := e.openUpdate(op, types.ResourceTarget{Type: types.KindStack, ID: s.ID}, user)
	if err != nil {
		return nil, err
	}
	_, client, err := e.serverFor(s.Config.ServerID)
	if err != nil {
		u.PushError("Resolve Server", err)
		return e.finish(ctx, u, ""), nil
	}
	opLog, err := client.ComposeExecution(ctx, periphery.ComposeExecutionRequest{
		Project: types.StackProjectName(s, true),
		Command: command,
		Signal:  signal,
		Time:    stopTime,
	})
	if err != nil {
		u.PushError("Compose "+command, err)
	} else {
		u.PushLog(opLog)
	}
	return e.finish(ctx, u, s.Config.ServerID), nil
}

func (e *Engine) PullStack(ctx context.Context, user, nameOrID string) (*types.Update, error) {
	return e.stackOp(ctx, user, nameOrID, types.OpPullStack,
		func(f *actionstate.Flags) { f.Pulling = true }, "pull", "", 0)
}

func (e *Engine) StartStack(ctx context.Context, user, nameOrID string) (*types.Update, error) {
	return e.stackOp(ctx, user, nameOrID, types.OpStartStack,
		func(f *actionstate.Flags) { f.Starting = true }, "start", "", 0)
}

func (e *Engine) RestartStack(ctx context.Context, user, nameOrID string) (*types.Update, error) {
	return e.stackOp(ctx, user, nameOrID, types.OpRestartStack,
		func(f *actionstate.Flags) { f.Restarting = true }, "restart", "", 0)
}

func (e *Engine) PauseStack(ctx context.Context, user, nameOrID string) (*types.Update, error) {
	return e.stackOp(ctx, user, nameOrID, types.OpPauseStack,
		func(f *actionstate.Flags) { f.Pausing = true }, "pause", "", 0)
}

func (e *Engine) UnpauseStack(ctx context.Context, user, nameOrID string) (*types.Update, error) {
	return e.stackOp(ctx, user, nameOrID, types.OpUnpauseStack,
		func(f *actionstate.Flags) { f.Unpausing = true }, "unpause", "", 0)
}

func (e *Engine) StopStack(ctx context.Context, user, nameOrID string, signal types.TerminationSignal, stopTime int) (*types.Update, error) {
	return e.stackOp(ctx, user, nameOrID, types.OpStopStack,
		func(f *actionstate.Flags) { f.Stopping = true }, "stop", signal, stopTime)
}

func (e *Engine) DestroyStack(ctx context.Context, user, nameOrID string, signal types.TerminationSignal, stopTime int) (*types.Update, error) {
	return e.stackOp(ctx, user, nameOrID, types.OpDestroyStack,
		func(f *actionstate.Flags) { f.Destroying = true }, "down", signal, stopTime)
}

// RenameStack renames the DB record. The deployed project keeps its
// recorded name so teardown still targets the running project; an
// Unknown state rejects the rename.
func (e *Engine) RenameStack(ctx context.Context, user, nameOrID, newName string) (*types.Update, error) {
	s, err := e.resolveStack(user, nameOrID, types.PermissionWrite)
	if err != nil {
		return nil, err
	}
	target := types.ResourceTarget{Type: types.KindStack, ID: s.ID}

	stackState := e.States.StackState(s.Config.ServerID, types.StackProjectName(s, true))
	if stackState == types.StateUnknown {
		return nil, errs.InvalidConfig("rename stack", "cannot rename %s while its state is unknown", s.Name)
	}

	guard, err := e.Guards.Acquire(types.KindStack, s.ID, func(f *actionstate.Flags) { f.Renaming = true })
	if err != nil {
		return nil, err
	}
	defer guard.Release()

	u, err := e.openUpdate(types.OpRenameStack, target, user)
	if err != nil {
		return nil, err
	}

	// Pin the running project name before the rename changes what the
	// fallback would derive.
	if stackState != types.StateNotDeployed && s.Info.DeployedProjectName == "" {
		s.Info.DeployedProjectName = types.StackProjectName(s, false)
	}
	oldName := s.Name
	s.Name = newName
	if err := storage.SaveResource(e.Store, types.KindStack, s); err != nil {
		u.PushError("Persist Rename", err)
		return e.finish(ctx, u, ""), nil
	}
	u.PushLog(types.SimpleLog("Rename Stack", fmt.Sprintf("renamed %s to %s", oldName, newName)))
	return e.finish(ctx, u, ""), nil
}

// DeleteStack tears the compose project down best-effort, then deletes
// permissions and the row.
func (e *Engine) DeleteStack(ctx context.Context, user, nameOrID string) (*types.Update, error) {
	s, err := e.resolveStack(user, nameOrID, types.PermissionWrite)
	if err != nil {
		return nil, err
	}
	target := types.ResourceTarget{Type: types.KindStack, ID: s.ID}
	guard, err := e.Guards.Acquire(types.KindStack, s.ID, func(f *actionstate.Flags) { f.Deleting = true })
	if err != nil {
		return nil, err
	}
	defer guard.Release()

	u, err := e.openUpdate(types.OpDeleteStack, target, user)
	if err != nil {
		return nil, err
	}

	project := types.StackProjectName(s, true)
	stackState := e.States.StackState(s.Config.ServerID, project)
	if s.Config.ServerID != "" && stackState != types.StateNotDeployed {
		if _, client, err := e.serverFor(s.Config.ServerID); err == nil {
			downLog, err := client.ComposeExecution(ctx, periphery.ComposeExecutionRequest{
				Project: project,
				Command: "down",
			})
			if err != nil {
				u.PushLog(types.SimpleLog("Destroy Stack",
					fmt.Sprintf("server unreachable, skipping compose down: %v", err)))
			} else {
				u.PushLog(downLog)
			}
		}
	}

	if err := e.Store.DeletePermissionsForResource(target); err != nil {
		u.PushError("Delete Permissions", err)
	}
	if err := e.Store.DeleteResource(types.KindStack, s.ID); err != nil {
		u.PushError("Delete Stack", err)
		return e.finish(ctx, u, s.Config.ServerID), nil
	}
	e.Guards.Clear(types.KindStack, s.ID)
	u.PushLog(types.SimpleLog("Delete Stack", fmt.Sprintf("deleted stack %s", s.Name)))
	return e.finish(ctx, u, s.Config.ServerID), nil
}
