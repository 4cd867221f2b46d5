package syncer

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/komodohq/komodo/pkg/manifest"
	"github.com/komodohq/komodo/pkg/state"
	"github.com/komodohq/komodo/pkg/storage"
	"github.com/komodohq/komodo/pkg/types"
)

// deployAffectingDeploymentFields are the deployment config fields whose
// change requires a container replacement.
var deployAffectingDeploymentFields = map[string]bool{
	"server_id":              true,
	"image":                  true,
	"image_registry_account": true,
	"skip_secret_interp":     true,
	"network":                true,
	"restart":                true,
	"command":                true,
	"extra_args":             true,
	"ports":                  true,
	"volumes":                true,
	"environment":            true,
	"labels":                 true,
}

// deployAffectingStackFields are the stack config fields whose change
// requires a compose redeploy.
var deployAffectingStackFields = map[string]bool{
	"server_id":          true,
	"project_name":       true,
	"run_directory":      true,
	"file_paths":         true,
	"file_contents":      true,
	"skip_secret_interp": true,
	"extra_args":         true,
	"environment":        true,
	"env_file_path":      true,
	"repo":               true,
	"branch":             true,
	"commit":             true,
}

// deployItem is one pending (re)deploy, with the parents that must go
// first.
type deployItem struct {
	target types.ResourceTarget
	name   string
	reason string
	after  []string // names of parents that also deploy
}

type deployDecision struct {
	deploys bool
	reason  string
}

// buildDeployCache decides, against the pre-sync DB and live state,
// which deploy=true items need a (re)deploy. Parents in after propagate
// their decision; cycles resolve as won't-deploy.
func (s *Syncer) buildDeployCache(res *manifest.ResourcesToml, sync *types.ResourceSync, tables *nameTables) ([]deployItem, error) {
	items := map[string]manifest.ResourceToml{}
	kinds := map[string]types.ResourceKind{}
	for _, it := range res.Deployments {
		if includeResource(sync, types.KindDeployment, it.Name, sortedCopy(it.Tags), tables) {
			items[it.Name] = it
			kinds[it.Name] = types.KindDeployment
		}
	}
	for _, it := range res.Stacks {
		if includeResource(sync, types.KindStack, it.Name, sortedCopy(it.Tags), tables) {
			items[it.Name] = it
			kinds[it.Name] = types.KindStack
		}
	}

	memo := map[string]deployDecision{}
	visiting := map[string]bool{}

	var decide func(name string) deployDecision
	decide = func(name string) deployDecision {
		if d, ok := memo[name]; ok {
			return d
		}
		// An in-progress visit means a cycle; treat it as won't-deploy so
		// the recursion terminates.
		if visiting[name] {
			return deployDecision{}
		}
		it, ok := items[name]
		if !ok || !it.Deploy {
			memo[name] = deployDecision{}
			return memo[name]
		}
		visiting[name] = true
		defer delete(visiting, name)

		d := s.selfDecision(it, kinds[name], tables)
		if !d.deploys && d.reason != reasonSkip {
			for _, parent := range it.After {
				if decide(parent).deploys {
					d = deployDecision{deploys: true, reason: fmt.Sprintf("parent %s is deploying", parent)}
					break
				}
			}
		}
		if d.reason == reasonSkip {
			d = deployDecision{}
		}
		memo[name] = d
		return d
	}

	var names []string
	for name := range items {
		names = append(names, name)
	}
	sort.Strings(names)

	var out []deployItem
	for _, name := range names {
		d := decide(name)
		if !d.deploys {
			continue
		}
		it := items[name]
		var after []string
		for _, parent := range it.After {
			if memo[parent].deploys {
				after = append(after, parent)
			}
		}
		kind := kinds[name]
		targetID := name
		if id, ok := tables.nameToID[kind][name]; ok {
			targetID = id
		}
		out = append(out, deployItem{
			target: types.ResourceTarget{Type: kind, ID: targetID},
			name:   name,
			reason: d.reason,
			after:  after,
		})
	}
	return out, nil
}

// reasonSkip marks an Unknown live state: the engine cannot decide, so
// the item neither deploys nor propagates.
const reasonSkip = "skip"

func (s *Syncer) selfDecision(it manifest.ResourceToml, kind types.ResourceKind, tables *nameTables) deployDecision {
	switch kind {
	case types.KindDeployment:
		return s.deploymentDecision(it, tables)
	case types.KindStack:
		return s.stackDecision(it, tables)
	default:
		return deployDecision{}
	}
}

func (s *Syncer) deploymentDecision(it manifest.ResourceToml, tables *nameTables) deployDecision {
	d, err := storage.GetResourceByName[types.DeploymentConfig, types.DeploymentInfo](s.eng.Store, types.KindDeployment, it.Name)
	if err != nil {
		return deployDecision{deploys: true, reason: "deploy on creation"}
	}

	liveState := s.eng.States.DeploymentState(d.Config.ServerID, state.ContainerName(d.Name))
	switch liveState {
	case types.StateUnknown:
		return deployDecision{reason: reasonSkip}

	case types.StateRunning:
		if changed, err := configChanged(d.Config, it.Config, types.DefaultDeploymentConfig(), deployAffectingDeploymentFields, tables); err != nil || changed {
			return deployDecision{deploys: true, reason: "config has changed"}
		}
		if s.buildVersionDrifted(d) {
			return deployDecision{deploys: true, reason: "a newer build version is available"}
		}
		return deployDecision{}

	default:
		return deployDecision{deploys: true, reason: fmt.Sprintf("current state is %s", liveState)}
	}
}

func (s *Syncer) stackDecision(it manifest.ResourceToml, tables *nameTables) deployDecision {
	st, err := storage.GetResourceByName[types.StackConfig, types.StackInfo](s.eng.Store, types.KindStack, it.Name)
	if err != nil {
		return deployDecision{deploys: true, reason: "deploy on creation"}
	}

	liveState := s.eng.States.StackState(st.Config.ServerID, types.StackProjectName(st, true))
	switch liveState {
	case types.StateUnknown:
		return deployDecision{reason: reasonSkip}

	case types.StateRunning:
		if changed, err := configChanged(st.Config, it.Config, types.DefaultStackConfig(), deployAffectingStackFields, tables); err != nil || changed {
			return deployDecision{deploys: true, reason: "config has changed"}
		}
		if contentsDiverged(st.Info.DeployedContents, st.Info.RemoteContents) {
			return deployDecision{deploys: true, reason: "file contents have changed"}
		}
		return deployDecision{}

	default:
		return deployDecision{deploys: true, reason: fmt.Sprintf("current state is %s", liveState)}
	}
}

// configChanged projects the TOML config onto the kind defaults and
// reports whether any deploy-affecting field diverges from the stored
// config.
func configChanged[C any](current C, partial map[string]any, defaults C, affecting map[string]bool, tables *nameTables) (bool, error) {
	projected, err := manifest.ProjectConfig(defaults, manifest.RewriteLinkedIDs(partial, tables.namesToIDs))
	if err != nil {
		return false, err
	}
	diff, err := diffAgainst(current, projected, tables)
	if err != nil {
		return false, err
	}
	for _, field := range diff {
		if affecting[field.Field] {
			return true, nil
		}
	}
	return false, nil
}

// buildVersionDrifted reports whether a follow-latest build deployment
// runs an older image than the build's current version.
func (s *Syncer) buildVersionDrifted(d *types.Deployment) bool {
	if d.Config.Image.Type != types.ImageKindBuild || !d.Config.Image.Version.IsZero() {
		return false
	}
	b, err := storage.GetResource[types.BuildConfig, types.BuildInfo](s.eng.Store, types.KindBuild, d.Config.Image.BuildID)
	if err != nil {
		return false
	}
	return d.Info.DeployedVersion != "" && !strings.HasPrefix(d.Info.DeployedVersion, b.Config.Version.String())
}

// contentsDiverged compares deployed and remote stack files per path.
func contentsDiverged(deployed, remote []types.FileContents) bool {
	if len(remote) == 0 {
		return false
	}
	byPath := map[string]string{}
	for _, f := range deployed {
		byPath[f.Path] = f.Contents
	}
	for _, f := range remote {
		if contents, ok := byPath[f.Path]; !ok || contents != f.Contents {
			return true
		}
	}
	return false
}

// drainDeploys runs the deploy cache in rounds: every item whose
// parents have all deployed goes in the current round, in parallel. Any
// failure aborts the remaining rounds.
func (s *Syncer) drainDeploys(ctx context.Context, items []deployItem, u *types.Update) {
	if len(items) == 0 {
		return
	}
	pending := map[string]deployItem{}
	for _, it := range items {
		pending[it.name] = it
	}

	round := 0
	for len(pending) > 0 {
		var ready []deployItem
		for _, it := range pending {
			blocked := false
			for _, parent := range it.after {
				if _, waiting := pending[parent]; waiting && parent != it.name {
					blocked = true
					break
				}
			}
			if !blocked {
				ready = append(ready, it)
			}
		}
		if len(ready) == 0 {
			u.PushError("Deploy Resources", fmt.Errorf("dependency cycle among pending deploys"))
			return
		}
		sort.Slice(ready, func(i, j int) bool { return ready[i].name < ready[j].name })

		if round > 0 {
			select {
			case <-ctx.Done():
				u.PushError("Deploy Resources", ctx.Err())
				return
			case <-time.After(time.Second):
			}
		}
		round++

		var mu sync.Mutex
		var deployed, failed []string
		var g errgroup.Group
		for _, it := range ready {
			it := it
			g.Go(func() error {
				var du *types.Update
				var err error
				switch it.target.Type {
				case types.KindDeployment:
					du, err = s.eng.Deploy(ctx, types.SyncUserID, it.target.ID)
				case types.KindStack:
					du, err = s.eng.DeployStack(ctx, types.SyncUserID, it.target.ID, "")
				}
				mu.Lock()
				defer mu.Unlock()
				if err != nil || du == nil || !du.Success {
					detail := it.name
					if err != nil {
						detail += ": " + err.Error()
					}
					failed = append(failed, detail)
				} else {
					deployed = append(deployed, fmt.Sprintf("%s (%s)", it.name, it.reason))
				}
				return nil
			})
		}
		g.Wait()

		if len(failed) > 0 {
			u.PushError("Deploy Resources", fmt.Errorf("failed: %s", strings.Join(failed, "; ")))
			return
		}
		u.PushLog(types.SimpleLog("Deploy Resources", "deployed: "+strings.Join(deployed, ", ")))
		for _, it := range ready {
			delete(pending, it.name)
		}
	}
}
