package syncer

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/komodohq/komodo/pkg/manifest"
	"github.com/komodohq/komodo/pkg/metrics"
	"github.com/komodohq/komodo/pkg/storage"
	"github.com/komodohq/komodo/pkg/types"
)

// applyKind reconciles one resource kind against the incoming TOML
// blocks, pushing a stage log onto u.
func (s *Syncer) applyKind(ctx context.Context, sync *types.ResourceSync, kind types.ResourceKind, items []manifest.ResourceToml, tables *nameTables, u *types.Update) {
	s.dispatchKind(ctx, sync, kind, items, tables, u)
}

// planSummary computes the pending changes for one kind without writing
// anything.
func (s *Syncer) planSummary(sync *types.ResourceSync, kind types.ResourceKind, items []manifest.ResourceToml, tables *nameTables) types.SyncKindSummary {
	return s.dispatchKind(context.Background(), sync, kind, items, tables, nil)
}

// dispatchKind binds each kind to its config defaults. A nil update
// means plan-only.
func (s *Syncer) dispatchKind(ctx context.Context, sync *types.ResourceSync, kind types.ResourceKind, items []manifest.ResourceToml, tables *nameTables, u *types.Update) types.SyncKindSummary {
	switch kind {
	case types.KindServer:
		return syncKind[types.ServerConfig, types.ServerInfo](s, ctx, sync, kind, types.DefaultServerConfig(), items, tables, u)
	case types.KindDeployment:
		return syncKind[types.DeploymentConfig, types.DeploymentInfo](s, ctx, sync, kind, types.DefaultDeploymentConfig(), items, tables, u)
	case types.KindStack:
		return syncKind[types.StackConfig, types.StackInfo](s, ctx, sync, kind, types.DefaultStackConfig(), items, tables, u)
	case types.KindBuild:
		return syncKind[types.BuildConfig, types.BuildInfo](s, ctx, sync, kind, types.DefaultBuildConfig(), items, tables, u)
	case types.KindRepo:
		return syncKind[types.RepoConfig, types.RepoInfo](s, ctx, sync, kind, types.DefaultRepoConfig(), items, tables, u)
	case types.KindProcedure:
		return syncKind[types.ProcedureConfig, types.NoInfo](s, ctx, sync, kind, types.DefaultProcedureConfig(), items, tables, u)
	case types.KindAction:
		return syncKind[types.ActionConfig, types.ActionInfo](s, ctx, sync, kind, types.DefaultActionConfig(), items, tables, u)
	case types.KindResourceSync:
		return syncKind[types.SyncConfig, types.SyncInfo](s, ctx, sync, kind, types.DefaultSyncConfig(), items, tables, u)
	case types.KindBuilder:
		return syncKind[types.BuilderConfig, types.NoInfo](s, ctx, sync, kind, types.DefaultBuilderConfig(), items, tables, u)
	case types.KindAlerter:
		return syncKind[types.AlerterConfig, types.NoInfo](s, ctx, sync, kind, types.DefaultAlerterConfig(), items, tables, u)
	case types.KindServerTemplate:
		return syncKind[types.ServerTemplateConfig, types.NoInfo](s, ctx, sync, kind, types.DefaultServerTemplateConfig(), items, tables, u)
	default:
		return types.SyncKindSummary{Kind: kind}
	}
}

// syncKind is the per-kind reconciliation: delete what the sync owns
// and the TOML no longer names, then create what is missing and update
// what diverges. Diffs compare in user-facing form, ids rewritten to
// names.
func syncKind[C, I any](
	s *Syncer,
	ctx context.Context,
	sync *types.ResourceSync,
	kind types.ResourceKind,
	defaults C,
	items []manifest.ResourceToml,
	tables *nameTables,
	u *types.Update,
) types.SyncKindSummary {
	summary := types.SyncKindSummary{Kind: kind}
	stage := fmt.Sprintf("Sync %ss", kind)
	if len(items) == 0 && !sync.Config.Managed && !sync.Config.Delete {
		return summary
	}

	existing, err := storage.ListResources[C, I](s.eng.Store, kind)
	if err != nil {
		if u != nil {
			u.PushError(stage, err)
		}
		return summary
	}
	byName := map[string]*types.Resource[C, I]{}
	for _, r := range existing {
		if includeResource(sync, kind, r.Name, tables.tagNames(r.Tags), tables) {
			byName[r.Name] = r
		}
	}

	var infoLines, errLines []string
	incomingNames := map[string]bool{}
	for _, item := range items {
		if item.Name == "" {
			continue
		}
		// A sync defined by inline file contents cannot be synced by
		// itself or any other sync without becoming self-referential.
		if kind == types.KindResourceSync && isInlineSync(item.Config) {
			continue
		}
		if includeResource(sync, kind, item.Name, sortedCopy(item.Tags), tables) {
			incomingNames[item.Name] = true
		}
	}

	// Deletes apply before creates and updates so a resource renamed in
	// one pass frees its old name first.
	if sync.Config.Managed || sync.Config.Delete {
		var toDelete []string
		for name := range byName {
			if !incomingNames[name] {
				toDelete = append(toDelete, name)
			}
		}
		sort.Strings(toDelete)
		for _, name := range toDelete {
			summary.ToDelete++
			if u == nil {
				continue
			}
			if err := s.deleteResource(ctx, kind, byName[name].ID); err != nil {
				errLines = append(errLines, fmt.Sprintf("delete %s: %v", name, err))
				continue
			}
			metrics.SyncDiffs.WithLabelValues(string(kind), "delete").Inc()
			infoLines = append(infoLines, fmt.Sprintf("deleted %s", name))
		}
	}

	for _, item := range items {
		if item.Name == "" {
			errLines = append(errLines, "skipped a block with no name")
			continue
		}
		if kind == types.KindResourceSync && isInlineSync(item.Config) {
			continue
		}
		if !incomingNames[item.Name] {
			continue
		}

		projected, err := manifest.ProjectConfig(defaults, manifest.RewriteLinkedIDs(item.Config, tables.namesToIDs))
		if err != nil {
			errLines = append(errLines, fmt.Sprintf("%s: %v", item.Name, err))
			continue
		}

		original, exists := byName[item.Name]
		if !exists {
			summary.ToCreate++
			if u == nil {
				continue
			}
			tagIDs, err := s.ensureTags(item.Tags)
			if err != nil {
				errLines = append(errLines, fmt.Sprintf("%s: %v", item.Name, err))
				continue
			}
			r := &types.Resource[C, I]{
				Name:        item.Name,
				Description: item.Description,
				Tags:        tagIDs,
				Config:      projected,
			}
			if err := storage.CreateResource(s.eng.Store, kind, r); err != nil {
				errLines = append(errLines, fmt.Sprintf("create %s: %v", item.Name, err))
				continue
			}
			tables.register(kind, r.ID, r.Name)
			metrics.SyncDiffs.WithLabelValues(string(kind), "create").Inc()
			infoLines = append(infoLines, fmt.Sprintf("created %s", item.Name))
			continue
		}

		diff, err := diffAgainst(original.Config, projected, tables)
		if err != nil {
			errLines = append(errLines, fmt.Sprintf("%s: %v", item.Name, err))
			continue
		}
		tagsEqual := equalStringSets(tables.tagNames(original.Tags), item.Tags)
		descEqual := item.Description == original.Description
		if len(diff) == 0 && tagsEqual && descEqual {
			infoLines = append(infoLines, fmt.Sprintf("%s: no changes", item.Name))
			continue
		}

		summary.ToUpdate++
		if u == nil {
			continue
		}
		tagIDs, err := s.ensureTags(item.Tags)
		if err != nil {
			errLines = append(errLines, fmt.Sprintf("%s: %v", item.Name, err))
			continue
		}
		original.Config = projected
		original.Description = item.Description
		original.Tags = tagIDs
		if err := storage.SaveResource(s.eng.Store, kind, original); err != nil {
			errLines = append(errLines, fmt.Sprintf("update %s: %v", item.Name, err))
			continue
		}
		metrics.SyncDiffs.WithLabelValues(string(kind), "update").Inc()
		infoLines = append(infoLines, fmt.Sprintf("updated %s: %s", item.Name, diffFields(diff)))
	}

	if u != nil {
		stdout := "no changes"
		if len(infoLines) > 0 {
			stdout = strings.Join(infoLines, "\n")
		}
		u.PushLog(types.Log{
			Stage:   stage,
			Stdout:  stdout,
			Stderr:  strings.Join(errLines, "\n"),
			Success: len(errLines) == 0,
			StartTS: u.StartTS,
			EndTS:   u.StartTS,
		})
	}
	return summary
}

// diffAgainst compares a stored config with the incoming projection in
// name-rewritten map form.
func diffAgainst[C any](original, incoming C, tables *nameTables) ([]manifest.FieldDiff, error) {
	origMap, err := manifest.ConfigToMap(original)
	if err != nil {
		return nil, err
	}
	incMap, err := manifest.ConfigToMap(incoming)
	if err != nil {
		return nil, err
	}
	origNamed := manifest.RewriteLinkedIDs(origMap, tables.idsToNames)
	incNamed := manifest.RewriteLinkedIDs(incMap, tables.idsToNames)
	return manifest.DiffConfigs(origNamed, incNamed), nil
}

func diffFields(diff []manifest.FieldDiff) string {
	fields := make([]string, 0, len(diff))
	for _, d := range diff {
		fields = append(fields, d.Field)
	}
	return strings.Join(fields, ", ")
}

// isInlineSync reports whether a resource_sync block sources from inline
// file contents.
func isInlineSync(config map[string]any) bool {
	contents, ok := config["file_contents"].(string)
	return ok && contents != ""
}

// deleteResource routes deletes with live artifacts through the engine
// so containers and permissions are cleaned first.
func (s *Syncer) deleteResource(ctx context.Context, kind types.ResourceKind, id string) error {
	switch kind {
	case types.KindDeployment:
		_, err := s.eng.DeleteDeployment(ctx, types.SyncUserID, id)
		return err
	case types.KindStack:
		_, err := s.eng.DeleteStack(ctx, types.SyncUserID, id)
		return err
	default:
		target := types.ResourceTarget{Type: kind, ID: id}
		if err := s.eng.Store.DeletePermissionsForResource(target); err != nil {
			return err
		}
		return s.eng.Store.DeleteResource(kind, id)
	}
}

// ensureTags resolves tag names to ids, creating missing tags.
func (s *Syncer) ensureTags(names []string) ([]string, error) {
	ids := make([]string, 0, len(names))
	for _, name := range names {
		tag, err := s.eng.Store.EnsureTag(name)
		if err != nil {
			return nil, err
		}
		ids = append(ids, tag.ID)
	}
	return ids, nil
}

func sortedCopy(list []string) []string {
	out := append([]string(nil), list...)
	sort.Strings(out)
	return out
}
