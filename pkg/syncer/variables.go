package syncer

import (
	"fmt"
	"strings"

	"github.com/komodohq/komodo/pkg/types"
)

// applyVariables reconciles [[variable]] blocks. Variables are deleted
// only when the sync owns them outright: managed or delete set, and no
// match_tags narrowing.
func (s *Syncer) applyVariables(sync *types.ResourceSync, incoming []types.Variable, u *types.Update) {
	if sync.Config.MatchResourceType != "" {
		return
	}
	if len(incoming) == 0 && !sync.Config.Managed && !sync.Config.Delete {
		return
	}

	existing, err := s.eng.Store.ListVariables()
	if err != nil {
		u.PushError("Sync Variables", err)
		return
	}
	byName := map[string]*types.Variable{}
	for _, v := range existing {
		byName[v.Name] = v
	}

	var infoLines, errLines []string
	incomingNames := map[string]bool{}

	for _, v := range incoming {
		if v.Name == "" {
			errLines = append(errLines, "skipped a variable with no name")
			continue
		}
		if !matchName(sync, v.Name) {
			continue
		}
		incomingNames[v.Name] = true

		current, exists := byName[v.Name]
		if exists && current.Value == v.Value && current.Description == v.Description && current.IsSecret == v.IsSecret {
			infoLines = append(infoLines, fmt.Sprintf("%s: no changes", v.Name))
			continue
		}
		v := v
		if err := s.eng.Store.SaveVariable(&v); err != nil {
			errLines = append(errLines, fmt.Sprintf("%s: %v", v.Name, err))
			continue
		}
		if exists {
			infoLines = append(infoLines, fmt.Sprintf("updated %s", v.Name))
		} else {
			infoLines = append(infoLines, fmt.Sprintf("created %s", v.Name))
		}
	}

	if (sync.Config.Managed || sync.Config.Delete) && len(sync.Config.MatchTags) == 0 {
		for name := range byName {
			if incomingNames[name] || !matchName(sync, name) {
				continue
			}
			if err := s.eng.Store.DeleteVariable(name); err != nil {
				errLines = append(errLines, fmt.Sprintf("delete %s: %v", name, err))
				continue
			}
			infoLines = append(infoLines, fmt.Sprintf("deleted %s", name))
		}
	}

	stdout := "no changes"
	if len(infoLines) > 0 {
		stdout = strings.Join(infoLines, "\n")
	}
	u.PushLog(types.Log{
		Stage:   "Sync Variables",
		Stdout:  stdout,
		Stderr:  strings.Join(errLines, "\n"),
		Success: len(errLines) == 0,
		StartTS: u.StartTS,
		EndTS:   u.StartTS,
	})
}

// matchName applies the sync's match_resources filter to an entity that
// only carries a name.
func matchName(sync *types.ResourceSync, name string) bool {
	if len(sync.Config.MatchResources) == 0 {
		return true
	}
	for _, ref := range sync.Config.MatchResources {
		if ref == name {
			return true
		}
	}
	return false
}
