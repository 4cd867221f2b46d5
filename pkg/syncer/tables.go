package syncer

import (
	"sort"

	"github.com/komodohq/komodo/pkg/types"
)

// nameTables holds the id↔name mappings one sync pass resolves against.
// Configs persist ids; TOML and diffs speak names.
type nameTables struct {
	idToName    map[types.ResourceKind]map[string]string
	nameToID    map[types.ResourceKind]map[string]string
	tagIDToName map[string]string
	tagNameToID map[string]string
}

func (s *Syncer) loadTables() (*nameTables, error) {
	byKind, err := s.eng.Store.AllResourceNames()
	if err != nil {
		return nil, err
	}
	t := &nameTables{
		idToName:    byKind,
		nameToID:    map[types.ResourceKind]map[string]string{},
		tagIDToName: map[string]string{},
		tagNameToID: map[string]string{},
	}
	for kind, names := range byKind {
		reverse := map[string]string{}
		for id, name := range names {
			reverse[name] = id
		}
		t.nameToID[kind] = reverse
	}
	tags, err := s.eng.Store.ListTags()
	if err != nil {
		return nil, err
	}
	for _, tag := range tags {
		t.tagIDToName[tag.ID] = tag.Name
		t.tagNameToID[tag.Name] = tag.ID
	}
	return t, nil
}

// toName resolves an id-or-name reference to a name. Unknown references
// pass through, so TOML written with names compares cleanly.
func (t *nameTables) toName(kind types.ResourceKind, ref string) string {
	if name, ok := t.idToName[kind][ref]; ok {
		return name
	}
	return ref
}

// idsToNames is the resolve callback for exporting linked ids.
func (t *nameTables) idsToNames(kind, ref string) (string, bool) {
	name, ok := t.idToName[types.ResourceKind(kind)][ref]
	return name, ok
}

// namesToIDs is the resolve callback for ingesting linked names.
func (t *nameTables) namesToIDs(kind, ref string) (string, bool) {
	id, ok := t.nameToID[types.ResourceKind(kind)][ref]
	return id, ok
}

// tagNames renders tag ids as sorted names.
func (t *nameTables) tagNames(ids []string) []string {
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if name, ok := t.tagIDToName[id]; ok {
			out = append(out, name)
		} else {
			out = append(out, id)
		}
	}
	sort.Strings(out)
	return out
}

// register records a freshly created resource so later kinds in the same
// pass resolve references to it.
func (t *nameTables) register(kind types.ResourceKind, id, name string) {
	if t.idToName[kind] == nil {
		t.idToName[kind] = map[string]string{}
	}
	if t.nameToID[kind] == nil {
		t.nameToID[kind] = map[string]string{}
	}
	t.idToName[kind][id] = name
	t.nameToID[kind][name] = id
}

// includeResource applies the sync's match filters to one item. Tags are
// compared by name; every match_tags entry must be present.
func includeResource(sync *types.ResourceSync, kind types.ResourceKind, name string, tagNames []string, tables *nameTables) bool {
	if sync.Config.MatchResourceType != "" && sync.Config.MatchResourceType != kind {
		return false
	}
	if len(sync.Config.MatchResources) > 0 {
		found := false
		for _, ref := range sync.Config.MatchResources {
			if tables.toName(kind, ref) == name {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	if len(sync.Config.MatchTags) > 0 {
		have := map[string]bool{}
		for _, tag := range tagNames {
			have[tag] = true
		}
		for _, required := range sync.Config.MatchTags {
			if !have[required] {
				return false
			}
		}
	}
	return true
}

// equalStringSets compares two name lists ignoring order.
func equalStringSets(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	as := append([]string(nil), a...)
	bs := append([]string(nil), b...)
	sort.Strings(as)
	sort.Strings(bs)
	for i := range as {
		if as[i] != bs[i] {
			return false
		}
	}
	return true
}
