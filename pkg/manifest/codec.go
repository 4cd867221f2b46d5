package manifest

import (
	"fmt"
	"sort"

	"github.com/go-viper/mapstructure/v2"
	"github.com/google/go-cmp/cmp"
	"github.com/pelletier/go-toml/v2"
)

// ConfigToMap flattens a config struct into the map shape TOML files
// decode to, so partials, defaults and stored configs compare in one
// representation.
func ConfigToMap(config any) (map[string]any, error) {
	data, err := toml.Marshal(config)
	if err != nil {
		return nil, fmt.Errorf("failed to flatten config: %w", err)
	}
	out := map[string]any{}
	if err := toml.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("failed to flatten config: %w", err)
	}
	return out, nil
}

// ProjectConfig decodes a partial config map onto the kind's defaults. A
// field absent in TOML keeps its default value.
func ProjectConfig[C any](defaults C, partial map[string]any) (C, error) {
	out := defaults
	if len(partial) == 0 {
		return out, nil
	}
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		TagName:    "toml",
		Result:     &out,
		DecodeHook: mapstructure.TextUnmarshallerHookFunc(),
	})
	if err != nil {
		return out, fmt.Errorf("failed to build config decoder: %w", err)
	}
	if err := decoder.Decode(partial); err != nil {
		return out, fmt.Errorf("failed to project config: %w", err)
	}
	return out, nil
}

// MinimizePartial drops the fields of full that equal the defaulted
// value, so exports stay terse. Nested tables minimize recursively and
// vanish when empty.
func MinimizePartial(defaults, full map[string]any) map[string]any {
	out := map[string]any{}
	for k, v := range full {
		dv, ok := defaults[k]
		if !ok {
			out[k] = v
			continue
		}
		if sub, ok := v.(map[string]any); ok {
			if dsub, ok := dv.(map[string]any); ok {
				minimized := MinimizePartial(dsub, sub)
				if len(minimized) > 0 {
					out[k] = minimized
				}
				continue
			}
		}
		if !cmp.Equal(dv, v) {
			out[k] = v
		}
	}
	return out
}

// FieldDiff is one changed config field in user-facing form.
type FieldDiff struct {
	Field  string `json:"field"`
	Before any    `json:"before,omitempty"`
	After  any    `json:"after,omitempty"`
}

// DiffConfigs compares two config maps field by field, returning diffs
// sorted by field name. Ids should be rewritten to names first so diffs
// read in user-facing form.
func DiffConfigs(original, incoming map[string]any) []FieldDiff {
	keys := map[string]bool{}
	for k := range original {
		keys[k] = true
	}
	for k := range incoming {
		keys[k] = true
	}
	var out []FieldDiff
	for k := range keys {
		before, hasBefore := original[k]
		after, hasAfter := incoming[k]
		if hasBefore && hasAfter && cmp.Equal(before, after) {
			continue
		}
		if !hasBefore && isEmptyValue(after) {
			continue
		}
		if !hasAfter && isEmptyValue(before) {
			continue
		}
		out = append(out, FieldDiff{Field: k, Before: before, After: after})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Field < out[j].Field })
	return out
}

func isEmptyValue(v any) bool {
	switch t := v.(type) {
	case nil:
		return true
	case string:
		return t == ""
	case bool:
		return !t
	case int64:
		return t == 0
	case float64:
		return t == 0
	case []any:
		return len(t) == 0
	case map[string]any:
		for _, sub := range t {
			if !isEmptyValue(sub) {
				return false
			}
		}
		return true
	default:
		return false
	}
}

// linkedFields names the config fields that hold resource ids, mapped to
// the kind they reference. The image table's build_id nests one level
// down and is handled explicitly.
var linkedFields = map[string]string{
	"server_id":  "Server",
	"build_id":   "Build",
	"builder_id": "Builder",
}

// RewriteLinkedIDs maps every linked reference in a config map through
// resolve. Used in both directions: id→name for export and diffing,
// name→id for ingest. Unresolvable references pass through unchanged so
// validation can report them in context.
func RewriteLinkedIDs(config map[string]any, resolve func(kind, ref string) (string, bool)) map[string]any {
	out := map[string]any{}
	for k, v := range config {
		if kind, ok := linkedFields[k]; ok {
			if ref, isStr := v.(string); isStr && ref != "" {
				if mapped, found := resolve(kind, ref); found {
					out[k] = mapped
					continue
				}
			}
			out[k] = v
			continue
		}
		if sub, ok := v.(map[string]any); ok {
			out[k] = RewriteLinkedIDs(sub, resolve)
			continue
		}
		out[k] = v
	}
	return out
}
