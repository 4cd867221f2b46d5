package manifest

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/komodohq/komodo/pkg/types"
)

func TestProjectConfigKeepsDefaults(t *testing.T) {
	out, err := ProjectConfig(types.DefaultStackConfig(), map[string]any{
		"server_id": "srv-1",
	})
	require.NoError(t, err)
	assert.Equal(t, "srv-1", out.ServerID)
	// Absent fields keep their defaulted values, not zero values.
	assert.Equal(t, ".", out.RunDirectory)
	assert.Equal(t, []string{"compose.yaml"}, out.FilePaths)
	assert.Equal(t, "main", out.Branch)
}

func TestProjectConfigEmptyPartial(t *testing.T) {
	out, err := ProjectConfig(types.DefaultBuildConfig(), nil)
	require.NoError(t, err)
	assert.Equal(t, types.DefaultBuildConfig(), out)
}

func TestProjectConfigTextUnmarshaller(t *testing.T) {
	out, err := ProjectConfig(types.DefaultBuildConfig(), map[string]any{
		"version": "1.2.3",
	})
	require.NoError(t, err)
	assert.Equal(t, types.Version{Major: 1, Minor: 2, Patch: 3}, out.Version)
}

func TestProjectConfigNested(t *testing.T) {
	out, err := ProjectConfig(types.DefaultDeploymentConfig(), map[string]any{
		"image": map[string]any{
			"type":     "Build",
			"build_id": "b-1",
		},
	})
	require.NoError(t, err)
	assert.Equal(t, types.ImageKindBuild, out.Image.Type)
	assert.Equal(t, "b-1", out.Image.BuildID)
}

func TestMinimizePartial(t *testing.T) {
	defaults := map[string]any{
		"branch": "main",
		"image": map[string]any{
			"type": "Image",
			"name": "",
		},
	}
	full := map[string]any{
		"branch": "main",
		"server": "srv-1",
		"image": map[string]any{
			"type": "Image",
			"name": "nginx",
		},
	}
	min := MinimizePartial(defaults, full)
	assert.Equal(t, map[string]any{
		"server": "srv-1",
		"image":  map[string]any{"name": "nginx"},
	}, min)
}

func TestMinimizePartialDropsEmptyTables(t *testing.T) {
	defaults := map[string]any{"image": map[string]any{"type": "Image"}}
	full := map[string]any{"image": map[string]any{"type": "Image"}}
	assert.Empty(t, MinimizePartial(defaults, full))
}

func TestDiffConfigs(t *testing.T) {
	original := map[string]any{"branch": "main", "repo": "me/api", "commit": ""}
	incoming := map[string]any{"branch": "dev", "repo": "me/api"}

	diff := DiffConfigs(original, incoming)
	require.Len(t, diff, 1)
	assert.Equal(t, "branch", diff[0].Field)
	assert.Equal(t, "main", diff[0].Before)
	assert.Equal(t, "dev", diff[0].After)
}

func TestDiffConfigsEmptyVsAbsent(t *testing.T) {
	// Empty values on one side and absent keys on the other are not
	// diffs; TOML omits defaulted fields.
	diff := DiffConfigs(
		map[string]any{"extra_args": []any{}},
		map[string]any{"environment": ""},
	)
	assert.Empty(t, diff)
}

func TestDiffConfigsSorted(t *testing.T) {
	diff := DiffConfigs(
		map[string]any{"z": "1", "a": "1"},
		map[string]any{"z": "2", "a": "2"},
	)
	require.Len(t, diff, 2)
	assert.Equal(t, "a", diff[0].Field)
	assert.Equal(t, "z", diff[1].Field)
}

func TestRewriteLinkedIDs(t *testing.T) {
	resolve := func(kind, ref string) (string, bool) {
		switch {
		case kind == "Server" && ref == "srv-id":
			return "prod-1", true
		case kind == "Build" && ref == "build-id":
			return "api-build", true
		}
		return "", false
	}

	out := RewriteLinkedIDs(map[string]any{
		"server_id": "srv-id",
		"restart":   "always",
		"image": map[string]any{
			"build_id": "build-id",
		},
	}, resolve)

	assert.Equal(t, "prod-1", out["server_id"])
	assert.Equal(t, "always", out["restart"])
	image := out["image"].(map[string]any)
	assert.Equal(t, "api-build", image["build_id"])
}

func TestRewriteLinkedIDsUnresolvedPassesThrough(t *testing.T) {
	out := RewriteLinkedIDs(map[string]any{"server_id": "ghost"},
		func(kind, ref string) (string, bool) { return "", false })
	assert.Equal(t, "ghost", out["server_id"])
}

func TestConfigToMapRoundTrip(t *testing.T) {
	cfg := types.DefaultStackConfig()
	cfg.ServerID = "srv-1"

	m, err := ConfigToMap(cfg)
	require.NoError(t, err)
	assert.Equal(t, "srv-1", m["server_id"])

	projected, err := ProjectConfig(types.DefaultStackConfig(), m)
	require.NoError(t, err)
	assert.Equal(t, cfg, projected)
}
