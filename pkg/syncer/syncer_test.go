package syncer

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/komodohq/komodo/pkg/types"
)

func TestContentsDiverged(t *testing.T) {
	deployed := []types.FileContents{
		{Path: "compose.yaml", Contents: "services: {}"},
		{Path: ".env", Contents: "A=1"},
	}

	// No remote contents means nothing to compare against.
	assert.False(t, contentsDiverged(deployed, nil))

	same := []types.FileContents{{Path: "compose.yaml", Contents: "services: {}"}}
	assert.False(t, contentsDiverged(deployed, same))

	edited := []types.FileContents{{Path: "compose.yaml", Contents: "services:\n  api: {}"}}
	assert.True(t, contentsDiverged(deployed, edited))

	added := []types.FileContents{{Path: "extra.yaml", Contents: "x"}}
	assert.True(t, contentsDiverged(deployed, added))
}

func TestMatchName(t *testing.T) {
	open := syncWith(types.SyncConfig{})
	assert.True(t, matchName(open, "anything"))

	filtered := syncWith(types.SyncConfig{MatchResources: []string{"VAR_A", "VAR_B"}})
	assert.True(t, matchName(filtered, "VAR_A"))
	assert.False(t, matchName(filtered, "VAR_C"))
}

func TestExpandPermissionsResolvesNames(t *testing.T) {
	tables := testTables()
	out, err := expandPermissions([]types.PermissionToml{
		{Target: types.ResourceTarget{Type: types.KindDeployment, ID: "api"}, Level: types.PermissionExecute},
	}, tables)
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, "d-1", out[0].Target.ID)
	assert.Equal(t, types.PermissionExecute, out[0].Level)
}

func TestExpandPermissionsUnknownPassesThrough(t *testing.T) {
	out, err := expandPermissions([]types.PermissionToml{
		{Target: types.ResourceTarget{Type: types.KindDeployment, ID: "ghost"}, Level: types.PermissionRead},
	}, testTables())
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, "ghost", out[0].Target.ID)
}

func TestExpandPermissionsRegexTarget(t *testing.T) {
	tables := testTables()
	out, err := expandPermissions([]types.PermissionToml{
		{Target: types.ResourceTarget{Type: types.KindDeployment, ID: `\.*\`}, Level: types.PermissionRead},
	}, tables)
	require.NoError(t, err)
	require.Len(t, out, 2)
	// Expansion output is sorted by target id.
	assert.Equal(t, "d-1", out[0].Target.ID)
	assert.Equal(t, "d-2", out[1].Target.ID)
}

func TestExpandPermissionsRegexSubset(t *testing.T) {
	out, err := expandPermissions([]types.PermissionToml{
		{Target: types.ResourceTarget{Type: types.KindDeployment, ID: `\^work\`}, Level: types.PermissionWrite},
	}, testTables())
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, "d-2", out[0].Target.ID)
}

func TestExpandPermissionsInvalidRegex(t *testing.T) {
	_, err := expandPermissions([]types.PermissionToml{
		{Target: types.ResourceTarget{Type: types.KindDeployment, ID: `\[unclosed\`}, Level: types.PermissionRead},
	}, testTables())
	assert.Error(t, err)
}

func TestEqualPermissions(t *testing.T) {
	a := []types.PermissionToml{
		{Target: types.ResourceTarget{Type: types.KindDeployment, ID: "d-1"}, Level: types.PermissionRead},
	}
	b := []types.PermissionToml{
		{Target: types.ResourceTarget{Type: types.KindDeployment, ID: "d-1"}, Level: types.PermissionRead},
	}
	assert.True(t, equalPermissions(a, b))

	b[0].Level = types.PermissionWrite
	assert.False(t, equalPermissions(a, b))
	assert.False(t, equalPermissions(a, nil))
}

func TestExpandTomlPathFile(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "resources.toml")
	require.NoError(t, os.WriteFile(file, []byte(""), 0o644))

	paths, err := expandTomlPath(file)
	require.NoError(t, err)
	assert.Equal(t, []string{file}, paths)
}

func TestExpandTomlPathRejectsNonToml(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "resources.yaml")
	require.NoError(t, os.WriteFile(file, []byte(""), 0o644))

	_, err := expandTomlPath(file)
	assert.Error(t, err)
}

func TestExpandTomlPathDirectory(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"a.toml", "b.toml", "ignore.yaml"} {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(""), 0o644))
	}

	paths, err := expandTomlPath(dir)
	require.NoError(t, err)
	assert.Equal(t, []string{filepath.Join(dir, "a.toml"), filepath.Join(dir, "b.toml")}, paths)
}

func TestExpandTomlPathEmptyDirectory(t *testing.T) {
	_, err := expandTomlPath(t.TempDir())
	assert.Error(t, err)
}

func TestExpandTomlPathMissing(t *testing.T) {
	_, err := expandTomlPath(filepath.Join(t.TempDir(), "nope.toml"))
	assert.Error(t, err)
}

func TestShortHash(t *testing.T) {
	assert.Equal(t, "0123456", shortHash("0123456789abcdef"))
	assert.Equal(t, "abc", shortHash("abc"))
	assert.Equal(t, "", shortHash(""))
}

func TestRelOrBase(t *testing.T) {
	assert.Equal(t, "sub/file.toml", relOrBase("/root/repo", "/root/repo/sub/file.toml"))
}
