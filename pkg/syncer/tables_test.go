package syncer

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/komodohq/komodo/pkg/types"
)

func testTables() *nameTables {
	return &nameTables{
		idToName: map[types.ResourceKind]map[string]string{
			types.KindDeployment: {"d-1": "api", "d-2": "worker"},
			types.KindServer:     {"s-1": "prod-1"},
		},
		nameToID: map[types.ResourceKind]map[string]string{
			types.KindDeployment: {"api": "d-1", "worker": "d-2"},
			types.KindServer:     {"prod-1": "s-1"},
		},
		tagIDToName: map[string]string{"t-1": "prod"},
		tagNameToID: map[string]string{"prod": "t-1"},
	}
}

func syncWith(cfg types.SyncConfig) *types.ResourceSync {
	s := &types.ResourceSync{}
	s.Name = "test-sync"
	s.Config = cfg
	return s
}

func TestIncludeResourceNoFilters(t *testing.T) {
	sync := syncWith(types.SyncConfig{})
	assert.True(t, includeResource(sync, types.KindDeployment, "api", nil, testTables()))
}

func TestIncludeResourceMatchType(t *testing.T) {
	sync := syncWith(types.SyncConfig{MatchResourceType: types.KindDeployment})
	tables := testTables()
	assert.True(t, includeResource(sync, types.KindDeployment, "api", nil, tables))
	assert.False(t, includeResource(sync, types.KindStack, "api", nil, tables))
}

func TestIncludeResourceMatchResourcesByNameAndID(t *testing.T) {
	tables := testTables()

	sync := syncWith(types.SyncConfig{MatchResources: []string{"api"}})
	assert.True(t, includeResource(sync, types.KindDeployment, "api", nil, tables))
	assert.False(t, includeResource(sync, types.KindDeployment, "worker", nil, tables))

	// Ids resolve to names before comparing.
	sync = syncWith(types.SyncConfig{MatchResources: []string{"d-1"}})
	assert.True(t, includeResource(sync, types.KindDeployment, "api", nil, tables))
}

func TestIncludeResourceMatchTagsAllRequired(t *testing.T) {
	tables := testTables()
	sync := syncWith(types.SyncConfig{MatchTags: []string{"prod", "web"}})

	assert.True(t, includeResource(sync, types.KindDeployment, "api", []string{"prod", "web", "extra"}, tables))
	assert.False(t, includeResource(sync, types.KindDeployment, "api", []string{"prod"}, tables))
	assert.False(t, includeResource(sync, types.KindDeployment, "api", nil, tables))
}

func TestToNamePassesUnknownThrough(t *testing.T) {
	tables := testTables()
	assert.Equal(t, "api", tables.toName(types.KindDeployment, "d-1"))
	assert.Equal(t, "ghost", tables.toName(types.KindDeployment, "ghost"))
}

func TestRegisterMakesResourceResolvable(t *testing.T) {
	tables := testTables()
	tables.register(types.KindBuild, "b-1", "api-build")

	id, ok := tables.namesToIDs("Build", "api-build")
	require.True(t, ok)
	assert.Equal(t, "b-1", id)

	name, ok := tables.idsToNames("Build", "b-1")
	require.True(t, ok)
	assert.Equal(t, "api-build", name)
}

func TestTagNamesSorted(t *testing.T) {
	tables := testTables()
	tables.tagIDToName["t-2"] = "web"
	assert.Equal(t, []string{"prod", "web"}, tables.tagNames([]string{"t-2", "t-1"}))
	// Unknown ids pass through.
	assert.Equal(t, []string{"ghost"}, tables.tagNames([]string{"ghost"}))
}

func TestEqualStringSets(t *testing.T) {
	assert.True(t, equalStringSets([]string{"a", "b"}, []string{"b", "a"}))
	assert.True(t, equalStringSets(nil, nil))
	assert.False(t, equalStringSets([]string{"a"}, []string{"a", "b"}))
	assert.False(t, equalStringSets([]string{"a"}, []string{"b"}))
}
