package execute

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/komodohq/komodo/pkg/types"
)

func TestCompileMatcherWildcard(t *testing.T) {
	match, err := compileMatcher("api-*")
	require.NoError(t, err)
	assert.True(t, match("api-prod"))
	assert.True(t, match("api-staging"))
	assert.False(t, match("web-prod"))
	assert.False(t, match("api"))
}

func TestCompileMatcherExactName(t *testing.T) {
	match, err := compileMatcher("api")
	require.NoError(t, err)
	assert.True(t, match("api"))
	assert.False(t, match("api-prod"))
}

func TestCompileMatcherRegex(t *testing.T) {
	match, err := compileMatcher(`\^(api|web)-prod$\`)
	require.NoError(t, err)
	assert.True(t, match("api-prod"))
	assert.True(t, match("web-prod"))
	assert.False(t, match("api-staging"))
	assert.False(t, match("xapi-prod"))
}

func TestCompileMatcherInvalidRegex(t *testing.T) {
	_, err := compileMatcher(`\[unclosed\`)
	assert.Error(t, err)
}

func TestExecutionKind(t *testing.T) {
	for op, want := range map[types.Operation]types.ResourceKind{
		types.OpDeploy:      types.KindDeployment,
		types.OpDeployStack: types.KindStack,
		types.OpRunBuild:    types.KindBuild,
		types.OpPullRepo:    types.KindRepo,
		types.OpRunSync:     types.KindResourceSync,
		types.OpRunProcedure: types.KindProcedure,
	} {
		kind, ok := executionKind(op)
		assert.True(t, ok, op)
		assert.Equal(t, want, kind, op)
	}

	_, ok := executionKind(types.OpCreateServer)
	assert.False(t, ok)
}
