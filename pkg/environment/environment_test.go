package environment

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse(t *testing.T) {
	env, err := Parse("A=1\n# comment\nB=two words\n")
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"A": "1", "B": "two words"}, env)
}

func TestParseEmpty(t *testing.T) {
	env, err := Parse("   \n  ")
	require.NoError(t, err)
	assert.Empty(t, env)
}

func TestParseQuoted(t *testing.T) {
	env, err := Parse(`SECRET="with spaces and #hash"`)
	require.NoError(t, err)
	assert.Equal(t, "with spaces and #hash", env["SECRET"])
}

func TestValidate(t *testing.T) {
	assert.NoError(t, Validate("KEY=value"))
	assert.Error(t, Validate("NOT A PAIR"))
}

func TestRenderRoundTrip(t *testing.T) {
	in := map[string]string{"B": "2", "A": "1"}
	out, err := Render(in)
	require.NoError(t, err)

	again, err := Parse(out)
	require.NoError(t, err)
	assert.Equal(t, in, again)
}

func TestKeys(t *testing.T) {
	keys, err := Keys("Z=1\nA=2\nM=3")
	require.NoError(t, err)
	assert.Equal(t, []string{"A", "M", "Z"}, keys)
}
