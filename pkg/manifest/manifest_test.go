package manifest

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/komodohq/komodo/pkg/types"
)

const sampleToml = `
[[deployment]]
name = "api"
tags = ["prod"]
deploy = true
after = ["db"]

[deployment.config]
server_id = "prod-1"
restart = "unless-stopped"

[deployment.config.image]
type = "Build"
build_id = "api-build"

[[stack]]
name = "db"
deploy = true

[stack.config]
server_id = "prod-1"
file_contents = """
services:
  postgres:
    image: postgres:16
"""

[[variable]]
name = "REGION"
value = "us-east-1"

[[user_group]]
name = "devs"
users = ["alice"]

[[user_group.permissions]]
level = "Execute"

[user_group.permissions.target]
type = "Deployment"
id = "api"
`

func TestParse(t *testing.T) {
	res, err := Parse([]byte(sampleToml))
	require.NoError(t, err)

	require.Len(t, res.Deployments, 1)
	d := res.Deployments[0]
	assert.Equal(t, "api", d.Name)
	assert.True(t, d.Deploy)
	assert.Equal(t, []string{"db"}, d.After)
	assert.Equal(t, "prod-1", d.Config["server_id"])

	image, ok := d.Config["image"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "api-build", image["build_id"])

	require.Len(t, res.Stacks, 1)
	require.Len(t, res.Variables, 1)
	assert.Equal(t, "REGION", res.Variables[0].Name)

	require.Len(t, res.UserGroups, 1)
	g := res.UserGroups[0]
	require.Len(t, g.Permissions, 1)
	assert.Equal(t, types.PermissionExecute, g.Permissions[0].Level)
	assert.Equal(t, types.KindDeployment, g.Permissions[0].Target.Type)
}

func TestParseInvalid(t *testing.T) {
	_, err := Parse([]byte("[[deployment]\nname="))
	assert.Error(t, err)
}

func TestMerge(t *testing.T) {
	a, err := Parse([]byte("[[deployment]]\nname = \"a\"\n"))
	require.NoError(t, err)
	b, err := Parse([]byte("[[deployment]]\nname = \"b\"\n\n[[server]]\nname = \"s\"\n"))
	require.NoError(t, err)

	a.Merge(b)
	require.Len(t, a.Deployments, 2)
	assert.Equal(t, "a", a.Deployments[0].Name)
	assert.Equal(t, "b", a.Deployments[1].Name)
	require.Len(t, a.Servers, 1)
}

func TestSerializeRoundTrip(t *testing.T) {
	res, err := Parse([]byte(sampleToml))
	require.NoError(t, err)

	data, err := Serialize(res)
	require.NoError(t, err)

	again, err := Parse(data)
	require.NoError(t, err)
	assert.Equal(t, res.Deployments[0].Name, again.Deployments[0].Name)
	assert.Equal(t, res.Deployments[0].Config["server_id"], again.Deployments[0].Config["server_id"])
}

func TestByKind(t *testing.T) {
	res, err := Parse([]byte(sampleToml))
	require.NoError(t, err)

	assert.Len(t, res.ByKind(types.KindDeployment), 1)
	assert.Len(t, res.ByKind(types.KindStack), 1)
	assert.Empty(t, res.ByKind(types.KindBuild))
}
