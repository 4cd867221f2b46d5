package registry

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/komodohq/komodo/pkg/config"
	"github.com/komodohq/komodo/pkg/types"
)

func TestToSafeName(t *testing.T) {
	for _, tc := range []struct{ in, want string }{
		{"My API Server", "my-api-server"},
		{"api_server", "api-server"},
		{"API!!", "api"},
		{"-leading-", "leading"},
		{"org/repo", "org/repo"},
	} {
		assert.Equal(t, tc.want, ToSafeName(tc.in), tc.in)
	}
}

func TestResolveBuildImage(t *testing.T) {
	build := &types.Build{}
	build.Name = "api"
	build.Config = types.BuildConfig{
		ImageTag: "bookworm",
		ImageRegistry: types.ImageRegistryConfig{
			Domain:  "ghcr.io",
			Account: "me",
		},
	}

	image, err := ResolveBuildImage(build, types.Version{Major: 1, Minor: 2, Patch: 3})
	require.NoError(t, err)
	assert.Equal(t, "ghcr.io/me/api:1.2.3-bookworm", image)
}

func TestBuildImageNameOrganizationWins(t *testing.T) {
	build := &types.Build{}
	build.Name = "Api Server"
	build.Config = types.BuildConfig{
		ImageRegistry: types.ImageRegistryConfig{
			Domain:       "ghcr.io",
			Account:      "me",
			Organization: "MyOrg",
		},
	}
	assert.Equal(t, "ghcr.io/myorg/api-server", BuildImageName(build))
}

func TestBuildImageNameNoRegistry(t *testing.T) {
	build := &types.Build{}
	build.Name = "api"
	assert.Equal(t, "api", BuildImageName(build))

	image, err := ResolveBuildImage(build, types.Version{Patch: 1})
	require.NoError(t, err)
	assert.Equal(t, "api:0.0.1", image)
}

func TestImageDomain(t *testing.T) {
	assert.Equal(t, "ghcr.io", ImageDomain("ghcr.io/me/api:1.2.3"))
	assert.Equal(t, "", ImageDomain("nginx:latest"))
	assert.Equal(t, "", ImageDomain("library/postgres"))
}

func TestToken(t *testing.T) {
	cfg := &config.Config{
		DockerRegistries: []config.DockerRegistry{
			{Domain: "ghcr.io", Account: "me", Token: "tok-1"},
			{Domain: "docker.io", Account: "other", Token: "tok-2"},
		},
	}

	assert.Equal(t, "tok-1", Token(cfg, "ghcr.io", "me"))
	assert.Equal(t, "tok-1", Token(cfg, "ghcr.io", ""))
	assert.Equal(t, "", Token(cfg, "ghcr.io", "someone-else"))
	assert.Equal(t, "", Token(cfg, "quay.io", "me"))
	assert.Equal(t, "", Token(cfg, "", ""))
}
