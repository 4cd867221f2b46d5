package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, 9120, cfg.Port)
	assert.Equal(t, Duration(15*time.Second), cfg.MonitoringInterval)
	assert.Equal(t, "info", cfg.LogLevel)
}

func TestLoadFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "core.toml")
	require.NoError(t, os.WriteFile(path, []byte(`
port = 9999
passkey = "pk"
data_dir = "/tmp/komodo-test"
monitoring_interval = "30s"

[[git_providers]]
domain = "github.com"
account = "me"
token = "ght"

[[docker_registries]]
domain = "ghcr.io"
account = "me"
token = "crt"
`), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 9999, cfg.Port)
	assert.Equal(t, "pk", cfg.Passkey)
	assert.Equal(t, Duration(30*time.Second), cfg.MonitoringInterval)
	assert.Equal(t, "ght", cfg.GitToken("github.com", "me"))
	assert.Equal(t, "", cfg.GitToken("gitlab.com", "me"))
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load("/definitely/not/here.toml")
	assert.Error(t, err)
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("KOMODO_PORT", "7777")
	t.Setenv("KOMODO_PASSKEY", "env-pk")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, 7777, cfg.Port)
	assert.Equal(t, "env-pk", cfg.Passkey)
}

func TestValidate(t *testing.T) {
	cfg := Default()
	cfg.Port = 0
	assert.Error(t, cfg.Validate())

	cfg = Default()
	cfg.DataDir = ""
	assert.Error(t, cfg.Validate())

	cfg = Default()
	cfg.MonitoringInterval = Duration(100 * time.Millisecond)
	assert.Error(t, cfg.Validate())

	cfg = Default()
	cfg.GitProviders = []GitProvider{{Account: "me"}}
	assert.Error(t, cfg.Validate())
}

func TestGitTokenEmptyAccountMatchesAny(t *testing.T) {
	cfg := Default()
	cfg.GitProviders = []GitProvider{{Domain: "github.com", Account: "me", Token: "tok"}}
	assert.Equal(t, "tok", cfg.GitToken("github.com", ""))
	assert.Equal(t, "", cfg.GitToken("github.com", "other"))
}
