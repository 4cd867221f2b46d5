package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/pelletier/go-toml/v2"
)

// Duration is a time.Duration that unmarshals from TOML strings like
// "30s" or "5m".
type Duration time.Duration

func (d *Duration) UnmarshalText(text []byte) error {
	parsed, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	*d = Duration(parsed)
	return nil
}

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(time.Duration(d).String()), nil
}

// GitProvider is one configured git host account. The token authenticates
// clones of private repos for that account.
type GitProvider struct {
	Domain  string `toml:"domain"` // eg "github.com"
	Account string `toml:"account"`
	Token   string `toml:"token"`
}

// DockerRegistry is one configured registry account used to resolve pull
// and push tokens.
type DockerRegistry struct {
	Domain  string `toml:"domain"` // eg "ghcr.io" or "docker.io"
	Account string `toml:"account"`
	Token   string `toml:"token"`
}

// AwsCredentials authenticates the EC2 builder provider.
type AwsCredentials struct {
	AccessKeyID     string `toml:"access_key_id"`
	SecretAccessKey string `toml:"secret_access_key"`
	DefaultRegion   string `toml:"default_region"`
}

// HetznerCredentials authenticates the Hetzner builder provider.
type HetznerCredentials struct {
	Token string `toml:"token"`
}

// Config is the core's startup configuration, loaded from a TOML file
// with KOMODO_* environment overrides on the common fields.
type Config struct {
	// Host is the externally reachable address of the core, used in
	// builder user data and webhook instructions.
	Host string `toml:"host"`
	Port int    `toml:"port"`

	// Passkey authenticates the core against periphery agents unless a
	// server config overrides it.
	Passkey string `toml:"passkey"`

	// WebhookSecret verifies inbound webhook deliveries unless the
	// resource carries its own secret.
	WebhookSecret string `toml:"webhook_secret"`

	// DataDir holds the bolt database and sync repo workspaces.
	DataDir string `toml:"data_dir"`

	// SyncDirectory is where files_on_host syncs resolve relative paths.
	SyncDirectory string `toml:"sync_directory"`

	// MonitoringInterval is the state monitor poll period.
	MonitoringInterval Duration `toml:"monitoring_interval"`

	// Secrets are interpolation sources whose values are redacted from
	// every log. Variables live in the database instead.
	Secrets map[string]string `toml:"secrets"`

	GitProviders     []GitProvider      `toml:"git_providers"`
	DockerRegistries []DockerRegistry   `toml:"docker_registries"`
	Aws              AwsCredentials     `toml:"aws"`
	Hetzner          HetznerCredentials `toml:"hetzner"`

	LogLevel string `toml:"log_level"`
	LogJSON  bool   `toml:"log_json"`
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	return &Config{
		Host:               "http://localhost:9120",
		Port:               9120,
		DataDir:            "/var/lib/komodo",
		SyncDirectory:      "/var/lib/komodo/syncs",
		MonitoringInterval: Duration(15 * time.Second),
		Secrets:            map[string]string{},
		LogLevel:           "info",
	}
}

// Load reads the TOML file at path onto the defaults, then applies
// environment overrides. An empty path skips the file.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := toml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	}
	cfg.applyEnv()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() {
	if v := os.Getenv("KOMODO_HOST"); v != "" {
		c.Host = v
	}
	if v := os.Getenv("KOMODO_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			c.Port = port
		}
	}
	if v := os.Getenv("KOMODO_PASSKEY"); v != "" {
		c.Passkey = v
	}
	if v := os.Getenv("KOMODO_WEBHOOK_SECRET"); v != "" {
		c.WebhookSecret = v
	}
	if v := os.Getenv("KOMODO_DATA_DIR"); v != "" {
		c.DataDir = v
	}
	if v := os.Getenv("KOMODO_LOG_LEVEL"); v != "" {
		c.LogLevel = v
	}
	if v := os.Getenv("KOMODO_AWS_ACCESS_KEY_ID"); v != "" {
		c.Aws.AccessKeyID = v
	}
	if v := os.Getenv("KOMODO_AWS_SECRET_ACCESS_KEY"); v != "" {
		c.Aws.SecretAccessKey = v
	}
	if v := os.Getenv("KOMODO_HETZNER_TOKEN"); v != "" {
		c.Hetzner.Token = v
	}
}

// Validate rejects configurations the core cannot start with.
func (c *Config) Validate() error {
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("invalid port %d", c.Port)
	}
	if c.DataDir == "" {
		return fmt.Errorf("data_dir must be set")
	}
	if time.Duration(c.MonitoringInterval) < time.Second {
		return fmt.Errorf("monitoring_interval must be at least 1s")
	}
	for i, p := range c.GitProviders {
		if p.Domain == "" {
			return fmt.Errorf("git_providers[%d]: domain must be set", i)
		}
	}
	for i, r := range c.DockerRegistries {
		if r.Domain == "" {
			return fmt.Errorf("docker_registries[%d]: domain must be set", i)
		}
	}
	return nil
}

// GitToken resolves the token for a git provider account. Empty when no
// provider matches, which public repos tolerate.
func (c *Config) GitToken(domain, account string) string {
	for _, p := range c.GitProviders {
		if p.Domain == domain && (account == "" || p.Account == account) {
			return p.Token
		}
	}
	return ""
}
