// Package builder resolves where a build runs and manages the lifecycle
// of ephemeral cloud build instances: provision, wait for a reachable
// agent, and guaranteed teardown.
package builder

import (
	"context"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/komodohq/komodo/pkg/alerts"
	"github.com/komodohq/komodo/pkg/config"
	"github.com/komodohq/komodo/pkg/errs"
	"github.com/komodohq/komodo/pkg/log"
	"github.com/komodohq/komodo/pkg/metrics"
	"github.com/komodohq/komodo/pkg/periphery"
	"github.com/komodohq/komodo/pkg/storage"
	"github.com/komodohq/komodo/pkg/types"
)

const (
	// statePollInterval and statePollAttempts bound the wait for a cloud
	// instance to report running, then again for its agent to answer.
	statePollInterval = 2 * time.Second
	statePollAttempts = 30

	// teardownInterval and teardownAttempts bound termination retries.
	teardownInterval = 15 * time.Second
	teardownAttempts = 5
)

// CleanupKind discriminates what teardown has to do.
type CleanupKind string

const (
	// CleanupServer means the build ran on a long-lived host; nothing to
	// terminate.
	CleanupServer CleanupKind = "Server"
	// CleanupCloud means an ephemeral instance must be terminated.
	CleanupCloud CleanupKind = "Cloud"
)

// Cleanup is the teardown handle returned with every builder client.
type Cleanup struct {
	Kind       CleanupKind
	Provider   string // "aws" | "hetzner"
	InstanceID string
	Region     string
}

// Manager provisions builders and tears them down.
type Manager struct {
	cfg    *config.Config
	store  *storage.BoltStore
	alerts *alerts.Broker
}

// NewManager builds the manager. Construct once at startup.
func NewManager(cfg *config.Config, store *storage.BoltStore, broker *alerts.Broker) *Manager {
	return &Manager{cfg: cfg, store: store, alerts: broker}
}

// instanceName derives the cloud instance tag for a build run.
func instanceName(build *types.Build, version types.Version) string {
	return fmt.Sprintf("BUILDER-%s-v%s", build.Name, version)
}

// GetPeriphery resolves the build's builder and returns a reachable
// agent client plus the teardown handle. Cloud paths provision an
// instance and poll until the agent answers; the returned cleanup must
// be passed to TearDown on every exit path once this succeeds.
func (m *Manager) GetPeriphery(ctx context.Context, build *types.Build, version types.Version) (*periphery.Client, *Cleanup, error) {
	builder, err := storage.GetResource[types.BuilderConfig, types.NoInfo](m.store, types.KindBuilder, build.Config.BuilderID)
	if err != nil {
		return nil, nil, err
	}

	switch builder.Config.Type {
	case types.BuilderServer:
		server, err := storage.GetResource[types.ServerConfig, types.ServerInfo](m.store, types.KindServer, builder.Config.Server.ServerID)
		if err != nil {
			return nil, nil, err
		}
		client := periphery.ForServer(server, m.cfg.Passkey)
		return client, &Cleanup{Kind: CleanupServer}, nil

	case types.BuilderUrl:
		passkey := builder.Config.Url.Passkey
		if passkey == "" {
			passkey = m.cfg.Passkey
		}
		return periphery.NewClient(builder.Config.Url.Address, passkey), &Cleanup{Kind: CleanupServer}, nil

	case types.BuilderAws:
		return m.provisionAws(ctx, build, version, builder.Config.Aws)

	case types.BuilderHetzner:
		return m.provisionHetzner(ctx, build, version, builder.Config.Hetzner)

	default:
		return nil, nil, errs.InvalidConfig("resolve builder", "builder %s has unknown type %q", builder.Name, builder.Config.Type)
	}
}

// waitForAgent polls GetVersion on the fresh instance until it answers.
func (m *Manager) waitForAgent(ctx context.Context, client *periphery.Client) (string, error) {
	var version string
	op := func() error {
		resp, err := client.GetVersion(ctx)
		if err != nil {
			return err
		}
		version = resp.Version
		return nil
	}
	policy := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewConstantBackOff(statePollInterval), statePollAttempts-1),
		ctx,
	)
	if err := backoff.Retry(op, policy); err != nil {
		return "", errs.Transport("wait for builder agent", err)
	}
	return version, nil
}

// agentAddress assembles the periphery URL for a fresh instance.
func agentAddress(ip string, port int, useHTTPS bool) string {
	if port == 0 {
		port = types.DefaultPeripheryPort
	}
	scheme := "http"
	if useHTTPS {
		scheme = "https"
	}
	return fmt.Sprintf("%s://%s:%d", scheme, ip, port)
}

// TearDown terminates a cloud instance, retrying on failure. Server
// cleanups are no-ops. A final failure opens a Critical alert naming the
// stuck instance; teardown failures must never be silent.
func (m *Manager) TearDown(ctx context.Context, build *types.Build, cleanup *Cleanup) types.Log {
	if cleanup == nil || cleanup.Kind != CleanupCloud {
		return types.SimpleLog("Cleanup Builder", "builder is a managed server; nothing to terminate")
	}

	// Teardown must run even when the build context was cancelled.
	ctx = context.WithoutCancel(ctx)

	var op func() error
	switch cleanup.Provider {
	case "aws":
		op = func() error { return m.terminateAws(ctx, cleanup) }
	case "hetzner":
		op = func() error { return m.terminateHetzner(ctx, cleanup) }
	default:
		return types.ErrorLog("Cleanup Builder", fmt.Errorf("unknown cloud provider %q", cleanup.Provider))
	}

	policy := backoff.WithMaxRetries(backoff.NewConstantBackOff(teardownInterval), teardownAttempts-1)
	if err := backoff.Retry(op, policy); err != nil {
		metrics.BuilderTeardownFailures.WithLabelValues(cleanup.Provider).Inc()
		logger := log.WithTarget(string(types.KindBuild), build.ID)
		logger.Error().Err(err).
			Str("instance_id", cleanup.InstanceID).Msg("failed to terminate builder instance")
		m.alerts.Critical(
			types.ResourceTarget{Type: types.KindBuild, ID: build.ID},
			fmt.Sprintf("failed to terminate builder instance %s for build %s", cleanup.InstanceID, build.Name),
			map[string]string{
				"instance_id": cleanup.InstanceID,
				"provider":    cleanup.Provider,
				"region":      cleanup.Region,
			},
		)
		return types.ErrorLog("Cleanup Builder", err)
	}
	return types.SimpleLog("Cleanup Builder", fmt.Sprintf("terminated instance %s", cleanup.InstanceID))
}
