package builder

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/hetznercloud/hcloud-go/v2/hcloud"

	"github.com/komodohq/komodo/pkg/errs"
	"github.com/komodohq/komodo/pkg/log"
	"github.com/komodohq/komodo/pkg/metrics"
	"github.com/komodohq/komodo/pkg/periphery"
	"github.com/komodohq/komodo/pkg/types"
)

func (m *Manager) hetznerClient() (*hcloud.Client, error) {
	if m.cfg.Hetzner.Token == "" {
		return nil, errs.InvalidConfig("hetzner builder", "no hetzner token configured")
	}
	return hcloud.NewClient(hcloud.WithToken(m.cfg.Hetzner.Token)), nil
}

func (m *Manager) provisionHetzner(ctx context.Context, build *types.Build, version types.Version, cfg types.HetznerBuilderConfig) (*periphery.Client, *Cleanup, error) {
	client, err := m.hetznerClient()
	if err != nil {
		return nil, nil, err
	}

	timer := metrics.NewTimer()

	opts := hcloud.ServerCreateOpts{
		Name:       instanceName(build, version),
		ServerType: &hcloud.ServerType{Name: cfg.ServerType},
		Image:      &hcloud.Image{Name: cfg.Image},
		UserData:   cfg.UserData,
	}
	if cfg.Location != "" {
		opts.Location = &hcloud.Location{Name: cfg.Location}
	}
	for _, name := range cfg.SSHKeys {
		sshKey, _, err := client.SSHKey.GetByName(ctx, name)
		if err != nil || sshKey == nil {
			return nil, nil, errs.Newf(errs.KindProvider, "hetzner builder", "ssh key %q not found", name)
		}
		opts.SSHKeys = append(opts.SSHKeys, sshKey)
	}

	result, _, err := client.Server.Create(ctx, opts)
	if err != nil {
		return nil, nil, errs.Provider("create hetzner server", err)
	}
	server := result.Server
	cleanup := &Cleanup{
		Kind:       CleanupCloud,
		Provider:   "hetzner",
		InstanceID: strconv.FormatInt(server.ID, 10),
		Region:     cfg.Location,
	}
	logger := log.WithTarget(string(types.KindBuild), build.ID)
	logger.Info().
		Int64("server_id", server.ID).Str("name", opts.Name).Msg("created hetzner build server")

	ip, err := m.awaitHetznerRunning(ctx, client, server.ID, cfg.UsePublicIP)
	if err != nil {
		return nil, cleanup, err
	}

	agent := periphery.NewClient(agentAddress(ip, cfg.Port, cfg.UseHTTPS), m.cfg.Passkey)
	agentVersion, err := m.waitForAgent(ctx, agent)
	if err != nil {
		return nil, cleanup, err
	}
	metrics.BuilderProvisionDuration.WithLabelValues("hetzner").Observe(timer.Duration().Seconds())
	logger.Info().
		Int64("server_id", server.ID).Str("agent_version", agentVersion).Msg("builder agent reachable")
	return agent, cleanup, nil
}

func (m *Manager) awaitHetznerRunning(ctx context.Context, client *hcloud.Client, serverID int64, usePublicIP bool) (string, error) {
	for attempt := 0; attempt < statePollAttempts; attempt++ {
		select {
		case <-ctx.Done():
			return "", errs.Provider("await hetzner running", ctx.Err())
		case <-time.After(statePollInterval):
		}

		server, _, err := client.Server.GetByID(ctx, serverID)
		if err != nil || server == nil {
			continue
		}
		if server.Status != hcloud.ServerStatusRunning {
			continue
		}
		if usePublicIP {
			if !server.PublicNet.IPv4.IsUnspecified() {
				return server.PublicNet.IPv4.IP.String(), nil
			}
			continue
		}
		if len(server.PrivateNet) > 0 {
			return server.PrivateNet[0].IP.String(), nil
		}
	}
	return "", errs.Newf(errs.KindProvider, "await hetzner running",
		"server %d did not reach running state in %s", serverID,
		time.Duration(statePollAttempts)*statePollInterval)
}

func (m *Manager) terminateHetzner(ctx context.Context, cleanup *Cleanup) error {
	client, err := m.hetznerClient()
	if err != nil {
		return err
	}
	id, err := strconv.ParseInt(cleanup.InstanceID, 10, 64)
	if err != nil {
		return fmt.Errorf("invalid hetzner server id %q: %w", cleanup.InstanceID, err)
	}
	_, _, err = client.Server.DeleteWithResult(ctx, &hcloud.Server{ID: id})
	if err != nil {
		return fmt.Errorf("failed to delete hetzner server %d: %w", id, err)
	}
	return nil
}
