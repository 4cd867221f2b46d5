package state

import (
	"context"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/komodohq/komodo/pkg/alerts"
	"github.com/komodohq/komodo/pkg/config"
	"github.com/komodohq/komodo/pkg/log"
	"github.com/komodohq/komodo/pkg/metrics"
	"github.com/komodohq/komodo/pkg/periphery"
	"github.com/komodohq/komodo/pkg/storage"
	"github.com/komodohq/komodo/pkg/types"
)

// Monitor polls every enabled server's container list on a ticker and
// keeps the cache current. Execute operations additionally call
// RefreshServer directly after touching a host.
type Monitor struct {
	store  *storage.BoltStore
	cache  *Cache
	cfg    *config.Config
	alerts *alerts.Broker
	stopCh chan struct{}
}

// NewMonitor builds the monitor. Construct once at startup.
func NewMonitor(store *storage.BoltStore, cache *Cache, cfg *config.Config, broker *alerts.Broker) *Monitor {
	return &Monitor{
		store:  store,
		cache:  cache,
		cfg:    cfg,
		alerts: broker,
		stopCh: make(chan struct{}),
	}
}

// Start begins the poll loop.
func (m *Monitor) Start() {
	go m.run()
}

// Stop stops the poll loop.
func (m *Monitor) Stop() {
	close(m.stopCh)
}

func (m *Monitor) run() {
	ticker := time.NewTicker(time.Duration(m.cfg.MonitoringInterval))
	defer ticker.Stop()

	m.pollAll()
	for {
		select {
		case <-ticker.C:
			m.pollAll()
		case <-m.stopCh:
			return
		}
	}
}

func (m *Monitor) pollAll() {
	servers, err := storage.ListResources[types.ServerConfig, types.ServerInfo](m.store, types.KindServer)
	if err != nil {
		logger := log.WithComponent("state")
		logger.Error().Err(err).Msg("failed to list servers")
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Duration(m.cfg.MonitoringInterval))
	defer cancel()

	unreachable := 0
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(8)
	results := make([]bool, len(servers))
	for i, server := range servers {
		i, server := i, server
		g.Go(func() error {
			results[i] = m.refresh(ctx, server) == nil
			return nil
		})
	}
	g.Wait()
	for i, server := range servers {
		if server.Config.Enabled && !results[i] {
			unreachable++
		}
	}
	metrics.ServersUnreachable.Set(float64(unreachable))
}

// RefreshServer re-polls one server by id, eg after an execute operation
// changed its containers.
func (m *Monitor) RefreshServer(ctx context.Context, serverID string) {
	server, err := storage.GetResource[types.ServerConfig, types.ServerInfo](m.store, types.KindServer, serverID)
	if err != nil {
		logger := log.WithServer(serverID)
		logger.Warn().Err(err).Msg("failed to load server for refresh")
		return
	}
	m.refresh(ctx, server)
}

func (m *Monitor) refresh(ctx context.Context, server *types.Server) error {
	if !server.Config.Enabled {
		m.cache.MarkDisabled(server.ID)
		return nil
	}

	timer := metrics.NewTimer()
	defer timer.ObserveDuration(metrics.ServerPollDuration)

	client := periphery.ForServer(server, m.cfg.Passkey)
	version, err := client.GetVersion(ctx)
	if err != nil {
		m.markUnreachable(server, err)
		return err
	}
	containers, err := client.ListContainers(ctx)
	if err != nil {
		m.markUnreachable(server, err)
		return err
	}

	m.cache.SetServer(server.ID, version.Version, containers)

	server.Info = types.ServerInfo{Version: version.Version, LastSeen: time.Now()}
	if err := storage.SaveResource(m.store, types.KindServer, server); err != nil {
		logger := log.WithServer(server.ID)
		logger.Warn().Err(err).Msg("failed to persist server info")
	}
	return nil
}

func (m *Monitor) markUnreachable(server *types.Server, err error) {
	status, hadStatus := m.cache.Server(server.ID)
	m.cache.MarkUnreachable(server.ID)
	logger := log.WithServer(server.ID)
	logger.Warn().Err(err).Msg("server unreachable")

	// Alert once on the Ok -> NotOk transition, not every poll.
	if server.Config.SendUnreachableAlerts && (!hadStatus || status.State == types.ServerOk) {
		m.alerts.Warning(
			types.ResourceTarget{Type: types.KindServer, ID: server.ID},
			"server "+server.Name+" is unreachable",
			map[string]string{"address": server.Config.Address},
		)
	}
}
