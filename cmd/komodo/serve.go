package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/komodohq/komodo/pkg/access"
	"github.com/komodohq/komodo/pkg/actionstate"
	"github.com/komodohq/komodo/pkg/alerts"
	"github.com/komodohq/komodo/pkg/builder"
	"github.com/komodohq/komodo/pkg/cancel"
	"github.com/komodohq/komodo/pkg/config"
	"github.com/komodohq/komodo/pkg/execute"
	"github.com/komodohq/komodo/pkg/listener"
	"github.com/komodohq/komodo/pkg/log"
	"github.com/komodohq/komodo/pkg/metrics"
	"github.com/komodohq/komodo/pkg/pulls"
	"github.com/komodohq/komodo/pkg/state"
	"github.com/komodohq/komodo/pkg/storage"
	"github.com/komodohq/komodo/pkg/syncer"
	"github.com/komodohq/komodo/pkg/updates"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the core server",
	RunE: func(cmd *cobra.Command, args []string) error {
		configPath, _ := cmd.Flags().GetString("config")
		return serve(configPath)
	},
}

func init() {
	serveCmd.Flags().String("config", "", "Path to the core config TOML (optional)")
}

func serve(configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	log.Init(log.Config{Level: log.Level(cfg.LogLevel), JSONOutput: cfg.LogJSON})
	logger := log.WithComponent("core")

	store, err := storage.NewBoltStore(cfg.DataDir)
	if err != nil {
		return fmt.Errorf("failed to open store: %w", err)
	}
	defer store.Close()
	if err := store.EnsureSyncUser(); err != nil {
		return fmt.Errorf("failed to ensure sync user: %w", err)
	}

	broker := alerts.NewBroker(store)
	states := state.NewCache()
	monitor := state.NewMonitor(store, states, cfg, broker)

	eng := &execute.Engine{
		Store:    store,
		Cfg:      cfg,
		Guards:   actionstate.NewRegistry(),
		Journal:  updates.NewJournal(store),
		Cancels:  cancel.NewHub(),
		Pulls:    pulls.NewCache(),
		States:   states,
		Monitor:  monitor,
		Alerts:   broker,
		Builders: builder.NewManager(cfg, store, broker),
		Access:   access.NewChecker(store),
	}
	syn := syncer.New(eng)
	eng.RunSync = syn.RunSync

	monitor.Start()
	defer monitor.Stop()

	collector := metrics.NewCollector(store)
	collector.Start()
	defer collector.Stop()

	if watcher, err := syncer.NewWatcher(syn); err != nil {
		logger.Warn().Err(err).Str("dir", cfg.SyncDirectory).
			Msg("sync directory watch disabled")
	} else {
		defer watcher.Close()
	}

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Port),
		Handler: listener.New(eng, syn).Router(),
	}
	errCh := make(chan error, 1)
	go func() {
		logger.Info().Int("port", cfg.Port).Msg("listener started")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	select {
	case sig := <-sigCh:
		logger.Info().Str("signal", sig.String()).Msg("shutting down")
	case err := <-errCh:
		return fmt.Errorf("listener error: %w", err)
	}

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancelShutdown()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn().Err(err).Msg("listener shutdown timed out")
	}
	return nil
}
