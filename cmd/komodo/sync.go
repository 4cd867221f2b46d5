package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/komodohq/komodo/pkg/access"
	"github.com/komodohq/komodo/pkg/actionstate"
	"github.com/komodohq/komodo/pkg/alerts"
	"github.com/komodohq/komodo/pkg/builder"
	"github.com/komodohq/komodo/pkg/cancel"
	"github.com/komodohq/komodo/pkg/config"
	"github.com/komodohq/komodo/pkg/execute"
	"github.com/komodohq/komodo/pkg/log"
	"github.com/komodohq/komodo/pkg/pulls"
	"github.com/komodohq/komodo/pkg/state"
	"github.com/komodohq/komodo/pkg/storage"
	"github.com/komodohq/komodo/pkg/syncer"
	"github.com/komodohq/komodo/pkg/types"
	"github.com/komodohq/komodo/pkg/updates"
)

var syncCmd = &cobra.Command{
	Use:   "sync NAME",
	Short: "Run a resource sync once and exit",
	Long: `Run one resource sync to completion without starting the server.
Useful for applying TOML definitions from CI or from the command line.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		configPath, _ := cmd.Flags().GetString("config")
		timeout, _ := cmd.Flags().GetDuration("timeout")
		return runSyncOnce(configPath, args[0], timeout)
	},
}

func init() {
	syncCmd.Flags().String("config", "", "Path to the core config TOML (optional)")
	syncCmd.Flags().Duration("timeout", 30*time.Minute, "Abort the sync after this long")
}

func runSyncOnce(configPath, nameOrID string, timeout time.Duration) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	log.Init(log.Config{Level: log.Level(cfg.LogLevel), JSONOutput: cfg.LogJSON})

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
	eng := &execute.Engine{
		Store:    store,
		Cfg:      cfg,
		Guards:   actionstate.NewRegistry(),
		Journal:  updates.NewJournal(store),
		Cancels:  cancel.NewHub(),
		Pulls:    pulls.NewCache(),
		States:   states,
		Monitor:  state.NewMonitor(store, states, cfg, broker),
		Alerts:   broker,
		Builders: builder.NewManager(cfg, store, broker),
		Access:   access.NewChecker(store),
	}
	syn := syncer.New(eng)
	eng.RunSync = syn.RunSync

	ctx, cancelRun := context.WithTimeout(context.Background(), timeout)
	defer cancelRun()

	// Deploy decisions need live container state, so poll every server
	// once before syncing.
	servers, err := storage.ListResources[types.ServerConfig, types.ServerInfo](store, types.KindServer)
	if err != nil {
		return fmt.Errorf("failed to list servers: %w", err)
	}
	for _, server := range servers {
		eng.Monitor.RefreshServer(ctx, server.ID)
	}

	u, err := syn.RunSync(ctx, types.SyncUserID, nameOrID)
	if err != nil {
		return err
	}
	for _, l := range u.Logs {
		fmt.Printf("== %s ==\n", l.Stage)
		if l.Stdout != "" {
			fmt.Println(l.Stdout)
		}
		if l.Stderr != "" {
			fmt.Println(l.Stderr)
		}
	}
	if !u.Success {
		return fmt.Errorf("sync %s failed", nameOrID)
	}
	return nil
}
