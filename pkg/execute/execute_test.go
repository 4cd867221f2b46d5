package execute

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/komodohq/komodo/pkg/access"
	"github.com/komodohq/komodo/pkg/actionstate"
	"github.com/komodohq/komodo/pkg/alerts"
	"github.com/komodohq/komodo/pkg/builder"
	"github.com/komodohq/komodo/pkg/cancel"
	"github.com/komodohq/komodo/pkg/config"
	"github.com/komodohq/komodo/pkg/errs"
	"github.com/komodohq/komodo/pkg/periphery"
	"github.com/komodohq/komodo/pkg/state"
	"github.com/komodohq/komodo/pkg/storage"
	"github.com/komodohq/komodo/pkg/types"
	"github.com/komodohq/komodo/pkg/updates"
)

func newTestEngine(t *testing.T) (*Engine, *storage.BoltStore) {
	t.Helper()
	store, err := storage.NewBoltStore(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	cfg := config.Default()
	states := state.NewCache()
	broker := alerts.NewBroker(store)
	return &Engine{
		Store:    store,
		Cfg:      cfg,
		Guards:   actionstate.NewRegistry(),
		Journal:  updates.NewJournal(store),
		Cancels:  cancel.NewHub(),
		States:   states,
		Monitor:  state.NewMonitor(store, states, cfg, broker),
		Alerts:   broker,
		Builders: builder.NewManager(cfg, store, broker),
		Access:   access.NewChecker(store),
	}, store
}

// stubAgent answers periphery envelopes: health calls get canned
// responses, everything else routes through handlers by request type.
func stubAgent(t *testing.T, handlers map[string]func() any) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var env struct {
			Type string `json:"type"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&env))
		if handler, ok := handlers[env.Type]; ok {
			json.NewEncoder(w).Encode(handler())
			return
		}
		switch env.Type {
		case "GetVersion":
			json.NewEncoder(w).Encode(periphery.GetVersionResponse{Version: "1.0.0"})
		case "ListContainers":
			json.NewEncoder(w).Encode([]types.Container{})
		default:
			json.NewEncoder(w).Encode(types.SimpleLog(env.Type, "ok"))
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func seedServer(t *testing.T, store *storage.BoltStore, address string) *types.Server {
	t.Helper()
	server := &types.Server{Name: "prod-1"}
	server.Config = types.DefaultServerConfig()
	server.Config.Address = address
	require.NoError(t, storage.CreateResource(store, types.KindServer, server))
	return server
}

func TestConcurrentDeploySecondFailsFast(t *testing.T) {
	eng, store := newTestEngine(t)

	inDeploy := make(chan struct{})
	release := make(chan struct{})
	srv := stubAgent(t, map[string]func() any{
		"Deploy": func() any {
			close(inDeploy)
			<-release
			return types.SimpleLog("Deploy Container", "container started")
		},
	})

	server := seedServer(t, store, srv.URL)
	d := &types.Deployment{Name: "api"}
	d.Config = types.DefaultDeploymentConfig()
	d.Config.ServerID = server.ID
	d.Config.Image = types.DeploymentImage{Type: types.ImageKindImage, Image: "nginx:1.25"}
	require.NoError(t, storage.CreateResource(store, types.KindDeployment, d))

	type result struct {
		u   *types.Update
		err error
	}
	done := make(chan result, 1)
	go func() {
		u, err := eng.Deploy(context.Background(), types.SyncUserID, d.ID)
		done <- result{u: u, err: err}
	}()

	// The second attempt arrives while the first holds the Deploying flag.
	<-inDeploy
	_, err := eng.Deploy(context.Background(), types.SyncUserID, d.ID)
	require.Error(t, err)
	assert.Equal(t, errs.KindResourceBusy, errs.KindOf(err))

	close(release)
	won := <-done
	require.NoError(t, won.err)
	require.True(t, won.u.Success)

	// The rejected attempt never journaled a row.
	all, err := store.ListUpdates(nil)
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, won.u.ID, all[0].ID)
}

func TestBatchPatternScopedToVisibleResources(t *testing.T) {
	eng, store := newTestEngine(t)

	user := &types.User{Username: "dev"}
	require.NoError(t, store.CreateUser(user))

	visible := &types.Deployment{Name: "api-prod"}
	require.NoError(t, storage.CreateResource(store, types.KindDeployment, visible))
	hidden := &types.Deployment{Name: "api-staging"}
	require.NoError(t, storage.CreateResource(store, types.KindDeployment, hidden))

	require.NoError(t, store.SavePermission(&types.Permission{
		UserTarget: types.UserTarget{Type: types.UserTargetUser, ID: user.ID},
		Resource:   types.ResourceTarget{Type: types.KindDeployment, ID: visible.ID},
		Level:      types.PermissionExecute,
	}))

	names, err := eng.matchNames(user.ID, types.KindDeployment, "api-*")
	require.NoError(t, err)
	assert.Equal(t, []string{"api-prod"}, names)

	// The synthetic sync identity sees everything.
	names, err = eng.matchNames(types.SyncUserID, types.KindDeployment, "api-*")
	require.NoError(t, err)
	assert.Equal(t, []string{"api-prod", "api-staging"}, names)
}

func TestRunBuildStampsLastBuiltAtFromUpdateEnd(t *testing.T) {
	eng, store := newTestEngine(t)

	srv := stubAgent(t, map[string]func() any{
		"CloneRepo": func() any {
			return periphery.RepoActionResponse{
				Logs:          []types.Log{types.SimpleLog("Clone Repo", "cloned")},
				CommitHash:    "abc123",
				CommitMessage: "init",
			}
		},
		"Build": func() any {
			return []types.Log{types.SimpleLog("Build Image", "built")}
		},
	})

	server := seedServer(t, store, srv.URL)
	bld := &types.Builder{Name: "local"}
	bld.Config.Type = types.BuilderServer
	bld.Config.Server.ServerID = server.ID
	require.NoError(t, storage.CreateResource(store, types.KindBuilder, bld))

	b := &types.Build{Name: "api-build"}
	b.Config = types.DefaultBuildConfig()
	b.Config.BuilderID = bld.ID
	b.Config.Repo = "acme/api"
	require.NoError(t, storage.CreateResource(store, types.KindBuild, b))

	u, err := eng.RunBuild(context.Background(), types.SyncUserID, b.ID)
	require.NoError(t, err)
	require.True(t, u.Success)
	require.False(t, u.EndTS.IsZero())

	stored, err := storage.GetResource[types.BuildConfig, types.BuildInfo](store, types.KindBuild, b.ID)
	require.NoError(t, err)
	assert.True(t, stored.Info.LastBuiltAt.Equal(u.EndTS),
		"last_built_at %s != update end %s", stored.Info.LastBuiltAt, u.EndTS)
	assert.Equal(t, "abc123", stored.Info.BuiltHash)
	assert.Equal(t, u.Version, stored.Config.Version)
}
