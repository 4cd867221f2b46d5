package listener

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/komodohq/komodo/pkg/config"
	"github.com/komodohq/komodo/pkg/execute"
	"github.com/komodohq/komodo/pkg/storage"
	"github.com/komodohq/komodo/pkg/types"
)

func testServer(t *testing.T) (*httptest.Server, *storage.BoltStore) {
	t.Helper()
	store, err := storage.NewBoltStore(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	cfg := config.Default()
	cfg.WebhookSecret = "core-secret"
	eng := &execute.Engine{Store: store, Cfg: cfg}

	srv := httptest.NewServer(New(eng, nil).Router())
	t.Cleanup(srv.Close)
	return srv, store
}

func seedSync(t *testing.T, store *storage.BoltStore, enabled bool, branch string) *types.ResourceSync {
	t.Helper()
	sync := &types.ResourceSync{}
	sync.Name = "infra"
	sync.Config.WebhookEnabled = enabled
	sync.Config.Branch = branch
	require.NoError(t, storage.CreateResource(store, types.KindResourceSync, sync))
	return sync
}

func postWebhook(t *testing.T, srv *httptest.Server, path, signature string, body []byte) *http.Response {
	t.Helper()
	req, err := http.NewRequest(http.MethodPost, srv.URL+path, bytes.NewReader(body))
	require.NoError(t, err)
	if signature != "" {
		req.Header.Set("X-Hub-Signature-256", signature)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func TestHealth(t *testing.T) {
	srv, _ := testServer(t)

	resp, err := http.Get(srv.URL + "/health")
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	var out map[string]bool
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	assert.True(t, out["healthy"])
}

func TestWebhookUnknownKind(t *testing.T) {
	srv, _ := testServer(t)
	resp := postWebhook(t, srv, "/listener/github/banana/x/sync", "", []byte(`{}`))
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestWebhookUnknownResource(t *testing.T) {
	srv, _ := testServer(t)
	resp := postWebhook(t, srv, "/listener/github/sync/ghost/sync", "", []byte(`{}`))
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestWebhookDisabled(t *testing.T) {
	srv, store := testServer(t)
	sync := seedSync(t, store, false, "")

	resp := postWebhook(t, srv, "/listener/github/sync/"+sync.ID+"/sync", "", []byte(`{}`))
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
}

func TestWebhookBadSignature(t *testing.T) {
	srv, store := testServer(t)
	sync := seedSync(t, store, true, "")

	body := []byte(`{"ref":"refs/heads/main"}`)
	resp := postWebhook(t, srv, "/listener/github/sync/"+sync.ID+"/sync", sign("wrong-secret", body), body)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp = postWebhook(t, srv, "/listener/github/sync/"+sync.ID+"/sync", "", body)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestWebhookBranchMismatchIgnored(t *testing.T) {
	srv, store := testServer(t)
	sync := seedSync(t, store, true, "main")

	body := []byte(`{"ref":"refs/heads/dev"}`)
	resp := postWebhook(t, srv, "/listener/github/sync/"+sync.ID+"/sync", sign("core-secret", body), body)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var out map[string]string
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	assert.Equal(t, "ignored", out["status"])
}
