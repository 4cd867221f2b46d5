package periphery

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/komodohq/komodo/pkg/errs"
	"github.com/komodohq/komodo/pkg/types"
)

// agentStub answers one envelope request and records what it received.
func agentStub(t *testing.T, status int, respond any) (*httptest.Server, *envelope, *http.Header) {
	t.Helper()
	var received envelope
	var headers http.Header
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		headers = r.Header.Clone()
		require.NoError(t, json.NewDecoder(r.Body).Decode(&received))
		w.WriteHeader(status)
		json.NewEncoder(w).Encode(respond)
	}))
	t.Cleanup(srv.Close)
	return srv, &received, &headers
}

func TestCallEnvelopeAndAuth(t *testing.T) {
	srv, received, headers := agentStub(t, http.StatusOK, GetVersionResponse{Version: "1.2.0"})
	c := NewClient(srv.URL, "pk-123")

	resp, err := c.GetVersion(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "1.2.0", resp.Version)

	assert.Equal(t, "GetVersion", received.Type)
	assert.Equal(t, "Bearer pk-123", headers.Get("Authorization"))
	assert.Equal(t, "application/json", headers.Get("Content-Type"))
}

func TestCallParams(t *testing.T) {
	srv, received, _ := agentStub(t, http.StatusOK, types.SimpleLog("Start", "ok"))
	c := NewClient(srv.URL, "pk")

	_, err := c.StartContainer(context.Background(), "api")
	require.NoError(t, err)

	assert.Equal(t, "StartContainer", received.Type)
	var params ContainerRequest
	require.NoError(t, json.Unmarshal(received.Params, &params))
	assert.Equal(t, "api", params.Name)
}

func TestCallNonSuccessStatus(t *testing.T) {
	srv, _, _ := agentStub(t, http.StatusInternalServerError, map[string]string{"error": "boom"})
	c := NewClient(srv.URL, "pk")

	_, err := c.GetHealth(context.Background())
	require.Error(t, err)
	assert.Equal(t, errs.KindRemoteTransport, errs.KindOf(err))
	assert.Contains(t, err.Error(), "500")
}

func TestCallUnreachableAgent(t *testing.T) {
	c := NewClient("http://127.0.0.1:1", "pk")
	_, err := c.GetVersion(context.Background())
	require.Error(t, err)
	assert.Equal(t, errs.KindRemoteTransport, errs.KindOf(err))
}

func TestRepoActionResponseCurrentShape(t *testing.T) {
	var resp RepoActionResponse
	require.NoError(t, json.Unmarshal([]byte(`{
		"logs": [{"stage": "Clone", "success": true}],
		"commit_hash": "abc123",
		"commit_message": "init"
	}`), &resp))
	assert.Equal(t, "abc123", resp.CommitHash)
	assert.Equal(t, "init", resp.CommitMessage)
	require.Len(t, resp.Logs, 1)
}

func TestRepoActionResponseLegacyShape(t *testing.T) {
	// Agents up to v1.13 answered with latest_hash/latest_message.
	var resp RepoActionResponse
	require.NoError(t, json.Unmarshal([]byte(`{
		"logs": [],
		"latest_hash": "old456",
		"latest_message": "legacy"
	}`), &resp))
	assert.Equal(t, "old456", resp.CommitHash)
	assert.Equal(t, "legacy", resp.CommitMessage)
}

func TestRepoActionResponseCurrentWinsOverLegacy(t *testing.T) {
	var resp RepoActionResponse
	require.NoError(t, json.Unmarshal([]byte(`{
		"commit_hash": "new",
		"latest_hash": "old"
	}`), &resp))
	assert.Equal(t, "new", resp.CommitHash)
}

func TestForServer(t *testing.T) {
	server := &types.Server{}
	server.Config.Address = "http://host:8120"

	c := ForServer(server, "core-pk")
	assert.Equal(t, "core-pk", c.passkey)

	server.Config.Passkey = "server-pk"
	c = ForServer(server, "core-pk")
	assert.Equal(t, "server-pk", c.passkey)
	assert.Equal(t, "http://host:8120", c.Address())
}
