// Package periphery is the typed client for the agent installed on each
// managed host. Every call is one authenticated HTTP POST carrying a
// request envelope; the client never retries on its own.
package periphery

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/komodohq/komodo/pkg/errs"
	"github.com/komodohq/komodo/pkg/interpolate"
	"github.com/komodohq/komodo/pkg/types"
)

// Client talks to one periphery agent identified by address + passkey.
type Client struct {
	address string
	passkey string
	http    *http.Client
}

// NewClient builds a client for the agent at address, authenticating
// with the passkey as bearer credential.
func NewClient(address, passkey string) *Client {
	return &Client{
		address: address,
		passkey: passkey,
		http:    &http.Client{Timeout: 120 * time.Second},
	}
}

// Address returns the agent address the client points at.
func (c *Client) Address() string {
	return c.address
}

type envelope struct {
	Type   string          `json:"type"`
	Params json.RawMessage `json:"params"`
}

func call[T any](ctx context.Context, c *Client, reqType string, params any) (T, error) {
	var zero T
	body, err := json.Marshal(params)
	if err != nil {
		return zero, errs.Transport(reqType, fmt.Errorf("failed to encode request: %w", err))
	}
	env, err := json.Marshal(envelope{Type: reqType, Params: body})
	if err != nil {
		return zero, errs.Transport(reqType, fmt.Errorf("failed to encode envelope: %w", err))
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.address, bytes.NewReader(env))
	if err != nil {
		return zero, errs.Transport(reqType, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.passkey)

	resp, err := c.http.Do(req)
	if err != nil {
		return zero, errs.Transport(reqType, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return zero, errs.Transport(reqType, fmt.Errorf("failed to read response: %w", err))
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return zero, errs.Transport(reqType, fmt.Errorf("agent answered %d: %s", resp.StatusCode, data))
	}
	var out T
	if err := json.Unmarshal(data, &out); err != nil {
		return zero, errs.Transport(reqType, fmt.Errorf("failed to decode response: %w", err))
	}
	return out, nil
}

// GetVersionResponse carries the agent version.
type GetVersionResponse struct {
	Version string `json:"version"`
}

// GetVersion is the no-payload health check.
func (c *Client) GetVersion(ctx context.Context) (GetVersionResponse, error) {
	return call[GetVersionResponse](ctx, c, "GetVersion", struct{}{})
}

// GetHealthResponse reports basic agent health.
type GetHealthResponse struct {
	Healthy bool   `json:"healthy"`
	Version string `json:"version,omitempty"`
}

func (c *Client) GetHealth(ctx context.Context) (GetHealthResponse, error) {
	return call[GetHealthResponse](ctx, c, "GetHealth", struct{}{})
}

// ListContainers returns every container on the host.
func (c *Client) ListContainers(ctx context.Context) ([]types.Container, error) {
	return call[[]types.Container](ctx, c, "ListContainers", struct{}{})
}

// DeployRequest runs one container from a deployment config.
type DeployRequest struct {
	Deployment    *types.Deployment      `json:"deployment"`
	StopSignal    types.TerminationSignal `json:"stop_signal,omitempty"`
	StopTime      int                    `json:"stop_time,omitempty"`
	RegistryToken string                 `json:"registry_token,omitempty"`
	Replacers     []interpolate.Replacer `json:"replacers,omitempty"`
}

func (c *Client) Deploy(ctx context.Context, req DeployRequest) (types.Log, error) {
	return call[types.Log](ctx, c, "Deploy", req)
}

// ContainerRequest addresses one container by name.
type ContainerRequest struct {
	Name string `json:"name"`
}

// StopContainerRequest optionally overrides signal and timeout.
type StopContainerRequest struct {
	Name   string                  `json:"name"`
	Signal types.TerminationSignal `json:"signal,omitempty"`
	Time   int                     `json:"time,omitempty"`
}

// RenameContainerRequest renames a live container.
type RenameContainerRequest struct {
	From string `json:"from"`
	To   string `json:"to"`
}

func (c *Client) StartContainer(ctx context.Context, name string) (types.Log, error) {
	return call[types.Log](ctx, c, "StartContainer", ContainerRequest{Name: name})
}

func (c *Client) RestartContainer(ctx context.Context, name string) (types.Log, error) {
	return call[types.Log](ctx, c, "RestartContainer", ContainerRequest{Name: name})
}

func (c *Client) PauseContainer(ctx context.Context, name string) (types.Log, error) {
	return call[types.Log](ctx, c, "PauseContainer", ContainerRequest{Name: name})
}

func (c *Client) UnpauseContainer(ctx context.Context, name string) (types.Log, error) {
	return call[types.Log](ctx, c, "UnpauseContainer", ContainerRequest{Name: name})
}

func (c *Client) StopContainer(ctx context.Context, req StopContainerRequest) (types.Log, error) {
	return call[types.Log](ctx, c, "StopContainer", req)
}

func (c *Client) RemoveContainer(ctx context.Context, req StopContainerRequest) (types.Log, error) {
	return call[types.Log](ctx, c, "RemoveContainer", req)
}

func (c *Client) RenameContainer(ctx context.Context, from, to string) (types.Log, error) {
	return call[types.Log](ctx, c, "RenameContainer", RenameContainerRequest{From: from, To: to})
}

// PullImageRequest pulls one image, optionally authenticated.
type PullImageRequest struct {
	Name    string `json:"name"`
	Account string `json:"account,omitempty"`
	Token   string `json:"token,omitempty"`
}

func (c *Client) PullImage(ctx context.Context, req PullImageRequest) (types.Log, error) {
	return call[types.Log](ctx, c, "PullImage", req)
}

// ComposeUpRequest deploys a stack's compose project, optionally scoped
// to one service.
type ComposeUpRequest struct {
	Stack         *types.Stack           `json:"stack"`
	Service       string                 `json:"service,omitempty"`
	GitToken      string                 `json:"git_token,omitempty"`
	RegistryToken string                 `json:"registry_token,omitempty"`
	Replacers     []interpolate.Replacer `json:"replacers,omitempty"`
}

// ComposeUpResponse reports everything the agent learned bringing the
// project up.
type ComposeUpResponse struct {
	Logs          []types.Log          `json:"logs"`
	Deployed      bool                 `json:"deployed"`
	Services      []types.StackService `json:"services,omitempty"`
	FileContents  []types.FileContents `json:"file_contents,omitempty"`
	MissingFiles  []string             `json:"missing_files,omitempty"`
	RemoteErrors  []types.FileContents `json:"remote_errors,omitempty"`
	CommitHash    string               `json:"commit_hash,omitempty"`
	CommitMessage string               `json:"commit_message,omitempty"`
}

func (c *Client) ComposeUp(ctx context.Context, req ComposeUpRequest) (ComposeUpResponse, error) {
	return call[ComposeUpResponse](ctx, c, "ComposeUp", req)
}

// ComposeExecutionRequest runs one compose lifecycle command against a
// stack project, optionally scoped to one service.
type ComposeExecutionRequest struct {
	Project string `json:"project"`
	Service string `json:"service,omitempty"`
	// Command is the compose subcommand: pull, start, restart, pause,
	// unpause, stop, down.
	Command string `json:"command"`
	Signal  types.TerminationSignal `json:"signal,omitempty"`
	Time    int                     `json:"time,omitempty"`
}

func (c *Client) ComposeExecution(ctx context.Context, req ComposeExecutionRequest) (types.Log, error) {
	return call[types.Log](ctx, c, "ComposeExecution", req)
}

// ComposePull pulls the images of a stack project without deploying.
func (c *Client) ComposePull(ctx context.Context, req ComposeUpRequest) (ComposeUpResponse, error) {
	return call[ComposeUpResponse](ctx, c, "ComposePull", req)
}

// RepoRequest clones or pulls a git repo on the host.
type RepoRequest struct {
	Name        string                 `json:"name"`
	Repo        string                 `json:"repo"`
	Branch      string                 `json:"branch,omitempty"`
	Commit      string                 `json:"commit,omitempty"`
	Token       string                 `json:"token,omitempty"`
	Path        string                 `json:"path,omitempty"`
	OnClone     types.SystemCommand    `json:"on_clone,omitempty"`
	OnPull      types.SystemCommand    `json:"on_pull,omitempty"`
	Environment string                 `json:"environment,omitempty"`
	EnvFilePath string                 `json:"env_file_path,omitempty"`
	Replacers   []interpolate.Replacer `json:"replacers,omitempty"`
}

// RepoActionResponse is the current repo action shape. Agents up to
// v1.13 answered with latest_hash/latest_message instead; UnmarshalJSON
// accepts both.
type RepoActionResponse struct {
	Logs          []types.Log `json:"logs"`
	CommitHash    string      `json:"commit_hash,omitempty"`
	CommitMessage string      `json:"commit_message,omitempty"`
	EnvFilePath   string      `json:"env_file_path,omitempty"`
}

func (r *RepoActionResponse) UnmarshalJSON(data []byte) error {
	var raw struct {
		Logs          []types.Log `json:"logs"`
		CommitHash    string      `json:"commit_hash"`
		CommitMessage string      `json:"commit_message"`
		EnvFilePath   string      `json:"env_file_path"`
		// RepoActionResponseV1_13 fields
		LatestHash    string `json:"latest_hash"`
		LatestMessage string `json:"latest_message"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	r.Logs = raw.Logs
	r.CommitHash = raw.CommitHash
	r.CommitMessage = raw.CommitMessage
	r.EnvFilePath = raw.EnvFilePath
	if r.CommitHash == "" {
		r.CommitHash = raw.LatestHash
	}
	if r.CommitMessage == "" {
		r.CommitMessage = raw.LatestMessage
	}
	return nil
}

func (c *Client) CloneRepo(ctx context.Context, req RepoRequest) (RepoActionResponse, error) {
	return call[RepoActionResponse](ctx, c, "CloneRepo", req)
}

func (c *Client) PullOrCloneRepo(ctx context.Context, req RepoRequest) (RepoActionResponse, error) {
	return call[RepoActionResponse](ctx, c, "PullOrCloneRepo", req)
}

// BuildRequest runs a docker build on a builder agent.
type BuildRequest struct {
	Build         *types.Build           `json:"build"`
	RegistryToken string                 `json:"registry_token,omitempty"`
	Replacers     []interpolate.Replacer `json:"replacers,omitempty"`
}

func (c *Client) Build(ctx context.Context, req BuildRequest) ([]types.Log, error) {
	return call[[]types.Log](ctx, c, "Build", req)
}
