// Package listener is the core's inbound HTTP surface: git provider
// webhooks, health, and metrics. Webhook deliveries are verified with a
// GitHub-style HMAC signature before anything dispatches.
package listener

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/komodohq/komodo/pkg/config"
	"github.com/komodohq/komodo/pkg/errs"
	"github.com/komodohq/komodo/pkg/execute"
	"github.com/komodohq/komodo/pkg/log"
	"github.com/komodohq/komodo/pkg/metrics"
	"github.com/komodohq/komodo/pkg/syncer"
	"github.com/komodohq/komodo/pkg/types"
)

// Server wires webhook deliveries to the execution engine and syncer.
type Server struct {
	eng *execute.Engine
	syn *syncer.Syncer
	cfg *config.Config
}

func New(eng *execute.Engine, syn *syncer.Syncer) *Server {
	return &Server{eng: eng, syn: syn, cfg: eng.Cfg}
}

// Router builds the HTTP routes.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))

	r.Get("/health", s.handleHealth)
	r.Handle("/metrics", metrics.Handler())
	r.Post("/listener/{provider}/{kind}/{id}/{action}", s.handleWebhook)
	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{"healthy": true})
}

// webhookTarget is everything webhook handling needs from a resource.
type webhookTarget struct {
	id      string
	name    string
	enabled bool
	secret  string
	branch  string
	run     func(ctx context.Context, action string) error
}

func (s *Server) handleWebhook(w http.ResponseWriter, r *http.Request) {
	provider := chi.URLParam(r, "provider")
	kind := strings.ToLower(chi.URLParam(r, "kind"))
	id := chi.URLParam(r, "id")
	action := strings.ToLower(chi.URLParam(r, "action"))

	status := "accepted"
	defer func() {
		metrics.WebhookRequests.WithLabelValues(provider, status).Inc()
	}()

	body, err := readBody(r)
	if err != nil {
		status = "bad_request"
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	target, err := s.resolveTarget(kind, id)
	if err != nil {
		status = "not_found"
		http.Error(w, err.Error(), errs.HTTPStatus(err))
		return
	}
	if !target.enabled {
		status = "disabled"
		http.Error(w, "webhook is disabled for this resource", http.StatusForbidden)
		return
	}

	secret := target.secret
	if secret == "" {
		secret = s.cfg.WebhookSecret
	}
	if err := verifySignature(secret, r.Header.Get("X-Hub-Signature-256"), body); err != nil {
		status = "unauthorized"
		http.Error(w, err.Error(), http.StatusUnauthorized)
		return
	}

	if branch := pushedBranch(body); branch != "" && target.branch != "" && branch != target.branch {
		status = "branch_mismatch"
		w.WriteHeader(http.StatusOK)
		json.NewEncoder(w).Encode(map[string]string{"status": "ignored", "reason": "branch mismatch"})
		return
	}

	// The provider expects a fast ack; the operation runs detached.
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Minute)
		defer cancel()
		if err := target.run(ctx, action); err != nil {
			logger := log.WithComponent("listener")
			logger.Warn().Err(err).
				Str("kind", kind).Str("target", target.name).Str("action", action).
				Msg("webhook dispatch failed")
		}
	}()

	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(map[string]string{"status": "accepted"})
}

func readBody(r *http.Request) ([]byte, error) {
	defer r.Body.Close()
	return io.ReadAll(http.MaxBytesReader(nil, r.Body, 1<<20))
}

// resolveTarget loads the webhook configuration and dispatcher for one
// resource kind.
func (s *Server) resolveTarget(kind, id string) (*webhookTarget, error) {
	switch kind {
	case "sync":
		return s.syncTarget(id)
	case "build":
		return s.buildTarget(id)
	case "stack":
		return s.stackTarget(id)
	case "repo":
		return s.repoTarget(id)
	default:
		return nil, errs.InvalidConfig("resolve webhook", "unknown webhook kind %q", kind)
	}
}

func unknownAction(kind, action string) error {
	return errs.InvalidConfig("webhook dispatch", "unknown %s action %q", kind, action)
}

func (s *Server) syncTarget(id string) (*webhookTarget, error) {
	sync, err := s.findSync(id)
	if err != nil {
		return nil, err
	}
	return &webhookTarget{
		id:      sync.ID,
		name:    sync.Name,
		enabled: sync.Config.WebhookEnabled,
		secret:  sync.Config.WebhookSecret,
		branch:  sync.Config.Branch,
		run: func(ctx context.Context, action string) error {
			switch action {
			case "refresh":
				return s.syn.RefreshSync(ctx, types.SyncUserID, sync.ID)
			case "sync":
				_, err := s.syn.RunSync(ctx, types.SyncUserID, sync.ID)
				return err
			default:
				return unknownAction("sync", action)
			}
		},
	}, nil
}

func (s *Server) buildTarget(id string) (*webhookTarget, error) {
	build, err := s.findBuild(id)
	if err != nil {
		return nil, err
	}
	return &webhookTarget{
		id:      build.ID,
		name:    build.Name,
		enabled: build.Config.WebhookEnabled,
		secret:  build.Config.WebhookSecret,
		branch:  build.Config.Branch,
		run: func(ctx context.Context, action string) error {
			switch action {
			case "build":
				_, err := s.eng.RunBuild(ctx, types.SyncUserID, build.ID)
				return err
			default:
				return unknownAction("build", action)
			}
		},
	}, nil
}

func (s *Server) stackTarget(id string) (*webhookTarget, error) {
	stack, err := s.findStack(id)
	if err != nil {
		return nil, err
	}
	return &webhookTarget{
		id:      stack.ID,
		name:    stack.Name,
		enabled: stack.Config.WebhookEnabled,
		secret:  stack.Config.WebhookSecret,
		branch:  stack.Config.Branch,
		run: func(ctx context.Context, action string) error {
			switch action {
			case "deploy":
				_, err := s.eng.DeployStackIfChanged(ctx, types.SyncUserID, stack.ID)
				return err
			case "pull":
				_, err := s.eng.PullStack(ctx, types.SyncUserID, stack.ID)
				return err
			case "refresh":
				fresh, err := s.findStack(stack.ID)
				if err != nil {
					return err
				}
				_, err = s.eng.RefreshStackRemote(ctx, fresh)
				return err
			default:
				return unknownAction("stack", action)
			}
		},
	}, nil
}

func (s *Server) repoTarget(id string) (*webhookTarget, error) {
	repo, err := s.findRepo(id)
	if err != nil {
		return nil, err
	}
	return &webhookTarget{
		id:      repo.ID,
		name:    repo.Name,
		enabled: repo.Config.WebhookEnabled,
		secret:  repo.Config.WebhookSecret,
		branch:  repo.Config.Branch,
		run: func(ctx context.Context, action string) error {
			switch action {
			case "pull":
				_, err := s.eng.PullRepo(ctx, types.SyncUserID, repo.ID)
				return err
			case "clone":
				_, err := s.eng.CloneRepo(ctx, types.SyncUserID, repo.ID)
				return err
			default:
				return unknownAction("repo", action)
			}
		},
	}, nil
}
