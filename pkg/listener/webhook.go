package listener

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"strings"

	"github.com/komodohq/komodo/pkg/errs"
	"github.com/komodohq/komodo/pkg/storage"
	"github.com/komodohq/komodo/pkg/types"
)

// verifySignature checks a GitHub-style X-Hub-Signature-256 header
// ("sha256=<hex hmac>") against the request body.
func verifySignature(secret, header string, body []byte) error {
	if secret == "" {
		return errs.Newf(errs.KindInvalidConfig, "verify webhook", "no webhook secret configured")
	}
	digest, ok := strings.CutPrefix(header, "sha256=")
	if !ok {
		return errs.Newf(errs.KindPermissionDenied, "verify webhook", "missing X-Hub-Signature-256 header")
	}
	want, err := hex.DecodeString(digest)
	if err != nil {
		return errs.Newf(errs.KindPermissionDenied, "verify webhook", "malformed signature")
	}
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	if !hmac.Equal(mac.Sum(nil), want) {
		return errs.Newf(errs.KindPermissionDenied, "verify webhook", "signature mismatch")
	}
	return nil
}

// pushedBranch extracts the branch from a push payload ref
// (refs/heads/<branch>). Non-push payloads yield "".
func pushedBranch(body []byte) string {
	var payload struct {
		Ref string `json:"ref"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return ""
	}
	branch, ok := strings.CutPrefix(payload.Ref, "refs/heads/")
	if !ok {
		return ""
	}
	return branch
}

func (s *Server) findSync(nameOrID string) (*types.ResourceSync, error) {
	return storage.FindResource[types.SyncConfig, types.SyncInfo](s.eng.Store, types.KindResourceSync, nameOrID)
}

func (s *Server) findBuild(nameOrID string) (*types.Build, error) {
	return storage.FindResource[types.BuildConfig, types.BuildInfo](s.eng.Store, types.KindBuild, nameOrID)
}

func (s *Server) findStack(nameOrID string) (*types.Stack, error) {
	return storage.FindResource[types.StackConfig, types.StackInfo](s.eng.Store, types.KindStack, nameOrID)
}

func (s *Server) findRepo(nameOrID string) (*types.Repo, error) {
	return storage.FindResource[types.RepoConfig, types.RepoInfo](s.eng.Store, types.KindRepo, nameOrID)
}
