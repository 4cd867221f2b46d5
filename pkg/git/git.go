// Package git clones and updates the sync repos the core reads TOML
// resource files from. Each sync keeps one workspace directory that is
// cloned once and fetch-reset afterwards.
package git

import (
	"context"
	"fmt"
	"os"
	"strings"

	gogit "github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/config"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/transport/http"

	"github.com/komodohq/komodo/pkg/errs"
)

// CloneArgs names what to check out and where.
type CloneArgs struct {
	// Repo is "org/name" or a full clone URL.
	Repo string
	// Provider is the git host domain when Repo is not a full URL,
	// eg "github.com".
	Provider string
	Branch   string
	// Commit pins an exact revision; empty follows the branch head.
	Commit string
	// Token authenticates private repos. Empty for public.
	Token string
	// Dest is the workspace directory.
	Dest string
}

// Result reports the checked out revision.
type Result struct {
	Hash    string
	Message string
}

// CloneURL expands "org/name" against the provider domain; full URLs
// pass through.
func CloneURL(repo, provider string) string {
	if strings.Contains(repo, "://") {
		return repo
	}
	if provider == "" {
		provider = "github.com"
	}
	return fmt.Sprintf("https://%s/%s.git", provider, repo)
}

func auth(token string) *http.BasicAuth {
	if token == "" {
		return nil
	}
	return &http.BasicAuth{Username: "token", Password: token}
}

// PullOrClone brings the workspace to the requested revision, cloning
// on first use and fetch-resetting afterwards.
func PullOrClone(ctx context.Context, args CloneArgs) (Result, error) {
	repo, err := gogit.PlainOpen(args.Dest)
	switch {
	case err == gogit.ErrRepositoryNotExists:
		return clone(ctx, args)
	case err != nil:
		return Result{}, errs.Provider("open repo", err)
	}
	return update(ctx, repo, args)
}

func clone(ctx context.Context, args CloneArgs) (Result, error) {
	if err := os.MkdirAll(args.Dest, 0o755); err != nil {
		return Result{}, errs.Provider("clone repo", err)
	}
	opts := &gogit.CloneOptions{
		URL:  CloneURL(args.Repo, args.Provider),
		Auth: auth(args.Token),
	}
	if args.Branch != "" {
		opts.ReferenceName = plumbing.NewBranchReferenceName(args.Branch)
		opts.SingleBranch = true
	}
	repo, err := gogit.PlainCloneContext(ctx, args.Dest, false, opts)
	if err != nil {
		return Result{}, errs.Provider("clone repo", err)
	}
	if args.Commit != "" {
		if err := checkout(repo, args.Commit); err != nil {
			return Result{}, err
		}
	}
	return head(repo)
}

func update(ctx context.Context, repo *gogit.Repository, args CloneArgs) (Result, error) {
	err := repo.FetchContext(ctx, &gogit.FetchOptions{
		Auth:     auth(args.Token),
		RefSpecs: []config.RefSpec{"+refs/heads/*:refs/remotes/origin/*"},
		Force:    true,
	})
	if err != nil && err != gogit.NoErrAlreadyUpToDate {
		return Result{}, errs.Provider("fetch repo", err)
	}

	target := args.Commit
	if target == "" {
		branch := args.Branch
		if branch == "" {
			branch = "main"
		}
		ref, err := repo.Reference(plumbing.NewRemoteReferenceName("origin", branch), true)
		if err != nil {
			return Result{}, errs.Provider("resolve branch", err)
		}
		target = ref.Hash().String()
	}

	wt, err := repo.Worktree()
	if err != nil {
		return Result{}, errs.Provider("open worktree", err)
	}
	err = wt.Reset(&gogit.ResetOptions{
		Commit: plumbing.NewHash(target),
		Mode:   gogit.HardReset,
	})
	if err != nil {
		return Result{}, errs.Provider("reset repo", err)
	}
	return head(repo)
}

func checkout(repo *gogit.Repository, commit string) error {
	wt, err := repo.Worktree()
	if err != nil {
		return errs.Provider("open worktree", err)
	}
	err = wt.Checkout(&gogit.CheckoutOptions{Hash: plumbing.NewHash(commit)})
	if err != nil {
		return errs.Provider("checkout commit", err)
	}
	return nil
}

func head(repo *gogit.Repository) (Result, error) {
	ref, err := repo.Head()
	if err != nil {
		return Result{}, errs.Provider("read HEAD", err)
	}
	commit, err := repo.CommitObject(ref.Hash())
	if err != nil {
		return Result{}, errs.Provider("read HEAD commit", err)
	}
	message := strings.TrimSpace(commit.Message)
	if i := strings.IndexByte(message, '\n'); i >= 0 {
		message = message[:i]
	}
	return Result{Hash: ref.Hash().String(), Message: message}, nil
}
