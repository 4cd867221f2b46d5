package syncer

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/komodohq/komodo/pkg/errs"
	"github.com/komodohq/komodo/pkg/git"
	"github.com/komodohq/komodo/pkg/manifest"
	"github.com/komodohq/komodo/pkg/types"
)

// remoteResources is everything a sync source resolves to.
type remoteResources struct {
	Resources  *manifest.ResourcesToml
	Logs       []types.Log
	Hash       string
	Message    string
	Files      []types.FileContents
	FileErrors []types.FileContents
}

// loadRemote resolves the sync's TOML source. Inline contents parse
// directly; files_on_host reads from the core's sync directory; anything
// else clones or pulls the configured repo.
func (s *Syncer) loadRemote(ctx context.Context, sync *types.ResourceSync) (*remoteResources, error) {
	switch {
	case sync.Config.FileContents != "":
		resources, err := manifest.Parse([]byte(sync.Config.FileContents))
		if err != nil {
			return nil, errs.InvalidConfig("load sync resources", "%v", err)
		}
		return &remoteResources{
			Resources: resources,
			Logs:      []types.Log{types.SimpleLog("Load Resources", "parsed inline file contents")},
			Files:     []types.FileContents{{Path: "sync.toml", Contents: sync.Config.FileContents}},
		}, nil

	case sync.Config.FilesOnHost:
		return s.loadFromDir(sync, s.eng.Cfg.SyncDirectory, "")

	case sync.Config.Repo != "":
		return s.loadFromRepo(ctx, sync)

	default:
		return nil, errs.InvalidConfig("load sync resources", "sync %s has no resource source configured", sync.Name)
	}
}

func (s *Syncer) loadFromRepo(ctx context.Context, sync *types.ResourceSync) (*remoteResources, error) {
	provider := sync.Config.GitProvider
	if provider == "" {
		provider = "github.com"
	}
	dest := filepath.Join(s.eng.Cfg.DataDir, "syncs", sync.ID)
	result, err := git.PullOrClone(ctx, git.CloneArgs{
		Repo:     sync.Config.Repo,
		Provider: provider,
		Branch:   sync.Config.Branch,
		Commit:   sync.Config.Commit,
		Token:    s.eng.Cfg.GitToken(provider, sync.Config.GitAccount),
		Dest:     dest,
	})
	if err != nil {
		return nil, err
	}

	out, err := s.loadFromDir(sync, dest, result.Hash)
	if err != nil {
		return nil, err
	}
	out.Hash = result.Hash
	out.Message = result.Message
	out.Logs = append([]types.Log{types.SimpleLog("Clone Resources",
		fmt.Sprintf("pulled %s at %s", sync.Config.Repo, shortHash(result.Hash)))}, out.Logs...)
	return out, nil
}

// loadFromDir reads every configured resource path below root. Directory
// paths expand to the *.toml files inside them, sorted by name.
func (s *Syncer) loadFromDir(sync *types.ResourceSync, root, hash string) (*remoteResources, error) {
	paths := sync.Config.ResourcePath
	if len(paths) == 0 {
		paths = []string{"."}
	}

	out := &remoteResources{Resources: &manifest.ResourcesToml{}, Hash: hash}
	var loaded []string
	for _, p := range paths {
		files, err := expandTomlPath(filepath.Join(root, p))
		if err != nil {
			out.FileErrors = append(out.FileErrors, types.FileContents{Path: p, Contents: err.Error()})
			continue
		}
		for _, file := range files {
			data, err := os.ReadFile(file)
			rel := relOrBase(root, file)
			if err != nil {
				out.FileErrors = append(out.FileErrors, types.FileContents{Path: rel, Contents: err.Error()})
				continue
			}
			parsed, err := manifest.Parse(data)
			if err != nil {
				out.FileErrors = append(out.FileErrors, types.FileContents{Path: rel, Contents: err.Error()})
				continue
			}
			out.Resources.Merge(parsed)
			out.Files = append(out.Files, types.FileContents{Path: rel, Contents: string(data)})
			loaded = append(loaded, rel)
		}
	}

	if len(loaded) == 0 && len(out.FileErrors) > 0 {
		return nil, errs.InvalidConfig("load sync resources", "no resource file could be read: %s", out.FileErrors[0].Contents)
	}
	stage := types.SimpleLog("Load Resources", fmt.Sprintf("loaded %d file(s): %s", len(loaded), strings.Join(loaded, ", ")))
	if len(out.FileErrors) > 0 {
		stage.Stderr = fmt.Sprintf("%d file(s) failed to load", len(out.FileErrors))
	}
	out.Logs = append(out.Logs, stage)
	return out, nil
}

// expandTomlPath returns the toml files a resource path names: the file
// itself, or every *.toml inside a directory.
func expandTomlPath(path string) ([]string, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, err
	}
	if !info.IsDir() {
		if filepath.Ext(path) != ".toml" {
			return nil, fmt.Errorf("%s is not a .toml file", path)
		}
		return []string{path}, nil
	}
	matches, err := filepath.Glob(filepath.Join(path, "*.toml"))
	if err != nil {
		return nil, err
	}
	if len(matches) == 0 {
		return nil, fmt.Errorf("no .toml files in %s", path)
	}
	return matches, nil
}

func relOrBase(root, path string) string {
	if rel, err := filepath.Rel(root, path); err == nil {
		return rel
	}
	return filepath.Base(path)
}

func shortHash(hash string) string {
	if len(hash) > 7 {
		return hash[:7]
	}
	return hash
}
