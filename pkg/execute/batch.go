package execute

import (
	"context"
	"path"
	"regexp"
	"sort"
	"strings"

	"github.com/komodohq/komodo/pkg/errs"
	"github.com/komodohq/komodo/pkg/types"
)

// BatchResult is the outcome of one item in a batch operation.
type BatchResult struct {
	Name   string        `json:"name"`
	Update *types.Update `json:"update,omitempty"`
	Error  string        `json:"error,omitempty"`
}

// Batch resolves the pattern against the operation's resource kind and
// runs the single-item operation for every match. One item failing never
// aborts the rest; each result carries its own update or error.
func (e *Engine) Batch(ctx context.Context, user string, op types.Operation, pattern string) ([]BatchResult, error) {
	kind, ok := executionKind(op)
	if !ok {
		return nil, errs.InvalidConfig("batch execute", "operation %q is not executable", op)
	}
	names, err := e.matchNames(user, kind, pattern)
	if err != nil {
		return nil, err
	}

	results := make([]BatchResult, 0, len(names))
	for _, name := range names {
		u, err := e.Execute(ctx, user, op, name)
		result := BatchResult{Name: name, Update: u}
		if err != nil {
			result.Error = err.Error()
		}
		results = append(results, result)
	}
	return results, nil
}

// matchNames expands a pattern over the resource names of the kind the
// user can read. A pattern wrapped in backslashes is a regex; anything
// else matches as a wildcard pattern.
func (e *Engine) matchNames(user string, kind types.ResourceKind, pattern string) ([]string, error) {
	heads, err := e.Store.ResourceHeads(kind)
	if err != nil {
		return nil, err
	}

	match, err := compileMatcher(pattern)
	if err != nil {
		return nil, err
	}

	var names []string
	for _, h := range heads {
		if !match(h.Name) {
			continue
		}
		level, err := e.Access.Level(user, types.ResourceTarget{Type: kind, ID: h.ID}, h.Base)
		if err != nil {
			return nil, err
		}
		if !level.Satisfies(types.PermissionRead) {
			continue
		}
		names = append(names, h.Name)
	}
	sort.Strings(names)
	return names, nil
}

func compileMatcher(pattern string) (func(string) bool, error) {
	if len(pattern) >= 2 && strings.HasPrefix(pattern, `\`) && strings.HasSuffix(pattern, `\`) {
		re, err := regexp.Compile(pattern[1 : len(pattern)-1])
		if err != nil {
			return nil, errs.InvalidConfig("batch execute", "invalid regex pattern %s: %v", pattern, err)
		}
		return re.MatchString, nil
	}
	return func(name string) bool {
		ok, err := path.Match(pattern, name)
		return err == nil && ok
	}, nil
}
