// Package interpolate replaces [[NAME]] tokens in resource configs with
// variable and secret values, tracking which secret names were used so
// logs can be sanitized afterwards.
package interpolate

import (
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/komodohq/komodo/pkg/errs"
	"github.com/komodohq/komodo/pkg/types"
)

var tokenRe = regexp.MustCompile(`\[\[\s*([A-Za-z0-9_.-]+)\s*\]\]`)

// Replacer pairs a secret value with the placeholder the periphery
// substitutes for it when echoing commands into logs.
type Replacer struct {
	Value       string `json:"value"`
	Placeholder string `json:"placeholder"`
}

// Interpolator substitutes tokens against a snapshot of variables and
// secrets taken at operation start.
type Interpolator struct {
	variables map[string]string
	secrets   map[string]string

	// names of tokens replaced so far, for the summary log
	variablesUsed map[string]struct{}
	secretsUsed   map[string]struct{}
}

// New builds an interpolator over the given snapshot. Secret-flagged
// database variables belong in secrets, not variables.
func New(variables, secrets map[string]string) *Interpolator {
	return &Interpolator{
		variables:     variables,
		secrets:       secrets,
		variablesUsed: map[string]struct{}{},
		secretsUsed:   map[string]struct{}{},
	}
}

// String replaces every token in s. An undefined token fails the whole
// operation.
func (i *Interpolator) String(s string) (string, error) {
	var firstErr error
	out := tokenRe.ReplaceAllStringFunc(s, func(match string) string {
		name := tokenRe.FindStringSubmatch(match)[1]
		if v, ok := i.variables[name]; ok {
			i.variablesUsed[name] = struct{}{}
			return v
		}
		if v, ok := i.secrets[name]; ok {
			i.secretsUsed[name] = struct{}{}
			return v
		}
		if firstErr == nil {
			firstErr = errs.Interpolation("interpolate", "variable or secret %q is not defined", name)
		}
		return match
	})
	if firstErr != nil {
		return "", firstErr
	}
	return out, nil
}

// Strings replaces tokens across a list, eg extra_args.
func (i *Interpolator) Strings(list []string) ([]string, error) {
	if len(list) == 0 {
		return list, nil
	}
	out := make([]string, len(list))
	for n, s := range list {
		replaced, err := i.String(s)
		if err != nil {
			return nil, err
		}
		out[n] = replaced
	}
	return out, nil
}

// Command replaces tokens in a {path, command} pair. The path is never
// interpolated.
func (i *Interpolator) Command(c types.SystemCommand) (types.SystemCommand, error) {
	command, err := i.String(c.Command)
	if err != nil {
		return types.SystemCommand{}, err
	}
	return types.SystemCommand{Path: c.Path, Command: command}, nil
}

// VariablesUsed returns the names of variables replaced so far, sorted.
func (i *Interpolator) VariablesUsed() []string {
	return sortedKeys(i.variablesUsed)
}

// SecretsUsed returns the names of secrets replaced so far, sorted.
// Values never appear here.
func (i *Interpolator) SecretsUsed() []string {
	return sortedKeys(i.secretsUsed)
}

// Replacers returns the (value → placeholder) pairs for every secret
// replaced so far. These travel to the periphery so it can redact secret
// values from command echoes.
func (i *Interpolator) Replacers() []Replacer {
	names := i.SecretsUsed()
	out := make([]Replacer, 0, len(names))
	for _, name := range names {
		out = append(out, Replacer{
			Value:       i.secrets[name],
			Placeholder: fmt.Sprintf("<%s>", name),
		})
	}
	return out
}

// SummaryLog returns the update log listing which names were replaced,
// or nil when nothing was.
func (i *Interpolator) SummaryLog() *types.Log {
	vars := i.VariablesUsed()
	secrets := i.SecretsUsed()
	if len(vars) == 0 && len(secrets) == 0 {
		return nil
	}
	var b strings.Builder
	if len(vars) > 0 {
		fmt.Fprintf(&b, "interpolated variables: %s", strings.Join(vars, ", "))
	}
	if len(secrets) > 0 {
		if b.Len() > 0 {
			b.WriteString("\n")
		}
		fmt.Fprintf(&b, "interpolated secrets: %s", strings.Join(secrets, ", "))
	}
	l := types.SimpleLog("Interpolate", b.String())
	return &l
}

// Sanitize replaces secret values in s with their placeholders. Used on
// core-side log content before persisting.
func (i *Interpolator) Sanitize(s string) string {
	for _, r := range i.Replacers() {
		if r.Value == "" {
			continue
		}
		s = strings.ReplaceAll(s, r.Value, r.Placeholder)
	}
	return s
}

func sortedKeys(m map[string]struct{}) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
