// Package environment handles the KEY=VALUE blocks carried on deployment,
// stack, build and repo configs: parsing, validation and .env rendering.
package environment

import (
	"fmt"
	"sort"
	"strings"

	"github.com/joho/godotenv"
)

// Parse reads a KEY=VALUE block (one pair per line, # comments allowed)
// into a map.
func Parse(block string) (map[string]string, error) {
	if strings.TrimSpace(block) == "" {
		return map[string]string{}, nil
	}
	env, err := godotenv.Unmarshal(block)
	if err != nil {
		return nil, fmt.Errorf("failed to parse environment block: %w", err)
	}
	return env, nil
}

// Validate reports the first syntax problem in a KEY=VALUE block.
func Validate(block string) error {
	_, err := Parse(block)
	return err
}

// Render writes a map back to dotenv format with sorted keys, suitable
// for shipping to a periphery as env file contents.
func Render(env map[string]string) (string, error) {
	out, err := godotenv.Marshal(env)
	if err != nil {
		return "", fmt.Errorf("failed to render environment: %w", err)
	}
	return out, nil
}

// Keys returns the variable names in a block, sorted.
func Keys(block string) ([]string, error) {
	env, err := Parse(block)
	if err != nil {
		return nil, err
	}
	keys := make([]string, 0, len(env))
	for k := range env {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys, nil
}
