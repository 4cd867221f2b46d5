// Package compose extracts service information from docker compose file
// contents. The core never runs compose itself; it parses files to know
// which services a stack defines and which images they reference.
package compose

import (
	"fmt"
	"sort"

	"gopkg.in/yaml.v3"

	"github.com/komodohq/komodo/pkg/types"
)

type composeFile struct {
	Name     string                    `yaml:"name"`
	Services map[string]composeService `yaml:"services"`
}

type composeService struct {
	Image         string `yaml:"image"`
	ContainerName string `yaml:"container_name"`
}

// ExtractServices parses compose file contents and returns the services
// it defines, sorted by service name.
func ExtractServices(contents string) ([]types.StackService, error) {
	var file composeFile
	if err := yaml.Unmarshal([]byte(contents), &file); err != nil {
		return nil, fmt.Errorf("failed to parse compose file: %w", err)
	}
	out := make([]types.StackService, 0, len(file.Services))
	for name, svc := range file.Services {
		out = append(out, types.StackService{Service: name, Image: svc.Image})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Service < out[j].Service })
	return out, nil
}

// ExtractAllServices merges the services of several compose files,
// skipping files that fail to parse. Ignored service names are dropped.
func ExtractAllServices(files []types.FileContents, ignore []string) []types.StackService {
	ignored := map[string]bool{}
	for _, name := range ignore {
		ignored[name] = true
	}
	seen := map[string]bool{}
	var out []types.StackService
	for _, f := range files {
		services, err := ExtractServices(f.Contents)
		if err != nil {
			continue
		}
		for _, svc := range services {
			if ignored[svc.Service] || seen[svc.Service] {
				continue
			}
			seen[svc.Service] = true
			out = append(out, svc)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Service < out[j].Service })
	return out
}

// ProjectName reads the top-level name field, empty when unset.
func ProjectName(contents string) string {
	var file composeFile
	if err := yaml.Unmarshal([]byte(contents), &file); err != nil {
		return ""
	}
	return file.Name
}
