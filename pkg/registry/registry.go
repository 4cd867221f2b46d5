// Package registry resolves docker registry credentials and builds the
// full image reference a Build pushes to.
package registry

import (
	"fmt"
	"strings"

	"github.com/distribution/reference"

	"github.com/komodohq/komodo/pkg/config"
	"github.com/komodohq/komodo/pkg/types"
)

// Token resolves (domain, account) to a registry token from the
// configured accounts. Empty when no provider matches; callers tolerate
// that for public images.
func Token(cfg *config.Config, domain, account string) string {
	if domain == "" && account == "" {
		return ""
	}
	for _, r := range cfg.DockerRegistries {
		if r.Domain != domain {
			continue
		}
		if account == "" || r.Account == account {
			return r.Token
		}
	}
	return ""
}

// ToSafeName lowercases a resource name into a usable image repository
// component.
func ToSafeName(name string) string {
	safe := strings.ToLower(name)
	safe = strings.ReplaceAll(safe, " ", "-")
	safe = strings.ReplaceAll(safe, "_", "-")
	var b strings.Builder
	for _, r := range safe {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '-', r == '.', r == '/':
			b.WriteRune(r)
		}
	}
	return strings.Trim(b.String(), "-.")
}

// BuildImageName computes the repository a build pushes to:
// the image name override or the safe build name, prefixed with
// domain/organization-or-account as configured.
func BuildImageName(build *types.Build) string {
	name := build.Config.ImageName
	if name == "" {
		name = ToSafeName(build.Name)
	}
	reg := build.Config.ImageRegistry
	owner := reg.Organization
	if owner == "" {
		owner = reg.Account
	}
	if owner != "" {
		name = fmt.Sprintf("%s/%s", strings.ToLower(owner), name)
	}
	if reg.Domain != "" {
		name = fmt.Sprintf("%s/%s", reg.Domain, name)
	}
	return name
}

// BuildImageTag computes the tag for a version: "1.2.3" or
// "1.2.3-bookworm" when the build carries an image tag postfix.
func BuildImageTag(build *types.Build, version types.Version) string {
	tag := version.String()
	if build.Config.ImageTag != "" {
		tag = fmt.Sprintf("%s-%s", tag, build.Config.ImageTag)
	}
	return tag
}

// ResolveBuildImage returns the full "name:tag" reference for a build at
// a version, validated as a docker reference.
func ResolveBuildImage(build *types.Build, version types.Version) (string, error) {
	image := fmt.Sprintf("%s:%s", BuildImageName(build), BuildImageTag(build, version))
	if _, err := reference.ParseNormalizedNamed(image); err != nil {
		return "", fmt.Errorf("failed to resolve image for build %s: %w", build.Name, err)
	}
	return image, nil
}

// ImageDomain extracts the registry domain from an image reference,
// empty for docker hub library images.
func ImageDomain(image string) string {
	named, err := reference.ParseNormalizedNamed(image)
	if err != nil {
		return ""
	}
	domain := reference.Domain(named)
	if domain == "docker.io" {
		return ""
	}
	return domain
}
