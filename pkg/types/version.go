package types

import (
	"fmt"

	"github.com/blang/semver"
)

// Version is a semver triple. It renders as "major.minor.patch" in TOML
// and in image tags.
type Version struct {
	Major uint64 `json:"major"`
	Minor uint64 `json:"minor"`
	Patch uint64 `json:"patch"`
}

func (v Version) String() string {
	return fmt.Sprintf("%d.%d.%d", v.Major, v.Minor, v.Patch)
}

// IsZero reports whether the version is 0.0.0.
func (v Version) IsZero() bool {
	return v.Major == 0 && v.Minor == 0 && v.Patch == 0
}

// Bumped returns the version with the patch component incremented.
func (v Version) Bumped() Version {
	return Version{Major: v.Major, Minor: v.Minor, Patch: v.Patch + 1}
}

// ParseVersion accepts "1.2.3" and tolerant variants like "v1.2.3" or "1.2".
func ParseVersion(s string) (Version, error) {
	parsed, err := semver.ParseTolerant(s)
	if err != nil {
		return Version{}, fmt.Errorf("failed to parse version %q: %w", s, err)
	}
	return Version{Major: parsed.Major, Minor: parsed.Minor, Patch: parsed.Patch}, nil
}

// MarshalText renders the version for TOML and JSON string contexts.
func (v Version) MarshalText() ([]byte, error) {
	return []byte(v.String()), nil
}

// UnmarshalText parses "major.minor.patch" strings.
func (v *Version) UnmarshalText(text []byte) error {
	if len(text) == 0 {
		*v = Version{}
		return nil
	}
	parsed, err := ParseVersion(string(text))
	if err != nil {
		return err
	}
	*v = parsed
	return nil
}
