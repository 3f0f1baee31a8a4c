// Package rustupengine mirrors rustup-init bootstrap binaries: the
// per-version archive tree, the "stable" dist alias, and
// release-stable.toml.
package rustupengine

import (
	"github.com/Masterminds/semver/v3"
	"github.com/drmikehenry/romt/internal/romterror"
)

// Spec is a parsed rustup SPEC: an explicit "X.Y.Z" version, or one of the
// "stable"/"latest"/"*" sentinels.
type Spec struct {
	Version string
}

// ParseSpec parses a rustup SPEC string.
func ParseSpec(spec string) (Spec, error) {
	switch spec {
	case "":
		return Spec{}, romterror.Usage("rustup SPEC must not be empty")
	case "stable", "latest", "*":
		return Spec{Version: spec}, nil
	}
	if _, err := semver.NewVersion(spec); err != nil {
		return Spec{}, romterror.Usage("invalid rustup SPEC %q: %v", spec, err)
	}
	return Spec{Version: spec}, nil
}

// IsWild reports whether s names a wildcard version ("*" or "latest"),
// which "download" rejects.
func (s Spec) IsWild() bool {
	return s.Version == "*" || s.Version == "latest"
}

// IsStable reports whether s resolves against the upstream release-stable
// pointer rather than naming an explicit version.
func (s Spec) IsStable() bool {
	return s.Version == "stable"
}
