// Package toolchainengine mirrors rustup toolchain distributions: channel
// manifests (stable/beta/nightly/X.Y.Z) and the packages they reference,
// published under <dest>/dist/.
package toolchainengine

import (
	"regexp"

	"github.com/drmikehenry/romt/internal/romterror"
)

// Spec is a parsed toolchain SPEC: "<channel>[-<date>]" or a bare
// "<date>" (which implies the "stable" channel).
type Spec struct {
	Channel string // "stable", "beta", "nightly", "X.Y.Z", or "*"
	Date    string // "YYYY-MM-DD", "latest", "*", or "" (undated)
}

var datePattern = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}$`)
var versionChannelPattern = regexp.MustCompile(`^\d+\.\d+\.\d+$`)

// ParseSpec parses a toolchain SPEC string.
func ParseSpec(spec string) (Spec, error) {
	if spec == "" {
		return Spec{}, romterror.Usage("toolchain SPEC must not be empty")
	}
	if datePattern.MatchString(spec) {
		return Spec{Channel: "stable", Date: spec}, nil
	}

	channel := spec
	date := ""
	if idx := lastDashBeforeDate(spec); idx >= 0 {
		channel = spec[:idx]
		date = spec[idx+1:]
	}
	if !isValidChannel(channel) {
		return Spec{}, romterror.Usage("invalid toolchain channel %q in SPEC %q", channel, spec)
	}
	if date != "" && date != "latest" && date != "*" && !datePattern.MatchString(date) {
		return Spec{}, romterror.Usage("invalid date %q in SPEC %q", date, spec)
	}
	return Spec{Channel: channel, Date: date}, nil
}

// lastDashBeforeDate finds the "-" separating a channel from a trailing
// "YYYY-MM-DD"/"latest"/"*" suffix, returning -1 if spec has no such
// suffix (e.g. a bare channel name or a bare X.Y.Z version channel).
func lastDashBeforeDate(spec string) int {
	for i := len(spec) - 1; i >= 0; i-- {
		if spec[i] != '-' {
			continue
		}
		suffix := spec[i+1:]
		if suffix == "latest" || suffix == "*" || datePattern.MatchString(suffix) {
			return i
		}
	}
	return -1
}

func isValidChannel(channel string) bool {
	switch channel {
	case "stable", "beta", "nightly", "*":
		return true
	}
	return versionChannelPattern.MatchString(channel)
}

// IsWild reports whether s names a wildcard channel or date ("*" or
// "latest"), which "download" rejects.
func (s Spec) IsWild() bool {
	return s.Channel == "*" || s.Date == "*" || s.Date == "latest"
}

// ManifestName returns the channel TOML basename for s's channel, e.g.
// "channel-rust-stable.toml" or "channel-rust-1.70.0.toml".
func (s Spec) ManifestName() string {
	return "channel-rust-" + s.Channel + ".toml"
}
