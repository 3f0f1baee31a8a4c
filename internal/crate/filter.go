package crate

import (
	"path/filepath"
	"strings"
)

// Filter is a set of "<name_glob>[@<version_glob>]" patterns. An empty
// Filter matches everything. A bare name matches all versions of that
// name; a bare "@<vg>" matches all names with a matching version.
type Filter struct {
	patterns []pattern
}

type pattern struct {
	nameGlob    string // "" means "match any name"
	versionGlob string // "" means "match any version"
}

// NewFilter parses a set of filter pattern strings.
func NewFilter(patterns []string) Filter {
	f := Filter{}
	for _, p := range patterns {
		if p == "" {
			continue
		}
		if idx := strings.IndexByte(p, '@'); idx >= 0 {
			f.patterns = append(f.patterns, pattern{nameGlob: p[:idx], versionGlob: p[idx+1:]})
		} else {
			f.patterns = append(f.patterns, pattern{nameGlob: p})
		}
	}
	return f
}

// Matches reports whether (name, version) satisfies the filter. An empty
// filter matches everything.
func (f Filter) Matches(name, version string) bool {
	if len(f.patterns) == 0 {
		return true
	}
	for _, p := range f.patterns {
		if p.nameGlob != "" {
			ok, err := filepath.Match(p.nameGlob, name)
			if err != nil || !ok {
				continue
			}
		}
		if p.versionGlob != "" {
			ok, err := filepath.Match(p.versionGlob, version)
			if err != nil || !ok {
				continue
			}
		}
		return true
	}
	return false
}

// MatchesName reports whether name could match any pattern in f,
// independent of version. Used to short-circuit before reading a blob
// when the index delta is filtered by name: the filter is applied by
// lowercased name before reading the blob.
func (f Filter) MatchesName(name string) bool {
	if len(f.patterns) == 0 {
		return true
	}
	lowered := strings.ToLower(name)
	for _, p := range f.patterns {
		if p.nameGlob == "" {
			return true
		}
		if ok, err := filepath.Match(strings.ToLower(p.nameGlob), lowered); err == nil && ok {
			return true
		}
	}
	return false
}
