package toolchainengine

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/drmikehenry/romt/internal/manifest"
)

// targetAliases maps short platform names to full target triples.
var targetAliases = map[string]string{
	"linux":   "x86_64-unknown-linux-gnu",
	"darwin":  "x86_64-apple-darwin",
	"windows": "x86_64-pc-windows-msvc",
}

// ResolveTargetAlias expands a single alias ("linux", "darwin",
// "windows") to its full triple, or returns target unchanged if it is
// not an alias.
func ResolveTargetAlias(target string) string {
	if full, ok := targetAliases[target]; ok {
		return full
	}
	return target
}

// ExpandTargets expands the TARGET argument list against m: aliases are
// resolved individually, "all" expands to every target the manifest
// declares, and "*" expands to every target already present on disk
// under distDir.
func ExpandTargets(targets []string, m *manifest.Manifest, distDir string) []string {
	seen := map[string]bool{}
	var out []string
	add := func(t string) {
		if !seen[t] {
			seen[t] = true
			out = append(out, t)
		}
	}

	for _, t := range targets {
		switch t {
		case "all":
			for _, full := range m.AllTargets() {
				add(full)
			}
		case "*":
			for _, full := range targetsPresentOnDisk(distDir) {
				add(full)
			}
		default:
			add(ResolveTargetAlias(t))
		}
	}
	return out
}

// targetsPresentOnDisk scans distDir for package basenames already on
// disk and returns the distinct target triples embedded in them, used to
// expand a bare "*" TARGET against local state.
func targetsPresentOnDisk(distDir string) []string {
	seen := map[string]bool{}
	var out []string
	filepath.Walk(distDir, func(path string, info os.FileInfo, err error) error {
		if err != nil || info == nil || info.IsDir() {
			return nil
		}
		base := filepath.Base(path)
		if !strings.HasSuffix(base, ".tar.xz") {
			return nil
		}
		stem := strings.TrimSuffix(base, ".tar.xz")
		idx := strings.LastIndex(stem, "-")
		for idx > 0 {
			candidate := stem[idx+1:]
			if knownTargetShape(candidate) {
				if !seen[candidate] {
					seen[candidate] = true
					out = append(out, candidate)
				}
				break
			}
			idx = strings.LastIndex(stem[:idx], "-")
		}
		return nil
	})
	return out
}

// knownTargetShape is a loose heuristic: a target triple always contains
// at least two "-"-separated components beyond the package/version stem.
func knownTargetShape(s string) bool {
	return strings.Count(s, "-") >= 2
}
