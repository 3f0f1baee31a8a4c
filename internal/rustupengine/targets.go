package rustupengine

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/drmikehenry/romt/internal/toolchainengine"
)

// allTargets is the hard-coded target set "all" expands to: the Tier 1
// platforms rustup-init is published for.
var allTargets = []string{
	"x86_64-unknown-linux-gnu",
	"aarch64-unknown-linux-gnu",
	"x86_64-apple-darwin",
	"aarch64-apple-darwin",
	"x86_64-pc-windows-msvc",
	"i686-pc-windows-msvc",
	"x86_64-pc-windows-gnu",
}

// ExpandTargets expands the TARGET argument list: aliases are resolved
// individually (reusing the toolchain engine's linux/darwin/windows
// table, since both engines share the same aliases), "all" expands to
// allTargets, and "*" expands to every target already present on disk
// under rustupDir/archive.
func ExpandTargets(targets []string, rustupDir string) []string {
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
			for _, full := range allTargets {
				add(full)
			}
		case "*":
			for _, full := range targetsPresentOnDisk(rustupDir) {
				add(full)
			}
		default:
			add(toolchainengine.ResolveTargetAlias(t))
		}
	}
	return out
}

// targetsPresentOnDisk lists the target subdirectories already present
// under rustupDir/archive/<version>/.
func targetsPresentOnDisk(rustupDir string) []string {
	archiveRoot := filepath.Join(rustupDir, "archive")
	versions, err := os.ReadDir(archiveRoot)
	if err != nil {
		return nil
	}
	seen := map[string]bool{}
	var out []string
	for _, v := range versions {
		if !v.IsDir() {
			continue
		}
		targets, err := os.ReadDir(filepath.Join(archiveRoot, v.Name()))
		if err != nil {
			continue
		}
		for _, t := range targets {
			if t.IsDir() && !seen[t.Name()] {
				seen[t.Name()] = true
				out = append(out, t.Name())
			}
		}
	}
	return out
}

// binaryName returns the rustup-init basename for target: "rustup-init.exe"
// on Windows targets, "rustup-init" elsewhere.
func binaryName(target string) string {
	if strings.Contains(target, "windows") {
		return "rustup-init.exe"
	}
	return "rustup-init"
}
