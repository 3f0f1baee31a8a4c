package manifest

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"
)

const sampleManifest = `
manifest-version = "2"
date = "2024-01-15"

[pkg.rust-src]
version = "1.75.0 (abcdef123 2024-01-15)"

  [pkg.rust-src.target."*"]
  available = true

[pkg.rustc]
version = "1.75.0 (abcdef123 2024-01-15)"

  [pkg.rustc.target.x86_64-unknown-linux-gnu]
  available = true
  xz_url = "https://static.rust-lang.org/dist/2024-01-15/rustc-1.75.0-x86_64-unknown-linux-gnu.tar.xz"
  xz_hash = "deadbeef"

  [pkg.rustc.target.x86_64-pc-windows-msvc]
  available = false

[pkg.rust-std]
version = "1.75.0 (abcdef123 2024-01-15)"

  [pkg.rust-std.target.x86_64-unknown-linux-gnu]
  available = true
  xz_url = "https://static.rust-lang.org/dist/2024-01-15/rust-std-1.75.0-x86_64-unknown-linux-gnu.tar.xz"
  xz_hash = "beadfeed"

  [pkg.rust-std.target.wasm32-unknown-unknown]
  available = true
  xz_url = "https://static.rust-lang.org/dist/2024-01-15/rust-std-1.75.0-wasm32-unknown-unknown.tar.xz"
  xz_hash = "cafef00d"
`

func TestParseBasics(t *testing.T) {
	m, err := Parse(sampleManifest)
	require.NoError(t, err)
	require.Equal(t, "stable", m.Channel())
	require.Equal(t, "1.75.0", m.Version())
	require.Equal(t, "2024-01-15", m.Date())
	require.Equal(t, "stable-2024-01-15", m.Spec())
	require.Equal(t, "stable-2024-01-15(1.75.0)", m.Ident())
}

func TestParseBetaAndNightlyChannels(t *testing.T) {
	beta := `
date = "2024-01-15"
[pkg.rust-src]
version = "1.76.0-beta.3 (abcdef123 2024-01-15)"
  [pkg.rust-src.target."*"]
  available = true
`
	m, err := Parse(beta)
	require.NoError(t, err)
	require.Equal(t, "beta", m.Channel())
	require.Equal(t, "1.76.0", m.Version())

	nightly := `
date = "2024-01-15"
[pkg.rust-src]
version = "1.77.0-nightly (abcdef123 2024-01-15)"
  [pkg.rust-src.target."*"]
  available = true
`
	m, err = Parse(nightly)
	require.NoError(t, err)
	require.Equal(t, "nightly", m.Channel())
	require.Equal(t, "1.77.0", m.Version())
}

func TestAvailablePackagesAndRelPath(t *testing.T) {
	m, err := Parse(sampleManifest)
	require.NoError(t, err)

	pkgs := m.AvailablePackages([]string{"x86_64-unknown-linux-gnu"}, nil)
	require.Len(t, pkgs, 3) // rust-src ("*") + rustc + rust-std for that target

	var sawRustc bool
	for _, p := range pkgs {
		if p.Name == "rustc" {
			sawRustc = true
			relPath, err := p.RelPath()
			require.NoError(t, err)
			require.Equal(t, "2024-01-15/rustc-1.75.0-x86_64-unknown-linux-gnu.tar.xz", relPath)
		}
	}
	require.True(t, sawRustc)
}

func TestAvailablePackagesExactFields(t *testing.T) {
	m, err := Parse(sampleManifest)
	require.NoError(t, err)

	pkgs := m.AvailablePackages([]string{"x86_64-unknown-linux-gnu"}, nil)
	var rustc Package
	for _, p := range pkgs {
		if p.Name == "rustc" {
			rustc = p
		}
	}

	want := Package{
		Name:      "rustc",
		Target:    "x86_64-unknown-linux-gnu",
		Available: true,
		XzURL:     "https://static.rust-lang.org/dist/2024-01-15/rustc-1.75.0-x86_64-unknown-linux-gnu.tar.xz",
		XzHash:    "deadbeef",
	}
	if diff := cmp.Diff(want, rustc); diff != "" {
		t.Errorf("rustc package mismatch (-want +got):\n%s", diff)
	}
}

func TestAllTargetsExcludesWildcard(t *testing.T) {
	m, err := Parse(sampleManifest)
	require.NoError(t, err)
	targets := m.AllTargets()
	require.NotContains(t, targets, "*")
	require.Contains(t, targets, "x86_64-unknown-linux-gnu")
	require.Contains(t, targets, "wasm32-unknown-unknown")
}

func TestAvailableTargetTypes(t *testing.T) {
	m, err := Parse(sampleManifest)
	require.NoError(t, err)

	present := func(string) bool { return true }
	types := m.AvailableTargetTypes(nil, present)

	require.Equal(t, NativeTarget, types["x86_64-unknown-linux-gnu"])
	require.Equal(t, CrossTarget, types["wasm32-unknown-unknown"])
}

func TestParseRejectsMissingRustSrc(t *testing.T) {
	_, err := Parse(`date = "2024-01-01"`)
	require.Error(t, err)
}
