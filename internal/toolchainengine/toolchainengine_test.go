package toolchainengine

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/drmikehenry/romt/internal/config"
	"github.com/drmikehenry/romt/internal/log"
	"github.com/drmikehenry/romt/internal/manifest"
	"github.com/drmikehenry/romt/internal/mirror"
	"github.com/drmikehenry/romt/internal/pkgarchive"
	"github.com/stretchr/testify/require"
	"github.com/ulikunitz/xz"
)

// xzCompress wraps s in a real xz container so downloaded package
// fixtures satisfy Verify's xz-stream sanity check.
func xzCompress(t *testing.T, s string) []byte {
	t.Helper()
	var buf bytes.Buffer
	w, err := xz.NewWriter(&buf)
	require.NoError(t, err)
	_, err = w.Write([]byte(s))
	require.NoError(t, err)
	require.NoError(t, w.Close())
	return buf.Bytes()
}

// xzDecompress reverses xzCompress.
func xzDecompress(t *testing.T, data []byte) string {
	t.Helper()
	r, err := xz.NewReader(bytes.NewReader(data))
	require.NoError(t, err)
	var buf bytes.Buffer
	_, err = buf.ReadFrom(r)
	require.NoError(t, err)
	return buf.String()
}

func TestParseSpecVariants(t *testing.T) {
	cases := []struct {
		in      string
		channel string
		date    string
	}{
		{"stable", "stable", ""},
		{"nightly", "nightly", ""},
		{"1.70.0", "1.70.0", ""},
		{"nightly-2023-01-01", "nightly", "2023-01-01"},
		{"2023-01-01", "stable", "2023-01-01"},
		{"nightly-latest", "nightly", "latest"},
		{"*", "*", ""},
	}
	for _, c := range cases {
		s, err := ParseSpec(c.in)
		require.NoError(t, err, c.in)
		require.Equal(t, c.channel, s.Channel, c.in)
		require.Equal(t, c.date, s.Date, c.in)
	}
}

func TestParseSpecRejectsGarbage(t *testing.T) {
	_, err := ParseSpec("")
	require.Error(t, err)
	_, err = ParseSpec("not-a-channel")
	require.Error(t, err)
	_, err = ParseSpec("nightly-2023-13-99")
	require.Error(t, err)
}

func TestSpecIsWild(t *testing.T) {
	require.True(t, Spec{Channel: "*"}.IsWild())
	require.True(t, Spec{Channel: "nightly", Date: "latest"}.IsWild())
	require.True(t, Spec{Channel: "nightly", Date: "*"}.IsWild())
	require.False(t, Spec{Channel: "nightly", Date: "2023-01-01"}.IsWild())
	require.False(t, Spec{Channel: "stable"}.IsWild())
}

func TestResolveTargetAlias(t *testing.T) {
	require.Equal(t, "x86_64-unknown-linux-gnu", ResolveTargetAlias("linux"))
	require.Equal(t, "x86_64-apple-darwin", ResolveTargetAlias("darwin"))
	require.Equal(t, "x86_64-pc-windows-msvc", ResolveTargetAlias("windows"))
	require.Equal(t, "aarch64-apple-darwin", ResolveTargetAlias("aarch64-apple-darwin"))
}

const testManifestTemplate = `
manifest-version = "2"
date = "2023-01-01"

[pkg.rust-src]
version = "1.70.0 (abcdef123 2023-01-01)"

[pkg.rust-src.target."*"]
available = true
url = "%[1]s/dist/2023-01-01/rust-src-1.70.0.tar.xz"
hash = ""
xz_url = "%[1]s/dist/2023-01-01/rust-src-1.70.0.tar.xz"
xz_hash = "%[2]s"

[pkg.rustc]
version = "1.70.0 (abcdef123 2023-01-01)"

[pkg.rustc.target.x86_64-unknown-linux-gnu]
available = true
url = "%[1]s/dist/2023-01-01/rustc-1.70.0-x86_64-unknown-linux-gnu.tar.xz"
hash = ""
xz_url = "%[1]s/dist/2023-01-01/rustc-1.70.0-x86_64-unknown-linux-gnu.tar.xz"
xz_hash = "%[3]s"
`

func TestExpandTargets(t *testing.T) {
	content := fmt.Sprintf(testManifestTemplate, "https://example.invalid",
		sha256Hex("a"), sha256Hex("b"))
	m, err := manifest.Parse(content)
	require.NoError(t, err)

	require.ElementsMatch(t, []string{"x86_64-unknown-linux-gnu"}, ExpandTargets([]string{"all"}, m, t.TempDir()))
	require.Equal(t, []string{"x86_64-unknown-linux-gnu"}, ExpandTargets([]string{"linux"}, m, t.TempDir()))

	disk := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(disk, "2023-01-01"), 0o755))
	require.NoError(t, os.WriteFile(
		filepath.Join(disk, "2023-01-01", "rustc-1.70.0-aarch64-apple-darwin.tar.xz"),
		[]byte("x"), 0o644,
	))
	require.Equal(t, []string{"aarch64-apple-darwin"}, ExpandTargets([]string{"*"}, m, disk))
}

func sha256Hex(s string) string {
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:])
}

func sha256Bytes(b []byte) string {
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}

func newTestEngine(t *testing.T, distServer string) *Engine {
	t.Helper()
	home := t.TempDir()
	cfg := &config.Config{
		HomeDir:          home,
		DistDir:          filepath.Join(home, "dist"),
		RustupDir:        filepath.Join(home, "rustup"),
		CratesIndexDir:   filepath.Join(home, "crates.io-index"),
		CratesDir:        filepath.Join(home, "crates.io"),
		NumJobs:          2,
		Timeout:          5 * time.Second,
		RustupDistServer: distServer,
	}
	ctx := mirror.New(cfg, log.NewNoop())
	return New(ctx)
}

func newTestServer(t *testing.T, rustSrcContent, rustcContent string) *httptest.Server {
	t.Helper()
	rustSrcXZ := xzCompress(t, rustSrcContent)
	rustcXZ := xzCompress(t, rustcContent)

	mux := http.NewServeMux()
	var server *httptest.Server
	mux.HandleFunc("/dist/channel-rust-stable.toml", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintf(w, testManifestTemplate, server.URL, sha256Bytes(rustSrcXZ), sha256Bytes(rustcXZ))
	})
	mux.HandleFunc("/dist/2023-01-01/rust-src-1.70.0.tar.xz", func(w http.ResponseWriter, r *http.Request) {
		w.Write(rustSrcXZ)
	})
	mux.HandleFunc("/dist/2023-01-01/rustc-1.70.0-x86_64-unknown-linux-gnu.tar.xz", func(w http.ResponseWriter, r *http.Request) {
		w.Write(rustcXZ)
	})
	server = httptest.NewServer(mux)
	return server
}

func TestDownloadFetchesManifestAndPackagesThenFixesUp(t *testing.T) {
	rustSrcContent := "rust-src-bytes"
	rustcContent := "rustc-bytes"
	server := newTestServer(t, rustSrcContent, rustcContent)
	defer server.Close()

	e := newTestEngine(t, server.URL)
	s, err := ParseSpec("stable")
	require.NoError(t, err)

	result, err := e.Download(context.Background(), s, []string{"linux"})
	require.NoError(t, err)
	require.Equal(t, 2, result.Good)
	require.Equal(t, 0, result.Bad)
	require.Equal(t, "2023-01-01", result.Date)

	rustcPath := filepath.Join(e.DistDir, "2023-01-01", "rustc-1.70.0-x86_64-unknown-linux-gnu.tar.xz")
	got, err := os.ReadFile(rustcPath)
	require.NoError(t, err)
	require.Equal(t, rustcContent, xzDecompress(t, got))
	_, err = os.Stat(rustcPath + ".sha256")
	require.NoError(t, err)

	// Fixup publishes the version alias since channel == "stable", both at
	// the dist root and under the dated directory.
	_, err = os.Stat(filepath.Join(e.DistDir, "channel-rust-1.70.0.toml"))
	require.NoError(t, err)
	_, err = os.Stat(filepath.Join(e.DistDir, "2023-01-01", "channel-rust-1.70.0.toml"))
	require.NoError(t, err)
}

func TestDownloadRejectsWildSpec(t *testing.T) {
	e := newTestEngine(t, "https://example.invalid")
	s, err := ParseSpec("*")
	require.NoError(t, err)
	_, err = e.Download(context.Background(), s, []string{"linux"})
	require.Error(t, err)
}

func TestVerifyChecksDownloadedArtifacts(t *testing.T) {
	rustSrcContent := "rust-src-bytes"
	rustcContent := "rustc-bytes"
	server := newTestServer(t, rustSrcContent, rustcContent)
	defer server.Close()

	e := newTestEngine(t, server.URL)
	s, err := ParseSpec("stable")
	require.NoError(t, err)
	_, err = e.Download(context.Background(), s, []string{"linux"})
	require.NoError(t, err)

	good, bad, err := e.Verify()
	require.NoError(t, err)
	require.Equal(t, 0, bad)
	require.Greater(t, good, 0)
}

func TestListReportsDownloadedArtifacts(t *testing.T) {
	server := newTestServer(t, "rust-src-bytes", "rustc-bytes")
	defer server.Close()

	e := newTestEngine(t, server.URL)
	s, err := ParseSpec("stable")
	require.NoError(t, err)
	_, err = e.Download(context.Background(), s, []string{"linux"})
	require.NoError(t, err)

	paths, err := e.List()
	require.NoError(t, err)
	require.NotEmpty(t, paths)
	for _, p := range paths {
		require.False(t, strings.HasSuffix(p, ".sha256"))
		require.False(t, strings.HasSuffix(p, ".asc"))
	}
}

func TestPackAndUnpackRoundTrip(t *testing.T) {
	rustSrcContent := "rust-src-bytes"
	rustcContent := "rustc-bytes"
	server := newTestServer(t, rustSrcContent, rustcContent)
	defer server.Close()

	e := newTestEngine(t, server.URL)
	s, err := ParseSpec("stable")
	require.NoError(t, err)
	_, err = e.Download(context.Background(), s, []string{"linux"})
	require.NoError(t, err)

	archivePath := filepath.Join(t.TempDir(), "toolchain.tar.gz")
	packResult, err := e.Pack(s, []string{"linux"}, archivePath)
	require.NoError(t, err)
	require.Equal(t, 2, packResult.Good)
	require.Equal(t, 0, packResult.Bad)

	r, err := pkgarchive.Open(archivePath)
	require.NoError(t, err)
	r.Close()

	e2 := newTestEngine(t, server.URL)
	unpackResult, err := e2.Unpack(archivePath)
	require.NoError(t, err)
	require.Equal(t, 2, unpackResult.Packages)
	require.Len(t, unpackResult.Manifests, 1)

	got, err := os.ReadFile(filepath.Join(e2.DistDir, "2023-01-01", "rustc-1.70.0-x86_64-unknown-linux-gnu.tar.xz"))
	require.NoError(t, err)
	require.Equal(t, rustcContent, xzDecompress(t, got))
}
