package rustupengine

import (
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
	"github.com/drmikehenry/romt/internal/mirror"
	"github.com/drmikehenry/romt/internal/pkgarchive"
	"github.com/stretchr/testify/require"
)

func TestParseSpecVariants(t *testing.T) {
	for _, in := range []string{"stable", "latest", "*", "1.70.0"} {
		s, err := ParseSpec(in)
		require.NoError(t, err, in)
		require.Equal(t, in, s.Version)
	}
}

func TestParseSpecRejectsGarbage(t *testing.T) {
	_, err := ParseSpec("")
	require.Error(t, err)
	_, err = ParseSpec("not-a-version")
	require.Error(t, err)
}

func TestSpecIsWildAndIsStable(t *testing.T) {
	require.True(t, Spec{Version: "*"}.IsWild())
	require.True(t, Spec{Version: "latest"}.IsWild())
	require.False(t, Spec{Version: "stable"}.IsWild())
	require.False(t, Spec{Version: "1.70.0"}.IsWild())

	require.True(t, Spec{Version: "stable"}.IsStable())
	require.False(t, Spec{Version: "1.70.0"}.IsStable())
}

func TestExpandTargetsAliasesAndAll(t *testing.T) {
	require.Equal(t, []string{"x86_64-unknown-linux-gnu"}, ExpandTargets([]string{"linux"}, t.TempDir()))
	require.ElementsMatch(t, allTargets, ExpandTargets([]string{"all"}, t.TempDir()))
}

func TestExpandTargetsWildcardFromDisk(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "archive", "1.70.0", "aarch64-apple-darwin"), 0o755))
	require.Equal(t, []string{"aarch64-apple-darwin"}, ExpandTargets([]string{"*"}, dir))
}

func TestBinaryName(t *testing.T) {
	require.Equal(t, "rustup-init.exe", binaryName("x86_64-pc-windows-msvc"))
	require.Equal(t, "rustup-init", binaryName("x86_64-unknown-linux-gnu"))
}

func sha256Hex(s string) string {
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:])
}

const testVersion = "1.27.1"

func newTestServer(t *testing.T, binaryContent string) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	var server *httptest.Server
	mux.HandleFunc("/release-stable.toml", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintf(w, "schema-version = \"1\"\nversion = \"%s\"\n", testVersion)
	})
	binPath := fmt.Sprintf("/archive/%s/x86_64-unknown-linux-gnu/rustup-init", testVersion)
	mux.HandleFunc(binPath, func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, binaryContent)
	})
	mux.HandleFunc(binPath+".sha256", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintf(w, "%s  rustup-init\n", sha256Hex(binaryContent))
	})
	server = httptest.NewServer(mux)
	return server
}

func newTestEngine(t *testing.T, updateRoot string) *Engine {
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
		RustupUpdateRoot: updateRoot,
	}
	ctx := mirror.New(cfg, log.NewNoop())
	return New(ctx)
}

func TestDownloadStableFetchesAndFixesUp(t *testing.T) {
	binaryContent := "rustup-init-bytes"
	server := newTestServer(t, binaryContent)
	defer server.Close()

	e := newTestEngine(t, server.URL)
	s, err := ParseSpec("stable")
	require.NoError(t, err)

	result, err := e.Download(context.Background(), s, []string{"linux"})
	require.NoError(t, err)
	require.Equal(t, 1, result.Good)
	require.Equal(t, 0, result.Bad)
	require.Equal(t, testVersion, result.Version)

	archived := e.archivePath(testVersion, "x86_64-unknown-linux-gnu")
	got, err := os.ReadFile(archived)
	require.NoError(t, err)
	require.Equal(t, binaryContent, string(got))
	_, err = os.Stat(archived + ".sha256")
	require.NoError(t, err)

	// Fixup mirrors archive/<version>/ into dist/.
	distBin := e.distDir("x86_64-unknown-linux-gnu")
	got, err = os.ReadFile(filepath.Join(distBin, "rustup-init"))
	require.NoError(t, err)
	require.Equal(t, binaryContent, string(got))

	v, err := e.readReleaseStableVersion()
	require.NoError(t, err)
	require.Equal(t, testVersion, v)
}

func TestDownloadRejectsWildSpec(t *testing.T) {
	e := newTestEngine(t, "https://example.invalid")
	s, err := ParseSpec("*")
	require.NoError(t, err)
	_, err = e.Download(context.Background(), s, []string{"linux"})
	require.Error(t, err)

	s, err = ParseSpec("latest")
	require.NoError(t, err)
	_, err = e.Download(context.Background(), s, []string{"linux"})
	require.Error(t, err)
}

func TestFixupRefusesToDowngrade(t *testing.T) {
	e := newTestEngine(t, "https://example.invalid")
	require.NoError(t, os.MkdirAll(e.archiveDir("2.0.0", "x86_64-unknown-linux-gnu"), 0o755))
	require.NoError(t, os.WriteFile(e.archivePath("2.0.0", "x86_64-unknown-linux-gnu"), []byte("newer"), 0o644))
	require.NoError(t, e.Fixup("2.0.0"))

	require.NoError(t, os.MkdirAll(e.archiveDir("1.0.0", "x86_64-unknown-linux-gnu"), 0o755))
	require.NoError(t, os.WriteFile(e.archivePath("1.0.0", "x86_64-unknown-linux-gnu"), []byte("older"), 0o644))
	require.NoError(t, e.Fixup("1.0.0"))

	v, err := e.readReleaseStableVersion()
	require.NoError(t, err)
	require.Equal(t, "2.0.0", v)
}

func TestVerifyChecksDownloadedArtifacts(t *testing.T) {
	binaryContent := "rustup-init-bytes"
	server := newTestServer(t, binaryContent)
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

func TestListReportsDownloadedBinaries(t *testing.T) {
	server := newTestServer(t, "rustup-init-bytes")
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
	binaryContent := "rustup-init-bytes"
	server := newTestServer(t, binaryContent)
	defer server.Close()

	e := newTestEngine(t, server.URL)
	s, err := ParseSpec("stable")
	require.NoError(t, err)
	_, err = e.Download(context.Background(), s, []string{"linux"})
	require.NoError(t, err)

	archivePath := filepath.Join(t.TempDir(), "rustup.tar.gz")
	packResult, err := e.Pack(s, []string{"linux"}, archivePath)
	require.NoError(t, err)
	require.Equal(t, 1, packResult.Good)
	require.Equal(t, 0, packResult.Bad)

	r, err := pkgarchive.Open(archivePath)
	require.NoError(t, err)
	r.Close()

	e2 := newTestEngine(t, server.URL)
	unpackResult, err := e2.Unpack(archivePath)
	require.NoError(t, err)
	require.Equal(t, 1, unpackResult.Packages)
	require.True(t, unpackResult.HasReleaseStable)

	got, err := os.ReadFile(e2.archivePath(testVersion, "x86_64-unknown-linux-gnu"))
	require.NoError(t, err)
	require.Equal(t, binaryContent, string(got))

	// Unpack's implicit Fixup mirrors the unpacked archive into dist/.
	distGot, err := os.ReadFile(filepath.Join(e2.distDir("x86_64-unknown-linux-gnu"), "rustup-init"))
	require.NoError(t, err)
	require.Equal(t, binaryContent, string(distGot))
}
