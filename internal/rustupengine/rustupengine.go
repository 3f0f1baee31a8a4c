package rustupengine

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/Masterminds/semver/v3"
	"github.com/drmikehenry/romt/internal/archiveutil"
	"github.com/drmikehenry/romt/internal/download"
	"github.com/drmikehenry/romt/internal/integrity"
	"github.com/drmikehenry/romt/internal/mirror"
	"github.com/drmikehenry/romt/internal/pkgarchive"
	"github.com/drmikehenry/romt/internal/romterror"
)

// releaseStableName is the fixed basename of the stable-release pointer
// file.
const releaseStableName = "release-stable.toml"

// rawReleaseStable is the TOML wire shape of release-stable.toml.
type rawReleaseStable struct {
	SchemaVersion string `toml:"schema-version"`
	Version       string `toml:"version"`
}

// Engine drives the rustup-init mirror commands against one rustup root.
type Engine struct {
	ctx       *mirror.Context
	RustupDir string
}

// New constructs an Engine rooted at ctx.Config.RustupDir.
func New(ctx *mirror.Context) *Engine {
	return &Engine{ctx: ctx, RustupDir: ctx.Config.RustupDir}
}

func (e *Engine) releaseStablePath() string {
	return filepath.Join(e.RustupDir, releaseStableName)
}

func (e *Engine) releaseStableURL() string {
	return fmt.Sprintf("%s/release-stable.toml", e.ctx.Config.RustupUpdateRoot)
}

func (e *Engine) archiveDir(version, target string) string {
	return filepath.Join(e.RustupDir, "archive", version, target)
}

func (e *Engine) archivePath(version, target string) string {
	return filepath.Join(e.archiveDir(version, target), binaryName(target))
}

func (e *Engine) archiveURL(version, target string) string {
	return fmt.Sprintf("%s/archive/%s/%s/%s", e.ctx.Config.RustupUpdateRoot, version, target, binaryName(target))
}

func (e *Engine) distDir(target string) string {
	return filepath.Join(e.RustupDir, "dist", target)
}

// readReleaseStableVersion reads the version currently published in
// release-stable.toml, or "" if it is absent.
func (e *Engine) readReleaseStableVersion() (string, error) {
	content, err := os.ReadFile(e.releaseStablePath())
	if os.IsNotExist(err) {
		return "", nil
	}
	if err != nil {
		return "", romterror.Abort("failed to read %s: %v", e.releaseStablePath(), err)
	}
	var raw rawReleaseStable
	if _, err := toml.Decode(string(content), &raw); err != nil {
		return "", romterror.Abort("failed to parse %s: %v", e.releaseStablePath(), err)
	}
	return raw.Version, nil
}

// fetchReleaseStableVersion downloads release-stable.toml with cached=false
// (it is the undated variant, refetched every time so a newer upstream
// release is observed.6) and returns the version it names.
func (e *Engine) fetchReleaseStableVersion(ctx context.Context) (string, error) {
	dest := e.releaseStablePath()
	if err := e.ctx.Downloader.FetchCached(ctx, e.releaseStableURL(), dest, false); err != nil {
		return "", err
	}
	content, err := os.ReadFile(dest)
	if err != nil {
		return "", romterror.Abort("failed to read %s: %v", dest, err)
	}
	var raw rawReleaseStable
	if _, err := toml.Decode(string(content), &raw); err != nil {
		return "", romterror.Abort("failed to parse %s: %v", dest, err)
	}
	return raw.Version, nil
}

// resolveVersion resolves s against upstream/local state: "stable" fetches
// release-stable.toml, falling back to GitHub release discovery when that
// fetch fails and e.ctx.FromGithub is set; an explicit "X.Y.Z" is used
// as-is. Wild specs ("latest", "*") are rejected by callers before
// reaching here.
func (e *Engine) resolveVersion(ctx context.Context, s Spec) (string, error) {
	if s.IsStable() {
		version, err := e.fetchReleaseStableVersion(ctx)
		if err == nil {
			return version, nil
		}
		if !e.ctx.FromGithub {
			return "", err
		}
		e.ctx.Logger.Warn("release-stable.toml unavailable, falling back to GitHub", "err", err)
		return githubLatestVersion(ctx)
	}
	return s.Version, nil
}

// DownloadResult reports how many rustup-init binaries were fetched
// successfully.
type DownloadResult struct {
	Good    int
	Bad     int
	Version string
}

// Download fetches the rustup-init binary for s across targets into the
// version's archive tree, then runs Fixup when s names "stable".
func (e *Engine) Download(ctx context.Context, s Spec, targets []string) (DownloadResult, error) {
	if s.IsWild() {
		return DownloadResult{}, romterror.Usage("download rejects a wild rustup SPEC %q", s.Version)
	}

	version, err := e.resolveVersion(ctx, s)
	if err != nil {
		return DownloadResult{}, err
	}
	if version == "" {
		return DownloadResult{}, romterror.Abort("could not resolve a rustup version for SPEC %q", s.Version)
	}

	expandedTargets := ExpandTargets(targets, e.RustupDir)
	items := make([]download.Item, 0, len(expandedTargets))
	for _, target := range expandedTargets {
		target := target
		dest := e.archivePath(version, target)
		url := e.archiveURL(version, target)
		items = append(items, download.Item{
			Dest: dest,
			Do: func(goCtx context.Context) error {
				return e.ctx.Downloader.FetchVerify(goCtx, url, dest, e.ctx.Cached, e.ctx.AssumeOK, e.ctx.WithSig, e.ctx.WarnSignature, nil)
			},
		})
	}

	results, err := e.ctx.Downloader.FetchMany(ctx, items, e.ctx.KeepGoing)
	result := DownloadResult{
		Good:    len(results) - download.CountFailures(results),
		Bad:     download.CountFailures(results),
		Version: version,
	}
	if err != nil {
		return result, err
	}

	if s.IsStable() {
		if err := e.Fixup(version); err != nil {
			return result, err
		}
	}
	return result, nil
}

// Fixup rewrites release-stable.toml to point at version (only if version
// is not older than whatever is already published, per component-wise
// integer compare of X.Y.Z) and mirrors archive/<version>/ into dist/ by
// recursive copy.
func (e *Engine) Fixup(version string) error {
	existing, err := e.readReleaseStableVersion()
	if err != nil {
		return err
	}
	if existing != "" {
		newer, err := isVersionNewerOrEqual(version, existing)
		if err != nil {
			return err
		}
		if !newer {
			return nil
		}
	}

	raw := rawReleaseStable{SchemaVersion: "1", Version: version}
	buf := &strings.Builder{}
	if err := toml.NewEncoder(buf).Encode(raw); err != nil {
		return romterror.Abort("failed to render %s: %v", releaseStableName, err)
	}
	if err := os.MkdirAll(e.RustupDir, 0o755); err != nil {
		return romterror.Abort("failed to create %s: %v", e.RustupDir, err)
	}
	if err := os.WriteFile(e.releaseStablePath(), []byte(buf.String()), 0o644); err != nil {
		return romterror.Abort("failed to write %s: %v", e.releaseStablePath(), err)
	}

	versionDir := filepath.Join(e.RustupDir, "archive", version)
	targets, err := os.ReadDir(versionDir)
	if err != nil {
		return romterror.Abort("failed to read %s: %v", versionDir, err)
	}
	for _, t := range targets {
		if !t.IsDir() {
			continue
		}
		if err := copyTree(filepath.Join(versionDir, t.Name()), e.distDir(t.Name())); err != nil {
			return err
		}
	}
	return nil
}

// isVersionNewerOrEqual reports whether candidate >= existing, per
// component-wise integer compare of X.Y.Z.
func isVersionNewerOrEqual(candidate, existing string) (bool, error) {
	cv, err := semver.NewVersion(candidate)
	if err != nil {
		return false, romterror.Abort("invalid candidate version %q: %v", candidate, err)
	}
	ev, err := semver.NewVersion(existing)
	if err != nil {
		// An unparseable existing pointer cannot be trusted as newer;
		// fixup proceeds to overwrite it.
		return true, nil
	}
	return !cv.LessThan(ev), nil
}

// Verify checks every rustup-init binary presently on disk (under both the
// archive tree and the dist alias tree) against its ".sha256" sidecar.
func (e *Engine) Verify() (good, bad int, err error) {
	for _, root := range []string{filepath.Join(e.RustupDir, "archive"), filepath.Join(e.RustupDir, "dist")} {
		werr := filepath.Walk(root, func(path string, info os.FileInfo, walkErr error) error {
			if walkErr != nil {
				if os.IsNotExist(walkErr) {
					return nil
				}
				return walkErr
			}
			if info.IsDir() || strings.HasSuffix(path, ".sha256") || strings.HasSuffix(path, ".asc") {
				return nil
			}
			if verr := integrity.Verify(path); verr != nil {
				e.ctx.Logger.Warn("rustup artifact verification failed", "path", path, "err", verr)
				bad++
				if !e.ctx.KeepGoing {
					return verr
				}
				return nil
			}
			good++
			return nil
		})
		if werr != nil {
			return good, bad, werr
		}
	}
	return good, bad, nil
}

// List reports every rustup-init binary present under the archive tree,
// relative to RustupDir.
func (e *Engine) List() ([]string, error) {
	var paths []string
	root := filepath.Join(e.RustupDir, "archive")
	err := filepath.Walk(root, func(path string, info os.FileInfo, walkErr error) error {
		if walkErr != nil {
			if os.IsNotExist(walkErr) {
				return nil
			}
			return walkErr
		}
		if info.IsDir() || strings.HasSuffix(path, ".sha256") || strings.HasSuffix(path, ".asc") {
			return nil
		}
		rel, err := filepath.Rel(e.RustupDir, path)
		if err != nil {
			return err
		}
		paths = append(paths, rel)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return paths, nil
}

// Pack writes a rustup archive containing release-stable.toml (if present)
// and every rustup-init binary (plus sidecars) for s's resolved version
// across targets, at their canonical archive/ paths.
func (e *Engine) Pack(s Spec, targets []string, destPath string) (pkgarchive.PackResult, error) {
	var version string
	if s.IsStable() || s.IsWild() {
		v, err := e.readReleaseStableVersion()
		if err != nil {
			return pkgarchive.PackResult{}, err
		}
		if v == "" {
			return pkgarchive.PackResult{}, romterror.MissingFile("no %s on disk to resolve SPEC %q", releaseStableName, s.Version)
		}
		version = v
	} else {
		version = s.Version
	}

	w, err := archiveutil.NewWriter(destPath)
	if err != nil {
		return pkgarchive.PackResult{}, err
	}

	if _, statErr := os.Stat(e.releaseStablePath()); statErr == nil {
		if err := w.AddFile(pkgarchive.RustupRoot+releaseStableName, e.releaseStablePath()); err != nil {
			w.Abort()
			return pkgarchive.PackResult{}, err
		}
	}

	expandedTargets := ExpandTargets(targets, e.RustupDir)
	var result pkgarchive.PackResult
	for _, target := range expandedTargets {
		relPath := fmt.Sprintf("archive/%s/%s/%s", version, target, binaryName(target))
		if err := archiveutil.AddWithSidecars(w, pkgarchive.RustupRoot, relPath, e.RustupDir, e.ctx.WithSig); err != nil {
			if archiveutil.IsMissingFile(err) {
				result.Bad++
				if !e.ctx.KeepGoing {
					w.Abort()
					return result, err
				}
				continue
			}
			w.Abort()
			return result, err
		}
		result.Good++
	}

	if err := w.Finish(); err != nil {
		return result, err
	}
	return result, nil
}

// UnpackResult reports what Unpack extracted.
type UnpackResult struct {
	HasReleaseStable bool
	Packages         int
}

// Unpack extracts a rustup archive's rustup/ members into RustupDir,
// re-deriving which version/targets were included by inspecting extracted
// paths, then runs Fixup if release-stable.toml was present.
func (e *Engine) Unpack(archivePath string) (UnpackResult, error) {
	r, err := pkgarchive.Open(archivePath)
	if err != nil {
		return UnpackResult{}, err
	}
	defer r.Close()

	var result UnpackResult
	var unpackedVersion string
	for {
		hdr, err := r.Next()
		if err != nil {
			break
		}
		switch {
		case strings.HasPrefix(hdr.Name, pkgarchive.RustupRoot):
			rel := strings.TrimPrefix(hdr.Name, pkgarchive.RustupRoot)
			if err := r.ExtractTo(e.RustupDir, rel); err != nil {
				return result, err
			}
			switch {
			case rel == releaseStableName:
				result.HasReleaseStable = true
			case strings.HasSuffix(rel, ".sha256"), strings.HasSuffix(rel, ".asc"):
				// sidecars are extracted but not counted as packages.
			default:
				result.Packages++
				if parts := strings.SplitN(rel, "/", 3); len(parts) >= 2 && parts[0] == "archive" {
					unpackedVersion = parts[1]
				}
			}
		default:
			if !e.ctx.KeepGoing {
				return result, pkgarchive.UnexpectedMemberError(hdr.Name)
			}
		}
	}

	if result.HasReleaseStable && unpackedVersion != "" {
		if err := e.Fixup(unpackedVersion); err != nil {
			return result, err
		}
	}
	return result, nil
}
