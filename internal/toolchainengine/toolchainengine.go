package toolchainengine

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/drmikehenry/romt/internal/archiveutil"
	"github.com/drmikehenry/romt/internal/download"
	"github.com/drmikehenry/romt/internal/integrity"
	"github.com/drmikehenry/romt/internal/manifest"
	"github.com/drmikehenry/romt/internal/mirror"
	"github.com/drmikehenry/romt/internal/pkgarchive"
	"github.com/drmikehenry/romt/internal/romterror"
)

// Engine drives the toolchain mirror commands against one dist root.
type Engine struct {
	ctx     *mirror.Context
	DistDir string
}

// New constructs an Engine rooted at ctx.Config.DistDir.
func New(ctx *mirror.Context) *Engine {
	return &Engine{ctx: ctx, DistDir: ctx.Config.DistDir}
}

func (e *Engine) undatedManifestPath(channel string) string {
	return filepath.Join(e.DistDir, "channel-rust-"+channel+".toml")
}

func (e *Engine) datedManifestPath(date, channel string) string {
	return filepath.Join(e.DistDir, date, "channel-rust-"+channel+".toml")
}

func (e *Engine) manifestURL(date, channel string) string {
	if date == "" {
		return fmt.Sprintf("%s/dist/channel-rust-%s.toml", e.ctx.Config.RustupDistServer, channel)
	}
	return fmt.Sprintf("%s/dist/%s/channel-rust-%s.toml", e.ctx.Config.RustupDistServer, date, channel)
}

// fetchManifest fetches s's channel manifest: undated variants are always
// refetched (cached=false) so a newer upstream release is observed;
// dated variants honor ctx.Cached.
func (e *Engine) fetchManifest(ctx context.Context, s Spec) (*manifest.Manifest, string, error) {
	undated := s.Date == "" || s.Date == "latest"
	urlDate := s.Date
	if undated {
		urlDate = ""
	}
	url := e.manifestURL(urlDate, s.Channel)
	dest := e.undatedManifestPath(s.Channel)
	if !undated {
		dest = e.datedManifestPath(s.Date, s.Channel)
	}

	cached := e.ctx.Cached && !undated
	if err := e.ctx.Downloader.FetchCached(ctx, url, dest, cached); err != nil {
		return nil, "", err
	}
	content, err := os.ReadFile(dest)
	if err != nil {
		return nil, "", romterror.Abort("failed to read %s: %v", dest, err)
	}
	m, err := manifest.Parse(string(content))
	if err != nil {
		return nil, "", romterror.Abort("failed to parse %s: %v", dest, err)
	}

	if err := e.writeManifestSidecars(dest); err != nil {
		return nil, "", err
	}
	if undated {
		// Persist a copy at the manifest's own dated path too, so the
		// dated dist tree is self-describing even when discovered via
		// the undated alias.
		datedDest := e.datedManifestPath(m.Date(), s.Channel)
		if datedDest != dest {
			if err := os.MkdirAll(filepath.Dir(datedDest), 0o755); err != nil {
				return nil, "", romterror.Abort("failed to create %s: %v", filepath.Dir(datedDest), err)
			}
			if err := os.WriteFile(datedDest, content, 0o644); err != nil {
				return nil, "", romterror.Abort("failed to write %s: %v", datedDest, err)
			}
			if err := e.writeManifestSidecars(datedDest); err != nil {
				return nil, "", err
			}
		}
	}
	return m, m.Date(), nil
}

func (e *Engine) writeManifestSidecars(path string) error {
	digest, err := integrity.HashFile(path)
	if err != nil {
		return romterror.Abort("failed to hash %s: %v", path, err)
	}
	if err := integrity.WriteSidecar(path, digest); err != nil {
		return romterror.Abort("failed to write sidecar for %s: %v", path, err)
	}
	return nil
}

// DownloadResult reports how many packages were fetched successfully.
type DownloadResult struct {
	Good int
	Bad  int
	Date string
}

// Download fetches s's channel manifest and every available package
// matching targets, then runs Fixup when s names the "stable" channel.
// For any other channel Fixup is not run.
func (e *Engine) Download(ctx context.Context, s Spec, targets []string) (DownloadResult, error) {
	if s.IsWild() {
		return DownloadResult{}, romterror.Usage("download rejects a wild SPEC %q", s)
	}

	m, date, err := e.fetchManifest(ctx, s)
	if err != nil {
		return DownloadResult{}, err
	}

	expandedTargets := ExpandTargets(targets, m, e.DistDir)
	packages := m.AvailablePackages(expandedTargets, nil)

	items := make([]download.Item, 0, len(packages))
	for _, p := range packages {
		p := p
		relPath, err := p.RelPath()
		if err != nil {
			continue
		}
		dest := filepath.Join(e.DistDir, date, filepath.Base(relPath))
		url := fmt.Sprintf("%s/dist/%s", e.ctx.Config.RustupDistServer, relPath)
		items = append(items, download.Item{
			Dest: dest,
			Do: func(goCtx context.Context) error {
				digest, err := integrity.ParseDigest(p.XzHash)
				if err != nil {
					return romterror.Integrity("package %s/%s has an unparseable manifest hash %q", p.Name, p.Target, p.XzHash)
				}
				if err := e.ctx.Downloader.FetchVerifyHash(goCtx, url, dest, digest, e.ctx.Cached, e.ctx.AssumeOK); err != nil {
					return err
				}
				// Pack later reads this sidecar rather than re-hashing, so
				// every fetched package must leave one behind.
				return integrity.WriteSidecar(dest, digest)
			},
		})
	}

	results, err := e.ctx.Downloader.FetchMany(ctx, items, e.ctx.KeepGoing)
	result := DownloadResult{
		Good: len(results) - download.CountFailures(results),
		Bad:  download.CountFailures(results),
		Date: date,
	}
	if err != nil {
		return result, err
	}

	if s.Channel == "stable" {
		if err := e.Fixup(m, date); err != nil {
			return result, err
		}
	}
	return result, nil
}

// Fixup publishes m (whose date is date) at the undated channel alias,
// overwriting it only if m's date is not older than what is already
// published there. If m's channel is "stable" it also publishes the
// version aliases "channel-rust-<version>.toml" under both DistDir and
// its dated subdirectory, which are always overwritten unconditionally.
func (e *Engine) Fixup(m *manifest.Manifest, date string) error {
	datedSrc := e.datedManifestPath(date, m.Channel())
	content, err := os.ReadFile(datedSrc)
	if err != nil {
		return romterror.Abort("failed to read %s: %v", datedSrc, err)
	}

	channelAlias := e.undatedManifestPath(m.Channel())
	if shouldSkip, err := e.aliasIsNewer(channelAlias, date); err != nil {
		return err
	} else if !shouldSkip {
		if err := e.writeAlias(channelAlias, content); err != nil {
			return err
		}
	}

	if version := m.Version(); m.Channel() == "stable" && version != "" {
		for _, aliasPath := range []string{
			e.datedManifestPath(date, version),
			e.undatedManifestPath(version),
		} {
			if aliasPath == datedSrc {
				continue
			}
			if err := e.writeAlias(aliasPath, content); err != nil {
				return err
			}
		}
	}
	return nil
}

// writeAlias writes content to aliasPath (creating its parent directory
// if needed) and refreshes its ".sha256"/".asc" sidecars.
func (e *Engine) writeAlias(aliasPath string, content []byte) error {
	if err := os.MkdirAll(filepath.Dir(aliasPath), 0o755); err != nil {
		return romterror.Abort("failed to create %s: %v", filepath.Dir(aliasPath), err)
	}
	if err := os.WriteFile(aliasPath, content, 0o644); err != nil {
		return romterror.Abort("failed to write %s: %v", aliasPath, err)
	}
	return e.writeManifestSidecars(aliasPath)
}

// FixupSpec re-runs Fixup against s's manifest already present on disk,
// letting the standalone "fixup" command operate without refetching.
func (e *Engine) FixupSpec(s Spec) error {
	manifestPath := e.resolveManifestPath(s)
	content, err := os.ReadFile(manifestPath)
	if err != nil {
		return romterror.MissingFile("missing manifest %s", manifestPath)
	}
	m, err := manifest.Parse(string(content))
	if err != nil {
		return romterror.Abort("failed to parse %s: %v", manifestPath, err)
	}
	return e.Fixup(m, m.Date())
}

// aliasIsNewer reports whether the manifest alias already at aliasPath
// has a date >= candidateDate, in which case Fixup must not overwrite it.
func (e *Engine) aliasIsNewer(aliasPath, candidateDate string) (bool, error) {
	existing, err := os.ReadFile(aliasPath)
	if os.IsNotExist(err) {
		return false, nil
	}
	if err != nil {
		return false, romterror.Abort("failed to read %s: %v", aliasPath, err)
	}
	existingManifest, err := manifest.Parse(string(existing))
	if err != nil {
		// An unparseable existing alias cannot be trusted as "newer";
		// fixup proceeds to overwrite it.
		return false, nil
	}
	return existingManifest.Date() >= candidateDate, nil
}

// Verify checks every package artifact and manifest presently on disk
// under distDir against its ".sha256" sidecar, plus (for ".xz" package
// artifacts) that the xz container itself decodes cleanly.
func (e *Engine) Verify() (good, bad int, err error) {
	err = filepath.Walk(e.DistDir, func(path string, info os.FileInfo, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if info.IsDir() || strings.HasSuffix(path, ".sha256") || strings.HasSuffix(path, ".asc") {
			return nil
		}
		if verr := integrity.Verify(path); verr != nil {
			e.ctx.Logger.Warn("toolchain artifact verification failed", "path", path, "err", verr)
			bad++
			if !e.ctx.KeepGoing {
				return verr
			}
			return nil
		}
		if strings.HasSuffix(path, ".xz") {
			if verr := integrity.VerifyXZStream(path); verr != nil {
				e.ctx.Logger.Warn("toolchain artifact xz stream is invalid", "path", path, "err", verr)
				bad++
				if !e.ctx.KeepGoing {
					return verr
				}
				return nil
			}
		}
		good++
		return nil
	})
	if err != nil {
		return good, bad, err
	}
	return good, bad, nil
}

// List reports every package artifact present under the dist tree,
// relative to DistDir.
func (e *Engine) List() ([]string, error) {
	var paths []string
	err := filepath.Walk(e.DistDir, func(path string, info os.FileInfo, walkErr error) error {
		if walkErr != nil {
			if os.IsNotExist(walkErr) {
				return nil
			}
			return walkErr
		}
		if info.IsDir() || strings.HasSuffix(path, ".sha256") || strings.HasSuffix(path, ".asc") {
			return nil
		}
		rel, err := filepath.Rel(e.DistDir, path)
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

// Pack writes a toolchain archive containing the channel manifest for s
// (and its sidecars) plus every package artifact it references for
// targets, at their canonical dist/ archive paths.
func (e *Engine) Pack(s Spec, targets []string, destPath string) (pkgarchive.PackResult, error) {
	manifestPath := e.resolveManifestPath(s)
	content, err := os.ReadFile(manifestPath)
	if err != nil {
		return pkgarchive.PackResult{}, romterror.MissingFile("missing manifest %s", manifestPath)
	}
	m, err := manifest.Parse(string(content))
	if err != nil {
		return pkgarchive.PackResult{}, romterror.Abort("failed to parse %s: %v", manifestPath, err)
	}

	w, err := archiveutil.NewWriter(destPath)
	if err != nil {
		return pkgarchive.PackResult{}, err
	}

	relManifest, err := filepath.Rel(e.DistDir, manifestPath)
	if err != nil {
		w.Abort()
		return pkgarchive.PackResult{}, romterror.Abort("failed to compute manifest archive path: %v", err)
	}
	if err := archiveutil.AddWithSidecars(w, pkgarchive.DistRoot, filepath.ToSlash(relManifest), e.DistDir, e.ctx.WithSig); err != nil {
		w.Abort()
		return pkgarchive.PackResult{}, err
	}

	expandedTargets := ExpandTargets(targets, m, e.DistDir)
	var result pkgarchive.PackResult
	for _, p := range m.AvailablePackages(expandedTargets, nil) {
		relPath, err := p.RelPath()
		if err != nil {
			continue
		}
		if err := archiveutil.AddWithSidecars(w, pkgarchive.DistRoot, relPath, e.DistDir, e.ctx.WithSig); err != nil {
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

// resolveManifestPath finds the on-disk path for s's channel manifest,
// preferring the dated copy when s names a date.
func (e *Engine) resolveManifestPath(s Spec) string {
	if s.Date != "" && s.Date != "latest" && s.Date != "*" {
		return e.datedManifestPath(s.Date, s.Channel)
	}
	return e.undatedManifestPath(s.Channel)
}

// Unpack extracts a toolchain archive's dist/ members into distDir,
// re-deriving which manifests were included by inspecting extracted
// paths.
func (e *Engine) Unpack(archivePath string) (UnpackResult, error) {
	r, err := pkgarchive.Open(archivePath)
	if err != nil {
		return UnpackResult{}, err
	}
	defer r.Close()

	var result UnpackResult
	for {
		hdr, err := r.Next()
		if err != nil {
			break
		}
		switch {
		case strings.HasPrefix(hdr.Name, pkgarchive.DistRoot):
			rel := strings.TrimPrefix(hdr.Name, pkgarchive.DistRoot)
			if err := r.ExtractTo(e.DistDir, rel); err != nil {
				return result, err
			}
			switch {
			case strings.HasSuffix(rel, ".toml"):
				result.Manifests = append(result.Manifests, rel)
			case strings.HasSuffix(rel, ".sha256"), strings.HasSuffix(rel, ".asc"):
				// sidecars are extracted but not counted as packages.
			default:
				result.Packages++
			}
		default:
			if !e.ctx.KeepGoing {
				return result, pkgarchive.UnexpectedMemberError(hdr.Name)
			}
		}
	}
	return result, nil
}

// UnpackResult reports what Unpack extracted.
type UnpackResult struct {
	Manifests []string
	Packages  int
}
