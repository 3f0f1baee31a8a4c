// Package crateengine implements romt's crates.io mirror pipeline: the
// crates-index Git delta, crate-file download/prune, and crate archive
// pack/unpack, wired through the shared mirror.Context, plus the crate
// update pipeline (pull -> prune -> download -> mark).
package crateengine

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/drmikehenry/romt/internal/crate"
	"github.com/drmikehenry/romt/internal/download"
	"github.com/drmikehenry/romt/internal/index"
	"github.com/drmikehenry/romt/internal/integrity"
	"github.com/drmikehenry/romt/internal/mirror"
	"github.com/drmikehenry/romt/internal/pkgarchive"
	"github.com/drmikehenry/romt/internal/romterror"
)

// Engine drives the crates.io mirror commands against one (crates root,
// index working tree) pair.
type Engine struct {
	ctx        *mirror.Context
	CratesRoot string
	IndexPath  string

	repo *index.IndexRepo
}

// New constructs an Engine rooted at ctx.Config's crates.io-index and
// crates.io paths.
func New(ctx *mirror.Context) *Engine {
	return &Engine{
		ctx:        ctx,
		CratesRoot: ctx.Config.CratesDir,
		IndexPath:  ctx.Config.CratesIndexDir,
	}
}

func (e *Engine) openIndex() (*index.IndexRepo, error) {
	if e.repo != nil {
		return e.repo, nil
	}
	r, err := index.Open(e.IndexPath)
	if err != nil {
		return nil, err
	}
	e.repo = r
	return r, nil
}

// Init creates a brand-new crates root (config.toml with the default
// {lower, mixed} styles) and a fresh index working tree cloned from the
// upstream crates.io-index remote.
func (e *Engine) Init() error {
	if err := os.MkdirAll(e.CratesRoot, 0o755); err != nil {
		return romterror.Abort("failed to create %s: %v", e.CratesRoot, err)
	}
	if err := crate.SaveConfig(e.CratesRoot, crate.DefaultConfig()); err != nil {
		return romterror.Abort("failed to write crates config: %v", err)
	}
	repo, err := index.Init(e.IndexPath, e.ctx.Config.CratesIndexURL)
	if err != nil {
		return err
	}
	e.repo = repo
	return nil
}

// InitImport creates a brand-new crates root and an index working tree
// whose origin is a local Git bundle file (the offline-import scenario),
// then pulls it in immediately so the working tree is populated.
func (e *Engine) InitImport(ctx context.Context, bundlePath string) error {
	if err := os.MkdirAll(e.CratesRoot, 0o755); err != nil {
		return romterror.Abort("failed to create %s: %v", e.CratesRoot, err)
	}
	if err := crate.SaveConfig(e.CratesRoot, crate.DefaultConfig()); err != nil {
		return romterror.Abort("failed to write crates config: %v", err)
	}
	repo, err := index.Init(e.IndexPath, bundlePath)
	if err != nil {
		return err
	}
	e.repo = repo
	return repo.Pull(ctx)
}

// Pull folds the upstream (or bundle) origin into the index's working
// branch.
func (e *Engine) Pull(ctx context.Context) error {
	repo, err := e.openIndex()
	if err != nil {
		return err
	}
	return repo.Pull(ctx)
}

// Mark forces local branches "mark" and "master" to end.
func (e *Engine) Mark(end string) error {
	repo, err := e.openIndex()
	if err != nil {
		return err
	}
	return repo.Mark(end)
}

// Config rewrites the index's config.json to point at serverURL and marks
// end.
func (e *Engine) Config(serverURL, end string) error {
	repo, err := e.openIndex()
	if err != nil {
		return err
	}
	if err := repo.ConfigureIndex(serverURL); err != nil {
		return err
	}
	return repo.Mark(end)
}

// Delta exposes the index's crate delta between start and end, honoring
// filter, so callers can drive download/prune without reopening the index.
func (e *Engine) Delta(start, end string, filter crate.Filter) (added, removed []crate.Crate, err error) {
	repo, err := e.openIndex()
	if err != nil {
		return nil, nil, err
	}
	return repo.Delta(start, end, filter)
}

// Prune deletes every crate file for a removed (name, version) pair, then
// removes any empty parent directories up to (but not including) the
// crates root.
func (e *Engine) Prune(removed []crate.Crate) error {
	cfg, err := crate.LoadConfig(e.CratesRoot)
	if err != nil {
		return romterror.Abort("failed to load crates config: %v", err)
	}
	for _, c := range removed {
		relPath := c.RelPath(cfg.Prefix)
		fullPath := filepath.Join(e.CratesRoot, relPath)
		if err := os.Remove(fullPath); err != nil && !os.IsNotExist(err) {
			return romterror.Abort("failed to remove %s: %v", fullPath, err)
		}
		os.Remove(integrity.SidecarPath(fullPath))
		removeEmptyParents(e.CratesRoot, filepath.Dir(fullPath))
	}
	return nil
}

// removeEmptyParents removes dir and then walks upward, removing each
// newly-empty ancestor, stopping before (and never removing) root itself.
func removeEmptyParents(root, dir string) {
	for {
		cleanDir := filepath.Clean(dir)
		cleanRoot := filepath.Clean(root)
		if cleanDir == cleanRoot || len(cleanDir) <= len(cleanRoot) {
			return
		}
		entries, err := os.ReadDir(cleanDir)
		if err != nil || len(entries) > 0 {
			return
		}
		if err := os.Remove(cleanDir); err != nil {
			return
		}
		dir = filepath.Dir(cleanDir)
	}
}

// crateURL builds the upstream download URL for c under the configured
// crates.io base, e.g. "https://static.crates.io/crates/serde/serde-1.0.0.crate".
func (e *Engine) crateURL(c crate.Crate) string {
	return fmt.Sprintf("%s/%s/%s", e.ctx.Config.CratesBaseURL, c.Name, c.Basename())
}

// DownloadResult reports how many added crates were fetched successfully.
type DownloadResult struct {
	Good int
	Bad  int
}

// Download fetches every crate in added into the crates root under its
// configured prefix style, verifying each against its index-recorded
// cksum. Honors ctx.KeepGoing/Cached/AssumeOK.
func (e *Engine) Download(ctx context.Context, added []crate.Crate) (DownloadResult, error) {
	cfg, err := crate.LoadConfig(e.CratesRoot)
	if err != nil {
		return DownloadResult{}, romterror.Abort("failed to load crates config: %v", err)
	}
	if err := crate.ValidateMixedOnCaseInsensitive(e.CratesRoot, cfg.Prefix); err != nil {
		return DownloadResult{}, romterror.Abort("%v", err)
	}

	items := make([]download.Item, 0, len(added))
	for _, c := range added {
		c := c
		dest := filepath.Join(e.CratesRoot, c.RelPath(cfg.Prefix))
		items = append(items, download.Item{
			Dest: dest,
			Do: func(goCtx context.Context) error {
				digest, err := integrity.ParseDigest(c.Hash)
				if err != nil {
					return romterror.Integrity("crate %s-%s has an unparseable index cksum %q", c.Name, c.Version, c.Hash)
				}
				return e.ctx.Downloader.FetchVerifyHash(goCtx, e.crateURL(c), dest, digest, e.ctx.Cached, e.ctx.AssumeOK)
			},
		})
	}

	results, err := e.ctx.Downloader.FetchMany(ctx, items, e.ctx.KeepGoing)
	out := DownloadResult{Good: len(results) - download.CountFailures(results), Bad: download.CountFailures(results)}
	return out, err
}

// Verify checks every crate file presently on disk against its ".sha256"
// sidecar.
func (e *Engine) Verify(filter crate.Filter) (good, bad int, err error) {
	crates, err := e.List(filter)
	if err != nil {
		return 0, 0, err
	}
	cfg, err := crate.LoadConfig(e.CratesRoot)
	if err != nil {
		return 0, 0, romterror.Abort("failed to load crates config: %v", err)
	}
	for _, c := range crates {
		path := filepath.Join(e.CratesRoot, c.RelPath(cfg.Prefix))
		if verr := integrity.Verify(path); verr != nil {
			e.ctx.Logger.Warn("crate verification failed", "crate", c.Basename(), "err", verr)
			bad++
			if !e.ctx.KeepGoing {
				return good, bad, verr
			}
			continue
		}
		good++
	}
	return good, bad, nil
}

// List walks the crates root and returns every crate file present on
// disk, filtered by filter.
func (e *Engine) List(filter crate.Filter) ([]crate.Crate, error) {
	var out []crate.Crate
	err := filepath.Walk(e.CratesRoot, func(path string, info os.FileInfo, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if info.IsDir() || filepath.Ext(path) != ".crate" {
			return nil
		}
		rel, err := filepath.Rel(e.CratesRoot, path)
		if err != nil {
			return nil
		}
		name, version, ok := crate.ParseRelPath(filepath.ToSlash(rel))
		if !ok || !filter.Matches(name, version) {
			return nil
		}
		digest, err := integrity.HashFile(path)
		hash := ""
		if err == nil {
			hash = digest.String()
		}
		out = append(out, crate.Crate{Name: name, Version: version, Hash: hash})
		return nil
	})
	if err != nil {
		return nil, romterror.Abort("failed to list crates root %s: %v", e.CratesRoot, err)
	}
	return out, nil
}

// Pack writes a crate archive covering [start, end]: the delta's added
// crates (so the archive is self-contained for a from-scratch import) and
// the index's Git bundle for that range.
func (e *Engine) Pack(ctx context.Context, start, end, destPath string) (pkgarchive.PackResult, error) {
	repo, err := e.openIndex()
	if err != nil {
		return pkgarchive.PackResult{}, err
	}
	added, _, err := repo.Delta(start, end, crate.Filter{})
	if err != nil {
		return pkgarchive.PackResult{}, err
	}
	cfg, err := crate.LoadConfig(e.CratesRoot)
	if err != nil {
		return pkgarchive.PackResult{}, romterror.Abort("failed to load crates config: %v", err)
	}

	bundlePath := filepath.Join(os.TempDir(), "romt-origin.bundle")
	if err := repo.BundleCreate(ctx, bundlePath, start, end); err != nil {
		return pkgarchive.PackResult{}, err
	}
	defer os.Remove(bundlePath)

	return pkgarchive.PackCrates(destPath, bundlePath, added, e.CratesRoot, cfg.Prefix, cfg.ArchivePrefix, e.ctx.KeepGoing)
}

// Unpack extracts a crate archive's bundle to the index's configured
// "origin" remote path and its crate files into the crates root. The
// index's origin must be a local file path (the init-import layout) so
// that a subsequent Pull fetches the just-extracted commit range from it.
func (e *Engine) Unpack(archivePath string) (pkgarchive.UnpackResult, error) {
	cfg, err := crate.LoadConfig(e.CratesRoot)
	if err != nil {
		return pkgarchive.UnpackResult{}, romterror.Abort("failed to load crates config: %v", err)
	}
	repo, err := e.openIndex()
	if err != nil {
		return pkgarchive.UnpackResult{}, err
	}
	originURL, err := repo.OriginURL()
	if err != nil {
		return pkgarchive.UnpackResult{}, err
	}
	bundleDest, err := filepath.Abs(originURL)
	if err != nil {
		return pkgarchive.UnpackResult{}, romterror.Abort("failed to resolve origin bundle path %s: %v", originURL, err)
	}
	return pkgarchive.UnpackCrates(archivePath, bundleDest, e.CratesRoot, cfg.Prefix, e.ctx.KeepGoing)
}

// Update runs the crate-mirror update pipeline: pull -> prune -> download
// -> mark.
func (e *Engine) Update(ctx context.Context, start, end string, filter crate.Filter) (DownloadResult, error) {
	if err := e.Pull(ctx); err != nil {
		return DownloadResult{}, err
	}
	added, removed, err := e.Delta(start, end, filter)
	if err != nil {
		return DownloadResult{}, err
	}
	if err := e.Prune(removed); err != nil {
		return DownloadResult{}, err
	}
	result, err := e.Download(ctx, added)
	if err != nil {
		return result, err
	}
	return result, e.Mark(end)
}
