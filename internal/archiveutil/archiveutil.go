// Package archiveutil holds the pack/unpack helpers shared by the
// toolchain and rustup mirror engines: writing a dist-style archive
// member alongside its sidecars, and opening a writer for an archive kind
// that carries no crate members (so ARCHIVE_FORMAT's crate-prefix-style
// payload is a don't-care).
package archiveutil

import (
	"path/filepath"

	"github.com/drmikehenry/romt/internal/crate"
	"github.com/drmikehenry/romt/internal/pkgarchive"
	"github.com/drmikehenry/romt/internal/romterror"
)

// NewWriter opens a pkgarchive.Writer at destPath for a toolchain/rustup
// archive. Such archives carry no crates/ members, so the ARCHIVE_FORMAT
// crate-prefix-style payload is irrelevant to readers; MIXED is written
// as the neutral default.
func NewWriter(destPath string) (*pkgarchive.Writer, error) {
	return pkgarchive.Create(destPath, crate.Mixed)
}

// AddWithSidecars appends localRoot/relPath to w at archiveRoot+relPath,
// followed by its ".sha256" sidecar (always) and its ".asc" signature
// (only if withSig).
func AddWithSidecars(w *pkgarchive.Writer, archiveRoot, relPath, localRoot string, withSig bool) error {
	localPath := filepath.Join(localRoot, filepath.FromSlash(relPath))
	if err := w.AddFile(archiveRoot+relPath, localPath); err != nil {
		return err
	}
	if err := w.AddFile(archiveRoot+relPath+".sha256", localPath+".sha256"); err != nil {
		return err
	}
	if withSig {
		if err := w.AddFile(archiveRoot+relPath+".asc", localPath+".asc"); err != nil {
			if !IsMissingFile(err) {
				return err
			}
		}
	}
	return nil
}

// IsMissingFile reports whether err is a romterror.KindMissingFile
// failure, letting pack loops distinguish "not on disk" (tolerable under
// keep-going) from any other failure.
func IsMissingFile(err error) bool {
	rerr, ok := romterror.As(err)
	return ok && rerr.Kind == romterror.KindMissingFile
}
