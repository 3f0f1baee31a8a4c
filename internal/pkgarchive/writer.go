package pkgarchive

import (
	"archive/tar"
	"io"
	"os"
	"path/filepath"

	"github.com/drmikehenry/romt/internal/crate"
	"github.com/drmikehenry/romt/internal/romterror"
	"github.com/google/uuid"
	"github.com/klauspost/compress/gzip"
)

// Writer builds an archive via a ".tmp" sibling of destPath, renamed into
// place on Finish. Any failure path must call Abort so the partial file
// is removed.
type Writer struct {
	destPath string
	tmpPath  string
	f        *os.File
	gz       *gzip.Writer
	tw       *tar.Writer
}

// Create opens a new archive at destPath (via its .tmp sibling) and
// writes the mandatory ARCHIVE_FORMAT member declaring style.
func Create(destPath string, style crate.PrefixStyle) (*Writer, error) {
	if err := os.MkdirAll(filepath.Dir(destPath), 0o755); err != nil {
		return nil, romterror.Abort("failed to create directory for %s: %v", destPath, err)
	}
	tmpPath := filepath.Join(filepath.Dir(destPath), "."+filepath.Base(destPath)+"."+uuid.New().String()+".tmp")
	f, err := os.Create(tmpPath)
	if err != nil {
		return nil, romterror.Abort("failed to create %s: %v", tmpPath, err)
	}
	gz := gzip.NewWriter(f)
	tw := tar.NewWriter(gz)
	w := &Writer{destPath: destPath, tmpPath: tmpPath, f: f, gz: gz, tw: tw}

	if err := w.AddBytes(FormatMemberName, archiveFormatContent(style), 0o644); err != nil {
		w.Abort()
		return nil, err
	}
	return w, nil
}

// AddBytes appends a regular member with the given in-memory content.
func (w *Writer) AddBytes(name string, content []byte, mode int64) error {
	hdr := &tar.Header{
		Name: name,
		Mode: mode,
		Size: int64(len(content)),
	}
	if err := w.tw.WriteHeader(hdr); err != nil {
		return romterror.Abort("failed to write header for %s: %v", name, err)
	}
	if _, err := w.tw.Write(content); err != nil {
		return romterror.Abort("failed to write %s: %v", name, err)
	}
	return nil
}

// AddFile appends a regular member copied from a local file on disk. It
// returns a MissingFile error if localPath does not exist, letting
// callers decide whether to tolerate the gap (keep_going).
func (w *Writer) AddFile(name, localPath string) error {
	f, err := os.Open(localPath)
	if err != nil {
		if os.IsNotExist(err) {
			return romterror.MissingFile("missing %s", localPath)
		}
		return romterror.Abort("failed to open %s: %v", localPath, err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return romterror.Abort("failed to stat %s: %v", localPath, err)
	}

	hdr := &tar.Header{
		Name: name,
		Mode: 0o644,
		Size: info.Size(),
	}
	if err := w.tw.WriteHeader(hdr); err != nil {
		return romterror.Abort("failed to write header for %s: %v", name, err)
	}
	if _, err := io.Copy(w.tw, f); err != nil {
		return romterror.Abort("failed to write %s: %v", name, err)
	}
	return nil
}

// Finish closes the tar/gzip streams and atomically renames the .tmp file
// into place.
func (w *Writer) Finish() error {
	if err := w.tw.Close(); err != nil {
		w.Abort()
		return romterror.Abort("failed to finalize tar stream: %v", err)
	}
	if err := w.gz.Close(); err != nil {
		w.Abort()
		return romterror.Abort("failed to finalize gzip stream: %v", err)
	}
	if err := w.f.Close(); err != nil {
		os.Remove(w.tmpPath)
		return romterror.Abort("failed to close %s: %v", w.tmpPath, err)
	}
	if err := os.Rename(w.tmpPath, w.destPath); err != nil {
		os.Remove(w.tmpPath)
		return romterror.Abort("failed to finalize %s: %v", w.destPath, err)
	}
	return nil
}

// Abort closes the underlying handles and deletes the partial .tmp file,
// so an interrupted pack never leaves a half-written archive behind.
func (w *Writer) Abort() {
	w.tw.Close()
	w.gz.Close()
	w.f.Close()
	os.Remove(w.tmpPath)
}
