package pkgarchive

import (
	"archive/tar"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/drmikehenry/romt/internal/crate"
	"github.com/drmikehenry/romt/internal/romterror"
	"github.com/klauspost/compress/gzip"
)

// Reader streams an archive's members, enforcing the ARCHIVE_FORMAT
// first-member rule.
type Reader struct {
	f      *os.File
	gz     *gzip.Reader
	tr     *tar.Reader
	Format crate.PrefixStyle
}

// Open opens the archive at path and consumes its mandatory first
// member, ARCHIVE_FORMAT, recording the crate prefix style it declares.
func Open(path string) (*Reader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, romterror.MissingFile("missing archive %s", path)
	}
	gz, err := gzip.NewReader(f)
	if err != nil {
		f.Close()
		return nil, romterror.Abort("failed to open gzip stream in %s: %v", path, err)
	}
	tr := tar.NewReader(gz)

	hdr, err := tr.Next()
	if err != nil {
		gz.Close()
		f.Close()
		return nil, romterror.Abort("failed to read first archive member: %v", err)
	}
	if hdr.Name != FormatMemberName {
		gz.Close()
		f.Close()
		return nil, romterror.Abort("first archive member must be %s, got %q", FormatMemberName, hdr.Name)
	}
	content, err := io.ReadAll(tr)
	if err != nil {
		gz.Close()
		f.Close()
		return nil, romterror.Abort("failed to read %s: %v", FormatMemberName, err)
	}
	style, err := parseArchiveFormat(content)
	if err != nil {
		gz.Close()
		f.Close()
		return nil, err
	}

	return &Reader{f: f, gz: gz, tr: tr, Format: style}, nil
}

// Next returns the next member's header, or io.EOF when the archive is
// exhausted. Directory entries are skipped transparently since romt
// archives never need empty directories preserved.
func (r *Reader) Next() (*tar.Header, error) {
	for {
		hdr, err := r.tr.Next()
		if err != nil {
			return nil, err
		}
		if hdr.Typeflag == tar.TypeDir {
			continue
		}
		return hdr, nil
	}
}

// ReadAll reads the full content of the current member.
func (r *Reader) ReadAll() ([]byte, error) {
	return io.ReadAll(r.tr)
}

// ExtractTo writes the current member's content to destRoot/relPath,
// rejecting any path that would escape destRoot (absolute paths or ".."
// components).
func (r *Reader) ExtractTo(destRoot, relPath string) error {
	target, err := safeJoin(destRoot, relPath)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return romterror.Abort("failed to create directory for %s: %v", target, err)
	}
	out, err := os.OpenFile(target, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return romterror.Abort("failed to create %s: %v", target, err)
	}
	defer out.Close()
	if _, err := io.Copy(out, r.tr); err != nil {
		return romterror.Abort("failed to write %s: %v", target, err)
	}
	return nil
}

// ExtractToExact writes the current member's content to exactly destPath
// (no traversal check against a root), used for the bundle member whose
// destination is rewritten by the engine and known-safe.
func (r *Reader) ExtractToExact(destPath string) error {
	if err := os.MkdirAll(filepath.Dir(destPath), 0o755); err != nil {
		return romterror.Abort("failed to create directory for %s: %v", destPath, err)
	}
	out, err := os.OpenFile(destPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return romterror.Abort("failed to create %s: %v", destPath, err)
	}
	defer out.Close()
	if _, err := io.Copy(out, r.tr); err != nil {
		return romterror.Abort("failed to write %s: %v", destPath, err)
	}
	return nil
}

// safeJoin resolves relPath under root and verifies the result does not
// escape root, rejecting absolute paths and ".." traversal.
func safeJoin(root, relPath string) (string, error) {
	if filepath.IsAbs(relPath) {
		return "", romterror.UnexpectedArchiveMember("archive member has absolute path %q", relPath)
	}
	cleaned := filepath.Clean(relPath)
	if cleaned == ".." || strings.HasPrefix(cleaned, ".."+string(filepath.Separator)) {
		return "", romterror.UnexpectedArchiveMember("archive member escapes destination: %q", relPath)
	}
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return "", romterror.Abort("failed to resolve destination root: %v", err)
	}
	target := filepath.Join(absRoot, cleaned)
	if target != absRoot && !strings.HasPrefix(target, absRoot+string(filepath.Separator)) {
		return "", romterror.UnexpectedArchiveMember("archive member escapes destination: %q", relPath)
	}
	return target, nil
}

// Close releases the underlying handles.
func (r *Reader) Close() error {
	r.gz.Close()
	return r.f.Close()
}
