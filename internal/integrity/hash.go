// Package integrity computes and verifies SHA-256 digests over mirrored
// artifacts, reads and writes the "<file>.sha256" sidecar format, and
// verifies detached PGP signatures.
package integrity

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/drmikehenry/romt/internal/romterror"
	"github.com/ulikunitz/xz"
)

// chunkSize is the streaming read size used by HashFile.
const chunkSize = 8 * 1024

// Digest is a 32-byte SHA-256 digest rendered as 64 lowercase hex characters.
type Digest [sha256.Size]byte

// String renders the digest as lowercase hex.
func (d Digest) String() string {
	return hex.EncodeToString(d[:])
}

var hexDigestRegex = regexp.MustCompile(`^[0-9a-fA-F]{64}$`)

// ParseDigest parses a 64-character hex string into a Digest. It rejects
// any string shorter or longer than 64 characters, or containing non-hex
// characters.
func ParseDigest(s string) (Digest, error) {
	var d Digest
	if !hexDigestRegex.MatchString(s) {
		return d, fmt.Errorf("bad hash: %q is not 64 hex characters", s)
	}
	raw, err := hex.DecodeString(s)
	if err != nil {
		return d, fmt.Errorf("bad hash: %w", err)
	}
	copy(d[:], raw)
	return d, nil
}

// HashFile streams the file at path in chunkSize blocks and returns its
// SHA-256 digest.
func HashFile(path string) (Digest, error) {
	var d Digest
	f, err := os.Open(path)
	if err != nil {
		return d, romterror.MissingFile("%s: %v", path, err)
	}
	defer f.Close()

	h := sha256.New()
	buf := make([]byte, chunkSize)
	if _, err := io.CopyBuffer(h, f, buf); err != nil {
		return d, fmt.Errorf("failed to read %s: %w", path, err)
	}
	copy(d[:], h.Sum(nil))
	return d, nil
}

// SidecarPath returns the sidecar hash-file path for path: "<path>.sha256".
func SidecarPath(path string) string {
	return path + ".sha256"
}

// WriteSidecar writes the binary-form sidecar "<hex> *<basename>\n" to
// path.sha256.
func WriteSidecar(path string, d Digest) error {
	name := filepath.Base(path)
	line := fmt.Sprintf("%s *%s\n", d.String(), name)
	return os.WriteFile(SidecarPath(path), []byte(line), 0o644)
}

// ReadSidecar parses a sidecar file, accepting either the text form
// ("<hex>  <name>") or the binary form ("<hex> *<name>"). Any other
// deviation is a BadHash failure.
func ReadSidecar(sidecarPath string) (Digest, string, error) {
	var d Digest
	data, err := os.ReadFile(sidecarPath)
	if err != nil {
		return d, "", romterror.MissingFile("%s: %v", sidecarPath, err)
	}
	line := strings.TrimSuffix(string(data), "\n")
	if len(line) < 66 {
		return d, "", fmt.Errorf("bad hash: sidecar %s is too short", sidecarPath)
	}

	hexPart := line[:64]
	delim := line[64:66]
	name := line[66:]

	if delim != "  " && delim != " *" {
		return d, "", fmt.Errorf("bad hash: sidecar %s has an unrecognized delimiter", sidecarPath)
	}

	d, err = ParseDigest(hexPart)
	if err != nil {
		return d, "", err
	}
	return d, name, nil
}

// VerifyHash checks that the file at path hashes to expected. It fails
// with MissingFile if the file is absent, Integrity if the digest differs.
func VerifyHash(path string, expected Digest) error {
	actual, err := HashFile(path)
	if err != nil {
		return err
	}
	if actual != expected {
		return romterror.Integrity("%s: expected %s, got %s", path, expected, actual)
	}
	return nil
}

// Verify reads path.sha256 and verifies path against the digest it
// describes. It fails with MissingFile if the sidecar is absent.
func Verify(path string) error {
	expected, _, err := ReadSidecar(SidecarPath(path))
	if err != nil {
		return err
	}
	return VerifyHash(path, expected)
}

// VerifyXZStream decodes the ".xz" file at path start to finish,
// discarding its output, to catch a truncated or malformed xz container
// that a matching SHA-256 sidecar would not otherwise expose (e.g. a
// sidecar copied alongside a partially-written artifact).
func VerifyXZStream(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return romterror.MissingFile("%s: %v", path, err)
	}
	defer f.Close()

	r, err := xz.NewReader(f)
	if err != nil {
		return romterror.Integrity("%s: not a valid xz stream: %v", path, err)
	}
	if _, err := io.Copy(io.Discard, r); err != nil {
		return romterror.Integrity("%s: xz stream is truncated or corrupt: %v", path, err)
	}
	return nil
}
