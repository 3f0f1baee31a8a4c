package integrity

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestHashFileAndVerify(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "artifact.bin")
	require.NoError(t, os.WriteFile(path, []byte("hello romt"), 0o644))

	d, err := HashFile(path)
	require.NoError(t, err)
	require.Len(t, d.String(), 64)

	require.NoError(t, VerifyHash(path, d))

	var wrong Digest
	wrong[0] = 0xff
	err = VerifyHash(path, wrong)
	require.Error(t, err)
}

func TestSidecarRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "artifact.bin")
	require.NoError(t, os.WriteFile(path, []byte("hello romt"), 0o644))

	d, err := HashFile(path)
	require.NoError(t, err)
	require.NoError(t, WriteSidecar(path, d))

	got, name, err := ReadSidecar(SidecarPath(path))
	require.NoError(t, err)
	require.Equal(t, d, got)
	require.Equal(t, "artifact.bin", name)

	data, err := os.ReadFile(SidecarPath(path))
	require.NoError(t, err)
	require.Contains(t, string(data), " *artifact.bin\n")
}

func TestReadSidecarAcceptsTextForm(t *testing.T) {
	dir := t.TempDir()
	sidecar := filepath.Join(dir, "file.sha256")
	hexStr := "0123456789abcdef0123456789abcdef0123456789abcdef0123456789abcdef"
	require.NoError(t, os.WriteFile(sidecar, []byte(hexStr+"  file\n"), 0o644))

	d, name, err := ReadSidecar(sidecar)
	require.NoError(t, err)
	require.Equal(t, hexStr, d.String())
	require.Equal(t, "file", name)
}

func TestReadSidecarRejectsSingleSpaceDelimiter(t *testing.T) {
	dir := t.TempDir()
	sidecar := filepath.Join(dir, "file.sha256")
	hexStr := "0123456789abcdef0123456789abcdef0123456789abcdef0123456789abcdef"
	require.NoError(t, os.WriteFile(sidecar, []byte(hexStr+" file\n"), 0o644))

	_, _, err := ReadSidecar(sidecar)
	require.Error(t, err)
}

func TestReadSidecarRejectsBadHash(t *testing.T) {
	dir := t.TempDir()

	tooShort := filepath.Join(dir, "short.sha256")
	require.NoError(t, os.WriteFile(tooShort, []byte("abcd *short\n"), 0o644))
	_, _, err := ReadSidecar(tooShort)
	require.Error(t, err)

	nonHex := filepath.Join(dir, "nonhex.sha256")
	bad := "zzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzz"
	require.NoError(t, os.WriteFile(nonHex, []byte(bad+" *nonhex\n"), 0o644))
	_, _, err = ReadSidecar(nonHex)
	require.Error(t, err)
}

func TestVerifyMissingSidecar(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "artifact.bin")
	require.NoError(t, os.WriteFile(path, []byte("x"), 0o644))

	err := Verify(path)
	require.Error(t, err)
}

func TestParseDigestRejectsLengthMismatch(t *testing.T) {
	_, err := ParseDigest("abcd")
	require.Error(t, err)

	valid := "0123456789abcdef0123456789abcdef0123456789abcdef0123456789abcdef"
	_, err = ParseDigest(valid)
	require.NoError(t, err)
}
