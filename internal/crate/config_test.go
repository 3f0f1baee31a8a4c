package crate

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLoadConfigAbsentIsLegacy(t *testing.T) {
	dir := t.TempDir()
	cfg, err := LoadConfig(dir)
	require.NoError(t, err)
	require.Equal(t, LegacyConfig(), cfg)
}

func TestSaveAndLoadConfigRoundTrip(t *testing.T) {
	dir := t.TempDir()
	want := DefaultConfig()
	require.NoError(t, SaveConfig(dir, want))

	got, err := LoadConfig(dir)
	require.NoError(t, err)
	require.Equal(t, want, got)

	data, err := os.ReadFile(filepath.Join(dir, ConfigFileName))
	require.NoError(t, err)
	require.Contains(t, string(data), "prefix")
	require.Contains(t, string(data), "archive_prefix")
}
