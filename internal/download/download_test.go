package download

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/drmikehenry/romt/internal/integrity"
	"github.com/stretchr/testify/require"
)

func TestFetchWritesAtomicallyAndLeavesNoTmp(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("payload"))
	}))
	defer srv.Close()

	dir := t.TempDir()
	dest := filepath.Join(dir, "artifact.bin")

	d := New(Options{NumJobs: 2})
	require.NoError(t, d.Fetch(context.Background(), srv.URL, dest))

	data, err := os.ReadFile(dest)
	require.NoError(t, err)
	require.Equal(t, "payload", string(data))

	leftovers, err := filepath.Glob(filepath.Join(dir, ".*.tmp"))
	require.NoError(t, err)
	require.Empty(t, leftovers)
}

func TestFetchDeletesPartialOn404(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	dir := t.TempDir()
	dest := filepath.Join(dir, "artifact.bin")

	d := New(Options{NumJobs: 2})
	err := d.Fetch(context.Background(), srv.URL, dest)
	require.Error(t, err)

	_, statErr := os.Stat(dest)
	require.True(t, os.IsNotExist(statErr))
	leftovers, err := filepath.Glob(filepath.Join(dir, ".*.tmp"))
	require.NoError(t, err)
	require.Empty(t, leftovers)
}

func TestFetchCachedSkipsExisting(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.Write([]byte("fresh"))
	}))
	defer srv.Close()

	dir := t.TempDir()
	dest := filepath.Join(dir, "artifact.bin")
	require.NoError(t, os.WriteFile(dest, []byte("stale"), 0o644))

	d := New(Options{NumJobs: 2})
	require.NoError(t, d.FetchCached(context.Background(), srv.URL, dest, true))
	require.Equal(t, 0, calls)

	data, err := os.ReadFile(dest)
	require.NoError(t, err)
	require.Equal(t, "stale", string(data))
}

func TestFetchVerifyHashRefetchesOnMismatch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("correct"))
	}))
	defer srv.Close()

	dir := t.TempDir()
	dest := filepath.Join(dir, "artifact.bin")
	require.NoError(t, os.WriteFile(dest, []byte("stale, wrong content"), 0o644))

	expected, err := integrity.HashFile(mustWrite(t, "correct"))
	require.NoError(t, err)

	d := New(Options{NumJobs: 2})
	require.NoError(t, d.FetchVerifyHash(context.Background(), srv.URL, dest, expected, true, false))

	data, err := os.ReadFile(dest)
	require.NoError(t, err)
	require.Equal(t, "correct", string(data))
}

func TestFetchVerifyHashAssumeOKSkipsHashing(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
	}))
	defer srv.Close()

	dir := t.TempDir()
	dest := filepath.Join(dir, "artifact.bin")
	require.NoError(t, os.WriteFile(dest, []byte("anything"), 0o644))

	var expected integrity.Digest
	d := New(Options{NumJobs: 2})
	require.NoError(t, d.FetchVerifyHash(context.Background(), srv.URL, dest, expected, false, true))
	require.Equal(t, 0, calls)
}

func mustWrite(t *testing.T, content string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "ref")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestFetchManyRunsAllAndCollapsesDuplicates(t *testing.T) {
	d := New(Options{NumJobs: 2})
	var calls int
	items := []Item{
		{Dest: "a", Do: func(ctx context.Context) error { calls++; return nil }},
		{Dest: "a", Do: func(ctx context.Context) error { calls++; return nil }},
		{Dest: "b", Do: func(ctx context.Context) error { calls++; return nil }},
	}
	results, err := d.FetchMany(context.Background(), items, false)
	require.NoError(t, err)
	require.Equal(t, 2, calls)
	require.Len(t, results, 2)
}

func TestFetchManyKeepGoingAggregatesFailures(t *testing.T) {
	d := New(Options{NumJobs: 2})
	items := []Item{
		{Dest: "a", Do: func(ctx context.Context) error { return nil }},
		{Dest: "b", Do: func(ctx context.Context) error { return assertErr }},
	}
	results, err := d.FetchMany(context.Background(), items, true)
	require.Error(t, err)
	require.Equal(t, 1, CountFailures(results))
}

func TestFetchManyAbortsOnFirstFailureWithoutKeepGoing(t *testing.T) {
	d := New(Options{NumJobs: 1})
	items := []Item{
		{Dest: "a", Do: func(ctx context.Context) error { return assertErr }},
	}
	_, err := d.FetchMany(context.Background(), items, false)
	require.ErrorIs(t, err, assertErr)
}

var assertErr = os.ErrInvalid
