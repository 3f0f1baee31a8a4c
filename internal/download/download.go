// Package download implements romt's parallel download/verify engine: a
// bounded-concurrency HTTP(S)/file:// fetcher with atomic writes, cache
// policy, and integrity verification.
package download

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/ProtonMail/gopenpgp/v2/crypto"
	"github.com/drmikehenry/romt/internal/integrity"
	"github.com/drmikehenry/romt/internal/log"
	"github.com/drmikehenry/romt/internal/romterror"
	"github.com/google/uuid"
)

// Options configures a Downloader.
type Options struct {
	// NumJobs is the capacity limiter width. Default 4, minimum 1.
	NumJobs int
	// Timeout is the per-request timeout; 0 disables it.
	Timeout time.Duration
	// Logger receives diagnostic output; defaults to a no-op logger.
	Logger log.Logger
}

// Downloader fetches artifacts with bounded concurrency, verifies their
// SHA-256 digest, and optionally verifies detached signatures.
type Downloader struct {
	client  *http.Client
	limiter *Limiter
	logger  log.Logger
}

// New constructs a Downloader from opts.
func New(opts Options) *Downloader {
	if opts.NumJobs < 1 {
		opts.NumJobs = 4
	}
	if opts.Logger == nil {
		opts.Logger = log.NewNoop()
	}
	client := &http.Client{Timeout: opts.Timeout}
	return &Downloader{
		client:  client,
		limiter: NewLimiter(opts.NumJobs),
		logger:  opts.Logger,
	}
}

// tmpPath returns the atomic-write staging path for dest:
// "<dest_dir>/.<basename>.<uuid>.tmp". The uuid suffix lets two
// concurrent fetches racing toward the same dest (e.g. a retried item
// after a keep-going failure) stage independently instead of clobbering
// a shared ".tmp" sibling.
func tmpPath(dest string) string {
	dir := filepath.Dir(dest)
	base := filepath.Base(dest)
	return filepath.Join(dir, "."+base+"."+uuid.New().String()+".tmp")
}

// isLocalURL reports whether url should be read as a local file rather
// than streamed over HTTP(S): "file://" URLs and any URL without an
// http(s) scheme.
func isLocalURL(url string) (path string, local bool) {
	if strings.HasPrefix(url, "file://") {
		return strings.TrimPrefix(url, "file://"), true
	}
	if strings.HasPrefix(url, "http://") || strings.HasPrefix(url, "https://") {
		return "", false
	}
	return url, true
}

// Fetch downloads url to dest, writing through a ".tmp" sibling and
// renaming atomically on success. On any network, I/O, or HTTP 4xx/5xx
// error, the partial file is removed and a Download error is returned.
func (d *Downloader) Fetch(ctx context.Context, url, dest string) error {
	tmp := tmpPath(dest)
	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return fmt.Errorf("failed to create directory for %s: %w", dest, err)
	}

	if err := d.fetchToTmp(ctx, url, tmp); err != nil {
		os.Remove(tmp)
		return err
	}
	if err := os.Rename(tmp, dest); err != nil {
		os.Remove(tmp)
		return romterror.Download(err, "failed to finalize %s", dest)
	}
	return nil
}

func (d *Downloader) fetchToTmp(ctx context.Context, url, tmp string) error {
	if path, local := isLocalURL(url); local {
		return copyLocalFile(path, tmp)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return romterror.Download(err, "failed to build request for %s", url)
	}
	resp, err := d.client.Do(req)
	if err != nil {
		return romterror.Download(err, "failed to fetch %s", url)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return romterror.Download(nil, "%s returned HTTP %d", url, resp.StatusCode)
	}

	f, err := os.Create(tmp)
	if err != nil {
		return romterror.Download(err, "failed to create %s", tmp)
	}
	defer f.Close()

	if _, err := io.Copy(f, resp.Body); err != nil {
		return romterror.Download(err, "failed to write %s", tmp)
	}
	return nil
}

func copyLocalFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return romterror.Download(err, "failed to open local source %s", src)
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return romterror.Download(err, "failed to create %s", dst)
	}
	defer out.Close()

	if _, err := io.Copy(out, in); err != nil {
		return romterror.Download(err, "failed to copy %s", src)
	}
	return nil
}

// FetchCached fetches url to dest unless cached is true and dest already
// exists, in which case it is skipped.
func (d *Downloader) FetchCached(ctx context.Context, url, dest string, cached bool) error {
	if cached {
		if _, err := os.Stat(dest); err == nil {
			return nil
		}
	}
	return d.Fetch(ctx, url, dest)
}

// FetchVerifyHash fetches url to dest and verifies its SHA-256 digest
// against expected. If assumeOK is true and dest exists, it is accepted
// without hashing. If cached is true, an existing dest is hash-checked
// first and accepted on a match; otherwise it is re-fetched, and any
// mismatch after a fresh fetch is fatal.
func (d *Downloader) FetchVerifyHash(ctx context.Context, url, dest string, expected integrity.Digest, cached, assumeOK bool) error {
	if assumeOK {
		if _, err := os.Stat(dest); err == nil {
			return nil
		}
	}
	if cached {
		if _, err := os.Stat(dest); err == nil {
			if err := integrity.VerifyHash(dest, expected); err == nil {
				return nil
			}
		}
	}
	if err := d.Fetch(ctx, url, dest); err != nil {
		return err
	}
	return integrity.VerifyHash(dest, expected)
}

// FetchVerify fetches url to dest alongside its sidecar ".sha256" (and,
// if withSig, its ".asc"), always fetching the sidecars first. When cached
// is true, the main artifact is fetched only if a hash check against the
// sidecar fails.
// If key is non-nil and withSig is true, the signature is verified after
// the main artifact is confirmed; on mismatch, warnSignature downgrades
// the failure to a log warning instead of an Integrity error.
func (d *Downloader) FetchVerify(ctx context.Context, url, dest string, cached, assumeOK, withSig, warnSignature bool, sigKey *crypto.Key) error {
	sidecarURL := url + ".sha256"
	sidecarDest := integrity.SidecarPath(dest)
	if err := d.Fetch(ctx, sidecarURL, sidecarDest); err != nil {
		return err
	}

	if withSig {
		sigURL := url + ".asc"
		sigDest := integrity.SignaturePath(dest)
		if err := d.Fetch(ctx, sigURL, sigDest); err != nil {
			return err
		}
	}

	expected, _, err := integrity.ReadSidecar(sidecarDest)
	if err != nil {
		return err
	}

	if err := d.FetchVerifyHash(ctx, url, dest, expected, cached, assumeOK); err != nil {
		return err
	}

	if withSig && sigKey != nil {
		if err := integrity.VerifySignature(dest, sigKey); err != nil {
			if warnSignature {
				d.logger.Warn("signature verification failed", "path", dest, "err", err)
				return nil
			}
			return err
		}
	}
	return nil
}

// Limiter exposes the Downloader's capacity limiter for callers composing
// their own batches (e.g. mirror engines running heterogeneous fetches
// under one shared limit).
func (d *Downloader) Limiter() *Limiter {
	return d.limiter
}
