// Package mirror provides the shared UI/runtime object threaded through
// every mirror engine (crate, toolchain, rustup): the Logger, the
// Downloader, and the resolved Config, plus the keep-going/cached/
// assume-ok policy flags each engine command consults, replacing a
// mutable global verbosity setting with an explicit context object.
package mirror

import (
	"github.com/drmikehenry/romt/internal/config"
	"github.com/drmikehenry/romt/internal/download"
	"github.com/drmikehenry/romt/internal/log"
)

// Context carries the dependencies and policy flags every engine command
// needs as an explicit, testable value rather than process-global state.
type Context struct {
	Logger     log.Logger
	Downloader *download.Downloader
	Config     *config.Config

	// KeepGoing: log and count per-item failures in a batch instead of
	// aborting on the first one.
	KeepGoing bool
	// Cached: skip refetching a destination that already exists.
	Cached bool
	// AssumeOK: accept an existing destination without re-hashing it.
	AssumeOK bool
	// WithSig: fetch and verify detached ".asc" signatures alongside hashes.
	WithSig bool
	// WarnSignature: downgrade a signature mismatch to a logged warning
	// instead of a fatal Integrity error. Hash mismatches are never
	// downgraded.
	WarnSignature bool
	// FromGithub: when RustupUpdateRoot yields no usable release-stable.toml,
	// fall back to discovering the latest rustup-init release via the
	// GitHub API instead of failing outright.
	FromGithub bool
}

// New builds a Context from resolved configuration and a logger, wiring a
// Downloader sized and timed out per cfg.
func New(cfg *config.Config, logger log.Logger) *Context {
	if logger == nil {
		logger = log.NewNoop()
	}
	return &Context{
		Logger: logger,
		Downloader: download.New(download.Options{
			NumJobs: cfg.NumJobs,
			Timeout: cfg.Timeout,
			Logger:  logger,
		}),
		Config: cfg,
	}
}
