// Package config resolves romt's environment-driven defaults: on-disk
// roots, concurrency, timeouts, and the upstream server base URLs.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"
)

const (
	// EnvRomtHome overrides the default romt home directory.
	EnvRomtHome = "ROMT_HOME"

	// EnvNumJobs overrides the default download concurrency.
	EnvNumJobs = "ROMT_NUM_JOBS"

	// EnvTimeout overrides the default per-request timeout, in seconds.
	EnvTimeout = "ROMT_TIMEOUT"

	// EnvRustupUpdateRoot overrides the rustup base URL.
	EnvRustupUpdateRoot = "RUSTUP_UPDATE_ROOT"

	// EnvRustupDistServer overrides the toolchain base URL.
	EnvRustupDistServer = "RUSTUP_DIST_SERVER"

	// DefaultNumJobs is the default download concurrency.
	DefaultNumJobs = 4

	// DefaultTimeout is the default per-request timeout.
	DefaultTimeout = 60 * time.Second

	// DefaultRustupUpdateRoot is rustup-init's default release root.
	DefaultRustupUpdateRoot = "https://static.rust-lang.org/rustup"

	// DefaultRustupDistServer is the toolchain distribution default root.
	DefaultRustupDistServer = "https://static.rust-lang.org"

	// DefaultCratesIndexURL is the upstream crates.io-index Git remote.
	DefaultCratesIndexURL = "https://github.com/rust-lang/crates.io-index"

	// DefaultCratesBaseURL is the upstream crates.io file host.
	DefaultCratesBaseURL = "https://static.crates.io/crates"
)

// Config holds the resolved on-disk layout and network defaults for a
// single romt invocation.
type Config struct {
	HomeDir           string
	DistDir           string // <home>/dist
	RustupDir         string // <home>/rustup
	CratesIndexDir    string // <home>/crates.io-index (INDEX/ working tree)
	CratesDir         string // <home>/crates.io (crates_root)
	NumJobs           int
	Timeout           time.Duration
	RustupUpdateRoot  string
	RustupDistServer  string
	CratesIndexURL    string
	CratesBaseURL     string
}

// DefaultConfig resolves a Config from the environment, applying romt's
// defaults for anything unset or invalid. Invalid values are reported to
// stderr and replaced with the default rather than failing the process,
// matching the ambient config-parsing style used throughout this stack.
func DefaultConfig() (*Config, error) {
	home := os.Getenv(EnvRomtHome)
	if home == "" {
		userHome, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("failed to resolve home directory: %w", err)
		}
		home = filepath.Join(userHome, ".romt")
	}

	cfg := &Config{
		HomeDir:          home,
		DistDir:          filepath.Join(home, "dist"),
		RustupDir:        filepath.Join(home, "rustup"),
		CratesIndexDir:   filepath.Join(home, "crates.io-index"),
		CratesDir:        filepath.Join(home, "crates.io"),
		NumJobs:          getNumJobs(),
		Timeout:          getTimeout(),
		RustupUpdateRoot: getEnvOrDefault(EnvRustupUpdateRoot, DefaultRustupUpdateRoot),
		RustupDistServer: getEnvOrDefault(EnvRustupDistServer, DefaultRustupDistServer),
		CratesIndexURL:   DefaultCratesIndexURL,
		CratesBaseURL:    DefaultCratesBaseURL,
	}
	return cfg, nil
}

func getEnvOrDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

// getNumJobs returns the configured concurrency from ROMT_NUM_JOBS.
// Invalid or non-positive values fall back to DefaultNumJobs.
func getNumJobs() int {
	envValue := os.Getenv(EnvNumJobs)
	if envValue == "" {
		return DefaultNumJobs
	}
	n, err := strconv.Atoi(envValue)
	if err != nil || n < 1 {
		fmt.Fprintf(os.Stderr, "Warning: invalid %s value %q, using default %d\n", EnvNumJobs, envValue, DefaultNumJobs)
		return DefaultNumJobs
	}
	return n
}

// getTimeout returns the configured per-request timeout from ROMT_TIMEOUT,
// in seconds; 0 disables the timeout.
func getTimeout() time.Duration {
	envValue := os.Getenv(EnvTimeout)
	if envValue == "" {
		return DefaultTimeout
	}
	secs, err := strconv.Atoi(envValue)
	if err != nil || secs < 0 {
		fmt.Fprintf(os.Stderr, "Warning: invalid %s value %q, using default %v\n", EnvTimeout, envValue, DefaultTimeout)
		return DefaultTimeout
	}
	if secs == 0 {
		return 0
	}
	return time.Duration(secs) * time.Second
}

// EnsureDirs creates the configured root directories if they do not exist.
func (c *Config) EnsureDirs() error {
	for _, dir := range []string{c.HomeDir, c.DistDir, c.RustupDir, c.CratesDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create %s: %w", dir, err)
		}
	}
	return nil
}
