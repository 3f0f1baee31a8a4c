// Command romt mirrors the Rust toolchain, rustup-init, and crates.io
// ecosystem for offline/air-gapped transport. This file wires the cobra
// CLI front end onto the engine packages under internal/: argument
// parsing, help, and subcommand dispatch are explicitly out of scope for
// the engines themselves, so they live here instead.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/drmikehenry/romt/internal/buildinfo"
	"github.com/drmikehenry/romt/internal/config"
	"github.com/drmikehenry/romt/internal/log"
	"github.com/drmikehenry/romt/internal/mirror"
	"github.com/drmikehenry/romt/internal/romterror"
	"github.com/spf13/cobra"
)

var (
	quietFlag   bool
	verboseFlag bool
	debugFlag   bool

	numJobsFlag  int
	timeoutFlag  int
	keepGoing    bool
	cachedFlag   bool
	assumeOK     bool
	withSig      bool
	warnSig      bool
	fromGithub   bool

	mctx *mirror.Context
)

var rootCmd = &cobra.Command{
	Use:   "romt",
	Short: "Rust Offline Mirror Tool",
	Long: `romt builds and maintains an offline mirror of the Rust toolchain
distribution, the rustup-init bootstrap binary, and the crates.io crate
registry, for transport into an air-gapped environment.`,
	SilenceUsage:      true,
	SilenceErrors:     true,
	PersistentPreRunE: setup,
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&quietFlag, "quiet", "q", false, "show errors only")
	rootCmd.PersistentFlags().BoolVarP(&verboseFlag, "verbose", "v", false, "show operational detail")
	rootCmd.PersistentFlags().BoolVar(&debugFlag, "debug", false, "show debug detail")

	rootCmd.PersistentFlags().IntVar(&numJobsFlag, "num-jobs", 0, "download concurrency (0 = use ROMT_NUM_JOBS/default)")
	rootCmd.PersistentFlags().IntVar(&timeoutFlag, "timeout", 0, "per-request timeout in seconds (0 = use ROMT_TIMEOUT/default)")
	rootCmd.PersistentFlags().BoolVar(&keepGoing, "keep-going", false, "log and count per-item failures instead of aborting")
	rootCmd.PersistentFlags().BoolVar(&cachedFlag, "cached", false, "skip refetching destinations that already exist")
	rootCmd.PersistentFlags().BoolVar(&assumeOK, "assume-ok", false, "accept existing destinations without re-hashing")
	rootCmd.PersistentFlags().BoolVar(&withSig, "with-sig", false, "fetch and verify detached signatures alongside hashes")
	rootCmd.PersistentFlags().BoolVar(&warnSig, "warn-signature", false, "downgrade signature mismatches to warnings")
	rootCmd.PersistentFlags().BoolVar(&fromGithub, "from-github", false, "fall back to GitHub release discovery for rustup when RUSTUP_UPDATE_ROOT is unreachable")

	rootCmd.Version = buildinfo.Version()

	rootCmd.AddCommand(crateCmd)
	rootCmd.AddCommand(toolchainCmd)
	rootCmd.AddCommand(rustupCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(completionCmd)
}

// setup builds the shared mirror.Context from resolved config, CLI flag
// overrides, and verbosity flags, before any subcommand runs.
func setup(cmd *cobra.Command, args []string) error {
	cfg, err := config.DefaultConfig()
	if err != nil {
		return romterror.Abort("failed to resolve configuration: %v", err)
	}
	if numJobsFlag > 0 {
		cfg.NumJobs = numJobsFlag
	}
	if timeoutFlag > 0 {
		cfg.Timeout = time.Duration(timeoutFlag) * time.Second
	}
	if err := cfg.EnsureDirs(); err != nil {
		return romterror.Abort("failed to prepare romt home: %v", err)
	}

	logger := log.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: logLevel()}))
	log.SetDefault(logger)

	mctx = mirror.New(cfg, logger)
	mctx.KeepGoing = keepGoing
	mctx.Cached = cachedFlag
	mctx.AssumeOK = assumeOK
	mctx.WithSig = withSig
	mctx.WarnSignature = warnSig
	mctx.FromGithub = fromGithub
	return nil
}

func logLevel() slog.Level {
	switch {
	case debugFlag:
		return slog.LevelDebug
	case verboseFlag:
		return slog.LevelInfo
	case quietFlag:
		return slog.LevelError
	default:
		return slog.LevelWarn
	}
}

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		fmt.Fprintln(os.Stderr, "\nreceived interrupt, canceling...")
		cancel()
	}()

	rootCmd.SetContext(ctx)
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(romterror.ExitCode(err))
	}
}
