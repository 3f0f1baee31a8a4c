package main

import (
	"github.com/drmikehenry/romt/internal/mirrorserver"
	"github.com/spf13/cobra"
)

var serveAddr string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Re-serve the mirror tree over plain HTTP",
	Long: `serve re-serves the romt home directory over plain HTTP, the
equivalent of pointing a static file server at the mirror so rustup and
cargo can fetch from it directly.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		s := mirrorserver.New(serveAddr, mctx.Config.HomeDir, mctx.Logger)
		return s.ListenAndServe(cmd.Context())
	},
}

func init() {
	serveCmd.Flags().StringVar(&serveAddr, "addr", "127.0.0.1:8080", "address to listen on")
}
