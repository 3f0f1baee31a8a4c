package main

import (
	"fmt"

	"github.com/drmikehenry/romt/internal/crate"
	"github.com/drmikehenry/romt/internal/crateengine"
	"github.com/spf13/cobra"
)

var crateCmd = &cobra.Command{
	Use:   "crate",
	Short: "Mirror the crates.io crate registry",
}

func init() {
	crateCmd.AddCommand(crateInitCmd)
	crateCmd.AddCommand(crateInitImportCmd)
	crateCmd.AddCommand(cratePullCmd)
	crateCmd.AddCommand(cratePruneCmd)
	crateCmd.AddCommand(crateDownloadCmd)
	crateCmd.AddCommand(crateVerifyCmd)
	crateCmd.AddCommand(crateListCmd)
	crateCmd.AddCommand(cratePackCmd)
	crateCmd.AddCommand(crateUnpackCmd)
	crateCmd.AddCommand(crateMarkCmd)
	crateCmd.AddCommand(crateConfigCmd)
	crateCmd.AddCommand(crateUpdateCmd)
	crateCmd.AddCommand(crateExportCmd)
	crateCmd.AddCommand(crateImportCmd)
}

var crateInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Create a fresh crates root and clone the crates.io-index",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return crateengine.New(mctx).Init()
	},
}

var crateInitImportCmd = &cobra.Command{
	Use:   "init-import BUNDLE",
	Short: "Create a fresh crates root from a local crates.io-index bundle",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return crateengine.New(mctx).InitImport(cmd.Context(), args[0])
	},
}

var cratePullCmd = &cobra.Command{
	Use:   "pull",
	Short: "Fold the upstream (or bundle) origin into the index working branch",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return crateengine.New(mctx).Pull(cmd.Context())
	},
}

var cratePruneCmd = &cobra.Command{
	Use:   "prune START END [PATTERN...]",
	Short: "Delete crate files removed between START and END",
	Args:  cobra.MinimumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		e := crateengine.New(mctx)
		_, removed, err := e.Delta(args[0], args[1], crate.NewFilter(args[2:]))
		if err != nil {
			return err
		}
		if err := e.Prune(removed); err != nil {
			return err
		}
		fmt.Printf("pruned %d crate(s)\n", len(removed))
		return nil
	},
}

var crateDownloadCmd = &cobra.Command{
	Use:   "download START END [PATTERN...]",
	Short: "Fetch crates added between START and END",
	Args:  cobra.MinimumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		e := crateengine.New(mctx)
		added, _, err := e.Delta(args[0], args[1], crate.NewFilter(args[2:]))
		if err != nil {
			return err
		}
		result, err := e.Download(cmd.Context(), added)
		if err != nil {
			return err
		}
		fmt.Printf("downloaded %d crate(s), %d failed\n", result.Good, result.Bad)
		return nil
	},
}

var crateVerifyCmd = &cobra.Command{
	Use:   "verify [PATTERN...]",
	Short: "Verify every crate file on disk against its sidecar hash",
	Args:  cobra.ArbitraryArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		good, bad, err := crateengine.New(mctx).Verify(crate.NewFilter(args))
		if err != nil {
			return err
		}
		fmt.Printf("verified %d good, %d bad\n", good, bad)
		return nil
	},
}

var crateListCmd = &cobra.Command{
	Use:   "list [PATTERN...]",
	Short: "List crate files present on disk",
	Args:  cobra.ArbitraryArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		crates, err := crateengine.New(mctx).List(crate.NewFilter(args))
		if err != nil {
			return err
		}
		for _, c := range crates {
			fmt.Println(c.Basename())
		}
		return nil
	},
}

var cratePackCmd = &cobra.Command{
	Use:   "pack START END DEST",
	Short: "Pack crates added between START and END into an archive",
	Args:  cobra.ExactArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		result, err := crateengine.New(mctx).Pack(cmd.Context(), args[0], args[1], args[2])
		if err != nil {
			return err
		}
		fmt.Printf("packed %d crate(s), %d missing\n", result.Good, result.Bad)
		return nil
	},
}

var crateUnpackCmd = &cobra.Command{
	Use:   "unpack ARCHIVE",
	Short: "Unpack a crate archive's bundle and crate files",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		result, err := crateengine.New(mctx).Unpack(args[0])
		if err != nil {
			return err
		}
		fmt.Printf("unpacked %d crate(s)\n", result.NumCrates)
		return nil
	},
}

var crateMarkCmd = &cobra.Command{
	Use:   "mark END",
	Short: "Force the index's mark/master branches to END",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return crateengine.New(mctx).Mark(args[0])
	},
}

var crateConfigCmd = &cobra.Command{
	Use:   "config SERVER_URL END",
	Short: "Rewrite the index's config.json and mark END",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return crateengine.New(mctx).Config(args[0], args[1])
	},
}

var crateUpdateCmd = &cobra.Command{
	Use:   "update START END [PATTERN...]",
	Short: "Run pull, prune, download, mark in sequence",
	Args:  cobra.MinimumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		e := crateengine.New(mctx)
		result, err := e.Update(cmd.Context(), args[0], args[1], crate.NewFilter(args[2:]))
		if err != nil {
			return err
		}
		fmt.Printf("updated: downloaded %d crate(s), %d failed\n", result.Good, result.Bad)
		return nil
	},
}

var crateExportCmd = &cobra.Command{
	Use:   "export START END DEST [PATTERN...]",
	Short: "Run pull, prune, download, pack, mark in sequence",
	Args:  cobra.MinimumNArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		e := crateengine.New(mctx)
		start, end, dest := args[0], args[1], args[2]
		filter := crate.NewFilter(args[3:])

		if err := e.Pull(cmd.Context()); err != nil {
			return err
		}
		added, removed, err := e.Delta(start, end, filter)
		if err != nil {
			return err
		}
		if err := e.Prune(removed); err != nil {
			return err
		}
		if _, err := e.Download(cmd.Context(), added); err != nil {
			return err
		}
		result, err := e.Pack(cmd.Context(), start, end, dest)
		if err != nil {
			return err
		}
		if err := e.Mark(end); err != nil {
			return err
		}
		fmt.Printf("exported %d crate(s), %d missing\n", result.Good, result.Bad)
		return nil
	},
}

var crateImportCmd = &cobra.Command{
	Use:   "import ARCHIVE START END [PATTERN...]",
	Short: "Run unpack, pull, prune, verify, mark in sequence",
	Args:  cobra.MinimumNArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		e := crateengine.New(mctx)
		archive, start, end := args[0], args[1], args[2]
		filter := crate.NewFilter(args[3:])

		if _, err := e.Unpack(archive); err != nil {
			return err
		}
		if err := e.Pull(cmd.Context()); err != nil {
			return err
		}
		_, removed, err := e.Delta(start, end, filter)
		if err != nil {
			return err
		}
		if err := e.Prune(removed); err != nil {
			return err
		}
		good, bad, err := e.Verify(filter)
		if err != nil {
			return err
		}
		if err := e.Mark(end); err != nil {
			return err
		}
		fmt.Printf("imported: verified %d good, %d bad\n", good, bad)
		return nil
	},
}
