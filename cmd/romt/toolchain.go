package main

import (
	"fmt"

	"github.com/drmikehenry/romt/internal/toolchainengine"
	"github.com/spf13/cobra"
)

var toolchainCmd = &cobra.Command{
	Use:   "toolchain",
	Short: "Mirror the Rust toolchain distribution",
}

func init() {
	toolchainCmd.AddCommand(toolchainDownloadCmd)
	toolchainCmd.AddCommand(toolchainVerifyCmd)
	toolchainCmd.AddCommand(toolchainFixupCmd)
	toolchainCmd.AddCommand(toolchainPackCmd)
	toolchainCmd.AddCommand(toolchainUnpackCmd)
	toolchainCmd.AddCommand(toolchainListCmd)
}

var toolchainDownloadCmd = &cobra.Command{
	Use:   "download SPEC [TARGET...]",
	Short: "Fetch a toolchain channel manifest and its packages",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := toolchainengine.ParseSpec(args[0])
		if err != nil {
			return err
		}
		e := toolchainengine.New(mctx)
		result, err := e.Download(cmd.Context(), s, args[1:])
		if err != nil {
			return err
		}
		fmt.Printf("downloaded %d package(s), %d failed (date %s)\n", result.Good, result.Bad, result.Date)
		return nil
	},
}

var toolchainVerifyCmd = &cobra.Command{
	Use:   "verify",
	Short: "Verify every toolchain artifact on disk against its sidecar hash",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		e := toolchainengine.New(mctx)
		good, bad, err := e.Verify()
		if err != nil {
			return err
		}
		fmt.Printf("verified %d good, %d bad\n", good, bad)
		return nil
	},
}

var toolchainFixupCmd = &cobra.Command{
	Use:   "fixup SPEC",
	Short: "Republish a toolchain manifest's undated/version aliases",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := toolchainengine.ParseSpec(args[0])
		if err != nil {
			return err
		}
		return toolchainengine.New(mctx).FixupSpec(s)
	},
}

var toolchainPackCmd = &cobra.Command{
	Use:   "pack SPEC DEST [TARGET...]",
	Short: "Pack a toolchain manifest and its packages into an archive",
	Args:  cobra.MinimumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := toolchainengine.ParseSpec(args[0])
		if err != nil {
			return err
		}
		e := toolchainengine.New(mctx)
		result, err := e.Pack(s, args[2:], args[1])
		if err != nil {
			return err
		}
		fmt.Printf("packed %d package(s), %d missing\n", result.Good, result.Bad)
		return nil
	},
}

var toolchainListCmd = &cobra.Command{
	Use:   "list",
	Short: "List toolchain package artifacts present on disk",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		paths, err := toolchainengine.New(mctx).List()
		if err != nil {
			return err
		}
		for _, p := range paths {
			fmt.Println(p)
		}
		return nil
	},
}

var toolchainUnpackCmd = &cobra.Command{
	Use:   "unpack ARCHIVE",
	Short: "Unpack a toolchain archive into the dist tree",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		e := toolchainengine.New(mctx)
		result, err := e.Unpack(args[0])
		if err != nil {
			return err
		}
		fmt.Printf("unpacked %d package(s), %d manifest(s)\n", result.Packages, len(result.Manifests))
		return nil
	},
}
