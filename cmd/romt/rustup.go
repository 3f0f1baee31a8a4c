package main

import (
	"fmt"

	"github.com/drmikehenry/romt/internal/rustupengine"
	"github.com/spf13/cobra"
)

var rustupCmd = &cobra.Command{
	Use:   "rustup",
	Short: "Mirror the rustup-init bootstrap binary",
}

func init() {
	rustupCmd.AddCommand(rustupDownloadCmd)
	rustupCmd.AddCommand(rustupVerifyCmd)
	rustupCmd.AddCommand(rustupFixupCmd)
	rustupCmd.AddCommand(rustupPackCmd)
	rustupCmd.AddCommand(rustupUnpackCmd)
	rustupCmd.AddCommand(rustupListCmd)
}

var rustupDownloadCmd = &cobra.Command{
	Use:   "download SPEC [TARGET...]",
	Short: "Fetch rustup-init for SPEC across TARGET(s)",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := rustupengine.ParseSpec(args[0])
		if err != nil {
			return err
		}
		e := rustupengine.New(mctx)
		result, err := e.Download(cmd.Context(), s, args[1:])
		if err != nil {
			return err
		}
		fmt.Printf("downloaded %d binary(ies), %d failed (version %s)\n", result.Good, result.Bad, result.Version)
		return nil
	},
}

var rustupVerifyCmd = &cobra.Command{
	Use:   "verify",
	Short: "Verify every rustup-init binary on disk against its sidecar hash",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		e := rustupengine.New(mctx)
		good, bad, err := e.Verify()
		if err != nil {
			return err
		}
		fmt.Printf("verified %d good, %d bad\n", good, bad)
		return nil
	},
}

var rustupFixupCmd = &cobra.Command{
	Use:   "fixup VERSION",
	Short: "Republish release-stable.toml and the dist alias for VERSION",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return rustupengine.New(mctx).Fixup(args[0])
	},
}

var rustupPackCmd = &cobra.Command{
	Use:   "pack SPEC DEST [TARGET...]",
	Short: "Pack release-stable.toml and rustup-init binaries into an archive",
	Args:  cobra.MinimumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := rustupengine.ParseSpec(args[0])
		if err != nil {
			return err
		}
		e := rustupengine.New(mctx)
		result, err := e.Pack(s, args[2:], args[1])
		if err != nil {
			return err
		}
		fmt.Printf("packed %d binary(ies), %d missing\n", result.Good, result.Bad)
		return nil
	},
}

var rustupListCmd = &cobra.Command{
	Use:   "list",
	Short: "List rustup-init binaries present on disk",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		paths, err := rustupengine.New(mctx).List()
		if err != nil {
			return err
		}
		for _, p := range paths {
			fmt.Println(p)
		}
		return nil
	},
}

var rustupUnpackCmd = &cobra.Command{
	Use:   "unpack ARCHIVE",
	Short: "Unpack a rustup archive into the rustup tree",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		e := rustupengine.New(mctx)
		result, err := e.Unpack(args[0])
		if err != nil {
			return err
		}
		fmt.Printf("unpacked %d binary(ies), release-stable.toml present: %v\n", result.Packages, result.HasReleaseStable)
		return nil
	},
}
