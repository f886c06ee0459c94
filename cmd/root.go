package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/Norgate-AV/ghostbind/internal/codes"
	"github.com/Norgate-AV/ghostbind/internal/version"
)

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "ghostbind",
		Short: "Build Rust crates for foreign build systems",
		Long: `ghostbind builds a Rust crate as a staticlib or cdylib for a target given in
the outer build system's notation, generates C headers with cbindgen and writes
a JSON manifest describing everything the linker needs.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.Version = fmt.Sprintf("%s (%s) %s", version.Version, version.Commit, version.BuildTime)

	rootCmd.PersistentFlags().String("manifest-path", "Cargo.toml", "Path to Cargo.toml")
	rootCmd.PersistentFlags().StringP("package", "p", "", "Package to build in a workspace")
	rootCmd.PersistentFlags().String("cache-dir", "", "Cache directory (default: .ghostbind/cache next to Cargo.toml)")
	rootCmd.PersistentFlags().String("target-dir", "", "Cargo target directory")
	rootCmd.PersistentFlags().BoolP("silent", "s", false, "Suppress console output from cargo and cbindgen")
	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "Verbose output")
	rootCmd.PersistentFlags().String("log-level", "", "Log level (trace, debug, info, warn, error)")

	rootCmd.AddCommand(newBuildCmd(), newHeadersCmd(), newDoctorCmd(), newCacheCmd())

	return rootCmd
}

func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	err := newRootCmd().ExecuteContext(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "%s %v\n", color.RedString("error:"), err)
		stop()
		os.Exit(codes.ExitCode(err))
	}
}
