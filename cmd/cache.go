package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newCacheCmd() *cobra.Command {
	cacheCmd := &cobra.Command{
		Use:   "cache",
		Short: "Inspect or clear the build cache",
	}

	cacheCmd.AddCommand(
		&cobra.Command{
			Use:   "stats",
			Short: "Show cache entry count and size",
			Args:  cobra.NoArgs,
			RunE:  runCacheStats,
		},
		&cobra.Command{
			Use:   "clear",
			Short: "Remove every cache entry",
			Args:  cobra.NoArgs,
			RunE:  runCacheClear,
		},
	)

	return cacheCmd
}

func runCacheStats(cmd *cobra.Command, args []string) error {
	s, err := newSession(cmd)
	if err != nil {
		return err
	}

	c, err := s.engine.Cache(s.manifestPath, s.pkg)
	if err != nil {
		return err
	}

	entries, size, err := c.Stats()
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Cache: %s\n", c.Root())
	fmt.Fprintf(out, "Entries: %d\n", entries)
	fmt.Fprintf(out, "Size: %s\n", formatSize(size))

	return nil
}

func runCacheClear(cmd *cobra.Command, args []string) error {
	s, err := newSession(cmd)
	if err != nil {
		return err
	}

	c, err := s.engine.Cache(s.manifestPath, s.pkg)
	if err != nil {
		return err
	}

	if err := c.Clear(); err != nil {
		return err
	}

	s.log.Info().Str("cache", c.Root()).Msg("Cache cleared")

	return nil
}

func formatSize(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}

	div, exp := int64(unit), 0
	for m := n / unit; m >= unit; m /= unit {
		div *= unit
		exp++
	}

	return fmt.Sprintf("%.1f %ciB", float64(n)/float64(div), "KMGTPE"[exp])
}
