package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newHeadersCmd() *cobra.Command {
	headersCmd := &cobra.Command{
		Use:   "headers",
		Short: "Generate C headers for the crate",
		Long: `Print the C headers for a target, building the crate first unless a valid
cached build exists.`,
		Args: cobra.NoArgs,
		RunE: runHeaders,
	}

	addTargetFlags(headersCmd)

	return headersCmd
}

func runHeaders(cmd *cobra.Command, args []string) error {
	s, err := newSession(cmd)
	if err != nil {
		return err
	}

	reqs, err := s.requests(cmd)
	if err != nil {
		return err
	}

	if len(reqs) != 1 {
		return fmt.Errorf("headers takes at most one --zig-target")
	}

	headers, err := s.engine.Headers(cmd.Context(), reqs[0])
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Generated %d headers:\n", len(headers))
	for _, h := range headers {
		fmt.Fprintf(out, "  %s\n", h)
	}

	return nil
}
