package cmd

import (
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

// doctorTargets is how many supported targets doctor lists before summarizing
const doctorTargets = 5

func newDoctorCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "doctor",
		Short: "Check the toolchain and list supported targets",
		Args:  cobra.NoArgs,
		RunE:  runDoctor,
	}
}

func runDoctor(cmd *cobra.Command, args []string) error {
	s, err := newSession(cmd)
	if err != nil {
		return err
	}

	r := s.engine.Doctor(cmd.Context())
	out := cmd.OutOrStdout()

	ok := color.New(color.FgGreen).SprintFunc()
	bad := color.New(color.FgRed).SprintFunc()
	warn := color.New(color.FgYellow).SprintFunc()

	fmt.Fprintln(out, "Checking ghostbind dependencies...")
	for _, st := range r.Tools {
		switch {
		case st.OK():
			fmt.Fprintf(out, "%s %s %s found at: %s\n", ok("✓"), st.Description, st.Version, st.Path)
		case !st.Found && st.Required:
			fmt.Fprintf(out, "%s %s (%s) not found\n", bad("✗"), st.Description, st.Name)
		case !st.Found:
			fmt.Fprintf(out, "%s %s (%s) not found\n", warn("!"), st.Description, st.Name)
		default:
			fmt.Fprintf(out, "%s %s: %v\n", bad("✗"), st.Description, st.Err)
		}

		if !st.OK() && st.Name == "cbindgen" {
			fmt.Fprintln(out, "  Install with: cargo install cbindgen")
		}
	}

	if r.Host != "" {
		fmt.Fprintf(out, "\nHost target: %s\n", r.Host)
	}

	fmt.Fprintln(out, "\nTarget mapping support:")
	for i, m := range r.Targets {
		if i == doctorTargets {
			fmt.Fprintf(out, "  ... and %d more\n", len(r.Targets)-doctorTargets)
			break
		}

		fmt.Fprintf(out, "  %s -> %s\n", m.Foreign, m.Native)
	}

	if r.Err != nil {
		return r.Err
	}

	fmt.Fprintf(out, "\n%s Ghostbind doctor check complete\n", ok("✓"))

	return nil
}
