package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Norgate-AV/ghostbind/internal/build"
)

func newBuildCmd() *cobra.Command {
	buildCmd := &cobra.Command{
		Use:   "build",
		Short: "Build the crate and write its manifest",
		Long: `Build the crate for one or more foreign targets, generate C headers and write
a JSON manifest per target. Manifest paths are printed to stdout, one per line.`,
		Args: cobra.NoArgs,
		RunE: runBuild,
	}

	addTargetFlags(buildCmd)
	buildCmd.Flags().String("profile", "", "Build profile (debug or release)")
	buildCmd.Flags().StringSlice("features", nil, "Features to enable (comma separated or repeated)")
	buildCmd.Flags().Bool("no-default-features", false, "Disable the crate's default features")
	buildCmd.Flags().String("kind", "", "Artifact kind (staticlib or cdylib)")
	buildCmd.Flags().Bool("generate-cbindgen-config", false, "Write a default cbindgen.toml into the crate if it has none")
	buildCmd.Flags().Bool("keep-going", false, "Build every target even if one fails")
	buildCmd.Flags().Int("jobs", 0, "Maximum concurrent target builds (default: number of CPUs)")
	buildCmd.Flags().Duration("timeout", 0, "Per-target build timeout (default 30m)")

	return buildCmd
}

func addTargetFlags(cmd *cobra.Command) {
	cmd.Flags().StringSlice("zig-target", nil, "Foreign target triple, e.g. x86_64-linux-gnu (repeatable; default: host)")
	cmd.Flags().String("rust-target", "", "Rust target triple; bypasses target mapping")
	cmd.Flags().String("cbindgen-config", "", "Path to a cbindgen.toml")
}

func runBuild(cmd *cobra.Command, args []string) error {
	s, err := newSession(cmd)
	if err != nil {
		return err
	}

	reqs, err := s.requests(cmd)
	if err != nil {
		return err
	}

	if gen, _ := cmd.Flags().GetBool("generate-cbindgen-config"); gen {
		path, created, err := s.engine.GenerateHeaderConfig(reqs[0])
		if err != nil {
			return err
		}

		if created {
			s.log.Info().Str("path", path).Msg("Wrote cbindgen config")
		}
	}

	for _, r := range reqs {
		target := r.ForeignTarget
		if r.NativeOverride != "" {
			target = r.NativeOverride
		}
		if target == "" {
			target = "host"
		}

		s.log.Info().Str("target", target).Str("profile", string(r.Profile)).Msg("Building crate")
	}

	results, err := s.engine.BuildAll(cmd.Context(), reqs, s.cfg.KeepGoing)

	out := cmd.OutOrStdout()
	for _, res := range results {
		if res != nil {
			fmt.Fprintln(out, res.ManifestPath)
		}
	}

	return err
}

// requests turns the command line and loaded config into one build request per target
func (s *session) requests(cmd *cobra.Command) ([]build.Request, error) {
	foreign, _ := cmd.Flags().GetStringSlice("zig-target")
	native, _ := cmd.Flags().GetString("rust-target")
	headerConfig, _ := cmd.Flags().GetString("cbindgen-config")

	var features []string
	if cmd.Flags().Lookup("features") != nil {
		features, _ = cmd.Flags().GetStringSlice("features")
	}

	var noDefault bool
	if cmd.Flags().Lookup("no-default-features") != nil {
		noDefault, _ = cmd.Flags().GetBool("no-default-features")
	}

	if native != "" && len(foreign) > 1 {
		return nil, fmt.Errorf("--rust-target cannot be combined with more than one --zig-target")
	}

	if len(foreign) == 0 {
		foreign = []string{""}
	}

	reqs := make([]build.Request, 0, len(foreign))
	for _, f := range foreign {
		req, err := build.NewRequest(build.Request{
			ManifestPath:      s.manifestPath,
			Package:           s.pkg,
			Profile:           s.cfg.Profile,
			Features:          features,
			NoDefaultFeatures: noDefault,
			ForeignTarget:     f,
			NativeOverride:    native,
			HeaderConfig:      headerConfig,
			Kind:              s.cfg.Kind,
		})
		if err != nil {
			return nil, err
		}

		reqs = append(reqs, req)
	}

	return reqs, nil
}
