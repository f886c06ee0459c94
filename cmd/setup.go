package cmd

import (
	"io"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/Norgate-AV/ghostbind/internal/config"
	"github.com/Norgate-AV/ghostbind/internal/logging"
	"github.com/Norgate-AV/ghostbind/internal/pipeline"
	"github.com/Norgate-AV/ghostbind/internal/toolchain"
)

// session is what every command needs: the loaded config, a logger and an engine
type session struct {
	cfg          *config.Config
	log          zerolog.Logger
	engine       *pipeline.Engine
	manifestPath string
	pkg          string
}

// detectorOverride replaces the real toolchain detector, for tests
var detectorOverride *toolchain.Detector

func newSession(cmd *cobra.Command) (*session, error) {
	manifestPath, _ := cmd.Flags().GetString("manifest-path")
	pkg, _ := cmd.Flags().GetString("package")

	cfg, err := config.NewLoader().LoadForBuild(cmd, manifestPath)
	if err != nil {
		return nil, err
	}

	log := logging.New(cmd.ErrOrStderr(), cfg.LogLevel, cfg.Verbose)

	var progress io.Writer = cmd.ErrOrStderr()
	if cfg.Silent {
		progress = io.Discard
	}

	engine := pipeline.New(pipeline.Options{
		Tools: toolchain.Paths{
			Cargo:    cfg.CargoPath,
			Rustc:    cfg.RustcPath,
			Cbindgen: cfg.CbindgenPath,
			CC:       cfg.CCPath,
		},
		CacheDir:   cfg.CacheDir,
		TargetDir:  cfg.TargetDir,
		Jobs:       cfg.Jobs,
		Timeout:    cfg.Timeout,
		LinkLibs:   cfg.LinkLibs,
		LinkSearch: cfg.LinkSearch,
		Progress:   progress,
		Detector:   detectorOverride,
		Log:        log,
	})

	return &session{cfg: cfg, log: log, engine: engine, manifestPath: manifestPath, pkg: pkg}, nil
}
