// Package header drives cbindgen to produce the C headers for a crate's FFI
// surface.
package header

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"

	"github.com/rs/zerolog"

	"github.com/Norgate-AV/ghostbind/internal/codes"
	"github.com/Norgate-AV/ghostbind/internal/compiler"
	"github.com/Norgate-AV/ghostbind/internal/crate"
)

// HeaderSet lists absolute header paths in generator output order
type HeaderSet []string

// Generator runs cbindgen
type Generator struct {
	cbindgenPath string
	log          zerolog.Logger
	progress     func(crateName string) io.Writer
}

// NewGenerator creates a generator for the given cbindgen executable
func NewGenerator(cbindgenPath string, log zerolog.Logger) *Generator {
	if cbindgenPath == "" {
		cbindgenPath = "cbindgen"
	}

	return &Generator{cbindgenPath: cbindgenPath, log: log}
}

// WithProgress sets where live generator output for a run is streamed. It is
// called once per Generate so concurrent runs never share a writer.
func (g *Generator) WithProgress(progress func(crateName string) io.Writer) *Generator {
	g.progress = progress
	return g
}

// EffectiveConfig returns the config cbindgen will be run with: the explicit
// path if given, otherwise the crate's own cbindgen.toml. An empty result
// means a default config will be synthesized.
func EffectiveConfig(info *crate.Info, explicit string) string {
	if explicit != "" {
		return explicit
	}

	path := filepath.Join(info.Dir, ConfigFileName)
	if _, err := os.Stat(path); err == nil {
		return path
	}

	return ""
}

// Command returns the cbindgen invocation for info
func (g *Generator) Command(info *crate.Info, configPath, outputDir string) *compiler.ShellCommand {
	return &compiler.ShellCommand{
		Path: g.cbindgenPath,
		Args: []string{
			"--config", configPath,
			"--crate", info.Name,
			"--output", filepath.Join(outputDir, info.LibName+".h"),
			"--quiet",
			info.Dir,
		},
		Dir: info.Dir,
	}
}

// Generate writes <outputDir>/<lib_name>.h. Crates without exported C
// symbols get an empty set and cbindgen is not run.
func (g *Generator) Generate(ctx context.Context, info *crate.Info, configPath, outputDir string) (HeaderSet, error) {
	log := g.log.With().Str("crate", info.Name).Logger()

	hasFFI, err := info.HasFFI()
	if err != nil {
		return nil, codes.Wrap(codes.ErrHeaderGenerationFailed, err, "failed to scan %s sources", info.Name)
	}

	if !hasFFI {
		log.Debug().Msg("no FFI surface found, skipping header generation")
		return HeaderSet{}, nil
	}

	if err := os.MkdirAll(outputDir, 0o755); err != nil {
		return nil, codes.Wrap(codes.ErrHeaderGenerationFailed, err, "failed to create header directory")
	}

	configPath = EffectiveConfig(info, configPath)
	if configPath == "" {
		configPath = filepath.Join(filepath.Dir(outputDir), ConfigFileName)
		if err := writeConfig(configPath, DefaultConfig(info.LibName)); err != nil {
			return nil, codes.Wrap(codes.ErrHeaderGenerationFailed, err, "failed to write default cbindgen config")
		}

		log.Debug().Str("config", configPath).Msg("using synthesized cbindgen config")
	}

	cmd := g.Command(info, configPath, outputDir)
	log.Debug().Str("command", cmd.String()).Msg("invoking cbindgen")

	var progress io.Writer
	if g.progress != nil {
		progress = g.progress(info.Name)
	}

	out, err := compiler.NewTask(cmd, progress).Run(ctx)
	if err != nil {
		if out != nil && out.State == compiler.Cancelled {
			return nil, err
		}

		ge := &codes.Error{
			Kind:    codes.ErrHeaderGenerationFailed,
			Msg:     "cbindgen failed for " + info.Name,
			Command: cmd.String(),
		}

		if errors.Is(err, compiler.ErrNonZeroExit) {
			ge.ExitCode = out.ExitCode
			ge.Stderr = out.Stderr
		} else {
			ge.Err = err
		}

		return nil, ge
	}

	header := filepath.Join(outputDir, info.LibName+".h")
	if _, err := os.Stat(header); err != nil {
		return nil, &codes.Error{
			Kind:    codes.ErrHeaderGenerationFailed,
			Msg:     "cbindgen reported success but wrote no header",
			Command: cmd.String(),
			Paths:   []string{header},
		}
	}

	return HeaderSet{header}, nil
}
