package compiler

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"

	"github.com/rs/zerolog"

	"github.com/Norgate-AV/ghostbind/internal/build"
	"github.com/Norgate-AV/ghostbind/internal/codes"
	"github.com/Norgate-AV/ghostbind/internal/target"
)

// CommandBuilder builds and runs cargo commands
type CommandBuilder struct {
	cargoPath   string
	log         zerolog.Logger
	progress    func(triple target.Triple) io.Writer
	execCommand func(ctx context.Context, name string, args ...string) *exec.Cmd
}

// NewCommandBuilder creates a new command builder for the given cargo executable
func NewCommandBuilder(cargoPath string, log zerolog.Logger) *CommandBuilder {
	if cargoPath == "" {
		cargoPath = "cargo"
	}

	return &CommandBuilder{
		cargoPath:   cargoPath,
		log:         log,
		execCommand: exec.CommandContext,
	}
}

// WithProgress sets where live compiler output for a target is streamed
func (cb *CommandBuilder) WithProgress(progress func(triple target.Triple) io.Writer) *CommandBuilder {
	cb.progress = progress
	return cb
}

// Invoke runs cargo for req. A non-zero exit becomes BuildFailed carrying the
// command, exit code and stderr tail. Failures are never retried: given the
// same inputs cargo fails the same way again.
func (cb *CommandBuilder) Invoke(ctx context.Context, req build.Request, triple target.Triple) (*CapturedOutput, error) {
	cmd := GetBuildCommand(cb.cargoPath, req, triple)

	var progress io.Writer
	if cb.progress != nil {
		progress = cb.progress(triple)
	}

	task := NewTask(cmd, progress)
	task.execCommand = cb.execCommand

	cb.log.Debug().
		Str("triple", triple.String()).
		Str("profile", string(req.Profile)).
		Strs("features", req.Features).
		Str("command", cmd.String()).
		Msg("invoking cargo")

	out, err := task.Run(ctx)
	if err == nil {
		cb.log.Debug().Str("triple", triple.String()).Dur("took", out.Duration).Msg("cargo finished")
		return out, nil
	}

	if out.State == Cancelled {
		return out, err
	}

	if errors.Is(err, ErrNonZeroExit) {
		return out, &codes.Error{
			Kind:     codes.ErrBuildFailed,
			Msg:      fmt.Sprintf("cargo build for %s: %s", triple, codes.CargoExitMessage(out.ExitCode)),
			Command:  out.Command,
			ExitCode: out.ExitCode,
			Stderr:   out.Stderr,
		}
	}

	return out, &codes.Error{
		Kind:    codes.ErrBuildFailed,
		Msg:     "could not run cargo",
		Command: out.Command,
		Err:     err,
	}
}
