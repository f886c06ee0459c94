package compiler

import (
	"strings"

	"github.com/kballard/go-shellquote"

	"github.com/Norgate-AV/ghostbind/internal/build"
	"github.com/Norgate-AV/ghostbind/internal/target"
	"github.com/Norgate-AV/ghostbind/internal/utils"
)

// ShellCommand is an external command and its argument vector
type ShellCommand struct {
	Path string
	Args []string
	Dir  string
}

// String renders the command the way a user would type it
func (c *ShellCommand) String() string {
	return shellquote.Join(append([]string{c.Path}, c.Args...)...)
}

// GetBuildCommand returns the cargo invocation for req. The argument order is
// fixed and features are rendered normalized, so equivalent requests produce
// byte-identical command lines.
func GetBuildCommand(cargoPath string, req build.Request, triple target.Triple) *ShellCommand {
	args := []string{"build", "--manifest-path", req.ManifestPath}

	if req.Package != "" {
		args = append(args, "--package", req.Package)
	}

	// Only library targets are of interest for FFI
	args = append(args, "--lib")
	args = append(args, "--profile", req.Profile.CargoName())
	args = append(args, "--target", triple.String())

	if req.NoDefaultFeatures {
		args = append(args, "--no-default-features")
	}

	if features := utils.NormalizeFeatures(req.Features); len(features) > 0 {
		args = append(args, "--features", strings.Join(features, ","))
	}

	return &ShellCommand{
		Path: cargoPath,
		Args: args,
	}
}
