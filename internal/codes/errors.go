package codes

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

var (
	ErrUnsupportedTarget      = errors.New("unsupported target")
	ErrToolchainMissing       = errors.New("toolchain missing")
	ErrBuildFailed            = errors.New("build failed")
	ErrArtifactNotFound       = errors.New("artifact not found")
	ErrHeaderGenerationFailed = errors.New("header generation failed")
	ErrManifestWriteFailed    = errors.New("manifest write failed")
	ErrCacheCorrupt           = errors.New("cache corrupt")
)

// Error carries one failure kind together with the context needed to act on it
// without re-deriving state: the command that ran, its exit code, the stderr
// tail and the paths that were searched.
type Error struct {
	Kind     error
	Msg      string
	Command  string
	ExitCode int
	Stderr   string
	Paths    []string
	Err      error
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}

	var b strings.Builder
	b.WriteString(e.Kind.Error())

	if e.Msg != "" {
		b.WriteString(": ")
		b.WriteString(e.Msg)
	}

	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}

	if e.Command != "" {
		fmt.Fprintf(&b, "\n  command: %s", e.Command)
	}

	if e.ExitCode != 0 {
		fmt.Fprintf(&b, "\n  exit code: %d", e.ExitCode)
	}

	if len(e.Paths) > 0 {
		fmt.Fprintf(&b, "\n  searched: %s", strings.Join(e.Paths, ", "))
	}

	if tail := strings.TrimSpace(e.Stderr); tail != "" {
		fmt.Fprintf(&b, "\n  stderr:\n%s", indent(tail, "    "))
	}

	return b.String()
}

// Unwrap exposes both the kind and the underlying cause to errors.Is/As.
func (e *Error) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}

	return []error{e.Kind, e.Err}
}

// New creates an error of the given kind with a formatted message
func New(kind error, format string, args ...any) *Error {
	return &Error{Kind: kind, Msg: fmt.Sprintf(format, args...)}
}

// Wrap creates an error of the given kind around a cause
func Wrap(kind error, err error, format string, args ...any) *Error {
	return &Error{Kind: kind, Msg: fmt.Sprintf(format, args...), Err: err}
}

// Fatal reports whether err aborts the whole run rather than a single key.
func Fatal(err error) bool {
	return errors.Is(err, ErrUnsupportedTarget) || errors.Is(err, ErrToolchainMissing)
}

// ExitCode maps an error to the CLI process exit code
func ExitCode(err error) int {
	switch {
	case err == nil:
		return ExitOK
	case errors.Is(err, ErrUnsupportedTarget):
		return ExitUnsupportedTarget
	case errors.Is(err, ErrToolchainMissing):
		return ExitToolchainMissing
	case errors.Is(err, ErrBuildFailed):
		return ExitBuildFailed
	case errors.Is(err, ErrArtifactNotFound):
		return ExitArtifactNotFound
	case errors.Is(err, ErrHeaderGenerationFailed):
		return ExitHeaderFailed
	case errors.Is(err, ErrManifestWriteFailed):
		return ExitManifestWrite
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return ExitCancelled
	default:
		return ExitGeneric
	}
}

func indent(s, prefix string) string {
	lines := strings.Split(s, "\n")
	for i, l := range lines {
		lines[i] = prefix + l
	}

	return strings.Join(lines, "\n")
}
