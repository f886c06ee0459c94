package compiler

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"sync"
	"time"
)

// State is the lifecycle state of a subprocess task
type State int

const (
	Pending State = iota
	Running
	Succeeded
	Failed
	Cancelled
)

func (s State) String() string {
	switch s {
	case Pending:
		return "pending"
	case Running:
		return "running"
	case Succeeded:
		return "succeeded"
	case Failed:
		return "failed"
	case Cancelled:
		return "cancelled"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Terminal reports whether no further transitions are possible
func (s State) Terminal() bool {
	return s == Succeeded || s == Failed || s == Cancelled
}

var allowedTransitions = map[State][]State{
	Pending: {Running, Failed, Cancelled},
	Running: {Succeeded, Failed, Cancelled},
}

// ErrNonZeroExit is returned by Task.Run when the process exits unsuccessfully
var ErrNonZeroExit = errors.New("non-zero exit status")

// TailSize bounds how much of each output stream is kept for diagnostics
const TailSize = 8 << 10

// killGrace is how long Wait keeps waiting for output after the process
// group was killed.
const killGrace = 5 * time.Second

// CapturedOutput is what remains of a finished task
type CapturedOutput struct {
	Command  string
	State    State
	ExitCode int
	Stdout   string // last TailSize bytes
	Stderr   string // last TailSize bytes
	Duration time.Duration
}

// Task runs one subprocess in its own process group. The deadline comes
// from the context passed to Run; expiry or cancellation kills the whole
// group so no grandchildren outlive the task.
type Task struct {
	cmd         *ShellCommand
	progress    io.Writer
	execCommand func(ctx context.Context, name string, args ...string) *exec.Cmd

	mu    sync.Mutex
	state State
}

// NewTask creates a pending task. progress receives live stdout/stderr and may be nil.
func NewTask(cmd *ShellCommand, progress io.Writer) *Task {
	if progress == nil {
		progress = io.Discard
	}

	return &Task{
		cmd:         cmd,
		progress:    progress,
		execCommand: exec.CommandContext,
	}
}

// State returns the current lifecycle state
func (t *Task) State() State {
	t.mu.Lock()
	defer t.mu.Unlock()

	return t.state
}

func (t *Task) transition(to State) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.state.Terminal() {
		return fmt.Errorf("task already %s", t.state)
	}

	for _, allowed := range allowedTransitions[t.state] {
		if allowed == to {
			t.state = to
			return nil
		}
	}

	return fmt.Errorf("invalid task transition %s -> %s", t.state, to)
}

// Run executes the task once. A nil error means exit status zero.
func (t *Task) Run(ctx context.Context) (*CapturedOutput, error) {
	out := &CapturedOutput{Command: t.cmd.String()}

	if s := t.State(); s.Terminal() {
		out.State = s
		return out, fmt.Errorf("task already %s", s)
	}

	if err := ctx.Err(); err != nil {
		_ = t.transition(Cancelled)
		out.State = Cancelled
		return out, err
	}

	c := t.execCommand(ctx, t.cmd.Path, t.cmd.Args...)
	c.Dir = t.cmd.Dir
	setProcessGroup(c)
	c.Cancel = func() error { return killProcessGroup(c) }
	c.WaitDelay = killGrace

	stdout := newTailBuffer(TailSize)
	stderr := newTailBuffer(TailSize)
	c.Stdout = io.MultiWriter(stdout, t.progress)
	c.Stderr = io.MultiWriter(stderr, t.progress)

	start := time.Now()
	if err := c.Start(); err != nil {
		_ = t.transition(Failed)
		out.State = Failed
		out.ExitCode = -1
		return out, fmt.Errorf("failed to start %s: %w", t.cmd.Path, err)
	}

	if err := t.transition(Running); err != nil {
		return out, err
	}

	err := c.Wait()

	out.Duration = time.Since(start)
	out.Stdout = stdout.String()
	out.Stderr = stderr.String()
	out.ExitCode = c.ProcessState.ExitCode()

	if ctxErr := ctx.Err(); ctxErr != nil && err != nil {
		_ = t.transition(Cancelled)
		out.State = Cancelled
		return out, fmt.Errorf("%s: %w", t.cmd.Path, ctxErr)
	}

	if err != nil {
		_ = t.transition(Failed)
		out.State = Failed

		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return out, fmt.Errorf("%s exited with status %d: %w", t.cmd.Path, out.ExitCode, ErrNonZeroExit)
		}

		return out, err
	}

	if err := t.transition(Succeeded); err != nil {
		return out, err
	}

	out.State = Succeeded

	return out, nil
}
