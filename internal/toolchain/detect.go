// Package toolchain checks that the external tools the pipeline drives are
// installed at a supported version before any build work starts.
package toolchain

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"regexp"
	"strings"
	"sync"

	"github.com/Masterminds/semver/v3"

	"github.com/Norgate-AV/ghostbind/internal/codes"
)

// Minimum supported versions
const (
	MinCargo    = "1.70.0"
	MinRustc    = "1.70.0"
	MinCbindgen = "0.24.0"
)

// Tool describes one external tool requirement
type Tool struct {
	Name        string
	Path        string // executable name or path
	VersionArgs []string
	MinVersion  string // empty means any version
	Required    bool
	Description string
}

// Status is the detection result for one tool
type Status struct {
	Name       string
	Found      bool
	Version    string
	Path       string
	Required   bool
	MinVersion string
	Err        error
	// Description is a human label used by doctor output
	Description string
}

// OK reports whether the tool is present and new enough
func (s Status) OK() bool {
	return s.Found && s.Err == nil
}

// Paths selects the executables to check
type Paths struct {
	Cargo    string
	Rustc    string
	Cbindgen string
	CC       string
}

// DefaultTools returns the tools ghostbind needs, in check order
func DefaultTools(p Paths) []Tool {
	return []Tool{
		{Name: "cargo", Path: orDefault(p.Cargo, "cargo"), VersionArgs: []string{"--version"}, MinVersion: MinCargo, Required: true, Description: "Rust toolchain"},
		{Name: "rustc", Path: orDefault(p.Rustc, "rustc"), VersionArgs: []string{"--version", "--verbose"}, MinVersion: MinRustc, Required: true, Description: "Rust compiler"},
		{Name: "cbindgen", Path: orDefault(p.Cbindgen, "cbindgen"), VersionArgs: []string{"--version"}, MinVersion: MinCbindgen, Required: true, Description: "C header generator"},
		{Name: "cc", Path: orDefault(p.CC, "cc"), VersionArgs: []string{"--version"}, Required: false, Description: "C compiler (optional, for testing generated headers)"},
	}
}

// Runner executes a tool and returns its combined output
type Runner func(ctx context.Context, path string, args ...string) ([]byte, error)

// LookPath resolves an executable
type LookPath func(file string) (string, error)

// Detector runs the tool checks and remembers the outcome
type Detector struct {
	tools    []Tool
	run      Runner
	lookPath LookPath

	mu       sync.Mutex
	done     bool
	statuses []Status
	host     string
}

// NewDetector creates a detector for the given tools using real subprocesses
func NewDetector(tools []Tool) *Detector {
	return &Detector{
		tools:    tools,
		run:      runTool,
		lookPath: exec.LookPath,
	}
}

// WithRunner swaps subprocess execution, for tests
func (p *Detector) WithRunner(run Runner, lookPath LookPath) *Detector {
	p.run = run
	p.lookPath = lookPath
	return p
}

// Detect returns the status of every tool. Subprocesses run until one call
// completes with its context still live; later calls reuse that result.
func (p *Detector) Detect(ctx context.Context) []Status {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.done {
		p.host = ""
		p.statuses = make([]Status, 0, len(p.tools))
		for _, tool := range p.tools {
			p.statuses = append(p.statuses, p.checkTool(ctx, tool))
		}

		// a cancelled run says nothing about the toolchain
		p.done = ctx.Err() == nil
	}

	out := make([]Status, len(p.statuses))
	copy(out, p.statuses)

	return out
}

// Check fails with ToolchainMissing for the first required tool that is
// absent or older than its minimum version.
func (p *Detector) Check(ctx context.Context) error {
	for _, s := range p.Detect(ctx) {
		if !s.Required || s.OK() {
			continue
		}

		want := s.MinVersion
		if want == "" {
			want = "any"
		}

		if !s.Found {
			return &codes.Error{
				Kind: codes.ErrToolchainMissing,
				Msg:  fmt.Sprintf("%s (>= %s) is required but not found in PATH", s.Name, want),
				Err:  s.Err,
			}
		}

		return &codes.Error{
			Kind: codes.ErrToolchainMissing,
			Msg:  fmt.Sprintf("%s %s found at %s, version >= %s required", s.Name, s.Version, s.Path, want),
			Err:  s.Err,
		}
	}

	return nil
}

// HostTriple is the host target reported by `rustc --version --verbose`
func (p *Detector) HostTriple(ctx context.Context) (string, error) {
	p.Detect(ctx)

	p.mu.Lock()
	host := p.host
	p.mu.Unlock()

	if host == "" {
		if err := ctx.Err(); err != nil {
			return "", err
		}

		return "", &codes.Error{Kind: codes.ErrToolchainMissing, Msg: "could not detect host target from rustc"}
	}

	return host, nil
}

func (p *Detector) checkTool(ctx context.Context, tool Tool) Status {
	s := Status{
		Name:        tool.Name,
		Required:    tool.Required,
		MinVersion:  tool.MinVersion,
		Description: tool.Description,
	}

	path, err := p.lookPath(tool.Path)
	if err != nil {
		s.Err = err
		return s
	}

	s.Found = true
	s.Path = path

	out, err := p.run(ctx, path, tool.VersionArgs...)
	if err != nil {
		s.Err = fmt.Errorf("failed to run %s %s: %w", tool.Name, strings.Join(tool.VersionArgs, " "), err)
		return s
	}

	if tool.Name == "rustc" {
		p.host = parseHost(out)
	}

	v, err := parseVersion(out)
	if err != nil {
		if tool.MinVersion != "" {
			s.Err = err
		}
		return s
	}

	s.Version = v.String()

	if tool.MinVersion != "" {
		want := semver.MustParse(tool.MinVersion)
		if v.LessThan(want) {
			s.Err = fmt.Errorf("version %s is older than required %s", v, want)
		}
	}

	return s
}

var versionPattern = regexp.MustCompile(`\d+\.\d+\.\d+(-[0-9A-Za-z.-]+)?`)

// parseVersion extracts the first semantic version from tool output such as
// "cargo 1.75.0 (1d8b05cdd 2023-11-20)" or "cbindgen 0.26.0".
func parseVersion(out []byte) (*semver.Version, error) {
	m := versionPattern.Find(out)
	if m == nil {
		return nil, fmt.Errorf("no version in output %q", firstLine(out))
	}

	return semver.NewVersion(string(m))
}

func parseHost(out []byte) string {
	sc := bufio.NewScanner(bytes.NewReader(out))
	for sc.Scan() {
		if host, ok := strings.CutPrefix(strings.TrimSpace(sc.Text()), "host: "); ok {
			return strings.TrimSpace(host)
		}
	}

	return ""
}

func firstLine(out []byte) string {
	line, _, _ := bytes.Cut(out, []byte("\n"))
	return string(line)
}

func runTool(ctx context.Context, path string, args ...string) ([]byte, error) {
	return exec.CommandContext(ctx, path, args...).CombinedOutput()
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}

	return v
}
