package cmd

import (
	"bytes"
	"context"
	"errors"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Norgate-AV/ghostbind/internal/codes"
	"github.com/Norgate-AV/ghostbind/internal/manifest"
	"github.com/Norgate-AV/ghostbind/internal/toolchain"
)

const fakeCargo = `#!/bin/sh
while [ $# -gt 0 ]; do
  case "$1" in
    --manifest-path) manifest="$2"; shift ;;
    --target) triple="$2"; shift ;;
    --profile) profile="$2"; shift ;;
  esac
  shift
done
[ "$profile" = "dev" ] && profile=debug
out="$(dirname "$manifest")/target/$triple/$profile"
mkdir -p "$out"
printf 'archive' > "$out/libfoo.a"
`

const fakeCbindgen = `#!/bin/sh
while [ $# -gt 0 ]; do
  case "$1" in
    --output) out="$2"; shift ;;
  esac
  shift
done
echo "#pragma once" > "$out"
`

type cliFixture struct {
	bin      string
	crateDir string
	manifest string
}

func newCLIFixture(t *testing.T, missing ...string) *cliFixture {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("fake toolchain scripts require sh")
	}

	f := &cliFixture{bin: t.TempDir(), crateDir: t.TempDir()}

	require.NoError(t, os.WriteFile(filepath.Join(f.bin, "cargo"), []byte(fakeCargo), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(f.bin, "cbindgen"), []byte(fakeCbindgen), 0o755))

	f.manifest = filepath.Join(f.crateDir, "Cargo.toml")
	require.NoError(t, os.WriteFile(f.manifest, []byte(`[package]
name = "foo"
version = "0.1.0"

[lib]
crate-type = ["staticlib"]
`), 0o644))
	require.NoError(t, os.MkdirAll(filepath.Join(f.crateDir, "src"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(f.crateDir, "src", "lib.rs"),
		[]byte("#[no_mangle]\npub extern \"C\" fn foo() {}\n"), 0o644))

	t.Setenv("CARGO_TARGET_DIR", "")
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	t.Setenv("GHOSTBIND_CARGO_PATH", filepath.Join(f.bin, "cargo"))
	t.Setenv("GHOSTBIND_CBINDGEN_PATH", filepath.Join(f.bin, "cbindgen"))

	detectorOverride = fakeDetector(f.bin, missing...)
	t.Cleanup(func() { detectorOverride = nil })

	return f
}

func fakeDetector(bin string, missing ...string) *toolchain.Detector {
	run := func(_ context.Context, path string, _ ...string) ([]byte, error) {
		switch filepath.Base(path) {
		case "cargo":
			return []byte("cargo 1.80.0 (376290515 2024-07-16)\n"), nil
		case "rustc":
			return []byte("rustc 1.80.0 (051478957 2024-07-21)\nhost: x86_64-unknown-linux-gnu\n"), nil
		case "cbindgen":
			return []byte("cbindgen 0.26.0\n"), nil
		default:
			return nil, errors.New("exit status 1")
		}
	}

	lookPath := func(file string) (string, error) {
		for _, m := range missing {
			if filepath.Base(file) == m {
				return "", exec.ErrNotFound
			}
		}

		if filepath.IsAbs(file) {
			return file, nil
		}

		return "/usr/bin/" + file, nil
	}

	tools := toolchain.DefaultTools(toolchain.Paths{
		Cargo:    filepath.Join(bin, "cargo"),
		Cbindgen: filepath.Join(bin, "cbindgen"),
	})

	return toolchain.NewDetector(tools).WithRunner(run, lookPath)
}

func execute(t *testing.T, args ...string) (string, string, error) {
	t.Helper()

	root := newRootCmd()
	var out, errOut bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&errOut)
	root.SetArgs(args)

	err := root.ExecuteContext(context.Background())

	return out.String(), errOut.String(), err
}

func lines(s string) []string {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}

	return strings.Split(s, "\n")
}

func TestBuildCommand_PrintsManifestPath(t *testing.T) {
	f := newCLIFixture(t)

	out, _, err := execute(t, "build", "--manifest-path", f.manifest, "--zig-target", "x86_64-linux-gnu")
	require.NoError(t, err)

	paths := lines(out)
	require.Len(t, paths, 1)
	assert.Equal(t, filepath.Join(f.crateDir, ".ghostbind", "cache", "x86_64-unknown-linux-gnu", "release", "foo-manifest.json"), paths[0])

	m, err := manifest.Read(paths[0])
	require.NoError(t, err)
	assert.Equal(t, "x86_64-unknown-linux-gnu", m.RustcTarget)
	assert.Len(t, m.Headers, 1)
}

func TestBuildCommand_MultipleTargets(t *testing.T) {
	f := newCLIFixture(t)

	out, _, err := execute(t, "build", "--manifest-path", f.manifest,
		"--zig-target", "x86_64-linux-gnu", "--zig-target", "aarch64-linux-gnu", "--profile", "debug")
	require.NoError(t, err)

	paths := lines(out)
	require.Len(t, paths, 2)
	assert.Contains(t, paths[0], filepath.Join("x86_64-unknown-linux-gnu", "debug"))
	assert.Contains(t, paths[1], filepath.Join("aarch64-unknown-linux-gnu", "debug"))
}

func TestBuildCommand_Silent(t *testing.T) {
	f := newCLIFixture(t)

	_, errOut, err := execute(t, "build", "--manifest-path", f.manifest, "--zig-target", "x86_64-linux-gnu", "--silent", "--log-level", "error")
	require.NoError(t, err)
	assert.Empty(t, errOut)
}

func TestBuildCommand_UnsupportedTarget(t *testing.T) {
	f := newCLIFixture(t)

	out, _, err := execute(t, "build", "--manifest-path", f.manifest, "--zig-target", "sparc-solaris")
	require.Error(t, err)
	assert.True(t, errors.Is(err, codes.ErrUnsupportedTarget))
	assert.NotEqual(t, 0, codes.ExitCode(err))
	assert.Empty(t, out)
}

func TestBuildCommand_InvalidFlags(t *testing.T) {
	f := newCLIFixture(t)

	tests := []struct {
		name string
		args []string
		want string
	}{
		{"bad profile", []string{"--profile", "fast"}, "invalid profile"},
		{"bad kind", []string{"--kind", "rlib"}, "invalid artifact kind"},
		{"override with many targets", []string{"--rust-target", "x86_64-unknown-linux-gnu", "--zig-target", "x86_64-linux-gnu", "--zig-target", "aarch64-linux-gnu"}, "--rust-target"},
		{"negative jobs", []string{"--jobs", "-1"}, "jobs"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			args := append([]string{"build", "--manifest-path", f.manifest}, tt.args...)
			_, _, err := execute(t, args...)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestBuildCommand_GenerateHeaderConfig(t *testing.T) {
	f := newCLIFixture(t)

	_, _, err := execute(t, "build", "--manifest-path", f.manifest, "--zig-target", "x86_64-linux-gnu", "--generate-cbindgen-config")
	require.NoError(t, err)
	assert.FileExists(t, filepath.Join(f.crateDir, "cbindgen.toml"))
}

func TestBuildCommand_LocalConfig(t *testing.T) {
	f := newCLIFixture(t)
	require.NoError(t, os.WriteFile(filepath.Join(f.crateDir, ".ghostbind.yaml"), []byte("profile: debug\n"), 0o644))

	out, _, err := execute(t, "build", "--manifest-path", f.manifest, "--zig-target", "x86_64-linux-gnu")
	require.NoError(t, err)
	assert.Contains(t, out, filepath.Join("x86_64-unknown-linux-gnu", "debug"))

	// flags win over the file
	out, _, err = execute(t, "build", "--manifest-path", f.manifest, "--zig-target", "x86_64-linux-gnu", "--profile", "release")
	require.NoError(t, err)
	assert.Contains(t, out, filepath.Join("x86_64-unknown-linux-gnu", "release"))
}

func TestHeadersCommand(t *testing.T) {
	f := newCLIFixture(t)

	out, _, err := execute(t, "headers", "--manifest-path", f.manifest, "--zig-target", "x86_64-linux-gnu")
	require.NoError(t, err)

	assert.Contains(t, out, "Generated 1 headers:")
	assert.Contains(t, out, "foo.h")
}

func TestDoctorCommand(t *testing.T) {
	newCLIFixture(t)

	out, _, err := execute(t, "doctor")
	require.NoError(t, err)

	assert.Contains(t, out, "Host target: x86_64-unknown-linux-gnu")
	assert.Contains(t, out, "Target mapping support:")
	assert.Contains(t, out, "more")
	assert.Contains(t, out, "Ghostbind doctor check complete")
}

func TestDoctorCommand_MissingCbindgen(t *testing.T) {
	newCLIFixture(t, "cbindgen")

	out, _, err := execute(t, "doctor")
	require.Error(t, err)
	assert.True(t, errors.Is(err, codes.ErrToolchainMissing))

	assert.Contains(t, out, "Install with: cargo install cbindgen")
	assert.NotContains(t, out, "doctor check complete")
}

func TestCacheCommands(t *testing.T) {
	f := newCLIFixture(t)

	_, _, err := execute(t, "build", "--manifest-path", f.manifest, "--zig-target", "x86_64-linux-gnu")
	require.NoError(t, err)

	out, _, err := execute(t, "cache", "stats", "--manifest-path", f.manifest)
	require.NoError(t, err)
	assert.Contains(t, out, "Entries: 1")

	_, _, err = execute(t, "cache", "clear", "--manifest-path", f.manifest)
	require.NoError(t, err)

	out, _, err = execute(t, "cache", "stats", "--manifest-path", f.manifest)
	require.NoError(t, err)
	assert.Contains(t, out, "Entries: 0")
	assert.Contains(t, out, "Size: 0 B")
}

func TestFormatSize(t *testing.T) {
	tests := []struct {
		input    int64
		expected string
	}{
		{0, "0 B"},
		{1023, "1023 B"},
		{1024, "1.0 KiB"},
		{1536, "1.5 KiB"},
		{5 * 1024 * 1024, "5.0 MiB"},
	}

	for _, test := range tests {
		assert.Equal(t, test.expected, formatSize(test.input), "formatSize(%d)", test.input)
	}
}
