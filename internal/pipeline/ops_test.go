package pipeline

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Norgate-AV/ghostbind/internal/codes"
	"github.com/Norgate-AV/ghostbind/internal/header"
)

func TestHeaders_ReusesBuild(t *testing.T) {
	f := newFixture(t, "")
	e := f.engine(Options{})
	ctx := context.Background()

	res, err := e.Build(ctx, f.request(t, "x86_64-linux-gnu"))
	require.NoError(t, err)

	headers, err := e.Headers(ctx, f.request(t, "x86_64-linux-gnu"))
	require.NoError(t, err)
	assert.Equal(t, header.HeaderSet(res.Manifest.Headers), headers)
	assert.Len(t, f.calls(t, "cargo"), 1)
}

func TestHeaders_BuildsWhenStale(t *testing.T) {
	f := newFixture(t, "")
	e := f.engine(Options{})

	headers, err := e.Headers(context.Background(), f.request(t, "aarch64-linux-gnu"))
	require.NoError(t, err)
	require.Len(t, headers, 1)
	assert.FileExists(t, headers[0])
	assert.Len(t, f.calls(t, "cargo"), 1)
}

func TestGenerateHeaderConfig(t *testing.T) {
	f := newFixture(t, "")
	e := f.engine(Options{})
	ctx := context.Background()

	path, created, err := e.GenerateHeaderConfig(f.request(t, ""))
	require.NoError(t, err)
	assert.True(t, created)
	assert.Equal(t, filepath.Join(f.crateDir, header.ConfigFileName), path)

	// The crate's own config is now handed to cbindgen
	_, err = e.Build(ctx, f.request(t, "x86_64-linux-gnu"))
	require.NoError(t, err)

	calls := f.calls(t, "cbindgen")
	require.Len(t, calls, 1)
	assert.Contains(t, calls[0], "--config "+path)

	_, created, err = e.GenerateHeaderConfig(f.request(t, ""))
	require.NoError(t, err)
	assert.False(t, created)
}

func TestBuild_HeaderConfigChangeRebuilds(t *testing.T) {
	f := newFixture(t, "")
	e := f.engine(Options{})
	ctx := context.Background()

	cfg := filepath.Join(t.TempDir(), "cbindgen.toml")
	require.NoError(t, os.WriteFile(cfg, []byte("language = \"C\"\n"), 0o644))

	req := f.request(t, "x86_64-linux-gnu")
	req.HeaderConfig = cfg

	_, err := e.Build(ctx, req)
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(cfg, []byte("language = \"C++\"\n"), 0o644))

	res, err := e.Build(ctx, req)
	require.NoError(t, err)
	assert.False(t, res.Cached)
	assert.Len(t, f.calls(t, "cbindgen"), 2)
}

func TestDoctor(t *testing.T) {
	f := newFixture(t, "")
	e := f.engine(Options{})

	r := e.Doctor(context.Background())
	require.NoError(t, r.Err)
	assert.Equal(t, "x86_64-unknown-linux-gnu", r.Host)

	require.Len(t, r.Tools, 4)
	assert.Equal(t, "cargo", r.Tools[0].Name)
	assert.True(t, r.Tools[0].OK())
	assert.False(t, r.Tools[3].OK(), "cc is not available in the fake toolchain")

	assert.Contains(t, r.Targets, TargetMapping{Foreign: "x86_64-linux-gnu", Native: "x86_64-unknown-linux-gnu"})
	assert.Contains(t, r.Targets, TargetMapping{Foreign: "wasm32-wasi", Native: "wasm32-wasip1"})
}

func TestDoctor_MissingTool(t *testing.T) {
	f := newFixture(t, "")
	e := f.engine(Options{Detector: f.detector("cargo")})

	r := e.Doctor(context.Background())
	assert.ErrorIs(t, r.Err, codes.ErrToolchainMissing)
	assert.False(t, r.Tools[0].Found)
}

func TestCache_StatsForCrate(t *testing.T) {
	f := newFixture(t, "")
	e := f.engine(Options{})

	_, err := e.Build(context.Background(), f.request(t, "x86_64-linux-gnu"))
	require.NoError(t, err)

	c, err := e.Cache(f.manifest, "")
	require.NoError(t, err)

	count, size, err := c.Stats()
	require.NoError(t, err)
	assert.Equal(t, 1, count)
	assert.Greater(t, size, int64(0))
}
