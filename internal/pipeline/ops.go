package pipeline

import (
	"context"

	"github.com/Norgate-AV/ghostbind/internal/build"
	"github.com/Norgate-AV/ghostbind/internal/cache"
	"github.com/Norgate-AV/ghostbind/internal/crate"
	"github.com/Norgate-AV/ghostbind/internal/header"
	"github.com/Norgate-AV/ghostbind/internal/toolchain"
)

// Headers returns the headers for req. A still valid cached build is reused;
// otherwise the crate is built first.
func (e *Engine) Headers(ctx context.Context, req build.Request) (header.HeaderSet, error) {
	res, err := e.Build(ctx, req)
	if err != nil {
		return nil, err
	}

	return header.HeaderSet(res.Manifest.Headers), nil
}

// GenerateHeaderConfig writes a default cbindgen.toml into the crate
// directory unless one exists, returning its path and whether it was created.
func (e *Engine) GenerateHeaderConfig(req build.Request) (string, bool, error) {
	info, err := crate.Inspect(req.ManifestPath, req.Package, e.opts.TargetDir)
	if err != nil {
		return "", false, err
	}

	return header.WriteDefaultConfig(info.Dir, info.LibName)
}

// TargetMapping is one row of the target table
type TargetMapping struct {
	Foreign string
	Native  string
}

// Report is the doctor output
type Report struct {
	Tools   []toolchain.Status
	Host    string
	Targets []TargetMapping
	// Error from the toolchain gate, nil when every required tool is usable
	Err error
}

// Doctor checks the toolchain and lists the supported targets
func (e *Engine) Doctor(ctx context.Context) *Report {
	r := &Report{
		Tools: e.detector.Detect(ctx),
		Err:   e.detector.Check(ctx),
	}

	if host, err := e.detector.HostTriple(ctx); err == nil {
		r.Host = host
	}

	for _, foreign := range e.mapper.Supported() {
		t, err := e.mapper.MapString(foreign)
		if err != nil {
			continue
		}

		r.Targets = append(r.Targets, TargetMapping{Foreign: foreign, Native: t.String()})
	}

	return r
}

// Cache returns the cache used for the crate at manifestPath
func (e *Engine) Cache(manifestPath, pkg string) (*cache.Cache, error) {
	if e.opts.CacheDir != "" {
		return e.cacheFor(e.opts.CacheDir)
	}

	info, err := crate.Inspect(manifestPath, pkg, e.opts.TargetDir)
	if err != nil {
		return nil, err
	}

	return e.cacheFor(e.CacheRoot(info.Dir))
}
