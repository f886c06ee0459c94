// Package pipeline wires target mapping, the toolchain gate, cargo, artifact
// resolution, header generation and the manifest cache into one build.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"runtime"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/Norgate-AV/ghostbind/internal/artifact"
	"github.com/Norgate-AV/ghostbind/internal/build"
	"github.com/Norgate-AV/ghostbind/internal/cache"
	"github.com/Norgate-AV/ghostbind/internal/codes"
	"github.com/Norgate-AV/ghostbind/internal/compiler"
	"github.com/Norgate-AV/ghostbind/internal/crate"
	"github.com/Norgate-AV/ghostbind/internal/header"
	"github.com/Norgate-AV/ghostbind/internal/logging"
	"github.com/Norgate-AV/ghostbind/internal/manifest"
	"github.com/Norgate-AV/ghostbind/internal/target"
	"github.com/Norgate-AV/ghostbind/internal/toolchain"
)

// DefaultTimeout bounds a single target build
const DefaultTimeout = 30 * time.Minute

// Options configure an Engine
type Options struct {
	Tools toolchain.Paths

	// Cache root; empty means .ghostbind/cache inside each crate directory
	CacheDir string

	// Cargo output root override
	TargetDir string

	// Maximum concurrent target builds; 0 means GOMAXPROCS
	Jobs int

	// Per-target deadline; 0 means DefaultTimeout, negative disables it
	Timeout time.Duration

	// Extra libraries and search paths appended to every manifest
	LinkLibs   []string
	LinkSearch []string

	// Receives line-prefixed subprocess output; nil discards it
	Progress io.Writer

	// Replaces the real toolchain detector, for tests
	Detector *toolchain.Detector

	Log zerolog.Logger
}

// Result is the outcome of one successful target build
type Result struct {
	Manifest     *manifest.Manifest
	ManifestPath string
	Triple       target.Triple
	Cached       bool
}

// Engine runs builds. It is safe for concurrent use.
type Engine struct {
	opts     Options
	log      zerolog.Logger
	mapper   *target.Mapper
	detector *toolchain.Detector

	invoker *compiler.CommandBuilder
	headers *header.Generator

	mu     sync.Mutex
	caches map[string]*cache.Cache

	outputs outputLocks

	progressMu sync.Mutex
}

// New creates an engine
func New(opts Options) *Engine {
	if opts.Jobs <= 0 {
		opts.Jobs = runtime.GOMAXPROCS(0)
	}

	if opts.Timeout == 0 {
		opts.Timeout = DefaultTimeout
	}

	if opts.Progress == nil {
		opts.Progress = io.Discard
	}

	detector := opts.Detector
	if detector == nil {
		detector = toolchain.NewDetector(toolchain.DefaultTools(opts.Tools))
	}

	e := &Engine{
		opts:     opts,
		log:      opts.Log,
		mapper:   target.NewMapper(),
		detector: detector,
		caches:   make(map[string]*cache.Cache),
	}

	e.invoker = compiler.NewCommandBuilder(opts.Tools.Cargo, opts.Log).WithProgress(func(t target.Triple) io.Writer {
		return logging.NewPrefixWriter(opts.Progress, &e.progressMu, fmt.Sprintf("[cargo %s] ", t))
	})

	e.headers = header.NewGenerator(opts.Tools.Cbindgen, opts.Log).WithProgress(func(crateName string) io.Writer {
		return logging.NewPrefixWriter(opts.Progress, &e.progressMu, fmt.Sprintf("[cbindgen %s] ", crateName))
	})

	return e
}

// Mapper exposes the target table
func (e *Engine) Mapper() *target.Mapper {
	return e.mapper
}

// Build runs a single request
func (e *Engine) Build(ctx context.Context, req build.Request) (*Result, error) {
	results, err := e.BuildAll(ctx, []build.Request{req}, false)
	if err != nil {
		return nil, err
	}

	return results[0], nil
}

// BuildAll runs every request, at most Jobs at a time. All targets are mapped
// and the toolchain is checked before any build starts. Unless keepGoing is
// set the first failure cancels the remaining builds; with keepGoing every
// request runs and the failures are joined, except that a fatal error (see
// codes.Fatal) still cancels everything. Results are in request order, nil
// for failed requests.
func (e *Engine) BuildAll(ctx context.Context, reqs []build.Request, keepGoing bool) ([]*Result, error) {
	triples, err := e.resolveTargets(ctx, reqs)
	if err != nil {
		return nil, err
	}

	results := make([]*Result, len(reqs))
	errs := make([]error, len(reqs))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.opts.Jobs)

	for i, req := range reqs {
		g.Go(func() error {
			wctx := gctx
			if e.opts.Timeout > 0 {
				var cancel context.CancelFunc
				wctx, cancel = context.WithTimeout(gctx, e.opts.Timeout)
				defer cancel()
			}

			res, err := e.buildOne(wctx, req, triples[i])
			if err != nil {
				errs[i] = err

				// Even with keepGoing, a fatal error stops every build
				if keepGoing && !codes.Fatal(err) {
					return nil
				}

				return err
			}

			results[i] = res

			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return results, err
	}

	if err := errors.Join(errs...); err != nil {
		return results, err
	}

	return results, nil
}

// resolveTargets maps every request to a native triple and gates on the
// toolchain. Nothing is spawned for an unsupported target.
func (e *Engine) resolveTargets(ctx context.Context, reqs []build.Request) ([]target.Triple, error) {
	triples := make([]target.Triple, len(reqs))
	needHost := false

	for i, req := range reqs {
		t, err := e.mapper.Resolve(req.ForeignTarget, req.NativeOverride)
		if err != nil {
			return nil, err
		}

		triples[i] = t
		needHost = needHost || t.IsZero()
	}

	if err := e.detector.Check(ctx); err != nil {
		return nil, err
	}

	if needHost {
		host, err := e.detector.HostTriple(ctx)
		if err != nil {
			return nil, err
		}

		ht, err := target.ParseTriple(host)
		if err != nil {
			return nil, codes.Wrap(codes.ErrUnsupportedTarget, err, "host target")
		}

		for i := range triples {
			if triples[i].IsZero() {
				triples[i] = ht
			}
		}
	}

	return triples, nil
}

func (e *Engine) cacheFor(root string) (*cache.Cache, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if c, ok := e.caches[root]; ok {
		return c, nil
	}

	c, err := cache.New(root, e.log)
	if err != nil {
		return nil, err
	}

	e.caches[root] = c

	return c, nil
}

// CacheRoot returns the cache root used for a crate directory
func (e *Engine) CacheRoot(crateDir string) string {
	if e.opts.CacheDir != "" {
		return e.opts.CacheDir
	}

	return filepath.Join(crateDir, cache.DefaultCacheDir)
}

// buildOne produces the manifest for one request, reusing the cache when the
// fingerprint still matches.
func (e *Engine) buildOne(ctx context.Context, req build.Request, t target.Triple) (*Result, error) {
	info, err := crate.Inspect(req.ManifestPath, req.Package, e.opts.TargetDir)
	if err != nil {
		return nil, err
	}

	kind, err := info.Kind(req.Kind)
	if err != nil {
		return nil, err
	}

	c, err := e.cacheFor(e.CacheRoot(info.Dir))
	if err != nil {
		return nil, err
	}

	digest, err := info.SourceDigest()
	if err != nil {
		return nil, fmt.Errorf("failed to hash crate sources: %w", err)
	}

	key := cache.Key{Crate: info.Name, Triple: t, Profile: req.Profile, Kind: kind, FeatureHash: req.FeatureHash()}
	inputs := cache.Inputs{
		Lockfile:          info.Lockfile,
		ManifestPath:      info.ManifestPath,
		HeaderConfig:      header.EffectiveConfig(info, req.HeaderConfig),
		SourceDigest:      digest,
		Features:          req.Features,
		NoDefaultFeatures: req.NoDefaultFeatures,
		Profile:           req.Profile,
		Triple:            t,
		Kind:              kind,
	}

	log := e.log.With().Str("crate", info.Name).Str("triple", t.String()).Str("profile", string(req.Profile)).Logger()
	dir := c.Dir(t, req.Profile)
	path := filepath.Join(dir, manifest.FileName(info.Name))
	outputKey := filepath.Join(dir, info.Name)

	m, hit, err := c.GetOrBuild(ctx, key, inputs, func(ctx context.Context) (*cache.Built, error) {
		unlock, err := e.outputs.lock(ctx, outputKey)
		if err != nil {
			return nil, err
		}
		defer unlock()

		b, err := e.run(ctx, log, info, kind, req, t, dir)
		if err != nil {
			return nil, err
		}

		if err := manifest.Write(b.Manifest, path); err != nil {
			return nil, err
		}

		return b, nil
	})
	if err != nil {
		return nil, err
	}

	if hit {
		unlock, err := e.outputs.lock(ctx, outputKey)
		if err != nil {
			return nil, err
		}

		err = manifest.Write(m, path)
		unlock()
		if err != nil {
			return nil, err
		}
	}

	if hit {
		log.Info().Str("manifest", path).Msg("up to date")
	} else {
		log.Info().Str("manifest", path).Msg("built")
	}

	return &Result{Manifest: m, ManifestPath: path, Triple: t, Cached: hit}, nil
}

// run is the uncached pipeline: cargo, artifact resolution and staging,
// header generation. The caller holds the output lock for dir.
func (e *Engine) run(ctx context.Context, log zerolog.Logger, info *crate.Info, kind build.Kind, req build.Request, t target.Triple, dir string) (*cache.Built, error) {
	log.Info().Msg("building")

	if _, err := e.invoker.Invoke(ctx, req, t); err != nil {
		return nil, err
	}

	built, err := artifact.Resolve(ctx, info.LibName, kind, t, req.Profile, info.TargetDir)
	if err != nil {
		return nil, err
	}

	staged, err := artifact.Stage(ctx, built, dir)
	if err != nil {
		return nil, codes.Wrap(codes.ErrArtifactNotFound, err, "failed to stage artifact")
	}

	headers, err := e.headers.Generate(ctx, info, req.HeaderConfig, filepath.Join(dir, "headers"))
	if err != nil {
		return nil, err
	}

	m := &manifest.Manifest{
		CrateName:   info.Name,
		Kind:        kind,
		Artifact:    staged.Path,
		ImportLib:   staged.ImportLib,
		Headers:     headers,
		RustcTarget: t.String(),
		LinkLibs:    manifest.LinkLibs(t, e.opts.LinkLibs...),
		LinkSearch:  manifest.LinkSearch(dir, e.opts.LinkSearch...),
	}

	return &cache.Built{Manifest: m, Size: staged.Size, ModTime: staged.ModTime}, nil
}
