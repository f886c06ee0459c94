// Package cache decides whether a build can be reused.
//
// Every (triple, profile) pair owns one directory under the cache root:
//
//	<root>/<triple>/<profile>/
//	    lib<crate>.a             staged artifact
//	    headers/                 generated headers
//	    <crate>-manifest.json    manifest handed to the consumer
//	    fingerprints.db          BoltDB index of cache entries
//
// An entry is reused only when the fingerprint of the current inputs matches
// and the staged artifact still has the recorded size and mtime. Lookups
// open the index read-only under a shared file lock and take no in-process
// lock; concurrent misses with identical inputs are coalesced so the build
// runs once.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"
	"go.etcd.io/bbolt"
	"golang.org/x/sync/singleflight"

	"github.com/Norgate-AV/ghostbind/internal/build"
	"github.com/Norgate-AV/ghostbind/internal/codes"
	"github.com/Norgate-AV/ghostbind/internal/manifest"
	"github.com/Norgate-AV/ghostbind/internal/target"
)

const (
	// DefaultCacheDir is the default cache directory, relative to the crate
	DefaultCacheDir = ".ghostbind/cache"

	// IndexFileName is the BoltDB index inside each triple/profile directory
	IndexFileName = "fingerprints.db"

	// bucketName is the BoltDB bucket name for cache entries
	bucketName = "fingerprints"

	// lockTimeout bounds how long a transaction waits for the index file lock
	lockTimeout = 30 * time.Second
)

// Built is the outcome of a BuildFunc. Size and ModTime describe the staged
// artifact as the build left it; they are what a later lookup compares
// against, so they must not be re-read after other builds could have
// replaced the file.
type Built struct {
	Manifest *manifest.Manifest
	Size     int64
	ModTime  time.Time
}

// BuildFunc runs the pipeline for a miss. The manifest's artifact must live in
// the cache directory for the key.
type BuildFunc func(ctx context.Context) (*Built, error)

// Cache is the manifest cache rooted at one directory
type Cache struct {
	root  string
	log   zerolog.Logger
	group singleflight.Group
}

// New creates a cache rooted at cacheDir
func New(cacheDir string, log zerolog.Logger) (*Cache, error) {
	if cacheDir == "" {
		return nil, errors.New("cache directory is required")
	}

	cacheDir, err := filepath.Abs(cacheDir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve cache directory: %w", err)
	}

	// Ensure cache directory exists
	if err := os.MkdirAll(cacheDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create cache directory: %w", err)
	}

	return &Cache{root: cacheDir, log: log}, nil
}

// Root returns the cache root directory
func (c *Cache) Root() string {
	return c.root
}

// Dir returns the directory holding artifacts, headers and manifests for a
// triple and profile.
func (c *Cache) Dir(t target.Triple, profile build.Profile) string {
	return filepath.Join(c.root, t.String(), profile.Dir())
}

func (c *Cache) indexPath(key Key) string {
	return filepath.Join(c.Dir(key.Triple, key.Profile), IndexFileName)
}

// Get returns the cached manifest for key if it is still valid for fp
func (c *Cache) Get(key Key, fp string) (*manifest.Manifest, bool) {
	entry, err := c.load(key)
	if err != nil {
		if errors.Is(err, codes.ErrCacheCorrupt) {
			c.log.Warn().Err(err).Str("key", key.String()).Msg("ignoring unreadable cache entry")
		}

		return nil, false
	}

	if entry == nil || !entry.valid(fp) {
		return nil, false
	}

	return entry.Manifest.Clone(), true
}

// GetOrBuild returns the cached manifest for key or runs buildFn. Concurrent
// callers with the same key and the same inputs share one build and observe
// the same outcome. The boolean reports a cache hit.
func (c *Cache) GetOrBuild(ctx context.Context, key Key, in Inputs, buildFn BuildFunc) (*manifest.Manifest, bool, error) {
	log := c.log.With().Str("key", key.String()).Logger()

	fp, err := Fingerprint(in)
	if err != nil {
		return nil, false, err
	}

	if m, ok := c.Get(key, fp); ok {
		log.Debug().Msg("cache hit")
		return m, true, nil
	}

	type result struct {
		m   *manifest.Manifest
		hit bool
	}

	ch := c.group.DoChan(key.String()+"#"+fp, func() (any, error) {
		// Another flight may have committed while we waited
		if m, ok := c.Get(key, fp); ok {
			return result{m, true}, nil
		}

		log.Debug().Msg("cache miss, building")

		b, err := buildFn(ctx)
		if err != nil {
			return nil, err
		}

		if b == nil || b.Manifest == nil {
			return nil, errors.New("build returned no manifest")
		}

		if err := c.commit(key, fp, b); err != nil {
			// The build itself succeeded; the next run rebuilds
			log.Warn().Err(err).Msg("failed to record cache entry")
		}

		return result{b.Manifest, false}, nil
	})

	select {
	case <-ctx.Done():
		return nil, false, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, false, res.Err
		}

		r := res.Val.(result)

		return r.m.Clone(), r.hit, nil
	}
}

// load reads the entry for key from the index. A missing index or record
// yields (nil, nil).
func (c *Cache) load(key Key) (*Entry, error) {
	path := c.indexPath(key)
	if _, err := os.Stat(path); err != nil {
		return nil, nil
	}

	db, err := bbolt.Open(path, 0o600, &bbolt.Options{ReadOnly: true, Timeout: lockTimeout})
	if err != nil {
		return nil, codes.Wrap(codes.ErrCacheCorrupt, err, "failed to open %s", path)
	}
	defer db.Close()

	var data []byte
	err = db.View(func(tx *bbolt.Tx) error {
		b := tx.Bucket([]byte(bucketName))
		if b == nil {
			return nil
		}

		if v := b.Get(key.dbKey()); v != nil {
			data = append([]byte(nil), v...)
		}

		return nil
	})
	if err != nil {
		return nil, codes.Wrap(codes.ErrCacheCorrupt, err, "failed to read %s", path)
	}

	if data == nil {
		return nil, nil
	}

	var entry Entry
	if err := json.Unmarshal(data, &entry); err != nil {
		return nil, codes.Wrap(codes.ErrCacheCorrupt, err, "malformed entry %s in %s", key.dbKey(), path)
	}

	return &entry, nil
}

// commit records b under key in a read-write transaction
func (c *Cache) commit(key Key, fp string, b *Built) error {
	entry := Entry{
		Fingerprint:     fp,
		Manifest:        b.Manifest,
		ArtifactSize:    b.Size,
		ArtifactModTime: b.ModTime.UnixNano(),
		CreatedAt:       time.Now(),
	}

	data, err := json.Marshal(entry)
	if err != nil {
		return err
	}

	path := c.indexPath(key)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create cache directory: %w", err)
	}

	db, err := c.openRW(path)
	if err != nil {
		return err
	}
	defer db.Close()

	return db.Update(func(tx *bbolt.Tx) error {
		b, err := tx.CreateBucketIfNotExists([]byte(bucketName))
		if err != nil {
			return err
		}

		return b.Put(key.dbKey(), data)
	})
}

// openRW opens an index for writing, replacing it if it is not a valid database
func (c *Cache) openRW(path string) (*bbolt.DB, error) {
	db, err := bbolt.Open(path, 0o600, &bbolt.Options{Timeout: lockTimeout})
	if err == nil {
		return db, nil
	}

	if errors.Is(err, bbolt.ErrTimeout) {
		return nil, fmt.Errorf("failed to open cache index: %w", err)
	}

	c.log.Warn().Err(err).Str("path", path).Msg("replacing corrupt cache index")

	if err := os.Remove(path); err != nil {
		return nil, fmt.Errorf("failed to remove corrupt cache index: %w", err)
	}

	db, err = bbolt.Open(path, 0o600, &bbolt.Options{Timeout: lockTimeout})
	if err != nil {
		return nil, fmt.Errorf("failed to open cache index: %w", err)
	}

	return db, nil
}

// Clear removes all cache entries and artifacts
func (c *Cache) Clear() error {
	entries, err := os.ReadDir(c.root)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}

		return err
	}

	for _, e := range entries {
		if err := os.RemoveAll(filepath.Join(c.root, e.Name())); err != nil {
			return fmt.Errorf("failed to remove %s: %w", e.Name(), err)
		}
	}

	return nil
}

// Stats returns the number of cache entries and the total size of the cache on disk
func (c *Cache) Stats() (int, int64, error) {
	var count int
	var totalSize int64

	err := filepath.WalkDir(c.root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil // Skip errors
		}

		if d.IsDir() {
			return nil
		}

		if info, err := d.Info(); err == nil {
			totalSize += info.Size()
		}

		if d.Name() != IndexFileName {
			return nil
		}

		n, err := countEntries(path)
		if err != nil {
			c.log.Warn().Err(err).Str("path", path).Msg("skipping unreadable cache index")
			return nil
		}

		count += n

		return nil
	})
	if err != nil {
		return 0, 0, err
	}

	return count, totalSize, nil
}

func countEntries(path string) (int, error) {
	db, err := bbolt.Open(path, 0o600, &bbolt.Options{ReadOnly: true, Timeout: lockTimeout})
	if err != nil {
		return 0, err
	}
	defer db.Close()

	var n int
	err = db.View(func(tx *bbolt.Tx) error {
		if b := tx.Bucket([]byte(bucketName)); b != nil {
			n = b.Stats().KeyN
		}

		return nil
	})

	return n, err
}
