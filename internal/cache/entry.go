package cache

import (
	"fmt"
	"os"
	"time"

	"github.com/Norgate-AV/ghostbind/internal/build"
	"github.com/Norgate-AV/ghostbind/internal/manifest"
	"github.com/Norgate-AV/ghostbind/internal/target"
)

// Key identifies one cacheable build
type Key struct {
	Crate       string
	Triple      target.Triple
	Profile     build.Profile
	Kind        build.Kind
	FeatureHash string
}

// String is unique across the whole cache root
func (k Key) String() string {
	return fmt.Sprintf("%s/%s/%s/%s@%s", k.Triple, k.Profile, k.Crate, k.Kind, k.FeatureHash)
}

// dbKey is the record key inside the per-triple/profile index
func (k Key) dbKey() []byte {
	return []byte(k.Crate + "/" + string(k.Kind) + "@" + k.FeatureHash)
}

// Entry is a cached build result
type Entry struct {
	// Fingerprint over every input that influences the build
	Fingerprint string `json:"fingerprint"`

	Manifest *manifest.Manifest `json:"manifest"`

	// Size and mtime of the staged artifact when the entry was committed.
	// Any external change to the artifact invalidates the entry.
	ArtifactSize    int64 `json:"artifact_size"`
	ArtifactModTime int64 `json:"artifact_mtime"`

	CreatedAt time.Time `json:"created_at"`
}

// valid reports whether e can be reused for fingerprint fp
func (e *Entry) valid(fp string) bool {
	if e.Fingerprint != fp || e.Manifest == nil {
		return false
	}

	info, err := os.Stat(e.Manifest.Artifact)
	if err != nil || info.Size() != e.ArtifactSize || info.ModTime().UnixNano() != e.ArtifactModTime {
		return false
	}

	if e.Manifest.ImportLib != "" {
		if _, err := os.Stat(e.Manifest.ImportLib); err != nil {
			return false
		}
	}

	for _, h := range e.Manifest.Headers {
		if _, err := os.Stat(h); err != nil {
			return false
		}
	}

	return true
}
