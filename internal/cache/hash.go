package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"hash"
	"io"
	"os"

	"github.com/Norgate-AV/ghostbind/internal/build"
	"github.com/Norgate-AV/ghostbind/internal/target"
	"github.com/Norgate-AV/ghostbind/internal/utils"
)

// Inputs are everything that determines the outcome of a build
type Inputs struct {
	// Cargo.lock; empty when the crate has none yet
	Lockfile string

	// Cargo.toml of the crate
	ManifestPath string

	// Header generator config; empty when the default is synthesized
	HeaderConfig string

	// Digest of the crate sources
	SourceDigest string

	Features          []string
	NoDefaultFeatures bool
	Profile           build.Profile
	Triple            target.Triple
	Kind              build.Kind
}

// Fingerprint hashes in. Features are normalized first, so their order and
// duplicates do not matter.
func Fingerprint(in Inputs) (string, error) {
	h := sha256.New()

	field(h, "lockfile")
	if in.Lockfile == "" {
		h.Write([]byte("<none>"))
	} else if err := hashFileInto(h, in.Lockfile); err != nil {
		return "", fmt.Errorf("failed to hash lockfile: %w", err)
	}

	field(h, "cargo-toml")
	if err := hashFileInto(h, in.ManifestPath); err != nil {
		return "", fmt.Errorf("failed to hash Cargo.toml: %w", err)
	}

	field(h, "header-config")
	if in.HeaderConfig == "" {
		h.Write([]byte("<default>"))
	} else if err := hashFileInto(h, in.HeaderConfig); err != nil {
		return "", fmt.Errorf("failed to hash header config: %w", err)
	}

	field(h, "sources")
	h.Write([]byte(in.SourceDigest))

	field(h, "features")
	for _, f := range utils.NormalizeFeatures(in.Features) {
		h.Write([]byte(f))
		h.Write([]byte{0})
	}

	field(h, "options")
	fmt.Fprintf(h, "no-default-features=%t profile=%s target=%s kind=%s", in.NoDefaultFeatures, in.Profile, in.Triple, in.Kind)

	return hex.EncodeToString(h.Sum(nil)), nil
}

func hashFileInto(h hash.Hash, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	_, err = io.Copy(h, f)
	return err
}

// field separates sections so adjacent values cannot run into each other
func field(h hash.Hash, name string) {
	h.Write([]byte{0xff})
	h.Write([]byte(name))
	h.Write([]byte{0})
}
