// Package build holds the vocabulary shared by every pipeline stage: build
// profiles, artifact kinds and the normalized build request.
package build

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/Norgate-AV/ghostbind/internal/utils"
)

// Profile is a cargo build profile
type Profile string

const (
	Debug   Profile = "debug"
	Release Profile = "release"
)

// ParseProfile accepts "debug" (or cargo's "dev") and "release"
func ParseProfile(s string) (Profile, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug", "dev":
		return Debug, nil
	case "release", "":
		return Release, nil
	default:
		return "", fmt.Errorf("invalid profile: %s. Use 'debug' or 'release'", s)
	}
}

// CargoName is the name passed to `cargo build --profile`
func (p Profile) CargoName() string {
	if p == Debug {
		return "dev"
	}

	return string(p)
}

// Dir is the output directory name cargo uses for the profile
func (p Profile) Dir() string {
	return string(p)
}

// Kind is a linkable library artifact kind
type Kind string

const (
	StaticLib Kind = "staticlib"
	CDyLib    Kind = "cdylib"
)

// ParseKind accepts "staticlib" and "cdylib"; "" and "auto" yield "" (let the crate decide)
func ParseKind(s string) (Kind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "auto":
		return "", nil
	case string(StaticLib):
		return StaticLib, nil
	case string(CDyLib):
		return CDyLib, nil
	default:
		return "", fmt.Errorf("invalid artifact kind: %s. Use 'staticlib' or 'cdylib'", s)
	}
}

// Request describes a single build. Construct with NewRequest so the feature
// set is normalized before it reaches hashing or command construction.
type Request struct {
	// Absolute path to Cargo.toml
	ManifestPath string

	// Optional package to build inside a workspace
	Package string

	Profile Profile

	// Normalized: sorted and deduplicated
	Features []string

	NoDefaultFeatures bool

	// Foreign target triple as handed over by the outer build (e.g. x86_64-linux-gnu);
	// empty means the host.
	ForeignTarget string

	// Native triple override; bypasses target mapping entirely when set
	NativeOverride string

	// Optional header generator config (cbindgen.toml)
	HeaderConfig string

	// Preferred artifact kind; empty lets the crate's crate-type decide
	Kind Kind
}

// NewRequest returns a copy of r with absolute paths and normalized features
func NewRequest(r Request) (Request, error) {
	if r.ManifestPath == "" {
		r.ManifestPath = "Cargo.toml"
	}

	abs, err := filepath.Abs(r.ManifestPath)
	if err != nil {
		return Request{}, fmt.Errorf("failed to resolve manifest path: %w", err)
	}
	r.ManifestPath = abs

	if r.HeaderConfig != "" {
		abs, err := filepath.Abs(r.HeaderConfig)
		if err != nil {
			return Request{}, fmt.Errorf("failed to resolve header config path: %w", err)
		}
		r.HeaderConfig = abs
	}

	if r.Profile == "" {
		r.Profile = Release
	}

	r.Features = utils.NormalizeFeatures(r.Features)

	return r, nil
}

// FeatureHash identifies the requested feature selection, including whether
// default features are disabled.
func (r Request) FeatureHash() string {
	h := sha256.New()
	fmt.Fprintf(h, "no-default-features=%t\n", r.NoDefaultFeatures)

	for _, f := range utils.NormalizeFeatures(r.Features) {
		h.Write([]byte(f))
		h.Write([]byte{0})
	}

	return hex.EncodeToString(h.Sum(nil))[:16]
}
