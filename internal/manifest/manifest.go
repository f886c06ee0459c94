// Package manifest assembles and persists the JSON document the downstream
// linker consumes verbatim.
package manifest

import (
	"encoding/json"
	"fmt"
	"os"
	"slices"

	"github.com/Norgate-AV/ghostbind/internal/build"
)

// Manifest describes one built library. Field order is the JSON key order.
type Manifest struct {
	CrateName   string     `json:"crate_name"`
	Kind        build.Kind `json:"kind"`
	Artifact    string     `json:"artifact"`
	ImportLib   string     `json:"import_lib,omitempty"`
	Headers     []string   `json:"headers"`
	RustcTarget string     `json:"rustc_target"`
	LinkLibs    []string   `json:"link_libs"`
	LinkSearch  []string   `json:"link_search"`
}

// Clone returns a deep copy of m
func (m *Manifest) Clone() *Manifest {
	if m == nil {
		return nil
	}

	c := *m
	c.Headers = slices.Clone(m.Headers)
	c.LinkLibs = slices.Clone(m.LinkLibs)
	c.LinkSearch = slices.Clone(m.LinkSearch)

	return &c
}

// MarshalJSON renders nil lists as [] so consumers never see null
func (m Manifest) MarshalJSON() ([]byte, error) {
	type plain Manifest

	p := plain(m)
	p.Headers = nonNil(p.Headers)
	p.LinkLibs = nonNil(p.LinkLibs)
	p.LinkSearch = nonNil(p.LinkSearch)

	return json.Marshal(p)
}

// Encode renders m as indented JSON with a trailing newline
func (m *Manifest) Encode() ([]byte, error) {
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return nil, err
	}

	return append(data, '\n'), nil
}

// Validate checks that the artifact and every header exist
func (m *Manifest) Validate() error {
	if m.CrateName == "" {
		return fmt.Errorf("manifest has no crate name")
	}

	if m.Kind != build.StaticLib && m.Kind != build.CDyLib {
		return fmt.Errorf("manifest has invalid kind %q", m.Kind)
	}

	if _, err := os.Stat(m.Artifact); err != nil {
		return fmt.Errorf("artifact %s: %w", m.Artifact, err)
	}

	if m.ImportLib != "" {
		if _, err := os.Stat(m.ImportLib); err != nil {
			return fmt.Errorf("import library %s: %w", m.ImportLib, err)
		}
	}

	for _, h := range m.Headers {
		if _, err := os.Stat(h); err != nil {
			return fmt.Errorf("header %s: %w", h, err)
		}
	}

	return nil
}

// Read loads a manifest from path
func Read(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var m Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("failed to parse manifest %s: %w", path, err)
	}

	return &m, nil
}

// FileName is the manifest file name for a crate
func FileName(crateName string) string {
	return crateName + "-manifest.json"
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}

	return s
}
