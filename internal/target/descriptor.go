// Package target translates the outer build's foreign target descriptors to
// native compiler triples using an explicit table. Nothing is inferred: every
// supported combination, including each libc/ABI flavor, is its own entry.
package target

import (
	"fmt"
	"strings"

	"github.com/Norgate-AV/ghostbind/internal/codes"
)

// Descriptor is a foreign target as named by the outer build orchestrator
type Descriptor struct {
	Arch   string
	Vendor string
	OS     string
	ABI    string
}

// ParseDescriptor splits a foreign triple of the form arch[-vendor]-os[-abi].
// Two parts are arch-os, three are arch-os-abi, four are arch-vendor-os-abi.
func ParseDescriptor(s string) (Descriptor, error) {
	parts := strings.Split(strings.TrimSpace(s), "-")
	for _, p := range parts {
		if p == "" {
			return Descriptor{}, codes.New(codes.ErrUnsupportedTarget, "malformed target %q", s)
		}
	}

	switch len(parts) {
	case 2:
		return Descriptor{Arch: parts[0], OS: parts[1]}, nil
	case 3:
		return Descriptor{Arch: parts[0], OS: parts[1], ABI: parts[2]}, nil
	case 4:
		return Descriptor{Arch: parts[0], Vendor: parts[1], OS: parts[2], ABI: parts[3]}, nil
	default:
		return Descriptor{}, codes.New(codes.ErrUnsupportedTarget, "malformed target %q", s)
	}
}

func (d Descriptor) String() string {
	parts := []string{d.Arch}
	if d.Vendor != "" {
		parts = append(parts, d.Vendor)
	}

	parts = append(parts, d.OS)
	if d.ABI != "" {
		parts = append(parts, d.ABI)
	}

	return strings.Join(parts, "-")
}

// Triple is a native compiler target triple: arch-vendor-os[-abi]
type Triple struct {
	Arch   string
	Vendor string
	OS     string
	ABI    string
}

// vendorless lists operating systems whose triples omit the vendor
// component (wasm32-wasip1, wasm32-wasip1-threads).
var vendorless = map[string]bool{
	"wasip1": true,
	"wasip2": true,
}

// ParseTriple splits a native triple into its canonical components. The
// environment/ABI component is optional (x86_64-apple-darwin has none).
func ParseTriple(s string) (Triple, error) {
	parts := strings.SplitN(strings.TrimSpace(s), "-", 4)
	for _, p := range parts {
		if p == "" {
			return Triple{}, fmt.Errorf("malformed target triple %q", s)
		}
	}

	if len(parts) >= 2 && len(parts) <= 3 && vendorless[parts[1]] {
		t := Triple{Arch: parts[0], OS: parts[1]}
		if len(parts) == 3 {
			t.ABI = parts[2]
		}

		return t, nil
	}

	if len(parts) < 3 {
		return Triple{}, fmt.Errorf("malformed target triple %q", s)
	}

	t := Triple{Arch: parts[0], Vendor: parts[1], OS: parts[2]}
	if len(parts) == 4 {
		t.ABI = parts[3]
	}

	return t, nil
}

func (t Triple) String() string {
	if t.Arch == "" {
		return ""
	}

	s := t.Arch
	if t.Vendor != "" {
		s += "-" + t.Vendor
	}

	s += "-" + t.OS
	if t.ABI != "" {
		s += "-" + t.ABI
	}

	return s
}

// IsZero reports whether t is unset (meaning "the host")
func (t Triple) IsZero() bool {
	return t == Triple{}
}
