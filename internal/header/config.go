package header

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
)

// ConfigFileName is the name cbindgen looks for in a crate directory
const ConfigFileName = "cbindgen.toml"

// Config is the subset of cbindgen.toml written for crates that ship none
type Config struct {
	Language       string   `toml:"language"`
	IncludeGuard   string   `toml:"include_guard"`
	AutogenWarning string   `toml:"autogen_warning"`
	CppCompat      bool     `toml:"cpp_compat"`
	NoIncludes     bool     `toml:"no_includes"`
	SysIncludes    []string `toml:"sys_includes"`
}

// DefaultConfig returns the config used when a crate provides none
func DefaultConfig(libName string) Config {
	return Config{
		Language:       "C",
		IncludeGuard:   strings.ToUpper(libName) + "_H",
		AutogenWarning: "/* Warning: this file is autogenerated by cbindgen. Do not modify it manually. */",
		CppCompat:      true,
		NoIncludes:     true,
		SysIncludes:    []string{"stdarg.h", "stdbool.h", "stdint.h", "stdlib.h"},
	}
}

// Encode renders c as TOML
func (c Config) Encode() ([]byte, error) {
	var buf bytes.Buffer
	if err := toml.NewEncoder(&buf).Encode(c); err != nil {
		return nil, fmt.Errorf("failed to encode cbindgen config: %w", err)
	}

	return buf.Bytes(), nil
}

// writeConfig writes c to path unless identical content is already there
func writeConfig(path string, c Config) error {
	data, err := c.Encode()
	if err != nil {
		return err
	}

	if existing, err := os.ReadFile(path); err == nil && bytes.Equal(existing, data) {
		return nil
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	return os.WriteFile(path, data, 0o644)
}

// WriteDefaultConfig writes a default cbindgen.toml into crateDir unless the
// crate already has one. It returns the config path and whether it was created.
func WriteDefaultConfig(crateDir, libName string) (string, bool, error) {
	path := filepath.Join(crateDir, ConfigFileName)
	if _, err := os.Stat(path); err == nil {
		return path, false, nil
	}

	if err := writeConfig(path, DefaultConfig(libName)); err != nil {
		return "", false, err
	}

	return path, true, nil
}
