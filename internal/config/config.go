package config

import (
	"fmt"
	"path/filepath"
	"time"

	"github.com/spf13/viper"

	"github.com/Norgate-AV/ghostbind/internal/build"
	"github.com/Norgate-AV/ghostbind/internal/logging"
)

// Default configuration values
const (
	DefaultProfile  = "release"
	DefaultTimeout  = 30 * time.Minute
	DefaultLogLevel = "info"
	DefaultSilent   = false
	DefaultVerbose  = false
)

// Holds the configuration options for ghostbind
type Config struct {
	// Tool executables; empty means look up in PATH
	CargoPath    string
	RustcPath    string
	CbindgenPath string
	CCPath       string

	// Cache root; empty means .ghostbind/cache inside the crate directory
	CacheDir string

	// Cargo output root override
	TargetDir string

	Profile build.Profile

	// Preferred artifact kind; empty lets the crate decide
	Kind build.Kind

	// Maximum concurrent target builds; 0 means one per CPU
	Jobs int

	// Deadline for a single target build
	Timeout time.Duration

	// Keep building the remaining targets after a failure
	KeepGoing bool

	// Extra libraries and search paths for every manifest
	LinkLibs   []string
	LinkSearch []string

	LogLevel string

	// Suppress compiler output
	Silent bool

	// Enable verbose output
	Verbose bool
}

// Load builds a validated Config from v
func Load(v *viper.Viper) (*Config, error) {
	profile, err := build.ParseProfile(v.GetString("profile"))
	if err != nil {
		return nil, err
	}

	kind, err := build.ParseKind(v.GetString("kind"))
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		CargoPath:    v.GetString("cargo_path"),
		RustcPath:    v.GetString("rustc_path"),
		CbindgenPath: v.GetString("cbindgen_path"),
		CCPath:       v.GetString("cc_path"),
		CacheDir:     v.GetString("cache_dir"),
		TargetDir:    v.GetString("target_dir"),
		Profile:      profile,
		Kind:         kind,
		Jobs:         v.GetInt("jobs"),
		Timeout:      v.GetDuration("timeout"),
		KeepGoing:    v.GetBool("keep_going"),
		LinkLibs:     v.GetStringSlice("link_libs"),
		LinkSearch:   v.GetStringSlice("link_search"),
		LogLevel:     v.GetString("log_level"),
		Silent:       v.GetBool("silent"),
		Verbose:      v.GetBool("verbose"),
	}

	// Validate required fields
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) Validate() error {
	if c.Jobs < 0 {
		return fmt.Errorf("invalid jobs: %d. Must be zero or positive", c.Jobs)
	}

	if c.Timeout < 0 {
		return fmt.Errorf("invalid timeout: %s", c.Timeout)
	}

	if !logging.ValidLevel(c.LogLevel) {
		return fmt.Errorf("invalid log level: %s", c.LogLevel)
	}

	// Resolve directories
	for _, dir := range []*string{&c.CacheDir, &c.TargetDir} {
		if *dir == "" {
			continue
		}

		abs, err := filepath.Abs(*dir)
		if err != nil {
			return fmt.Errorf("invalid directory %s: %v", *dir, err)
		}

		*dir = abs
	}

	for i, path := range c.LinkSearch {
		if path != "" {
			abs, err := filepath.Abs(path)
			if err != nil {
				return fmt.Errorf("invalid link search path: %v", err)
			}

			c.LinkSearch[i] = abs
		}
	}

	return nil
}
