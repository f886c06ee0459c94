package config

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// flagKeys maps config keys to the command-line flags that override them
var flagKeys = map[string]string{
	"profile":    "profile",
	"kind":       "kind",
	"jobs":       "jobs",
	"timeout":    "timeout",
	"keep_going": "keep-going",
	"cache_dir":  "cache-dir",
	"target_dir": "target-dir",
	"log_level":  "log-level",
	"silent":     "silent",
	"verbose":    "verbose",
}

// Loader handles configuration loading from various sources. Later sources
// override earlier ones: defaults, global config, local config, GHOSTBIND_*
// environment variables, flags.
type Loader struct {
	v         *viper.Viper
	configDir func() (string, error)
}

// NewLoader creates a new configuration loader
func NewLoader() *Loader {
	return &Loader{
		v:         viper.New(),
		configDir: os.UserConfigDir,
	}
}

// LoadForBuild loads configuration for a crate. manifestPath locates the
// local config; it may be empty.
func (l *Loader) LoadForBuild(cmd *cobra.Command, manifestPath string) (*Config, error) {
	l.setupViperDefaults()

	if err := l.loadGlobalConfig(); err != nil {
		return nil, err
	}

	if err := l.loadLocalConfig(manifestPath); err != nil {
		return nil, err
	}

	l.bindEnv()
	l.bindCommandFlags(cmd)

	return Load(l.v)
}

// setupViperDefaults sets up default values for viper
func (l *Loader) setupViperDefaults() {
	l.v.SetDefault("profile", DefaultProfile)
	l.v.SetDefault("timeout", DefaultTimeout)
	l.v.SetDefault("jobs", 0)
	l.v.SetDefault("keep_going", false)
	l.v.SetDefault("log_level", DefaultLogLevel)
	l.v.SetDefault("silent", DefaultSilent)
	l.v.SetDefault("verbose", DefaultVerbose)
}

// loadGlobalConfig loads <UserConfigDir>/ghostbind/config.*
func (l *Loader) loadGlobalConfig() error {
	base, err := l.configDir()
	if err != nil || base == "" {
		return nil // no per-user config location on this system
	}

	globalDir := filepath.Join(base, "ghostbind")

	for _, ext := range ConfigExtensions {
		globalPath := filepath.Join(globalDir, "config."+ext)

		if _, err := os.Stat(globalPath); err == nil {
			return l.merge(globalPath)
		}
	}

	return nil
}

// loadLocalConfig loads the nearest .ghostbind.* above the crate
func (l *Loader) loadLocalConfig(manifestPath string) error {
	dir := "."
	if manifestPath != "" {
		dir = filepath.Dir(manifestPath)
	}

	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil // config.Load() will handle validation
	}

	if localPath := FindLocalConfig(abs); localPath != "" {
		return l.merge(localPath)
	}

	return nil
}

func (l *Loader) merge(path string) error {
	l.v.SetConfigFile(path)

	if err := l.v.MergeInConfig(); err != nil {
		return err
	}

	return l.resolvePaths(path)
}

// pathKeys hold filesystem paths. Relative values in a config file are
// relative to that file, not to the working directory.
var pathKeys = []string{"cache_dir", "target_dir", "link_search"}

// resolvePaths re-merges the relative path values of the config file at path
// as absolute ones. Env and flag values are untouched and still win.
func (l *Loader) resolvePaths(path string) error {
	file := viper.New()
	file.SetConfigFile(path)

	if err := file.ReadInConfig(); err != nil {
		return err
	}

	dir := filepath.Dir(path)
	resolved := make(map[string]any)

	for _, key := range pathKeys {
		if !file.IsSet(key) {
			continue
		}

		if key == "link_search" {
			paths := file.GetStringSlice(key)
			out := make([]string, len(paths))
			for i, p := range paths {
				out[i] = relativeTo(dir, p)
			}
			resolved[key] = out
			continue
		}

		resolved[key] = relativeTo(dir, file.GetString(key))
	}

	if len(resolved) == 0 {
		return nil
	}

	return l.v.MergeConfigMap(resolved)
}

func relativeTo(dir, path string) string {
	if path == "" || filepath.IsAbs(path) {
		return path
	}

	return filepath.Join(dir, path)
}

// bindEnv lets GHOSTBIND_<KEY> override any key, e.g. GHOSTBIND_CARGO_PATH
func (l *Loader) bindEnv() {
	l.v.SetEnvPrefix("ghostbind")
	l.v.SetEnvKeyReplacer(strings.NewReplacer("-", "_", ".", "_"))
	l.v.AutomaticEnv()
}

// bindCommandFlags binds command flags to viper
func (l *Loader) bindCommandFlags(cmd *cobra.Command) {
	if cmd == nil {
		return
	}

	for key, name := range flagKeys {
		if f := cmd.Flags().Lookup(name); f != nil {
			_ = l.v.BindPFlag(key, f)
		}
	}
}
