package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Norgate-AV/ghostbind/internal/build"
)

func newTestLoader(configHome string) *Loader {
	l := NewLoader()
	l.configDir = func() (string, error) { return configHome, nil }
	return l
}

func newBuildCommand() *cobra.Command {
	cmd := &cobra.Command{}
	cmd.Flags().String("profile", "", "Build profile")
	cmd.Flags().String("kind", "", "Artifact kind")
	cmd.Flags().Int("jobs", 0, "Parallel builds")
	cmd.Flags().Duration("timeout", 0, "Timeout per target")
	cmd.Flags().Bool("keep-going", false, "Keep going")
	cmd.Flags().String("cache-dir", "", "Cache directory")
	cmd.Flags().BoolP("verbose", "v", false, "Verbose output")
	return cmd
}

func TestNewLoader(t *testing.T) {
	loader := NewLoader()
	assert.NotNil(t, loader)
	assert.NotNil(t, loader.v)
}

func TestLoader_SetupViperDefaults(t *testing.T) {
	loader := NewLoader()
	loader.setupViperDefaults()

	v := loader.v
	assert.Equal(t, "release", v.GetString("profile"))
	assert.Equal(t, 30*time.Minute, v.GetDuration("timeout"))
	assert.Equal(t, "info", v.GetString("log_level"))
	assert.Equal(t, false, v.GetBool("verbose"))
}

func TestLoader_LoadGlobalConfig(t *testing.T) {
	configHome := t.TempDir()
	globalDir := filepath.Join(configHome, "ghostbind")
	require.NoError(t, os.Mkdir(globalDir, 0o755))

	t.Run("loads yaml config", func(t *testing.T) {
		configPath := filepath.Join(globalDir, "config.yml")
		require.NoError(t, os.WriteFile(configPath, []byte("cargo_path: /opt/cargo\nprofile: debug\nverbose: true\n"), 0o644))
		defer os.Remove(configPath)

		loader := newTestLoader(configHome)
		require.NoError(t, loader.loadGlobalConfig())

		v := loader.v
		assert.Equal(t, "/opt/cargo", v.GetString("cargo_path"))
		assert.Equal(t, "debug", v.GetString("profile"))
		assert.Equal(t, true, v.GetBool("verbose"))
	})

	t.Run("loads toml config", func(t *testing.T) {
		configPath := filepath.Join(globalDir, "config.toml")
		require.NoError(t, os.WriteFile(configPath, []byte("cbindgen_path = \"/opt/cbindgen\"\njobs = 3\n"), 0o644))
		defer os.Remove(configPath)

		loader := newTestLoader(configHome)
		require.NoError(t, loader.loadGlobalConfig())

		assert.Equal(t, "/opt/cbindgen", loader.v.GetString("cbindgen_path"))
		assert.Equal(t, 3, loader.v.GetInt("jobs"))
	})

	t.Run("malformed config is an error", func(t *testing.T) {
		configPath := filepath.Join(globalDir, "config.json")
		require.NoError(t, os.WriteFile(configPath, []byte("{not json"), 0o644))
		defer os.Remove(configPath)

		loader := newTestLoader(configHome)
		assert.Error(t, loader.loadGlobalConfig())
	})

	t.Run("handles missing config dir gracefully", func(t *testing.T) {
		loader := NewLoader()
		loader.configDir = func() (string, error) { return "", os.ErrNotExist }

		assert.NotPanics(t, func() {
			assert.NoError(t, loader.loadGlobalConfig())
		})
	})
}

func TestLoader_LoadLocalConfig(t *testing.T) {
	crateDir := t.TempDir()
	configPath := filepath.Join(crateDir, ".ghostbind.yml")
	require.NoError(t, os.WriteFile(configPath, []byte("kind: cdylib\nlink_libs: [ssl]\n"), 0o644))

	loader := NewLoader()
	require.NoError(t, loader.loadLocalConfig(filepath.Join(crateDir, "Cargo.toml")))

	assert.Equal(t, "cdylib", loader.v.GetString("kind"))
	assert.Equal(t, []string{"ssl"}, loader.v.GetStringSlice("link_libs"))
}

func TestLoader_RelativePathsFollowTheConfigFile(t *testing.T) {
	crateDir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(crateDir, ".ghostbind.yaml"), []byte(`cache_dir: build/cache
target_dir: ../target
link_search: [vendor/lib, /opt/lib]
`), 0o644))

	// run from somewhere else entirely
	t.Chdir(t.TempDir())

	cfg, err := newTestLoader(t.TempDir()).LoadForBuild(newBuildCommand(), filepath.Join(crateDir, "Cargo.toml"))
	require.NoError(t, err)

	assert.Equal(t, filepath.Join(crateDir, "build", "cache"), cfg.CacheDir)
	assert.Equal(t, filepath.Join(filepath.Dir(crateDir), "target"), cfg.TargetDir)
	assert.Equal(t, []string{filepath.Join(crateDir, "vendor", "lib"), "/opt/lib"}, cfg.LinkSearch)

	// a flag still wins
	cmd := newBuildCommand()
	require.NoError(t, cmd.Flags().Set("cache-dir", "/flag/cache"))

	cfg, err = newTestLoader(t.TempDir()).LoadForBuild(cmd, filepath.Join(crateDir, "Cargo.toml"))
	require.NoError(t, err)
	assert.Equal(t, "/flag/cache", cfg.CacheDir)
}

func TestLoader_BindCommandFlags(t *testing.T) {
	cmd := newBuildCommand()
	require.NoError(t, cmd.Flags().Set("profile", "debug"))
	require.NoError(t, cmd.Flags().Set("keep-going", "true"))
	require.NoError(t, cmd.Flags().Set("jobs", "2"))

	loader := NewLoader()
	loader.bindCommandFlags(cmd)

	v := loader.v
	assert.Equal(t, "debug", v.GetString("profile"))
	assert.Equal(t, true, v.GetBool("keep_going"))
	assert.Equal(t, 2, v.GetInt("jobs"))
}

func TestLoader_LoadForBuild_Integration(t *testing.T) {
	t.Run("flags override env override local override global", func(t *testing.T) {
		configHome := t.TempDir()
		require.NoError(t, os.Mkdir(filepath.Join(configHome, "ghostbind"), 0o755))
		require.NoError(t, os.WriteFile(filepath.Join(configHome, "ghostbind", "config.yml"), []byte(`cargo_path: /global/cargo
cbindgen_path: /global/cbindgen
profile: debug
jobs: 8
`), 0o644))

		crateDir := t.TempDir()
		require.NoError(t, os.WriteFile(filepath.Join(crateDir, ".ghostbind.yaml"), []byte(`cbindgen_path: /local/cbindgen
jobs: 2
`), 0o644))

		t.Setenv("GHOSTBIND_JOBS", "6")
		t.Setenv("GHOSTBIND_RUSTC_PATH", "/env/rustc")

		cmd := newBuildCommand()
		require.NoError(t, cmd.Flags().Set("profile", "release"))

		cfg, err := newTestLoader(configHome).LoadForBuild(cmd, filepath.Join(crateDir, "Cargo.toml"))
		require.NoError(t, err)

		// Global config is the base
		assert.Equal(t, "/global/cargo", cfg.CargoPath)
		// Local config overrides global
		assert.Equal(t, "/local/cbindgen", cfg.CbindgenPath)
		// Environment overrides config files
		assert.Equal(t, 6, cfg.Jobs)
		assert.Equal(t, "/env/rustc", cfg.RustcPath)
		// Flag value should win
		assert.Equal(t, build.Release, cfg.Profile)
		// Defaults fill the rest
		assert.Equal(t, 30*time.Minute, cfg.Timeout)
	})

	t.Run("invalid flag value", func(t *testing.T) {
		cmd := newBuildCommand()
		require.NoError(t, cmd.Flags().Set("kind", "rlib"))

		_, err := newTestLoader(t.TempDir()).LoadForBuild(cmd, filepath.Join(t.TempDir(), "Cargo.toml"))
		assert.Error(t, err)
	})
}
