package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/fxnlabs/kernel-cache/fixtures"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func TestLoadConfig(t *testing.T) {
	t.Run("valid config", func(t *testing.T) {
		config, err := LoadConfig("../../fixtures/tests/config/valid_config.yaml")
		require.NoError(t, err)
		require.NotNil(t, config)

		assert.Equal(t, "debug", config.Logger.Verbosity)
		assert.Equal(t, "/tmp/kcache-test", config.Cache.BaseDir)
		assert.Equal(t, "3.1.0.0", config.Cache.Version)
		assert.Equal(t, BackendDB, config.Cache.Backend)
		assert.True(t, config.Cache.DisableSystemDB)
		assert.False(t, config.Cache.DisableUserDB)
		assert.True(t, config.Solvers.Deterministic)
		assert.Equal(t, map[string]bool{"GROUPNORM_FWD": false}, config.Solvers.Overrides)
		assert.True(t, config.Tuning.Enabled)
		assert.Equal(t, 16, config.Tuning.MaxIterations)
		assert.Equal(t, 5, config.Tuning.Repeats)
		assert.Equal(t, "gfx908", config.Device.Name)
		assert.Equal(t, 120, config.Device.ComputeUnits)
	})

	t.Run("unset fields keep defaults", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "config.yaml")
		require.NoError(t, os.WriteFile(path, []byte("logger:\n  verbosity: warn\n"), 0o600))

		config, err := LoadConfig(path)
		require.NoError(t, err)
		assert.Equal(t, "warn", config.Logger.Verbosity)
		assert.Equal(t, DefaultVersion, config.Cache.Version)
		assert.Equal(t, BackendFile, config.Cache.Backend)
		assert.Equal(t, 3, config.Tuning.Repeats)
	})

	t.Run("non-existent file", func(t *testing.T) {
		_, err := LoadConfig("non-existent-file.yaml")
		assert.Error(t, err)
	})

	t.Run("invalid yaml", func(t *testing.T) {
		dir, err := os.Getwd()
		require.NoError(t, err)

		configPath := filepath.Join(dir, "..", "..", "fixtures", "tests", "invalid_config", "config.yaml")
		_, err = LoadConfig(configPath)
		assert.Error(t, err)
	})

	t.Run("embedded template parses", func(t *testing.T) {
		var cfg Config
		require.NoError(t, yaml.Unmarshal(fixtures.ConfigTemplate, &cfg))
		assert.Equal(t, BackendFile, cfg.Cache.Backend)
	})
}

func TestApplyEnv(t *testing.T) {
	t.Run("recognized toggles", func(t *testing.T) {
		cfg := Default()
		err := cfg.ApplyEnv([]string{
			"HOME=/home/user",
			EnvDisableCache + "=1",
			EnvCustomCacheDir + "=~/kc",
			EnvDeterministic + "=yes",
			EnvTuningIterations + "=7",
			EnvFindEnforce + "=SEARCH",
			EnvLogLevel + "=debug",
			"KCACHE_DEBUG_GROUPNORM_FWD=0",
			"KCACHE_DEBUG_CONV_IMPLICIT_GEMM_3D_GROUP_FWD=enable",
		})
		require.NoError(t, err)

		assert.True(t, cfg.Cache.Disable)
		assert.Equal(t, "~/kc", cfg.Cache.CustomDir)
		assert.True(t, cfg.Solvers.Deterministic)
		assert.Equal(t, 7, cfg.Tuning.MaxIterations)
		assert.True(t, cfg.Tuning.Enabled)
		assert.Equal(t, "debug", cfg.Logger.Verbosity)
		assert.Equal(t, map[string]bool{
			"GROUPNORM_FWD":                   false,
			"CONV_IMPLICIT_GEMM_3D_GROUP_FWD": true,
		}, cfg.Solvers.Overrides)
	})

	t.Run("invalid boolean", func(t *testing.T) {
		cfg := Default()
		err := cfg.ApplyEnv([]string{EnvDisableCache + "=maybe"})
		assert.Error(t, err)
	})

	t.Run("invalid iteration cap", func(t *testing.T) {
		cfg := Default()
		err := cfg.ApplyEnv([]string{EnvTuningIterations + "=-1"})
		assert.Error(t, err)
	})
}

func TestParseBool(t *testing.T) {
	for _, v := range []string{"1", "true", "ON", " Enable "} {
		b, err := ParseBool(v)
		require.NoError(t, err, v)
		assert.True(t, b, v)
	}
	for _, v := range []string{"0", "False", "off", "disabled"} {
		b, err := ParseBool(v)
		require.NoError(t, err, v)
		assert.False(t, b, v)
	}
}
