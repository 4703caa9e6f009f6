package config

import (
	"bytes"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/orneryd/cldot/pkg/gpu"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "cldot.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestDefault(t *testing.T) {
	cfg := Default()
	assert.Equal(t, "auto", cfg.Backend)
	assert.True(t, cfg.FallbackOnError)
	assert.Equal(t, "reject", cfg.TailPolicy)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "text", cfg.Log.Format)
	assert.False(t, cfg.Metrics.Enabled)
	assert.NoError(t, cfg.Validate())
}

func TestLoad(t *testing.T) {
	t.Run("empty path", func(t *testing.T) {
		cfg, err := Load("")
		require.NoError(t, err)
		assert.Equal(t, Default(), cfg)
	})

	t.Run("overrides defaults", func(t *testing.T) {
		path := writeConfig(t, `
backend: host
tail_policy: pad
log:
  format: json
metrics:
  enabled: true
`)
		cfg, err := Load(path)
		require.NoError(t, err)
		assert.Equal(t, "host", cfg.Backend)
		assert.Equal(t, "pad", cfg.TailPolicy)
		assert.Equal(t, "json", cfg.Log.Format)
		assert.Equal(t, "info", cfg.Log.Level, "unset keys keep their default")
		assert.True(t, cfg.FallbackOnError)
		assert.True(t, cfg.Metrics.Enabled)
	})

	t.Run("empty file", func(t *testing.T) {
		cfg, err := Load(writeConfig(t, ""))
		require.NoError(t, err)
		assert.Equal(t, Default(), cfg)
	})

	t.Run("unknown key", func(t *testing.T) {
		_, err := Load(writeConfig(t, "backnd: host\n"))
		assert.Error(t, err)
	})

	t.Run("missing file", func(t *testing.T) {
		_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
		assert.Error(t, err)
	})
}

func TestApplyEnv(t *testing.T) {
	env := map[string]string{
		EnvBackend:        "OpenCL",
		EnvTailPolicy:     "pad",
		EnvLogLevel:       "DEBUG",
		EnvMetricsEnabled: "true",
	}
	cfg := Default()
	cfg.applyEnv(func(k string) string { return env[k] })

	assert.Equal(t, "opencl", cfg.Backend)
	assert.Equal(t, "pad", cfg.TailPolicy)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "text", cfg.Log.Format)
	assert.True(t, cfg.Metrics.Enabled)

	t.Run("process environment", func(t *testing.T) {
		t.Setenv(EnvLogFormat, "json")
		t.Setenv(EnvMetricsEnabled, "not-a-bool")
		cfg := Default()
		cfg.ApplyEnv()
		assert.Equal(t, "json", cfg.Log.Format)
		assert.False(t, cfg.Metrics.Enabled)
	})
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"backend", func(c *Config) { c.Backend = "cuda" }},
		{"tail policy", func(c *Config) { c.TailPolicy = "truncate" }},
		{"log level", func(c *Config) { c.Log.Level = "verbose" }},
		{"log format", func(c *Config) { c.Log.Format = "xml" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(&cfg)
			assert.ErrorIs(t, cfg.Validate(), ErrInvalidConfig)
		})
	}
}

func TestConversions(t *testing.T) {
	cfg := Default()
	cfg.Backend = "host"
	cfg.FallbackOnError = false

	gcfg, err := cfg.GPUConfig()
	require.NoError(t, err)
	assert.Equal(t, gpu.BackendHost, gcfg.PreferredBackend)
	assert.False(t, gcfg.FallbackOnError)

	opts, err := cfg.DotOptions()
	require.NoError(t, err)
	assert.Len(t, opts, 1)

	cfg.Backend = "vulkan"
	_, err = cfg.GPUConfig()
	assert.ErrorIs(t, err, gpu.ErrUnknownBackend)
}

func TestNewLogger(t *testing.T) {
	t.Run("json", func(t *testing.T) {
		var buf bytes.Buffer
		logger, err := LogConfig{Level: "warn", Format: "json"}.NewLogger(&buf)
		require.NoError(t, err)

		logger.Info("dropped")
		logger.Warn("kept")
		out := buf.String()
		assert.NotContains(t, out, "dropped")
		assert.True(t, strings.HasPrefix(out, "{"))
		assert.Contains(t, out, `"msg":"kept"`)
	})

	t.Run("text", func(t *testing.T) {
		var buf bytes.Buffer
		logger, err := LogConfig{}.NewLogger(&buf)
		require.NoError(t, err)
		logger.Info("hello")
		assert.Contains(t, buf.String(), "msg=hello")
	})

	t.Run("levels", func(t *testing.T) {
		for in, want := range map[string]slog.Level{
			"debug": slog.LevelDebug, "info": slog.LevelInfo, "warning": slog.LevelWarn, "error": slog.LevelError,
		} {
			got, err := LogConfig{Level: in}.SlogLevel()
			require.NoError(t, err)
			assert.Equal(t, want, got)
		}
	})
}
