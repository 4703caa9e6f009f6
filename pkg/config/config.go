// Package config loads cldot settings.
//
// Settings come from three layers, later layers winning:
//
//  1. Default()
//  2. A YAML file passed to Load (unknown keys are rejected)
//  3. CLDOT_* environment variables applied by ApplyEnv
//
// Example file:
//
//	backend: host
//	fallback_on_error: true
//	tail_policy: pad
//	log:
//	  level: debug
//	  format: json
//	metrics:
//	  enabled: true
//
// Environment variables:
//
//	CLDOT_BACKEND=opencl
//	CLDOT_TAIL_POLICY=pad
//	CLDOT_LOG_LEVEL=warn
//	CLDOT_LOG_FORMAT=json
//	CLDOT_METRICS_ENABLED=true
package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/orneryd/cldot/pkg/dot"
	"github.com/orneryd/cldot/pkg/gpu"
)

// Environment variable names
const (
	EnvBackend        = "CLDOT_BACKEND"
	EnvTailPolicy     = "CLDOT_TAIL_POLICY"
	EnvLogLevel       = "CLDOT_LOG_LEVEL"
	EnvLogFormat      = "CLDOT_LOG_FORMAT"
	EnvMetricsEnabled = "CLDOT_METRICS_ENABLED"
)

// ErrInvalidConfig is returned by Validate.
var ErrInvalidConfig = errors.New("config: invalid configuration")

// Config is the complete cldot configuration.
type Config struct {
	// Backend is auto, opencl or host.
	Backend string `yaml:"backend"`

	// FallbackOnError runs on the host device when the requested backend
	// has no usable device.
	FallbackOnError bool `yaml:"fallback_on_error"`

	// TailPolicy is reject or pad.
	TailPolicy string `yaml:"tail_policy"`

	Log     LogConfig     `yaml:"log"`
	Metrics MetricsConfig `yaml:"metrics"`
}

// LogConfig configures the slog handler.
type LogConfig struct {
	// Level is debug, info, warn or error.
	Level string `yaml:"level"`
	// Format is text or json.
	Format string `yaml:"format"`
}

// MetricsConfig toggles the Prometheus sink.
type MetricsConfig struct {
	Enabled bool `yaml:"enabled"`
}

// Default returns auto backend selection with host fallback, strict tail
// handling and text logging at info level.
func Default() Config {
	return Config{
		Backend:         string(gpu.BackendAuto),
		FallbackOnError: true,
		TailPolicy:      dot.TailReject.String(),
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// Load reads path on top of Default. An empty path returns the defaults.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}

	file, err := os.Open(path)
	if err != nil {
		return cfg, fmt.Errorf("failed to open config: %w", err)
	}
	defer file.Close()

	if err := decode(file, &cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func decode(r io.Reader, cfg *Config) error {
	decoder := yaml.NewDecoder(r)
	decoder.KnownFields(true)
	if err := decoder.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("YAML syntax error in config: %w", err)
	}
	return nil
}

// ApplyEnv overrides fields from CLDOT_* environment variables that are set
// and non-empty.
func (c *Config) ApplyEnv() {
	c.applyEnv(os.Getenv)
}

func (c *Config) applyEnv(getenv func(string) string) {
	if v := getenv(EnvBackend); v != "" {
		c.Backend = strings.ToLower(v)
	}
	if v := getenv(EnvTailPolicy); v != "" {
		c.TailPolicy = strings.ToLower(v)
	}
	if v := getenv(EnvLogLevel); v != "" {
		c.Log.Level = strings.ToLower(v)
	}
	if v := getenv(EnvLogFormat); v != "" {
		c.Log.Format = strings.ToLower(v)
	}
	if v := getenv(EnvMetricsEnabled); v != "" {
		if enabled, err := strconv.ParseBool(v); err == nil {
			c.Metrics.Enabled = enabled
		}
	}
}

// Validate checks every enumerated field.
func (c Config) Validate() error {
	var errs []error
	if _, err := gpu.ParseBackend(c.Backend); err != nil {
		errs = append(errs, err)
	}
	if _, err := dot.ParseTailPolicy(c.TailPolicy); err != nil {
		errs = append(errs, err)
	}
	if _, err := c.Log.SlogLevel(); err != nil {
		errs = append(errs, err)
	}
	switch c.Log.Format {
	case "", "text", "json":
	default:
		errs = append(errs, fmt.Errorf("unknown log format %q", c.Log.Format))
	}
	if len(errs) > 0 {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, errors.Join(errs...))
	}
	return nil
}

// GPUConfig converts the backend settings for gpu.NewAccelerator.
func (c Config) GPUConfig() (*gpu.Config, error) {
	backend, err := gpu.ParseBackend(c.Backend)
	if err != nil {
		return nil, err
	}
	cfg := gpu.DefaultConfig()
	cfg.PreferredBackend = backend
	cfg.FallbackOnError = c.FallbackOnError
	return cfg, nil
}

// DotOptions converts the pipeline settings for dot.New.
func (c Config) DotOptions() ([]dot.Option, error) {
	policy, err := dot.ParseTailPolicy(c.TailPolicy)
	if err != nil {
		return nil, err
	}
	return []dot.Option{dot.WithTailPolicy(policy)}, nil
}

// SlogLevel parses Level. The empty string is info.
func (l LogConfig) SlogLevel() (slog.Level, error) {
	switch l.Level {
	case "", "info":
		return slog.LevelInfo, nil
	case "debug":
		return slog.LevelDebug, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("unknown log level %q", l.Level)
	}
}

// NewLogger builds a logger writing to w in the configured format.
func (l LogConfig) NewLogger(w io.Writer) (*slog.Logger, error) {
	level, err := l.SlogLevel()
	if err != nil {
		return nil, err
	}
	opts := &slog.HandlerOptions{Level: level}

	var handler slog.Handler
	switch l.Format {
	case "", "text":
		handler = slog.NewTextHandler(w, opts)
	case "json":
		handler = slog.NewJSONHandler(w, opts)
	default:
		return nil, fmt.Errorf("unknown log format %q", l.Format)
	}
	return slog.New(handler), nil
}
