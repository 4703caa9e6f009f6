package main

import (
	"io"
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/orneryd/cldot/pkg/compute"
	"github.com/orneryd/cldot/pkg/config"
	"github.com/orneryd/cldot/pkg/dot"
	"github.com/orneryd/cldot/pkg/gpu"
	"github.com/orneryd/cldot/pkg/metrics"
)

// Set with -ldflags "-X main.version=...".
var version = "dev"

// app is the state shared by every subcommand once flags are parsed.
type app struct {
	stdout io.Writer
	stderr io.Writer

	configPath string
	backend    string
	logLevel   string
	logFormat  string
	metrics    bool
	noFallback bool

	cfg      config.Config
	logger   *slog.Logger
	registry *prometheus.Registry
	sink     *metrics.Sink
}

func newRootCmd(stdout, stderr io.Writer) *cobra.Command {
	a := &app{stdout: stdout, stderr: stderr}

	root := &cobra.Command{
		Use:           "cldot",
		Short:         "Device-offloaded float64 dot products",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.setup(cmd)
		},
	}
	root.SetOut(stdout)
	root.SetErr(stderr)

	flags := root.PersistentFlags()
	flags.StringVar(&a.configPath, "config", "", "YAML configuration file")
	flags.StringVar(&a.backend, "backend", "", "compute backend: auto, opencl or host")
	flags.StringVar(&a.logLevel, "log-level", "", "log level: debug, info, warn or error")
	flags.StringVar(&a.logFormat, "log-format", "", "log format: text or json")
	flags.BoolVar(&a.metrics, "metrics", false, "print Prometheus metrics after the command")
	flags.BoolVar(&a.noFallback, "no-fallback", false, "fail instead of falling back to the host device")

	root.AddCommand(
		newDotCmd(a),
		newCapsCmd(a),
		newDevicesCmd(a),
		newVersionCmd(a),
	)

	// Metrics are written after every command, failed ones included, so the
	// per-stage failure series are visible. Post-run hooks do not run on error.
	for _, sub := range root.Commands() {
		if run := sub.RunE; run != nil {
			sub.RunE = func(cmd *cobra.Command, args []string) error {
				err := run(cmd, args)
				if werr := a.writeMetrics(); err == nil {
					err = werr
				}
				return err
			}
		}
	}
	return root
}

// writeMetrics prints the gathered metrics when --metrics is enabled.
func (a *app) writeMetrics() error {
	if a.registry == nil {
		return nil
	}
	return metrics.WriteText(a.stdout, a.registry)
}

// setup resolves configuration in order defaults, file, environment, flags.
func (a *app) setup(cmd *cobra.Command) error {
	cfg, err := config.Load(a.configPath)
	if err != nil {
		return err
	}
	cfg.ApplyEnv()

	flags := cmd.Flags()
	if flags.Changed("backend") {
		cfg.Backend = a.backend
	}
	if flags.Changed("log-level") {
		cfg.Log.Level = a.logLevel
	}
	if flags.Changed("log-format") {
		cfg.Log.Format = a.logFormat
	}
	if flags.Changed("metrics") {
		cfg.Metrics.Enabled = a.metrics
	}
	if a.noFallback {
		cfg.FallbackOnError = false
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	logger, err := cfg.Log.NewLogger(a.stderr)
	if err != nil {
		return err
	}

	a.cfg = cfg
	a.logger = logger
	if cfg.Metrics.Enabled {
		a.registry = prometheus.NewRegistry()
		a.sink = metrics.New(a.registry)
	}
	return nil
}

// accelerator opens the configured backend.
func (a *app) accelerator() (*gpu.Accelerator, error) {
	gcfg, err := a.cfg.GPUConfig()
	if err != nil {
		return nil, err
	}
	accel, err := gpu.NewAccelerator(gcfg)
	if err != nil {
		return nil, err
	}
	a.logger.Debug("backend selected",
		slog.String("backend", string(accel.Backend())),
		slog.String("platform", accel.PlatformName()),
		slog.String("device", accel.DeviceName()),
	)
	return accel, nil
}

// pipeline builds a dot-product pipeline that logs and, when enabled,
// records metrics for every invocation.
func (a *app) pipeline(platform compute.Platform, extra ...dot.Option) (*dot.Pipeline, error) {
	opts, err := a.cfg.DotOptions()
	if err != nil {
		return nil, err
	}
	sinks := dot.MultiSink{dot.NewLogSink(a.logger)}
	if a.sink != nil {
		sinks = append(sinks, a.sink)
	}
	opts = append(opts, dot.WithSink(sinks))
	opts = append(opts, extra...)
	return dot.New(platform, opts...), nil
}
