package dot

import (
	"context"
	"errors"
	"log/slog"
	"sort"
	"time"
)

// Timings holds per-stage wall-clock durations. Stages that did not run are
// zero.
type Timings struct {
	Context  time.Duration
	Inspect  time.Duration
	Upload   time.Duration
	Build    time.Duration
	Execute  time.Duration
	Readback time.Duration
	Total    time.Duration
}

// Diagnostics describes one DotProduct invocation. A record is emitted for
// every invocation, failed ones included; fields past the failing stage are
// left zero.
type Diagnostics struct {
	InvocationID string
	Platform     string
	DeviceName   string
	DeviceVendor string

	InputLength  int
	PaddedLength int

	Capabilities DeviceCapabilities
	Sizing       Sizing
	Partition    WorkPartition
	Timings      Timings

	Result float64
	Err    error
}

// Failed reports whether the invocation returned an error.
func (d Diagnostics) Failed() bool { return d.Err != nil }

// FailedStage returns the stage that aborted the invocation, or "" on success.
func (d Diagnostics) FailedStage() Stage {
	var se *StageError
	if errors.As(d.Err, &se) {
		return se.Stage
	}
	return ""
}

// Sink receives one Diagnostics record per invocation. Observe is called
// synchronously before DotProduct returns and must be safe for concurrent use
// when the pipeline is shared.
type Sink interface {
	Observe(Diagnostics)
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(Diagnostics)

func (f SinkFunc) Observe(d Diagnostics) { f(d) }

// MultiSink fans a record out to every sink in order.
type MultiSink []Sink

func (m MultiSink) Observe(d Diagnostics) {
	for _, s := range m {
		if s != nil {
			s.Observe(d)
		}
	}
}

type discardSink struct{}

func (discardSink) Observe(Diagnostics) {}

// LogSink writes each record as a single structured log entry: Info for
// successful invocations, Error for failed ones.
type LogSink struct {
	logger *slog.Logger
}

// NewLogSink returns a sink logging to logger, or slog.Default when nil.
func NewLogSink(logger *slog.Logger) *LogSink {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogSink{logger: logger}
}

func (s *LogSink) Observe(d Diagnostics) {
	attrs := []slog.Attr{
		slog.String("invocation_id", d.InvocationID),
		slog.String("platform", d.Platform),
		slog.String("device", d.DeviceName),
		slog.String("vendor", d.DeviceVendor),
		slog.Int("n", d.InputLength),
		slog.Int("padded_n", d.PaddedLength),
		capabilityGroup(d.Capabilities),
		slog.Group("sizing",
			slog.Int("items_per_unit", d.Sizing.ItemsPerUnit),
			slog.Int("local_mem_budget", d.Sizing.LocalMemBudget),
			slog.Int("local_array_size", d.Sizing.LocalArraySize),
		),
		slog.Group("partition",
			slog.Int("work_group_count", d.Partition.WorkGroupCount),
			slog.Int("work_group_size", d.Partition.WorkGroupSize),
			slog.Int("private_block_size", d.Partition.PrivateBlockSize),
		),
		slog.Group("timings",
			slog.Duration("context", d.Timings.Context),
			slog.Duration("inspect", d.Timings.Inspect),
			slog.Duration("upload", d.Timings.Upload),
			slog.Duration("build", d.Timings.Build),
			slog.Duration("execute", d.Timings.Execute),
			slog.Duration("readback", d.Timings.Readback),
			slog.Duration("total", d.Timings.Total),
		),
	}

	if d.Err != nil {
		attrs = append(attrs,
			slog.String("stage", string(d.FailedStage())),
			slog.String("error", d.Err.Error()),
		)
		var se *StageError
		if errors.As(d.Err, &se) {
			if log := se.BuildLog(); log != "" {
				attrs = append(attrs, slog.String("build_log", log))
			}
		}
		s.logger.LogAttrs(context.Background(), slog.LevelError, "dot product failed", attrs...)
		return
	}

	attrs = append(attrs, slog.Float64("result", d.Result))
	s.logger.LogAttrs(context.Background(), slog.LevelInfo, "dot product", attrs...)
}

func capabilityGroup(c DeviceCapabilities) slog.Attr {
	args := []any{
		slog.Uint64("max_work_item_dims", uint64(c.MaxWorkItemDims)),
		slog.Int("max_work_group_size", c.MaxWorkGroupSize),
		slog.Uint64("compute_units", uint64(c.ComputeUnits)),
		slog.Uint64("local_mem_bytes", uint64(c.LocalMemBytes)),
		slog.Int("preferred_work_group_multiple", c.PreferredWorkGroupMultiple),
		slog.Any("max_work_item_sizes", c.MaxWorkItemSizes),
	}
	if len(c.Defaulted) > 0 {
		names := make([]string, 0, len(c.Defaulted))
		for name := range c.Defaulted {
			names = append(names, string(name))
		}
		sort.Strings(names)
		args = append(args, slog.Any("defaulted", names))
	}
	return slog.Group("capabilities", args...)
}
