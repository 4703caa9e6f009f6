// Package metrics exports dot-product diagnostics as Prometheus metrics.
package metrics

import (
	"io"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/common/expfmt"

	"github.com/orneryd/cldot/pkg/dot"
)

// Outcome label value for successful invocations. Failed invocations are
// labelled with the stage that failed.
const OutcomeOK = "ok"

// Sink holds the cldot collectors and implements dot.Sink.
type Sink struct {
	// Invocations counts DotProduct calls by platform and outcome.
	Invocations *prometheus.CounterVec

	// StageDuration measures each pipeline stage that ran.
	StageDuration *prometheus.HistogramVec

	// WorkGroups is the work-group count of the last successful launch.
	WorkGroups prometheus.Gauge

	// InputElements measures the padded input length.
	InputElements prometheus.Histogram

	// CapabilityDefaults counts capability queries that fell back to their
	// default value.
	CapabilityDefaults *prometheus.CounterVec
}

// New creates the collectors and registers them with reg.
func New(reg prometheus.Registerer) *Sink {
	factory := promauto.With(reg)
	return &Sink{
		Invocations: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "cldot_invocations_total",
				Help: "Total number of dot product invocations",
			},
			[]string{"platform", "outcome"},
		),
		StageDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name: "cldot_stage_duration_seconds",
				Help: "Duration of dot product pipeline stages in seconds",
				// From a cached host launch to a cold OpenCL compile.
				Buckets: []float64{0.00001, 0.0001, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
			},
			[]string{"stage"},
		),
		WorkGroups: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "cldot_work_groups",
				Help: "Work-groups launched by the last successful invocation",
			},
		),
		InputElements: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "cldot_input_elements",
				Help:    "Padded input length of dot product invocations",
				Buckets: prometheus.ExponentialBuckets(4, 4, 12),
			},
		),
		CapabilityDefaults: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "cldot_capability_defaults_total",
				Help: "Capability queries that failed and used the default value",
			},
			[]string{"capability"},
		),
	}
}

// Observe records one invocation.
func (s *Sink) Observe(d dot.Diagnostics) {
	outcome := OutcomeOK
	if d.Failed() {
		outcome = string(d.FailedStage())
		if outcome == "" {
			outcome = "error"
		}
	}
	s.Invocations.WithLabelValues(d.Platform, outcome).Inc()

	for _, st := range []struct {
		name string
		d    time.Duration
	}{
		{"context", d.Timings.Context},
		{"inspect", d.Timings.Inspect},
		{"upload", d.Timings.Upload},
		{"build", d.Timings.Build},
		{"execute", d.Timings.Execute},
		{"readback", d.Timings.Readback},
		{"total", d.Timings.Total},
	} {
		if st.d > 0 {
			s.StageDuration.WithLabelValues(st.name).Observe(st.d.Seconds())
		}
	}

	if d.PaddedLength > 0 {
		s.InputElements.Observe(float64(d.PaddedLength))
	}
	for c := range d.Capabilities.Defaulted {
		s.CapabilityDefaults.WithLabelValues(string(c)).Inc()
	}
	if !d.Failed() {
		s.WorkGroups.Set(float64(d.Partition.WorkGroupCount))
	}
}

// WriteText writes every metric family gathered from g in the Prometheus
// text exposition format.
func WriteText(w io.Writer, g prometheus.Gatherer) error {
	families, err := g.Gather()
	if err != nil {
		return err
	}
	for _, mf := range families {
		if _, err := expfmt.MetricFamilyToText(w, mf); err != nil {
			return err
		}
	}
	return nil
}
