package dot

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/orneryd/cldot/pkg/compute"
	"github.com/orneryd/cldot/pkg/gpu"
	"github.com/orneryd/cldot/pkg/pool"
)

// TailPolicy decides what happens to inputs whose length is not a multiple of
// PrivateBlockSize.
type TailPolicy int

const (
	// TailReject fails the invocation with ErrValidation.
	TailReject TailPolicy = iota
	// TailPad zero-pads host copies of both vectors up to the next multiple
	// of PrivateBlockSize. Zero pairs add nothing to the sum.
	TailPad
)

func (p TailPolicy) String() string {
	switch p {
	case TailReject:
		return "reject"
	case TailPad:
		return "pad"
	default:
		return fmt.Sprintf("TailPolicy(%d)", int(p))
	}
}

// ParseTailPolicy converts "reject" or "pad" to a TailPolicy. The empty
// string maps to TailReject.
func ParseTailPolicy(s string) (TailPolicy, error) {
	switch s {
	case "", "reject":
		return TailReject, nil
	case "pad":
		return TailPad, nil
	default:
		return TailReject, fmt.Errorf("dot: unknown tail policy %q", s)
	}
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithTailPolicy sets the handling of lengths not divisible by
// PrivateBlockSize.
func WithTailPolicy(policy TailPolicy) Option {
	return func(p *Pipeline) { p.tail = policy }
}

// WithSink sets the receiver of per-invocation diagnostics.
func WithSink(sink Sink) Option {
	return func(p *Pipeline) {
		if sink == nil {
			sink = discardSink{}
		}
		p.sink = sink
	}
}

// Pipeline runs dot products on the default device of one platform. Every
// call opens and releases its own context, program, kernel and buffers, so a
// Pipeline is safe for concurrent use.
type Pipeline struct {
	platform compute.Platform
	tail     TailPolicy
	sink     Sink
}

// New returns a pipeline bound to platform.
func New(platform compute.Platform, opts ...Option) *Pipeline {
	p := &Pipeline{
		platform: platform,
		tail:     TailReject,
		sink:     discardSink{},
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// TailPolicy returns the pipeline's tail policy.
func (p *Pipeline) TailPolicy() TailPolicy { return p.tail }

var (
	defaultOnce     sync.Once
	defaultPipeline *Pipeline
	defaultErr      error
)

// DotProduct computes sum(x[i]*y[i]) on the default platform's first device,
// selected with gpu.DefaultConfig: OpenCL when available, the host device
// otherwise.
func DotProduct(x, y []float64) (float64, error) {
	defaultOnce.Do(func() {
		accel, err := gpu.NewAccelerator(nil)
		if err != nil {
			defaultErr = stageError(StageContext, ErrContextBuild, err)
			return
		}
		defaultPipeline = New(accel.Platform())
	})
	if defaultErr != nil {
		return 0, defaultErr
	}
	return defaultPipeline.DotProduct(x, y)
}

// DotProduct computes sum(x[i]*y[i]) for equal-length vectors. x and y are
// only read. Stages run in order: validate, context, inspect, allocate,
// build, execute, readback; the first failure aborts the invocation with a
// *StageError and nothing later runs. Every device object created is released
// before DotProduct returns.
func (p *Pipeline) DotProduct(x, y []float64) (float64, error) {
	d := Diagnostics{
		InvocationID: uuid.NewString(),
		Platform:     p.platform.Name(),
		InputLength:  len(x),
	}

	start := time.Now()
	result, err := p.run(&d, x, y)
	d.Timings.Total = time.Since(start)
	if err != nil {
		result = 0
	}
	d.Result = result
	d.Err = err

	p.sink.Observe(d)
	return result, err
}

func (p *Pipeline) run(d *Diagnostics, x, y []float64) (float64, error) {
	if len(x) != len(y) {
		return 0, validationError("length mismatch: len(x)=%d, len(y)=%d", len(x), len(y))
	}
	if len(x) == 0 {
		return 0, validationError("empty input")
	}

	n := len(x)
	if n%PrivateBlockSize != 0 {
		if p.tail != TailPad {
			return 0, validationError("length %d is not a multiple of %d", n, PrivateBlockSize)
		}
		n = paddedLength(n)
		xp := pool.GetFloat64s(n)
		yp := pool.GetFloat64s(n)
		defer pool.PutFloat64s(xp)
		defer pool.PutFloat64s(yp)
		copy(xp, x)
		copy(yp, y)
		x, y = xp, yp
	}
	d.PaddedLength = n

	stageStart := time.Now()
	dev, err := p.platform.DefaultDevice()
	if err != nil {
		return 0, stageError(StageContext, ErrContextBuild, err)
	}
	d.DeviceName = dev.Name()
	d.DeviceVendor = dev.Vendor()

	ctx, err := dev.NewContext()
	if err != nil {
		return 0, stageError(StageContext, ErrContextBuild, err)
	}
	defer ctx.Release()
	d.Timings.Context = time.Since(stageStart)

	stageStart = time.Now()
	caps := Inspect(dev)
	part, sizing := Decompose(n, caps)
	d.Capabilities = caps
	d.Partition = part
	d.Sizing = sizing
	d.Timings.Inspect = time.Since(stageStart)

	stageStart = time.Now()
	bufs, err := AllocateBuffers(ctx, x, y, part)
	if err != nil {
		return 0, err
	}
	defer bufs.Release()
	d.Timings.Upload = time.Since(stageStart)

	stageStart = time.Now()
	prog, k, err := BuildKernel(ctx)
	if err != nil {
		return 0, err
	}
	defer prog.Release()
	defer k.Release()
	InspectKernel(&caps, k)
	d.Capabilities = caps
	d.Timings.Build = time.Since(stageStart)

	stageStart = time.Now()
	if err := Execute(k, bufs, part); err != nil {
		return 0, err
	}
	d.Timings.Execute = time.Since(stageStart)

	stageStart = time.Now()
	result, err := Reduce(bufs, part)
	if err != nil {
		return 0, err
	}
	d.Timings.Readback = time.Since(stageStart)

	return result, nil
}
