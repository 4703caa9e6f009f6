package host

import (
	"errors"
	"fmt"
	"strings"
	"sync/atomic"

	"github.com/klauspost/cpuid/v2"
	"github.com/pbnjay/memory"

	"github.com/orneryd/cldot/pkg/compute"
)

// Errors
var (
	ErrOutOfMemory          = errors.New("host: device memory allocation failed")
	ErrInvalidContext       = errors.New("host: invalid context")
	ErrInvalidMemObject     = errors.New("host: invalid buffer")
	ErrBuildProgramFailure  = errors.New("host: program build failure")
	ErrInvalidKernelName    = errors.New("host: invalid kernel name")
	ErrInvalidKernel        = errors.New("host: invalid kernel")
	ErrInvalidKernelArgs    = errors.New("host: invalid kernel arguments")
	ErrInvalidWorkGroupSize = errors.New("host: invalid work-group size")
	ErrKernelFault          = errors.New("host: kernel fault")
)

const (
	// PlatformName is reported by Platform.Name.
	PlatformName = "cldot host"

	// DefaultMaxWorkGroupSize matches the common GPU limit.
	DefaultMaxWorkGroupSize = 1024

	maxWorkItemDimensions = 3
)

// Platform is the host platform. It exposes exactly one device.
type Platform struct {
	device *Device
}

// NewPlatform creates a host platform whose device is configured by opts.
func NewPlatform(opts ...Option) *Platform {
	return &Platform{device: NewDevice(opts...)}
}

// Name returns PlatformName.
func (p *Platform) Name() string {
	return PlatformName
}

// DefaultDevice returns the host device.
func (p *Platform) DefaultDevice() (compute.Device, error) {
	return p.device, nil
}

// Device is the host CPU presented as a compute device.
type Device struct {
	name             string
	vendor           string
	computeUnits     int
	localMemBytes    int64
	globalMemBytes   uint64
	maxWorkGroupSize int
	simdLanes        int

	allocated atomic.Int64
}

// Option configures a host Device.
type Option func(*Device)

// WithName overrides the device name.
func WithName(name string) Option {
	return func(d *Device) { d.name = name }
}

// WithComputeUnits overrides the compute-unit count. Zero or less makes the
// compute-unit query fail.
func WithComputeUnits(n int) Option {
	return func(d *Device) { d.computeUnits = n }
}

// WithLocalMemSize overrides the local memory size in bytes. A negative value
// makes the local memory query fail.
func WithLocalMemSize(bytes int64) Option {
	return func(d *Device) { d.localMemBytes = bytes }
}

// WithMaxWorkGroupSize overrides the work-group size limit.
func WithMaxWorkGroupSize(n int) Option {
	return func(d *Device) { d.maxWorkGroupSize = n }
}

// WithMemoryLimit caps the total bytes that buffers may occupy. Zero means
// unknown, which disables the cap and makes the global memory query fail.
func WithMemoryLimit(bytes uint64) Option {
	return func(d *Device) { d.globalMemBytes = bytes }
}

// NewDevice probes the host CPU and applies opts on top of what it finds.
func NewDevice(opts ...Option) *Device {
	name := strings.TrimSpace(cpuid.CPU.BrandName)
	if name == "" {
		name = "Host CPU"
	}
	vendor := cpuid.CPU.VendorString
	if vendor == "" {
		vendor = cpuid.CPU.VendorID.String()
	}

	d := &Device{
		name:             name,
		vendor:           vendor,
		computeUnits:     cpuid.CPU.LogicalCores,
		localMemBytes:    int64(cpuid.CPU.Cache.L1D),
		globalMemBytes:   memory.TotalMemory(),
		maxWorkGroupSize: DefaultMaxWorkGroupSize,
		simdLanes:        float64Lanes(),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// float64Lanes returns how many float64 values fit one vector register.
func float64Lanes() int {
	switch {
	case cpuid.CPU.Has(cpuid.AVX512F):
		return 8
	case cpuid.CPU.Has(cpuid.AVX2):
		return 4
	default:
		return 2
	}
}

// Name returns the CPU brand string.
func (d *Device) Name() string { return d.name }

// Vendor returns the CPU vendor string.
func (d *Device) Vendor() string { return d.vendor }

// Info answers a capability query from the probed host limits.
func (d *Device) Info(param compute.InfoParam) (uint64, error) {
	switch param {
	case compute.InfoMaxWorkItemDimensions:
		return maxWorkItemDimensions, nil
	case compute.InfoMaxWorkGroupSize:
		if d.maxWorkGroupSize <= 0 {
			return 0, fmt.Errorf("%w: %s", compute.ErrInfoUnavailable, param)
		}
		return uint64(d.maxWorkGroupSize), nil
	case compute.InfoMaxComputeUnits:
		if d.computeUnits <= 0 {
			return 0, fmt.Errorf("%w: %s", compute.ErrInfoUnavailable, param)
		}
		return uint64(d.computeUnits), nil
	case compute.InfoLocalMemSize:
		if d.localMemBytes < 0 {
			return 0, fmt.Errorf("%w: %s", compute.ErrInfoUnavailable, param)
		}
		return uint64(d.localMemBytes), nil
	case compute.InfoGlobalMemSize:
		if d.globalMemBytes == 0 {
			return 0, fmt.Errorf("%w: %s", compute.ErrInfoUnavailable, param)
		}
		return d.globalMemBytes, nil
	default:
		return 0, fmt.Errorf("%w: %s", compute.ErrInfoUnavailable, param)
	}
}

// WorkItemSizes returns the per-dimension work-item limits.
func (d *Device) WorkItemSizes() ([]int, error) {
	if d.maxWorkGroupSize <= 0 {
		return nil, fmt.Errorf("%w: max_work_item_sizes", compute.ErrInfoUnavailable)
	}
	return []int{d.maxWorkGroupSize, d.maxWorkGroupSize, max(d.maxWorkGroupSize/16, 1)}, nil
}

// AllocatedBytes returns the bytes currently held by live buffers.
func (d *Device) AllocatedBytes() int64 {
	return d.allocated.Load()
}

// NewContext creates a context with its own command queue.
func (d *Device) NewContext() (compute.Context, error) {
	return &Context{device: d, buffers: make(map[*Buffer]struct{})}, nil
}

// reserve accounts for bytes of device memory, failing when the device limit
// would be exceeded.
func (d *Device) reserve(bytes int64) error {
	for {
		cur := d.allocated.Load()
		next := cur + bytes
		if d.globalMemBytes != 0 && uint64(next) > d.globalMemBytes {
			return fmt.Errorf("%w: %d bytes requested, %d of %d in use",
				ErrOutOfMemory, bytes, cur, d.globalMemBytes)
		}
		if d.allocated.CompareAndSwap(cur, next) {
			return nil
		}
	}
}

func (d *Device) unreserve(bytes int64) {
	d.allocated.Add(-bytes)
}
