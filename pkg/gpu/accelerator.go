// Package gpu selects the compute backend cldot runs on.
// This file provides the high-level accelerator that hands the dot-product
// pipeline an instrumented compute.Platform.
package gpu

import (
	"errors"
	"fmt"
	"sync"

	"github.com/orneryd/cldot/pkg/compute"
	"github.com/orneryd/cldot/pkg/gpu/host"
	"github.com/orneryd/cldot/pkg/gpu/opencl"
)

// Errors
var (
	ErrGPUNotAvailable = errors.New("gpu: no compatible compute device found")
	ErrUnknownBackend  = errors.New("gpu: unknown backend")
	ErrReleased        = errors.New("gpu: accelerator released")
)

// Backend represents the compute backend.
type Backend string

const (
	BackendAuto   Backend = "auto"   // OpenCL when present, host otherwise
	BackendOpenCL Backend = "opencl" // Real device through the OpenCL runtime
	BackendHost   Backend = "host"   // Host CPU emulating an OpenCL device
	BackendNone   Backend = "none"   // Released
)

// ParseBackend converts a configuration string to a Backend. The empty string
// maps to BackendAuto.
func ParseBackend(s string) (Backend, error) {
	switch Backend(s) {
	case "", BackendAuto:
		return BackendAuto, nil
	case BackendOpenCL, BackendHost:
		return Backend(s), nil
	default:
		return BackendNone, fmt.Errorf("%w: %q", ErrUnknownBackend, s)
	}
}

// Config holds backend selection options.
//
// Example:
//
//	config := gpu.DefaultConfig()
//	config.PreferredBackend = gpu.BackendOpenCL
//	config.FallbackOnError = false // fail instead of running on the host
type Config struct {
	// PreferredBackend is tried first. BackendAuto tries OpenCL, then host.
	PreferredBackend Backend

	// FallbackOnError falls back to the host backend when the preferred
	// backend has no usable device.
	FallbackOnError bool

	// HostOptions configure the host device when it is selected.
	HostOptions []host.Option
}

// DefaultConfig returns auto-detection with host fallback.
func DefaultConfig() *Config {
	return &Config{
		PreferredBackend: BackendAuto,
		FallbackOnError:  true,
	}
}

// Accelerator owns the selected compute platform.
//
// Usage:
//
//	accel, err := gpu.NewAccelerator(nil)
//	if err != nil {
//		return err
//	}
//	defer accel.Release()
//
//	p := dot.New(accel.Platform())
//	result, err := p.DotProduct(x, y)
type Accelerator struct {
	backend  Backend
	config   *Config
	platform compute.Platform
	device   compute.Device

	// Stats
	mu    sync.RWMutex
	stats AcceleratorStats
}

// AcceleratorStats tracks device usage through the accelerator's platform.
type AcceleratorStats struct {
	ContextsCreated  int64
	BuffersCreated   int64
	KernelExecutions int64
	KernelFailures   int64
	BytesUploaded    int64
	BytesDownloaded  int64
}

// NewAccelerator creates an accelerator, probing backends in order:
// the preferred backend, then OpenCL, then host. A backend is usable when
// its platform yields a default device.
//
// With FallbackOnError false, a preferred backend other than BackendAuto
// that cannot be initialized is an error.
func NewAccelerator(config *Config) (*Accelerator, error) {
	if config == nil {
		config = DefaultConfig()
	}

	accel := &Accelerator{
		config:  config,
		backend: BackendNone,
	}

	if err := accel.initBackend(config.PreferredBackend); err != nil {
		return nil, err
	}
	return accel, nil
}

// initBackend initializes the first usable backend.
func (a *Accelerator) initBackend(preferred Backend) error {
	var backends []Backend

	switch preferred {
	case "", BackendAuto:
		backends = append(backends, BackendOpenCL, BackendHost)
	case BackendOpenCL, BackendHost:
		backends = append(backends, preferred)
		if a.config.FallbackOnError && preferred != BackendHost {
			backends = append(backends, BackendHost)
		}
	default:
		return fmt.Errorf("%w: %q", ErrUnknownBackend, preferred)
	}

	var errs []error
	for _, backend := range backends {
		err := a.tryBackend(backend)
		if err == nil {
			return nil
		}
		errs = append(errs, fmt.Errorf("%s: %w", backend, err))
	}
	return fmt.Errorf("%w: %w", ErrGPUNotAvailable, errors.Join(errs...))
}

// tryBackend attempts to initialize a specific backend.
func (a *Accelerator) tryBackend(backend Backend) error {
	var platform compute.Platform
	switch backend {
	case BackendOpenCL:
		platform = opencl.NewPlatform()
	case BackendHost:
		platform = host.NewPlatform(a.config.HostOptions...)
	default:
		return ErrGPUNotAvailable
	}

	device, err := platform.DefaultDevice()
	if err != nil {
		return err
	}

	a.platform = platform
	a.device = device
	a.backend = backend
	return nil
}

// Release detaches the accelerator from its platform. Contexts already handed
// out remain owned by their callers.
func (a *Accelerator) Release() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.platform = nil
	a.device = nil
	a.backend = BackendNone
}

// IsEnabled returns whether a backend is active.
func (a *Accelerator) IsEnabled() bool {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.backend != BackendNone
}

// Backend returns the active backend.
func (a *Accelerator) Backend() Backend {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.backend
}

// Platform returns the active platform wrapped so that its usage is counted in
// Stats. After Release it returns a platform whose DefaultDevice fails with
// ErrReleased.
func (a *Accelerator) Platform() compute.Platform {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if a.platform == nil {
		return releasedPlatform{}
	}
	return &platform{Platform: a.platform, accel: a}
}

// PlatformName returns the active platform's name.
func (a *Accelerator) PlatformName() string {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if a.platform == nil {
		return ""
	}
	return a.platform.Name()
}

// DeviceName returns the device name.
func (a *Accelerator) DeviceName() string {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if a.device == nil {
		return "none"
	}
	return a.device.Name()
}

// DeviceVendor returns the device vendor.
func (a *Accelerator) DeviceVendor() string {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if a.device == nil {
		return ""
	}
	return a.device.Vendor()
}

// DeviceMemoryMB returns the device's global memory in megabytes, or 0 when
// the device does not report it.
func (a *Accelerator) DeviceMemoryMB() int {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if a.device == nil {
		return 0
	}
	bytes, err := a.device.Info(compute.InfoGlobalMemSize)
	if err != nil {
		return 0
	}
	return int(bytes / (1024 * 1024))
}

// Stats returns device usage statistics.
func (a *Accelerator) Stats() AcceleratorStats {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.stats
}

// ResetStats zeroes the usage statistics.
func (a *Accelerator) ResetStats() {
	a.mu.Lock()
	a.stats = AcceleratorStats{}
	a.mu.Unlock()
}

func (a *Accelerator) record(update func(*AcceleratorStats)) {
	a.mu.Lock()
	update(&a.stats)
	a.mu.Unlock()
}

type releasedPlatform struct{}

func (releasedPlatform) Name() string { return string(BackendNone) }

func (releasedPlatform) DefaultDevice() (compute.Device, error) {
	return nil, ErrReleased
}
