// Package compute defines the device layer that cldot dispatches work to.
//
// The interfaces mirror the OpenCL object model closely enough that the
// OpenCL bridge (pkg/gpu/opencl) maps onto them one to one, while the
// host-emulated device (pkg/gpu/host) can implement them with goroutines:
//
//	Platform -> Device -> Context (with its command queue)
//	                        |-> Program -> Kernel
//	                        |-> Buffer
//
// All calls are blocking from the caller's point of view. Objects that hold
// device resources expose Release, which must be safe to call more than once.
package compute

import (
	"errors"
	"fmt"
)

// ErrInfoUnavailable is returned by Device.Info and Kernel.WorkGroupInfo when
// a backend cannot answer a query.
var ErrInfoUnavailable = errors.New("compute: device info unavailable")

// InfoParam selects a device capability query.
type InfoParam int

const (
	InfoMaxWorkItemDimensions InfoParam = iota
	InfoMaxWorkGroupSize
	InfoMaxComputeUnits
	InfoLocalMemSize
	InfoGlobalMemSize
)

func (p InfoParam) String() string {
	switch p {
	case InfoMaxWorkItemDimensions:
		return "max_work_item_dimensions"
	case InfoMaxWorkGroupSize:
		return "max_work_group_size"
	case InfoMaxComputeUnits:
		return "max_compute_units"
	case InfoLocalMemSize:
		return "local_mem_size"
	case InfoGlobalMemSize:
		return "global_mem_size"
	default:
		return fmt.Sprintf("info_param(%d)", int(p))
	}
}

// KernelInfoParam selects a kernel work-group query.
type KernelInfoParam int

const (
	KernelPreferredWorkGroupSizeMultiple KernelInfoParam = iota
	KernelWorkGroupSize
)

func (p KernelInfoParam) String() string {
	switch p {
	case KernelPreferredWorkGroupSizeMultiple:
		return "preferred_work_group_size_multiple"
	case KernelWorkGroupSize:
		return "kernel_work_group_size"
	default:
		return fmt.Sprintf("kernel_info_param(%d)", int(p))
	}
}

// MemFlags describes how a kernel may access a buffer.
type MemFlags uint8

const (
	MemReadWrite MemFlags = iota
	MemReadOnly
	MemWriteOnly
)

func (f MemFlags) String() string {
	switch f {
	case MemReadOnly:
		return "read_only"
	case MemWriteOnly:
		return "write_only"
	default:
		return "read_write"
	}
}

// Platform is an installed compute runtime.
type Platform interface {
	Name() string
	// DefaultDevice returns the platform's first device.
	DefaultDevice() (Device, error)
}

// Device is a single compute device.
type Device interface {
	Name() string
	Vendor() string
	// Info answers a scalar capability query.
	Info(param InfoParam) (uint64, error)
	// WorkItemSizes returns the per-dimension work-item limits.
	WorkItemSizes() ([]int, error)
	// NewContext creates a context and command queue bound to the device.
	NewContext() (Context, error)
}

// Context owns a command queue and every object created through it.
type Context interface {
	// BuildProgram compiles source for the context's device. A compiler
	// failure is reported as a *BuildError.
	BuildProgram(source string) (Program, error)
	// NewBuffer allocates a buffer and uploads data synchronously.
	NewBuffer(flags MemFlags, data []float64) (Buffer, error)
	// NewEmptyBuffer allocates an uninitialised buffer of count elements.
	NewEmptyBuffer(flags MemFlags, count int) (Buffer, error)
	Release()
}

// Program is a compiled kernel program.
type Program interface {
	Kernel(name string) (Kernel, error)
	BuildLog() string
	Release()
}

// Kernel is a program entry point with bound arguments.
type Kernel interface {
	Name() string
	// SetArgs binds buffers positionally, replacing any earlier binding.
	SetArgs(args ...Buffer) error
	WorkGroupInfo(param KernelInfoParam) (uint64, error)
	// Enqueue launches the kernel and blocks until it has completed.
	Enqueue(r NDRange) error
	Release()
}

// Buffer is device-resident float64 storage.
type Buffer interface {
	Len() int
	Flags() MemFlags
	// Read copies the first len(dst) elements back to the host.
	Read(dst []float64) error
	Release()
}

// NDRange is a one-dimensional launch configuration.
type NDRange struct {
	GlobalOffset int
	GlobalSize   int
	LocalSize    int
}

// Groups returns the number of work-groups in the range.
func (r NDRange) Groups() int {
	if r.LocalSize <= 0 {
		return 0
	}
	return r.GlobalSize / r.LocalSize
}

// Validate reports launch configurations no backend can execute.
func (r NDRange) Validate() error {
	switch {
	case r.GlobalSize <= 0:
		return fmt.Errorf("compute: invalid global work size %d", r.GlobalSize)
	case r.LocalSize <= 0:
		return fmt.Errorf("compute: invalid local work size %d", r.LocalSize)
	case r.GlobalSize%r.LocalSize != 0:
		return fmt.Errorf("compute: global work size %d is not a multiple of local work size %d",
			r.GlobalSize, r.LocalSize)
	case r.GlobalOffset < 0:
		return fmt.Errorf("compute: invalid global work offset %d", r.GlobalOffset)
	}
	return nil
}

// BuildError carries the compiler log of a failed program build.
type BuildError struct {
	Log string
	Err error
}

func (e *BuildError) Error() string {
	if e.Log == "" {
		return e.Err.Error()
	}
	return fmt.Sprintf("%v: %s", e.Err, e.Log)
}

func (e *BuildError) Unwrap() error {
	return e.Err
}
