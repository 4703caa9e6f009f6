//go:build opencl && (linux || windows || darwin)
// +build opencl
// +build linux windows darwin

// Package opencl provides cross-platform GPU compute using OpenCL.
package opencl

/*
#cgo linux CFLAGS: -I/opt/rocm/include -I/usr/include -DCL_TARGET_OPENCL_VERSION=120
#cgo linux LDFLAGS: -L/opt/rocm/lib -L/usr/lib/x86_64-linux-gnu -lOpenCL
#cgo darwin CFLAGS: -DCL_TARGET_OPENCL_VERSION=120
#cgo darwin LDFLAGS: -framework OpenCL
#cgo windows CFLAGS: -DCL_TARGET_OPENCL_VERSION=120
#cgo windows LDFLAGS: -lOpenCL

#ifdef __APPLE__
#include <OpenCL/opencl.h>
#else
#include <CL/cl.h>
#endif

#include <stdlib.h>

const char* opencl_error_string(cl_int error) {
    switch (error) {
        case CL_SUCCESS: return "CL_SUCCESS";
        case CL_DEVICE_NOT_FOUND: return "CL_DEVICE_NOT_FOUND";
        case CL_DEVICE_NOT_AVAILABLE: return "CL_DEVICE_NOT_AVAILABLE";
        case CL_COMPILER_NOT_AVAILABLE: return "CL_COMPILER_NOT_AVAILABLE";
        case CL_MEM_OBJECT_ALLOCATION_FAILURE: return "CL_MEM_OBJECT_ALLOCATION_FAILURE";
        case CL_OUT_OF_RESOURCES: return "CL_OUT_OF_RESOURCES";
        case CL_OUT_OF_HOST_MEMORY: return "CL_OUT_OF_HOST_MEMORY";
        case CL_BUILD_PROGRAM_FAILURE: return "CL_BUILD_PROGRAM_FAILURE";
        case CL_INVALID_VALUE: return "CL_INVALID_VALUE";
        case CL_INVALID_DEVICE_TYPE: return "CL_INVALID_DEVICE_TYPE";
        case CL_INVALID_PLATFORM: return "CL_INVALID_PLATFORM";
        case CL_INVALID_DEVICE: return "CL_INVALID_DEVICE";
        case CL_INVALID_CONTEXT: return "CL_INVALID_CONTEXT";
        case CL_INVALID_QUEUE_PROPERTIES: return "CL_INVALID_QUEUE_PROPERTIES";
        case CL_INVALID_COMMAND_QUEUE: return "CL_INVALID_COMMAND_QUEUE";
        case CL_INVALID_HOST_PTR: return "CL_INVALID_HOST_PTR";
        case CL_INVALID_MEM_OBJECT: return "CL_INVALID_MEM_OBJECT";
        case CL_INVALID_BUFFER_SIZE: return "CL_INVALID_BUFFER_SIZE";
        case CL_INVALID_BINARY: return "CL_INVALID_BINARY";
        case CL_INVALID_BUILD_OPTIONS: return "CL_INVALID_BUILD_OPTIONS";
        case CL_INVALID_PROGRAM: return "CL_INVALID_PROGRAM";
        case CL_INVALID_PROGRAM_EXECUTABLE: return "CL_INVALID_PROGRAM_EXECUTABLE";
        case CL_INVALID_KERNEL_NAME: return "CL_INVALID_KERNEL_NAME";
        case CL_INVALID_KERNEL_DEFINITION: return "CL_INVALID_KERNEL_DEFINITION";
        case CL_INVALID_KERNEL: return "CL_INVALID_KERNEL";
        case CL_INVALID_ARG_INDEX: return "CL_INVALID_ARG_INDEX";
        case CL_INVALID_ARG_VALUE: return "CL_INVALID_ARG_VALUE";
        case CL_INVALID_ARG_SIZE: return "CL_INVALID_ARG_SIZE";
        case CL_INVALID_KERNEL_ARGS: return "CL_INVALID_KERNEL_ARGS";
        case CL_INVALID_WORK_DIMENSION: return "CL_INVALID_WORK_DIMENSION";
        case CL_INVALID_WORK_GROUP_SIZE: return "CL_INVALID_WORK_GROUP_SIZE";
        case CL_INVALID_WORK_ITEM_SIZE: return "CL_INVALID_WORK_ITEM_SIZE";
        case CL_INVALID_GLOBAL_OFFSET: return "CL_INVALID_GLOBAL_OFFSET";
        default: return "Unknown OpenCL error";
    }
}

// First device of the first platform.
cl_int opencl_default_device(cl_platform_id* out_platform, cl_device_id* out_device) {
    cl_uint num_platforms = 0;
    cl_int err = clGetPlatformIDs(1, out_platform, &num_platforms);
    if (err != CL_SUCCESS) return err;
    if (num_platforms == 0) return CL_DEVICE_NOT_FOUND;

    cl_uint num_devices = 0;
    err = clGetDeviceIDs(*out_platform, CL_DEVICE_TYPE_ALL, 1, out_device, &num_devices);
    if (err != CL_SUCCESS) return err;
    if (num_devices == 0) return CL_DEVICE_NOT_FOUND;
    return CL_SUCCESS;
}

int opencl_get_device_count() {
    cl_uint num_platforms = 0;
    cl_int err = clGetPlatformIDs(0, NULL, &num_platforms);
    if (err != CL_SUCCESS || num_platforms == 0) {
        return 0;
    }

    cl_platform_id* platforms = (cl_platform_id*)malloc(num_platforms * sizeof(cl_platform_id));
    clGetPlatformIDs(num_platforms, platforms, NULL);

    int total_devices = 0;
    for (cl_uint i = 0; i < num_platforms; i++) {
        cl_uint num_devices = 0;
        err = clGetDeviceIDs(platforms[i], CL_DEVICE_TYPE_ALL, 0, NULL, &num_devices);
        if (err == CL_SUCCESS) {
            total_devices += num_devices;
        }
    }

    free(platforms);
    return total_devices;
}

cl_int opencl_device_string(cl_device_id dev, cl_device_info param, char* out, size_t size) {
    return clGetDeviceInfo(dev, param, size, out, NULL);
}

// Caller frees the returned log.
char* opencl_build_log(cl_program program, cl_device_id dev) {
    size_t log_size = 0;
    clGetProgramBuildInfo(program, dev, CL_PROGRAM_BUILD_LOG, 0, NULL, &log_size);
    char* log = (char*)malloc(log_size + 1);
    if (!log) return NULL;
    if (log_size > 0) {
        clGetProgramBuildInfo(program, dev, CL_PROGRAM_BUILD_LOG, log_size, log, NULL);
    }
    log[log_size] = '\0';
    return log;
}

cl_int opencl_set_mem_arg(cl_kernel kernel, cl_uint index, cl_mem mem) {
    return clSetKernelArg(kernel, index, sizeof(cl_mem), &mem);
}

cl_int opencl_enqueue_1d(cl_command_queue queue, cl_kernel kernel,
                         size_t offset, size_t global_size, size_t local_size) {
    cl_int err = clEnqueueNDRangeKernel(queue, kernel, 1, &offset, &global_size, &local_size, 0, NULL, NULL);
    if (err != CL_SUCCESS) return err;
    return clFinish(queue);
}
*/
import "C"

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"unsafe"

	"github.com/orneryd/cldot/pkg/compute"
)

// Errors
var (
	ErrOpenCLNotAvailable = errors.New("opencl: OpenCL is not available on this system")
	ErrDeviceCreation     = errors.New("opencl: failed to create OpenCL device")
	ErrContextCreation    = errors.New("opencl: failed to create context")
	ErrProgramBuild       = errors.New("opencl: failed to build program")
	ErrBufferCreation     = errors.New("opencl: failed to create buffer")
	ErrKernelExecution    = errors.New("opencl: kernel execution failed")
	ErrInvalidBuffer      = errors.New("opencl: invalid buffer")
	ErrInfoQuery          = errors.New("opencl: device info query failed")
)

const (
	float64Size = 8

	// CL_PLATFORM_NOT_FOUND_KHR, returned by the ICD loader when no
	// platform is installed.
	platformNotFoundKHR = -1001
)

func clError(sentinel error, what string, code C.cl_int) error {
	return fmt.Errorf("%w: %s: %s", sentinel, what, C.GoString(C.opencl_error_string(code)))
}

// IsAvailable checks if an OpenCL device is present.
func IsAvailable() bool {
	return DeviceCount() > 0
}

// DeviceCount returns the number of OpenCL devices across all platforms.
func DeviceCount() int {
	count := C.opencl_get_device_count()
	if count < 0 {
		return 0
	}
	return int(count)
}

// Platform is the default OpenCL platform.
type Platform struct {
	mu     sync.Mutex
	name   string
	device *Device
}

// NewPlatform returns a handle to the default OpenCL platform. The platform is
// resolved lazily by DefaultDevice.
func NewPlatform() *Platform {
	return &Platform{}
}

// Name returns the platform name, or "OpenCL" before it has been resolved.
func (p *Platform) Name() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.name == "" {
		return "OpenCL"
	}
	return p.name
}

// DefaultDevice returns the first device of the first platform.
func (p *Platform) DefaultDevice() (compute.Device, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.device != nil {
		return p.device, nil
	}

	var platform C.cl_platform_id
	var device C.cl_device_id
	if code := C.opencl_default_device(&platform, &device); code != C.CL_SUCCESS {
		if code == C.CL_DEVICE_NOT_FOUND || code == platformNotFoundKHR {
			return nil, ErrOpenCLNotAvailable
		}
		return nil, clError(ErrDeviceCreation, "default device", code)
	}

	var buf [256]C.char
	if C.clGetPlatformInfo(platform, C.CL_PLATFORM_NAME, C.size_t(len(buf)), unsafe.Pointer(&buf[0]), nil) == C.CL_SUCCESS {
		p.name = strings.TrimSpace(C.GoString(&buf[0]))
	}

	p.device = &Device{
		id:     device,
		name:   deviceString(device, C.CL_DEVICE_NAME),
		vendor: deviceString(device, C.CL_DEVICE_VENDOR),
	}
	return p.device, nil
}

func deviceString(dev C.cl_device_id, param C.cl_device_info) string {
	var buf [256]C.char
	if C.opencl_device_string(dev, param, &buf[0], C.size_t(len(buf))) != C.CL_SUCCESS {
		return "Unknown"
	}
	return strings.TrimSpace(C.GoString(&buf[0]))
}

// Device represents an OpenCL device.
type Device struct {
	id     C.cl_device_id
	name   string
	vendor string
}

// Name returns the device name.
func (d *Device) Name() string { return d.name }

// Vendor returns the device vendor.
func (d *Device) Vendor() string { return d.vendor }

// Info answers a scalar capability query with clGetDeviceInfo.
func (d *Device) Info(param compute.InfoParam) (uint64, error) {
	var code C.cl_int
	switch param {
	case compute.InfoMaxWorkItemDimensions:
		var v C.cl_uint
		code = C.clGetDeviceInfo(d.id, C.CL_DEVICE_MAX_WORK_ITEM_DIMENSIONS, C.size_t(unsafe.Sizeof(v)), unsafe.Pointer(&v), nil)
		if code == C.CL_SUCCESS {
			return uint64(v), nil
		}
	case compute.InfoMaxWorkGroupSize:
		var v C.size_t
		code = C.clGetDeviceInfo(d.id, C.CL_DEVICE_MAX_WORK_GROUP_SIZE, C.size_t(unsafe.Sizeof(v)), unsafe.Pointer(&v), nil)
		if code == C.CL_SUCCESS {
			return uint64(v), nil
		}
	case compute.InfoMaxComputeUnits:
		var v C.cl_uint
		code = C.clGetDeviceInfo(d.id, C.CL_DEVICE_MAX_COMPUTE_UNITS, C.size_t(unsafe.Sizeof(v)), unsafe.Pointer(&v), nil)
		if code == C.CL_SUCCESS {
			return uint64(v), nil
		}
	case compute.InfoLocalMemSize:
		var v C.cl_ulong
		code = C.clGetDeviceInfo(d.id, C.CL_DEVICE_LOCAL_MEM_SIZE, C.size_t(unsafe.Sizeof(v)), unsafe.Pointer(&v), nil)
		if code == C.CL_SUCCESS {
			return uint64(v), nil
		}
	case compute.InfoGlobalMemSize:
		var v C.cl_ulong
		code = C.clGetDeviceInfo(d.id, C.CL_DEVICE_GLOBAL_MEM_SIZE, C.size_t(unsafe.Sizeof(v)), unsafe.Pointer(&v), nil)
		if code == C.CL_SUCCESS {
			return uint64(v), nil
		}
	default:
		return 0, fmt.Errorf("%w: %s", compute.ErrInfoUnavailable, param)
	}
	return 0, fmt.Errorf("%w: %w", compute.ErrInfoUnavailable, clError(ErrInfoQuery, param.String(), code))
}

// WorkItemSizes returns CL_DEVICE_MAX_WORK_ITEM_SIZES.
func (d *Device) WorkItemSizes() ([]int, error) {
	reported, err := d.Info(compute.InfoMaxWorkItemDimensions)
	if err != nil {
		return nil, err
	}
	dims, err := workItemDims(reported)
	if err != nil {
		return nil, err
	}
	sizes := make([]C.size_t, dims)
	code := C.clGetDeviceInfo(d.id, C.CL_DEVICE_MAX_WORK_ITEM_SIZES,
		C.size_t(uintptr(dims)*unsafe.Sizeof(sizes[0])), unsafe.Pointer(&sizes[0]), nil)
	if code != C.CL_SUCCESS {
		return nil, fmt.Errorf("%w: %w", compute.ErrInfoUnavailable, clError(ErrInfoQuery, "max_work_item_sizes", code))
	}
	out := make([]int, len(sizes))
	for i, s := range sizes {
		out[i] = int(s)
	}
	return out, nil
}

// NewContext creates an OpenCL context and in-order command queue.
func (d *Device) NewContext() (compute.Context, error) {
	var code C.cl_int
	ctx := C.clCreateContext(nil, 1, &d.id, nil, nil, &code)
	if code != C.CL_SUCCESS {
		return nil, clError(ErrContextCreation, "context", code)
	}
	queue := C.clCreateCommandQueue(ctx, d.id, 0, &code)
	if code != C.CL_SUCCESS {
		C.clReleaseContext(ctx)
		return nil, clError(ErrContextCreation, "command queue", code)
	}
	return &Context{ctx: ctx, queue: queue, device: d}, nil
}

// Context owns an OpenCL context and its command queue.
type Context struct {
	mu     sync.Mutex
	ctx    C.cl_context
	queue  C.cl_command_queue
	device *Device
}

// BuildProgram compiles source for the context's device.
func (c *Context) BuildProgram(source string) (compute.Program, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.ctx == nil {
		return nil, fmt.Errorf("%w: context released", ErrProgramBuild)
	}

	csrc := C.CString(source)
	defer C.free(unsafe.Pointer(csrc))
	length := C.size_t(len(source))

	var code C.cl_int
	prog := C.clCreateProgramWithSource(c.ctx, 1, &csrc, &length, &code)
	if code != C.CL_SUCCESS {
		return nil, clError(ErrProgramBuild, "create program", code)
	}

	code = C.clBuildProgram(prog, 1, &c.device.id, nil, nil, nil)
	log := buildLog(prog, c.device.id)
	if code != C.CL_SUCCESS {
		C.clReleaseProgram(prog)
		return nil, &compute.BuildError{Log: log, Err: clError(ErrProgramBuild, "build", code)}
	}

	return &Program{prog: prog, log: log, ctx: c}, nil
}

func buildLog(prog C.cl_program, dev C.cl_device_id) string {
	clog := C.opencl_build_log(prog, dev)
	if clog == nil {
		return ""
	}
	defer C.free(unsafe.Pointer(clog))
	return strings.TrimSpace(C.GoString(clog))
}

func memFlags(flags compute.MemFlags) C.cl_mem_flags {
	switch flags {
	case compute.MemReadOnly:
		return C.CL_MEM_READ_ONLY
	case compute.MemWriteOnly:
		return C.CL_MEM_WRITE_ONLY
	default:
		return C.CL_MEM_READ_WRITE
	}
}

// NewBuffer creates a buffer initialised from data.
func (c *Context) NewBuffer(flags compute.MemFlags, data []float64) (compute.Buffer, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: cannot create empty buffer", ErrBufferCreation)
	}
	buf, err := c.newBuffer(flags, len(data), unsafe.Pointer(&data[0]))
	if err != nil {
		return nil, err
	}
	return buf, nil
}

// NewEmptyBuffer creates an uninitialised buffer of count elements.
func (c *Context) NewEmptyBuffer(flags compute.MemFlags, count int) (compute.Buffer, error) {
	if count <= 0 {
		return nil, fmt.Errorf("%w: invalid element count %d", ErrBufferCreation, count)
	}
	buf, err := c.newBuffer(flags, count, nil)
	if err != nil {
		return nil, err
	}
	return buf, nil
}

func (c *Context) newBuffer(flags compute.MemFlags, count int, host unsafe.Pointer) (*Buffer, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.ctx == nil {
		return nil, fmt.Errorf("%w: context released", ErrBufferCreation)
	}

	clFlags := memFlags(flags)
	if host != nil {
		clFlags |= C.CL_MEM_COPY_HOST_PTR
	}

	var code C.cl_int
	mem := C.clCreateBuffer(c.ctx, clFlags, C.size_t(count*float64Size), host, &code)
	if code != C.CL_SUCCESS {
		return nil, clError(ErrBufferCreation, "buffer", code)
	}
	return &Buffer{mem: mem, count: count, flags: flags, ctx: c}, nil
}

// Release frees the command queue and context.
func (c *Context) Release() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.queue != nil {
		C.clReleaseCommandQueue(c.queue)
		c.queue = nil
	}
	if c.ctx != nil {
		C.clReleaseContext(c.ctx)
		c.ctx = nil
	}
}

// Program is a built OpenCL program.
type Program struct {
	mu   sync.Mutex
	prog C.cl_program
	log  string
	ctx  *Context
}

// Kernel creates a kernel for the named entry point.
func (p *Program) Kernel(name string) (compute.Kernel, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.prog == nil {
		return nil, fmt.Errorf("%w: program released", ErrKernelExecution)
	}

	cname := C.CString(name)
	defer C.free(unsafe.Pointer(cname))

	var code C.cl_int
	k := C.clCreateKernel(p.prog, cname, &code)
	if code != C.CL_SUCCESS {
		return nil, clError(ErrKernelExecution, "create kernel "+name, code)
	}
	return &Kernel{k: k, name: name, ctx: p.ctx}, nil
}

// BuildLog returns the compiler output.
func (p *Program) BuildLog() string { return p.log }

// Release frees the program.
func (p *Program) Release() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.prog != nil {
		C.clReleaseProgram(p.prog)
		p.prog = nil
	}
}

// Kernel is an OpenCL kernel object.
type Kernel struct {
	mu   sync.Mutex
	k    C.cl_kernel
	name string
	ctx  *Context
}

// Name returns the entry point name.
func (k *Kernel) Name() string { return k.name }

// SetArgs binds buffers positionally.
func (k *Kernel) SetArgs(args ...compute.Buffer) error {
	k.mu.Lock()
	defer k.mu.Unlock()

	if k.k == nil {
		return fmt.Errorf("%w: kernel released", ErrKernelExecution)
	}
	for i, a := range args {
		b, ok := a.(*Buffer)
		if !ok || b == nil || b.mem == nil {
			return fmt.Errorf("%w: argument %d", ErrInvalidBuffer, i)
		}
		if code := C.opencl_set_mem_arg(k.k, C.cl_uint(i), b.mem); code != C.CL_SUCCESS {
			return clError(ErrKernelExecution, fmt.Sprintf("set argument %d", i), code)
		}
	}
	return nil
}

// WorkGroupInfo answers clGetKernelWorkGroupInfo queries.
func (k *Kernel) WorkGroupInfo(param compute.KernelInfoParam) (uint64, error) {
	k.mu.Lock()
	defer k.mu.Unlock()

	var clParam C.cl_kernel_work_group_info
	switch param {
	case compute.KernelPreferredWorkGroupSizeMultiple:
		clParam = C.CL_KERNEL_PREFERRED_WORK_GROUP_SIZE_MULTIPLE
	case compute.KernelWorkGroupSize:
		clParam = C.CL_KERNEL_WORK_GROUP_SIZE
	default:
		return 0, fmt.Errorf("%w: %s", compute.ErrInfoUnavailable, param)
	}

	var v C.size_t
	code := C.clGetKernelWorkGroupInfo(k.k, k.ctx.device.id, clParam, C.size_t(unsafe.Sizeof(v)), unsafe.Pointer(&v), nil)
	if code != C.CL_SUCCESS {
		return 0, fmt.Errorf("%w: %w", compute.ErrInfoUnavailable, clError(ErrInfoQuery, param.String(), code))
	}
	return uint64(v), nil
}

// Enqueue launches the kernel and waits for the queue to drain.
func (k *Kernel) Enqueue(r compute.NDRange) error {
	if err := r.Validate(); err != nil {
		return fmt.Errorf("%w: %v", ErrKernelExecution, err)
	}

	k.mu.Lock()
	defer k.mu.Unlock()

	if k.k == nil {
		return fmt.Errorf("%w: kernel released", ErrKernelExecution)
	}

	k.ctx.mu.Lock()
	defer k.ctx.mu.Unlock()
	if k.ctx.queue == nil {
		return fmt.Errorf("%w: context released", ErrKernelExecution)
	}

	code := C.opencl_enqueue_1d(k.ctx.queue, k.k,
		C.size_t(r.GlobalOffset), C.size_t(r.GlobalSize), C.size_t(r.LocalSize))
	if code != C.CL_SUCCESS {
		return clError(ErrKernelExecution, "enqueue "+k.name, code)
	}
	return nil
}

// Release frees the kernel.
func (k *Kernel) Release() {
	k.mu.Lock()
	defer k.mu.Unlock()
	if k.k != nil {
		C.clReleaseKernel(k.k)
		k.k = nil
	}
}

// Buffer represents an OpenCL memory buffer of float64 values.
type Buffer struct {
	mu    sync.Mutex
	mem   C.cl_mem
	count int
	flags compute.MemFlags
	ctx   *Context
}

// Len returns the element count.
func (b *Buffer) Len() int { return b.count }

// Flags returns the access flags.
func (b *Buffer) Flags() compute.MemFlags { return b.flags }

// Read performs a blocking device-to-host copy of len(dst) elements.
func (b *Buffer) Read(dst []float64) error {
	if len(dst) == 0 {
		return nil
	}
	if len(dst) > b.count {
		return fmt.Errorf("%w: read of %d elements from buffer of %d", ErrInvalidBuffer, len(dst), b.count)
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.mem == nil {
		return fmt.Errorf("%w: buffer released", ErrInvalidBuffer)
	}

	b.ctx.mu.Lock()
	defer b.ctx.mu.Unlock()
	if b.ctx.queue == nil {
		return fmt.Errorf("%w: context released", ErrInvalidBuffer)
	}

	code := C.clEnqueueReadBuffer(b.ctx.queue, b.mem, C.CL_TRUE, 0,
		C.size_t(len(dst)*float64Size), unsafe.Pointer(&dst[0]), 0, nil, nil)
	if code != C.CL_SUCCESS {
		return clError(ErrInvalidBuffer, "read", code)
	}
	return nil
}

// Release frees the buffer resources.
func (b *Buffer) Release() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.mem != nil {
		C.clReleaseMemObject(b.mem)
		b.mem = nil
	}
}
