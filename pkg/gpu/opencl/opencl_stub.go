//go:build !opencl
// +build !opencl

// Package opencl provides cross-platform GPU compute using OpenCL.
// This is a stub implementation for systems without OpenCL support.
package opencl

import (
	"errors"

	"github.com/orneryd/cldot/pkg/compute"
)

// Errors
var (
	ErrOpenCLNotAvailable = errors.New("opencl: OpenCL is not available (build without opencl tag)")
	ErrDeviceCreation     = errors.New("opencl: failed to create OpenCL device")
	ErrContextCreation    = errors.New("opencl: failed to create context")
	ErrProgramBuild       = errors.New("opencl: failed to build program")
	ErrBufferCreation     = errors.New("opencl: failed to create buffer")
	ErrKernelExecution    = errors.New("opencl: kernel execution failed")
	ErrInvalidBuffer      = errors.New("opencl: invalid buffer")
	ErrInfoQuery          = errors.New("opencl: device info query failed")
)

// Platform represents the default OpenCL platform (stub).
type Platform struct{}

// IsAvailable returns false on systems without OpenCL.
func IsAvailable() bool {
	return false
}

// DeviceCount returns 0 on systems without OpenCL.
func DeviceCount() int {
	return 0
}

// NewPlatform returns a platform whose DefaultDevice always fails.
func NewPlatform() *Platform {
	return &Platform{}
}

// Name returns "OpenCL".
func (p *Platform) Name() string { return "OpenCL" }

// DefaultDevice returns ErrOpenCLNotAvailable.
func (p *Platform) DefaultDevice() (compute.Device, error) {
	return nil, ErrOpenCLNotAvailable
}
