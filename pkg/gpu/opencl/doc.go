// Package opencl provides cross-platform GPU compute using OpenCL.
//
// The package implements the pkg/compute interfaces on top of the OpenCL C
// API, so the dot-product pipeline can run on AMD, Intel and NVIDIA GPUs as
// well as on CPU OpenCL runtimes such as PoCL.
//
// # Requirements
//
// For AMD GPUs on Linux:
//   - ROCm (Radeon Open Compute): https://rocm.docs.amd.com/
//   - Or AMD GPU drivers with OpenCL support
//
// For Intel GPUs:
//   - Intel oneAPI or Intel OpenCL runtime
//
// For NVIDIA GPUs:
//   - NVIDIA drivers with OpenCL support
//
// Double precision requires a device exposing cl_khr_fp64. Devices without
// it fail the program build and the build log says so.
//
// # Build Tags
//
// The cgo bridge is only compiled when the "opencl" build tag is present:
//
//	go build -tags opencl ./...
//
// Without the tag a stub is compiled whose Platform.DefaultDevice returns
// ErrOpenCLNotAvailable, and pkg/gpu falls back to the host backend.
//
// # Environment Variables
//
// Linux (AMD ROCm):
//
//	export LD_LIBRARY_PATH=/opt/rocm/opencl/lib:$LD_LIBRARY_PATH
//
// macOS:
//
//	Note: macOS deprecated OpenCL in favor of Metal, and Apple GPUs do not
//	expose cl_khr_fp64. Use the host backend there.
//
// # Device Selection
//
// Platform.DefaultDevice binds the first device of the first platform, with
// no preference for device type.
//
// # Example
//
//	platform := opencl.NewPlatform()
//	device, err := platform.DefaultDevice()
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	ctx, err := device.NewContext()
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer ctx.Release()
package opencl
