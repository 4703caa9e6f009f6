// Package host provides a compute device emulated on the host CPU.
//
// The host backend implements the pkg/compute interfaces without any driver
// or cgo dependency, which makes it the fallback whenever OpenCL is not
// available and the backend used by the test suite.
//
// # Execution Model
//
// A kernel launch is split into NDRange.Groups() work-groups. Work-groups are
// scheduled on goroutines, at most one per compute unit at a time. Work-items
// of a group run on their own goroutines and synchronise through a barrier,
// so a kernel body that calls WorkItem.Barrier behaves like one that calls
// barrier(CLK_LOCAL_MEM_FENCE) on a GPU.
//
// # Capabilities
//
// Device limits are derived from the host:
//   - Compute units: logical cores reported by cpuid
//   - Local memory: L1 data cache size reported by cpuid
//   - Global memory: total system memory
//   - Preferred work-group multiple: float64 SIMD lanes (8 with AVX-512,
//     4 with AVX2, 2 otherwise)
//
// A limit the host cannot determine makes the matching Info query fail with
// compute.ErrInfoUnavailable. Every limit can be overridden with an Option.
//
// # Programs
//
// BuildProgram accepts OpenCL C source. Each __kernel entry point in the
// source is bound to a Go implementation registered under the same name;
// the built-in registry contains dot_product. Sources that declare unknown
// entry points, or entry points whose parameter count does not match the
// registered implementation, fail to build with a compiler-style log.
//
// # Example
//
//	platform := host.NewPlatform()
//	device, _ := platform.DefaultDevice()
//	ctx, _ := device.NewContext()
//	defer ctx.Release()
//
//	program, err := ctx.BuildProgram(src)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer program.Release()
package host
