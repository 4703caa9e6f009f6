// Package dot computes float64 dot products on a compute device.
//
// An invocation runs a fixed pipeline against the default device of a
// compute.Platform:
//
//  1. Validate the inputs (equal, non-zero lengths divisible by
//     PrivateBlockSize, or padded under TailPad).
//  2. Open a context on the device.
//  3. Inspect the device limits. A limit the device cannot report falls
//     back to a default and is recorded in DeviceCapabilities.Defaulted.
//  4. Decompose the input: one work-item of PrivateBlockSize element pairs
//     per work-group, N/PrivateBlockSize work-groups.
//  5. Upload x and y and allocate one partial sum per work-group.
//  6. Build KernelSource and launch it.
//  7. Read the partial sums back and add them on the host.
//
// A failure in steps 1, 2 or 5 to 7 aborts the invocation with a *StageError
// that matches both the stage sentinel (ErrAllocation, ErrExecution, ...) and
// the backend's own error under errors.Is. Every device object is released on
// every path.
//
// Example:
//
//	accel, err := gpu.NewAccelerator(nil)
//	if err != nil {
//		return err
//	}
//	p := dot.New(accel.Platform(),
//		dot.WithTailPolicy(dot.TailPad),
//		dot.WithSink(dot.NewLogSink(slog.Default())),
//	)
//	sum, err := p.DotProduct(x, y)
package dot
