package dot

import (
	"github.com/orneryd/cldot/pkg/compute"
)

// KernelName is the entry point in KernelSource.
const KernelName = "dot_product"

// KernelSource is the partial-reduction kernel. Work-item (group g, local id
// l) owns the PRIVATE_SIZE elements starting at (g*local_size + l)*PRIVATE_SIZE,
// so tiles are disjoint and cover exactly global_size*PRIVATE_SIZE elements.
// The launch always uses a local size of 1, which makes partial_sums[group]
// the sum of that work-item's tile.
const KernelSource = `
#pragma OPENCL EXTENSION cl_khr_fp64 : enable

__kernel void dot_product(
  __global const double* x,
  __global const double* y,
  __global double* partial_sums
){
  const size_t LOCAL_ID = get_local_id(0);
  const size_t GROUP_SIZE = get_local_size(0);
  const size_t GROUP_ID = get_group_id(0);
  const size_t PRIVATE_SIZE = 4;

  const size_t base = (GROUP_ID * GROUP_SIZE + LOCAL_ID) * PRIVATE_SIZE;

  double tmp[4];
  for (size_t i = 0; i < PRIVATE_SIZE; ++i) {
    tmp[i] = x[base + i] * y[base + i];
  }

  barrier(CLK_LOCAL_MEM_FENCE);

  double sum = 0.0;
  for (size_t i = 0; i < PRIVATE_SIZE; ++i) {
    sum += tmp[i];
  }

  partial_sums[GROUP_ID] = sum;
}
`

// BuildKernel compiles KernelSource and creates the dot_product kernel. The
// caller releases both returned objects.
func BuildKernel(ctx compute.Context) (compute.Program, compute.Kernel, error) {
	prog, err := ctx.BuildProgram(KernelSource)
	if err != nil {
		return nil, nil, stageError(StageBuild, ErrKernelBuild, err)
	}
	k, err := prog.Kernel(KernelName)
	if err != nil {
		prog.Release()
		return nil, nil, stageError(StageBuild, ErrKernelBuild, err)
	}
	return prog, k, nil
}

// Execute binds (x, y, partial_sums) and launches p.WorkGroupCount groups of
// p.WorkGroupSize work-items at offset zero. It returns once the device has
// finished.
func Execute(k compute.Kernel, bufs *DeviceBuffers, p WorkPartition) error {
	if err := k.SetArgs(bufs.X, bufs.Y, bufs.Partials); err != nil {
		return stageError(StageExecute, ErrExecution, err)
	}

	r := compute.NDRange{
		GlobalOffset: 0,
		GlobalSize:   p.GlobalWorkSize(),
		LocalSize:    p.WorkGroupSize,
	}
	if err := k.Enqueue(r); err != nil {
		return stageError(StageExecute, ErrExecution, err)
	}
	return nil
}
