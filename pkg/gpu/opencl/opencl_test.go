//go:build opencl && (linux || windows || darwin)
// +build opencl
// +build linux windows darwin

package opencl

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/orneryd/cldot/pkg/compute"
)

const sumSource = `
#pragma OPENCL EXTENSION cl_khr_fp64 : enable
__kernel void pair_sum(__global const double* x, __global double* out) {
  const int gid = get_global_id(0);
  out[gid] = x[2 * gid] + x[2 * gid + 1];
}
`

func requireDevice(t *testing.T) compute.Device {
	t.Helper()
	if !IsAvailable() {
		t.Skip("no OpenCL device available")
	}
	dev, err := NewPlatform().DefaultDevice()
	require.NoError(t, err)
	return dev
}

func TestDeviceInfo(t *testing.T) {
	dev := requireDevice(t)

	assert.NotEmpty(t, dev.Name())
	assert.NotEmpty(t, dev.Vendor())

	dims, err := dev.Info(compute.InfoMaxWorkItemDimensions)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, dims, uint64(1))

	sizes, err := dev.WorkItemSizes()
	require.NoError(t, err)
	assert.Len(t, sizes, int(dims))
}

func TestRoundTrip(t *testing.T) {
	dev := requireDevice(t)

	ctx, err := dev.NewContext()
	require.NoError(t, err)
	defer ctx.Release()

	prog, err := ctx.BuildProgram(sumSource)
	if err != nil {
		t.Skipf("device cannot build fp64 source: %v", err)
	}
	defer prog.Release()

	k, err := prog.Kernel("pair_sum")
	require.NoError(t, err)
	defer k.Release()

	in, err := ctx.NewBuffer(compute.MemReadOnly, []float64{1, 2, 3, 4})
	require.NoError(t, err)
	defer in.Release()
	out, err := ctx.NewEmptyBuffer(compute.MemWriteOnly, 2)
	require.NoError(t, err)
	defer out.Release()

	require.NoError(t, k.SetArgs(in, out))
	require.NoError(t, k.Enqueue(compute.NDRange{GlobalSize: 2, LocalSize: 1}))

	got := make([]float64, 2)
	require.NoError(t, out.Read(got))
	assert.Equal(t, []float64{3, 7}, got)
}

func TestBuildFailureLog(t *testing.T) {
	dev := requireDevice(t)

	ctx, err := dev.NewContext()
	require.NoError(t, err)
	defer ctx.Release()

	_, err = ctx.BuildProgram("__kernel void broken( { }")
	require.ErrorIs(t, err, ErrProgramBuild)

	var be *compute.BuildError
	require.ErrorAs(t, err, &be)
}
