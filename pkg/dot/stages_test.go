package dot

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/orneryd/cldot/pkg/compute"
	"github.com/orneryd/cldot/pkg/gpu/host"
)

func TestInspect(t *testing.T) {
	t.Run("reported", func(t *testing.T) {
		dev := host.NewDevice(
			host.WithComputeUnits(12),
			host.WithLocalMemSize(48*1024),
			host.WithMaxWorkGroupSize(512),
		)

		caps := Inspect(dev)
		assert.Equal(t, uint32(3), caps.MaxWorkItemDims)
		assert.Equal(t, 512, caps.MaxWorkGroupSize)
		assert.Equal(t, uint32(12), caps.ComputeUnits)
		assert.Equal(t, uint32(48*1024), caps.LocalMemBytes)
		assert.Equal(t, []int{512, 512, 32}, caps.MaxWorkItemSizes)
		assert.Empty(t, caps.Defaulted)
	})

	t.Run("partial failure", func(t *testing.T) {
		dev := host.NewDevice(
			host.WithComputeUnits(0),
			host.WithLocalMemSize(-1),
			host.WithMaxWorkGroupSize(64),
		)

		caps := Inspect(dev)
		assert.Equal(t, 64, caps.MaxWorkGroupSize)
		assert.Equal(t, uint32(DefaultComputeUnits), caps.ComputeUnits)
		assert.Equal(t, uint32(DefaultLocalMemBytes), caps.LocalMemBytes)
		assert.True(t, caps.IsDefaulted(CapComputeUnits))
		assert.True(t, caps.IsDefaulted(CapLocalMemBytes))
		assert.False(t, caps.IsDefaulted(CapMaxWorkGroupSize))
		assert.ErrorIs(t, caps.Defaulted[CapComputeUnits], compute.ErrInfoUnavailable)
	})

	t.Run("all queries fail", func(t *testing.T) {
		platform, _ := newFaultPlatform(&faults{infoFails: true})
		dev, err := platform.DefaultDevice()
		require.NoError(t, err)

		caps := Inspect(dev)
		assert.Equal(t, DeviceCapabilities{
			MaxWorkItemDims:            DefaultMaxWorkItemDims,
			MaxWorkGroupSize:           DefaultMaxWorkGroupSize,
			ComputeUnits:               DefaultComputeUnits,
			LocalMemBytes:              DefaultLocalMemBytes,
			PreferredWorkGroupMultiple: DefaultPreferredWorkGroupMultiple,
			MaxWorkItemSizes:           DefaultMaxWorkItemSizes(),
			Defaulted:                  caps.Defaulted,
		}, caps)
		assert.Len(t, caps.Defaulted, 5)
	})
}

func TestInspectKernel(t *testing.T) {
	dev := host.NewDevice()
	ctx, err := dev.NewContext()
	require.NoError(t, err)
	defer ctx.Release()

	prog, k, err := BuildKernel(ctx)
	require.NoError(t, err)
	defer prog.Release()

	caps := Inspect(dev)
	InspectKernel(&caps, k)
	assert.GreaterOrEqual(t, caps.PreferredWorkGroupMultiple, 1)
	assert.False(t, caps.IsDefaulted(CapPreferredWorkGroupMultiple))

	tests := []struct {
		name    string
		fault   kernelInfoFault
		wantErr error
	}{
		{"query fails", kernelInfoFails, errInjectedKernel},
		{"zero reported", kernelInfoZero, compute.ErrInfoUnavailable},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fk := &faultKernel{Kernel: k, f: &faults{kernelInfo: tt.fault}}
			caps := DeviceCapabilities{PreferredWorkGroupMultiple: 32}

			InspectKernel(&caps, fk)
			assert.Equal(t, DefaultPreferredWorkGroupMultiple, caps.PreferredWorkGroupMultiple)
			assert.True(t, caps.IsDefaulted(CapPreferredWorkGroupMultiple))
			assert.ErrorIs(t, caps.Defaulted[CapPreferredWorkGroupMultiple], tt.wantErr)
		})
	}
}

func TestDecompose(t *testing.T) {
	caps := DeviceCapabilities{ComputeUnits: 4, LocalMemBytes: 1024}

	tests := []struct {
		n          int
		wantGroups int
		wantSizing Sizing
	}{
		{4, 1, Sizing{ItemsPerUnit: 1, LocalMemBudget: 32, LocalArraySize: 4}},
		{16, 4, Sizing{ItemsPerUnit: 4, LocalMemBudget: 128, LocalArraySize: 16}},
		{1024, 256, Sizing{ItemsPerUnit: 256, LocalMemBudget: 1024, LocalArraySize: 128}},
	}
	for _, tt := range tests {
		part, sizing := Decompose(tt.n, caps)
		assert.Equal(t, tt.wantGroups, part.WorkGroupCount, "n=%d", tt.n)
		assert.Equal(t, 1, part.WorkGroupSize)
		assert.Equal(t, PrivateBlockSize, part.PrivateBlockSize)
		assert.Equal(t, tt.n, part.WorkGroupCount*part.PrivateBlockSize)
		assert.Equal(t, tt.wantGroups, part.GlobalWorkSize())
		assert.Equal(t, tt.wantSizing, sizing, "n=%d", tt.n)
	}

	t.Run("zero compute units", func(t *testing.T) {
		part, sizing := Decompose(8, DeviceCapabilities{})
		assert.Equal(t, 2, part.WorkGroupCount)
		assert.Equal(t, 8, sizing.ItemsPerUnit)
		assert.Zero(t, sizing.LocalMemBudget)
	})

	t.Run("pure", func(t *testing.T) {
		a1, s1 := Decompose(4096, caps)
		a2, s2 := Decompose(4096, caps)
		assert.Equal(t, a1, a2)
		assert.Equal(t, s1, s2)
	})

	t.Run("non-positive", func(t *testing.T) {
		part, _ := Decompose(0, caps)
		assert.Zero(t, part.WorkGroupCount)
		assert.Equal(t, 1, part.WorkGroupSize)
	})
}

func TestPaddedLength(t *testing.T) {
	for n, want := range map[int]int{1: 4, 4: 4, 5: 8, 8: 8, 1001: 1004} {
		assert.Equal(t, want, paddedLength(n), "n=%d", n)
	}
}

func TestAllocateBuffers(t *testing.T) {
	dev := host.NewDevice(host.WithMemoryLimit(1 << 20))
	ctx, err := dev.NewContext()
	require.NoError(t, err)
	defer ctx.Release()

	x := []float64{1, 2, 3, 4, 5, 6, 7, 8}
	part := WorkPartition{WorkGroupCount: 2, WorkGroupSize: 1, PrivateBlockSize: 4}

	bufs, err := AllocateBuffers(ctx, x, x, part)
	require.NoError(t, err)
	assert.Equal(t, 8, bufs.X.Len())
	assert.Equal(t, compute.MemReadOnly, bufs.X.Flags())
	assert.Equal(t, compute.MemWriteOnly, bufs.Partials.Flags())
	assert.Equal(t, 2, bufs.Partials.Len())
	assert.Equal(t, (8+8+2)*8, bufs.Bytes())
	assert.Equal(t, int64(bufs.Bytes()), dev.AllocatedBytes())

	bufs.Release()
	bufs.Release()
	assert.Zero(t, dev.AllocatedBytes())
	assert.Zero(t, bufs.Bytes())
}

func TestBuildAndExecute(t *testing.T) {
	dev := host.NewDevice(host.WithComputeUnits(2))
	ctx, err := dev.NewContext()
	require.NoError(t, err)
	defer ctx.Release()

	prog, k, err := BuildKernel(ctx)
	require.NoError(t, err)
	defer prog.Release()
	assert.Equal(t, KernelName, k.Name())

	x := []float64{1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12}
	y := []float64{1, 1, 1, 1, 2, 2, 2, 2, 0, 0, 0, 1}
	part, _ := Decompose(len(x), Inspect(dev))

	bufs, err := AllocateBuffers(ctx, x, y, part)
	require.NoError(t, err)
	defer bufs.Release()

	require.NoError(t, Execute(k, bufs, part))

	partials := make([]float64, part.WorkGroupCount)
	require.NoError(t, bufs.Partials.Read(partials))
	assert.Equal(t, []float64{10, 52, 12}, partials)

	sum, err := Reduce(bufs, part)
	require.NoError(t, err)
	assert.Equal(t, 74.0, sum)

	t.Run("released kernel", func(t *testing.T) {
		k.Release()
		err := Execute(k, bufs, part)
		assert.ErrorIs(t, err, ErrExecution)
	})

	t.Run("empty partition", func(t *testing.T) {
		_, err := Reduce(bufs, WorkPartition{})
		assert.ErrorIs(t, err, ErrReadback)
	})
}

func TestKernelSource(t *testing.T) {
	assert.Contains(t, KernelSource, "__kernel void dot_product(")
	assert.Contains(t, KernelSource, "cl_khr_fp64")
	assert.Contains(t, KernelSource, "(GROUP_ID * GROUP_SIZE + LOCAL_ID) * PRIVATE_SIZE")
	assert.Contains(t, KernelSource, "barrier(CLK_LOCAL_MEM_FENCE)")
}
