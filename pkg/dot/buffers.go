package dot

import (
	"github.com/orneryd/cldot/pkg/compute"
)

// DeviceBuffers are the three device allocations of one invocation.
type DeviceBuffers struct {
	X        compute.Buffer
	Y        compute.Buffer
	Partials compute.Buffer
}

// AllocateBuffers uploads x and y into read-only buffers and allocates a
// write-only buffer of p.WorkGroupCount partial sums. On failure every buffer
// already allocated is released before the error is returned.
func AllocateBuffers(ctx compute.Context, x, y []float64, p WorkPartition) (*DeviceBuffers, error) {
	bufs := &DeviceBuffers{}

	var err error
	if bufs.X, err = ctx.NewBuffer(compute.MemReadOnly, x); err != nil {
		return nil, stageError(StageAllocate, ErrAllocation, err)
	}
	if bufs.Y, err = ctx.NewBuffer(compute.MemReadOnly, y); err != nil {
		bufs.Release()
		return nil, stageError(StageAllocate, ErrAllocation, err)
	}
	if bufs.Partials, err = ctx.NewEmptyBuffer(compute.MemWriteOnly, p.WorkGroupCount); err != nil {
		bufs.Release()
		return nil, stageError(StageAllocate, ErrAllocation, err)
	}
	return bufs, nil
}

// Bytes returns the device memory held by the buffers.
func (b *DeviceBuffers) Bytes() int {
	var n int
	for _, buf := range []compute.Buffer{b.X, b.Y, b.Partials} {
		if buf != nil {
			n += buf.Len() * float64Size
		}
	}
	return n
}

// Release frees every allocated buffer. It is safe to call more than once.
func (b *DeviceBuffers) Release() {
	if b == nil {
		return
	}
	for _, buf := range []*compute.Buffer{&b.X, &b.Y, &b.Partials} {
		if *buf != nil {
			(*buf).Release()
			*buf = nil
		}
	}
}
