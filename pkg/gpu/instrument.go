package gpu

import (
	"github.com/orneryd/cldot/pkg/compute"
)

// The wrappers below forward to the backend objects and record usage in the
// owning Accelerator's stats.

type platform struct {
	compute.Platform
	accel *Accelerator
}

func (p *platform) DefaultDevice() (compute.Device, error) {
	dev, err := p.Platform.DefaultDevice()
	if err != nil {
		return nil, err
	}
	return &device{Device: dev, accel: p.accel}, nil
}

type device struct {
	compute.Device
	accel *Accelerator
}

func (d *device) NewContext() (compute.Context, error) {
	ctx, err := d.Device.NewContext()
	if err != nil {
		return nil, err
	}
	d.accel.record(func(s *AcceleratorStats) { s.ContextsCreated++ })
	return &computeContext{Context: ctx, accel: d.accel}, nil
}

type computeContext struct {
	compute.Context
	accel *Accelerator
}

func (c *computeContext) BuildProgram(source string) (compute.Program, error) {
	prog, err := c.Context.BuildProgram(source)
	if err != nil {
		return nil, err
	}
	return &program{Program: prog, accel: c.accel}, nil
}

func (c *computeContext) NewBuffer(flags compute.MemFlags, data []float64) (compute.Buffer, error) {
	buf, err := c.Context.NewBuffer(flags, data)
	if err != nil {
		return nil, err
	}
	c.accel.record(func(s *AcceleratorStats) {
		s.BuffersCreated++
		s.BytesUploaded += int64(len(data)) * 8
	})
	return &buffer{Buffer: buf, accel: c.accel}, nil
}

func (c *computeContext) NewEmptyBuffer(flags compute.MemFlags, count int) (compute.Buffer, error) {
	buf, err := c.Context.NewEmptyBuffer(flags, count)
	if err != nil {
		return nil, err
	}
	c.accel.record(func(s *AcceleratorStats) { s.BuffersCreated++ })
	return &buffer{Buffer: buf, accel: c.accel}, nil
}

type program struct {
	compute.Program
	accel *Accelerator
}

func (p *program) Kernel(name string) (compute.Kernel, error) {
	k, err := p.Program.Kernel(name)
	if err != nil {
		return nil, err
	}
	return &kernel{Kernel: k, accel: p.accel}, nil
}

type kernel struct {
	compute.Kernel
	accel *Accelerator
}

// SetArgs hands the backend its own buffer objects; backends reject buffers
// they did not create.
func (k *kernel) SetArgs(args ...compute.Buffer) error {
	inner := make([]compute.Buffer, len(args))
	for i, a := range args {
		if b, ok := a.(*buffer); ok {
			inner[i] = b.Buffer
		} else {
			inner[i] = a
		}
	}
	return k.Kernel.SetArgs(inner...)
}

func (k *kernel) Enqueue(r compute.NDRange) error {
	err := k.Kernel.Enqueue(r)
	k.accel.record(func(s *AcceleratorStats) {
		if err != nil {
			s.KernelFailures++
			return
		}
		s.KernelExecutions++
	})
	return err
}

type buffer struct {
	compute.Buffer
	accel *Accelerator
}

func (b *buffer) Read(dst []float64) error {
	if err := b.Buffer.Read(dst); err != nil {
		return err
	}
	b.accel.record(func(s *AcceleratorStats) { s.BytesDownloaded += int64(len(dst)) * 8 })
	return nil
}
