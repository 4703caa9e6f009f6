package dot

import (
	"errors"
	"sync"

	"github.com/orneryd/cldot/pkg/compute"
	"github.com/orneryd/cldot/pkg/gpu/host"
)

var (
	errInjectedInfo    = errors.New("injected: info query failed")
	errInjectedKernel  = errors.New("injected: kernel info query failed")
	errInjectedContext = errors.New("injected: context creation failed")
	errInjectedAlloc   = errors.New("injected: allocation failed")
	errInjectedBuild   = errors.New("injected: build failed")
	errInjectedEnqueue = errors.New("injected: enqueue failed")
	errInjectedRead    = errors.New("injected: read failed")
)

// faults wraps a host device and fails selected operations. Counters record
// what reached the device so tests can assert that later stages never ran.
type faults struct {
	infoFails    bool
	kernelInfo   kernelInfoFault
	contextFails bool
	failAlloc    int // 1-based allocation to fail, 0 for none
	buildFails   bool
	enqueueFails bool
	readFails    bool

	mu               sync.Mutex
	allocs           int
	enqueues         int
	reads            int
	contextsReleased int
	programsReleased int
	kernelsReleased  int
	buffersReleased  int
}

func (f *faults) count(c *int) {
	f.mu.Lock()
	*c++
	f.mu.Unlock()
}

func (f *faults) get(c *int) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return *c
}

type kernelInfoFault int

const (
	kernelInfoOK kernelInfoFault = iota
	kernelInfoFails
	kernelInfoZero
)

type faultPlatform struct {
	dev *faultDevice
}

func newFaultPlatform(f *faults, opts ...host.Option) (*faultPlatform, *host.Device) {
	hd := host.NewDevice(opts...)
	return &faultPlatform{dev: &faultDevice{Device: hd, f: f}}, hd
}

func (p *faultPlatform) Name() string { return "fault" }

func (p *faultPlatform) DefaultDevice() (compute.Device, error) { return p.dev, nil }

type faultDevice struct {
	*host.Device
	f *faults
}

func (d *faultDevice) Info(param compute.InfoParam) (uint64, error) {
	if d.f.infoFails {
		return 0, errInjectedInfo
	}
	return d.Device.Info(param)
}

func (d *faultDevice) WorkItemSizes() ([]int, error) {
	if d.f.infoFails {
		return nil, errInjectedInfo
	}
	return d.Device.WorkItemSizes()
}

func (d *faultDevice) NewContext() (compute.Context, error) {
	if d.f.contextFails {
		return nil, errInjectedContext
	}
	ctx, err := d.Device.NewContext()
	if err != nil {
		return nil, err
	}
	return &faultContext{Context: ctx, f: d.f}, nil
}

type faultContext struct {
	compute.Context
	f *faults
}

func (c *faultContext) alloc() error {
	c.f.count(&c.f.allocs)
	if c.f.get(&c.f.allocs) == c.f.failAlloc {
		return errInjectedAlloc
	}
	return nil
}

func (c *faultContext) NewBuffer(flags compute.MemFlags, data []float64) (compute.Buffer, error) {
	if err := c.alloc(); err != nil {
		return nil, err
	}
	b, err := c.Context.NewBuffer(flags, data)
	if err != nil {
		return nil, err
	}
	return &faultBuffer{Buffer: b, f: c.f}, nil
}

func (c *faultContext) NewEmptyBuffer(flags compute.MemFlags, count int) (compute.Buffer, error) {
	if err := c.alloc(); err != nil {
		return nil, err
	}
	b, err := c.Context.NewEmptyBuffer(flags, count)
	if err != nil {
		return nil, err
	}
	return &faultBuffer{Buffer: b, f: c.f}, nil
}

func (c *faultContext) BuildProgram(source string) (compute.Program, error) {
	if c.f.buildFails {
		return nil, &compute.BuildError{Log: "line 1: injected failure", Err: errInjectedBuild}
	}
	p, err := c.Context.BuildProgram(source)
	if err != nil {
		return nil, err
	}
	return &faultProgram{Program: p, f: c.f}, nil
}

func (c *faultContext) Release() {
	c.f.count(&c.f.contextsReleased)
	c.Context.Release()
}

type faultProgram struct {
	compute.Program
	f *faults
}

func (p *faultProgram) Kernel(name string) (compute.Kernel, error) {
	k, err := p.Program.Kernel(name)
	if err != nil {
		return nil, err
	}
	return &faultKernel{Kernel: k, f: p.f}, nil
}

func (p *faultProgram) Release() {
	p.f.count(&p.f.programsReleased)
	p.Program.Release()
}

type faultKernel struct {
	compute.Kernel
	f *faults
}

func (k *faultKernel) SetArgs(args ...compute.Buffer) error {
	inner := make([]compute.Buffer, len(args))
	for i, a := range args {
		inner[i] = a.(*faultBuffer).Buffer
	}
	return k.Kernel.SetArgs(inner...)
}

func (k *faultKernel) WorkGroupInfo(param compute.KernelInfoParam) (uint64, error) {
	switch k.f.kernelInfo {
	case kernelInfoFails:
		return 0, errInjectedKernel
	case kernelInfoZero:
		return 0, nil
	}
	return k.Kernel.WorkGroupInfo(param)
}

func (k *faultKernel) Enqueue(r compute.NDRange) error {
	k.f.count(&k.f.enqueues)
	if k.f.enqueueFails {
		return errInjectedEnqueue
	}
	return k.Kernel.Enqueue(r)
}

func (k *faultKernel) Release() {
	k.f.count(&k.f.kernelsReleased)
	k.Kernel.Release()
}

type faultBuffer struct {
	compute.Buffer
	f *faults
}

func (b *faultBuffer) Read(dst []float64) error {
	b.f.count(&b.f.reads)
	if b.f.readFails {
		return errInjectedRead
	}
	return b.Buffer.Read(dst)
}

func (b *faultBuffer) Release() {
	b.f.count(&b.f.buffersReleased)
	b.Buffer.Release()
}
