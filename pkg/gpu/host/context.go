package host

import (
	"fmt"
	"sync"

	"github.com/orneryd/cldot/pkg/compute"
	"github.com/orneryd/cldot/pkg/pool"
)

const float64Size = 8

// Context is a host compute context. It tracks every buffer and program it
// created so Release can reclaim anything the caller leaked.
type Context struct {
	device *Device

	mu       sync.Mutex
	released bool
	buffers  map[*Buffer]struct{}
	programs []*Program
}

// BuildProgram binds the __kernel entry points in source to registered Go
// kernel bodies.
func (c *Context) BuildProgram(source string) (compute.Program, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.released {
		return nil, ErrInvalidContext
	}

	prog, err := buildProgram(c, source)
	if err != nil {
		return nil, err
	}
	c.programs = append(c.programs, prog)
	return prog, nil
}

// NewBuffer allocates a buffer holding a copy of data.
func (c *Context) NewBuffer(flags compute.MemFlags, data []float64) (compute.Buffer, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: cannot create empty buffer", ErrInvalidMemObject)
	}
	buf, err := c.alloc(flags, len(data))
	if err != nil {
		return nil, err
	}
	copy(buf.data, data)
	return buf, nil
}

// NewEmptyBuffer allocates a zeroed buffer of count elements.
func (c *Context) NewEmptyBuffer(flags compute.MemFlags, count int) (compute.Buffer, error) {
	if count <= 0 {
		return nil, fmt.Errorf("%w: invalid element count %d", ErrInvalidMemObject, count)
	}
	buf, err := c.alloc(flags, count)
	if err != nil {
		return nil, err
	}
	return buf, nil
}

func (c *Context) alloc(flags compute.MemFlags, count int) (*Buffer, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.released {
		return nil, ErrInvalidContext
	}

	bytes := int64(count) * float64Size
	if err := c.device.reserve(bytes); err != nil {
		return nil, err
	}

	buf := &Buffer{
		ctx:   c,
		flags: flags,
		data:  pool.GetFloat64s(count),
		bytes: bytes,
	}
	c.buffers[buf] = struct{}{}
	return buf, nil
}

func (c *Context) forget(b *Buffer) {
	c.mu.Lock()
	delete(c.buffers, b)
	c.mu.Unlock()
}

// Release frees every object still owned by the context.
func (c *Context) Release() {
	c.mu.Lock()
	if c.released {
		c.mu.Unlock()
		return
	}
	c.released = true
	buffers := make([]*Buffer, 0, len(c.buffers))
	for b := range c.buffers {
		buffers = append(buffers, b)
	}
	programs := c.programs
	c.programs = nil
	c.mu.Unlock()

	for _, b := range buffers {
		b.Release()
	}
	for _, p := range programs {
		p.Release()
	}
}

// Buffer is host memory standing in for device memory.
type Buffer struct {
	ctx   *Context
	flags compute.MemFlags
	bytes int64

	mu       sync.RWMutex
	data     []float64
	released bool
}

// Len returns the element count.
func (b *Buffer) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.data)
}

// Flags returns the access flags the buffer was created with.
func (b *Buffer) Flags() compute.MemFlags { return b.flags }

// Data exposes the backing storage to kernel bodies.
func (b *Buffer) Data() []float64 { return b.data }

// Read copies the first len(dst) elements into dst.
func (b *Buffer) Read(dst []float64) error {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.released {
		return fmt.Errorf("%w: buffer released", ErrInvalidMemObject)
	}
	if len(dst) > len(b.data) {
		return fmt.Errorf("%w: read of %d elements from buffer of %d",
			ErrInvalidMemObject, len(dst), len(b.data))
	}
	copy(dst, b.data)
	return nil
}

// Release returns the buffer's memory to the device.
func (b *Buffer) Release() {
	b.mu.Lock()
	if b.released {
		b.mu.Unlock()
		return
	}
	b.released = true
	data := b.data
	b.data = nil
	b.mu.Unlock()

	pool.PutFloat64s(data)
	b.ctx.device.unreserve(b.bytes)
	b.ctx.forget(b)
}

func (b *Buffer) isLive() bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return !b.released
}
