package host

import (
	"errors"
	"fmt"
	"slices"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/orneryd/cldot/pkg/compute"
)

// WorkItem identifies one invocation of a kernel body.
type WorkItem struct {
	GlobalID  int
	LocalID   int
	GroupID   int
	LocalSize int
	NumGroups int

	barrier *barrier
}

// Barrier blocks until every work-item of the group has reached it.
func (wi *WorkItem) Barrier() {
	wi.barrier.wait()
}

// Enqueue runs the kernel over r and returns once every work-group finished.
func (k *Kernel) Enqueue(r compute.NDRange) error {
	if err := r.Validate(); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidWorkGroupSize, err)
	}

	dev := k.program.ctx.device
	if dev.maxWorkGroupSize > 0 && r.LocalSize > dev.maxWorkGroupSize {
		return fmt.Errorf("%w: local size %d exceeds device limit %d",
			ErrInvalidWorkGroupSize, r.LocalSize, dev.maxWorkGroupSize)
	}

	k.mu.Lock()
	if k.released {
		k.mu.Unlock()
		return ErrInvalidKernel
	}
	args := k.args
	k.mu.Unlock()

	if args == nil {
		return fmt.Errorf("%w: %s has unbound arguments", ErrInvalidKernelArgs, k.name)
	}

	// Hold every argument for the duration of the launch so a concurrent
	// Release cannot pull storage out from under running work-items. A buffer
	// bound more than once is locked once; a second RLock would queue behind
	// a waiting Release.
	held := make([]*Buffer, 0, len(args))
	for i, b := range args {
		if slices.Contains(held, b) {
			continue
		}
		b.mu.RLock()
		held = append(held, b)
		if b.released {
			for _, h := range held {
				h.mu.RUnlock()
			}
			return fmt.Errorf("%w: argument %d was released", ErrInvalidMemObject, i)
		}
	}
	defer func() {
		for _, b := range held {
			b.mu.RUnlock()
		}
	}()

	groups := r.Groups()
	var g errgroup.Group
	g.SetLimit(max(dev.computeUnits, 1))
	for group := 0; group < groups; group++ {
		g.Go(func() error {
			return k.runGroup(group, groups, r, args)
		})
	}
	return g.Wait()
}

func (k *Kernel) runGroup(group, groups int, r compute.NDRange, args []*Buffer) error {
	b := newBarrier(r.LocalSize)
	items := make([]WorkItem, r.LocalSize)
	for lid := range items {
		items[lid] = WorkItem{
			GlobalID:  r.GlobalOffset + group*r.LocalSize + lid,
			LocalID:   lid,
			GroupID:   group,
			LocalSize: r.LocalSize,
			NumGroups: groups,
			barrier:   b,
		}
	}

	if r.LocalSize == 1 {
		return k.runItem(&items[0], args)
	}

	errs := make([]error, r.LocalSize)
	var wg sync.WaitGroup
	for lid := range items {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs[lid] = k.runItem(&items[lid], args)
		}()
	}
	wg.Wait()
	return errors.Join(errs...)
}

func (k *Kernel) runItem(wi *WorkItem, args []*Buffer) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			wi.barrier.abort()
			if rec == errBarrierBroken {
				return
			}
			err = fmt.Errorf("%w: %s: work-item %d of group %d: %v",
				ErrKernelFault, k.name, wi.LocalID, wi.GroupID, rec)
		}
	}()
	k.spec.fn(wi, args)
	return nil
}

var errBarrierBroken = errors.New("host: barrier broken")

// barrier is a reusable work-group barrier. A faulting work-item aborts it
// so the rest of the group does not wait forever.
type barrier struct {
	mu         sync.Mutex
	cond       *sync.Cond
	parties    int
	waiting    int
	generation int
	broken     bool
}

func newBarrier(parties int) *barrier {
	b := &barrier{parties: parties}
	b.cond = sync.NewCond(&b.mu)
	return b
}

func (b *barrier) wait() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.broken {
		panic(errBarrierBroken)
	}

	gen := b.generation
	b.waiting++
	if b.waiting == b.parties {
		b.waiting = 0
		b.generation++
		b.cond.Broadcast()
		return
	}

	for gen == b.generation && !b.broken {
		b.cond.Wait()
	}
	if b.broken {
		panic(errBarrierBroken)
	}
}

func (b *barrier) abort() {
	b.mu.Lock()
	b.broken = true
	b.cond.Broadcast()
	b.mu.Unlock()
}
