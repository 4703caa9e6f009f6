package host

import (
	"fmt"
	"regexp"
	"strings"
	"sync"

	"github.com/orneryd/cldot/pkg/compute"
)

// KernelFunc is the Go body of a kernel, invoked once per work-item.
type KernelFunc func(wi *WorkItem, args []*Buffer)

type kernelSpec struct {
	fn      KernelFunc
	numArgs int
}

var (
	registryMu sync.RWMutex
	registry   = map[string]kernelSpec{
		"dot_product": {fn: dotProductKernel, numArgs: 3},
	}
)

// RegisterKernel makes fn available to programs that declare a __kernel
// named name with numArgs parameters. Registering an existing name replaces
// it.
func RegisterKernel(name string, numArgs int, fn KernelFunc) {
	registryMu.Lock()
	defer registryMu.Unlock()
	registry[name] = kernelSpec{fn: fn, numArgs: numArgs}
}

func lookupKernel(name string) (kernelSpec, bool) {
	registryMu.RLock()
	defer registryMu.RUnlock()
	spec, ok := registry[name]
	return spec, ok
}

var entryPointRe = regexp.MustCompile(`__kernel\s+void\s+([A-Za-z_]\w*)\s*\(([^)]*)\)`)

type entryPoint struct {
	name   string
	params int
}

func parseEntryPoints(source string) []entryPoint {
	var eps []entryPoint
	for _, m := range entryPointRe.FindAllStringSubmatch(source, -1) {
		params := 0
		for _, p := range strings.Split(m[2], ",") {
			if strings.TrimSpace(p) != "" {
				params++
			}
		}
		eps = append(eps, entryPoint{name: m[1], params: params})
	}
	return eps
}

// Program is a built host program.
type Program struct {
	ctx     *Context
	kernels map[string]kernelSpec
	log     string

	mu       sync.Mutex
	released bool
	issued   []*Kernel
}

func buildProgram(ctx *Context, source string) (*Program, error) {
	var log []string

	eps := parseEntryPoints(source)
	switch {
	case strings.TrimSpace(source) == "":
		log = append(log, "error: empty program source")
	case len(eps) == 0:
		log = append(log, "error: no __kernel functions found in source")
	}

	kernels := make(map[string]kernelSpec, len(eps))
	for _, ep := range eps {
		spec, ok := lookupKernel(ep.name)
		if !ok {
			log = append(log, fmt.Sprintf("error: kernel '%s' has no host implementation", ep.name))
			continue
		}
		if spec.numArgs != ep.params {
			log = append(log, fmt.Sprintf("error: kernel '%s' declares %d parameters, host implementation expects %d",
				ep.name, ep.params, spec.numArgs))
			continue
		}
		kernels[ep.name] = spec
	}

	if len(log) > 0 {
		return nil, &compute.BuildError{Log: strings.Join(log, "\n"), Err: ErrBuildProgramFailure}
	}

	return &Program{
		ctx:     ctx,
		kernels: kernels,
		log:     fmt.Sprintf("built %d kernel(s) for %s", len(kernels), ctx.device.name),
	}, nil
}

// Kernel creates a kernel object for the named entry point.
func (p *Program) Kernel(name string) (compute.Kernel, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.released {
		return nil, fmt.Errorf("%w: program released", ErrInvalidKernel)
	}
	spec, ok := p.kernels[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrInvalidKernelName, name)
	}
	k := &Kernel{name: name, spec: spec, program: p}
	p.issued = append(p.issued, k)
	return k, nil
}

// BuildLog returns the build log.
func (p *Program) BuildLog() string { return p.log }

// Release releases the program and every kernel created from it.
func (p *Program) Release() {
	p.mu.Lock()
	if p.released {
		p.mu.Unlock()
		return
	}
	p.released = true
	issued := p.issued
	p.issued = nil
	p.mu.Unlock()

	for _, k := range issued {
		k.Release()
	}
}

// Kernel is a host kernel object.
type Kernel struct {
	name    string
	spec    kernelSpec
	program *Program

	mu       sync.Mutex
	args     []*Buffer
	released bool
}

// Name returns the entry point name.
func (k *Kernel) Name() string { return k.name }

// SetArgs binds buffers to the kernel parameters in order.
func (k *Kernel) SetArgs(args ...compute.Buffer) error {
	if len(args) != k.spec.numArgs {
		return fmt.Errorf("%w: %s takes %d arguments, got %d",
			ErrInvalidKernelArgs, k.name, k.spec.numArgs, len(args))
	}

	bound := make([]*Buffer, len(args))
	for i, a := range args {
		b, ok := a.(*Buffer)
		if !ok || b == nil {
			return fmt.Errorf("%w: argument %d is not a host buffer", ErrInvalidMemObject, i)
		}
		if b.ctx != k.program.ctx {
			return fmt.Errorf("%w: argument %d belongs to another context", ErrInvalidMemObject, i)
		}
		if !b.isLive() {
			return fmt.Errorf("%w: argument %d was released", ErrInvalidMemObject, i)
		}
		bound[i] = b
	}

	k.mu.Lock()
	defer k.mu.Unlock()
	if k.released {
		return ErrInvalidKernel
	}
	k.args = bound
	return nil
}

// WorkGroupInfo answers kernel work-group queries.
func (k *Kernel) WorkGroupInfo(param compute.KernelInfoParam) (uint64, error) {
	dev := k.program.ctx.device
	switch param {
	case compute.KernelPreferredWorkGroupSizeMultiple:
		return uint64(dev.simdLanes), nil
	case compute.KernelWorkGroupSize:
		if dev.maxWorkGroupSize <= 0 {
			return 0, fmt.Errorf("%w: %s", compute.ErrInfoUnavailable, param)
		}
		return uint64(dev.maxWorkGroupSize), nil
	default:
		return 0, fmt.Errorf("%w: %s", compute.ErrInfoUnavailable, param)
	}
}

// Release drops the argument bindings.
func (k *Kernel) Release() {
	k.mu.Lock()
	defer k.mu.Unlock()
	k.released = true
	k.args = nil
}
