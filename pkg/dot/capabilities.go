package dot

import (
	"math"

	"github.com/orneryd/cldot/pkg/compute"
)

// Capability names one field of DeviceCapabilities.
type Capability string

const (
	CapMaxWorkItemDims            Capability = "max_work_item_dims"
	CapMaxWorkGroupSize           Capability = "max_work_group_size"
	CapComputeUnits               Capability = "compute_units"
	CapLocalMemBytes              Capability = "local_mem_bytes"
	CapPreferredWorkGroupMultiple Capability = "preferred_work_group_multiple"
	CapMaxWorkItemSizes           Capability = "max_work_item_sizes"
)

// Values substituted for capabilities the device could not report.
const (
	DefaultMaxWorkItemDims            = 1
	DefaultMaxWorkGroupSize           = 1
	DefaultComputeUnits               = 0
	DefaultLocalMemBytes              = 0
	DefaultPreferredWorkGroupMultiple = 1
)

// DefaultMaxWorkItemSizes is substituted when the work-item size query fails.
func DefaultMaxWorkItemSizes() []int { return []int{1, 1, 1} }

// DeviceCapabilities holds the hardware limits the decomposition needs.
type DeviceCapabilities struct {
	MaxWorkItemDims            uint32
	MaxWorkGroupSize           int
	ComputeUnits               uint32
	LocalMemBytes              uint32
	PreferredWorkGroupMultiple int
	MaxWorkItemSizes           []int

	// Defaulted maps each capability whose query failed to the query error.
	// Capabilities absent from the map were reported by the device.
	Defaulted map[Capability]error
}

// IsDefaulted reports whether c holds its fallback value.
func (c DeviceCapabilities) IsDefaulted(capability Capability) bool {
	_, ok := c.Defaulted[capability]
	return ok
}

func (c *DeviceCapabilities) markDefaulted(capability Capability, err error) {
	if c.Defaulted == nil {
		c.Defaulted = make(map[Capability]error)
	}
	c.Defaulted[capability] = err
}

// Inspect queries the device's hardware limits. A failed query leaves that
// field at its default and is recorded in Defaulted; inspection never fails.
func Inspect(dev compute.Device) DeviceCapabilities {
	caps := DeviceCapabilities{
		MaxWorkItemDims:            DefaultMaxWorkItemDims,
		MaxWorkGroupSize:           DefaultMaxWorkGroupSize,
		ComputeUnits:               DefaultComputeUnits,
		LocalMemBytes:              DefaultLocalMemBytes,
		PreferredWorkGroupMultiple: DefaultPreferredWorkGroupMultiple,
		MaxWorkItemSizes:           DefaultMaxWorkItemSizes(),
	}

	if v, err := dev.Info(compute.InfoMaxWorkItemDimensions); err != nil {
		caps.markDefaulted(CapMaxWorkItemDims, err)
	} else {
		caps.MaxWorkItemDims = clampUint32(v)
	}

	if v, err := dev.Info(compute.InfoMaxWorkGroupSize); err != nil {
		caps.markDefaulted(CapMaxWorkGroupSize, err)
	} else {
		caps.MaxWorkGroupSize = int(min(v, math.MaxInt32))
	}

	if v, err := dev.Info(compute.InfoMaxComputeUnits); err != nil {
		caps.markDefaulted(CapComputeUnits, err)
	} else {
		caps.ComputeUnits = clampUint32(v)
	}

	if v, err := dev.Info(compute.InfoLocalMemSize); err != nil {
		caps.markDefaulted(CapLocalMemBytes, err)
	} else {
		caps.LocalMemBytes = clampUint32(v)
	}

	if sizes, err := dev.WorkItemSizes(); err != nil || len(sizes) == 0 {
		if err == nil {
			err = compute.ErrInfoUnavailable
		}
		caps.markDefaulted(CapMaxWorkItemSizes, err)
	} else {
		caps.MaxWorkItemSizes = sizes
	}

	return caps
}

// InspectKernel fills in the kernel-specific preferred work-group multiple.
func InspectKernel(caps *DeviceCapabilities, k compute.Kernel) {
	v, err := k.WorkGroupInfo(compute.KernelPreferredWorkGroupSizeMultiple)
	if err != nil || v == 0 {
		if err == nil {
			err = compute.ErrInfoUnavailable
		}
		caps.PreferredWorkGroupMultiple = DefaultPreferredWorkGroupMultiple
		caps.markDefaulted(CapPreferredWorkGroupMultiple, err)
		return
	}
	caps.PreferredWorkGroupMultiple = int(min(v, math.MaxInt32))
}

func clampUint32(v uint64) uint32 {
	if v > math.MaxUint32 {
		return math.MaxUint32
	}
	return uint32(v)
}
