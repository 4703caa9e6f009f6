package dot

// PrivateBlockSize is the number of element pairs each work-item multiplies
// and sums in private memory. It is a tuning constant, not derived from the
// device: larger blocks mean fewer work-items and more register pressure.
// KernelSource hard-codes the same value as PRIVATE_SIZE.
const PrivateBlockSize = 4

const float64Size = 8

// WorkPartition is the launch geometry for one invocation.
type WorkPartition struct {
	WorkGroupCount   int
	WorkGroupSize    int
	PrivateBlockSize int
}

// GlobalWorkSize returns the number of work-items launched.
func (p WorkPartition) GlobalWorkSize() int {
	return p.WorkGroupCount * p.WorkGroupSize
}

// Sizing holds the informational quantities derived alongside a partition.
// None of them constrain the launch.
type Sizing struct {
	// ItemsPerUnit is ceil(n / compute units), the element share of each
	// compute unit.
	ItemsPerUnit int
	// LocalMemBudget is the bytes of local memory the input could occupy.
	LocalMemBudget int
	// LocalArraySize is LocalMemBudget in float64 elements.
	LocalArraySize int
}

// Decompose derives the work partition for n elements. n must be a positive
// multiple of PrivateBlockSize; the pipeline validates or pads its input to
// guarantee that. Decompose is pure: equal inputs give equal outputs.
func Decompose(n int, caps DeviceCapabilities) (WorkPartition, Sizing) {
	if n <= 0 {
		return WorkPartition{WorkGroupSize: 1, PrivateBlockSize: PrivateBlockSize}, Sizing{}
	}

	units := max(int(caps.ComputeUnits), 1)
	budget := min(int(caps.LocalMemBytes), n*float64Size)

	sizing := Sizing{
		ItemsPerUnit:   (n + units - 1) / units,
		LocalMemBudget: budget,
		LocalArraySize: (budget + float64Size - 1) / float64Size,
	}

	part := WorkPartition{
		WorkGroupCount:   n / PrivateBlockSize,
		WorkGroupSize:    1,
		PrivateBlockSize: PrivateBlockSize,
	}
	return part, sizing
}

// paddedLength rounds n up to the next multiple of PrivateBlockSize.
func paddedLength(n int) int {
	return (n + PrivateBlockSize - 1) / PrivateBlockSize * PrivateBlockSize
}
