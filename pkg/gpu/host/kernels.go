package host

// dotPrivateSize is PRIVATE_SIZE in the dot_product kernel source.
const dotPrivateSize = 4

// dotProductKernel is the host body of:
//
//	__kernel void dot_product(__global const double* x,
//	                          __global const double* y,
//	                          __global double* partial_sums)
//
// Each work-item multiplies dotPrivateSize consecutive element pairs of its
// own tile into private storage, waits at the group barrier, and writes the
// sum of its tile to partial_sums[group_id].
func dotProductKernel(wi *WorkItem, args []*Buffer) {
	x, y, partials := args[0].data, args[1].data, args[2].data

	var tmp [dotPrivateSize]float64
	base := (wi.GroupID*wi.LocalSize + wi.LocalID) * dotPrivateSize
	for i := 0; i < dotPrivateSize; i++ {
		tmp[i] = x[base+i] * y[base+i]
	}

	wi.Barrier()

	var sum float64
	for i := 0; i < dotPrivateSize; i++ {
		sum += tmp[i]
	}
	partials[wi.GroupID] = sum
}
