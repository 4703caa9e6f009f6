package opencl

import (
	"fmt"

	"github.com/orneryd/cldot/pkg/compute"
)

// workItemDims converts a reported CL_DEVICE_MAX_WORK_ITEM_DIMENSIONS into
// a slice length for the CL_DEVICE_MAX_WORK_ITEM_SIZES query. Zero is
// rejected since the size query needs at least one element to write into.
func workItemDims(dims uint64) (int, error) {
	if dims == 0 {
		return 0, fmt.Errorf("%w: max_work_item_sizes: device reports 0 dimensions", compute.ErrInfoUnavailable)
	}
	return int(dims), nil
}
