package dot

import (
	"gonum.org/v1/gonum/floats"

	"github.com/orneryd/cldot/pkg/pool"
)

// Reduce reads the p.WorkGroupCount partial sums back from the device and
// folds them into the final result in group order.
func Reduce(bufs *DeviceBuffers, p WorkPartition) (float64, error) {
	if p.WorkGroupCount <= 0 {
		return 0, stageError(StageReadback, ErrReadback, errEmptyPartition)
	}

	partials := pool.GetFloat64s(p.WorkGroupCount)
	defer pool.PutFloat64s(partials)

	if err := bufs.Partials.Read(partials); err != nil {
		return 0, stageError(StageReadback, ErrReadback, err)
	}
	return floats.Sum(partials), nil
}
