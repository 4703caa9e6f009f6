package dot

import (
	"errors"
	"fmt"

	"github.com/orneryd/cldot/pkg/compute"
)

// Errors returned by the pipeline. Each is wrapped in a *StageError together
// with the device-layer error that caused it, so both match with errors.Is.
var (
	ErrValidation   = errors.New("dot: invalid input")
	ErrContextBuild = errors.New("dot: failed to create compute context")
	ErrKernelBuild  = errors.New("dot: failed to build kernel")
	ErrAllocation   = errors.New("dot: device buffer allocation failed")
	ErrExecution    = errors.New("dot: kernel execution failed")
	ErrReadback     = errors.New("dot: partial sum readback failed")
)

var errEmptyPartition = errors.New("partition has no work-groups")

// Stage names a pipeline step.
type Stage string

const (
	StageValidate Stage = "validate"
	StageContext  Stage = "context"
	StageAllocate Stage = "allocate"
	StageBuild    Stage = "build"
	StageExecute  Stage = "execute"
	StageReadback Stage = "readback"
)

// StageError reports the stage that aborted the pipeline.
type StageError struct {
	Stage Stage
	// Kind is one of the package sentinels.
	Kind error
	// Err is the underlying device-layer error, nil for validation failures.
	Err error
}

func (e *StageError) Error() string {
	if e.Err == nil {
		return e.Kind.Error()
	}
	return fmt.Sprintf("%v: %v", e.Kind, e.Err)
}

func (e *StageError) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

// BuildLog returns the compiler log when the stage failed building the kernel.
func (e *StageError) BuildLog() string {
	var be *compute.BuildError
	if errors.As(e.Err, &be) {
		return be.Log
	}
	return ""
}

func stageError(stage Stage, kind, err error) *StageError {
	return &StageError{Stage: stage, Kind: kind, Err: err}
}

func validationError(format string, args ...any) *StageError {
	return &StageError{Stage: StageValidate, Kind: ErrValidation, Err: fmt.Errorf(format, args...)}
}
