package pipeline

import (
	"errors"
	"fmt"
)

// Document-level failures. Either one means the document produced no table.
var (
	// ErrAcquisition is returned when the OCR engine could not be reached or
	// returned nothing.
	ErrAcquisition = errors.New("token acquisition failed")

	// ErrReconstruction is returned when grouping or extraction produced no
	// usable rows or records.
	ErrReconstruction = errors.New("ledger reconstruction failed")
)

// PipelineError ties a failure to the stage it happened in. Both the stage
// sentinel and the underlying cause match errors.Is.
type PipelineError struct {
	// Op is the operation that failed (e.g., "Process").
	Op string

	// Stage is ErrAcquisition or ErrReconstruction.
	Stage error

	// Err is the underlying error.
	Err error

	// Details provides additional context about the failure.
	Details string
}

func (e *PipelineError) Error() string {
	if e.Details != "" {
		return fmt.Sprintf("pipeline: %s failed: %v: %s: %v", e.Op, e.Stage, e.Details, e.Err)
	}
	return fmt.Sprintf("pipeline: %s failed: %v: %v", e.Op, e.Stage, e.Err)
}

// Unwrap exposes the stage and the cause.
func (e *PipelineError) Unwrap() []error {
	return []error{e.Stage, e.Err}
}

// NewPipelineError creates a new PipelineError.
func NewPipelineError(op string, stage, err error, details string) *PipelineError {
	return &PipelineError{Op: op, Stage: stage, Err: err, Details: details}
}
