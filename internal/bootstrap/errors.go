package bootstrap

import (
	"errors"
	"fmt"
)

// ErrUnknownStep is returned for a step name that is not part of the sequence.
var ErrUnknownStep = errors.New("bootstrap: unknown step")

// StepError wraps the failure that aborted the sequence.
type StepError struct {
	Step StepID
	Err  error
}

func (e *StepError) Error() string {
	return fmt.Sprintf("bootstrap: %s: %v", e.Step, e.Err)
}

func (e *StepError) Unwrap() error {
	return e.Err
}

// MissingFileError reports a file a loop iteration needs but cannot find.
type MissingFileError struct {
	Kind string
	Path string
	Err  error
}

func (e *MissingFileError) Error() string {
	return fmt.Sprintf("%s file %s not found", e.Kind, e.Path)
}

func (e *MissingFileError) Unwrap() error {
	return e.Err
}
