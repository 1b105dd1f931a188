package replacer

import (
	"errors"
	"fmt"
)

// ErrAlreadyRun is returned when Run is called on a replacer that already ran.
var ErrAlreadyRun = errors.New("replacer: already run")

// AttachError reports that tracing control over one process could not be
// acquired. The process is left out of the replacer.
type AttachError struct {
	PID int
	Err error
}

func (e *AttachError) Error() string {
	return fmt.Sprintf("attaching to pid %d: %v", e.PID, e.Err)
}

func (e *AttachError) Unwrap() error {
	return e.Err
}

// MutationError reports that one attached process could not be moved.
type MutationError struct {
	PID  int
	Path string
	Err  error
}

func (e *MutationError) Error() string {
	return fmt.Sprintf("changing cwd of pid %d to %s: %v", e.PID, e.Path, e.Err)
}

func (e *MutationError) Unwrap() error {
	return e.Err
}

// SelectorError reports that the selector could not be evaluated for one
// process. The process is skipped.
type SelectorError struct {
	PID int
	Err error
}

func (e *SelectorError) Error() string {
	return fmt.Sprintf("evaluating selector for pid %d: %v", e.PID, e.Err)
}

func (e *SelectorError) Unwrap() error {
	return e.Err
}
