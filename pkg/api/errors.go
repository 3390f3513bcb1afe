package api

import (
	"errors"
	"fmt"
)

// BindingError reports an input that could not be bound: a set with an
// incompatible shape, a repeater that failed to drain, or similar. Binding
// errors are terminal for the pipeline.
type BindingError struct {
	Process string
	Port    string
	Reason  string
}

func (e *BindingError) Error() string {
	return fmt.Sprintf("process %s: binding %s: %s", e.Process, e.Port, e.Reason)
}

// NewBindingError constructs a BindingError.
func NewBindingError(process, port, format string, args ...any) error {
	return &BindingError{Process: process, Port: port, Reason: fmt.Sprintf(format, args...)}
}

// StagingError reports a declared output file pattern that matched no
// produced files. The invocation is considered failed regardless of its
// exit status.
type StagingError struct {
	Process string
	Pattern string
	WorkDir string
}

func (e *StagingError) Error() string {
	return fmt.Sprintf("process %s: output pattern %q matched no files in %s", e.Process, e.Pattern, e.WorkDir)
}

// ExecError reports a task that finished with an exit status outside the
// valid set. It carries everything the failure report needs.
type ExecError struct {
	Process      string
	InvocationID string
	WorkDir      string
	ExitStatus   int
	Stdout       string
	Stderr       string
}

func (e *ExecError) Error() string {
	return fmt.Sprintf("process %s (invocation %s): exit status %d, work dir %s",
		e.Process, e.InvocationID, e.ExitStatus, e.WorkDir)
}

// IsExecError returns the ExecError carried by err, if any.
func IsExecError(err error) (*ExecError, bool) {
	var e *ExecError
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}
