package jobs

import (
	"errors"
	"fmt"

	"jobkeeper/internal/shared"
)

// ErrAlreadyStarted is returned by Start when the service is already running.
var ErrAlreadyStarted = fmt.Errorf("%w: scheduler already started", shared.ErrConflict)

// ConfigurationError reports a programming or administrative mistake:
// a duplicate registration or an unknown job name.
type ConfigurationError struct {
	Job    string
	Reason string
	kind   error
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("job %q: %s", e.Job, e.Reason)
}

// Unwrap returns shared.ErrConflict or shared.ErrNotFound.
func (e *ConfigurationError) Unwrap() error { return e.kind }

func duplicateJobError(name string) *ConfigurationError {
	return &ConfigurationError{Job: name, Reason: "already registered", kind: shared.ErrConflict}
}

func unknownJobError(name string) *ConfigurationError {
	return &ConfigurationError{Job: name, Reason: "not registered", kind: shared.ErrNotFound}
}

// PersistenceError wraps a ConfigStore or ExecutionTracker failure.
type PersistenceError struct {
	Op  string
	Job string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("%s job %q: %v", e.Op, e.Job, e.Err)
}

// Unwrap exposes both shared.ErrDependencyFailure and the store error.
func (e *PersistenceError) Unwrap() []error {
	return []error{shared.ErrDependencyFailure, e.Err}
}

func persistenceError(op, job string, err error) error {
	if err == nil {
		return nil
	}
	return &PersistenceError{Op: op, Job: job, Err: err}
}

// HandlerExecutionError is a handler failure captured by the tick wrapper.
// It is recorded and logged, never returned to a caller.
type HandlerExecutionError struct {
	Job   string
	Err   error
	Panic any
}

func (e *HandlerExecutionError) Error() string {
	if e.Panic != nil {
		return fmt.Sprintf("job %q panicked: %v", e.Job, e.Panic)
	}
	return fmt.Sprintf("job %q failed: %v", e.Job, e.Err)
}

func (e *HandlerExecutionError) Unwrap() error { return e.Err }

// errorMessage is what lands in ExecutionRecord.Error.
func errorMessage(err error) string {
	var he *HandlerExecutionError
	if errors.As(err, &he) {
		if he.Panic != nil {
			return fmt.Sprintf("panic: %v", he.Panic)
		}
		if he.Err != nil && he.Err.Error() != "" {
			return he.Err.Error()
		}
		return "handler failed"
	}
	if err.Error() == "" {
		return "handler failed"
	}
	return err.Error()
}
