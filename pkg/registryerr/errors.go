package registryerr

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Sentinel errors, one per taxonomy kind in the registry's error design.
// Use errors.Is against these; use errors.As against the concrete types
// below when the structured detail is needed.
var (
	ErrNotFound            = errors.New("not found")
	ErrInvalidTransition   = errors.New("invalid state transition")
	ErrCircularDependency  = errors.New("circular dependency")
	ErrLockTimeout         = errors.New("lock acquisition timed out")
	ErrSync                = errors.New("plan sync error")
	ErrIntegrity           = errors.New("integrity check failed")
	ErrIO                  = errors.New("filesystem operation failed")
)

// TaskNotFoundError reports that a task id does not exist within a spec.
type TaskNotFoundError struct {
	TaskID   string
	SpecName string
}

func (e *TaskNotFoundError) Error() string {
	if e.SpecName != "" {
		return fmt.Sprintf("task %q not found in spec %q", e.TaskID, e.SpecName)
	}
	return fmt.Sprintf("task %q not found", e.TaskID)
}

func (e *TaskNotFoundError) Unwrap() error { return ErrNotFound }

// TasksetNotFoundError reports that no taskset exists for the given spec.
type TasksetNotFoundError struct {
	SpecName string
}

func (e *TasksetNotFoundError) Error() string {
	return fmt.Sprintf("taskset %q not found", e.SpecName)
}

func (e *TasksetNotFoundError) Unwrap() error { return ErrNotFound }

// InvalidStateTransitionError reports a disallowed edge in the task state
// transition table.
type InvalidStateTransitionError struct {
	TaskID    string
	FromState string
	ToState   string
}

func (e *InvalidStateTransitionError) Error() string {
	return fmt.Sprintf("invalid state transition for task %q: %s -> %s", e.TaskID, e.FromState, e.ToState)
}

func (e *InvalidStateTransitionError) Unwrap() error { return ErrInvalidTransition }

// CircularDependencyError reports a cycle found in a dependency graph. Chain
// is the ordered list of task ids forming the cycle, the first id repeated
// at the end.
type CircularDependencyError struct {
	Chain []string
}

func (e *CircularDependencyError) Error() string {
	return fmt.Sprintf("circular dependency detected: %s", strings.Join(e.Chain, " -> "))
}

func (e *CircularDependencyError) Unwrap() error { return ErrCircularDependency }

// LockTimeoutError reports that the per-spec lock could not be acquired
// within the configured window.
type LockTimeoutError struct {
	SpecName string
	Timeout  time.Duration
}

func (e *LockTimeoutError) Error() string {
	return fmt.Sprintf("failed to acquire lock for %q within %s", e.SpecName, e.Timeout)
}

func (e *LockTimeoutError) Unwrap() error { return ErrLockTimeout }

// SyncError reports that a plan document could not be read, parsed, or
// written back.
type SyncError struct {
	SpecName string
	Message  string
}

func (e *SyncError) Error() string {
	if e.SpecName != "" {
		return fmt.Sprintf("sync error: %s (spec: %s)", e.Message, e.SpecName)
	}
	return fmt.Sprintf("sync error: %s", e.Message)
}

func (e *SyncError) Unwrap() error { return ErrSync }

// IntegrityError reports that a persisted document failed required-field
// validation.
type IntegrityError struct {
	Message string
}

func (e *IntegrityError) Error() string {
	return fmt.Sprintf("integrity error: %s", e.Message)
}

func (e *IntegrityError) Unwrap() error { return ErrIntegrity }
