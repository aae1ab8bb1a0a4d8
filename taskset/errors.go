package taskset

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Failure-category sentinels shared by every registry surface.
// Callers classify failures with errors.Is(); wrapped messages carry detail.

var (
	// ErrNotFound indicates a missing taskset or task.
	ErrNotFound = errors.New("not found")

	// ErrInvalidTransition indicates a state change outside the transition table.
	ErrInvalidTransition = errors.New("invalid state transition")

	// ErrCircularDependency indicates a dependency cycle in a task graph.
	ErrCircularDependency = errors.New("circular dependency")

	// ErrLockTimeout indicates the per-spec lock could not be acquired in time.
	ErrLockTimeout = errors.New("lock acquisition timed out")

	// ErrSync indicates a plan document could not be read, parsed, or written.
	ErrSync = errors.New("plan sync failed")

	// ErrIntegrity indicates a document failed required-field validation.
	ErrIntegrity = errors.New("integrity check failed")

	// ErrIO indicates a filesystem failure outside the categories above.
	ErrIO = errors.New("io failure")
)

// NotFoundError wraps ErrNotFound with a descriptive message.
func NotFoundError(msg string) error {
	return fmt.Errorf("%s: %w", msg, ErrNotFound)
}

// SyncError wraps ErrSync with a descriptive message.
func SyncError(msg string) error {
	return fmt.Errorf("%s: %w", msg, ErrSync)
}

// IntegrityError wraps ErrIntegrity with a descriptive message.
func IntegrityError(msg string) error {
	return fmt.Errorf("%s: %w", msg, ErrIntegrity)
}

// IOError wraps err in ErrIO, keeping the original cause in the message.
func IOError(msg string, err error) error {
	if err == nil {
		return fmt.Errorf("%s: %w", msg, ErrIO)
	}
	return fmt.Errorf("%s: %v: %w", msg, err, ErrIO)
}

// TransitionError reports a state change the transition table forbids.
type TransitionError struct {
	TaskID string
	From   TaskState
	To     TaskState
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("task %s: %s -> %s: %s", e.TaskID, e.From, e.To, ErrInvalidTransition)
}

func (e *TransitionError) Unwrap() error { return ErrInvalidTransition }

// CycleError reports a dependency cycle with the offending chain.
type CycleError struct {
	Chain []string
}

func (e *CycleError) Error() string {
	return fmt.Sprintf("%s: %s", ErrCircularDependency, strings.Join(e.Chain, " -> "))
}

func (e *CycleError) Unwrap() error { return ErrCircularDependency }

// LockTimeoutError reports which spec lock could not be acquired and the
// deadline that expired.
type LockTimeoutError struct {
	Spec    string
	Timeout time.Duration
}

func (e *LockTimeoutError) Error() string {
	return fmt.Sprintf("spec %s: no lock after %s: %s", e.Spec, e.Timeout, ErrLockTimeout)
}

func (e *LockTimeoutError) Unwrap() error { return ErrLockTimeout }
