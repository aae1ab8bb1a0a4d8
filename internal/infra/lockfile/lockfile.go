// Package lockfile serializes registry writers with one advisory file lock
// per spec, at locks/<spec>.lock under the registry root. Locks exclude
// other processes and other goroutines on the same host; they do not protect
// roots shared across hosts.
package lockfile

import (
	"context"
	"errors"
	"os"
	"time"

	"github.com/gofrs/flock"

	"necrocode/internal/infra/filestore"
	"necrocode/internal/infra/roots"
	"necrocode/internal/shared/logging"
	"necrocode/taskset"
)

// Manager acquires and releases per-spec locks.
type Manager struct {
	roots  roots.Roots
	wait   time.Duration
	poll   time.Duration
	logger logging.Logger
}

// NewManager builds a Manager. wait bounds each acquisition; poll is the
// retry interval while waiting. A non-positive wait degrades Acquire to a
// single non-blocking attempt.
func NewManager(r roots.Roots, wait, poll time.Duration, logger logging.Logger) *Manager {
	if poll <= 0 {
		poll = 50 * time.Millisecond
	}
	return &Manager{
		roots:  r,
		wait:   wait,
		poll:   poll,
		logger: logging.OrNop(logger),
	}
}

// Handle is one held lock. Release it exactly once.
type Handle struct {
	spec string
	fl   *flock.Flock
}

// Acquire takes the lock for spec, polling until the configured wait
// expires. The lock file is created on demand and never removed by normal
// operation.
func (m *Manager) Acquire(ctx context.Context, spec string) (*Handle, error) {
	if err := filestore.EnsureDir(m.roots.Locks); err != nil {
		return nil, taskset.IOError("create locks directory", err)
	}
	fl := flock.New(m.roots.LockFile(spec))

	if m.wait <= 0 {
		ok, err := fl.TryLock()
		if err != nil {
			return nil, taskset.IOError("lock spec "+spec, err)
		}
		if !ok {
			return nil, &taskset.LockTimeoutError{Spec: spec, Timeout: 0}
		}
		return &Handle{spec: spec, fl: fl}, nil
	}

	waitCtx, cancel := context.WithTimeout(ctx, m.wait)
	defer cancel()

	start := time.Now()
	ok, err := fl.TryLockContext(waitCtx, m.poll)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			m.logger.Warn("lock wait for spec %s expired after %s", spec, m.wait)
			return nil, &taskset.LockTimeoutError{Spec: spec, Timeout: m.wait}
		}
		if errors.Is(err, context.Canceled) {
			return nil, err
		}
		return nil, taskset.IOError("lock spec "+spec, err)
	}
	if !ok {
		m.logger.Warn("lock wait for spec %s expired after %s", spec, m.wait)
		return nil, &taskset.LockTimeoutError{Spec: spec, Timeout: m.wait}
	}
	m.logger.Debug("acquired lock for spec %s after %s", spec, time.Since(start))
	return &Handle{spec: spec, fl: fl}, nil
}

// Release unlocks and closes the underlying descriptor. Safe on nil and
// after a prior Release.
func (h *Handle) Release() error {
	if h == nil || h.fl == nil {
		return nil
	}
	fl := h.fl
	h.fl = nil
	if err := fl.Unlock(); err != nil {
		return taskset.IOError("unlock spec "+h.spec, err)
	}
	return nil
}

// IsLocked reports whether some holder had the spec lock at probe time. The
// probe briefly takes and releases a free lock, so treat the answer as
// diagnostic, not as a guard.
func (m *Manager) IsLocked(spec string) (bool, error) {
	if _, err := os.Stat(m.roots.LockFile(spec)); os.IsNotExist(err) {
		return false, nil
	}
	fl := flock.New(m.roots.LockFile(spec))
	ok, err := fl.TryLock()
	if err != nil {
		return false, taskset.IOError("probe lock for spec "+spec, err)
	}
	if !ok {
		return true, nil
	}
	if err := fl.Unlock(); err != nil {
		return false, taskset.IOError("release probe lock for spec "+spec, err)
	}
	return false, nil
}

// ForceUnlock removes the lock file so future acquires start fresh. A live
// holder keeps its flock on the open descriptor, so this is an operator
// escape hatch for locks orphaned by crashed processes, not a cancellation
// mechanism.
func (m *Manager) ForceUnlock(spec string) error {
	path := m.roots.LockFile(spec)
	err := os.Remove(path)
	if os.IsNotExist(err) {
		m.logger.Warn("force-unlock: no lock file for spec %s", spec)
		return nil
	}
	if err != nil {
		return taskset.IOError("force-unlock spec "+spec, err)
	}
	m.logger.Error("force-unlock: removed lock file for spec %s (%s)", spec, path)
	return nil
}
