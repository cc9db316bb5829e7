package lock

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"syscall"
	"time"

	"github.com/cuemby/task-registry/pkg/log"
	"github.com/cuemby/task-registry/pkg/metrics"
	"github.com/cuemby/task-registry/pkg/registryerr"
)

const filePerm = 0o644

// Manager hands out per-spec exclusive locks backed by flock(2) on a file
// under locksDir. Locks serialize every mutating operation against a given
// spec name; reads never take a lock and instead rely on atomic rename for
// a consistent view.
type Manager struct {
	locksDir string
}

// NewManager creates a Manager rooted at locksDir, creating the directory
// if it does not already exist.
func NewManager(locksDir string) (*Manager, error) {
	if err := os.MkdirAll(locksDir, 0o755); err != nil {
		return nil, fmt.Errorf("lock: creating locks dir %s: %w", locksDir, err)
	}
	return &Manager{locksDir: locksDir}, nil
}

func (m *Manager) lockPath(specName string) string {
	return filepath.Join(m.locksDir, specName+".lock")
}

// Handle represents a held lock. Release must be called exactly once to
// free it.
type Handle struct {
	specName string
	file     *os.File
}

// Acquire blocks until the lock for specName is obtained, timeout elapses,
// or ctx is cancelled, whichever comes first. pollInterval controls how
// often a contended lock is retried.
func (m *Manager) Acquire(ctx context.Context, specName string, timeout, pollInterval time.Duration) (*Handle, error) {
	lockLog := log.WithComponent("lock").With().Str("spec_name", specName).Logger()
	path := m.lockPath(specName)

	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, filePerm)
	if err != nil {
		return nil, fmt.Errorf("lock: opening lock file %s: %w", path, err)
	}

	timer := metrics.NewTimer()
	deadline := time.Now().Add(timeout)
	lockLog.Debug().Dur("timeout", timeout).Dur("poll_interval", pollInterval).Msg("acquiring lock")

	for {
		select {
		case <-ctx.Done():
			_ = f.Close()
			return nil, ctx.Err()
		default:
		}

		if err := syscall.Flock(int(f.Fd()), syscall.LOCK_EX|syscall.LOCK_NB); err == nil {
			timer.ObserveDuration(metrics.LockWaitDuration)
			lockLog.Info().Dur("waited", timer.Duration()).Msg("lock acquired")
			return &Handle{specName: specName, file: f}, nil
		}

		if time.Now().After(deadline) {
			_ = f.Close()
			timer.ObserveDuration(metrics.LockWaitDuration)
			metrics.LockTimeoutsTotal.Inc()
			lockLog.Warn().Dur("waited", timer.Duration()).Msg("lock acquisition timed out")
			return nil, &registryerr.LockTimeoutError{SpecName: specName, Timeout: timeout}
		}

		select {
		case <-ctx.Done():
			_ = f.Close()
			return nil, ctx.Err()
		case <-time.After(pollInterval):
		}
	}
}

// Release frees the lock. Subsequent calls are no-ops.
func (h *Handle) Release() error {
	if h == nil || h.file == nil {
		return nil
	}
	err := syscall.Flock(int(h.file.Fd()), syscall.LOCK_UN)
	closeErr := h.file.Close()
	h.file = nil
	log.WithComponent("lock").With().Str("spec_name", h.specName).Logger().Debug().Msg("lock released")
	if err != nil {
		return fmt.Errorf("lock: unlocking %s: %w", h.specName, err)
	}
	return closeErr
}

// IsLocked reports whether specName is currently held by another process,
// without blocking: it attempts and immediately releases a non-blocking
// flock.
func (m *Manager) IsLocked(specName string) (bool, error) {
	path := m.lockPath(specName)
	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, filePerm)
	if err != nil {
		return false, fmt.Errorf("lock: opening lock file %s: %w", path, err)
	}
	defer f.Close()

	if err := syscall.Flock(int(f.Fd()), syscall.LOCK_EX|syscall.LOCK_NB); err != nil {
		return true, nil
	}
	_ = syscall.Flock(int(f.Fd()), syscall.LOCK_UN)
	return false, nil
}

// ForceUnlock removes the lock file for specName outright. This is a
// deadlock-recovery escape hatch for an operator: it does not coordinate
// with whatever process may still believe it holds the lock, so data
// corruption is possible if that process resumes writing afterward.
func (m *Manager) ForceUnlock(specName string) error {
	path := m.lockPath(specName)
	lockLog := log.WithComponent("lock").With().Str("spec_name", specName).Logger()

	if _, err := os.Stat(path); os.IsNotExist(err) {
		lockLog.Debug().Msg("force unlock requested but no lock file exists")
		return nil
	}

	if err := os.Remove(path); err != nil {
		lockLog.Error().Err(err).Msg("force unlock failed")
		return fmt.Errorf("lock: force unlocking %s: %w", specName, err)
	}
	metrics.LockForceUnlocksTotal.Inc()
	lockLog.Warn().Msg("lock force-unlocked by operator; any process that believed it still held the lock is now unsynchronized")
	return nil
}
