package lock

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/cuemby/task-registry/pkg/registryerr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestManager(t *testing.T) *Manager {
	t.Helper()
	m, err := NewManager(t.TempDir())
	require.NoError(t, err)
	return m
}

func TestAcquireAndRelease(t *testing.T) {
	m := newTestManager(t)

	h, err := m.Acquire(context.Background(), "spec-a", time.Second, 5*time.Millisecond)
	require.NoError(t, err)
	require.NotNil(t, h)

	locked, err := m.IsLocked("spec-a")
	require.NoError(t, err)
	assert.True(t, locked)

	require.NoError(t, h.Release())

	locked, err = m.IsLocked("spec-a")
	require.NoError(t, err)
	assert.False(t, locked)
}

func TestAcquireTimesOutWhenContended(t *testing.T) {
	m := newTestManager(t)

	h, err := m.Acquire(context.Background(), "spec-b", time.Second, 5*time.Millisecond)
	require.NoError(t, err)
	defer h.Release()

	_, err = m.Acquire(context.Background(), "spec-b", 50*time.Millisecond, 5*time.Millisecond)
	require.Error(t, err)
	assert.ErrorIs(t, err, registryerr.ErrLockTimeout)
	var lockErr *registryerr.LockTimeoutError
	require.ErrorAs(t, err, &lockErr)
	assert.Equal(t, "spec-b", lockErr.SpecName)
}

func TestAcquireRespectsContextCancellation(t *testing.T) {
	m := newTestManager(t)

	h, err := m.Acquire(context.Background(), "spec-c", time.Second, 5*time.Millisecond)
	require.NoError(t, err)
	defer h.Release()

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	_, err = m.Acquire(ctx, "spec-c", 5*time.Second, 5*time.Millisecond)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestSerializesConcurrentAcquirers(t *testing.T) {
	m := newTestManager(t)

	var mu sync.Mutex
	var order []int
	var wg sync.WaitGroup

	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			h, err := m.Acquire(context.Background(), "spec-d", 2*time.Second, time.Millisecond)
			if err != nil {
				return
			}
			mu.Lock()
			order = append(order, n)
			mu.Unlock()
			time.Sleep(2 * time.Millisecond)
			h.Release()
		}(i)
	}
	wg.Wait()

	assert.Len(t, order, 5)
}

func TestForceUnlockRemovesLockFile(t *testing.T) {
	m := newTestManager(t)

	h, err := m.Acquire(context.Background(), "spec-e", time.Second, 5*time.Millisecond)
	require.NoError(t, err)
	_ = h.file.Close()

	require.NoError(t, m.ForceUnlock("spec-e"))

	locked, err := m.IsLocked("spec-e")
	require.NoError(t, err)
	assert.False(t, locked)
}

func TestForceUnlockOnMissingFileIsNoop(t *testing.T) {
	m := newTestManager(t)
	assert.NoError(t, m.ForceUnlock("never-locked"))
}

func TestReleaseIsIdempotent(t *testing.T) {
	m := newTestManager(t)
	h, err := m.Acquire(context.Background(), "spec-f", time.Second, 5*time.Millisecond)
	require.NoError(t, err)

	require.NoError(t, h.Release())
	require.NoError(t, h.Release())
}
