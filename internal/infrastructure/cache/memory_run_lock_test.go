package cache

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	syncdomain "github.com/invsync/backend/internal/domain/sync"
)

func TestMemoryRunLockSingleFlight(t *testing.T) {
	lock := NewMemoryRunLock()
	ctx := context.Background()

	first := uuid.New()
	ok, err := lock.TryAcquire(ctx, first, time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = lock.TryAcquire(ctx, uuid.New(), time.Minute)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, lock.Release(ctx, first, syncdomain.RunStateSucceeded))

	snap, err := lock.Snapshot(ctx)
	require.NoError(t, err)
	assert.Equal(t, syncdomain.RunStateSucceeded, snap.State)

	ok, err = lock.TryAcquire(ctx, uuid.New(), time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestMemoryRunLockConcurrentAcquire(t *testing.T) {
	lock := NewMemoryRunLock()
	ctx := context.Background()

	var wins int64
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ok, err := lock.TryAcquire(ctx, uuid.New(), time.Minute)
			require.NoError(t, err)
			if ok {
				atomic.AddInt64(&wins, 1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int64(1), wins)
}

func TestMemoryRunLockStaleReleaseIsNoop(t *testing.T) {
	lock := NewMemoryRunLock()
	ctx := context.Background()

	holder := uuid.New()
	ok, _ := lock.TryAcquire(ctx, holder, time.Minute)
	require.True(t, ok)

	// A run that no longer holds the slot must not disturb it.
	require.NoError(t, lock.Release(ctx, uuid.New(), syncdomain.RunStateFailed))

	snap, err := lock.Snapshot(ctx)
	require.NoError(t, err)
	assert.Equal(t, syncdomain.RunStateRunning, snap.State)
	assert.Equal(t, holder, snap.RunID)
}

func TestMemoryRunLockTTLExpiry(t *testing.T) {
	now := time.Date(2026, 8, 1, 10, 0, 0, 0, time.UTC)
	lock := NewMemoryRunLock().WithClock(func() time.Time { return now })
	ctx := context.Background()

	ok, _ := lock.TryAcquire(ctx, uuid.New(), time.Minute)
	require.True(t, ok)

	// Within TTL the slot stays held.
	ok, _ = lock.TryAcquire(ctx, uuid.New(), time.Minute)
	assert.False(t, ok)

	// Past TTL the holder is treated as stuck and the slot opens.
	now = now.Add(2 * time.Minute)
	snap, err := lock.Snapshot(ctx)
	require.NoError(t, err)
	assert.Equal(t, syncdomain.RunStateFailed, snap.State)

	ok, _ = lock.TryAcquire(ctx, uuid.New(), time.Minute)
	assert.True(t, ok)
}

func TestMemoryRunLockForceRelease(t *testing.T) {
	lock := NewMemoryRunLock()
	ctx := context.Background()

	ok, _ := lock.TryAcquire(ctx, uuid.New(), time.Minute)
	require.True(t, ok)

	require.NoError(t, lock.ForceRelease(ctx))

	snap, _ := lock.Snapshot(ctx)
	assert.Equal(t, syncdomain.RunStateFailed, snap.State)

	ok, _ = lock.TryAcquire(ctx, uuid.New(), time.Minute)
	assert.True(t, ok)
}

func TestMemoryRunLockForceReleaseWhenIdle(t *testing.T) {
	lock := NewMemoryRunLock()
	require.NoError(t, lock.ForceRelease(context.Background()))

	snap, _ := lock.Snapshot(context.Background())
	assert.Equal(t, syncdomain.RunStateIdle, snap.State)
}
