// Package cache provides the single-flight run lock in two flavors: an
// in-process implementation and a Redis-backed one for deployments
// where several instances share the run slot.
package cache

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	syncdomain "github.com/invsync/backend/internal/domain/sync"
)

// MemoryRunLock is a process-local run lock. The whole slot is guarded
// by one mutex, so acquire is an atomic check-and-set.
type MemoryRunLock struct {
	mu       sync.Mutex
	state    syncdomain.RunState
	runID    uuid.UUID
	acquired time.Time
	deadline time.Time
	now      func() time.Time
}

// NewMemoryRunLock creates an idle in-memory run lock.
func NewMemoryRunLock() *MemoryRunLock {
	return &MemoryRunLock{state: syncdomain.RunStateIdle, now: time.Now}
}

// WithClock replaces the lock's time source, for tests.
func (l *MemoryRunLock) WithClock(now func() time.Time) *MemoryRunLock {
	l.now = now
	return l
}

// TryAcquire takes the slot if it is free or its holder's TTL expired.
func (l *MemoryRunLock) TryAcquire(_ context.Context, runID uuid.UUID, ttl time.Duration) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.expireLocked()
	if l.state.Active() {
		return false, nil
	}

	l.state = syncdomain.RunStateRunning
	l.runID = runID
	l.acquired = l.now()
	l.deadline = l.acquired.Add(ttl)
	return true, nil
}

// Release frees the slot if runID still holds it.
func (l *MemoryRunLock) Release(_ context.Context, runID uuid.UUID, terminal syncdomain.RunState) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if !l.state.Active() || l.runID != runID {
		return nil
	}
	l.state = terminal
	l.deadline = time.Time{}
	return nil
}

// ForceRelease clears the slot unconditionally.
func (l *MemoryRunLock) ForceRelease(context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.state.Active() {
		l.state = syncdomain.RunStateFailed
	}
	l.deadline = time.Time{}
	return nil
}

// Snapshot returns the current slot state.
func (l *MemoryRunLock) Snapshot(context.Context) (syncdomain.LockSnapshot, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.expireLocked()
	return syncdomain.LockSnapshot{
		State:      l.state,
		RunID:      l.runID,
		AcquiredAt: l.acquired,
	}, nil
}

// expireLocked moves an expired holder to failed. Caller holds the mutex.
func (l *MemoryRunLock) expireLocked() {
	if l.state.Active() && !l.deadline.IsZero() && l.now().After(l.deadline) {
		l.state = syncdomain.RunStateFailed
		l.deadline = time.Time{}
	}
}

var _ syncdomain.RunLock = (*MemoryRunLock)(nil)
