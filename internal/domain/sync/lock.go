package sync

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// RunState is the orchestrator's single-flight state machine. It is an
// explicit tagged state held as one atomically replaced value, never a
// bare running/idle boolean: a crashed run moves to failed (or is
// expired by the lock TTL) instead of wedging the flag forever.
type RunState string

const (
	RunStateIdle      RunState = "idle"
	RunStateQueued    RunState = "queued"
	RunStateRunning   RunState = "running"
	RunStateSucceeded RunState = "succeeded"
	RunStateFailed    RunState = "failed"
)

// Active reports whether the state blocks a new run from starting.
func (s RunState) Active() bool {
	return s == RunStateQueued || s == RunStateRunning
}

// LockSnapshot is a consistent view of the single-flight slot.
type LockSnapshot struct {
	State      RunState
	RunID      uuid.UUID
	AcquiredAt time.Time
}

// RunLock guards the at-most-one-concurrent-run invariant.
//
// TryAcquire must be an atomic check-and-set: two callers racing on an
// idle lock observe exactly one true. Implementations backed by shared
// durable storage (Redis) extend the guarantee across processes; the
// in-memory implementation only protects a single process.
//
// ttl is the watchdog bound: a holder that neither releases nor
// finishes within ttl is considered stuck and the slot self-expires.
type RunLock interface {
	TryAcquire(ctx context.Context, runID uuid.UUID, ttl time.Duration) (bool, error)
	// Release frees the slot if runID still holds it and records the
	// terminal state of the finished run. Releasing a slot taken over
	// by another run is a no-op.
	Release(ctx context.Context, runID uuid.UUID, terminal RunState) error
	// ForceRelease clears the slot unconditionally. It does not stop
	// in-flight work: a later run may start while the earlier one's
	// writes are still landing. Operator escape hatch only.
	ForceRelease(ctx context.Context) error
	Snapshot(ctx context.Context) (LockSnapshot, error)
}
