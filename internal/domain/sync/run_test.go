package sync

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSyncRunFinishOverallSuccess(t *testing.T) {
	run := NewSyncRun(TriggerManual, []Source{SourceVendors, SourceInventory})

	a := NewSourceAttempt(SourceVendors)
	a.Start()
	a.Succeed(42)
	run.RecordAttempt(a)

	b := NewSourceAttempt(SourceInventory)
	b.Start()
	b.Succeed(7)
	run.RecordAttempt(b)

	run.Finish()
	assert.True(t, run.OverallSuccess)
	assert.False(t, run.FinishedAt.IsZero())
}

func TestSyncRunOneFailureBreaksOverallSuccess(t *testing.T) {
	run := NewSyncRun(TriggerScheduled, []Source{SourceVendors, SourceInventory})

	a := NewSourceAttempt(SourceVendors)
	a.Start()
	a.Succeed(42)
	run.RecordAttempt(a)

	b := NewSourceAttempt(SourceInventory)
	b.Start()
	b.Fail(errors.New("connection refused"))
	run.RecordAttempt(b)

	run.Finish()
	assert.False(t, run.OverallSuccess)

	require.Len(t, run.Attempts, 2)
	assert.True(t, run.Attempts[0].Succeeded())
	assert.Equal(t, 0, run.Attempts[1].ItemCount)
	assert.Equal(t, "connection refused", run.Attempts[1].ErrorMessage)
}

func TestSourceAttemptFailZeroesItemCount(t *testing.T) {
	a := NewSourceAttempt(SourceBOMs)
	a.Start()
	a.ItemCount = 12
	a.Fail(errors.New("boom"))

	assert.Equal(t, AttemptFailed, a.Phase)
	assert.Equal(t, 0, a.ItemCount)
}

func TestRunStateActive(t *testing.T) {
	assert.True(t, RunStateRunning.Active())
	assert.True(t, RunStateQueued.Active())
	assert.False(t, RunStateIdle.Active())
	assert.False(t, RunStateSucceeded.Active())
	assert.False(t, RunStateFailed.Active())
}

func TestErrorClassification(t *testing.T) {
	connErr := NewConnectivityError("fetch vendors", errors.New("dial tcp: refused"))
	assert.Equal(t, ClassConnectivity, ClassOf(connErr))
	assert.True(t, IsClass(connErr, ClassConnectivity))
	assert.Contains(t, connErr.Error(), "dial tcp")

	assert.Equal(t, ErrorClass(""), ClassOf(errors.New("plain")))
	assert.Equal(t, ClassConflict, ClassOf(NewConflictError("stale vendor", nil)))
}
