package scheduler

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	syncdomain "github.com/invsync/backend/internal/domain/sync"
)

type recordingTrigger struct {
	mu    sync.Mutex
	calls []syncdomain.Source
	err   error
}

func (r *recordingTrigger) TriggerSync(_ context.Context, trigger syncdomain.TriggerType, sources []syncdomain.Source) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if trigger != syncdomain.TriggerScheduled {
		panic("scheduler must trigger scheduled runs")
	}
	r.calls = append(r.calls, sources...)
	return r.err
}

func (r *recordingTrigger) countFor(source syncdomain.Source) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, s := range r.calls {
		if s == source {
			n++
		}
	}
	return n
}

func TestSchedulerTicksPerSource(t *testing.T) {
	trigger := &recordingTrigger{}
	s := New(trigger, zap.NewNop())

	err := s.Start(context.Background(), Cadences{
		syncdomain.SourceVendors:   10 * time.Millisecond,
		syncdomain.SourceInventory: 10 * time.Millisecond,
	})
	require.NoError(t, err)
	defer s.Stop(context.Background())

	assert.Eventually(t, func() bool {
		return trigger.countFor(syncdomain.SourceVendors) >= 2 &&
			trigger.countFor(syncdomain.SourceInventory) >= 2
	}, 2*time.Second, 5*time.Millisecond)

	// Unscheduled sources never fire.
	assert.Zero(t, trigger.countFor(syncdomain.SourceBOMs))
	assert.Zero(t, trigger.countFor(syncdomain.SourcePurchaseOrders))
}

func TestSchedulerSkipsZeroCadence(t *testing.T) {
	trigger := &recordingTrigger{}
	s := New(trigger, zap.NewNop())

	err := s.Start(context.Background(), Cadences{
		syncdomain.SourceVendors: 0,
		syncdomain.SourceBOMs:    -time.Minute,
	})
	require.NoError(t, err)
	defer s.Stop(context.Background())

	running, cadences := s.Running()
	assert.True(t, running)
	assert.Empty(t, cadences)
}

func TestSchedulerStopClearsAllSources(t *testing.T) {
	trigger := &recordingTrigger{}
	s := New(trigger, zap.NewNop())

	require.NoError(t, s.Start(context.Background(), Cadences{
		syncdomain.SourceVendors:        5 * time.Millisecond,
		syncdomain.SourceInventory:      5 * time.Millisecond,
		syncdomain.SourceBOMs:           5 * time.Millisecond,
		syncdomain.SourcePurchaseOrders: 5 * time.Millisecond,
	}))

	assert.Eventually(t, func() bool {
		return trigger.countFor(syncdomain.SourceVendors) >= 1
	}, 2*time.Second, time.Millisecond)

	require.NoError(t, s.Stop(context.Background()))

	running, _ := s.Running()
	assert.False(t, running)

	// No source keeps ticking after Stop.
	trigger.mu.Lock()
	after := len(trigger.calls)
	trigger.mu.Unlock()
	time.Sleep(50 * time.Millisecond)
	trigger.mu.Lock()
	assert.Equal(t, after, len(trigger.calls))
	trigger.mu.Unlock()
}

func TestSchedulerStartIsIdempotent(t *testing.T) {
	trigger := &recordingTrigger{}
	s := New(trigger, zap.NewNop())

	require.NoError(t, s.Start(context.Background(), Cadences{syncdomain.SourceVendors: time.Hour}))
	require.NoError(t, s.Start(context.Background(), Cadences{syncdomain.SourceInventory: time.Millisecond}))
	defer s.Stop(context.Background())

	// Second Start was a no-op: only the first cadence set is armed.
	running, cadences := s.Running()
	assert.True(t, running)
	assert.Equal(t, Cadences{syncdomain.SourceVendors: time.Hour}, cadences)
}

func TestSchedulerToleratesConcurrencyRejection(t *testing.T) {
	trigger := &recordingTrigger{err: syncdomain.NewConcurrencyError("run active")}
	s := New(trigger, zap.NewNop())

	require.NoError(t, s.Start(context.Background(), Cadences{syncdomain.SourceVendors: 5 * time.Millisecond}))
	defer s.Stop(context.Background())

	// Rejections do not kill the loop; the ticker keeps firing.
	assert.Eventually(t, func() bool {
		return trigger.countFor(syncdomain.SourceVendors) >= 3
	}, 2*time.Second, time.Millisecond)
}

func TestSchedulerStopWhenNeverStarted(t *testing.T) {
	s := New(&recordingTrigger{}, zap.NewNop())
	assert.NoError(t, s.Stop(context.Background()))
}
