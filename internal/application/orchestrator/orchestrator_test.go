package orchestrator

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/invsync/backend/internal/application/importer"
	"github.com/invsync/backend/internal/domain/shared"
	syncdomain "github.com/invsync/backend/internal/domain/sync"
	"github.com/invsync/backend/internal/infrastructure/cache"
	"github.com/invsync/backend/internal/infrastructure/config"
)

// stubPhase is a scripted PhaseRunner that records when it ran.
type stubPhase struct {
	source syncdomain.Source
	result importer.Result
	err    error
	delay  time.Duration
	panics bool

	mu    *sync.Mutex
	order *[]syncdomain.Source
}

func (s *stubPhase) Source() syncdomain.Source { return s.source }

func (s *stubPhase) Run(ctx context.Context, _ syncdomain.IngestionPath) (importer.Result, error) {
	if s.mu != nil {
		s.mu.Lock()
		*s.order = append(*s.order, s.source)
		s.mu.Unlock()
	}
	if s.delay > 0 {
		select {
		case <-time.After(s.delay):
		case <-ctx.Done():
			return importer.Result{}, syncdomain.NewConnectivityError("sync interrupted", ctx.Err())
		}
	}
	if s.panics {
		panic("phase exploded")
	}
	return s.result, s.err
}

type fakeRunRepo struct {
	mu     sync.Mutex
	runs   []syncdomain.SyncRun
	pruned int
}

func (f *fakeRunRepo) Save(_ context.Context, run *syncdomain.SyncRun) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.runs = append(f.runs, *run)
	return nil
}

func (f *fakeRunRepo) ListRecent(_ context.Context, limit int) ([]syncdomain.SyncRun, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]syncdomain.SyncRun, 0, limit)
	for i := len(f.runs) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, f.runs[i])
	}
	return out, nil
}

func (f *fakeRunRepo) Prune(_ context.Context, keep int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.pruned = keep
	return nil
}

type fakeHealthRepo struct {
	mu      sync.Mutex
	records map[syncdomain.Source]syncdomain.HealthRecord
}

func newFakeHealthRepo() *fakeHealthRepo {
	return &fakeHealthRepo{records: make(map[syncdomain.Source]syncdomain.HealthRecord)}
}

func (f *fakeHealthRepo) Get(_ context.Context, source syncdomain.Source) (*syncdomain.HealthRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	rec, ok := f.records[source]
	if !ok {
		return nil, shared.ErrNotFound
	}
	copied := rec
	return &copied, nil
}

func (f *fakeHealthRepo) List(_ context.Context) ([]syncdomain.HealthRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]syncdomain.HealthRecord, 0, len(f.records))
	for _, rec := range f.records {
		out = append(out, rec)
	}
	return out, nil
}

func (f *fakeHealthRepo) Upsert(_ context.Context, record *syncdomain.HealthRecord) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.records[record.Source] = *record
	return nil
}

func testSyncConfig() *config.SyncConfig {
	return &config.SyncConfig{
		VendorsCadence:        time.Hour,
		InventoryCadence:      30 * time.Minute,
		BOMsCadence:           time.Hour,
		PurchaseOrdersCadence: 2 * time.Hour,
		StaleFactor:           2.0,
		MaxRunDuration:        time.Minute,
		HistoryLimit:          20,
	}
}

func newTestOrchestrator(t *testing.T, phases map[syncdomain.Source]PhaseRunner) (*Orchestrator, *fakeRunRepo, *fakeHealthRepo) {
	t.Helper()
	runs := &fakeRunRepo{}
	health := newFakeHealthRepo()
	o := New(testSyncConfig(), cache.NewMemoryRunLock(), runs, health, phases, zap.NewNop())
	return o, runs, health
}

func okPhases(order *[]syncdomain.Source, mu *sync.Mutex) map[syncdomain.Source]PhaseRunner {
	phases := make(map[syncdomain.Source]PhaseRunner)
	for _, source := range syncdomain.AllSources() {
		phases[source] = &stubPhase{
			source: source,
			result: importer.Result{Created: 2, Updated: 1},
			mu:     mu,
			order:  order,
		}
	}
	return phases
}

func TestRunExecutesSourcesInCanonicalOrder(t *testing.T) {
	var mu sync.Mutex
	var order []syncdomain.Source
	o, runs, _ := newTestOrchestrator(t, okPhases(&order, &mu))

	result, rejection, err := o.Run(context.Background(), syncdomain.TriggerManual, nil)
	require.NoError(t, err)
	require.Nil(t, rejection)
	require.NotNil(t, result)

	assert.True(t, result.OverallSuccess)
	assert.Equal(t, syncdomain.AllSources(), order)
	require.Len(t, result.Summaries, 4)
	for _, summary := range result.Summaries {
		assert.Equal(t, syncdomain.AttemptSucceeded, summary.Phase)
		assert.Equal(t, 3, summary.ItemCount)
	}

	require.Len(t, runs.runs, 1)
	assert.True(t, runs.runs[0].OverallSuccess)
	assert.Equal(t, 20, runs.pruned)
}

func TestRunSubsetRunsOnlyRequestedSources(t *testing.T) {
	var mu sync.Mutex
	var order []syncdomain.Source
	o, _, _ := newTestOrchestrator(t, okPhases(&order, &mu))

	result, _, err := o.Run(context.Background(), syncdomain.TriggerManual,
		[]syncdomain.Source{syncdomain.SourceBOMs, syncdomain.SourceVendors})
	require.NoError(t, err)

	// Requested out of order; executed in canonical order.
	assert.Equal(t, []syncdomain.Source{syncdomain.SourceVendors, syncdomain.SourceBOMs}, order)
	require.Len(t, result.Summaries, 2)
}

func TestRunSingleFlight(t *testing.T) {
	release := make(chan struct{})
	started := make(chan struct{})
	phases := map[syncdomain.Source]PhaseRunner{
		syncdomain.SourceVendors: &blockingPhase{started: started, release: release},
	}

	o, _, _ := newTestOrchestrator(t, phases)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		_, _, err := o.Run(context.Background(), syncdomain.TriggerScheduled, []syncdomain.Source{syncdomain.SourceVendors})
		assert.NoError(t, err)
	}()

	<-started

	result, rejection, err := o.Run(context.Background(), syncdomain.TriggerManual, []syncdomain.Source{syncdomain.SourceVendors})
	require.ErrorIs(t, err, ErrRunActive)
	assert.Nil(t, result)
	require.NotNil(t, rejection)
	assert.Equal(t, syncdomain.RunStateRunning, rejection.State)
	assert.NotEqual(t, "00000000-0000-0000-0000-000000000000", rejection.ActiveRun.String())
	assert.Equal(t, syncdomain.ClassConcurrency, syncdomain.ClassOf(err))

	close(release)
	wg.Wait()

	// Slot is free again once the first run finished.
	_, rejection, err = o.Run(context.Background(), syncdomain.TriggerManual, []syncdomain.Source{syncdomain.SourceVendors})
	require.NoError(t, err)
	assert.Nil(t, rejection)
}

// blockingPhase holds its run open until released, so tests can overlap
// two triggers deterministically.
type blockingPhase struct {
	started chan struct{}
	release chan struct{}
	once    sync.Once
}

func (b *blockingPhase) Source() syncdomain.Source { return syncdomain.SourceVendors }

func (b *blockingPhase) Run(ctx context.Context, _ syncdomain.IngestionPath) (importer.Result, error) {
	b.once.Do(func() { close(b.started) })
	select {
	case <-b.release:
	case <-ctx.Done():
	}
	return importer.Result{Created: 1}, nil
}

func TestRunConcurrentTriggersAdmitExactlyOne(t *testing.T) {
	release := make(chan struct{})
	phases := map[syncdomain.Source]PhaseRunner{
		syncdomain.SourceVendors: &gatePhase{release: release},
	}
	o, _, _ := newTestOrchestrator(t, phases)

	const triggers = 25
	var accepted, rejected int32
	var mu sync.Mutex
	var wg sync.WaitGroup
	for i := 0; i < triggers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _, err := o.Run(context.Background(), syncdomain.TriggerManual, []syncdomain.Source{syncdomain.SourceVendors})
			mu.Lock()
			defer mu.Unlock()
			if errors.Is(err, ErrRunActive) {
				rejected++
			} else if err == nil {
				accepted++
			}
		}()
	}

	// Let the losers fail fast, then free the winner.
	time.Sleep(50 * time.Millisecond)
	close(release)
	wg.Wait()

	assert.Equal(t, int32(1), accepted)
	assert.Equal(t, int32(triggers-1), rejected)
}

type gatePhase struct {
	release chan struct{}
}

func (g *gatePhase) Source() syncdomain.Source { return syncdomain.SourceVendors }

func (g *gatePhase) Run(ctx context.Context, _ syncdomain.IngestionPath) (importer.Result, error) {
	select {
	case <-g.release:
	case <-ctx.Done():
	}
	return importer.Result{}, nil
}

func TestRunPartialFailureIsolation(t *testing.T) {
	phases := map[syncdomain.Source]PhaseRunner{
		syncdomain.SourceVendors:   &stubPhase{source: syncdomain.SourceVendors, result: importer.Result{Created: 4}},
		syncdomain.SourceInventory: &stubPhase{source: syncdomain.SourceInventory, err: syncdomain.NewConnectivityError("inventory endpoint unreachable", nil)},
		syncdomain.SourceBOMs:      &stubPhase{source: syncdomain.SourceBOMs, result: importer.Result{Updated: 2}},
		syncdomain.SourcePurchaseOrders: &stubPhase{
			source: syncdomain.SourcePurchaseOrders,
			result: importer.Result{Created: 1},
		},
	}
	o, runs, health := newTestOrchestrator(t, phases)

	result, _, err := o.Run(context.Background(), syncdomain.TriggerScheduled, nil)
	require.NoError(t, err)
	assert.False(t, result.OverallSuccess)

	bySource := make(map[syncdomain.Source]SourceSummary)
	for _, s := range result.Summaries {
		bySource[s.Source] = s
	}

	assert.Equal(t, syncdomain.AttemptSucceeded, bySource[syncdomain.SourceVendors].Phase)
	assert.True(t, bySource[syncdomain.SourceVendors].Success)
	assert.Equal(t, syncdomain.AttemptFailed, bySource[syncdomain.SourceInventory].Phase)
	assert.False(t, bySource[syncdomain.SourceInventory].Success)
	assert.Contains(t, bySource[syncdomain.SourceInventory].Error, "unreachable")
	require.Len(t, result.Errors, 1)
	assert.Contains(t, result.Errors[0], "inventory")
	// Sources after the failed one still ran.
	assert.Equal(t, syncdomain.AttemptSucceeded, bySource[syncdomain.SourceBOMs].Phase)
	assert.Equal(t, syncdomain.AttemptSucceeded, bySource[syncdomain.SourcePurchaseOrders].Phase)

	require.Len(t, runs.runs, 1)
	assert.False(t, runs.runs[0].OverallSuccess)

	// Health: failed source keeps no last-good, succeeded ones advance.
	inv, err := health.Get(context.Background(), syncdomain.SourceInventory)
	require.NoError(t, err)
	assert.Nil(t, inv.LastSyncTime)
	assert.False(t, inv.LastSuccess)
	require.Len(t, inv.RecentErrors, 1)

	ven, err := health.Get(context.Background(), syncdomain.SourceVendors)
	require.NoError(t, err)
	require.NotNil(t, ven.LastSyncTime)
	assert.Equal(t, 4, ven.LastItemCount)
	assert.True(t, ven.LastSuccess)
}

func TestRunFailurePreservesLastGoodHealth(t *testing.T) {
	ok := &stubPhase{source: syncdomain.SourceVendors, result: importer.Result{Created: 7}}
	phases := map[syncdomain.Source]PhaseRunner{syncdomain.SourceVendors: ok}
	o, _, health := newTestOrchestrator(t, phases)

	_, _, err := o.Run(context.Background(), syncdomain.TriggerManual, []syncdomain.Source{syncdomain.SourceVendors})
	require.NoError(t, err)

	phases[syncdomain.SourceVendors] = &stubPhase{
		source: syncdomain.SourceVendors,
		err:    syncdomain.NewConnectivityError("timeout", nil),
	}
	_, _, err = o.Run(context.Background(), syncdomain.TriggerManual, []syncdomain.Source{syncdomain.SourceVendors})
	require.NoError(t, err)

	rec, err := health.Get(context.Background(), syncdomain.SourceVendors)
	require.NoError(t, err)
	require.NotNil(t, rec.LastSyncTime)
	assert.Equal(t, 7, rec.LastItemCount)
	assert.False(t, rec.LastSuccess)
	require.Len(t, rec.RecentErrors, 1)
	assert.Contains(t, rec.RecentErrors[0].Message, "timeout")
}

func TestRunReleasesSlotAfterPanic(t *testing.T) {
	phases := map[syncdomain.Source]PhaseRunner{
		syncdomain.SourceVendors: &stubPhase{source: syncdomain.SourceVendors, panics: true},
	}
	o, runs, _ := newTestOrchestrator(t, phases)

	_, _, err := o.Run(context.Background(), syncdomain.TriggerManual, []syncdomain.Source{syncdomain.SourceVendors})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "panicked")

	snap, err := o.Status(context.Background())
	require.NoError(t, err)
	assert.Equal(t, syncdomain.RunStateFailed, snap.State)
	assert.False(t, snap.State.Active())

	// Panicked runs still land in history.
	require.Len(t, runs.runs, 1)
	assert.False(t, runs.runs[0].OverallSuccess)

	// And the slot is free for the next trigger.
	phases[syncdomain.SourceVendors] = &stubPhase{source: syncdomain.SourceVendors}
	_, rejection, err := o.Run(context.Background(), syncdomain.TriggerManual, []syncdomain.Source{syncdomain.SourceVendors})
	require.NoError(t, err)
	assert.Nil(t, rejection)
}

func TestRunWatchdogStopsRemainingSources(t *testing.T) {
	cfg := testSyncConfig()
	cfg.MaxRunDuration = 30 * time.Millisecond

	phases := map[syncdomain.Source]PhaseRunner{
		syncdomain.SourceVendors:        &stubPhase{source: syncdomain.SourceVendors, delay: 200 * time.Millisecond},
		syncdomain.SourceInventory:      &stubPhase{source: syncdomain.SourceInventory},
		syncdomain.SourceBOMs:           &stubPhase{source: syncdomain.SourceBOMs},
		syncdomain.SourcePurchaseOrders: &stubPhase{source: syncdomain.SourcePurchaseOrders},
	}
	runs := &fakeRunRepo{}
	o := New(cfg, cache.NewMemoryRunLock(), runs, newFakeHealthRepo(), phases, zap.NewNop())

	result, _, err := o.Run(context.Background(), syncdomain.TriggerManual, nil)
	require.NoError(t, err)
	assert.False(t, result.OverallSuccess)

	// Only the source that hit the deadline was attempted.
	require.Len(t, result.Summaries, 1)
	assert.Equal(t, syncdomain.SourceVendors, result.Summaries[0].Source)
	assert.Equal(t, syncdomain.AttemptFailed, result.Summaries[0].Phase)

	snap, err := o.Status(context.Background())
	require.NoError(t, err)
	assert.Equal(t, syncdomain.RunStateFailed, snap.State)
}

func TestResetStuckRun(t *testing.T) {
	release := make(chan struct{})
	started := make(chan struct{})
	phases := map[syncdomain.Source]PhaseRunner{
		syncdomain.SourceVendors: &blockingPhase{started: started, release: release},
	}
	o, _, _ := newTestOrchestrator(t, phases)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		_, _, _ = o.Run(context.Background(), syncdomain.TriggerManual, []syncdomain.Source{syncdomain.SourceVendors})
	}()
	<-started

	before, err := o.ResetStuckRun(context.Background())
	require.NoError(t, err)
	assert.Equal(t, syncdomain.RunStateRunning, before.State)

	snap, err := o.Status(context.Background())
	require.NoError(t, err)
	assert.False(t, snap.State.Active())

	close(release)
	wg.Wait()
}

func TestHealthIncludesNeverSyncedSources(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	cfg := testSyncConfig()
	health := newFakeHealthRepo()

	lastSync := now.Add(-10 * time.Minute)
	health.records[syncdomain.SourceVendors] = syncdomain.HealthRecord{
		Source:        syncdomain.SourceVendors,
		LastSyncTime:  &lastSync,
		LastItemCount: 12,
		LastSuccess:   true,
	}

	o := New(cfg, cache.NewMemoryRunLock(), &fakeRunRepo{}, health, nil, zap.NewNop(),
		WithClock(func() time.Time { return now }))

	rows, err := o.Health(context.Background())
	require.NoError(t, err)
	require.Len(t, rows, 4)

	bySource := make(map[syncdomain.Source]HealthRow)
	for _, row := range rows {
		bySource[row.Source] = row
	}

	// Synced 10m ago with a 1h cadence and factor 2: fresh.
	assert.False(t, bySource[syncdomain.SourceVendors].Stale)
	assert.Equal(t, 12, bySource[syncdomain.SourceVendors].ItemCount)

	// Never synced: always stale.
	assert.True(t, bySource[syncdomain.SourceInventory].Stale)
	assert.Nil(t, bySource[syncdomain.SourceInventory].LastSyncTime)
}

func TestHealthStaleThresholdUsesFactor(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	cfg := testSyncConfig()
	cfg.InventoryCadence = 30 * time.Minute
	cfg.StaleFactor = 2.0

	health := newFakeHealthRepo()
	lastSync := now.Add(-61 * time.Minute) // just past 2 * 30m
	health.records[syncdomain.SourceInventory] = syncdomain.HealthRecord{
		Source:       syncdomain.SourceInventory,
		LastSyncTime: &lastSync,
		LastSuccess:  true,
	}

	o := New(cfg, cache.NewMemoryRunLock(), &fakeRunRepo{}, health, nil, zap.NewNop(),
		WithClock(func() time.Time { return now }))

	rows, err := o.Health(context.Background())
	require.NoError(t, err)
	bySource := make(map[syncdomain.Source]HealthRow)
	for _, row := range rows {
		bySource[row.Source] = row
	}
	assert.True(t, bySource[syncdomain.SourceInventory].Stale)
}

func TestHistoryNewestFirst(t *testing.T) {
	phases := map[syncdomain.Source]PhaseRunner{
		syncdomain.SourceVendors: &stubPhase{source: syncdomain.SourceVendors, result: importer.Result{Created: 1}},
	}
	o, _, _ := newTestOrchestrator(t, phases)

	first, _, err := o.Run(context.Background(), syncdomain.TriggerManual, []syncdomain.Source{syncdomain.SourceVendors})
	require.NoError(t, err)
	second, _, err := o.Run(context.Background(), syncdomain.TriggerScheduled, []syncdomain.Source{syncdomain.SourceVendors})
	require.NoError(t, err)

	history, err := o.History(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, second.RunID, history[0].ID)
	assert.Equal(t, first.RunID, history[1].ID)
}
