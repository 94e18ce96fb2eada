// Package orchestrator drives sync runs: single-flight admission,
// ordered phase execution with per-source failure isolation, health
// bookkeeping and the bounded run history.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/invsync/backend/internal/domain/shared"
	syncdomain "github.com/invsync/backend/internal/domain/sync"
	"github.com/invsync/backend/internal/infrastructure/config"
	"github.com/invsync/backend/internal/infrastructure/logger"
)

// ErrRunActive is returned when a trigger loses the single-flight race.
var ErrRunActive = syncdomain.NewConcurrencyError("a sync run is already active")

// MetricsRecorder receives run and source outcomes. Satisfied by
// telemetry.SyncMetrics.
type MetricsRecorder interface {
	RecordRun(ctx context.Context, trigger string, success bool)
	RecordRejection(ctx context.Context, trigger string)
	RecordSource(ctx context.Context, source string, duration time.Duration, applied, rowErrors int)
}

type noopMetrics struct{}

func (noopMetrics) RecordRun(context.Context, string, bool) {}

func (noopMetrics) RecordRejection(context.Context, string) {}

func (noopMetrics) RecordSource(context.Context, string, time.Duration, int, int) {}

// Orchestrator owns the sync run lifecycle. All triggers — manual and
// scheduled — funnel through Run, so the at-most-one-run invariant has
// a single enforcement point.
type Orchestrator struct {
	cfg     *config.SyncConfig
	lock    syncdomain.RunLock
	runs    syncdomain.RunRepository
	health  syncdomain.HealthRepository
	phases  map[syncdomain.Source]PhaseRunner
	logger  *zap.Logger
	metrics MetricsRecorder
	now     func() time.Time
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithClock replaces the time source, for tests.
func WithClock(now func() time.Time) Option {
	return func(o *Orchestrator) { o.now = now }
}

// WithMetrics installs a metrics recorder.
func WithMetrics(m MetricsRecorder) Option {
	return func(o *Orchestrator) { o.metrics = m }
}

// New creates an orchestrator.
func New(
	cfg *config.SyncConfig,
	lock syncdomain.RunLock,
	runs syncdomain.RunRepository,
	health syncdomain.HealthRepository,
	phases map[syncdomain.Source]PhaseRunner,
	log *zap.Logger,
	opts ...Option,
) *Orchestrator {
	o := &Orchestrator{
		cfg:     cfg,
		lock:    lock,
		runs:    runs,
		health:  health,
		phases:  phases,
		logger:  log,
		metrics: noopMetrics{},
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Run executes a sync over the requested sources. An empty request
// means all sources. Exactly one concurrent caller is admitted; the
// rest get ErrRunActive plus a RunRejection describing the holder.
//
// Sources execute sequentially in canonical order. A failed source is
// isolated: it is recorded and the run moves on to the next one. The
// run slot is released on every path out, panics included.
func (o *Orchestrator) Run(ctx context.Context, trigger syncdomain.TriggerType, requested []syncdomain.Source) (*RunResult, *RunRejection, error) {
	sources := syncdomain.NormalizeSources(requested)
	if len(sources) == 0 {
		sources = syncdomain.AllSources()
	}

	run := syncdomain.NewSyncRun(trigger, sources)

	acquired, err := o.lock.TryAcquire(ctx, run.ID, o.cfg.MaxRunDuration)
	if err != nil {
		return nil, nil, fmt.Errorf("acquire run slot: %w", err)
	}
	if !acquired {
		o.metrics.RecordRejection(ctx, string(trigger))
		snap, snapErr := o.lock.Snapshot(ctx)
		if snapErr != nil {
			o.logger.Warn("run rejected, slot snapshot unavailable", zap.Error(snapErr))
			return nil, &RunRejection{State: syncdomain.RunStateRunning}, ErrRunActive
		}
		return nil, &RunRejection{
			State:      snap.State,
			ActiveRun:  snap.RunID,
			AcquiredAt: snap.AcquiredAt,
		}, ErrRunActive
	}

	return o.execute(ctx, run)
}

// execute runs the phases while holding the slot. The deferred release
// is the only way the slot opens again, so it must survive panics.
func (o *Orchestrator) execute(ctx context.Context, run *syncdomain.SyncRun) (result *RunResult, rejection *RunRejection, err error) {
	runLog := o.logger.With(zap.String("run_id", run.ID.String()), zap.String("trigger", string(run.Trigger)))

	// The watchdog: no phase outlives the lock TTL, so the run cannot
	// keep writing after the slot has expired out from under it.
	runCtx, cancel := context.WithTimeout(ctx, o.cfg.MaxRunDuration)
	defer cancel()

	defer func() {
		if r := recover(); r != nil {
			runLog.Error("sync run panicked", zap.Any("panic", r), zap.Stack("stacktrace"))
			err = fmt.Errorf("sync run panicked: %v", r)
		}

		if run.FinishedAt.IsZero() {
			run.Finish()
		}
		terminal := syncdomain.RunStateFailed
		if err == nil && run.OverallSuccess {
			terminal = syncdomain.RunStateSucceeded
		}
		// Release with a fresh context: the run context may already be
		// past its deadline and a wedged slot is worse than a late one.
		releaseCtx, releaseCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer releaseCancel()
		if relErr := o.lock.Release(releaseCtx, run.ID, terminal); relErr != nil {
			runLog.Error("run slot release failed", zap.Error(relErr))
		}

		o.persistRun(releaseCtx, run, runLog)
	}()

	runLog.Info("sync run started", zap.Any("sources", run.RequestedSources))

	summaries := make([]SourceSummary, 0, len(run.RequestedSources))
	for _, source := range run.RequestedSources {
		summaries = append(summaries, o.runSource(runCtx, run, source, runLog))

		if runCtx.Err() != nil {
			// Watchdog fired: remaining sources stay queued and the run
			// fails as a whole.
			runLog.Warn("sync run hit watchdog deadline", zap.Duration("max_run_duration", o.cfg.MaxRunDuration))
			break
		}
	}

	run.Finish()
	o.metrics.RecordRun(runCtx, string(run.Trigger), run.OverallSuccess)
	runLog.Info("sync run finished",
		zap.Bool("overall_success", run.OverallSuccess),
		zap.Duration("duration", run.Duration()),
	)

	var sourceErrors []string
	for _, summary := range summaries {
		if summary.Error != "" {
			sourceErrors = append(sourceErrors, fmt.Sprintf("%s: %s", summary.Source, summary.Error))
		}
	}

	return &RunResult{
		RunID:           run.ID,
		Trigger:         run.Trigger,
		OverallSuccess:  run.OverallSuccess,
		StartedAt:       run.StartedAt,
		FinishedAt:      run.FinishedAt,
		DurationSeconds: run.Duration().Seconds(),
		Summaries:       summaries,
		Errors:          sourceErrors,
	}, nil, nil
}

// runSource executes one phase and folds its outcome into the run and
// the source's health record. Phase errors never propagate: they fail
// this source and this source only.
func (o *Orchestrator) runSource(ctx context.Context, run *syncdomain.SyncRun, source syncdomain.Source, runLog *zap.Logger) SourceSummary {
	srcLog := logger.WithSource(runLog, source.String())
	attempt := syncdomain.NewSourceAttempt(source)
	attempt.Start()

	summary := SourceSummary{Source: source}

	phaseRunner, ok := o.phases[source]
	if !ok {
		attempt.Fail(syncdomain.NewConfigurationError(fmt.Sprintf("no phase registered for source %s", source)))
	} else {
		result, err := phaseRunner.Run(ctx, o.cfg.IngestionPath(source))
		if err != nil {
			srcLog.Error("source sync failed",
				zap.String("class", string(syncdomain.ClassOf(err))),
				zap.Error(err),
			)
			attempt.Fail(err)
		} else {
			attempt.Succeed(result.Applied())
			summary.Created = result.Created
			summary.Updated = result.Updated
			summary.Skipped = result.Skipped
			summary.Issues = result.Errors
			srcLog.Info("source sync finished",
				zap.Int("created", result.Created),
				zap.Int("updated", result.Updated),
				zap.Int("skipped", result.Skipped),
				zap.Int("row_errors", len(result.Errors)),
			)
		}
	}

	run.RecordAttempt(attempt)
	o.applyHealth(ctx, attempt, srcLog)

	elapsed := attempt.FinishedAt.Sub(attempt.StartedAt)
	summary.Phase = attempt.Phase
	summary.Success = attempt.Phase == syncdomain.AttemptSucceeded
	summary.ItemCount = attempt.ItemCount
	summary.Error = attempt.ErrorMessage
	summary.DurationSeconds = elapsed.Seconds()
	o.metrics.RecordSource(ctx, source.String(), elapsed, attempt.ItemCount, len(summary.Issues))
	return summary
}

// applyHealth folds the attempt into the source's durable health row.
// Health bookkeeping failures are logged, never fatal: losing a status
// update must not fail a sync that moved data.
func (o *Orchestrator) applyHealth(ctx context.Context, attempt syncdomain.SourceAttempt, srcLog *zap.Logger) {
	record, err := o.health.Get(ctx, attempt.Source)
	if errors.Is(err, shared.ErrNotFound) {
		record = syncdomain.NewHealthRecord(attempt.Source)
	} else if err != nil {
		srcLog.Error("health record load failed", zap.Error(err))
		return
	}

	record.Apply(attempt)
	if err := o.health.Upsert(ctx, record); err != nil {
		srcLog.Error("health record update failed", zap.Error(err))
	}
}

func (o *Orchestrator) persistRun(ctx context.Context, run *syncdomain.SyncRun, runLog *zap.Logger) {
	if err := o.runs.Save(ctx, run); err != nil {
		runLog.Error("run history save failed", zap.Error(err))
		return
	}
	if o.cfg.HistoryLimit > 0 {
		if err := o.runs.Prune(ctx, o.cfg.HistoryLimit); err != nil {
			runLog.Error("run history prune failed", zap.Error(err))
		}
	}
}

// ResetStuckRun force-clears the run slot. It does not stop in-flight
// work; it exists so an operator can recover from a crashed holder
// without waiting out the TTL.
func (o *Orchestrator) ResetStuckRun(ctx context.Context) (syncdomain.LockSnapshot, error) {
	before, err := o.lock.Snapshot(ctx)
	if err != nil {
		return syncdomain.LockSnapshot{}, err
	}
	if err := o.lock.ForceRelease(ctx); err != nil {
		return before, err
	}
	o.logger.Warn("run slot force-released",
		zap.String("previous_state", string(before.State)),
		zap.String("previous_run_id", before.RunID.String()),
	)
	return before, nil
}

// Status returns the current run slot state.
func (o *Orchestrator) Status(ctx context.Context) (syncdomain.LockSnapshot, error) {
	return o.lock.Snapshot(ctx)
}

// Health returns every source's health row with derived staleness.
// Sources that have never synced get an empty, stale row.
func (o *Orchestrator) Health(ctx context.Context) ([]HealthRow, error) {
	records, err := o.health.List(ctx)
	if err != nil {
		return nil, err
	}
	bySource := make(map[syncdomain.Source]*syncdomain.HealthRecord, len(records))
	for i := range records {
		bySource[records[i].Source] = &records[i]
	}

	now := o.now()
	rows := make([]HealthRow, 0, len(syncdomain.AllSources()))
	for _, source := range syncdomain.AllSources() {
		record, ok := bySource[source]
		if !ok {
			record = syncdomain.NewHealthRecord(source)
		}
		cadence := o.cfg.Cadence(source)
		rows = append(rows, HealthRow{
			Source:         source,
			LastSyncTime:   record.LastSyncTime,
			ItemCount:      record.LastItemCount,
			LastAttemptAt:  record.LastAttemptAt,
			Success:        record.LastSuccess,
			RecentErrors:   record.RecentErrors,
			Stale:          record.IsStale(now, cadence, o.cfg.StaleFactor),
			CadenceSeconds: cadence.Seconds(),
		})
	}
	return rows, nil
}

// History returns the most recent runs, newest first.
func (o *Orchestrator) History(ctx context.Context, limit int) ([]syncdomain.SyncRun, error) {
	if limit <= 0 || limit > o.cfg.HistoryLimit {
		limit = o.cfg.HistoryLimit
	}
	return o.runs.ListRecent(ctx, limit)
}
