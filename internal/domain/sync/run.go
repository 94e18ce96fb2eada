package sync

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// TriggerType records what initiated a run.
type TriggerType string

const (
	TriggerManual    TriggerType = "manual"
	TriggerScheduled TriggerType = "scheduled"
)

// AttemptPhase describes the lifecycle of one source attempt within a run.
type AttemptPhase string

const (
	AttemptQueued    AttemptPhase = "queued"
	AttemptRunning   AttemptPhase = "running"
	AttemptSucceeded AttemptPhase = "succeeded"
	AttemptFailed    AttemptPhase = "failed"
)

// SourceAttempt is the outcome of executing one source within a run.
// ItemCount counts records successfully applied (created + updated).
type SourceAttempt struct {
	Source       Source       `json:"source"`
	Phase        AttemptPhase `json:"phase"`
	ItemCount    int          `json:"item_count"`
	ErrorMessage string       `json:"error_message,omitempty"`
	StartedAt    time.Time    `json:"started_at"`
	FinishedAt   time.Time    `json:"finished_at"`
}

// NewSourceAttempt creates a queued attempt for a source.
func NewSourceAttempt(source Source) SourceAttempt {
	return SourceAttempt{Source: source, Phase: AttemptQueued}
}

// Start marks the attempt as running.
func (a *SourceAttempt) Start() {
	a.Phase = AttemptRunning
	a.StartedAt = time.Now()
}

// Succeed marks the attempt as succeeded with the applied item count.
func (a *SourceAttempt) Succeed(itemCount int) {
	a.Phase = AttemptSucceeded
	a.ItemCount = itemCount
	a.FinishedAt = time.Now()
}

// Fail marks the attempt as failed. A failed attempt always reports
// zero applied items: a source either commits its batch or none of it.
func (a *SourceAttempt) Fail(err error) {
	a.Phase = AttemptFailed
	a.ItemCount = 0
	if err != nil {
		a.ErrorMessage = err.Error()
	}
	a.FinishedAt = time.Now()
}

// Succeeded reports whether the attempt finished successfully.
func (a *SourceAttempt) Succeeded() bool {
	return a.Phase == AttemptSucceeded
}

// SyncRun is one execution of the orchestrator. It is created when a
// run is accepted and becomes immutable once finished; finished runs
// are retained in a bounded history.
type SyncRun struct {
	ID               uuid.UUID       `json:"id"`
	Trigger          TriggerType     `json:"trigger"`
	RequestedSources []Source        `json:"requested_sources"`
	Attempts         []SourceAttempt `json:"attempts"`
	StartedAt        time.Time       `json:"started_at"`
	FinishedAt       time.Time       `json:"finished_at"`
	OverallSuccess   bool            `json:"overall_success"`
}

// NewSyncRun creates a run for the given normalized source set.
func NewSyncRun(trigger TriggerType, sources []Source) *SyncRun {
	attempts := make([]SourceAttempt, 0, len(sources))
	for _, s := range sources {
		attempts = append(attempts, NewSourceAttempt(s))
	}
	return &SyncRun{
		ID:               uuid.New(),
		Trigger:          trigger,
		RequestedSources: sources,
		Attempts:         attempts,
		StartedAt:        time.Now(),
	}
}

// RecordAttempt replaces the attempt slot for the attempt's source.
func (r *SyncRun) RecordAttempt(attempt SourceAttempt) {
	for i := range r.Attempts {
		if r.Attempts[i].Source == attempt.Source {
			r.Attempts[i] = attempt
			return
		}
	}
	r.Attempts = append(r.Attempts, attempt)
}

// Finish seals the run. OverallSuccess holds iff every requested
// source's attempt succeeded.
func (r *SyncRun) Finish() {
	r.FinishedAt = time.Now()
	r.OverallSuccess = len(r.Attempts) > 0
	for i := range r.Attempts {
		if !r.Attempts[i].Succeeded() {
			r.OverallSuccess = false
		}
	}
}

// Duration returns the wall-clock duration of a finished run.
func (r *SyncRun) Duration() time.Duration {
	if r.FinishedAt.IsZero() {
		return time.Since(r.StartedAt)
	}
	return r.FinishedAt.Sub(r.StartedAt)
}

// RunRepository persists the bounded run history.
type RunRepository interface {
	Save(ctx context.Context, run *SyncRun) error
	// ListRecent returns up to limit runs, newest first.
	ListRecent(ctx context.Context, limit int) ([]SyncRun, error)
	// Prune deletes all but the newest keep runs.
	Prune(ctx context.Context, keep int) error
}
