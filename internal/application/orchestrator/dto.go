package orchestrator

import (
	"time"

	"github.com/google/uuid"

	"github.com/invsync/backend/internal/application/importer"
	syncdomain "github.com/invsync/backend/internal/domain/sync"
)

// SourceSummary is the per-source outcome returned to callers.
type SourceSummary struct {
	Source          syncdomain.Source       `json:"data_type"`
	Phase           syncdomain.AttemptPhase `json:"phase"`
	Success         bool                    `json:"success"`
	ItemCount       int                     `json:"item_count"`
	Created         int                     `json:"created"`
	Updated         int                     `json:"updated"`
	Skipped         int                     `json:"skipped"`
	Error           string                  `json:"error,omitempty"`
	Issues          []importer.Issue        `json:"issues,omitempty"`
	DurationSeconds float64                 `json:"duration_seconds"`
}

// RunResult is the outcome of one accepted run.
type RunResult struct {
	RunID           uuid.UUID              `json:"run_id"`
	Trigger         syncdomain.TriggerType `json:"trigger"`
	OverallSuccess  bool                   `json:"success"`
	StartedAt       time.Time              `json:"started_at"`
	FinishedAt      time.Time              `json:"finished_at"`
	DurationSeconds float64                `json:"duration_seconds"`
	Summaries       []SourceSummary        `json:"summaries"`
	Errors          []string               `json:"errors,omitempty"`
}

// RunRejection reports why a trigger was not accepted, with the state
// of the run that holds the slot.
type RunRejection struct {
	State      syncdomain.RunState `json:"state"`
	ActiveRun  uuid.UUID           `json:"active_run_id"`
	AcquiredAt time.Time           `json:"acquired_at"`
}

// HealthRow is one source's health as shown to status callers:
// the durable record plus derived staleness. Field names follow the
// dashboard wire contract: last-good-sync fields drive the timestamp
// badge, success tracks the most recent attempt.
type HealthRow struct {
	Source         syncdomain.Source       `json:"data_type"`
	LastSyncTime   *time.Time              `json:"last_sync_time"`
	ItemCount      int                     `json:"item_count"`
	LastAttemptAt  *time.Time              `json:"last_attempt_at"`
	Success        bool                    `json:"success"`
	RecentErrors   syncdomain.RecentErrors `json:"recent_errors"`
	Stale          bool                    `json:"is_stale"`
	CadenceSeconds float64                 `json:"cadence_seconds"`
}
