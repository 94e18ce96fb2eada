package sync

import (
	"context"
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"
)

// RecentErrorCapacity bounds the per-source error ring buffer.
const RecentErrorCapacity = 3

// AttemptError is one retained failure of a source attempt.
type AttemptError struct {
	Message    string    `json:"message"`
	OccurredAt time.Time `json:"occurred_at"`
}

// RecentErrors is a bounded ring of the latest attempt failures; the
// oldest entry is evicted once capacity is reached. Stored as a JSON
// column so the health row stays a single atomically replaced record.
type RecentErrors []AttemptError

// Push appends an error, evicting the oldest beyond capacity.
func (r *RecentErrors) Push(message string, at time.Time) {
	*r = append(*r, AttemptError{Message: message, OccurredAt: at})
	if len(*r) > RecentErrorCapacity {
		*r = (*r)[len(*r)-RecentErrorCapacity:]
	}
}

// Value implements driver.Valuer for persistence.
func (r RecentErrors) Value() (driver.Value, error) {
	if r == nil {
		return "[]", nil
	}
	b, err := json.Marshal(r)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

// Scan implements sql.Scanner for persistence.
func (r *RecentErrors) Scan(value any) error {
	if value == nil {
		*r = nil
		return nil
	}
	switch v := value.(type) {
	case []byte:
		return json.Unmarshal(v, r)
	case string:
		return json.Unmarshal([]byte(v), r)
	default:
		return fmt.Errorf("cannot scan %T into RecentErrors", value)
	}
}

// HealthRecord is the durable per-source sync health snapshot.
//
// Last-good-sync fields (LastSyncTime, LastItemCount) only ever advance
// on a successful attempt and survive later failures, so "last good
// sync" information is never lost to one bad run. Last-attempt fields
// track the most recent attempt regardless of outcome; status
// dashboards read LastSyncTime for the timestamp badge and LastSuccess
// for the success badge.
type HealthRecord struct {
	Source        Source       `gorm:"type:varchar(32);primaryKey" json:"source"`
	LastSyncTime  *time.Time   `json:"last_sync_time"`
	LastItemCount int          `gorm:"not null;default:0" json:"last_item_count"`
	LastAttemptAt *time.Time   `json:"last_attempt_at"`
	LastSuccess   bool         `gorm:"not null;default:false" json:"last_success"`
	RecentErrors  RecentErrors `gorm:"type:text" json:"recent_errors"`
	UpdatedAt     time.Time    `json:"updated_at"`
}

// TableName returns the table name for GORM
func (HealthRecord) TableName() string {
	return "sync_health_records"
}

// NewHealthRecord creates an empty health record for a source.
func NewHealthRecord(source Source) *HealthRecord {
	return &HealthRecord{Source: source, RecentErrors: RecentErrors{}}
}

// Apply folds a finished attempt into the record.
//
// Success advances LastSyncTime/LastItemCount; LastSyncTime is
// monotonic and never moves backwards even if attempt timestamps are
// skewed. Failure appends to the error ring and flips LastSuccess for
// the attempt, leaving the last-good fields untouched.
func (h *HealthRecord) Apply(attempt SourceAttempt) {
	finished := attempt.FinishedAt
	h.LastAttemptAt = &finished
	h.LastSuccess = attempt.Succeeded()
	h.UpdatedAt = time.Now()

	if attempt.Succeeded() {
		if h.LastSyncTime == nil || finished.After(*h.LastSyncTime) {
			t := finished
			h.LastSyncTime = &t
			h.LastItemCount = attempt.ItemCount
		}
		return
	}
	h.RecentErrors.Push(attempt.ErrorMessage, finished)
}

// IsStale reports whether the last good sync is older than
// factor x cadence at the given instant. A source that has never
// synced successfully is always stale.
func (h *HealthRecord) IsStale(now time.Time, cadence time.Duration, factor float64) bool {
	if h.LastSyncTime == nil {
		return true
	}
	threshold := time.Duration(float64(cadence) * factor)
	return now.Sub(*h.LastSyncTime) > threshold
}

// HealthRepository stores health records. Upsert must replace the whole
// row in one statement so concurrent readers never observe a torn
// write (new item count paired with an old timestamp).
type HealthRepository interface {
	Get(ctx context.Context, source Source) (*HealthRecord, error)
	List(ctx context.Context) ([]HealthRecord, error)
	Upsert(ctx context.Context, record *HealthRecord) error
}
