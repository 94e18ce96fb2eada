// Package importer contains the batch reconciliation engine shared by
// sync phases and the standalone CSV importer, plus the row decoders
// that turn staged CSV files into external records.
package importer

import (
	"context"
	"errors"

	"github.com/invsync/backend/internal/domain/shared"
	syncdomain "github.com/invsync/backend/internal/domain/sync"
)

// Row pairs an external record with its position in the source batch
// (the CSV line number, or the 1-based index for API batches).
type Row[R any] struct {
	Line   int
	Record R
}

// Issue is one per-row reconciliation failure. The batch always
// continues past it.
type Issue struct {
	Row     int                   `json:"row"`
	Key     string                `json:"key,omitempty"`
	Class   syncdomain.ErrorClass `json:"class"`
	Message string                `json:"message"`
}

// Result summarizes one reconciled batch. Every row lands in exactly
// one bucket: Created, Updated, Skipped (no-op match), or Errors.
type Result struct {
	Created int     `json:"created"`
	Updated int     `json:"updated"`
	Skipped int     `json:"skipped"`
	Errors  []Issue `json:"errors,omitempty"`
}

// Applied returns how many records changed local state.
func (r Result) Applied() int {
	return r.Created + r.Updated
}

// add folds another result in (used when a batch is reconciled in parts).
func (r *Result) add(other Result) {
	r.Created += other.Created
	r.Updated += other.Updated
	r.Skipped += other.Skipped
	r.Errors = append(r.Errors, other.Errors...)
}

// Reconciler applies a batch of external records to local entities.
// One record failing — validation, a version conflict, a save error —
// is recorded as an Issue and never aborts the rest of the batch.
type Reconciler[R any, E any] struct {
	// KeyOf returns the record's idempotent key.
	KeyOf func(R) string
	// Validate rejects malformed records before any lookup.
	Validate func(R) error
	// Find loads the local entity for a key, shared.ErrNotFound when absent.
	Find func(ctx context.Context, key string) (E, error)
	// New builds a local entity from a record.
	New func(R) (E, error)
	// Apply folds the record into an existing entity, reporting change.
	Apply func(E, R) bool
	// Save persists the entity; shared.ErrConcurrencyConflict and
	// shared.ErrAlreadyExists are treated as conflicts.
	Save func(ctx context.Context, entity E) error
}

// Reconcile processes the batch in order and returns the tally.
func (r *Reconciler[R, E]) Reconcile(ctx context.Context, rows []Row[R]) Result {
	var result Result
	for _, row := range rows {
		r.reconcileOne(ctx, row, &result)
	}
	return result
}

func (r *Reconciler[R, E]) reconcileOne(ctx context.Context, row Row[R], result *Result) {
	key := r.KeyOf(row.Record)

	if err := r.Validate(row.Record); err != nil {
		result.Errors = append(result.Errors, Issue{
			Row: row.Line, Key: key,
			Class:   classOrDefault(err, syncdomain.ClassValidation),
			Message: err.Error(),
		})
		return
	}

	existing, err := r.Find(ctx, key)
	switch {
	case err == nil:
		if !r.Apply(existing, row.Record) {
			result.Skipped++
			return
		}
		if err := r.Save(ctx, existing); err != nil {
			r.recordSaveError(row, key, err, result)
			return
		}
		result.Updated++

	case errors.Is(err, shared.ErrNotFound):
		entity, err := r.New(row.Record)
		if err != nil {
			result.Errors = append(result.Errors, Issue{
				Row: row.Line, Key: key,
				Class:   classOrDefault(err, syncdomain.ClassValidation),
				Message: err.Error(),
			})
			return
		}
		r.Apply(entity, row.Record)
		if err := r.Save(ctx, entity); err != nil {
			r.recordSaveError(row, key, err, result)
			return
		}
		result.Created++

	default:
		result.Errors = append(result.Errors, Issue{
			Row: row.Line, Key: key,
			Class:   syncdomain.ClassConnectivity,
			Message: err.Error(),
		})
	}
}

func (r *Reconciler[R, E]) recordSaveError(row Row[R], key string, err error, result *Result) {
	class := classOrDefault(err, syncdomain.ClassValidation)
	if errors.Is(err, shared.ErrConcurrencyConflict) || errors.Is(err, shared.ErrAlreadyExists) {
		class = syncdomain.ClassConflict
	}
	result.Errors = append(result.Errors, Issue{
		Row: row.Line, Key: key, Class: class, Message: err.Error(),
	})
}

func classOrDefault(err error, def syncdomain.ErrorClass) syncdomain.ErrorClass {
	if class := syncdomain.ClassOf(err); class != "" {
		return class
	}
	return def
}

// IndexRows wraps an API batch with 1-based positions.
func IndexRows[R any](records []R) []Row[R] {
	rows := make([]Row[R], 0, len(records))
	for i, rec := range records {
		rows = append(rows, Row[R]{Line: i + 1, Record: rec})
	}
	return rows
}
