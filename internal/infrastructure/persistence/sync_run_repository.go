package persistence

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	syncdomain "github.com/invsync/backend/internal/domain/sync"
)

// syncRunModel is the storage shape of a finished run. Requested
// sources and per-source attempts are JSON columns: the history is
// read back whole, never queried by attempt.
type syncRunModel struct {
	ID             uuid.UUID `gorm:"type:uuid;primaryKey"`
	Trigger        string    `gorm:"type:varchar(20);not null"`
	Sources        string    `gorm:"type:text;not null"`
	Attempts       string    `gorm:"type:text;not null"`
	StartedAt      time.Time `gorm:"not null;index"`
	FinishedAt     time.Time
	OverallSuccess bool `gorm:"not null;default:false"`
}

func (syncRunModel) TableName() string {
	return "sync_runs"
}

func toRunModel(run *syncdomain.SyncRun) (*syncRunModel, error) {
	sources, err := json.Marshal(run.RequestedSources)
	if err != nil {
		return nil, fmt.Errorf("encode run sources: %w", err)
	}
	attempts, err := json.Marshal(run.Attempts)
	if err != nil {
		return nil, fmt.Errorf("encode run attempts: %w", err)
	}
	return &syncRunModel{
		ID:             run.ID,
		Trigger:        string(run.Trigger),
		Sources:        string(sources),
		Attempts:       string(attempts),
		StartedAt:      run.StartedAt,
		FinishedAt:     run.FinishedAt,
		OverallSuccess: run.OverallSuccess,
	}, nil
}

func (m *syncRunModel) toDomain() (*syncdomain.SyncRun, error) {
	run := &syncdomain.SyncRun{
		ID:             m.ID,
		Trigger:        syncdomain.TriggerType(m.Trigger),
		StartedAt:      m.StartedAt,
		FinishedAt:     m.FinishedAt,
		OverallSuccess: m.OverallSuccess,
	}
	if err := json.Unmarshal([]byte(m.Sources), &run.RequestedSources); err != nil {
		return nil, fmt.Errorf("decode run sources: %w", err)
	}
	if err := json.Unmarshal([]byte(m.Attempts), &run.Attempts); err != nil {
		return nil, fmt.Errorf("decode run attempts: %w", err)
	}
	return run, nil
}

// GormRunRepository implements RunRepository using GORM.
type GormRunRepository struct {
	db *gorm.DB
}

// NewGormRunRepository creates a new GormRunRepository.
func NewGormRunRepository(db *gorm.DB) *GormRunRepository {
	return &GormRunRepository{db: db}
}

// Save persists a finished run.
func (r *GormRunRepository) Save(ctx context.Context, run *syncdomain.SyncRun) error {
	model, err := toRunModel(run)
	if err != nil {
		return err
	}
	return r.db.WithContext(ctx).Save(model).Error
}

// ListRecent returns up to limit runs, newest first.
func (r *GormRunRepository) ListRecent(ctx context.Context, limit int) ([]syncdomain.SyncRun, error) {
	var models []syncRunModel
	err := r.db.WithContext(ctx).
		Order("started_at DESC").
		Limit(limit).
		Find(&models).Error
	if err != nil {
		return nil, err
	}

	runs := make([]syncdomain.SyncRun, 0, len(models))
	for i := range models {
		run, err := models[i].toDomain()
		if err != nil {
			return nil, err
		}
		runs = append(runs, *run)
	}
	return runs, nil
}

// Prune deletes all but the newest keep runs.
func (r *GormRunRepository) Prune(ctx context.Context, keep int) error {
	sub := r.db.WithContext(ctx).
		Model(&syncRunModel{}).
		Select("id").
		Order("started_at DESC").
		Limit(keep)
	return r.db.WithContext(ctx).
		Where("id NOT IN (?)", sub).
		Delete(&syncRunModel{}).Error
}

var _ syncdomain.RunRepository = (*GormRunRepository)(nil)
