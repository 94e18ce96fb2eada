package persistence

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/invsync/backend/internal/domain/shared"
	syncdomain "github.com/invsync/backend/internal/domain/sync"
)

// GormHealthRepository implements HealthRepository using GORM.
type GormHealthRepository struct {
	db *gorm.DB
}

// NewGormHealthRepository creates a new GormHealthRepository.
func NewGormHealthRepository(db *gorm.DB) *GormHealthRepository {
	return &GormHealthRepository{db: db}
}

// Get returns the health record for a source.
func (r *GormHealthRepository) Get(ctx context.Context, source syncdomain.Source) (*syncdomain.HealthRecord, error) {
	var record syncdomain.HealthRecord
	err := r.db.WithContext(ctx).
		Where("source = ?", source).
		First(&record).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	return &record, nil
}

// List returns all health records ordered by source.
func (r *GormHealthRepository) List(ctx context.Context) ([]syncdomain.HealthRecord, error) {
	var records []syncdomain.HealthRecord
	if err := r.db.WithContext(ctx).Order("source").Find(&records).Error; err != nil {
		return nil, err
	}
	return records, nil
}

// Upsert replaces the whole health row in a single statement, so a
// concurrent reader sees either the old row or the new one, never a
// mix.
func (r *GormHealthRepository) Upsert(ctx context.Context, record *syncdomain.HealthRecord) error {
	record.UpdatedAt = time.Now()
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "source"}},
			UpdateAll: true,
		}).
		Create(record).Error
}

var _ syncdomain.HealthRepository = (*GormHealthRepository)(nil)
