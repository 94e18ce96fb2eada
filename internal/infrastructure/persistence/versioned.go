package persistence

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/invsync/backend/internal/domain/shared"
)

// saveVersioned persists an aggregate with optimistic locking: a
// full-row update guarded by the previous version, falling back to an
// insert when the row does not exist yet. A concurrent writer makes the
// save fail with shared.ErrConcurrencyConflict instead of silently
// overwriting.
func saveVersioned(ctx context.Context, db *gorm.DB, entity any, id uuid.UUID, version int) error {
	result := db.WithContext(ctx).
		Model(entity).
		Where("id = ? AND version = ?", id, version-1).
		Select("*").
		Omit("id", "created_at").
		Updates(entity)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected > 0 {
		return nil
	}

	var count int64
	if err := db.WithContext(ctx).Model(entity).Where("id = ?", id).Count(&count).Error; err != nil {
		return err
	}
	if count > 0 {
		return shared.ErrConcurrencyConflict
	}

	if err := db.WithContext(ctx).Create(entity).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return shared.ErrAlreadyExists
		}
		return err
	}
	return nil
}
