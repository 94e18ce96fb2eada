package persistence

import (
	"context"
	"errors"
	"strings"

	"gorm.io/gorm"

	"github.com/invsync/backend/internal/domain/inventory"
	"github.com/invsync/backend/internal/domain/shared"
)

// GormBOMRepository implements BOMRepository using GORM.
type GormBOMRepository struct {
	db *gorm.DB
}

// NewGormBOMRepository creates a new GormBOMRepository.
func NewGormBOMRepository(db *gorm.DB) *GormBOMRepository {
	return &GormBOMRepository{db: db}
}

// FindBySKU finds a bill of materials by its assembly SKU.
func (r *GormBOMRepository) FindBySKU(ctx context.Context, sku string) (*inventory.BOM, error) {
	var bom inventory.BOM
	err := r.db.WithContext(ctx).
		Where("sku = ?", strings.ToUpper(strings.TrimSpace(sku))).
		First(&bom).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	return &bom, nil
}

// FindAll returns all bills of materials ordered by SKU.
func (r *GormBOMRepository) FindAll(ctx context.Context) ([]inventory.BOM, error) {
	var boms []inventory.BOM
	if err := r.db.WithContext(ctx).Order("sku").Find(&boms).Error; err != nil {
		return nil, err
	}
	return boms, nil
}

// Save persists the BOM with optimistic locking.
func (r *GormBOMRepository) Save(ctx context.Context, bom *inventory.BOM) error {
	return saveVersioned(ctx, r.db, bom, bom.ID, bom.Version)
}

var _ inventory.BOMRepository = (*GormBOMRepository)(nil)
