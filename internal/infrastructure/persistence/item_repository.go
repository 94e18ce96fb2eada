package persistence

import (
	"context"
	"errors"
	"strings"

	"gorm.io/gorm"

	"github.com/invsync/backend/internal/domain/inventory"
	"github.com/invsync/backend/internal/domain/shared"
)

// GormItemRepository implements ItemRepository using GORM.
type GormItemRepository struct {
	db *gorm.DB
}

// NewGormItemRepository creates a new GormItemRepository.
func NewGormItemRepository(db *gorm.DB) *GormItemRepository {
	return &GormItemRepository{db: db}
}

// FindBySKU finds an item by SKU.
func (r *GormItemRepository) FindBySKU(ctx context.Context, sku string) (*inventory.Item, error) {
	var item inventory.Item
	err := r.db.WithContext(ctx).
		Where("sku = ?", strings.ToUpper(strings.TrimSpace(sku))).
		First(&item).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	return &item, nil
}

// FindAll returns all items ordered by SKU.
func (r *GormItemRepository) FindAll(ctx context.Context) ([]inventory.Item, error) {
	var items []inventory.Item
	if err := r.db.WithContext(ctx).Order("sku").Find(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}

// Save persists the item with optimistic locking.
func (r *GormItemRepository) Save(ctx context.Context, item *inventory.Item) error {
	return saveVersioned(ctx, r.db, item, item.ID, item.Version)
}

var _ inventory.ItemRepository = (*GormItemRepository)(nil)
