package persistence

import (
	"context"
	"errors"
	"strings"

	"gorm.io/gorm"

	"github.com/invsync/backend/internal/domain/shared"
	"github.com/invsync/backend/internal/domain/trade"
)

// GormPurchaseOrderRepository implements PurchaseOrderRepository using GORM.
type GormPurchaseOrderRepository struct {
	db *gorm.DB
}

// NewGormPurchaseOrderRepository creates a new GormPurchaseOrderRepository.
func NewGormPurchaseOrderRepository(db *gorm.DB) *GormPurchaseOrderRepository {
	return &GormPurchaseOrderRepository{db: db}
}

// FindByOrderNumber finds a purchase order by its external order number.
func (r *GormPurchaseOrderRepository) FindByOrderNumber(ctx context.Context, orderNumber string) (*trade.PurchaseOrder, error) {
	var order trade.PurchaseOrder
	err := r.db.WithContext(ctx).
		Where("order_number = ?", strings.ToUpper(strings.TrimSpace(orderNumber))).
		First(&order).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	return &order, nil
}

// FindAll returns all purchase orders, newest order date first.
func (r *GormPurchaseOrderRepository) FindAll(ctx context.Context) ([]trade.PurchaseOrder, error) {
	var orders []trade.PurchaseOrder
	if err := r.db.WithContext(ctx).Order("order_date DESC, order_number").Find(&orders).Error; err != nil {
		return nil, err
	}
	return orders, nil
}

// Save persists the order with optimistic locking.
func (r *GormPurchaseOrderRepository) Save(ctx context.Context, order *trade.PurchaseOrder) error {
	return saveVersioned(ctx, r.db, order, order.ID, order.Version)
}

var _ trade.PurchaseOrderRepository = (*GormPurchaseOrderRepository)(nil)
