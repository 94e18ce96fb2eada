// Package inventory holds the locally stored inventory items and bills
// of materials the sync subsystem reconciles external data into.
package inventory

import (
	"context"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/invsync/backend/internal/domain/shared"
)

// Item is a locally stored inventory position, keyed by SKU.
type Item struct {
	shared.BaseAggregateRoot
	SKU      string          `gorm:"type:varchar(100);not null;uniqueIndex"`
	Name     string          `gorm:"type:varchar(200);not null"`
	Quantity decimal.Decimal `gorm:"type:decimal(18,4);not null;default:0"`
	UnitCost decimal.Decimal `gorm:"type:decimal(18,4);not null;default:0"`
	Location string          `gorm:"type:varchar(100)"`
}

// TableName returns the table name for GORM
func (Item) TableName() string {
	return "inventory_items"
}

// NewItem creates an inventory item with required fields.
func NewItem(sku, name string) (*Item, error) {
	sku = strings.ToUpper(strings.TrimSpace(sku))
	if sku == "" {
		return nil, shared.NewDomainError("INVALID_SKU", "SKU cannot be empty")
	}
	if strings.TrimSpace(name) == "" {
		return nil, shared.NewDomainError("INVALID_NAME", "Item name cannot be empty")
	}
	return &Item{
		BaseAggregateRoot: shared.NewBaseAggregateRoot(),
		SKU:               sku,
		Name:              name,
		Quantity:          decimal.Zero,
		UnitCost:          decimal.Zero,
	}, nil
}

// ApplyExternal updates the item from external fields and reports
// whether anything changed.
func (i *Item) ApplyExternal(name string, quantity, unitCost decimal.Decimal, location string) bool {
	if i.Name == name && i.Quantity.Equal(quantity) && i.UnitCost.Equal(unitCost) && i.Location == location {
		return false
	}
	i.Name = name
	i.Quantity = quantity
	i.UnitCost = unitCost
	i.Location = location
	i.UpdatedAt = time.Now()
	i.IncrementVersion()
	return true
}

// ItemRepository stores inventory items.
type ItemRepository interface {
	FindBySKU(ctx context.Context, sku string) (*Item, error)
	FindAll(ctx context.Context) ([]Item, error)
	// Save persists the item, failing with shared.ErrConcurrencyConflict
	// when the stored version no longer matches.
	Save(ctx context.Context, item *Item) error
}
