// Package trade holds the locally stored purchase orders the sync
// subsystem and the standalone importer reconcile external data into.
package trade

import (
	"context"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/invsync/backend/internal/domain/shared"
)

// OrderStatus mirrors the external system's purchase order state.
type OrderStatus string

const (
	OrderStatusOpen      OrderStatus = "open"
	OrderStatusPartial   OrderStatus = "partial"
	OrderStatusFulfilled OrderStatus = "fulfilled"
	OrderStatusClosed    OrderStatus = "closed"
	OrderStatusVoided    OrderStatus = "voided"
)

// ParseOrderStatus normalizes an external status string; unrecognized
// values map to open rather than failing the row.
func ParseOrderStatus(raw string) OrderStatus {
	switch OrderStatus(strings.ToLower(strings.TrimSpace(raw))) {
	case OrderStatusPartial:
		return OrderStatusPartial
	case OrderStatusFulfilled:
		return OrderStatusFulfilled
	case OrderStatusClosed:
		return OrderStatusClosed
	case OrderStatusVoided:
		return OrderStatusVoided
	default:
		return OrderStatusOpen
	}
}

// PurchaseOrder is a locally stored purchase order, keyed by its
// external order number.
type PurchaseOrder struct {
	shared.BaseAggregateRoot
	OrderNumber  string      `gorm:"type:varchar(100);not null;uniqueIndex"`
	VendorCode   string      `gorm:"type:varchar(50);not null;index"`
	Status       OrderStatus `gorm:"type:varchar(20);not null;default:'open'"`
	OrderDate    time.Time   `gorm:"not null"`
	ExpectedDate *time.Time
	TotalAmount  decimal.Decimal `gorm:"type:decimal(18,4);not null;default:0"`
}

// TableName returns the table name for GORM
func (PurchaseOrder) TableName() string {
	return "purchase_orders"
}

// NewPurchaseOrder creates a purchase order with required fields.
func NewPurchaseOrder(orderNumber, vendorCode string, orderDate time.Time) (*PurchaseOrder, error) {
	orderNumber = strings.ToUpper(strings.TrimSpace(orderNumber))
	if orderNumber == "" {
		return nil, shared.NewDomainError("INVALID_ORDER_NUMBER", "Order number cannot be empty")
	}
	vendorCode = strings.ToUpper(strings.TrimSpace(vendorCode))
	if vendorCode == "" {
		return nil, shared.NewDomainError("INVALID_VENDOR_CODE", "Vendor code cannot be empty")
	}
	if orderDate.IsZero() {
		return nil, shared.NewDomainError("INVALID_ORDER_DATE", "Order date cannot be empty")
	}
	return &PurchaseOrder{
		BaseAggregateRoot: shared.NewBaseAggregateRoot(),
		OrderNumber:       orderNumber,
		VendorCode:        vendorCode,
		Status:            OrderStatusOpen,
		OrderDate:         orderDate,
		TotalAmount:       decimal.Zero,
	}, nil
}

// ApplyExternal updates the order from external fields and reports
// whether anything changed.
func (p *PurchaseOrder) ApplyExternal(vendorCode string, status OrderStatus, orderDate time.Time, expectedDate *time.Time, totalAmount decimal.Decimal) bool {
	sameExpected := (p.ExpectedDate == nil && expectedDate == nil) ||
		(p.ExpectedDate != nil && expectedDate != nil && p.ExpectedDate.Equal(*expectedDate))
	if p.VendorCode == vendorCode && p.Status == status && p.OrderDate.Equal(orderDate) &&
		sameExpected && p.TotalAmount.Equal(totalAmount) {
		return false
	}
	p.VendorCode = vendorCode
	p.Status = status
	p.OrderDate = orderDate
	p.ExpectedDate = expectedDate
	p.TotalAmount = totalAmount
	p.UpdatedAt = time.Now()
	p.IncrementVersion()
	return true
}

// PurchaseOrderRepository stores purchase orders.
type PurchaseOrderRepository interface {
	FindByOrderNumber(ctx context.Context, orderNumber string) (*PurchaseOrder, error)
	FindAll(ctx context.Context) ([]PurchaseOrder, error)
	// Save persists the order, failing with shared.ErrConcurrencyConflict
	// when the stored version no longer matches.
	Save(ctx context.Context, order *PurchaseOrder) error
}
