package sync

import (
	"context"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// External records are the validated intermediate form every ingestion
// path (API pull or CSV staging buffer) converges to before
// reconciliation. Each record carries the idempotent key that matches
// it to its local counterpart across repeated syncs.

// VendorRecord is an external vendor row. Key: vendor code.
type VendorRecord struct {
	Code        string
	Name        string
	ContactName string
	Phone       string
	Email       string
	Address     string
	Notes       string
}

// Key returns the idempotent key of the record.
func (r VendorRecord) Key() string { return strings.ToUpper(strings.TrimSpace(r.Code)) }

// Validate checks required fields.
func (r VendorRecord) Validate() error {
	if strings.TrimSpace(r.Code) == "" {
		return NewValidationError("vendor code is required")
	}
	if strings.TrimSpace(r.Name) == "" {
		return NewValidationError("vendor name is required")
	}
	return nil
}

// ItemRecord is an external inventory row. Key: SKU.
type ItemRecord struct {
	SKU      string
	Name     string
	Quantity decimal.Decimal
	UnitCost decimal.Decimal
	Location string
}

// Key returns the idempotent key of the record.
func (r ItemRecord) Key() string { return strings.ToUpper(strings.TrimSpace(r.SKU)) }

// Validate checks required fields and value ranges.
func (r ItemRecord) Validate() error {
	if strings.TrimSpace(r.SKU) == "" {
		return NewValidationError("sku is required")
	}
	if strings.TrimSpace(r.Name) == "" {
		return NewValidationError("item name is required")
	}
	if r.Quantity.IsNegative() {
		return NewValidationError("quantity cannot be negative")
	}
	if r.UnitCost.IsNegative() {
		return NewValidationError("unit cost cannot be negative")
	}
	return nil
}

// BOMComponent is one line of a bill of materials.
type BOMComponent struct {
	ComponentSKU string          `json:"component_sku"`
	Quantity     decimal.Decimal `json:"quantity"`
}

// BOMRecord is an external bill-of-materials row. Key: assembly SKU.
type BOMRecord struct {
	SKU        string
	Name       string
	Components []BOMComponent
}

// Key returns the idempotent key of the record.
func (r BOMRecord) Key() string { return strings.ToUpper(strings.TrimSpace(r.SKU)) }

// Validate checks required fields and component sanity.
func (r BOMRecord) Validate() error {
	if strings.TrimSpace(r.SKU) == "" {
		return NewValidationError("bom sku is required")
	}
	for _, c := range r.Components {
		if strings.TrimSpace(c.ComponentSKU) == "" {
			return NewValidationError("bom component sku is required")
		}
		if !c.Quantity.IsPositive() {
			return NewValidationError("bom component quantity must be positive")
		}
	}
	return nil
}

// PurchaseOrderRecord is an external purchase order row. Key: order number.
type PurchaseOrderRecord struct {
	OrderNumber  string
	VendorCode   string
	Status       string
	OrderDate    time.Time
	ExpectedDate *time.Time
	TotalAmount  decimal.Decimal
}

// Key returns the idempotent key of the record.
func (r PurchaseOrderRecord) Key() string {
	return strings.ToUpper(strings.TrimSpace(r.OrderNumber))
}

// Validate checks required fields and value ranges.
func (r PurchaseOrderRecord) Validate() error {
	if strings.TrimSpace(r.OrderNumber) == "" {
		return NewValidationError("order number is required")
	}
	if strings.TrimSpace(r.VendorCode) == "" {
		return NewValidationError("vendor code is required")
	}
	if r.OrderDate.IsZero() {
		return NewValidationError("order date is required")
	}
	if r.TotalAmount.IsNegative() {
		return NewValidationError("total amount cannot be negative")
	}
	return nil
}

// Connector fetches raw records from the external inventory system's
// API. Fetch failures are connectivity errors; individual record
// validation happens downstream in the reconciler.
type Connector interface {
	FetchVendors(ctx context.Context) ([]VendorRecord, error)
	FetchInventory(ctx context.Context) ([]ItemRecord, error)
	FetchBOMs(ctx context.Context) ([]BOMRecord, error)
	FetchPurchaseOrders(ctx context.Context) ([]PurchaseOrderRecord, error)
}
