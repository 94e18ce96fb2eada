package inventory

import (
	"context"
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/invsync/backend/internal/domain/shared"
)

// Component is one line of a bill of materials.
type Component struct {
	ComponentSKU string          `json:"component_sku"`
	Quantity     decimal.Decimal `json:"quantity"`
}

// Components is the component list, stored as a JSON column so the BOM
// row is read and replaced as one unit.
type Components []Component

// Value implements driver.Valuer for persistence.
func (c Components) Value() (driver.Value, error) {
	if c == nil {
		return "[]", nil
	}
	b, err := json.Marshal(c)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

// Scan implements sql.Scanner for persistence.
func (c *Components) Scan(value any) error {
	if value == nil {
		*c = nil
		return nil
	}
	switch v := value.(type) {
	case []byte:
		return json.Unmarshal(v, c)
	case string:
		return json.Unmarshal([]byte(v), c)
	default:
		return fmt.Errorf("cannot scan %T into Components", value)
	}
}

// Equal reports whether two component lists are identical, order included.
func (c Components) Equal(other Components) bool {
	if len(c) != len(other) {
		return false
	}
	for i := range c {
		if c[i].ComponentSKU != other[i].ComponentSKU || !c[i].Quantity.Equal(other[i].Quantity) {
			return false
		}
	}
	return true
}

// BOM is a locally stored bill of materials, keyed by the assembly SKU.
type BOM struct {
	shared.BaseAggregateRoot
	SKU        string     `gorm:"type:varchar(100);not null;uniqueIndex"`
	Name       string     `gorm:"type:varchar(200)"`
	Components Components `gorm:"type:text"`
}

// TableName returns the table name for GORM
func (BOM) TableName() string {
	return "boms"
}

// NewBOM creates a bill of materials for an assembly SKU.
func NewBOM(sku, name string, components Components) (*BOM, error) {
	sku = strings.ToUpper(strings.TrimSpace(sku))
	if sku == "" {
		return nil, shared.NewDomainError("INVALID_SKU", "BOM SKU cannot be empty")
	}
	return &BOM{
		BaseAggregateRoot: shared.NewBaseAggregateRoot(),
		SKU:               sku,
		Name:              name,
		Components:        components,
	}, nil
}

// ApplyExternal updates the BOM from external fields and reports
// whether anything changed.
func (b *BOM) ApplyExternal(name string, components Components) bool {
	if b.Name == name && b.Components.Equal(components) {
		return false
	}
	b.Name = name
	b.Components = components
	b.UpdatedAt = time.Now()
	b.IncrementVersion()
	return true
}

// BOMRepository stores bills of materials.
type BOMRepository interface {
	FindBySKU(ctx context.Context, sku string) (*BOM, error)
	FindAll(ctx context.Context) ([]BOM, error)
	// Save persists the BOM, failing with shared.ErrConcurrencyConflict
	// when the stored version no longer matches.
	Save(ctx context.Context, bom *BOM) error
}
