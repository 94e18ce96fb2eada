// Package partner holds the locally stored vendor records the sync
// subsystem reconciles external vendor data into.
package partner

import (
	"context"
	"strings"
	"time"

	"github.com/invsync/backend/internal/domain/shared"
)

// Vendor is a locally stored vendor, keyed by its external vendor code.
type Vendor struct {
	shared.BaseAggregateRoot
	Code        string `gorm:"type:varchar(50);not null;uniqueIndex"`
	Name        string `gorm:"type:varchar(200);not null"`
	ContactName string `gorm:"type:varchar(100)"`
	Phone       string `gorm:"type:varchar(50)"`
	Email       string `gorm:"type:varchar(200)"`
	Address     string `gorm:"type:text"`
	Notes       string `gorm:"type:text"`
}

// TableName returns the table name for GORM
func (Vendor) TableName() string {
	return "vendors"
}

// NewVendor creates a vendor with required fields.
func NewVendor(code, name string) (*Vendor, error) {
	code = strings.ToUpper(strings.TrimSpace(code))
	if code == "" {
		return nil, shared.NewDomainError("INVALID_CODE", "Vendor code cannot be empty")
	}
	if strings.TrimSpace(name) == "" {
		return nil, shared.NewDomainError("INVALID_NAME", "Vendor name cannot be empty")
	}
	return &Vendor{
		BaseAggregateRoot: shared.NewBaseAggregateRoot(),
		Code:              code,
		Name:              name,
	}, nil
}

// ApplyExternal updates the vendor from external fields and reports
// whether anything changed. An unchanged vendor is not touched, so a
// repeated sync against identical data is a no-op.
func (v *Vendor) ApplyExternal(name, contactName, phone, email, address, notes string) bool {
	if v.Name == name && v.ContactName == contactName && v.Phone == phone &&
		v.Email == email && v.Address == address && v.Notes == notes {
		return false
	}
	v.Name = name
	v.ContactName = contactName
	v.Phone = phone
	v.Email = email
	v.Address = address
	v.Notes = notes
	v.UpdatedAt = time.Now()
	v.IncrementVersion()
	return true
}

// VendorRepository stores vendors.
type VendorRepository interface {
	FindByCode(ctx context.Context, code string) (*Vendor, error)
	FindAll(ctx context.Context) ([]Vendor, error)
	// Save persists the vendor, failing with shared.ErrConcurrencyConflict
	// when the stored version no longer matches.
	Save(ctx context.Context, vendor *Vendor) error
}
