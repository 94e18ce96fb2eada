package persistence

import (
	"context"
	"errors"
	"strings"

	"gorm.io/gorm"

	"github.com/invsync/backend/internal/domain/partner"
	"github.com/invsync/backend/internal/domain/shared"
)

// GormVendorRepository implements VendorRepository using GORM.
type GormVendorRepository struct {
	db *gorm.DB
}

// NewGormVendorRepository creates a new GormVendorRepository.
func NewGormVendorRepository(db *gorm.DB) *GormVendorRepository {
	return &GormVendorRepository{db: db}
}

// FindByCode finds a vendor by its external code.
func (r *GormVendorRepository) FindByCode(ctx context.Context, code string) (*partner.Vendor, error) {
	var vendor partner.Vendor
	err := r.db.WithContext(ctx).
		Where("code = ?", strings.ToUpper(strings.TrimSpace(code))).
		First(&vendor).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	return &vendor, nil
}

// FindAll returns all vendors ordered by code.
func (r *GormVendorRepository) FindAll(ctx context.Context) ([]partner.Vendor, error) {
	var vendors []partner.Vendor
	if err := r.db.WithContext(ctx).Order("code").Find(&vendors).Error; err != nil {
		return nil, err
	}
	return vendors, nil
}

// Save persists the vendor with optimistic locking.
func (r *GormVendorRepository) Save(ctx context.Context, vendor *partner.Vendor) error {
	return saveVersioned(ctx, r.db, vendor, vendor.ID, vendor.Version)
}

var _ partner.VendorRepository = (*GormVendorRepository)(nil)
