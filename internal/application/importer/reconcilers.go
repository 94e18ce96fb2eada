package importer

import (
	"context"
	"strings"

	"github.com/invsync/backend/internal/domain/inventory"
	"github.com/invsync/backend/internal/domain/partner"
	syncdomain "github.com/invsync/backend/internal/domain/sync"
	"github.com/invsync/backend/internal/domain/trade"
)

// Concrete reconcilers, one per synchronized record type. Sync phases
// and the standalone importer share these so API pulls and CSV staging
// apply records identically.

// NewVendorReconciler reconciles external vendor records.
func NewVendorReconciler(repo partner.VendorRepository) *Reconciler[syncdomain.VendorRecord, *partner.Vendor] {
	return &Reconciler[syncdomain.VendorRecord, *partner.Vendor]{
		KeyOf:    syncdomain.VendorRecord.Key,
		Validate: syncdomain.VendorRecord.Validate,
		Find: func(ctx context.Context, key string) (*partner.Vendor, error) {
			return repo.FindByCode(ctx, key)
		},
		New: func(rec syncdomain.VendorRecord) (*partner.Vendor, error) {
			return partner.NewVendor(rec.Code, rec.Name)
		},
		Apply: func(v *partner.Vendor, rec syncdomain.VendorRecord) bool {
			return v.ApplyExternal(rec.Name, rec.ContactName, rec.Phone, rec.Email, rec.Address, rec.Notes)
		},
		Save: func(ctx context.Context, v *partner.Vendor) error {
			return repo.Save(ctx, v)
		},
	}
}

// NewItemReconciler reconciles external inventory item records.
func NewItemReconciler(repo inventory.ItemRepository) *Reconciler[syncdomain.ItemRecord, *inventory.Item] {
	return &Reconciler[syncdomain.ItemRecord, *inventory.Item]{
		KeyOf:    syncdomain.ItemRecord.Key,
		Validate: syncdomain.ItemRecord.Validate,
		Find: func(ctx context.Context, key string) (*inventory.Item, error) {
			return repo.FindBySKU(ctx, key)
		},
		New: func(rec syncdomain.ItemRecord) (*inventory.Item, error) {
			return inventory.NewItem(rec.SKU, rec.Name)
		},
		Apply: func(i *inventory.Item, rec syncdomain.ItemRecord) bool {
			return i.ApplyExternal(rec.Name, rec.Quantity, rec.UnitCost, rec.Location)
		},
		Save: func(ctx context.Context, i *inventory.Item) error {
			return repo.Save(ctx, i)
		},
	}
}

// NewBOMReconciler reconciles external bill-of-materials records.
func NewBOMReconciler(repo inventory.BOMRepository) *Reconciler[syncdomain.BOMRecord, *inventory.BOM] {
	return &Reconciler[syncdomain.BOMRecord, *inventory.BOM]{
		KeyOf:    syncdomain.BOMRecord.Key,
		Validate: syncdomain.BOMRecord.Validate,
		Find: func(ctx context.Context, key string) (*inventory.BOM, error) {
			return repo.FindBySKU(ctx, key)
		},
		New: func(rec syncdomain.BOMRecord) (*inventory.BOM, error) {
			return inventory.NewBOM(rec.SKU, rec.Name, nil)
		},
		Apply: func(b *inventory.BOM, rec syncdomain.BOMRecord) bool {
			return b.ApplyExternal(rec.Name, toComponents(rec.Components))
		},
		Save: func(ctx context.Context, b *inventory.BOM) error {
			return repo.Save(ctx, b)
		},
	}
}

func toComponents(components []syncdomain.BOMComponent) inventory.Components {
	out := make(inventory.Components, 0, len(components))
	for _, c := range components {
		out = append(out, inventory.Component{
			ComponentSKU: strings.ToUpper(strings.TrimSpace(c.ComponentSKU)),
			Quantity:     c.Quantity,
		})
	}
	return out
}

// NewPurchaseOrderReconciler reconciles external purchase order records.
func NewPurchaseOrderReconciler(repo trade.PurchaseOrderRepository) *Reconciler[syncdomain.PurchaseOrderRecord, *trade.PurchaseOrder] {
	return &Reconciler[syncdomain.PurchaseOrderRecord, *trade.PurchaseOrder]{
		KeyOf:    syncdomain.PurchaseOrderRecord.Key,
		Validate: syncdomain.PurchaseOrderRecord.Validate,
		Find: func(ctx context.Context, key string) (*trade.PurchaseOrder, error) {
			return repo.FindByOrderNumber(ctx, key)
		},
		New: func(rec syncdomain.PurchaseOrderRecord) (*trade.PurchaseOrder, error) {
			return trade.NewPurchaseOrder(rec.OrderNumber, rec.VendorCode, rec.OrderDate)
		},
		Apply: func(o *trade.PurchaseOrder, rec syncdomain.PurchaseOrderRecord) bool {
			return o.ApplyExternal(
				strings.ToUpper(strings.TrimSpace(rec.VendorCode)),
				trade.ParseOrderStatus(rec.Status),
				rec.OrderDate,
				rec.ExpectedDate,
				rec.TotalAmount,
			)
		},
		Save: func(ctx context.Context, o *trade.PurchaseOrder) error {
			return repo.Save(ctx, o)
		},
	}
}
