package connector

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	syncdomain "github.com/invsync/backend/internal/domain/sync"
)

// Wire payloads for the external inventory API. Decimal fields come
// over the wire as JSON strings.

const orderDateLayout = "2006-01-02"

type pingResponse struct {
	OK bool `json:"ok"`
}

type vendorPayload struct {
	Code        string `json:"code"`
	Name        string `json:"name"`
	ContactName string `json:"contact_name"`
	Phone       string `json:"phone"`
	Email       string `json:"email"`
	Address     string `json:"address"`
	Notes       string `json:"notes"`
}

type vendorListResponse struct {
	Vendors []vendorPayload `json:"vendors"`
}

func (p vendorPayload) toRecord() syncdomain.VendorRecord {
	return syncdomain.VendorRecord{
		Code:        p.Code,
		Name:        p.Name,
		ContactName: p.ContactName,
		Phone:       p.Phone,
		Email:       p.Email,
		Address:     p.Address,
		Notes:       p.Notes,
	}
}

type itemPayload struct {
	SKU      string          `json:"sku"`
	Name     string          `json:"name"`
	Quantity decimal.Decimal `json:"quantity"`
	UnitCost decimal.Decimal `json:"unit_cost"`
	Location string          `json:"location"`
}

type itemListResponse struct {
	Items []itemPayload `json:"items"`
}

func (p itemPayload) toRecord() syncdomain.ItemRecord {
	return syncdomain.ItemRecord{
		SKU:      p.SKU,
		Name:     p.Name,
		Quantity: p.Quantity,
		UnitCost: p.UnitCost,
		Location: p.Location,
	}
}

type bomComponentPayload struct {
	ComponentSKU string          `json:"component_sku"`
	Quantity     decimal.Decimal `json:"quantity"`
}

type bomPayload struct {
	SKU        string                `json:"sku"`
	Name       string                `json:"name"`
	Components []bomComponentPayload `json:"components"`
}

type bomListResponse struct {
	BOMs []bomPayload `json:"boms"`
}

func (p bomPayload) toRecord() syncdomain.BOMRecord {
	components := make([]syncdomain.BOMComponent, 0, len(p.Components))
	for _, c := range p.Components {
		components = append(components, syncdomain.BOMComponent{
			ComponentSKU: c.ComponentSKU,
			Quantity:     c.Quantity,
		})
	}
	return syncdomain.BOMRecord{SKU: p.SKU, Name: p.Name, Components: components}
}

type purchaseOrderPayload struct {
	OrderNumber  string          `json:"order_number"`
	VendorCode   string          `json:"vendor_code"`
	Status       string          `json:"status"`
	OrderDate    string          `json:"order_date"`
	ExpectedDate string          `json:"expected_date"`
	TotalAmount  decimal.Decimal `json:"total_amount"`
}

type purchaseOrderListResponse struct {
	Orders []purchaseOrderPayload `json:"purchase_orders"`
}

func (p purchaseOrderPayload) toRecord() (syncdomain.PurchaseOrderRecord, error) {
	rec := syncdomain.PurchaseOrderRecord{
		OrderNumber: p.OrderNumber,
		VendorCode:  p.VendorCode,
		Status:      p.Status,
		TotalAmount: p.TotalAmount,
	}

	if p.OrderDate != "" {
		t, err := time.Parse(orderDateLayout, p.OrderDate)
		if err != nil {
			return rec, fmt.Errorf("order %s: bad order_date %q", p.OrderNumber, p.OrderDate)
		}
		rec.OrderDate = t
	}
	if p.ExpectedDate != "" {
		t, err := time.Parse(orderDateLayout, p.ExpectedDate)
		if err != nil {
			return rec, fmt.Errorf("order %s: bad expected_date %q", p.OrderNumber, p.ExpectedDate)
		}
		rec.ExpectedDate = &t
	}
	return rec, nil
}
