package importer

import (
	"fmt"
	"io"
	"time"

	"github.com/shopspring/decimal"

	syncdomain "github.com/invsync/backend/internal/domain/sync"
	"github.com/invsync/backend/internal/infrastructure/importcsv"
)

// CSV decoders: one per source, turning header-mapped rows into
// external records. Malformed rows become Issues with their line
// number; decoding never aborts on a bad row. A missing required
// header fails the whole file since no row can be interpreted.

const csvDateLayout = "2006-01-02"

func requireHeaders(p *importcsv.Parser, required ...string) error {
	if missing := p.MissingHeaders(required); len(missing) > 0 {
		return syncdomain.NewValidationError(fmt.Sprintf("missing required columns: %v", missing))
	}
	return nil
}

// forEachRow drives the parser, converting parser-level row errors
// into Issues and passing good rows to fn.
func forEachRow(p *importcsv.Parser, issues *[]Issue, fn func(*importcsv.Row)) {
	for {
		row, err := p.ReadRow()
		if err == io.EOF {
			return
		}
		if err != nil {
			if re, ok := importcsv.AsRowError(err); ok {
				*issues = append(*issues, Issue{
					Row:     re.Row,
					Class:   syncdomain.ClassValidation,
					Message: re.Message,
				})
				continue
			}
			*issues = append(*issues, Issue{
				Class:   syncdomain.ClassValidation,
				Message: err.Error(),
			})
			return
		}
		if row.IsEmpty() {
			continue
		}
		fn(row)
	}
}

// DecodeVendorRows decodes a vendors CSV.
// Columns: code, name, contact_name, phone, email, address, notes.
func DecodeVendorRows(p *importcsv.Parser) ([]Row[syncdomain.VendorRecord], []Issue, error) {
	if err := requireHeaders(p, "code", "name"); err != nil {
		return nil, nil, err
	}

	var rows []Row[syncdomain.VendorRecord]
	var issues []Issue
	forEachRow(p, &issues, func(row *importcsv.Row) {
		rows = append(rows, Row[syncdomain.VendorRecord]{
			Line: row.LineNumber,
			Record: syncdomain.VendorRecord{
				Code:        row.Get("code"),
				Name:        row.Get("name"),
				ContactName: row.Get("contact_name"),
				Phone:       row.Get("phone"),
				Email:       row.Get("email"),
				Address:     row.Get("address"),
				Notes:       row.Get("notes"),
			},
		})
	})
	return rows, issues, nil
}

// DecodeItemRows decodes an inventory CSV.
// Columns: sku, name, quantity, unit_cost, location.
func DecodeItemRows(p *importcsv.Parser) ([]Row[syncdomain.ItemRecord], []Issue, error) {
	if err := requireHeaders(p, "sku", "name", "quantity"); err != nil {
		return nil, nil, err
	}

	var rows []Row[syncdomain.ItemRecord]
	var issues []Issue
	forEachRow(p, &issues, func(row *importcsv.Row) {
		quantity, err := decimal.NewFromString(row.GetOrDefault("quantity", "0"))
		if err != nil {
			issues = append(issues, Issue{
				Row: row.LineNumber, Key: row.Get("sku"),
				Class:   syncdomain.ClassValidation,
				Message: fmt.Sprintf("bad quantity %q", row.Get("quantity")),
			})
			return
		}
		unitCost, err := decimal.NewFromString(row.GetOrDefault("unit_cost", "0"))
		if err != nil {
			issues = append(issues, Issue{
				Row: row.LineNumber, Key: row.Get("sku"),
				Class:   syncdomain.ClassValidation,
				Message: fmt.Sprintf("bad unit_cost %q", row.Get("unit_cost")),
			})
			return
		}
		rows = append(rows, Row[syncdomain.ItemRecord]{
			Line: row.LineNumber,
			Record: syncdomain.ItemRecord{
				SKU:      row.Get("sku"),
				Name:     row.Get("name"),
				Quantity: quantity,
				UnitCost: unitCost,
				Location: row.Get("location"),
			},
		})
	})
	return rows, issues, nil
}

// DecodeBOMRows decodes a BOM CSV where each line is one component and
// lines sharing a sku form one bill of materials.
// Columns: sku, name, component_sku, quantity.
func DecodeBOMRows(p *importcsv.Parser) ([]Row[syncdomain.BOMRecord], []Issue, error) {
	if err := requireHeaders(p, "sku", "component_sku", "quantity"); err != nil {
		return nil, nil, err
	}

	var order []string
	grouped := make(map[string]*Row[syncdomain.BOMRecord])
	var issues []Issue

	forEachRow(p, &issues, func(row *importcsv.Row) {
		sku := row.Get("sku")
		quantity, err := decimal.NewFromString(row.GetOrDefault("quantity", "0"))
		if err != nil {
			issues = append(issues, Issue{
				Row: row.LineNumber, Key: sku,
				Class:   syncdomain.ClassValidation,
				Message: fmt.Sprintf("bad quantity %q", row.Get("quantity")),
			})
			return
		}

		entry, ok := grouped[sku]
		if !ok {
			entry = &Row[syncdomain.BOMRecord]{
				Line:   row.LineNumber,
				Record: syncdomain.BOMRecord{SKU: sku, Name: row.Get("name")},
			}
			grouped[sku] = entry
			order = append(order, sku)
		}
		entry.Record.Components = append(entry.Record.Components, syncdomain.BOMComponent{
			ComponentSKU: row.Get("component_sku"),
			Quantity:     quantity,
		})
	})

	rows := make([]Row[syncdomain.BOMRecord], 0, len(order))
	for _, sku := range order {
		rows = append(rows, *grouped[sku])
	}
	return rows, issues, nil
}

// DecodePurchaseOrderRows decodes a purchase orders CSV.
// Columns: order_number, vendor_code, status, order_date,
// expected_date, total_amount.
func DecodePurchaseOrderRows(p *importcsv.Parser) ([]Row[syncdomain.PurchaseOrderRecord], []Issue, error) {
	if err := requireHeaders(p, "order_number", "vendor_code", "order_date"); err != nil {
		return nil, nil, err
	}

	var rows []Row[syncdomain.PurchaseOrderRecord]
	var issues []Issue
	forEachRow(p, &issues, func(row *importcsv.Row) {
		orderNumber := row.Get("order_number")

		orderDate, err := time.Parse(csvDateLayout, row.Get("order_date"))
		if err != nil {
			issues = append(issues, Issue{
				Row: row.LineNumber, Key: orderNumber,
				Class:   syncdomain.ClassValidation,
				Message: fmt.Sprintf("bad order_date %q", row.Get("order_date")),
			})
			return
		}

		var expected *time.Time
		if raw := row.Get("expected_date"); raw != "" {
			t, err := time.Parse(csvDateLayout, raw)
			if err != nil {
				issues = append(issues, Issue{
					Row: row.LineNumber, Key: orderNumber,
					Class:   syncdomain.ClassValidation,
					Message: fmt.Sprintf("bad expected_date %q", raw),
				})
				return
			}
			expected = &t
		}

		amount, err := decimal.NewFromString(row.GetOrDefault("total_amount", "0"))
		if err != nil {
			issues = append(issues, Issue{
				Row: row.LineNumber, Key: orderNumber,
				Class:   syncdomain.ClassValidation,
				Message: fmt.Sprintf("bad total_amount %q", row.Get("total_amount")),
			})
			return
		}

		rows = append(rows, Row[syncdomain.PurchaseOrderRecord]{
			Line: row.LineNumber,
			Record: syncdomain.PurchaseOrderRecord{
				OrderNumber:  orderNumber,
				VendorCode:   row.Get("vendor_code"),
				Status:       row.Get("status"),
				OrderDate:    orderDate,
				ExpectedDate: expected,
				TotalAmount:  amount,
			},
		})
	})
	return rows, issues, nil
}
