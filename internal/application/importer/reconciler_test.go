package importer

import (
	"context"
	"sync"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/invsync/backend/internal/domain/partner"
	"github.com/invsync/backend/internal/domain/shared"
	syncdomain "github.com/invsync/backend/internal/domain/sync"
	"github.com/invsync/backend/internal/domain/trade"
)

// fakeVendorRepo is a map-backed VendorRepository.
type fakeVendorRepo struct {
	mu      sync.Mutex
	vendors map[string]*partner.Vendor
	saveErr error
}

func newFakeVendorRepo() *fakeVendorRepo {
	return &fakeVendorRepo{vendors: make(map[string]*partner.Vendor)}
}

func (r *fakeVendorRepo) FindByCode(_ context.Context, code string) (*partner.Vendor, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if v, ok := r.vendors[code]; ok {
		clone := *v
		return &clone, nil
	}
	return nil, shared.ErrNotFound
}

func (r *fakeVendorRepo) FindAll(context.Context) ([]partner.Vendor, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]partner.Vendor, 0, len(r.vendors))
	for _, v := range r.vendors {
		out = append(out, *v)
	}
	return out, nil
}

func (r *fakeVendorRepo) Save(_ context.Context, vendor *partner.Vendor) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.saveErr != nil {
		return r.saveErr
	}
	clone := *vendor
	r.vendors[vendor.Code] = &clone
	return nil
}

func vendorRecord(code, name string) syncdomain.VendorRecord {
	return syncdomain.VendorRecord{Code: code, Name: name}
}

func TestReconcileCreatesAndUpdates(t *testing.T) {
	repo := newFakeVendorRepo()
	rec := NewVendorReconciler(repo)
	ctx := context.Background()

	result := rec.Reconcile(ctx, IndexRows([]syncdomain.VendorRecord{
		vendorRecord("V-1", "Acme"),
		vendorRecord("V-2", "Bravo"),
	}))
	assert.Equal(t, 2, result.Created)
	assert.Equal(t, 0, result.Updated)
	assert.Empty(t, result.Errors)

	// Second pass: one changed, one identical.
	result = rec.Reconcile(ctx, IndexRows([]syncdomain.VendorRecord{
		vendorRecord("V-1", "Acme Renamed"),
		vendorRecord("V-2", "Bravo"),
	}))
	assert.Equal(t, 0, result.Created)
	assert.Equal(t, 1, result.Updated)
	assert.Equal(t, 1, result.Skipped)
	assert.Equal(t, 1, result.Applied())
}

func TestReconcileNeverAbortsOnBadRows(t *testing.T) {
	repo := newFakeVendorRepo()
	rec := NewVendorReconciler(repo)

	records := make([]syncdomain.VendorRecord, 0, 12)
	for i := 0; i < 5; i++ {
		records = append(records, vendorRecord(string(rune('A'+i))+"-1", "Vendor"))
	}
	records = append(records, vendorRecord("", "No Code"))
	for i := 5; i < 10; i++ {
		records = append(records, vendorRecord(string(rune('A'+i))+"-1", "Vendor"))
	}
	records = append(records, vendorRecord("Z-1", ""))

	result := rec.Reconcile(context.Background(), IndexRows(records))
	assert.Equal(t, 10, result.Created+result.Updated+result.Skipped)
	assert.Equal(t, 10, result.Created)
	assert.Equal(t, 0, result.Skipped)
	require.Len(t, result.Errors, 2)
	assert.Equal(t, syncdomain.ClassValidation, result.Errors[0].Class)
	assert.Equal(t, 6, result.Errors[0].Row)
	assert.Equal(t, 12, result.Errors[1].Row)
}

func TestReconcileConflictIsRecordLevel(t *testing.T) {
	repo := newFakeVendorRepo()
	rec := NewVendorReconciler(repo)
	ctx := context.Background()

	_ = rec.Reconcile(ctx, IndexRows([]syncdomain.VendorRecord{vendorRecord("V-1", "Acme")}))

	repo.saveErr = shared.ErrConcurrencyConflict
	result := rec.Reconcile(ctx, IndexRows([]syncdomain.VendorRecord{
		vendorRecord("V-1", "Acme Updated"),
		vendorRecord("V-1", "Acme Updated Again"),
	}))
	assert.Equal(t, 0, result.Updated)
	assert.Equal(t, 0, result.Skipped)
	require.Len(t, result.Errors, 2)
	assert.Equal(t, syncdomain.ClassConflict, result.Errors[0].Class)
}

func TestReconcileFindFailureIsRecorded(t *testing.T) {
	rec := NewVendorReconciler(newFakeVendorRepo())
	rec.Find = func(context.Context, string) (*partner.Vendor, error) {
		return nil, assert.AnError
	}

	result := rec.Reconcile(context.Background(), IndexRows([]syncdomain.VendorRecord{
		vendorRecord("V-1", "Acme"),
	}))
	assert.Equal(t, 0, result.Skipped)
	require.Len(t, result.Errors, 1)
	assert.Equal(t, syncdomain.ClassConnectivity, result.Errors[0].Class)
}

// fakePORepo is a map-backed PurchaseOrderRepository.
type fakePORepo struct {
	mu     sync.Mutex
	orders map[string]*trade.PurchaseOrder
}

func newFakePORepo() *fakePORepo {
	return &fakePORepo{orders: make(map[string]*trade.PurchaseOrder)}
}

func (r *fakePORepo) FindByOrderNumber(_ context.Context, orderNumber string) (*trade.PurchaseOrder, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if o, ok := r.orders[orderNumber]; ok {
		clone := *o
		return &clone, nil
	}
	return nil, shared.ErrNotFound
}

func (r *fakePORepo) FindAll(context.Context) ([]trade.PurchaseOrder, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]trade.PurchaseOrder, 0, len(r.orders))
	for _, o := range r.orders {
		out = append(out, *o)
	}
	return out, nil
}

func (r *fakePORepo) Save(_ context.Context, order *trade.PurchaseOrder) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	clone := *order
	r.orders[order.OrderNumber] = &clone
	return nil
}

func TestPurchaseOrderReconcilerNormalizesStatus(t *testing.T) {
	repo := newFakePORepo()
	rec := NewPurchaseOrderReconciler(repo)

	result := rec.Reconcile(context.Background(), IndexRows([]syncdomain.PurchaseOrderRecord{
		{
			OrderNumber: "po-1",
			VendorCode:  "v-1",
			Status:      "SHIPPED???",
			OrderDate:   dateOf(t, "2026-08-01"),
			TotalAmount: decimal.RequireFromString("10.00"),
		},
	}))
	require.Equal(t, 1, result.Created)

	order, err := repo.FindByOrderNumber(context.Background(), "PO-1")
	require.NoError(t, err)
	assert.Equal(t, trade.OrderStatusOpen, order.Status)
	assert.Equal(t, "V-1", order.VendorCode)
}
