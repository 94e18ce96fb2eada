package orchestrator

import (
	"context"
	"fmt"

	"github.com/invsync/backend/internal/application/importer"
	"github.com/invsync/backend/internal/domain/inventory"
	"github.com/invsync/backend/internal/domain/partner"
	syncdomain "github.com/invsync/backend/internal/domain/sync"
	"github.com/invsync/backend/internal/domain/trade"
	"github.com/invsync/backend/internal/infrastructure/importcsv"
	"github.com/invsync/backend/internal/infrastructure/storage"
)

// PhaseRunner executes one source's sync: fetch raw records over the
// configured ingestion path, then reconcile them into local storage.
type PhaseRunner interface {
	Source() syncdomain.Source
	Run(ctx context.Context, path syncdomain.IngestionPath) (importer.Result, error)
}

// phase is the generic PhaseRunner: per-source behavior is the fetch
// function, the CSV decoder and the reconciler; the path dispatch and
// staging-buffer lifecycle are identical everywhere.
type phase[R any] struct {
	source     syncdomain.Source
	fetch      func(ctx context.Context) ([]R, error)
	decode     func(p *importcsv.Parser) ([]importer.Row[R], []importer.Issue, error)
	reconcile  func(ctx context.Context, rows []importer.Row[R]) importer.Result
	staging    storage.StagingStore
	columnMode importcsv.ColumnCountMode
}

func (p *phase[R]) Source() syncdomain.Source {
	return p.source
}

func (p *phase[R]) Run(ctx context.Context, path syncdomain.IngestionPath) (importer.Result, error) {
	switch path {
	case syncdomain.IngestAPI:
		return p.runAPI(ctx)
	case syncdomain.IngestCSV:
		return p.runCSV(ctx)
	default:
		return importer.Result{}, syncdomain.NewConfigurationError(
			fmt.Sprintf("unknown ingestion path %q for source %s", path, p.source))
	}
}

func (p *phase[R]) runAPI(ctx context.Context) (importer.Result, error) {
	records, err := p.fetch(ctx)
	if err != nil {
		return importer.Result{}, err
	}
	return p.reconcile(ctx, importer.IndexRows(records)), nil
}

// runCSV reads the staged buffer, reconciles it, and deletes the
// buffer once consumed so a later run cannot silently re-apply stale
// data.
func (p *phase[R]) runCSV(ctx context.Context) (importer.Result, error) {
	data, _, err := p.staging.Get(ctx, p.source.String())
	if err != nil {
		return importer.Result{}, syncdomain.NewConfigurationError(err.Error())
	}

	parser, err := importcsv.ParseBytes(data, importcsv.WithColumnCountMode(p.columnMode))
	if err != nil {
		return importer.Result{}, syncdomain.NewValidationError(err.Error())
	}
	if err := parser.ParseHeader(); err != nil {
		return importer.Result{}, syncdomain.NewValidationError(err.Error())
	}

	rows, issues, err := p.decode(parser)
	if err != nil {
		return importer.Result{}, err
	}

	result := p.reconcile(ctx, rows)
	result.Errors = append(issues, result.Errors...)

	if err := p.staging.Delete(ctx, p.source.String()); err != nil {
		result.Errors = append(result.Errors, importer.Issue{
			Class:   syncdomain.ClassConnectivity,
			Message: fmt.Sprintf("staged file not removed: %v", err),
		})
	}
	return result, nil
}

// Repositories bundles the local stores the phases reconcile into.
type Repositories struct {
	Vendors        partner.VendorRepository
	Items          inventory.ItemRepository
	BOMs           inventory.BOMRepository
	PurchaseOrders trade.PurchaseOrderRepository
}

// NewPhases builds the four phase runners sharing one connector and
// one staging store.
func NewPhases(
	repos Repositories,
	connector syncdomain.Connector,
	staging storage.StagingStore,
	columnMode importcsv.ColumnCountMode,
) map[syncdomain.Source]PhaseRunner {
	vendors := importer.NewVendorReconciler(repos.Vendors)
	items := importer.NewItemReconciler(repos.Items)
	boms := importer.NewBOMReconciler(repos.BOMs)
	orders := importer.NewPurchaseOrderReconciler(repos.PurchaseOrders)

	return map[syncdomain.Source]PhaseRunner{
		syncdomain.SourceVendors: &phase[syncdomain.VendorRecord]{
			source:     syncdomain.SourceVendors,
			fetch:      connector.FetchVendors,
			decode:     importer.DecodeVendorRows,
			reconcile:  vendors.Reconcile,
			staging:    staging,
			columnMode: columnMode,
		},
		syncdomain.SourceInventory: &phase[syncdomain.ItemRecord]{
			source:     syncdomain.SourceInventory,
			fetch:      connector.FetchInventory,
			decode:     importer.DecodeItemRows,
			reconcile:  items.Reconcile,
			staging:    staging,
			columnMode: columnMode,
		},
		syncdomain.SourceBOMs: &phase[syncdomain.BOMRecord]{
			source:     syncdomain.SourceBOMs,
			fetch:      connector.FetchBOMs,
			decode:     importer.DecodeBOMRows,
			reconcile:  boms.Reconcile,
			staging:    staging,
			columnMode: columnMode,
		},
		syncdomain.SourcePurchaseOrders: &phase[syncdomain.PurchaseOrderRecord]{
			source:     syncdomain.SourcePurchaseOrders,
			fetch:      connector.FetchPurchaseOrders,
			decode:     importer.DecodePurchaseOrderRows,
			reconcile:  orders.Reconcile,
			staging:    staging,
			columnMode: columnMode,
		},
	}
}
