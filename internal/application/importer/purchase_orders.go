package importer

import (
	"context"

	"go.uber.org/zap"

	syncdomain "github.com/invsync/backend/internal/domain/sync"
	"github.com/invsync/backend/internal/domain/trade"
	"github.com/invsync/backend/internal/infrastructure/importcsv"
)

// PurchaseOrderImportService imports purchase orders outside of a sync
// run: either an uploaded CSV file or a one-off API pull. It shares the
// purchase order reconciler with the sync phase, so both paths create,
// update and skip identically.
type PurchaseOrderImportService struct {
	reconciler *Reconciler[syncdomain.PurchaseOrderRecord, *trade.PurchaseOrder]
	connector  syncdomain.Connector
	columnMode importcsv.ColumnCountMode
	logger     *zap.Logger
}

// NewPurchaseOrderImportService creates the standalone importer.
func NewPurchaseOrderImportService(
	repo trade.PurchaseOrderRepository,
	connector syncdomain.Connector,
	columnMode importcsv.ColumnCountMode,
	logger *zap.Logger,
) *PurchaseOrderImportService {
	return &PurchaseOrderImportService{
		reconciler: NewPurchaseOrderReconciler(repo),
		connector:  connector,
		columnMode: columnMode,
		logger:     logger,
	}
}

// ImportCSV reconciles an uploaded purchase order CSV. File-level
// problems (encoding, missing header) fail the import; row-level
// problems are reported in the result and never abort the batch.
func (s *PurchaseOrderImportService) ImportCSV(ctx context.Context, data []byte) (Result, error) {
	parser, err := importcsv.ParseBytes(data, importcsv.WithColumnCountMode(s.columnMode))
	if err != nil {
		return Result{}, syncdomain.NewValidationError(err.Error())
	}
	if err := parser.ParseHeader(); err != nil {
		return Result{}, syncdomain.NewValidationError(err.Error())
	}

	rows, issues, err := DecodePurchaseOrderRows(parser)
	if err != nil {
		return Result{}, err
	}

	result := s.reconciler.Reconcile(ctx, rows)
	result.Errors = append(issues, result.Errors...)

	s.logger.Info("purchase order csv import finished",
		zap.Int("created", result.Created),
		zap.Int("updated", result.Updated),
		zap.Int("skipped", result.Skipped),
		zap.Int("errors", len(result.Errors)),
	)
	return result, nil
}

// ImportFromAPI pulls purchase orders from the external system once and
// reconciles them.
func (s *PurchaseOrderImportService) ImportFromAPI(ctx context.Context) (Result, error) {
	records, err := s.connector.FetchPurchaseOrders(ctx)
	if err != nil {
		return Result{}, err
	}

	result := s.reconciler.Reconcile(ctx, IndexRows(records))
	s.logger.Info("purchase order api import finished",
		zap.Int("fetched", len(records)),
		zap.Int("created", result.Created),
		zap.Int("updated", result.Updated),
		zap.Int("skipped", result.Skipped),
		zap.Int("errors", len(result.Errors)),
	)
	return result, nil
}
