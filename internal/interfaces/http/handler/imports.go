package handler

import (
	"io"

	"github.com/gin-gonic/gin"

	"github.com/invsync/backend/internal/application/importer"
)

// ImportsHandler runs the standalone purchase order importer, outside
// the orchestrated sync cycle.
type ImportsHandler struct {
	BaseHandler
	purchaseOrders *importer.PurchaseOrderImportService
}

// NewImportsHandler creates an imports handler.
func NewImportsHandler(purchaseOrders *importer.PurchaseOrderImportService) *ImportsHandler {
	return &ImportsHandler{purchaseOrders: purchaseOrders}
}

// RegisterRoutes registers the import routes.
func (h *ImportsHandler) RegisterRoutes(rg *gin.RouterGroup) {
	imports := rg.Group("/imports")
	{
		imports.POST("/purchase-orders", h.ImportPurchaseOrdersCSV)
		imports.POST("/purchase-orders/pull", h.PullPurchaseOrders)
	}
}

// ImportPurchaseOrdersCSV imports purchase orders from an uploaded CSV
// file. The multipart field is named "file"; a raw CSV body works too.
// POST /api/v1/imports/purchase-orders
func (h *ImportsHandler) ImportPurchaseOrdersCSV(c *gin.Context) {
	data, err := h.readUpload(c)
	if err != nil {
		h.BadRequest(c, err.Error())
		return
	}
	if len(data) == 0 {
		h.BadRequest(c, "empty CSV upload")
		return
	}

	result, err := h.purchaseOrders.ImportCSV(c.Request.Context(), data)
	if err != nil {
		h.DomainError(c, err)
		return
	}
	h.Success(c, result)
}

// PullPurchaseOrders imports purchase orders from the external API.
// POST /api/v1/imports/purchase-orders/pull
func (h *ImportsHandler) PullPurchaseOrders(c *gin.Context) {
	result, err := h.purchaseOrders.ImportFromAPI(c.Request.Context())
	if err != nil {
		h.DomainError(c, err)
		return
	}
	h.Success(c, result)
}

func (h *ImportsHandler) readUpload(c *gin.Context) ([]byte, error) {
	file, err := c.FormFile("file")
	if err == nil {
		f, openErr := file.Open()
		if openErr != nil {
			return nil, openErr
		}
		defer f.Close()
		return io.ReadAll(f)
	}
	// Fall back to the raw body for non-multipart uploads.
	return io.ReadAll(c.Request.Body)
}
