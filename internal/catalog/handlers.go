package catalog

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/noah-isme/kasir-api/internal/common"
)

var errorMappings = []common.ErrorMapping{
	{Err: ErrZeroAdjustment, Code: common.CodeBadRequest, Status: http.StatusBadRequest},
}

// Handler exposes catalog endpoints to the register.
type Handler struct {
	service *Service
}

// HandlerConfig configures the Handler dependencies.
type HandlerConfig struct {
	Service *Service
}

// NewHandler constructs a Handler.
func NewHandler(cfg HandlerConfig) *Handler {
	return &Handler{service: cfg.Service}
}

// Routes mounts the catalog endpoints on r.
func (h *Handler) Routes(r chi.Router) {
	r.Get("/", h.Products)
	r.Get("/barcode/{code}", h.ByBarcode)
	r.Get("/{productId}", h.Product)
	r.Post("/{productId}/stock", h.AdjustStock)
}

// Products handles GET /products with ?q=, page and limit.
func (h *Handler) Products(w http.ResponseWriter, r *http.Request) {
	if h.service == nil {
		common.JSONError(w, http.StatusInternalServerError, common.CodeInternal, "catalog service not configured", nil)
		return
	}
	params, err := h.service.ParseListParams(r.URL.Query())
	if err != nil {
		common.WriteError(w, err, errorMappings...)
		return
	}
	result, err := h.service.List(r.Context(), params)
	if err != nil {
		common.WriteError(w, err, errorMappings...)
		return
	}
	common.Page(w, result.Items, common.Pagination{Page: result.Page, PerPage: result.Limit, TotalItems: result.Total})
}

// Product handles GET /products/{productId}.
func (h *Handler) Product(w http.ResponseWriter, r *http.Request) {
	if h.service == nil {
		common.JSONError(w, http.StatusInternalServerError, common.CodeInternal, "catalog service not configured", nil)
		return
	}
	p, err := h.service.Product(r.Context(), chi.URLParam(r, "productId"))
	if err != nil {
		common.WriteError(w, err, errorMappings...)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": p})
}

// ByBarcode handles GET /products/barcode/{code}.
func (h *Handler) ByBarcode(w http.ResponseWriter, r *http.Request) {
	if h.service == nil {
		common.JSONError(w, http.StatusInternalServerError, common.CodeInternal, "catalog service not configured", nil)
		return
	}
	p, err := h.service.ByBarcode(r.Context(), chi.URLParam(r, "code"))
	if err != nil {
		common.WriteError(w, err, errorMappings...)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": p})
}

// AdjustStock handles POST /products/{productId}/stock.
func (h *Handler) AdjustStock(w http.ResponseWriter, r *http.Request) {
	if h.service == nil {
		common.JSONError(w, http.StatusInternalServerError, common.CodeInternal, "catalog service not configured", nil)
		return
	}
	var adj Adjustment
	if err := common.DecodeJSON(r, &adj); err != nil {
		common.WriteError(w, err, errorMappings...)
		return
	}
	p, err := h.service.Adjust(r.Context(), chi.URLParam(r, "productId"), adj)
	if err != nil {
		common.WriteError(w, err, errorMappings...)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": p})
}
