package order

import (
	"errors"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/noah-isme/kasir-api/internal/common"
	"github.com/noah-isme/kasir-api/internal/domain"
	"github.com/noah-isme/kasir-api/internal/sale"
)

var errorMappings = []common.ErrorMapping{
	{Err: sale.ErrInvalidPaymentMethod, Code: common.CodeBadRequest, Status: http.StatusBadRequest},
}

// Handler serves the order endpoints.
type Handler struct {
	Svc *Service
}

// Routes mounts the order endpoints on r.
func (h *Handler) Routes(r chi.Router) {
	r.Get("/", h.List)
	r.Post("/", h.Create)
	r.Get("/{orderId}", h.Get)
	r.Patch("/{orderId}", h.Update)
	r.Post("/{orderId}/complete", h.Complete)
	r.Post("/{orderId}/cancel", h.Cancel)
}

func (h *Handler) unavailable(w http.ResponseWriter) bool {
	if h.Svc == nil {
		common.JSONError(w, http.StatusInternalServerError, common.CodeInternal, "order service not configured", nil)
		return true
	}
	return false
}

// List returns orders, optionally filtered by ?status=.
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	if h.unavailable(w) {
		return
	}
	st := domain.OrderStatus(r.URL.Query().Get("status"))
	switch st {
	case "", domain.OrderPending, domain.OrderCompleted, domain.OrderCancelled:
	default:
		common.JSONError(w, http.StatusBadRequest, common.CodeBadRequest, "unsupported status filter", nil)
		return
	}
	pg := common.ParsePage(r)
	orders, total, err := h.Svc.List(r.Context(), st, pg.Limit, pg.Offset)
	if err != nil {
		common.WriteError(w, err, errorMappings...)
		return
	}
	common.Page(w, orders, pg.Of(total))
}

// Get returns one order.
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	if h.unavailable(w) {
		return
	}
	o, err := h.Svc.Get(r.Context(), chi.URLParam(r, "orderId"))
	if err != nil {
		common.WriteError(w, err, errorMappings...)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": o})
}

// Create stores a pending order.
func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	if h.unavailable(w) {
		return
	}
	var req domain.OrderCreate
	if err := common.DecodeJSON(r, &req); err != nil {
		common.WriteError(w, err, errorMappings...)
		return
	}
	o, err := h.Svc.Create(r.Context(), req)
	if err != nil {
		common.WriteError(w, err, errorMappings...)
		return
	}
	common.JSON(w, http.StatusCreated, map[string]any{"data": o})
}

// Update edits a pending order.
func (h *Handler) Update(w http.ResponseWriter, r *http.Request) {
	if h.unavailable(w) {
		return
	}
	var req domain.OrderUpdate
	if err := common.DecodeJSON(r, &req); err != nil {
		common.WriteError(w, err, errorMappings...)
		return
	}
	o, err := h.Svc.Update(r.Context(), chi.URLParam(r, "orderId"), req)
	if err != nil {
		common.WriteError(w, err, errorMappings...)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": o})
}

// Complete converts the order into a sale. The body is optional.
func (h *Handler) Complete(w http.ResponseWriter, r *http.Request) {
	if h.unavailable(w) {
		return
	}
	var req domain.OrderComplete
	if err := common.DecodeJSON(r, &req); err != nil && !errors.Is(err, io.EOF) {
		common.WriteError(w, err, errorMappings...)
		return
	}
	res, err := h.Svc.Complete(r.Context(), chi.URLParam(r, "orderId"), req)
	if err != nil {
		common.WriteError(w, err, errorMappings...)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": res})
}

// Cancel cancels a pending order.
func (h *Handler) Cancel(w http.ResponseWriter, r *http.Request) {
	if h.unavailable(w) {
		return
	}
	o, err := h.Svc.Cancel(r.Context(), chi.URLParam(r, "orderId"))
	if err != nil {
		common.WriteError(w, err, errorMappings...)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": o})
}
