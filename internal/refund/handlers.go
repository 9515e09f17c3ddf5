package refund

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/noah-isme/kasir-api/internal/common"
	"github.com/noah-isme/kasir-api/internal/domain"
	"github.com/noah-isme/kasir-api/internal/lock"
)

var errorMappings = []common.ErrorMapping{
	{Err: ErrEmptyRefund, Code: common.CodeEmptyRefund, Status: http.StatusUnprocessableEntity},
	{Err: ErrUnknownProduct, Code: common.CodeUnknownProduct, Status: http.StatusUnprocessableEntity},
	{Err: ErrExceedsAvailable, Code: common.CodeExceedsAvailable, Status: http.StatusUnprocessableEntity},
	{Err: ErrInvalidQuantity, Code: common.CodeBadRequest, Status: http.StatusBadRequest},
	{Err: lock.ErrBusy, Code: common.CodeBusy, Status: http.StatusConflict},
}

// Handler serves the refund endpoints nested under a sale.
type Handler struct {
	Svc *Service
}

// Routes mounts the handlers on r; saleId must be a parent URL parameter.
func (h *Handler) Routes(r chi.Router) {
	r.Get("/", h.List)
	r.Get("/availability", h.Availability)
	r.Post("/", h.Create)
}

// List returns the prior refunds for a sale, newest first.
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	if h.Svc == nil {
		common.JSONError(w, http.StatusInternalServerError, common.CodeInternal, "refund service not configured", nil)
		return
	}
	_, refunds, err := h.Svc.History(r.Context(), chi.URLParam(r, "saleId"))
	if err != nil {
		writeError(w, err)
		return
	}
	if refunds == nil {
		refunds = []domain.Refund{}
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": refunds})
}

// Availability returns sold, refunded and available quantities per line.
func (h *Handler) Availability(w http.ResponseWriter, r *http.Request) {
	if h.Svc == nil {
		common.JSONError(w, http.StatusInternalServerError, common.CodeInternal, "refund service not configured", nil)
		return
	}
	lines, err := h.Svc.Availability(r.Context(), chi.URLParam(r, "saleId"))
	if err != nil {
		writeError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": lines})
}

// Create issues a refund.
func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	if h.Svc == nil {
		common.JSONError(w, http.StatusInternalServerError, common.CodeInternal, "refund service not configured", nil)
		return
	}
	var req domain.RefundCreate
	if err := common.DecodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}
	operator, _ := common.OperatorID(r.Context())
	res, err := h.Svc.Issue(r.Context(), chi.URLParam(r, "saleId"), req, operator)
	if err != nil {
		writeError(w, err)
		return
	}
	common.JSON(w, http.StatusCreated, map[string]any{"data": res})
}

func writeError(w http.ResponseWriter, err error) {
	var lineErr *LineError
	if errors.As(err, &lineErr) {
		if m, ok := common.Lookup(err, errorMappings...); ok {
			common.JSONError(w, m.Status, m.Code, lineErr.Err.Error(), lineErr)
			return
		}
	}
	common.WriteError(w, err, errorMappings...)
}
