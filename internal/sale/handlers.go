package sale

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/noah-isme/kasir-api/internal/common"
	"github.com/noah-isme/kasir-api/internal/domain"
	"github.com/noah-isme/kasir-api/internal/store"
)

var errorMappings = []common.ErrorMapping{
	{Err: ErrInvalidPaymentMethod, Code: common.CodeBadRequest, Status: http.StatusBadRequest},
}

// Handler serves checkout and sale reads.
type Handler struct {
	Svc *Service
}

// Routes mounts the sale endpoints on r.
func (h *Handler) Routes(r chi.Router) {
	r.Get("/", h.List)
	r.Post("/", h.Create)
	r.Get("/{saleId}", h.Get)
}

// Create runs checkout.
func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	if h.Svc == nil {
		common.JSONError(w, http.StatusInternalServerError, common.CodeInternal, "sale service not configured", nil)
		return
	}
	var req domain.SaleCreate
	if err := common.DecodeJSON(r, &req); err != nil {
		common.WriteError(w, err, errorMappings...)
		return
	}
	receipt, err := h.Svc.Create(r.Context(), req)
	if err != nil {
		common.WriteError(w, err, errorMappings...)
		return
	}
	common.JSON(w, http.StatusCreated, map[string]any{"data": receipt})
}

// Get returns a single sale.
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	if h.Svc == nil {
		common.JSONError(w, http.StatusInternalServerError, common.CodeInternal, "sale service not configured", nil)
		return
	}
	sale, err := h.Svc.Get(r.Context(), chi.URLParam(r, "saleId"))
	if err != nil {
		common.WriteError(w, err, errorMappings...)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": sale})
}

// List returns sales, newest first. Supports status, customer_id, from and to
// (RFC3339) filters plus page/limit.
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	if h.Svc == nil {
		common.JSONError(w, http.StatusInternalServerError, common.CodeInternal, "sale service not configured", nil)
		return
	}
	q := r.URL.Query()
	filter := store.SaleFilter{
		Status:     domain.SaleStatus(q.Get("status")),
		CustomerID: q.Get("customer_id"),
	}
	for name, dst := range map[string]**time.Time{"from": &filter.From, "to": &filter.To} {
		raw := q.Get(name)
		if raw == "" {
			continue
		}
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			common.JSONError(w, http.StatusBadRequest, common.CodeBadRequest, name+" must be an RFC3339 timestamp", nil)
			return
		}
		*dst = &t
	}
	pg := common.ParsePage(r)
	sales, total, err := h.Svc.List(r.Context(), filter, pg.Limit, pg.Offset)
	if err != nil {
		common.WriteError(w, err, errorMappings...)
		return
	}
	common.Page(w, sales, pg.Of(total))
}
