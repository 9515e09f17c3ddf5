package customer

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/noah-isme/kasir-api/internal/common"
)

var errorMappings = []common.ErrorMapping{
	{Err: ErrInvalidPhone, Code: common.CodeValidation, Status: http.StatusBadRequest},
}

// Handler serves the customer directory.
type Handler struct {
	Svc *Service
}

// Routes mounts the customer endpoints on r.
func (h *Handler) Routes(r chi.Router) {
	r.Get("/", h.Search)
	r.Get("/search", h.Search)
	r.Post("/", h.Create)
	r.Get("/{customerId}", h.Get)
}

// Search lists customers matching ?q=.
func (h *Handler) Search(w http.ResponseWriter, r *http.Request) {
	if h.Svc == nil {
		common.JSONError(w, http.StatusInternalServerError, common.CodeInternal, "customer service not configured", nil)
		return
	}
	pg := common.ParsePage(r)
	customers, total, err := h.Svc.Search(r.Context(), r.URL.Query().Get("q"), pg.Limit, pg.Offset)
	if err != nil {
		common.WriteError(w, err, errorMappings...)
		return
	}
	common.Page(w, customers, pg.Of(total))
}

// Get returns one customer.
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	if h.Svc == nil {
		common.JSONError(w, http.StatusInternalServerError, common.CodeInternal, "customer service not configured", nil)
		return
	}
	c, err := h.Svc.Get(r.Context(), chi.URLParam(r, "customerId"))
	if err != nil {
		common.WriteError(w, err, errorMappings...)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": c})
}

// Create adds a customer.
func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	if h.Svc == nil {
		common.JSONError(w, http.StatusInternalServerError, common.CodeInternal, "customer service not configured", nil)
		return
	}
	var req CreateRequest
	if err := common.DecodeJSON(r, &req); err != nil {
		common.WriteError(w, err, errorMappings...)
		return
	}
	c, err := h.Svc.Create(r.Context(), req)
	if err != nil {
		common.WriteError(w, err, errorMappings...)
		return
	}
	common.JSON(w, http.StatusCreated, map[string]any{"data": c})
}
