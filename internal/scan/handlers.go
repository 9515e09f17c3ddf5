package scan

import (
	"net/http"

	"github.com/noah-isme/kasir-api/internal/common"
)

// TerminalHeader identifies the register posting a scan.
const TerminalHeader = "X-Terminal-ID"

var errorMappings = []common.ErrorMapping{
	{Err: ErrTerminalRequired, Code: common.CodeBadRequest, Status: http.StatusBadRequest},
}

type scanRequest struct {
	Code string `json:"code" validate:"max=128"`
}

// Handler serves POST /scan.
type Handler struct {
	Svc *Service
}

// Scan resolves a decoded barcode for the terminal.
func (h *Handler) Scan(w http.ResponseWriter, r *http.Request) {
	if h.Svc == nil {
		common.JSONError(w, http.StatusInternalServerError, common.CodeInternal, "scan service not configured", nil)
		return
	}
	var req scanRequest
	if err := common.DecodeJSON(r, &req); err != nil {
		common.WriteError(w, err, errorMappings...)
		return
	}
	res, err := h.Svc.Resolve(r.Context(), r.Header.Get(TerminalHeader), req.Code)
	if err != nil {
		common.WriteError(w, err, errorMappings...)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": res})
}

// TerminalKey keys per-terminal rate limits.
func TerminalKey(r *http.Request) string {
	if id := r.Header.Get(TerminalHeader); id != "" {
		return "terminal:" + id
	}
	return ""
}
