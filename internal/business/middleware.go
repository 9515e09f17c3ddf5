package business

import (
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/noah-isme/kasir-api/internal/common"
)

// Header carries the business identifier on every scoped request.
const Header = "X-Business-ID"

// Resolver resolves the business identifier from HTTP requests.
type Resolver struct {
	HeaderName string
	// Default is used when the header is absent, for single-shop deployments.
	Default string
}

// NewResolver returns a resolver reading headerName, falling back to Header.
func NewResolver(headerName, defaultID string) *Resolver {
	if headerName == "" {
		headerName = Header
	}
	return &Resolver{HeaderName: headerName, Default: strings.TrimSpace(defaultID)}
}

// Resolve returns the business identifier for the request.
func (r *Resolver) Resolve(req *http.Request) string {
	if r == nil || req == nil {
		return ""
	}
	if id := strings.TrimSpace(req.Header.Get(r.HeaderName)); id != "" {
		return id
	}
	return r.Default
}

// Middleware injects the business into the context; requests without a valid
// business identifier are rejected.
func (r *Resolver) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		id := r.Resolve(req)
		if id == "" {
			common.JSONError(w, http.StatusBadRequest, common.CodeBusinessRequired, "missing "+r.HeaderName+" header", nil)
			return
		}
		if _, err := uuid.Parse(id); err != nil {
			common.JSONError(w, http.StatusBadRequest, common.CodeBusinessRequired, "business id must be a UUID", nil)
			return
		}
		next.ServeHTTP(w, req.WithContext(With(req.Context(), id)))
	})
}

// Scope returns the business for keying per-request state such as idempotency.
func Scope(req *http.Request) string {
	id, _ := From(req.Context())
	return id
}
