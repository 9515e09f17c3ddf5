package obs

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// Route returns the chi pattern that matched r, e.g. "/api/v1/sales/{saleId}/refunds/".
// Called after the handler ran, it sees the full pattern even from outer
// middleware. Unmatched requests report "unmatched" so that probes for random
// paths cannot blow up metric cardinality.
func Route(r *http.Request) string {
	if rc := chi.RouteContext(r.Context()); rc != nil {
		if pattern := rc.RoutePattern(); pattern != "" {
			return pattern
		}
	}
	return "unmatched"
}
