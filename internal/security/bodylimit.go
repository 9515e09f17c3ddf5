// Package security holds HTTP hardening middleware for the register API.
package security

import (
	"net/http"

	"github.com/noah-isme/kasir-api/internal/common"
)

// BodyLimit caps request payloads at Max bytes. A declared Content-Length
// over the cap is refused up front; chunked bodies are cut off while being
// read and common.DecodeJSON turns that into the same 413.
type BodyLimit struct {
	Max int64
}

func (b BodyLimit) Middleware(next http.Handler) http.Handler {
	if b.Max <= 0 {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.ContentLength > b.Max {
			common.JSONError(w, http.StatusRequestEntityTooLarge, common.CodePayloadTooLarge,
				"request body too large", map[string]int64{"max_bytes": b.Max})
			return
		}
		if r.Body != nil && r.Body != http.NoBody {
			r.Body = http.MaxBytesReader(w, r.Body, b.Max)
		}
		next.ServeHTTP(w, r)
	})
}
