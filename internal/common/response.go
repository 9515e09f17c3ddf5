package common

import (
	"encoding/json"
	"net/http"
	"strconv"
)

// TotalCountHeader mirrors pagination.total_items for clients that only read headers.
const TotalCountHeader = "X-Total-Count"

// ErrorBody is the payload under "error" in every failed response.
type ErrorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
}

type errorEnvelope struct {
	Error ErrorBody `json:"error"`
}

type pageEnvelope[T any] struct {
	Data       []T        `json:"data"`
	Pagination Pagination `json:"pagination"`
}

// JSON writes v with the given status.
func JSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// JSONError writes {"error": {...}}.
func JSONError(w http.ResponseWriter, status int, code, message string, details any) {
	JSON(w, status, errorEnvelope{Error: ErrorBody{Code: code, Message: message, Details: details}})
}

// Page writes one page of a list. A nil slice is rendered as [].
func Page[T any](w http.ResponseWriter, items []T, p Pagination) {
	if items == nil {
		items = []T{}
	}
	w.Header().Set(TotalCountHeader, strconv.Itoa(p.TotalItems))
	JSON(w, http.StatusOK, pageEnvelope[T]{Data: items, Pagination: p})
}
