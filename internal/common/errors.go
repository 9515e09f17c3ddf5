package common

import (
	"errors"
	"net/http"

	validator "github.com/go-playground/validator/v10"

	"github.com/noah-isme/kasir-api/internal/cart"
	"github.com/noah-isme/kasir-api/internal/domain"
	"github.com/noah-isme/kasir-api/internal/pricing"
	"github.com/noah-isme/kasir-api/internal/status"
)

// Error codes returned in the "code" field of API error bodies.
const (
	CodeBadRequest          = "BAD_REQUEST"
	CodeValidation          = "VALIDATION_FAILED"
	CodeNotFound            = "NOT_FOUND"
	CodeConflict            = "CONFLICT"
	CodeInternal            = "INTERNAL"
	CodeInvalidPercentage   = "INVALID_PERCENTAGE"
	CodeEmptyCart           = "EMPTY_CART"
	CodeEmptyRefund         = "EMPTY_REFUND"
	CodeUnknownProduct      = "UNKNOWN_PRODUCT"
	CodeExceedsAvailable    = "EXCEEDS_AVAILABLE"
	CodeInsufficientPayment = "INSUFFICIENT_PAYMENT"
	CodeNoCustomerSelected  = "NO_CUSTOMER_SELECTED"
	CodeInsufficientStock   = "INSUFFICIENT_STOCK"
	CodeInvalidTransition   = "INVALID_TRANSITION"
	CodeNotEditable         = "NOT_EDITABLE"
	CodeItemsImmutable      = "ITEMS_IMMUTABLE"
	CodeBusinessRequired    = "BUSINESS_REQUIRED"
	CodeIdempotentReplay    = "IDEMPOTENT_REPLAY"
	CodeRateLimited         = "RATE_LIMITED"
	CodeBusy                = "BUSY"
	CodePayloadTooLarge     = "PAYLOAD_TOO_LARGE"
)

// AppError represents an error with an attached code and HTTP status.
type AppError struct {
	Code       string
	Message    string
	HTTPStatus int
	Err        error
	Details    any
}

// Error implements the error interface.
func (e *AppError) Error() string {
	if e == nil {
		return ""
	}
	if e.Err != nil {
		return e.Err.Error()
	}
	return e.Message
}

// Unwrap allows errors.Is/As to inspect the underlying error.
func (e *AppError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// NewAppError constructs an AppError.
func NewAppError(code, message string, status int, err error) *AppError {
	return &AppError{Code: code, Message: message, HTTPStatus: status, Err: err}
}

// WithDetails attaches a details payload and returns the same error.
func (e *AppError) WithDetails(details any) *AppError {
	e.Details = details
	return e
}

// IsAppError checks whether the error is an AppError.
func IsAppError(err error) bool {
	var target *AppError
	return errors.As(err, &target)
}

// ErrorMapping binds a sentinel error to its API code and HTTP status.
type ErrorMapping struct {
	Err    error
	Code   string
	Status int
}

// Mappings lists the sentinels shared by every handler package.
var Mappings = []ErrorMapping{
	{Err: domain.ErrNotFound, Code: CodeNotFound, Status: http.StatusNotFound},
	{Err: domain.ErrConflict, Code: CodeConflict, Status: http.StatusConflict},
	{Err: domain.ErrNoCustomerSelected, Code: CodeNoCustomerSelected, Status: http.StatusUnprocessableEntity},
	{Err: domain.ErrInsufficientStock, Code: CodeInsufficientStock, Status: http.StatusConflict},
	{Err: pricing.ErrInvalidPercentage, Code: CodeInvalidPercentage, Status: http.StatusUnprocessableEntity},
	{Err: pricing.ErrInsufficientPayment, Code: CodeInsufficientPayment, Status: http.StatusUnprocessableEntity},
	{Err: cart.ErrEmptyCart, Code: CodeEmptyCart, Status: http.StatusUnprocessableEntity},
	{Err: cart.ErrUnknownProduct, Code: CodeUnknownProduct, Status: http.StatusUnprocessableEntity},
	{Err: status.ErrInvalidTransition, Code: CodeInvalidTransition, Status: http.StatusConflict},
	{Err: status.ErrNotEditable, Code: CodeNotEditable, Status: http.StatusConflict},
	{Err: status.ErrItemsImmutable, Code: CodeItemsImmutable, Status: http.StatusUnprocessableEntity},
}

// WriteError renders err using AppError data, the extra mappings, then the
// shared mappings. Anything unrecognised becomes a 500.
func WriteError(w http.ResponseWriter, err error, extra ...ErrorMapping) {
	if err == nil {
		JSONError(w, http.StatusInternalServerError, CodeInternal, "unknown error", nil)
		return
	}
	var appErr *AppError
	if errors.As(err, &appErr) {
		status := appErr.HTTPStatus
		if status == 0 {
			status = http.StatusBadRequest
		}
		code := appErr.Code
		if code == "" {
			code = CodeBadRequest
		}
		JSONError(w, status, code, appErr.Message, appErr.Details)
		return
	}
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) {
		JSONError(w, http.StatusBadRequest, CodeValidation, "request validation failed", ValidationDetails(verrs))
		return
	}
	if m, ok := Lookup(err, extra...); ok {
		JSONError(w, m.Status, m.Code, err.Error(), nil)
		return
	}
	JSONError(w, http.StatusInternalServerError, CodeInternal, "internal error", nil)
}

// Lookup finds the mapping matching err, checking extra before the shared table.
func Lookup(err error, extra ...ErrorMapping) (ErrorMapping, bool) {
	for _, m := range extra {
		if errors.Is(err, m.Err) {
			return m, true
		}
	}
	for _, m := range Mappings {
		if errors.Is(err, m.Err) {
			return m, true
		}
	}
	return ErrorMapping{}, false
}

// ValidationDetails flattens validator errors into field/rule pairs.
func ValidationDetails(verrs validator.ValidationErrors) []map[string]string {
	out := make([]map[string]string, 0, len(verrs))
	for _, fe := range verrs {
		out = append(out, map[string]string{
			"field": fe.Namespace(),
			"rule":  fe.Tag(),
			"param": fe.Param(),
		})
	}
	return out
}
