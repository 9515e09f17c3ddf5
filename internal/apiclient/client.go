// Package apiclient is the terminal-side client for the kasir HTTP API.
package apiclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/noah-isme/kasir-api/internal/business"
	"github.com/noah-isme/kasir-api/internal/common"
	"github.com/noah-isme/kasir-api/internal/domain"
	"github.com/noah-isme/kasir-api/internal/lock"
	"github.com/noah-isme/kasir-api/internal/order"
	"github.com/noah-isme/kasir-api/internal/refund"
	"github.com/noah-isme/kasir-api/internal/resilience"
	"github.com/noah-isme/kasir-api/internal/sale"
	"github.com/noah-isme/kasir-api/internal/scan"
)

// ErrRequestFailed matches every transport failure and 5xx response.
var ErrRequestFailed = errors.New("request failed")

// RequestFailedError describes a call that never produced a usable answer.
type RequestFailedError struct {
	Method string
	Path   string
	Status int
	Err    error
}

func (e *RequestFailedError) Error() string {
	if e.Status > 0 {
		return fmt.Sprintf("%s %s: status %d", e.Method, e.Path, e.Status)
	}
	return fmt.Sprintf("%s %s: %v", e.Method, e.Path, e.Err)
}

// Is lets errors.Is(err, ErrRequestFailed) match.
func (e *RequestFailedError) Is(target error) bool { return target == ErrRequestFailed }

func (e *RequestFailedError) Unwrap() error { return e.Err }

// APIError is a 4xx response decoded from the API error envelope.
type APIError struct {
	Status  int
	Code    string
	Message string
	Details json.RawMessage
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the sentinel matching the error code, if any.
func (e *APIError) Unwrap() error { return sentinels[e.Code] }

var sentinels = func() map[string]error {
	m := map[string]error{
		common.CodeEmptyRefund:      refund.ErrEmptyRefund,
		common.CodeExceedsAvailable: refund.ErrExceedsAvailable,
		common.CodeBusy:             lock.ErrBusy,
	}
	for _, mapping := range common.Mappings {
		if _, ok := m[mapping.Code]; !ok {
			m[mapping.Code] = mapping.Err
		}
	}
	return m
}()

// Client calls the API on behalf of one terminal. Every request carries the
// business, terminal and operator headers.
type Client struct {
	BaseURL    string
	BusinessID string
	TerminalID string
	OperatorID string
	HTTP       resilience.HTTPClient
	// NewKey generates Idempotency-Key values for writes.
	NewKey func() string
}

// New builds a client with an instrumented transport and a breaker targeting the API.
func New(baseURL, businessID, terminalID string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Client{
		BaseURL:    strings.TrimRight(baseURL, "/"),
		BusinessID: businessID,
		TerminalID: terminalID,
		HTTP: resilience.HTTPClient{
			Client:      &http.Client{Transport: otelhttp.NewTransport(http.DefaultTransport)},
			Breaker:     resilience.NewBreaker(5, 0.5, 15*time.Second).WithTarget("kasir-api"),
			BaseBackoff: 200 * time.Millisecond,
			MaxAttempts: 3,
			Jitter:      0.2,
			Timeout:     timeout,
		},
	}
}

// LookupByBarcode resolves a barcode; a 404 reports not found without error.
func (c *Client) LookupByBarcode(ctx context.Context, code string) (domain.Product, bool, error) {
	return c.lookup(ctx, "/products/barcode/"+url.PathEscape(code))
}

// LookupByID fetches a product by id; a 404 reports not found without error.
func (c *Client) LookupByID(ctx context.Context, id string) (domain.Product, bool, error) {
	return c.lookup(ctx, "/products/"+url.PathEscape(id))
}

func (c *Client) lookup(ctx context.Context, path string) (domain.Product, bool, error) {
	var p domain.Product
	err := c.do(ctx, http.MethodGet, path, nil, &p)
	if errors.Is(err, domain.ErrNotFound) {
		return domain.Product{}, false, nil
	}
	if err != nil {
		return domain.Product{}, false, err
	}
	return p, true, nil
}

// SearchProducts lists catalog products matching query.
func (c *Client) SearchProducts(ctx context.Context, query string, limit int) ([]domain.Product, error) {
	q := url.Values{}
	q.Set("q", query)
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}
	var out []domain.Product
	if err := c.do(ctx, http.MethodGet, "/products?"+q.Encode(), nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// SearchCustomers lists customers whose name, email or phone contain query.
func (c *Client) SearchCustomers(ctx context.Context, query string, limit int) ([]domain.Customer, error) {
	q := url.Values{}
	q.Set("q", query)
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}
	var out []domain.Customer
	if err := c.do(ctx, http.MethodGet, "/customers/search?"+q.Encode(), nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// CreateSale submits a checkout.
func (c *Client) CreateSale(ctx context.Context, req domain.SaleCreate) (sale.Receipt, error) {
	var out sale.Receipt
	err := c.do(ctx, http.MethodPost, "/sales", req, &out)
	return out, err
}

// Sale fetches a sale by id.
func (c *Client) Sale(ctx context.Context, id string) (domain.Sale, error) {
	var out domain.Sale
	err := c.do(ctx, http.MethodGet, "/sales/"+url.PathEscape(id), nil, &out)
	return out, err
}

// CreateOrder saves the cart as a pending customer order.
func (c *Client) CreateOrder(ctx context.Context, req domain.OrderCreate) (domain.Order, error) {
	var out domain.Order
	err := c.do(ctx, http.MethodPost, "/orders", req, &out)
	return out, err
}

// CompleteOrder turns a pending order into a sale.
func (c *Client) CompleteOrder(ctx context.Context, id string, req domain.OrderComplete) (order.Completion, error) {
	var out order.Completion
	err := c.do(ctx, http.MethodPost, "/orders/"+url.PathEscape(id)+"/complete", req, &out)
	return out, err
}

// Refunds lists the refunds recorded against a sale, newest first.
func (c *Client) Refunds(ctx context.Context, saleID string) ([]domain.Refund, error) {
	var out []domain.Refund
	if err := c.do(ctx, http.MethodGet, "/sales/"+url.PathEscape(saleID)+"/refunds", nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// CreateRefund issues a refund against a sale.
func (c *Client) CreateRefund(ctx context.Context, saleID string, req domain.RefundCreate) (refund.Result, error) {
	var out refund.Result
	err := c.do(ctx, http.MethodPost, "/sales/"+url.PathEscape(saleID)+"/refunds", req, &out)
	return out, err
}

// Scan asks the server to match and debounce a code for this terminal.
func (c *Client) Scan(ctx context.Context, code string) (scan.Result, error) {
	var out scan.Result
	err := c.do(ctx, http.MethodPost, "/scan", map[string]string{"code": code}, &out)
	return out, err
}

func (c *Client) do(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return err
		}
		body = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, body)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set(business.Header, c.BusinessID)
	if c.TerminalID != "" {
		req.Header.Set(scan.TerminalHeader, c.TerminalID)
	}
	if c.OperatorID != "" {
		req.Header.Set(common.OperatorHeader, c.OperatorID)
	}
	if method == http.MethodPost {
		req.Header.Set(common.IdempotencyHeader, c.newKey())
	}

	resp, err := c.HTTP.Do(ctx, req)
	if err != nil {
		return &RequestFailedError{Method: method, Path: path, Err: err}
	}
	defer func() {
		_ = resp.Body.Close()
	}()
	if resp.StatusCode >= http.StatusInternalServerError {
		return &RequestFailedError{Method: method, Path: path, Status: resp.StatusCode}
	}
	if resp.StatusCode >= http.StatusBadRequest {
		return decodeError(resp)
	}
	if out == nil {
		return nil
	}
	var envelope struct {
		Data json.RawMessage `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		return &RequestFailedError{Method: method, Path: path, Status: resp.StatusCode, Err: err}
	}
	if err := json.Unmarshal(envelope.Data, out); err != nil {
		return &RequestFailedError{Method: method, Path: path, Status: resp.StatusCode, Err: err}
	}
	return nil
}

func (c *Client) newKey() string {
	if c.NewKey != nil {
		return c.NewKey()
	}
	return uuid.NewString()
}

func decodeError(resp *http.Response) error {
	var envelope struct {
		Error struct {
			Code    string          `json:"code"`
			Message string          `json:"message"`
			Details json.RawMessage `json:"details"`
		} `json:"error"`
	}
	apiErr := &APIError{Status: resp.StatusCode}
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err == nil {
		apiErr.Code = envelope.Error.Code
		apiErr.Message = envelope.Error.Message
		apiErr.Details = envelope.Error.Details
	}
	if apiErr.Code == "" {
		apiErr.Code = http.StatusText(resp.StatusCode)
	}
	return apiErr
}
