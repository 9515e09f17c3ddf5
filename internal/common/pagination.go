package common

import (
	"net/http"
	"strconv"
)

// Default page sizes for list endpoints.
const (
	DefaultPerPage = 20
	MaxPerPage     = 100
)

// Pagination is the metadata block of a list response.
type Pagination struct {
	Page       int `json:"page"`
	PerPage    int `json:"per_page"`
	TotalItems int `json:"total_items"`
}

// PageRequest is a validated ?page=&limit= pair.
type PageRequest struct {
	Page   int
	Limit  int
	Offset int
}

// ParsePage reads ?page= and ?limit= from r. Missing or malformed values use
// page 1 and DefaultPerPage; limit is capped at MaxPerPage.
func ParsePage(r *http.Request) PageRequest {
	q := r.URL.Query()
	page, _ := strconv.Atoi(q.Get("page"))
	limit, _ := strconv.Atoi(q.Get("limit"))
	if limit < 1 {
		limit = DefaultPerPage
	}
	return NewPageRequest(page, limit, MaxPerPage)
}

// NewPageRequest clamps page to at least 1 and limit to [1, ceiling];
// ceiling <= 0 means uncapped.
func NewPageRequest(page, limit, ceiling int) PageRequest {
	page = max1(page)
	limit = max1(limit)
	if ceiling > 0 && limit > ceiling {
		limit = ceiling
	}
	return PageRequest{Page: page, Limit: limit, Offset: (page - 1) * limit}
}

// Of builds the response metadata for total matching items.
func (p PageRequest) Of(total int) Pagination {
	return Pagination{Page: p.Page, PerPage: p.Limit, TotalItems: total}
}

func max1(n int) int {
	if n < 1 {
		return 1
	}
	return n
}
