// Package pagination reads limit/offset query parameters and wraps list
// responses.
package pagination

import (
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"
)

const (
	DefaultLimit = 20
	MaxLimit     = 100
)

type Params struct {
	Limit  int
	Offset int
}

// FromContext reads ?limit= and ?offset=. Missing values take the defaults;
// a limit above MaxLimit is clamped. Non-numeric or negative values are
// rejected with 400 so a client typo does not silently return page one.
func FromContext(c echo.Context) (Params, error) {
	p := Params{Limit: DefaultLimit}
	if v := c.QueryParam("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			return Params{}, echo.NewHTTPError(http.StatusBadRequest, "limit must be a positive integer")
		}
		p.Limit = min(n, MaxLimit)
	}
	if v := c.QueryParam("offset"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			return Params{}, echo.NewHTTPError(http.StatusBadRequest, "offset must be a non-negative integer")
		}
		p.Offset = n
	}
	return p, nil
}

// Response is one page of a list endpoint.
type Response[T any] struct {
	Data       []T  `json:"data"`
	Total      int  `json:"total"`
	Limit      int  `json:"limit"`
	Offset     int  `json:"offset"`
	HasMore    bool `json:"has_more"`
	NextOffset *int `json:"next_offset,omitempty"`
}

// NewResponse wraps items, never encoding a nil slice as null.
func NewResponse[T any](items []T, total int, p Params) *Response[T] {
	if items == nil {
		items = []T{}
	}
	r := &Response[T]{Data: items, Total: total, Limit: p.Limit, Offset: p.Offset}
	if next := p.Offset + p.Limit; next < total {
		r.HasMore = true
		r.NextOffset = &next
	}
	return r
}
