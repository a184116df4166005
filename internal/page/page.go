// Package page normalizes caller-supplied pagination and wraps list results.
// Every list-returning read in the service goes through the same clamp rules
// so pagination behaves identically across endpoints.
package page

const (
	DefaultLimit = 20
	MaxLimit     = 100
)

// Filter is the raw page/limit pair as supplied by the caller.
type Filter struct {
	Page  int
	Limit int
}

// Normalize clamps the filter into page >= 1 and 1 <= limit <= MaxLimit
// (zero or negative limit falls back to DefaultLimit) and returns the
// resulting page, limit and row offset.
func (f Filter) Normalize() (page, limit, offset int) {
	page = f.Page
	if page < 1 {
		page = 1
	}
	limit = f.Limit
	if limit < 1 {
		limit = DefaultLimit
	}
	if limit > MaxLimit {
		limit = MaxLimit
	}
	return page, limit, (page - 1) * limit
}

// Result is one page of rows plus totals.
type Result[T any] struct {
	Data       []T   `json:"data"`
	Total      int64 `json:"total"`
	Page       int   `json:"page"`
	Limit      int   `json:"limit"`
	TotalPages int   `json:"total_pages"`
}

// NewResult computes TotalPages = ceil(total/limit).
func NewResult[T any](data []T, total int64, pg, limit int) Result[T] {
	if data == nil {
		data = []T{}
	}
	totalPages := int((total + int64(limit) - 1) / int64(limit))
	return Result[T]{Data: data, Total: total, Page: pg, Limit: limit, TotalPages: totalPages}
}
