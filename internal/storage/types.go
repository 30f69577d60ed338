package storage

import "errors"

var (
	// ErrNotFound indicates that the requested resource was not found.
	ErrNotFound = errors.New("resource not found")

	// ErrInvalidInput indicates that the input parameters are invalid.
	ErrInvalidInput = errors.New("invalid input")

	// ErrVectorSearchUnavailable indicates that the backend has no usable
	// vector index and callers should fall back to text search.
	ErrVectorSearchUnavailable = errors.New("vector search unavailable")
)

// PaginatedResult represents a paginated result set.
type PaginatedResult[T any] struct {
	// Items is the slice of results for the current page.
	Items []T

	// Total is the total number of items across all pages.
	Total int

	// Page is the current page number (1-indexed).
	Page int

	// PageSize is the number of items per page.
	PageSize int

	// HasMore indicates whether there are more pages available.
	HasMore bool
}

// ListOptions provides pagination and filtering options for list operations.
type ListOptions struct {
	// Page is the page number to retrieve (1-indexed, default: 1).
	Page int

	// Limit is the number of items per page (default: 20, max: 100).
	Limit int

	// Status filters articles by publication status. Empty means no filter.
	Status string

	// Category filters by category path prefix ("tech" matches "tech/ai").
	// Empty means no filter.
	Category string
}

// Normalize applies defaults and clamps out-of-range values.
func (o *ListOptions) Normalize() {
	if o.Page < 1 {
		o.Page = 1
	}
	if o.Limit <= 0 {
		o.Limit = 20
	}
	if o.Limit > 100 {
		o.Limit = 100
	}
}

// Offset returns the SQL offset for the current page.
func (o ListOptions) Offset() int {
	return (o.Page - 1) * o.Limit
}
