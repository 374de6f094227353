package listview

import (
	"net/url"
	"strconv"
)

// SortDirection is either ascending or descending.
type SortDirection string

const (
	SortAsc  SortDirection = "asc"
	SortDesc SortDirection = "desc"
)

// Flip returns the opposite direction.
func (d SortDirection) Flip() SortDirection {
	if d == SortAsc {
		return SortDesc
	}
	return SortAsc
}

const (
	// DefaultPageSize matches the page size of the stock list.
	DefaultPageSize = 20
	// DefaultSortField orders by most recent change first.
	DefaultSortField = "updated_at"
)

var sortableFields = map[string]struct{}{
	"product_code": {},
	"product_name": {},
	"category":     {},
	"quantity":     {},
	"price":        {},
	"location":     {},
	"updated_at":   {},
}

// IsSortable reports whether field can be used as a sort key.
func IsSortable(field string) bool {
	_, ok := sortableFields[field]
	return ok
}

// QueryState is everything sent with a list query.
type QueryState struct {
	Page          int
	PageSize      int
	Search        string
	Category      string
	SortField     string
	SortDirection SortDirection
}

// NewQueryState returns the initial state for a list of pageSize rows.
func NewQueryState(pageSize int) QueryState {
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}
	return QueryState{
		Page:          1,
		PageSize:      pageSize,
		SortField:     DefaultSortField,
		SortDirection: SortDesc,
	}
}

// WithSort applies the header-click toggle: the same field flips direction,
// a different field starts ascending.
func (q QueryState) WithSort(field string) QueryState {
	if q.SortField == field {
		q.SortDirection = q.SortDirection.Flip()
		return q
	}
	q.SortField = field
	q.SortDirection = SortAsc
	return q
}

// Values serialises the state as list query parameters. Empty values are kept.
func (q QueryState) Values() url.Values {
	v := url.Values{}
	v.Set("page", strconv.Itoa(q.Page))
	v.Set("limit", strconv.Itoa(q.PageSize))
	v.Set("search", q.Search)
	v.Set("category", q.Category)
	v.Set("sortBy", q.SortField)
	v.Set("sortOrder", string(q.SortDirection))
	return v
}

// clampPage bounds n to [1, max(1, totalPages)].
func clampPage(n, totalPages int) int {
	if n < 1 {
		return 1
	}
	if totalPages < 1 {
		totalPages = 1
	}
	if n > totalPages {
		return totalPages
	}
	return n
}
