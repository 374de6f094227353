// Package stock serves the stock collection API: records, statistics and
// Excel import/export.
package stock

import (
	"sort"
	"strings"
	"time"

	"github.com/odyssey-erp/stockroom/internal/platform/httpx"
)

// LowStockThreshold is the quantity under which stock counts as low.
const LowStockThreshold = 10

// Limits applied to list queries.
const (
	DefaultLimit = 20
	MaxLimit     = 100
)

// Stock is one inventory record.
type Stock struct {
	ID          int64     `json:"id"`
	ProductCode string    `json:"product_code"`
	ProductName string    `json:"product_name"`
	Category    string    `json:"category"`
	Quantity    int       `json:"quantity"`
	Unit        string    `json:"unit"`
	Price       float64   `json:"price"`
	Location    string    `json:"location"`
	Description string    `json:"description"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Input carries the editable fields of a record.
type Input struct {
	ProductCode string  `json:"product_code" validate:"required,max=64"`
	ProductName string  `json:"product_name" validate:"required,max=255"`
	Category    string  `json:"category" validate:"required,max=100"`
	Quantity    int     `json:"quantity" validate:"gte=0"`
	Unit        string  `json:"unit" validate:"required,max=32"`
	Price       float64 `json:"price" validate:"gte=0"`
	Location    string  `json:"location" validate:"max=255"`
	Description string  `json:"description" validate:"max=2000"`
}

func (in Input) normalize() Input {
	in.ProductCode = strings.TrimSpace(in.ProductCode)
	in.ProductName = strings.TrimSpace(in.ProductName)
	in.Category = strings.TrimSpace(in.Category)
	in.Unit = strings.TrimSpace(in.Unit)
	in.Location = strings.TrimSpace(in.Location)
	return in
}

// ListFilters narrows and orders a list query.
type ListFilters struct {
	Page      int
	Limit     int
	Search    string
	Category  string
	SortBy    string
	SortOrder string
}

// Statistics aggregates the whole collection.
type Statistics struct {
	TotalItems      int     `json:"totalItems"`
	TotalValue      float64 `json:"totalValue"`
	LowStockItems   int     `json:"lowStockItems"`
	OutOfStockItems int     `json:"outOfStockItems"`
}

// ListResult is the body of GET /stocks.
type ListResult struct {
	Stocks     []Stock    `json:"stocks"`
	Total      int        `json:"total"`
	Page       int        `json:"page"`
	TotalPages int        `json:"totalPages"`
	Statistics Statistics `json:"statistics"`
}

// ImportResult is the body of POST /excel/import.
type ImportResult struct {
	Success       bool   `json:"success"`
	ImportedCount int    `json:"imported_count"`
	Error         string `json:"error,omitempty"`
}

// ValidationError reports field problems in an Input.
type ValidationError struct {
	Fields map[string]string
}

func (e *ValidationError) Error() string {
	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+" "+e.Fields[k])
	}
	return strings.Join(parts, "; ")
}

// FieldErrors exposes the per-field messages to problem responses.
func (e *ValidationError) FieldErrors() map[string]string {
	return e.Fields
}

// Is makes ValidationError match httpx.ErrValidation.
func (e *ValidationError) Is(target error) bool {
	return target == httpx.ErrValidation
}
