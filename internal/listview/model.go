package listview

import (
	"context"
	"html/template"
	"io"
	"time"
)

// LowStockThreshold is the quantity under which a record is tagged low stock.
const LowStockThreshold = 10

// Record is one stock row as returned by the remote collection.
type Record struct {
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

// Statistics are collection-wide aggregates computed by the remote side.
type Statistics struct {
	TotalItems      int     `json:"totalItems"`
	TotalValue      float64 `json:"totalValue"`
	LowStockItems   int     `json:"lowStockItems"`
	OutOfStockItems int     `json:"outOfStockItems"`
}

// Page is the result of one list query.
type Page struct {
	Items      []Record   `json:"stocks"`
	Total      int        `json:"total"`
	Page       int        `json:"page"`
	TotalPages int        `json:"totalPages"`
	Statistics Statistics `json:"statistics"`
}

// Payload is the create/update body.
type Payload struct {
	ProductCode string  `json:"product_code" validate:"required,max=64"`
	ProductName string  `json:"product_name" validate:"required,max=255"`
	Category    string  `json:"category" validate:"required,max=100"`
	Quantity    int     `json:"quantity" validate:"gte=0"`
	Unit        string  `json:"unit" validate:"required,max=32"`
	Price       float64 `json:"price" validate:"gte=0"`
	Location    string  `json:"location" validate:"max=255"`
	Description string  `json:"description" validate:"max=2000"`
}

// PayloadFromRecord copies the editable fields of r.
func PayloadFromRecord(r Record) Payload {
	return Payload{
		ProductCode: r.ProductCode,
		ProductName: r.ProductName,
		Category:    r.Category,
		Quantity:    r.Quantity,
		Unit:        r.Unit,
		Price:       r.Price,
		Location:    r.Location,
		Description: r.Description,
	}
}

// ImportResult reports the outcome of an Excel upload.
type ImportResult struct {
	Success       bool   `json:"success"`
	ImportedCount int    `json:"imported_count"`
	Error         string `json:"error,omitempty"`
}

// Collection is the remote paginated collection the controller synchronises with.
type Collection interface {
	List(ctx context.Context, q QueryState) (Page, error)
	Get(ctx context.Context, id int64) (Record, error)
	Create(ctx context.Context, p Payload) (Record, error)
	Update(ctx context.Context, id int64, p Payload) (Record, error)
	Delete(ctx context.Context, id int64) error
	Export(ctx context.Context, w io.Writer) error
	Import(ctx context.Context, filename string, r io.Reader) (ImportResult, error)
}

// Confirmer asks the user to approve a destructive action.
type Confirmer interface {
	Confirm(ctx context.Context, prompt string) (bool, error)
}

// NotificationKind distinguishes success from error notifications.
type NotificationKind string

const (
	NotifySuccess NotificationKind = "success"
	NotifyError   NotificationKind = "error"
)

// Notification is a transient message shown to the user.
type Notification struct {
	ID        string
	Kind      NotificationKind
	Message   string
	ExpiresAt time.Time
}

// Editor describes the create/edit surface.
type Editor struct {
	Title  string
	ID     *int64
	Values Payload
}

// Frame is one atomic replacement of the rendered list.
type Frame struct {
	Table      template.HTML `json:"table"`
	Pagination template.HTML `json:"pagination"`
	Statistics template.HTML `json:"statistics"`
}

// View receives everything the controller wants displayed.
type View interface {
	SetLoading(loading bool)
	Render(f Frame)
	Notify(n Notification)
	Dismiss(id string)
	OpenEditor(e Editor)
	CloseEditor()
}

// Renderer turns a page of records into markup.
type Renderer interface {
	Render(p Page, q QueryState) (Frame, error)
}
