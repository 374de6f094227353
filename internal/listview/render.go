package listview

import (
	"fmt"
	"html/template"
	"strconv"
	"time"

	"golang.org/x/text/currency"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"golang.org/x/text/number"
)

// FragmentEngine executes a named template into escaped markup.
type FragmentEngine interface {
	Fragment(name string, data any) (template.HTML, error)
}

// Template names used by HTMLRenderer.
const (
	tmplTable        = "listview/table"
	tmplPagination   = "listview/pagination"
	tmplStatistics   = "listview/statistics"
	tmplNotification = "listview/notification"
	tmplEditor       = "listview/editor"
)

const dateTimeLayout = "2006/01/02 15:04"

// StockStatus tags a row by its quantity.
type StockStatus string

const (
	StatusOK         StockStatus = ""
	StatusLowStock   StockStatus = "low"
	StatusOutOfStock StockStatus = "out"
)

// StatusFor classifies quantity.
func StatusFor(quantity int) StockStatus {
	switch {
	case quantity == 0:
		return StatusOutOfStock
	case quantity < LowStockThreshold:
		return StatusLowStock
	default:
		return StatusOK
	}
}

// Label is the badge text shown next to the quantity.
func (s StockStatus) Label() string {
	switch s {
	case StatusOutOfStock:
		return "Out of stock"
	case StatusLowStock:
		return "Low stock"
	default:
		return ""
	}
}

type column struct {
	Field     string
	Label     string
	Sortable  bool
	Active    bool
	Direction SortDirection
}

type rowView struct {
	ID       int64
	Code     string
	Name     string
	Category string
	Quantity string
	Status   StockStatus
	Price    string
	Location string
	Updated  string
}

type tableView struct {
	Columns []column
	Rows    []rowView
	Empty   bool
}

type statisticsView struct {
	TotalItems      string
	TotalValue      string
	LowStockItems   string
	OutOfStockItems string
}

type editorView struct {
	Title  string
	ID     string
	Values Payload
}

// HTMLRenderer renders list fragments through html/template, so every piece
// of record text is entity-escaped.
type HTMLRenderer struct {
	engine  FragmentEngine
	printer *message.Printer
	loc     *time.Location
	scale   int
}

// NewHTMLRenderer builds a renderer displaying times in loc.
func NewHTMLRenderer(engine FragmentEngine, loc *time.Location) *HTMLRenderer {
	if loc == nil {
		loc = time.UTC
	}
	scale, _ := currency.Standard.Rounding(currency.JPY)
	return &HTMLRenderer{
		engine:  engine,
		printer: message.NewPrinter(language.Japanese),
		loc:     loc,
		scale:   scale,
	}
}

// Render produces the table, pager and statistics for one page.
func (r *HTMLRenderer) Render(p Page, q QueryState) (Frame, error) {
	table, err := r.engine.Fragment(tmplTable, r.tableView(p, q))
	if err != nil {
		return Frame{}, fmt.Errorf("render table: %w", err)
	}
	pager, err := r.engine.Fragment(tmplPagination, BuildPagination(q.Page, p.TotalPages))
	if err != nil {
		return Frame{}, fmt.Errorf("render pagination: %w", err)
	}
	stats, err := r.engine.Fragment(tmplStatistics, r.statisticsView(p.Statistics))
	if err != nil {
		return Frame{}, fmt.Errorf("render statistics: %w", err)
	}
	return Frame{Table: table, Pagination: pager, Statistics: stats}, nil
}

// RenderNotification renders a toast.
func (r *HTMLRenderer) RenderNotification(n Notification) (template.HTML, error) {
	return r.engine.Fragment(tmplNotification, n)
}

// RenderEditor renders the create/edit form.
func (r *HTMLRenderer) RenderEditor(e Editor) (template.HTML, error) {
	ev := editorView{Title: e.Title, Values: e.Values}
	if e.ID != nil {
		ev.ID = strconv.FormatInt(*e.ID, 10)
	}
	return r.engine.Fragment(tmplEditor, ev)
}

func (r *HTMLRenderer) tableView(p Page, q QueryState) tableView {
	tv := tableView{
		Columns: []column{
			{Field: "product_code", Label: "Code", Sortable: true},
			{Field: "product_name", Label: "Product", Sortable: true},
			{Field: "category", Label: "Category", Sortable: true},
			{Field: "quantity", Label: "Quantity", Sortable: true},
			{Field: "price", Label: "Price", Sortable: true},
			{Field: "location", Label: "Location", Sortable: true},
			{Field: "updated_at", Label: "Updated", Sortable: true},
			{Label: "Actions"},
		},
		Empty: len(p.Items) == 0,
	}
	for i := range tv.Columns {
		if tv.Columns[i].Field != "" && tv.Columns[i].Field == q.SortField {
			tv.Columns[i].Active = true
			tv.Columns[i].Direction = q.SortDirection
		}
	}
	tv.Rows = make([]rowView, 0, len(p.Items))
	for _, rec := range p.Items {
		location := rec.Location
		if location == "" {
			location = "-"
		}
		tv.Rows = append(tv.Rows, rowView{
			ID:       rec.ID,
			Code:     rec.ProductCode,
			Name:     rec.ProductName,
			Category: rec.Category,
			Quantity: r.formatQuantity(rec.Quantity, rec.Unit),
			Status:   StatusFor(rec.Quantity),
			Price:    r.formatCurrency(rec.Price),
			Location: location,
			Updated:  r.formatDateTime(rec.UpdatedAt),
		})
	}
	return tv
}

func (r *HTMLRenderer) statisticsView(s Statistics) statisticsView {
	return statisticsView{
		TotalItems:      r.printer.Sprintf("%d", s.TotalItems),
		TotalValue:      r.formatCurrency(s.TotalValue),
		LowStockItems:   r.printer.Sprintf("%d", s.LowStockItems),
		OutOfStockItems: r.printer.Sprintf("%d", s.OutOfStockItems),
	}
}

func (r *HTMLRenderer) formatQuantity(q int, unit string) string {
	if unit == "" {
		return r.printer.Sprintf("%d", q)
	}
	return r.printer.Sprintf("%d", q) + " " + unit
}

func (r *HTMLRenderer) formatCurrency(amount float64) string {
	return "¥" + r.printer.Sprint(number.Decimal(amount, number.Scale(r.scale)))
}

func (r *HTMLRenderer) formatDateTime(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.In(r.loc).Format(dateTimeLayout)
}
