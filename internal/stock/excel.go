package stock

import (
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"

	"github.com/xuri/excelize/v2"
)

const sheetName = "Inventory"

var sheetHeaders = []string{
	"Product code", "Product name", "Category", "Quantity", "Unit", "Price", "Location", "Description", "Updated at",
}

// WriteWorkbook writes stocks as a single-sheet workbook.
func WriteWorkbook(w io.Writer, stocks []Stock) error {
	f := excelize.NewFile()
	defer func() { _ = f.Close() }()

	if err := f.SetSheetName(f.GetSheetName(0), sheetName); err != nil {
		return fmt.Errorf("stock: excel sheet: %w", err)
	}
	if err := f.SetSheetRow(sheetName, "A1", &sheetHeaders); err != nil {
		return fmt.Errorf("stock: excel header: %w", err)
	}
	style, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err == nil {
		_ = f.SetRowStyle(sheetName, 1, 1, style)
	}

	for i, s := range stocks {
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}
		row := []any{
			s.ProductCode, s.ProductName, s.Category, s.Quantity, s.Unit, s.Price,
			s.Location, s.Description, s.UpdatedAt.Format("2006-01-02 15:04:05"),
		}
		if err := f.SetSheetRow(sheetName, cell, &row); err != nil {
			return fmt.Errorf("stock: excel row %d: %w", i+2, err)
		}
	}
	_ = f.SetColWidth(sheetName, "A", "B", 20)
	_ = f.SetColWidth(sheetName, "H", "H", 40)

	if _, err := f.WriteTo(w); err != nil {
		return fmt.Errorf("stock: write workbook: %w", err)
	}
	return nil
}

// SheetRow is one parsed data row and its 1-based row number on the sheet.
type SheetRow struct {
	Row   int
	Input Input
}

// ReadWorkbook parses the first sheet of an uploaded workbook. The header row
// is skipped, as are blank rows. Row numbers are 1-based sheet rows.
func ReadWorkbook(r io.Reader) ([]SheetRow, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, &ValidationError{Fields: map[string]string{"file": "is not a readable .xlsx workbook"}}
	}
	defer func() { _ = f.Close() }()

	rows, err := f.GetRows(f.GetSheetName(0))
	if err != nil {
		return nil, fmt.Errorf("stock: read rows: %w", err)
	}
	var parsed []SheetRow
	for i, row := range rows {
		if i == 0 || blank(row) {
			continue
		}
		in, err := parseRow(row)
		if err != nil {
			return nil, fmt.Errorf("row %d: %w", i+1, err)
		}
		parsed = append(parsed, SheetRow{Row: i + 1, Input: in})
	}
	return parsed, nil
}

func parseRow(row []string) (Input, error) {
	col := func(i int) string {
		if i < len(row) {
			return strings.TrimSpace(row[i])
		}
		return ""
	}
	in := Input{
		ProductCode: col(0),
		ProductName: col(1),
		Category:    col(2),
		Unit:        col(4),
		Location:    col(6),
		Description: col(7),
	}
	if v := col(3); v != "" {
		q, err := strconv.Atoi(v)
		if err != nil {
			return Input{}, &ValidationError{Fields: map[string]string{"quantity": "must be a whole number"}}
		}
		in.Quantity = q
	}
	if v := col(5); v != "" {
		p, err := strconv.ParseFloat(strings.ReplaceAll(v, ",", ""), 64)
		if err != nil || math.IsInf(p, 0) || math.IsNaN(p) {
			return Input{}, &ValidationError{Fields: map[string]string{"price": "must be a number"}}
		}
		in.Price = p
	}
	return in, nil
}

func blank(row []string) bool {
	for _, c := range row {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}
