package main

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/odyssey-erp/stockroom/internal/listview"
)

func newListCmd(opts *rootOptions) *cobra.Command {
	q := listview.NewQueryState(listview.DefaultPageSize)
	var (
		sort   string
		asJSON bool
	)

	cmd := &cobra.Command{
		Use:   "list",
		Short: "Print one page of stock records",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			field, dir, err := parseSort(sort)
			if err != nil {
				return err
			}
			q.SortField, q.SortDirection = field, dir

			page, err := opts.client().List(cmd.Context(), q)
			if err != nil {
				return err
			}
			if asJSON {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(page)
			}
			return printPage(cmd, page)
		},
	}

	flags := cmd.Flags()
	flags.IntVar(&q.Page, "page", 1, "page number")
	flags.IntVar(&q.PageSize, "limit", listview.DefaultPageSize, "rows per page")
	flags.StringVar(&q.Search, "search", "", "search text")
	flags.StringVar(&q.Category, "category", "", "category filter")
	flags.StringVar(&sort, "sort", listview.DefaultSortField+":desc", "sort as field[:asc|desc]")
	flags.BoolVar(&asJSON, "json", false, "print the raw page as JSON")
	return cmd
}

// parseSort reads field[:asc|desc]; a bare field sorts ascending.
func parseSort(v string) (string, listview.SortDirection, error) {
	field, dir, found := strings.Cut(v, ":")
	if !listview.IsSortable(field) {
		return "", "", fmt.Errorf("list: cannot sort by %q", field)
	}
	if !found {
		return field, listview.SortAsc, nil
	}
	switch d := listview.SortDirection(strings.ToLower(dir)); d {
	case listview.SortAsc, listview.SortDesc:
		return field, d, nil
	default:
		return "", "", fmt.Errorf("list: sort direction must be asc or desc, got %q", dir)
	}
}

func printPage(cmd *cobra.Command, page listview.Page) error {
	tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tCODE\tNAME\tCATEGORY\tQTY\tUNIT\tPRICE\tLOCATION\tSTATUS")
	for _, r := range page.Items {
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%d\t%s\t%.0f\t%s\t%s\n",
			r.ID, r.ProductCode, r.ProductName, r.Category, r.Quantity, r.Unit, r.Price, r.Location,
			listview.StatusFor(r.Quantity).Label())
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	s := page.Statistics
	fmt.Fprintf(cmd.OutOrStdout(), "page %d/%d, %d records, %d low, %d out of stock\n",
		page.Page, page.TotalPages, page.Total, s.LowStockItems, s.OutOfStockItems)
	return nil
}

func newExportCmd(opts *rootOptions) *cobra.Command {
	var path string
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Download the collection as an Excel workbook",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if path == "" {
				path = "inventory_" + time.Now().Format("2006-01-02") + ".xlsx"
			}
			f, err := os.Create(path)
			if err != nil {
				return err
			}
			if err := opts.client().Export(cmd.Context(), f); err != nil {
				_ = f.Close()
				_ = os.Remove(path)
				return err
			}
			if err := f.Close(); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "exported to %s\n", path)
			return nil
		},
	}
	cmd.Flags().StringVarP(&path, "output", "o", "", "workbook path (default inventory_YYYY-MM-DD.xlsx)")
	return cmd
}

func newImportCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "import <file>",
		Short: "Upload an Excel workbook of stock records",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := os.Open(args[0])
			if err != nil {
				return err
			}
			defer f.Close()

			result, err := opts.client().Import(cmd.Context(), filepath.Base(args[0]), f)
			if err != nil {
				return err
			}
			if !result.Success {
				return fmt.Errorf("import: %s", result.Error)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "imported %d records\n", result.ImportedCount)
			return nil
		},
	}
}

func newDeleteCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete a stock record",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil || id <= 0 {
				return fmt.Errorf("delete: invalid id %q", args[0])
			}
			if err := opts.client().Delete(cmd.Context(), id); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "deleted %d\n", id)
			return nil
		},
	}
}
