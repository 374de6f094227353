package stockclient

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/stockroom/internal/listview"
)

func newServer(t *testing.T, h http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return NewClient(srv.URL+"/api/v2/", time.Second)
}

func TestListSendsFullQuery(t *testing.T) {
	var got *http.Request
	client := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		got = r
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"stocks":[{"id":4,"product_code":"P-4","product_name":"Nut","quantity":3,"price":12.5}],"total":41,"page":2,"totalPages":3,"statistics":{"totalItems":41,"totalValue":1000,"lowStockItems":2,"outOfStockItems":1}}`)
	})

	q := listview.NewQueryState(20)
	q.Page = 2
	q.Search = "nut"
	page, err := client.List(context.Background(), q)
	require.NoError(t, err)

	require.Equal(t, "/api/v2/stocks", got.URL.Path)
	values := got.URL.Query()
	require.Equal(t, "2", values.Get("page"))
	require.Equal(t, "20", values.Get("limit"))
	require.Equal(t, "nut", values.Get("search"))
	require.True(t, values.Has("category"))
	require.Equal(t, "updated_at", values.Get("sortBy"))
	require.Equal(t, "desc", values.Get("sortOrder"))

	require.Len(t, page.Items, 1)
	require.Equal(t, "Nut", page.Items[0].ProductName)
	require.Equal(t, 3, page.TotalPages)
	require.Equal(t, 2, page.Statistics.LowStockItems)
}

func TestRejectionCarriesProblemDetail(t *testing.T) {
	client := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusConflict)
		_, _ = io.WriteString(w, `{"title":"Duplicate","status":409,"detail":"product code P-1 already exists"}`)
	})

	_, err := client.Create(context.Background(), listview.Payload{ProductCode: "P-1"})
	require.ErrorIs(t, err, listview.ErrRejected)
	var rejection *listview.RejectionError
	require.ErrorAs(t, err, &rejection)
	require.Equal(t, http.StatusConflict, rejection.Status)
	require.Equal(t, "product code P-1 already exists", rejection.Detail)
}

func TestMalformedBody(t *testing.T) {
	client := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `<html>gateway</html>`)
	})

	_, err := client.List(context.Background(), listview.NewQueryState(20))
	require.ErrorIs(t, err, listview.ErrMalformed)
}

func TestNetworkFailure(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	srv.Close()
	client := NewClient(srv.URL, time.Second)

	_, err := client.List(context.Background(), listview.NewQueryState(20))
	require.ErrorIs(t, err, listview.ErrNetwork)
}

func TestTimeoutIsNetworkFailure(t *testing.T) {
	block := make(chan struct{})
	client := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-block:
		case <-r.Context().Done():
		}
	})
	defer close(block)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := client.Get(ctx, 1)
	require.ErrorIs(t, err, listview.ErrNetwork)
	require.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestCreateAndUpdateSendJSON(t *testing.T) {
	var methods, paths []string
	var bodies []listview.Payload
	client := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		methods = append(methods, r.Method)
		paths = append(paths, r.URL.Path)
		var p listview.Payload
		require.NoError(t, json.NewDecoder(r.Body).Decode(&p))
		bodies = append(bodies, p)
		w.WriteHeader(http.StatusCreated)
		_, _ = io.WriteString(w, `{"id":9,"product_code":"`+p.ProductCode+`"}`)
	})
	p := listview.Payload{ProductCode: "P-9", ProductName: "Gear", Category: "Parts", Unit: "pcs", Quantity: 4}

	rec, err := client.Create(context.Background(), p)
	require.NoError(t, err)
	require.EqualValues(t, 9, rec.ID)

	_, err = client.Update(context.Background(), 9, p)
	require.NoError(t, err)

	require.Equal(t, []string{http.MethodPost, http.MethodPut}, methods)
	require.Equal(t, []string{"/api/v2/stocks", "/api/v2/stocks/9"}, paths)
	require.Equal(t, p, bodies[1])
}

func TestDeleteNotFound(t *testing.T) {
	client := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodDelete, r.Method)
		http.Error(w, "stock not found", http.StatusNotFound)
	})

	err := client.Delete(context.Background(), 77)
	var rejection *listview.RejectionError
	require.ErrorAs(t, err, &rejection)
	require.Equal(t, http.StatusNotFound, rejection.Status)
	require.Equal(t, "stock not found", rejection.Detail)
}

func TestExportStreamsBody(t *testing.T) {
	client := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/v2/excel/export", r.URL.Path)
		w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
		_, _ = io.WriteString(w, "PK\x03\x04workbook")
	})

	var buf bytes.Buffer
	require.NoError(t, client.Export(context.Background(), &buf))
	require.Equal(t, "PK\x03\x04workbook", buf.String())
}

func TestImportUploadsMultipart(t *testing.T) {
	client := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		file, header, err := r.FormFile("file")
		require.NoError(t, err)
		defer file.Close()
		data, _ := io.ReadAll(file)
		require.Equal(t, "stock.xlsx", header.Filename)
		require.Equal(t, "rows", string(data))
		_, _ = io.WriteString(w, `{"success":true,"imported_count":12}`)
	})

	res, err := client.Import(context.Background(), "stock.xlsx", strings.NewReader("rows"))
	require.NoError(t, err)
	require.True(t, res.Success)
	require.Equal(t, 12, res.ImportedCount)
}

func TestImportFailureCarriesServerError(t *testing.T) {
	client := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = io.WriteString(w, `{"success":false,"error":"row 3: quantity must be 0 or greater"}`)
	})

	res, err := client.Import(context.Background(), "stock.xlsx", strings.NewReader("rows"))
	require.ErrorIs(t, err, listview.ErrRejected)
	require.False(t, res.Success)
	require.Contains(t, err.Error(), "row 3")
}

func TestCategories(t *testing.T) {
	client := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/v2/stocks/categories", r.URL.Path)
		_, _ = io.WriteString(w, `["Hardware","Tools"]`)
	})

	categories, err := client.Categories(context.Background())
	require.NoError(t, err)
	require.Equal(t, []string{"Hardware", "Tools"}, categories)
}
