// Package stockclient talks to the stock collection API over HTTP.
package stockclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/odyssey-erp/stockroom/internal/listview"
)

// maxErrorBody bounds how much of a failed response is read for its detail.
const maxErrorBody = 4 << 10

// Client implements listview.Collection against /api/v2.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

var _ listview.Collection = (*Client)(nil)

// NewClient constructs a client for the API rooted at baseURL, for example
// http://127.0.0.1:8080/api/v2.
func NewClient(baseURL string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// List fetches one page of stock records.
func (c *Client) List(ctx context.Context, q listview.QueryState) (listview.Page, error) {
	var page listview.Page
	err := c.getJSON(ctx, "/stocks?"+q.Values().Encode(), &page)
	return page, err
}

// Categories lists the distinct categories in the collection.
func (c *Client) Categories(ctx context.Context) ([]string, error) {
	var categories []string
	err := c.getJSON(ctx, "/stocks/categories", &categories)
	return categories, err
}

// Get fetches a single record.
func (c *Client) Get(ctx context.Context, id int64) (listview.Record, error) {
	var rec listview.Record
	err := c.getJSON(ctx, "/stocks/"+strconv.FormatInt(id, 10), &rec)
	return rec, err
}

// Create adds a record.
func (c *Client) Create(ctx context.Context, p listview.Payload) (listview.Record, error) {
	var rec listview.Record
	err := c.sendJSON(ctx, http.MethodPost, "/stocks", p, &rec)
	return rec, err
}

// Update replaces the editable fields of record id.
func (c *Client) Update(ctx context.Context, id int64, p listview.Payload) (listview.Record, error) {
	var rec listview.Record
	err := c.sendJSON(ctx, http.MethodPut, "/stocks/"+strconv.FormatInt(id, 10), p, &rec)
	return rec, err
}

// Delete removes record id.
func (c *Client) Delete(ctx context.Context, id int64) error {
	req, err := c.newRequest(ctx, http.MethodDelete, "/stocks/"+strconv.FormatInt(id, 10), nil)
	if err != nil {
		return err
	}
	resp, err := c.do(req)
	if err != nil {
		return err
	}
	drain(resp)
	return nil
}

// Export streams the Excel workbook of the whole collection into w.
func (c *Client) Export(ctx context.Context, w io.Writer) error {
	req, err := c.newRequest(ctx, http.MethodGet, "/excel/export", nil)
	if err != nil {
		return err
	}
	resp, err := c.do(req)
	if err != nil {
		return err
	}
	defer drain(resp)
	if _, err := io.Copy(w, resp.Body); err != nil {
		return fmt.Errorf("%w: %w", listview.ErrNetwork, err)
	}
	return nil
}

// Import uploads an Excel workbook as multipart field "file".
func (c *Client) Import(ctx context.Context, filename string, r io.Reader) (listview.ImportResult, error) {
	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	part, err := writer.CreateFormFile("file", filename)
	if err != nil {
		return listview.ImportResult{}, err
	}
	if _, err := io.Copy(part, r); err != nil {
		return listview.ImportResult{}, err
	}
	if err := writer.Close(); err != nil {
		return listview.ImportResult{}, err
	}

	req, err := c.newRequest(ctx, http.MethodPost, "/excel/import", body)
	if err != nil {
		return listview.ImportResult{}, err
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return listview.ImportResult{}, fmt.Errorf("%w: %w", listview.ErrNetwork, err)
	}
	defer drain(resp)

	// Import failures come back as {success:false,error} rather than a problem document.
	var result listview.ImportResult
	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	if err != nil {
		return listview.ImportResult{}, fmt.Errorf("%w: %w", listview.ErrNetwork, err)
	}
	decodeErr := json.Unmarshal(raw, &result)
	if resp.StatusCode >= 400 {
		if decodeErr == nil && result.Error != "" {
			return result, &listview.RejectionError{Status: resp.StatusCode, Detail: result.Error}
		}
		return listview.ImportResult{}, rejection(resp.StatusCode, raw)
	}
	if decodeErr != nil {
		return listview.ImportResult{}, fmt.Errorf("%w: %w", listview.ErrMalformed, decodeErr)
	}
	return result, nil
}

func (c *Client) getJSON(ctx context.Context, path string, target any) error {
	req, err := c.newRequest(ctx, http.MethodGet, path, nil)
	if err != nil {
		return err
	}
	return c.doJSON(req, target)
}

func (c *Client) sendJSON(ctx context.Context, method, path string, payload, target any) error {
	buf, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	req, err := c.newRequest(ctx, method, path, bytes.NewReader(buf))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	return c.doJSON(req, target)
}

func (c *Client) newRequest(ctx context.Context, method, path string, body io.Reader) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	return req, nil
}

func (c *Client) doJSON(req *http.Request, target any) error {
	resp, err := c.do(req)
	if err != nil {
		return err
	}
	defer drain(resp)
	if err := json.NewDecoder(resp.Body).Decode(target); err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
			return fmt.Errorf("%w: %w", listview.ErrNetwork, err)
		}
		return fmt.Errorf("%w: %w", listview.ErrMalformed, err)
	}
	return nil
}

// do sends req and maps transport failures and error statuses onto the
// listview error taxonomy. The caller owns the body of a successful response.
func (c *Client) do(req *http.Request) (*http.Response, error) {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", listview.ErrNetwork, err)
	}
	if resp.StatusCode >= 400 {
		defer drain(resp)
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return nil, rejection(resp.StatusCode, raw)
	}
	return resp, nil
}

type problem struct {
	Title  string `json:"title"`
	Detail string `json:"detail"`
}

func rejection(status int, raw []byte) error {
	var p problem
	detail := ""
	if err := json.Unmarshal(raw, &p); err == nil {
		detail = p.Detail
		if detail == "" {
			detail = p.Title
		}
	} else {
		detail = strings.TrimSpace(string(raw))
	}
	return &listview.RejectionError{Status: status, Detail: detail}
}

func drain(resp *http.Response) {
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxErrorBody))
	_ = resp.Body.Close()
}
