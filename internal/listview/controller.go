// Package listview keeps a rendered stock list in step with the remote
// collection: it owns paging, search, filter and sort state, reloads on every
// change, and pushes whole frames to a View.
package listview

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Config tunes controller timing.
type Config struct {
	PageSize        int
	DebounceDelay   time.Duration
	RefreshInterval time.Duration
	RequestTimeout  time.Duration
	NotificationTTL time.Duration
	Now             func() time.Time
}

func (c Config) withDefaults() Config {
	if c.PageSize <= 0 {
		c.PageSize = DefaultPageSize
	}
	if c.DebounceDelay <= 0 {
		c.DebounceDelay = 300 * time.Millisecond
	}
	if c.RefreshInterval <= 0 {
		c.RefreshInterval = 30 * time.Second
	}
	if c.RequestTimeout <= 0 {
		c.RequestTimeout = 15 * time.Second
	}
	if c.NotificationTTL <= 0 {
		c.NotificationTTL = 5 * time.Second
	}
	if c.Now == nil {
		c.Now = time.Now
	}
	return c
}

// Dependencies are the collaborators of a Controller.
type Dependencies struct {
	Collection Collection
	View       View
	Confirmer  Confirmer
	Renderer   Renderer
	Logger     *slog.Logger
	Metrics    *Metrics
}

// Controller is the list view controller for one view instance. View methods
// are invoked while the controller lock is held and must not call back into
// the controller.
type Controller struct {
	cfg        Config
	collection Collection
	view       View
	confirm    Confirmer
	renderer   Renderer
	logger     *slog.Logger
	metrics    *Metrics

	ctx    context.Context
	cancel context.CancelFunc

	debouncer *Debouncer
	ticker    *Ticker

	mu         sync.Mutex
	state      QueryState
	dispatched uint64
	inflight   int
	totalPages int
	frame      Frame
	hasFrame   bool
	dismissals map[string]*time.Timer
	closed     bool
}

// New builds a Controller in its initial query state. Nothing is fetched
// until Start or Reload.
func New(cfg Config, deps Dependencies) *Controller {
	cfg = cfg.withDefaults()
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	ctx, cancel := context.WithCancel(context.Background())
	c := &Controller{
		cfg:        cfg,
		collection: deps.Collection,
		view:       deps.View,
		confirm:    deps.Confirmer,
		renderer:   deps.Renderer,
		logger:     logger.With(slog.String("component", "listview")),
		metrics:    deps.Metrics,
		ctx:        ctx,
		cancel:     cancel,
		state:      NewQueryState(cfg.PageSize),
		dismissals: make(map[string]*time.Timer),
	}
	c.debouncer = NewDebouncer(cfg.DebounceDelay, func() {
		_ = c.Reload(c.ctx)
	})
	c.ticker = NewTicker(cfg.RefreshInterval, func(ctx context.Context) {
		_ = c.Reload(ctx)
	})
	return c
}

// Start loads the first page and schedules the auto refresh. The controller
// is closed when ctx ends.
func (c *Controller) Start(ctx context.Context) error {
	context.AfterFunc(ctx, c.Close)
	err := c.Reload(ctx)
	c.ScheduleAutoRefresh()
	return err
}

// ScheduleAutoRefresh reloads every RefreshInterval until Close.
func (c *Controller) ScheduleAutoRefresh() {
	c.ticker.Start(c.ctx)
}

// Close stops timers and the auto refresh. It is safe to call more than once.
func (c *Controller) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	for id, t := range c.dismissals {
		t.Stop()
		delete(c.dismissals, id)
	}
	c.mu.Unlock()

	c.cancel()
	c.debouncer.Stop()
	c.ticker.Stop()
}

// Done is closed once the controller has been closed.
func (c *Controller) Done() <-chan struct{} {
	return c.ctx.Done()
}

// State returns a copy of the current query state.
func (c *Controller) State() QueryState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// LastFrame returns the most recent successfully rendered frame.
func (c *Controller) LastFrame() (Frame, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.frame, c.hasFrame
}

// SetSearchTerm updates the search and reloads after the debounce delay.
func (c *Controller) SetSearchTerm(term string) {
	c.mu.Lock()
	c.state.Search = term
	c.state.Page = 1
	c.mu.Unlock()
	c.debouncer.Trigger()
}

// SetCategoryFilter updates the category filter and reloads immediately.
func (c *Controller) SetCategoryFilter(ctx context.Context, category string) error {
	c.mu.Lock()
	c.state.Category = category
	c.state.Page = 1
	c.mu.Unlock()
	return c.Reload(ctx)
}

// SetSort applies the sort toggle for field and reloads.
func (c *Controller) SetSort(ctx context.Context, field string) error {
	if !IsSortable(field) {
		err := &ValidationError{Fields: map[string]string{"sortBy": "unknown sort field " + field}}
		c.fail("Cannot sort by that column.", err)
		return err
	}
	c.mu.Lock()
	c.state = c.state.WithSort(field)
	c.mu.Unlock()
	return c.Reload(ctx)
}

// GoToPage moves to page n, clamped to the known page range, and reloads.
func (c *Controller) GoToPage(ctx context.Context, n int) error {
	c.mu.Lock()
	if c.hasFrame {
		c.state.Page = clampPage(n, c.totalPages)
	} else if n >= 1 {
		c.state.Page = n
	} else {
		c.state.Page = 1
	}
	c.mu.Unlock()
	return c.Reload(ctx)
}

// Reload queries the collection with the current state and replaces the
// rendered frame. A failed reload keeps the previous frame.
func (c *Controller) Reload(ctx context.Context) error {
	return c.reload(ctx, true)
}

func (c *Controller) reload(ctx context.Context, mayAdjust bool) error {
	c.mu.Lock()
	c.dispatched++
	seq := c.dispatched
	q := c.state
	c.inflight++
	if c.inflight == 1 && c.view != nil {
		c.view.SetLoading(true)
	}
	c.mu.Unlock()
	defer c.endLoading()

	started := time.Now()
	reqCtx, cancel := context.WithTimeout(ctx, c.cfg.RequestTimeout)
	page, err := c.collection.List(reqCtx, q)
	cancel()

	if c.isStale(seq) {
		c.metrics.observe(outcomeStale, started)
		c.logger.Debug("discard stale list response", slog.Uint64("seq", seq))
		return nil
	}
	if err != nil {
		c.metrics.observe(outcomeFailure, started)
		c.fail("Failed to load stock data.", err)
		return err
	}

	if mayAdjust && len(page.Items) == 0 && page.TotalPages >= 1 && q.Page > page.TotalPages {
		c.metrics.observe(outcomeAdjusted, started)
		c.mu.Lock()
		if seq == c.dispatched {
			c.state.Page = page.TotalPages
		}
		c.mu.Unlock()
		return c.reload(ctx, false)
	}

	frame, err := c.renderer.Render(page, q)
	if err != nil {
		c.metrics.observe(outcomeFailure, started)
		c.fail("Failed to display stock data.", err)
		return err
	}

	c.mu.Lock()
	if seq != c.dispatched {
		c.mu.Unlock()
		c.metrics.observe(outcomeStale, started)
		return nil
	}
	c.frame = frame
	c.hasFrame = true
	c.totalPages = page.TotalPages
	if c.view != nil {
		c.view.Render(frame)
	}
	c.mu.Unlock()
	c.metrics.observe(outcomeSuccess, started)
	return nil
}

func (c *Controller) isStale(seq uint64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return seq != c.dispatched
}

func (c *Controller) endLoading() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.inflight--
	if c.inflight == 0 && c.view != nil {
		c.view.SetLoading(false)
	}
}

// ShowAddModal opens an empty editor.
func (c *Controller) ShowAddModal() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.view != nil {
		c.view.OpenEditor(Editor{Title: "New stock"})
	}
}

// EditStock loads record id into the editor.
func (c *Controller) EditStock(ctx context.Context, id int64) error {
	reqCtx, cancel := context.WithTimeout(ctx, c.cfg.RequestTimeout)
	defer cancel()
	rec, err := c.collection.Get(reqCtx, id)
	if err != nil {
		c.fail("Failed to load the stock item.", err)
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.view != nil {
		c.view.OpenEditor(Editor{Title: "Edit stock", ID: &id, Values: PayloadFromRecord(rec)})
	}
	return nil
}

// CreateOrUpdate creates a record when existingID is nil, otherwise updates
// it. The editor stays open when saving fails.
func (c *Controller) CreateOrUpdate(ctx context.Context, p Payload, existingID *int64) error {
	if err := ValidatePayload(p); err != nil {
		c.fail("Please check the form.", err)
		return err
	}
	reqCtx, cancel := context.WithTimeout(ctx, c.cfg.RequestTimeout)
	var err error
	if existingID == nil {
		_, err = c.collection.Create(reqCtx, p)
	} else {
		_, err = c.collection.Update(reqCtx, *existingID, p)
	}
	cancel()
	if err != nil {
		c.fail("Failed to save.", err)
		return err
	}

	if existingID == nil {
		c.notify(NotifySuccess, "Stock registered.")
	} else {
		c.notify(NotifySuccess, "Stock updated.")
	}
	c.mu.Lock()
	if c.view != nil {
		c.view.CloseEditor()
	}
	c.mu.Unlock()
	_ = c.Reload(ctx)
	return nil
}

// RejectInput reports input that could not even be decoded into a Payload.
func (c *Controller) RejectInput(fields map[string]string) error {
	err := &ValidationError{Fields: fields}
	c.fail("Please check the form.", err)
	return err
}

// DeleteStock asks for confirmation and then deletes record id.
func (c *Controller) DeleteStock(ctx context.Context, id int64) error {
	if c.confirm == nil {
		return ErrCancelled
	}
	ok, err := c.confirm.Confirm(ctx, "Delete this stock item?")
	if err != nil {
		c.logger.Info("delete confirmation abandoned", slog.Int64("id", id), slog.Any("error", err))
		return fmt.Errorf("%w: %v", ErrCancelled, err)
	}
	if !ok {
		return ErrCancelled
	}

	reqCtx, cancel := context.WithTimeout(ctx, c.cfg.RequestTimeout)
	err = c.collection.Delete(reqCtx, id)
	cancel()
	if err != nil {
		c.fail("Failed to delete.", err)
		return err
	}
	c.notify(NotifySuccess, "Stock deleted.")
	_ = c.Reload(ctx)
	return nil
}

// ExportFilename is the download name for an export made at t.
func ExportFilename(t time.Time) string {
	return "inventory_" + t.Format("2006-01-02") + ".xlsx"
}

// ExportExcel streams the workbook into w and returns its download name.
func (c *Controller) ExportExcel(ctx context.Context, w io.Writer) (string, error) {
	filename := ExportFilename(c.cfg.Now())
	reqCtx, cancel := context.WithTimeout(ctx, c.cfg.RequestTimeout)
	defer cancel()
	if err := c.collection.Export(reqCtx, w); err != nil {
		c.fail("Export failed.", err)
		return "", err
	}
	c.notify(NotifySuccess, "Excel file downloaded.")
	return filename, nil
}

// ImportExcel uploads an .xlsx workbook and reloads on success.
func (c *Controller) ImportExcel(ctx context.Context, filename string, r io.Reader) (int, error) {
	if !strings.HasSuffix(strings.ToLower(filename), ".xlsx") {
		err := &ValidationError{Fields: map[string]string{"file": "select an Excel file (.xlsx)"}}
		c.fail("Import failed.", err)
		return 0, err
	}
	reqCtx, cancel := context.WithTimeout(ctx, c.cfg.RequestTimeout)
	res, err := c.collection.Import(reqCtx, filename, r)
	cancel()
	if err == nil && !res.Success {
		err = &RejectionError{Detail: res.Error}
	}
	if err != nil {
		c.fail("Import failed.", err)
		return 0, err
	}
	c.notify(NotifySuccess, fmt.Sprintf("%d items imported.", res.ImportedCount))
	_ = c.Reload(ctx)
	return res.ImportedCount, nil
}

func (c *Controller) fail(message string, err error) {
	level := slog.LevelWarn
	if errors.Is(err, ErrValidation) {
		level = slog.LevelInfo
	}
	c.logger.Log(context.Background(), level, message, slog.Any("error", err))
	c.notify(NotifyError, userMessage(message, err))
}

func (c *Controller) notify(kind NotificationKind, message string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.view == nil || c.closed {
		return
	}
	n := Notification{
		ID:        uuid.NewString(),
		Kind:      kind,
		Message:   message,
		ExpiresAt: c.cfg.Now().Add(c.cfg.NotificationTTL),
	}
	c.view.Notify(n)
	c.dismissals[n.ID] = time.AfterFunc(c.cfg.NotificationTTL, func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		if _, ok := c.dismissals[n.ID]; !ok {
			return
		}
		delete(c.dismissals, n.ID)
		c.view.Dismiss(n.ID)
	})
}
