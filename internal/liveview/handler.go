package liveview

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/odyssey-erp/stockroom/internal/listview"
	"github.com/odyssey-erp/stockroom/internal/shared"
	"github.com/odyssey-erp/stockroom/internal/view"
)

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

// CategoryLister supplies the category filter options.
type CategoryLister interface {
	Categories(ctx context.Context) ([]string, error)
}

// Handler serves the stock page, its action endpoints and its event stream.
type Handler struct {
	logger         *slog.Logger
	hub            *Hub
	templates      *view.Engine
	csrf           *shared.CSRFManager
	categories     CategoryLister
	importMaxBytes int64
	heartbeat      time.Duration
}

// NewHandler wires the live UI handler.
func NewHandler(logger *slog.Logger, hub *Hub, templates *view.Engine, csrf *shared.CSRFManager, categories CategoryLister, importMaxBytes int64) *Handler {
	if importMaxBytes <= 0 {
		importMaxBytes = 10 << 20
	}
	return &Handler{
		logger:         logger,
		hub:            hub,
		templates:      templates,
		csrf:           csrf,
		categories:     categories,
		importMaxBytes: importMaxBytes,
		heartbeat:      15 * time.Second,
	}
}

type pageData struct {
	Categories []string
	State      listview.QueryState
	Frame      listview.Frame
}

// MountRoutes registers the page and action endpoints.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/stocks", h.handlePage)
	r.Get("/stocks/export", h.handleExport)
	r.Route("/stocks/actions", func(ar chi.Router) {
		ar.Post("/search", h.handleSearch)
		ar.Post("/category", h.handleCategory)
		ar.Post("/sort", h.handleSort)
		ar.Post("/page", h.handleGoToPage)
		ar.Post("/add", h.handleAdd)
		ar.Post("/edit/{id}", h.handleEdit)
		ar.Post("/save", h.handleSave)
		ar.Post("/delete/{id}", h.handleDelete)
		ar.Post("/confirm/{token}", h.handleConfirm)
		ar.Post("/import", h.handleImport)
	})
}

// MountStream registers the SSE endpoint. It must sit outside request
// timeouts and response compression.
func (h *Handler) MountStream(r chi.Router) {
	r.Get("/stocks/events", h.handleEvents)
}

func (h *Handler) live(w http.ResponseWriter, r *http.Request) (*Session, bool) {
	sess := shared.SessionFromContext(r.Context())
	if sess == nil {
		http.Error(w, http.StatusText(http.StatusForbidden), http.StatusForbidden)
		return nil, false
	}
	live, err := h.hub.Handle(sess.ID)
	if err != nil {
		http.Error(w, http.StatusText(http.StatusServiceUnavailable), http.StatusServiceUnavailable)
		return nil, false
	}
	return live, true
}

// actionContext detaches controller work from the request so a navigation
// away does not abort a reload halfway.
func actionContext(r *http.Request) context.Context {
	return context.WithoutCancel(r.Context())
}

func (h *Handler) handlePage(w http.ResponseWriter, r *http.Request) {
	sess := shared.SessionFromContext(r.Context())
	if sess == nil {
		http.Error(w, http.StatusText(http.StatusForbidden), http.StatusForbidden)
		return
	}
	token, err := h.csrf.EnsureToken(r.Context(), sess)
	if err != nil {
		h.logger.Error("ensure csrf token", slog.Any("error", err))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	if live, ok := h.hub.Lookup(sess.ID); ok {
		// Returning visitors get fresh data in the first paint.
		_ = live.Controller().Reload(r.Context())
	}
	live, ok := h.live(w, r)
	if !ok {
		return
	}

	var categories []string
	if h.categories != nil {
		if categories, err = h.categories.Categories(r.Context()); err != nil {
			h.logger.Warn("load categories", slog.Any("error", err))
		}
	}
	frame, _ := live.Controller().LastFrame()
	if err := h.templates.Render(w, "pages/stocks.html", view.TemplateData{
		Title:       "Stock",
		CSRFToken:   token,
		Flash:       sess.PopFlash(),
		CurrentPath: r.URL.Path,
		Data: pageData{
			Categories: categories,
			State:      live.Controller().State(),
			Frame:      frame,
		},
	}); err != nil {
		h.logger.Error("render stock page", slog.Any("error", err))
	}
}

func (h *Handler) handleEvents(w http.ResponseWriter, r *http.Request) {
	live, ok := h.live(w, r)
	if !ok {
		return
	}
	rc := http.NewResponseController(w)
	// Streams outlive the server write timeout.
	_ = rc.SetWriteDeadline(time.Time{})

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)

	events, unsubscribe := live.Subscribe()
	defer unsubscribe()

	if _, err := io.WriteString(w, ": connected\n\n"); err != nil {
		return
	}
	if err := rc.Flush(); err != nil {
		h.logger.Warn("event stream cannot flush", slog.Any("error", err))
		return
	}

	heartbeat := time.NewTicker(h.heartbeat)
	defer heartbeat.Stop()
	for {
		select {
		case <-r.Context().Done():
			return
		case <-live.Controller().Done():
			return
		case ev := <-events:
			if err := writeEvent(w, ev); err != nil {
				return
			}
		case <-heartbeat.C:
			if _, err := io.WriteString(w, ": ping\n\n"); err != nil {
				return
			}
		}
		if err := rc.Flush(); err != nil {
			return
		}
	}
}

func writeEvent(w io.Writer, ev Event) error {
	var b strings.Builder
	b.WriteString("event: ")
	b.WriteString(ev.Name)
	b.WriteByte('\n')
	data := strings.ReplaceAll(ev.Data, "\r", "")
	for _, line := range strings.Split(data, "\n") {
		b.WriteString("data: ")
		b.WriteString(line)
		b.WriteByte('\n')
	}
	b.WriteByte('\n')
	_, err := io.WriteString(w, b.String())
	return err
}

func (h *Handler) handleSearch(w http.ResponseWriter, r *http.Request) {
	live, ok := h.live(w, r)
	if !ok {
		return
	}
	live.Controller().SetSearchTerm(r.PostFormValue("term"))
	w.WriteHeader(http.StatusAccepted)
}

func (h *Handler) handleCategory(w http.ResponseWriter, r *http.Request) {
	live, ok := h.live(w, r)
	if !ok {
		return
	}
	h.respond(w, live.Controller().SetCategoryFilter(actionContext(r), r.PostFormValue("category")))
}

func (h *Handler) handleSort(w http.ResponseWriter, r *http.Request) {
	live, ok := h.live(w, r)
	if !ok {
		return
	}
	h.respond(w, live.Controller().SetSort(actionContext(r), r.PostFormValue("field")))
}

func (h *Handler) handleGoToPage(w http.ResponseWriter, r *http.Request) {
	live, ok := h.live(w, r)
	if !ok {
		return
	}
	n, err := strconv.Atoi(r.PostFormValue("page"))
	if err != nil {
		http.Error(w, "page must be a number", http.StatusBadRequest)
		return
	}
	h.respond(w, live.Controller().GoToPage(actionContext(r), n))
}

func (h *Handler) handleAdd(w http.ResponseWriter, r *http.Request) {
	live, ok := h.live(w, r)
	if !ok {
		return
	}
	live.Controller().ShowAddModal()
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleEdit(w http.ResponseWriter, r *http.Request) {
	live, ok := h.live(w, r)
	if !ok {
		return
	}
	id, ok := parseID(w, r)
	if !ok {
		return
	}
	h.respond(w, live.Controller().EditStock(actionContext(r), id))
}

func (h *Handler) handleSave(w http.ResponseWriter, r *http.Request) {
	live, ok := h.live(w, r)
	if !ok {
		return
	}
	payload, id, problems := parsePayload(r)
	if len(problems) > 0 {
		h.respond(w, live.Controller().RejectInput(problems))
		return
	}
	h.respond(w, live.Controller().CreateOrUpdate(actionContext(r), payload, id))
}

func (h *Handler) handleDelete(w http.ResponseWriter, r *http.Request) {
	live, ok := h.live(w, r)
	if !ok {
		return
	}
	id, ok := parseID(w, r)
	if !ok {
		return
	}
	// The confirmation round trip arrives on another request, so the delete
	// flow cannot block this one.
	ctx := h.hub.Context()
	go func() {
		if err := live.Controller().DeleteStock(ctx, id); err != nil && !errors.Is(err, listview.ErrCancelled) {
			h.logger.Debug("delete flow ended", slog.Int64("id", id), slog.Any("error", err))
		}
	}()
	w.WriteHeader(http.StatusAccepted)
}

func (h *Handler) handleConfirm(w http.ResponseWriter, r *http.Request) {
	live, ok := h.live(w, r)
	if !ok {
		return
	}
	answer := r.PostFormValue("answer") == "yes"
	if err := live.Answer(chi.URLParam(r, "token"), answer); err != nil {
		http.Error(w, "confirmation expired", http.StatusGone)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleImport(w http.ResponseWriter, r *http.Request) {
	live, ok := h.live(w, r)
	if !ok {
		return
	}
	r.Body = http.MaxBytesReader(w, r.Body, h.importMaxBytes)
	file, header, err := r.FormFile("file")
	if err != nil {
		h.respond(w, live.Controller().RejectInput(map[string]string{"file": "select an Excel file (.xlsx) to import"}))
		return
	}
	defer func() { _ = file.Close() }()
	_, err = live.Controller().ImportExcel(actionContext(r), header.Filename, file)
	h.respond(w, err)
}

func (h *Handler) handleExport(w http.ResponseWriter, r *http.Request) {
	live, ok := h.live(w, r)
	if !ok {
		return
	}
	var buf bytes.Buffer
	filename, err := live.Controller().ExportExcel(actionContext(r), &buf)
	if err != nil {
		http.Error(w, "export failed", http.StatusBadGateway)
		return
	}
	w.Header().Set("Content-Type", xlsxContentType)
	w.Header().Set("Content-Disposition", `attachment; filename="`+filename+`"`)
	w.Header().Set("Content-Length", strconv.Itoa(buf.Len()))
	_, _ = buf.WriteTo(w)
}

// respond maps a controller outcome to a status. The user has already been
// notified over the event stream.
func (h *Handler) respond(w http.ResponseWriter, err error) {
	switch {
	case err == nil, errors.Is(err, listview.ErrCancelled):
		w.WriteHeader(http.StatusNoContent)
	case errors.Is(err, listview.ErrValidation):
		w.WriteHeader(http.StatusUnprocessableEntity)
	default:
		w.WriteHeader(http.StatusBadGateway)
	}
}

func parseID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		http.Error(w, "invalid stock id", http.StatusBadRequest)
		return 0, false
	}
	return id, true
}

// parsePayload reads the editor form. Numeric fields that do not parse are
// reported per field; range checks are left to the controller.
func parsePayload(r *http.Request) (listview.Payload, *int64, map[string]string) {
	problems := map[string]string{}
	p := listview.Payload{
		ProductCode: strings.TrimSpace(r.PostFormValue("product_code")),
		ProductName: strings.TrimSpace(r.PostFormValue("product_name")),
		Category:    strings.TrimSpace(r.PostFormValue("category")),
		Unit:        strings.TrimSpace(r.PostFormValue("unit")),
		Location:    strings.TrimSpace(r.PostFormValue("location")),
		Description: r.PostFormValue("description"),
	}
	if v := strings.TrimSpace(r.PostFormValue("quantity")); v != "" {
		q, err := strconv.Atoi(v)
		if err != nil {
			problems["quantity"] = "must be a whole number"
		}
		p.Quantity = q
	}
	if v := strings.TrimSpace(r.PostFormValue("price")); v != "" {
		price, err := strconv.ParseFloat(v, 64)
		if err != nil || math.IsInf(price, 0) || math.IsNaN(price) {
			problems["price"] = "must be a number"
		}
		p.Price = price
	}
	var id *int64
	if v := strings.TrimSpace(r.PostFormValue("id")); v != "" {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil || n <= 0 {
			problems["id"] = "is invalid"
		} else {
			id = &n
		}
	}
	return p, id, problems
}
