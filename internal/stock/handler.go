package stock

import (
	"bytes"
	"errors"
	"log/slog"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/httprate"

	"github.com/odyssey-erp/stockroom/internal/platform/httpx"
)

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

// Handler exposes the stock collection as JSON.
type Handler struct {
	logger         *slog.Logger
	service        *Service
	importMaxBytes int64
	now            func() time.Time
}

// NewHandler builds the API handler.
func NewHandler(logger *slog.Logger, service *Service, importMaxBytes int64) *Handler {
	if importMaxBytes <= 0 {
		importMaxBytes = 10 << 20
	}
	return &Handler{logger: logger, service: service, importMaxBytes: importMaxBytes, now: time.Now}
}

// MountRoutes registers the collection endpoints.
func (h *Handler) MountRoutes(r chi.Router) {
	if h == nil {
		return
	}
	importLimiter := httprate.Limit(10, time.Minute,
		httprate.WithKeyFuncs(httprate.KeyByIP),
		httprate.WithLimitHandler(func(w http.ResponseWriter, r *http.Request) {
			httpx.JSON(w, http.StatusTooManyRequests, ImportResult{Error: "too many imports, try again in a minute"})
		}),
	)

	r.Get("/stocks", h.list)
	r.Get("/stocks/categories", h.categories)
	r.Get("/stocks/{id}", h.get)
	r.Post("/stocks", h.create)
	r.Put("/stocks/{id}", h.update)
	r.Delete("/stocks/{id}", h.delete)
	r.Get("/excel/export", h.export)
	r.With(importLimiter).Post("/excel/import", h.importWorkbook)
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	page, _ := strconv.Atoi(q.Get("page"))
	limit, _ := strconv.Atoi(q.Get("limit"))
	result, err := h.service.List(r.Context(), ListFilters{
		Page:      page,
		Limit:     limit,
		Search:    q.Get("search"),
		Category:  q.Get("category"),
		SortBy:    q.Get("sortBy"),
		SortOrder: q.Get("sortOrder"),
	})
	if err != nil {
		h.fail(w, "list stocks failed", err)
		return
	}
	httpx.JSON(w, http.StatusOK, result)
}

func (h *Handler) categories(w http.ResponseWriter, r *http.Request) {
	categories, err := h.service.Categories(r.Context())
	if err != nil {
		h.fail(w, "list categories failed", err)
		return
	}
	httpx.JSON(w, http.StatusOK, categories)
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, r)
	if !ok {
		return
	}
	s, err := h.service.Get(r.Context(), id)
	if err != nil {
		h.fail(w, "get stock failed", err)
		return
	}
	httpx.JSON(w, http.StatusOK, s)
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	var in Input
	if err := httpx.DecodeJSON(r, &in); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid JSON", err.Error())
		return
	}
	s, err := h.service.Create(r.Context(), in)
	if err != nil {
		h.fail(w, "create stock failed", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, s)
}

func (h *Handler) update(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, r)
	if !ok {
		return
	}
	var in Input
	if err := httpx.DecodeJSON(r, &in); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid JSON", err.Error())
		return
	}
	s, err := h.service.Update(r.Context(), id, in)
	if err != nil {
		h.fail(w, "update stock failed", err)
		return
	}
	httpx.JSON(w, http.StatusOK, s)
}

func (h *Handler) delete(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, r)
	if !ok {
		return
	}
	if err := h.service.Delete(r.Context(), id); err != nil {
		h.fail(w, "delete stock failed", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) export(w http.ResponseWriter, r *http.Request) {
	var buf bytes.Buffer
	if err := h.service.Export(r.Context(), &buf); err != nil {
		h.fail(w, "export stocks failed", err)
		return
	}
	w.Header().Set("Content-Type", xlsxContentType)
	w.Header().Set("Content-Disposition", `attachment; filename="inventory_`+h.now().Format("2006-01-02")+`.xlsx"`)
	w.Header().Set("Content-Length", strconv.Itoa(buf.Len()))
	_, _ = buf.WriteTo(w)
}

func (h *Handler) importWorkbook(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, h.importMaxBytes)
	file, header, err := r.FormFile("file")
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			httpx.JSON(w, http.StatusRequestEntityTooLarge, ImportResult{Error: "file is too large"})
			return
		}
		httpx.JSON(w, http.StatusBadRequest, ImportResult{Error: "no file uploaded"})
		return
	}
	defer func() { _ = file.Close() }()

	if !strings.EqualFold(filepath.Ext(header.Filename), ".xlsx") {
		httpx.JSON(w, http.StatusBadRequest, ImportResult{Error: "select an Excel file (.xlsx)"})
		return
	}

	n, err := h.service.Import(r.Context(), file)
	if err != nil {
		if errors.Is(err, httpx.ErrValidation) {
			httpx.JSON(w, http.StatusBadRequest, ImportResult{Error: err.Error()})
			return
		}
		h.logger.Error("import stocks failed", slog.Any("error", err))
		httpx.JSON(w, http.StatusInternalServerError, ImportResult{Error: "import failed"})
		return
	}
	httpx.JSON(w, http.StatusOK, ImportResult{Success: true, ImportedCount: n})
}

func (h *Handler) fail(w http.ResponseWriter, msg string, err error) {
	switch {
	case errors.Is(err, httpx.ErrNotFound), errors.Is(err, httpx.ErrDuplicate), errors.Is(err, httpx.ErrValidation):
		h.logger.Info(msg, slog.Any("error", err))
	default:
		h.logger.Error(msg, slog.Any("error", err))
	}
	httpx.RespondError(w, err)
}

func parseID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		httpx.Problem(w, http.StatusBadRequest, "Invalid ID", "stock id must be a positive integer")
		return 0, false
	}
	return id, true
}
