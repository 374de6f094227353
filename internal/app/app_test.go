package app

import (
	"bytes"
	"context"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-chi/chi/v5"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	_ "github.com/odyssey-erp/stockroom/internal/testing/guard"

	"github.com/odyssey-erp/stockroom/internal/observability"
	"github.com/odyssey-erp/stockroom/internal/shared"
)

func TestLoadConfigDefaults(t *testing.T) {
	t.Setenv("SESSION_SECRET", "s")
	t.Setenv("CSRF_SECRET", "c")

	cfg, err := LoadConfig()
	require.NoError(t, err)
	assert.Equal(t, "http://127.0.0.1:8080/api/v2", cfg.StockAPIURL)
	assert.Equal(t, 20, cfg.ListPageSize)
	assert.Equal(t, 300*time.Millisecond, cfg.SearchDebounce)
	assert.Equal(t, 30*time.Second, cfg.AutoRefreshInterval)
	assert.Equal(t, 2*time.Minute, cfg.LiveIdleTimeout)
	assert.EqualValues(t, 10<<20, cfg.ImportMaxBytes)
	assert.Equal(t, "Asia/Tokyo", cfg.Location().String())
}

func TestLoadConfigRejectsBadValues(t *testing.T) {
	t.Setenv("SESSION_SECRET", "s")
	t.Setenv("CSRF_SECRET", "c")

	t.Setenv("DISPLAY_TZ", "Mars/Olympus")
	_, err := LoadConfig()
	assert.Error(t, err)

	t.Setenv("DISPLAY_TZ", "UTC")
	t.Setenv("LIST_PAGE_SIZE", "0")
	_, err = LoadConfig()
	assert.Error(t, err)
}

func TestInTestMode(t *testing.T) {
	RefreshTestMode()
	assert.True(t, InTestMode())
}

func newMiddlewareConfig(t *testing.T) MiddlewareConfig {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return MiddlewareConfig{
		Logger:         newLogger(&bytes.Buffer{}, nil),
		Config:         &Config{AppRequestTimeout: time.Second},
		SessionManager: shared.NewSessionManager(client, "stockroom_session", "secret", time.Hour, false),
		CSRFManager:    shared.NewCSRFManager("csrf"),
		Metrics:        observability.NewMetrics(),
	}
}

func TestCSRFAcceptsHeaderWithoutParsingMultipart(t *testing.T) {
	cfg := newMiddlewareConfig(t)
	var token string
	var parsed bool

	r := chi.NewRouter()
	r.Use(SessionMiddleware(cfg), CSRFMiddleware(cfg))
	r.Get("/token", func(w http.ResponseWriter, r *http.Request) {
		token, _ = cfg.CSRFManager.EnsureToken(r.Context(), shared.SessionFromContext(r.Context()))
		w.WriteHeader(http.StatusNoContent)
	})
	r.Post("/upload", func(w http.ResponseWriter, r *http.Request) {
		parsed = r.MultipartForm != nil
		w.WriteHeader(http.StatusNoContent)
	})

	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/token", nil))
	require.Equal(t, http.StatusNoContent, rr.Code)
	cookies := rr.Result().Cookies()
	require.NotEmpty(t, cookies)

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	_, _ = mw.CreateFormFile("file", "a.xlsx")
	require.NoError(t, mw.Close())
	req := httptest.NewRequest(http.MethodPost, "/upload", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set(CSRFHeader, token)
	for _, c := range cookies {
		req.AddCookie(c)
	}
	rr = httptest.NewRecorder()
	r.ServeHTTP(rr, req)
	assert.Equal(t, http.StatusNoContent, rr.Code)
	assert.False(t, parsed)

	req = httptest.NewRequest(http.MethodPost, "/upload", strings.NewReader(""))
	for _, c := range cookies {
		req.AddCookie(c)
	}
	rr = httptest.NewRecorder()
	r.ServeHTTP(rr, req)
	assert.Equal(t, http.StatusForbidden, rr.Code)
}

func TestSessionWriterFlushes(t *testing.T) {
	cfg := newMiddlewareConfig(t)
	handler := SessionMiddleware(cfg)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, http.NewResponseController(w).Flush())
	}))

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.True(t, rr.Flushed)
	assert.NotEmpty(t, rr.Result().Cookies())
}

func TestRouterSeparatesGroups(t *testing.T) {
	cfg := newMiddlewareConfig(t)
	router := NewRouter(RouterParams{
		Logger:         cfg.Logger,
		Config:         cfg.Config,
		SessionManager: cfg.SessionManager,
		CSRFManager:    cfg.CSRFManager,
		Metrics:        cfg.Metrics,
	})

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "DENY", rr.Header().Get("X-Frame-Options"))
	assert.Empty(t, rr.Result().Cookies())

	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/static/js/stocks.js", nil))
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "public, max-age=3600", rr.Header().Get("Cache-Control"))

	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), "stockroom_http_requests_total")
}

func TestNewLoggerFormats(t *testing.T) {
	var buf bytes.Buffer
	newLogger(&buf, &Config{LogFormat: "json", AppEnv: "production"}).InfoContext(context.Background(), "hello")
	assert.True(t, strings.HasPrefix(buf.String(), "{"))

	buf.Reset()
	newLogger(&buf, &Config{LogFormat: "pretty"}).Debug("debug line")
	assert.Contains(t, buf.String(), "debug line")
}
