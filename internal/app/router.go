package app

import (
	"io/fs"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/odyssey-erp/stockroom/internal/liveview"
	"github.com/odyssey-erp/stockroom/internal/observability"
	"github.com/odyssey-erp/stockroom/internal/shared"
	"github.com/odyssey-erp/stockroom/internal/stock"
	"github.com/odyssey-erp/stockroom/jobs"
	"github.com/odyssey-erp/stockroom/web"
)

// RouterParams groups dependencies for building the HTTP router.
type RouterParams struct {
	Logger         *slog.Logger
	Config         *Config
	SessionManager *shared.SessionManager
	CSRFManager    *shared.CSRFManager
	StockHandler   *stock.Handler
	LiveHandler    *liveview.Handler
	JobHandler     *jobs.Handler
	Metrics        *observability.Metrics
}

// NewRouter constructs the chi.Router with stockroom defaults.
//
// Three groups share the base stack: the JSON API (no session, no CSRF),
// the live UI (session + CSRF) and the event stream (session only, no
// timeout or compression).
func NewRouter(params RouterParams) http.Handler {
	mw := MiddlewareConfig{
		Logger:         params.Logger,
		Config:         params.Config,
		SessionManager: params.SessionManager,
		CSRFManager:    params.CSRFManager,
		Metrics:        params.Metrics,
	}

	r := chi.NewRouter()
	for _, m := range BaseStack(mw) {
		r.Use(m)
	}
	r.Use(chimw.Logger)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	if params.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", params.Metrics.Handler())
	}

	if params.StockHandler != nil {
		r.Route("/api/v2", func(api chi.Router) {
			for _, m := range RequestStack(mw, 600) {
				api.Use(m)
			}
			params.StockHandler.MountRoutes(api)
		})
	}
	if params.JobHandler != nil {
		r.Route("/jobs", params.JobHandler.MountRoutes)
	}

	if params.LiveHandler != nil && params.SessionManager != nil {
		r.Group(func(ui chi.Router) {
			ui.Use(SessionMiddleware(mw))
			for _, m := range RequestStack(mw, 300) {
				ui.Use(m)
			}
			ui.Use(CSRFMiddleware(mw))
			ui.Get("/", func(w http.ResponseWriter, r *http.Request) {
				http.Redirect(w, r, "/stocks", http.StatusSeeOther)
			})
			params.LiveHandler.MountRoutes(ui)
		})
		r.Group(func(stream chi.Router) {
			stream.Use(SessionMiddleware(mw))
			params.LiveHandler.MountStream(stream)
		})
	}

	staticFS, err := fs.Sub(web.Static, "static")
	if err != nil {
		params.Logger.Error("create static sub filesystem", slog.Any("error", err))
	} else {
		fileServer := http.StripPrefix("/static/", http.FileServer(http.FS(staticFS)))
		r.Handle("/static/*", staticCacheHandler(fileServer))
	}

	return r
}

// staticCacheHandler wraps a file server with Cache-Control headers.
// Static assets are cached for 1 hour in browser.
func staticCacheHandler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Cache-Control", "public, max-age=3600")
		next.ServeHTTP(w, r)
	})
}
