package liveview

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/odyssey-erp/stockroom/internal/listview"
)

// ControllerFactory builds the controller for a new session. The session is
// both its View and its Confirmer.
type ControllerFactory func(s *Session) *listview.Controller

// HubConfig tunes session lifetime.
type HubConfig struct {
	IdleTimeout    time.Duration
	ConfirmTimeout time.Duration
	Logger         *slog.Logger
	Registerer     prometheus.Registerer
	Now            func() time.Time
}

// Hub maps browser session IDs to their live views. Each browser session has
// exactly one registered handle; there is no shared global controller.
type Hub struct {
	cfg      HubConfig
	renderer FragmentRenderer
	build    ControllerFactory
	logger   *slog.Logger
	active   prometheus.Gauge

	ctx    context.Context
	cancel context.CancelFunc

	mu       sync.Mutex
	sessions map[string]*Session
	closed   bool
}

// NewHub creates an empty hub.
func NewHub(cfg HubConfig, renderer FragmentRenderer, build ControllerFactory) *Hub {
	if cfg.IdleTimeout <= 0 {
		cfg.IdleTimeout = 2 * time.Minute
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	active := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "stockroom_live_sessions",
		Help: "Live list views currently held by the hub.",
	})
	if cfg.Registerer != nil {
		cfg.Registerer.MustRegister(active)
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Hub{
		cfg:      cfg,
		renderer: renderer,
		build:    build,
		logger:   logger.With(slog.String("component", "liveview")),
		active:   active,
		ctx:      ctx,
		cancel:   cancel,
		sessions: make(map[string]*Session),
	}
}

// Handle returns the live view registered for id, creating and starting it on
// first use.
func (h *Hub) Handle(id string) (*Session, error) {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return nil, context.Canceled
	}
	s, ok := h.sessions[id]
	if !ok {
		s = newSession(id, h.renderer, h.logger, h.cfg.ConfirmTimeout, h.cfg.Now())
		s.controller = h.build(s)
		h.sessions[id] = s
		h.active.Inc()
		h.logger.Debug("live view registered", slog.String("live_session", id))
	}
	h.mu.Unlock()

	s.touch(h.cfg.Now())
	// A failed first load has already been reported to the view.
	if err := s.start(h.ctx); err != nil {
		h.logger.Warn("live view initial load failed", slog.String("live_session", id), slog.Any("error", err))
	}
	return s, nil
}

// Lookup returns the live view for id without creating one.
func (h *Hub) Lookup(id string) (*Session, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	s, ok := h.sessions[id]
	if ok {
		s.touch(h.cfg.Now())
	}
	return s, ok
}

// Len reports the number of registered live views.
func (h *Hub) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.sessions)
}

// Sweep tears down live views that have had no event stream for longer than
// the idle timeout.
func (h *Hub) Sweep() int {
	now := h.cfg.Now()
	var expired []*Session
	h.mu.Lock()
	for id, s := range h.sessions {
		since, idle := s.idleSince()
		if idle && now.Sub(since) >= h.cfg.IdleTimeout {
			expired = append(expired, s)
			delete(h.sessions, id)
			h.active.Dec()
		}
	}
	h.mu.Unlock()

	for _, s := range expired {
		s.controller.Close()
		h.logger.Debug("live view expired", slog.String("live_session", s.id))
	}
	return len(expired)
}

// Run sweeps idle live views until ctx ends, then closes the hub.
func (h *Hub) Run(ctx context.Context) {
	ticker := time.NewTicker(h.cfg.IdleTimeout / 2)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			h.Close()
			return
		case <-ticker.C:
			h.Sweep()
		}
	}
}

// Close tears down every live view.
func (h *Hub) Close() {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return
	}
	h.closed = true
	sessions := h.sessions
	h.sessions = make(map[string]*Session)
	h.mu.Unlock()

	h.cancel()
	for _, s := range sessions {
		s.controller.Close()
	}
	h.active.Set(0)
}

// NewControllerFactory returns a factory that binds each session as the View
// and Confirmer of a controller built from cfg and deps.
func NewControllerFactory(cfg listview.Config, deps listview.Dependencies) ControllerFactory {
	return func(s *Session) *listview.Controller {
		d := deps
		d.View = s
		d.Confirmer = s
		return listview.New(cfg, d)
	}
}

// Context is cancelled when the hub closes.
func (h *Hub) Context() context.Context {
	return h.ctx
}
