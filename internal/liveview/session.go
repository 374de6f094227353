// Package liveview runs one list controller per browser session and bridges
// it to the browser: actions arrive as POSTs, updates leave over SSE.
package liveview

import (
	"context"
	"encoding/json"
	"errors"
	"html/template"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/odyssey-erp/stockroom/internal/listview"
)

// SSE event names.
const (
	EventLoading     = "loading"
	EventFrame       = "frame"
	EventNotify      = "notify"
	EventDismiss     = "dismiss"
	EventEditor      = "editor"
	EventEditorClose = "editor-close"
	EventConfirm     = "confirm"
)

const subscriberBuffer = 32

var (
	// ErrUnknownToken is returned when answering a confirmation nobody is waiting for.
	ErrUnknownToken = errors.New("liveview: unknown confirmation token")
	// ErrNoSubscriber is returned when a confirmation cannot be shown anywhere.
	ErrNoSubscriber = errors.New("liveview: no open event stream")
)

// Event is one server-sent event.
type Event struct {
	Name string
	Data string
}

// FragmentRenderer renders the pieces pushed outside a frame.
type FragmentRenderer interface {
	RenderNotification(n listview.Notification) (template.HTML, error)
	RenderEditor(e listview.Editor) (template.HTML, error)
}

type confirmRequest struct {
	Token  string `json:"token"`
	Prompt string `json:"prompt"`
}

// Session is the live view of one browser session. It is the View and the
// Confirmer of its controller.
type Session struct {
	id             string
	renderer       FragmentRenderer
	logger         *slog.Logger
	confirmTimeout time.Duration

	controller *listview.Controller
	startOnce  sync.Once

	mu          sync.Mutex
	subscribers map[chan Event]struct{}
	pending     map[string]chan bool
	loading     bool
	frame       *Event
	lastSeen    time.Time
}

func newSession(id string, renderer FragmentRenderer, logger *slog.Logger, confirmTimeout time.Duration, now time.Time) *Session {
	if confirmTimeout <= 0 {
		confirmTimeout = time.Minute
	}
	return &Session{
		id:             id,
		renderer:       renderer,
		logger:         logger.With(slog.String("live_session", id)),
		confirmTimeout: confirmTimeout,
		subscribers:    make(map[chan Event]struct{}),
		pending:        make(map[string]chan bool),
		lastSeen:       now,
	}
}

// ID returns the browser session ID this live view belongs to.
func (s *Session) ID() string { return s.id }

// Controller returns the list controller bound to this session.
func (s *Session) Controller() *listview.Controller { return s.controller }

func (s *Session) start(ctx context.Context) error {
	var err error
	s.startOnce.Do(func() {
		err = s.controller.Start(ctx)
	})
	return err
}

// Subscribe registers an event stream. The last frame and the current
// loading state are replayed so a reconnecting browser catches up. The replay
// is queued under the same lock broadcasts take, so no later event can reach
// the stream ahead of it.
func (s *Session) Subscribe() (<-chan Event, func()) {
	ch := make(chan Event, subscriberBuffer)
	s.mu.Lock()
	if s.frame != nil {
		ch <- *s.frame
	}
	if s.loading {
		ch <- Event{Name: EventLoading, Data: "true"}
	}
	s.subscribers[ch] = struct{}{}
	s.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			s.mu.Lock()
			delete(s.subscribers, ch)
			s.lastSeen = time.Now()
			s.mu.Unlock()
		})
	}
}

// Subscribers reports how many event streams are open.
func (s *Session) Subscribers() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.subscribers)
}

func (s *Session) touch(now time.Time) {
	s.mu.Lock()
	s.lastSeen = now
	s.mu.Unlock()
}

func (s *Session) idleSince() (time.Time, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastSeen, len(s.subscribers) == 0
}

func (s *Session) broadcast(ev Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.broadcastLocked(ev)
}

// broadcastLocked fans ev out to every subscriber. s.mu must be held.
func (s *Session) broadcastLocked(ev Event) {
	for ch := range s.subscribers {
		select {
		case ch <- ev:
			continue
		default:
		}
		// Slow reader: drop its oldest event to make room.
		select {
		case <-ch:
		default:
		}
		select {
		case ch <- ev:
		default:
		}
	}
}

// SetLoading implements listview.View.
func (s *Session) SetLoading(loading bool) {
	data := "false"
	if loading {
		data = "true"
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.loading = loading
	s.broadcastLocked(Event{Name: EventLoading, Data: data})
}

// Render implements listview.View.
func (s *Session) Render(f listview.Frame) {
	ev, err := frameEvent(f)
	if err != nil {
		s.logger.Error("encode frame", slog.Any("error", err))
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.frame = &ev
	s.broadcastLocked(ev)
}

// Notify implements listview.View.
func (s *Session) Notify(n listview.Notification) {
	html, err := s.renderer.RenderNotification(n)
	if err != nil {
		s.logger.Error("render notification", slog.Any("error", err))
		return
	}
	s.broadcast(Event{Name: EventNotify, Data: string(html)})
}

// Dismiss implements listview.View.
func (s *Session) Dismiss(id string) {
	s.broadcast(Event{Name: EventDismiss, Data: id})
}

// OpenEditor implements listview.View.
func (s *Session) OpenEditor(e listview.Editor) {
	html, err := s.renderer.RenderEditor(e)
	if err != nil {
		s.logger.Error("render editor", slog.Any("error", err))
		return
	}
	s.broadcast(Event{Name: EventEditor, Data: string(html)})
}

// CloseEditor implements listview.View.
func (s *Session) CloseEditor() {
	s.broadcast(Event{Name: EventEditorClose})
}

// Confirm implements listview.Confirmer. It pushes a prompt to the browser
// and waits for Answer, ctx or the confirmation timeout, whichever is first.
func (s *Session) Confirm(ctx context.Context, prompt string) (bool, error) {
	token := uuid.NewString()
	answer := make(chan bool, 1)

	s.mu.Lock()
	if len(s.subscribers) == 0 {
		s.mu.Unlock()
		return false, ErrNoSubscriber
	}
	s.pending[token] = answer
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		delete(s.pending, token)
		s.mu.Unlock()
	}()

	data, err := json.Marshal(confirmRequest{Token: token, Prompt: prompt})
	if err != nil {
		return false, err
	}
	s.broadcast(Event{Name: EventConfirm, Data: string(data)})

	timer := time.NewTimer(s.confirmTimeout)
	defer timer.Stop()
	select {
	case ok := <-answer:
		return ok, nil
	case <-ctx.Done():
		return false, ctx.Err()
	case <-timer.C:
		return false, context.DeadlineExceeded
	}
}

// Answer resolves a pending confirmation.
func (s *Session) Answer(token string, ok bool) error {
	s.mu.Lock()
	answer, found := s.pending[token]
	delete(s.pending, token)
	s.mu.Unlock()
	if !found {
		return ErrUnknownToken
	}
	answer <- ok
	return nil
}

func frameEvent(f listview.Frame) (Event, error) {
	data, err := json.Marshal(f)
	if err != nil {
		return Event{}, err
	}
	return Event{Name: EventFrame, Data: string(data)}, nil
}
