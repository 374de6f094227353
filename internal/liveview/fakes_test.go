package liveview

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/stockroom/internal/listview"
	"github.com/odyssey-erp/stockroom/internal/view"
)

type memoryCollection struct {
	mu       sync.Mutex
	records  map[int64]listview.Record
	deleted  []int64
	created  []listview.Payload
	lists    int
	imported listview.ImportResult
}

func newMemoryCollection() *memoryCollection {
	c := &memoryCollection{records: map[int64]listview.Record{}}
	for i := int64(1); i <= 3; i++ {
		c.records[i] = listview.Record{ID: i, ProductCode: fmt.Sprintf("P-%d", i), ProductName: fmt.Sprintf("Item %d", i), Quantity: int(i) * 5, Unit: "pcs"}
	}
	return c
}

func (c *memoryCollection) List(ctx context.Context, q listview.QueryState) (listview.Page, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lists++
	page := listview.Page{Page: q.Page, TotalPages: 1, Total: len(c.records)}
	for id := int64(1); id <= 10; id++ {
		if r, ok := c.records[id]; ok {
			page.Items = append(page.Items, r)
		}
	}
	return page, nil
}

func (c *memoryCollection) listCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lists
}

func (c *memoryCollection) Get(ctx context.Context, id int64) (listview.Record, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	r, ok := c.records[id]
	if !ok {
		return listview.Record{}, &listview.RejectionError{Status: 404, Detail: "stock not found"}
	}
	return r, nil
}

func (c *memoryCollection) Create(ctx context.Context, p listview.Payload) (listview.Record, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.created = append(c.created, p)
	id := int64(len(c.records) + 1)
	r := listview.Record{ID: id, ProductCode: p.ProductCode, ProductName: p.ProductName, Quantity: p.Quantity, Unit: p.Unit, Price: p.Price}
	c.records[id] = r
	return r, nil
}

func (c *memoryCollection) Update(ctx context.Context, id int64, p listview.Payload) (listview.Record, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	r := c.records[id]
	r.ProductName = p.ProductName
	c.records[id] = r
	return r, nil
}

func (c *memoryCollection) Delete(ctx context.Context, id int64) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.records, id)
	c.deleted = append(c.deleted, id)
	return nil
}

func (c *memoryCollection) deletedIDs() []int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]int64(nil), c.deleted...)
}

func (c *memoryCollection) Export(ctx context.Context, w io.Writer) error {
	_, err := io.WriteString(w, "xlsx-bytes")
	return err
}

func (c *memoryCollection) Import(ctx context.Context, filename string, r io.Reader) (listview.ImportResult, error) {
	_, _ = io.Copy(io.Discard, r)
	return c.imported, nil
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type fixture struct {
	hub        *Hub
	collection *memoryCollection
	engine     *view.Engine
	now        time.Time
	nowMu      sync.Mutex
}

func (f *fixture) clock() time.Time {
	f.nowMu.Lock()
	defer f.nowMu.Unlock()
	return f.now
}

func (f *fixture) advance(d time.Duration) {
	f.nowMu.Lock()
	f.now = f.now.Add(d)
	f.nowMu.Unlock()
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	engine, err := view.NewEngine()
	require.NoError(t, err)
	renderer := listview.NewHTMLRenderer(engine, time.UTC)

	f := &fixture{
		collection: newMemoryCollection(),
		engine:     engine,
		now:        time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC),
	}
	factory := NewControllerFactory(listview.Config{
		PageSize:        20,
		DebounceDelay:   10 * time.Millisecond,
		RefreshInterval: time.Hour,
		NotificationTTL: time.Hour,
	}, listview.Dependencies{
		Collection: f.collection,
		Renderer:   renderer,
		Logger:     discardLogger(),
	})
	f.hub = NewHub(HubConfig{
		IdleTimeout:    time.Minute,
		ConfirmTimeout: time.Second,
		Logger:         discardLogger(),
		Now:            f.clock,
	}, renderer, factory)
	t.Cleanup(f.hub.Close)
	return f
}

// next waits for the first event named name, skipping others.
func next(t *testing.T, events <-chan Event, name string) Event {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		select {
		case ev := <-events:
			if ev.Name == name {
				return ev
			}
		case <-deadline:
			t.Fatalf("no %q event", name)
			return Event{}
		}
	}
}
