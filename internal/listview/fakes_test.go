package listview

import (
	"context"
	"fmt"
	"html/template"
	"io"
	"sync"
)

type listCall struct {
	query QueryState
	reply chan listReply
}

type listReply struct {
	page Page
	err  error
}

// fakeCollection answers List either from a fixed function or, when manual is
// set, by handing each call to the test through calls.
type fakeCollection struct {
	mu      sync.Mutex
	manual  bool
	calls   chan listCall
	list    func(q QueryState) (Page, error)
	queries []QueryState

	records   map[int64]Record
	created   []Payload
	updated   map[int64]Payload
	deleted   []int64
	saveErr   error
	exported  string
	imported  ImportResult
	importErr error
}

func newFakeCollection() *fakeCollection {
	return &fakeCollection{
		calls:   make(chan listCall, 16),
		records: map[int64]Record{},
		updated: map[int64]Payload{},
		list: func(q QueryState) (Page, error) {
			return pageOf(q.Page, 3, 2), nil
		},
	}
}

func pageOf(page, totalPages, items int) Page {
	p := Page{Page: page, TotalPages: totalPages, Total: totalPages * items}
	for i := 0; i < items; i++ {
		p.Items = append(p.Items, Record{ID: int64(page*100 + i), ProductCode: fmt.Sprintf("P%d-%d", page, i), Quantity: 20})
	}
	return p
}

func (f *fakeCollection) List(ctx context.Context, q QueryState) (Page, error) {
	f.mu.Lock()
	f.queries = append(f.queries, q)
	manual, list := f.manual, f.list
	f.mu.Unlock()
	if !manual {
		return list(q)
	}
	call := listCall{query: q, reply: make(chan listReply, 1)}
	f.calls <- call
	select {
	case r := <-call.reply:
		return r.page, r.err
	case <-ctx.Done():
		return Page{}, fmt.Errorf("%w: %v", ErrNetwork, ctx.Err())
	}
}

func (f *fakeCollection) Queries() []QueryState {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]QueryState(nil), f.queries...)
}

func (f *fakeCollection) Get(_ context.Context, id int64) (Record, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	rec, ok := f.records[id]
	if !ok {
		return Record{}, &RejectionError{Status: 404, Detail: "not found"}
	}
	return rec, nil
}

func (f *fakeCollection) Create(_ context.Context, p Payload) (Record, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.saveErr != nil {
		return Record{}, f.saveErr
	}
	f.created = append(f.created, p)
	return Record{ID: int64(len(f.created)), ProductCode: p.ProductCode}, nil
}

func (f *fakeCollection) Update(_ context.Context, id int64, p Payload) (Record, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.saveErr != nil {
		return Record{}, f.saveErr
	}
	f.updated[id] = p
	return Record{ID: id, ProductCode: p.ProductCode}, nil
}

func (f *fakeCollection) Delete(_ context.Context, id int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deleted = append(f.deleted, id)
	return nil
}

func (f *fakeCollection) Export(_ context.Context, w io.Writer) error {
	_, err := io.WriteString(w, f.exported)
	return err
}

func (f *fakeCollection) Import(_ context.Context, _ string, r io.Reader) (ImportResult, error) {
	if _, err := io.Copy(io.Discard, r); err != nil {
		return ImportResult{}, err
	}
	return f.imported, f.importErr
}

type recordingView struct {
	mu            sync.Mutex
	loading       []bool
	frames        []Frame
	notifications []Notification
	dismissed     []string
	editors       []Editor
	closedEditors int
}

func (v *recordingView) SetLoading(loading bool) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.loading = append(v.loading, loading)
}

func (v *recordingView) Render(f Frame) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.frames = append(v.frames, f)
}

func (v *recordingView) Notify(n Notification) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.notifications = append(v.notifications, n)
}

func (v *recordingView) Dismiss(id string) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.dismissed = append(v.dismissed, id)
}

func (v *recordingView) OpenEditor(e Editor) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.editors = append(v.editors, e)
}

func (v *recordingView) CloseEditor() {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.closedEditors++
}

func (v *recordingView) snapshot() recordingView {
	v.mu.Lock()
	defer v.mu.Unlock()
	return recordingView{
		loading:       append([]bool(nil), v.loading...),
		frames:        append([]Frame(nil), v.frames...),
		notifications: append([]Notification(nil), v.notifications...),
		dismissed:     append([]string(nil), v.dismissed...),
		editors:       append([]Editor(nil), v.editors...),
		closedEditors: v.closedEditors,
	}
}

// textRenderer renders a frame that identifies the page it came from.
type textRenderer struct{}

func (textRenderer) Render(p Page, q QueryState) (Frame, error) {
	first := ""
	if len(p.Items) > 0 {
		first = p.Items[0].ProductCode
	}
	return Frame{
		Table:      template.HTML(fmt.Sprintf("page=%d first=%s", q.Page, first)),
		Pagination: template.HTML(fmt.Sprintf("%d/%d", q.Page, p.TotalPages)),
	}, nil
}

type stubConfirmer struct {
	answer bool
	err    error
	asked  []string
}

func (s *stubConfirmer) Confirm(_ context.Context, prompt string) (bool, error) {
	s.asked = append(s.asked, prompt)
	return s.answer, s.err
}
