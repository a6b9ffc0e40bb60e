package session

import (
	"context"
	"sync"

	"github.com/zulandar/docchat/internal/backend"
	"github.com/zulandar/docchat/internal/conversation"
)

type chatCall struct {
	Query   string
	History []backend.HistoryEntry
}

type uploadCall struct {
	Name      string
	MediaType string
	Size      int
}

// fakeBackend records calls and answers through pluggable funcs. When gate
// is non-nil, calls signal started and then block until gate is closed or
// their context ends.
type fakeBackend struct {
	mu      sync.Mutex
	chats   []chatCall
	uploads []uploadCall

	chatFn   func(query string) (*backend.ChatResponse, error)
	uploadFn func(name string) (*backend.UploadResponse, error)

	gate    chan struct{}
	started chan string
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{
		chatFn: func(query string) (*backend.ChatResponse, error) {
			return &backend.ChatResponse{Answer: "answer to " + query}, nil
		},
		uploadFn: func(name string) (*backend.UploadResponse, error) {
			return &backend.UploadResponse{Status: "success", Filename: name}, nil
		},
		started: make(chan string, 16),
	}
}

// block makes subsequent calls wait until the returned func is called.
func (f *fakeBackend) block() func() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.gate = make(chan struct{})
	gate := f.gate
	return func() { close(gate) }
}

func (f *fakeBackend) wait(ctx context.Context, op string) error {
	f.mu.Lock()
	gate := f.gate
	f.mu.Unlock()
	if gate == nil {
		return nil
	}
	f.started <- op
	select {
	case <-gate:
		return nil
	case <-ctx.Done():
		return &backend.TransportError{Op: op, Err: ctx.Err()}
	}
}

func (f *fakeBackend) Chat(ctx context.Context, query string, history []backend.HistoryEntry) (*backend.ChatResponse, error) {
	f.mu.Lock()
	f.chats = append(f.chats, chatCall{Query: query, History: history})
	f.mu.Unlock()
	if err := f.wait(ctx, "chat"); err != nil {
		return nil, err
	}
	return f.chatFn(query)
}

func (f *fakeBackend) Upload(ctx context.Context, name, mediaType string, data []byte) (*backend.UploadResponse, error) {
	f.mu.Lock()
	f.uploads = append(f.uploads, uploadCall{Name: name, MediaType: mediaType, Size: len(data)})
	f.mu.Unlock()
	if err := f.wait(ctx, "upload"); err != nil {
		return nil, err
	}
	return f.uploadFn(name)
}

func (f *fakeBackend) chatCalls() []chatCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]chatCall(nil), f.chats...)
}

func (f *fakeBackend) uploadCalls() []uploadCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]uploadCall(nil), f.uploads...)
}

// recordingRecorder captures recorder calls as readable strings.
type recordingRecorder struct {
	mu     sync.Mutex
	events []string
}

func (r *recordingRecorder) add(ev string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
	return nil
}

func (r *recordingRecorder) SessionStarted(ctx context.Context, id string, t conversation.Turn) error {
	return r.add("started:" + t.Content)
}

func (r *recordingRecorder) TurnAppended(ctx context.Context, id string, t conversation.Turn) error {
	return r.add(string(t.Role) + ":" + t.Content)
}

func (r *recordingRecorder) TurnRolledBack(ctx context.Context, id string, seq int) error {
	return r.add("rollback")
}

func (r *recordingRecorder) DocumentAttached(ctx context.Context, id, doc string) error {
	return r.add("document:" + doc)
}

func (r *recordingRecorder) SessionReset(ctx context.Context, id string, t conversation.Turn) error {
	return r.add("reset:" + t.Content)
}

func (r *recordingRecorder) all() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.events...)
}

// stallingRecorder blocks every call until release is called or the call's
// context ends, counting calls that ended by deadline.
type stallingRecorder struct {
	gate     chan struct{}
	once     sync.Once
	mu       sync.Mutex
	deadline int
}

func newStallingRecorder() *stallingRecorder {
	return &stallingRecorder{gate: make(chan struct{})}
}

func (r *stallingRecorder) release() { r.once.Do(func() { close(r.gate) }) }

func (r *stallingRecorder) stall(ctx context.Context) error {
	select {
	case <-r.gate:
		return nil
	case <-ctx.Done():
		r.mu.Lock()
		r.deadline++
		r.mu.Unlock()
		return ctx.Err()
	}
}

func (r *stallingRecorder) timedOut() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.deadline
}

func (r *stallingRecorder) SessionStarted(ctx context.Context, id string, t conversation.Turn) error {
	return r.stall(ctx)
}

func (r *stallingRecorder) TurnAppended(ctx context.Context, id string, t conversation.Turn) error {
	return r.stall(ctx)
}

func (r *stallingRecorder) TurnRolledBack(ctx context.Context, id string, seq int) error {
	return r.stall(ctx)
}

func (r *stallingRecorder) DocumentAttached(ctx context.Context, id, doc string) error {
	return r.stall(ctx)
}

func (r *stallingRecorder) SessionReset(ctx context.Context, id string, t conversation.Turn) error {
	return r.stall(ctx)
}
