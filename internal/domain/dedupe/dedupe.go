// Package dedupe remembers recently applied inbound update ids so a replayed
// device update is applied at most once.
package dedupe

import (
	"container/list"
	"context"
	"sync"
)

const defaultMaxSize = 50000

// Deduper records seen update ids.
type Deduper interface {
	// SeenAndRecord reports whether id was already seen and records it if not.
	SeenAndRecord(ctx context.Context, id string) bool

	// Unrecord forgets id so a failed update can be retried.
	Unrecord(ctx context.Context, id string)

	Size() int64
}

// Window is a Deduper over the most recent ids. When full, the oldest id is
// forgotten first. A non-positive size keeps every id.
type Window struct {
	mu      sync.Mutex
	maxSize int
	order   *list.List // oldest at front
	seen    map[string]*list.Element
}

// NewWindow creates an empty window.
func NewWindow(opts ...Option) *Window {
	w := &Window{
		maxSize: defaultMaxSize,
		order:   list.New(),
		seen:    make(map[string]*list.Element),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

func (w *Window) SeenAndRecord(_ context.Context, id string) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	if _, ok := w.seen[id]; ok {
		return true
	}
	if w.maxSize > 0 && w.order.Len() >= w.maxSize {
		oldest := w.order.Front()
		w.order.Remove(oldest)
		delete(w.seen, oldest.Value.(string))
	}
	w.seen[id] = w.order.PushBack(id)
	return false
}

func (w *Window) Unrecord(_ context.Context, id string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if el, ok := w.seen[id]; ok {
		w.order.Remove(el)
		delete(w.seen, id)
	}
}

func (w *Window) Size() int64 {
	w.mu.Lock()
	defer w.mu.Unlock()
	return int64(w.order.Len())
}
