package asyncrt

import (
	"bytes"
	"context"
	"sync"
	"testing"
	"time"

	"github.com/joeycumines/logiface"
	"github.com/joeycumines/stumpy"
)

func newTestExecutor(t *testing.T, cfg Config) *Executor {
	t.Helper()
	e := NewExecutor(cfg)
	t.Cleanup(func() { _ = e.Close() })
	return e
}

func testContext(t *testing.T) context.Context {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	t.Cleanup(cancel)
	return ctx
}

type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func newTestLogger(w *syncBuffer) *logiface.Logger[logiface.Event] {
	return stumpy.L.New(
		stumpy.L.WithStumpy(stumpy.WithWriter(w), stumpy.WithTimeField(``)),
		stumpy.L.WithLevel(logiface.LevelDebug),
	).Logger()
}

// manual is a future that stays pending until released, then completes
// with its value.
type manual[T any] struct {
	mu       sync.Mutex
	released bool
	value    T
	waker    Waker
	polls    int
}

func (m *manual[T]) Poll(cx *Context) Poll[T] {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.polls++
	if m.released {
		return Ready(m.value)
	}
	m.waker = cx.Waker().Clone()
	return Pending[T]()
}

func (m *manual[T]) release(v T) {
	m.mu.Lock()
	m.released = true
	m.value = v
	w := m.waker
	m.mu.Unlock()
	w.Wake()
}

// recorder collects values in completion order.
type recorder[T any] struct {
	mu   sync.Mutex
	seen []T
}

func (r *recorder[T]) record(v T) T {
	r.mu.Lock()
	r.seen = append(r.seen, v)
	r.mu.Unlock()
	return v
}

func (r *recorder[T]) values() []T {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]T(nil), r.seen...)
}
