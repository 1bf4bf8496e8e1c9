package asyncrt

import (
	"context"
	"sync"
)

// Group collects tasks of one result type so they can be joined together.
type Group[T any] struct {
	exec     *Executor
	failFast bool

	mu      sync.Mutex
	handles []*JoinHandle[T]
	failed  bool
}

// GroupOption configures a Group.
type GroupOption func(*groupConfig)

type groupConfig struct {
	failFast bool
}

// WithFailFast aborts the remaining members once one member fails.
func WithFailFast() GroupOption {
	return func(c *groupConfig) { c.failFast = true }
}

// NewGroup returns an empty group spawning onto e.
func NewGroup[T any](e *Executor, opts ...GroupOption) *Group[T] {
	var cfg groupConfig
	for _, opt := range opts {
		opt(&cfg)
	}
	return &Group[T]{exec: e, failFast: cfg.failFast}
}

// Submit spawns f as a member of the group.
func (g *Group[T]) Submit(f Future[T], opts ...SpawnOption) *JoinHandle[T] {
	if g.failFast {
		opts = append(opts, withOnFinish(g.memberDone))
	}
	h := Spawn(g.exec, f, opts...)

	g.mu.Lock()
	g.handles = append(g.handles, h)
	failed := g.failed
	g.mu.Unlock()

	if failed {
		h.Abort()
	}
	return h
}

func (g *Group[T]) memberDone(failed bool) {
	if !failed {
		return
	}
	g.mu.Lock()
	if g.failed {
		g.mu.Unlock()
		return
	}
	g.failed = true
	members := append([]*JoinHandle[T](nil), g.handles...)
	g.mu.Unlock()

	// the failed member is done, aborting it is a no-op
	for _, h := range members {
		h.Abort()
	}
}

// Failed reports whether a member failed while fail-fast was enabled.
func (g *Group[T]) Failed() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.failed
}

// Len returns the number of members.
func (g *Group[T]) Len() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.handles)
}

// Handles returns the members in submission order.
func (g *Group[T]) Handles() []*JoinHandle[T] {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]*JoinHandle[T](nil), g.handles...)
}

// Join resolves to the outcomes of the members submitted so far, in
// submission order, once all of them completed.
func (g *Group[T]) Join() Future[[]Outcome[T]] {
	return JoinAll(g.Handles()...)
}

// Wait blocks until every member submitted so far completes.
func (g *Group[T]) Wait(ctx context.Context) ([]Outcome[T], error) {
	return WaitAll(ctx, g.Handles()...)
}

// AbortAll aborts every member still running and returns how many were.
func (g *Group[T]) AbortAll() int {
	n := 0
	for _, h := range g.Handles() {
		if h.Abort() {
			n++
		}
	}
	return n
}
