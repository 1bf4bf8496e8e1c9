package asyncrt

import (
	"context"
	"errors"
	"time"
)

// Outcome is the final result of a task.
type Outcome[T any] struct {
	Value T
	Err   error
}

// OK reports whether the task completed without error.
func (o Outcome[T]) OK() bool {
	return o.Err == nil
}

// JoinHandle refers to a spawned task. It is itself a Future resolving to
// the task's outcome, so tasks can await each other.
type JoinHandle[T any] struct {
	t   *task
	out Outcome[T] // written once, before t.done closes
}

// ID returns the task ID.
func (h *JoinHandle[T]) ID() TaskID { return h.t.id }

// Name returns the task name given by WithName.
func (h *JoinHandle[T]) Name() string { return h.t.name }

// Done is closed when the task completes.
func (h *JoinHandle[T]) Done() <-chan struct{} { return h.t.done }

// IsDone reports whether the task completed.
func (h *JoinHandle[T]) IsDone() bool {
	return h.t.sched.Load() == schedDone
}

// Outcome returns the task outcome; ok is false while it is still running.
func (h *JoinHandle[T]) Outcome() (Outcome[T], bool) {
	select {
	case <-h.t.done:
		return h.out, true
	default:
		return Outcome[T]{}, false
	}
}

// Poll completes with the task outcome once the task is done.
func (h *JoinHandle[T]) Poll(cx *Context) Poll[T] {
	if h.park(cx.Waker()) {
		return Pending[T]()
	}
	if h.out.Err != nil {
		return Fail[T](h.out.Err)
	}
	return Ready(h.out.Value)
}

// park registers w for the completion of the task, reporting false when
// the task already completed.
func (h *JoinHandle[T]) park(w Waker) bool {
	return h.t.exec.parkUnlessDone(h.t, w)
}

// Wait blocks the calling goroutine until the task completes or ctx ends.
// Inside a task, await the handle as a Future instead.
func (h *JoinHandle[T]) Wait(ctx context.Context) (T, error) {
	select {
	case <-h.t.done:
		return h.out.Value, h.out.Err
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}

// Abort completes the task with ErrAborted and releases its resources. A
// task being polled is completed as soon as that poll returns. It reports
// false if the task had already completed.
func (h *JoinHandle[T]) Abort() bool {
	return h.t.abortWith(ErrAborted)
}

// Info describes the task.
func (h *JoinHandle[T]) Info() TaskInfo {
	return h.t.info(time.Now())
}

// JoinAll resolves to one outcome per handle, in the order given, once
// every task has completed. It waits on one pending task at a time, so a
// join of n tasks is woken at most n times.
func JoinAll[T any](handles ...*JoinHandle[T]) Future[[]Outcome[T]] {
	return &joinAll[T]{handles: handles}
}

type joinAll[T any] struct {
	handles []*JoinHandle[T]
	next    int
}

func (j *joinAll[T]) Poll(cx *Context) Poll[[]Outcome[T]] {
	for j.next < len(j.handles) {
		if j.handles[j.next].park(cx.Waker()) {
			return Pending[[]Outcome[T]]()
		}
		j.next++
	}
	outs := make([]Outcome[T], len(j.handles))
	for i, h := range j.handles {
		outs[i] = h.out
	}
	return Ready(outs)
}

// WaitAll blocks until every handle completes or ctx ends. Outcomes are in
// the order given.
func WaitAll[T any](ctx context.Context, handles ...*JoinHandle[T]) ([]Outcome[T], error) {
	outs := make([]Outcome[T], len(handles))
	for i, h := range handles {
		select {
		case <-h.t.done:
			outs[i] = h.out
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return outs, nil
}

// Errors joins the errors of failed outcomes, nil if all succeeded.
func Errors[T any](outs []Outcome[T]) error {
	var errs []error
	for _, o := range outs {
		if o.Err != nil {
			errs = append(errs, o.Err)
		}
	}
	return errors.Join(errs...)
}

// Values returns the values of outs, in order.
func Values[T any](outs []Outcome[T]) []T {
	vals := make([]T, len(outs))
	for i, o := range outs {
		vals[i] = o.Value
	}
	return vals
}
