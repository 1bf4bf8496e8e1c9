package asyncrt

import "time"

// WithTimeout completes like f, unless d passes first, in which case it
// fails with a *TimeoutError and releases f. The deadline is measured from
// the first poll.
func WithTimeout[T any](f Future[T], d time.Duration) Future[T] {
	return &timeoutFuture[T]{inner: f, after: d}
}

type timeoutFuture[T any] struct {
	inner    Future[T]
	after    time.Duration
	deadline time.Time
	timer    *Timer
	done     bool
}

func (f *timeoutFuture[T]) Poll(cx *Context) Poll[T] {
	now := cx.Now()
	if f.deadline.IsZero() {
		f.deadline = now.Add(f.after)
	}

	if p := f.inner.Poll(cx); p.Kind == PollDone {
		f.finish()
		return p
	}
	if !now.Before(f.deadline) {
		f.Release()
		return Fail[T](&TimeoutError{After: f.after})
	}

	if !f.timer.Active() {
		tm, err := cx.Timers().Schedule(f.deadline, cx.Waker())
		if err != nil {
			f.Release()
			return Fail[T](err)
		}
		f.timer = tm
	}
	return Pending[T]()
}

func (f *timeoutFuture[T]) finish() {
	f.done = true
	f.timer.Cancel()
}

// Release cancels the deadline timer and releases the wrapped future.
func (f *timeoutFuture[T]) Release() {
	if f.done {
		return
	}
	f.finish()
	if r, ok := f.inner.(Releaser); ok {
		r.Release()
	}
}
