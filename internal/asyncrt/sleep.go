package asyncrt

import (
	"fmt"
	"time"
)

// Delay completes with a fixed value once the executor clock reaches its
// deadline. On its first pending poll it schedules a timer carrying the
// task's waker, and stays suspended until the timer fires.
type Delay[T any] struct {
	deadline time.Time
	after    time.Duration
	value    T
	started  bool
	timer    *Timer
}

// Sleep completes after d, measured from the first poll.
func Sleep(d time.Duration) *Delay[struct{}] {
	return After(d, struct{}{})
}

// SleepUntil completes once the clock reads t or later.
func SleepUntil(t time.Time) *Delay[struct{}] {
	return At(t, struct{}{})
}

// After completes with v after d, measured from the first poll.
func After[T any](d time.Duration, v T) *Delay[T] {
	return &Delay[T]{after: d, value: v}
}

// At completes with v once the clock reads t or later.
func At[T any](t time.Time, v T) *Delay[T] {
	return &Delay[T]{deadline: t, value: v, started: true}
}

// Deadline returns the deadline; zero for a relative delay not yet polled.
func (d *Delay[T]) Deadline() time.Time {
	return d.deadline
}

// Poll implements Future.
func (d *Delay[T]) Poll(cx *Context) Poll[T] {
	now := cx.Now()
	if !d.started {
		d.started = true
		d.deadline = now.Add(d.after)
	}
	if !now.Before(d.deadline) {
		d.timer.Cancel()
		d.timer = nil
		return Ready(d.value)
	}

	// a fired timer means we were polled early by the clock's measure;
	// schedule again rather than stall
	if !d.timer.Active() {
		tm, err := cx.Timers().Schedule(d.deadline, cx.Waker())
		if err != nil {
			cx.Logger().Err().
				Uint64("task", uint64(cx.TaskID())).
				Err(err).
				Log("asyncrt: schedule timer")
			return Fail[T](fmt.Errorf("schedule timer for %s: %w", d.deadline.Sub(now), err))
		}
		d.timer = tm
	} else {
		// keep the waker current; polling from a different task is allowed
		cx.Waker()
	}

	cx.Logger().Debug().
		Uint64("task", uint64(cx.TaskID())).
		Dur("remaining", d.deadline.Sub(now)).
		Log("asyncrt: timer pending")
	return Pending[T]()
}

// Release cancels the outstanding timer, if any.
func (d *Delay[T]) Release() {
	d.timer.Cancel()
}
