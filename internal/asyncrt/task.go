package asyncrt

import (
	"sync/atomic"
	"time"

	"github.com/joeycumines/logiface"
)

// PollKind reports whether a poll completed the future.
type PollKind uint8

const (
	// PollPending means the future suspended and arranged to be woken.
	PollPending PollKind = iota
	// PollDone means the future completed, successfully or not.
	PollDone
)

// Poll is the result of advancing a future once.
type Poll[T any] struct {
	Kind  PollKind
	Value T
	Err   error
}

// Ready completes a future with v.
func Ready[T any](v T) Poll[T] {
	return Poll[T]{Kind: PollDone, Value: v}
}

// Fail completes a future with err.
func Fail[T any](err error) Poll[T] {
	return Poll[T]{Kind: PollDone, Err: err}
}

// Pending suspends a future.
func Pending[T any]() Poll[T] {
	return Poll[T]{}
}

// IsReady reports whether the poll completed the future.
func (p Poll[T]) IsReady() bool {
	return p.Kind == PollDone
}

// Future is a suspendable computation.
//
// Poll is called only while the owning task is ready, never concurrently
// with itself. It either completes (Ready or Fail) or returns Pending after
// handing a clone of cx.Waker() to something that will invoke it once
// progress is possible. Returning Pending without doing so leaves the task
// stalled; the watchdog reports such tasks.
type Future[T any] interface {
	Poll(cx *Context) Poll[T]
}

// PollFunc adapts a function to Future.
type PollFunc[T any] func(cx *Context) Poll[T]

// Poll calls f(cx).
func (f PollFunc[T]) Poll(cx *Context) Poll[T] { return f(cx) }

// Releaser is implemented by futures holding resources (timers, goroutines)
// that must be released when the task is abandoned before completing.
type Releaser interface {
	Release()
}

// TaskID identifies a spawned task.
type TaskID uint64

// TaskStatus describes task scheduling state.
type TaskStatus uint8

const (
	// TaskReady means the task is queued for its next poll.
	TaskReady TaskStatus = iota
	// TaskRunning means a runner is polling the task right now.
	TaskRunning
	// TaskWaiting means the task returned Pending and waits for a wake.
	TaskWaiting
	// TaskDone means the task completed and its outcome is recorded.
	TaskDone
)

func (s TaskStatus) String() string {
	switch s {
	case TaskReady:
		return "ready"
	case TaskRunning:
		return "running"
	case TaskWaiting:
		return "waiting"
	case TaskDone:
		return "done"
	default:
		return "unknown"
	}
}

// Scheduling word states. Every transition is a CAS; together they give
// at-most-one ready queue entry per task and no lost wakeups.
const (
	schedIdle     uint32 = iota // suspended, waiting for a wake
	schedQueued                 // in the ready queue
	schedRunning                // being polled
	schedNotified               // being polled, woken meanwhile
	schedDone                   // completed
)

// Context is passed to Future.Poll.
type Context struct {
	exec  *Executor
	task  *task
	waker Waker
	taken bool
}

// Waker returns the wake handle of the task being polled.
func (cx *Context) Waker() Waker {
	cx.taken = true
	return cx.waker
}

// TaskID returns the ID of the task being polled.
func (cx *Context) TaskID() TaskID {
	return cx.task.id
}

// Executor returns the executor driving the poll.
func (cx *Context) Executor() *Executor {
	return cx.exec
}

// Now reads the executor clock.
func (cx *Context) Now() time.Time {
	return cx.exec.Now()
}

// Timers returns the executor timer source.
func (cx *Context) Timers() TimerSource {
	return cx.exec.timers
}

// Logger returns the executor logger; nil when logging is disabled.
func (cx *Context) Logger() *logiface.Logger[logiface.Event] {
	return cx.exec.log
}

type abortReason struct {
	err error
}

// task is the type-erased executor view of a spawned future.
type task struct {
	id   TaskID
	name string
	exec *Executor

	// poll advances the future and stores its outcome on completion.
	poll func(cx *Context) bool
	// fail stores err as the outcome without polling.
	fail     func(err error)
	release  func()
	onFinish []func(failed bool)

	sched atomic.Uint32
	abort atomic.Pointer[abortReason]
	done  chan struct{}

	// guarded by exec.mu
	finished bool
	// written by the poll that completed the task
	failed bool

	spawnedAt   time.Time
	suspendedAt atomic.Int64 // unix nanos; 0 unless waiting for a wake
	registered  atomic.Bool  // last pending poll took the waker

	polls      atomic.Uint64
	wakes      atomic.Uint64
	admissions atomic.Uint64
	suspends   atomic.Uint64
}

func (t *task) status() TaskStatus {
	switch t.sched.Load() {
	case schedIdle:
		return TaskWaiting
	case schedQueued:
		return TaskReady
	case schedRunning, schedNotified:
		return TaskRunning
	default:
		return TaskDone
	}
}

// wake re-admits an idle task, or records the wake if the task is being
// polled. Queued, already notified and completed tasks are unaffected.
func (t *task) wake() {
	t.wakes.Add(1)
	t.exec.stats.wakes.Add(1)
	for {
		switch t.sched.Load() {
		case schedIdle:
			if t.sched.CompareAndSwap(schedIdle, schedQueued) {
				t.suspendedAt.Store(0)
				t.admissions.Add(1)
				t.exec.stats.readmissions.Add(1)
				t.exec.enqueue(t)
				return
			}
		case schedRunning:
			if t.sched.CompareAndSwap(schedRunning, schedNotified) {
				return
			}
		default:
			return
		}
	}
}

// abortWith completes the task with err unless it already completed.
// A task being polled is completed by its runner once the poll returns.
func (t *task) abortWith(err error) bool {
	t.abort.CompareAndSwap(nil, &abortReason{err: err})
	for {
		switch s := t.sched.Load(); s {
		case schedIdle, schedQueued:
			if t.sched.CompareAndSwap(s, schedRunning) {
				t.exec.finish(t, t.abort.Load().err)
				return true
			}
		case schedRunning:
			if t.sched.CompareAndSwap(schedRunning, schedNotified) {
				return true
			}
		case schedNotified:
			return true
		default:
			return false
		}
	}
}
