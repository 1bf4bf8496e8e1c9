package asyncrt

import (
	"context"
	"errors"
	"math/rand"
	"runtime/debug"
	"strconv"
	"sync"
	"time"

	"github.com/joeycumines/logiface"

	"wakeloop/internal/trace"
)

// Executor runs tasks from a FIFO ready queue. Any number of goroutines may
// drive it (Run, RunWorkers, RunUntilIdle, BlockOn); a task is never polled
// by two of them at once. Fuzz scheduling is supported for reproducible
// interleavings.
type Executor struct {
	cfg     Config
	clock   Clock
	timers  TimerSource
	virtual *VirtualClock
	queue   *TimerQueue // owned, closed with the executor
	log     *logiface.Logger[logiface.Event]
	tracer  trace.Tracer
	parker  parker

	mu      sync.Mutex
	nextID  TaskID
	ready   []*task
	tasks   map[TaskID]*task
	waiters map[WakerKey][]Waker
	active  int // tasks being polled
	runners int
	closed  bool
	rng     *rand.Rand

	parkerClosed bool
	stats        counters
}

// Config configures executor scheduling behavior. The zero value is a FIFO
// executor with a shared timer queue on the real clock.
type Config struct {
	// TimerMode picks the timer source when Timers is nil.
	TimerMode TimerMode
	// MaxTimerThreads bounds TimerModeThreads; see ThreadTimers.
	MaxTimerThreads int
	// Clock and Timers override the sources chosen by TimerMode. A
	// *VirtualClock given as either one serves as both, and the executor
	// advances it when idle.
	Clock  Clock
	Timers TimerSource

	// Fuzz picks the next task at random instead of FIFO, seeded by Seed.
	Fuzz bool
	Seed uint64

	// IdleTimeout bounds a single park of an idle runner. Defaults to 100ms.
	IdleTimeout time.Duration

	Logger *logiface.Logger[logiface.Event]
	Tracer trace.Tracer
}

// NewExecutor constructs an executor with the provided configuration.
func NewExecutor(cfg Config) *Executor {
	if cfg.IdleTimeout <= 0 {
		cfg.IdleTimeout = 100 * time.Millisecond
	}
	exec := &Executor{
		cfg:    cfg,
		nextID: 1,
		tasks:  make(map[TaskID]*task),
		log:    cfg.Logger,
		tracer: cfg.Tracer,
	}
	if exec.tracer == nil {
		exec.tracer = trace.Nop
	}

	exec.clock, exec.timers = cfg.Clock, cfg.Timers
	if vc, ok := cfg.Clock.(*VirtualClock); ok && exec.timers == nil {
		exec.timers = vc
	}
	if exec.timers == nil {
		switch cfg.TimerMode {
		case TimerModeVirtual:
			vc := NewVirtualClock(time.Time{})
			exec.timers = vc
			if exec.clock == nil {
				exec.clock = vc
			}
		case TimerModeThreads:
			exec.timers = &ThreadTimers{MaxThreads: cfg.MaxTimerThreads}
		default:
			exec.queue = NewTimerQueue()
			exec.timers = exec.queue
		}
	}
	exec.bindVirtual()
	if exec.clock == nil {
		exec.clock = RealClock{}
	}

	p, err := newParker()
	if err != nil {
		exec.log.Warning().Err(err).Log("asyncrt: falling back to channel parker")
		p = newChanParker()
	}
	exec.parker = p

	if cfg.Fuzz {
		seed := cfg.Seed
		if seed == 0 {
			seed = 1
		}
		exec.rng = rand.New(rand.NewSource(int64(seed))) //nolint:gosec // deterministic scheduler seed
	}
	return exec
}

// Now reads the executor clock.
func (e *Executor) Now() time.Time {
	if e == nil || e.clock == nil {
		return time.Now()
	}
	return e.clock.Now()
}

// bindVirtual makes a virtual clock drive both time and timers. Deadlines
// computed on one clock never fire on a timer source in another time base.
func (e *Executor) bindVirtual() {
	vc, ok := e.timers.(*VirtualClock)
	if !ok {
		vc, ok = e.clock.(*VirtualClock)
	}
	if !ok {
		return
	}
	if e.timers != TimerSource(vc) || (e.clock != nil && e.clock != Clock(vc)) {
		e.log.Warning().Log("asyncrt: virtual clock replaces a mismatched clock or timer source")
	}
	e.virtual = vc
	e.clock = vc
	e.timers = vc
}

// Clock returns the executor clock.
func (e *Executor) Clock() Clock { return e.clock }

// Timers returns the executor timer source.
func (e *Executor) Timers() TimerSource { return e.timers }

// Tracer returns the executor tracer.
func (e *Executor) Tracer() trace.Tracer { return e.tracer }

// SpawnOption configures a spawned task.
type SpawnOption func(*task)

// WithName labels a task in logs, traces and stall reports.
func WithName(name string) SpawnOption {
	return func(t *task) { t.name = name }
}

// withOnFinish runs fn after the task completes; failed is true when the
// task itself failed, as opposed to being aborted or succeeding.
func withOnFinish(fn func(failed bool)) SpawnOption {
	return func(t *task) { t.onFinish = append(t.onFinish, fn) }
}

// Spawn submits f as a new task and returns immediately. The task is ready
// at once; it runs when a goroutine drives the executor.
func Spawn[T any](e *Executor, f Future[T], opts ...SpawnOption) *JoinHandle[T] {
	h := &JoinHandle[T]{}
	t := &task{
		exec: e,
		done: make(chan struct{}),
	}
	h.t = t
	if f == nil {
		t.poll = func(*Context) bool {
			h.out = Outcome[T]{Err: ErrNilFuture}
			return true
		}
	} else {
		t.poll = func(cx *Context) bool {
			p := f.Poll(cx)
			if p.Kind != PollDone {
				return false
			}
			h.out = Outcome[T]{Value: p.Value, Err: p.Err}
			t.failed = p.Err != nil
			return true
		}
		if r, ok := f.(Releaser); ok {
			t.release = r.Release
		}
	}
	t.fail = func(err error) {
		h.out = Outcome[T]{Err: err}
	}
	for _, opt := range opts {
		opt(t)
	}
	e.submit(t)
	return h
}

func (e *Executor) submit(t *task) {
	t.spawnedAt = time.Now()
	e.mu.Lock()
	t.id = e.nextID
	e.nextID++
	if e.closed {
		e.mu.Unlock()
		e.stats.spawned.Add(1)
		t.sched.Store(schedRunning)
		e.finish(t, ErrExecutorClosed)
		return
	}
	e.tasks[t.id] = t
	t.sched.Store(schedQueued)
	t.admissions.Add(1)
	e.ready = append(e.ready, t)
	e.mu.Unlock()

	e.stats.spawned.Add(1)
	e.parker.unpark()
	trace.Point(e.tracer, trace.ScopeTask, "spawn", uint64(t.id), t.name, nil)
}

func (e *Executor) enqueue(t *task) {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		if t.sched.CompareAndSwap(schedQueued, schedRunning) {
			e.finish(t, ErrExecutorClosed)
		}
		return
	}
	e.ready = append(e.ready, t)
	e.mu.Unlock()
	e.parker.unpark()
	trace.Point(e.tracer, trace.ScopeWake, "admit", uint64(t.id), "", nil)
}

type nextState uint8

const (
	nextTask nextState = iota
	nextIdle
	nextClosed
)

// next pops the next runnable task. Entries whose task was completed by an
// abort while queued are dropped.
func (e *Executor) next() (*task, nextState) {
	e.mu.Lock()
	for len(e.ready) > 0 {
		i := 0
		if e.rng != nil {
			i = e.rng.Intn(len(e.ready))
		}
		t := e.ready[i]
		if i == 0 {
			e.ready[0] = nil
			e.ready = e.ready[1:]
		} else {
			copy(e.ready[i:], e.ready[i+1:])
			e.ready[len(e.ready)-1] = nil
			e.ready = e.ready[:len(e.ready)-1]
		}
		if !t.sched.CompareAndSwap(schedQueued, schedRunning) {
			continue
		}
		e.active++
		more := len(e.ready) > 0
		e.mu.Unlock()
		if more {
			// let another parked runner pick up the rest
			e.parker.unpark()
		}
		return t, nextTask
	}
	state := nextIdle
	if e.closed {
		state = nextClosed
	}
	e.mu.Unlock()
	return nil, state
}

// runTask polls a task that next moved to running.
func (e *Executor) runTask(t *task) {
	defer func() {
		e.mu.Lock()
		e.active--
		e.mu.Unlock()
	}()

	if r := t.abort.Load(); r != nil {
		e.finish(t, r.err)
		return
	}

	t.polls.Add(1)
	e.stats.polls.Add(1)
	done, err := e.poll(t)
	if done {
		e.finish(t, err)
		return
	}

	t.suspends.Add(1)
	t.suspendedAt.Store(time.Now().UnixNano())
	for {
		if r := t.abort.Load(); r != nil {
			t.suspendedAt.Store(0)
			e.finish(t, r.err)
			return
		}
		if t.sched.CompareAndSwap(schedRunning, schedIdle) {
			return
		}
		// woken during the poll: go straight back to the queue
		if t.sched.CompareAndSwap(schedNotified, schedQueued) {
			t.suspendedAt.Store(0)
			t.admissions.Add(1)
			e.stats.readmissions.Add(1)
			e.enqueue(t)
			return
		}
	}
}

// poll advances t once, turning a panic into a failure of t alone.
func (e *Executor) poll(t *task) (done bool, err error) {
	cx := &Context{exec: e, task: t, waker: Waker{t: t}}
	span := trace.BeginTask(e.tracer, trace.ScopePoll, "poll", 0, uint64(t.id))
	defer func() {
		if r := recover(); r != nil {
			perr := &PanicError{Value: r, Stack: debug.Stack()}
			e.log.Err().
				Uint64("task", uint64(t.id)).
				Str("name", t.name).
				Err(perr).
				Log("asyncrt: task panicked")
			trace.Point(e.tracer, trace.ScopeExecutor, "panic", uint64(t.id), perr.Error(), nil)
			span.End("panic")
			done, err = true, perr
		}
	}()

	done = t.poll(cx)
	if done {
		span.End("ready")
		return true, nil
	}
	t.registered.Store(cx.taken)
	if !cx.taken {
		e.log.Debug().
			Uint64("task", uint64(t.id)).
			Str("name", t.name).
			Log("asyncrt: task suspended without taking its waker")
	}
	span.End("pending")
	return false, nil
}

// finish completes a task the caller moved to running. A non-nil err
// replaces the outcome; the poll stored it otherwise.
func (e *Executor) finish(t *task, err error) {
	aborted := errors.Is(err, ErrAborted) || errors.Is(err, ErrExecutorClosed)
	if err != nil {
		t.fail(err)
		if t.release != nil {
			t.release()
		}
	}

	e.mu.Lock()
	t.finished = true
	delete(e.tasks, t.id)
	waiters := e.takeWaitersLocked(JoinKey(t.id))
	e.mu.Unlock()

	t.sched.Store(schedDone)
	close(t.done)
	for _, w := range waiters {
		w.Wake()
	}
	failed := !aborted && (err != nil || t.failed)
	for _, fn := range t.onFinish {
		fn(failed)
	}

	e.stats.completed.Add(1)
	switch {
	case aborted:
		e.stats.aborted.Add(1)
	case failed:
		e.stats.failed.Add(1)
	}
	if e.tracer.Enabled() {
		trace.Point(e.tracer, trace.ScopeTask, "complete", uint64(t.id), t.name, map[string]string{
			"polls":      strconv.FormatUint(t.polls.Load(), 10),
			"admissions": strconv.FormatUint(t.admissions.Load(), 10),
		})
	}
	// BlockOn and drained runners watch for completions
	e.parker.unpark()
}

// Run drives the executor on the calling goroutine until Close is called
// or ctx is cancelled. Idle periods are spent parked, not spinning.
func (e *Executor) Run(ctx context.Context) error {
	return e.drive(ctx, nil, true)
}

// RunUntilIdle polls ready tasks on the calling goroutine until the ready
// queue is empty and no task is being polled elsewhere. With a virtual
// clock pending timers are fired first. It returns the number of polls.
func (e *Executor) RunUntilIdle() int {
	n := 0
	for {
		t, state := e.next()
		if state == nextTask {
			e.runTask(t)
			n++
			continue
		}
		if state == nextIdle && e.advanceVirtual() {
			continue
		}
		return n
	}
}

// BlockOn spawns f and drives the executor until it completes.
func BlockOn[T any](ctx context.Context, e *Executor, f Future[T], opts ...SpawnOption) (T, error) {
	h := Spawn(e, f, opts...)
	if err := e.drive(ctx, h.t.done, false); err != nil {
		h.Abort()
		var zero T
		return zero, err
	}
	o := h.out
	return o.Value, o.Err
}

func (e *Executor) drive(ctx context.Context, done <-chan struct{}, untilClosed bool) error {
	stop := context.AfterFunc(ctx, e.parker.unpark)
	defer stop()

	e.mu.Lock()
	e.runners++
	e.mu.Unlock()
	defer e.leave()

	e.log.Debug().Int("runners", e.Runners()).Log("asyncrt: runner started")
	for {
		if done != nil {
			select {
			case <-done:
				return nil
			default:
			}
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		t, state := e.next()
		switch state {
		case nextTask:
			e.runTask(t)
		case nextClosed:
			if untilClosed || done == nil {
				return nil
			}
			// the watched task was completed by Close
			<-done
			return nil
		default:
			if e.advanceVirtual() {
				continue
			}
			e.parker.park(e.cfg.IdleTimeout)
		}
	}
}

func (e *Executor) leave() {
	e.mu.Lock()
	e.runners--
	closeParker := e.closed && e.runners == 0 && !e.parkerClosed
	if closeParker {
		e.parkerClosed = true
	}
	e.mu.Unlock()
	if closeParker {
		_ = e.parker.close()
		return
	}
	// wake a sibling that may be waiting on the signal this runner consumed
	e.parker.unpark()
}

// advanceVirtual fires the next virtual timer when nothing can run.
func (e *Executor) advanceVirtual() bool {
	if e.virtual == nil {
		return false
	}
	e.mu.Lock()
	idle := e.active == 0 && len(e.ready) == 0
	e.mu.Unlock()
	return idle && e.virtual.AdvanceToNext()
}

// Runners returns the number of goroutines currently driving the executor.
func (e *Executor) Runners() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.runners
}

// Close stops the executor. Tasks that have not completed finish with
// ErrExecutorClosed and release their resources; tasks spawned afterwards
// finish the same way immediately. Runners return once the task they are
// polling, if any, returns.
func (e *Executor) Close() error {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return nil
	}
	e.closed = true
	pending := make([]*task, 0, len(e.tasks))
	for _, t := range e.tasks {
		pending = append(pending, t)
	}
	e.mu.Unlock()

	for _, t := range pending {
		t.abortWith(ErrExecutorClosed)
	}

	e.mu.Lock()
	closeParker := e.runners == 0 && !e.parkerClosed
	if closeParker {
		e.parkerClosed = true
	}
	e.mu.Unlock()
	if closeParker {
		_ = e.parker.close()
	} else {
		e.parker.unpark()
	}

	if e.queue != nil {
		_ = e.queue.Close()
	}
	e.log.Debug().Int("aborted", len(pending)).Log("asyncrt: executor closed")
	trace.Point(e.tracer, trace.ScopeExecutor, "close", 0, "", nil)
	return nil
}
