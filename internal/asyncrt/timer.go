package asyncrt

import (
	"container/heap"
	"sync"
	"sync/atomic"
	"time"
)

// TimerID identifies a scheduled timer within its source.
type TimerID uint64

// TimerSource delivers a single wake at or after a deadline.
type TimerSource interface {
	// Schedule arranges for w to be woken once deadline has passed. An error
	// means no wake will be delivered.
	Schedule(deadline time.Time, w Waker) (*Timer, error)
}

const (
	timerPending uint32 = iota
	timerFired
	timerCancelled
)

// Timer is one scheduled wakeup.
type Timer struct {
	id       TimerID
	deadline time.Time
	waker    Waker
	state    atomic.Uint32
	index    int // heap position, -1 when not in a heap
	stop     func()
}

func newTimer(id TimerID, deadline time.Time, w Waker) *Timer {
	return &Timer{id: id, deadline: deadline, waker: w, index: -1}
}

// ID returns the timer ID.
func (t *Timer) ID() TimerID { return t.id }

// Deadline returns the time the timer fires at.
func (t *Timer) Deadline() time.Time { return t.deadline }

// Active reports whether the timer has neither fired nor been cancelled.
func (t *Timer) Active() bool {
	return t != nil && t.state.Load() == timerPending
}

// Fired reports whether the timer delivered its wake.
func (t *Timer) Fired() bool {
	return t != nil && t.state.Load() == timerFired
}

// Cancel stops a pending timer. It reports whether the timer was pending;
// a cancelled timer never wakes.
func (t *Timer) Cancel() bool {
	if t == nil || !t.state.CompareAndSwap(timerPending, timerCancelled) {
		return false
	}
	if t.stop != nil {
		t.stop()
	}
	return true
}

func (t *Timer) fire() bool {
	if !t.state.CompareAndSwap(timerPending, timerFired) {
		return false
	}
	t.waker.Wake()
	return true
}

type timerHeap []*Timer

func (h timerHeap) Len() int { return len(h) }

func (h timerHeap) Less(i, j int) bool {
	if h[i].deadline.Equal(h[j].deadline) {
		return h[i].id < h[j].id
	}
	return h[i].deadline.Before(h[j].deadline)
}

func (h timerHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index = i
	h[j].index = j
}

func (h *timerHeap) Push(x any) {
	tm := x.(*Timer)
	tm.index = len(*h)
	*h = append(*h, tm)
}

func (h *timerHeap) Pop() any {
	old := *h
	n := len(old)
	item := old[n-1]
	old[n-1] = nil
	item.index = -1
	*h = old[:n-1]
	return item
}

// ThreadTimers starts one goroutine per timer: it sleeps until the deadline,
// wakes the waker once and exits. A cancelled timer's goroutine exits early
// without waking.
type ThreadTimers struct {
	// MaxThreads bounds the goroutines alive at once; 0 means unbounded.
	// Scheduling beyond the bound fails with ErrTimerSpawn.
	MaxThreads int

	live   atomic.Int64
	nextID atomic.Uint64
}

// Live returns the number of timer goroutines currently running.
func (s *ThreadTimers) Live() int {
	return int(s.live.Load())
}

// Schedule starts the goroutine for a new timer.
func (s *ThreadTimers) Schedule(deadline time.Time, w Waker) (*Timer, error) {
	if n := s.live.Add(1); s.MaxThreads > 0 && n > int64(s.MaxThreads) {
		s.live.Add(-1)
		return nil, ErrTimerSpawn
	}
	tm := newTimer(TimerID(s.nextID.Add(1)), deadline, w)
	cancel := make(chan struct{})
	tm.stop = func() { close(cancel) }

	go func() {
		defer s.live.Add(-1)
		if remaining := time.Until(deadline); remaining > 0 {
			sleep := time.NewTimer(remaining)
			select {
			case <-sleep.C:
			case <-cancel:
				sleep.Stop()
				return
			}
		}
		// fire regardless of how late we are; the waker is what matters
		tm.fire()
	}()
	return tm, nil
}

// TimerQueue serves every timer from one goroutine ordered by a min-heap.
type TimerQueue struct {
	mu     sync.Mutex
	timers timerHeap
	nextID TimerID
	closed bool

	signal chan struct{}
	done   chan struct{}
	wg     sync.WaitGroup
}

// NewTimerQueue starts the queue goroutine. Close stops it.
func NewTimerQueue() *TimerQueue {
	q := &TimerQueue{
		signal: make(chan struct{}, 1),
		done:   make(chan struct{}),
	}
	q.wg.Add(1)
	go q.run()
	return q
}

// Schedule adds a timer to the queue.
func (q *TimerQueue) Schedule(deadline time.Time, w Waker) (*Timer, error) {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return nil, ErrTimerSourceClosed
	}
	q.nextID++
	tm := newTimer(q.nextID, deadline, w)
	tm.stop = func() { q.remove(tm) }
	heap.Push(&q.timers, tm)
	earliest := tm.index == 0
	q.mu.Unlock()

	if earliest {
		q.notify()
	}
	return tm, nil
}

// Len returns the number of timers waiting in the queue.
func (q *TimerQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.timers)
}

// Close stops the queue goroutine. Timers still queued never fire.
func (q *TimerQueue) Close() error {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return nil
	}
	q.closed = true
	q.mu.Unlock()
	close(q.done)
	q.wg.Wait()
	return nil
}

func (q *TimerQueue) notify() {
	select {
	case q.signal <- struct{}{}:
	default:
	}
}

func (q *TimerQueue) remove(tm *Timer) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if tm.index >= 0 && tm.index < len(q.timers) && q.timers[tm.index] == tm {
		heap.Remove(&q.timers, tm.index)
	}
}

func (q *TimerQueue) run() {
	defer q.wg.Done()

	sleep := time.NewTimer(time.Hour)
	sleep.Stop()
	defer sleep.Stop()

	for {
		now := time.Now()
		q.mu.Lock()
		var due []*Timer
		for len(q.timers) > 0 && !q.timers[0].deadline.After(now) {
			due = append(due, heap.Pop(&q.timers).(*Timer))
		}
		var next time.Time
		if len(q.timers) > 0 {
			next = q.timers[0].deadline
		}
		q.mu.Unlock()

		fireAll(due)

		if next.IsZero() {
			select {
			case <-q.signal:
			case <-q.done:
				return
			}
			continue
		}

		sleep.Reset(time.Until(next))
		select {
		case <-sleep.C:
		case <-q.signal:
			sleep.Stop()
		case <-q.done:
			return
		}
	}
}
