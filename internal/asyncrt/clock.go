package asyncrt

import (
	"container/heap"
	"fmt"
	"strings"
	"sync"
	"time"
)

// TimerMode selects the timer source an executor builds for itself.
type TimerMode uint8

const (
	// TimerModeQueue serves every timer from one shared goroutine.
	TimerModeQueue TimerMode = iota
	// TimerModeThreads starts one goroutine per timer.
	TimerModeThreads
	// TimerModeVirtual uses a VirtualClock that the executor advances
	// whenever it would otherwise go idle.
	TimerModeVirtual
)

func (m TimerMode) String() string {
	switch m {
	case TimerModeQueue:
		return "queue"
	case TimerModeThreads:
		return "thread"
	case TimerModeVirtual:
		return "virtual"
	default:
		return "unknown"
	}
}

// ParseTimerMode converts a string to TimerMode.
func ParseTimerMode(s string) (TimerMode, error) {
	switch strings.ToLower(s) {
	case "queue", "":
		return TimerModeQueue, nil
	case "thread", "threads":
		return TimerModeThreads, nil
	case "virtual":
		return TimerModeVirtual, nil
	default:
		return TimerModeQueue, fmt.Errorf("invalid timer mode: %q (expected: queue|thread|virtual)", s)
	}
}

// Clock supplies the current time to futures.
type Clock interface {
	Now() time.Time
}

// RealClock reads the system monotonic clock.
type RealClock struct{}

// Now returns time.Now().
func (RealClock) Now() time.Time { return time.Now() }

// VirtualClock is a Clock and TimerSource whose time only moves when told
// to. Timers fire, in deadline order, as the clock passes their deadlines.
type VirtualClock struct {
	mu     sync.Mutex
	now    time.Time
	timers timerHeap
	nextID TimerID
}

// NewVirtualClock returns a clock reading start. A zero start means the
// Unix epoch.
func NewVirtualClock(start time.Time) *VirtualClock {
	if start.IsZero() {
		start = time.Unix(0, 0)
	}
	return &VirtualClock{now: start}
}

// Now returns the virtual time.
func (c *VirtualClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Schedule registers a timer; it fires when the clock reaches deadline.
func (c *VirtualClock) Schedule(deadline time.Time, w Waker) (*Timer, error) {
	c.mu.Lock()
	c.nextID++
	tm := newTimer(c.nextID, deadline, w)
	tm.stop = func() { c.remove(tm) }
	heap.Push(&c.timers, tm)
	c.mu.Unlock()
	return tm, nil
}

func (c *VirtualClock) remove(tm *Timer) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if tm.index >= 0 && tm.index < len(c.timers) && c.timers[tm.index] == tm {
		heap.Remove(&c.timers, tm.index)
	}
}

// Pending returns the number of scheduled timers that have not fired.
func (c *VirtualClock) Pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.timers)
}

// Advance moves the clock forward by d and fires due timers. It returns the
// number of timers fired.
func (c *VirtualClock) Advance(d time.Duration) int {
	if d < 0 {
		d = 0
	}
	return c.AdvanceTo(c.Now().Add(d))
}

// AdvanceTo moves the clock to t, if t is later, and fires due timers.
func (c *VirtualClock) AdvanceTo(t time.Time) int {
	c.mu.Lock()
	if t.After(c.now) {
		c.now = t
	}
	due := c.popDueLocked()
	c.mu.Unlock()
	return fireAll(due)
}

// AdvanceToNext jumps to the earliest pending deadline and fires every
// timer due at that point. It reports false when no timer is pending.
func (c *VirtualClock) AdvanceToNext() bool {
	c.mu.Lock()
	if len(c.timers) == 0 {
		c.mu.Unlock()
		return false
	}
	if next := c.timers[0].deadline; next.After(c.now) {
		c.now = next
	}
	due := c.popDueLocked()
	c.mu.Unlock()
	fireAll(due)
	return true
}

func (c *VirtualClock) popDueLocked() []*Timer {
	var due []*Timer
	for len(c.timers) > 0 && !c.timers[0].deadline.After(c.now) {
		due = append(due, heap.Pop(&c.timers).(*Timer))
	}
	return due
}

func fireAll(timers []*Timer) int {
	n := 0
	for _, tm := range timers {
		if tm.fire() {
			n++
		}
	}
	return n
}
