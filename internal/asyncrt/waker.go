package asyncrt

// Waker is the wake handle of one task. It is a small value: copies and
// clones all refer to the same task, may be invoked from any goroutine any
// number of times, and collapse into a single ready queue entry per
// suspension. Invoking a Waker after its task completed does nothing.
//
// The zero Waker is valid and does nothing.
type Waker struct {
	t  *task
	fn func()
}

// NoopWaker returns a Waker that does nothing.
func NoopWaker() Waker {
	return Waker{}
}

// WakerFunc returns a Waker that calls fn on every wake. It carries none of
// the deduplication of task wakers.
func WakerFunc(fn func()) Waker {
	return Waker{fn: fn}
}

// Wake tells the executor the task may make progress.
func (w Waker) Wake() {
	switch {
	case w.t != nil:
		w.t.wake()
	case w.fn != nil:
		w.fn()
	}
}

// WakeByRef is Wake.
func (w Waker) WakeByRef() {
	w.Wake()
}

// Clone returns a Waker for the same task.
func (w Waker) Clone() Waker {
	return w
}

// WillWake reports whether w and other wake the same task.
func (w Waker) WillWake(other Waker) bool {
	return w.t != nil && w.t == other.t
}

// IsNoop reports whether w wakes nothing.
func (w Waker) IsNoop() bool {
	return w.t == nil && w.fn == nil
}

// TaskID returns the ID of the task w wakes, or 0.
func (w Waker) TaskID() TaskID {
	if w.t == nil {
		return 0
	}
	return w.t.id
}

// WakerKind identifies a wait queue category.
type WakerKind uint8

const (
	// WakerInvalid indicates an invalid waker key.
	WakerInvalid WakerKind = iota
	// WakerJoin indicates tasks waiting for another task to complete.
	WakerJoin
	// WakerUser is free for wait queues defined outside the package.
	WakerUser
)

// WakerKey identifies a wait queue.
type WakerKey struct {
	Kind WakerKind
	A    uint64
	B    uint64
}

// IsValid reports whether the key is usable for waiting.
func (k WakerKey) IsValid() bool {
	return k.Kind != WakerInvalid
}

// JoinKey builds a join wait key for a target task.
func JoinKey(target TaskID) WakerKey {
	return WakerKey{Kind: WakerJoin, A: uint64(target)}
}

// UserKey builds a wait key in the user range.
func UserKey(a, b uint64) WakerKey {
	return WakerKey{Kind: WakerUser, A: a, B: b}
}

// ParkOn registers w to be woken by WakeKeyOne or WakeKeyAll on key.
// Registering the same task twice on one key is a no-op.
func (e *Executor) ParkOn(key WakerKey, w Waker) {
	if e == nil || !key.IsValid() || w.IsNoop() {
		return
	}
	e.mu.Lock()
	e.parkLocked(key, w)
	e.mu.Unlock()
}

func (e *Executor) parkLocked(key WakerKey, w Waker) {
	if e.waiters == nil {
		e.waiters = make(map[WakerKey][]Waker)
	}
	for _, existing := range e.waiters[key] {
		if existing.WillWake(w) {
			return
		}
	}
	e.waiters[key] = append(e.waiters[key], w)
}

// WakeKeyOne wakes the oldest waiter on key. It reports whether one existed.
func (e *Executor) WakeKeyOne(key WakerKey) bool {
	if e == nil {
		return false
	}
	e.mu.Lock()
	list := e.waiters[key]
	if len(list) == 0 {
		e.mu.Unlock()
		return false
	}
	w := list[0]
	if len(list) == 1 {
		delete(e.waiters, key)
	} else {
		e.waiters[key] = list[1:]
	}
	e.mu.Unlock()
	w.Wake()
	return true
}

// WakeKeyAll wakes every waiter on key and returns how many there were.
func (e *Executor) WakeKeyAll(key WakerKey) int {
	if e == nil {
		return 0
	}
	e.mu.Lock()
	list := e.takeWaitersLocked(key)
	e.mu.Unlock()
	for _, w := range list {
		w.Wake()
	}
	return len(list)
}

func (e *Executor) takeWaitersLocked(key WakerKey) []Waker {
	list := e.waiters[key]
	delete(e.waiters, key)
	return list
}

// parkUnlessDone registers w on the join queue of t. It returns false,
// without registering, when t already completed.
func (e *Executor) parkUnlessDone(t *task, w Waker) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if t.finished {
		return false
	}
	e.parkLocked(JoinKey(t.id), w)
	return true
}
