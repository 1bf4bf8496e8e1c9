package asyncrt

// YieldNow suspends the task once, waking it immediately, so other ready
// tasks run before it continues.
func YieldNow() Future[struct{}] {
	return &yieldNow{}
}

type yieldNow struct {
	yielded bool
}

func (y *yieldNow) Poll(cx *Context) Poll[struct{}] {
	if y.yielded {
		return Ready(struct{}{})
	}
	y.yielded = true
	cx.Waker().WakeByRef()
	return Pending[struct{}]()
}

// Value completes with v on the first poll.
func Value[T any](v T) Future[T] {
	return PollFunc[T](func(*Context) Poll[T] { return Ready(v) })
}

// Func completes with the result of fn, called on the first poll. fn runs
// on the executor goroutine and must not block.
func Func[T any](fn func() (T, error)) Future[T] {
	return PollFunc[T](func(*Context) Poll[T] {
		v, err := fn()
		if err != nil {
			return Fail[T](err)
		}
		return Ready(v)
	})
}

// Map completes with fn applied to the value of f. Errors pass through.
func Map[T, U any](f Future[T], fn func(T) U) Future[U] {
	return &mapFuture[T, U]{inner: f, fn: fn}
}

type mapFuture[T, U any] struct {
	inner Future[T]
	fn    func(T) U
}

func (m *mapFuture[T, U]) Poll(cx *Context) Poll[U] {
	p := m.inner.Poll(cx)
	switch {
	case p.Kind != PollDone:
		return Pending[U]()
	case p.Err != nil:
		return Fail[U](p.Err)
	default:
		return Ready(m.fn(p.Value))
	}
}

func (m *mapFuture[T, U]) Release() {
	if r, ok := m.inner.(Releaser); ok {
		r.Release()
	}
}

// Erase converts f to a Future[any], for mixing result types in one group.
func Erase[T any](f Future[T]) Future[any] {
	return Map(f, func(v T) any { return v })
}
