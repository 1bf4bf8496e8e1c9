package asyncrt

import (
	"runtime/debug"
	"sync/atomic"
)

// Blocking runs fn on its own goroutine, started by the first poll, and
// completes with its result. The goroutine wakes the task when fn returns,
// which makes it the bridge for work that can only block, like file I/O.
// fn is not interrupted if the task is abandoned; its result is dropped.
func Blocking[T any](fn func() (T, error)) Future[T] {
	return &blockingFuture[T]{fn: fn}
}

type blockingFuture[T any] struct {
	fn      func() (T, error)
	started bool
	done    atomic.Bool
	value   T
	err     error
}

func (b *blockingFuture[T]) Poll(cx *Context) Poll[T] {
	if !b.started {
		b.started = true
		w := cx.Waker().Clone()
		go func() {
			defer w.Wake()
			defer func() {
				if r := recover(); r != nil {
					b.err = &PanicError{Value: r, Stack: debug.Stack()}
				}
				b.done.Store(true)
			}()
			b.value, b.err = b.fn()
		}()
		return Pending[T]()
	}
	if !b.done.Load() {
		cx.Waker()
		return Pending[T]()
	}
	if b.err != nil {
		return Fail[T](b.err)
	}
	return Ready(b.value)
}
