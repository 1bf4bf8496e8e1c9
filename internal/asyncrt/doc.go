// Package asyncrt is a cooperative task scheduler built on explicitly
// polled futures.
//
// A Future is advanced by Poll until it completes or suspends. A suspending
// future hands a clone of its task's Waker to whatever will make progress
// possible (a timer, a goroutine doing blocking work, another task) and
// returns Pending. Invoking the Waker re-admits the task to the executor's
// FIFO ready queue, once per suspension no matter how many clones fire.
//
//	e := asyncrt.NewExecutor(asyncrt.Config{})
//	defer e.Close()
//
//	a := asyncrt.Spawn(e, asyncrt.After(50*time.Millisecond, "a"))
//	b := asyncrt.Spawn(e, asyncrt.After(10*time.Millisecond, "b"))
//	outs, err := asyncrt.BlockOn(ctx, e, asyncrt.JoinAll(a, b))
//
// Timers come from a TimerSource: a shared heap-ordered queue (the
// default), one goroutine per timer, or a VirtualClock for deterministic
// tests. The executor itself holds no global state.
package asyncrt
