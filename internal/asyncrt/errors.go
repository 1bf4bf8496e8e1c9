package asyncrt

import (
	"context"
	"errors"
	"fmt"
	"time"
)

var (
	// ErrExecutorClosed is the outcome of tasks still pending when the
	// executor is closed, and of tasks spawned after Close.
	ErrExecutorClosed = errors.New("asyncrt: executor closed")
	// ErrAborted is the outcome of a task aborted through its handle.
	ErrAborted = errors.New("asyncrt: task aborted")
	// ErrTimerSpawn reports that a timer source could not start the
	// background work needed to deliver a wakeup.
	ErrTimerSpawn = errors.New("asyncrt: timer spawn failed")
	// ErrTimerSourceClosed is returned when scheduling on a closed timer source.
	ErrTimerSourceClosed = errors.New("asyncrt: timer source closed")
	// ErrNilFuture is the outcome of spawning a nil future.
	ErrNilFuture = errors.New("asyncrt: nil future")
)

// PanicError wraps a panic recovered while polling a task.
type PanicError struct {
	Value any
	Stack []byte
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("asyncrt: task panicked: %v", e.Value)
}

// Unwrap returns the panic value when it is an error.
func (e *PanicError) Unwrap() error {
	if err, ok := e.Value.(error); ok {
		return err
	}
	return nil
}

// TimeoutError is the outcome of a future wrapped by WithTimeout whose
// deadline passed before it completed.
type TimeoutError struct {
	After time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("asyncrt: timed out after %s", e.After)
}

// Unwrap makes errors.Is(err, context.DeadlineExceeded) hold.
func (e *TimeoutError) Unwrap() error {
	return context.DeadlineExceeded
}
