package asyncrt

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"wakeloop/internal/trace"
)

// forgetful suspends without taking its waker, so nothing can resume it.
type forgetful struct{}

func (forgetful) Poll(*Context) Poll[int] { return Pending[int]() }

func TestWatchdogReportsUnwakeableTask(t *testing.T) {
	var logs syncBuffer
	ring := trace.NewRingTracer(32, trace.LevelError)
	e := newTestExecutor(t, Config{Logger: newTestLogger(&logs), Tracer: ring})

	stuck := Spawn(e, forgetful{}, WithName("stuck"))
	Spawn(e, &manual[int]{}, WithName("sleeper"))
	e.RunUntilIdle()

	var reported []StallReport
	w := NewWatchdog(e, WatchdogConfig{
		Threshold: 10 * time.Millisecond,
		OnStall:   func(r StallReport) { reported = append(reported, r) },
	})
	assert.Empty(t, w.Check())

	time.Sleep(20 * time.Millisecond)
	reports := w.Check()
	require.Len(t, reports, 1)
	assert.Equal(t, stuck.ID(), reports[0].ID)
	assert.Equal(t, "stuck", reports[0].Name)
	assert.False(t, reports[0].Registered)
	assert.GreaterOrEqual(t, reports[0].SuspendedFor, 10*time.Millisecond)
	require.Len(t, reported, 1)

	// still stalled, but the report is rate limited
	assert.Len(t, w.Check(), 1)
	assert.Len(t, reported, 1)

	assert.Contains(t, logs.String(), "task stalled")
	assert.Contains(t, logs.String(), "suspended without taking its waker")
	var stalls int
	for _, ev := range ring.Snapshot() {
		if ev.Name == "stall" {
			stalls++
		}
	}
	assert.Equal(t, 1, stalls)
}

func TestWatchdogIncludeRegistered(t *testing.T) {
	e := newTestExecutor(t, Config{})
	Spawn(e, &manual[int]{}, WithName("sleeper"))
	e.RunUntilIdle()

	w := NewWatchdog(e, WatchdogConfig{Threshold: time.Millisecond, IncludeRegistered: true})
	require.Eventually(t, func() bool { return len(w.Stalled()) == 1 }, time.Second, time.Millisecond)
	assert.True(t, w.Stalled()[0].Registered)
}

func TestWatchdogIgnoresWokenTask(t *testing.T) {
	e := newTestExecutor(t, Config{})
	m := &manual[int]{}
	Spawn(e, m)
	e.RunUntilIdle()

	w := NewWatchdog(e, WatchdogConfig{Threshold: time.Millisecond, IncludeRegistered: true})
	m.release(1)
	time.Sleep(5 * time.Millisecond)
	assert.Empty(t, w.Stalled())
}

func TestWatchdogRun(t *testing.T) {
	e := newTestExecutor(t, Config{})
	Spawn(e, forgetful{})
	e.RunUntilIdle()

	found := make(chan StallReport, 1)
	w := NewWatchdog(e, WatchdogConfig{
		Threshold: 5 * time.Millisecond,
		Interval:  2 * time.Millisecond,
		OnStall: func(r StallReport) {
			select {
			case found <- r:
			default:
			}
		},
	})
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error)
	go func() { done <- w.Run(ctx) }()

	select {
	case <-found:
	case <-time.After(5 * time.Second):
		t.Fatal("watchdog never reported")
	}
	cancel()
	assert.ErrorIs(t, <-done, context.Canceled)
}
