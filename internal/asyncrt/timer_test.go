package asyncrt

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTimerQueueFiresInDeadlineOrder(t *testing.T) {
	q := NewTimerQueue()
	defer q.Close()

	var rec recorder[int]
	var wg sync.WaitGroup
	now := time.Now()
	for _, ms := range []int{30, 10, 20, 0} {
		wg.Add(1)
		_, err := q.Schedule(now.Add(time.Duration(ms)*time.Millisecond), WakerFunc(func() {
			rec.record(ms)
			wg.Done()
		}))
		require.NoError(t, err)
	}
	wg.Wait()
	assert.Equal(t, []int{0, 10, 20, 30}, rec.values())
	assert.Equal(t, 0, q.Len())
}

func TestTimerQueueCancel(t *testing.T) {
	q := NewTimerQueue()
	defer q.Close()

	fired := make(chan struct{}, 2)
	cancelled, err := q.Schedule(time.Now().Add(10*time.Millisecond), WakerFunc(func() { fired <- struct{}{} }))
	require.NoError(t, err)
	kept, err := q.Schedule(time.Now().Add(30*time.Millisecond), WakerFunc(func() { fired <- struct{}{} }))
	require.NoError(t, err)

	assert.True(t, cancelled.Cancel())
	assert.False(t, cancelled.Cancel())
	assert.False(t, cancelled.Active())
	assert.Equal(t, 1, q.Len())

	<-fired
	assert.True(t, kept.Fired())
	assert.False(t, cancelled.Fired())
	assert.False(t, kept.Cancel())
	select {
	case <-fired:
		t.Fatal("cancelled timer fired")
	case <-time.After(30 * time.Millisecond):
	}
}

func TestTimerQueueClosed(t *testing.T) {
	q := NewTimerQueue()
	require.NoError(t, q.Close())
	require.NoError(t, q.Close())

	_, err := q.Schedule(time.Now(), NoopWaker())
	assert.ErrorIs(t, err, ErrTimerSourceClosed)
}

func TestThreadTimers(t *testing.T) {
	s := &ThreadTimers{MaxThreads: 2}

	woke := make(chan struct{}, 1)
	tm, err := s.Schedule(time.Now().Add(5*time.Millisecond), WakerFunc(func() { woke <- struct{}{} }))
	require.NoError(t, err)
	long, err := s.Schedule(time.Now().Add(time.Hour), NoopWaker())
	require.NoError(t, err)

	_, err = s.Schedule(time.Now().Add(time.Hour), NoopWaker())
	require.ErrorIs(t, err, ErrTimerSpawn)

	<-woke
	assert.True(t, tm.Fired())
	assert.True(t, long.Cancel())
	require.Eventually(t, func() bool { return s.Live() == 0 }, time.Second, time.Millisecond)
}

func TestThreadTimersPastDeadlineStillWakes(t *testing.T) {
	s := &ThreadTimers{}
	woke := make(chan struct{})
	_, err := s.Schedule(time.Now().Add(-time.Second), WakerFunc(func() { close(woke) }))
	require.NoError(t, err)
	select {
	case <-woke:
	case <-time.After(time.Second):
		t.Fatal("timer with a past deadline never woke")
	}
}

func TestVirtualClock(t *testing.T) {
	start := time.Unix(100, 0)
	c := NewVirtualClock(start)
	assert.Equal(t, start, c.Now())

	var rec recorder[string]
	_, err := c.Schedule(start.Add(50*time.Millisecond), WakerFunc(func() { rec.record("50") }))
	require.NoError(t, err)
	_, err = c.Schedule(start.Add(10*time.Millisecond), WakerFunc(func() { rec.record("10") }))
	require.NoError(t, err)
	drop, err := c.Schedule(start.Add(20*time.Millisecond), WakerFunc(func() { rec.record("20") }))
	require.NoError(t, err)
	require.True(t, drop.Cancel())
	assert.Equal(t, 2, c.Pending())

	assert.Equal(t, 0, c.Advance(5*time.Millisecond))
	assert.True(t, c.AdvanceToNext())
	assert.Equal(t, start.Add(10*time.Millisecond), c.Now())
	assert.Equal(t, 1, c.Advance(time.Second))
	assert.False(t, c.AdvanceToNext())

	assert.Equal(t, []string{"10", "50"}, rec.values())
	assert.Equal(t, start.Add(time.Second+10*time.Millisecond), c.Now())

	// time never moves backwards
	assert.Equal(t, 0, c.AdvanceTo(start))
	assert.Equal(t, start.Add(time.Second+10*time.Millisecond), c.Now())
}

func TestParseTimerMode(t *testing.T) {
	for in, want := range map[string]TimerMode{
		"":        TimerModeQueue,
		"queue":   TimerModeQueue,
		"thread":  TimerModeThreads,
		"Virtual": TimerModeVirtual,
	} {
		got, err := ParseTimerMode(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}
	_, err := ParseTimerMode("wheel")
	assert.Error(t, err)
}
