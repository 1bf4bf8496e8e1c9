package asyncrt

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWakerClonesCollapseToOneAdmission(t *testing.T) {
	e := newTestExecutor(t, Config{})

	m := &manual[string]{}
	h := Spawn(e, m)
	require.Equal(t, 1, e.RunUntilIdle())
	require.Equal(t, TaskWaiting, h.Info().Status)

	clones := make([]Waker, 8)
	for i := range clones {
		clones[i] = m.waker.Clone()
		assert.True(t, clones[i].WillWake(m.waker))
	}

	var wg sync.WaitGroup
	for i, w := range clones {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for range i + 1 {
				w.Wake()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, e.Stats().Ready)
	assert.Equal(t, 1, e.RunUntilIdle())
	assert.Equal(t, TaskWaiting, h.Info().Status)

	info := h.Info()
	assert.Equal(t, uint64(2), info.Admissions)
	assert.Equal(t, uint64(2), info.Polls)
	assert.Equal(t, uint64(36), info.Wakes)

	m.release("done")
	assert.Equal(t, 1, e.RunUntilIdle())
	v, err := h.Wait(testContext(t))
	require.NoError(t, err)
	assert.Equal(t, "done", v)
}

func TestLateWakeIsNoop(t *testing.T) {
	e := newTestExecutor(t, Config{})

	var captured Waker
	h := Spawn(e, PollFunc[int](func(cx *Context) Poll[int] {
		captured = cx.Waker().Clone()
		return Ready(1)
	}))
	require.Equal(t, 1, e.RunUntilIdle())
	require.True(t, h.IsDone())

	for range 5 {
		captured.Wake()
	}
	assert.Equal(t, 0, e.Stats().Ready)
	assert.Equal(t, 0, e.RunUntilIdle())
	assert.Equal(t, uint64(1), h.Info().Polls)
	assert.Equal(t, TaskDone, h.Info().Status)
}

func TestWakeDuringPollRequeuesOnce(t *testing.T) {
	e := newTestExecutor(t, Config{})

	inPoll := make(chan Waker)
	proceed := make(chan struct{})
	polls := 0
	h := Spawn(e, PollFunc[int](func(cx *Context) Poll[int] {
		polls++
		if polls == 1 {
			inPoll <- cx.Waker()
			<-proceed
			return Pending[int]()
		}
		return Ready(polls)
	}))

	ran := make(chan int)
	go func() { ran <- e.RunUntilIdle() }()

	w := <-inPoll
	w.Wake()
	w.Wake()
	assert.Equal(t, TaskRunning, h.Info().Status)
	close(proceed)

	assert.Equal(t, 2, <-ran)
	v, err := h.Wait(testContext(t))
	require.NoError(t, err)
	assert.Equal(t, 2, v)
	assert.Equal(t, uint64(2), h.Info().Admissions)
}

func TestYieldNowRunsOthersFirst(t *testing.T) {
	e := newTestExecutor(t, Config{})

	var rec recorder[string]
	Spawn(e, Map(YieldNow(), func(struct{}) string { return rec.record("yielded") }))
	Spawn(e, Func(func() (string, error) { return rec.record("plain"), nil }))

	assert.Equal(t, 3, e.RunUntilIdle())
	assert.Equal(t, []string{"plain", "yielded"}, rec.values())
}

func TestWakerFuncAndNoop(t *testing.T) {
	n := 0
	w := WakerFunc(func() { n++ })
	w.Wake()
	w.WakeByRef()
	assert.Equal(t, 2, n)
	assert.False(t, w.IsNoop())
	assert.False(t, w.WillWake(w))

	var zero Waker
	assert.True(t, zero.IsNoop())
	zero.Wake()
	assert.True(t, NoopWaker().IsNoop())
	assert.Zero(t, zero.TaskID())
}

func TestParkOnWakeKey(t *testing.T) {
	e := newTestExecutor(t, Config{})
	key := UserKey(1, 2)

	waiting := 0
	future := func() Future[int] {
		parked := false
		return PollFunc[int](func(cx *Context) Poll[int] {
			if !parked {
				parked = true
				waiting++
				cx.Executor().ParkOn(key, cx.Waker())
				cx.Executor().ParkOn(key, cx.Waker())
				return Pending[int]()
			}
			return Ready(1)
		})
	}
	a := Spawn(e, future())
	b := Spawn(e, future())
	require.Equal(t, 2, e.RunUntilIdle())
	require.Equal(t, 2, waiting)

	assert.True(t, e.WakeKeyOne(key))
	assert.Equal(t, 1, e.RunUntilIdle())
	assert.True(t, a.IsDone())
	assert.False(t, b.IsDone())

	assert.Equal(t, 1, e.WakeKeyAll(key))
	assert.Equal(t, 0, e.WakeKeyAll(key))
	assert.False(t, e.WakeKeyOne(key))
	assert.Equal(t, 1, e.RunUntilIdle())
	assert.True(t, b.IsDone())
}

func TestTaskStatusNames(t *testing.T) {
	for s, want := range map[TaskStatus]string{
		TaskReady:      "ready",
		TaskRunning:    "running",
		TaskWaiting:    "waiting",
		TaskDone:       "done",
		TaskStatus(42): "unknown",
	} {
		assert.Equal(t, want, s.String())
	}
}
