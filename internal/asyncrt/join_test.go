package asyncrt

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJoinAllWaitsForEveryMember(t *testing.T) {
	e := newTestExecutor(t, Config{})

	m := &manual[string]{}
	a := Spawn(e, Value("A"))
	b := Spawn(e, m)
	join := Spawn(e, JoinAll(a, b))

	e.RunUntilIdle()
	assert.True(t, a.IsDone())
	assert.False(t, b.IsDone())
	assert.False(t, join.IsDone())
	joinPolls := join.Info().Polls

	m.release("B")
	e.RunUntilIdle()
	outs, err := join.Wait(testContext(t))
	require.NoError(t, err)
	assert.Equal(t, []string{"A", "B"}, Values(outs))

	// one suspend/wake cycle each for B and the join
	assert.Equal(t, uint64(2), b.Info().Polls)
	assert.Equal(t, joinPolls+1, join.Info().Polls)
}

func TestJoinAllOrderIsSubmissionOrder(t *testing.T) {
	e := newTestExecutor(t, Config{TimerMode: TimerModeVirtual})

	var handles []*JoinHandle[int]
	for i, ms := range []int{40, 10, 30, 0, 20} {
		handles = append(handles, Spawn(e, After(time.Duration(ms)*time.Millisecond, i)))
	}
	outs, err := BlockOn(testContext(t), e, JoinAll(handles...))
	require.NoError(t, err)
	assert.Equal(t, []int{0, 1, 2, 3, 4}, Values(outs))
}

func TestJoinAllEmpty(t *testing.T) {
	e := newTestExecutor(t, Config{})
	outs, err := BlockOn(testContext(t), e, JoinAll[int]())
	require.NoError(t, err)
	assert.Empty(t, outs)
}

func TestJoinHandleAcrossExecutors(t *testing.T) {
	producer := newTestExecutor(t, Config{})
	consumer := newTestExecutor(t, Config{})

	m := &manual[int]{}
	h := Spawn(producer, m)
	producer.RunUntilIdle()

	waiter := Spawn(consumer, Map(h, func(v int) int { return v * 2 }))
	consumer.RunUntilIdle()
	assert.False(t, waiter.IsDone())

	m.release(21)
	producer.RunUntilIdle()
	consumer.RunUntilIdle()
	v, err := waiter.Wait(testContext(t))
	require.NoError(t, err)
	assert.Equal(t, 42, v)
}

func TestGroupJoin(t *testing.T) {
	e := newTestExecutor(t, Config{TimerMode: TimerModeVirtual})

	g := NewGroup[string](e)
	g.Submit(After(30*time.Millisecond, "timer"), WithName("timer"))
	g.Submit(Value("file"), WithName("file"))
	assert.Equal(t, 2, g.Len())

	outs, err := BlockOn(testContext(t), e, g.Join())
	require.NoError(t, err)
	assert.Equal(t, []string{"timer", "file"}, Values(outs))
	assert.NoError(t, Errors(outs))

	waited, err := g.Wait(testContext(t))
	require.NoError(t, err)
	assert.Equal(t, outs, waited)
	assert.False(t, g.Failed())
}

func TestGroupFailFast(t *testing.T) {
	e := newTestExecutor(t, Config{TimerMode: TimerModeVirtual})
	boom := errors.New("boom")

	g := NewGroup[int](e, WithFailFast())
	slow := g.Submit(After(time.Hour, 1))
	g.Submit(Func(func() (int, error) { return 0, boom }))

	outs, err := BlockOn(testContext(t), e, g.Join())
	require.NoError(t, err)
	assert.ErrorIs(t, outs[0].Err, ErrAborted)
	assert.ErrorIs(t, outs[1].Err, boom)
	assert.True(t, g.Failed())
	assert.True(t, slow.IsDone())

	// late members of a failed group are aborted on arrival
	late := g.Submit(Value(3))
	_, err = late.Wait(testContext(t))
	assert.ErrorIs(t, err, ErrAborted)
	assert.Equal(t, 0, g.AbortAll())
}

func TestGroupWithoutFailFastKeepsRunning(t *testing.T) {
	e := newTestExecutor(t, Config{TimerMode: TimerModeVirtual})

	g := NewGroup[any](e)
	g.Submit(Erase(Func(func() (int, error) { return 0, errors.New("bad") })))
	g.Submit(Erase(After(time.Millisecond, "still here")))

	outs, err := BlockOn(testContext(t), e, g.Join())
	require.NoError(t, err)
	assert.Error(t, outs[0].Err)
	assert.Equal(t, "still here", outs[1].Value)
}
