package trace

import (
	"bytes"
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLevelShouldEmit(t *testing.T) {
	assert.False(t, LevelOff.ShouldEmit(ScopeExecutor))
	assert.True(t, LevelError.ShouldEmit(ScopeExecutor))
	assert.False(t, LevelError.ShouldEmit(ScopeTask))
	assert.True(t, LevelTask.ShouldEmit(ScopeTask))
	assert.False(t, LevelTask.ShouldEmit(ScopePoll))
	assert.True(t, LevelPoll.ShouldEmit(ScopePoll))
	assert.False(t, LevelPoll.ShouldEmit(ScopeWake))
	assert.True(t, LevelDebug.ShouldEmit(ScopeWake))
}

func TestParseLevel(t *testing.T) {
	lvl, err := ParseLevel("POLL")
	require.NoError(t, err)
	assert.Equal(t, LevelPoll, lvl)

	_, err = ParseLevel("phase")
	require.Error(t, err)
}

func TestRingTracerWrapsInOrder(t *testing.T) {
	r := NewRingTracer(3, LevelDebug)
	for i := 1; i <= 5; i++ {
		Point(r, ScopeTask, "spawn", uint64(i), "", nil)
	}

	events := r.Snapshot()
	require.Len(t, events, 3)
	assert.Equal(t, 3, r.Len())
	for i, ev := range events {
		assert.Equal(t, uint64(i+3), ev.TaskID)
	}
	assert.Less(t, events[0].Seq, events[2].Seq)
}

func TestRingTracerFiltersByLevel(t *testing.T) {
	r := NewRingTracer(8, LevelTask)
	Point(r, ScopeTask, "spawn", 1, "", nil)
	Point(r, ScopeWake, "wake", 1, "", nil)
	span := BeginTask(r, ScopePoll, "poll", 0, 1)
	span.End("pending")

	events := r.Snapshot()
	require.Len(t, events, 1)
	assert.Equal(t, "spawn", events[0].Name)
}

func TestRingDumpMsgpack(t *testing.T) {
	r := NewRingTracer(16, LevelDebug)
	span := BeginTask(r, ScopePoll, "poll", 0, 7)
	span.WithExtra("outcome", "ready").End("done")
	Point(r, ScopeExecutor, "stall", 7, "suspended 2s", nil)

	var buf bytes.Buffer
	require.NoError(t, r.Dump(&buf, FormatMsgpack))

	events, err := ReadDump(&buf)
	require.NoError(t, err)
	require.Len(t, events, 3)
	assert.Equal(t, KindSpanBegin, events[0].Kind)
	assert.Equal(t, KindSpanEnd, events[1].Kind)
	assert.Equal(t, "ready", events[1].Extra["outcome"])
	assert.Equal(t, uint64(7), events[2].TaskID)
	assert.Equal(t, "stall", events[2].Name)
}

func TestStreamTracerText(t *testing.T) {
	var buf bytes.Buffer
	s := NewStreamTracer(&buf, LevelTask, FormatText)
	Point(s, ScopeTask, "complete", 3, "ok", map[string]string{"polls": "2", "admissions": "2"})

	line := buf.String()
	assert.Contains(t, line, "[task]")
	assert.Contains(t, line, "complete #3 (ok)")
	assert.Contains(t, line, "{admissions=2, polls=2}")
	require.NoError(t, s.Close())
}

func TestStreamTracerNDJSON(t *testing.T) {
	var buf bytes.Buffer
	s := NewStreamTracer(&buf, LevelDebug, FormatNDJSON)
	Point(s, ScopeWake, "wake", 9, "", nil)

	assert.True(t, strings.HasSuffix(buf.String(), "\n"))
	assert.Contains(t, buf.String(), `"scope":"wake"`)
	assert.Contains(t, buf.String(), `"task_id":9`)
}

func TestNewSelectsImplementation(t *testing.T) {
	tr, err := New(Config{Level: LevelOff})
	require.NoError(t, err)
	assert.False(t, tr.Enabled())

	var buf bytes.Buffer
	tr, err = New(Config{Level: LevelTask, Mode: ModeBoth, Output: &buf, RingSize: 8})
	require.NoError(t, err)
	require.NotNil(t, RingOf(tr))

	Point(tr, ScopeTask, "spawn", 1, "", nil)
	assert.Equal(t, 1, RingOf(tr).Len())
	assert.NotEmpty(t, buf.String())
}

func TestFormatForPath(t *testing.T) {
	assert.Equal(t, FormatNDJSON, FormatForPath("out.ndjson"))
	assert.Equal(t, FormatMsgpack, FormatForPath("crash.msgpack"))
	assert.Equal(t, FormatText, FormatForPath("trace.log"))
}

func TestHeartbeat(t *testing.T) {
	r := NewRingTracer(64, LevelError)
	h := StartHeartbeat(r, 5*time.Millisecond, func() string { return "live=1" })
	require.NotNil(t, h)

	require.Eventually(t, func() bool { return r.Len() >= 2 }, time.Second, 5*time.Millisecond)
	h.Stop()
	h.Stop()

	ev := r.Snapshot()[0]
	assert.Equal(t, KindHeartbeat, ev.Kind)
	assert.Contains(t, ev.Detail, "live=1")

	assert.Nil(t, StartHeartbeat(Nop, time.Millisecond, nil))
}

func TestContextPropagation(t *testing.T) {
	assert.Equal(t, Nop, FromContext(context.Background()))

	r := NewRingTracer(4, LevelDebug)
	ctx := WithTracer(context.Background(), r)
	assert.Same(t, r, FromContext(ctx))

	assert.Equal(t, Nop, FromContext(WithTracer(ctx, nil)))
}
