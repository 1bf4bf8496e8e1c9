package main

import (
	"bytes"
	"context"
	"testing"

	"github.com/joeycumines/logiface"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"wakeloop/internal/trace"
)

func TestReadUIMode(t *testing.T) {
	for in, want := range map[string]uiMode{"": uiModeAuto, "AUTO": uiModeAuto, "on": uiModeOn, " off ": uiModeOff} {
		got, err := readUIMode(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}
	_, err := readUIMode("maybe")
	require.Error(t, err)

	var buf bytes.Buffer
	assert.False(t, shouldUseTUI(uiModeAuto, &buf))
	assert.True(t, shouldUseTUI(uiModeOn, &buf))
	assert.False(t, shouldUseTUI(uiModeOff, &buf))
}

func TestParseLogLevel(t *testing.T) {
	cases := map[string]logiface.Level{
		"off":   logiface.LevelDisabled,
		"error": logiface.LevelError,
		"":      logiface.LevelWarning,
		"info":  logiface.LevelInformational,
		"DEBUG": logiface.LevelDebug,
		"trace": logiface.LevelTrace,
	}
	for in, want := range cases {
		got, err := parseLogLevel(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}
	_, err := parseLogLevel("loud")
	require.Error(t, err)

	assert.Nil(t, newLogger(&bytes.Buffer{}, logiface.LevelDisabled))
}

func TestNewLoggerWritesJSON(t *testing.T) {
	var buf bytes.Buffer
	l := newLogger(&buf, logiface.LevelInformational)
	require.NotNil(t, l)
	l.Info().Str("k", "v").Log("hello")
	l.Debug().Log("dropped")
	assert.Contains(t, buf.String(), `"msg":"hello"`)
	assert.NotContains(t, buf.String(), "dropped")
}

func TestResolveTraceMode(t *testing.T) {
	mode, err := resolveTraceMode("", "-", "")
	require.NoError(t, err)
	assert.Equal(t, trace.ModeStream, mode)

	mode, err = resolveTraceMode("", "", "dump.msgpack")
	require.NoError(t, err)
	assert.Equal(t, trace.ModeRing, mode)

	mode, err = resolveTraceMode("", "out.ndjson", "dump.msgpack")
	require.NoError(t, err)
	assert.Equal(t, trace.ModeBoth, mode)

	mode, err = resolveTraceMode("ring", "-", "")
	require.NoError(t, err)
	assert.Equal(t, trace.ModeRing, mode)

	_, err = resolveTraceMode("tape", "", "")
	require.Error(t, err)
}

func TestDumpFormat(t *testing.T) {
	assert.Equal(t, trace.FormatMsgpack, dumpFormat("ring.msgpack"))
	assert.Equal(t, trace.FormatMsgpack, dumpFormat("ring.bin"))
	assert.Equal(t, trace.FormatText, dumpFormat("ring.log"))
	assert.Equal(t, trace.FormatNDJSON, dumpFormat("ring.jsonl"))
}

func TestResolveColor(t *testing.T) {
	var buf bytes.Buffer
	on, err := resolveColor("on", &buf)
	require.NoError(t, err)
	assert.True(t, on)
	auto, err := resolveColor("auto", &buf)
	require.NoError(t, err)
	assert.False(t, auto)
	_, err = resolveColor("rainbow", &buf)
	require.Error(t, err)
}

func TestRenderHistogram(t *testing.T) {
	out := renderHistogram(nil, 10)
	assert.Empty(t, out)
}

func TestNewExecutorTakesTracerFromContext(t *testing.T) {
	root := newRootCmd(&app{})
	require.NoError(t, root.ParseFlags([]string{"--timers", "virtual"}))

	ring := trace.NewRingTracer(16, trace.LevelTask)
	root.SetContext(trace.WithTracer(context.Background(), ring))
	x, err := newExecutor(root, &session{})
	require.NoError(t, err)
	t.Cleanup(func() { _ = x.exec.Close() })
	assert.Same(t, ring, x.exec.Tracer())

	root.SetContext(context.Background())
	x, err = newExecutor(root, &session{})
	require.NoError(t, err)
	t.Cleanup(func() { _ = x.exec.Close() })
	assert.Equal(t, trace.Nop, x.exec.Tracer())
}
