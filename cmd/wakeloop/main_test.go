package main

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"wakeloop/internal/trace"
)

func runCLI(t *testing.T, args ...string) (code int, stdout, stderr string) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	var out, errOut bytes.Buffer
	code = run(ctx, append([]string{"--color", "off"}, args...), &out, &errOut)
	return code, out.String(), errOut.String()
}

func TestVersionJSON(t *testing.T) {
	code, out, _ := runCLI(t, "version", "--format", "json", "--full")
	require.Equal(t, 0, code)

	var payload versionPayload
	require.NoError(t, json.Unmarshal([]byte(out), &payload))
	assert.Equal(t, "wakeloop", payload.Tool)
	assert.NotEmpty(t, payload.Version)
	assert.Equal(t, "unknown", payload.GitCommit)
}

func TestVersionRejectsFormat(t *testing.T) {
	code, _, errOut := runCLI(t, "version", "--format", "yaml")
	assert.Equal(t, 1, code)
	assert.Contains(t, errOut, "unsupported format")
}

func TestJoinCommand(t *testing.T) {
	for _, timers := range []string{"queue", "thread", "virtual"} {
		t.Run(timers, func(t *testing.T) {
			code, out, errOut := runCLI(t, "--timers", timers, "join", "--delay", "5ms", "--format", "json")
			require.Equal(t, 0, code, errOut)

			var reports []joinTaskReport
			require.NoError(t, json.Unmarshal([]byte(out), &reports))
			require.Len(t, reports, 2)
			assert.Equal(t, "A", reports[0].Value)
			assert.Equal(t, uint64(1), reports[0].Polls)
			assert.Equal(t, "B", reports[1].Value)
			assert.Equal(t, uint64(2), reports[1].Polls)
			assert.Equal(t, uint64(1), reports[1].Suspends)
		})
	}
}

func TestHelloCommand(t *testing.T) {
	code, out, errOut := runCLI(t, "hello", "--timer", "20ms", "--file-delay", "0s")
	require.Equal(t, 0, code, errOut)

	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.NotEmpty(t, lines)
	assert.Equal(t, "Hello before reading file!", lines[0])
	assert.Contains(t, out, "Going to sleep")
	assert.Contains(t, out, "Hello, it's time for future 1")

	first := strings.Index(out, `"Future 1 has completed"`)
	second := strings.Index(out, `"Hello, there from file 2"`)
	require.GreaterOrEqual(t, first, 0)
	require.GreaterOrEqual(t, second, 0)
	assert.Less(t, first, second, "join keeps submission order")
}

func TestHelloReadsFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "file2.txt")
	require.NoError(t, os.WriteFile(path, []byte("from disk"), 0o600))

	code, out, errOut := runCLI(t, "--quiet", "hello", "--timer", "1ms", "--file", path)
	require.Equal(t, 0, code, errOut)
	assert.Contains(t, out, `"from disk"`)
	assert.NotContains(t, out, "Going to sleep")
}

func TestHelloMissingFile(t *testing.T) {
	code, out, errOut := runCLI(t, "hello", "--timer", "1ms", "--file", filepath.Join(t.TempDir(), "nope"))
	assert.Equal(t, 1, code)
	assert.Contains(t, out, "error: failed to read")
	assert.Contains(t, errOut, "wakeloop:")
}

func TestStressCommand(t *testing.T) {
	cases := [][]string{
		{"--timers", "virtual", "stress", "--tasks", "200", "--max-delay", "50ms", "--buckets", "4"},
		{"--timers", "queue", "stress", "--tasks", "200", "--max-delay", "20ms", "--workers", "3"},
		{"--timers", "thread", "--fuzz", "--seed", "7", "stress", "--tasks", "100", "--max-delay", "20ms"},
	}
	for _, args := range cases {
		t.Run(strings.Join(args, " "), func(t *testing.T) {
			code, out, errOut := runCLI(t, append(args, "--ui", "off")...)
			require.Equal(t, 0, code, errOut)
			assert.Contains(t, out, "ok: ")
			assert.Contains(t, out, "lateness: n=")
			assert.Contains(t, out, "re-admissions")
			assert.NotContains(t, out, "early=")
		})
	}
}

func TestStressRejectsBadFlags(t *testing.T) {
	for _, args := range [][]string{
		{"stress", "--tasks", "0"},
		{"stress", "--workers", "0"},
		{"stress", "--ui", "sometimes"},
		{"--timers", "sundial", "stress"},
		{"--log-level", "chatty", "stress"},
	} {
		code, _, _ := runCLI(t, args...)
		assert.Equal(t, 1, code, args)
	}
}

func TestStressTraceDump(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ring.msgpack")
	code, _, errOut := runCLI(t, "--quiet", "--timers", "virtual", "--trace-dump", path,
		"stress", "--tasks", "10", "--max-delay", "5ms", "--ui", "off")
	require.Equal(t, 0, code, errOut)

	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()
	events, err := trace.ReadDump(f)
	require.NoError(t, err)

	names := map[string]int{}
	for _, ev := range events {
		names[ev.Name]++
	}
	assert.Equal(t, 11, names["spawn"])
	assert.Equal(t, 11, names["complete"])
}

func TestTimingsGoToStderr(t *testing.T) {
	code, _, errOut := runCLI(t, "--timings", "--timers", "virtual", "join")
	require.Equal(t, 0, code)
	assert.Contains(t, errOut, "timings:")
	assert.Contains(t, errOut, "join")
}

func TestProfilingFlags(t *testing.T) {
	dir := t.TempDir()
	cpu := filepath.Join(dir, "cpu.pprof")
	mem := filepath.Join(dir, "mem.pprof")
	code, _, errOut := runCLI(t, "--cpuprofile", cpu, "--memprofile", mem, "--timers", "virtual", "join")
	require.Equal(t, 0, code, errOut)
	for _, p := range []string{cpu, mem} {
		_, err := os.Stat(p)
		assert.NoError(t, err, p)
	}
}
