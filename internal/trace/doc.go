// Package trace records what the scheduler does while it runs.
//
// Events are emitted for executor lifecycle, task spawn and completion,
// individual polls and wakeups. They help explain why a task did not make
// progress, or why it made progress later than expected.
//
// # Usage
//
// Enable tracing via command-line flags:
//
//	wakeloop stress --trace=- --trace-level=task
//
// # Architecture
//
//   - Nop: zero-overhead tracer used when tracing is disabled
//   - StreamTracer: immediate write to output (file/stderr)
//   - RingTracer: circular buffer kept for post-mortem dumps
//   - MultiTracer: combines multiple tracers
//
// # Levels
//
//   - LevelOff: no tracing
//   - LevelError: executor-level events only (panics, stalls)
//   - LevelTask: task spawn and completion
//   - LevelPoll: every poll
//   - LevelDebug: everything, wakeups included
//
// # Context Propagation
//
//	ctx = trace.WithTracer(ctx, tracer)
//	t := trace.FromContext(ctx)
//
//	span := trace.Begin(t, trace.ScopePoll, "poll", parentID)
//	defer span.End("")
package trace
