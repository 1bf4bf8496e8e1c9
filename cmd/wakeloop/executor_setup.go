package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"wakeloop/internal/asyncrt"
	"wakeloop/internal/trace"
)

type ctxKey struct{}

func withSession(ctx context.Context, s *session) context.Context {
	return context.WithValue(ctx, ctxKey{}, s)
}

func sessionFrom(ctx context.Context) *session {
	if s, ok := ctx.Value(ctxKey{}).(*session); ok {
		return s
	}
	return nil
}

type executorSetup struct {
	exec           *asyncrt.Executor
	mode           asyncrt.TimerMode
	stallThreshold time.Duration
}

// newExecutor builds an executor from the persistent executor flags. The
// tracer comes from the command context, where setupTracing left it.
func newExecutor(cmd *cobra.Command, s *session) (*executorSetup, error) {
	flags := cmd.Flags()

	timersStr, err := flags.GetString("timers")
	if err != nil {
		return nil, err
	}
	mode, err := asyncrt.ParseTimerMode(timersStr)
	if err != nil {
		return nil, fmt.Errorf("invalid --timers value: %w", err)
	}
	maxThreads, err := flags.GetInt("max-timer-threads")
	if err != nil {
		return nil, err
	}
	if maxThreads < 0 {
		return nil, fmt.Errorf("--max-timer-threads must not be negative, got %d", maxThreads)
	}
	fuzz, err := flags.GetBool("fuzz")
	if err != nil {
		return nil, err
	}
	seed, err := flags.GetUint64("seed")
	if err != nil {
		return nil, err
	}
	idle, err := flags.GetDuration("idle-timeout")
	if err != nil {
		return nil, err
	}
	stall, err := flags.GetDuration("stall-threshold")
	if err != nil {
		return nil, err
	}

	exec := asyncrt.NewExecutor(asyncrt.Config{
		TimerMode:       mode,
		MaxTimerThreads: maxThreads,
		Fuzz:            fuzz,
		Seed:            seed,
		IdleTimeout:     idle,
		Logger:          s.logger,
		Tracer:          trace.FromContext(cmd.Context()),
	})
	stats := func() string {
		st := exec.Stats()
		return fmt.Sprintf("live=%d ready=%d completed=%d", st.Live, st.Ready, st.Completed)
	}
	s.stats.Store(&stats)
	return &executorSetup{exec: exec, mode: mode, stallThreshold: stall}, nil
}

// startWatchdog runs a stall watchdog until the returned stop is called.
// It is a no-op when no threshold was configured.
func (x *executorSetup) startWatchdog(ctx context.Context, s *session) (stop func()) {
	if x.stallThreshold <= 0 {
		return func() {}
	}
	ctx, cancel := context.WithCancel(ctx)
	wd := asyncrt.NewWatchdog(x.exec, asyncrt.WatchdogConfig{
		Threshold:         x.stallThreshold,
		IncludeRegistered: true,
		OnStall: func(r asyncrt.StallReport) {
			fmt.Fprintf(s.errOut, "stall: task %d %q suspended %v (registered=%t)\n",
				r.ID, r.Name, r.SuspendedFor.Round(time.Millisecond), r.Registered)
		},
	})
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = wd.Run(ctx)
	}()
	return func() {
		cancel()
		<-done
	}
}
