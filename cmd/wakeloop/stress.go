package main

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"strings"
	"time"

	"fortio.org/safecast"
	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"wakeloop/internal/asyncrt"
	"wakeloop/internal/observ"
	"wakeloop/internal/testkit"
	"wakeloop/internal/ui"
)

func newStressCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "stress",
		Short: "Run many timer tasks with random deadlines and check the scheduler",
		Args:  cobra.NoArgs,
		RunE:  runStress,
	}
	cmd.Flags().Int("tasks", 1000, "number of timer tasks")
	cmd.Flags().Duration("max-delay", 200*time.Millisecond, "upper bound of the random deadlines")
	cmd.Flags().Int("workers", 1, "goroutines driving the executor")
	cmd.Flags().String("ui", "auto", "progress view (auto|on|off)")
	cmd.Flags().Int("buckets", 0, "print a lateness histogram with this many buckets (0 = off)")
	return cmd
}

type stressOptions struct {
	tasks    int
	maxDelay time.Duration
	workers  int
	buckets  int
	seed     int64
}

// stressTask sleeps until its deadline and reports how late it woke.
type stressTask struct {
	id       uint64
	name     string
	deadline time.Time
	delay    *asyncrt.Delay[struct{}]
	late     *observ.Lateness
	events   chan<- ui.TaskEvent
	waiting  bool
}

func (t *stressTask) Poll(cx *asyncrt.Context) asyncrt.Poll[time.Duration] {
	p := t.delay.Poll(cx)
	if !p.IsReady() {
		if !t.waiting {
			t.waiting = true
			t.emit(ui.StateWaiting, "")
		}
		return asyncrt.Pending[time.Duration]()
	}
	if p.Err != nil {
		t.emit(ui.StateFailed, p.Err.Error())
		return asyncrt.Fail[time.Duration](p.Err)
	}
	now := cx.Now()
	t.late.Observe(t.deadline, now)
	lateness := now.Sub(t.deadline)
	t.emit(ui.StateDone, "+"+lateness.Round(time.Microsecond).String())
	return asyncrt.Ready(lateness)
}

func (t *stressTask) Release() { t.delay.Release() }

func (t *stressTask) emit(state ui.TaskState, detail string) {
	if t.events == nil {
		return
	}
	t.events <- ui.TaskEvent{ID: t.id, Name: t.name, State: state, Detail: detail}
}

func readStressOptions(cmd *cobra.Command) (stressOptions, error) {
	flags := cmd.Flags()
	var opts stressOptions
	var err error
	if opts.tasks, err = flags.GetInt("tasks"); err != nil {
		return opts, err
	}
	if opts.tasks <= 0 {
		return opts, fmt.Errorf("--tasks must be positive, got %d", opts.tasks)
	}
	if opts.maxDelay, err = flags.GetDuration("max-delay"); err != nil {
		return opts, err
	}
	if opts.maxDelay < 0 {
		return opts, fmt.Errorf("--max-delay must not be negative, got %v", opts.maxDelay)
	}
	if opts.workers, err = flags.GetInt("workers"); err != nil {
		return opts, err
	}
	if opts.workers <= 0 {
		return opts, fmt.Errorf("--workers must be positive, got %d", opts.workers)
	}
	if opts.buckets, err = flags.GetInt("buckets"); err != nil {
		return opts, err
	}
	seed, err := flags.GetUint64("seed")
	if err != nil {
		return opts, err
	}
	if opts.seed, err = safecast.Conv[int64](seed); err != nil {
		return opts, fmt.Errorf("--seed out of range: %w", err)
	}
	return opts, nil
}

func runStress(cmd *cobra.Command, args []string) error {
	s := sessionFrom(cmd.Context())
	opts, err := readStressOptions(cmd)
	if err != nil {
		return err
	}
	uiValue, err := cmd.Flags().GetString("ui")
	if err != nil {
		return err
	}
	mode, err := readUIMode(uiValue)
	if err != nil {
		return err
	}

	x, err := newExecutor(cmd, s)
	if err != nil {
		return err
	}
	defer x.exec.Close()
	stopWatchdog := x.startWatchdog(cmd.Context(), s)
	defer stopWatchdog()

	late := observ.NewLateness(opts.tasks)
	var events chan ui.TaskEvent
	if shouldUseTUI(mode, cmd.OutOrStdout()) {
		// room for queued, waiting and finished events of every task
		events = make(chan ui.TaskEvent, 3*opts.tasks+1)
	}

	var (
		outs    []asyncrt.Outcome[time.Duration]
		handles []*asyncrt.JoinHandle[time.Duration]
	)
	started := time.Now()
	work := func() error {
		if events != nil {
			defer close(events)
		}
		var err error
		handles, err = spawnStress(s, x.exec, opts, late, events)
		if err != nil {
			return err
		}
		outs, err = driveStress(cmd.Context(), s, x.exec, opts.workers, handles)
		return err
	}
	if events != nil {
		err = runWithUI(cmd.OutOrStdout(), fmt.Sprintf("stress (%s timers)", x.mode), opts.tasks, events, work)
	} else {
		err = work()
	}
	if err != nil {
		return err
	}
	elapsed := time.Since(started)

	violations, verr := testkit.CheckAll(handles)
	printStressReport(s, opts, x, outs, late, elapsed, violations)
	return errors.Join(asyncrt.Errors(outs), verr)
}

func spawnStress(s *session, exec *asyncrt.Executor, opts stressOptions, late *observ.Lateness, events chan<- ui.TaskEvent) ([]*asyncrt.JoinHandle[time.Duration], error) {
	idx := s.timer.Begin("spawn")
	defer s.timer.End(idx, fmt.Sprintf("%d tasks", opts.tasks))

	rng := rand.New(rand.NewSource(opts.seed)) //nolint:gosec // reproducible workload
	start := exec.Now()
	handles := make([]*asyncrt.JoinHandle[time.Duration], opts.tasks)
	for i := range handles {
		delay := time.Duration(rng.Int63n(int64(opts.maxDelay) + 1))
		id, err := safecast.Conv[uint64](i)
		if err != nil {
			return nil, err
		}
		name := fmt.Sprintf("timer-%04d", i)
		deadline := start.Add(delay)
		t := &stressTask{
			id:       id,
			name:     name,
			deadline: deadline,
			delay:    asyncrt.SleepUntil(deadline),
			late:     late,
			events:   events,
		}
		t.emit(ui.StateQueued, "")
		handles[i] = asyncrt.Spawn(exec, t, asyncrt.WithName(name))
	}
	return handles, nil
}

func driveStress(ctx context.Context, s *session, exec *asyncrt.Executor, workers int, handles []*asyncrt.JoinHandle[time.Duration]) ([]asyncrt.Outcome[time.Duration], error) {
	idx := s.timer.Begin("drive")
	defer s.timer.End(idx, fmt.Sprintf("%d workers", workers))

	if workers == 1 {
		return asyncrt.BlockOn(ctx, exec, asyncrt.JoinAll(handles...), asyncrt.WithName("join"))
	}

	runCtx, cancel := context.WithCancel(ctx)
	done := make(chan error, 1)
	go func() { done <- exec.RunWorkers(runCtx, workers) }()
	outs, err := asyncrt.WaitAll(ctx, handles...)
	cancel()
	if werr := <-done; werr != nil && !errors.Is(werr, context.Canceled) {
		return outs, werr
	}
	return outs, err
}

func printStressReport(s *session, opts stressOptions, x *executorSetup, outs []asyncrt.Outcome[time.Duration], late *observ.Lateness, elapsed time.Duration, violations int) {
	ok := 0
	for _, o := range outs {
		if o.OK() {
			ok++
		}
	}
	status := color.GreenString("ok")
	if ok != opts.tasks || violations > 0 {
		status = color.RedString("FAILED")
	}
	s.printf("%s: %d/%d tasks completed in %.1f ms (%s timers, %d workers)\n",
		status, ok, opts.tasks, toMillis(elapsed), x.mode, opts.workers)
	s.printf("%s\n", late.Report())
	if opts.buckets > 0 {
		width := opts.maxDelay / time.Duration(opts.buckets)
		if width <= 0 {
			width = time.Millisecond
		}
		if buckets, err := late.Histogram(width, opts.buckets); err == nil {
			s.printf("%s", renderHistogram(buckets, 40))
		}
	}
	if violations > 0 {
		s.printf("%s\n", color.RedString("%d scheduler invariant violations", violations))
	}
	if !s.quiet {
		printExecutorStats(s.out, x.exec.Stats())
	}
}

func renderHistogram(buckets []observ.Bucket, width int) string {
	peak := 0
	for _, b := range buckets {
		peak = max(peak, b.Count)
	}
	var sb strings.Builder
	for _, b := range buckets {
		bar := 0
		if peak > 0 {
			bar = b.Count * width / peak
		}
		fmt.Fprintf(&sb, "  >=%-10v %6d %s\n", b.Lower, b.Count, strings.Repeat("#", bar))
	}
	return sb.String()
}
