package asyncrt

import (
	"context"
	"strconv"
	"time"

	"github.com/joeycumines/go-catrate"

	"wakeloop/internal/trace"
)

// StallReport describes a task that has been suspended for too long.
type StallReport struct {
	ID           TaskID
	Name         string
	SuspendedFor time.Duration
	Polls        uint64
	// Registered is false when the task suspended without taking its
	// waker, i.e. nothing can ever wake it.
	Registered bool
}

// WatchdogConfig configures a Watchdog.
type WatchdogConfig struct {
	// Interval between scans by Run. Defaults to Threshold/2.
	Interval time.Duration
	// Threshold is how long a task may wait for a wake before it is
	// reported. Defaults to one second.
	Threshold time.Duration
	// IncludeRegistered also reports tasks that did hand out their waker,
	// e.g. a long sleep. By default only tasks nothing can wake are reported.
	IncludeRegistered bool
	// Rates limits reports per task, as catrate rates. Defaults to one
	// report per task per minute.
	Rates map[time.Duration]int
	// OnStall is called for every report that passes the rate limit.
	OnStall func(StallReport)
}

// Watchdog reports tasks that stopped making progress. It never wakes or
// aborts anything.
type Watchdog struct {
	exec    *Executor
	cfg     WatchdogConfig
	limiter *catrate.Limiter
}

// NewWatchdog returns a watchdog over e.
func NewWatchdog(e *Executor, cfg WatchdogConfig) *Watchdog {
	if cfg.Threshold <= 0 {
		cfg.Threshold = time.Second
	}
	if cfg.Interval <= 0 {
		cfg.Interval = cfg.Threshold / 2
	}
	if len(cfg.Rates) == 0 {
		cfg.Rates = map[time.Duration]int{time.Minute: 1}
	}
	return &Watchdog{
		exec:    e,
		cfg:     cfg,
		limiter: catrate.NewLimiter(cfg.Rates),
	}
}

// Stalled lists the tasks currently past the threshold.
func (w *Watchdog) Stalled() []StallReport {
	var reports []StallReport
	for _, info := range w.exec.Tasks() {
		if info.Status != TaskWaiting || info.SuspendedFor < w.cfg.Threshold {
			continue
		}
		if info.Registered && !w.cfg.IncludeRegistered {
			continue
		}
		reports = append(reports, StallReport{
			ID:           info.ID,
			Name:         info.Name,
			SuspendedFor: info.SuspendedFor,
			Polls:        info.Polls,
			Registered:   info.Registered,
		})
	}
	return reports
}

// Check scans once and reports what it finds. It returns every stalled
// task, including those whose report was rate limited.
func (w *Watchdog) Check() []StallReport {
	reports := w.Stalled()
	for _, r := range reports {
		if _, ok := w.limiter.Allow(r.ID); !ok {
			continue
		}
		w.exec.log.Warning().
			Uint64("task", uint64(r.ID)).
			Str("name", r.Name).
			Dur("suspended", r.SuspendedFor).
			Uint64("polls", r.Polls).
			Bool("registered", r.Registered).
			Log("asyncrt: task stalled")
		trace.Point(w.exec.tracer, trace.ScopeExecutor, "stall", uint64(r.ID), r.Name, map[string]string{
			"suspended":  r.SuspendedFor.String(),
			"registered": strconv.FormatBool(r.Registered),
		})
		if w.cfg.OnStall != nil {
			w.cfg.OnStall(r)
		}
	}
	return reports
}

// Run checks every Interval until ctx ends.
func (w *Watchdog) Run(ctx context.Context) error {
	ticker := time.NewTicker(w.cfg.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			w.Check()
		}
	}
}
