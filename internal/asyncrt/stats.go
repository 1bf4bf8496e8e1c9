package asyncrt

import (
	"sort"
	"sync/atomic"
	"time"
)

type counters struct {
	spawned      atomic.Uint64
	polls        atomic.Uint64
	wakes        atomic.Uint64
	readmissions atomic.Uint64
	completed    atomic.Uint64
	failed       atomic.Uint64
	aborted      atomic.Uint64
}

// Stats is a snapshot of executor counters.
type Stats struct {
	Spawned      uint64
	Polls        uint64
	Wakes        uint64 // wake handle invocations, including no-ops
	Readmissions uint64 // wakes that put a suspended task back in the queue
	Completed    uint64
	Failed       uint64 // completed with an error from the task itself
	Aborted      uint64 // completed by Abort or Close
	Live         int
	Ready        int
	Runners      int
}

// Stats returns a snapshot of the executor counters.
func (e *Executor) Stats() Stats {
	if e == nil {
		return Stats{}
	}
	e.mu.Lock()
	live, ready, runners := len(e.tasks), len(e.ready), e.runners
	e.mu.Unlock()
	return Stats{
		Spawned:      e.stats.spawned.Load(),
		Polls:        e.stats.polls.Load(),
		Wakes:        e.stats.wakes.Load(),
		Readmissions: e.stats.readmissions.Load(),
		Completed:    e.stats.completed.Load(),
		Failed:       e.stats.failed.Load(),
		Aborted:      e.stats.aborted.Load(),
		Live:         live,
		Ready:        ready,
		Runners:      runners,
	}
}

// TaskInfo describes one task.
type TaskInfo struct {
	ID     TaskID
	Name   string
	Status TaskStatus
	// Polls counts calls to Poll; Admissions counts entries into the ready
	// queue, the spawn included. Every admission is followed by exactly one
	// poll unless the task is aborted first.
	Polls      uint64
	Admissions uint64
	Suspends   uint64
	Wakes      uint64
	// SuspendedFor is how long the task has been waiting for a wake; zero
	// unless Status is TaskWaiting.
	SuspendedFor time.Duration
	// Registered reports whether the last pending poll took the waker.
	Registered bool
	Age        time.Duration
}

func (t *task) info(now time.Time) TaskInfo {
	info := TaskInfo{
		ID:         t.id,
		Name:       t.name,
		Status:     t.status(),
		Polls:      t.polls.Load(),
		Admissions: t.admissions.Load(),
		Suspends:   t.suspends.Load(),
		Wakes:      t.wakes.Load(),
		Registered: t.registered.Load(),
		Age:        now.Sub(t.spawnedAt),
	}
	if at := t.suspendedAt.Load(); at != 0 && info.Status == TaskWaiting {
		info.SuspendedFor = now.Sub(time.Unix(0, at))
	}
	return info
}

// Tasks returns information on every live task, ordered by ID.
func (e *Executor) Tasks() []TaskInfo {
	if e == nil {
		return nil
	}
	e.mu.Lock()
	live := make([]*task, 0, len(e.tasks))
	for _, t := range e.tasks {
		live = append(live, t)
	}
	e.mu.Unlock()

	now := time.Now()
	infos := make([]TaskInfo, 0, len(live))
	for _, t := range live {
		infos = append(infos, t.info(now))
	}
	sort.Slice(infos, func(i, j int) bool { return infos[i].ID < infos[j].ID })
	return infos
}
