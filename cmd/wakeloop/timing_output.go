package main

import (
	"fmt"
	"io"
	"time"

	"wakeloop/internal/asyncrt"
	"wakeloop/internal/observ"
)

func printTimings(out io.Writer, timer *observ.Timer) {
	if out == nil || timer == nil {
		return
	}
	if len(timer.Report().Phases) == 0 {
		return
	}
	fmt.Fprint(out, timer.Summary())
}

func printExecutorStats(out io.Writer, st asyncrt.Stats) {
	fmt.Fprintf(out, "spawned %d, completed %d (failed %d, aborted %d)\n",
		st.Spawned, st.Completed, st.Failed, st.Aborted)
	fmt.Fprintf(out, "polls %d, wakes %d, re-admissions %d\n",
		st.Polls, st.Wakes, st.Readmissions)
}

func toMillis(d time.Duration) float64 {
	return float64(d) / float64(time.Millisecond)
}
