package observ

import (
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"fortio.org/safecast"
)

// Lateness collects how far past its deadline each timer task completed.
// Early completions are recorded as negative samples and counted separately,
// since a timer that fires before its deadline is a correctness bug.
type Lateness struct {
	mu      sync.Mutex
	samples []time.Duration
}

// NewLateness returns a recorder with room for n samples.
func NewLateness(n int) *Lateness {
	if n < 0 {
		n = 0
	}
	return &Lateness{samples: make([]time.Duration, 0, n)}
}

// Observe records completion at done for a task whose deadline was deadline.
func (l *Lateness) Observe(deadline, done time.Time) {
	l.Add(done.Sub(deadline))
}

// Add records one sample.
func (l *Lateness) Add(d time.Duration) {
	l.mu.Lock()
	l.samples = append(l.samples, d)
	l.mu.Unlock()
}

// Len reports the number of samples.
func (l *Lateness) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.samples)
}

// LatenessReport summarises the recorded samples.
type LatenessReport struct {
	Count int           `json:"count"`
	Early int           `json:"early"`
	Min   time.Duration `json:"min"`
	Mean  time.Duration `json:"mean"`
	P50   time.Duration `json:"p50"`
	P90   time.Duration `json:"p90"`
	P99   time.Duration `json:"p99"`
	Max   time.Duration `json:"max"`
}

// Report computes nearest-rank percentiles over a sorted copy of the samples.
func (l *Lateness) Report() LatenessReport {
	l.mu.Lock()
	sorted := slices.Clone(l.samples)
	l.mu.Unlock()

	if len(sorted) == 0 {
		return LatenessReport{}
	}
	slices.Sort(sorted)

	var (
		sum   time.Duration
		early int
	)
	for _, d := range sorted {
		sum += d
		if d < 0 {
			early++
		}
	}
	n := len(sorted)
	return LatenessReport{
		Count: n,
		Early: early,
		Min:   sorted[0],
		Mean:  sum / time.Duration(n),
		P50:   percentile(sorted, 50),
		P90:   percentile(sorted, 90),
		P99:   percentile(sorted, 99),
		Max:   sorted[n-1],
	}
}

// percentile returns the nearest-rank p-th percentile of sorted.
func percentile(sorted []time.Duration, p int) time.Duration {
	n := len(sorted)
	rank := (p*n + 99) / 100
	if rank < 1 {
		rank = 1
	}
	if rank > n {
		rank = n
	}
	return sorted[rank-1]
}

// Bucket is one bar of a lateness histogram.
type Bucket struct {
	Lower time.Duration
	Count int
}

// Histogram groups non-negative samples into buckets of the given width.
// Samples beyond the last bucket are folded into it.
func (l *Lateness) Histogram(width time.Duration, buckets int) ([]Bucket, error) {
	if width <= 0 || buckets <= 0 {
		return nil, fmt.Errorf("observ: invalid histogram shape %v x %d", width, buckets)
	}
	out := make([]Bucket, buckets)
	for i := range out {
		out[i].Lower = time.Duration(i) * width
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	for _, d := range l.samples {
		if d < 0 {
			d = 0
		}
		idx, err := safecast.Conv[int](int64(d / width))
		if err != nil || idx >= buckets {
			idx = buckets - 1
		}
		out[idx].Count++
	}
	return out, nil
}

// String renders the report on a single line.
func (r LatenessReport) String() string {
	if r.Count == 0 {
		return "lateness: no samples"
	}
	var b strings.Builder
	fmt.Fprintf(&b, "lateness: n=%d min=%v mean=%v p50=%v p90=%v p99=%v max=%v",
		r.Count, r.Min, r.Mean, r.P50, r.P90, r.P99, r.Max)
	if r.Early > 0 {
		fmt.Fprintf(&b, " early=%d", r.Early)
	}
	return b.String()
}
