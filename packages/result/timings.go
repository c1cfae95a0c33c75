package result

import (
	"sort"
	"time"

	"github.com/HdrHistogram/hdrhistogram-go"
)

const maxTrackedDuration = time.Hour

type timing struct {
	id      string
	elapsed time.Duration
}

// timings keeps per-test durations and a microsecond histogram of them.
type timings struct {
	hist    *hdrhistogram.Histogram
	samples []timing
}

func newTimings() *timings {
	return &timings{
		hist: hdrhistogram.New(1, maxTrackedDuration.Microseconds(), 3),
	}
}

func (t *timings) record(id string, d time.Duration) {
	t.samples = append(t.samples, timing{id: id, elapsed: d})
	us := d.Microseconds()
	if us < 1 {
		us = 1
	}
	if us > maxTrackedDuration.Microseconds() {
		us = maxTrackedDuration.Microseconds()
	}
	_ = t.hist.RecordValue(us)
}

// slowest returns up to n samples, longest first.
func (t *timings) slowest(n int) []timing {
	sorted := append([]timing(nil), t.samples...)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].elapsed > sorted[j].elapsed
	})
	if len(sorted) > n {
		sorted = sorted[:n]
	}
	return sorted
}

func (t *timings) percentiles() (p50, p95, p99 time.Duration) {
	at := func(q float64) time.Duration {
		return time.Duration(t.hist.ValueAtQuantile(q)) * time.Microsecond
	}
	return at(50), at(95), at(99)
}

// Percentile returns the duration below which q percent of the recorded
// tests finished.
func (a *Aggregator) Percentile(q float64) time.Duration {
	return time.Duration(a.timings.hist.ValueAtQuantile(q)) * time.Microsecond
}
