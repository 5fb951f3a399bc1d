// Package stats reduces raw benchmark results into summary statistics and
// compares summaries across targets.
package stats

import (
	"math"
	"sort"

	"github.com/kvbench/kvcompare/internal/bench"
)

// Summary is the reduced view of one run. Latency fields cover successful
// operations only; failed operations carry no latency.
type Summary struct {
	Ops         int64 // successful operations
	Errors      int64
	DurationSec float64
	Throughput  float64 // successful ops per second
	SuccessRate float64 // successes / assigned, 1 for an empty run

	MeanMS float64
	MinMS  float64
	MaxMS  float64
	P50MS  float64
	P95MS  float64
	P99MS  float64
}

// Reduce computes the summary for a run. A run with no successful samples
// yields zero latency fields and zero throughput.
func Reduce(r *bench.Result) Summary {
	s := Summary{
		Ops:         int64(len(r.Samples)),
		Errors:      r.Errors,
		DurationSec: r.Duration().Seconds(),
		SuccessRate: 1,
	}
	if r.Assigned > 0 {
		s.SuccessRate = float64(s.Ops) / float64(r.Assigned)
	}
	if len(r.Samples) == 0 {
		return s
	}
	if s.DurationSec > 0 {
		s.Throughput = float64(s.Ops) / s.DurationSec
	}

	latencies := r.Latencies()
	sort.Float64s(latencies)

	var sum float64
	for _, l := range latencies {
		sum += l
	}
	s.MeanMS = sum / float64(len(latencies))
	s.MinMS = latencies[0]
	s.MaxMS = latencies[len(latencies)-1]
	s.P50MS = Percentile(latencies, 50)
	s.P95MS = Percentile(latencies, 95)
	s.P99MS = Percentile(latencies, 99)
	return s
}

// Percentile picks the nearest-rank value from an ascending-sorted slice:
// index floor(k*p/100) clamped to the valid range, no interpolation. An empty
// slice yields 0.
func Percentile(sorted []float64, p float64) float64 {
	k := len(sorted)
	if k == 0 {
		return 0
	}
	idx := int(math.Floor(float64(k) * p / 100))
	if idx < 0 {
		idx = 0
	}
	if idx > k-1 {
		idx = k - 1
	}
	return sorted[idx]
}

// Comparison relates target B to target A.
type Comparison struct {
	// ThroughputRatio is B/A: above 1 means B sustained more ops/sec.
	ThroughputRatio float64
	// LatencyRatio is B.mean/A.mean: below 1 means B answered faster.
	LatencyRatio float64
}

// Compare relates b to a. A zero denominator yields a zero ratio rather than
// infinity.
func Compare(a, b Summary) Comparison {
	var c Comparison
	if a.Throughput > 0 {
		c.ThroughputRatio = b.Throughput / a.Throughput
	}
	if a.MeanMS > 0 {
		c.LatencyRatio = b.MeanMS / a.MeanMS
	}
	return c
}
