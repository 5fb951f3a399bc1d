package stats

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kvbench/kvcompare/internal/bench"
)

func resultWithLatencies(latencies []float64, errors int64, duration time.Duration) *bench.Result {
	start := time.Date(2026, 8, 24, 12, 0, 0, 0, time.UTC)
	r := &bench.Result{
		Errors:   errors,
		Assigned: int64(len(latencies)) + errors,
		Start:    start,
		End:      start.Add(duration),
	}
	for _, l := range latencies {
		r.Samples = append(r.Samples, bench.Sample{Op: bench.OpGet, LatencyMS: l})
	}
	return r
}

func TestReduce(t *testing.T) {
	r := resultWithLatencies([]float64{3, 1, 2, 5, 4}, 0, time.Second)
	s := Reduce(r)

	assert.Equal(t, int64(5), s.Ops)
	assert.Equal(t, 5.0, s.Throughput)
	assert.Equal(t, 3.0, s.MeanMS)
	assert.Equal(t, 1.0, s.MinMS)
	assert.Equal(t, 5.0, s.MaxMS)
	assert.Equal(t, 1.0, s.SuccessRate)
}

func TestReduceEmptyRun(t *testing.T) {
	r := resultWithLatencies(nil, 10, time.Second)
	s := Reduce(r)

	assert.Zero(t, s.Ops)
	assert.Equal(t, int64(10), s.Errors)
	assert.Zero(t, s.Throughput)
	assert.Zero(t, s.MeanMS)
	assert.Zero(t, s.SuccessRate)
}

func TestReduceSuccessRate(t *testing.T) {
	r := resultWithLatencies([]float64{1, 1, 1}, 1, time.Second)
	s := Reduce(r)
	assert.InDelta(t, 0.75, s.SuccessRate, 1e-9)
}

func TestReduceZeroDuration(t *testing.T) {
	r := resultWithLatencies([]float64{1, 2}, 0, 0)
	s := Reduce(r)
	assert.Zero(t, s.Throughput)
	assert.Equal(t, 1.5, s.MeanMS)
}

func TestPercentileNearestRank(t *testing.T) {
	// 10 sorted values; index = floor(10*p/100).
	sorted := []float64{1, 2, 3, 4, 5, 6, 7, 8, 9, 10}

	assert.Equal(t, 6.0, Percentile(sorted, 50)) // idx 5
	assert.Equal(t, 10.0, Percentile(sorted, 95))
	assert.Equal(t, 10.0, Percentile(sorted, 99))
	assert.Equal(t, 1.0, Percentile(sorted, 0))
	assert.Equal(t, 10.0, Percentile(sorted, 100)) // clamped to last
}

func TestPercentileSingleSample(t *testing.T) {
	sorted := []float64{7}
	for _, p := range []float64{0, 50, 95, 99, 100} {
		assert.Equal(t, 7.0, Percentile(sorted, p))
	}
}

func TestPercentileEmpty(t *testing.T) {
	assert.Zero(t, Percentile(nil, 50))
}

func TestPercentilesMonotonic(t *testing.T) {
	r := resultWithLatencies([]float64{0.5, 12, 3, 3, 0.1, 44, 2, 9, 1, 1}, 0, time.Second)
	s := Reduce(r)
	require.LessOrEqual(t, s.P50MS, s.P95MS)
	require.LessOrEqual(t, s.P95MS, s.P99MS)
	require.LessOrEqual(t, s.MinMS, s.P50MS)
	require.LessOrEqual(t, s.P99MS, s.MaxMS)
}

func TestCompareThroughputRatio(t *testing.T) {
	a := Summary{Throughput: 1000, MeanMS: 2}
	b := Summary{Throughput: 1500, MeanMS: 1}

	c := Compare(a, b)
	assert.InDelta(t, 1.5, c.ThroughputRatio, 1e-9)
	assert.InDelta(t, 0.5, c.LatencyRatio, 1e-9)
}

func TestCompareZeroDenominator(t *testing.T) {
	c := Compare(Summary{}, Summary{Throughput: 100, MeanMS: 1})
	assert.Zero(t, c.ThroughputRatio)
	assert.Zero(t, c.LatencyRatio)
}
