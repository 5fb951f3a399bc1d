package bench

import "time"

// OpKind tags a sample with the operation that produced it.
type OpKind int

const (
	OpSet OpKind = iota
	OpGet
)

func (k OpKind) String() string {
	if k == OpGet {
		return "GET"
	}
	return "SET"
}

// Sample is one successful operation. Failed operations carry no latency and
// exist only as error counts.
type Sample struct {
	Op        OpKind
	LatencyMS float64
}

// Result holds everything a measurement phase produced. For every run
// len(Samples) + Errors == Assigned.
type Result struct {
	Config   Config
	Samples  []Sample
	Errors   int64
	Assigned int64
	Start    time.Time
	End      time.Time
}

// Duration is the measured wall-clock span of the run.
func (r *Result) Duration() time.Duration {
	return r.End.Sub(r.Start)
}

// Latencies returns the success latencies in collection order.
func (r *Result) Latencies() []float64 {
	out := make([]float64, len(r.Samples))
	for i, s := range r.Samples {
		out[i] = s.LatencyMS
	}
	return out
}
