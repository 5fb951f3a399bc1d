package bench

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/HdrHistogram/hdrhistogram-go"

	"github.com/kvbench/kvcompare/internal/sysmon"
)

// Observer receives per-operation events from workers. Observation is
// advisory: it never touches the worker sample buffers and must not block.
type Observer interface {
	ObserveSample(op OpKind, latencyMS float64)
	ObserveError()
}

// ConnCounter reports established TCP connections toward the target and the
// change since the previous sample.
type ConnCounter interface {
	Count() int
	Delta() int
}

// MetricSink receives periodic progress metrics for external emission.
type MetricSink interface {
	PublishProgress(target string, qps, p50MS, p99MS float64, tcpConns int)
}

// Tracker aggregates live progress over a channel so workers never contend on
// a lock. A single collector goroutine owns the histogram.
type Tracker struct {
	totalOps   int64
	successOps int64
	failedOps  int64

	latencyCh chan int64
	errorCh   chan struct{}
	done      chan struct{}

	// Written only by the collector goroutine; histMu guards reads from
	// Snapshot against in-flight RecordValue calls.
	histMu sync.Mutex
	hist   *hdrhistogram.Histogram

	start time.Time
}

// NewTracker starts the collector goroutine. Callers must Stop the tracker
// when the run finalizes.
func NewTracker() *Tracker {
	t := &Tracker{
		// 1 microsecond to 1 minute, 3 significant digits.
		hist:      hdrhistogram.New(1, 60*1000*1000, 3),
		latencyCh: make(chan int64, 1<<16),
		errorCh:   make(chan struct{}, 1024),
		done:      make(chan struct{}),
		start:     time.Now(),
	}
	go t.collect()
	return t
}

func (t *Tracker) collect() {
	for {
		select {
		case micros := <-t.latencyCh:
			t.histMu.Lock()
			t.hist.RecordValue(micros)
			t.histMu.Unlock()
		case <-t.errorCh:
		case <-t.done:
			return
		}
	}
}

// ObserveSample records one success. If the channel is full the histogram
// update is dropped; the counters stay exact.
func (t *Tracker) ObserveSample(_ OpKind, latencyMS float64) {
	atomic.AddInt64(&t.totalOps, 1)
	atomic.AddInt64(&t.successOps, 1)
	select {
	case t.latencyCh <- int64(latencyMS * 1000):
	default:
	}
}

// ObserveError records one failed operation.
func (t *Tracker) ObserveError() {
	atomic.AddInt64(&t.totalOps, 1)
	atomic.AddInt64(&t.failedOps, 1)
	select {
	case t.errorCh <- struct{}{}:
	default:
	}
}

// Snapshot is a point-in-time view of the live counters and percentiles.
type Snapshot struct {
	TotalOps   int64
	SuccessOps int64
	FailedOps  int64
	QPS        float64
	P50MS      float64
	P95MS      float64
	P99MS      float64
}

// Snapshot reads the counters atomically and the histogram under its lock.
// Percentiles may trail events still queued in the channel; that staleness
// is acceptable for monitoring.
func (t *Tracker) Snapshot() Snapshot {
	s := Snapshot{
		TotalOps:   atomic.LoadInt64(&t.totalOps),
		SuccessOps: atomic.LoadInt64(&t.successOps),
		FailedOps:  atomic.LoadInt64(&t.failedOps),
	}
	if elapsed := time.Since(t.start).Seconds(); elapsed > 0 {
		s.QPS = float64(s.TotalOps) / elapsed
	}
	t.histMu.Lock()
	defer t.histMu.Unlock()
	if t.hist.TotalCount() > 0 {
		s.P50MS = float64(t.hist.ValueAtQuantile(50)) / 1000
		s.P95MS = float64(t.hist.ValueAtQuantile(95)) / 1000
		s.P99MS = float64(t.hist.ValueAtQuantile(99)) / 1000
	}
	return s
}

// Stop shuts down the collector goroutine.
func (t *Tracker) Stop() {
	close(t.done)
}

// Reporter prints a one-line progress update every interval: window QPS and
// percentiles, the TCP connection gauge with its per-window delta, and coarse
// host memory/load figures.
type Reporter struct {
	tracker   *Tracker
	target    string
	interval  time.Duration
	conns     ConnCounter
	sink      MetricSink
	hostStats func() sysmon.HostStats
	out       io.Writer
	stop      chan struct{}
	stopped   chan struct{}
}

func NewReporter(tracker *Tracker, target string, interval time.Duration, conns ConnCounter, sink MetricSink) *Reporter {
	if interval <= 0 {
		interval = time.Second
	}
	return &Reporter{
		tracker:   tracker,
		target:    target,
		interval:  interval,
		conns:     conns,
		sink:      sink,
		hostStats: sysmon.ReadHostStats,
		out:       os.Stdout,
		stop:      make(chan struct{}),
		stopped:   make(chan struct{}),
	}
}

// Start launches the ticker goroutine.
func (r *Reporter) Start() {
	go r.loop()
}

func (r *Reporter) loop() {
	defer close(r.stopped)
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-r.stop:
			// Clear the progress line before the final results block.
			fmt.Fprint(r.out, "\r"+strings.Repeat(" ", 150)+"\r")
			return
		case <-ticker.C:
			s := r.tracker.Snapshot()
			if s.TotalOps == 0 {
				continue
			}
			tcp, tcpDelta := 0, 0
			if r.conns != nil {
				tcp = r.conns.Count()
				tcpDelta = r.conns.Delta()
			}
			host := r.hostStats()
			fmt.Fprintf(r.out, "\r[%s] ops: %d, errors: %d, qps: %.0f, p50: %.2fms, p95: %.2fms, p99: %.2fms, tcp: %d (%+d), mem: %.0f/%.0fMB, load: %.0f%%",
				r.target, s.TotalOps, s.FailedOps, s.QPS, s.P50MS, s.P95MS, s.P99MS,
				tcp, tcpDelta, host.MemoryUsedMB, host.MemoryTotalMB, host.LoadPercent)
			if r.sink != nil {
				r.sink.PublishProgress(r.target, s.QPS, s.P50MS, s.P99MS, tcp)
			}
		}
	}
}

// Stop halts the reporter and waits for its goroutine to exit.
func (r *Reporter) Stop() {
	close(r.stop)
	<-r.stopped
}
