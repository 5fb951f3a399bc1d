package bench

import (
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kvbench/kvcompare/internal/sysmon"
)

var _ ConnCounter = (*sysmon.TCPMonitor)(nil)

type syncBuffer struct {
	mu sync.Mutex
	b  strings.Builder
}

func (sb *syncBuffer) Write(p []byte) (int, error) {
	sb.mu.Lock()
	defer sb.mu.Unlock()
	return sb.b.Write(p)
}

func (sb *syncBuffer) String() string {
	sb.mu.Lock()
	defer sb.mu.Unlock()
	return sb.b.String()
}

type fakeConns struct{ count, delta int }

func (f fakeConns) Count() int { return f.count }
func (f fakeConns) Delta() int { return f.delta }

func TestTrackerSnapshotDuringLoad(t *testing.T) {
	tracker := NewTracker()
	defer tracker.Stop()

	const samples = 5000
	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < samples; i++ {
			tracker.ObserveSample(OpSet, float64(i%50)+0.5)
		}
	}()

	// Snapshot concurrently with recording until the producer finishes.
	for {
		select {
		case <-done:
			snap := tracker.Snapshot()
			assert.Equal(t, int64(samples), snap.TotalOps)
			assert.Equal(t, int64(samples), snap.SuccessOps)
			return
		default:
			tracker.Snapshot()
		}
	}
}

func TestReporterPrintsConnAndHostFigures(t *testing.T) {
	tracker := NewTracker()
	defer tracker.Stop()
	for i := 1; i <= 10; i++ {
		tracker.ObserveSample(OpGet, float64(i))
	}

	var buf syncBuffer
	r := NewReporter(tracker, "cache-a", 10*time.Millisecond, fakeConns{count: 12, delta: 2}, nil)
	r.out = &buf
	r.hostStats = func() sysmon.HostStats {
		return sysmon.HostStats{MemoryUsedMB: 512, MemoryTotalMB: 2048, LoadPercent: 25}
	}

	r.Start()
	defer r.Stop()

	require.Eventually(t, func() bool {
		out := buf.String()
		return strings.Contains(out, "[cache-a]") &&
			strings.Contains(out, "tcp: 12 (+2)") &&
			strings.Contains(out, "mem: 512/2048MB") &&
			strings.Contains(out, "load: 25%")
	}, 2*time.Second, 10*time.Millisecond)
}
