package bench

import (
	"context"
	"math/rand"
	"time"

	"golang.org/x/time/rate"

	"github.com/kvbench/kvcompare/internal/client"
	"github.com/kvbench/kvcompare/internal/keydist"
)

// workerReport is one worker's private accounting, merged only after the
// WaitGroup join.
type workerReport struct {
	samples []Sample
	errors  int64
}

// runWorker executes an assigned operation budget over exactly one
// connection. A connect failure converts the whole budget to errors without
// touching the network again; once the connection reports failed, the
// remaining budget becomes errors the same way. Individual operation failures
// are counted and the loop continues.
func runWorker(cfg *Config, assigned int64, keys keydist.Generator, opRng *rand.Rand, values [][]byte, limiter *rate.Limiter, obs Observer) workerReport {
	report := workerReport{samples: make([]Sample, 0, assigned)}

	conn, err := client.Dial(cfg.Host, cfg.Port, cfg.Timeout)
	if err != nil {
		report.errors = assigned
		observeErrors(obs, assigned)
		return report
	}
	defer conn.Close()

	readRatio := cfg.readRatio()
	ctx := context.Background()
	valueIdx := 0

	for i := int64(0); i < assigned; i++ {
		if conn.Failed() {
			remaining := assigned - i
			report.errors += remaining
			observeErrors(obs, remaining)
			break
		}
		if limiter != nil {
			limiter.Wait(ctx)
		}

		op := OpSet
		if readRatio > 0 && opRng.Float64() < readRatio {
			op = OpGet
		}
		key := keydist.Key(cfg.KeyPrefix, keys.Next())

		start := time.Now()
		var opErr error
		if op == OpGet {
			_, _, opErr = conn.Get(key)
		} else {
			opErr = conn.Set(key, values[valueIdx%len(values)])
			valueIdx++
		}
		latencyMS := time.Since(start).Seconds() * 1000

		if opErr != nil {
			report.errors++
			if obs != nil {
				obs.ObserveError()
			}
			continue
		}
		report.samples = append(report.samples, Sample{Op: op, LatencyMS: latencyMS})
		if obs != nil {
			obs.ObserveSample(op, latencyMS)
		}
	}
	return report
}

func observeErrors(obs Observer, n int64) {
	if obs == nil {
		return
	}
	for i := int64(0); i < n; i++ {
		obs.ObserveError()
	}
}
