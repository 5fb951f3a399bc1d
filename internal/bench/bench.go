package bench

import (
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/kvbench/kvcompare/internal/client"
	"github.com/kvbench/kvcompare/internal/keydist"
)

// ErrPrefill marks a failed prefill pass. Prefill errors are fatal to the
// run: measuring reads against an unpopulated key space would be meaningless.
var ErrPrefill = errors.New("prefill failed")

const (
	// prefillWorkers is the fixed pool size for the prefill pass, distinct
	// from the measurement connection count.
	prefillWorkers = 8

	// valuePoolSize is how many values each worker pre-generates so the
	// measured path never pays generation cost.
	valuePoolSize = 100
)

// Run executes one benchmark: prefill (when the workload reads), warm-up
// (discarded), then the measured phase. obs may be nil; it receives advisory
// per-operation events for live progress only.
func Run(cfg *Config, obs Observer) (*Result, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	seed := cfg.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}

	if cfg.readsKeys() {
		if err := prefill(cfg, seed); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrPrefill, err)
		}
	}

	if cfg.WarmupOps > 0 {
		warm := *cfg
		warm.Ops = cfg.WarmupOps
		// Warm-up failures are tolerated; the result is discarded.
		runPhase(&warm, seed+1, nil)
	}

	return runPhase(cfg, seed, obs), nil
}

// runPhase fans the budget out over cfg.Connections workers and merges their
// reports after the join. Floor division drops the remainder: Assigned is
// what the workers were actually given.
func runPhase(cfg *Config, seed int64, obs Observer) *Result {
	perWorker := cfg.Ops / int64(cfg.Connections)
	assigned := perWorker * int64(cfg.Connections)

	reports := make([]workerReport, cfg.Connections)
	var wg sync.WaitGroup

	start := time.Now()
	for w := 0; w < cfg.Connections; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			reports[w] = launchWorker(cfg, perWorker, seed, w, obs)
		}(w)
	}
	wg.Wait()
	end := time.Now()

	result := &Result{Config: *cfg, Assigned: assigned, Start: start, End: end}
	for _, rep := range reports {
		result.Samples = append(result.Samples, rep.samples...)
		result.Errors += rep.errors
	}
	return result
}

// launchWorker builds the per-worker generators and rate limiter, then runs
// the budget. Each worker gets its own seeded generators so runs are
// reproducible for a fixed Config.Seed regardless of scheduling.
func launchWorker(cfg *Config, perWorker int64, seed int64, w int, obs Observer) workerReport {
	wSeed := seed + int64(w)*7919

	keys := keyGenerator(cfg, wSeed)
	opRng := rand.New(rand.NewSource(wSeed ^ 0x5deece66d))

	values, err := valueGenerator(cfg, wSeed).Pool(valuePoolSize)
	if err != nil {
		observeErrors(obs, perWorker)
		return workerReport{errors: perWorker}
	}

	var limiter *rate.Limiter
	if cfg.RPS > 0 {
		perWorkerRate := float64(cfg.RPS) / float64(cfg.Connections)
		limiter = rate.NewLimiter(rate.Limit(perWorkerRate), 1)
	}

	return runWorker(cfg, perWorker, keys, opRng, values, limiter, obs)
}

func keyGenerator(cfg *Config, seed int64) keydist.Generator {
	if cfg.ZipfExp > 0 {
		return keydist.NewZipfGenerator(cfg.KeySpace, cfg.ZipfExp, seed)
	}
	return keydist.NewUniformGenerator(cfg.KeySpace, seed)
}

func valueGenerator(cfg *Config, seed int64) *keydist.ValueGenerator {
	spec := keydist.ValueSpec{
		MinSize:    cfg.ValueMin,
		MaxSize:    cfg.ValueMax,
		RandomData: cfg.RandomData,
	}
	return keydist.NewValueGenerator(spec, seed)
}

// prefill writes every key in the key space exactly once, sharded over a
// small fixed pool. Any error aborts the pass.
func prefill(cfg *Config, seed int64) error {
	workers := prefillWorkers
	if uint64(workers) > cfg.KeySpace {
		workers = int(cfg.KeySpace)
	}

	per := cfg.KeySpace / uint64(workers)
	extra := cfg.KeySpace % uint64(workers)

	var wg sync.WaitGroup
	errCh := make(chan error, workers)

	var next uint64
	for w := 0; w < workers; w++ {
		count := per
		if uint64(w) < extra {
			count++
		}
		lo := next
		next += count

		wg.Add(1)
		go func(lo, count uint64, seed int64) {
			defer wg.Done()
			errCh <- prefillRange(cfg, lo, count, seed)
		}(lo, count, seed+int64(w))
	}
	wg.Wait()
	close(errCh)

	for err := range errCh {
		if err != nil {
			return err
		}
	}
	return nil
}

// prefillRange writes keys [lo, lo+count) over one connection, walking the
// shard through a sequential generator so each key is written exactly once.
func prefillRange(cfg *Config, lo, count uint64, seed int64) error {
	if count == 0 {
		return nil
	}

	conn, err := client.Dial(cfg.Host, cfg.Port, cfg.Timeout)
	if err != nil {
		return fmt.Errorf("connect: %w", err)
	}
	defer conn.Close()

	vg := valueGenerator(cfg, seed)
	keys := keydist.NewSequentialGenerator(count)
	for i := uint64(0); i < count; i++ {
		value, err := vg.Next()
		if err != nil {
			return err
		}
		key := keydist.Key(cfg.KeyPrefix, lo+keys.Next())
		if err := conn.Set(key, value); err != nil {
			return fmt.Errorf("set %s: %w", key, err)
		}
	}
	return nil
}
