package suite

import (
	"log"

	"github.com/kvbench/kvcompare/internal/bench"
	"github.com/kvbench/kvcompare/internal/client"
	"github.com/kvbench/kvcompare/internal/stats"
)

// RunRecord is the outcome of one workload against one target. Err is set
// when the run never measured (unreachable target, failed prefill); the
// summary then reports zero throughput and a zero success rate.
type RunRecord struct {
	Target   string
	Workload string
	Summary  stats.Summary
	Err      error
}

// ComparisonRow relates the first two targets for one workload.
type ComparisonRow struct {
	Workload   string
	TargetA    string
	TargetB    string
	Comparison stats.Comparison
}

// Report is the structured output of a suite run; rendering is the caller's
// concern.
type Report struct {
	Records     []RunRecord
	Comparisons []ComparisonRow
}

// ObserverFactory builds a per-run progress observer. May be nil, and may
// return nil.
type ObserverFactory func(target, workload string) bench.Observer

// Run executes every workload against every target in order. A target that
// fails its availability check, or a run that aborts before measuring, is
// recorded as a full-error result; the suite always runs to completion.
func Run(cfg *Config, newObserver ObserverFactory) (*Report, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	report := &Report{}
	for _, w := range cfg.Workloads {
		for _, t := range cfg.Targets {
			report.Records = append(report.Records, runOne(&w, t, newObserver))
		}
		if len(cfg.Targets) >= 2 {
			report.Comparisons = append(report.Comparisons, compareRow(report, &w, cfg.Targets[0], cfg.Targets[1]))
		}
	}
	return report, nil
}

func runOne(w *Workload, t Target, newObserver ObserverFactory) RunRecord {
	rec := RunRecord{Target: t.Name, Workload: w.Name}

	benchCfg, err := w.BenchConfig(t)
	if err != nil {
		rec.Err = err
		rec.Summary = errorSummary(w)
		return rec
	}

	if err := checkAvailability(benchCfg); err != nil {
		log.Printf("target %s unreachable, recording full-error result: %v", t.Name, err)
		rec.Err = err
		rec.Summary = errorSummary(w)
		return rec
	}

	var obs bench.Observer
	if newObserver != nil {
		obs = newObserver(t.Name, w.Name)
	}

	result, err := bench.Run(benchCfg, obs)
	if err != nil {
		log.Printf("run against %s failed, recording full-error result: %v", t.Name, err)
		rec.Err = err
		rec.Summary = errorSummary(w)
		return rec
	}

	rec.Summary = stats.Reduce(result)
	return rec
}

// checkAvailability dials one connection and exchanges a PING before
// committing to prefill and measurement.
func checkAvailability(cfg *bench.Config) error {
	conn, err := client.Dial(cfg.Host, cfg.Port, cfg.Timeout)
	if err != nil {
		return err
	}
	defer conn.Close()
	return conn.Ping()
}

// errorSummary is the record for a run that never measured: every assigned
// operation counts as an error.
func errorSummary(w *Workload) stats.Summary {
	assigned := int64(0)
	if w.Connections > 0 {
		assigned = w.Ops / int64(w.Connections) * int64(w.Connections)
	}
	return stats.Summary{Errors: assigned, SuccessRate: 0}
}

// compareRow picks the two targets' records for this workload out of the
// report and relates B to A.
func compareRow(report *Report, w *Workload, a, b Target) ComparisonRow {
	row := ComparisonRow{Workload: w.Name, TargetA: a.Name, TargetB: b.Name}

	var sa, sb *stats.Summary
	for i := range report.Records {
		rec := &report.Records[i]
		if rec.Workload != w.Name {
			continue
		}
		switch rec.Target {
		case a.Name:
			sa = &rec.Summary
		case b.Name:
			sb = &rec.Summary
		}
	}
	if sa != nil && sb != nil {
		row.Comparison = stats.Compare(*sa, *sb)
	}
	return row
}
