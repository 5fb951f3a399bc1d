/*
Copyright © 2026 kvbench authors
*/
package cmd

import (
	"context"
	"fmt"
	"log"
	"net/http"
	_ "net/http/pprof"
	"os"
	"os/signal"
	"runtime"
	"runtime/pprof"
	"strconv"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/kvbench/kvcompare/internal/bench"
	"github.com/kvbench/kvcompare/internal/cloudwatch"
	"github.com/kvbench/kvcompare/internal/stats"
	"github.com/kvbench/kvcompare/internal/sysmon"
)

// runCmd represents the run command
var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run a workload against one key-value server",
	Long: `Run a benchmark workload against a single RESP server with configurable
access patterns: Set:Get ratios, uniform or Zipf key selection, and fixed or
ranged value sizes.

Examples:
  # 100k mixed operations, 50 connections, default 1:10 Set:Get ratio
  kvcompare run --host 127.0.0.1 --port 6379 -n 100000 -c 50

  # Read-only workload over a hot Zipf key set
  kvcompare run --host 127.0.0.1 --port 6379 --ratio 0:1 --key-zipf-exp 1.2

  # Write-only with 1KB random values and a 5000 ops/sec cap
  kvcompare run --host 127.0.0.1 --port 6379 --ratio 1:0 --data-size 1024 --random-data --rps 5000`,
	Run: runBenchmark,
}

func init() {
	rootCmd.AddCommand(runCmd)

	runCmd.Flags().String("host", "127.0.0.1", "Server hostname")
	runCmd.Flags().Int("port", 6379, "Server port")
	runCmd.Flags().String("name", "server", "Label for the target in output")
	runCmd.Flags().Int64P("requests", "n", 100000, "Total number of measured operations")
	runCmd.Flags().IntP("clients", "c", 50, "Number of concurrent connections")
	runCmd.Flags().String("ratio", "1:10", "Set:Get ratio (e.g. 1:10, 1:0 = writes only, 0:1 = reads only)")
	runCmd.Flags().Uint64("key-maximum", 100000, "Number of distinct keys")
	runCmd.Flags().String("key-prefix", "key:", "Prefix for generated key names")
	runCmd.Flags().Float64("key-zipf-exp", 0, "Zipf exponent for key selection (0 = uniform)")
	runCmd.Flags().Int("data-size", 64, "Value size in bytes")
	runCmd.Flags().String("data-size-range", "", "Value size range min-max (overrides --data-size)")
	runCmd.Flags().Bool("random-data", false, "Fill values from crypto/rand instead of a fixed pattern")
	runCmd.Flags().Int64("warmup", 0, "Operations to run and discard before measuring")
	runCmd.Flags().Int("rps", 0, "Aggregate rate limit in ops/sec (0 = unlimited)")
	runCmd.Flags().Duration("timeout", 5*time.Second, "Per-operation I/O timeout")
	runCmd.Flags().Int64("seed", 0, "Random seed for reproducible runs (0 = time-based)")
	runCmd.Flags().Bool("quiet", false, "Suppress live progress output")

	runCmd.Flags().Bool("cloudwatch-enabled", false, "Emit live metrics to CloudWatch")
	runCmd.Flags().String("cloudwatch-region", "us-east-1", "CloudWatch region")
	runCmd.Flags().String("cloudwatch-namespace", "KVCompare", "CloudWatch namespace")

	runCmd.Flags().String("cpu-profile", "", "Write CPU profile to file")
	runCmd.Flags().String("mem-profile", "", "Write memory profile to file")
	runCmd.Flags().String("pprof-addr", "", "Serve pprof HTTP endpoint on this address")
}

// parseRatio parses a Set:Get ratio like "1:10" into an op mode and the GET
// fraction of a mixed workload.
func parseRatio(ratioStr string) (op string, readRatio float64, err error) {
	parts := strings.Split(ratioStr, ":")
	if len(parts) != 2 {
		return "", 0, fmt.Errorf("ratio must be in format SET:GET (e.g., 1:10), got %q", ratioStr)
	}

	setPart, err := strconv.ParseFloat(parts[0], 64)
	if err != nil {
		return "", 0, fmt.Errorf("invalid set ratio: %w", err)
	}
	getPart, err := strconv.ParseFloat(parts[1], 64)
	if err != nil {
		return "", 0, fmt.Errorf("invalid get ratio: %w", err)
	}
	if setPart < 0 || getPart < 0 {
		return "", 0, fmt.Errorf("ratios must be non-negative")
	}
	if setPart+getPart == 0 {
		return "", 0, fmt.Errorf("ratio cannot be 0:0")
	}

	switch {
	case getPart == 0:
		return bench.OpModeSet, 0, nil
	case setPart == 0:
		return bench.OpModeGet, 0, nil
	}
	return bench.OpModeMixed, getPart / (setPart + getPart), nil
}

// parseSizeRange parses a "min-max" byte range.
func parseSizeRange(s string) (min, max int, err error) {
	parts := strings.Split(s, "-")
	if len(parts) != 2 {
		return 0, 0, fmt.Errorf("size range must be in format min-max, got %q", s)
	}
	min, err = strconv.Atoi(parts[0])
	if err != nil {
		return 0, 0, fmt.Errorf("invalid minimum size: %w", err)
	}
	max, err = strconv.Atoi(parts[1])
	if err != nil {
		return 0, 0, fmt.Errorf("invalid maximum size: %w", err)
	}
	if min > max {
		return 0, 0, fmt.Errorf("size range %d-%d is inverted", min, max)
	}
	return min, max, nil
}

// benchConfigFromFlags builds the bench configuration from the run command's
// flag set.
func benchConfigFromFlags(cmd *cobra.Command) (*bench.Config, error) {
	host, _ := cmd.Flags().GetString("host")
	port, _ := cmd.Flags().GetInt("port")
	name, _ := cmd.Flags().GetString("name")
	requests, _ := cmd.Flags().GetInt64("requests")
	clients, _ := cmd.Flags().GetInt("clients")
	ratioStr, _ := cmd.Flags().GetString("ratio")
	keyMax, _ := cmd.Flags().GetUint64("key-maximum")
	keyPrefix, _ := cmd.Flags().GetString("key-prefix")
	zipfExp, _ := cmd.Flags().GetFloat64("key-zipf-exp")
	dataSize, _ := cmd.Flags().GetInt("data-size")
	dataSizeRange, _ := cmd.Flags().GetString("data-size-range")
	randomData, _ := cmd.Flags().GetBool("random-data")
	warmup, _ := cmd.Flags().GetInt64("warmup")
	rps, _ := cmd.Flags().GetInt("rps")
	timeout, _ := cmd.Flags().GetDuration("timeout")
	seed, _ := cmd.Flags().GetInt64("seed")

	op, readRatio, err := parseRatio(ratioStr)
	if err != nil {
		return nil, err
	}

	valueMin, valueMax := dataSize, dataSize
	if dataSizeRange != "" {
		valueMin, valueMax, err = parseSizeRange(dataSizeRange)
		if err != nil {
			return nil, err
		}
	}

	cfg := &bench.Config{
		Host:        host,
		Port:        port,
		Name:        name,
		KeySpace:    keyMax,
		Ops:         requests,
		Connections: clients,
		Op:          op,
		ReadRatio:   readRatio,
		ZipfExp:     zipfExp,
		KeyPrefix:   keyPrefix,
		ValueMin:    valueMin,
		ValueMax:    valueMax,
		RandomData:  randomData,
		WarmupOps:   warmup,
		Timeout:     timeout,
		RPS:         rps,
		Seed:        seed,
	}
	return cfg, cfg.Validate()
}

// setupProfiling enables the requested pprof outputs and returns a cleanup
// function to run after the benchmark.
func setupProfiling(cmd *cobra.Command) func() {
	cpuProfile, _ := cmd.Flags().GetString("cpu-profile")
	memProfile, _ := cmd.Flags().GetString("mem-profile")
	pprofAddr, _ := cmd.Flags().GetString("pprof-addr")

	if pprofAddr != "" {
		go func() {
			fmt.Printf("Starting pprof HTTP server on http://%s/debug/pprof/\n", pprofAddr)
			if err := http.ListenAndServe(pprofAddr, nil); err != nil {
				log.Printf("pprof HTTP server failed: %v", err)
			}
		}()
	}

	var stopCPU func()
	if cpuProfile != "" {
		f, err := os.Create(cpuProfile)
		if err != nil {
			log.Fatalf("Could not create CPU profile: %v", err)
		}
		if err := pprof.StartCPUProfile(f); err != nil {
			log.Fatalf("Could not start CPU profile: %v", err)
		}
		fmt.Printf("CPU profiling enabled, writing to: %s\n", cpuProfile)
		stopCPU = func() {
			pprof.StopCPUProfile()
			f.Close()
		}
	}

	return func() {
		if stopCPU != nil {
			stopCPU()
		}
		if memProfile != "" {
			f, err := os.Create(memProfile)
			if err != nil {
				log.Printf("Could not create memory profile: %v", err)
				return
			}
			defer f.Close()
			runtime.GC()
			if err := pprof.WriteHeapProfile(f); err != nil {
				log.Printf("Could not write memory profile: %v", err)
			} else {
				fmt.Printf("Memory profile written to: %s\n", memProfile)
			}
		}
	}
}

func runBenchmark(cmd *cobra.Command, args []string) {
	cfg, err := benchConfigFromFlags(cmd)
	if err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	stopProfiling := setupProfiling(cmd)
	defer stopProfiling()

	quiet, _ := cmd.Flags().GetBool("quiet")

	fmt.Printf("Running %d operations against %s (%s:%d) with %d connections...\n",
		cfg.Ops, cfg.Name, cfg.Host, cfg.Port, cfg.Connections)

	var obs bench.Observer
	stopReporter := func() {}
	if !quiet {
		tracker := bench.NewTracker()
		defer tracker.Stop()
		obs = tracker

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		monitor := sysmon.NewTCPMonitor(cfg.Port)
		monitor.Start(ctx)

		reporter := bench.NewReporter(tracker, cfg.Name, time.Second, monitor, cloudwatchSink(cmd))
		reporter.Start()
		stopReporter = sync.OnceFunc(reporter.Stop)

		// An interrupt stops the progress display only; workers run their
		// budget to completion so the accounting stays exact.
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		go func() {
			<-sigCh
			fmt.Println("\nInterrupt received, hiding progress; workers will finish their budget...")
			stopReporter()
		}()
	}

	result, err := bench.Run(cfg, obs)
	stopReporter()
	if err != nil {
		log.Fatalf("Benchmark failed: %v", err)
	}

	printResults(cfg.Name, stats.Reduce(result))
}

// cloudwatchSink builds the optional CloudWatch metric sink. Initialization
// failures disable emission with a warning rather than aborting the run.
func cloudwatchSink(cmd *cobra.Command) bench.MetricSink {
	enabled, _ := cmd.Flags().GetBool("cloudwatch-enabled")
	if !enabled {
		return nil
	}
	region, _ := cmd.Flags().GetString("cloudwatch-region")
	namespace, _ := cmd.Flags().GetString("cloudwatch-namespace")

	pub, err := cloudwatch.New(context.Background(), region, namespace)
	if err != nil {
		log.Printf("Warning: failed to initialize CloudWatch: %v", err)
		return nil
	}
	fmt.Printf("CloudWatch metrics enabled: region=%s, namespace=%s\n", region, namespace)
	return pub
}

// printResults prints the final results block for one run.
func printResults(name string, s stats.Summary) {
	fmt.Println("\n" + strings.Repeat("=", 60))
	fmt.Printf("RESULTS: %s\n", name)
	fmt.Println(strings.Repeat("=", 60))

	fmt.Printf("Duration: %.2f seconds\n", s.DurationSec)
	fmt.Printf("Operations: %d\n", s.Ops)
	fmt.Printf("Errors: %d (success rate %.2f%%)\n", s.Errors, s.SuccessRate*100)
	fmt.Printf("Throughput: %.2f ops/sec\n", s.Throughput)
	fmt.Println()
	fmt.Printf("Latency Mean: %.3f ms\n", s.MeanMS)
	fmt.Printf("Latency Min: %.3f ms\n", s.MinMS)
	fmt.Printf("Latency Max: %.3f ms\n", s.MaxMS)
	fmt.Printf("Latency P50: %.3f ms, P95: %.3f ms, P99: %.3f ms\n", s.P50MS, s.P95MS, s.P99MS)
	fmt.Println(strings.Repeat("=", 60))
}
