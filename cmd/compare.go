/*
Copyright © 2026 kvbench authors
*/
package cmd

import (
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/kvbench/kvcompare/internal/bench"
	"github.com/kvbench/kvcompare/internal/suite"
)

// compareCmd represents the compare command
var compareCmd = &cobra.Command{
	Use:   "compare",
	Short: "Run the same workloads against two servers and compare the results",
	Long: `Run identical workloads against two RESP servers and relate their
throughput and latency. Targets and workloads come either from a YAML suite
file or from inline A/B flags.

Examples:
  # Compare from a suite file
  kvcompare compare --suite suite.yaml

  # Inline two-target comparison
  kvcompare compare --a-host 127.0.0.1 --a-port 6379 --a-name redis \
                    --b-host 127.0.0.1 --b-port 7379 --b-name candidate \
                    -n 100000 -c 50 --ratio 1:10`,
	Run: runCompare,
}

func init() {
	rootCmd.AddCommand(compareCmd)

	compareCmd.Flags().String("suite", "", "Path to a YAML suite file (overrides inline flags)")

	compareCmd.Flags().String("a-host", "127.0.0.1", "First server hostname")
	compareCmd.Flags().Int("a-port", 6379, "First server port")
	compareCmd.Flags().String("a-name", "A", "Label for the first server")
	compareCmd.Flags().String("b-host", "127.0.0.1", "Second server hostname")
	compareCmd.Flags().Int("b-port", 7379, "Second server port")
	compareCmd.Flags().String("b-name", "B", "Label for the second server")

	compareCmd.Flags().Int64P("requests", "n", 100000, "Measured operations per target")
	compareCmd.Flags().IntP("clients", "c", 50, "Concurrent connections per target")
	compareCmd.Flags().String("ratio", "1:10", "Set:Get ratio")
	compareCmd.Flags().Uint64("key-maximum", 100000, "Number of distinct keys")
	compareCmd.Flags().String("key-prefix", "key:", "Prefix for generated key names")
	compareCmd.Flags().Float64("key-zipf-exp", 0, "Zipf exponent for key selection (0 = uniform)")
	compareCmd.Flags().Int("data-size", 64, "Value size in bytes")
	compareCmd.Flags().Int64("warmup", 0, "Operations to run and discard before measuring")
	compareCmd.Flags().Duration("timeout", 5*time.Second, "Per-operation I/O timeout")
	compareCmd.Flags().Int64("seed", 0, "Random seed shared by both runs (0 = time-based)")
}

// inlineSuite builds a two-target, one-workload suite from the compare
// command's flags.
func inlineSuite(cmd *cobra.Command) (*suite.Config, error) {
	aHost, _ := cmd.Flags().GetString("a-host")
	aPort, _ := cmd.Flags().GetInt("a-port")
	aName, _ := cmd.Flags().GetString("a-name")
	bHost, _ := cmd.Flags().GetString("b-host")
	bPort, _ := cmd.Flags().GetInt("b-port")
	bName, _ := cmd.Flags().GetString("b-name")

	requests, _ := cmd.Flags().GetInt64("requests")
	clients, _ := cmd.Flags().GetInt("clients")
	ratioStr, _ := cmd.Flags().GetString("ratio")
	keyMax, _ := cmd.Flags().GetUint64("key-maximum")
	keyPrefix, _ := cmd.Flags().GetString("key-prefix")
	zipfExp, _ := cmd.Flags().GetFloat64("key-zipf-exp")
	dataSize, _ := cmd.Flags().GetInt("data-size")
	warmup, _ := cmd.Flags().GetInt64("warmup")
	timeout, _ := cmd.Flags().GetDuration("timeout")
	seed, _ := cmd.Flags().GetInt64("seed")

	op, readRatio, err := parseRatio(ratioStr)
	if err != nil {
		return nil, err
	}

	cfg := &suite.Config{
		Targets: []suite.Target{
			{Name: aName, Host: aHost, Port: aPort},
			{Name: bName, Host: bHost, Port: bPort},
		},
		Workloads: []suite.Workload{{
			Name:        "inline",
			Op:          op,
			Ops:         requests,
			Connections: clients,
			KeySpace:    keyMax,
			ReadRatio:   readRatio,
			ZipfExp:     zipfExp,
			KeyPrefix:   keyPrefix,
			ValueMin:    dataSize,
			ValueMax:    dataSize,
			WarmupOps:   warmup,
			Timeout:     timeout.String(),
			Seed:        seed,
		}},
	}
	return cfg, cfg.Validate()
}

func runCompare(cmd *cobra.Command, args []string) {
	suitePath, _ := cmd.Flags().GetString("suite")

	var cfg *suite.Config
	var err error
	if suitePath != "" {
		cfg, err = suite.Load(suitePath)
	} else {
		cfg, err = inlineSuite(cmd)
	}
	if err != nil {
		log.Fatalf("Invalid suite: %v", err)
	}

	fmt.Printf("Comparing %d target(s) over %d workload(s)...\n", len(cfg.Targets), len(cfg.Workloads))

	report, err := suite.Run(cfg, func(target, workload string) bench.Observer {
		fmt.Printf("\n--- workload %s, target %s ---\n", workload, target)
		return nil
	})
	if err != nil {
		log.Fatalf("Suite failed: %v", err)
	}

	printReport(report)
}

// printReport renders the per-run summaries and the pairwise ratios.
func printReport(report *suite.Report) {
	fmt.Println("\n" + strings.Repeat("=", 90))
	fmt.Println("COMPARISON RESULTS")
	fmt.Println(strings.Repeat("=", 90))

	fmt.Printf("%-16s %-12s %12s %10s %10s %10s %10s\n",
		"WORKLOAD", "TARGET", "OPS/SEC", "MEAN MS", "P50 MS", "P99 MS", "SUCCESS")
	for _, rec := range report.Records {
		status := fmt.Sprintf("%.1f%%", rec.Summary.SuccessRate*100)
		if rec.Err != nil {
			status = "FAILED"
		}
		fmt.Printf("%-16s %-12s %12.2f %10.3f %10.3f %10.3f %10s\n",
			rec.Workload, rec.Target, rec.Summary.Throughput,
			rec.Summary.MeanMS, rec.Summary.P50MS, rec.Summary.P99MS, status)
	}

	for _, row := range report.Comparisons {
		fmt.Println()
		fmt.Printf("Workload %s: %s vs %s\n", row.Workload, row.TargetB, row.TargetA)
		fmt.Printf("  Throughput ratio (%s/%s): %.2fx %s\n",
			row.TargetB, row.TargetA, row.Comparison.ThroughputRatio,
			direction(row.Comparison.ThroughputRatio > 1, row.TargetB, row.TargetA, "faster"))
		fmt.Printf("  Mean latency ratio (%s/%s): %.2fx %s\n",
			row.TargetB, row.TargetA, row.Comparison.LatencyRatio,
			direction(row.Comparison.LatencyRatio < 1, row.TargetB, row.TargetA, "lower latency"))
	}
	fmt.Println(strings.Repeat("=", 90))
}

func direction(bWins bool, b, a, what string) string {
	if bWins {
		return fmt.Sprintf("(%s %s)", b, what)
	}
	return fmt.Sprintf("(%s %s)", a, what)
}
