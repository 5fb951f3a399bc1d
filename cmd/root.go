/*
Copyright © 2026 kvbench authors
*/
package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// Version information
var (
	gitSHA1  = "unknown"
	gitDirty = "unknown"
)

// SetVersionInfo sets the version information from main
func SetVersionInfo(sha, dirty string) {
	gitSHA1 = sha
	gitDirty = dirty
}

func printVersion() {
	fmt.Printf("kvcompare\n")
	fmt.Printf("Git Commit: %s", gitSHA1)
	if gitDirty != "0" && gitDirty != "unknown" {
		fmt.Printf(" (dirty)")
	}
	fmt.Printf("\n")
}

// versionCmd represents the version command
var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Long:  "Print version information including git commit hash",
	Run: func(cmd *cobra.Command, args []string) {
		printVersion()
	},
}

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "kvcompare",
	Short: "Workload generator and comparison harness for RESP key-value servers",
	Long: `kvcompare drives configurable read/write workloads against key-value
servers speaking the RESP protocol, one raw TCP connection per worker, and
reduces the measured latencies into throughput and percentile statistics.

Use "run" for a single benchmark against one server and "compare" to run the
same workloads against two servers and relate their results.`,
	Run: func(cmd *cobra.Command, args []string) {
		if version, _ := cmd.Flags().GetBool("version"); version {
			printVersion()
			return
		}
		cmd.Help()
	},
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	err := rootCmd.Execute()
	if err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.AddCommand(versionCmd)
	rootCmd.Flags().BoolP("version", "V", false, "Print version information")
}
