// Package bench drives a benchmark run: a pool of workers, one raw connection
// each, executing an assigned operation budget against a single target server
// and collecting per-operation latency samples.
package bench

import (
	"fmt"
	"time"
)

// Op modes for a workload.
const (
	OpModeSet   = "set"
	OpModeGet   = "get"
	OpModeMixed = "mixed"
)

// Config describes one benchmark run against one target.
type Config struct {
	Host string
	Port int
	Name string // label used in output and comparisons

	KeySpace    uint64  // number of distinct keys
	Ops         int64   // total measured operations across all workers
	Connections int     // worker count, one socket each
	Op          string  // set, get, or mixed
	ReadRatio   float64 // mixed mode only: fraction of GETs in [0,1]
	ZipfExp     float64 // 0 = uniform key access, >0 = Zipf exponent
	KeyPrefix   string

	ValueMin   int // value size lower bound in bytes
	ValueMax   int // upper bound; equal to ValueMin for fixed sizes
	RandomData bool

	WarmupOps int64         // executed and discarded before measurement
	Timeout   time.Duration // per-exchange I/O deadline
	RPS       int           // aggregate rate cap, 0 = unlimited
	Seed      int64         // 0 = derive from wall clock
}

// Validate rejects configurations the orchestrator cannot run.
func (c *Config) Validate() error {
	if c.Host == "" {
		return fmt.Errorf("host is required")
	}
	if c.Port < 1 || c.Port > 65535 {
		return fmt.Errorf("port must be in 1-65535, got %d", c.Port)
	}
	if c.KeySpace < 1 {
		return fmt.Errorf("key space must hold at least one key, got %d", c.KeySpace)
	}
	if c.Ops < 1 {
		return fmt.Errorf("operation count must be positive, got %d", c.Ops)
	}
	if c.Connections < 1 {
		return fmt.Errorf("connection count must be positive, got %d", c.Connections)
	}
	switch c.Op {
	case OpModeSet, OpModeGet:
	case OpModeMixed:
		if c.ReadRatio < 0 || c.ReadRatio > 1 {
			return fmt.Errorf("read ratio must be in [0,1], got %f", c.ReadRatio)
		}
	default:
		return fmt.Errorf("op must be set, get or mixed, got %q", c.Op)
	}
	if c.ZipfExp < 0 {
		return fmt.Errorf("zipf exponent must be non-negative, got %f", c.ZipfExp)
	}
	if c.ValueMin < 1 {
		return fmt.Errorf("value size must be positive, got %d", c.ValueMin)
	}
	if c.ValueMax < c.ValueMin {
		return fmt.Errorf("value size range %d-%d is inverted", c.ValueMin, c.ValueMax)
	}
	if c.WarmupOps < 0 {
		return fmt.Errorf("warmup count must be non-negative, got %d", c.WarmupOps)
	}
	if c.Timeout <= 0 {
		return fmt.Errorf("timeout must be positive, got %s", c.Timeout)
	}
	if c.RPS < 0 {
		return fmt.Errorf("rps cap must be non-negative, got %d", c.RPS)
	}
	return nil
}

// readRatio resolves the effective GET probability for the configured op mode.
func (c *Config) readRatio() float64 {
	switch c.Op {
	case OpModeGet:
		return 1
	case OpModeSet:
		return 0
	}
	return c.ReadRatio
}

// readsKeys reports whether the workload issues any GETs, which makes a
// prefill pass mandatory so reads find populated keys.
func (c *Config) readsKeys() bool {
	return c.readRatio() > 0
}
