// Package suite runs a set of workloads against multiple targets and
// compares the results pairwise.
package suite

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/kvbench/kvcompare/internal/bench"
)

// Target is one server under test.
type Target struct {
	Name string `yaml:"name"`
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

// Workload is one benchmark shape, run once per target.
type Workload struct {
	Name        string  `yaml:"name"`
	Op          string  `yaml:"op"` // set, get, or mixed; defaults to mixed
	Ops         int64   `yaml:"ops"`
	Connections int     `yaml:"connections"`
	KeySpace    uint64  `yaml:"keyspace"`
	ReadRatio   float64 `yaml:"read_ratio"`
	ZipfExp     float64 `yaml:"zipf_exp"`
	KeyPrefix   string  `yaml:"key_prefix"`
	ValueMin    int     `yaml:"value_size_min"`
	ValueMax    int     `yaml:"value_size_max"`
	RandomData  bool    `yaml:"random_data"`
	WarmupOps   int64   `yaml:"warmup"`
	Timeout     string  `yaml:"timeout"` // Go duration string, defaults to 5s
	RPS         int     `yaml:"rps"`
	Seed        int64   `yaml:"seed"`
}

// Config is a parsed suite file.
type Config struct {
	Targets   []Target   `yaml:"targets"`
	Workloads []Workload `yaml:"workloads"`
}

// Load reads and validates a YAML suite file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read suite file: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks the suite shape and every workload's bench config.
func (c *Config) Validate() error {
	if len(c.Targets) == 0 {
		return fmt.Errorf("suite needs at least one target")
	}
	if len(c.Workloads) == 0 {
		return fmt.Errorf("suite needs at least one workload")
	}

	seen := make(map[string]bool)
	for i, t := range c.Targets {
		if t.Name == "" {
			return fmt.Errorf("target %d: name is required", i)
		}
		if seen[t.Name] {
			return fmt.Errorf("duplicate target name %q", t.Name)
		}
		seen[t.Name] = true
	}

	for i := range c.Workloads {
		w := &c.Workloads[i]
		if w.Name == "" {
			w.Name = fmt.Sprintf("workload-%d", i+1)
		}
		benchCfg, err := w.BenchConfig(c.Targets[0])
		if err != nil {
			return fmt.Errorf("workload %q: %w", w.Name, err)
		}
		if err := benchCfg.Validate(); err != nil {
			return fmt.Errorf("workload %q: %w", w.Name, err)
		}
	}
	return nil
}

// BenchConfig materializes the workload against one target, applying
// defaults for omitted fields.
func (w *Workload) BenchConfig(t Target) (*bench.Config, error) {
	op := w.Op
	if op == "" {
		op = bench.OpModeMixed
	}

	timeout := 5 * time.Second
	if w.Timeout != "" {
		d, err := time.ParseDuration(w.Timeout)
		if err != nil {
			return nil, fmt.Errorf("invalid timeout: %w", err)
		}
		timeout = d
	}

	valueMin := w.ValueMin
	if valueMin == 0 {
		valueMin = 64
	}
	valueMax := w.ValueMax
	if valueMax == 0 {
		valueMax = valueMin
	}

	keyPrefix := w.KeyPrefix
	if keyPrefix == "" {
		keyPrefix = "key:"
	}

	return &bench.Config{
		Host:        t.Host,
		Port:        t.Port,
		Name:        t.Name,
		KeySpace:    w.KeySpace,
		Ops:         w.Ops,
		Connections: w.Connections,
		Op:          op,
		ReadRatio:   w.ReadRatio,
		ZipfExp:     w.ZipfExp,
		KeyPrefix:   keyPrefix,
		ValueMin:    valueMin,
		ValueMax:    valueMax,
		RandomData:  w.RandomData,
		WarmupOps:   w.WarmupOps,
		Timeout:     timeout,
		RPS:         w.RPS,
		Seed:        w.Seed,
	}, nil
}
