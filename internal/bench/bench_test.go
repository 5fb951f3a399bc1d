package bench

import (
	"net"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kvbench/kvcompare/internal/keydist"
	"github.com/kvbench/kvcompare/internal/resptest"
)

func testConfig(host string, port int) *Config {
	return &Config{
		Host:        host,
		Port:        port,
		Name:        "test",
		KeySpace:    50,
		Ops:         200,
		Connections: 4,
		Op:          OpModeMixed,
		ReadRatio:   0.5,
		KeyPrefix:   "key:",
		ValueMin:    32,
		ValueMax:    32,
		Timeout:     2 * time.Second,
		Seed:        42,
	}
}

func deadPort(t *testing.T) (string, int) {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	host, portStr, err := net.SplitHostPort(ln.Addr().String())
	require.NoError(t, err)
	port, _ := strconv.Atoi(portStr)
	ln.Close()
	return host, port
}

func TestRunMixedWorkload(t *testing.T) {
	srv := resptest.Start(t)
	host, port := srv.Addr(t)

	cfg := testConfig(host, port)
	result, err := Run(cfg, nil)
	require.NoError(t, err)

	assert.Equal(t, int64(200), result.Assigned)
	assert.Equal(t, result.Assigned, int64(len(result.Samples))+result.Errors)
	assert.Zero(t, result.Errors)
	assert.True(t, result.End.After(result.Start))

	// Prefill must have written the whole key space before any GET ran.
	sets, gets := srv.Counts()
	assert.GreaterOrEqual(t, sets, int64(50))
	assert.Greater(t, gets, int64(0))

	var setSamples, getSamples int
	for _, s := range result.Samples {
		require.Greater(t, s.LatencyMS, 0.0)
		if s.Op == OpSet {
			setSamples++
		} else {
			getSamples++
		}
	}
	assert.Greater(t, setSamples, 0)
	assert.Greater(t, getSamples, 0)
}

func TestRunFloorDivisionDropsRemainder(t *testing.T) {
	srv := resptest.Start(t)
	host, port := srv.Addr(t)

	cfg := testConfig(host, port)
	cfg.Op = OpModeSet
	cfg.Ops = 101
	cfg.Connections = 4

	result, err := Run(cfg, nil)
	require.NoError(t, err)
	assert.Equal(t, int64(100), result.Assigned)
	assert.Equal(t, result.Assigned, int64(len(result.Samples))+result.Errors)
}

func TestRunConnectFailureConvertsShareToErrors(t *testing.T) {
	host, port := deadPort(t)

	cfg := testConfig(host, port)
	cfg.Op = OpModeSet // no prefill, so the run reaches measurement
	cfg.Ops = 40
	cfg.Connections = 4
	cfg.Timeout = 200 * time.Millisecond

	result, err := Run(cfg, nil)
	require.NoError(t, err)
	assert.Empty(t, result.Samples)
	assert.Equal(t, int64(40), result.Errors)
	assert.Equal(t, result.Assigned, int64(len(result.Samples))+result.Errors)
}

func TestRunPrefillFailureAborts(t *testing.T) {
	host, port := deadPort(t)

	cfg := testConfig(host, port)
	cfg.Op = OpModeGet
	cfg.Timeout = 200 * time.Millisecond

	_, err := Run(cfg, nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrPrefill)
}

func TestRunPrefillServerErrorAborts(t *testing.T) {
	srv := resptest.Start(t)
	srv.FailWrites.Store(true)
	host, port := srv.Addr(t)

	cfg := testConfig(host, port)
	cfg.Op = OpModeGet

	_, err := Run(cfg, nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrPrefill)
}

func TestRunPrefillWritesEveryKeyOnce(t *testing.T) {
	srv := resptest.Start(t)
	host, port := srv.Addr(t)

	cfg := testConfig(host, port)
	cfg.Op = OpModeGet
	cfg.KeySpace = 30
	cfg.Ops = 30

	result, err := Run(cfg, nil)
	require.NoError(t, err)
	assert.Zero(t, result.Errors)

	// Exactly one SET per key: the shards cover the space with no overlap
	// and no duplicates.
	sets, _ := srv.Counts()
	assert.Equal(t, int64(30), sets)
	for i := uint64(0); i < 30; i++ {
		_, ok := srv.Value(keydist.Key(cfg.KeyPrefix, i))
		assert.True(t, ok, "key %d missing after prefill", i)
	}
}

func TestRunOperationErrorsCountedAndRunContinues(t *testing.T) {
	srv := resptest.Start(t)
	host, port := srv.Addr(t)

	cfg := testConfig(host, port)
	cfg.Op = OpModeSet
	cfg.Ops = 80
	srv.FailWrites.Store(true)

	result, err := Run(cfg, nil)
	require.NoError(t, err)
	// Server error replies keep the stream in sync: every op fails but the
	// connections stay up and the full budget is attempted.
	assert.Equal(t, int64(80), result.Errors)
	assert.Empty(t, result.Samples)
	sets, _ := srv.Counts()
	assert.Equal(t, int64(80), sets)
}

func TestRunObserverSeesEveryOperation(t *testing.T) {
	srv := resptest.Start(t)
	host, port := srv.Addr(t)

	cfg := testConfig(host, port)
	cfg.Op = OpModeSet
	cfg.Ops = 60

	tracker := NewTracker()
	defer tracker.Stop()

	result, err := Run(cfg, tracker)
	require.NoError(t, err)

	snap := tracker.Snapshot()
	assert.Equal(t, result.Assigned, snap.TotalOps)
	assert.Equal(t, int64(len(result.Samples)), snap.SuccessOps)
	assert.Equal(t, result.Errors, snap.FailedOps)
}

func TestRunRPSCapSlowsRun(t *testing.T) {
	srv := resptest.Start(t)
	host, port := srv.Addr(t)

	cfg := testConfig(host, port)
	cfg.Op = OpModeSet
	cfg.Ops = 40
	cfg.Connections = 2
	cfg.RPS = 100

	result, err := Run(cfg, nil)
	require.NoError(t, err)
	// 40 ops at 100 ops/s aggregate needs roughly 400ms.
	assert.GreaterOrEqual(t, result.Duration(), 250*time.Millisecond)
	assert.Equal(t, result.Assigned, int64(len(result.Samples))+result.Errors)
}

func TestRunWarmupNotCounted(t *testing.T) {
	srv := resptest.Start(t)
	host, port := srv.Addr(t)

	cfg := testConfig(host, port)
	cfg.Op = OpModeSet
	cfg.Ops = 20
	cfg.Connections = 2
	cfg.WarmupOps = 10

	result, err := Run(cfg, nil)
	require.NoError(t, err)
	assert.Equal(t, int64(20), result.Assigned)

	// The server saw warm-up traffic on top of the measured budget.
	sets, _ := srv.Counts()
	assert.Equal(t, int64(30), sets)
}

func TestConfigValidate(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
	}{
		{"missing host", func(c *Config) { c.Host = "" }},
		{"bad port", func(c *Config) { c.Port = 0 }},
		{"zero keyspace", func(c *Config) { c.KeySpace = 0 }},
		{"zero ops", func(c *Config) { c.Ops = 0 }},
		{"zero connections", func(c *Config) { c.Connections = 0 }},
		{"bad op", func(c *Config) { c.Op = "delete" }},
		{"ratio above one", func(c *Config) { c.ReadRatio = 1.5 }},
		{"negative zipf", func(c *Config) { c.ZipfExp = -1 }},
		{"zero value size", func(c *Config) { c.ValueMin = 0 }},
		{"inverted value range", func(c *Config) { c.ValueMin = 100; c.ValueMax = 10 }},
		{"negative warmup", func(c *Config) { c.WarmupOps = -1 }},
		{"zero timeout", func(c *Config) { c.Timeout = 0 }},
		{"negative rps", func(c *Config) { c.RPS = -5 }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := testConfig("localhost", 6379)
			tc.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}

	assert.NoError(t, testConfig("localhost", 6379).Validate())
}

func TestTrackerSnapshotPercentiles(t *testing.T) {
	tracker := NewTracker()
	defer tracker.Stop()

	for i := 1; i <= 100; i++ {
		tracker.ObserveSample(OpGet, float64(i))
	}
	tracker.ObserveError()

	// Give the collector goroutine a moment to drain the channel.
	require.Eventually(t, func() bool {
		s := tracker.Snapshot()
		return s.P99MS > s.P50MS && s.P50MS > 0
	}, time.Second, 5*time.Millisecond)

	snap := tracker.Snapshot()
	assert.Equal(t, int64(101), snap.TotalOps)
	assert.Equal(t, int64(100), snap.SuccessOps)
	assert.Equal(t, int64(1), snap.FailedOps)
	assert.LessOrEqual(t, snap.P50MS, snap.P95MS)
	assert.LessOrEqual(t, snap.P95MS, snap.P99MS)
}
