// Package keydist provides key selection and value generation for workload
// drivers. Generators are deterministic for a given seed and are not safe for
// concurrent use; each worker owns its own generator.
package keydist

import (
	cryptorand "crypto/rand"
	"fmt"
	"math"
	"math/rand"
	"strconv"
)

// Generator yields key indices in [0, n).
type Generator interface {
	Next() uint64
}

// ZipfGenerator draws skewed key indices. Samples are taken over the full
// uint64 range and mapped modulo n, so hot keys spread across the key space
// instead of clustering at the low indices.
type ZipfGenerator struct {
	zipf *rand.Zipf
	n    uint64
}

// NewZipfGenerator builds a seeded Zipf generator over n keys. Exponents at or
// below 1 are clamped to 1.01, the smallest value math/rand accepts that still
// produces visible skew.
func NewZipfGenerator(n uint64, exponent float64, seed int64) *ZipfGenerator {
	if exponent <= 1 {
		exponent = 1.01
	}
	if n < 1 {
		n = 1
	}
	rng := rand.New(rand.NewSource(seed))
	return &ZipfGenerator{
		zipf: rand.NewZipf(rng, exponent, 1, math.MaxUint64),
		n:    n,
	}
}

func (zg *ZipfGenerator) Next() uint64 {
	return zg.zipf.Uint64() % zg.n
}

// UniformGenerator draws each key index with equal probability.
type UniformGenerator struct {
	rng *rand.Rand
	n   uint64
}

func NewUniformGenerator(n uint64, seed int64) *UniformGenerator {
	if n < 1 {
		n = 1
	}
	return &UniformGenerator{rng: rand.New(rand.NewSource(seed)), n: n}
}

func (ug *UniformGenerator) Next() uint64 {
	return uint64(ug.rng.Int63n(int64(ug.n)))
}

// SequentialGenerator cycles 0..n-1 and wraps. Prefill workers walk their
// key shard through it, touching every key exactly once per cycle.
type SequentialGenerator struct {
	next uint64
	n    uint64
}

func NewSequentialGenerator(n uint64) *SequentialGenerator {
	if n < 1 {
		n = 1
	}
	return &SequentialGenerator{n: n}
}

func (sg *SequentialGenerator) Next() uint64 {
	idx := sg.next
	sg.next = (sg.next + 1) % sg.n
	return idx
}

// Key renders the key string for an index: prefix followed by the decimal
// index with no padding.
func Key(prefix string, idx uint64) string {
	return prefix + strconv.FormatUint(idx, 10)
}

// ValueSpec describes how to size and fill values. Sizes are drawn uniformly
// from [MinSize, MaxSize]; equal bounds give fixed-size values.
type ValueSpec struct {
	MinSize    int
	MaxSize    int
	RandomData bool
}

// Validate rejects non-positive or inverted size bounds.
func (vs ValueSpec) Validate() error {
	if vs.MinSize < 1 {
		return fmt.Errorf("value size must be positive, got %d", vs.MinSize)
	}
	if vs.MaxSize < vs.MinSize {
		return fmt.Errorf("value size range %d-%d is inverted", vs.MinSize, vs.MaxSize)
	}
	return nil
}

var fillPattern = []byte("abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789")

// ValueGenerator produces value payloads per a ValueSpec. Like the key
// generators it is single-owner, seeded, and deterministic for size choices;
// RandomData payload bytes come from crypto/rand and are not reproducible.
type ValueGenerator struct {
	spec ValueSpec
	rng  *rand.Rand
}

func NewValueGenerator(spec ValueSpec, seed int64) *ValueGenerator {
	return &ValueGenerator{spec: spec, rng: rand.New(rand.NewSource(seed))}
}

// Next returns a freshly allocated value of a size drawn from the spec range.
func (vg *ValueGenerator) Next() ([]byte, error) {
	size := vg.spec.MinSize
	if vg.spec.MaxSize > vg.spec.MinSize {
		size += vg.rng.Intn(vg.spec.MaxSize - vg.spec.MinSize + 1)
	}

	data := make([]byte, size)
	if vg.spec.RandomData {
		if _, err := cryptorand.Read(data); err != nil {
			return nil, fmt.Errorf("failed to generate random data: %w", err)
		}
		return data, nil
	}
	for i := range data {
		data[i] = fillPattern[i%len(fillPattern)]
	}
	return data, nil
}

// Pool pre-generates count values so the benchmark hot path never pays
// generation cost. Next cycles through the pool.
func (vg *ValueGenerator) Pool(count int) ([][]byte, error) {
	if count < 1 {
		count = 1
	}
	pool := make([][]byte, count)
	for i := range pool {
		v, err := vg.Next()
		if err != nil {
			return nil, err
		}
		pool[i] = v
	}
	return pool, nil
}
