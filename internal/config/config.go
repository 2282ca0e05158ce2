// Package config holds the data-plane constants shared by every component
// of the pipeline (sink, station, and the demo CLIs), with optional
// environment overrides for the values a deployment may reasonably want to
// tune without a rebuild.
package config

import (
	"os"
	"strconv"
)

// Wire/pipeline constants (spec §6). These are the contract between sinks
// and stations: changing them changes the wire shape, so they default to
// fixed values and are only overridable for local testing.
const (
	// BlockSize is the fixed sample count of a flushed SegmentPayload, per
	// channel.
	BlockSize = 4096

	// ZeroPad is the zero-padding factor applied before each STFT.
	ZeroPad = 2

	// Win is the STFT window size in samples.
	Win = 2048

	// Overlap is the number of overlapping windows per non-overlapping
	// window length.
	Overlap = 4

	// MinDB is the floor every STFT bin is clamped to.
	MinDB = -64.0

	// PoolCap is the default capacity of a bounded preallocated pool.
	PoolCap = 4096

	// RingCap is the default capacity of the distribution ring buffer.
	RingCap = 512

	// ContinuationToleranceSamples is the maximum gap between a block's
	// start sample and a payload's current end for the block to be
	// considered a continuation rather than a discontinuity.
	ContinuationToleranceSamples = 60

	// Batch is the maximum number of STFT jobs submitted to the worker
	// pool per wait-group batch.
	Batch = 128

	// MaxPayloadIdleMs bounds how long a partially filled payload may wait
	// before being zero-padded and flushed.
	MaxPayloadIdleMs = 250

	// ReconnectThresholdMs is how long the sender tolerates consecutive
	// send failures before calling the transport's Reconnect.
	ReconnectThresholdMs = 4000
)

// NumBinsPerFFT returns the number of frequency bins produced by one STFT
// of size Win*ZeroPad, per spec §3: (FFT_SIZE * ZERO_PAD / 2) + 1.
func NumBinsPerFFT() int {
	return (Win*ZeroPad)/2 + 1
}

// NumFFTs returns how many overlapping STFT windows cover n samples, per
// spec §3: ceil(N / WIN) * OVERLAP - (OVERLAP - 1).
func NumFFTs(n int) int {
	if n <= 0 {
		n = 1
	}
	numWindowsNoOverlap := (n + Win - 1) / Win
	return numWindowsNoOverlap*Overlap - (Overlap - 1)
}

// Runtime holds the subset of constants that deployments may override via
// environment variables, read once at process startup by cmd/station.
type Runtime struct {
	PoolCapacity int
	RingCapacity int
}

// DefaultRuntime returns the spec-mandated defaults.
func DefaultRuntime() Runtime {
	return Runtime{
		PoolCapacity: PoolCap,
		RingCapacity: RingCap,
	}
}

// LoadRuntime applies KHOLORS_POOL_CAPACITY / KHOLORS_RING_CAPACITY
// environment overrides on top of the defaults, ignoring unparsable values.
// Callers typically load a .env file with joho/godotenv before calling this.
func LoadRuntime() Runtime {
	rt := DefaultRuntime()
	if v, ok := os.LookupEnv("KHOLORS_POOL_CAPACITY"); ok {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			rt.PoolCapacity = n
		}
	}
	if v, ok := os.LookupEnv("KHOLORS_RING_CAPACITY"); ok {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			rt.RingCapacity = n
		}
	}
	return rt
}
