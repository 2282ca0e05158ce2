package forwarder

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/kholors/station/internal/config"
	"github.com/kholors/station/internal/transport"
)

func feedBlock(t *testing.T, f *Forwarder, startSample int64, samples []float32) {
	t.Helper()
	idx, b, ok := f.AcquireBlock()
	require.True(t, ok)
	b.StartSample = startSample
	b.SampleRate = 48000
	b.NumChannels = 1
	b.NumSamples = len(samples)
	copy(b.Channel0[:], samples)
	f.Submit(idx)
}

func waitForSent(t *testing.T, mem *transport.Memory, n int, timeout time.Duration) []transport.Segment {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if sent := mem.Sent(); len(sent) >= n {
			return sent
		}
		time.Sleep(time.Millisecond)
	}
	require.FailNow(t, "timed out waiting for sends", "got %d, want %d", len(mem.Sent()), n)
	return nil
}

// TestForwarder_ContinuousBlocksProduceExactPayloads is spec Property 2:
// blocks whose starts form an arithmetic progression with step == length
// and total count k*BLOCK_SIZE produce exactly k full payloads whose
// concatenated samples equal the input.
func TestForwarder_ContinuousBlocksProduceExactPayloads(t *testing.T) {
	mem := transport.NewMemory(1)
	f := New(mem)
	f.Start()
	defer f.Shutdown()
	f.SetTrackIdentity(TrackIdentity{ID: 7, Color: 0xff00ff00, Name: "guitar"})

	const k = 3
	total := k * config.BlockSize
	var allSamples []float32
	for i := 0; i < total; i++ {
		allSamples = append(allSamples, float32(i))
	}

	chunk := config.BlockSize / 4
	var start int64
	for off := 0; off < total; off += chunk {
		feedBlock(t, f, start, allSamples[off:off+chunk])
		start += int64(chunk)
	}

	sent := waitForSent(t, mem, k, 2*time.Second)
	require.Len(t, sent, k)

	var reconstructed []float32
	for _, seg := range sent {
		require.EqualValues(t, config.BlockSize, seg.SegmentSampleDur)
		reconstructed = append(reconstructed, seg.SegmentAudioSamples[:config.BlockSize]...)
	}
	require.Equal(t, allSamples, reconstructed)
}

// TestForwarder_DiscontinuityZeroPads is spec Property 3: a partially
// filled payload followed by a block whose start sample is more than
// CONTINUATION_TOLERANCE_SAMPLES away is flushed zero-padded after its
// filled prefix.
func TestForwarder_DiscontinuityZeroPads(t *testing.T) {
	mem := transport.NewMemory(1)
	f := New(mem)
	f.Start()
	defer f.Shutdown()

	first := make([]float32, 100)
	for i := range first {
		first[i] = float32(i + 1)
	}
	feedBlock(t, f, 0, first)

	// Jump far ahead: not a continuation.
	second := make([]float32, 50)
	feedBlock(t, f, 100000, second)

	sent := waitForSent(t, mem, 1, 2*time.Second)
	seg := sent[0]
	require.EqualValues(t, config.BlockSize, seg.SegmentSampleDur)
	for i := 0; i < 100; i++ {
		require.Equal(t, first[i], seg.SegmentAudioSamples[i])
	}
	for i := 100; i < config.BlockSize; i++ {
		require.Equal(t, float32(0), seg.SegmentAudioSamples[i])
	}
}

// TestForwarder_FIFONeverExceedsCapacityWithoutConsumer submits more
// blocks than the FIFO holds with no coalescer running. The block pool
// and the FIFO both hold config.PoolCap entries, so AcquireBlock runs out
// before the FIFO overflows.
func TestForwarder_FIFONeverExceedsCapacityWithoutConsumer(t *testing.T) {
	mem := transport.NewMemory(1)
	f := New(mem)
	// Deliberately don't Start(): nothing drains the FIFO, so it fills up.
	for i := 0; i < config.PoolCap+8; i++ {
		idx, b, ok := f.AcquireBlock()
		if !ok {
			continue
		}
		b.NumSamples = 1
		b.NumChannels = 1
		f.Submit(idx)
	}
	require.LessOrEqual(t, f.toCoalesce.Len(), config.PoolCap)
}

func TestForwarder_ReconnectsAfterThreshold(t *testing.T) {
	mem := transport.NewMemory(1)
	f := New(mem)
	f.Start()
	defer f.Shutdown()
	f.lastSentOK = time.Now().Add(-2 * config.ReconnectThresholdMs * time.Millisecond)

	mem.ArmFailure(1)
	feedBlock(t, f, 0, make([]float32, config.BlockSize))

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) && mem.Reconnects() == 0 {
		time.Sleep(time.Millisecond)
	}
	require.GreaterOrEqual(t, mem.Reconnects(), 1)
}
