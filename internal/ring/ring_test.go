package ring

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/kholors/station/internal/transport"
)

func frame(trackID uint64, samples ...float32) transport.Frame {
	return transport.Frame{TrackIdentifier: trackID, FFTData: append([]float32{}, samples...)}
}

func TestRing_ReadFromScratchReturnsOldestAvailable(t *testing.T) {
	r := New(4, 8)
	for i := uint64(1); i <= 3; i++ {
		r.Write(frame(i, float32(i)))
	}

	batch := r.Read(0, 0)
	defer r.Release(batch)

	frames := batch.Frames()
	require.Len(t, frames, 3)
	require.EqualValues(t, 1, frames[0].TrackIdentifier)
	require.EqualValues(t, 3, frames[2].TrackIdentifier)
	require.Equal(t, r.Generation(), batch.ServerGeneration)
	require.EqualValues(t, 4, batch.NextOffset)
}

func TestRing_ReadResumesFromLastOffset(t *testing.T) {
	r := New(4, 8)
	for i := uint64(1); i <= 2; i++ {
		r.Write(frame(i))
	}
	first := r.Read(0, 0)
	resumeAt := first.NextOffset
	gen := first.ServerGeneration
	r.Release(first)

	r.Write(frame(3))
	r.Write(frame(4))

	second := r.Read(gen, resumeAt)
	defer r.Release(second)
	frames := second.Frames()
	require.Len(t, frames, 2)
	require.EqualValues(t, 3, frames[0].TrackIdentifier)
	require.EqualValues(t, 4, frames[1].TrackIdentifier)
}

func TestRing_OverwritesOldestWhenFull(t *testing.T) {
	r := New(3, 8)
	for i := uint64(1); i <= 5; i++ {
		r.Write(frame(i))
	}
	batch := r.Read(0, 0)
	defer r.Release(batch)
	frames := batch.Frames()
	require.Len(t, frames, 3)
	require.EqualValues(t, 3, frames[0].TrackIdentifier)
	require.EqualValues(t, 4, frames[1].TrackIdentifier)
	require.EqualValues(t, 5, frames[2].TrackIdentifier)
}

func TestRing_GenerationMismatchResets(t *testing.T) {
	r := New(3, 8)
	for i := uint64(1); i <= 3; i++ {
		r.Write(frame(i))
	}
	batch := r.Read(r.Generation()+1, 2)
	defer r.Release(batch)
	require.Len(t, batch.Frames(), 3)
}

func TestRing_OffsetAheadOfServerResets(t *testing.T) {
	r := New(3, 8)
	for i := uint64(1); i <= 2; i++ {
		r.Write(frame(i))
	}
	batch := r.Read(r.Generation(), 100)
	defer r.Release(batch)
	require.Len(t, batch.Frames(), 2)
}

func TestRing_CaughtUpClientGetsNothingNew(t *testing.T) {
	r := New(3, 8)
	r.Write(frame(1))
	first := r.Read(r.Generation(), 0)
	next := first.NextOffset
	r.Release(first)

	second := r.Read(r.Generation(), next)
	defer r.Release(second)
	require.Empty(t, second.Frames())
}

func TestRing_ReleaseReusesResponseBatch(t *testing.T) {
	r := New(4, 8)
	r.Write(frame(1))
	first := r.Read(0, 0)
	r.Release(first)

	second := r.Read(0, 0)
	require.Same(t, first, second)
}

func TestRing_FFTDataIsIndependentOfRingStorage(t *testing.T) {
	r := New(2, 4)
	r.Write(frame(1, 1, 2, 3))
	batch := r.Read(0, 0)
	frames := batch.Frames()
	got := append([]float32{}, frames[0].FFTData...)
	r.Release(batch)

	// Overwrite the ring slot; the earlier snapshot must be unaffected.
	r.Write(frame(2, 9, 9, 9))
	r.Write(frame(3, 8, 8, 8))
	require.Equal(t, []float32{1, 2, 3}, got)
}
