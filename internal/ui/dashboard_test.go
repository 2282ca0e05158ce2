package ui

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/kholors/station/internal/forwarder"
	"github.com/kholors/station/internal/ring"
	"github.com/kholors/station/internal/transport"
)

func TestRingAndForwarders_SampleReportsRingStats(t *testing.T) {
	r := ring.New(4, 512)
	r.Write(transport.Frame{FFTData: []float32{1, 2, 3}})
	r.Write(transport.Frame{FFTData: []float32{4, 5, 6}})

	s := RingAndForwarders{Ring: r}
	snap := s.Sample()

	require.Equal(t, r.Generation(), snap.Ring.Generation)
	require.Equal(t, uint64(2), snap.Ring.LastOffset)
	require.Equal(t, 2, snap.Ring.UsedSize)
	require.Equal(t, 4, snap.Ring.Capacity)
	require.Empty(t, snap.Forwarders)
}

func TestRingAndForwarders_SampleReportsForwarderQueueDepths(t *testing.T) {
	tr := transport.NewMemory(1)
	f := forwarder.New(tr)
	f.SetTrackIdentity(forwarder.TrackIdentity{ID: 1, Name: "kick"})

	s := RingAndForwarders{Forwarders: func() []*forwarder.Forwarder { return []*forwarder.Forwarder{f} }}
	snap := s.Sample()

	require.Len(t, snap.Forwarders, 1)
	require.Equal(t, "kick", snap.Forwarders[0].TrackName)
	require.Equal(t, 0, snap.Forwarders[0].CoalesceDepth)
	require.Equal(t, 0, snap.Forwarders[0].SendDepth)
	require.Equal(t, uint64(0), snap.Forwarders[0].Dropped)
}

func TestRingAndForwarders_SampleSkipsNilForwarders(t *testing.T) {
	s := RingAndForwarders{Forwarders: func() []*forwarder.Forwarder { return []*forwarder.Forwarder{nil} }}
	snap := s.Sample()
	require.Empty(t, snap.Forwarders)
}

func TestSparkline_EmptyHistoryIsFlatline(t *testing.T) {
	out := sparkline(nil, 5)
	require.Contains(t, out, "▁▁▁▁▁")
}

func TestSparkline_PeaksAtMaxRenderFullBlock(t *testing.T) {
	out := sparkline([]float64{1, 5, 10}, 3)
	require.Contains(t, out, "█")
}

func TestSparkline_TruncatesToWidthFromTheRight(t *testing.T) {
	history := make([]float64, 0, sparklineHistory+10)
	for i := 0; i < sparklineHistory+10; i++ {
		history = append(history, float64(i))
	}
	out := sparkline(history, sparklineHistory)
	require.Contains(t, out, "█")
}
