// Package transport defines the opaque byte-transport boundary between a
// sink and a station (spec §6). The wire framing itself is explicitly out
// of scope; this package only fixes the Go-level contract a real
// transport (gRPC, QUIC, a message broker) must satisfy, plus an
// in-memory fake used by tests and the replay CLI.
package transport

import "context"

// Segment is the wire payload described in spec §6: a self-describing,
// fixed-size record. SegmentAudioSamples always has length
// SegmentSampleDur * channels(SegmentNoChannels), zero-padded by the
// coalescer when there is no continuous input.
type Segment struct {
	TrackIdentifier    uint64
	TrackName          string
	TrackColor         uint32 // packed RGBA
	DawSampleRate       uint32
	DawBpm              uint32
	DawTimeSigNum       uint32
	DawTimeSigDen       uint32
	DawIsLooping        bool
	DawIsPlaying        bool
	DawLoopStartQN      float64
	DawLoopEndQN        float64
	DawNotSupported     bool
	SegmentStartSample  int64
	SegmentSampleDur    uint32
	SegmentNoChannels   uint32
	SegmentAudioSamples []float32
	PayloadSentTimeMs   int64
}

// Frame is one row of the catch-up response described in spec §6.
type Frame struct {
	TrackIdentifier   uint64
	TrackName         string
	TrackColor        uint32
	TotalNoChannels   uint32
	ChannelIndex      uint32
	SampleRate        uint32
	SegmentStartSample int64
	SegmentSampleLen  uint32
	NumFFTs           uint32
	FFTData           []float32
	DawBpm            float32
	DawTimeSigNum     int32
	DawTimeSigDen     int32
	SentTimeUnixMs    int64
}

// Transport is the boundary a sink uses to ship segments to a station and
// a visualiser uses to pull frame catch-ups. Implementations are supplied
// externally (spec §1 non-goal: "the on-the-wire RPC framing").
type Transport interface {
	// SendSegment ships one payload. Synchronous, non-idempotent;
	// duplicates are tolerated by the receiver (dedup is on
	// (track, start_sample)). Returns an error only for a genuine
	// send failure, never to report backpressure (the caller handles
	// that via reconnect bookkeeping).
	SendSegment(ctx context.Context, seg Segment) error

	// Reconnect resets any transport-side connection state. Idempotent.
	Reconnect(ctx context.Context) error

	// GetNextAudioEvents is the catch-up pull used by visualisers: given
	// the last offset/generation they observed, returns the next window
	// of frames plus the offset/generation to request next.
	GetNextAudioEvents(ctx context.Context, offset uint64, generation uint64) (frames []Frame, nextOffset uint64, serverGeneration uint64, err error)
}
