// Package forwarder implements the Coalescing Forwarder (C4, spec §4.4):
// it turns variable-size realtime audio blocks into fixed-size
// SegmentPayloads and ships them through a transport.Transport without
// ever blocking the audio thread. Grounded on the origin's
// StationPlugin/BufferForwarder.{h,cpp}, with the audio-thread/coalescer
// handoff reimplemented on top of internal/fifo and internal/pool instead
// of a second bespoke lock-free queue.
package forwarder

import "github.com/kholors/station/internal/config"

// Block is one realtime audio callback's worth of samples, captured into
// a pool slot by the audio thread and handed to the coalescer by index.
// Reused across callbacks: the audio thread acquires a slot, overwrites
// Samples up to NumSamples, and pushes the slot's index onto the
// to-coalesce FIFO.
type Block struct {
	StartSample int64
	SampleRate  uint32
	NumChannels uint32
	NumSamples  int
	UsedSamples int

	// Channel0/Channel1 are preallocated at BLOCK_SIZE capacity so a
	// reservation never allocates; only the first NumSamples of each are
	// meaningful. Channel1 is unused when NumChannels == 1.
	Channel0 [config.BlockSize]float32
	Channel1 [config.BlockSize]float32

	DawInfo DawState
}

// DawState is a snapshot of host playback state, carried alongside a
// Block's samples (optional in the origin via juce::Optional; here a
// HasX flag stands in for "the DAW did not report this field").
type DawState struct {
	HasBpm           bool
	Bpm              float64
	HasTimeSignature bool
	TimeSigNum       uint32
	TimeSigDen       uint32
	HasLoopBounds    bool
	LoopStartQN      float64
	LoopEndQN        float64
	IsLooping        bool
	IsPlaying        bool
}

// Remaining reports how many of this block's captured samples have not
// yet been copied into a payload.
func (b *Block) Remaining() int {
	return b.NumSamples - b.UsedSamples
}

func (b *Block) channelData(channel int) []float32 {
	if channel == 1 && b.NumChannels >= 2 {
		return b.Channel1[:b.NumSamples]
	}
	return b.Channel0[:b.NumSamples]
}
