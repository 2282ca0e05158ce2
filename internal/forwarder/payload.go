package forwarder

import (
	"github.com/kholors/station/internal/config"
	"github.com/kholors/station/internal/transport"
)

// Payload is a fixed-capacity, reusable buffer for one
// transport.Segment's samples; pool slots hold Payloads so the coalescer
// never allocates on the common path (spec §4.4 back-pressure rule).
type Payload struct {
	TrackIdentifier uint64
	TrackName       string
	TrackColor      uint32
	DawNotSupported bool
	Daw             DawState
	StartSample     int64
	SampleRate      uint32
	NumChannels     uint32
	Duration        uint32 // samples filled so far, per channel

	// Samples is laid out as [channel0 x BLOCK_SIZE | channel1 x BLOCK_SIZE]
	// regardless of NumChannels, matching spec §4.4's fixed per-channel
	// stride.
	Samples [config.BlockSize * 2]float32
}

func (p *Payload) reset() {
	*p = Payload{}
}

// IsEmpty reports whether no samples have been written yet.
func (p *Payload) IsEmpty() bool { return p.Duration == 0 }

// IsFull reports whether the payload holds a full BLOCK_SIZE worth of
// samples per channel.
func (p *Payload) IsFull() bool { return p.Duration >= config.BlockSize }

// copyMetadata adopts track identity and DAW state from the first block
// contributing to an empty payload (spec §4.4 rule 1).
func (p *Payload) copyMetadata(identity TrackIdentity, b *Block, dawNotSupported bool) {
	p.TrackIdentifier = identity.ID
	p.TrackName = identity.Name
	p.TrackColor = identity.Color
	p.DawNotSupported = dawNotSupported
	p.Daw = b.DawInfo
	p.SampleRate = b.SampleRate
	p.NumChannels = b.NumChannels
	p.StartSample = b.StartSample + int64(b.UsedSamples)
	p.Duration = 0
}

// isContinuationOf reports whether b is within CONTINUATION_TOLERANCE of
// the end of the samples already written to p (spec §4.4 rule 2).
func (p *Payload) isContinuationOf(b *Block) bool {
	blockPos := b.StartSample + int64(b.UsedSamples)
	payloadEnd := p.StartSample + int64(p.Duration)
	delta := blockPos - payloadEnd
	if delta < 0 {
		delta = -delta
	}
	return delta <= config.ContinuationToleranceSamples
}

// appendFrom copies as many of b's remaining samples as fit, into both
// channel slots (duplicating mono into channel 1 so the payload buffer is
// always stereo-shaped, per spec §4.4: "mono tracks write the same data
// into both channels' position"; toSegment still emits only NumChannels
// channels on the wire). Returns b's samples remaining after the copy.
func (p *Payload) appendFrom(b *Block) int {
	remainingPayload := config.BlockSize - int(p.Duration)
	remainingBlock := b.Remaining()
	n := remainingBlock
	if remainingPayload < n {
		n = remainingPayload
	}
	if n <= 0 {
		return remainingBlock
	}

	ch0 := b.channelData(0)
	for i := 0; i < n; i++ {
		p.Samples[int(p.Duration)+i] = ch0[b.UsedSamples+i]
	}
	if b.NumChannels >= 2 {
		ch1 := b.channelData(1)
		for i := 0; i < n; i++ {
			p.Samples[config.BlockSize+int(p.Duration)+i] = ch1[b.UsedSamples+i]
		}
	} else {
		for i := 0; i < n; i++ {
			p.Samples[config.BlockSize+int(p.Duration)+i] = ch0[b.UsedSamples+i]
		}
	}

	b.UsedSamples += n
	p.Duration += uint32(n)
	return b.Remaining()
}

// zeroPadToFull fills any remaining space with zeros in both channel
// halves and marks the payload full (spec §4.4 rules 3 and 5).
func (p *Payload) zeroPadToFull() {
	if p.Duration >= config.BlockSize {
		return
	}
	for i := int(p.Duration); i < config.BlockSize; i++ {
		p.Samples[i] = 0
		p.Samples[config.BlockSize+i] = 0
	}
	p.Duration = config.BlockSize
}

// toSegment renders the payload as the wire-facing transport.Segment.
func (p *Payload) toSegment(sentAtMs int64) transport.Segment {
	samples := make([]float32, 0, int(p.Duration)*int(channelsOrOne(p.NumChannels)))
	channels := channelsOrOne(p.NumChannels)
	for ch := 0; ch < int(channels); ch++ {
		base := ch * config.BlockSize
		samples = append(samples, p.Samples[base:base+int(p.Duration)]...)
	}

	return transport.Segment{
		TrackIdentifier:     p.TrackIdentifier,
		TrackName:           p.TrackName,
		TrackColor:          p.TrackColor,
		DawSampleRate:       p.SampleRate,
		DawBpm:              uint32(p.Daw.Bpm),
		DawTimeSigNum:       p.Daw.TimeSigNum,
		DawTimeSigDen:       p.Daw.TimeSigDen,
		DawIsLooping:        p.Daw.IsLooping,
		DawIsPlaying:        p.Daw.IsPlaying,
		DawLoopStartQN:      p.Daw.LoopStartQN,
		DawLoopEndQN:        p.Daw.LoopEndQN,
		DawNotSupported:     p.DawNotSupported,
		SegmentStartSample:  p.StartSample,
		SegmentSampleDur:    p.Duration,
		SegmentNoChannels:   channels,
		SegmentAudioSamples: samples,
		PayloadSentTimeMs:   sentAtMs,
	}
}

func channelsOrOne(n uint32) uint32 {
	if n == 0 {
		return 1
	}
	return n
}

// TrackIdentity is the forwarder's (id, color, name) tuple, mirroring
// BufferForwarder's identity fields: the forwarder stores id and color in
// atomics and the name under a mutex (spec: "track identity atomics").
type TrackIdentity struct {
	ID    uint64
	Color uint32
	Name  string
}
