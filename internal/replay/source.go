package replay

import (
	"time"

	"github.com/kholors/station/internal/config"
	"github.com/kholors/station/internal/forwarder"
)

// Source drives a Forwarder (C4) from a decoded file instead of a live
// host audio callback, for cmd/sink's replay file argument.
type Source struct {
	dec  Decoder
	fwd  *forwarder.Forwarder
	pace bool
}

// NewSource pairs a Decoder with the Forwarder it will feed. When pace is
// true, Run sleeps between blocks to approximate the file's real-time
// playback duration; otherwise it submits as fast as the forwarder's
// pools allow.
func NewSource(dec Decoder, fwd *forwarder.Forwarder, pace bool) *Source {
	return &Source{dec: dec, fwd: fwd, pace: pace}
}

// Run reads the decoder to completion, acquiring and submitting one block
// per config.BlockSize chunk of samples.
func (s *Source) Run() error {
	var startSample int64
	blockDur := time.Duration(float64(config.BlockSize) / float64(s.dec.SampleRate()) * float64(time.Second))

	for {
		chunk, err := s.dec.ReadChunk(config.BlockSize)
		if len(chunk) > 0 {
			s.submit(startSample, chunk)
			startSample += int64(len(chunk))
		}
		if err != nil {
			if err == EOF {
				return nil
			}
			return err
		}
		if s.pace {
			time.Sleep(blockDur)
		}
	}
}

func (s *Source) submit(startSample int64, chunk []float64) {
	for {
		idx, block, ok := s.fwd.AcquireBlock()
		if !ok {
			time.Sleep(time.Millisecond)
			continue
		}
		block.StartSample = startSample
		block.SampleRate = uint32(s.dec.SampleRate())
		block.NumChannels = 1
		block.NumSamples = len(chunk)
		for i, v := range chunk {
			block.Channel0[i] = float32(v)
		}
		block.DawInfo = forwarder.DawState{HasBpm: true, Bpm: 120, IsPlaying: true}
		s.fwd.Submit(idx)
		return
	}
}
