package replay

import (
	"fmt"
	"io"
	"os"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

// WAVDecoder decodes PCM WAV files, downmixing to mono.
type WAVDecoder struct {
	decoder    *wav.Decoder
	file       *os.File
	sampleRate int
	bitDepth   int
	numChans   int
}

// NewWAVDecoder opens path and seeks to its PCM data.
func NewWAVDecoder(path string) (*WAVDecoder, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}

	decoder := wav.NewDecoder(f)
	if !decoder.IsValidFile() {
		f.Close()
		return nil, fmt.Errorf("replay: invalid WAV file %q", path)
	}
	if err := decoder.FwdToPCM(); err != nil {
		f.Close()
		return nil, fmt.Errorf("replay: seek to PCM data: %w", err)
	}

	return &WAVDecoder{
		decoder:    decoder,
		file:       f,
		sampleRate: int(decoder.SampleRate),
		bitDepth:   int(decoder.BitDepth),
		numChans:   int(decoder.NumChans),
	}, nil
}

// ReadChunk reads numSamples mono frames, downmixing interleaved channels
// by averaging.
func (d *WAVDecoder) ReadChunk(numSamples int) ([]float64, error) {
	intBuf := &audio.IntBuffer{
		Data: make([]int, numSamples*d.numChans),
		Format: &audio.Format{
			NumChannels: d.numChans,
			SampleRate:  d.sampleRate,
		},
	}

	n, err := d.decoder.PCMBuffer(intBuf)
	if err != nil && err != io.EOF {
		return nil, fmt.Errorf("replay: read WAV PCM buffer: %w", err)
	}
	if n == 0 {
		return nil, io.EOF
	}

	frames := n / d.numChans
	maxVal := float64(int64(1) << uint(d.bitDepth-1))
	samples := make([]float64, frames)
	for i := 0; i < frames; i++ {
		var sum int
		for ch := 0; ch < d.numChans; ch++ {
			sum += intBuf.Data[i*d.numChans+ch]
		}
		samples[i] = float64(sum) / float64(d.numChans) / maxVal
	}
	return samples, nil
}

func (d *WAVDecoder) SampleRate() int  { return d.sampleRate }
func (d *WAVDecoder) NumChannels() int { return 1 }

func (d *WAVDecoder) Close() error {
	if d.file != nil {
		return d.file.Close()
	}
	return nil
}
