package replay

import (
	"fmt"
	"io"
	"os"

	"github.com/mewkiz/flac"
)

// FLACDecoder decodes FLAC files, downmixing multi-channel subframes to
// mono and buffering the tail of over-read frames between calls.
type FLACDecoder struct {
	stream     *flac.Stream
	file       *os.File
	sampleRate int
	buffer     []float64
}

// NewFLACDecoder opens path and parses its FLAC stream header.
func NewFLACDecoder(path string) (*FLACDecoder, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}

	stream, err := flac.New(f)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("replay: create FLAC decoder: %w", err)
	}

	return &FLACDecoder{stream: stream, file: f, sampleRate: int(stream.Info.SampleRate)}, nil
}

// ReadChunk reads numSamples mono samples, parsing as many FLAC frames as
// needed and stashing any overflow in d.buffer for the next call.
func (d *FLACDecoder) ReadChunk(numSamples int) ([]float64, error) {
	samples := make([]float64, 0, numSamples)

	if len(d.buffer) > 0 {
		take := numSamples
		if take > len(d.buffer) {
			take = len(d.buffer)
		}
		samples = append(samples, d.buffer[:take]...)
		d.buffer = d.buffer[take:]
	}

	for len(samples) < numSamples {
		frame, err := d.stream.ParseNext()
		if err != nil {
			if err == io.EOF {
				if len(samples) == 0 {
					return nil, io.EOF
				}
				return samples, nil
			}
			return nil, fmt.Errorf("replay: parse FLAC frame: %w", err)
		}

		frameLen := len(frame.Subframes[0].Samples)
		maxVal := float64(int64(1) << (frame.BitsPerSample - 1))

		for i := 0; i < frameLen; i++ {
			var mono float64
			if len(frame.Subframes) == 1 {
				mono = float64(frame.Subframes[0].Samples[i])
			} else {
				var sum int64
				for _, sub := range frame.Subframes {
					sum += int64(sub.Samples[i])
				}
				mono = float64(sum) / float64(len(frame.Subframes))
			}
			normalized := mono / maxVal

			if len(samples) < numSamples {
				samples = append(samples, normalized)
			} else {
				d.buffer = append(d.buffer, normalized)
			}
		}
	}

	return samples, nil
}

func (d *FLACDecoder) SampleRate() int  { return d.sampleRate }
func (d *FLACDecoder) NumChannels() int { return 1 }

func (d *FLACDecoder) Close() error {
	if d.stream != nil {
		d.stream.Close()
	}
	if d.file != nil {
		return d.file.Close()
	}
	return nil
}
