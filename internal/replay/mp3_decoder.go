package replay

import (
	"fmt"
	"io"
	"os"

	"github.com/hajimehoshi/go-mp3"
)

// MP3Decoder decodes MP3 files. go-mp3 always outputs 16-bit stereo, which
// this decoder downmixes to mono.
type MP3Decoder struct {
	decoder    *mp3.Decoder
	file       *os.File
	sampleRate int
}

// NewMP3Decoder opens path for MP3 decoding.
func NewMP3Decoder(path string) (*MP3Decoder, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}

	decoder, err := mp3.NewDecoder(f)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("replay: create MP3 decoder: %w", err)
	}

	return &MP3Decoder{decoder: decoder, file: f, sampleRate: decoder.SampleRate()}, nil
}

// ReadChunk reads numSamples mono frames (4 bytes per stereo frame: two
// 16-bit channels, averaged down to one).
func (d *MP3Decoder) ReadChunk(numSamples int) ([]float64, error) {
	buf := make([]byte, numSamples*4)

	n, err := d.decoder.Read(buf)
	if err != nil && err != io.EOF {
		return nil, fmt.Errorf("replay: read MP3 data: %w", err)
	}
	if n == 0 {
		return nil, io.EOF
	}

	frames := n / 4
	samples := make([]float64, frames)
	for i := 0; i < frames; i++ {
		left := int16(buf[i*4]) | (int16(buf[i*4+1]) << 8)
		right := int16(buf[i*4+2]) | (int16(buf[i*4+3]) << 8)
		samples[i] = (float64(left) + float64(right)) / 2.0 / 32768.0
	}
	return samples, nil
}

func (d *MP3Decoder) SampleRate() int  { return d.sampleRate }
func (d *MP3Decoder) NumChannels() int { return 1 }

func (d *MP3Decoder) Close() error {
	if d.file != nil {
		return d.file.Close()
	}
	return nil
}
