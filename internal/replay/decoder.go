// Package replay feeds a Forwarder (C4) from a recorded WAV/MP3/FLAC file
// instead of a live DAW callback, for cmd/sink's replay file argument. The
// per-format decoders are adapted from the teacher's internal/audio
// package, narrowed to mono downmix (the forwarder drives per-track
// pipelines; a replay source is one track).
package replay

import (
	"fmt"
	"io"
	"path/filepath"
	"strings"
)

// Decoder reads a file's samples as mono float64 in [-1, 1], one chunk at
// a time.
type Decoder interface {
	// ReadChunk reads up to numSamples samples. Returns io.EOF once the
	// stream is exhausted; a non-empty slice may still accompany io.EOF.
	ReadChunk(numSamples int) ([]float64, error)
	SampleRate() int
	NumChannels() int
	Close() error
}

// EOF re-exports io.EOF so callers don't need to import io just to compare
// against ReadChunk's sentinel.
var EOF = io.EOF

// Open dispatches to the decoder matching path's extension.
func Open(path string) (Decoder, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".wav":
		return NewWAVDecoder(path)
	case ".mp3":
		return NewMP3Decoder(path)
	case ".flac":
		return NewFLACDecoder(path)
	default:
		return nil, fmt.Errorf("replay: unsupported file extension %q", filepath.Ext(path))
	}
}
