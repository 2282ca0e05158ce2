package replay

import (
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
	"github.com/stretchr/testify/require"
)

func writeTestWAV(t *testing.T, path string, sampleRate, numChans int, data []int) {
	t.Helper()
	f, err := os.Create(path)
	require.NoError(t, err)
	defer f.Close()

	enc := wav.NewEncoder(f, sampleRate, 16, numChans, 1)
	buf := &audio.IntBuffer{
		Data:           data,
		Format:         &audio.Format{NumChannels: numChans, SampleRate: sampleRate},
		SourceBitDepth: 16,
	}
	require.NoError(t, enc.Write(buf))
	require.NoError(t, enc.Close())
}

func TestWAVDecoder_MonoRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "mono.wav")
	writeTestWAV(t, path, 48000, 1, []int{1000, -1000, 16000, -16000})

	dec, err := NewWAVDecoder(path)
	require.NoError(t, err)
	defer dec.Close()

	require.Equal(t, 48000, dec.SampleRate())
	require.Equal(t, 1, dec.NumChannels())

	chunk, err := dec.ReadChunk(4)
	require.NoError(t, err)
	require.Len(t, chunk, 4)
	require.InDelta(t, 1000.0/32768.0, chunk[0], 1e-6)
	require.InDelta(t, -16000.0/32768.0, chunk[3], 1e-6)
}

func TestWAVDecoder_StereoDownmixesToMono(t *testing.T) {
	path := filepath.Join(t.TempDir(), "stereo.wav")
	// Two interleaved stereo frames: (1000,3000) and (-2000,2000).
	writeTestWAV(t, path, 44100, 2, []int{1000, 3000, -2000, 2000})

	dec, err := NewWAVDecoder(path)
	require.NoError(t, err)
	defer dec.Close()
	require.Equal(t, 1, dec.NumChannels())

	chunk, err := dec.ReadChunk(2)
	require.NoError(t, err)
	require.Len(t, chunk, 2)
	require.InDelta(t, 2000.0/32768.0, chunk[0], 1e-6)
	require.InDelta(t, 0.0, chunk[1], 1e-6)
}

func TestWAVDecoder_EOFAfterFullRead(t *testing.T) {
	path := filepath.Join(t.TempDir(), "short.wav")
	writeTestWAV(t, path, 48000, 1, []int{1, 2, 3})

	dec, err := NewWAVDecoder(path)
	require.NoError(t, err)
	defer dec.Close()

	chunk, err := dec.ReadChunk(3)
	require.NoError(t, err)
	require.Len(t, chunk, 3)

	_, err = dec.ReadChunk(3)
	require.ErrorIs(t, err, io.EOF)
}

func TestOpen_UnsupportedExtension(t *testing.T) {
	_, err := Open("track.ogg")
	require.Error(t, err)
}
