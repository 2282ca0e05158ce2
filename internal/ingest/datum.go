package ingest

import (
	"errors"

	"github.com/kholors/station/internal/config"
)

// Kind tags which union member a Datum carries, mirroring the origin's
// AudioTransportData variants (AudioSegment, DawInfo, TrackInfo) without a
// dynamic_pointer_cast.
type Kind string

const (
	KindAudioSegment Kind = "audio_segment"
	KindDawInfo      Kind = "daw_info"
	KindTrackInfo    Kind = "track_info"
)

// dawEpsilon bounds the "did this field actually change" comparison used
// to dedup DawInfo updates (spec §4.5: "epsilon-compared for doubles").
const dawEpsilon = 1e-6

// ErrInvalidArgument is returned when a payload's sample count does not
// match its declared duration times channel count.
var ErrInvalidArgument = errors.New("ingest: sample count does not match duration * channels")

// ErrExhausted is returned when parsing a payload would require more
// preallocated slots than are free; nothing from that payload is enqueued.
var ErrExhausted = errors.New("ingest: too many requests, preallocated storage exhausted")

// ErrStopped is returned by operations attempted after Stop.
var ErrStopped = errors.New("ingest: store is stopped")

// AudioSegment is one channel's worth of samples sliced out of an inbound
// payload, backed by a pool slot.
type AudioSegment struct {
	TrackIdentifier uint64
	Channel         uint32
	StartSample     int64
	SampleRate      uint32
	Duration        uint32
	Samples         [config.BlockSize]float32
}

// DawInfo is a host-playback snapshot, deduplicated against the last one
// emitted (spec §4.5).
type DawInfo struct {
	Bpm          float64
	TimeSigNum   uint32
	TimeSigDen   uint32
	IsLooping    bool
	IsPlaying    bool
	LoopStartQN  float64
	LoopEndQN    float64
}

func (d DawInfo) equal(o DawInfo) bool {
	return floatsEqual(d.Bpm, o.Bpm) &&
		d.TimeSigNum == o.TimeSigNum &&
		d.TimeSigDen == o.TimeSigDen &&
		d.IsLooping == o.IsLooping &&
		d.IsPlaying == o.IsPlaying &&
		floatsEqual(d.LoopStartQN, o.LoopStartQN) &&
		floatsEqual(d.LoopEndQN, o.LoopEndQN)
}

func floatsEqual(a, b float64) bool {
	d := a - b
	if d < 0 {
		d = -d
	}
	return d <= dawEpsilon
}

// TrackInfo is a track's display metadata, deduplicated per track id.
type TrackInfo struct {
	TrackIdentifier uint64
	Name            string
	Color           uint32
}

func (t TrackInfo) equal(o TrackInfo) bool {
	return t.Name == o.Name && t.Color == o.Color
}

// Datum is one queued update, tagged by Kind. Only the field matching Kind
// is meaningful. Each field points into a slot reserved from one of the
// store's three preallocated pools (spec §4.2: "the pool is replicated
// three times (segments, DAW info, track info)"); callers must call
// Store.Release(StorageID) exactly once for every datum received from
// WaitForDatum, which returns that datum's slot to its own pool.
type Datum struct {
	Kind    Kind
	Segment *AudioSegment
	Daw     *DawInfo
	Track   *TrackInfo
}

// StorageID identifies a reserved pool slot so it can be released. The high
// bits tag which of the three pools the low 32 bits index into.
type StorageID uint64

const (
	storageTagSegment = uint64(1) << 32
	storageTagDaw     = uint64(1) << 33
	storageTagTrack   = uint64(1) << 34
	storageIndexMask  = uint64(1)<<32 - 1
)

func segmentStorageID(index uint32) StorageID {
	return StorageID(storageTagSegment | uint64(index))
}

func dawStorageID(index uint32) StorageID {
	return StorageID(storageTagDaw | uint64(index))
}

func trackStorageID(index uint32) StorageID {
	return StorageID(storageTagTrack | uint64(index))
}

func (id StorageID) isSegment() bool {
	return uint64(id)&storageTagSegment != 0
}

func (id StorageID) isDaw() bool {
	return uint64(id)&storageTagDaw != 0
}

func (id StorageID) isTrack() bool {
	return uint64(id)&storageTagTrack != 0
}

func (id StorageID) index() uint32 {
	return uint32(uint64(id) & storageIndexMask)
}
