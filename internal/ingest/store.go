// Package ingest implements the Ingestion Store (C5, spec §4.5): it turns
// inbound transport.Segment payloads into typed Datums on a blocking
// queue consumed by downstream workers (STFT, metadata sinks), deduping
// DawInfo/TrackInfo updates and backed entirely by preallocated pool
// storage so parsing a payload never allocates on the happy path.
// Grounded on the origin's AudioTransport/AudioDataStore.{h,cpp}.
package ingest

import (
	"sync"
	"time"

	charmlog "github.com/charmbracelet/log"

	"github.com/kholors/station/internal/config"
	"github.com/kholors/station/internal/logging"
	"github.com/kholors/station/internal/pool"
	"github.com/kholors/station/internal/transport"
)

// DatumWithStorageID pairs a Datum with the identifier needed to release
// its backing storage once the consumer is done with it.
type DatumWithStorageID struct {
	Datum     Datum
	StorageID StorageID
}

// Store is the station-side intake: Parse splits inbound segments into
// Datums and pushes them onto a queue; WaitForDatum blocks consumers on
// that queue.
type Store struct {
	segments *pool.Pool[AudioSegment]
	daw      *pool.Pool[DawInfo]
	track    *pool.Pool[TrackInfo]

	mu     sync.Mutex
	cond   *sync.Cond
	queue  []DatumWithStorageID
	stopped bool

	dedupMu      sync.Mutex
	lastDaw      map[uint64]DawInfo
	haveLastDaw  map[uint64]bool
	lastTrack    map[uint64]TrackInfo

	log *charmlog.Logger
}

// New builds a Store with all three preallocated pools (segments, DAW
// info, track info) sized to capacity, mirroring the origin's single
// noAudioSegments constructor argument sizing all three stores alike.
func New(capacity int) *Store {
	if capacity <= 0 {
		capacity = config.PoolCap
	}
	s := &Store{
		segments:    pool.New(capacity, func() AudioSegment { return AudioSegment{} }),
		daw:         pool.New(capacity, func() DawInfo { return DawInfo{} }),
		track:       pool.New(capacity, func() TrackInfo { return TrackInfo{} }),
		lastDaw:     make(map[uint64]DawInfo),
		haveLastDaw: make(map[uint64]bool),
		lastTrack:   make(map[uint64]TrackInfo),
		log:         logging.Named("ingest"),
	}
	s.cond = sync.NewCond(&s.mu)
	return s
}

// FreeSegmentSlots reports how many audio-segment pool slots are free.
func (s *Store) FreeSegmentSlots() int {
	return s.segments.FreeCount()
}

// FreePreallocatedSlots reports how many slots are free in each of the
// three preallocated pools, in [segments, daw info, track info] order,
// mirroring the origin's countFreePreallocatedStructs test hook.
func (s *Store) FreePreallocatedSlots() [3]int {
	return [3]int{s.segments.FreeCount(), s.daw.FreeCount(), s.track.FreeCount()}
}

// Parse splits one inbound segment payload into zero or more Datums and
// enqueues them, per the parse rules in spec §4.5. On any error (invalid
// argument, exhaustion) nothing from this payload is enqueued: any pool
// slots reserved earlier in the same call are released first.
func (s *Store) Parse(seg transport.Segment) error {
	s.mu.Lock()
	stopped := s.stopped
	s.mu.Unlock()
	if stopped {
		return ErrStopped
	}

	var toEnqueue []DatumWithStorageID
	defer func() {
		// On any early return via named error below, release whatever we
		// already reserved in this call; on success this is a no-op since
		// toEnqueue is cleared right before pushing.
		for _, d := range toEnqueue {
			s.releaseStorage(d.StorageID)
		}
	}()

	if seg.SegmentSampleDur > 0 {
		channels := seg.SegmentNoChannels
		if channels == 0 {
			channels = 1
		}
		want := int(seg.SegmentSampleDur) * int(channels)
		if len(seg.SegmentAudioSamples) != want {
			return ErrInvalidArgument
		}

		for ch := uint32(0); ch < channels; ch++ {
			idx, slot, err := s.segments.TryReserve()
			if err != nil {
				return ErrExhausted
			}
			*slot = AudioSegment{
				TrackIdentifier: seg.TrackIdentifier,
				Channel:         ch,
				StartSample:     seg.SegmentStartSample,
				SampleRate:      seg.DawSampleRate,
				Duration:        seg.SegmentSampleDur,
			}
			base := int(ch) * int(seg.SegmentSampleDur)
			copy(slot.Samples[:seg.SegmentSampleDur], seg.SegmentAudioSamples[base:base+int(seg.SegmentSampleDur)])

			toEnqueue = append(toEnqueue, DatumWithStorageID{
				Datum:     Datum{Kind: KindAudioSegment, Segment: slot},
				StorageID: segmentStorageID(idx),
			})
		}
	}

	dawNext, dawChanged := s.peekDawInfo(seg)
	if dawChanged {
		idx, slot, err := s.daw.TryReserve()
		if err != nil {
			return ErrExhausted
		}
		*slot = dawNext
		toEnqueue = append(toEnqueue, DatumWithStorageID{
			Datum:     Datum{Kind: KindDawInfo, Daw: slot},
			StorageID: dawStorageID(idx),
		})
	}

	trackNext, trackChanged := s.peekTrackInfo(seg)
	if trackChanged {
		idx, slot, err := s.track.TryReserve()
		if err != nil {
			return ErrExhausted
		}
		*slot = trackNext
		toEnqueue = append(toEnqueue, DatumWithStorageID{
			Datum:     Datum{Kind: KindTrackInfo, Track: slot},
			StorageID: trackStorageID(idx),
		})
	}

	// Only now that every reservation this payload needs has succeeded do
	// we commit the dedup state; a rollback above must leave it untouched
	// so the next attempt re-detects the same change.
	if dawChanged {
		s.dedupMu.Lock()
		s.lastDaw[seg.TrackIdentifier] = dawNext
		s.haveLastDaw[seg.TrackIdentifier] = true
		s.dedupMu.Unlock()
	}
	if trackChanged {
		s.dedupMu.Lock()
		s.lastTrack[seg.TrackIdentifier] = trackNext
		s.dedupMu.Unlock()
	}

	s.push(toEnqueue)
	toEnqueue = nil // pushed successfully; defer above becomes a no-op
	return nil
}

// peekDawInfo reports the DawInfo update seg implies, and whether it
// differs from the last one committed for this track, without mutating
// any dedup state (committed only once every pool reservation succeeds).
// A segment flagged DawNotSupported never yields a DawInfo update.
func (s *Store) peekDawInfo(seg transport.Segment) (DawInfo, bool) {
	if seg.DawNotSupported {
		return DawInfo{}, false
	}
	next := DawInfo{
		Bpm:         float64(seg.DawBpm),
		TimeSigNum:  seg.DawTimeSigNum,
		TimeSigDen:  seg.DawTimeSigDen,
		IsLooping:   seg.DawIsLooping,
		IsPlaying:   seg.DawIsPlaying,
		LoopStartQN: seg.DawLoopStartQN,
		LoopEndQN:   seg.DawLoopEndQN,
	}
	s.dedupMu.Lock()
	defer s.dedupMu.Unlock()
	if s.haveLastDaw[seg.TrackIdentifier] && s.lastDaw[seg.TrackIdentifier].equal(next) {
		return DawInfo{}, false
	}
	return next, true
}

// peekTrackInfo is peekDawInfo's TrackInfo counterpart.
func (s *Store) peekTrackInfo(seg transport.Segment) (TrackInfo, bool) {
	next := TrackInfo{TrackIdentifier: seg.TrackIdentifier, Name: seg.TrackName, Color: seg.TrackColor}
	s.dedupMu.Lock()
	defer s.dedupMu.Unlock()
	if prev, ok := s.lastTrack[seg.TrackIdentifier]; ok && prev.equal(next) {
		return TrackInfo{}, false
	}
	return next, true
}

func (s *Store) push(datums []DatumWithStorageID) {
	if len(datums) == 0 {
		return
	}
	s.mu.Lock()
	s.queue = append(s.queue, datums...)
	s.mu.Unlock()
	s.cond.Broadcast()
}

// WaitForDatum blocks for up to one second for a queued Datum. Returns
// ok=false if the timeout elapses or the store has been stopped.
func (s *Store) WaitForDatum() (DatumWithStorageID, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	deadline := time.Now().Add(time.Second)
	for len(s.queue) == 0 && !s.stopped {
		remaining := time.Until(deadline)
		if remaining <= 0 {
			return DatumWithStorageID{}, false
		}
		waitOnCondWithTimeout(s.cond, remaining)
	}
	if len(s.queue) == 0 {
		return DatumWithStorageID{}, false
	}
	d := s.queue[0]
	s.queue = s.queue[1:]
	return d, true
}

// Release returns a Datum's backing storage to whichever of the three
// pools it came from, keyed by the tag bits in id.
func (s *Store) Release(id StorageID) {
	s.releaseStorage(id)
}

func (s *Store) releaseStorage(id StorageID) {
	switch {
	case id.isSegment():
		s.segments.Release(id.index())
	case id.isDaw():
		s.daw.Release(id.index())
	case id.isTrack():
		s.track.Release(id.index())
	}
}

// Stop wakes every blocked WaitForDatum call and makes future ones return
// immediately with ok=false.
func (s *Store) Stop() {
	s.mu.Lock()
	s.stopped = true
	s.mu.Unlock()
	s.cond.Broadcast()
}

func waitOnCondWithTimeout(cond *sync.Cond, d time.Duration) {
	timer := time.AfterFunc(d, cond.Broadcast)
	defer timer.Stop()
	cond.Wait()
}
