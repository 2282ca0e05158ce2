package forwarder

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	charmlog "github.com/charmbracelet/log"

	"github.com/kholors/station/internal/config"
	"github.com/kholors/station/internal/fifo"
	"github.com/kholors/station/internal/logging"
	"github.com/kholors/station/internal/pool"
	"github.com/kholors/station/internal/timing"
	"github.com/kholors/station/internal/transport"
)

// Forwarder owns one track's audio-thread -> coalescer -> sender pipeline.
// The audio thread only ever touches AcquireBlock/Submit; everything else
// runs on the two background goroutines started by Start.
type Forwarder struct {
	blocks   *pool.Pool[Block]
	payloads *pool.Pool[Payload]
	toCoalesce *fifo.IndexFIFO

	transport transport.Transport
	timer     *timing.Timer

	trackID    atomic.Uint64
	trackColor atomic.Uint32
	nameMu     sync.Mutex
	name       string
	dawCompat  atomic.Bool

	toSendMu   sync.Mutex
	toSendCond *sync.Cond
	toSend     []sendJob

	currentMu sync.Mutex
	current   *Payload
	currentID uint32
	currentOK bool
	fillStart time.Time

	waitMu sync.Mutex
	waitCond *sync.Cond

	stopCoalesce atomic.Bool
	stopSend     atomic.Bool
	coalesceWG sync.WaitGroup
	senderWG   sync.WaitGroup
	log        *charmlog.Logger
	lastSentOK time.Time

	dropped atomic.Uint64
}

// Option configures a Forwarder at construction.
type Option func(*Forwarder)

// WithTimer attaches a processing-time Timer (C9) so every sent payload's
// round trip is recorded.
func WithTimer(t *timing.Timer) Option {
	return func(f *Forwarder) { f.timer = t }
}

// New builds a Forwarder for one track, with its own block pool and
// to-coalesce FIFO sized to config.PoolCap and a 128-slot payload pool.
func New(tr transport.Transport, opts ...Option) *Forwarder {
	f := &Forwarder{
		blocks:     pool.New(config.PoolCap, func() Block { return Block{} }),
		payloads:   pool.New(128, func() Payload { return Payload{} }),
		toCoalesce: fifo.New(config.PoolCap),
		transport:  tr,
		dawCompat:  atomic.Bool{},
		log:        logging.Named("forwarder"),
		lastSentOK: time.Now(),
	}
	f.dawCompat.Store(true)
	f.toSendCond = sync.NewCond(&f.toSendMu)
	f.waitCond = sync.NewCond(&f.waitMu)
	for _, o := range opts {
		o(f)
	}
	return f
}

// SetTrackIdentity stores the track id and color atomically and the name
// under a mutex; safe from any goroutine (spec's "track identity
// atomics"). The three fields are not updated as one unit, so a
// concurrent reader may see a mix of old and new values.
func (f *Forwarder) SetTrackIdentity(id TrackIdentity) {
	f.trackID.Store(id.ID)
	f.trackColor.Store(id.Color)
	f.nameMu.Lock()
	f.name = id.Name
	f.nameMu.Unlock()
}

// Identity returns the forwarder's current track identity, for the ops
// dashboard and other read-only observers.
func (f *Forwarder) Identity() TrackIdentity {
	return f.identity()
}

func (f *Forwarder) identity() TrackIdentity {
	f.nameMu.Lock()
	name := f.name
	f.nameMu.Unlock()
	return TrackIdentity{ID: f.trackID.Load(), Color: f.trackColor.Load(), Name: name}
}

// SetDawCompatible flags whether the host DAW is considered compatible;
// when false, payloads still ship but carry DawNotSupported so a
// consumer can choose to ignore the data (spec supplement, grounded on
// BufferForwarder::setDawIsCompatible).
func (f *Forwarder) SetDawCompatible(v bool) {
	f.dawCompat.Store(v)
}

// AcquireBlock reserves a free Block slot for the audio thread to fill.
// Never blocks; returns ok=false if the pool is exhausted (caller must
// drop the callback's data and log, per spec §4.1/§4.4).
func (f *Forwarder) AcquireBlock() (index uint32, block *Block, ok bool) {
	idx, b, err := f.blocks.TryReserve()
	if err != nil {
		return 0, nil, false
	}
	b.UsedSamples = 0
	return idx, b, true
}

// Submit hands a filled block index to the coalescer. Never blocks: if
// the to-coalesce FIFO is full, the index is dropped and logged (spec
// §4.4 back-pressure) — the caller must still consider the block
// "forwarded" (i.e. release nothing itself; the pool slot is reclaimed by
// whichever side drops it).
func (f *Forwarder) Submit(index uint32) {
	if !f.toCoalesce.TryPush(uint64(index)) {
		f.log.Warn("to-coalesce queue full, dropping audio block")
		f.dropped.Add(1)
		f.blocks.Release(index)
		return
	}
	f.waitCond.Broadcast()
}

// DroppedBlocks reports the running count of blocks dropped because the
// to-coalesce queue was full (spec §4.4 back-pressure), for the ops
// dashboard.
func (f *Forwarder) DroppedBlocks() uint64 {
	return f.dropped.Load()
}

// CoalesceQueueDepth reports how many submitted block indices are waiting
// on the coalescer, for the ops dashboard.
func (f *Forwarder) CoalesceQueueDepth() int {
	return f.toCoalesce.Len()
}

// SendQueueDepth reports how many assembled payloads are waiting on the
// sender goroutine, for the ops dashboard.
func (f *Forwarder) SendQueueDepth() int {
	f.toSendMu.Lock()
	defer f.toSendMu.Unlock()
	return len(f.toSend)
}

// Start launches the coalescer and sender goroutines.
func (f *Forwarder) Start() {
	f.coalesceWG.Add(1)
	f.senderWG.Add(1)
	go f.coalesceLoop()
	go f.sendLoop()
}

// Shutdown sets the stop flag and joins the two background goroutines in
// order: the coalescer first (so its final idle-flush has a chance to
// enqueue one last send), then the sender, per spec §4.4.
func (f *Forwarder) Shutdown() {
	f.stopCoalesce.Store(true)
	f.waitCond.Broadcast()
	f.coalesceWG.Wait()

	f.stopSend.Store(true)
	f.toSendCond.Broadcast()
	f.senderWG.Wait()
}

func (f *Forwarder) coalesceLoop() {
	defer f.coalesceWG.Done()
	for {
		f.waitMu.Lock()
		for f.toCoalesce.Len() == 0 && !f.stopCoalesce.Load() {
			waitOnCondWithTimeout(f.waitCond, &f.waitMu, time.Second)
		}
		stopping := f.stopCoalesce.Load()
		f.waitMu.Unlock()

		indices := f.toCoalesce.TryPopBatch(32)
		f.drainIndices(indices)

		if stopping && f.toCoalesce.Len() == 0 {
			f.flushIdlePayload(true)
			return
		}
		f.flushIdlePayload(false)
	}
}

func (f *Forwarder) drainIndices(indices []uint64) {
	for _, idx := range indices {
		blockIdx := uint32(idx)
		block := f.blocks.At(blockIdx)
		f.consumeBlock(blockIdx, block)
	}
}

// consumeBlock applies the payload-assembly state machine from spec §4.4
// to one block, possibly flushing the current payload zero or more times
// if the block's samples overflow it.
func (f *Forwarder) consumeBlock(blockIdx uint32, block *Block) {
	for {
		f.ensureCurrentPayload()

		if f.current.IsEmpty() {
			f.current.copyMetadata(f.identity(), block, !f.dawCompat.Load())
		} else if !f.current.isContinuationOf(block) {
			f.zeroPadAndFlush()
			continue
		}

		remaining := f.current.appendFrom(block)

		if f.current.IsFull() {
			f.flushCurrentPayload()
		}

		if remaining == 0 {
			break
		}
	}
	f.blocks.Release(blockIdx)
}

func (f *Forwarder) ensureCurrentPayload() {
	f.currentMu.Lock()
	defer f.currentMu.Unlock()
	if f.current != nil {
		return
	}
	idx, p, err := f.payloads.TryReserve()
	if err != nil {
		// Back-pressure rule: heap-allocate rather than block the
		// pipeline (rare, logged).
		f.log.Warn("payload pool exhausted, heap-allocating a payload")
		heap := &Payload{}
		f.current = heap
		f.currentOK = false
		f.fillStart = time.Now()
		return
	}
	p.reset()
	f.current = p
	f.currentID = idx
	f.currentOK = true
	f.fillStart = time.Now()
}

func (f *Forwarder) flushCurrentPayload() {
	f.currentMu.Lock()
	p := f.current
	id := f.currentID
	ok := f.currentOK
	f.current = nil
	f.currentMu.Unlock()
	if p == nil {
		return
	}
	f.enqueueForSend(p, id, ok)
}

func (f *Forwarder) zeroPadAndFlush() {
	f.currentMu.Lock()
	p := f.current
	f.currentMu.Unlock()
	if p == nil {
		return
	}
	p.zeroPadToFull()
	f.flushCurrentPayload()
}

// flushIdlePayload zero-pads and flushes the in-progress payload if it
// has waited past MAX_PAYLOAD_IDLE_MS, or unconditionally when force is
// true (shutdown drain), per spec §4.4 rule 5.
func (f *Forwarder) flushIdlePayload(force bool) {
	f.currentMu.Lock()
	p := f.current
	start := f.fillStart
	f.currentMu.Unlock()
	if p == nil || p.IsEmpty() {
		return
	}
	if force || time.Since(start) > config.MaxPayloadIdleMs*time.Millisecond {
		f.zeroPadAndFlush()
	}
}

// sendJob is one entry on the to-send queue: either a payload pool index
// (the common case, released back to the pool once sent) or a heap
// payload from the pool-exhaustion fallback, never pooled.
type sendJob struct {
	payload  *Payload
	poolIdx  uint32
	fromPool bool
}

// enqueueForSend hands a filled payload to the sender goroutine. If it
// came from the heap-allocation fallback (pool exhausted), it is never
// returned to the pool.
func (f *Forwarder) enqueueForSend(p *Payload, poolIdx uint32, fromPool bool) {
	f.toSendMu.Lock()
	f.toSend = append(f.toSend, sendJob{payload: p, poolIdx: poolIdx, fromPool: fromPool})
	f.toSendMu.Unlock()
	f.toSendCond.Broadcast()
}

func (f *Forwarder) sendLoop() {
	defer f.senderWG.Done()
	for {
		f.toSendMu.Lock()
		for len(f.toSend) == 0 && !f.stopSend.Load() {
			waitOnCondWithTimeout(f.toSendCond, &f.toSendMu, time.Second)
		}
		if len(f.toSend) == 0 {
			stopping := f.stopSend.Load()
			f.toSendMu.Unlock()
			if stopping {
				return
			}
			continue
		}
		job := f.toSend[0]
		f.toSend = f.toSend[1:]
		f.toSendMu.Unlock()

		f.sendOne(job)
	}
}

func (f *Forwarder) sendOne(job sendJob) {
	p := job.payload
	if p == nil {
		return
	}

	var wg *timing.WaitGroup
	sentAt := time.Now()
	if f.timer != nil {
		wg = f.timer.Acquire(sentAt)
		wg.Add()
	}

	seg := p.toSegment(sentAt.UnixMilli())
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	err := f.transport.SendSegment(ctx, seg)
	cancel()

	if err == nil {
		f.lastSentOK = time.Now()
	} else {
		f.log.Warn("send failed", "err", err)
		if time.Since(f.lastSentOK) > config.ReconnectThresholdMs*time.Millisecond {
			f.log.Warn("no successful send within reconnect threshold, reconnecting transport")
			rctx, rcancel := context.WithTimeout(context.Background(), 5*time.Second)
			_ = f.transport.Reconnect(rctx)
			rcancel()
		}
	}

	if wg != nil {
		wg.Done()
	}

	if job.fromPool {
		f.payloads.Release(job.poolIdx)
	}
}

// waitOnCondWithTimeout waits on cond for at most d, simulating the
// origin's condition_variable::wait_for. cond.L must already be held by
// the caller; mu is unused beyond documenting that requirement.
func waitOnCondWithTimeout(cond *sync.Cond, mu *sync.Mutex, d time.Duration) {
	timer := time.AfterFunc(d, cond.Broadcast)
	defer timer.Stop()
	cond.Wait()
}
