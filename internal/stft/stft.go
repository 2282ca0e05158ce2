// Package stft implements the STFT worker pool (C6, spec §4.6): it turns
// one channel's worth of samples into a sequence of dB-scaled spectra,
// spreading the per-window-position DFTs across a fixed pool of worker
// goroutines. Grounded on the origin's
// HeadlessAudioBroadcast/FftProcessor.cpp and AbstractFftProcessor.h,
// with the origin's bespoke job/wait-group machinery replaced by a Go
// channel of jobs and a plain sync.WaitGroup per batch.
package stft

import (
	"math"
	"runtime"
	"sync"

	"gonum.org/v1/gonum/dsp/fourier"

	"github.com/kholors/station/internal/config"
)

const (
	fftSize = config.Win * config.ZeroPad

	// hannCorrection compensates for the Hann window's coherent-gain loss
	// (mean amplitude 0.5). With the 1/Win normalisation, a full-scale sine
	// centred on a bin reads about -6 dB: the half of its energy in the
	// negative-frequency bin is not folded back.
	hannCorrection = 2.0
)

var hannWindow = buildHannWindow(config.Win)

func buildHannWindow(n int) []float64 {
	w := make([]float64, n)
	if n <= 1 {
		for i := range w {
			w[i] = 1
		}
		return w
	}
	for i := 0; i < n; i++ {
		w[i] = 0.5 * (1 - math.Cos(2*math.Pi*float64(i)/float64(n-1)))
	}
	return w
}

type job struct {
	signal []float32
	start  int
	length int
	out    []float32
	wg     *sync.WaitGroup
}

// Pool is a fixed-size pool of worker goroutines that compute STFTs.
// PerformFFT is safe to call concurrently from multiple producer
// goroutines; jobs from concurrent calls interleave on the same workers.
type Pool struct {
	jobs  chan job
	cache resultCache
	wg    sync.WaitGroup
}

// New starts a worker pool sized to workers (use runtime.NumCPU() for the
// production default). Plan creation (the per-worker FFT plan) happens
// once at worker startup; a panic there is fatal, per spec §4.6.
func New(workers int) *Pool {
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	p := &Pool{jobs: make(chan job, workers*2)}
	p.wg.Add(workers)
	for i := 0; i < workers; i++ {
		go p.worker()
	}
	return p
}

// Close stops accepting new work and waits for in-flight jobs to finish.
// Callers must not call PerformFFT after Close.
func (p *Pool) Close() {
	close(p.jobs)
	p.wg.Wait()
}

// Release returns a result buffer obtained from PerformFFT to the pool's
// LIFO cache for reuse.
func (p *Pool) Release(result []float32) {
	p.cache.put(result)
}

func (p *Pool) worker() {
	defer p.wg.Done()
	fft := fourier.NewFFT(fftSize)
	scratch := make([]float64, fftSize)
	coeff := make([]complex128, config.NumBinsPerFFT())
	for j := range p.jobs {
		runJob(j, fft, scratch, coeff)
		j.wg.Done()
	}
}

func runJob(j job, fft *fourier.FFT, scratch []float64, coeff []complex128) {
	for i := range scratch {
		scratch[i] = 0
	}
	if j.length <= 0 {
		for i := range j.out {
			j.out[i] = config.MinDB
		}
		return
	}
	for i := 0; i < j.length; i++ {
		scratch[i] = float64(j.signal[j.start+i]) * hannWindow[i]
	}

	coeffs := fft.Coefficients(coeff, scratch)
	norm := 1.0 / float64(config.Win)
	for i, c := range coeffs {
		re, im := real(c)*norm*hannCorrection, imag(c)*norm*hannCorrection
		mag2 := re*re + im*im
		db := config.MinDB
		if mag2 > 0 {
			db = 10 * math.Log10(mag2)
		}
		if db > 0 {
			db = 0
		}
		if db < config.MinDB {
			db = config.MinDB
		}
		j.out[i] = float32(db)
	}
}

// PerformFFT computes the dB spectrogram of one channel's samples:
// config.NumFFTs(len(signal)) windows of config.NumBinsPerFFT() bins
// each, concatenated in window order. Jobs are submitted in batches of
// up to config.Batch, with the caller blocking on each batch's
// wait-group before submitting the next (spec §4.6 scheduling).
func (p *Pool) PerformFFT(signal []float32) []float32 {
	n := len(signal)
	numFFTs := config.NumFFTs(n)
	numBins := config.NumBinsPerFFT()
	result := p.cache.get(numFFTs * numBins)

	step := config.Win / config.Overlap
	jobs := make([]job, numFFTs)
	for i := 0; i < numFFTs; i++ {
		start := i * step
		length := config.Win
		switch {
		case start >= n:
			length = 0
		case start+length > n:
			length = n - start
		}
		jobs[i] = job{signal: signal, start: start, length: length, out: result[i*numBins : (i+1)*numBins]}
	}

	for off := 0; off < len(jobs); off += config.Batch {
		end := off + config.Batch
		if end > len(jobs) {
			end = len(jobs)
		}
		var wg sync.WaitGroup
		wg.Add(end - off)
		for i := off; i < end; i++ {
			jobs[i].wg = &wg
			p.jobs <- jobs[i]
		}
		wg.Wait()
	}
	return result
}
