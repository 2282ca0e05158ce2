package stft

import (
	"math"
	"math/rand"
	"testing"

	"github.com/argusdusty/gofft"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/dsp/fourier"

	"github.com/kholors/station/internal/config"
)

func TestPerformFFT_ShapeAndRange(t *testing.T) {
	p := New(2)
	defer p.Close()

	signal := make([]float32, config.Win*3)
	for i := range signal {
		signal[i] = float32(math.Sin(2 * math.Pi * 440 * float64(i) / 48000))
	}

	out := p.PerformFFT(signal)
	numFFTs := config.NumFFTs(len(signal))
	numBins := config.NumBinsPerFFT()
	require.Len(t, out, numFFTs*numBins)

	for _, v := range out {
		require.LessOrEqual(t, v, float32(0))
		require.GreaterOrEqual(t, v, float32(config.MinDB))
	}
}

func TestPerformFFT_EmptyTailWindowIsAllMinDB(t *testing.T) {
	p := New(1)
	defer p.Close()

	// An empty signal still gets one window position (NumFFTs counts it as
	// one sample), and that window starts at the end of the data:
	// length==0 there, spec requires all MIN_DB.
	signal := make([]float32, 0)
	out := p.PerformFFT(signal)
	numBins := config.NumBinsPerFFT()
	last := out[len(out)-numBins:]
	for _, v := range last {
		require.Equal(t, float32(config.MinDB), v)
	}
}

func TestPerformFFT_ReusesReleasedBuffer(t *testing.T) {
	p := New(1)
	defer p.Close()

	signal := make([]float32, config.Win)
	first := p.PerformFFT(signal)
	cap1 := cap(first)
	p.Release(first)

	second := p.PerformFFT(signal)
	// Same capacity buffer should come back off the LIFO cache rather
	// than a fresh allocation.
	require.Equal(t, cap1, cap(second))
}

// TestSpectrum_GoFFTAgreesWithGonumFourier differentially checks the
// magnitude spectrum produced by gonum's real-to-complex FFT against
// argusdusty/gofft's complex FFT run on the same (zero-imaginary) signal,
// confirming the two libraries agree on the math PerformFFT relies on.
func TestSpectrum_GoFFTAgreesWithGonumFourier(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	samples := make([]float64, fftSize)
	for i := range samples {
		samples[i] = rng.Float64()*2 - 1
	}

	fft := fourier.NewFFT(fftSize)
	gonumCoeff := fft.Coefficients(nil, samples)

	complexIn := make([]complex128, fftSize)
	for i, v := range samples {
		complexIn[i] = complex(v, 0)
	}
	require.NoError(t, gofft.FFT(complexIn))

	numBins := config.NumBinsPerFFT()
	for i := 0; i < numBins; i++ {
		gonumMag := math.Hypot(real(gonumCoeff[i]), imag(gonumCoeff[i]))
		gofftMag := math.Hypot(real(complexIn[i]), imag(complexIn[i]))
		require.InDelta(t, gonumMag, gofftMag, 1e-6*float64(fftSize))
	}
}
