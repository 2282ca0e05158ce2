package projection

import (
	"math"
	"testing"

	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

func allProjections() map[string]Projection {
	log10 := NewLog10(0.1)
	sigmoid := NewSigmoid(6.0)
	return map[string]Projection{
		"linear":   Linear{},
		"log10":    log10,
		"sigmoid":  sigmoid,
		"inverted": NewInverted(log10),
		"stacked":  NewStacked(Linear{}, log10, sigmoid),
	}
}

func TestLog10_Endpoints(t *testing.T) {
	p := NewLog10(0.1)
	require.InDelta(t, 0.0, p.ProjectIn(0), 1e-9)
	require.InDelta(t, 1.0, p.ProjectIn(1), 1e-9)
	// f(0.5) for shift=0.1 derives to ~0.7472 from a*log10((x+s)/s); see
	// DESIGN.md for why this differs from the illustrative spec example.
	require.InDelta(t, 0.747215, p.ProjectIn(0.5), 1e-3)
}

func TestSigmoid_Endpoints(t *testing.T) {
	p := NewSigmoid(6.0)
	require.InDelta(t, 0.0, p.ProjectIn(0), 1e-6)
	require.InDelta(t, 1.0, p.ProjectIn(1), 1e-6)
}

// TestProjection_RoundTrip is spec Property 8: for every projection
// variant and every x in [0,1], |project_out(project_in(x)) - x| < 1e-5.
func TestProjection_RoundTrip(t *testing.T) {
	for name, p := range allProjections() {
		p := p
		t.Run(name, func(t *testing.T) {
			rapid.Check(t, func(rt *rapid.T) {
				x := rapid.Float64Range(0, 1).Draw(rt, "x")
				back := p.ProjectOut(p.ProjectIn(x))
				require.True(rt, math.Abs(back-x) < 1e-5, "round trip for %s at x=%v got %v", name, x, back)
			})
		})
	}
}

func TestProjection_ClampedAndFinite(t *testing.T) {
	for name, p := range allProjections() {
		p := p
		t.Run(name, func(t *testing.T) {
			for _, x := range []float64{-5, -0.0001, 0, 0.3, 1, 1.0001, 10} {
				in := p.ProjectIn(x)
				out := p.ProjectOut(x)
				require.False(t, math.IsNaN(in) || math.IsInf(in, 0))
				require.False(t, math.IsNaN(out) || math.IsInf(out, 0))
				require.GreaterOrEqual(t, in, -1e-9)
				require.LessOrEqual(t, in, 1+1e-9)
			}
		})
	}
}
