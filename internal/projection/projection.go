// Package projection implements the bijective [0,1] -> [0,1] maps used to
// non-linearly scale frequency bins and dB intensities so that a producer
// and a visualiser agree on the same non-linear axis (spec §4.8). All
// implementations are allocation-free on the hot path and safe to call
// from any goroutine.
package projection

import "math"

// Projection maps a normalized value through a (nearly) bijective
// transform and its inverse.
type Projection interface {
	ProjectIn(x float64) float64
	ProjectOut(x float64) float64
}

func clamp01(x float64) float64 {
	if x < 0 {
		return 0
	}
	if x > 1 {
		return 1
	}
	return x
}

// Linear is the identity projection, clamped to [0,1].
type Linear struct{}

func (Linear) ProjectIn(x float64) float64  { return clamp01(x) }
func (Linear) ProjectOut(x float64) float64 { return clamp01(x) }

// Log10 is a quasi-log10 projection that accepts 0 as input by shifting
// it, then rescales so that f(0) = 0 and f(1) = 1. shift must be in
// (0, 1].
type Log10 struct {
	shift float64
	a     float64
	b     float64
	pre   float64
}

// NewLog10 builds a Log10 projection with the given shift (commonly 0.1).
func NewLog10(shift float64) *Log10 {
	if shift <= 0 || shift > 1 {
		shift = 0.1
	}
	a := 1.0 / math.Log10((shift+1.0)/shift)
	b := 1.0 / shift
	return &Log10{
		shift: shift,
		a:     a,
		b:     b,
		pre:   a * math.Log10(b),
	}
}

func (p *Log10) ProjectIn(x float64) float64 {
	xp := clamp01(x) + p.shift
	return p.pre + p.a*math.Log10(xp)
}

func (p *Log10) ProjectOut(x float64) float64 {
	xp := clamp01(x)
	return math.Pow(10, xp/p.a)/p.b - p.shift
}

// Sigmoid projects [0,1] through a logistic curve. sensitivity controls
// the steepness: the input is first mapped to
// [-sensitivity, sensitivity] before being fed to the sigmoid, then the
// output is rescaled to hit f(0)=0, f(1)=1.
type Sigmoid struct {
	sensitivity float64
	a           float64
	b           float64
}

// NewSigmoid builds a Sigmoid projection. A typical sensitivity is 6.0.
func NewSigmoid(sensitivity float64) *Sigmoid {
	if sensitivity <= 0 {
		sensitivity = 6.0
	}
	expc := math.Exp(sensitivity)
	a := -1.0 / (expc - 1.0)
	b := (expc + 1.0) / (expc - 1.0)
	return &Sigmoid{sensitivity: sensitivity, a: a, b: b}
}

func (p *Sigmoid) ProjectIn(x float64) float64 {
	limited := clamp01(x)
	mapped := limited*2 - 1 // [0,1] -> [-1,1]
	return p.a + (p.b / (1.0 + math.Exp(-mapped*p.sensitivity)))
}

func (p *Sigmoid) ProjectOut(x float64) float64 {
	limited := clamp01(x)
	inv := -(1.0 / p.sensitivity) * math.Log((p.b/(limited-p.a))-1.0)
	// [-1,1] -> [0,1]
	return clamp01((inv + 1.0) / 2.0)
}

// Stacked composes projections in forward order for ProjectIn, and in
// reverse order for ProjectOut. An empty Stacked behaves like Linear.
type Stacked struct {
	stages []Projection
}

// NewStacked builds a Stacked projection over the given stages, applied
// in the order given.
func NewStacked(stages ...Projection) *Stacked {
	return &Stacked{stages: stages}
}

func (s *Stacked) ProjectIn(x float64) float64 {
	if len(s.stages) == 0 {
		return Linear{}.ProjectIn(x)
	}
	v := x
	for _, p := range s.stages {
		v = p.ProjectIn(v)
	}
	return v
}

func (s *Stacked) ProjectOut(x float64) float64 {
	if len(s.stages) == 0 {
		return Linear{}.ProjectOut(x)
	}
	v := x
	for i := len(s.stages) - 1; i >= 0; i-- {
		v = s.stages[i].ProjectOut(v)
	}
	return v
}

// Inverted swaps ProjectIn and ProjectOut of the wrapped projection.
type Inverted struct {
	inner Projection
}

// NewInverted wraps p so that In and Out are swapped.
func NewInverted(p Projection) *Inverted {
	return &Inverted{inner: p}
}

func (i *Inverted) ProjectIn(x float64) float64  { return i.inner.ProjectOut(x) }
func (i *Inverted) ProjectOut(x float64) float64 { return i.inner.ProjectIn(x) }
