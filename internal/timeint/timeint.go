// Package timeint implements the time discretisation of the mass term m(u)_t.
//
// The assembler evaluates m(u) at every element quadrature point and asks a
// MassTerm for the discrete rate m_t and its derivative with respect to u.
// History values of m live in flat slices indexed by element*points+q, so an
// Integrator only has to shift slices when a step is accepted.
package timeint

import (
	"fmt"
	"math"
	"strings"
)

// MassTerm turns the mass m at one quadrature point into the discrete rate
// m_t and ∂m_t/∂u for the step being solved.
//
// idx is element*pointsPerElement + q. Implementations are read-only during
// assembly and safe for concurrent use.
type MassTerm interface {
	Rate(idx int, m, dm float64) (mt, dmt float64)
}

// Integrator carries the history of m between steps.
type Integrator interface {
	Name() string
	// Steady reports whether the integrator discards the time derivative.
	Steady() bool
	// Init stores the mass at the initial time.
	Init(m []float64)
	// Begin returns the mass term for a step of size dt.
	Begin(dt float64) MassTerm
	// Accept records the converged mass of the step started by the last
	// Begin call.
	Accept(m []float64)
	// Reset drops all history.
	Reset()
}

// Kind names a time integration scheme.
type Kind string

const (
	KindSteady        Kind = "steady"
	KindBackwardEuler Kind = "backward_euler"
	KindBDF2          Kind = "bdf2"
)

// Kinds lists the supported schemes.
var Kinds = []Kind{KindSteady, KindBackwardEuler, KindBDF2}

// New returns a fresh integrator of the named kind. "be" is accepted as an
// alias for backward_euler.
func New(kind string) (Integrator, error) {
	switch Kind(strings.ToLower(kind)) {
	case KindSteady:
		return Steady{}, nil
	case KindBackwardEuler, "be":
		return &BackwardEuler{}, nil
	case KindBDF2:
		return &BDF2{}, nil
	default:
		return nil, fmt.Errorf("timeint: unknown time integration %q", kind)
	}
}

// Steady drops m_t entirely.
type Steady struct{}

func (Steady) Name() string { return string(KindSteady) }
func (Steady) Steady() bool { return true }
func (Steady) Init([]float64) {}
func (Steady) Begin(float64) MassTerm { return zeroRate{} }
func (Steady) Accept([]float64) {}
func (Steady) Reset() {}

type zeroRate struct{}

func (zeroRate) Rate(int, float64, float64) (float64, float64) { return 0, 0 }

// BackwardEuler uses m_t = (m − mₙ)/dt.
type BackwardEuler struct {
	prev []float64
}

func (*BackwardEuler) Name() string { return string(KindBackwardEuler) }
func (*BackwardEuler) Steady() bool { return false }

func (b *BackwardEuler) Init(m []float64) { b.prev = clone(m) }

func (b *BackwardEuler) Begin(dt float64) MassTerm {
	return beRate{prev: b.prev, dt: dt}
}

func (b *BackwardEuler) Accept(m []float64) { b.prev = clone(m) }
func (b *BackwardEuler) Reset() { b.prev = nil }

type beRate struct {
	prev []float64
	dt   float64
}

func (r beRate) Rate(idx int, m, dm float64) (float64, float64) {
	return (m - r.prev[idx]) / r.dt, dm / r.dt
}

// BDF2 uses m_t = (3m − 4mₙ + mₙ₋₁)/(2dt). The first step, and any step
// whose size differs from the previous accepted step, falls back to
// backward Euler.
type BDF2 struct {
	prev, prev2 []float64
	prevDT      float64 // size of the step that produced prev; 0 after Init
	pendingDT   float64
}

func (*BDF2) Name() string { return string(KindBDF2) }
func (*BDF2) Steady() bool { return false }

func (b *BDF2) Init(m []float64) {
	b.prev = clone(m)
	b.prev2 = nil
	b.prevDT = 0
}

func (b *BDF2) Begin(dt float64) MassTerm {
	b.pendingDT = dt
	if b.prev2 == nil || !sameStep(dt, b.prevDT) {
		return beRate{prev: b.prev, dt: dt}
	}
	return bdf2Rate{prev: b.prev, prev2: b.prev2, dt: dt}
}

func (b *BDF2) Accept(m []float64) {
	b.prev2 = b.prev
	b.prev = clone(m)
	b.prevDT = b.pendingDT
}

func (b *BDF2) Reset() {
	b.prev, b.prev2 = nil, nil
	b.prevDT, b.pendingDT = 0, 0
}

type bdf2Rate struct {
	prev, prev2 []float64
	dt          float64
}

func (r bdf2Rate) Rate(idx int, m, dm float64) (float64, float64) {
	return (3*m - 4*r.prev[idx] + r.prev2[idx]) / (2 * r.dt), 3 * dm / (2 * r.dt)
}

// sameStep compares step sizes up to the rounding left by clipping steps to
// output times.
func sameStep(a, b float64) bool {
	return b > 0 && math.Abs(a-b) <= 1e-9*math.Max(a, b)
}

func clone(s []float64) []float64 {
	out := make([]float64, len(s))
	copy(out, s)
	return out
}
