// Package physics defines the coefficients, boundary conditions and
// initial data of scalar transport problems of the form
//
//	m(u)_t + ∇·( f(u) − a ∇u ) + r(u) = 0
//
// Coefficients are evaluated pointwise at quadrature points together with
// their derivatives with respect to u, which the assembler needs for the
// Newton Jacobian.
package physics

import (
	"math"

	"github.com/roach88/adrfem/internal/mesh"
)

// ScalarFunc is a space-time function such as a Dirichlet value, a flux, a
// source or an initial condition.
type ScalarFunc func(x mesh.Point, t float64) float64

// Eval holds the coefficients of the transport equation at one point.
type Eval struct {
	M, DM float64       // mass m(u) and dm/du
	F, DF [2]float64    // advective flux f(u) and df/du
	A     [2][2]float64 // diffusion tensor a (independent of u)
	R, DR float64       // reaction r(u) and dr/du
}

// Coefficients evaluates the transport equation coefficients.
//
// Implementations must be safe for concurrent use: the assembler evaluates
// elements in parallel.
type Coefficients interface {
	Evaluate(x mesh.Point, t, u float64) Eval
	// Speed is the magnitude of the characteristic velocity, used for CFL
	// based time step selection.
	Speed(x mesh.Point, t, u float64) float64
}

// LinearADR is the constant coefficient linear advection-diffusion-reaction
// equation
//
//	m = M u,  f = B u,  a = A,  r = C u + S(x, t)
type LinearADR struct {
	Mass      float64
	Velocity  [2]float64
	Diffusion [2][2]float64
	Reaction  float64
	// Source is optional.
	Source ScalarFunc
}

// Evaluate implements Coefficients.
func (c LinearADR) Evaluate(x mesh.Point, t, u float64) Eval {
	e := Eval{
		M:  c.Mass * u,
		DM: c.Mass,
		F:  [2]float64{c.Velocity[0] * u, c.Velocity[1] * u},
		DF: c.Velocity,
		A:  c.Diffusion,
		R:  c.Reaction * u,
		DR: c.Reaction,
	}
	if c.Source != nil {
		e.R += c.Source(x, t)
	}
	return e
}

// Speed implements Coefficients.
func (c LinearADR) Speed(mesh.Point, float64, float64) float64 {
	return math.Hypot(c.Velocity[0], c.Velocity[1])
}

// Burgers is a viscous Burgers-type equation with flux f = B u²/2:
//
//	m = M u,  f = B u²/2,  a = A,  r = S(x, t)
type Burgers struct {
	Mass      float64
	Velocity  [2]float64
	Diffusion [2][2]float64
	Source    ScalarFunc
}

// Evaluate implements Coefficients.
func (c Burgers) Evaluate(x mesh.Point, t, u float64) Eval {
	e := Eval{
		M:  c.Mass * u,
		DM: c.Mass,
		F:  [2]float64{0.5 * c.Velocity[0] * u * u, 0.5 * c.Velocity[1] * u * u},
		DF: [2]float64{c.Velocity[0] * u, c.Velocity[1] * u},
		A:  c.Diffusion,
	}
	if c.Source != nil {
		e.R = c.Source(x, t)
	}
	return e
}

// Speed implements Coefficients.
func (c Burgers) Speed(_ mesh.Point, _ float64, u float64) float64 {
	return math.Hypot(c.Velocity[0], c.Velocity[1]) * math.Abs(u)
}

// Isotropic returns the diffusion tensor k·I.
func Isotropic(k float64) [2][2]float64 {
	return [2][2]float64{{k, 0}, {0, k}}
}

// TensorNorm returns the spectral norm (largest singular value) of a 2×2
// tensor. With s = ‖a‖_F² and d = det a, the squared singular values are
// the roots of σ⁴ − sσ² + d² = 0.
func TensorNorm(a [2][2]float64) float64 {
	s := a[0][0]*a[0][0] + a[0][1]*a[0][1] + a[1][0]*a[1][0] + a[1][1]*a[1][1]
	d := a[0][0]*a[1][1] - a[0][1]*a[1][0]
	disc := math.Max(s*s-4*d*d, 0)
	return math.Sqrt((s + math.Sqrt(disc)) / 2)
}
