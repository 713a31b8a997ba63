package assembly

import (
	"math"

	"github.com/roach88/adrfem/internal/mesh"
	"github.com/roach88/adrfem/internal/physics"
)

// shockEpsilon keeps the shock capturing viscosity finite where ∇u vanishes.
const shockEpsilon = 1e-12

type elementOutput struct {
	res [3]float64
	jac [3][3]float64
}

// qpoint is the solution and coefficients at one element quadrature point.
type qpoint struct {
	x       mesh.Point
	phi     [3]float64
	w       float64 // physical weight
	ev      physics.Eval
	mt, dmt float64
}

func (tr *Transport) evalPoint(e, q int, st *State, ue [3]float64, scale float64) qpoint {
	p := tr.rule.Points[q]
	phi := tr.shape[q]
	u := phi[0]*ue[0] + phi[1]*ue[1] + phi[2]*ue[2]
	x := tr.mesh.MapToPhysical(e, p[0], p[1])
	ev := tr.coeffs.Evaluate(x, st.T, u)
	mt, dmt := st.Mass.Rate(e*tr.rule.Len()+q, ev.M, ev.DM)
	return qpoint{x: x, phi: phi, w: tr.rule.Weights[q] * scale, ev: ev, mt: mt, dmt: dmt}
}

func elementValues(m *mesh.Mesh, e int, u []float64) (ue [3]float64) {
	for k, n := range m.Elements[e].Nodes {
		ue[k] = u[n]
	}
	return ue
}

func gradient(g mesh.Geometry, ue [3]float64) [2]float64 {
	var du [2]float64
	for k := 0; k < 3; k++ {
		du[0] += ue[k] * g.Grad[k][0]
		du[1] += ue[k] * g.Grad[k][1]
	}
	return du
}

func dot(a, b [2]float64) float64 { return a[0]*b[0] + a[1]*b[1] }

func apply(a [2][2]float64, v [2]float64) [2]float64 {
	return [2]float64{a[0][0]*v[0] + a[0][1]*v[1], a[1][0]*v[0] + a[1][1]*v[1]}
}

// strongResidual is m_t + f'(u)·∇u + r. The diffusion term vanishes for
// linear elements with u-independent a.
func strongResidual(p qpoint, du [2]float64) float64 {
	return p.mt + dot(p.ev.DF, du) + p.ev.R
}

// tau is the SUPG parameter
//
//	τ = ( (2 ∂m_t/∂u)² + (2|f'|/h)² + 9 (4‖a‖/h²)² )^{-1/2}
func tau(dmt float64, df [2]float64, a [2][2]float64, h float64) float64 {
	adv := 2 * math.Hypot(df[0], df[1]) / h
	diff := 4 * physics.TensorNorm(a) / (h * h)
	s := 4*dmt*dmt + adv*adv + 9*diff*diff
	if s == 0 {
		return 0
	}
	return 1 / math.Sqrt(s)
}

// element integrates the volume terms of element e.
func (tr *Transport) element(e int, st *State, wantRes, wantJac bool, out *elementOutput) {
	*out = elementOutput{}
	g := tr.mesh.Geometry(e)
	ue := elementValues(tr.mesh, e, st.U)
	du := gradient(g, ue)
	scale := 2 * g.Area
	supg := tr.opts.Stabilization == StabilizationSUPG

	nu := 0.0
	if tr.opts.ShockCapturing.Factor > 0 {
		if tr.opts.ShockCapturing.Lag && st.ShockLag != nil {
			nu = st.ShockLag[e]
		} else {
			nu = tr.viscosity(e, st, g, ue, du)
		}
	}

	for q := range tr.rule.Weights {
		p := tr.evalPoint(e, q, st, ue, scale)
		ev := p.ev
		flux := ev.F
		adu := apply(ev.A, du)
		flux[0] -= adu[0]
		flux[1] -= adu[1]

		var t, rs float64
		if supg {
			t = tau(p.dmt, ev.DF, ev.A, g.Diameter)
			rs = strongResidual(p, du)
		}

		for i := 0; i < 3; i++ {
			gi := g.Grad[i]
			advI := dot(ev.DF, gi)
			if wantRes {
				r := p.mt*p.phi[i] - dot(flux, gi) + ev.R*p.phi[i]
				if supg {
					r += t * advI * rs
				}
				if nu > 0 {
					r += nu * dot(du, gi)
				}
				out.res[i] += p.w * r
			}
			if wantJac {
				for j := 0; j < 3; j++ {
					gj := g.Grad[j]
					aj := apply(ev.A, gj)
					dflux := [2]float64{ev.DF[0]*p.phi[j] - aj[0], ev.DF[1]*p.phi[j] - aj[1]}
					v := p.dmt*p.phi[j]*p.phi[i] - dot(dflux, gi) + ev.DR*p.phi[j]*p.phi[i]
					if supg {
						v += t * advI * (p.dmt*p.phi[j] + dot(ev.DF, gj) + ev.DR*p.phi[j])
					}
					if nu > 0 {
						v += nu * dot(gj, gi)
					}
					out.jac[i][j] += p.w * v
				}
			}
		}
	}
}

// viscosity returns the shock capturing viscosity of element e,
//
//	ν = c h ⟨|R_s|⟩ / (|∇u| + ε)
//
// where ⟨·⟩ is the element mean, bounded by the first order upwind
// viscosity h |f'|/2.
func (tr *Transport) viscosity(e int, st *State, g mesh.Geometry, ue [3]float64, du [2]float64) float64 {
	scale := 2 * g.Area
	var sum, weight, speed float64
	for q := range tr.rule.Weights {
		p := tr.evalPoint(e, q, st, ue, scale)
		sum += p.w * math.Abs(strongResidual(p, du))
		weight += p.w
		speed = math.Max(speed, math.Hypot(p.ev.DF[0], p.ev.DF[1]))
	}
	if weight == 0 {
		return 0
	}
	h := g.Diameter
	nu := tr.opts.ShockCapturing.Factor * h * (sum / weight) / (math.Hypot(du[0], du[1]) + shockEpsilon)
	return math.Min(nu, 0.5*h*speed)
}
