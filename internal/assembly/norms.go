package assembly

import (
	"context"
	"fmt"
	"math"

	"github.com/roach88/adrfem/internal/mesh"
	"github.com/roach88/adrfem/internal/physics"
	"github.com/roach88/adrfem/internal/timeint"
)

// Integrate returns ∫_Ω u_h dx.
func (tr *Transport) Integrate(u []float64) float64 {
	total := 0.0
	for e := range tr.mesh.Elements {
		g := tr.mesh.Geometry(e)
		ue := elementValues(tr.mesh, e, u)
		// u_h is linear, so the centroid value is exact.
		total += g.Area * (ue[0] + ue[1] + ue[2]) / 3
	}
	return total
}

// TotalMass returns ∫_Ω m(u_h) dx with the assembly quadrature rule.
func (tr *Transport) TotalMass(u []float64, t float64) float64 {
	nq := tr.rule.Len()
	m := tr.MassAtQuadrature(u, t)
	total := 0.0
	for e := range tr.mesh.Elements {
		area := tr.mesh.Geometry(e).Area
		for q, w := range tr.rule.Weights {
			total += w * 2 * area * m[e*nq+q]
		}
	}
	return total
}

// L2Error returns ‖u_h − exact(·, t)‖_L2 using a fifth order rule.
func (tr *Transport) L2Error(u []float64, exact physics.ScalarFunc, t float64) float64 {
	sum := 0.0
	for e := range tr.mesh.Elements {
		g := tr.mesh.Geometry(e)
		ue := elementValues(tr.mesh, e, u)
		for q, p := range tr.norm.Points {
			phi := mesh.Shape(p[0], p[1])
			uh := phi[0]*ue[0] + phi[1]*ue[1] + phi[2]*ue[2]
			d := uh - exact(tr.mesh.MapToPhysical(e, p[0], p[1]), t)
			sum += tr.norm.Weights[q] * 2 * g.Area * d * d
		}
	}
	return math.Sqrt(sum)
}

// MaxNodalError returns max_i |u_i − exact(x_i, t)|.
func (tr *Transport) MaxNodalError(u []float64, exact physics.ScalarFunc, t float64) float64 {
	worst := 0.0
	for i, x := range tr.mesh.Nodes {
		worst = math.Max(worst, math.Abs(u[i]-exact(x, t)))
	}
	return worst
}

// MassAtQuadrature evaluates m(u_h) at every element quadrature point, in
// the layout expected by timeint integrators.
func (tr *Transport) MassAtQuadrature(u []float64, t float64) []float64 {
	nq := tr.rule.Len()
	out := make([]float64, tr.NumQuadraturePoints())
	for e := range tr.mesh.Elements {
		ue := elementValues(tr.mesh, e, u)
		for q, p := range tr.rule.Points {
			phi := tr.shape[q]
			uq := phi[0]*ue[0] + phi[1]*ue[1] + phi[2]*ue[2]
			out[e*nq+q] = tr.coeffs.Evaluate(tr.mesh.MapToPhysical(e, p[0], p[1]), t, uq).M
		}
	}
	return out
}

// ShockViscosity computes the per-element shock capturing viscosity at st,
// for use as State.ShockLag on the following step.
func (tr *Transport) ShockViscosity(ctx context.Context, st State) ([]float64, error) {
	if len(st.U) != tr.mesh.NumNodes() {
		return nil, fmt.Errorf("assembly: state has %d values, mesh has %d nodes", len(st.U), tr.mesh.NumNodes())
	}
	if st.Mass == nil {
		st.Mass = timeint.Steady{}.Begin(0)
	}
	nu := make([]float64, tr.mesh.NumElements())
	if tr.opts.ShockCapturing.Factor == 0 {
		return nu, nil
	}
	err := tr.forElements(ctx, func(e int) {
		g := tr.mesh.Geometry(e)
		ue := elementValues(tr.mesh, e, st.U)
		nu[e] = tr.viscosity(e, &st, g, ue, gradient(g, ue))
	})
	if err != nil {
		return nil, err
	}
	return nu, nil
}

// MaxSpeed returns the largest characteristic speed over the nodes.
func (tr *Transport) MaxSpeed(u []float64, t float64) float64 {
	speed := 0.0
	for i, x := range tr.mesh.Nodes {
		speed = math.Max(speed, tr.coeffs.Speed(x, t, u[i]))
	}
	return speed
}
