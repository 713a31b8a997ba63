package assembly

import (
	"fmt"

	"github.com/roach88/adrfem/internal/linalg"
	"github.com/roach88/adrfem/internal/physics"
)

// boundary adds ∫ (f·n + q) φ_i ds over edges of sides without Dirichlet
// data. Edges on Dirichlet sides only touch constrained rows.
//
// An Outflow side uses f(u)·n where f'(u)·n ≥ 0 and no flux where the
// characteristic enters the domain.
func (tr *Transport) boundary(st *State, res []float64, jac *linalg.CSR) error {
	for _, be := range tr.mesh.BoundaryEdges {
		bc := tr.bcs[be.Side]
		if bc.Dirichlet != nil {
			continue
		}
		if bc.Advective.Kind == physics.NoFlux && bc.DiffusiveFlux == nil {
			continue
		}

		length := tr.mesh.EdgeLength(be)
		normal := tr.mesh.OutwardNormal(be)
		a, b := be.Nodes[0], be.Nodes[1]
		var r [2]float64
		var j [2][2]float64

		for q, s := range tr.line.Points {
			w := tr.line.Weights[q] * length
			phi := [2]float64{1 - s, s}
			x := tr.mesh.EdgePoint(be, s)
			u := phi[0]*st.U[a] + phi[1]*st.U[b]

			var fn, dfn float64
			switch bc.Advective.Kind {
			case physics.Outflow:
				ev := tr.coeffs.Evaluate(x, st.T, u)
				if d := dot(ev.DF, normal); d >= 0 {
					fn, dfn = dot(ev.F, normal), d
				}
			case physics.Prescribed:
				if bc.Advective.Value == nil {
					return fmt.Errorf("assembly: %s side has a prescribed advective flux without a function", be.Side)
				}
				fn = bc.Advective.Value(x, st.T)
			}
			if bc.DiffusiveFlux != nil {
				fn += bc.DiffusiveFlux(x, st.T)
			}

			for k := 0; k < 2; k++ {
				r[k] += w * fn * phi[k]
				for l := 0; l < 2; l++ {
					j[k][l] += w * dfn * phi[l] * phi[k]
				}
			}
		}

		nodes := [2]int{a, b}
		for k := 0; k < 2; k++ {
			if res != nil {
				res[nodes[k]] += r[k]
			}
			if jac != nil {
				for l := 0; l < 2; l++ {
					if err := jac.Add(nodes[k], nodes[l], j[k][l]); err != nil {
						return fmt.Errorf("assembly: boundary edge %d-%d: %w", a, b, err)
					}
				}
			}
		}
	}
	return nil
}
