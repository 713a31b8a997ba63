package physics

import "github.com/roach88/adrfem/internal/mesh"

// AdvectiveKind selects how the advective flux f·n is treated on a
// boundary side without Dirichlet data.
type AdvectiveKind int

const (
	// Outflow computes f(u)·n from the discrete solution.
	Outflow AdvectiveKind = iota
	// NoFlux sets the advective boundary flux to zero.
	NoFlux
	// Prescribed uses a given flux function.
	Prescribed
)

// AdvectiveFlux describes the advective boundary flux of one side.
type AdvectiveFlux struct {
	Kind  AdvectiveKind
	Value ScalarFunc // used when Kind == Prescribed
}

// BoundaryCondition collects the conditions on one side of the domain.
// The zero value is an outflow boundary with zero diffusive flux.
type BoundaryCondition struct {
	// Dirichlet, when set, imposes u = g strongly at the side's nodes.
	Dirichlet ScalarFunc
	// Advective is the advective flux f·n.
	Advective AdvectiveFlux
	// DiffusiveFlux is the prescribed −a∇u·n; nil means zero.
	DiffusiveFlux ScalarFunc
}

// BoundaryConditions maps sides to their conditions. Sides not present
// behave like the zero BoundaryCondition.
type BoundaryConditions map[mesh.Side]BoundaryCondition

// DirichletNodes evaluates the strong Dirichlet values at time t. A node on
// two sides takes its value from the first side, in Bottom, Right, Top,
// Left order, that carries Dirichlet data.
func (bcs BoundaryConditions) DirichletNodes(m *mesh.Mesh, t float64) map[int]float64 {
	out := make(map[int]float64)
	for _, be := range m.BoundaryEdges {
		if bcs[be.Side].Dirichlet == nil {
			continue
		}
		for _, n := range be.Nodes {
			if _, done := out[n]; done {
				continue
			}
			for _, s := range m.NodeSides(n) {
				if g := bcs[s].Dirichlet; g != nil {
					out[n] = g(m.Nodes[n], t)
					break
				}
			}
		}
	}
	return out
}

// HasDirichlet reports whether any side carries Dirichlet data.
func (bcs BoundaryConditions) HasDirichlet() bool {
	for _, bc := range bcs {
		if bc.Dirichlet != nil {
			return true
		}
	}
	return false
}
