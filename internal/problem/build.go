package problem

import (
	"errors"
	"fmt"
	"strings"

	"github.com/roach88/adrfem/internal/assembly"
	"github.com/roach88/adrfem/internal/canonical"
	"github.com/roach88/adrfem/internal/linalg"
	"github.com/roach88/adrfem/internal/mesh"
	"github.com/roach88/adrfem/internal/newton"
	"github.com/roach88/adrfem/internal/physics"
	"github.com/roach88/adrfem/internal/solver"
	"github.com/roach88/adrfem/internal/timeint"
)

type namedSide struct {
	name string
	kind mesh.Side
	side *Side
}

// sides lists the boundary in Bottom, Right, Top, Left order.
func (b Boundary) sides() []namedSide {
	return []namedSide{
		{"bottom", mesh.Bottom, b.Bottom},
		{"right", mesh.Right, b.Right},
		{"top", mesh.Top, b.Top},
		{"left", mesh.Left, b.Left},
	}
}

func (d *Definition) steady() bool {
	return strings.EqualFold(d.Numerics.TimeIntegration, string(timeint.KindSteady))
}

func (l LinearSolver) config() linalg.Config {
	return linalg.Config{
		Kind:           linalg.Kind(strings.ToLower(l.Kind)),
		RTol:           l.RTol,
		ATol:           l.ATol,
		MaxIter:        l.MaxIter,
		Restart:        l.Restart,
		Preconditioner: l.Preconditioner,
	}
}

// Resolve builds the function a reference names. A nil reference resolves
// to nil.
func Resolve(ref *FunctionRef) (physics.ScalarFunc, error) {
	if ref == nil {
		return nil, nil
	}
	return physics.Lookup(ref.Fn, ref.Params)
}

// Build validates d and maps it to a solver configuration. d itself is not
// modified.
func (d *Definition) Build() (solver.Config, error) {
	if verrs := d.Validate(); len(verrs) > 0 {
		errs := make([]error, len(verrs))
		for i, ve := range verrs {
			errs[i] = ve
		}
		return solver.Config{}, fmt.Errorf("problem %q: %w", d.Name, errors.Join(errs...))
	}
	def := d.withDefaults()

	m, err := mesh.NewRectangle(mesh.RectangleSpec{
		X0: def.Domain.X0, Y0: def.Domain.Y0,
		LX: def.Domain.LX, LY: def.Domain.LY,
		NX: def.Domain.NX, NY: def.Domain.NY,
	})
	if err != nil {
		return solver.Config{}, err
	}

	coeffs, err := def.Coefficients.build()
	if err != nil {
		return solver.Config{}, err
	}
	initial, err := Resolve(def.InitialCondition)
	if err != nil {
		return solver.Config{}, fmt.Errorf("initial_condition: %w", err)
	}
	bcs, err := def.Boundary.build()
	if err != nil {
		return solver.Config{}, err
	}

	stab, err := assembly.ParseStabilization(def.Numerics.Stabilization)
	if err != nil {
		return solver.Config{}, err
	}
	aopts := assembly.Options{
		QuadratureOrder:         def.Numerics.QuadratureOrder,
		BoundaryQuadratureOrder: def.Numerics.BoundaryQuadratureOrder,
		Stabilization:           stab,
		Workers:                 def.Numerics.Workers,
	}
	if sc := def.Numerics.ShockCapturing; sc != nil {
		aopts.ShockCapturing = assembly.ShockCapturing{Factor: sc.Factor, Lag: sc.Lag}
	}

	doc, err := def.canonical()
	if err != nil {
		return solver.Config{}, err
	}

	nw := def.Numerics.Newton
	return solver.Config{
		Name:            def.Name,
		Mesh:            m,
		Coefficients:    coeffs,
		Boundary:        bcs,
		Initial:         initial,
		Assembly:        aopts,
		TimeIntegration: strings.ToLower(def.Numerics.TimeIntegration),
		Linear:          def.Numerics.LinearSolver.config(),
		Newton: newton.Newton{
			RTol:          nw.RTol,
			ATol:          nw.ATol,
			MaxIter:       nw.MaxIter,
			LineSearch:    nw.LineSearch,
			MaxLineSearch: nw.MaxLineSearch,
		},
		Times: solver.TimeConfig{
			T0:          def.Time.T0,
			TFinal:      def.Time.TFinal,
			DT:          def.Time.DT,
			RunCFL:      def.Time.RunCFL,
			NOutput:     def.Time.NOutput,
			MinDT:       def.Time.MinDT,
			MaxFailures: def.Time.MaxFailures,
		},
		ProblemHash: canonical.Hash(canonical.DomainProblem, doc),
		Problem:     doc,
	}, nil
}

func (c Coefficients) build() (physics.Coefficients, error) {
	source, err := Resolve(c.Source)
	if err != nil {
		return nil, fmt.Errorf("coefficients.source: %w", err)
	}
	var vel [2]float64
	copy(vel[:], c.Velocity)
	diff := physics.Isotropic(c.Diffusion)
	if t := c.DiffusionTensor; t != nil {
		diff = [2][2]float64{{t[0][0], t[0][1]}, {t[1][0], t[1][1]}}
	}
	mass := 1.0
	if c.Mass != nil {
		mass = *c.Mass
	}

	switch c.Kind {
	case KindBurgers:
		return physics.Burgers{Mass: mass, Velocity: vel, Diffusion: diff, Source: source}, nil
	default:
		return physics.LinearADR{Mass: mass, Velocity: vel, Diffusion: diff, Reaction: c.Reaction, Source: source}, nil
	}
}

func (b Boundary) build() (physics.BoundaryConditions, error) {
	bcs := physics.BoundaryConditions{}
	for _, ns := range b.sides() {
		if ns.side == nil {
			continue
		}
		var bc physics.BoundaryCondition
		var err error
		if bc.Dirichlet, err = Resolve(ns.side.Dirichlet); err != nil {
			return nil, fmt.Errorf("boundary.%s.dirichlet: %w", ns.name, err)
		}
		if bc.DiffusiveFlux, err = Resolve(ns.side.DiffusiveFlux); err != nil {
			return nil, fmt.Errorf("boundary.%s.diffusive_flux: %w", ns.name, err)
		}
		if af := ns.side.AdvectiveFlux; af != nil {
			switch {
			case af.Fn != nil:
				f, err := Resolve(af.Fn)
				if err != nil {
					return nil, fmt.Errorf("boundary.%s.advective_flux: %w", ns.name, err)
				}
				bc.Advective = physics.AdvectiveFlux{Kind: physics.Prescribed, Value: f}
			case af.Mode == FluxNone:
				bc.Advective = physics.AdvectiveFlux{Kind: physics.NoFlux}
			}
		}
		bcs[ns.kind] = bc
	}
	return bcs, nil
}

// Canonical returns the canonical JSON encoding of d with defaults
// applied. Documents that differ only in formatting, key order or omitted
// defaults encode identically.
func (d *Definition) Canonical() ([]byte, error) {
	def := d.withDefaults()
	return def.canonical()
}

func (d *Definition) canonical() ([]byte, error) {
	data, err := canonical.Marshal(d)
	if err != nil {
		return nil, fmt.Errorf("problem %q: canonical form: %w", d.Name, err)
	}
	return data, nil
}

// Hash returns the content hash of the canonical form.
func (d *Definition) Hash() (string, error) {
	data, err := d.Canonical()
	if err != nil {
		return "", err
	}
	return canonical.Hash(canonical.DomainProblem, data), nil
}
