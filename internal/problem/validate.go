package problem

import (
	"fmt"
	"math"
	"strings"

	"github.com/roach88/adrfem/internal/assembly"
	"github.com/roach88/adrfem/internal/linalg"
	"github.com/roach88/adrfem/internal/physics"
	"github.com/roach88/adrfem/internal/quadrature"
	"github.com/roach88/adrfem/internal/timeint"
)

// Validation error codes (E100-E199)
const (
	ErrNameEmpty       = "E101" // name is required
	ErrInvalidDomain   = "E102" // extents or cell counts out of range
	ErrInvalidCoeffs   = "E103" // coefficient kind or values
	ErrInvalidFunction = "E104" // unknown function or bad parameters
	ErrInvalidBoundary = "E105" // boundary condition
	ErrInvalidNumerics = "E106" // quadrature, stabilization or solvers
	ErrInvalidTime     = "E107" // time interval or step control
)

// ValidationError is a semantic problem with a Definition.
type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
	Code    string `json:"code"`
}

// Error implements the error interface.
func (e ValidationError) Error() string {
	return fmt.Sprintf("[%s] %s: %s", e.Code, e.Field, e.Message)
}

// Defaults used by ApplyDefaults.
const (
	DefaultQuadratureOrder = 3
	DefaultMinDT           = 1e-10
	DefaultMaxLineSearch   = 8
)

// ApplyDefaults fills every unset optional field.
func (d *Definition) ApplyDefaults() {
	if d.Domain.LX == 0 {
		d.Domain.LX = 1
	}
	if d.Domain.LY == 0 {
		d.Domain.LY = 1
	}

	c := &d.Coefficients
	if c.Kind == "" {
		c.Kind = KindLinear
	}
	if c.Mass == nil {
		one := 1.0
		c.Mass = &one
	}

	n := &d.Numerics
	if n.QuadratureOrder == 0 {
		n.QuadratureOrder = DefaultQuadratureOrder
	}
	if n.BoundaryQuadratureOrder == 0 {
		n.BoundaryQuadratureOrder = DefaultQuadratureOrder
	}
	if n.Stabilization == "" {
		n.Stabilization = string(assembly.StabilizationNone)
	}
	if n.TimeIntegration == "" {
		n.TimeIntegration = string(timeint.KindBackwardEuler)
	}

	ls, def := &n.LinearSolver, linalg.DefaultConfig()
	if ls.Kind == "" {
		ls.Kind = string(def.Kind)
	}
	if ls.RTol == 0 {
		ls.RTol = def.RTol
	}
	if ls.ATol == 0 {
		ls.ATol = def.ATol
	}
	if ls.MaxIter == 0 {
		ls.MaxIter = def.MaxIter
	}
	if ls.Restart == 0 {
		ls.Restart = def.Restart
	}
	if ls.Preconditioner == "" {
		ls.Preconditioner = def.Preconditioner
	}

	nw := &n.Newton
	if nw.RTol == 0 {
		nw.RTol = 1e-8
	}
	if nw.ATol == 0 {
		nw.ATol = 1e-10
	}
	if nw.MaxIter == 0 {
		nw.MaxIter = 25
	}
	if nw.MaxLineSearch == 0 {
		nw.MaxLineSearch = DefaultMaxLineSearch
	}

	t := &d.Time
	if t.NOutput == 0 {
		t.NOutput = 1
	}
	if t.MinDT == 0 {
		t.MinDT = DefaultMinDT
	}
}

// withDefaults returns a copy with defaults applied. ApplyDefaults only
// assigns fields, so the copy shares no written state with d.
func (d *Definition) withDefaults() Definition {
	c := *d
	c.ApplyDefaults()
	return c
}

// Validate checks d after defaults have been applied and returns every
// problem found.
func (d *Definition) Validate() []ValidationError {
	v := &validator{}
	def := d.withDefaults()

	if strings.TrimSpace(def.Name) == "" {
		v.add("name", ErrNameEmpty, "name is required and must be non-empty")
	}

	dom := def.Domain
	if dom.NX < 1 || dom.NY < 1 {
		v.add("domain", ErrInvalidDomain, "nx and ny must be positive, got %d and %d", dom.NX, dom.NY)
	}
	if !(dom.LX > 0) || !(dom.LY > 0) || !finite(dom.LX, dom.LY, dom.X0, dom.Y0) {
		v.add("domain", ErrInvalidDomain, "lx and ly must be positive and finite, got %g and %g", dom.LX, dom.LY)
	}

	steady := def.steady()
	v.coefficients(def.Coefficients, steady)
	v.function("initial_condition", def.InitialCondition)
	for _, s := range def.Boundary.sides() {
		v.side(s.name, s.side)
	}
	v.numerics(def.Numerics)
	v.time(def.Time, steady)
	return v.errs
}

type validator struct {
	errs []ValidationError
}

func (v *validator) add(field, code, format string, args ...any) {
	v.errs = append(v.errs, ValidationError{Field: field, Code: code, Message: fmt.Sprintf(format, args...)})
}

func (v *validator) function(field string, ref *FunctionRef) {
	if ref == nil {
		return
	}
	if _, err := physics.Lookup(ref.Fn, ref.Params); err != nil {
		v.add(field, ErrInvalidFunction, "%v", err)
	}
}

func (v *validator) coefficients(c Coefficients, steady bool) {
	switch c.Kind {
	case KindLinear, KindBurgers:
	default:
		v.add("coefficients.kind", ErrInvalidCoeffs, "unknown kind %q (want %q or %q)", c.Kind, KindLinear, KindBurgers)
	}
	if c.Mass != nil && (!finite(*c.Mass) || (!steady && *c.Mass <= 0)) {
		v.add("coefficients.mass", ErrInvalidCoeffs, "mass must be positive for transient problems, got %g", *c.Mass)
	}
	if c.Velocity != nil && (len(c.Velocity) != 2 || !finite(c.Velocity...)) {
		v.add("coefficients.velocity", ErrInvalidCoeffs, "velocity must have two finite components, got %v", c.Velocity)
	}
	if c.Diffusion < 0 || !finite(c.Diffusion) {
		v.add("coefficients.diffusion", ErrInvalidCoeffs, "diffusion must be non-negative, got %g", c.Diffusion)
	}
	if c.DiffusionTensor != nil {
		if c.Diffusion != 0 {
			v.add("coefficients.diffusion_tensor", ErrInvalidCoeffs, "diffusion and diffusion_tensor are mutually exclusive")
		}
		if len(c.DiffusionTensor) != 2 || len(c.DiffusionTensor[0]) != 2 || len(c.DiffusionTensor[1]) != 2 {
			v.add("coefficients.diffusion_tensor", ErrInvalidCoeffs, "diffusion_tensor must be 2×2")
		} else if a := c.DiffusionTensor; !finite(a[0][0], a[0][1], a[1][0], a[1][1]) || a[0][0] < 0 || a[1][1] < 0 {
			v.add("coefficients.diffusion_tensor", ErrInvalidCoeffs, "diffusion_tensor must be finite with non-negative diagonal")
		}
	}
	if !finite(c.Reaction) {
		v.add("coefficients.reaction", ErrInvalidCoeffs, "reaction must be finite")
	}
	if c.Kind == KindBurgers && c.Reaction != 0 {
		v.add("coefficients.reaction", ErrInvalidCoeffs, "burgers problems take a source, not a reaction rate")
	}
	v.function("coefficients.source", c.Source)
}

func (v *validator) side(name string, s *Side) {
	if s == nil {
		return
	}
	prefix := "boundary." + name
	v.function(prefix+".dirichlet", s.Dirichlet)
	v.function(prefix+".diffusive_flux", s.DiffusiveFlux)
	if af := s.AdvectiveFlux; af != nil {
		switch {
		case af.Fn != nil:
			v.function(prefix+".advective_flux", af.Fn)
		case af.Mode == FluxOutflow, af.Mode == FluxNone:
		default:
			v.add(prefix+".advective_flux", ErrInvalidBoundary, "unknown mode %q (want %q, %q or a function)", af.Mode, FluxOutflow, FluxNone)
		}
	}
	if s.Dirichlet != nil && (s.AdvectiveFlux != nil || s.DiffusiveFlux != nil) {
		v.add(prefix, ErrInvalidBoundary, "flux conditions are ignored on a dirichlet side")
	}
}

func (v *validator) numerics(n Numerics) {
	if n.QuadratureOrder < 1 || n.QuadratureOrder > quadrature.MaxOrder {
		v.add("numerics.quadrature_order", ErrInvalidNumerics, "must be in [1, %d], got %d", quadrature.MaxOrder, n.QuadratureOrder)
	}
	if n.BoundaryQuadratureOrder < 1 || n.BoundaryQuadratureOrder > quadrature.MaxOrder {
		v.add("numerics.boundary_quadrature_order", ErrInvalidNumerics, "must be in [1, %d], got %d", quadrature.MaxOrder, n.BoundaryQuadratureOrder)
	}
	if _, err := assembly.ParseStabilization(n.Stabilization); err != nil {
		v.add("numerics.stabilization", ErrInvalidNumerics, "%v", err)
	}
	if sc := n.ShockCapturing; sc != nil && (sc.Factor < 0 || !finite(sc.Factor)) {
		v.add("numerics.shock_capturing.factor", ErrInvalidNumerics, "must be non-negative, got %g", sc.Factor)
	}
	if _, err := timeint.New(n.TimeIntegration); err != nil {
		v.add("numerics.time_integration", ErrInvalidNumerics, "%v", err)
	}
	if _, err := linalg.New(n.LinearSolver.config()); err != nil {
		v.add("numerics.linear_solver", ErrInvalidNumerics, "%v", err)
	}
	if n.Newton.MaxIter < 1 {
		v.add("numerics.newton.max_iter", ErrInvalidNumerics, "must be positive, got %d", n.Newton.MaxIter)
	}
	if n.Newton.RTol < 0 || n.Newton.ATol < 0 {
		v.add("numerics.newton", ErrInvalidNumerics, "tolerances must be non-negative")
	}
	if n.Newton.MaxLineSearch < 0 {
		v.add("numerics.newton.max_line_search", ErrInvalidNumerics, "must be non-negative, got %d", n.Newton.MaxLineSearch)
	}
	if n.Workers < 0 {
		v.add("numerics.workers", ErrInvalidNumerics, "must be non-negative, got %d", n.Workers)
	}
}

func (v *validator) time(t Time, steady bool) {
	if !finite(t.T0, t.TFinal, t.DT, t.RunCFL, t.MinDT) {
		v.add("time", ErrInvalidTime, "values must be finite")
		return
	}
	if steady {
		if t.TFinal < t.T0 {
			v.add("time.t_final", ErrInvalidTime, "t_final %g is before t0 %g", t.TFinal, t.T0)
		}
		return
	}
	if t.TFinal <= t.T0 {
		v.add("time.t_final", ErrInvalidTime, "t_final %g must be after t0 %g", t.TFinal, t.T0)
	}
	if t.DT < 0 || t.RunCFL < 0 {
		v.add("time", ErrInvalidTime, "dt and run_cfl must be non-negative")
	}
	if t.DT == 0 && t.RunCFL == 0 {
		v.add("time.dt", ErrInvalidTime, "transient problems need dt or run_cfl")
	}
	if t.NOutput < 1 {
		v.add("time.n_output", ErrInvalidTime, "must be positive, got %d", t.NOutput)
	}
	if t.MinDT < 0 || (t.DT > 0 && t.MinDT > t.DT) {
		v.add("time.min_dt", ErrInvalidTime, "must be in [0, dt], got %g", t.MinDT)
	}
	if t.MaxFailures < 0 {
		v.add("time.max_failures", ErrInvalidTime, "must be non-negative, got %d", t.MaxFailures)
	}
}

func finite(vals ...float64) bool {
	for _, f := range vals {
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return false
		}
	}
	return true
}
