// Package problem loads declarative transport problem documents and maps
// them to solver configurations.
//
// A document names its coefficients, initial and boundary data by
// reference to the functions registered in package physics:
//
//	name: rotating-hill
//	domain: {lx: 1, ly: 1, nx: 32, ny: 32}
//	coefficients:
//	  velocity: [1, 0.5]
//	  diffusion: 0.001
//	initial_condition: {fn: cosine_hill, params: {x0: 0.3, y0: 0.3, radius: 0.15}}
//	boundary:
//	  left: {dirichlet: {fn: constant, params: {value: 0}}}
//	numerics: {stabilization: supg}
//	time: {t_final: 0.5, dt: 0.01, n_output: 5}
//
// Documents are YAML or CUE. CUE documents are checked against the
// embedded #Problem schema before decoding.
package problem

import (
	"bytes"
	"encoding/json"
	"fmt"

	"gopkg.in/yaml.v3"
)

// Definition is a problem document.
type Definition struct {
	Name             string       `yaml:"name" json:"name"`
	Description      string       `yaml:"description,omitempty" json:"description,omitempty"`
	Domain           Domain       `yaml:"domain" json:"domain"`
	Coefficients     Coefficients `yaml:"coefficients" json:"coefficients"`
	InitialCondition *FunctionRef `yaml:"initial_condition,omitempty" json:"initial_condition,omitempty"`
	Boundary         Boundary     `yaml:"boundary,omitempty" json:"boundary"`
	Numerics         Numerics     `yaml:"numerics,omitempty" json:"numerics"`
	Time             Time         `yaml:"time,omitempty" json:"time"`
}

// Domain is a rectangle [x0, x0+lx] × [y0, y0+ly] split into nx × ny cells.
type Domain struct {
	X0 float64 `yaml:"x0,omitempty" json:"x0"`
	Y0 float64 `yaml:"y0,omitempty" json:"y0"`
	LX float64 `yaml:"lx,omitempty" json:"lx"`
	LY float64 `yaml:"ly,omitempty" json:"ly"`
	NX int     `yaml:"nx" json:"nx"`
	NY int     `yaml:"ny" json:"ny"`
}

// Coefficient kinds.
const (
	KindLinear  = "linear"
	KindBurgers = "burgers"
)

// Coefficients selects the transport equation. Velocity is the constant
// advection velocity for linear problems and the flux direction for
// Burgers problems.
type Coefficients struct {
	Kind            string       `yaml:"kind,omitempty" json:"kind"`
	Mass            *float64     `yaml:"mass,omitempty" json:"mass,omitempty"`
	Velocity        []float64    `yaml:"velocity,omitempty" json:"velocity,omitempty"`
	Diffusion       float64      `yaml:"diffusion,omitempty" json:"diffusion"`
	DiffusionTensor [][]float64  `yaml:"diffusion_tensor,omitempty" json:"diffusion_tensor,omitempty"`
	Reaction        float64      `yaml:"reaction,omitempty" json:"reaction"`
	Source          *FunctionRef `yaml:"source,omitempty" json:"source,omitempty"`
}

// FunctionRef names a registered space-time function and its parameters.
type FunctionRef struct {
	Fn     string             `yaml:"fn" json:"fn"`
	Params map[string]float64 `yaml:"params,omitempty" json:"params,omitempty"`
}

// String renders the reference for messages.
func (f FunctionRef) String() string {
	return fmt.Sprintf("%s%v", f.Fn, f.Params)
}

// Boundary holds the condition of each side. A missing side is an outflow
// boundary with zero diffusive flux.
type Boundary struct {
	Bottom *Side `yaml:"bottom,omitempty" json:"bottom,omitempty"`
	Right  *Side `yaml:"right,omitempty" json:"right,omitempty"`
	Top    *Side `yaml:"top,omitempty" json:"top,omitempty"`
	Left   *Side `yaml:"left,omitempty" json:"left,omitempty"`
}

// Side is the condition on one side of the domain.
type Side struct {
	Dirichlet     *FunctionRef   `yaml:"dirichlet,omitempty" json:"dirichlet,omitempty"`
	AdvectiveFlux *AdvectiveFlux `yaml:"advective_flux,omitempty" json:"advective_flux,omitempty"`
	DiffusiveFlux *FunctionRef   `yaml:"diffusive_flux,omitempty" json:"diffusive_flux,omitempty"`
}

// Advective flux modes.
const (
	FluxOutflow = "outflow"
	FluxNone    = "none"
)

// AdvectiveFlux is either a mode name ("outflow", "none") or a prescribed
// flux function.
type AdvectiveFlux struct {
	Mode string
	Fn   *FunctionRef
}

// UnmarshalYAML accepts a scalar mode or a function mapping.
func (a *AdvectiveFlux) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind == yaml.ScalarNode {
		a.Mode, a.Fn = node.Value, nil
		return nil
	}
	var ref FunctionRef
	if err := node.Decode(&ref); err != nil {
		return err
	}
	a.Mode, a.Fn = "", &ref
	return nil
}

// MarshalYAML mirrors UnmarshalYAML.
func (a AdvectiveFlux) MarshalYAML() (any, error) {
	if a.Fn != nil {
		return a.Fn, nil
	}
	return a.Mode, nil
}

// UnmarshalJSON accepts a string mode or a function object.
func (a *AdvectiveFlux) UnmarshalJSON(data []byte) error {
	var mode string
	if err := json.Unmarshal(data, &mode); err == nil {
		a.Mode, a.Fn = mode, nil
		return nil
	}
	var ref FunctionRef
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&ref); err != nil {
		return fmt.Errorf("advective_flux: want %q, %q or a function: %w", FluxOutflow, FluxNone, err)
	}
	a.Mode, a.Fn = "", &ref
	return nil
}

// MarshalJSON mirrors UnmarshalJSON.
func (a AdvectiveFlux) MarshalJSON() ([]byte, error) {
	if a.Fn != nil {
		return json.Marshal(a.Fn)
	}
	return json.Marshal(a.Mode)
}

// Numerics configures the discretization and the solvers.
type Numerics struct {
	QuadratureOrder         int             `yaml:"quadrature_order,omitempty" json:"quadrature_order"`
	BoundaryQuadratureOrder int             `yaml:"boundary_quadrature_order,omitempty" json:"boundary_quadrature_order"`
	Stabilization           string          `yaml:"stabilization,omitempty" json:"stabilization"`
	ShockCapturing          *ShockCapturing `yaml:"shock_capturing,omitempty" json:"shock_capturing,omitempty"`
	TimeIntegration         string          `yaml:"time_integration,omitempty" json:"time_integration"`
	LinearSolver            LinearSolver    `yaml:"linear_solver,omitempty" json:"linear_solver"`
	Newton                  Newton          `yaml:"newton,omitempty" json:"newton"`
	// Workers bounds the parallel element loop; 0 uses GOMAXPROCS.
	Workers int `yaml:"workers,omitempty" json:"workers"`
}

// ShockCapturing enables residual-based artificial diffusion.
type ShockCapturing struct {
	Factor float64 `yaml:"factor" json:"factor"`
	Lag    bool    `yaml:"lag,omitempty" json:"lag"`
}

// LinearSolver configures the linear solver used inside Newton.
type LinearSolver struct {
	Kind           string  `yaml:"kind,omitempty" json:"kind"`
	RTol           float64 `yaml:"rtol,omitempty" json:"rtol"`
	ATol           float64 `yaml:"atol,omitempty" json:"atol"`
	MaxIter        int     `yaml:"max_iter,omitempty" json:"max_iter"`
	Restart        int     `yaml:"restart,omitempty" json:"restart"`
	Preconditioner string  `yaml:"preconditioner,omitempty" json:"preconditioner"`
}

// Newton configures the nonlinear solver.
type Newton struct {
	RTol          float64 `yaml:"rtol,omitempty" json:"rtol"`
	ATol          float64 `yaml:"atol,omitempty" json:"atol"`
	MaxIter       int     `yaml:"max_iter,omitempty" json:"max_iter"`
	LineSearch    bool    `yaml:"line_search,omitempty" json:"line_search"`
	// MaxLineSearch bounds step halvings per iteration; zero means the default.
	MaxLineSearch int     `yaml:"max_line_search,omitempty" json:"max_line_search"`
}

// Time configures time stepping.
type Time struct {
	T0          float64 `yaml:"t0,omitempty" json:"t0"`
	TFinal      float64 `yaml:"t_final,omitempty" json:"t_final"`
	DT          float64 `yaml:"dt,omitempty" json:"dt"`
	RunCFL      float64 `yaml:"run_cfl,omitempty" json:"run_cfl"`
	NOutput     int     `yaml:"n_output,omitempty" json:"n_output"`
	MinDT       float64 `yaml:"min_dt,omitempty" json:"min_dt"`
	MaxFailures int     `yaml:"max_failures,omitempty" json:"max_failures"`
}
