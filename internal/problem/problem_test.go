package problem

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/adrfem/internal/assembly"
	"github.com/roach88/adrfem/internal/linalg"
	"github.com/roach88/adrfem/internal/mesh"
	"github.com/roach88/adrfem/internal/physics"
	"github.com/roach88/adrfem/internal/solver"
)

func load(t *testing.T, name string) *Definition {
	t.Helper()
	def, err := LoadFile(filepath.Join("testdata", name))
	require.NoError(t, err)
	return def
}

func loadErr(t *testing.T, path string) *LoadError {
	t.Helper()
	_, err := LoadFile(path)
	require.Error(t, err)
	var le *LoadError
	require.True(t, errors.As(err, &le), "want *LoadError, got %T", err)
	return le
}

func TestLoadFile_YAMLAndCUEAgree(t *testing.T) {
	fromYAML := load(t, "patch.yaml")
	fromCUE := load(t, "patch.cue")

	a, err := fromYAML.Canonical()
	require.NoError(t, err)
	b, err := fromCUE.Canonical()
	require.NoError(t, err)
	assert.Equal(t, string(a), string(b))

	ha, err := fromYAML.Hash()
	require.NoError(t, err)
	hb, err := fromCUE.Hash()
	require.NoError(t, err)
	assert.Equal(t, ha, hb)
	assert.Len(t, ha, 64)
}

func TestLoadFile_Errors(t *testing.T) {
	dir := t.TempDir()
	txt := filepath.Join(dir, "problem.txt")
	require.NoError(t, os.WriteFile(txt, []byte("name: x"), 0o644))

	tests := []struct {
		name    string
		path    string
		code    string
		message string
		pos     bool
	}{
		{"missing", filepath.Join(dir, "nope.yaml"), ErrCodeNotFound, "not found", false},
		{"extension", txt, ErrCodeUnsupported, ".txt", false},
		{"yaml unknown field", "testdata/typo.yaml", ErrCodeParseFailed, "difusion", false},
		{"cue schema", "testdata/schema_violation.cue", ErrCodeSchema, "schema", true},
		{"cue closed struct", "testdata/unknown_field.cue", ErrCodeSchema, "difusion", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			le := loadErr(t, tt.path)
			assert.Equal(t, tt.code, le.Code)
			assert.Contains(t, le.Error(), tt.message)
			assert.Equal(t, tt.pos, le.Pos.IsValid())
		})
	}
}

func TestParseYAML_Empty(t *testing.T) {
	_, err := ParseYAML(nil)
	var le *LoadError
	require.True(t, errors.As(err, &le))
	assert.Equal(t, ErrCodeParseFailed, le.Code)
}

func TestParseCUE_SyntaxError(t *testing.T) {
	_, err := ParseCUE([]byte("name: \"x\"\ndomain: {"), "broken.cue")
	var le *LoadError
	require.True(t, errors.As(err, &le))
	assert.Equal(t, ErrCodeParseFailed, le.Code)
	assert.Equal(t, "broken.cue", le.Pos.Filename())
}

func TestParseYAML_AdvectiveFlux(t *testing.T) {
	def, err := ParseYAML([]byte(`
name: flux
domain: {nx: 1, ny: 1}
coefficients: {}
boundary:
  left: {advective_flux: none}
  right: {advective_flux: {fn: constant, params: {value: 2}}}
`))
	require.NoError(t, err)
	assert.Equal(t, FluxNone, def.Boundary.Left.AdvectiveFlux.Mode)
	require.NotNil(t, def.Boundary.Right.AdvectiveFlux.Fn)
	assert.Equal(t, "constant", def.Boundary.Right.AdvectiveFlux.Fn.Fn)

	doc, err := def.Canonical()
	require.NoError(t, err)
	assert.Contains(t, string(doc), `"left":{"advective_flux":"none"}`)
	assert.Contains(t, string(doc), `"right":{"advective_flux":{"fn":"constant","params":{"value":2}}}`)
}

func TestDefinition_ApplyDefaults(t *testing.T) {
	def := &Definition{Name: "d", Domain: Domain{NX: 2, NY: 2}}
	def.ApplyDefaults()

	assert.Equal(t, 1.0, def.Domain.LX)
	assert.Equal(t, 1.0, def.Domain.LY)
	assert.Equal(t, KindLinear, def.Coefficients.Kind)
	require.NotNil(t, def.Coefficients.Mass)
	assert.Equal(t, 1.0, *def.Coefficients.Mass)
	assert.Equal(t, DefaultQuadratureOrder, def.Numerics.QuadratureOrder)
	assert.Equal(t, "none", def.Numerics.Stabilization)
	assert.Equal(t, "backward_euler", def.Numerics.TimeIntegration)
	assert.Equal(t, "gmres", def.Numerics.LinearSolver.Kind)
	assert.Equal(t, 50, def.Numerics.LinearSolver.Restart)
	assert.Equal(t, 25, def.Numerics.Newton.MaxIter)
	assert.Equal(t, DefaultMaxLineSearch, def.Numerics.Newton.MaxLineSearch)
	assert.Equal(t, 1, def.Time.NOutput)
	assert.Equal(t, DefaultMinDT, def.Time.MinDT)

	// Explicit values survive.
	def = &Definition{Numerics: Numerics{Stabilization: "supg"}, Time: Time{NOutput: 7}}
	def.ApplyDefaults()
	assert.Equal(t, "supg", def.Numerics.Stabilization)
	assert.Equal(t, 7, def.Time.NOutput)
}

func validDefinition() *Definition {
	return &Definition{
		Name:         "valid",
		Domain:       Domain{NX: 2, NY: 2},
		Coefficients: Coefficients{Velocity: []float64{1, 0}, Diffusion: 0.1},
		Time:         Time{TFinal: 1, DT: 0.1},
	}
}

func TestDefinition_Validate(t *testing.T) {
	require.Empty(t, validDefinition().Validate())

	neg := -1.0
	tests := []struct {
		name   string
		mutate func(*Definition)
		field  string
		code   string
	}{
		{"name", func(d *Definition) { d.Name = " " }, "name", ErrNameEmpty},
		{"cells", func(d *Definition) { d.Domain.NX = 0 }, "domain", ErrInvalidDomain},
		{"extent", func(d *Definition) { d.Domain.LY = -2 }, "domain", ErrInvalidDomain},
		{"kind", func(d *Definition) { d.Coefficients.Kind = "euler" }, "coefficients.kind", ErrInvalidCoeffs},
		{"mass", func(d *Definition) { d.Coefficients.Mass = &neg }, "coefficients.mass", ErrInvalidCoeffs},
		{"velocity", func(d *Definition) { d.Coefficients.Velocity = []float64{1} }, "coefficients.velocity", ErrInvalidCoeffs},
		{"diffusion", func(d *Definition) { d.Coefficients.Diffusion = -1 }, "coefficients.diffusion", ErrInvalidCoeffs},
		{"tensor shape", func(d *Definition) {
			d.Coefficients.Diffusion = 0
			d.Coefficients.DiffusionTensor = [][]float64{{1, 0}}
		}, "coefficients.diffusion_tensor", ErrInvalidCoeffs},
		{"tensor and scalar", func(d *Definition) {
			d.Coefficients.DiffusionTensor = [][]float64{{1, 0}, {0, 1}}
		}, "coefficients.diffusion_tensor", ErrInvalidCoeffs},
		{"burgers reaction", func(d *Definition) {
			d.Coefficients.Kind = KindBurgers
			d.Coefficients.Reaction = 1
		}, "coefficients.reaction", ErrInvalidCoeffs},
		{"source", func(d *Definition) { d.Coefficients.Source = &FunctionRef{Fn: "bessel"} }, "coefficients.source", ErrInvalidFunction},
		{"initial params", func(d *Definition) {
			d.InitialCondition = &FunctionRef{Fn: "gaussian", Params: map[string]float64{"x0": 0}}
		}, "initial_condition", ErrInvalidFunction},
		{"flux mode", func(d *Definition) {
			d.Boundary.Top = &Side{AdvectiveFlux: &AdvectiveFlux{Mode: "inflow"}}
		}, "boundary.top.advective_flux", ErrInvalidBoundary},
		{"dirichlet with flux", func(d *Definition) {
			d.Boundary.Left = &Side{
				Dirichlet:     &FunctionRef{Fn: "constant", Params: map[string]float64{"value": 0}},
				DiffusiveFlux: &FunctionRef{Fn: "constant", Params: map[string]float64{"value": 0}},
			}
		}, "boundary.left", ErrInvalidBoundary},
		{"quadrature", func(d *Definition) { d.Numerics.QuadratureOrder = 9 }, "numerics.quadrature_order", ErrInvalidNumerics},
		{"stabilization", func(d *Definition) { d.Numerics.Stabilization = "gls" }, "numerics.stabilization", ErrInvalidNumerics},
		{"shock", func(d *Definition) { d.Numerics.ShockCapturing = &ShockCapturing{Factor: -1} }, "numerics.shock_capturing.factor", ErrInvalidNumerics},
		{"time integration", func(d *Definition) { d.Numerics.TimeIntegration = "rk4" }, "numerics.time_integration", ErrInvalidNumerics},
		{"linear solver", func(d *Definition) { d.Numerics.LinearSolver.Kind = "cg" }, "numerics.linear_solver", ErrInvalidNumerics},
		{"workers", func(d *Definition) { d.Numerics.Workers = -1 }, "numerics.workers", ErrInvalidNumerics},
		{"line search", func(d *Definition) { d.Numerics.Newton.MaxLineSearch = -1 }, "numerics.newton.max_line_search", ErrInvalidNumerics},
		{"interval", func(d *Definition) { d.Time.TFinal = 0 }, "time.t_final", ErrInvalidTime},
		{"no step", func(d *Definition) { d.Time.DT = 0 }, "time.dt", ErrInvalidTime},
		{"min dt", func(d *Definition) { d.Time.MinDT = 1 }, "time.min_dt", ErrInvalidTime},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			def := validDefinition()
			tt.mutate(def)
			errs := def.Validate()
			require.NotEmpty(t, errs)
			assert.NotEmpty(t, findMessage(errs, tt.field, tt.code), "errors: %v", errs)
		})
	}
}

func findMessage(errs []ValidationError, field, code string) string {
	for _, e := range errs {
		if e.Field == field && e.Code == code {
			return e.Message
		}
	}
	return ""
}

func TestDefinition_ValidateSteady(t *testing.T) {
	def := validDefinition()
	def.Numerics.TimeIntegration = "steady"
	def.Time = Time{}
	zero := 0.0
	def.Coefficients.Mass = &zero
	assert.Empty(t, def.Validate())
}

func TestDefinition_Build(t *testing.T) {
	def := load(t, "transient.yaml")
	cfg, err := def.Build()
	require.NoError(t, err)

	assert.Nil(t, def.Coefficients.Mass, "Build must not modify the definition")

	assert.Equal(t, "transient", cfg.Name)
	assert.Equal(t, 25, cfg.Mesh.NumNodes())
	assert.Equal(t, mesh.Point{X: -1, Y: -1}, cfg.Mesh.Nodes[0])

	coeffs, ok := cfg.Coefficients.(physics.LinearADR)
	require.True(t, ok, "got %T", cfg.Coefficients)
	assert.Equal(t, 1.0, coeffs.Mass)
	assert.Equal(t, [2]float64{1, 0}, coeffs.Velocity)
	assert.Equal(t, [2][2]float64{{0.1, 0}, {0, 0.2}}, coeffs.Diffusion)
	assert.Equal(t, 0.5, coeffs.Reaction)
	require.NotNil(t, coeffs.Source)
	assert.Equal(t, 1.0, coeffs.Source(mesh.Point{}, 0))

	require.NotNil(t, cfg.Initial)
	assert.InDelta(t, 1.0, cfg.Initial(mesh.Point{}, 0), 1e-15)

	require.Len(t, cfg.Boundary, 4)
	assert.NotNil(t, cfg.Boundary[mesh.Left].Dirichlet)
	assert.Equal(t, physics.Outflow, cfg.Boundary[mesh.Right].Advective.Kind)
	assert.Equal(t, physics.NoFlux, cfg.Boundary[mesh.Top].Advective.Kind)
	assert.NotNil(t, cfg.Boundary[mesh.Top].DiffusiveFlux)
	assert.Equal(t, physics.Prescribed, cfg.Boundary[mesh.Bottom].Advective.Kind)

	assert.Equal(t, 4, cfg.Assembly.QuadratureOrder)
	assert.Equal(t, DefaultQuadratureOrder, cfg.Assembly.BoundaryQuadratureOrder)
	assert.Equal(t, assembly.StabilizationSUPG, cfg.Assembly.Stabilization)
	assert.Equal(t, assembly.ShockCapturing{Factor: 0.2, Lag: true}, cfg.Assembly.ShockCapturing)
	assert.Equal(t, 2, cfg.Assembly.Workers)

	assert.Equal(t, "bdf2", cfg.TimeIntegration)
	assert.Equal(t, linalg.KindBiCGStab, cfg.Linear.Kind)
	assert.Equal(t, "none", cfg.Linear.Preconditioner)
	assert.Equal(t, 10, cfg.Newton.MaxIter)
	assert.True(t, cfg.Newton.LineSearch)
	assert.Equal(t, DefaultMaxLineSearch, cfg.Newton.MaxLineSearch)
	assert.Equal(t, solver.TimeConfig{TFinal: 0.2, DT: 0.05, NOutput: 2, MinDT: DefaultMinDT, MaxFailures: 3}, cfg.Times)

	hash, err := def.Hash()
	require.NoError(t, err)
	assert.Equal(t, hash, cfg.ProblemHash)
	doc, err := def.Canonical()
	require.NoError(t, err)
	assert.Equal(t, doc, cfg.Problem)
}

func TestDefinition_BuildMaxLineSearch(t *testing.T) {
	tests := []struct {
		name  string
		parse func() (*Definition, error)
	}{
		{"yaml", func() (*Definition, error) {
			return ParseYAML([]byte(`
name: ls
domain: {nx: 2, ny: 2}
coefficients: {diffusion: 1}
numerics:
  time_integration: steady
  newton: {line_search: true, max_line_search: 3}
`))
		}},
		{"cue", func() (*Definition, error) {
			return ParseCUE([]byte(`
name: "ls"
domain: {nx: 2, ny: 2}
coefficients: diffusion: 1
numerics: {
	time_integration: "steady"
	newton: {line_search: true, max_line_search: 3}
}
`), "ls.cue")
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			def, err := tt.parse()
			require.NoError(t, err)
			assert.Equal(t, 3, def.Numerics.Newton.MaxLineSearch)

			cfg, err := def.Build()
			require.NoError(t, err)
			assert.True(t, cfg.Newton.LineSearch)
			assert.Equal(t, 3, cfg.Newton.MaxLineSearch)
		})
	}
}

func TestParseCUE_NegativeMaxLineSearch(t *testing.T) {
	_, err := ParseCUE([]byte(`
name: "ls"
domain: {nx: 2, ny: 2}
coefficients: diffusion: 1
numerics: newton: max_line_search: -1
`), "ls.cue")
	var le *LoadError
	require.True(t, errors.As(err, &le))
	assert.Equal(t, ErrCodeSchema, le.Code)
}

func TestDefinition_BuildInvalid(t *testing.T) {
	def := validDefinition()
	def.Domain.NX = 0
	def.Numerics.Stabilization = "gls"

	_, err := def.Build()
	require.Error(t, err)
	var ve ValidationError
	require.True(t, errors.As(err, &ve))
	assert.Equal(t, ErrInvalidDomain, ve.Code)
	assert.Contains(t, err.Error(), "numerics.stabilization")
}

func TestDefinition_BuildAndSolve(t *testing.T) {
	for _, name := range []string{"patch.yaml", "patch.cue"} {
		t.Run(name, func(t *testing.T) {
			cfg, err := load(t, name).Build()
			require.NoError(t, err)

			s, err := solver.New(cfg)
			require.NoError(t, err)
			res, err := s.CalculateSolution(context.Background(), "")
			require.NoError(t, err)
			assert.False(t, res.Failed)

			exact, err := Resolve(&FunctionRef{Fn: "linear", Params: map[string]float64{"a": 1, "bx": 2, "by": -1}})
			require.NoError(t, err)
			assert.Less(t, s.Transport().MaxNodalError(res.U, exact, 0), 1e-10)
		})
	}
}

func TestDefinition_HashIgnoresDefaults(t *testing.T) {
	a := validDefinition()
	b := validDefinition()
	b.Numerics.QuadratureOrder = DefaultQuadratureOrder
	b.Domain.LX = 1

	ha, err := a.Hash()
	require.NoError(t, err)
	hb, err := b.Hash()
	require.NoError(t, err)
	assert.Equal(t, ha, hb)

	b.Coefficients.Diffusion = 0.2
	hc, err := b.Hash()
	require.NoError(t, err)
	assert.NotEqual(t, ha, hc)
}
