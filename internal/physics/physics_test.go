package physics

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/adrfem/internal/mesh"
)

func TestLinearADREvaluate(t *testing.T) {
	c := LinearADR{
		Mass:      2,
		Velocity:  [2]float64{1, -3},
		Diffusion: Isotropic(0.5),
		Reaction:  4,
		Source:    func(x mesh.Point, t float64) float64 { return x.X + t },
	}

	e := c.Evaluate(mesh.Point{X: 1, Y: 2}, 3, 0.5)
	assert.Equal(t, 1.0, e.M)
	assert.Equal(t, 2.0, e.DM)
	assert.Equal(t, [2]float64{0.5, -1.5}, e.F)
	assert.Equal(t, [2]float64{1, -3}, e.DF)
	assert.Equal(t, [2][2]float64{{0.5, 0}, {0, 0.5}}, e.A)
	assert.Equal(t, 2.0+4.0, e.R)
	assert.Equal(t, 4.0, e.DR)

	assert.InDelta(t, math.Sqrt(10), c.Speed(mesh.Point{}, 0, 7), 1e-15)
}

func TestBurgersDerivativesMatchFiniteDifferences(t *testing.T) {
	c := Burgers{Mass: 1, Velocity: [2]float64{1, 0.5}, Diffusion: Isotropic(0.01)}
	x := mesh.Point{X: 0.3, Y: 0.7}
	u, h := 0.8, 1e-6

	e := c.Evaluate(x, 0, u)
	ep := c.Evaluate(x, 0, u+h)
	em := c.Evaluate(x, 0, u-h)

	for k := 0; k < 2; k++ {
		fd := (ep.F[k] - em.F[k]) / (2 * h)
		assert.InDelta(t, fd, e.DF[k], 1e-8)
	}
	assert.InDelta(t, (ep.M-em.M)/(2*h), e.DM, 1e-8)
	assert.InDelta(t, 0.8*math.Hypot(1, 0.5), c.Speed(x, 0, -u), 1e-12)
}

func TestLookupFunctions(t *testing.T) {
	p := mesh.Point{X: 0.25, Y: 0.5}

	tests := []struct {
		name   string
		fn     string
		params map[string]float64
		want   float64
	}{
		{"constant", "constant", map[string]float64{"value": 3}, 3},
		{"linear", "linear", map[string]float64{"a": 1, "bx": 4, "by": 2, "bt": 1}, 1 + 1 + 1 + 2},
		{"linear defaults", "linear", nil, 0},
		{"exponential decay", "exponential_decay", map[string]float64{"rate": 0.5, "amp": 3}, 3 * math.Exp(-1)},
		{"gaussian at centre", "gaussian", map[string]float64{"x0": 0.25, "y0": 0.5, "sigma": 0.1, "amp": 2}, 2},
		{"sin_product", "sin_product", map[string]float64{"amp": 2}, 2 * math.Sin(math.Pi/4) * math.Sin(math.Pi/2)},
		{"step below", "step", map[string]float64{"offset": 0.5}, 1},
		{"step above", "step", map[string]float64{"offset": 0.1}, 0},
		{"cosine hill centre", "cosine_hill", map[string]float64{"x0": 0.25, "y0": 0.5, "radius": 0.2}, 1},
		{"cosine hill outside", "cosine_hill", map[string]float64{"x0": 0.9, "y0": 0.9, "radius": 0.2}, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f, err := Lookup(tt.fn, tt.params)
			require.NoError(t, err)
			assert.InDelta(t, tt.want, f(p, 2), 1e-12)
		})
	}
}

func TestLookupErrors(t *testing.T) {
	tests := []struct {
		name   string
		fn     string
		params map[string]float64
		errMsg string
	}{
		{"unknown function", "bessel", nil, "unknown function"},
		{"missing required", "constant", nil, "missing parameter"},
		{"unknown parameter", "constant", map[string]float64{"value": 1, "slope": 2}, "unknown parameter"},
		{"non-finite", "constant", map[string]float64{"value": math.Inf(1)}, "not finite"},
		{"bad sigma", "gaussian", map[string]float64{"x0": 0, "y0": 0, "sigma": 0}, "sigma"},
		{"bad radius", "cosine_hill", map[string]float64{"x0": 0, "y0": 0, "radius": -1}, "radius"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Lookup(tt.fn, tt.params)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.errMsg)
		})
	}
}

func TestFunctionNamesSorted(t *testing.T) {
	names := FunctionNames()
	assert.Equal(t, []string{"constant", "cosine_hill", "exponential_decay", "gaussian", "linear", "sin_product", "step"}, names)
}

func TestDirichletNodesCornerPriority(t *testing.T) {
	m, err := mesh.NewRectangle(mesh.RectangleSpec{LX: 1, LY: 1, NX: 2, NY: 2})
	require.NoError(t, err)

	bcs := BoundaryConditions{
		mesh.Left:   {Dirichlet: Constant(4)},
		mesh.Bottom: {Dirichlet: Constant(1)},
		mesh.Right:  {Advective: AdvectiveFlux{Kind: Outflow}},
	}

	nodes := bcs.DirichletNodes(m, 0)

	// bottom row 0,1,2 and left column 0,3,6
	assert.Len(t, nodes, 5)
	assert.Equal(t, 1.0, nodes[0], "corner takes bottom before left")
	assert.Equal(t, 1.0, nodes[1])
	assert.Equal(t, 1.0, nodes[2])
	assert.Equal(t, 4.0, nodes[3])
	assert.Equal(t, 4.0, nodes[6])
	assert.True(t, bcs.HasDirichlet())
	assert.False(t, BoundaryConditions{}.HasDirichlet())
}

func TestDirichletNodesTimeDependent(t *testing.T) {
	m, err := mesh.NewRectangle(mesh.RectangleSpec{LX: 1, LY: 1, NX: 1, NY: 1})
	require.NoError(t, err)

	g, err := Lookup("linear", map[string]float64{"bt": 2})
	require.NoError(t, err)
	bcs := BoundaryConditions{mesh.Top: {Dirichlet: g}}

	nodes := bcs.DirichletNodes(m, 1.5)
	assert.Equal(t, map[int]float64{2: 3, 3: 3}, nodes)
}

func TestTensorNorm(t *testing.T) {
	tests := []struct {
		name string
		a    [2][2]float64
		want float64
	}{
		{"zero", [2][2]float64{}, 0},
		{"isotropic", Isotropic(3), 3},
		{"diagonal", [2][2]float64{{2, 0}, {0, -5}}, 5},
		{"rank one", [2][2]float64{{1, 2}, {0, 0}}, math.Sqrt(5)},
		{"rotation", [2][2]float64{{0, 1}, {-1, 0}}, 1},
		{"symmetric", [2][2]float64{{2, 1}, {1, 2}}, 3},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, TensorNorm(tt.a), 1e-12)
		})
	}
}
