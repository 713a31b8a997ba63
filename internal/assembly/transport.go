// Package assembly builds the discrete residual and Jacobian of
//
//	m(u)_t + ∇·( f(u) − a ∇u ) + r(u) = 0
//
// for continuous P1 finite elements on a triangle mesh.
//
// For every test function φ_i the residual is
//
//	R_i = ∫ m_t φ_i − (f − a∇u)·∇φ_i + r φ_i dx + ∫_∂Ω (f·n + q) φ_i ds
//	      + SUPG and shock capturing terms
//
// Rows of nodes carrying Dirichlet data are replaced by u_i − g_i with an
// identity row in the Jacobian.
//
// Element integrals are computed concurrently into per-element buffers and
// then added to the global vector and matrix in element order, so results do
// not depend on the number of workers.
package assembly

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/roach88/adrfem/internal/linalg"
	"github.com/roach88/adrfem/internal/mesh"
	"github.com/roach88/adrfem/internal/physics"
	"github.com/roach88/adrfem/internal/quadrature"
	"github.com/roach88/adrfem/internal/timeint"
)

// Stabilization selects the element stabilization.
type Stabilization string

const (
	StabilizationNone Stabilization = "none"
	StabilizationSUPG Stabilization = "supg"
)

// ParseStabilization accepts "none", "supg" or an empty string (none).
func ParseStabilization(s string) (Stabilization, error) {
	switch Stabilization(strings.ToLower(s)) {
	case "", StabilizationNone:
		return StabilizationNone, nil
	case StabilizationSUPG:
		return StabilizationSUPG, nil
	default:
		return "", fmt.Errorf("assembly: unknown stabilization %q", s)
	}
}

// ShockCapturing configures residual based isotropic artificial diffusion.
// A zero Factor disables it.
type ShockCapturing struct {
	Factor float64
	// Lag uses the viscosity computed from the last accepted step instead of
	// the current iterate.
	Lag bool
}

// Options configures a Transport.
type Options struct {
	QuadratureOrder         int
	BoundaryQuadratureOrder int
	Stabilization           Stabilization
	ShockCapturing          ShockCapturing
	// Workers bounds the element loop concurrency; 0 means GOMAXPROCS.
	Workers int
	Logger  *zap.Logger
}

// DefaultOptions returns third order quadrature without stabilization.
func DefaultOptions() Options {
	return Options{
		QuadratureOrder:         3,
		BoundaryQuadratureOrder: 3,
		Stabilization:           StabilizationNone,
	}
}

// State is the input of one residual or Jacobian evaluation.
type State struct {
	T float64
	U []float64
	// Mass supplies m_t; nil means a steady problem.
	Mass timeint.MassTerm
	// Dirichlet maps constrained nodes to their values at T.
	Dirichlet map[int]float64
	// ShockLag holds per-element viscosities used when shock capturing is
	// lagged. Nil falls back to the current iterate.
	ShockLag []float64
}

// Transport assembles one scalar transport problem on a fixed mesh.
type Transport struct {
	mesh    *mesh.Mesh
	coeffs  physics.Coefficients
	bcs     physics.BoundaryConditions
	opts    Options
	rule    quadrature.Rule
	line    quadrature.LineRule
	norm    quadrature.Rule
	shape   [][3]float64
	pattern *linalg.CSR
	workers int
	log     *zap.Logger
}

// New prepares assembly of coeffs with boundary conditions bcs on m.
func New(m *mesh.Mesh, coeffs physics.Coefficients, bcs physics.BoundaryConditions, opts Options) (*Transport, error) {
	if m == nil {
		return nil, errors.New("assembly: nil mesh")
	}
	if coeffs == nil {
		return nil, errors.New("assembly: nil coefficients")
	}
	if opts.Workers < 0 {
		return nil, fmt.Errorf("assembly: workers must be non-negative, got %d", opts.Workers)
	}
	if opts.ShockCapturing.Factor < 0 {
		return nil, fmt.Errorf("assembly: shock capturing factor must be non-negative, got %g", opts.ShockCapturing.Factor)
	}
	stab, err := ParseStabilization(string(opts.Stabilization))
	if err != nil {
		return nil, err
	}
	opts.Stabilization = stab

	rule, err := quadrature.Triangle(opts.QuadratureOrder)
	if err != nil {
		return nil, fmt.Errorf("assembly: %w", err)
	}
	line, err := quadrature.Line(opts.BoundaryQuadratureOrder)
	if err != nil {
		return nil, fmt.Errorf("assembly: %w", err)
	}
	norm, err := quadrature.Triangle(quadrature.MaxOrder)
	if err != nil {
		return nil, fmt.Errorf("assembly: %w", err)
	}
	pattern, err := linalg.NewPattern(m.Adjacency())
	if err != nil {
		return nil, fmt.Errorf("assembly: %w", err)
	}

	workers := opts.Workers
	if workers == 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}

	tr := &Transport{
		mesh:    m,
		coeffs:  coeffs,
		bcs:     bcs,
		opts:    opts,
		rule:    rule,
		line:    line,
		norm:    norm,
		shape:   make([][3]float64, rule.Len()),
		pattern: pattern,
		workers: workers,
		log:     log,
	}
	for q, p := range rule.Points {
		tr.shape[q] = mesh.Shape(p[0], p[1])
	}

	log.Debug("transport assembled",
		zap.Int("nodes", m.NumNodes()),
		zap.Int("elements", m.NumElements()),
		zap.Int("nnz", pattern.NNZ()),
		zap.Int("quadrature_points", rule.Len()),
		zap.String("stabilization", string(stab)),
		zap.Int("workers", workers))
	return tr, nil
}

// Mesh returns the mesh being assembled on.
func (tr *Transport) Mesh() *mesh.Mesh { return tr.mesh }

// Coefficients returns the equation coefficients.
func (tr *Transport) Coefficients() physics.Coefficients { return tr.coeffs }

// Boundary returns the boundary conditions.
func (tr *Transport) Boundary() physics.BoundaryConditions { return tr.bcs }

// Options returns the effective options.
func (tr *Transport) Options() Options { return tr.opts }

// PointsPerElement is the number of volume quadrature points per element.
func (tr *Transport) PointsPerElement() int { return tr.rule.Len() }

// NumQuadraturePoints is the length of mass history slices.
func (tr *Transport) NumQuadraturePoints() int {
	return tr.mesh.NumElements() * tr.rule.Len()
}

// Pattern returns a zero matrix with the Jacobian sparsity.
func (tr *Transport) Pattern() *linalg.CSR {
	p := tr.pattern.Clone()
	p.Zero()
	return p
}

// Residual evaluates the discrete residual of st into res.
func (tr *Transport) Residual(ctx context.Context, st State, res []float64) error {
	return tr.assemble(ctx, st, res, nil)
}

// Jacobian evaluates ∂R/∂u at st into jac, which must have the sparsity of
// Pattern. Stabilization parameters are treated as constants.
func (tr *Transport) Jacobian(ctx context.Context, st State, jac *linalg.CSR) error {
	return tr.assemble(ctx, st, nil, jac)
}

// ResidualAndJacobian evaluates both in one pass over the elements.
func (tr *Transport) ResidualAndJacobian(ctx context.Context, st State, res []float64, jac *linalg.CSR) error {
	return tr.assemble(ctx, st, res, jac)
}

func (tr *Transport) assemble(ctx context.Context, st State, res []float64, jac *linalg.CSR) error {
	n := tr.mesh.NumNodes()
	if len(st.U) != n {
		return fmt.Errorf("assembly: state has %d values, mesh has %d nodes", len(st.U), n)
	}
	if res != nil && len(res) != n {
		return fmt.Errorf("assembly: residual has %d entries, mesh has %d nodes", len(res), n)
	}
	if jac != nil && jac.N != n {
		return fmt.Errorf("assembly: jacobian is %d×%d, mesh has %d nodes", jac.N, jac.N, n)
	}
	if st.Mass == nil {
		st.Mass = timeint.Steady{}.Begin(0)
	}
	if st.ShockLag != nil && len(st.ShockLag) != tr.mesh.NumElements() {
		return fmt.Errorf("assembly: shock lag has %d entries, mesh has %d elements", len(st.ShockLag), tr.mesh.NumElements())
	}

	out := make([]elementOutput, tr.mesh.NumElements())
	err := tr.forElements(ctx, func(e int) {
		tr.element(e, &st, res != nil, jac != nil, &out[e])
	})
	if err != nil {
		return err
	}

	if res != nil {
		for i := range res {
			res[i] = 0
		}
	}
	if jac != nil {
		jac.Zero()
	}
	for e := range out {
		nodes := tr.mesh.Elements[e].Nodes
		for a := 0; a < 3; a++ {
			if res != nil {
				res[nodes[a]] += out[e].res[a]
			}
			if jac != nil {
				for b := 0; b < 3; b++ {
					if err := jac.Add(nodes[a], nodes[b], out[e].jac[a][b]); err != nil {
						return fmt.Errorf("assembly: element %d: %w", e, err)
					}
				}
			}
		}
	}

	if err := tr.boundary(&st, res, jac); err != nil {
		return err
	}

	for i, g := range st.Dirichlet {
		if res != nil {
			res[i] = st.U[i] - g
		}
		if jac != nil {
			jac.ZeroRowSetDiag(i, 1)
		}
	}
	return nil
}

// forElements runs fn for every element on the worker pool. fn writes only
// to its own element's buffer.
func (tr *Transport) forElements(ctx context.Context, fn func(e int)) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	ne := tr.mesh.NumElements()
	if tr.workers == 1 {
		for e := 0; e < ne; e++ {
			fn(e)
		}
		return ctx.Err()
	}

	chunk := (ne + 4*tr.workers - 1) / (4 * tr.workers)
	if chunk < 1 {
		chunk = 1
	}
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(tr.workers)
	for lo := 0; lo < ne; lo += chunk {
		hi := min(lo+chunk, ne)
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			for e := lo; e < hi; e++ {
				fn(e)
			}
			return nil
		})
	}
	return g.Wait()
}
