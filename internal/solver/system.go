package solver

import (
	"context"

	"github.com/roach88/adrfem/internal/assembly"
	"github.com/roach88/adrfem/internal/linalg"
)

// stepSystem binds the assembler to the time, mass term and constraints of
// one step so Newton's method only varies u.
type stepSystem struct {
	tr *assembly.Transport
	st assembly.State
}

func (s *stepSystem) Residual(ctx context.Context, u, r []float64) error {
	st := s.st
	st.U = u
	return s.tr.Residual(ctx, st, r)
}

func (s *stepSystem) Jacobian(ctx context.Context, u []float64, jac *linalg.CSR) error {
	st := s.st
	st.U = u
	return s.tr.Jacobian(ctx, st, jac)
}

func (s *stepSystem) Pattern() *linalg.CSR {
	return s.tr.Pattern()
}
