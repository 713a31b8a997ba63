package linalg

// Preconditioner builds an applicable approximation of A⁻¹ for one solve.
type Preconditioner interface {
	Setup(a *CSR) (Apply, error)
}

// Apply computes dst = M⁻¹ src. dst and src do not alias.
type Apply func(dst, src []float64)

// Identity applies no preconditioning.
type Identity struct{}

// Setup implements Preconditioner.
func (Identity) Setup(*CSR) (Apply, error) {
	return func(dst, src []float64) { copy(dst, src) }, nil
}

// Jacobi scales by the inverse diagonal. Zero diagonal entries are left
// unscaled.
type Jacobi struct{}

// Setup implements Preconditioner.
func (Jacobi) Setup(a *CSR) (Apply, error) {
	inv := a.Diagonal()
	for i, d := range inv {
		if d != 0 {
			inv[i] = 1 / d
		} else {
			inv[i] = 1
		}
	}
	return func(dst, src []float64) {
		for i, s := range src {
			dst[i] = inv[i] * s
		}
	}, nil
}
