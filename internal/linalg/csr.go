// Package linalg provides the sparse matrix storage and linear solvers used
// by the Newton iteration.
//
// Matrices are stored in compressed sparse row (CSR) form with a fixed
// sparsity pattern derived from mesh connectivity. Values are zeroed and
// re-accumulated on every assembly; the pattern never changes.
package linalg

import (
	"fmt"
	"sort"

	"gonum.org/v1/gonum/mat"
)

// CSR is a square sparse matrix in compressed sparse row form.
//
//	row i occupies Val[RowPtr[i]:RowPtr[i+1]] with column indices in
//	ColIdx over the same range, sorted ascending.
type CSR struct {
	N      int
	RowPtr []int
	ColIdx []int
	Val    []float64
}

// NewPattern builds a zero matrix whose row i has nonzeros at the columns
// listed in adjacency[i]. Column lists must be sorted and unique.
func NewPattern(adjacency [][]int) (*CSR, error) {
	n := len(adjacency)
	a := &CSR{N: n, RowPtr: make([]int, n+1)}
	for i, cols := range adjacency {
		for k, c := range cols {
			if c < 0 || c >= n {
				return nil, fmt.Errorf("linalg: row %d column %d out of range", i, c)
			}
			if k > 0 && cols[k-1] >= c {
				return nil, fmt.Errorf("linalg: row %d columns not strictly increasing", i)
			}
		}
		a.RowPtr[i+1] = a.RowPtr[i] + len(cols)
	}
	a.ColIdx = make([]int, a.RowPtr[n])
	a.Val = make([]float64, a.RowPtr[n])
	for i, cols := range adjacency {
		copy(a.ColIdx[a.RowPtr[i]:], cols)
	}
	return a, nil
}

// Clone returns a matrix with the same pattern and a copy of the values.
func (a *CSR) Clone() *CSR {
	b := &CSR{
		N:      a.N,
		RowPtr: a.RowPtr,
		ColIdx: a.ColIdx,
		Val:    make([]float64, len(a.Val)),
	}
	copy(b.Val, a.Val)
	return b
}

// NNZ returns the number of stored entries.
func (a *CSR) NNZ() int { return len(a.Val) }

// Zero clears all stored values, keeping the pattern.
func (a *CSR) Zero() {
	for k := range a.Val {
		a.Val[k] = 0
	}
}

func (a *CSR) find(i, j int) int {
	lo, hi := a.RowPtr[i], a.RowPtr[i+1]
	k := lo + sort.SearchInts(a.ColIdx[lo:hi], j)
	if k < hi && a.ColIdx[k] == j {
		return k
	}
	return -1
}

// Add accumulates v into entry (i, j). The entry must be in the pattern.
func (a *CSR) Add(i, j int, v float64) error {
	if i < 0 || i >= a.N {
		return fmt.Errorf("linalg: row %d out of range", i)
	}
	k := a.find(i, j)
	if k < 0 {
		return fmt.Errorf("linalg: entry (%d, %d) not in sparsity pattern", i, j)
	}
	a.Val[k] += v
	return nil
}

// At returns entry (i, j), zero when outside the pattern.
func (a *CSR) At(i, j int) float64 {
	if k := a.find(i, j); k >= 0 {
		return a.Val[k]
	}
	return 0
}

// MulVec computes dst = A x.
func (a *CSR) MulVec(dst, x []float64) {
	for i := 0; i < a.N; i++ {
		sum := 0.0
		for k := a.RowPtr[i]; k < a.RowPtr[i+1]; k++ {
			sum += a.Val[k] * x[a.ColIdx[k]]
		}
		dst[i] = sum
	}
}

// ZeroRowSetDiag clears row i and sets its diagonal to d. Used to impose
// Dirichlet constraints.
func (a *CSR) ZeroRowSetDiag(i int, d float64) {
	for k := a.RowPtr[i]; k < a.RowPtr[i+1]; k++ {
		if a.ColIdx[k] == i {
			a.Val[k] = d
		} else {
			a.Val[k] = 0
		}
	}
}

// Diagonal returns the diagonal entries.
func (a *CSR) Diagonal() []float64 {
	d := make([]float64, a.N)
	for i := range d {
		d[i] = a.At(i, i)
	}
	return d
}

// Dense expands the matrix into a gonum dense matrix.
func (a *CSR) Dense() *mat.Dense {
	d := mat.NewDense(a.N, a.N, nil)
	for i := 0; i < a.N; i++ {
		for k := a.RowPtr[i]; k < a.RowPtr[i+1]; k++ {
			d.Set(i, a.ColIdx[k], a.Val[k])
		}
	}
	return d
}

// FromDense builds a CSR matrix holding the nonzeros of a square dense
// matrix. Intended for tests and small problems.
func FromDense(d mat.Matrix) (*CSR, error) {
	r, c := d.Dims()
	if r != c {
		return nil, fmt.Errorf("linalg: matrix is %dx%d, want square", r, c)
	}
	adj := make([][]int, r)
	for i := 0; i < r; i++ {
		for j := 0; j < c; j++ {
			if d.At(i, j) != 0 || i == j {
				adj[i] = append(adj[i], j)
			}
		}
	}
	a, err := NewPattern(adj)
	if err != nil {
		return nil, err
	}
	for i := 0; i < r; i++ {
		for _, j := range adj[i] {
			a.Val[a.find(i, j)] = d.At(i, j)
		}
	}
	return a, nil
}
