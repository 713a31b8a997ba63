// Package quadrature provides integration rules on the reference triangle
// (0,0), (1,0), (0,1) and on the unit interval.
package quadrature

import (
	"fmt"
	"math"
)

// MaxOrder is the highest polynomial degree integrated exactly.
const MaxOrder = 5

// Rule is a quadrature rule on the reference triangle. Weights sum to the
// reference area 1/2.
type Rule struct {
	Order   int
	Points  [][2]float64
	Weights []float64
}

// Len returns the number of quadrature points.
func (r Rule) Len() int { return len(r.Weights) }

// LineRule is a Gauss-Legendre rule on [0, 1]. Weights sum to 1.
type LineRule struct {
	Order   int
	Points  []float64
	Weights []float64
}

// Len returns the number of quadrature points.
func (r LineRule) Len() int { return len(r.Weights) }

// Triangle returns a rule exact for polynomials of total degree order.
func Triangle(order int) (Rule, error) {
	switch {
	case order == 1:
		return Rule{
			Order:   1,
			Points:  [][2]float64{{1.0 / 3.0, 1.0 / 3.0}},
			Weights: []float64{0.5},
		}, nil
	case order == 2:
		return Rule{
			Order:   2,
			Points:  [][2]float64{{1.0 / 6.0, 1.0 / 6.0}, {2.0 / 3.0, 1.0 / 6.0}, {1.0 / 6.0, 2.0 / 3.0}},
			Weights: []float64{1.0 / 6.0, 1.0 / 6.0, 1.0 / 6.0},
		}, nil
	case order == 3 || order == 4:
		// Dunavant degree 4.
		const (
			a  = 0.445948490915965
			wa = 0.223381589678011 / 2
			b  = 0.091576213509771
			wb = 0.109951743655322 / 2
		)
		return Rule{
			Order: order,
			Points: [][2]float64{
				{a, a}, {1 - 2*a, a}, {a, 1 - 2*a},
				{b, b}, {1 - 2*b, b}, {b, 1 - 2*b},
			},
			Weights: []float64{wa, wa, wa, wb, wb, wb},
		}, nil
	case order == 5:
		// Dunavant degree 5.
		const (
			w0 = 0.225 / 2
			a1 = 0.059715871789770
			b1 = 0.470142064105115
			w1 = 0.132394152788506 / 2
			a2 = 0.797426985353087
			b2 = 0.101286507323456
			w2 = 0.125939180544827 / 2
		)
		return Rule{
			Order: 5,
			Points: [][2]float64{
				{1.0 / 3.0, 1.0 / 3.0},
				{b1, b1}, {a1, b1}, {b1, a1},
				{b2, b2}, {a2, b2}, {b2, a2},
			},
			Weights: []float64{w0, w1, w1, w1, w2, w2, w2},
		}, nil
	default:
		return Rule{}, fmt.Errorf("quadrature: triangle order %d not in [1, %d]", order, MaxOrder)
	}
}

// Line returns the smallest Gauss-Legendre rule on [0, 1] exact for
// polynomials of degree order.
func Line(order int) (LineRule, error) {
	switch {
	case order == 1:
		return LineRule{Order: 1, Points: []float64{0.5}, Weights: []float64{1}}, nil
	case order == 2 || order == 3:
		d := 0.5 / math.Sqrt(3)
		return LineRule{Order: 3, Points: []float64{0.5 - d, 0.5 + d}, Weights: []float64{0.5, 0.5}}, nil
	case order == 4 || order == 5:
		d := 0.5 * math.Sqrt(3.0/5.0)
		return LineRule{
			Order:   5,
			Points:  []float64{0.5 - d, 0.5, 0.5 + d},
			Weights: []float64{5.0 / 18.0, 8.0 / 18.0, 5.0 / 18.0},
		}, nil
	default:
		return LineRule{}, fmt.Errorf("quadrature: line order %d not in [1, %d]", order, MaxOrder)
	}
}
