// Package mesh provides the structured P1 triangulations the transport
// assembler integrates over.
//
// A rectangle [x0, x0+lx] × [y0, y0+ly] is divided into nx × ny cells and
// every cell is split along its lower-left to upper-right diagonal into two
// counter-clockwise triangles:
//
//	n01 ---- n11
//	 |  e+1 / |
//	 |    /   |
//	 |  /  e  |
//	n00 ---- n10
//
// Node (i, j) has index i + j*(nx+1). Cell (i, j) owns elements
// e = 2*(i + j*nx) (lower) and e+1 (upper).
//
// Boundary edges are listed once each, walking the perimeter
// counter-clockwise (Bottom, Right, Top, Left), so the domain always lies to
// the left of an edge and its outward normal is the tangent rotated
// clockwise.
package mesh
