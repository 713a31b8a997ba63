package mesh

import "math"

// Geometry holds the affine map data of one linear triangle. For P1
// elements the Jacobian and the basis gradients are constant.
type Geometry struct {
	// DetJ is the signed determinant of the reference-to-physical Jacobian.
	DetJ float64
	// Area is |DetJ| / 2.
	Area float64
	// Grad[k] is the physical gradient of the basis function of local node k.
	Grad [3][2]float64
	// Diameter is the longest edge length.
	Diameter float64
}

// Geometry returns the precomputed geometry of element e.
func (m *Mesh) Geometry(e int) Geometry {
	return m.geometries[e]
}

func (m *Mesh) computeGeometry(e int) Geometry {
	el := m.Elements[e]
	p0, p1, p2 := m.Nodes[el.Nodes[0]], m.Nodes[el.Nodes[1]], m.Nodes[el.Nodes[2]]

	j00, j01 := p1.X-p0.X, p2.X-p0.X
	j10, j11 := p1.Y-p0.Y, p2.Y-p0.Y
	det := j00*j11 - j01*j10

	var g Geometry
	g.DetJ = det
	g.Area = math.Abs(det) / 2
	if det == 0 {
		return g
	}

	// grad φ = J^{-T} grad_ξ φ
	g.Grad[1] = [2]float64{j11 / det, -j01 / det}
	g.Grad[2] = [2]float64{-j10 / det, j00 / det}
	g.Grad[0] = [2]float64{-(g.Grad[1][0] + g.Grad[2][0]), -(g.Grad[1][1] + g.Grad[2][1])}

	g.Diameter = math.Max(dist(p0, p1), math.Max(dist(p1, p2), dist(p2, p0)))
	return g
}

// MapToPhysical maps reference coordinates (ξ, η) of element e to the plane.
func (m *Mesh) MapToPhysical(e int, xi, eta float64) Point {
	el := m.Elements[e]
	p0, p1, p2 := m.Nodes[el.Nodes[0]], m.Nodes[el.Nodes[1]], m.Nodes[el.Nodes[2]]
	return Point{
		X: p0.X + (p1.X-p0.X)*xi + (p2.X-p0.X)*eta,
		Y: p0.Y + (p1.Y-p0.Y)*xi + (p2.Y-p0.Y)*eta,
	}
}

// Shape evaluates the three P1 basis functions at reference coordinates.
func Shape(xi, eta float64) [3]float64 {
	return [3]float64{1 - xi - eta, xi, eta}
}

// EdgeLength returns the length of a boundary edge.
func (m *Mesh) EdgeLength(be BoundaryEdge) float64 {
	return dist(m.Nodes[be.Nodes[0]], m.Nodes[be.Nodes[1]])
}

// OutwardNormal returns the unit outward normal of a boundary edge.
func (m *Mesh) OutwardNormal(be BoundaryEdge) [2]float64 {
	a, b := m.Nodes[be.Nodes[0]], m.Nodes[be.Nodes[1]]
	tx, ty := b.X-a.X, b.Y-a.Y
	l := math.Hypot(tx, ty)
	return [2]float64{ty / l, -tx / l}
}

// EdgePoint returns the point at parameter s ∈ [0,1] along a boundary edge.
func (m *Mesh) EdgePoint(be BoundaryEdge, s float64) Point {
	a, b := m.Nodes[be.Nodes[0]], m.Nodes[be.Nodes[1]]
	return Point{X: a.X + s*(b.X-a.X), Y: a.Y + s*(b.Y-a.Y)}
}

func dist(a, b Point) float64 {
	return math.Hypot(b.X-a.X, b.Y-a.Y)
}
