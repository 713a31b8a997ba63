package mesh

import (
	"bufio"
	"fmt"
	"io"
	"math"
	"slices"
	"strconv"
	"strings"
)

// Point is a location in the physical plane.
type Point struct {
	X, Y float64
}

// Side identifies one of the four sides of a rectangular domain.
type Side int

const (
	Bottom Side = iota + 1
	Right
	Top
	Left
)

// Sides lists every side in the order used to resolve corner ownership.
var Sides = []Side{Bottom, Right, Top, Left}

func (s Side) String() string {
	switch s {
	case Bottom:
		return "bottom"
	case Right:
		return "right"
	case Top:
		return "top"
	case Left:
		return "left"
	default:
		return fmt.Sprintf("side(%d)", int(s))
	}
}

// ParseSide converts a side name ("bottom", "right", "top", "left") to a Side.
func ParseSide(name string) (Side, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "bottom":
		return Bottom, nil
	case "right":
		return Right, nil
	case "top":
		return Top, nil
	case "left":
		return Left, nil
	default:
		return 0, fmt.Errorf("unknown side %q", name)
	}
}

// Element is a linear triangle given by three node indices in
// counter-clockwise order.
type Element struct {
	Nodes [3]int
}

// BoundaryEdge is a mesh edge on the domain boundary. Nodes are oriented so
// the domain lies to the left of Nodes[0] -> Nodes[1].
type BoundaryEdge struct {
	Nodes   [2]int
	Side    Side
	Element int
}

// RectangleSpec describes a structured rectangular mesh.
type RectangleSpec struct {
	X0, Y0 float64
	LX, LY float64
	NX, NY int
}

// Mesh is an immutable triangulation. It is safe for concurrent reads.
type Mesh struct {
	Nodes         []Point
	Elements      []Element
	BoundaryEdges []BoundaryEdge

	nx, ny     int
	nodeSides  map[int][]Side
	geometries []Geometry
}

// NewRectangle triangulates the rectangle described by spec.
func NewRectangle(spec RectangleSpec) (*Mesh, error) {
	if spec.NX < 1 || spec.NY < 1 {
		return nil, fmt.Errorf("mesh: cell counts must be positive, got nx=%d ny=%d", spec.NX, spec.NY)
	}
	if !(spec.LX > 0) || !(spec.LY > 0) {
		return nil, fmt.Errorf("mesh: extents must be positive, got lx=%g ly=%g", spec.LX, spec.LY)
	}

	nx, ny := spec.NX, spec.NY
	m := &Mesh{
		Nodes:     make([]Point, 0, (nx+1)*(ny+1)),
		Elements:  make([]Element, 0, 2*nx*ny),
		nx:        nx,
		ny:        ny,
		nodeSides: make(map[int][]Side),
	}

	for j := 0; j <= ny; j++ {
		y := spec.Y0 + spec.LY*float64(j)/float64(ny)
		if j == ny {
			y = spec.Y0 + spec.LY
		}
		for i := 0; i <= nx; i++ {
			x := spec.X0 + spec.LX*float64(i)/float64(nx)
			if i == nx {
				x = spec.X0 + spec.LX
			}
			m.Nodes = append(m.Nodes, Point{X: x, Y: y})
		}
	}

	node := func(i, j int) int { return i + j*(nx+1) }

	for j := 0; j < ny; j++ {
		for i := 0; i < nx; i++ {
			n00, n10 := node(i, j), node(i+1, j)
			n01, n11 := node(i, j+1), node(i+1, j+1)
			m.Elements = append(m.Elements,
				Element{Nodes: [3]int{n00, n10, n11}},
				Element{Nodes: [3]int{n00, n11, n01}},
			)
		}
	}

	cell := func(i, j int) int { return 2 * (i + j*nx) }

	for i := 0; i < nx; i++ {
		m.addEdge(node(i, 0), node(i+1, 0), Bottom, cell(i, 0))
	}
	for j := 0; j < ny; j++ {
		m.addEdge(node(nx, j), node(nx, j+1), Right, cell(nx-1, j))
	}
	for i := nx - 1; i >= 0; i-- {
		m.addEdge(node(i+1, ny), node(i, ny), Top, cell(i, ny-1)+1)
	}
	for j := ny - 1; j >= 0; j-- {
		m.addEdge(node(0, j+1), node(0, j), Left, cell(0, j)+1)
	}

	m.geometries = make([]Geometry, len(m.Elements))
	for e := range m.Elements {
		g := m.computeGeometry(e)
		if !(g.Area > 0) {
			return nil, fmt.Errorf("mesh: element %d is degenerate", e)
		}
		m.geometries[e] = g
	}

	return m, nil
}

func (m *Mesh) addEdge(a, b int, side Side, elem int) {
	m.BoundaryEdges = append(m.BoundaryEdges, BoundaryEdge{
		Nodes:   [2]int{a, b},
		Side:    side,
		Element: elem,
	})
	for _, n := range []int{a, b} {
		if !slices.Contains(m.nodeSides[n], side) {
			m.nodeSides[n] = append(m.nodeSides[n], side)
		}
	}
}

// NumNodes returns the number of mesh nodes.
func (m *Mesh) NumNodes() int { return len(m.Nodes) }

// NumElements returns the number of triangles.
func (m *Mesh) NumElements() int { return len(m.Elements) }

// Cells returns the structured cell counts the mesh was built with.
func (m *Mesh) Cells() (nx, ny int) { return m.nx, m.ny }

// NodeSides returns the boundary sides node n lies on, ordered
// Bottom, Right, Top, Left. Interior nodes return nil.
func (m *Mesh) NodeSides(n int) []Side {
	sides := m.nodeSides[n]
	if len(sides) == 0 {
		return nil
	}
	out := make([]Side, 0, len(sides))
	for _, s := range Sides {
		if slices.Contains(sides, s) {
			out = append(out, s)
		}
	}
	return out
}

// MinDiameter returns the smallest element diameter.
func (m *Mesh) MinDiameter() float64 {
	h := math.Inf(1)
	for _, g := range m.geometries {
		h = math.Min(h, g.Diameter)
	}
	return h
}

// MaxDiameter returns the largest element diameter.
func (m *Mesh) MaxDiameter() float64 {
	h := 0.0
	for _, g := range m.geometries {
		h = math.Max(h, g.Diameter)
	}
	return h
}

// Adjacency returns, for each node, the sorted set of nodes sharing an
// element with it (itself included).
func (m *Mesh) Adjacency() [][]int {
	sets := make([]map[int]struct{}, len(m.Nodes))
	for i := range sets {
		sets[i] = map[int]struct{}{i: {}}
	}
	for _, el := range m.Elements {
		for _, a := range el.Nodes {
			for _, b := range el.Nodes {
				sets[a][b] = struct{}{}
			}
		}
	}
	adj := make([][]int, len(m.Nodes))
	for i, set := range sets {
		row := make([]int, 0, len(set))
		for n := range set {
			row = append(row, n)
		}
		slices.Sort(row)
		adj[i] = row
	}
	return adj
}

// WriteTopology writes a deterministic, line-oriented description of the
// mesh: node coordinates, element connectivity and boundary edges.
func (m *Mesh) WriteTopology(w io.Writer) error {
	bw := bufio.NewWriter(w)
	fmt.Fprintf(bw, "mesh nodes=%d elements=%d boundary_edges=%d\n",
		len(m.Nodes), len(m.Elements), len(m.BoundaryEdges))
	for i, p := range m.Nodes {
		fmt.Fprintf(bw, "node %d %s %s\n", i, formatCoord(p.X), formatCoord(p.Y))
	}
	for i, el := range m.Elements {
		fmt.Fprintf(bw, "element %d %d %d %d\n", i, el.Nodes[0], el.Nodes[1], el.Nodes[2])
	}
	for _, be := range m.BoundaryEdges {
		fmt.Fprintf(bw, "edge %d %d %s element=%d\n", be.Nodes[0], be.Nodes[1], be.Side, be.Element)
	}
	return bw.Flush()
}

func formatCoord(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}
