package physics

import (
	"fmt"
	"math"
	"slices"
	"strings"

	"github.com/roach88/adrfem/internal/mesh"
)

// functionFactory builds a ScalarFunc from named parameters.
type functionFactory struct {
	required []string
	optional map[string]float64
	build    func(p map[string]float64) ScalarFunc
}

// registry holds the named functions problem documents can refer to.
var registry = map[string]functionFactory{
	// value
	"constant": {
		required: []string{"value"},
		build: func(p map[string]float64) ScalarFunc {
			v := p["value"]
			return func(mesh.Point, float64) float64 { return v }
		},
	},
	// a + bx*x + by*y + bt*t
	"linear": {
		optional: map[string]float64{"a": 0, "bx": 0, "by": 0, "bt": 0},
		build: func(p map[string]float64) ScalarFunc {
			a, bx, by, bt := p["a"], p["bx"], p["by"], p["bt"]
			return func(x mesh.Point, t float64) float64 { return a + bx*x.X + by*x.Y + bt*t }
		},
	},
	// amp * exp(-rate * t)
	"exponential_decay": {
		required: []string{"rate"},
		optional: map[string]float64{"amp": 1},
		build: func(p map[string]float64) ScalarFunc {
			rate, amp := p["rate"], p["amp"]
			return func(_ mesh.Point, t float64) float64 { return amp * math.Exp(-rate*t) }
		},
	},
	// amp * exp(-((x-x0)² + (y-y0)²) / (2 sigma²))
	"gaussian": {
		required: []string{"x0", "y0", "sigma"},
		optional: map[string]float64{"amp": 1},
		build: func(p map[string]float64) ScalarFunc {
			x0, y0, s, amp := p["x0"], p["y0"], p["sigma"], p["amp"]
			return func(x mesh.Point, _ float64) float64 {
				dx, dy := x.X-x0, x.Y-y0
				return amp * math.Exp(-(dx*dx+dy*dy)/(2*s*s))
			}
		},
	},
	// amp * sin(kx π x) sin(ky π y)
	"sin_product": {
		optional: map[string]float64{"amp": 1, "kx": 1, "ky": 1},
		build: func(p map[string]float64) ScalarFunc {
			amp, kx, ky := p["amp"], p["kx"], p["ky"]
			return func(x mesh.Point, _ float64) float64 {
				return amp * math.Sin(kx*math.Pi*x.X) * math.Sin(ky*math.Pi*x.Y)
			}
		},
	},
	// below where nx*x + ny*y < offset, above otherwise
	"step": {
		required: []string{"offset"},
		optional: map[string]float64{"nx": 1, "ny": 0, "below": 1, "above": 0},
		build: func(p map[string]float64) ScalarFunc {
			nx, ny, off, lo, hi := p["nx"], p["ny"], p["offset"], p["below"], p["above"]
			return func(x mesh.Point, _ float64) float64 {
				if nx*x.X+ny*x.Y < off {
					return lo
				}
				return hi
			}
		},
	},
	// amp/2 (1 + cos(π r / radius)) inside radius, 0 outside
	"cosine_hill": {
		required: []string{"x0", "y0", "radius"},
		optional: map[string]float64{"amp": 1},
		build: func(p map[string]float64) ScalarFunc {
			x0, y0, rad, amp := p["x0"], p["y0"], p["radius"], p["amp"]
			return func(x mesh.Point, _ float64) float64 {
				r := math.Hypot(x.X-x0, x.Y-y0)
				if r >= rad {
					return 0
				}
				return 0.5 * amp * (1 + math.Cos(math.Pi*r/rad))
			}
		},
	},
}

// FunctionNames returns the registered function names in sorted order.
func FunctionNames() []string {
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// Lookup builds the named function. Every required parameter must be
// present, unknown parameters are rejected and missing optional ones take
// their defaults.
func Lookup(name string, params map[string]float64) (ScalarFunc, error) {
	f, ok := registry[name]
	if !ok {
		return nil, fmt.Errorf("unknown function %q (known: %s)", name, strings.Join(FunctionNames(), ", "))
	}

	resolved := make(map[string]float64, len(f.required)+len(f.optional))
	for k, v := range f.optional {
		resolved[k] = v
	}
	for _, k := range f.required {
		v, ok := params[k]
		if !ok {
			return nil, fmt.Errorf("function %q: missing parameter %q", name, k)
		}
		resolved[k] = v
	}
	for k, v := range params {
		if _, ok := f.optional[k]; !ok && !slices.Contains(f.required, k) {
			return nil, fmt.Errorf("function %q: unknown parameter %q", name, k)
		}
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return nil, fmt.Errorf("function %q: parameter %q is not finite", name, k)
		}
		resolved[k] = v
	}

	if name == "gaussian" && !(resolved["sigma"] > 0) {
		return nil, fmt.Errorf("function %q: sigma must be positive", name)
	}
	if name == "cosine_hill" && !(resolved["radius"] > 0) {
		return nil, fmt.Errorf("function %q: radius must be positive", name)
	}

	return f.build(resolved), nil
}

// Constant returns a ScalarFunc that always returns v.
func Constant(v float64) ScalarFunc {
	return func(mesh.Point, float64) float64 { return v }
}
