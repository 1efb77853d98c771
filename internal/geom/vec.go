// Package geom provides small Cartesian vector helpers shared by the signal
// model, the solver and the orchestrator.
package geom

import (
	"errors"
	"fmt"

	"gonum.org/v1/gonum/floats"
)

// SpeedOfLight in m/s (vacuum).
const SpeedOfLight = 299792458.0

// ErrDimension is returned when vectors do not share a supported dimensionality.
var ErrDimension = errors.New("inconsistent coordinate dimensionality")

// Vec is a 2- or 3-component Cartesian vector in meters (or m/s for velocities).
type Vec []float64

// NewVec returns a vector holding a copy of the given components.
func NewVec(c ...float64) Vec {
	v := make(Vec, len(c))
	copy(v, c)
	return v
}

// Zero returns a zero vector of dimension d.
func Zero(d int) Vec {
	return make(Vec, d)
}

// Dim returns the number of components.
func (v Vec) Dim() int {
	return len(v)
}

// Clone returns an independent copy of the vector.
func (v Vec) Clone() Vec {
	if v == nil {
		return nil
	}
	return NewVec(v...)
}

// Sub returns v - u.
func (v Vec) Sub(u Vec) Vec {
	out := make(Vec, len(v))
	floats.SubTo(out, v, u)
	return out
}

// Add returns v + u.
func (v Vec) Add(u Vec) Vec {
	out := make(Vec, len(v))
	floats.AddTo(out, v, u)
	return out
}

// Scale returns the vector scaled by s.
func (v Vec) Scale(s float64) Vec {
	out := v.Clone()
	floats.Scale(s, out)
	return out
}

// Dot returns the inner product of v and u.
func (v Vec) Dot(u Vec) float64 {
	return floats.Dot(v, u)
}

// Norm returns the Euclidean magnitude of the vector.
func (v Vec) Norm() float64 {
	return floats.Norm(v, 2)
}

// Distance returns the Euclidean distance between v and u.
func (v Vec) Distance(u Vec) float64 {
	return floats.Distance(v, u, 2)
}

// Equal reports whether v and u match component-wise within tol.
func (v Vec) Equal(u Vec, tol float64) bool {
	if len(v) != len(u) {
		return false
	}
	return floats.EqualApprox(v, u, tol)
}

func (v Vec) String() string {
	return fmt.Sprintf("%.3f", []float64(v))
}

// Centroid returns the mean of the given points.
func Centroid(points []Vec) Vec {
	if len(points) == 0 {
		return nil
	}
	c := Zero(len(points[0]))
	for _, p := range points {
		floats.Add(c, p)
	}
	floats.Scale(1/float64(len(points)), c)
	return c
}

// CommonDim checks that every vector has the same dimensionality, and that
// it is 2 or 3. It returns that dimensionality.
func CommonDim(vs ...Vec) (int, error) {
	if len(vs) == 0 {
		return 0, fmt.Errorf("%w: no vectors", ErrDimension)
	}
	d := len(vs[0])
	if d != 2 && d != 3 {
		return 0, fmt.Errorf("%w: got %d components, want 2 or 3", ErrDimension, d)
	}
	for i, v := range vs[1:] {
		if len(v) != d {
			return 0, fmt.Errorf("%w: vector %d has %d components, want %d", ErrDimension, i+1, len(v), d)
		}
	}
	return d, nil
}
