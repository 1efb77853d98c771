package solver

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
)

// Chi-square critical values at 95% confidence.
const (
	Chi2Confidence95In2D = 5.991
	Chi2Confidence95In3D = 7.815
)

// Chi2Confidence95 returns the 95% critical value for dim degrees of freedom.
func Chi2Confidence95(dim int) float64 {
	if dim == 2 {
		return Chi2Confidence95In2D
	}
	return Chi2Confidence95In3D
}

// Ellipsoid is a confidence region around a position estimate.
type Ellipsoid struct {
	SemiAxes []float64  // meters, ascending
	Axes     *mat.Dense // column i is the unit direction of SemiAxes[i]
}

// ErrNoCovariance is returned when a covariance is missing or malformed.
var ErrNoCovariance = errors.New("covariance unavailable")

// ErrorEllipsoid returns the confidence ellipsoid of the leading dim×dim
// (position) block of cov scaled by the chi-square value chi2.
func ErrorEllipsoid(cov mat.Symmetric, dim int, chi2 float64) (Ellipsoid, error) {
	if cov == nil || cov.SymmetricDim() < dim || dim < 1 {
		return Ellipsoid{}, ErrNoCovariance
	}

	block := mat.NewSymDense(dim, nil)
	for i := 0; i < dim; i++ {
		for j := i; j < dim; j++ {
			block.SetSym(i, j, cov.At(i, j))
		}
	}

	var eig mat.EigenSym
	if !eig.Factorize(block, true) {
		return Ellipsoid{}, fmt.Errorf("%w: eigendecomposition failed", ErrNoCovariance)
	}

	values := eig.Values(nil)
	axes := mat.NewDense(dim, dim, nil)
	eig.VectorsTo(axes)

	semi := make([]float64, dim)
	for i, v := range values {
		// Round-off can leave tiny negative eigenvalues on a PSD matrix.
		semi[i] = math.Sqrt(chi2 * math.Max(v, 0))
	}
	return Ellipsoid{SemiAxes: semi, Axes: axes}, nil
}

// PositionEllipsoid returns the 95% confidence ellipsoid of the position.
func (r *Result) PositionEllipsoid() (Ellipsoid, error) {
	if r.Covariance == nil {
		return Ellipsoid{}, ErrNoCovariance
	}
	dim := len(r.Position)
	return ErrorEllipsoid(r.Covariance, dim, Chi2Confidence95(dim))
}
