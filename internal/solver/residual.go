package solver

import (
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"

	"github.com/litescript/ls-tdoa/internal/geom"
)

// minRange guards the line-of-sight unit vector when the position estimate
// sits on a receiver.
const minRange = 1e-9

// problem is one least-squares instance. The state vector is the position,
// followed by the velocity when the mode estimates it.
type problem struct {
	mode      Mode
	dim       int
	receivers []geom.Vec
	tdoa      []float64
	fdoa      []float64
	velocity  geom.Vec // fixed velocity for ModeFDOAKnownVelocity
	carrier   float64  // Hz
}

func (p *problem) numParams() int {
	if p.mode.EstimatesVelocity() {
		return 2 * p.dim
	}
	return p.dim
}

func (p *problem) numResiduals() int {
	pairs := len(p.receivers) - 1
	n := 0
	if p.mode.usesFDOA() {
		n += pairs
	}
	if p.mode.usesTDOA() {
		n += pairs
	}
	return n
}

// split returns the position and velocity views of state.
func (p *problem) split(state []float64) (pos, vel geom.Vec) {
	pos = geom.Vec(state[:p.dim])
	if p.mode.EstimatesVelocity() {
		return pos, geom.Vec(state[p.dim : 2*p.dim])
	}
	return pos, p.velocity
}

// los returns the unit vector from receiver r to pos and the range.
func los(pos, r geom.Vec) (geom.Vec, float64) {
	d := pos.Sub(r)
	rng := d.Norm()
	if rng < minRange {
		return geom.Zero(len(pos)), rng
	}
	floats.Scale(1/rng, d)
	return d, rng
}

// residuals fills dst with FDOA rows followed by TDOA rows:
//
//	FDOA_i = ṙ0 - ṙi + (c/f0)·(f0meas - fimeas),  ṙ = V·(X-Xr)/‖X-Xr‖
//	TDOA_i = ‖X-X0‖ - ‖X-Xi‖ - c·(t0 - ti)
//
// With the signal model's Doppler sign (approaching -> positive) these vanish
// at the true state with V the physical velocity.
func (p *problem) residuals(dst, state []float64) {
	pos, vel := p.split(state)
	u0, d0 := los(pos, p.receivers[0])

	row := 0
	if p.mode.usesFDOA() {
		rr0 := vel.Dot(u0)
		scale := geom.SpeedOfLight / p.carrier
		for i := 1; i < len(p.receivers); i++ {
			ui, _ := los(pos, p.receivers[i])
			dst[row] = rr0 - vel.Dot(ui) + scale*(p.fdoa[0]-p.fdoa[i])
			row++
		}
	}
	if p.mode.usesTDOA() {
		for i := 1; i < len(p.receivers); i++ {
			di := pos.Distance(p.receivers[i])
			dst[row] = d0 - di - geom.SpeedOfLight*(p.tdoa[0]-p.tdoa[i])
			row++
		}
	}
}

// jacobian fills dst (numResiduals × numParams) with the analytic
// derivatives of residuals at state.
func (p *problem) jacobian(dst *mat.Dense, state []float64) {
	pos, vel := p.split(state)
	dst.Zero()

	u0, d0 := los(pos, p.receivers[0])

	// ∂ṙ/∂X = (V - (V·u)u)/d
	rangeRateGrad := func(u geom.Vec, d float64) geom.Vec {
		g := geom.Zero(p.dim)
		if d < minRange {
			return g
		}
		vu := vel.Dot(u)
		for k := range g {
			g[k] = (vel[k] - vu*u[k]) / d
		}
		return g
	}

	row := 0
	if p.mode.usesFDOA() {
		g0 := rangeRateGrad(u0, d0)
		for i := 1; i < len(p.receivers); i++ {
			ui, di := los(pos, p.receivers[i])
			gi := rangeRateGrad(ui, di)
			for k := 0; k < p.dim; k++ {
				dst.Set(row, k, g0[k]-gi[k])
				if p.mode.EstimatesVelocity() {
					dst.Set(row, p.dim+k, u0[k]-ui[k])
				}
			}
			row++
		}
	}
	if p.mode.usesTDOA() {
		for i := 1; i < len(p.receivers); i++ {
			ui, _ := los(pos, p.receivers[i])
			for k := 0; k < p.dim; k++ {
				dst.Set(row, k, u0[k]-ui[k])
			}
			row++
		}
	}
}

// cost returns ½‖r‖².
func cost(r []float64) float64 {
	return 0.5 * floats.Dot(r, r)
}

func residualNorm(r []float64) float64 {
	return math.Sqrt(floats.Dot(r, r))
}
