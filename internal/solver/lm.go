package solver

import (
	"context"
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

// Status describes why the optimizer stopped.
type Status int

const (
	// StatusGradient: the gradient fell below GradientTolerance.
	StatusGradient Status = iota
	// StatusCost: the relative cost reduction fell below CostTolerance.
	StatusCost
	// StatusStep: the relative step fell below StepTolerance.
	StatusStep
	// StatusMaxIterations: the iteration budget ran out.
	StatusMaxIterations
	// StatusCanceled: the context was canceled or its deadline passed.
	StatusCanceled
	// StatusStalled: no damping value produced a cost decrease.
	StatusStalled
)

func (s Status) String() string {
	switch s {
	case StatusGradient:
		return "converged (gradient)"
	case StatusCost:
		return "converged (cost)"
	case StatusStep:
		return "converged (step)"
	case StatusMaxIterations:
		return "max iterations"
	case StatusCanceled:
		return "canceled"
	case StatusStalled:
		return "stalled"
	default:
		return "unknown"
	}
}

// Converged reports whether the status is one of the convergence tests.
func (s Status) Converged() bool {
	return s == StatusGradient || s == StatusCost || s == StatusStep
}

// Damping schedule
const (
	initialDamping  = 1e-3
	dampingDecrease = 3.0
	dampingIncrease = 2.0
	maxDamping      = 1e16
	diagFloor       = 1e-12
)

type lmSettings struct {
	maxIterations int
	costTol       float64
	stepTol       float64
	gradTol       float64
}

type lmResult struct {
	x           []float64
	r           []float64
	jac         *mat.Dense
	cost        float64
	status      Status
	iterations  int
	evaluations int
}

// levenbergMarquardt minimizes ½‖r(x)‖² from x0. It solves the damped normal
// equations (JᵀJ + λ·diag(JᵀJ))δ = -Jᵀr by Cholesky, shrinking λ after each
// accepted step and growing it after each rejected one. The returned iterate
// is always the lowest-cost point visited.
func levenbergMarquardt(ctx context.Context, p *problem, x0 []float64, s lmSettings) lmResult {
	n, m := p.numParams(), p.numResiduals()

	x := append([]float64(nil), x0...)
	r := make([]float64, m)
	p.residuals(r, x)
	jac := mat.NewDense(m, n, nil)
	p.jacobian(jac, x)
	c := cost(r)

	res := lmResult{evaluations: 1}

	var (
		jtj    mat.SymDense
		grad   = mat.NewVecDense(n, nil)
		rv     = mat.NewVecDense(m, r) // aliases r
		step   = mat.NewVecDense(n, nil)
		damped = mat.NewSymDense(n, nil)
		chol   mat.Cholesky
		xNew   = make([]float64, n)
		rNew   = make([]float64, m)
		lambda = initialDamping
	)

	finish := func(status Status) lmResult {
		res.x, res.r, res.jac, res.cost, res.status = x, r, jac, c, status
		return res
	}

	for res.iterations < s.maxIterations {
		if ctx.Err() != nil {
			return finish(StatusCanceled)
		}
		if c == 0 {
			return finish(StatusCost)
		}

		jtj.SymOuterK(1, jac.T())
		grad.MulVec(jac.T(), rv)
		if mat.Norm(grad, math.Inf(1)) <= s.gradTol {
			return finish(StatusGradient)
		}

		// Marquardt scaling; the floor keeps unobservable directions damped.
		diag := make([]float64, n)
		maxDiag := 1.0
		for i := range diag {
			maxDiag = math.Max(maxDiag, jtj.At(i, i))
		}
		for i := range diag {
			diag[i] = math.Max(jtj.At(i, i), diagFloor*maxDiag)
		}

		res.iterations++
		accepted := false
		for !accepted {
			if ctx.Err() != nil {
				return finish(StatusCanceled)
			}

			damped.CopySym(&jtj)
			for i := 0; i < n; i++ {
				damped.SetSym(i, i, jtj.At(i, i)+lambda*diag[i])
			}
			if !chol.Factorize(damped) {
				lambda *= dampingIncrease
				if lambda > maxDamping {
					return finish(StatusStalled)
				}
				continue
			}
			if err := chol.SolveVecTo(step, grad); err != nil {
				lambda *= dampingIncrease
				if lambda > maxDamping {
					return finish(StatusStalled)
				}
				continue
			}
			step.ScaleVec(-1, step)
			stepNorm := mat.Norm(step, 2)
			xNorm := floats.Norm(x, 2)

			floats.AddTo(xNew, x, step.RawVector().Data)
			p.residuals(rNew, xNew)
			res.evaluations++
			cNew := cost(rNew)

			if !(cNew < c) {
				// Steps this small cannot improve the fit any further.
				if stepNorm <= s.stepTol*(s.stepTol+xNorm) {
					return finish(StatusStep)
				}
				lambda *= dampingIncrease
				if lambda > maxDamping {
					return finish(StatusStalled)
				}
				continue
			}
			accepted = true
			reduction := c - cNew

			copy(x, xNew)
			copy(r, rNew)
			c = cNew
			p.jacobian(jac, x)
			lambda /= dampingDecrease

			if reduction <= s.costTol*(c+reduction) {
				return finish(StatusCost)
			}
			if stepNorm <= s.stepTol*(s.stepTol+xNorm) {
				return finish(StatusStep)
			}
		}
	}

	return finish(StatusMaxIterations)
}
