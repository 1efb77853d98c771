// Package solver estimates an emitter's position, and optionally velocity,
// from time and frequency differences of arrival across a set of receivers.
//
// Solves are pure functions of their inputs. Receiver 0 is the reference for
// every differential measurement.
package solver

import (
	"context"
	"fmt"

	"gonum.org/v1/gonum/mat"

	"github.com/litescript/ls-tdoa/internal/geom"
)

// DefaultCarrierFrequency is the nominal f0 used to turn frequency
// differences into range-rate differences (1090 MHz).
const DefaultCarrierFrequency = 1090e6

// Default tolerances
const (
	DefaultCostTolerance     = 1e-8
	DefaultStepTolerance     = 1e-8
	DefaultGradientTolerance = 1e-8
)

// Options tunes a solve. Zero fields take their defaults.
type Options struct {
	CarrierFrequency  float64 // Hz
	MaxIterations     int     // 0 -> 100 × number of unknowns
	CostTolerance     float64
	StepTolerance     float64
	GradientTolerance float64
	Context           context.Context
	InitialPosition   geom.Vec // nil -> receiver centroid
	InitialVelocity   geom.Vec // nil -> zero
}

// Option mutates Options.
type Option func(*Options)

// WithCarrierFrequency sets f0 in Hz.
func WithCarrierFrequency(f float64) Option {
	return func(o *Options) { o.CarrierFrequency = f }
}

// WithMaxIterations bounds the number of optimizer iterations.
func WithMaxIterations(n int) Option {
	return func(o *Options) { o.MaxIterations = n }
}

// WithTolerances sets the cost, step and gradient convergence tolerances.
func WithTolerances(cost, step, gradient float64) Option {
	return func(o *Options) {
		o.CostTolerance, o.StepTolerance, o.GradientTolerance = cost, step, gradient
	}
}

// WithContext stops the optimizer when ctx is done. The best iterate so far
// is returned with StatusCanceled.
func WithContext(ctx context.Context) Option {
	return func(o *Options) { o.Context = ctx }
}

// WithInitialGuess overrides the starting state.
func WithInitialGuess(position, velocity geom.Vec) Option {
	return func(o *Options) { o.InitialPosition, o.InitialVelocity = position, velocity }
}

func buildOptions(opts []Option) Options {
	o := Options{
		CarrierFrequency:  DefaultCarrierFrequency,
		CostTolerance:     DefaultCostTolerance,
		StepTolerance:     DefaultStepTolerance,
		GradientTolerance: DefaultGradientTolerance,
		Context:           context.Background(),
	}
	for _, opt := range opts {
		opt(&o)
	}
	if o.CarrierFrequency <= 0 {
		o.CarrierFrequency = DefaultCarrierFrequency
	}
	if o.Context == nil {
		o.Context = context.Background()
	}
	return o
}

// Result is the outcome of a solve.
type Result struct {
	Mode         Mode
	Position     geom.Vec
	Velocity     geom.Vec // estimated, or the supplied known velocity; nil for ModeTDOA
	State        []float64
	Status       Status
	Iterations   int
	Evaluations  int
	Cost         float64 // ½‖r‖²
	ResidualNorm float64 // ‖r‖
	Residuals    []float64

	// Covariance of State, σ²(JᵀJ)⁻¹ at the solution with σ² estimated from
	// the residuals when the system is over-determined. Nil when JᵀJ is
	// singular.
	Covariance *mat.SymDense

	// Warning is set when the optimizer stopped without converging.
	Warning *ConvergenceWarning
}

// Converged reports whether the optimizer met a convergence test.
func (r *Result) Converged() bool {
	return r.Status.Converged()
}

// Estimate selects a mode from the measurements present and solves.
func Estimate(receivers []geom.Vec, m Measurements, opts ...Option) (*Result, error) {
	mode, err := SelectMode(m)
	if err != nil {
		return nil, err
	}
	return EstimateEmitter(receivers, mode, m, opts...)
}

// EstimateEmitter solves for the emitter state in the given mode. Inputs are
// validated before any optimization: a *validation.Error wrapping
// ErrNoMeasurements, ErrMeasurementCount, ErrUnderdetermined,
// ErrUnknownMode or geom.ErrDimension is returned for unusable input.
//
// A solve that stops without converging is not an error: the best iterate is
// returned with Result.Warning set.
func EstimateEmitter(receivers []geom.Vec, mode Mode, m Measurements, opts ...Option) (*Result, error) {
	o := buildOptions(opts)

	p, err := newProblem(receivers, mode, m, o)
	if err != nil {
		return nil, err
	}

	x0, err := initialState(p, o)
	if err != nil {
		return nil, err
	}

	maxIter := o.MaxIterations
	if maxIter <= 0 {
		maxIter = 100 * p.numParams()
	}

	lm := levenbergMarquardt(o.Context, p, x0, lmSettings{
		maxIterations: maxIter,
		costTol:       o.CostTolerance,
		stepTol:       o.StepTolerance,
		gradTol:       o.GradientTolerance,
	})

	pos, vel := p.split(lm.x)
	res := &Result{
		Mode:         mode,
		Position:     pos.Clone(),
		Velocity:     vel.Clone(),
		State:        lm.x,
		Status:       lm.status,
		Iterations:   lm.iterations,
		Evaluations:  lm.evaluations,
		Cost:         lm.cost,
		ResidualNorm: residualNorm(lm.r),
		Residuals:    lm.r,
		Covariance:   covariance(lm.jac, lm.cost),
	}
	if !res.Converged() {
		res.Warning = &ConvergenceWarning{
			Status:       res.Status,
			Iterations:   res.Iterations,
			ResidualNorm: res.ResidualNorm,
		}
	}
	return res, nil
}

func newProblem(receivers []geom.Vec, mode Mode, m Measurements, o Options) (*problem, error) {
	const op = "solver.EstimateEmitter"

	if mode < ModeTDOA || mode > ModeJoint {
		return nil, invalid(op, ErrUnknownMode, "%d", int(mode))
	}
	if len(receivers) == 0 {
		return nil, invalid(op, ErrUnderdetermined, "no receivers")
	}
	dim, err := geom.CommonDim(receivers...)
	if err != nil {
		return nil, invalid(op, err, "receivers")
	}

	n := len(receivers)
	if need := mode.minReceivers(dim); n < need {
		return nil, invalid(op, ErrUnderdetermined,
			"%s in %dD needs at least %d receivers, got %d", mode, dim, need, n)
	}

	if mode.usesTDOA() {
		if len(m.TDOA) == 0 {
			return nil, invalid(op, ErrNoMeasurements, "%s needs TDOA data", mode)
		}
		if len(m.TDOA) != n {
			return nil, invalid(op, ErrMeasurementCount, "%d TDOA values for %d receivers", len(m.TDOA), n)
		}
	}
	if mode.usesFDOA() {
		if len(m.FDOA) == 0 {
			return nil, invalid(op, ErrNoMeasurements, "%s needs FDOA data", mode)
		}
		if len(m.FDOA) != n {
			return nil, invalid(op, ErrMeasurementCount, "%d FDOA values for %d receivers", len(m.FDOA), n)
		}
	}

	p := &problem{
		mode:      mode,
		dim:       dim,
		receivers: receivers,
		tdoa:      m.TDOA,
		fdoa:      m.FDOA,
		carrier:   o.CarrierFrequency,
	}

	if mode == ModeFDOAKnownVelocity {
		if m.KnownVelocity == nil {
			return nil, invalid(op, ErrNoMeasurements, "%s needs a known velocity", mode)
		}
		if len(m.KnownVelocity) != dim {
			return nil, invalid(op, geom.ErrDimension,
				"known velocity has %d components, want %d", len(m.KnownVelocity), dim)
		}
		p.velocity = m.KnownVelocity.Clone()
	}
	return p, nil
}

func initialState(p *problem, o Options) ([]float64, error) {
	const op = "solver.EstimateEmitter"

	pos := geom.Centroid(p.receivers)
	if o.InitialPosition != nil {
		if len(o.InitialPosition) != p.dim {
			return nil, invalid(op, geom.ErrDimension, "initial position")
		}
		pos = o.InitialPosition.Clone()
	}

	x := append([]float64(nil), pos...)
	if p.mode.EstimatesVelocity() {
		vel := geom.Zero(p.dim)
		if o.InitialVelocity != nil {
			if len(o.InitialVelocity) != p.dim {
				return nil, invalid(op, geom.ErrDimension, "initial velocity")
			}
			vel = o.InitialVelocity.Clone()
		}
		x = append(x, vel...)
	}
	return x, nil
}

// covariance returns σ²(JᵀJ)⁻¹, or nil when JᵀJ is not positive definite.
func covariance(jac *mat.Dense, c float64) *mat.SymDense {
	m, n := jac.Dims()

	var jtj mat.SymDense
	jtj.SymOuterK(1, jac.T())

	var chol mat.Cholesky
	if !chol.Factorize(&jtj) {
		return nil
	}
	cov := mat.NewSymDense(n, nil)
	if err := chol.InverseTo(cov); err != nil {
		return nil
	}

	sigma2 := 1.0
	if m > n {
		sigma2 = 2 * c / float64(m-n)
	}
	cov.ScaleSym(sigma2, cov)
	return cov
}

func (r *Result) String() string {
	s := fmt.Sprintf("%s: position %v", r.Mode, r.Position)
	if r.Velocity != nil {
		s += fmt.Sprintf(" velocity %v", r.Velocity)
	}
	return s + fmt.Sprintf(" (%s, %d iterations, residual %.3g)", r.Status, r.Iterations, r.ResidualNorm)
}
