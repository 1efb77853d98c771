package sim

import (
	"context"
	"fmt"
	"math/rand/v2"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/litescript/ls-tdoa/internal/caf"
	"github.com/litescript/ls-tdoa/internal/geodesy"
	"github.com/litescript/ls-tdoa/internal/geom"
	"github.com/litescript/ls-tdoa/internal/logging"
	"github.com/litescript/ls-tdoa/internal/metrics"
	"github.com/litescript/ls-tdoa/internal/signal"
	"github.com/litescript/ls-tdoa/internal/solver"
)

// Heat-map window kept per pair once the full surface is released.
const (
	windowHalfRows = 8
	windowHalfCols = 24
)

type options struct {
	logger       *logging.Logger
	recorder     *metrics.Recorder
	solverOpts   []solver.Option
	keepSurfaces bool
	keepSignals  bool
}

// Option configures Simulate and MonteCarlo.
type Option func(*options)

// WithLogger sets the logger. The default discards output.
func WithLogger(l *logging.Logger) Option {
	return func(o *options) { o.logger = l }
}

// WithMetrics records correlations and solves on r.
func WithMetrics(r *metrics.Recorder) Option {
	return func(o *options) { o.recorder = r }
}

// WithSolverOptions passes extra options to both solves.
func WithSolverOptions(opts ...solver.Option) Option {
	return func(o *options) { o.solverOpts = append(o.solverOpts, opts...) }
}

// WithSurfaces keeps every full correlation surface on the result. Surfaces
// for default scenarios run to hundreds of megabytes.
func WithSurfaces() Option {
	return func(o *options) { o.keepSurfaces = true }
}

// WithSignals keeps the received sample streams on the result.
func WithSignals() Option {
	return func(o *options) { o.keepSignals = true }
}

func buildOptions(opts []Option) options {
	o := options{logger: logging.Discard()}
	for _, opt := range opts {
		opt(&o)
	}
	if o.logger == nil {
		o.logger = logging.Discard()
	}
	return o
}

// Pair is the correlation between receiver 0 and Receiver.
type Pair struct {
	Receiver   int           `json:"receiver"`
	TimeShift  int           `json:"time_shift_samples"`
	FreqShift  float64       `json:"freq_shift_cycles_per_sample"`
	TDOA       float64       `json:"tdoa_s"`
	FDOA       float64       `json:"fdoa_hz"`
	PeakMag    float64       `json:"peak_mag"`
	MedianMag  float64       `json:"median_mag"`
	Confidence float64       `json:"confidence"`
	Elapsed    time.Duration `json:"elapsed_ns"`
	Window     caf.Window    `json:"window"`
	Surface    *caf.Surface  `json:"-"`
}

// Estimate is one solve and its error against the true emitter state.
type Estimate struct {
	Position      geom.Vec       // local Cartesian frame
	Velocity      geom.Vec       // m/s
	Geodetic      *geodesy.LLA   // set for geodetic scenarios
	PositionError float64        // meters
	VelocityError float64        // m/s
	Solve         *solver.Result // full solver output
}

// Result is the outcome of Simulate.
type Result struct {
	RunID    string
	Started  time.Time
	Elapsed  time.Duration
	Scenario Scenario

	// Local Cartesian frame used for every computation. For geodetic
	// scenarios this is ENU at receiver 0.
	Origin          *geodesy.LLA
	Receivers       []geom.Vec
	EmitterPosition geom.Vec
	EmitterVelocity geom.Vec

	Message string
	Samples int

	// Differences against receiver 0, one entry per receiver.
	TrueTDOA     []float64
	TrueFDOA     []float64
	MeasuredTDOA []float64
	MeasuredFDOA []float64

	Pairs    []Pair
	Measured Estimate
	Truth    Estimate

	Signals [][]complex128 // only with WithSignals
}

// Simulate runs one scenario end to end.
func Simulate(ctx context.Context, sc Scenario, opts ...Option) (*Result, error) {
	o := buildOptions(opts)
	sc = sc.withDefaults()
	if err := sc.Validate(); err != nil {
		return nil, err
	}

	res := &Result{
		RunID:    uuid.NewString(),
		Started:  time.Now(),
		Scenario: sc,
	}
	log := o.logger.With("sim").WithFields("run", res.RunID[:8])

	// Local frame
	res.Receivers = make([]geom.Vec, len(sc.Receivers))
	if sc.Geodetic {
		origin := geodesy.FromVec(sc.Receivers[0])
		res.Origin = &origin
		for i, r := range sc.Receivers {
			res.Receivers[i] = geodesy.GeodeticToENU(geodesy.FromVec(r), origin)
		}
		res.EmitterPosition = geodesy.GeodeticToENU(geodesy.FromVec(sc.EmitterPosition), origin)
	} else {
		for i, r := range sc.Receivers {
			res.Receivers[i] = r.Clone()
		}
		res.EmitterPosition = sc.EmitterPosition.Clone()
	}
	res.EmitterVelocity = sc.EmitterVelocity.Clone()

	res.Message = sc.Message
	if res.Message == "" {
		res.Message = signal.RandomMessage(sc.MessageBits, signal.NewSource(sc.Seed))
	}

	emitter, err := signal.NewEmitter(sc.Frequency, res.EmitterPosition, res.EmitterVelocity)
	if err != nil {
		return nil, err
	}
	symbols, err := emitter.GenerateSignal(res.Message)
	if err != nil {
		return nil, err
	}

	receptions, err := receiveAll(ctx, sc, res.Receivers, emitter, symbols)
	if err != nil {
		return nil, err
	}
	res.Samples = len(receptions[0].Signal)
	log.Debug("received %d samples at %d receivers", res.Samples, len(receptions))

	n := len(receptions)
	res.TrueTDOA = make([]float64, n)
	res.TrueFDOA = make([]float64, n)
	for i, rx := range receptions {
		res.TrueTDOA[i] = rx.Delay - receptions[0].Delay
		res.TrueFDOA[i] = rx.Doppler - receptions[0].Doppler
	}

	pairs, err := correlateAll(ctx, sc, receptions, o)
	if err != nil {
		return nil, err
	}
	res.Pairs = pairs
	res.MeasuredTDOA = make([]float64, n)
	res.MeasuredFDOA = make([]float64, n)
	for _, p := range pairs {
		res.MeasuredTDOA[p.Receiver] = p.TDOA
		res.MeasuredFDOA[p.Receiver] = p.FDOA
		log.Debug("pair 0-%d: τ=%d ν=%.3g conf=%.1f", p.Receiver, p.TimeShift, p.FreqShift, p.Confidence)
	}

	if o.keepSignals {
		res.Signals = make([][]complex128, n)
		for i, rx := range receptions {
			res.Signals[i] = rx.Signal
		}
	}

	solverOpts := append([]solver.Option{
		solver.WithCarrierFrequency(sc.Frequency),
		solver.WithContext(ctx),
	}, o.solverOpts...)

	res.Measured, err = res.solve("measured", res.MeasuredTDOA, res.MeasuredFDOA, solverOpts, o)
	if err != nil {
		return nil, fmt.Errorf("solving measured differences: %w", err)
	}
	res.Truth, err = res.solve("truth", res.TrueTDOA, res.TrueFDOA, solverOpts, o)
	if err != nil {
		return nil, fmt.Errorf("solving true differences: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	res.Elapsed = time.Since(res.Started)
	log.Info("done in %s: measured error %.2f m, truth error %.3g m",
		res.Elapsed.Round(time.Millisecond), res.Measured.PositionError, res.Truth.PositionError)
	return res, nil
}

// receiveAll runs the signal model for every receiver in parallel.
func receiveAll(ctx context.Context, sc Scenario, positions []geom.Vec, e signal.Emitter, symbols []int) ([]signal.Reception, error) {
	out := make([]signal.Reception, len(positions))

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(sc.Workers)
	for i, pos := range positions {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			rx, err := signal.NewReceiver(sc.SampleRate, sc.BitDuration, pos)
			if err != nil {
				return err
			}
			rx.Expansion = sc.Expansion

			var src rand.Source
			if !sc.Noiseless {
				src = signal.NewSource(receiverSeed(sc.Seed, i))
			}
			out[i] = rx.Receive(symbols, e, src)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

// correlateAll correlates receiver 0 against every other receiver.
func correlateAll(ctx context.Context, sc Scenario, receptions []signal.Reception, o options) ([]Pair, error) {
	pairs := make([]Pair, len(receptions)-1)
	ref := receptions[0].Signal

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(sc.Workers)
	for i := 1; i < len(receptions); i++ {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			start := time.Now()
			r, err := caf.Correlate(sc.Algorithm, ref, receptions[i].Signal, sc.CAF)
			if err != nil {
				return fmt.Errorf("correlating receiver %d: %w", i, err)
			}
			elapsed := time.Since(start)

			p := Pair{
				Receiver:   i,
				TimeShift:  r.TimeShift,
				FreqShift:  r.FreqShift,
				TDOA:       float64(r.TimeShift) / sc.SampleRate,
				FDOA:       r.FreqShift * sc.SampleRate,
				PeakMag:    r.PeakMag,
				MedianMag:  r.MedianMag,
				Confidence: r.Confidence(),
				Elapsed:    elapsed,
				Window:     r.Window(windowHalfRows, windowHalfCols),
			}
			if o.keepSurfaces {
				p.Surface = r.Surface
			}
			pairs[i-1] = p
			o.recorder.ObserveCorrelation(sc.Algorithm.String(), i, elapsed, p.Confidence)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return pairs, nil
}

func (res *Result) solve(source string, tdoa, fdoa []float64, opts []solver.Option, o options) (Estimate, error) {
	m := solver.Measurements{TDOA: tdoa, FDOA: fdoa}
	sr, err := solver.EstimateEmitter(res.Receivers, solver.ModeJoint, m, opts...)
	if err != nil {
		return Estimate{}, err
	}

	est := Estimate{
		Position:      sr.Position,
		Velocity:      sr.Velocity,
		PositionError: sr.Position.Distance(res.EmitterPosition),
		VelocityError: sr.Velocity.Distance(res.EmitterVelocity),
		Solve:         sr,
	}
	if res.Origin != nil {
		lla := geodesy.ENUToGeodetic(sr.Position, *res.Origin)
		est.Geodetic = &lla
	}

	o.recorder.ObserveSolve(sr.Mode.String(), sr.Status.String(), sr.Iterations)
	o.recorder.SetErrors(source, est.PositionError, est.VelocityError)
	if sr.Warning != nil {
		o.logger.With("sim").Warn("%s solve: %v", source, sr.Warning)
	}
	return est, nil
}
