package sim

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
	"gonum.org/v1/gonum/stat"

	"github.com/litescript/ls-tdoa/internal/validation"
)

// Stats summarizes a sample of errors.
type Stats struct {
	Count  int     `json:"count"`
	Mean   float64 `json:"mean"`
	Median float64 `json:"median"`
	StdDev float64 `json:"std_dev"`
	Min    float64 `json:"min"`
	Max    float64 `json:"max"`
}

// Summarize computes Stats over vals. The median is the empirical 0.5
// quantile. vals is not modified.
func Summarize(vals []float64) Stats {
	if len(vals) == 0 {
		return Stats{}
	}
	sorted := append([]float64(nil), vals...)
	sort.Float64s(sorted)

	mean, std := stat.MeanStdDev(sorted, nil)
	if len(sorted) == 1 {
		std = 0
	}
	return Stats{
		Count:  len(sorted),
		Mean:   mean,
		Median: stat.Quantile(0.5, stat.Empirical, sorted, nil),
		StdDev: std,
		Min:    sorted[0],
		Max:    sorted[len(sorted)-1],
	}
}

// Trial is one Monte Carlo run.
type Trial struct {
	Index                 int     `json:"index"`
	Seed                  uint64  `json:"seed,string"`
	MeasuredPositionError float64 `json:"measured_position_error_m"`
	MeasuredVelocityError float64 `json:"measured_velocity_error_mps"`
	TruthPositionError    float64 `json:"truth_position_error_m"`
	TruthVelocityError    float64 `json:"truth_velocity_error_mps"`
	MeasuredConverged     bool    `json:"measured_converged"`
	TruthConverged        bool    `json:"truth_converged"`
}

// MonteCarloResult aggregates independent trials of one scenario.
type MonteCarloResult struct {
	Scenario Scenario      `json:"-"`
	Trials   []Trial       `json:"trials"`
	Elapsed  time.Duration `json:"-"`

	MeasuredPosition Stats `json:"measured_position"`
	MeasuredVelocity Stats `json:"measured_velocity"`
	TruthPosition    Stats `json:"truth_position"`
	TruthVelocity    Stats `json:"truth_velocity"`

	NotConverged int `json:"not_converged"`
}

// ProgressFunc is called after each finished trial.
type ProgressFunc func(done, total int)

// MonteCarlo runs trials independent simulations of sc with seeds derived
// from sc.Seed, at most workers at a time. Each trial draws its own message
// unless sc.Message is set.
// Results are identical for a given seed regardless of workers.
func MonteCarlo(ctx context.Context, sc Scenario, trials, workers int, progress ProgressFunc, opts ...Option) (*MonteCarloResult, error) {
	if trials < 1 {
		return nil, validation.New("sim.MonteCarlo", fmt.Errorf("trials must be positive, got %d", trials))
	}
	if workers < 1 {
		workers = 1
	}
	o := buildOptions(opts)
	sc = sc.withDefaults()
	if err := sc.Validate(); err != nil {
		return nil, err
	}

	// Trials run in parallel, so each one works its receivers serially.
	base := sc
	base.Workers = 1

	start := time.Now()
	out := make([]Trial, trials)

	var mu sync.Mutex
	done := 0

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for i := 0; i < trials; i++ {
		g.Go(func() error {
			tsc := base
			// A fixed message still gets fresh noise per trial.
			tsc.Seed = trialSeed(sc.Seed, i)

			r, err := Simulate(ctx, tsc, opts...)
			if err != nil {
				return fmt.Errorf("trial %d: %w", i, err)
			}
			out[i] = Trial{
				Index:                 i,
				Seed:                  tsc.Seed,
				MeasuredPositionError: r.Measured.PositionError,
				MeasuredVelocityError: r.Measured.VelocityError,
				TruthPositionError:    r.Truth.PositionError,
				TruthVelocityError:    r.Truth.VelocityError,
				MeasuredConverged:     r.Measured.Solve.Converged(),
				TruthConverged:        r.Truth.Solve.Converged(),
			}
			o.recorder.TrialDone()

			mu.Lock()
			done++
			n := done
			mu.Unlock()
			if progress != nil {
				progress(n, trials)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	res := &MonteCarloResult{
		Scenario: sc,
		Trials:   out,
		Elapsed:  time.Since(start),
	}
	var mp, mv, tp, tv []float64
	for _, t := range out {
		mp = append(mp, t.MeasuredPositionError)
		mv = append(mv, t.MeasuredVelocityError)
		tp = append(tp, t.TruthPositionError)
		tv = append(tv, t.TruthVelocityError)
		if !t.MeasuredConverged || !t.TruthConverged {
			res.NotConverged++
		}
	}
	res.MeasuredPosition = Summarize(mp)
	res.MeasuredVelocity = Summarize(mv)
	res.TruthPosition = Summarize(tp)
	res.TruthVelocity = Summarize(tv)

	o.logger.With("montecarlo").Info("%d trials in %s: measured position error mean %.2f m median %.2f m",
		trials, res.Elapsed.Round(time.Millisecond), res.MeasuredPosition.Mean, res.MeasuredPosition.Median)
	return res, nil
}

func trialSeed(seed uint64, trial int) uint64 {
	return seed ^ (uint64(trial+1) * 0x9e3779b97f4a7c15)
}
