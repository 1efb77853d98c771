package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/spf13/cobra"

	"github.com/litescript/ls-tdoa/internal/caf"
	"github.com/litescript/ls-tdoa/internal/export"
	"github.com/litescript/ls-tdoa/internal/iq"
	"github.com/litescript/ls-tdoa/internal/sim"
	"github.com/litescript/ls-tdoa/internal/solver"
	"github.com/litescript/ls-tdoa/internal/state"
	"github.com/litescript/ls-tdoa/internal/ui"
)

// Command flags
var (
	seed         uint64
	algorithm    string
	noiseless    bool
	dumpIQ       string
	keepSurfaces bool
	refresh      time.Duration

	trials  int
	workers int

	corrAlgorithm string
	maxShift      int
	maxFreqShift  float64
	numFreqs      int
	spectralStep  int
	sampleRate    float64
)

const (
	minRefresh = 1 * time.Second
	maxRefresh = 5 * time.Minute
)

var simulateCmd = &cobra.Command{
	Use:   "simulate",
	Short: "Simulate one capture and locate the emitter",
	Long: `Synthesize the signal every receiver would capture, correlate each receiver
against receiver 0 and solve for the emitter from both the measured and the
true differences.

In the terminal UI, r reruns the scenario with the next seed and w reruns it
every --refresh interval.`,
	Args: cobra.NoArgs,
	RunE: runSimulate,
}

var monteCarloCmd = &cobra.Command{
	Use:   "montecarlo",
	Short: "Run independent trials of a scenario and summarize the errors",
	Args:  cobra.NoArgs,
	RunE:  runMonteCarlo,
}

var correlateCmd = &cobra.Command{
	Use:   "correlate <reference.cf32> <other.cf32>",
	Short: "Correlate two IQ captures and report the time and frequency offset",
	Long: `Correlate two captures of interleaved little-endian float32 I/Q samples
(zstd-compressed files are detected automatically). The offset is that of the
second capture relative to the first.`,
	Args: cobra.ExactArgs(2),
	RunE: runCorrelate,
}

var solveCmd = &cobra.Command{
	Use:   "solve",
	Short: "Solve for the emitter from measured differences in a config file",
	Args:  cobra.NoArgs,
	RunE:  runSolve,
}

func init() {
	f := simulateCmd.Flags()
	f.Uint64Var(&seed, "seed", 0, "random seed; overrides the config file")
	f.StringVar(&algorithm, "algorithm", "", "correlator (fft, direct, spectral); overrides the config file")
	f.BoolVar(&noiseless, "noiseless", false, "skip receiver noise")
	f.StringVar(&dumpIQ, "dump-iq", "", "write each receiver's samples to this directory")
	f.BoolVar(&keepSurfaces, "keep-surfaces", false, "keep full correlation surfaces in memory")
	f.DurationVar(&refresh, "refresh", 5*time.Second, "rerun interval of the TUI watch mode")

	f = monteCarloCmd.Flags()
	f.Uint64Var(&seed, "seed", 0, "base random seed; overrides the config file")
	f.StringVar(&algorithm, "algorithm", "", "correlator (fft, direct, spectral); overrides the config file")
	f.BoolVar(&noiseless, "noiseless", false, "skip receiver noise")
	f.IntVar(&trials, "trials", 0, "number of trials; overrides the config file")
	f.IntVar(&workers, "workers", 0, "parallel trials; overrides the config file")

	f = correlateCmd.Flags()
	f.StringVar(&corrAlgorithm, "algorithm", "fft", "correlator (fft, direct, spectral)")
	f.IntVar(&maxShift, "max-shift", caf.DefaultParams().MaxTimeShift, "largest lag searched, in samples")
	f.Float64Var(&maxFreqShift, "max-freq-shift", caf.DefaultParams().MaxFreqShift, "direct: frequency span in bins")
	f.IntVar(&numFreqs, "num-freqs", caf.DefaultParams().NumFreqs, "direct, spectral: number of frequency hypotheses")
	f.IntVar(&spectralStep, "step", caf.DefaultParams().SpectralStep, "spectral: bins between hypotheses")
	f.Float64Var(&sampleRate, "sample-rate", 0, "sample rate in Hz, to report seconds and Hz")
}

// applyScenarioFlags overlays the scenario flags a command defines.
func applyScenarioFlags(cmd *cobra.Command, env *runEnv) {
	flags := cmd.Flags()
	cfg := &env.cfg
	if flags.Changed("seed") {
		cfg.Scenario.Seed = seed
	}
	if flags.Changed("algorithm") {
		cfg.Correlator.Algorithm = algorithm
	}
	if flags.Changed("noiseless") {
		cfg.Scenario.Noiseless = noiseless
	}
	if flags.Changed("dump-iq") {
		cfg.Output.DumpIQ = dumpIQ
	}
	if flags.Changed("keep-surfaces") {
		cfg.Output.KeepSurfaces = keepSurfaces
	}
	if flags.Changed("trials") {
		cfg.MonteCarlo.Trials = trials
	}
	if flags.Changed("workers") {
		cfg.MonteCarlo.Workers = workers
	}
}

// simOptions builds the sim options shared by simulate and montecarlo.
func (e *runEnv) simOptions() []sim.Option {
	opts := []sim.Option{
		sim.WithLogger(e.logger),
		sim.WithMetrics(e.recorder),
		sim.WithSolverOptions(e.cfg.SolverOptions()...),
	}
	if e.cfg.Output.KeepSurfaces {
		opts = append(opts, sim.WithSurfaces())
	}
	return opts
}

func clampRefresh(d time.Duration) time.Duration {
	if d < minRefresh {
		return minRefresh
	} else if d > maxRefresh {
		return maxRefresh
	}
	return d
}

func runSimulate(cmd *cobra.Command, args []string) error {
	env, err := setup(cmd)
	if err != nil {
		return err
	}
	defer env.closeLog()
	applyScenarioFlags(cmd, env)
	if err := env.cfg.Validate(); err != nil {
		return err
	}

	sc, err := env.cfg.ToScenario()
	if err != nil {
		return err
	}
	ctx := cmd.Context()
	logger := env.logger.With("simulate")
	opts := env.simOptions()
	if env.cfg.Output.DumpIQ != "" {
		opts = append(opts, sim.WithSignals())
	}

	stateCfg := state.DefaultConfig()
	stateCfg.RefreshInterval = clampRefresh(refresh)
	stateMgr := state.NewManager(stateCfg)

	// runOnce is shared by the first run and TUI reruns, which advance the
	// seed so each rerun draws new noise.
	var mu sync.Mutex
	runOnce := func() (*sim.Result, error) {
		mu.Lock()
		runSc := sc
		sc.Seed++
		mu.Unlock()

		runCtx, cancel := env.cfg.SolverContext(ctx)
		defer cancel()

		start := time.Now()
		res, err := sim.Simulate(runCtx, runSc, opts...)
		stateMgr.Update(res, time.Since(start), err)
		if err != nil {
			return nil, err
		}
		if w := res.Measured.Solve.Warning; w != nil {
			logger.Warn("Measured solve: %v", w)
		}
		if err := env.writeRunOutputs(res); err != nil {
			return res, err
		}
		return res, nil
	}

	res, err := runOnce()
	if err != nil {
		return err
	}

	if useTUI() {
		rerun := func() error {
			_, err := runOnce()
			return err
		}
		if err := ui.Run(stateMgr, rerun); err != nil {
			return fmt.Errorf("running TUI: %w", err)
		}
	} else if env.cfg.Output.JSON != "-" {
		export.WriteSummaryTable(os.Stdout, res)
	}

	env.flushMetrics()
	return nil
}

// writeRunOutputs writes the JSON export and IQ dump of a run.
func (e *runEnv) writeRunOutputs(res *sim.Result) error {
	out := e.cfg.Output
	if out.JSON != "" {
		if err := writeJSON(out.JSON, export.ExportRun(res).WriteJSON); err != nil {
			return err
		}
	}
	if out.DumpIQ != "" {
		paths, err := iq.WriteDir(out.DumpIQ, res.Signals, out.CompressIQ)
		if err != nil {
			return fmt.Errorf("dumping IQ: %w", err)
		}
		e.logger.Info("Wrote %d captures to %s", len(paths), out.DumpIQ)
	}
	return nil
}

func runMonteCarlo(cmd *cobra.Command, args []string) error {
	env, err := setup(cmd)
	if err != nil {
		return err
	}
	defer env.closeLog()
	applyScenarioFlags(cmd, env)
	if err := env.cfg.Validate(); err != nil {
		return err
	}

	sc, err := env.cfg.ToScenario()
	if err != nil {
		return err
	}
	mcCfg := env.cfg.MonteCarlo
	logger := env.logger.With("montecarlo")
	stateMgr := state.NewManager(state.DefaultConfig())

	// Progress is logged at every tenth of the batch.
	step := max(mcCfg.Trials/10, 1)
	progress := func(done, total int) {
		stateMgr.SetProgress(done, total)
		if done%step == 0 || done == total {
			logger.Debug("%d/%d trials", done, total)
		}
	}

	run := func(ctx context.Context) (*sim.MonteCarloResult, error) {
		runCtx, cancel := env.cfg.SolverContext(ctx)
		defer cancel()
		res, err := sim.MonteCarlo(runCtx, sc, mcCfg.Trials, mcCfg.Workers, progress, env.simOptions()...)
		stateMgr.SetMonteCarlo(res, err)
		return res, err
	}

	var res *sim.MonteCarloResult
	if useTUI() {
		ctx, cancel := context.WithCancel(cmd.Context())
		defer cancel()

		// Trials run behind the UI, which polls the state manager.
		done := make(chan error, 1)
		go func() {
			var err error
			res, err = run(ctx)
			done <- err
		}()
		if err := ui.Run(stateMgr, nil); err != nil {
			return fmt.Errorf("running TUI: %w", err)
		}
		cancel()
		if err := <-done; err != nil {
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		}
	} else {
		if res, err = run(cmd.Context()); err != nil {
			return err
		}
		if env.cfg.Output.JSON != "-" {
			export.WriteMonteCarloTable(os.Stdout, res)
		}
	}

	if env.cfg.Output.JSON != "" {
		e := export.ExportMonteCarlo(res)
		if err := writeJSON(env.cfg.Output.JSON, e.WriteJSON); err != nil {
			return err
		}
	}
	env.flushMetrics()
	return nil
}

func runCorrelate(cmd *cobra.Command, args []string) error {
	env, err := setup(cmd)
	if err != nil {
		return err
	}
	defer env.closeLog()
	logger := env.logger.With("correlate")

	alg, err := caf.ParseAlgorithm(corrAlgorithm)
	if err != nil {
		return err
	}

	sigs := make([][]complex128, len(args))
	for i, path := range args {
		if sigs[i], err = iq.ReadFile(path); err != nil {
			return err
		}
		logger.Debug("Read %d samples from %s", len(sigs[i]), path)
	}

	params := caf.Params{
		MaxTimeShift: maxShift,
		MaxFreqShift: maxFreqShift,
		NumFreqs:     numFreqs,
		SpectralStep: spectralStep,
	}
	start := time.Now()
	r, err := caf.Correlate(alg, sigs[0], sigs[1], params)
	if err != nil {
		return fmt.Errorf("correlating %s and %s: %w", args[0], args[1], err)
	}
	elapsed := time.Since(start)
	logger.Debug("%s in %s", r, elapsed)
	env.recorder.ObserveCorrelation(alg.String(), 1, elapsed, r.Confidence())

	e := export.ExportCorrelation(alg, len(sigs[0]), sampleRate, r)
	if env.cfg.Output.JSON != "-" {
		export.WriteCorrelationSummary(os.Stdout, e)
	}
	if env.cfg.Output.JSON != "" {
		if err := writeJSON(env.cfg.Output.JSON, e.WriteJSON); err != nil {
			return err
		}
	}
	env.flushMetrics()
	return nil
}

func runSolve(cmd *cobra.Command, args []string) error {
	if configPath == "" {
		return errors.New("solve needs --config with a measurements section")
	}
	env, err := setup(cmd)
	if err != nil {
		return err
	}
	defer env.closeLog()

	receivers, mode, m, err := env.cfg.MeasurementInput()
	if err != nil {
		return err
	}

	ctx, cancel := env.cfg.SolverContext(cmd.Context())
	defer cancel()
	opts := append(env.cfg.SolverOptions(),
		solver.WithCarrierFrequency(env.cfg.Measurements.Carrier),
		solver.WithContext(ctx),
	)

	r, err := solver.EstimateEmitter(receivers, mode, m, opts...)
	if err != nil {
		return err
	}
	env.recorder.ObserveSolve(r.Mode.String(), r.Status.String(), r.Iterations)
	if r.Warning != nil {
		env.logger.With("solve").Warn("%v", r.Warning)
	}

	if env.cfg.Output.JSON != "-" {
		export.WriteSolveSummary(os.Stdout, r)
	}
	if env.cfg.Output.JSON != "" {
		if err := writeJSON(env.cfg.Output.JSON, export.ExportSolve(r).WriteJSON); err != nil {
			return err
		}
	}
	env.flushMetrics()
	return nil
}
