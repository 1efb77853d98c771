package config

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/litescript/ls-tdoa/internal/caf"
	"github.com/litescript/ls-tdoa/internal/geom"
	"github.com/litescript/ls-tdoa/internal/logging"
	"github.com/litescript/ls-tdoa/internal/signal"
	"github.com/litescript/ls-tdoa/internal/sim"
	"github.com/litescript/ls-tdoa/internal/solver"
	"github.com/litescript/ls-tdoa/internal/validation"
)

func TestDefaultConfig_MatchesDefaultScenario(t *testing.T) {
	cfg := DefaultConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config invalid: %v", err)
	}

	got, err := cfg.ToScenario()
	require.NoError(t, err)
	assert.Equal(t, sim.DefaultScenario(), got)
}

func TestDefaultConfig_IndependentCopies(t *testing.T) {
	a := DefaultConfig()
	a.Scenario.Receivers[0][0] = 99
	a.Scenario.Emitter.Position[0] = 99

	b := DefaultConfig()
	if b.Scenario.Receivers[0][0] != 0 || b.Scenario.Emitter.Position[0] != 100 {
		t.Error("DefaultConfig shares slices between calls")
	}
}

func TestLoad_Scenario(t *testing.T) {
	cfg, err := Load(filepath.Join("testdata", "scenario.yaml"))
	require.NoError(t, err)

	sc, err := cfg.ToScenario()
	require.NoError(t, err)

	assert.Equal(t, geom.NewVec(150, 120, 80), sc.EmitterPosition)
	assert.Equal(t, geom.NewVec(40, 0, 0), sc.EmitterVelocity)
	require.Len(t, sc.Receivers, 4)
	assert.Equal(t, geom.NewVec(0, 0, 200), sc.Receivers[3])
	assert.Equal(t, 1090e6, sc.Frequency)
	assert.Equal(t, 500, sc.MessageBits)
	assert.Equal(t, signal.PPMExpansion, sc.Expansion)
	assert.Equal(t, uint64(42), sc.Seed)
	assert.Equal(t, caf.AlgorithmSpectral, sc.Algorithm)
	assert.Equal(t, 1, sc.CAF.SpectralStep)

	// Keys absent from the file keep their defaults
	def := DefaultConfig()
	assert.Equal(t, def.Scenario.SampleRate, sc.SampleRate)
	assert.Equal(t, def.Correlator.MaxTimeShift, sc.CAF.MaxTimeShift)
	assert.Equal(t, def.MonteCarlo, cfg.MonteCarlo)

	assert.Equal(t, 400, cfg.Solver.MaxIterations)
	assert.Equal(t, 30*time.Second, cfg.Solver.Timeout)
	assert.Equal(t, logging.LevelDebug, cfg.LogLevel())
	assert.Equal(t, "out/result.json", cfg.Output.JSON)
	assert.False(t, cfg.Output.CompressIQ)
	assert.Len(t, cfg.SolverOptions(), 1)
}

func TestSolverOptions_PartialTolerances(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Solver.StepTolerance = 1e-6

	var o solver.Options
	for _, opt := range cfg.SolverOptions() {
		opt(&o)
	}
	assert.Equal(t, 1e-6, o.StepTolerance)
	assert.Equal(t, solver.DefaultCostTolerance, o.CostTolerance)
	assert.Equal(t, solver.DefaultGradientTolerance, o.GradientTolerance)

	// Nothing set leaves the solver to its own defaults
	assert.Empty(t, DefaultConfig().SolverOptions())
}

func TestLoad_Measurements(t *testing.T) {
	cfg, err := Load(filepath.Join("testdata", "measurements.yaml"))
	require.NoError(t, err)

	receivers, mode, m, err := cfg.MeasurementInput()
	require.NoError(t, err)
	assert.Len(t, receivers, 4)
	assert.Equal(t, solver.ModeTDOA, mode)
	assert.Len(t, m.TDOA, 4)
	assert.Nil(t, m.KnownVelocity)
	assert.Equal(t, solver.DefaultCarrierFrequency, cfg.Measurements.Carrier)

	res, err := solver.EstimateEmitter(receivers, mode, m)
	require.NoError(t, err)
	assert.True(t, geom.NewVec(100, 100, 100).Equal(res.Position, 1e-3), "position %v", res.Position)
}

func TestLoad_Errors(t *testing.T) {
	dir := t.TempDir()

	if _, err := Load(filepath.Join(dir, "missing.yaml")); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("missing file error = %v, want os.ErrNotExist", err)
	}

	unknown := filepath.Join(dir, "unknown.yaml")
	require.NoError(t, os.WriteFile(unknown, []byte("scenario:\n  emiter: {}\n"), 0o644))
	if _, err := Load(unknown); err == nil {
		t.Error("unknown key should be rejected")
	}
}

func TestParse_Empty(t *testing.T) {
	cfg, err := Parse(nil)
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig(), cfg)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{"algorithm", "correlator: {algorithm: wavelet}"},
		{"expansion", "scenario: {expansion: manchester}"},
		{"message", "scenario: {message: '10x1'}"},
		{"sample rate", "scenario: {sample_rate: -1}"},
		{"time shift", "correlator: {max_time_shift: -5}"},
		{"trials", "montecarlo: {trials: -1}"},
		{"timeout", "solver: {timeout: -1s}"},
		{"mode", "measurements: {mode: sonar}"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.yaml))
			if !errors.Is(err, ErrInvalid) {
				t.Fatalf("error = %v, want ErrInvalid", err)
			}
			if !validation.Is(err) {
				t.Errorf("error %v should be a validation error", err)
			}
		})
	}
}

func TestMeasurementInput_ExplicitMode(t *testing.T) {
	cfg, err := Parse([]byte(`
measurements:
  mode: fdoa-known-velocity
  receivers: [[0, 0, 0], [1, 0, 0], [0, 1, 0], [0, 0, 1]]
  fdoa: [0, 1, 2, 3]
  known_velocity: [0, 10, 0]
`))
	require.NoError(t, err)

	_, mode, m, err := cfg.MeasurementInput()
	require.NoError(t, err)
	assert.Equal(t, solver.ModeFDOAKnownVelocity, mode)
	assert.Equal(t, geom.NewVec(0, 10, 0), m.KnownVelocity)

	cfg.Measurements = MeasurementsConfig{}
	_, _, _, err = cfg.MeasurementInput()
	assert.ErrorIs(t, err, solver.ErrNoMeasurements)
}

func TestSolverContext(t *testing.T) {
	cfg := DefaultConfig()
	ctx, cancel := cfg.SolverContext(context.Background())
	defer cancel()
	if _, ok := ctx.Deadline(); ok {
		t.Error("no timeout configured, want no deadline")
	}

	cfg.Solver.Timeout = time.Minute
	ctx, cancel = cfg.SolverContext(context.Background())
	defer cancel()
	deadline, ok := ctx.Deadline()
	require.True(t, ok)
	assert.WithinDuration(t, time.Now().Add(time.Minute), deadline, 5*time.Second)
}
