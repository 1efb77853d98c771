// Package config loads run configuration from YAML files.
//
// A file only needs the keys it changes: Load decodes on top of
// DefaultConfig, and command-line flags are applied after that.
package config

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/litescript/ls-tdoa/internal/caf"
	"github.com/litescript/ls-tdoa/internal/geom"
	"github.com/litescript/ls-tdoa/internal/logging"
	"github.com/litescript/ls-tdoa/internal/signal"
	"github.com/litescript/ls-tdoa/internal/sim"
	"github.com/litescript/ls-tdoa/internal/solver"
	"github.com/litescript/ls-tdoa/internal/validation"
)

// ErrInvalid is wrapped by every configuration validation failure.
var ErrInvalid = errors.New("invalid configuration")

// Config is the full run configuration.
type Config struct {
	Scenario     ScenarioConfig     `yaml:"scenario"`
	Correlator   CorrelatorConfig   `yaml:"correlator"`
	Solver       SolverConfig       `yaml:"solver"`
	MonteCarlo   MonteCarloConfig   `yaml:"montecarlo"`
	Logging      LoggingConfig      `yaml:"logging"`
	Output       OutputConfig       `yaml:"output"`
	Measurements MeasurementsConfig `yaml:"measurements"`
}

// ScenarioConfig describes the simulated geometry and signal.
type ScenarioConfig struct {
	Geodetic    bool          `yaml:"geodetic"`
	Emitter     EmitterConfig `yaml:"emitter"`
	Receivers   [][]float64   `yaml:"receivers"`
	Message     string        `yaml:"message"`
	MessageBits int           `yaml:"message_bits"`
	SampleRate  float64       `yaml:"sample_rate"`
	BitDuration float64       `yaml:"bit_duration"`
	Expansion   string        `yaml:"expansion"`
	Noiseless   bool          `yaml:"noiseless"`
	Seed        uint64        `yaml:"seed"`
	Workers     int           `yaml:"workers"`
}

// EmitterConfig is the true emitter state.
type EmitterConfig struct {
	Position  []float64 `yaml:"position"`
	Velocity  []float64 `yaml:"velocity"`
	Frequency float64   `yaml:"frequency"`
}

// CorrelatorConfig selects the ambiguity function variant and its grid.
type CorrelatorConfig struct {
	Algorithm    string  `yaml:"algorithm"`
	MaxTimeShift int     `yaml:"max_time_shift"`
	MaxFreqShift float64 `yaml:"max_freq_shift"`
	NumFreqs     int     `yaml:"num_freqs"`
	SpectralStep int     `yaml:"spectral_step"`
}

// SolverConfig tunes the least-squares solver. Zero values keep the solver
// defaults.
type SolverConfig struct {
	MaxIterations     int           `yaml:"max_iterations"`
	CostTolerance     float64       `yaml:"cost_tolerance"`
	StepTolerance     float64       `yaml:"step_tolerance"`
	GradientTolerance float64       `yaml:"gradient_tolerance"`
	Timeout           time.Duration `yaml:"timeout"`
}

// MonteCarloConfig sizes a Monte Carlo run.
type MonteCarloConfig struct {
	Trials  int `yaml:"trials"`
	Workers int `yaml:"workers"`
}

// LoggingConfig sets the log level.
type LoggingConfig struct {
	Level string `yaml:"level"`
}

// OutputConfig names the optional outputs of a run.
type OutputConfig struct {
	JSON         string `yaml:"json"`
	DumpIQ       string `yaml:"dump_iq"`
	CompressIQ   bool   `yaml:"compress_iq"`
	MetricsFile  string `yaml:"metrics_file"`
	MetricsPush  string `yaml:"metrics_push"`
	MetricsJob   string `yaml:"metrics_job"`
	KeepSurfaces bool   `yaml:"keep_surfaces"`
}

// MeasurementsConfig holds measured differences for the solve command.
// TDOA is seconds and FDOA is Hz, both against receiver 0.
type MeasurementsConfig struct {
	Mode          string      `yaml:"mode"`
	Receivers     [][]float64 `yaml:"receivers"`
	TDOA          []float64   `yaml:"tdoa"`
	FDOA          []float64   `yaml:"fdoa"`
	KnownVelocity []float64   `yaml:"known_velocity"`
	Carrier       float64     `yaml:"carrier"`
}

// DefaultConfig returns the configuration of the default scenario.
func DefaultConfig() Config {
	sc := sim.DefaultScenario()
	p := sc.CAF

	receivers := make([][]float64, len(sc.Receivers))
	for i, r := range sc.Receivers {
		receivers[i] = []float64(r.Clone())
	}

	return Config{
		Scenario: ScenarioConfig{
			Emitter: EmitterConfig{
				Position:  []float64(sc.EmitterPosition.Clone()),
				Velocity:  []float64(sc.EmitterVelocity.Clone()),
				Frequency: sc.Frequency,
			},
			Receivers:   receivers,
			MessageBits: sc.MessageBits,
			SampleRate:  sc.SampleRate,
			BitDuration: sc.BitDuration,
			Expansion:   sc.Expansion.String(),
			Seed:        sc.Seed,
			Workers:     sc.Workers,
		},
		Correlator: CorrelatorConfig{
			Algorithm:    sc.Algorithm.String(),
			MaxTimeShift: p.MaxTimeShift,
			MaxFreqShift: p.MaxFreqShift,
			NumFreqs:     p.NumFreqs,
			SpectralStep: p.SpectralStep,
		},
		MonteCarlo: MonteCarloConfig{
			Trials:  100,
			Workers: 4,
		},
		Logging: LoggingConfig{Level: "info"},
		Output: OutputConfig{
			CompressIQ: true,
			MetricsJob: "ls_tdoa",
		},
		Measurements: MeasurementsConfig{
			Carrier: solver.DefaultCarrierFrequency,
		},
	}
}

// Load reads a YAML file on top of DefaultConfig. Unknown keys are errors.
func Load(path string) (Config, error) {
	cfg := DefaultConfig()

	f, err := os.Open(path)
	if err != nil {
		return cfg, fmt.Errorf("opening config: %w", err)
	}
	defer f.Close()

	if err := decode(f, &cfg); err != nil {
		return cfg, fmt.Errorf("parsing %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// Parse decodes YAML bytes on top of DefaultConfig.
func Parse(data []byte) (Config, error) {
	cfg := DefaultConfig()
	if err := decode(bytes.NewReader(data), &cfg); err != nil {
		return cfg, err
	}
	return cfg, cfg.Validate()
}

// decode tolerates an empty document.
func decode(r io.Reader, cfg *Config) error {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

// Validate checks names and ranges that the run packages do not.
func (c Config) Validate() error {
	const op = "config.Validate"

	if _, err := caf.ParseAlgorithm(c.Correlator.Algorithm); err != nil {
		return validation.Errorf(op, ErrInvalid, "correlator.algorithm: %v", err)
	}
	switch strings.ToLower(c.Scenario.Expansion) {
	case "", "hold", "ppm":
	default:
		return validation.Errorf(op, ErrInvalid, "scenario.expansion %q: want hold or ppm", c.Scenario.Expansion)
	}
	for i, b := range c.Scenario.Message {
		if b != '0' && b != '1' {
			return validation.Errorf(op, ErrInvalid, "scenario.message: bit %d is %q", i, b)
		}
	}
	if c.Scenario.SampleRate < 0 || c.Scenario.BitDuration < 0 {
		return validation.Errorf(op, ErrInvalid, "scenario sample_rate and bit_duration must not be negative")
	}
	if c.Correlator.MaxTimeShift < 0 {
		return validation.Errorf(op, ErrInvalid, "correlator.max_time_shift %d is negative", c.Correlator.MaxTimeShift)
	}
	if c.MonteCarlo.Trials < 0 || c.MonteCarlo.Workers < 0 {
		return validation.Errorf(op, ErrInvalid, "montecarlo trials and workers must not be negative")
	}
	if c.Solver.MaxIterations < 0 || c.Solver.Timeout < 0 {
		return validation.Errorf(op, ErrInvalid, "solver max_iterations and timeout must not be negative")
	}
	if c.Measurements.Mode != "" {
		if _, err := solver.ParseMode(c.Measurements.Mode); err != nil {
			return validation.Errorf(op, ErrInvalid, "measurements.mode: %v", err)
		}
	}
	return nil
}

// LogLevel returns the configured logging level.
func (c Config) LogLevel() logging.Level {
	return logging.ParseLevel(c.Logging.Level)
}

// ToScenario converts the scenario and correlator sections.
func (c Config) ToScenario() (sim.Scenario, error) {
	alg, err := caf.ParseAlgorithm(c.Correlator.Algorithm)
	if err != nil {
		return sim.Scenario{}, validation.Errorf("config.ToScenario", ErrInvalid, "correlator.algorithm: %v", err)
	}

	s := c.Scenario
	return sim.Scenario{
		EmitterPosition: geom.NewVec(s.Emitter.Position...),
		EmitterVelocity: geom.NewVec(s.Emitter.Velocity...),
		Receivers:       toVecs(s.Receivers),
		Geodetic:        s.Geodetic,
		Frequency:       s.Emitter.Frequency,
		Message:         s.Message,
		MessageBits:     s.MessageBits,
		SampleRate:      s.SampleRate,
		BitDuration:     s.BitDuration,
		Expansion:       signal.ParseExpansion(strings.ToLower(s.Expansion)),
		Noiseless:       s.Noiseless,
		Algorithm:       alg,
		CAF: caf.Params{
			MaxTimeShift: c.Correlator.MaxTimeShift,
			MaxFreqShift: c.Correlator.MaxFreqShift,
			NumFreqs:     c.Correlator.NumFreqs,
			SpectralStep: c.Correlator.SpectralStep,
		},
		Seed:    s.Seed,
		Workers: s.Workers,
	}, nil
}

// SolverOptions converts the solver section. Zero fields are left to the
// solver defaults.
func (c Config) SolverOptions() []solver.Option {
	var opts []solver.Option
	s := c.Solver
	if s.MaxIterations > 0 {
		opts = append(opts, solver.WithMaxIterations(s.MaxIterations))
	}
	if s.CostTolerance > 0 || s.StepTolerance > 0 || s.GradientTolerance > 0 {
		opts = append(opts, solver.WithTolerances(
			orDefault(s.CostTolerance, solver.DefaultCostTolerance),
			orDefault(s.StepTolerance, solver.DefaultStepTolerance),
			orDefault(s.GradientTolerance, solver.DefaultGradientTolerance),
		))
	}
	return opts
}

func orDefault(v, def float64) float64 {
	if v > 0 {
		return v
	}
	return def
}

// SolverContext derives the context a run or solve works under, bounded by
// solver.timeout when one is set.
func (c Config) SolverContext(parent context.Context) (context.Context, context.CancelFunc) {
	if c.Solver.Timeout > 0 {
		return context.WithTimeout(parent, c.Solver.Timeout)
	}
	return context.WithCancel(parent)
}

// MeasurementInput converts the measurements section into solver inputs.
// An empty mode selects one from the data present.
func (c Config) MeasurementInput() ([]geom.Vec, solver.Mode, solver.Measurements, error) {
	mc := c.Measurements
	m := solver.Measurements{
		TDOA: mc.TDOA,
		FDOA: mc.FDOA,
	}
	if len(mc.KnownVelocity) > 0 {
		m.KnownVelocity = geom.NewVec(mc.KnownVelocity...)
	}

	var (
		mode solver.Mode
		err  error
	)
	if mc.Mode == "" {
		mode, err = solver.SelectMode(m)
	} else {
		mode, err = solver.ParseMode(mc.Mode)
	}
	if err != nil {
		return nil, 0, m, err
	}
	return toVecs(mc.Receivers), mode, m, nil
}

func toVecs(in [][]float64) []geom.Vec {
	out := make([]geom.Vec, len(in))
	for i, v := range in {
		out[i] = geom.NewVec(v...)
	}
	return out
}
