// Package sim runs end-to-end geolocation experiments: it synthesizes the
// signals each receiver would capture, measures time and frequency
// differences with the correlator, and solves for the emitter from both the
// measured and the ground-truth differences.
package sim

import (
	"errors"

	"github.com/litescript/ls-tdoa/internal/caf"
	"github.com/litescript/ls-tdoa/internal/geom"
	"github.com/litescript/ls-tdoa/internal/signal"
	"github.com/litescript/ls-tdoa/internal/solver"
	"github.com/litescript/ls-tdoa/internal/validation"
)

// Scenario defaults
const (
	DefaultMessageBits = 2000
	DefaultSampleRate  = 21.8e6 // Hz
	DefaultBitDuration = 1e-6   // s
	DefaultWorkers     = 2
	MinReceivers       = 4
)

var (
	// ErrTooFewReceivers is returned for scenarios with fewer than
	// MinReceivers receivers.
	ErrTooFewReceivers = errors.New("at least 4 receivers are required")

	// ErrNotThreeDimensional is returned for 2D scenarios.
	ErrNotThreeDimensional = errors.New("scenario positions must be 3D")
)

// Scenario describes one simulated capture.
type Scenario struct {
	// EmitterPosition and Receivers are Cartesian meters, or
	// {lat°, lon°, alt m} when Geodetic is set.
	EmitterPosition geom.Vec
	Receivers       []geom.Vec
	Geodetic        bool

	// EmitterVelocity is m/s. For geodetic scenarios it is East-North-Up at
	// receiver 0.
	EmitterVelocity geom.Vec
	Frequency       float64 // carrier, Hz

	Message     string // bits; random when empty
	MessageBits int    // length of the random message

	SampleRate  float64
	BitDuration float64
	Expansion   signal.Expansion
	Noiseless   bool

	Algorithm caf.Algorithm
	CAF       caf.Params

	Seed    uint64
	Workers int // parallel receivers and correlations
}

// DefaultScenario returns four receivers on the axes of a 100 m cube with the
// emitter at the far corner, moving at 70 m/s along -y.
func DefaultScenario() Scenario {
	return Scenario{
		EmitterPosition: geom.NewVec(100, 100, 100),
		EmitterVelocity: geom.NewVec(0, -70, 0),
		Receivers: []geom.Vec{
			geom.NewVec(0, 0, 0),
			geom.NewVec(100, 0, 0),
			geom.NewVec(0, 100, 0),
			geom.NewVec(0, 0, 100),
		},
		Frequency:   solver.DefaultCarrierFrequency,
		MessageBits: DefaultMessageBits,
		SampleRate:  DefaultSampleRate,
		BitDuration: DefaultBitDuration,
		Algorithm:   caf.AlgorithmFFT,
		CAF:         caf.DefaultParams(),
		Seed:        1,
		Workers:     DefaultWorkers,
	}
}

// withDefaults fills zero fields from DefaultScenario.
func (s Scenario) withDefaults() Scenario {
	d := DefaultScenario()
	if s.Frequency == 0 {
		s.Frequency = d.Frequency
	}
	if s.MessageBits <= 0 {
		s.MessageBits = d.MessageBits
	}
	if s.SampleRate == 0 {
		s.SampleRate = d.SampleRate
	}
	if s.BitDuration == 0 {
		s.BitDuration = d.BitDuration
	}
	if s.CAF == (caf.Params{}) {
		s.CAF = d.CAF
	}
	if s.Workers <= 0 {
		s.Workers = d.Workers
	}
	return s
}

// Validate checks the receiver count and dimensionality.
func (s Scenario) Validate() error {
	const op = "sim.Simulate"
	if len(s.Receivers) < MinReceivers {
		return validation.Errorf(op, ErrTooFewReceivers, "got %d", len(s.Receivers))
	}
	all := append([]geom.Vec{s.EmitterPosition, s.EmitterVelocity}, s.Receivers...)
	dim, err := geom.CommonDim(all...)
	if err != nil {
		return validation.New(op, err)
	}
	if dim != 3 {
		return validation.New(op, ErrNotThreeDimensional)
	}
	return nil
}

// receiverSeed derives an independent noise stream per receiver.
func receiverSeed(seed uint64, i int) uint64 {
	return seed*0x100000001b3 + uint64(i) + 1
}
