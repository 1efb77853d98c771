package solver

import (
	"fmt"

	"github.com/litescript/ls-tdoa/internal/geom"
)

// Mode selects which measurements drive a solve and which unknowns are
// estimated.
type Mode int

const (
	// ModeTDOA estimates position from time differences.
	ModeTDOA Mode = iota

	// ModeFDOAKnownVelocity estimates position from frequency differences
	// with the emitter velocity supplied.
	ModeFDOAKnownVelocity

	// ModeFDOA estimates position and velocity from frequency differences.
	ModeFDOA

	// ModeJoint estimates position and velocity from both measurement types.
	ModeJoint
)

func (m Mode) String() string {
	switch m {
	case ModeTDOA:
		return "tdoa"
	case ModeFDOAKnownVelocity:
		return "fdoa-known-velocity"
	case ModeFDOA:
		return "fdoa"
	case ModeJoint:
		return "joint"
	default:
		return "unknown"
	}
}

// ParseMode parses a mode name as produced by String.
func ParseMode(s string) (Mode, error) {
	for _, m := range []Mode{ModeTDOA, ModeFDOAKnownVelocity, ModeFDOA, ModeJoint} {
		if s == m.String() {
			return m, nil
		}
	}
	return 0, fmt.Errorf("unknown solver mode %q", s)
}

// EstimatesVelocity reports whether velocity is part of the unknown state.
func (m Mode) EstimatesVelocity() bool {
	return m == ModeFDOA || m == ModeJoint
}

// usesTDOA and usesFDOA report which residual blocks the mode stacks.
func (m Mode) usesTDOA() bool { return m == ModeTDOA || m == ModeJoint }
func (m Mode) usesFDOA() bool { return m != ModeTDOA }

// minReceivers returns the feasibility threshold for dimension d.
func (m Mode) minReceivers(d int) int {
	if m == ModeFDOA {
		return 2*d + 1
	}
	return d + 1
}

// Measurements holds one value per receiver. Residuals difference every
// entry against receiver 0, so any common offset cancels.
type Measurements struct {
	TDOA          []float64 // arrival times, seconds
	FDOA          []float64 // received frequencies or offsets from a common reference, Hz
	KnownVelocity geom.Vec  // emitter velocity, m/s; nil when unknown
}

// SelectMode picks a mode from which measurements are present, in priority
// order: both types -> ModeJoint; frequency with known velocity ->
// ModeFDOAKnownVelocity; time only -> ModeTDOA; frequency only -> ModeFDOA.
func SelectMode(m Measurements) (Mode, error) {
	hasTDOA := len(m.TDOA) > 0
	hasFDOA := len(m.FDOA) > 0

	switch {
	case hasTDOA && hasFDOA:
		return ModeJoint, nil
	case hasFDOA && m.KnownVelocity != nil:
		return ModeFDOAKnownVelocity, nil
	case hasTDOA:
		return ModeTDOA, nil
	case hasFDOA:
		return ModeFDOA, nil
	default:
		return 0, invalid("solver.SelectMode", ErrNoMeasurements, "no TDOA or FDOA data")
	}
}
