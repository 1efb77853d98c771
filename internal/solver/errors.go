package solver

import (
	"errors"
	"fmt"

	"github.com/litescript/ls-tdoa/internal/validation"
)

var (
	// ErrNoMeasurements is returned when the mode's measurements are missing.
	ErrNoMeasurements = errors.New("no measurements supplied")

	// ErrUnderdetermined is returned when there are too few receivers for
	// the mode.
	ErrUnderdetermined = errors.New("under-determined system")

	// ErrMeasurementCount is returned when a measurement slice does not
	// have one entry per receiver.
	ErrMeasurementCount = errors.New("measurement count does not match receiver count")

	// ErrUnknownMode is returned for a Mode value outside the enum.
	ErrUnknownMode = errors.New("unknown solver mode")
)

func invalid(op string, sentinel error, format string, args ...any) error {
	return validation.Errorf(op, sentinel, format, args...)
}

// ConvergenceWarning reports a solve that stopped before meeting any
// convergence test. The accompanying Result still holds the best iterate.
type ConvergenceWarning struct {
	Status       Status
	Iterations   int
	ResidualNorm float64
}

func (w *ConvergenceWarning) Error() string {
	return fmt.Sprintf("solver did not converge: %s after %d iterations (residual norm %.3g)",
		w.Status, w.Iterations, w.ResidualNorm)
}
