package caf

import (
	"math"
	"math/cmplx"

	"gonum.org/v1/gonum/dsp/fourier"

	"github.com/litescript/ls-tdoa/internal/validation"
)

// DefaultSpectralStep is the bin spacing between Spectral frequency
// hypotheses.
const DefaultSpectralStep = 2

// Spectral computes the cross-ambiguity function in the frequency domain.
// Both signals are transformed once; each frequency hypothesis rolls the
// second spectrum and one inverse transform yields every circular lag.
//
// Hypotheses are spaced binStep bins apart and centered on zero. The surface
// has numFreqShifts rows and len(sig1) columns, the lags ordered from
// -len/2 upward. binStep <= 0 selects DefaultSpectralStep. Hypotheses are
// dropped from both ends until every shift lies within (len-1)/2 bins of
// zero, where no two alias.
func Spectral(sig1, sig2 []complex128, numFreqShifts, binStep int) (*Result, error) {
	const op = "caf.Spectral"
	if err := checkSignals(op, sig1, sig2); err != nil {
		return nil, err
	}
	if numFreqShifts < 1 {
		return nil, validation.Errorf(op, ErrGrid, "numFreqShifts=%d", numFreqShifts)
	}
	if binStep <= 0 {
		binStep = DefaultSpectralStep
	}
	k := len(sig1)
	if maxBins := (k - 1) / 2; (numFreqShifts/2)*binStep > maxBins {
		numFreqShifts = 2*(maxBins/binStep) + 1
	}
	if err := checkCells(op, numFreqShifts, k); err != nil {
		return nil, err
	}

	s := newSurface(numFreqShifts, k)
	for c := range s.TimeShifts {
		s.TimeShifts[c] = signedLag(c, k)
	}
	shifts := make([]int, numFreqShifts)
	for i := range shifts {
		shifts[i] = (i - numFreqShifts/2) * binStep
		s.FreqShifts[i] = float64(shifts[i]) / float64(k)
	}

	plan := fourier.NewCmplxFFT(k)
	spec1 := plan.Coefficients(nil, sig1)
	spec2 := plan.Coefficients(nil, sig2)
	for i, v := range spec1 {
		spec1[i] = cmplx.Conj(v)
	}

	prod := make([]complex128, k)
	seq := make([]complex128, k)
	scale := complex(1/float64(k), 0)

	for row, m := range shifts {
		for b := 0; b < k; b++ {
			prod[b] = spec1[b] * spec2[wrap(b+m, k)]
		}
		seq = plan.Sequence(seq, prod)

		// Undo the exp(-2πi·m·τ/k) phase the roll leaves on lag τ so values
		// match Direct on a shared grid.
		w := 2 * math.Pi * float64(m) / float64(k)
		for col, tau := range s.TimeShifts {
			v := seq[wrap(tau, k)] * scale * rotor(w*float64(tau))
			s.set(row, col, v)
		}
	}

	return locatePeak(s), nil
}
