package caf

import (
	"math/cmplx"

	"gonum.org/v1/gonum/dsp/fourier"

	"github.com/litescript/ls-tdoa/internal/validation"
)

// FFT computes the cross-ambiguity function over maxTimeShift lags either
// side of zero with one transform per lag. Every frequency bin of the signal
// length is a hypothesis, so the surface has len(sig1) rows ordered from
// -1/2 up to (but excluding) +1/2 cycles/sample. Lags beyond (len-1)/2 wrap
// onto earlier ones and are dropped.
func FFT(sig1, sig2 []complex128, maxTimeShift int) (*Result, error) {
	const op = "caf.FFT"
	if err := checkSignals(op, sig1, sig2); err != nil {
		return nil, err
	}
	if maxTimeShift < 0 {
		return nil, validation.Errorf(op, ErrGrid, "maxTimeShift=%d", maxTimeShift)
	}
	k := len(sig1)
	maxTimeShift = maxDistinctLag(maxTimeShift, k)
	cols := 2*maxTimeShift + 1
	if err := checkCells(op, k, cols); err != nil {
		return nil, err
	}

	s := newSurface(k, cols)
	for i := range s.TimeShifts {
		s.TimeShifts[i] = i - maxTimeShift
	}
	half := k / 2
	for r := range s.FreqShifts {
		s.FreqShifts[r] = float64(r-half) / float64(k)
	}

	// Plans carry scratch space, so each call gets its own.
	plan := fourier.NewCmplxFFT(k)
	prod := make([]complex128, k)
	coeff := make([]complex128, k)

	for col, tau := range s.TimeShifts {
		for n := 0; n < k; n++ {
			prod[n] = cmplx.Conj(sig1[n]) * sig2[wrap(n+tau, k)]
		}
		coeff = plan.Coefficients(coeff, prod)

		// Bin b holds frequency b/k; rotate so negative frequencies come first.
		for b, v := range coeff {
			s.set((b+half)%k, col, v)
		}
	}

	return locatePeak(s), nil
}
