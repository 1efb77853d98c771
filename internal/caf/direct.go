package caf

import (
	"math"
	"math/cmplx"

	"github.com/litescript/ls-tdoa/internal/validation"
)

// Direct evaluates the cross-ambiguity function point by point over
// maxTimeShift lags either side of zero and numFreqs frequency hypotheses
// spaced evenly over ±maxFreqShift bins. It costs O(T·F·K) and serves as the
// reference for the transform-based algorithms on small grids.
//
// The grid is limited to distinct hypotheses: at most (K-1)/2 lags either
// side and a frequency span of at most (K-1)/2 bins either side, so nothing
// aliases onto the zero hypothesis.
func Direct(sig1, sig2 []complex128, maxTimeShift int, maxFreqShift float64, numFreqs int) (*Result, error) {
	const op = "caf.Direct"
	if err := checkSignals(op, sig1, sig2); err != nil {
		return nil, err
	}
	if maxTimeShift < 0 || numFreqs < 1 || maxFreqShift < 0 {
		return nil, validation.Errorf(op, ErrGrid, "maxTimeShift=%d maxFreqShift=%v numFreqs=%d",
			maxTimeShift, maxFreqShift, numFreqs)
	}
	k := len(sig1)
	maxTimeShift = maxDistinctLag(maxTimeShift, k)
	maxFreqShift = min(maxFreqShift, float64(k-1)/2)
	cols := 2*maxTimeShift + 1
	if err := checkCells(op, numFreqs, cols); err != nil {
		return nil, err
	}

	s := newSurface(numFreqs, cols)
	for i := range s.TimeShifts {
		s.TimeShifts[i] = i - maxTimeShift
	}
	for j := range s.FreqShifts {
		s.FreqShifts[j] = linspace(-maxFreqShift, maxFreqShift, numFreqs, j) / float64(k)
	}

	conj1 := make([]complex128, k)
	for n, v := range sig1 {
		conj1[n] = cmplx.Conj(v)
	}

	for col, tau := range s.TimeShifts {
		for row, nu := range s.FreqShifts {
			var acc complex128
			w := -2 * math.Pi * nu
			for n := 0; n < k; n++ {
				acc += conj1[n] * sig2[wrap(n+tau, k)] * rotor(w*float64(n))
			}
			s.set(row, col, acc)
		}
	}

	return locatePeak(s), nil
}

// linspace returns the i-th of n evenly spaced points over [lo, hi]. A single
// point is the midpoint.
func linspace(lo, hi float64, n, i int) float64 {
	if n == 1 {
		return (lo + hi) / 2
	}
	return lo + (hi-lo)*float64(i)/float64(n-1)
}
