// Package caf computes cross-ambiguity functions between two received
// signals and locates their peak to estimate the time and frequency offset of
// the second signal relative to the first.
//
// All algorithms share one convention: a peak at (τ, ν) means
//
//	sig2[n] ≈ sig1[n-τ] · exp(2πi·ν·n)
//
// so τ > 0 when sig2 arrives later and ν > 0 when sig2 is higher in
// frequency. ν is in cycles/sample; multiply by the sample rate for Hz.
package caf

import (
	"errors"
	"fmt"
	"math"
	"math/cmplx"
	"sort"

	"github.com/litescript/ls-tdoa/internal/validation"
)

// MaxSurfaceCells bounds the surface buffer (rows × columns) any single call
// may allocate.
var MaxSurfaceCells = 1 << 25

var (
	// ErrLengthMismatch is returned when the two signals differ in length.
	ErrLengthMismatch = errors.New("signals must be the same length")

	// ErrEmptySignal is returned for zero-length input.
	ErrEmptySignal = errors.New("signals must not be empty")

	// ErrGrid is returned for a malformed search grid.
	ErrGrid = errors.New("invalid search grid")

	// ErrSurfaceTooLarge is returned when the grid exceeds MaxSurfaceCells.
	ErrSurfaceTooLarge = errors.New("correlation surface too large")
)

// Algorithm selects a cross-ambiguity implementation.
type Algorithm int

const (
	// AlgorithmFFT transforms the lag product once per time shift.
	AlgorithmFFT Algorithm = iota

	// AlgorithmDirect evaluates every grid point explicitly.
	AlgorithmDirect

	// AlgorithmSpectral rolls precomputed spectra per frequency hypothesis.
	AlgorithmSpectral
)

func (a Algorithm) String() string {
	switch a {
	case AlgorithmFFT:
		return "fft"
	case AlgorithmDirect:
		return "direct"
	case AlgorithmSpectral:
		return "spectral"
	default:
		return "unknown"
	}
}

// ParseAlgorithm parses an algorithm name.
func ParseAlgorithm(s string) (Algorithm, error) {
	switch s {
	case "fft", "FFT", "":
		return AlgorithmFFT, nil
	case "direct", "naive":
		return AlgorithmDirect, nil
	case "spectral", "convolution":
		return AlgorithmSpectral, nil
	default:
		return 0, fmt.Errorf("unknown correlator %q (want fft, direct or spectral)", s)
	}
}

// Params configures the search grid. Fields an algorithm does not use are
// ignored.
type Params struct {
	MaxTimeShift int     // Direct, FFT: lags in [-MaxTimeShift, MaxTimeShift]
	MaxFreqShift float64 // Direct: frequency span in bins (divided by the signal length)
	NumFreqs     int     // Direct, Spectral: number of frequency hypotheses
	SpectralStep int     // Spectral: bins between neighbouring hypotheses
}

// DefaultParams returns the grid used by the simulator.
func DefaultParams() Params {
	return Params{
		MaxTimeShift: 150,
		MaxFreqShift: 25,
		NumFreqs:     51,
		SpectralStep: 2,
	}
}

// Correlate dispatches to the selected algorithm.
func Correlate(alg Algorithm, sig1, sig2 []complex128, p Params) (*Result, error) {
	switch alg {
	case AlgorithmDirect:
		return Direct(sig1, sig2, p.MaxTimeShift, p.MaxFreqShift, p.NumFreqs)
	case AlgorithmSpectral:
		return Spectral(sig1, sig2, p.NumFreqs, p.SpectralStep)
	default:
		return FFT(sig1, sig2, p.MaxTimeShift)
	}
}

// Surface is a cross-ambiguity surface. Rows are frequency hypotheses in
// ascending order, columns are time shifts in ascending order.
type Surface struct {
	Rows       int
	Cols       int
	Values     []complex128 // Row-major, Rows × Cols
	TimeShifts []int        // samples, len Cols
	FreqShifts []float64    // cycles/sample, len Rows
}

func newSurface(rows, cols int) *Surface {
	return &Surface{
		Rows:       rows,
		Cols:       cols,
		Values:     make([]complex128, rows*cols),
		TimeShifts: make([]int, cols),
		FreqShifts: make([]float64, rows),
	}
}

// At returns the value at (row, col).
func (s *Surface) At(row, col int) complex128 {
	return s.Values[row*s.Cols+col]
}

func (s *Surface) set(row, col int, v complex128) {
	s.Values[row*s.Cols+col] = v
}

// Magnitudes returns |value| for every cell in row-major order.
func (s *Surface) Magnitudes() []float64 {
	mags := make([]float64, len(s.Values))
	for i, v := range s.Values {
		mags[i] = cmplx.Abs(v)
	}
	return mags
}

// Result is a correlation surface and its peak.
type Result struct {
	Surface   *Surface
	PeakRow   int
	PeakCol   int
	TimeShift int     // samples
	FreqShift float64 // cycles/sample
	PeakMag   float64
	MedianMag float64
}

// Confidence returns the peak to median magnitude ratio, a detection
// heuristic. It is +Inf when the median is zero.
func (r *Result) Confidence() float64 {
	if r.MedianMag == 0 {
		return math.Inf(1)
	}
	return r.PeakMag / r.MedianMag
}

// String summarizes the peak.
func (r *Result) String() string {
	return fmt.Sprintf("τ=%d samples ν=%.6f cyc/sample peak=%.3g conf=%.2f",
		r.TimeShift, r.FreqShift, r.PeakMag, r.Confidence())
}

// locatePeak fills in the peak fields. The first maximum in row-major order
// wins ties.
func locatePeak(s *Surface) *Result {
	mags := s.Magnitudes()

	best := 0
	for i, m := range mags {
		if m > mags[best] {
			best = i
		}
	}

	// median sorts mags, so the peak is read first.
	peak := mags[best]
	row, col := best/s.Cols, best%s.Cols
	return &Result{
		Surface:   s,
		PeakRow:   row,
		PeakCol:   col,
		TimeShift: s.TimeShifts[col],
		FreqShift: s.FreqShifts[row],
		PeakMag:   peak,
		MedianMag: median(mags),
	}
}

// median sorts vals in place and returns the middle value, averaging the two
// middle values for even counts.
func median(vals []float64) float64 {
	n := len(vals)
	if n == 0 {
		return 0
	}
	sort.Float64s(vals)
	if n%2 == 1 {
		return vals[n/2]
	}
	return (vals[n/2-1] + vals[n/2]) / 2
}

func checkSignals(op string, sig1, sig2 []complex128) error {
	if len(sig1) != len(sig2) {
		return validation.Errorf(op, ErrLengthMismatch, "len(sig1)=%d len(sig2)=%d", len(sig1), len(sig2))
	}
	if len(sig1) == 0 {
		return validation.New(op, ErrEmptySignal)
	}
	return nil
}

func checkCells(op string, rows, cols int) error {
	if rows <= 0 || cols <= 0 {
		return validation.Errorf(op, ErrGrid, "%d×%d", rows, cols)
	}
	if rows > MaxSurfaceCells/cols {
		return validation.Errorf(op, ErrSurfaceTooLarge, "%d×%d exceeds %d cells", rows, cols, MaxSurfaceCells)
	}
	return nil
}

// wrap returns i modulo k in [0, k).
func wrap(i, k int) int {
	i %= k
	if i < 0 {
		i += k
	}
	return i
}

// maxDistinctLag bounds a symmetric lag search so no two lags wrap onto the
// same circular shift of a k-sample signal.
func maxDistinctLag(maxTimeShift, k int) int {
	return min(maxTimeShift, (k-1)/2)
}

// signedLag maps column c of a full-lag surface to a lag centered on zero.
func signedLag(c, k int) int {
	return c - k/2
}

func rotor(phase float64) complex128 {
	return complex(math.Cos(phase), math.Sin(phase))
}

// Window is a patch of surface magnitudes centered on the peak, small enough
// to keep after the full surface is released.
type Window struct {
	Mags       [][]float64 `json:"mags"` // [row][col]
	TimeShifts []int       `json:"time_shifts"`
	FreqShifts []float64   `json:"freq_shifts"`
}

// Window returns up to 2·halfRows+1 rows and 2·halfCols+1 columns around the
// peak, clipped at the surface edges.
func (r *Result) Window(halfRows, halfCols int) Window {
	s := r.Surface
	if s == nil {
		return Window{}
	}
	r0, r1 := clampRange(r.PeakRow, halfRows, s.Rows)
	c0, c1 := clampRange(r.PeakCol, halfCols, s.Cols)

	w := Window{
		Mags:       make([][]float64, 0, r1-r0),
		TimeShifts: append([]int(nil), s.TimeShifts[c0:c1]...),
		FreqShifts: append([]float64(nil), s.FreqShifts[r0:r1]...),
	}
	for row := r0; row < r1; row++ {
		line := make([]float64, 0, c1-c0)
		for col := c0; col < c1; col++ {
			line = append(line, cmplx.Abs(s.At(row, col)))
		}
		w.Mags = append(w.Mags, line)
	}
	return w
}

// clampRange returns [center-half, center+half+1) clipped to [0, n).
func clampRange(center, half, n int) (int, int) {
	lo, hi := center-half, center+half+1
	if lo < 0 {
		lo = 0
	}
	if hi > n {
		hi = n
	}
	return lo, hi
}
