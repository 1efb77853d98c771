package export

import (
	"fmt"
	"io"
	"strings"

	"github.com/litescript/ls-tdoa/internal/caf"
	"github.com/litescript/ls-tdoa/internal/version"
)

// Half-size of the surface window kept in correlation exports.
const (
	windowHalfRows = 8
	windowHalfCols = 16
)

// CorrelationExport is the JSON form of a correlation between two captures.
// TDOA and FDOA are only meaningful when SampleRate is known.
type CorrelationExport struct {
	Version    string     `json:"version"`
	Algorithm  string     `json:"algorithm"`
	Samples    int        `json:"samples"`
	SampleRate float64    `json:"sample_rate_hz,omitempty"`
	TimeShift  int        `json:"time_shift_samples"`
	FreqShift  float64    `json:"freq_shift_cycles_per_sample"`
	TDOA       float64    `json:"tdoa_s,omitempty"`
	FDOA       float64    `json:"fdoa_hz,omitempty"`
	PeakMag    float64    `json:"peak_mag"`
	MedianMag  float64    `json:"median_mag"`
	Confidence *float64   `json:"confidence"`
	Window     caf.Window `json:"window"`
}

// ExportCorrelation converts a correlator result. sampleRate may be zero.
func ExportCorrelation(alg caf.Algorithm, samples int, sampleRate float64, r *caf.Result) *CorrelationExport {
	e := &CorrelationExport{
		Version:    version.Version,
		Algorithm:  alg.String(),
		Samples:    samples,
		SampleRate: sampleRate,
		TimeShift:  r.TimeShift,
		FreqShift:  r.FreqShift,
		PeakMag:    r.PeakMag,
		MedianMag:  r.MedianMag,
		Confidence: finite(r.Confidence()),
		Window:     r.Window(windowHalfRows, windowHalfCols),
	}
	if sampleRate > 0 {
		e.TDOA = float64(r.TimeShift) / sampleRate
		e.FDOA = r.FreqShift * sampleRate
	}
	return e
}

// WriteJSON writes the export as indented JSON.
func (e *CorrelationExport) WriteJSON(w io.Writer) error {
	return writeJSON(w, e)
}

// WriteCorrelationSummary writes a text report of a correlation.
func WriteCorrelationSummary(w io.Writer, e *CorrelationExport) {
	fmt.Fprintf(w, "ls-tdoa %s correlation (%s, %d samples)\n", version.Version, e.Algorithm, e.Samples)
	fmt.Fprintln(w, strings.Repeat("─", 78))
	fmt.Fprintf(w, "%-12s %d samples\n", "Lag", e.TimeShift)
	fmt.Fprintf(w, "%-12s %.6g cycles/sample\n", "Freq shift", e.FreqShift)
	if e.SampleRate > 0 {
		fmt.Fprintf(w, "%-12s %s\n", "TDOA", FormatTime(e.TDOA))
		fmt.Fprintf(w, "%-12s %s\n", "FDOA", FormatFrequency(e.FDOA))
	}
	conf := "inf"
	if e.Confidence != nil {
		conf = FormatRatio(*e.Confidence)
	}
	fmt.Fprintf(w, "%-12s %.4g (median %.4g, ratio %s)\n", "Peak", e.PeakMag, e.MedianMag, conf)
}
