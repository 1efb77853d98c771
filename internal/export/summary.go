package export

import (
	"fmt"
	"io"
	"math"
	"strings"
	"time"

	"github.com/litescript/ls-tdoa/internal/sim"
	"github.com/litescript/ls-tdoa/internal/solver"
	"github.com/litescript/ls-tdoa/internal/version"
)

// MonteCarloExport is the JSON form of a Monte Carlo run.
type MonteCarloExport struct {
	Version   string  `json:"version"`
	Algorithm string  `json:"algorithm"`
	Seed      uint64  `json:"seed,string"`
	Noiseless bool    `json:"noiseless"`
	Elapsed   float64 `json:"elapsed_s"`

	*sim.MonteCarloResult
}

// ExportMonteCarlo converts a Monte Carlo result.
func ExportMonteCarlo(res *sim.MonteCarloResult) *MonteCarloExport {
	if res == nil {
		return &MonteCarloExport{Version: version.Version}
	}
	return &MonteCarloExport{
		Version:          version.Version,
		Algorithm:        res.Scenario.Algorithm.String(),
		Seed:             res.Scenario.Seed,
		Noiseless:        res.Scenario.Noiseless,
		Elapsed:          res.Elapsed.Seconds(),
		MonteCarloResult: res,
	}
}

// WriteJSON writes the Monte Carlo run as indented JSON.
func (e *MonteCarloExport) WriteJSON(w io.Writer) error {
	return writeJSON(w, e)
}

// PairRow is one row of the correlation table.
type PairRow struct {
	Receiver   int
	Shift      string
	TDOA       string
	TrueTDOA   string
	FDOA       string
	TrueFDOA   string
	Confidence string
}

// GeneratePairRows builds the correlation table rows of a run.
func GeneratePairRows(res *sim.Result) []PairRow {
	if res == nil {
		return nil
	}
	var rows []PairRow
	for _, p := range res.Pairs {
		rows = append(rows, PairRow{
			Receiver:   p.Receiver,
			Shift:      fmt.Sprintf("%d", p.TimeShift),
			TDOA:       FormatTime(p.TDOA),
			TrueTDOA:   FormatTime(res.TrueTDOA[p.Receiver]),
			FDOA:       FormatFrequency(p.FDOA),
			TrueFDOA:   FormatFrequency(res.TrueFDOA[p.Receiver]),
			Confidence: FormatRatio(p.Confidence),
		})
	}
	return rows
}

// WriteSummaryTable writes a text report of a run.
func WriteSummaryTable(w io.Writer, res *sim.Result) {
	fmt.Fprintf(w, "ls-tdoa %s run %s\n", version.Version, runID(res))
	fmt.Fprintln(w, strings.Repeat("─", 78))
	if res == nil {
		fmt.Fprintln(w, "No result")
		return
	}

	sc := res.Scenario
	fmt.Fprintf(w, "Receivers %d  samples %d  %s correlator  carrier %s  seed %d\n",
		len(res.Receivers), res.Samples, sc.Algorithm, FormatFrequency(sc.Frequency), sc.Seed)
	fmt.Fprintf(w, "Emitter   %s  velocity %s m/s\n", formatVec(res.EmitterPosition), formatVec(res.EmitterVelocity))
	fmt.Fprintln(w, strings.Repeat("─", 78))

	fmt.Fprintf(w, "%-4s %-7s %-11s %-11s %-12s %-12s %-6s\n",
		"Rx", "Shift", "TDOA", "True", "FDOA", "True", "Conf")
	for _, r := range GeneratePairRows(res) {
		fmt.Fprintf(w, "%-4d %-7s %-11s %-11s %-12s %-12s %-6s\n",
			r.Receiver, r.Shift, r.TDOA, r.TrueTDOA, r.FDOA, r.TrueFDOA, r.Confidence)
	}
	fmt.Fprintln(w, strings.Repeat("─", 78))

	writeEstimate(w, "Measured", res.Measured)
	writeEstimate(w, "Truth", res.Truth)
	fmt.Fprintf(w, "\nElapsed %s\n", res.Elapsed.Round(time.Millisecond))
}

func writeEstimate(w io.Writer, label string, e sim.Estimate) {
	fmt.Fprintf(w, "%-9s position %s  error %s\n", label, formatVec(e.Position), FormatDistance(e.PositionError))
	fmt.Fprintf(w, "%-9s velocity %s  error %.2f m/s\n", "", formatVec(e.Velocity), e.VelocityError)
	if e.Geodetic != nil {
		fmt.Fprintf(w, "%-9s geodetic %.6f°, %.6f°, %.1f m\n", "", e.Geodetic.Lat, e.Geodetic.Lon, e.Geodetic.Alt)
	}
	if e.Solve != nil {
		writeSolveStatus(w, e.Solve)
	}
}

func writeSolveStatus(w io.Writer, r *solver.Result) {
	fmt.Fprintf(w, "%-9s %s after %d iterations, residual %.3g\n", "", r.Status, r.Iterations, r.ResidualNorm)
	if el, err := r.PositionEllipsoid(); err == nil {
		fmt.Fprintf(w, "%-9s 95%% ellipsoid semi-axes %s\n", "", formatVec(el.SemiAxes))
	}
}

// WriteSolveSummary writes a text report of a single solve.
func WriteSolveSummary(w io.Writer, r *solver.Result) {
	fmt.Fprintf(w, "ls-tdoa %s solve (%s)\n", version.Version, r.Mode)
	fmt.Fprintln(w, strings.Repeat("─", 78))
	fmt.Fprintf(w, "%-9s position %s\n", "Estimate", formatVec(r.Position))
	if r.Velocity != nil {
		fmt.Fprintf(w, "%-9s velocity %s m/s\n", "", formatVec(r.Velocity))
	}
	writeSolveStatus(w, r)
	if r.Warning != nil {
		fmt.Fprintf(w, "warning: %v\n", r.Warning)
	}
}

// WriteMonteCarloTable writes a text report of a Monte Carlo run.
func WriteMonteCarloTable(w io.Writer, res *sim.MonteCarloResult) {
	fmt.Fprintf(w, "ls-tdoa %s Monte Carlo\n", version.Version)
	fmt.Fprintln(w, strings.Repeat("─", 78))
	if res == nil || len(res.Trials) == 0 {
		fmt.Fprintln(w, "No trials")
		return
	}

	fmt.Fprintf(w, "%-22s %10s %10s %10s %10s %10s\n", "Error", "Mean", "Median", "Std", "Min", "Max")
	for _, r := range []struct {
		label string
		s     sim.Stats
	}{
		{"measured position m", res.MeasuredPosition},
		{"measured velocity m/s", res.MeasuredVelocity},
		{"truth position m", res.TruthPosition},
		{"truth velocity m/s", res.TruthVelocity},
	} {
		fmt.Fprintf(w, "%-22s %10.3g %10.3g %10.3g %10.3g %10.3g\n",
			r.label, r.s.Mean, r.s.Median, r.s.StdDev, r.s.Min, r.s.Max)
	}

	fmt.Fprintf(w, "\nTrials: %d  not converged: %d  elapsed %s\n",
		len(res.Trials), res.NotConverged, res.Elapsed.Round(time.Millisecond))
}

func runID(res *sim.Result) string {
	if res == nil || len(res.RunID) < 8 {
		return "-"
	}
	return res.RunID[:8]
}

// FormatTime formats a time difference in engineering units.
func FormatTime(s float64) string {
	a := math.Abs(s)
	switch {
	case a == 0:
		return "0 s"
	case a < 1e-6:
		return fmt.Sprintf("%.2f ns", s*1e9)
	case a < 1e-3:
		return fmt.Sprintf("%.3f µs", s*1e6)
	case a < 1:
		return fmt.Sprintf("%.3f ms", s*1e3)
	default:
		return fmt.Sprintf("%.3f s", s)
	}
}

// FormatFrequency formats a frequency in Hz, kHz, MHz or GHz.
func FormatFrequency(hz float64) string {
	a := math.Abs(hz)
	switch {
	case a < 1e3:
		return fmt.Sprintf("%.2f Hz", hz)
	case a < 1e6:
		return fmt.Sprintf("%.2f kHz", hz/1e3)
	case a < 1e9:
		return fmt.Sprintf("%.2f MHz", hz/1e6)
	default:
		return fmt.Sprintf("%.3f GHz", hz/1e9)
	}
}

// FormatDistance formats meters, switching to km past 10 km.
func FormatDistance(m float64) string {
	switch {
	case math.IsNaN(m):
		return "N/A"
	case m < 1e4:
		return fmt.Sprintf("%.3g m", m)
	default:
		return fmt.Sprintf("%.1f km", m/1e3)
	}
}

// FormatRatio formats a peak-to-median ratio.
func FormatRatio(r float64) string {
	if math.IsInf(r, 1) {
		return "inf"
	}
	return fmt.Sprintf("%.1f", r)
}

func formatVec(v []float64) string {
	if len(v) == 0 {
		return "-"
	}
	parts := make([]string, len(v))
	for i, c := range v {
		parts[i] = fmt.Sprintf("%.2f", c)
	}
	return "(" + strings.Join(parts, ", ") + ")"
}
