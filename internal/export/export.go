// Package export renders run results as JSON documents and text tables.
package export

import (
	"encoding/json"
	"io"
	"math"
	"time"

	"gonum.org/v1/gonum/mat"

	"github.com/litescript/ls-tdoa/internal/caf"
	"github.com/litescript/ls-tdoa/internal/geodesy"
	"github.com/litescript/ls-tdoa/internal/sim"
	"github.com/litescript/ls-tdoa/internal/solver"
	"github.com/litescript/ls-tdoa/internal/version"
)

// RunExport is the JSON-serializable form of a simulation run. Vectors are
// plain arrays so plotting tools can read them directly.
type RunExport struct {
	Version  string    `json:"version"`
	RunID    string    `json:"run_id"`
	Started  time.Time `json:"started"`
	Elapsed  float64   `json:"elapsed_s"`
	Geodetic bool      `json:"geodetic"`
	Origin   []float64 `json:"origin,omitempty"` // lat°, lon°, alt m

	Receivers       [][]float64 `json:"receivers"`
	EmitterPosition []float64   `json:"emitter_position"`
	EmitterVelocity []float64   `json:"emitter_velocity"`
	Frequency       float64     `json:"frequency_hz"`
	SampleRate      float64     `json:"sample_rate_hz"`
	Algorithm       string      `json:"algorithm"`
	Seed            uint64      `json:"seed,string"`
	MessageBits     int         `json:"message_bits"`
	Samples         int         `json:"samples"`

	TrueTDOA     []float64 `json:"true_tdoa_s"`
	TrueFDOA     []float64 `json:"true_fdoa_hz"`
	MeasuredTDOA []float64 `json:"measured_tdoa_s"`
	MeasuredFDOA []float64 `json:"measured_fdoa_hz"`

	Pairs    []PairExport   `json:"pairs"`
	Measured EstimateExport `json:"measured"`
	Truth    EstimateExport `json:"truth"`
}

// PairExport is one correlation with its heat-map window.
type PairExport struct {
	Receiver   int        `json:"receiver"`
	TimeShift  int        `json:"time_shift_samples"`
	FreqShift  float64    `json:"freq_shift_cycles_per_sample"`
	TDOA       float64    `json:"tdoa_s"`
	FDOA       float64    `json:"fdoa_hz"`
	PeakMag    float64    `json:"peak_mag"`
	MedianMag  float64    `json:"median_mag"`
	Confidence *float64   `json:"confidence"` // null when the median is zero
	Elapsed    float64    `json:"elapsed_s"`
	Window     caf.Window `json:"window"`
}

// EstimateExport is one solve with its error against the truth.
type EstimateExport struct {
	Position      []float64   `json:"position"`
	Velocity      []float64   `json:"velocity,omitempty"`
	Geodetic      []float64   `json:"geodetic,omitempty"`
	PositionError float64     `json:"position_error_m"`
	VelocityError float64     `json:"velocity_error_mps"`
	Solve         SolveExport `json:"solve"`
}

// SolveExport is the JSON form of a solver result.
type SolveExport struct {
	Mode         string      `json:"mode"`
	Position     []float64   `json:"position"`
	Velocity     []float64   `json:"velocity,omitempty"`
	Status       string      `json:"status"`
	Converged    bool        `json:"converged"`
	Iterations   int         `json:"iterations"`
	Evaluations  int         `json:"evaluations"`
	Cost         float64     `json:"cost"`
	ResidualNorm float64     `json:"residual_norm"`
	Residuals    []float64   `json:"residuals"`
	Covariance   [][]float64 `json:"covariance,omitempty"`
	Ellipsoid    *Ellipsoid  `json:"ellipsoid_95,omitempty"`
	Warning      string      `json:"warning,omitempty"`
}

// Ellipsoid is a 95% position confidence region. Axes[i] is the unit
// direction of SemiAxes[i].
type Ellipsoid struct {
	SemiAxes []float64   `json:"semi_axes_m"`
	Axes     [][]float64 `json:"axes"`
}

// ExportRun converts a simulation result.
func ExportRun(res *sim.Result) *RunExport {
	if res == nil {
		return &RunExport{Version: version.Version}
	}
	sc := res.Scenario

	export := &RunExport{
		Version:         version.Version,
		RunID:           res.RunID,
		Started:         res.Started,
		Elapsed:         res.Elapsed.Seconds(),
		Geodetic:        sc.Geodetic,
		EmitterPosition: res.EmitterPosition,
		EmitterVelocity: res.EmitterVelocity,
		Frequency:       sc.Frequency,
		SampleRate:      sc.SampleRate,
		Algorithm:       sc.Algorithm.String(),
		Seed:            sc.Seed,
		MessageBits:     len(res.Message),
		Samples:         res.Samples,
		TrueTDOA:        res.TrueTDOA,
		TrueFDOA:        res.TrueFDOA,
		MeasuredTDOA:    res.MeasuredTDOA,
		MeasuredFDOA:    res.MeasuredFDOA,
		Measured:        exportEstimate(res.Measured),
		Truth:           exportEstimate(res.Truth),
	}
	if res.Origin != nil {
		export.Origin = llaSlice(res.Origin)
	}
	for _, r := range res.Receivers {
		export.Receivers = append(export.Receivers, r)
	}
	for _, p := range res.Pairs {
		export.Pairs = append(export.Pairs, PairExport{
			Receiver:   p.Receiver,
			TimeShift:  p.TimeShift,
			FreqShift:  p.FreqShift,
			TDOA:       p.TDOA,
			FDOA:       p.FDOA,
			PeakMag:    p.PeakMag,
			MedianMag:  p.MedianMag,
			Confidence: finite(p.Confidence),
			Elapsed:    p.Elapsed.Seconds(),
			Window:     p.Window,
		})
	}
	return export
}

func exportEstimate(e sim.Estimate) EstimateExport {
	out := EstimateExport{
		Position:      e.Position,
		Velocity:      e.Velocity,
		PositionError: e.PositionError,
		VelocityError: e.VelocityError,
	}
	if e.Geodetic != nil {
		out.Geodetic = llaSlice(e.Geodetic)
	}
	if e.Solve != nil {
		out.Solve = ExportSolve(e.Solve)
	}
	return out
}

// ExportSolve converts a solver result, including its covariance and
// confidence ellipsoid when available.
func ExportSolve(r *solver.Result) SolveExport {
	out := SolveExport{
		Mode:         r.Mode.String(),
		Position:     r.Position,
		Velocity:     r.Velocity,
		Status:       r.Status.String(),
		Converged:    r.Converged(),
		Iterations:   r.Iterations,
		Evaluations:  r.Evaluations,
		Cost:         r.Cost,
		ResidualNorm: r.ResidualNorm,
		Residuals:    r.Residuals,
	}
	if r.Covariance != nil {
		out.Covariance = rows(r.Covariance)
		if e, err := r.PositionEllipsoid(); err == nil {
			out.Ellipsoid = &Ellipsoid{SemiAxes: e.SemiAxes, Axes: columns(e.Axes)}
		}
	}
	if r.Warning != nil {
		out.Warning = r.Warning.Error()
	}
	return out
}

// WriteJSON writes the run as indented JSON.
func (e *RunExport) WriteJSON(w io.Writer) error {
	return writeJSON(w, e)
}

// WriteJSON writes the solve as indented JSON.
func (e SolveExport) WriteJSON(w io.Writer) error {
	return writeJSON(w, e)
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func llaSlice(p *geodesy.LLA) []float64 {
	return []float64{p.Lat, p.Lon, p.Alt}
}

// finite returns nil for values JSON cannot carry.
func finite(v float64) *float64 {
	if math.IsInf(v, 0) || math.IsNaN(v) {
		return nil
	}
	return &v
}

func rows(m mat.Matrix) [][]float64 {
	r, c := m.Dims()
	out := make([][]float64, r)
	for i := range out {
		out[i] = make([]float64, c)
		for j := range out[i] {
			out[i][j] = m.At(i, j)
		}
	}
	return out
}

// columns returns the columns of m as rows.
func columns(m *mat.Dense) [][]float64 {
	if m == nil {
		return nil
	}
	return rows(m.T())
}
