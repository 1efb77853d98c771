package export

import (
	"bytes"
	"context"
	"encoding/json"
	"math"
	"strconv"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/litescript/ls-tdoa/internal/caf"
	"github.com/litescript/ls-tdoa/internal/geom"
	"github.com/litescript/ls-tdoa/internal/sim"
	"github.com/litescript/ls-tdoa/internal/solver"
	"github.com/litescript/ls-tdoa/internal/version"
)

func runSmall(t *testing.T) *sim.Result {
	t.Helper()
	sc := sim.DefaultScenario()
	sc.MessageBits = 32
	sc.Noiseless = true
	res, err := sim.Simulate(context.Background(), sc)
	require.NoError(t, err)
	return res
}

func TestExportRun(t *testing.T) {
	res := runSmall(t)
	export := ExportRun(res)

	if export.RunID != res.RunID {
		t.Errorf("RunID = %q, want %q", export.RunID, res.RunID)
	}
	if export.Version != version.Version {
		t.Errorf("Version = %q, want %q", export.Version, version.Version)
	}
	if len(export.Receivers) != 4 {
		t.Fatalf("Receivers count = %d, want 4", len(export.Receivers))
	}
	if len(export.Pairs) != 3 {
		t.Fatalf("Pairs count = %d, want 3", len(export.Pairs))
	}
	assert.Equal(t, "fft", export.Algorithm)
	assert.Equal(t, 32, export.MessageBits)
	assert.Equal(t, res.MeasuredTDOA, export.MeasuredTDOA)
	assert.Nil(t, export.Origin)

	truth := export.Truth
	assert.Equal(t, "joint", truth.Solve.Mode)
	assert.True(t, truth.Solve.Converged)
	assert.Len(t, truth.Position, 3)
	assert.Less(t, truth.PositionError, 1e-3)
}

func TestExportRun_Nil(t *testing.T) {
	export := ExportRun(nil)
	if export.Version != version.Version {
		t.Errorf("Version = %q", export.Version)
	}
	if len(export.Pairs) != 0 {
		t.Error("Pairs should be empty for nil result")
	}
}

func TestRunExport_WriteJSON(t *testing.T) {
	export := ExportRun(runSmall(t))
	// A zero median makes the ratio infinite
	export.Pairs[0].Confidence = finite(math.Inf(1))

	var buf bytes.Buffer
	require.NoError(t, export.WriteJSON(&buf))

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &decoded))

	for _, key := range []string{"run_id", "receivers", "pairs", "measured", "truth", "true_tdoa_s"} {
		if _, ok := decoded[key]; !ok {
			t.Errorf("JSON missing key %q", key)
		}
	}

	pairs := decoded["pairs"].([]any)
	first := pairs[0].(map[string]any)
	assert.Nil(t, first["confidence"])
	assert.IsType(t, "", decoded["seed"])
	window := first["window"].(map[string]any)
	assert.NotEmpty(t, window["mags"])

	// Indented like the rest of the tool's JSON output
	assert.Contains(t, buf.String(), "\n  \"run_id\"")
}

func TestExportSolve_CovarianceAndEllipsoid(t *testing.T) {
	receivers := []geom.Vec{
		geom.NewVec(0, 0, 0),
		geom.NewVec(1000, 0, 0),
		geom.NewVec(0, 1000, 0),
		geom.NewVec(0, 0, 1000),
		geom.NewVec(1000, 1000, 500),
	}
	pos := geom.NewVec(400, 700, 300)
	tdoa := make([]float64, len(receivers))
	for i, r := range receivers {
		tdoa[i] = (r.Distance(pos) - receivers[0].Distance(pos)) / geom.SpeedOfLight
	}
	// Perturb one difference so the residuals are non-zero
	tdoa[4] += 1e-9

	r, err := solver.EstimateEmitter(receivers, solver.ModeTDOA, solver.Measurements{TDOA: tdoa})
	require.NoError(t, err)

	out := ExportSolve(r)
	assert.Equal(t, "tdoa", out.Mode)
	assert.Nil(t, out.Velocity)
	require.Len(t, out.Covariance, 3)
	assert.Len(t, out.Covariance[0], 3)
	require.NotNil(t, out.Ellipsoid)
	assert.Len(t, out.Ellipsoid.SemiAxes, 3)
	require.Len(t, out.Ellipsoid.Axes, 3)

	// Axes are unit vectors
	for _, a := range out.Ellipsoid.Axes {
		assert.InDelta(t, 1.0, geom.NewVec(a...).Norm(), 1e-9)
	}

	var buf bytes.Buffer
	require.NoError(t, out.WriteJSON(&buf))
	assert.Contains(t, buf.String(), "ellipsoid_95")
}

func TestWriteSummaryTable(t *testing.T) {
	res := runSmall(t)

	var buf bytes.Buffer
	WriteSummaryTable(&buf, res)
	out := buf.String()

	for _, want := range []string{res.RunID[:8], "Rx", "Measured", "Truth", "fft correlator"} {
		if !strings.Contains(out, want) {
			t.Errorf("summary missing %q:\n%s", want, out)
		}
	}
	if n := len(GeneratePairRows(res)); n != 3 {
		t.Errorf("pair rows = %d, want 3", n)
	}

	buf.Reset()
	WriteSummaryTable(&buf, nil)
	if !strings.Contains(buf.String(), "No result") {
		t.Error("nil result should print a placeholder")
	}
}

func TestMonteCarloExport(t *testing.T) {
	sc := sim.DefaultScenario()
	sc.MessageBits = 32
	mc, err := sim.MonteCarlo(context.Background(), sc, 2, 2, nil)
	require.NoError(t, err)

	export := ExportMonteCarlo(mc)
	var buf bytes.Buffer
	require.NoError(t, export.WriteJSON(&buf))

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &decoded))
	assert.Len(t, decoded["trials"], 2)
	assert.Contains(t, decoded, "measured_position")
	assert.Contains(t, decoded, "elapsed_s")
	assert.NotContains(t, decoded, "elapsed_ns")

	// 64-bit seeds are strings so float64 readers keep every digit
	assert.Equal(t, strconv.FormatUint(mc.Scenario.Seed, 10), decoded["seed"])
	trial := decoded["trials"].([]any)[1].(map[string]any)
	assert.Equal(t, strconv.FormatUint(mc.Trials[1].Seed, 10), trial["seed"])

	buf.Reset()
	WriteMonteCarloTable(&buf, mc)
	assert.Contains(t, buf.String(), "Trials: 2")
	assert.Contains(t, buf.String(), "measured position m")
}

func TestFormatters(t *testing.T) {
	tests := []struct {
		got, want string
	}{
		{FormatTime(0), "0 s"},
		{FormatTime(-1.06e-7), "-106.00 ns"},
		{FormatTime(2.5e-5), "25.000 µs"},
		{FormatFrequency(12.5), "12.50 Hz"},
		{FormatFrequency(21.8e6), "21.80 MHz"},
		{FormatFrequency(1090e6), "1.090 GHz"},
		{FormatFrequency(2.4e9), "2.400 GHz"},
		{FormatDistance(3.2), "3.2 m"},
		{FormatDistance(25000), "25.0 km"},
		{FormatRatio(math.Inf(1)), "inf"},
		{FormatRatio(12.34), "12.3"},
		{formatVec([]float64{1, -2.5}), "(1.00, -2.50)"},
		{formatVec(nil), "-"},
	}

	for _, tt := range tests {
		if tt.got != tt.want {
			t.Errorf("got %q, want %q", tt.got, tt.want)
		}
	}
}

func TestExportCorrelation(t *testing.T) {
	sig := make([]complex128, 64)
	for i := range sig {
		sig[i] = complex(float64(i%7)-3, float64(i%5)-2)
	}
	// sig2 lags sig by 3 samples
	sig2 := make([]complex128, len(sig))
	for i := range sig2 {
		sig2[i] = sig[(i-3+len(sig))%len(sig)]
	}

	r, err := caf.Correlate(caf.AlgorithmFFT, sig, sig2, caf.Params{MaxTimeShift: 8})
	require.NoError(t, err)

	e := ExportCorrelation(caf.AlgorithmFFT, len(sig), 1e6, r)
	assert.Equal(t, 3, e.TimeShift)
	assert.InDelta(t, 3e-6, e.TDOA, 1e-12)
	assert.Equal(t, "fft", e.Algorithm)
	assert.NotEmpty(t, e.Window.Mags)

	var buf bytes.Buffer
	WriteCorrelationSummary(&buf, e)
	assert.Contains(t, buf.String(), "3 samples")
	assert.Contains(t, buf.String(), "TDOA")

	// Without a sample rate only sample units are reported
	e = ExportCorrelation(caf.AlgorithmFFT, len(sig), 0, r)
	buf.Reset()
	require.NoError(t, e.WriteJSON(&buf))
	assert.NotContains(t, buf.String(), "tdoa_s")
}
