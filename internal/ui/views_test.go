package ui

import (
	"math"
	"strings"
	"testing"
	"time"

	"github.com/litescript/ls-tdoa/internal/caf"
	"github.com/litescript/ls-tdoa/internal/sim"
	"github.com/litescript/ls-tdoa/internal/state"
)

func TestRenderConfidenceBar(t *testing.T) {
	m := DashboardModel{}

	tests := []struct {
		name       string
		conf       float64
		width      int
		wantFilled int
	}{
		{"no peak", 1.0, 10, 0},
		{"below median", 0.5, 10, 0},
		{"full", confidenceFull, 10, 10},
		{"over full", 1000, 10, 10}, // capped at width
		{"infinite", math.Inf(1), 8, 8},
		{"past half", math.Pow(confidenceFull, 0.55), 10, 5},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			bar := m.renderConfidenceBar(tt.conf, tt.width)

			if !strings.HasPrefix(bar, "[") || !strings.HasSuffix(bar, "]") {
				t.Errorf("bar should have brackets, got %q", bar)
			}
			if got := strings.Count(bar, "█"); got != tt.wantFilled {
				t.Errorf("filled count = %d, want %d", got, tt.wantFilled)
			}
		})
	}
}

func TestDashboard_View(t *testing.T) {
	res := testRun(t)
	mgr := state.NewManager(state.DefaultConfig())
	mgr.Update(res, time.Millisecond, nil)

	m := NewDashboardModel().SetSize(120, 40).UpdateData(mgr.Snapshot())
	out := m.View()

	for _, want := range []string{"Receiver Pairs", "0-1", "0-3", "Measured", "Truth", shortID(res.RunID), "RUN_COMPLETE"} {
		if !strings.Contains(out, want) {
			t.Errorf("dashboard missing %q", want)
		}
	}

	if got := NewDashboardModel().View(); !strings.Contains(got, "Waiting") {
		t.Errorf("empty dashboard = %q", got)
	}
}

func TestDashboard_CursorClamps(t *testing.T) {
	mgr := state.NewManager(state.DefaultConfig())
	mgr.Update(testRun(t), 0, nil)
	m := NewDashboardModel().UpdateData(mgr.Snapshot())

	for i := 0; i < 10; i++ {
		m, _ = m.Update(key("j"))
	}
	if p := m.SelectedPair(); p == nil || p.Receiver != 3 {
		t.Errorf("selected = %+v, want last pair", p)
	}

	m, _ = m.Update(key("home"))
	if p := m.SelectedPair(); p == nil || p.Receiver != 1 {
		t.Errorf("selected = %+v, want first pair", p)
	}

	// Fewer pairs in a new snapshot pull the cursor back
	m, _ = m.Update(key("end"))
	m = m.UpdateData(state.Snapshot{Result: &sim.Result{Pairs: []sim.Pair{{Receiver: 1}}}})
	if p := m.SelectedPair(); p == nil || p.Receiver != 1 {
		t.Errorf("selected = %+v after shrink", p)
	}
}

func TestGeometry_KeysAndPlanes(t *testing.T) {
	m := NewGeometryModel()
	if m.scale() != 1.0 {
		t.Errorf("initial scale = %v, want 1.0", m.scale())
	}

	m, _ = m.Update(key("+"))
	m, _ = m.Update(key("+"))
	if m.scale() != 2.0 {
		t.Errorf("scale = %v after two zoom-ins, want 2.0", m.scale())
	}
	m, _ = m.Update(key("0"))
	if m.scale() != 1.0 {
		t.Errorf("scale = %v after reset, want 1.0", m.scale())
	}
	for i := 0; i < 20; i++ {
		m, _ = m.Update(key("-"))
	}
	if m.scale() != zoomLevels[0] {
		t.Errorf("scale = %v, want clamped to %v", m.scale(), zoomLevels[0])
	}

	want := []Plane{PlaneXZ, PlaneYZ, PlaneXY}
	for _, p := range want {
		m, _ = m.Update(key("z"))
		if m.Plane() != p {
			t.Errorf("plane = %s, want %s", m.Plane(), p)
		}
	}

	m, _ = m.Update(key("left"))
	m, _ = m.Update(key("c"))
	if m.panX != 0 || m.panY != 0 {
		t.Errorf("pan = (%v, %v) after center", m.panX, m.panY)
	}
}

func TestGeometry_View(t *testing.T) {
	res := testRun(t)
	m := NewGeometryModel().SetSize(100, 30).UpdateData(state.Snapshot{Result: res})
	out := m.View()

	for _, want := range []string{string(glyphReceiver), string(glyphEmitter), "R0", "R1", "R2", "Plane:"} {
		if !strings.Contains(out, want) {
			t.Errorf("geometry view missing %q", want)
		}
	}

	if got := NewGeometryModel().SetSize(20, 5).View(); !strings.Contains(got, "too small") {
		t.Errorf("small terminal = %q", got)
	}
}

func TestProjection_FitsScene(t *testing.T) {
	res := &sim.Result{
		Receivers:       testRun(t).Receivers,
		EmitterPosition: []float64{100, 100, 100},
	}
	m := NewGeometryModel()
	proj := m.sceneProjection(res, 80, 20)

	for _, r := range res.Receivers {
		if _, _, ok := proj.toScreen(r[0], r[1]); !ok {
			t.Errorf("receiver %v off screen", r)
		}
	}
	if _, _, ok := proj.toScreen(100, 100); !ok {
		t.Error("emitter off screen")
	}
}

func TestAmbiguity_ShadeIndex(t *testing.T) {
	m := NewAmbiguityModel()
	top := len(heatShades) - 1

	if got := m.shadeIndex(10, 10); got != top {
		t.Errorf("peak shade = %d, want %d", got, top)
	}
	if got := m.shadeIndex(0, 10); got != 0 {
		t.Errorf("zero shade = %d, want 0", got)
	}
	// -40 dB is below the floor
	if got := m.shadeIndex(0.1, 10); got != 0 {
		t.Errorf("shade below floor = %d, want 0", got)
	}
	// -20 dB is a third of the way above the floor
	if got := m.shadeIndex(1, 10); got != 2 {
		t.Errorf("-20 dB shade = %d, want 2", got)
	}

	m, _ = m.Update(key("l"))
	if m.Scale() != ScaleLinear {
		t.Fatalf("scale = %s, want linear", m.Scale())
	}
	if got := m.shadeIndex(1, 10); got != 1 {
		t.Errorf("linear 10%% shade = %d, want 1", got)
	}
}

func TestAmbiguity_View(t *testing.T) {
	res := testRun(t)
	m := NewAmbiguityModel().SetSize(100, 30).UpdateData(state.Snapshot{Result: res})
	m = m.SetFocusReceiver(3)

	if p := m.FocusedPair(); p == nil || p.Receiver != 3 {
		t.Fatalf("focused = %+v, want receiver 3", p)
	}
	out := m.View()
	for _, want := range []string{"Pair 0-3", "lag", string(heatShades[len(heatShades)-1])} {
		if !strings.Contains(out, want) {
			t.Errorf("ambiguity view missing %q", want)
		}
	}

	// j wraps around
	m, _ = m.Update(key("j"))
	if p := m.FocusedPair(); p == nil || p.Receiver != 1 {
		t.Errorf("after wrap focused = %+v, want receiver 1", p)
	}

	empty := NewAmbiguityModel().UpdateData(state.Snapshot{Result: &sim.Result{
		Pairs: []sim.Pair{{Receiver: 1, Window: caf.Window{}}},
	}})
	if got := empty.View(); !strings.Contains(got, "no surface window") {
		t.Errorf("empty window view = %q", got)
	}
}

func TestResample(t *testing.T) {
	if got := resample(nil, 10); got != nil {
		t.Errorf("resample(nil) = %v", got)
	}

	short := []float64{1, 2, 3}
	if got := resample(short, 10); len(got) != 3 {
		t.Errorf("short input resampled to %d values, want 3", len(got))
	}

	vals := make([]float64, 100)
	vals[42] = 9
	got := resample(vals, 10)
	if len(got) != 10 {
		t.Fatalf("len = %d, want 10", len(got))
	}
	if got[4] != 9 {
		t.Errorf("bucket 4 = %v, want the spike kept", got[4])
	}
}

func TestMonteCarloModel_View(t *testing.T) {
	mc := &sim.MonteCarloResult{
		Trials: []sim.Trial{
			{Index: 0, Seed: 1, MeasuredPositionError: 1, MeasuredConverged: true, TruthConverged: true},
			{Index: 1, Seed: 2, MeasuredPositionError: 3, MeasuredConverged: false, TruthConverged: true},
		},
		Elapsed:          2 * time.Second,
		MeasuredPosition: sim.Summarize([]float64{1, 3}),
		NotConverged:     1,
	}
	snap := state.Snapshot{MonteCarlo: mc, Progress: state.Progress{Done: 2, Total: 2}}
	m := NewMonteCarloModel().SetSize(120, 40).UpdateData(snap)
	out := m.View()

	for _, want := range []string{"measured position m", "2/2", "did not converge", "Trial"} {
		if !strings.Contains(out, want) {
			t.Errorf("Monte Carlo view missing %q", want)
		}
	}

	running := NewMonteCarloModel().UpdateData(state.Snapshot{Progress: state.Progress{Done: 1, Total: 4}})
	running = running.SetAnimTick(3)
	if got := running.View(); !strings.Contains(got, "Running trials") {
		t.Errorf("running view = %q", got)
	}
}

func TestInterpolateErrColor(t *testing.T) {
	r, g, b := interpolateErrColor(0)
	if [3]uint8{r, g, b} != errColorLow {
		t.Errorf("t=0 color = %v, want %v", [3]uint8{r, g, b}, errColorLow)
	}
	r, g, b = interpolateErrColor(2)
	if [3]uint8{r, g, b} != errColorHigh {
		t.Errorf("t>1 color = %v, want %v", [3]uint8{r, g, b}, errColorHigh)
	}
}
