package ui

import (
	"fmt"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/litescript/ls-tdoa/internal/export"
	"github.com/litescript/ls-tdoa/internal/sim"
	"github.com/litescript/ls-tdoa/internal/state"
)

// SparklineWidth is the fixed width of the error sparkline.
const SparklineWidth = 48

// sparklineBlocks are the Unicode block characters for sparkline (0 = lowest, 7 = highest).
var sparklineBlocks = []rune{'▁', '▂', '▃', '▄', '▅', '▆', '▇', '█'}

// Sparkline gradient: small errors green, large errors red.
var (
	errColorLow  = [3]uint8{0x2e, 0xcc, 0x71}
	errColorMid  = [3]uint8{0xf1, 0xc4, 0x0f}
	errColorHigh = [3]uint8{0xe7, 0x4c, 0x3c}
)

// MonteCarloModel shows the progress and error statistics of a Monte Carlo
// batch.
type MonteCarloModel struct {
	width    int
	height   int
	snapshot state.Snapshot
	animTick int
	scroll   int
}

// NewMonteCarloModel creates a new Monte Carlo view model.
func NewMonteCarloModel() MonteCarloModel {
	return MonteCarloModel{}
}

// SetSize updates the viewport size.
func (m MonteCarloModel) SetSize(width, height int) MonteCarloModel {
	m.width = width
	m.height = height
	return m
}

// UpdateData updates the model with new data.
func (m MonteCarloModel) UpdateData(snapshot state.Snapshot) MonteCarloModel {
	m.snapshot = snapshot
	if n := m.trialCount(); m.scroll >= n {
		m.scroll = max(n-1, 0)
	}
	return m
}

// SetAnimTick advances the loading shimmer.
func (m MonteCarloModel) SetAnimTick(tick int) MonteCarloModel {
	m.animTick = tick
	return m
}

func (m MonteCarloModel) trialCount() int {
	if m.snapshot.MonteCarlo == nil {
		return 0
	}
	return len(m.snapshot.MonteCarlo.Trials)
}

// Update handles messages.
func (m MonteCarloModel) Update(msg tea.Msg) (MonteCarloModel, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "up", "k":
			if m.scroll > 0 {
				m.scroll--
			}
		case "down", "j":
			if m.scroll < m.trialCount()-1 {
				m.scroll++
			}
		case "home":
			m.scroll = 0
		}
	}
	return m, nil
}

// View renders the Monte Carlo view.
func (m MonteCarloModel) View() string {
	var b strings.Builder

	headerStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("205")).Bold(true)

	b.WriteString(headerStyle.Render("Monte Carlo"))
	b.WriteString("\n")
	b.WriteString(m.renderProgress())
	b.WriteString("\n")

	mc := m.snapshot.MonteCarlo
	if mc == nil {
		if m.snapshot.Progress.Total > 0 {
			b.WriteString("\n")
			b.WriteString(m.renderShimmerSparkline("Running trials..."))
			b.WriteString("\n")
		} else {
			dimStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("240"))
			b.WriteString(dimStyle.Render("No Monte Carlo batch. Run `ls-tdoa montecarlo --tui`."))
			b.WriteString("\n")
		}
		return b.String()
	}

	b.WriteString("\n")
	b.WriteString(m.renderStats(mc))
	b.WriteString("\n")
	b.WriteString(headerStyle.Render("Measured position error by trial"))
	b.WriteString("\n")
	b.WriteString(m.renderErrorSparkline(mc))
	b.WriteString("\n\n")
	b.WriteString(m.renderTrials(mc))
	return b.String()
}

// renderProgress draws the completed share of trials.
func (m MonteCarloModel) renderProgress() string {
	p := m.snapshot.Progress
	const width = 30
	filled := int(p.Fraction() * width)
	filled = max(min(filled, width), 0)

	barStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("#9D4EDD"))
	dimStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("240"))
	bar := barStyle.Render(strings.Repeat("█", filled)) + dimStyle.Render(strings.Repeat("░", width-filled))

	s := fmt.Sprintf("[%s] %d/%d", bar, p.Done, p.Total)
	if mc := m.snapshot.MonteCarlo; mc != nil {
		s += dimStyle.Render(fmt.Sprintf("  in %s", mc.Elapsed.Round(time.Millisecond)))
	}
	return s
}

func (m MonteCarloModel) renderStats(mc *sim.MonteCarloResult) string {
	var b strings.Builder

	header := fmt.Sprintf("%-22s %6s %10s %10s %10s %10s %10s",
		"", "count", "mean", "median", "std", "min", "max")
	b.WriteString(headerStyle.Render(header))
	b.WriteString("\n")

	for _, row := range []struct {
		label string
		s     sim.Stats
	}{
		{"measured position m", mc.MeasuredPosition},
		{"measured velocity m/s", mc.MeasuredVelocity},
		{"truth position m", mc.TruthPosition},
		{"truth velocity m/s", mc.TruthVelocity},
	} {
		b.WriteString(rowStyle.Render(fmt.Sprintf("%-22s %6d %10.3g %10.3g %10.3g %10.3g %10.3g",
			row.label, row.s.Count, row.s.Mean, row.s.Median, row.s.StdDev, row.s.Min, row.s.Max)))
		b.WriteString("\n")
	}

	if mc.NotConverged > 0 {
		b.WriteString(warnStyle.Render(fmt.Sprintf("%d solve(s) did not converge", mc.NotConverged)))
		b.WriteString("\n")
	}
	return b.String()
}

// renderErrorSparkline draws each trial's measured position error relative
// to the largest error in the batch.
func (m MonteCarloModel) renderErrorSparkline(mc *sim.MonteCarloResult) string {
	vals := make([]float64, len(mc.Trials))
	for i, t := range mc.Trials {
		vals[i] = t.MeasuredPositionError
	}
	samples := resample(vals, SparklineWidth)
	if len(samples) == 0 {
		dimStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("240"))
		return dimStyle.Render("No trials")
	}

	peak := mc.MeasuredPosition.Max
	var sb strings.Builder
	for _, v := range samples {
		t := 0.0
		if peak > 0 {
			t = v / peak
		}
		blockIdx := min(int(t*7.0), 7)
		blockIdx = max(blockIdx, 0)

		r, g, b := interpolateErrColor(t)
		color := fmt.Sprintf("#%02x%02x%02x", r, g, b)
		sb.WriteString(lipgloss.NewStyle().Foreground(lipgloss.Color(color)).Render(string(sparklineBlocks[blockIdx])))
	}

	nowStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("250"))
	sb.WriteString(nowStyle.Render(" max " + export.FormatDistance(peak)))
	return sb.String()
}

// renderShimmerSparkline renders a loading animation sparkline.
func (m MonteCarloModel) renderShimmerSparkline(msg string) string {
	var sb strings.Builder

	offset := m.animTick % SparklineWidth
	for i := 0; i < SparklineWidth; i++ {
		dist := (i - offset + SparklineWidth) % SparklineWidth
		gray := 60
		if dist < 8 {
			gray = 60 + dist*8
		}
		color := fmt.Sprintf("#%02x%02x%02x", gray, gray, gray)
		sb.WriteString(lipgloss.NewStyle().Foreground(lipgloss.Color(color)).Render("▄"))
	}

	dimStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("240"))
	sb.WriteString(" ")
	sb.WriteString(dimStyle.Render(msg))
	return sb.String()
}

func (m MonteCarloModel) renderTrials(mc *sim.MonteCarloResult) string {
	var b strings.Builder

	header := fmt.Sprintf("%-6s %-22s %-12s %-12s %-12s %-12s",
		"Trial", "Seed", "Meas pos", "Meas vel", "Truth pos", "Conv")
	b.WriteString(headerStyle.Render(header))
	b.WriteString("\n")

	maxRows := max(m.height-24, 3)
	end := min(m.scroll+maxRows, len(mc.Trials))
	for i := m.scroll; i < end; i++ {
		t := mc.Trials[i]
		conv := "yes"
		if !t.MeasuredConverged || !t.TruthConverged {
			conv = "no"
		}
		row := fmt.Sprintf("%-6d %-22d %-12s %-12s %-12s %-12s",
			t.Index, t.Seed,
			export.FormatDistance(t.MeasuredPositionError),
			fmt.Sprintf("%.3g m/s", t.MeasuredVelocityError),
			export.FormatDistance(t.TruthPositionError),
			conv)
		if conv == "no" {
			b.WriteString(warnStyle.Render(row))
		} else {
			b.WriteString(rowStyle.Render(row))
		}
		b.WriteString("\n")
	}
	if len(mc.Trials) > maxRows {
		b.WriteString(fmt.Sprintf("\n  Showing %d-%d of %d trials", m.scroll+1, end, len(mc.Trials)))
	}
	return b.String()
}

// interpolateErrColor returns RGB color for a relative error t in [0, 1].
func interpolateErrColor(t float64) (uint8, uint8, uint8) {
	if t < 0 {
		t = 0
	}
	if t > 1 {
		t = 1
	}

	lo, hi := errColorLow, errColorMid
	s := t * 2
	if t >= 0.5 {
		lo, hi = errColorMid, errColorHigh
		s = (t - 0.5) * 2
	}
	r := uint8(float64(lo[0])*(1-s) + float64(hi[0])*s)
	g := uint8(float64(lo[1])*(1-s) + float64(hi[1])*s)
	b := uint8(float64(lo[2])*(1-s) + float64(hi[2])*s)
	return r, g, b
}

// resample reduces vals to at most width buckets, keeping the largest value
// of each bucket.
func resample(vals []float64, width int) []float64 {
	if len(vals) == 0 || width <= 0 {
		return nil
	}
	if len(vals) <= width {
		return append([]float64(nil), vals...)
	}

	result := make([]float64, width)
	perBucket := float64(len(vals)) / float64(width)
	for i := 0; i < width; i++ {
		start := int(float64(i) * perBucket)
		end := int(float64(i+1) * perBucket)
		end = max(min(end, len(vals)), start+1)
		for _, v := range vals[start:end] {
			result[i] = max(result[i], v)
		}
	}
	return result
}
