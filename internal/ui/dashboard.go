package ui

import (
	"fmt"
	"math"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/litescript/ls-tdoa/internal/export"
	"github.com/litescript/ls-tdoa/internal/sim"
	"github.com/litescript/ls-tdoa/internal/state"
)

// Styles for the dashboard
var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("205"))

	headerStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("39")).
			Background(lipgloss.Color("235")).
			Padding(0, 1)

	rowStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("252"))

	selectedRowStyle = lipgloss.NewStyle().
				Foreground(lipgloss.Color("229")).
				Background(lipgloss.Color("57"))

	labelStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("244")).
			Width(10)

	goodStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#7CFC00"))

	warnStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FFD700"))

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("196"))
)

// confidenceFull is the peak-to-median ratio drawn as a full bar.
const confidenceFull = 50.0

// DashboardModel shows the latest run: estimates, per-pair measurements and
// recent events.
type DashboardModel struct {
	width    int
	height   int
	cursor   int
	snapshot state.Snapshot
	lastErr  error
}

// NewDashboardModel creates a new dashboard model.
func NewDashboardModel() DashboardModel {
	return DashboardModel{}
}

// Init implements the Bubble Tea model interface.
func (m DashboardModel) Init() tea.Cmd {
	return nil
}

// SetSize updates the viewport size.
func (m DashboardModel) SetSize(width, height int) DashboardModel {
	m.width = width
	m.height = height
	return m
}

// UpdateData updates the model with new data.
func (m DashboardModel) UpdateData(snapshot state.Snapshot) DashboardModel {
	m.snapshot = snapshot
	if n := m.pairCount(); m.cursor >= n {
		m.cursor = max(n-1, 0)
	}
	return m
}

// SetError sets the last error for display.
func (m DashboardModel) SetError(err error) DashboardModel {
	m.lastErr = err
	return m
}

func (m DashboardModel) pairCount() int {
	if m.snapshot.Result == nil {
		return 0
	}
	return len(m.snapshot.Result.Pairs)
}

// Update handles messages.
func (m DashboardModel) Update(msg tea.Msg) (DashboardModel, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		n := m.pairCount()
		switch msg.String() {
		case "up", "k":
			if m.cursor > 0 {
				m.cursor--
			}
		case "down", "j":
			if m.cursor < n-1 {
				m.cursor++
			}
		case "home":
			m.cursor = 0
		case "end":
			if n > 0 {
				m.cursor = n - 1
			}
		case "enter":
			if p := m.SelectedPair(); p != nil {
				rx := p.Receiver
				return m, func() tea.Msg { return DashboardOpenPairMsg{Receiver: rx} }
			}
		}
	}
	return m, nil
}

// View renders the dashboard.
func (m DashboardModel) View() string {
	var b strings.Builder

	if m.lastErr != nil {
		b.WriteString(errorStyle.Render("Error: " + m.lastErr.Error()))
		b.WriteString("\n\n")
	}

	res := m.snapshot.Result
	if res == nil {
		if m.lastErr == nil {
			b.WriteString("Waiting for a simulation run...\n")
		}
		return b.String()
	}

	b.WriteString(m.renderScenario(res))
	b.WriteString("\n")
	b.WriteString(m.renderEstimates(res))
	b.WriteString("\n")
	b.WriteString(m.renderPairsTable(res))
	if events := m.renderEvents(); events != "" {
		b.WriteString("\n")
		b.WriteString(events)
	}
	return b.String()
}

func (m DashboardModel) renderScenario(res *sim.Result) string {
	var b strings.Builder
	sc := res.Scenario

	b.WriteString(titleStyle.Render("Scenario"))
	b.WriteString(fmt.Sprintf("  run %s\n", shortID(res.RunID)))
	b.WriteString("  " + labelStyle.Render("Emitter") + vecString(res.EmitterPosition) +
		"  v " + vecString(res.EmitterVelocity) + " m/s\n")
	b.WriteString("  " + labelStyle.Render("Signal") + fmt.Sprintf("%d bits, %d samples @ %s, carrier %s\n",
		len(res.Message), res.Samples, export.FormatFrequency(sc.SampleRate), export.FormatFrequency(sc.Frequency)))
	b.WriteString("  " + labelStyle.Render("Correlator") + fmt.Sprintf("%s, seed %d", sc.Algorithm, sc.Seed))
	if sc.Noiseless {
		b.WriteString(", noiseless")
	}
	b.WriteString("\n")
	return b.String()
}

func (m DashboardModel) renderEstimates(res *sim.Result) string {
	var b strings.Builder
	b.WriteString(titleStyle.Render("Estimates"))
	b.WriteString("\n")

	for _, e := range []struct {
		label string
		est   sim.Estimate
	}{{"Measured", res.Measured}, {"Truth", res.Truth}} {
		status := "-"
		if s := e.est.Solve; s != nil {
			if s.Converged() {
				status = goodStyle.Render(s.Status.String())
			} else {
				status = warnStyle.Render(s.Status.String())
			}
		}
		b.WriteString(fmt.Sprintf("  %s%s  err %s  %s\n",
			labelStyle.Render(e.label), vecString(e.est.Position),
			m.renderError(e.est.PositionError), status))
		if e.est.Geodetic != nil {
			g := e.est.Geodetic
			b.WriteString(fmt.Sprintf("  %s%.6f°, %.6f°, %.1f m\n", labelStyle.Render(""), g.Lat, g.Lon, g.Alt))
		}
	}
	return b.String()
}

// renderError colors a position error by magnitude.
func (m DashboardModel) renderError(meters float64) string {
	s := export.FormatDistance(meters)
	switch {
	case meters < 1:
		return goodStyle.Render(s)
	case meters < 100:
		return warnStyle.Render(s)
	default:
		return errorStyle.Render(s)
	}
}

func (m DashboardModel) renderPairsTable(res *sim.Result) string {
	var b strings.Builder

	b.WriteString(titleStyle.Render("Receiver Pairs"))
	b.WriteString("\n")

	header := fmt.Sprintf("%-6s %-7s %-11s %-11s %-12s %-12s %-12s",
		"Pair", "Lag", "TDOA", "True", "FDOA", "True", "Confidence")
	b.WriteString(headerStyle.Render(header))
	b.WriteString("\n")

	if len(res.Pairs) == 0 {
		b.WriteString("  No pairs\n")
		return b.String()
	}

	maxRows := m.height - 16
	if maxRows < 3 {
		maxRows = 3
	}
	startIdx := 0
	if m.cursor >= maxRows {
		startIdx = m.cursor - maxRows + 1
	}
	endIdx := min(startIdx+maxRows, len(res.Pairs))

	for i := startIdx; i < endIdx; i++ {
		p := res.Pairs[i]
		row := fmt.Sprintf("%-6s %-7d %-11s %-11s %-12s %-12s %s %s",
			fmt.Sprintf("0-%d", p.Receiver),
			p.TimeShift,
			export.FormatTime(p.TDOA),
			export.FormatTime(res.TrueTDOA[p.Receiver]),
			export.FormatFrequency(p.FDOA),
			export.FormatFrequency(res.TrueFDOA[p.Receiver]),
			m.renderConfidenceBar(p.Confidence, 8),
			export.FormatRatio(p.Confidence),
		)
		if i == m.cursor {
			b.WriteString(selectedRowStyle.Render(row))
		} else {
			b.WriteString(rowStyle.Render(row))
		}
		b.WriteString("\n")
	}

	if len(res.Pairs) > maxRows {
		b.WriteString(fmt.Sprintf("\n  Showing %d-%d of %d pairs", startIdx+1, endIdx, len(res.Pairs)))
	}
	return b.String()
}

// renderConfidenceBar draws the peak-to-median ratio on a log scale up to
// confidenceFull.
func (m DashboardModel) renderConfidenceBar(conf float64, width int) string {
	var frac float64
	switch {
	case math.IsInf(conf, 1):
		frac = 1
	case conf > 1:
		frac = math.Log(conf) / math.Log(confidenceFull)
	}
	filled := int(frac * float64(width))
	if filled > width {
		filled = width
	}
	if filled < 0 {
		filled = 0
	}

	bar := strings.Repeat("█", filled) + strings.Repeat("░", width-filled)
	style := lipgloss.NewStyle().Foreground(lipgloss.Color("#9D4EDD"))
	return "[" + style.Render(bar) + "]"
}

func (m DashboardModel) renderEvents() string {
	events := m.snapshot.Events
	if len(events) == 0 {
		return ""
	}
	const maxEvents = 5
	if len(events) > maxEvents {
		events = events[len(events)-maxEvents:]
	}

	dimStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("240"))
	var b strings.Builder
	b.WriteString(titleStyle.Render("Events"))
	b.WriteString("\n")
	for i := len(events) - 1; i >= 0; i-- {
		e := events[i]
		line := fmt.Sprintf("  %s %-14s %s", e.Timestamp.Format("15:04:05"), e.Type, truncate(e.Detail, max(m.width-30, 20)))
		switch e.Type {
		case state.EventRunFailed, state.EventNotConverged:
			b.WriteString(warnStyle.Render(line))
		default:
			b.WriteString(dimStyle.Render(line))
		}
		b.WriteString("\n")
	}
	return b.String()
}

// SelectedPair returns the pair under the cursor, if any.
func (m DashboardModel) SelectedPair() *sim.Pair {
	if m.cursor < 0 || m.cursor >= m.pairCount() {
		return nil
	}
	p := m.snapshot.Result.Pairs[m.cursor]
	return &p
}

func vecString(v []float64) string {
	if len(v) == 0 {
		return "-"
	}
	parts := make([]string, len(v))
	for i, c := range v {
		parts[i] = fmt.Sprintf("%.1f", c)
	}
	return "(" + strings.Join(parts, ", ") + ")"
}

func shortID(id string) string {
	if len(id) < 8 {
		return id
	}
	return id[:8]
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	if maxLen <= 3 {
		return s[:maxLen]
	}
	return s[:maxLen-3] + "..."
}
