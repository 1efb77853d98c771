package ui

import (
	"fmt"
	"math"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/litescript/ls-tdoa/internal/caf"
	"github.com/litescript/ls-tdoa/internal/export"
	"github.com/litescript/ls-tdoa/internal/sim"
	"github.com/litescript/ls-tdoa/internal/state"
)

// ScaleMode selects how magnitudes map to shades.
type ScaleMode int

const (
	ScaleLinear ScaleMode = iota
	ScaleDB
)

func (s ScaleMode) String() string {
	if s == ScaleDB {
		return "dB"
	}
	return "linear"
}

// dbFloor is the lowest level drawn in dB mode, relative to the peak.
const dbFloor = -30.0

// heatShades run from empty to peak.
var heatShades = []rune{' ', '·', '░', '▒', '▓', '█'}

// heatColors match heatShades.
var heatColors = []string{"235", "238", "61", "99", "141", "229"}

// AmbiguityModel renders the window of the cross-ambiguity surface kept
// around each pair's peak.
type AmbiguityModel struct {
	width  int
	height int

	pairs    []sim.Pair
	focusIdx int
	scale    ScaleMode
}

// NewAmbiguityModel creates a new ambiguity view model.
func NewAmbiguityModel() AmbiguityModel {
	return AmbiguityModel{scale: ScaleDB}
}

// SetSize updates the viewport size.
func (m AmbiguityModel) SetSize(width, height int) AmbiguityModel {
	m.width = width
	m.height = height
	return m
}

// UpdateData updates with new data snapshot.
func (m AmbiguityModel) UpdateData(snapshot state.Snapshot) AmbiguityModel {
	m.pairs = nil
	if snapshot.Result != nil {
		m.pairs = snapshot.Result.Pairs
	}
	if m.focusIdx >= len(m.pairs) {
		m.focusIdx = 0
	}
	return m
}

// SyncFromDashboard focuses the pair selected on the dashboard.
func (m AmbiguityModel) SyncFromDashboard(dash DashboardModel) AmbiguityModel {
	m = m.UpdateData(dash.snapshot)
	if p := dash.SelectedPair(); p != nil {
		return m.SetFocusReceiver(p.Receiver)
	}
	return m
}

// SetFocusReceiver focuses the pair against receiver rx, if present.
func (m AmbiguityModel) SetFocusReceiver(rx int) AmbiguityModel {
	for i, p := range m.pairs {
		if p.Receiver == rx {
			m.focusIdx = i
			break
		}
	}
	return m
}

// Update handles messages.
func (m AmbiguityModel) Update(msg tea.Msg) (AmbiguityModel, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		n := len(m.pairs)
		switch msg.String() {
		case "up", "k":
			if n > 0 {
				m.focusIdx = (m.focusIdx - 1 + n) % n
			}
		case "down", "j":
			if n > 0 {
				m.focusIdx = (m.focusIdx + 1) % n
			}
		case "l":
			if m.scale == ScaleDB {
				m.scale = ScaleLinear
			} else {
				m.scale = ScaleDB
			}
		}
	}
	return m, nil
}

// FocusedPair returns the pair being drawn, if any.
func (m AmbiguityModel) FocusedPair() *sim.Pair {
	if m.focusIdx < 0 || m.focusIdx >= len(m.pairs) {
		return nil
	}
	p := m.pairs[m.focusIdx]
	return &p
}

// View renders the ambiguity view.
func (m AmbiguityModel) View() string {
	p := m.FocusedPair()
	if p == nil {
		return "No correlation surfaces yet"
	}
	if len(p.Window.Mags) == 0 {
		return fmt.Sprintf("Pair 0-%d has no surface window", p.Receiver)
	}

	var b strings.Builder
	b.WriteString(m.renderHeader(p))
	b.WriteString("\n")
	b.WriteString(m.renderHeatMap(p.Window))
	b.WriteString(m.renderLegend())
	return b.String()
}

func (m AmbiguityModel) renderHeader(p *sim.Pair) string {
	headerStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("205")).Bold(true)
	valueStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("252"))
	dimStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("240"))

	var b strings.Builder
	b.WriteString(headerStyle.Render(fmt.Sprintf("Pair 0-%d", p.Receiver)))
	b.WriteString(dimStyle.Render(fmt.Sprintf("  (%d/%d)", m.focusIdx+1, len(m.pairs))))
	b.WriteString("  ")
	b.WriteString(valueStyle.Render(fmt.Sprintf("peak lag %d  TDOA %s  FDOA %s  peak/median %s",
		p.TimeShift, export.FormatTime(p.TDOA), export.FormatFrequency(p.FDOA), export.FormatRatio(p.Confidence))))
	b.WriteString("\n")
	return b.String()
}

// renderHeatMap draws frequency shifts as rows and time shifts as columns,
// striding over cells when the window is larger than the viewport.
func (m AmbiguityModel) renderHeatMap(w caf.Window) string {
	rows := len(w.Mags)
	cols := len(w.Mags[0])

	const labelW = 12
	maxCols := max(m.width-labelW-2, 10)
	maxRows := max(m.height-8, 5)
	colStep := (cols + maxCols - 1) / maxCols
	rowStep := (rows + maxRows - 1) / maxRows

	peak := 0.0
	for _, line := range w.Mags {
		for _, v := range line {
			peak = math.Max(peak, v)
		}
	}

	dimStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("244"))
	var b strings.Builder

	// Highest frequency shift on top
	for r := rows - 1; r >= 0; r -= rowStep {
		label := ""
		if r < len(w.FreqShifts) {
			label = fmt.Sprintf("%+.2e", w.FreqShifts[r])
		}
		b.WriteString(dimStyle.Render(fmt.Sprintf("%*s ", labelW, label)))
		for c := 0; c < cols; c += colStep {
			// Max over the strided block keeps a narrow peak visible
			v := 0.0
			for rr := r; rr > r-rowStep && rr >= 0; rr-- {
				for cc := c; cc < c+colStep && cc < cols; cc++ {
					v = math.Max(v, w.Mags[rr][cc])
				}
			}
			idx := m.shadeIndex(v, peak)
			style := lipgloss.NewStyle().Foreground(lipgloss.Color(heatColors[idx]))
			b.WriteString(style.Render(string(heatShades[idx])))
		}
		b.WriteString("\n")
	}

	if len(w.TimeShifts) > 0 {
		first, last := w.TimeShifts[0], w.TimeShifts[len(w.TimeShifts)-1]
		axis := fmt.Sprintf("%*s lag %d … %d samples", labelW, "", first, last)
		b.WriteString(dimStyle.Render(axis))
		b.WriteString("\n")
	}
	return b.String()
}

// shadeIndex maps a magnitude to an index into heatShades.
func (m AmbiguityModel) shadeIndex(v, peak float64) int {
	if peak <= 0 || v <= 0 {
		return 0
	}
	top := len(heatShades) - 1
	var frac float64
	if m.scale == ScaleDB {
		db := 20 * math.Log10(v/peak)
		if db <= dbFloor {
			return 0
		}
		frac = 1 - db/dbFloor
	} else {
		frac = v / peak
	}
	idx := int(math.Ceil(frac * float64(top)))
	return max(min(idx, top), 0)
}

func (m AmbiguityModel) renderLegend() string {
	dimStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("240"))
	var b strings.Builder
	b.WriteString(dimStyle.Render("Scale: " + m.scale.String() + "  "))
	for i, r := range heatShades {
		style := lipgloss.NewStyle().Foreground(lipgloss.Color(heatColors[i]))
		b.WriteString(style.Render(string(r)))
	}
	if m.scale == ScaleDB {
		b.WriteString(dimStyle.Render(fmt.Sprintf("  %.0f dB … 0 dB", dbFloor)))
	}
	return b.String()
}

// Scale returns the shading mode.
func (m AmbiguityModel) Scale() ScaleMode {
	return m.scale
}
