// Package ui provides the terminal user interface using Bubble Tea.
package ui

import (
	"fmt"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/litescript/ls-tdoa/internal/state"
	"github.com/litescript/ls-tdoa/internal/version"
)

// ViewMode represents the current UI view.
type ViewMode int

const (
	ViewDashboard ViewMode = iota
	ViewGeometry
	ViewAmbiguity
	ViewMonteCarlo
	numViews
)

// Msg types for Bubble Tea
type (
	// TickMsg triggers periodic UI updates.
	TickMsg time.Time

	// AnimTickMsg triggers fast animation updates.
	AnimTickMsg time.Time

	// DataUpdateMsg signals a new run is available.
	DataUpdateMsg struct {
		Snapshot state.Snapshot
	}

	// ErrorMsg signals a failed run.
	ErrorMsg struct {
		Error error
	}

	// DashboardOpenPairMsg requests the ambiguity view for a receiver pair.
	DashboardOpenPairMsg struct {
		Receiver int
	}

	// rerunDoneMsg reports that a requested rerun finished.
	rerunDoneMsg struct {
		err error
	}
)

// RerunFunc runs the scenario again and records the outcome in the state
// manager. It is called off the UI goroutine.
type RerunFunc func() error

// Model is the root Bubble Tea model.
type Model struct {
	// Dependencies
	state *state.Manager
	rerun RerunFunc

	// UI state
	viewMode  ViewMode
	width     int
	height    int
	ready     bool
	statusMsg string
	animTick  int
	running   bool
	watch     bool
	lastRerun time.Time

	// Sub-models
	dashboard  DashboardModel
	geometry   GeometryModel
	ambiguity  AmbiguityModel
	monteCarlo MonteCarloModel

	snapshot state.Snapshot
}

// New creates a new root UI model. rerun may be nil, which disables the
// rerun and watch keys.
func New(stateMgr *state.Manager, rerun RerunFunc) Model {
	m := Model{
		state:      stateMgr,
		rerun:      rerun,
		viewMode:   ViewDashboard,
		dashboard:  NewDashboardModel(),
		geometry:   NewGeometryModel(),
		ambiguity:  NewAmbiguityModel(),
		monteCarlo: NewMonteCarloModel(),
	}
	if stateMgr != nil {
		m.snapshot = stateMgr.Snapshot()
		m = m.pushSnapshot()
		if m.snapshot.Result == nil && (m.snapshot.MonteCarlo != nil || m.snapshot.Progress.Total > 0) {
			m.viewMode = ViewMonteCarlo
		}
	}
	return m
}

// Init implements tea.Model.
func (m Model) Init() tea.Cmd {
	return tea.Batch(
		tickCmd(),
		animTickCmd(),
		m.dashboard.Init(),
	)
}

// Update implements tea.Model.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			return m, tea.Quit

		case "1", "d":
			m.viewMode = ViewDashboard
		case "2", "g":
			m.viewMode = ViewGeometry
		case "3", "a":
			m.viewMode = ViewAmbiguity
			m.ambiguity = m.ambiguity.SyncFromDashboard(m.dashboard)
		case "4", "m":
			m.viewMode = ViewMonteCarlo

		case "tab":
			m.viewMode = (m.viewMode + 1) % numViews

		case "r":
			if cmd := m.startRerun(); cmd != nil {
				cmds = append(cmds, cmd)
			}
		case "w":
			if m.rerun != nil && m.state != nil {
				m.watch = !m.watch
				if m.watch {
					m.statusMsg = fmt.Sprintf("Watch on: rerun every %s", m.state.RefreshInterval())
				} else {
					m.statusMsg = "Watch off"
				}
			}

		default:
			cmds = append(cmds, m.updateActiveView(msg))
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.ready = true

		// Logo ~6 lines, tabs 1, footer ~2
		contentHeight := msg.Height - 10
		m.dashboard = m.dashboard.SetSize(msg.Width, contentHeight)
		m.geometry = m.geometry.SetSize(msg.Width, contentHeight)
		m.ambiguity = m.ambiguity.SetSize(msg.Width, contentHeight)
		m.monteCarlo = m.monteCarlo.SetSize(msg.Width, contentHeight)

	case TickMsg:
		cmds = append(cmds, tickCmd())
		if m.state != nil {
			m.snapshot = m.state.Snapshot()
			m = m.pushSnapshot()
			if m.watch && !m.running && time.Since(m.lastRerun) >= m.state.RefreshInterval() {
				if cmd := m.startRerun(); cmd != nil {
					cmds = append(cmds, cmd)
				}
			}
		}

	case AnimTickMsg:
		cmds = append(cmds, animTickCmd())
		m.animTick++
		m.monteCarlo = m.monteCarlo.SetAnimTick(m.animTick)

	case DataUpdateMsg:
		m.snapshot = msg.Snapshot
		m = m.pushSnapshot()

	case rerunDoneMsg:
		m.running = false
		if msg.err != nil {
			m.statusMsg = "Rerun failed: " + msg.err.Error()
		} else {
			m.statusMsg = ""
		}
		if m.state != nil {
			m.snapshot = m.state.Snapshot()
			m = m.pushSnapshot()
		}

	case DashboardOpenPairMsg:
		m.ambiguity = m.ambiguity.SetFocusReceiver(msg.Receiver)
		m.viewMode = ViewAmbiguity

	case ErrorMsg:
		m.dashboard = m.dashboard.SetError(msg.Error)

	default:
		cmds = append(cmds, m.updateActiveView(msg))
	}

	return m, tea.Batch(cmds...)
}

// pushSnapshot hands the current snapshot to every sub-model.
func (m Model) pushSnapshot() Model {
	m.dashboard = m.dashboard.UpdateData(m.snapshot)
	m.geometry = m.geometry.UpdateData(m.snapshot)
	m.ambiguity = m.ambiguity.UpdateData(m.snapshot)
	m.monteCarlo = m.monteCarlo.UpdateData(m.snapshot)
	return m
}

func (m *Model) startRerun() tea.Cmd {
	if m.rerun == nil || m.running {
		return nil
	}
	m.running = true
	m.lastRerun = time.Now()
	m.statusMsg = "Running..."
	run := m.rerun
	return func() tea.Msg {
		return rerunDoneMsg{err: run()}
	}
}

func (m *Model) updateActiveView(msg tea.Msg) tea.Cmd {
	var cmd tea.Cmd
	switch m.viewMode {
	case ViewDashboard:
		m.dashboard, cmd = m.dashboard.Update(msg)
	case ViewGeometry:
		m.geometry, cmd = m.geometry.Update(msg)
	case ViewAmbiguity:
		m.ambiguity, cmd = m.ambiguity.Update(msg)
	case ViewMonteCarlo:
		m.monteCarlo, cmd = m.monteCarlo.Update(msg)
	}
	return cmd
}

// View implements tea.Model.
func (m Model) View() string {
	if !m.ready {
		return "Initializing..."
	}

	var content string
	switch m.viewMode {
	case ViewDashboard:
		content = m.dashboard.View()
	case ViewGeometry:
		content = m.geometry.View()
	case ViewAmbiguity:
		content = m.ambiguity.View()
	case ViewMonteCarlo:
		content = m.monteCarlo.View()
	}

	return m.renderFrame(content)
}

func (m Model) renderFrame(content string) string {
	return m.renderHeader() + "\n" + content + "\n" + m.renderFooter()
}

func (m Model) renderHeader() string {
	return m.renderLogo() + m.renderTabs() + "\n"
}

func (m Model) renderLogo() string {
	logo := []string{
		`  ╦  ╔═╗   ╔╦╗╔╦╗╔═╗╔═╗`,
		`  ║  ╚═╗ ─  ║  ║║║ ║╠═╣`,
		`  ╩═╝╚═╝    ╩ ═╩╝╚═╝╩ ╩`,
	}

	var b strings.Builder
	b.WriteString("\n")

	for row, line := range logo {
		runes := []rune(line)
		for col, r := range runes {
			color := gradientColor(col, row, len(runes), len(logo))
			b.WriteString(lipgloss.NewStyle().Foreground(lipgloss.Color(color)).Render(string(r)))
		}
		b.WriteString("\n")
	}

	muted := lipgloss.NewStyle().Foreground(lipgloss.Color("60"))
	b.WriteString(muted.Render(fmt.Sprintf("  Emitter geolocation · TDOA/FDOA · v%s", version.Version)))
	b.WriteString("\n\n")

	return b.String()
}

// gradientColor returns a hex color for a position in the logo gradient:
// blue to purple to magenta, fading toward the bottom.
func gradientColor(col, row, width, height int) string {
	xRatio := float64(col) / float64(width)
	yRatio := float64(row) / float64(height)

	var r, g, b float64
	if xRatio < 0.5 {
		t := xRatio / 0.5
		r = 59 + t*(139-59)
		g = 130 + t*(92-130)
		b = 246
	} else {
		t := (xRatio - 0.5) / 0.5
		r = 139 + t*(217-139)
		g = 92 + t*(70-92)
		b = 246 + t*(239-246)
	}

	f := 1.0 - yRatio*0.5
	return fmt.Sprintf("#%02X%02X%02X", clampByte(r*f), clampByte(g*f), clampByte(b*f))
}

func clampByte(v float64) int {
	switch {
	case v < 0:
		return 0
	case v > 255:
		return 255
	default:
		return int(v)
	}
}

func (m Model) renderTabs() string {
	tabs := []string{"[1] Dashboard", "[2] Geometry", "[3] Ambiguity", "[4] Monte Carlo"}
	activeStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("#9D4EDD")).Bold(true)
	dimStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("60"))

	var parts []string
	for i, tab := range tabs {
		if ViewMode(i) == m.viewMode {
			parts = append(parts, activeStyle.Render("▶ "+tab))
		} else {
			parts = append(parts, dimStyle.Render("  "+tab))
		}
	}
	return "  " + strings.Join(parts, "  ")
}

func (m Model) renderFooter() string {
	dimStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("60"))
	errorStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("#E84A27"))
	accentStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("#7B2CBF"))

	spinnerFrames := []string{"⠋", "⠙", "⠹", "⠸", "⠼", "⠴", "⠦", "⠧", "⠇", "⠏"}
	spinner := spinnerFrames[m.animTick%len(spinnerFrames)]

	var status string
	switch {
	case m.snapshot.LastError != nil:
		status = errorStyle.Render("ERROR: " + m.snapshot.LastError.Error())
	case m.running:
		status = accentStyle.Render(spinner) + " " + m.renderShimmerText("Running scenario...")
	case !m.snapshot.LastRun.IsZero():
		status = dimStyle.Render(fmt.Sprintf("%d runs, last took %s",
			m.snapshot.RunCount, m.snapshot.RunDuration.Round(time.Millisecond)))
		if m.watch {
			status = accentStyle.Render(spinner) + " " + status
		}
	default:
		status = accentStyle.Render(spinner) + " " + m.renderShimmerText("Waiting for results...")
	}

	var help string
	switch m.viewMode {
	case ViewGeometry:
		help = "+/-: zoom | arrows: pan | c: center | z: plane"
	case ViewAmbiguity:
		help = "j/k: pair | l: scale"
	case ViewMonteCarlo:
		help = "↑↓: scroll trials"
	default:
		help = "↑↓: select pair | enter: ambiguity | tab: switch view"
	}
	if m.rerun != nil {
		help += " | r: rerun | w: watch"
	}

	footer := "  " + status + "  " + dimStyle.Render("|") + "  " + dimStyle.Render(help)
	if m.statusMsg != "" {
		footer += "\n  " + dimStyle.Render(m.statusMsg)
	}
	return footer
}

func tickCmd() tea.Cmd {
	return tea.Tick(500*time.Millisecond, func(t time.Time) tea.Msg {
		return TickMsg(t)
	})
}

func animTickCmd() tea.Cmd {
	return tea.Tick(80*time.Millisecond, func(t time.Time) tea.Msg {
		return AnimTickMsg(t)
	})
}

// SendDataUpdate creates a command that sends a data update message.
func SendDataUpdate(snapshot state.Snapshot) tea.Cmd {
	return func() tea.Msg {
		return DataUpdateMsg{Snapshot: snapshot}
	}
}

// SendError creates a command that sends an error message.
func SendError(err error) tea.Cmd {
	return func() tea.Msg {
		return ErrorMsg{Error: err}
	}
}

// renderShimmerText renders text with a subtle moving shine effect.
func (m Model) renderShimmerText(text string) string {
	runes := []rune(text)
	if len(runes) == 0 {
		return ""
	}

	pos := m.animTick % (len(runes) + 8)

	var b strings.Builder
	for i, r := range runes {
		dist := i - pos + 4
		if dist < 0 {
			dist = -dist
		}
		gray := 96
		if dist < 4 {
			gray = 200 - dist*26
		}
		color := fmt.Sprintf("#%02X%02X%02X", gray, gray-16, gray+24)
		b.WriteString(lipgloss.NewStyle().Foreground(lipgloss.Color(color)).Render(string(r)))
	}
	return b.String()
}

// Run starts the TUI and blocks until the user quits.
func Run(stateMgr *state.Manager, rerun RerunFunc) error {
	p := tea.NewProgram(New(stateMgr, rerun), tea.WithAltScreen())
	_, err := p.Run()
	return err
}
