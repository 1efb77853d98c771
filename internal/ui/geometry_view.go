package ui

import (
	"fmt"
	"math"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"gonum.org/v1/gonum/mat"

	"github.com/litescript/ls-tdoa/internal/export"
	"github.com/litescript/ls-tdoa/internal/geom"
	"github.com/litescript/ls-tdoa/internal/sim"
	"github.com/litescript/ls-tdoa/internal/solver"
	"github.com/litescript/ls-tdoa/internal/state"
)

// Plane selects the two Cartesian axes projected onto the screen.
type Plane int

const (
	PlaneXY Plane = iota
	PlaneXZ
	PlaneYZ
	numPlanes
)

func (p Plane) String() string {
	switch p {
	case PlaneXZ:
		return "x-z"
	case PlaneYZ:
		return "y-z"
	default:
		return "x-y"
	}
}

// axes returns the vector indices drawn horizontally and vertically.
func (p Plane) axes() (int, int) {
	switch p {
	case PlaneXZ:
		return 0, 2
	case PlaneYZ:
		return 1, 2
	default:
		return 0, 1
	}
}

// Geometry glyphs
const (
	glyphReceiver = '▲'
	glyphEmitter  = '★'
	glyphMeasured = '◆'
	glyphTruth    = '◇'
	glyphEllipse  = '·'
)

// Discrete zoom levels for clean stepping
var zoomLevels = []float64{0.25, 0.5, 0.75, 1.0, 1.5, 2.0, 3.0, 5.0, 10.0}

const defaultZoom = 3 // index of 1.0

// GeometryModel renders receivers, the true emitter and the estimates
// projected onto one coordinate plane.
type GeometryModel struct {
	width    int
	height   int
	snapshot state.Snapshot

	// View state
	zoomLevel int
	panX      float64 // fraction of the scene extent
	panY      float64
	plane     Plane
}

// NewGeometryModel creates a new geometry view model.
func NewGeometryModel() GeometryModel {
	return GeometryModel{zoomLevel: defaultZoom}
}

// scale returns the current zoom scale.
func (m GeometryModel) scale() float64 {
	if m.zoomLevel < 0 || m.zoomLevel >= len(zoomLevels) {
		return 1.0
	}
	return zoomLevels[m.zoomLevel]
}

// SetSize updates the viewport size.
func (m GeometryModel) SetSize(width, height int) GeometryModel {
	m.width = width
	m.height = height
	return m
}

// UpdateData updates the model with new data.
func (m GeometryModel) UpdateData(snapshot state.Snapshot) GeometryModel {
	m.snapshot = snapshot
	return m
}

// Update handles input messages.
func (m GeometryModel) Update(msg tea.Msg) (GeometryModel, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "up":
			m.panY -= 0.1 / m.scale()
		case "down":
			m.panY += 0.1 / m.scale()
		case "left":
			m.panX += 0.1 / m.scale()
		case "right":
			m.panX -= 0.1 / m.scale()
		case "c":
			m.panX, m.panY = 0, 0
		case "+", "=":
			if m.zoomLevel < len(zoomLevels)-1 {
				m.zoomLevel++
			}
		case "-":
			if m.zoomLevel > 0 {
				m.zoomLevel--
			}
		case "0":
			m.zoomLevel = defaultZoom
		case "z":
			m.plane = (m.plane + 1) % numPlanes
		}
	}
	return m, nil
}

// View renders the geometry view.
func (m GeometryModel) View() string {
	if m.width < 40 || m.height < 10 {
		return "Terminal too small for geometry view"
	}
	res := m.snapshot.Result
	if res == nil {
		return "No geometry yet"
	}
	return lipgloss.JoinVertical(lipgloss.Left, m.buildCanvas(res), m.renderHUD(res))
}

// projection maps scene meters to canvas cells.
type projection struct {
	cx, cy   float64 // scene center, meters
	cellsPer float64 // horizontal cells per meter
	w, h     int
}

// toScreen returns the cell for a scene point. Terminal cells are about
// twice as tall as wide, so vertical distances are halved.
func (p projection) toScreen(x, y float64) (int, int, bool) {
	sx := p.w/2 + int(math.Round((x-p.cx)*p.cellsPer))
	sy := p.h/2 - int(math.Round((y-p.cy)*p.cellsPer*0.5))
	return sx, sy, sx >= 0 && sx < p.w && sy >= 0 && sy < p.h
}

// sceneProjection fits every receiver, the emitter and the estimates into
// the canvas, then applies zoom and pan.
func (m GeometryModel) sceneProjection(res *sim.Result, w, h int) projection {
	ax, ay := m.plane.axes()

	var pts []geom.Vec
	pts = append(pts, res.Receivers...)
	pts = append(pts, res.EmitterPosition, res.Measured.Position, res.Truth.Position)

	minX, maxX := math.Inf(1), math.Inf(-1)
	minY, maxY := math.Inf(1), math.Inf(-1)
	for _, p := range pts {
		if len(p) <= ay || !finitePair(p[ax], p[ay]) {
			continue
		}
		minX, maxX = math.Min(minX, p[ax]), math.Max(maxX, p[ax])
		minY, maxY = math.Min(minY, p[ay]), math.Max(maxY, p[ay])
	}
	if math.IsInf(minX, 1) {
		minX, maxX, minY, maxY = -1, 1, -1, 1
	}

	extent := math.Max(maxX-minX, maxY-minY)
	if extent <= 0 {
		extent = 1
	}
	// 10% margin; vertical fit accounts for the halved aspect
	fit := math.Min(float64(w)/(maxX-minX+0.2*extent), 2*float64(h)/(maxY-minY+0.2*extent))
	if math.IsInf(fit, 0) || fit <= 0 {
		fit = float64(w) / extent
	}

	return projection{
		cx:       (minX+maxX)/2 - m.panX*extent,
		cy:       (minY+maxY)/2 + m.panY*extent,
		cellsPer: fit * m.scale(),
		w:        w,
		h:        h,
	}
}

func finitePair(a, b float64) bool {
	return !math.IsNaN(a) && !math.IsInf(a, 0) && !math.IsNaN(b) && !math.IsInf(b, 0)
}

// buildCanvas renders the scene to a string canvas.
func (m GeometryModel) buildCanvas(res *sim.Result) string {
	// Reserve space for HUD (3 lines)
	canvasH := m.height - 5
	if canvasH < 5 {
		canvasH = 5
	}
	canvasW := m.width

	grid := make([][]rune, canvasH)
	for y := range grid {
		grid[y] = make([]rune, canvasW)
		for x := range grid[y] {
			grid[y][x] = ' '
		}
	}

	proj := m.sceneProjection(res, canvasW, canvasH)
	ax, ay := m.plane.axes()

	// Ellipse first so markers draw over it
	if s := res.Measured.Solve; s != nil {
		m.drawEllipse(grid, proj, s, ax, ay)
	}

	put := func(p geom.Vec, glyph rune) (int, int, bool) {
		if len(p) <= ay {
			return 0, 0, false
		}
		sx, sy, ok := proj.toScreen(p[ax], p[ay])
		if ok {
			grid[sy][sx] = glyph
		}
		return sx, sy, ok
	}

	put(res.Truth.Position, glyphTruth)
	put(res.Measured.Position, glyphMeasured)
	put(res.EmitterPosition, glyphEmitter)

	for i, r := range res.Receivers {
		sx, sy, ok := put(r, glyphReceiver)
		if !ok {
			continue
		}
		label := fmt.Sprintf("R%d", i)
		for j, ch := range label {
			x := sx + 2 + j
			if x >= canvasW {
				break
			}
			if grid[sy][x] == ' ' || grid[sy][x] == glyphEllipse {
				grid[sy][x] = ch
			}
		}
	}

	return m.renderGrid(grid)
}

// drawEllipse traces the 95% confidence ellipse of the position marginal in
// the current plane.
func (m GeometryModel) drawEllipse(grid [][]rune, proj projection, s *solver.Result, ax, ay int) {
	if s.Covariance == nil || len(s.Position) <= ay {
		return
	}
	block := mat.NewSymDense(2, []float64{
		s.Covariance.At(ax, ax), s.Covariance.At(ax, ay),
		s.Covariance.At(ay, ax), s.Covariance.At(ay, ay),
	})
	el, err := solver.ErrorEllipsoid(block, 2, solver.Chi2Confidence95In2D)
	if err != nil {
		return
	}

	// Semi-axis length in cells bounds the trace resolution
	r := el.SemiAxes[1] * proj.cellsPer
	if r < 1 {
		return
	}
	steps := int(2 * math.Pi * r)
	steps = max(min(steps, 360), 16)

	for i := 0; i < steps; i++ {
		theta := 2 * math.Pi * float64(i) / float64(steps)
		u := el.SemiAxes[0] * math.Cos(theta)
		v := el.SemiAxes[1] * math.Sin(theta)
		x := s.Position[ax] + u*el.Axes.At(0, 0) + v*el.Axes.At(0, 1)
		y := s.Position[ay] + u*el.Axes.At(1, 0) + v*el.Axes.At(1, 1)
		if sx, sy, ok := proj.toScreen(x, y); ok && grid[sy][sx] == ' ' {
			grid[sy][sx] = glyphEllipse
		}
	}
}

func (m GeometryModel) renderGrid(grid [][]rune) string {
	var b strings.Builder

	dimStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("240"))
	rxStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("39"))
	emitterStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("220")).Bold(true)
	measuredStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("205")).Bold(true)
	truthStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("46"))
	labelStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("249"))

	for _, row := range grid {
		for _, ch := range row {
			var style lipgloss.Style
			switch ch {
			case ' ':
				b.WriteRune(ch)
				continue
			case glyphEllipse:
				style = dimStyle
			case glyphReceiver:
				style = rxStyle
			case glyphEmitter:
				style = emitterStyle
			case glyphMeasured:
				style = measuredStyle
			case glyphTruth:
				style = truthStyle
			default:
				style = labelStyle
			}
			b.WriteString(style.Render(string(ch)))
		}
		b.WriteRune('\n')
	}
	return b.String()
}

func (m GeometryModel) renderHUD(res *sim.Result) string {
	var b strings.Builder

	headerStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("205")).Bold(true)
	valueStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("252"))
	dimStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("240"))

	b.WriteString(headerStyle.Render(fmt.Sprintf("%c emitter %s", glyphEmitter, vecString(res.EmitterPosition))))
	b.WriteString("  ")
	b.WriteString(valueStyle.Render(fmt.Sprintf("%c measured %s err %s",
		glyphMeasured, vecString(res.Measured.Position), export.FormatDistance(res.Measured.PositionError))))
	b.WriteString("  ")
	b.WriteString(valueStyle.Render(fmt.Sprintf("%c truth err %s",
		glyphTruth, export.FormatDistance(res.Truth.PositionError))))
	b.WriteString("\n")

	b.WriteString(dimStyle.Render("Plane:"))
	b.WriteString(valueStyle.Render(m.plane.String()))
	b.WriteString("  ")
	b.WriteString(dimStyle.Render("Zoom:"))
	b.WriteString(valueStyle.Render(fmt.Sprintf("%.2gx", m.scale())))
	b.WriteString("  ")
	b.WriteString(dimStyle.Render(fmt.Sprintf("%c receivers  %c 95%% ellipse", glyphReceiver, glyphEllipse)))
	return b.String()
}

// Plane returns the projected plane.
func (m GeometryModel) Plane() Plane {
	return m.plane
}
