// Package state provides thread-safe state management for the application.
package state

import (
	"fmt"
	"sync"
	"time"

	"github.com/litescript/ls-tdoa/internal/sim"
)

// EventType represents the type of state change event.
type EventType string

const (
	EventRunComplete   EventType = "RUN_COMPLETE"
	EventRunFailed     EventType = "RUN_FAILED"
	EventNotConverged  EventType = "NOT_CONVERGED"
	EventLowConfidence EventType = "LOW_CONFIDENCE"
	EventPeakMoved     EventType = "PEAK_MOVED"
)

// Event represents a notable outcome of a run.
type Event struct {
	Type      EventType `json:"type"`
	Timestamp time.Time `json:"timestamp"`
	RunID     string    `json:"run_id,omitempty"`
	Receiver  int       `json:"receiver,omitempty"`
	Detail    string    `json:"detail,omitempty"`
}

// HistoryEntry represents a single run in the history buffer.
type HistoryEntry struct {
	Timestamp time.Time
	Result    *sim.Result
}

// TimeSeries is a single data point with timestamp.
type TimeSeries struct {
	Timestamp time.Time
	Value     float64
}

// Progress is the state of a running Monte Carlo batch.
type Progress struct {
	Done  int
	Total int
}

// Fraction returns the completed share in [0, 1].
func (p Progress) Fraction() float64 {
	if p.Total <= 0 {
		return 0
	}
	return float64(p.Done) / float64(p.Total)
}

// Manager handles all shared application state with thread-safe access.
type Manager struct {
	mu sync.RWMutex

	// Current state
	current     *sim.Result
	lastRun     time.Time
	lastError   error
	runDuration time.Duration

	// Peak lag per receiver of the previous run, for event detection
	prevShifts map[int]int

	// History buffers
	history       []HistoryEntry
	maxHistoryLen int
	errorHistory  []TimeSeries
	maxErrorHist  int

	// Event log (ring buffer)
	events       []Event
	maxEvents    int
	eventWriteAt int

	// Monte Carlo
	progress   Progress
	monteCarlo *sim.MonteCarloResult

	// Configuration
	minConfidence   float64
	refreshInterval time.Duration
}

// Config holds configuration for the state manager.
type Config struct {
	MaxHistoryLen   int
	MaxErrorHist    int
	MaxEvents       int
	MinConfidence   float64 // peak-to-median ratio below which a pair is flagged
	RefreshInterval time.Duration
}

// DefaultConfig returns sensible default configuration.
func DefaultConfig() Config {
	return Config{
		MaxHistoryLen:   20,
		MaxErrorHist:    120,
		MaxEvents:       50,
		MinConfidence:   3,
		RefreshInterval: 5 * time.Second,
	}
}

// NewManager creates a new state manager.
func NewManager(cfg Config) *Manager {
	maxEvents := cfg.MaxEvents
	if maxEvents <= 0 {
		maxEvents = 50
	}
	return &Manager{
		maxHistoryLen:   cfg.MaxHistoryLen,
		maxErrorHist:    cfg.MaxErrorHist,
		maxEvents:       maxEvents,
		events:          make([]Event, 0, maxEvents),
		minConfidence:   cfg.MinConfidence,
		refreshInterval: cfg.RefreshInterval,
		prevShifts:      make(map[int]int),
	}
}

// Update atomically records the outcome of a run.
func (m *Manager) Update(res *sim.Result, runDuration time.Duration, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.lastRun = time.Now()
	m.lastError = err
	m.runDuration = runDuration

	if err != nil {
		m.addEvent(Event{Type: EventRunFailed, Timestamp: m.lastRun, Detail: err.Error()})
	}
	if res == nil {
		return
	}

	m.detectEvents(res)
	m.current = res

	m.history = append(m.history, HistoryEntry{Timestamp: res.Started, Result: res})
	if len(m.history) > m.maxHistoryLen {
		m.history = m.history[1:]
	}

	m.errorHistory = append(m.errorHistory, TimeSeries{Timestamp: res.Started, Value: res.Measured.PositionError})
	if len(m.errorHistory) > m.maxErrorHist {
		m.errorHistory = m.errorHistory[1:]
	}

	m.prevShifts = make(map[int]int, len(res.Pairs))
	for _, p := range res.Pairs {
		m.prevShifts[p.Receiver] = p.TimeShift
	}
}

// detectEvents compares a new run with the previous one and generates events.
func (m *Manager) detectEvents(res *sim.Result) {
	now := time.Now()

	m.addEvent(Event{
		Type:      EventRunComplete,
		Timestamp: now,
		RunID:     res.RunID,
		Detail:    fmt.Sprintf("measured error %.2f m", res.Measured.PositionError),
	})

	for _, est := range []struct {
		name string
		e    sim.Estimate
	}{{"measured", res.Measured}, {"truth", res.Truth}} {
		if est.e.Solve != nil && !est.e.Solve.Converged() {
			m.addEvent(Event{
				Type:      EventNotConverged,
				Timestamp: now,
				RunID:     res.RunID,
				Detail:    fmt.Sprintf("%s solve stopped: %s", est.name, est.e.Solve.Status),
			})
		}
	}

	for _, p := range res.Pairs {
		if p.Confidence < m.minConfidence {
			m.addEvent(Event{
				Type:      EventLowConfidence,
				Timestamp: now,
				RunID:     res.RunID,
				Receiver:  p.Receiver,
				Detail:    fmt.Sprintf("peak/median %.1f", p.Confidence),
			})
		}
		if prev, ok := m.prevShifts[p.Receiver]; ok && prev != p.TimeShift {
			m.addEvent(Event{
				Type:      EventPeakMoved,
				Timestamp: now,
				RunID:     res.RunID,
				Receiver:  p.Receiver,
				Detail:    fmt.Sprintf("lag %d -> %d samples", prev, p.TimeShift),
			})
		}
	}
}

// addEvent adds an event to the ring buffer.
func (m *Manager) addEvent(e Event) {
	if len(m.events) < m.maxEvents {
		m.events = append(m.events, e)
	} else {
		m.events[m.eventWriteAt] = e
		m.eventWriteAt = (m.eventWriteAt + 1) % m.maxEvents
	}
}

// SetProgress records Monte Carlo progress. It has the signature of
// sim.ProgressFunc.
func (m *Manager) SetProgress(done, total int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.progress = Progress{Done: done, Total: total}
}

// SetMonteCarlo stores a finished Monte Carlo batch.
func (m *Manager) SetMonteCarlo(res *sim.MonteCarloResult, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.lastRun = time.Now()
	m.lastError = err
	if err != nil {
		m.addEvent(Event{Type: EventRunFailed, Timestamp: m.lastRun, Detail: err.Error()})
		return
	}
	m.monteCarlo = res
	if res != nil {
		m.runDuration = res.Elapsed
		m.progress = Progress{Done: len(res.Trials), Total: len(res.Trials)}
		if res.NotConverged > 0 {
			m.addEvent(Event{
				Type:      EventNotConverged,
				Timestamp: m.lastRun,
				Detail:    fmt.Sprintf("%d of %d trials", res.NotConverged, len(res.Trials)),
			})
		}
	}
}

// Snapshot represents an immutable snapshot of current state.
type Snapshot struct {
	Result       *sim.Result
	LastRun      time.Time
	LastError    error
	RunDuration  time.Duration
	RunCount     int
	ErrorHistory []TimeSeries
	Events       []Event
	Progress     Progress
	MonteCarlo   *sim.MonteCarloResult
}

// Snapshot returns a consistent snapshot of current state.
func (m *Manager) Snapshot() Snapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()

	hist := make([]TimeSeries, len(m.errorHistory))
	copy(hist, m.errorHistory)

	return Snapshot{
		Result:       m.current,
		LastRun:      m.lastRun,
		LastError:    m.lastError,
		RunDuration:  m.runDuration,
		RunCount:     len(m.history),
		ErrorHistory: hist,
		Events:       m.getEventsOrdered(),
		Progress:     m.progress,
		MonteCarlo:   m.monteCarlo,
	}
}

// getEventsOrdered returns events in chronological order.
func (m *Manager) getEventsOrdered() []Event {
	if len(m.events) == 0 {
		return nil
	}

	// If buffer isn't full yet, just copy
	if len(m.events) < m.maxEvents {
		result := make([]Event, len(m.events))
		copy(result, m.events)
		return result
	}

	// Ring buffer is full, reorder from oldest to newest
	result := make([]Event, m.maxEvents)
	for i := 0; i < m.maxEvents; i++ {
		idx := (m.eventWriteAt + i) % m.maxEvents
		result[i] = m.events[idx]
	}
	return result
}

// RecentEvents returns the last n events.
func (m *Manager) RecentEvents(n int) []Event {
	m.mu.RLock()
	defer m.mu.RUnlock()

	all := m.getEventsOrdered()
	if len(all) <= n {
		return all
	}
	return all[len(all)-n:]
}

// History returns the kept runs, oldest first.
func (m *Manager) History() []HistoryEntry {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]HistoryEntry, len(m.history))
	copy(out, m.history)
	return out
}

// MeanPositionError averages the measured position error over the error
// history. It returns 0 without history.
func (m *Manager) MeanPositionError() float64 {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if len(m.errorHistory) == 0 {
		return 0
	}
	var sum float64
	for _, p := range m.errorHistory {
		sum += p.Value
	}
	return sum / float64(len(m.errorHistory))
}

// RefreshInterval returns the interval between watch-mode reruns.
func (m *Manager) RefreshInterval() time.Duration {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.refreshInterval
}

// SetRefreshInterval updates the refresh interval.
func (m *Manager) SetRefreshInterval(d time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.refreshInterval = d
}

// HasData returns true once at least one run has completed.
func (m *Manager) HasData() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.current != nil || m.monteCarlo != nil
}
