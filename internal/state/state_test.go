package state

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/litescript/ls-tdoa/internal/sim"
	"github.com/litescript/ls-tdoa/internal/solver"
)

func testResult(id string, posErr float64, shifts ...int) *sim.Result {
	res := &sim.Result{
		RunID:    id,
		Started:  time.Now(),
		Measured: sim.Estimate{PositionError: posErr, Solve: &solver.Result{Status: solver.StatusGradient}},
		Truth:    sim.Estimate{Solve: &solver.Result{Status: solver.StatusCost}},
	}
	for i, s := range shifts {
		res.Pairs = append(res.Pairs, sim.Pair{Receiver: i + 1, TimeShift: s, Confidence: 20})
	}
	return res
}

func countEvents(events []Event, typ EventType) int {
	n := 0
	for _, e := range events {
		if e.Type == typ {
			n++
		}
	}
	return n
}

func TestNewManager(t *testing.T) {
	cfg := DefaultConfig()
	m := NewManager(cfg)

	if m == nil {
		t.Fatal("NewManager returned nil")
	}

	if m.RefreshInterval() != cfg.RefreshInterval {
		t.Errorf("RefreshInterval = %v, want %v", m.RefreshInterval(), cfg.RefreshInterval)
	}

	if m.HasData() {
		t.Error("HasData should be false initially")
	}
}

func TestManager_Update(t *testing.T) {
	m := NewManager(DefaultConfig())

	res := testResult("run-1", 4.5, 3, -2, 7)
	m.Update(res, 100*time.Millisecond, nil)

	if !m.HasData() {
		t.Error("HasData should be true after Update")
	}

	snap := m.Snapshot()

	if snap.Result != res {
		t.Error("Snapshot Result doesn't match")
	}
	if snap.RunDuration != 100*time.Millisecond {
		t.Errorf("RunDuration = %v, want 100ms", snap.RunDuration)
	}
	if snap.LastError != nil {
		t.Errorf("LastError = %v, want nil", snap.LastError)
	}
	if snap.RunCount != 1 {
		t.Errorf("RunCount = %d, want 1", snap.RunCount)
	}
	if len(snap.ErrorHistory) != 1 || snap.ErrorHistory[0].Value != 4.5 {
		t.Errorf("ErrorHistory = %v, want one point at 4.5", snap.ErrorHistory)
	}
	if countEvents(snap.Events, EventRunComplete) != 1 {
		t.Errorf("events = %v, want one RUN_COMPLETE", snap.Events)
	}
}

func TestManager_UpdateWithError(t *testing.T) {
	m := NewManager(DefaultConfig())

	testErr := errors.New("simulation failed")
	m.Update(nil, 50*time.Millisecond, testErr)

	snap := m.Snapshot()

	if snap.Result != nil {
		t.Error("Result should be nil on error")
	}
	if snap.LastError != testErr {
		t.Errorf("LastError = %v, want %v", snap.LastError, testErr)
	}
	if len(snap.Events) != 1 || snap.Events[0].Type != EventRunFailed {
		t.Errorf("events = %v, want RUN_FAILED", snap.Events)
	}
}

func TestManager_HistoryBuffer(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MaxHistoryLen = 3
	cfg.MaxErrorHist = 4
	m := NewManager(cfg)

	for i := 0; i < 5; i++ {
		m.Update(testResult("run", float64(i)), 0, nil)
	}

	if n := len(m.History()); n != 3 {
		t.Errorf("history length = %d, want 3", n)
	}

	snap := m.Snapshot()
	if len(snap.ErrorHistory) != 4 {
		t.Fatalf("error history length = %d, want 4", len(snap.ErrorHistory))
	}
	if snap.ErrorHistory[0].Value != 1 {
		t.Errorf("oldest kept error = %v, want 1", snap.ErrorHistory[0].Value)
	}
	// (1+2+3+4)/4
	if got := m.MeanPositionError(); got != 2.5 {
		t.Errorf("MeanPositionError = %v, want 2.5", got)
	}
}

func TestManager_Snapshot_IsCopy(t *testing.T) {
	m := NewManager(DefaultConfig())
	m.Update(testResult("run", 1), 0, nil)

	snap1 := m.Snapshot()
	snap1.ErrorHistory[0].Value = 999
	snap1.Events[0].Detail = "modified"

	snap2 := m.Snapshot()
	if snap2.ErrorHistory[0].Value == 999 {
		t.Error("Snapshot modification affected error history")
	}
	if snap2.Events[0].Detail == "modified" {
		t.Error("Snapshot modification affected events")
	}
}

func TestManager_EventDetection_PeakMoved(t *testing.T) {
	m := NewManager(DefaultConfig())

	m.Update(testResult("a", 1, 3, -2, 7), 0, nil)
	if n := countEvents(m.RecentEvents(100), EventPeakMoved); n != 0 {
		t.Fatalf("first run produced %d PEAK_MOVED events", n)
	}

	m.Update(testResult("b", 1, 3, -1, 7), 0, nil)

	var moved *Event
	for _, e := range m.RecentEvents(100) {
		if e.Type == EventPeakMoved {
			moved = &e
		}
	}
	if moved == nil {
		t.Fatal("expected PEAK_MOVED event")
	}
	if moved.Receiver != 2 {
		t.Errorf("receiver = %d, want 2", moved.Receiver)
	}
	if moved.RunID != "b" {
		t.Errorf("run = %q, want b", moved.RunID)
	}
}

func TestManager_EventDetection_LowConfidenceAndNotConverged(t *testing.T) {
	m := NewManager(DefaultConfig())

	res := testResult("a", 1, 3, 4)
	res.Pairs[1].Confidence = 1.5
	res.Measured.Solve.Status = solver.StatusMaxIterations
	m.Update(res, 0, nil)

	events := m.RecentEvents(100)
	if n := countEvents(events, EventLowConfidence); n != 1 {
		t.Errorf("LOW_CONFIDENCE events = %d, want 1", n)
	}
	if n := countEvents(events, EventNotConverged); n != 1 {
		t.Errorf("NOT_CONVERGED events = %d, want 1", n)
	}
}

func TestManager_EventRingBuffer(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MaxEvents = 5
	m := NewManager(cfg)

	// Each run moves the peak at receiver 1: RUN_COMPLETE plus PEAK_MOVED
	for i := 0; i < 10; i++ {
		m.Update(testResult("run", 0, i), 0, nil)
	}

	events := m.RecentEvents(100)
	if len(events) != 5 {
		t.Errorf("events count = %d, want 5 (max)", len(events))
	}

	for i := 1; i < len(events); i++ {
		if events[i].Timestamp.Before(events[i-1].Timestamp) {
			t.Errorf("events not in chronological order at index %d", i)
		}
	}

	if got := m.RecentEvents(2); len(got) != 2 || got[1] != events[4] {
		t.Errorf("RecentEvents(2) = %v, want the last two events", got)
	}
}

func TestManager_MonteCarlo(t *testing.T) {
	m := NewManager(DefaultConfig())

	var p sim.ProgressFunc = m.SetProgress
	p(3, 10)

	snap := m.Snapshot()
	if snap.Progress.Done != 3 || snap.Progress.Total != 10 {
		t.Errorf("Progress = %+v, want 3/10", snap.Progress)
	}
	if f := snap.Progress.Fraction(); f != 0.3 {
		t.Errorf("Fraction = %v, want 0.3", f)
	}
	if m.HasData() {
		t.Error("HasData should be false while trials run")
	}

	mc := &sim.MonteCarloResult{Trials: make([]sim.Trial, 10), NotConverged: 2, Elapsed: time.Second}
	m.SetMonteCarlo(mc, nil)

	snap = m.Snapshot()
	if snap.MonteCarlo != mc {
		t.Error("Snapshot MonteCarlo doesn't match")
	}
	if snap.Progress.Fraction() != 1 {
		t.Errorf("Fraction = %v after completion, want 1", snap.Progress.Fraction())
	}
	if countEvents(snap.Events, EventNotConverged) != 1 {
		t.Errorf("events = %v, want NOT_CONVERGED", snap.Events)
	}
	if !m.HasData() {
		t.Error("HasData should be true after a Monte Carlo batch")
	}

	if (Progress{}).Fraction() != 0 {
		t.Error("empty progress fraction should be 0")
	}
}

func TestManager_ConcurrentAccess(t *testing.T) {
	m := NewManager(DefaultConfig())

	var wg sync.WaitGroup
	iterations := 100

	// Writer goroutine
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; i < iterations; i++ {
			m.Update(testResult("run", float64(i), i%3), time.Duration(i)*time.Millisecond, nil)
			m.SetProgress(i, iterations)
		}
	}()

	// Reader goroutines
	for r := 0; r < 5; r++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < iterations; i++ {
				_ = m.Snapshot()
				_ = m.HasData()
				_ = m.RefreshInterval()
				_ = m.History()
				_ = m.MeanPositionError()
			}
		}()
	}

	wg.Wait()
}

func TestManager_SetRefreshInterval(t *testing.T) {
	m := NewManager(DefaultConfig())

	newInterval := 30 * time.Second
	m.SetRefreshInterval(newInterval)

	if m.RefreshInterval() != newInterval {
		t.Errorf("RefreshInterval = %v, want %v", m.RefreshInterval(), newInterval)
	}
}
