package services

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/HaDeSMonsta/get-flight-data/pkg/report"
	"github.com/HaDeSMonsta/get-flight-data/pkg/resolver"
)

// Phase is the scheduler's current activity.
type Phase int

const (
	// PhaseIdle means no task is in flight.
	PhaseIdle Phase = iota
	// PhaseFlightPlanLoading means a flight plan is being resolved (or is due at startup).
	PhaseFlightPlanLoading
	// PhaseDataLoading means METAR and ATIS are being fetched.
	PhaseDataLoading
)

func (p Phase) String() string {
	switch p {
	case PhaseFlightPlanLoading:
		return "flight-plan-loading"
	case PhaseDataLoading:
		return "data-loading"
	default:
		return "idle"
	}
}

// MarshalText renders the phase name in JSON payloads.
func (p Phase) MarshalText() ([]byte, error) {
	return []byte(p.String()), nil
}

// Snapshot is a consistent copy of the shared refresh state.
type Snapshot struct {
	Report     *report.FlightDataReport `json:"report,omitempty"`
	Loading    bool                     `json:"loading"`
	Airports   resolver.AirportPair     `json:"airports"`
	LastError  string                   `json:"lastError,omitempty"`
	Phase      Phase                    `json:"phase"`
	Suppressed bool                     `json:"suppressed"`
	UpdatedAt  time.Time                `json:"updatedAt"`
}

// RefreshState is shared between the scheduler's tasks and the display layer.
// Readers always observe either the previous complete report or the new one.
type RefreshState interface {
	Publish(rpt *report.FlightDataReport)
	Read() Snapshot
	SetLoading(loading bool)
	SetAirports(pair resolver.AirportPair)
	SetError(err error)
	SetPhase(phase Phase)
	SetSuppressed(suppressed bool)
	// Subscribe returns a channel that always holds the latest snapshot and a
	// function that releases it.
	Subscribe() (<-chan Snapshot, func())
}

// MemoryState is the in-process RefreshState.
type MemoryState struct {
	loading atomic.Bool

	mu         sync.Mutex
	report     *report.FlightDataReport
	airports   resolver.AirportPair
	lastErr    string
	phase      Phase
	suppressed bool
	updatedAt  time.Time
	subs       map[int]chan Snapshot
	nextSub    int
}

// NewMemoryState returns an empty state in the flight plan loading phase.
func NewMemoryState() *MemoryState {
	return &MemoryState{
		phase: PhaseFlightPlanLoading,
		subs:  map[int]chan Snapshot{},
	}
}

// Publish swaps in a new report and clears the last error.
func (s *MemoryState) Publish(rpt *report.FlightDataReport) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.report = rpt
	s.lastErr = ""
	s.changedLocked()
}

// Read returns the current snapshot.
func (s *MemoryState) Read() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

// SetLoading flips the loading flag.
func (s *MemoryState) SetLoading(loading bool) {
	if s.loading.Swap(loading) == loading {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.changedLocked()
}

// Loading reports the loading flag without taking the lock.
func (s *MemoryState) Loading() bool {
	return s.loading.Load()
}

func (s *MemoryState) SetAirports(pair resolver.AirportPair) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.airports = pair
	s.changedLocked()
}

// SetError records the last task failure. A nil error clears it.
func (s *MemoryState) SetError(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err == nil {
		s.lastErr = ""
	} else {
		s.lastErr = err.Error()
	}
	s.changedLocked()
}

func (s *MemoryState) SetPhase(phase Phase) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.phase == phase {
		return
	}
	s.phase = phase
	s.changedLocked()
}

func (s *MemoryState) SetSuppressed(suppressed bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.suppressed = suppressed
	s.changedLocked()
}

// Subscribe registers a listener. The channel has a buffer of one and is
// overwritten with the newest snapshot, so slow readers never block writers.
func (s *MemoryState) Subscribe() (<-chan Snapshot, func()) {
	ch := make(chan Snapshot, 1)

	s.mu.Lock()
	id := s.nextSub
	s.nextSub++
	s.subs[id] = ch
	ch <- s.snapshotLocked()
	s.mu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			s.mu.Lock()
			defer s.mu.Unlock()
			delete(s.subs, id)
			close(ch)
		})
	}
	return ch, cancel
}

func (s *MemoryState) snapshotLocked() Snapshot {
	return Snapshot{
		Report:     s.report,
		Loading:    s.loading.Load(),
		Airports:   s.airports,
		LastError:  s.lastErr,
		Phase:      s.phase,
		Suppressed: s.suppressed,
		UpdatedAt:  s.updatedAt,
	}
}

func (s *MemoryState) changedLocked() {
	s.updatedAt = time.Now()
	snap := s.snapshotLocked()
	for _, ch := range s.subs {
		select {
		case ch <- snap:
		default:
			// drop the stale snapshot and retry once
			select {
			case <-ch:
			default:
			}
			select {
			case ch <- snap:
			default:
			}
		}
	}
}
