package state

import (
	"fmt"
	"sync"
	"time"

	"github.com/five82/pulse/internal/analytics"
)

// Phase is the lifecycle of the realtime subscription.
type Phase string

const (
	PhaseClosed  Phase = "closed"
	PhaseOpening Phase = "opening"
	PhaseOpen    Phase = "open"
)

// Snapshot represents the latest data available to the UI.
type Snapshot struct {
	Data                analytics.Snapshot
	Env                 analytics.Environment
	Phase               Phase
	Connected           bool
	Degraded            bool
	Paused              bool
	Pending             int
	LastFetched         time.Time
	LastError           error
	ConsecutiveFailures int // Number of consecutive fetch failures
}

// IsOffline returns true when the backend has been unreachable for multiple fetches.
func (s Snapshot) IsOffline() bool {
	return s.ConsecutiveFailures >= 2
}

// Live reports whether changes are streaming in.
func (s Snapshot) Live() bool {
	return s.Phase == PhaseOpen && s.Connected
}

// Store coordinates concurrent updates to the snapshot.
type Store struct {
	mu       sync.RWMutex
	snapshot Snapshot
}

// Update records a fetch result. When err is non-nil the previous data is
// kept but the error is recorded for visibility.
func (s *Store) Update(data analytics.Snapshot, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.snapshot.LastFetched = time.Now()
	if err != nil {
		s.snapshot.LastError = err
		s.snapshot.ConsecutiveFailures++
		return
	}

	s.snapshot.Data = data
	s.snapshot.LastError = nil
	s.snapshot.ConsecutiveFailures = 0
}

// Publish replaces the data after a merge without touching fetch bookkeeping.
func (s *Store) Publish(data analytics.Snapshot, pending int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snapshot.Data = data
	s.snapshot.Pending = pending
}

// SetPending records how many change events wait for the next flush.
func (s *Store) SetPending(n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snapshot.Pending = n
}

// SetPhase records the subscription phase. Leaving Open clears Connected.
func (s *Store) SetPhase(p Phase) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snapshot.Phase = p
	if p != PhaseOpen {
		s.snapshot.Connected = false
	}
}

// SetConnected records the latest channel health sample.
func (s *Store) SetConnected(connected bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snapshot.Connected = connected
}

// SetDegraded flags the realtime feed as unavailable. A non-nil err is kept
// as LastError without counting as a fetch failure.
func (s *Store) SetDegraded(degraded bool, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snapshot.Degraded = degraded
	if err != nil {
		s.snapshot.LastError = err
	}
}

// SetPaused records whether ingestion is gated off.
func (s *Store) SetPaused(paused bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snapshot.Paused = paused
}

// SetEnvironment records the device and network class in use.
func (s *Store) SetEnvironment(env analytics.Environment) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snapshot.Env = env
}

// Snapshot returns a copy of the current snapshot.
func (s *Store) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()

	snap := s.snapshot
	snap.Data = s.snapshot.Data.Clone()
	if s.snapshot.LastError != nil {
		snap.LastError = fmt.Errorf("%w", s.snapshot.LastError)
	}
	if snap.Phase == "" {
		snap.Phase = PhaseClosed
	}
	return snap
}
