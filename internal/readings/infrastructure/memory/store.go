package memory

import (
	"sort"
	"sync"

	readings "hydro-cloud/internal/readings/domain"
)

// Store is an in-memory, per-unit reading log. It is safe for concurrent use.
// The map lock only guards unit lookup; each unit serialises its own appends.
type Store struct {
	mu         sync.RWMutex
	units      map[string]*unitLog
	maxPerUnit int
}

type unitLog struct {
	mu       sync.Mutex
	readings []readings.Reading
}

// StoreOption configures the store.
type StoreOption func(*Store)

// WithMaxPerUnit caps the readings kept per unit. Zero keeps everything.
func WithMaxPerUnit(max int) StoreOption {
	return func(s *Store) {
		if max > 0 {
			s.maxPerUnit = max
		}
	}
}

// NewStore constructs an empty store.
func NewStore(opts ...StoreOption) *Store {
	s := &Store{units: make(map[string]*unitLog)}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Append adds a classified reading to the unit's log.
func (s *Store) Append(unitID string, reading readings.Reading) {
	log := s.unit(unitID, true)
	reading = reading.Clone()

	log.mu.Lock()
	defer log.mu.Unlock()
	log.readings = append(log.readings, reading)
	if s.maxPerUnit > 0 && len(log.readings) > s.maxPerUnit {
		log.evictOldest()
	}
}

// Recent returns up to n most recent readings in ascending timestamp order.
func (s *Store) Recent(unitID string, n int) []readings.Reading {
	return lastN(s.snapshot(unitID), n)
}

// Alerts returns up to n most recent alert readings in ascending timestamp order.
func (s *Store) Alerts(unitID string, n int) []readings.Reading {
	snapshot := s.snapshot(unitID)
	alerts := snapshot[:0]
	for _, reading := range snapshot {
		if reading.Classification.IsAlert() {
			alerts = append(alerts, reading)
		}
	}
	return lastN(alerts, n)
}

// Units lists known unit ids in sorted order.
func (s *Store) Units() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := make([]string, 0, len(s.units))
	for id := range s.units {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// UnitCount returns the number of units with at least one reading.
func (s *Store) UnitCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.units)
}

func (s *Store) unit(unitID string, create bool) *unitLog {
	s.mu.RLock()
	log := s.units[unitID]
	s.mu.RUnlock()
	if log != nil || !create {
		return log
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if log = s.units[unitID]; log == nil {
		log = &unitLog{}
		s.units[unitID] = log
	}
	return log
}

// snapshot copies the unit's log and sorts it chronologically. Ties keep
// insertion order.
func (s *Store) snapshot(unitID string) []readings.Reading {
	log := s.unit(unitID, false)
	if log == nil {
		return []readings.Reading{}
	}
	log.mu.Lock()
	out := make([]readings.Reading, len(log.readings))
	copy(out, log.readings)
	log.mu.Unlock()

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Timestamp.Before(out[j].Timestamp)
	})
	return out
}

// evictOldest drops the chronologically oldest reading. Caller holds l.mu.
func (l *unitLog) evictOldest() {
	oldest := 0
	for i := 1; i < len(l.readings); i++ {
		if l.readings[i].Timestamp.Before(l.readings[oldest].Timestamp) {
			oldest = i
		}
	}
	l.readings = append(l.readings[:oldest], l.readings[oldest+1:]...)
}

func lastN(sorted []readings.Reading, n int) []readings.Reading {
	if n <= 0 || len(sorted) == 0 {
		return []readings.Reading{}
	}
	if len(sorted) > n {
		sorted = sorted[len(sorted)-n:]
	}
	out := make([]readings.Reading, len(sorted))
	for i, reading := range sorted {
		out[i] = reading.Clone()
	}
	return out
}
