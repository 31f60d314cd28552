package analytics

import "time"

// Collection identifies one of the three record lists in a Snapshot.
type Collection int

const (
	CollectionEngagement Collection = iota
	CollectionBehavior
	CollectionHealth
)

func (c Collection) String() string {
	switch c {
	case CollectionBehavior:
		return "behavior"
	case CollectionHealth:
		return "health"
	default:
		return "engagement"
	}
}

// Maximum collection lengths kept in memory.
const (
	EngagementCap = 100
	BehaviorCap   = 50
	HealthCap     = 50
)

// CapFor returns the maximum length of a collection.
func CapFor(c Collection) int {
	switch c {
	case CollectionBehavior:
		return BehaviorCap
	case CollectionHealth:
		return HealthCap
	default:
		return EngagementCap
	}
}

// Snapshot is the materialized analytics view. A Snapshot is never mutated
// after it is built; updates produce a new value.
type Snapshot struct {
	Engagement  []Record
	Behavior    []Record
	Health      []Record
	LastUpdated time.Time
}

// Records returns the slice backing the given collection.
func (s Snapshot) Records(c Collection) []Record {
	switch c {
	case CollectionBehavior:
		return s.Behavior
	case CollectionHealth:
		return s.Health
	default:
		return s.Engagement
	}
}

// Len reports the number of records across all collections.
func (s Snapshot) Len() int {
	return len(s.Engagement) + len(s.Behavior) + len(s.Health)
}

func (s *Snapshot) set(c Collection, records []Record) {
	switch c {
	case CollectionBehavior:
		s.Behavior = records
	case CollectionHealth:
		s.Health = records
	default:
		s.Engagement = records
	}
}

// Clone returns a copy whose slices are independent of s.
func (s Snapshot) Clone() Snapshot {
	return Snapshot{
		Engagement:  cloneRecords(s.Engagement),
		Behavior:    cloneRecords(s.Behavior),
		Health:      cloneRecords(s.Health),
		LastUpdated: s.LastUpdated,
	}
}

func cloneRecords(records []Record) []Record {
	if len(records) == 0 {
		return nil
	}
	dup := make([]Record, len(records))
	copy(dup, records)
	return dup
}
