package analytics

import "time"

// Merge applies events to s in arrival order and returns the resulting
// Snapshot stamped with now. s and its slices are left untouched.
//
// Inserts prepend and evict from the tail once a collection reaches its cap.
// An insert whose id is already present replaces the older copy. Updates
// replace the element with the matching id in place; an update that matches
// nothing, or carries no id, is a no-op.
func Merge(s Snapshot, events []ChangeEvent, now time.Time) Snapshot {
	next := s
	for _, ev := range events {
		c := ev.Topic.Collection()
		records := next.Records(c)
		switch ev.Operation {
		case OpInsert:
			records = insertRecord(records, ev.Payload, CapFor(c))
		case OpUpdate:
			records = updateRecord(records, ev.Payload)
		}
		next.set(c, records)
	}
	next.LastUpdated = now
	return next
}

func insertRecord(records []Record, payload Record, limit int) []Record {
	if payload == nil {
		return records
	}
	id, hasID := payload.ID()
	size := len(records) + 1
	if size > limit {
		size = limit
	}
	out := make([]Record, 0, size)
	out = append(out, payload)
	for _, r := range records {
		if len(out) >= limit {
			break
		}
		if hasID {
			if existing, ok := r.ID(); ok && existing == id {
				continue
			}
		}
		out = append(out, r)
	}
	return out
}

func updateRecord(records []Record, payload Record) []Record {
	id, ok := payload.ID()
	if !ok {
		return records
	}
	for i, r := range records {
		existing, ok := r.ID()
		if !ok || existing != id {
			continue
		}
		out := make([]Record, len(records))
		copy(out, records)
		out[i] = payload
		return out
	}
	return records
}
