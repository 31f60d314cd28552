// Package state provides thread-safe state management for pulse.
//
// # Overview
//
// The Store is the meeting point between the producers (the live coordinator
// and the background poller) and the consumer (the UI). Producers record
// fetch results, merged snapshots and subscription health; the UI reads a
// Snapshot on every tick.
//
//	Producers:                       Consumer (UI):
//	┌──────────────────────┐        ┌──────────────────┐
//	│ fetch  → Update()    │        │                  │
//	│ flush  → Publish()   │───────→│ store.Snapshot() │
//	│ health → SetConnected│ (mutex)│      ↓           │
//	└──────────────────────┘        │  render UI       │
//	                                └──────────────────┘
//
// # Update Semantics
//
// Update follows a stale-but-valid rule:
//
//	store.Update(data, nil)  → Data replaced, LastError cleared, failures reset
//	store.Update(_, err)     → Data kept, LastError = err, failures++
//
// Publish replaces Data after a merge and leaves the fetch bookkeeping alone.
// SetDegraded records subscription trouble without counting as a fetch failure,
// so IsOffline only reflects the REST layer.
//
// # Defensive Copying
//
// Snapshot clones the record slices and wraps LastError so callers can hold
// on to the value while producers keep writing.
//
// The Store is safe to use as a zero value.
package state
