// Package analytics holds the pure domain model behind pulse's live view.
//
// # Overview
//
// A Snapshot is the materialized analytics state: engagement records,
// behavior (session) records and health records, plus the time it was last
// stamped. Backend mutations arrive as ChangeEvents, wait in a Buffer, and are
// folded into a new Snapshot by Merge.
//
// # Merge Semantics
//
//	Insert  prepend payload, drop an older copy with the same id,
//	        truncate to the collection cap (100 / 50 / 50)
//	Update  replace the element with payload.id in place
//	        (no match or no id: nothing changes)
//
// LastUpdated is stamped once per batch. Merging events one at a time and in a
// single batch yield the same Snapshot for the same timestamp.
//
// # Throttle Policy
//
// PolicyFor maps an Environment (device and network class) onto flush and
// resume timing:
//
//	desktop          flush 3s   settle 500ms
//	mobile, normal   flush 15s  settle 500ms   clear on hidden
//	mobile, slow     flush 20s  settle 2s      clear on hidden, keep newest 3 past 5
//
// Nothing in this package touches the network, clocks or goroutines; the live
// package owns scheduling.
package analytics
