// Package live keeps an analytics Snapshot current.
//
// A Coordinator fetches every collection once, then opens a single realtime
// channel carrying one binding per topic. Incoming changes are buffered while
// the channel is open and the gate is visible, and flushed into the Snapshot
// after a quiet period that depends on the device and network class. Hiding
// the gate pauses ingestion; showing it again schedules a full re-fetch.
// A health loop samples the channel every ten seconds and releases it once
// the transport reports it errored or closed.
//
// Fetches can overlap each other and the flush timer. Each fetch is numbered
// when it begins; a result older than the last one applied is dropped, and
// events flushed while a fetch was in flight are merged back onto its result.
//
// Results and errors are published to a state.Store rather than returned to
// the UI.
package live
