// Package ui provides the pulse terminal dashboard.
//
// The UI is a Bubble Tea program that renders the latest state.Snapshot and
// drives the live coordinator through a small Controller interface. It never
// talks to Supabase directly.
//
// # Views
//
//   - Engagement: engagement events, newest first
//   - Sessions: behavior (session) records
//   - Health: health metrics, including inserted news items
//   - Logs: the tail of pulse's own log file, filtered by component (c) and
//     minimum level (L); the filter is saved with the other prefs
//
// Record views show a table with a detail pane for the selected record. The
// pane sits beside the table on wide terminals and below it otherwise.
//
// # Visibility
//
// The program runs with focus reporting enabled. Losing terminal focus or
// pressing v pauses ingestion via Controller.SetVisible; regaining focus
// resumes it and the coordinator re-fetches after its settle delay.
//
// # Refresh
//
// A tick every PollTick re-reads the store. The r key forces a fetch through
// Controller.Refresh, bounded by RefreshTimeout.
package ui
