// Package app is the composition root for pulse.
//
// # Startup
//
// Run wires the packages together in order:
//
//  1. config.Load, command-line overrides, Validate
//  2. A slog text logger appending to the configured log file
//  3. prefs.Load for theme and last view
//  4. supabase.Client for REST and, unless PollOnly, realtime.Client
//  5. live.Coordinator over a shared state.Store, started with a bounded
//     initial fetch and subscribe
//  6. StartPoller to re-fetch on the configured cadence
//  7. ui.Run, which blocks until the user quits or ctx is cancelled
//
// Everything is released by defer in reverse order. A failed first fetch is
// logged and shown in the header rather than returned, so pulse can start
// while the backend is briefly unreachable.
//
// # Polling
//
// The poller calls Coordinator.Refresh every interval. Consecutive failures
// double the wait, capped at ten minutes; the first success resets it. The
// interval comes from -poll, refresh_seconds, or the criticality default, in
// that order.
//
//	┌──────────────┐
//	│   Run()      │
//	└──────┬───────┘
//	       ├─────> config.Load()
//	       ├─────> supabase.NewClient() / realtime.NewClient()
//	       ├─────> live.New() + Start()
//	       ├─────> StartPoller()        Refresh with backoff
//	       └─────> ui.Run()             blocks
package app
