// Package realtime speaks the Phoenix channel protocol used by Supabase
// Realtime. A Client holds one websocket, joins postgres_changes channels on
// it, and reports each channel's lifecycle so callers can notice drops.
package realtime
