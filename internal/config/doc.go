// Package config loads pulse's TOML configuration.
//
// # Configuration Discovery
//
// Load follows this resolution order:
//
//  1. If a path is explicitly provided, use it
//  2. Otherwise, use ~/.config/pulse/config.toml (default)
//  3. If the file doesn't exist, start from Default()
//  4. Apply PULSE_SUPABASE_URL, PULSE_ANON_KEY, PULSE_DEVICE, PULSE_NETWORK
//     and PULSE_REFRESH_SECONDS on top
//
// # Example
//
//	supabase_url = "https://abc.supabase.co"
//	anon_key     = "eyJ..."
//	device       = "mobile"      # desktop | mobile
//	network      = "3g"          # slow-2g, 2g, 3g, slow => slow; anything else known => normal
//	criticality  = "critical"    # critical 30s | standard 60s | background 120s
//	filter_column = "user_id"
//	filter_value  = "u-123"
//
//	[tables]
//	engagement = "user_engagement"
//	sessions   = "user_sessions"
//	health     = "health_metrics"
//	news       = "medical_news"
//
// Device and network strings are parsed during Load so a typo fails at
// startup. Validate checks what cannot be defaulted, chiefly supabase_url.
package config
