package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/five82/pulse/internal/analytics"
)

// Environment variables that override the config file.
const (
	EnvSupabaseURL    = "PULSE_SUPABASE_URL"
	EnvAnonKey        = "PULSE_ANON_KEY"
	EnvDevice         = "PULSE_DEVICE"
	EnvNetwork        = "PULSE_NETWORK"
	EnvRefreshSeconds = "PULSE_REFRESH_SECONDS"
)

// FromEnv returns base with any PULSE_* variables applied on top.
func FromEnv(base Config) (Config, error) {
	return overlay(base, os.LookupEnv)
}

func overlay(cfg Config, lookup func(string) (string, bool)) (Config, error) {
	get := func(key string) (string, bool) {
		v, ok := lookup(key)
		v = strings.TrimSpace(v)
		return v, ok && v != ""
	}

	if v, ok := get(EnvSupabaseURL); ok {
		cfg.SupabaseURL = v
	}
	if v, ok := get(EnvAnonKey); ok {
		cfg.AnonKey = v
	}
	if v, ok := get(EnvDevice); ok {
		device, err := analytics.ParseDeviceClass(v)
		if err != nil {
			return Config{}, fmt.Errorf("%s: %w", EnvDevice, err)
		}
		cfg.Env.Device = device
	}
	if v, ok := get(EnvNetwork); ok {
		network, err := analytics.ParseNetworkClass(v)
		if err != nil {
			return Config{}, fmt.Errorf("%s: %w", EnvNetwork, err)
		}
		cfg.Env.Network = network
	}
	if v, ok := get(EnvRefreshSeconds); ok {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			return Config{}, fmt.Errorf("%s: want a non-negative integer, got %q", EnvRefreshSeconds, v)
		}
		cfg.RefreshSeconds = n
	}
	return cfg, nil
}
