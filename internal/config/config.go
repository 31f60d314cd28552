package config

import (
	"errors"
	"fmt"
	"io"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	toml "github.com/pelletier/go-toml/v2"

	"github.com/five82/pulse/internal/analytics"
)

// Criticality picks the polling cadence for a dashboard.
type Criticality string

const (
	CriticalityCritical   Criticality = "critical"
	CriticalityStandard   Criticality = "standard"
	CriticalityBackground Criticality = "background"
)

// Interval returns the refresh cadence for c.
func (c Criticality) Interval() time.Duration {
	switch c {
	case CriticalityCritical:
		return 30 * time.Second
	case CriticalityBackground:
		return 120 * time.Second
	default:
		return 60 * time.Second
	}
}

func parseCriticality(value string) (Criticality, error) {
	switch c := Criticality(strings.ToLower(strings.TrimSpace(value))); c {
	case "":
		return CriticalityStandard, nil
	case CriticalityCritical, CriticalityStandard, CriticalityBackground:
		return c, nil
	default:
		return "", fmt.Errorf("unknown criticality %q", value)
	}
}

// Tables overrides backend table names. Empty fields keep the defaults.
type Tables struct {
	Engagement string `toml:"engagement"`
	Sessions   string `toml:"sessions"`
	Health     string `toml:"health"`
	News       string `toml:"news"`
}

// Config is everything pulse reads from disk and the environment.
type Config struct {
	SupabaseURL    string
	AnonKey        string
	Schema         string
	Channel        string
	Env            analytics.Environment
	Criticality    Criticality
	RefreshSeconds int
	LogFile        string
	FilterColumn   string
	FilterValue    string
	Tables         Tables
}

const (
	defaultConfigPath = "~/.config/pulse/config.toml"
	defaultLogFile    = "~/.local/share/pulse/pulse.log"
	defaultSchema     = "public"
)

type fileConfig struct {
	SupabaseURL    string `toml:"supabase_url"`
	AnonKey        string `toml:"anon_key"`
	Schema         string `toml:"schema"`
	Channel        string `toml:"channel"`
	Device         string `toml:"device"`
	Network        string `toml:"network"`
	Criticality    string `toml:"criticality"`
	RefreshSeconds int    `toml:"refresh_seconds"`
	LogFile        string `toml:"log_file"`
	FilterColumn   string `toml:"filter_column"`
	FilterValue    string `toml:"filter_value"`
	Tables         Tables `toml:"tables"`
}

// Default returns the configuration used when no file exists.
func Default() Config {
	return Config{
		Schema:      defaultSchema,
		Criticality: CriticalityStandard,
		LogFile:     mustExpand(defaultLogFile),
	}
}

// Load locates and parses the pulse config, falling back to defaults when
// missing, then applies PULSE_* environment overrides.
func Load(path string) (Config, error) {
	resolved, err := resolvePath(path)
	if err != nil {
		return Config{}, err
	}

	cfg := Default()

	file, err := os.Open(resolved)
	switch {
	case errors.Is(err, os.ErrNotExist):
	case err != nil:
		return Config{}, fmt.Errorf("open config: %w", err)
	default:
		defer file.Close()
		bytes, err := io.ReadAll(file)
		if err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
		var raw fileConfig
		if err := toml.Unmarshal(bytes, &raw); err != nil {
			return Config{}, fmt.Errorf("parse config: %w", err)
		}
		if err := cfg.apply(raw); err != nil {
			return Config{}, fmt.Errorf("parse config: %w", err)
		}
	}

	return FromEnv(cfg)
}

func (c *Config) apply(raw fileConfig) error {
	if v := strings.TrimSpace(raw.SupabaseURL); v != "" {
		c.SupabaseURL = v
	}
	c.AnonKey = strings.TrimSpace(raw.AnonKey)
	if v := strings.TrimSpace(raw.Schema); v != "" {
		c.Schema = v
	}
	c.Channel = strings.TrimSpace(raw.Channel)

	device, err := analytics.ParseDeviceClass(raw.Device)
	if err != nil {
		return err
	}
	network, err := analytics.ParseNetworkClass(raw.Network)
	if err != nil {
		return err
	}
	c.Env = analytics.Environment{Device: device, Network: network}

	if c.Criticality, err = parseCriticality(raw.Criticality); err != nil {
		return err
	}
	if raw.RefreshSeconds < 0 {
		return fmt.Errorf("refresh_seconds must not be negative")
	}
	c.RefreshSeconds = raw.RefreshSeconds

	if v := strings.TrimSpace(raw.LogFile); v != "" {
		c.LogFile = mustExpand(v)
	}
	c.FilterColumn = strings.TrimSpace(raw.FilterColumn)
	c.FilterValue = strings.TrimSpace(raw.FilterValue)
	c.Tables = Tables{
		Engagement: strings.TrimSpace(raw.Tables.Engagement),
		Sessions:   strings.TrimSpace(raw.Tables.Sessions),
		Health:     strings.TrimSpace(raw.Tables.Health),
		News:       strings.TrimSpace(raw.Tables.News),
	}
	return nil
}

// RefreshInterval is the poll cadence: refresh_seconds when set, otherwise
// the criticality default.
func (c Config) RefreshInterval() time.Duration {
	if c.RefreshSeconds > 0 {
		return time.Duration(c.RefreshSeconds) * time.Second
	}
	return c.Criticality.Interval()
}

// Validate reports missing or malformed settings that Load cannot default.
func (c Config) Validate() error {
	if strings.TrimSpace(c.SupabaseURL) == "" {
		return fmt.Errorf("supabase_url is required (set it in %s or PULSE_SUPABASE_URL)", defaultConfigPath)
	}
	raw := c.SupabaseURL
	if !strings.Contains(raw, "://") {
		raw = "https://" + raw
	}
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return fmt.Errorf("invalid supabase_url %q", c.SupabaseURL)
	}
	if c.FilterValue != "" && c.FilterColumn == "" {
		return fmt.Errorf("filter_value set without filter_column")
	}
	return nil
}

func resolvePath(path string) (string, error) {
	if strings.TrimSpace(path) == "" {
		return expandPath(defaultConfigPath)
	}
	return expandPath(path)
}

func mustExpand(path string) string {
	expanded, err := expandPath(path)
	if err != nil {
		return path
	}
	return expanded
}

func expandPath(path string) (string, error) {
	trimmed := strings.TrimSpace(path)
	if trimmed == "" {
		return "", fmt.Errorf("path is empty")
	}
	if strings.HasPrefix(trimmed, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home dir: %w", err)
		}
		trimmed = filepath.Join(home, strings.TrimPrefix(trimmed, "~"))
	}
	return filepath.Abs(trimmed)
}
