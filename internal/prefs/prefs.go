// Package prefs handles pulse user preferences persistence.
// Preferences are stored in ~/.config/pulse/prefs.toml.
package prefs

import (
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"

	toml "github.com/pelletier/go-toml/v2"

	"github.com/five82/pulse/internal/logtail"
)

// Prefs holds user preferences for pulse.
type Prefs struct {
	Theme string `toml:"theme"`
	View  string `toml:"view"`

	// Logs view filter. Empty means no filter.
	LogComponent string `toml:"log_component,omitempty"`
	LogLevel     string `toml:"log_level,omitempty"`
}

const (
	defaultPrefsPath = "~/.config/pulse/prefs.toml"
	defaultTheme     = "Nightfox"
	defaultView      = "engagement"
)

// DefaultPath returns the default preferences file path.
func DefaultPath() string {
	return defaultPrefsPath
}

// Defaults returns the preferences used when nothing is stored.
func Defaults() Prefs {
	return Prefs{Theme: defaultTheme, View: defaultView}
}

// Load reads preferences from the given path, falling back to defaults if
// missing or unreadable. The error is only non-nil when the file exists but
// cannot be parsed; the returned Prefs are still usable.
func Load(path string) (Prefs, error) {
	prefs := Defaults()

	resolved, err := resolvePath(path)
	if err != nil {
		return prefs, nil
	}

	bytes, err := os.ReadFile(resolved)
	if err != nil {
		return prefs, nil // Graceful degradation
	}

	if err := toml.Unmarshal(bytes, &prefs); err != nil {
		return Defaults(), fmt.Errorf("parse prefs: %w", err)
	}

	return prefs.normalize(), nil
}

// normalize fills blanks with defaults and drops a log filter pulse would
// not recognize, so a hand-edited file cannot leave the logs view empty.
func (p Prefs) normalize() Prefs {
	if strings.TrimSpace(p.Theme) == "" {
		p.Theme = defaultTheme
	}
	if strings.TrimSpace(p.View) == "" {
		p.View = defaultView
	}
	p.LogComponent = strings.ToLower(strings.TrimSpace(p.LogComponent))
	if !slices.Contains(logtail.Components, p.LogComponent) {
		p.LogComponent = ""
	}
	p.LogLevel = strings.ToUpper(strings.TrimSpace(p.LogLevel))
	if !slices.Contains(logtail.Levels, p.LogLevel) {
		p.LogLevel = ""
	}
	return p
}

// LogFilter returns the stored logs view filter.
func (p Prefs) LogFilter() logtail.Filter {
	return logtail.Filter{Component: p.LogComponent, MinLevel: p.LogLevel}
}

// Save writes preferences to the given path, creating directories as needed.
func Save(path string, p Prefs) error {
	resolved, err := resolvePath(path)
	if err != nil {
		return fmt.Errorf("resolve path: %w", err)
	}

	dir := filepath.Dir(resolved)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create prefs dir: %w", err)
	}

	bytes, err := toml.Marshal(p.normalize())
	if err != nil {
		return fmt.Errorf("marshal prefs: %w", err)
	}

	if err := os.WriteFile(resolved, bytes, 0o644); err != nil {
		return fmt.Errorf("write prefs: %w", err)
	}

	return nil
}

func resolvePath(path string) (string, error) {
	if strings.TrimSpace(path) == "" {
		return expandPath(defaultPrefsPath)
	}
	return expandPath(path)
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
