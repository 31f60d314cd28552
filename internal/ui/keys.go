package ui

import "github.com/charmbracelet/bubbles/key"

// keyMap defines all keyboard bindings for the application.
type keyMap struct {
	// Global
	Quit       key.Binding
	Help       key.Binding
	CycleTheme key.Binding
	Tab        key.Binding
	ShiftTab   key.Binding
	Refresh    key.Binding
	Pause      key.Binding

	// View switching
	ViewEngagement key.Binding
	ViewSessions   key.Binding
	ViewHealth     key.Binding
	ViewLogs       key.Binding

	// Logs view
	LogComponent key.Binding
	LogLevel     key.Binding

	// Navigation
	Up       key.Binding
	Down     key.Binding
	Top      key.Binding
	Bottom   key.Binding
	PageUp   key.Binding
	PageDown key.Binding
}

// DefaultKeyMap returns the default key bindings.
func DefaultKeyMap() keyMap {
	return keyMap{
		Quit: key.NewBinding(
			key.WithKeys("ctrl+c", "e"),
			key.WithHelp("e", "quit"),
		),
		Help: key.NewBinding(
			key.WithKeys("h", "?"),
			key.WithHelp("h/?", "help"),
		),
		CycleTheme: key.NewBinding(
			key.WithKeys("T"),
			key.WithHelp("T", "theme"),
		),
		Tab: key.NewBinding(
			key.WithKeys("tab"),
			key.WithHelp("tab", "next view"),
		),
		ShiftTab: key.NewBinding(
			key.WithKeys("shift+tab"),
			key.WithHelp("shift+tab", "previous view"),
		),
		Refresh: key.NewBinding(
			key.WithKeys("r"),
			key.WithHelp("r", "refresh"),
		),
		Pause: key.NewBinding(
			key.WithKeys("v"),
			key.WithHelp("v", "pause/resume"),
		),

		ViewEngagement: key.NewBinding(
			key.WithKeys("1"),
			key.WithHelp("1", "engagement"),
		),
		ViewSessions: key.NewBinding(
			key.WithKeys("2"),
			key.WithHelp("2", "sessions"),
		),
		ViewHealth: key.NewBinding(
			key.WithKeys("3"),
			key.WithHelp("3", "health"),
		),
		ViewLogs: key.NewBinding(
			key.WithKeys("4", "l"),
			key.WithHelp("4/l", "logs"),
		),

		LogComponent: key.NewBinding(
			key.WithKeys("c"),
			key.WithHelp("c", "log component"),
		),
		LogLevel: key.NewBinding(
			key.WithKeys("L"),
			key.WithHelp("L", "log level"),
		),

		Up: key.NewBinding(
			key.WithKeys("k", "up"),
			key.WithHelp("k/up", "move up"),
		),
		Down: key.NewBinding(
			key.WithKeys("j", "down"),
			key.WithHelp("j/down", "move down"),
		),
		Top: key.NewBinding(
			key.WithKeys("g", "home"),
			key.WithHelp("g", "top"),
		),
		Bottom: key.NewBinding(
			key.WithKeys("G", "end"),
			key.WithHelp("G", "bottom"),
		),
		PageUp: key.NewBinding(
			key.WithKeys("pgup", "ctrl+u"),
			key.WithHelp("pgup", "page up"),
		),
		PageDown: key.NewBinding(
			key.WithKeys("pgdown", "ctrl+d"),
			key.WithHelp("pgdown", "page down"),
		),
	}
}

// ShortHelp returns key bindings for the command bar.
func (k keyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.Tab, k.Refresh, k.Pause, k.CycleTheme, k.Help, k.Quit}
}

// FullHelp returns key bindings for the help overlay.
func (k keyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{
		{k.Tab, k.ShiftTab, k.ViewEngagement, k.ViewSessions, k.ViewHealth, k.ViewLogs},
		{k.Up, k.Down, k.Top, k.Bottom, k.PageUp, k.PageDown},
		{k.LogComponent, k.LogLevel},
		{k.Refresh, k.Pause, k.CycleTheme, k.Help, k.Quit},
	}
}
