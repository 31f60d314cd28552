package ui

import (
	"strings"

	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/five82/pulse/internal/logtail"
)

func (m Model) refreshLogs() tea.Cmd {
	path := m.logPath
	filter := m.logFilter
	return func() tea.Msg {
		if path == "" {
			return logsMsg{filter: filter}
		}
		entries, err := logtail.Tail(path, LogBufferLimit, filter)
		return logsMsg{filter: filter, entries: entries, err: err}
	}
}

func (m *Model) handleLogs(msg logsMsg) {
	// A read started before the filter changed is dropped; the read for the
	// new filter is already on its way.
	if msg.filter != m.logFilter {
		return
	}
	follow := m.logViewport.AtBottom() || len(m.logEntries) == 0
	m.logEntries = msg.entries
	m.logErr = msg.err
	m.logViewport.SetContent(m.formatLogs())
	if follow {
		m.logViewport.GotoBottom()
	}
}

func (m *Model) resizeLogViewport() {
	m.logViewport.Width = m.width
	m.logViewport.Height = max(m.contentHeight()-1, 1)
	m.logViewport.SetContent(m.formatLogs())
}

// setLogFilter swaps the filter, clears the stale entries and re-reads.
func (m Model) setLogFilter(f logtail.Filter) (tea.Model, tea.Cmd) {
	m.logFilter = f
	m.logEntries = nil
	m.logErr = nil
	m.logViewport.SetContent("")
	m.savePrefs()
	return m, m.refreshLogs()
}

// cycleOption steps current through "" and then options, wrapping to "".
func cycleOption(options []string, current string) string {
	for i, o := range options {
		if o == current {
			if i+1 < len(options) {
				return options[i+1]
			}
			return ""
		}
	}
	return options[0]
}

// logLevels are the filter steps offered in the view; DEBUG adds nothing
// over no filter at all.
var logLevels = logtail.Levels[1:]

func (m Model) handleLogsKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.LogComponent):
		f := m.logFilter
		f.Component = cycleOption(logtail.Components, f.Component)
		return m.setLogFilter(f)
	case key.Matches(msg, m.keys.LogLevel):
		f := m.logFilter
		f.MinLevel = cycleOption(logLevels, f.MinLevel)
		return m.setLogFilter(f)
	case key.Matches(msg, m.keys.Top):
		m.logViewport.GotoTop()
		return m, nil
	case key.Matches(msg, m.keys.Bottom):
		m.logViewport.GotoBottom()
		return m, nil
	}
	var cmd tea.Cmd
	m.logViewport, cmd = m.logViewport.Update(msg)
	return m, cmd
}

func (m Model) renderLogs() string {
	styles := m.theme.Styles()
	bar := styles.MutedText.Render("filter " + m.logFilter.Label())
	if m.logPath == "" || (len(m.logEntries) == 0 && m.logErr == nil) {
		msg := "No log output yet"
		switch {
		case m.logPath == "":
			msg = "Logging is disabled"
		case m.logFilter != (logtail.Filter{}):
			msg = "No records match " + m.logFilter.Label()
		}
		body := lipgloss.Place(m.width, max(m.contentHeight()-1, 1), lipgloss.Center, lipgloss.Center, styles.MutedText.Render(msg))
		return lipgloss.JoinVertical(lipgloss.Left, bar, body)
	}
	return lipgloss.JoinVertical(lipgloss.Left, bar, m.logViewport.View())
}

// formatLogs renders parsed entries, oldest first.
func (m Model) formatLogs() string {
	styles := m.theme.Styles()
	var b strings.Builder
	if m.logErr != nil {
		b.WriteString(styles.DangerText.Render("read " + m.logPath + ": " + m.logErr.Error()))
		b.WriteString("\n")
	}
	for i, e := range m.logEntries {
		if i > 0 {
			b.WriteString("\n")
		}
		b.WriteString(m.formatEntry(e))
	}
	return b.String()
}

func (m Model) formatEntry(e logtail.Entry) string {
	styles := m.theme.Styles()
	if e.Level == "" && e.Time.IsZero() {
		return styles.FaintText.Render(e.Message)
	}

	var parts []string
	if !e.Time.IsZero() {
		parts = append(parts, styles.FaintText.Render(e.Time.Local().Format("15:04:05")))
	}
	level := e.Level
	if level == "" {
		level = "INFO"
	}
	levelStyle := lipgloss.NewStyle().Foreground(lipgloss.Color(m.theme.StatusColor(level))).Width(5)
	parts = append(parts, levelStyle.Render(level))
	parts = append(parts, styles.Text.Render(e.Message))

	if len(e.Attrs) > 0 {
		attrs := make([]string, len(e.Attrs))
		for i, a := range e.Attrs {
			attrs[i] = a.Key + "=" + a.Value
		}
		parts = append(parts, styles.MutedText.Render(strings.Join(attrs, " ")))
	}
	return strings.Join(parts, " ")
}
