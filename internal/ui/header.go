package ui

import (
	"fmt"
	"strings"

	"github.com/five82/pulse/internal/analytics"
	"github.com/five82/pulse/internal/state"
)

// connectionMode names how data is currently arriving.
func connectionMode(s state.Snapshot) string {
	switch {
	case s.IsOffline():
		return "offline"
	case s.Live():
		return "live"
	default:
		return "polling"
	}
}

// renderHeader renders the status bar.
func (m Model) renderHeader() string {
	styles := m.theme.Styles().WithBackground(m.theme.Surface)
	bg := NewBgStyle(m.theme.Surface)
	compact := m.width < LayoutCompactWidth
	s := m.snapshot

	parts := []string{bg.Render("pulse", styles.Logo)}

	if s.LastFetched.IsZero() && s.LastError == nil {
		parts = append(parts, bg.Render("Connecting...", styles.WarningText.Bold(true)))
		return bg.FillLine(styles.Header.Render(bg.Join(parts, "  ")), m.width)
	}

	mode := connectionMode(s)
	parts = append(parts, styles.Badge(mode).Render(strings.ToUpper(mode)))
	if s.Paused {
		parts = append(parts, styles.Badge("paused").Render("PAUSED"))
	}
	if s.Degraded && mode != "offline" {
		parts = append(parts, bg.Render("degraded", styles.WarningText))
	}

	parts = append(parts, bg.Render(s.Env.String(), styles.MutedText))

	counts := []string{
		countLabel("eng", len(s.Data.Records(analytics.CollectionEngagement))),
		countLabel("ses", len(s.Data.Records(analytics.CollectionBehavior))),
		countLabel("hlth", len(s.Data.Records(analytics.CollectionHealth))),
	}
	parts = append(parts, bg.Render(strings.Join(counts, " "), styles.Text))

	if s.Pending > 0 {
		parts = append(parts, bg.Render(fmt.Sprintf("pending %d", s.Pending), styles.InfoText))
	}

	if !compact {
		if m.stats.Flushes > 0 || m.stats.Dropped > 0 {
			parts = append(parts, bg.Render(fmt.Sprintf("flushes %d  dropped %d", m.stats.Flushes, m.stats.Dropped), styles.FaintText))
		}
		if m.config != nil && m.config.SupabaseURL != "" {
			host := strings.TrimPrefix(strings.TrimPrefix(m.config.SupabaseURL, "https://"), "http://")
			parts = append(parts, bg.Render(truncateMiddle(host, 32), styles.FaintText))
		}
	}

	updated := s.Data.LastUpdated
	if updated.IsZero() {
		updated = s.LastFetched
	}
	parts = append(parts, bg.Render("updated "+sinceLabel(m.now(), updated), styles.MutedText))

	if m.refreshing {
		parts = append(parts, bg.Render("refreshing...", styles.WarningText))
	}

	if err := m.displayError(); err != nil {
		limit := 60
		if compact {
			limit = 30
		}
		parts = append(parts, bg.Render(truncateEnd(err.Error(), limit), styles.DangerText))
	}

	return bg.FillLine(styles.Header.Render(bg.Join(parts, "  ")), m.width)
}

// displayError prefers the manual refresh error, then the store's.
func (m Model) displayError() error {
	if m.refreshErr != nil {
		return m.refreshErr
	}
	return m.snapshot.LastError
}

func countLabel(name string, n int) string {
	return fmt.Sprintf("%s %d", name, n)
}

// renderCommandBar renders the view tabs and the short key help.
func (m Model) renderCommandBar() string {
	styles := m.theme.Styles()
	bg := NewBgStyle(m.theme.Surface)

	tabs := make([]string, 0, len(viewOrder))
	for i, v := range viewOrder {
		label := fmt.Sprintf("%d %s", i+1, v.Title())
		if v == m.currentView {
			tabs = append(tabs, styles.ActiveTab.Render(label))
		} else {
			tabs = append(tabs, styles.InactiveTab.Render(label))
		}
	}
	left := strings.Join(tabs, "")

	if m.width >= LayoutCompactWidth {
		left += bg.Spaces(2) + m.help.View(m.keys)
	}
	return bg.FillLine(left, m.width)
}
