package ui

import (
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/five82/pulse/internal/analytics"
)

// tableRows is how many record rows fit under the table header.
func (m Model) tableRows() int {
	h := m.contentHeight() - 1
	if m.width < LayoutCompactWidth {
		// Detail pane is stacked below the table.
		h = m.contentHeight()/2 - 1
	}
	return max(h, 1)
}

// renderRecords renders the current collection as a table with a detail pane
// for the selected record.
func (m Model) renderRecords() string {
	styles := m.theme.Styles()
	records := m.currentRecords()
	height := m.contentHeight()

	if len(records) == 0 {
		msg := "No records yet"
		if m.snapshot.LastFetched.IsZero() {
			msg = "Waiting for first fetch..."
		}
		return lipgloss.Place(m.width, height, lipgloss.Center, lipgloss.Center, styles.MutedText.Render(msg))
	}

	c, _ := m.currentView.collection()
	sel := clamp(m.selected[m.currentView], 0, len(records)-1)

	if m.width < LayoutCompactWidth {
		table := m.renderTable(c, records, sel, m.width, maxColumns)
		detail := m.renderDetail(records[sel], m.width, height-m.tableRows()-1)
		return lipgloss.JoinVertical(lipgloss.Left, table, detail)
	}

	limit := maxColumns
	if m.width >= LayoutWideWidth {
		limit = maxWideColumns
	}
	tableWidth := m.width * 3 / 5
	table := m.renderTable(c, records, sel, tableWidth, limit)
	detail := m.renderDetail(records[sel], m.width-tableWidth, height)
	return lipgloss.JoinHorizontal(lipgloss.Top, table, detail)
}

func (m Model) renderTable(c analytics.Collection, records []analytics.Record, sel, width, limit int) string {
	styles := m.theme.Styles()
	now := m.now()
	cols := columnsFor(c, records, limit)

	widths := make([]int, len(cols))
	for i, col := range cols {
		widths[i] = lipgloss.Width(col)
	}
	for _, r := range records {
		for i, col := range cols {
			w := lipgloss.Width(truncateEnd(formatCell(r, col, now), maxCellWidth))
			widths[i] = max(widths[i], w)
		}
	}

	rows := m.tableRows()
	start := 0
	if sel >= rows {
		start = sel - rows + 1
	}
	end := min(start+rows, len(records))

	lines := make([]string, 0, end-start+1)
	header := make([]string, len(cols))
	for i, col := range cols {
		header[i] = padRight(strings.ToUpper(col), widths[i])
	}
	lines = append(lines, styles.AccentText.Bold(true).Render(fitWidth(strings.Join(header, "  "), width)))

	for idx := start; idx < end; idx++ {
		cells := make([]string, len(cols))
		for i, col := range cols {
			cells[i] = padRight(truncateEnd(formatCell(records[idx], col, now), maxCellWidth), widths[i])
		}
		line := fitWidth(strings.Join(cells, "  "), width)
		if idx == sel {
			lines = append(lines, styles.Selected.Render(line))
		} else {
			lines = append(lines, styles.Text.Render(line))
		}
	}
	return strings.Join(lines, "\n")
}

func (m Model) renderDetail(r analytics.Record, width, height int) string {
	styles := m.theme.Styles()
	inner := max(width-4, 10)

	keys := sortedKeys(r)
	keyWidth := 0
	for _, k := range keys {
		keyWidth = max(keyWidth, lipgloss.Width(k))
	}
	keyWidth = min(keyWidth, inner/3)

	lines := make([]string, 0, len(keys))
	for _, k := range keys {
		value := truncateEnd(strings.ReplaceAll(r.String(k), "\n", " "), inner-keyWidth-1)
		lines = append(lines, styles.MutedText.Render(padRight(truncateEnd(k, keyWidth), keyWidth))+" "+styles.Text.Render(value))
	}
	if height > 2 && len(lines) > height-2 {
		lines = lines[:height-2]
	}

	return lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(lipgloss.Color(m.theme.Border)).
		Padding(0, 1).
		Width(max(width-2, 1)).
		Render(strings.Join(lines, "\n"))
}

func padRight(s string, width int) string {
	if gap := width - lipgloss.Width(s); gap > 0 {
		return s + strings.Repeat(" ", gap)
	}
	return s
}

// fitWidth pads or trims plain text to exactly width cells.
func fitWidth(s string, width int) string {
	if lipgloss.Width(s) > width {
		return truncateEnd(s, width)
	}
	return padRight(s, width)
}
