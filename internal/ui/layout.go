package ui

import "time"

// Terminal width thresholds for responsive layouts.
const (
	// LayoutCompactWidth is the threshold below which the detail pane is
	// stacked under the table instead of beside it.
	LayoutCompactWidth = 100

	// LayoutWideWidth is the minimum width to show every record column.
	LayoutWideWidth = 150
)

// Table limits.
const (
	// maxColumns caps the columns shown for one collection in compact mode.
	maxColumns = 4

	// maxWideColumns caps the columns shown for one collection.
	maxWideColumns = 7

	// maxCellWidth truncates long values in table cells.
	maxCellWidth = 28
)

// Log display limits.
const (
	// LogBufferLimit is the maximum number of log lines read for the Logs view.
	LogBufferLimit = 2000
)

// Timing constants.
const (
	// DefaultUIInterval is the default UI refresh interval.
	DefaultUIInterval = time.Second

	// RefreshTimeout bounds a manual refresh triggered from the keyboard.
	RefreshTimeout = 15 * time.Second
)
