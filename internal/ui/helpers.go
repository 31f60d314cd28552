package ui

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/five82/pulse/internal/analytics"
)

func humanizeDuration(d time.Duration) string {
	switch {
	case d < time.Second:
		return "now"
	case d < time.Minute:
		return fmt.Sprintf("%ds", int(d.Seconds()))
	case d < time.Hour:
		return fmt.Sprintf("%dm", int(d.Minutes()))
	case d < 24*time.Hour:
		h := int(d.Hours())
		if m := int(d.Minutes()) % 60; m > 0 {
			return fmt.Sprintf("%dh %dm", h, m)
		}
		return fmt.Sprintf("%dh", h)
	default:
		return fmt.Sprintf("%dd", int(d.Hours())/24)
	}
}

// sinceLabel renders how long ago t was, or "never" for the zero time.
func sinceLabel(now, t time.Time) string {
	if t.IsZero() {
		return "never"
	}
	label := humanizeDuration(now.Sub(t))
	if label == "now" {
		return label
	}
	return label + " ago"
}

func truncateMiddle(value string, limit int) string {
	value = strings.TrimSpace(value)
	if limit <= 0 || value == "" {
		return value
	}
	runes := []rune(value)
	if len(runes) <= limit {
		return value
	}
	if limit <= 3 {
		return string(runes[:limit])
	}
	keep := limit - 1 // room for ellipsis rune
	prefix := keep / 2
	suffix := keep - prefix
	return string(runes[:prefix]) + "…" + string(runes[len(runes)-suffix:])
}

func truncateEnd(value string, limit int) string {
	runes := []rune(value)
	if limit <= 0 || len(runes) <= limit {
		return value
	}
	if limit == 1 {
		return "…"
	}
	return string(runes[:limit-1]) + "…"
}

// preferredColumns lists the fields surfaced first for each collection.
var preferredColumns = map[analytics.Collection][]string{
	analytics.CollectionEngagement: {"id", "event_type", "page", "user_id", "duration", "created_at"},
	analytics.CollectionBehavior:   {"id", "user_id", "device", "page_views", "duration", "created_at"},
	analytics.CollectionHealth:     {"id", "metric", "title", "value", "category", "created_at"},
}

// columnsFor picks up to limit columns: preferred fields that appear in any
// record, then the remaining keys in sorted order.
func columnsFor(c analytics.Collection, records []analytics.Record, limit int) []string {
	present := make(map[string]struct{})
	for _, r := range records {
		for k := range r {
			present[k] = struct{}{}
		}
	}

	var cols []string
	seen := make(map[string]struct{})
	for _, name := range preferredColumns[c] {
		if _, ok := present[name]; ok {
			cols = append(cols, name)
			seen[name] = struct{}{}
		}
	}

	rest := make([]string, 0, len(present))
	for k := range present {
		if _, ok := seen[k]; !ok {
			rest = append(rest, k)
		}
	}
	sort.Strings(rest)
	cols = append(cols, rest...)

	if limit > 0 && len(cols) > limit {
		cols = cols[:limit]
	}
	return cols
}

// formatCell renders one field for a table cell. Timestamps are shown as
// clock times for today and dates otherwise.
func formatCell(r analytics.Record, field string, now time.Time) string {
	if strings.HasSuffix(field, "_at") || field == "session_start" || field == "timestamp" {
		if t := r.Time(field); !t.IsZero() {
			local := t.Local()
			if y, m, d := local.Date(); y == now.Year() && m == now.Month() && d == now.Day() {
				return local.Format("15:04:05")
			}
			return local.Format("2006-01-02")
		}
	}
	return strings.ReplaceAll(r.String(field), "\n", " ")
}

func sortedKeys(r analytics.Record) []string {
	keys := make([]string, 0, len(r))
	for k := range r {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func clamp(v, lo, hi int) int {
	if hi < lo {
		return lo
	}
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
