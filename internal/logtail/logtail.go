package logtail

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"strings"
)

// Components are the component attribute values pulse writes, in the order
// the logs view cycles through them.
var Components = []string{"live", "realtime", "poller", "ui"}

// Levels are the slog levels a Filter can start from, lowest first.
var Levels = []string{"DEBUG", "INFO", "WARN", "ERROR"}

// Filter selects records from a pulse log. The zero Filter keeps everything.
type Filter struct {
	// Component keeps records whose component attribute equals it. Lines
	// without one (panics, foreign output) are dropped while it is set.
	Component string
	// MinLevel drops records below it. Lines with no level are kept.
	MinLevel string
}

// Match reports whether e passes the filter.
func (f Filter) Match(e Entry) bool {
	if f.Component != "" && e.Attr("component") != f.Component {
		return false
	}
	if f.MinLevel == "" || e.Level == "" {
		return true
	}
	return levelRank(e.Level) >= levelRank(f.MinLevel)
}

// Label describes the filter for a status line.
func (f Filter) Label() string {
	component := f.Component
	if component == "" {
		component = "all"
	}
	level := f.MinLevel
	if level == "" {
		level = "any"
	}
	return component + " ≥" + strings.ToLower(level)
}

func levelRank(level string) int {
	// slog writes offsets such as WARN+2 for custom levels.
	base, _, _ := strings.Cut(strings.ToUpper(level), "+")
	base, _, _ = strings.Cut(base, "-")
	for i, l := range Levels {
		if l == base {
			return i
		}
	}
	return 0
}

// Tail parses the file at path and returns up to limit of the newest entries
// that pass f, oldest first. A non-positive limit keeps every match. A
// missing file yields no entries and no error, since the logger may not have
// written anything yet.
func Tail(path string, limit int, f Filter) ([]Entry, error) {
	file, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("open log: %w", err)
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	var kept []Entry
	for scanner.Scan() {
		e := Parse(scanner.Text())
		if !f.Match(e) {
			continue
		}
		kept = append(kept, e)
		// Compact once the slice holds twice the limit so memory stays
		// bounded on long logs.
		if limit > 0 && len(kept) >= 2*limit {
			kept = append(kept[:0], kept[len(kept)-limit:]...)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read log: %w", err)
	}
	if limit > 0 && len(kept) > limit {
		kept = kept[len(kept)-limit:]
	}
	return kept, nil
}
