package logtail

import (
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
	"time"
)

func writeLog(t *testing.T, lines ...string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "pulse.log")
	if err := os.WriteFile(path, []byte(strings.Join(lines, "\n")+"\n"), 0o644); err != nil {
		t.Fatalf("write log: %v", err)
	}
	return path
}

func messages(entries []Entry) []string {
	out := make([]string, len(entries))
	for i, e := range entries {
		out[i] = e.Message
	}
	return out
}

func TestTail_Limit(t *testing.T) {
	var lines []string
	var all []string
	for i := 1; i <= 10; i++ {
		lines = append(lines, fmt.Sprintf("level=INFO msg=m%d component=live", i))
		all = append(all, fmt.Sprintf("m%d", i))
	}
	path := writeLog(t, lines...)

	tests := []struct {
		name  string
		limit int
		want  []string
	}{
		{name: "all (0)", limit: 0, want: all},
		{name: "all (negative)", limit: -1, want: all},
		{name: "newest 3", limit: 3, want: all[7:]},
		{name: "exactly all", limit: 10, want: all},
		{name: "more than exists", limit: 20, want: all},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Tail(path, tt.limit, Filter{})
			if err != nil {
				t.Fatalf("Tail() error = %v", err)
			}
			if !reflect.DeepEqual(messages(got), tt.want) {
				t.Errorf("Tail() = %v, want %v", messages(got), tt.want)
			}
		})
	}
}

func TestTail_FilterKeepsNewestMatches(t *testing.T) {
	path := writeLog(t,
		"level=INFO msg=joined component=realtime",
		"level=DEBUG msg=flushed component=live events=2",
		"level=WARN msg=\"subscription lost\" component=realtime",
		"panic: runtime error",
		"level=INFO msg=\"snapshot fetched\" component=live",
		"level=ERROR msg=\"rest failed\" component=poller",
		"level=WARN msg=\"heartbeat late\" component=realtime",
	)

	tests := []struct {
		name   string
		limit  int
		filter Filter
		want   []string
	}{
		{name: "component", filter: Filter{Component: "live"}, want: []string{"flushed", "snapshot fetched"}},
		{name: "component newest only", limit: 1, filter: Filter{Component: "realtime"}, want: []string{"heartbeat late"}},
		{name: "level keeps unleveled lines", filter: Filter{MinLevel: "WARN"}, want: []string{"subscription lost", "panic: runtime error", "rest failed", "heartbeat late"}},
		{name: "component and level", filter: Filter{Component: "realtime", MinLevel: "WARN"}, want: []string{"subscription lost", "heartbeat late"}},
		{name: "no match", filter: Filter{Component: "ui"}, want: nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Tail(path, tt.limit, tt.filter)
			if err != nil {
				t.Fatalf("Tail() error = %v", err)
			}
			var gotMsgs []string
			if len(got) > 0 {
				gotMsgs = messages(got)
			}
			if !reflect.DeepEqual(gotMsgs, tt.want) {
				t.Errorf("Tail() = %v, want %v", gotMsgs, tt.want)
			}
		})
	}
}

func TestTail_CompactsLongLogs(t *testing.T) {
	var lines []string
	for i := range 1000 {
		component := "live"
		if i%2 == 1 {
			component = "realtime"
		}
		lines = append(lines, fmt.Sprintf("level=INFO msg=m%d component=%s", i, component))
	}
	path := writeLog(t, lines...)

	got, err := Tail(path, 4, Filter{Component: "realtime"})
	if err != nil {
		t.Fatalf("Tail() error = %v", err)
	}
	want := []string{"m993", "m995", "m997", "m999"}
	if !reflect.DeepEqual(messages(got), want) {
		t.Fatalf("Tail() = %v, want %v", messages(got), want)
	}
}

func TestTail_MissingFile(t *testing.T) {
	entries, err := Tail(filepath.Join(t.TempDir(), "absent.log"), 10, Filter{})
	if err != nil || entries != nil {
		t.Fatalf("Tail() = %v, %v; want nil, nil", entries, err)
	}
}

func TestFilter_Match(t *testing.T) {
	warn := Parse("level=WARN+2 msg=x component=live")
	if !(Filter{MinLevel: "WARN"}).Match(warn) {
		t.Fatalf("WARN+2 should pass a WARN filter")
	}
	if (Filter{MinLevel: "ERROR"}).Match(warn) {
		t.Fatalf("WARN+2 should not pass an ERROR filter")
	}
	if (Filter{Component: "live", MinLevel: "info"}).Match(Parse("level=DEBUG msg=y component=live")) {
		t.Fatalf("DEBUG should not pass an info filter")
	}
}

func TestFilter_Label(t *testing.T) {
	if got := (Filter{}).Label(); got != "all ≥any" {
		t.Fatalf("Label() = %q", got)
	}
	if got := (Filter{Component: "poller", MinLevel: "WARN"}).Label(); got != "poller ≥warn" {
		t.Fatalf("Label() = %q", got)
	}
}

func TestParse(t *testing.T) {
	line := `time=2026-10-14T09:30:00.123Z level=WARN msg="subscription lost" component=live state=errored note="a \"quoted\" value"`
	e := Parse(line)

	want := time.Date(2026, 10, 14, 9, 30, 0, 123000000, time.UTC)
	if !e.Time.Equal(want) {
		t.Fatalf("Time = %v, want %v", e.Time, want)
	}
	if e.Level != "WARN" {
		t.Fatalf("Level = %q, want WARN", e.Level)
	}
	if e.Message != "subscription lost" {
		t.Fatalf("Message = %q, want %q", e.Message, "subscription lost")
	}
	wantAttrs := []Attr{{"component", "live"}, {"state", "errored"}, {"note", `a "quoted" value`}}
	if !reflect.DeepEqual(e.Attrs, wantAttrs) {
		t.Fatalf("Attrs = %#v, want %#v", e.Attrs, wantAttrs)
	}
	if e.Attr("state") != "errored" || e.Attr("missing") != "" {
		t.Fatalf("Attr lookup failed: state=%q missing=%q", e.Attr("state"), e.Attr("missing"))
	}
	if e.Raw != line {
		t.Fatalf("Raw = %q, want original line", e.Raw)
	}
}

func TestParse_NonStructuredLine(t *testing.T) {
	tests := []string{
		"panic: runtime error",
		"",
		`msg="unterminated`,
		"=value",
	}
	for _, line := range tests {
		e := Parse(line)
		if e.Level != "" || len(e.Attrs) != 0 {
			t.Fatalf("Parse(%q) = %#v, want raw entry", line, e)
		}
		if e.Message != line {
			t.Fatalf("Parse(%q).Message = %q, want raw line", line, e.Message)
		}
	}
}
