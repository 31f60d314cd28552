package ui

import (
	"testing"

	"github.com/five82/pulse/internal/prefs"
)

func TestThemeNames(t *testing.T) {
	names := ThemeNames()
	if len(names) != 3 {
		t.Fatalf("ThemeNames() returned %d names, want 3", len(names))
	}
	for _, name := range names {
		if got := GetTheme(name).Name; got != name {
			t.Fatalf("GetTheme(%q).Name = %q", name, got)
		}
	}
}

func TestNextTheme(t *testing.T) {
	if got := NextTheme("Nightfox"); got != "Kanagawa" {
		t.Fatalf("NextTheme(Nightfox) = %q, want Kanagawa", got)
	}
	if got := NextTheme("Slate"); got != "Nightfox" {
		t.Fatalf("NextTheme(Slate) = %q, want Nightfox", got)
	}
	if got := NextTheme("unknown"); got != "Nightfox" {
		t.Fatalf("NextTheme(unknown) = %q, want Nightfox", got)
	}
}

func TestGetTheme_FallsBackToDefault(t *testing.T) {
	if got := GetTheme("missing").Name; got != "Nightfox" {
		t.Fatalf("GetTheme(missing) = %q, want Nightfox", got)
	}
	if got := GetTheme(prefs.Defaults().Theme).Name; got != prefs.Defaults().Theme {
		t.Fatalf("default prefs theme %q is not a known theme", prefs.Defaults().Theme)
	}
}

func TestStatusColor(t *testing.T) {
	th := GetTheme("Slate")
	if got := th.StatusColor("  LIVE "); got != th.StatusColors["live"] {
		t.Fatalf("StatusColor(LIVE) = %q, want %q", got, th.StatusColors["live"])
	}
	if got := th.StatusColor("WARN"); got != th.StatusColors["warn"] {
		t.Fatalf("StatusColor(WARN) = %q, want %q", got, th.StatusColors["warn"])
	}
	if got := th.StatusColor("unknown"); got != th.Muted {
		t.Fatalf("StatusColor(unknown) = %q, want %q", got, th.Muted)
	}
}

func TestThemesDefineEveryStatus(t *testing.T) {
	statuses := []string{"live", "polling", "offline", "paused", "insert", "update", "debug", "info", "warn", "error"}
	for _, name := range ThemeNames() {
		th := GetTheme(name)
		for _, s := range statuses {
			if th.StatusColors[s] == "" {
				t.Errorf("theme %s missing status color %q", name, s)
			}
		}
	}
}
