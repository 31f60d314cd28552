package ui

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/five82/pulse/internal/analytics"
	"github.com/five82/pulse/internal/config"
	"github.com/five82/pulse/internal/live"
	"github.com/five82/pulse/internal/logtail"
	"github.com/five82/pulse/internal/prefs"
	"github.com/five82/pulse/internal/state"
)

// View represents the current active view.
type View int

const (
	ViewEngagement View = iota
	ViewSessions
	ViewHealth
	ViewLogs
)

const viewCount = int(ViewLogs) + 1

var viewOrder = []View{ViewEngagement, ViewSessions, ViewHealth, ViewLogs}

func (v View) String() string {
	switch v {
	case ViewSessions:
		return "sessions"
	case ViewHealth:
		return "health"
	case ViewLogs:
		return "logs"
	default:
		return "engagement"
	}
}

// Title is the tab label for v.
func (v View) Title() string {
	switch v {
	case ViewSessions:
		return "Sessions"
	case ViewHealth:
		return "Health"
	case ViewLogs:
		return "Logs"
	default:
		return "Engagement"
	}
}

// collection reports which record list v shows; the Logs view has none.
func (v View) collection() (analytics.Collection, bool) {
	switch v {
	case ViewEngagement:
		return analytics.CollectionEngagement, true
	case ViewSessions:
		return analytics.CollectionBehavior, true
	case ViewHealth:
		return analytics.CollectionHealth, true
	default:
		return 0, false
	}
}

func parseView(name string) View {
	for _, v := range viewOrder {
		if strings.EqualFold(strings.TrimSpace(name), v.String()) {
			return v
		}
	}
	return ViewEngagement
}

// Controller is the part of the live coordinator the UI drives.
type Controller interface {
	Refresh(ctx context.Context) error
	SetVisible(visible bool)
	Stats() live.Stats
	Policy() analytics.Policy
}

// Options configures the UI.
type Options struct {
	Context    context.Context
	Store      *state.Store
	Controller Controller
	Config     *config.Config
	Logger     *slog.Logger
	PollTick   time.Duration
	ThemeName  string
	View       string
	PrefsPath  string
	LogPath    string
	LogFilter  logtail.Filter
}

// Model is the root application state for Bubble Tea.
type Model struct {
	// Configuration
	ctx       context.Context
	store     *state.Store
	ctrl      Controller
	config    *config.Config
	logger    *slog.Logger
	prefsPath string
	logPath   string
	pollTick  time.Duration
	now       func() time.Time

	// UI state
	keys        keyMap
	help        help.Model
	theme       Theme
	currentView View
	width       int
	height      int
	ready       bool
	showHelp    bool

	// Visibility: the coordinator ingests only while the terminal has
	// focus and the user has not paused.
	focused bool
	paused  bool
	visible bool

	// Data state
	snapshot    state.Snapshot
	stats       live.Stats
	lastUpdated time.Time
	selected    [viewCount]int
	refreshing  bool
	refreshErr  error

	// Log state
	logViewport viewport.Model
	logEntries  []logtail.Entry
	logErr      error
	logFilter   logtail.Filter
}

// New creates a new Bubble Tea model.
func New(opts Options) Model {
	ctx := opts.Context
	if ctx == nil {
		ctx = context.Background()
	}

	pollTick := opts.PollTick
	if pollTick == 0 {
		pollTick = DefaultUIInterval
	}

	themeName := opts.ThemeName
	if themeName == "" {
		themeName = prefs.Defaults().Theme
	}

	prefsPath := opts.PrefsPath
	if prefsPath == "" {
		prefsPath = prefs.DefaultPath()
	}

	logPath := opts.LogPath
	if logPath == "" && opts.Config != nil {
		logPath = opts.Config.LogFile
	}

	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	theme := GetTheme(themeName)
	m := Model{
		ctx:         ctx,
		store:       opts.Store,
		ctrl:        opts.Controller,
		config:      opts.Config,
		logger:      logger,
		prefsPath:   prefsPath,
		logPath:     logPath,
		pollTick:    pollTick,
		now:         time.Now,
		keys:        DefaultKeyMap(),
		help:        help.New(),
		theme:       theme,
		currentView: parseView(opts.View),
		focused:     true,
		visible:     true,
		logFilter:   opts.LogFilter,
	}
	m.applyHelpStyles()
	return m
}

// Init implements tea.Model.
func (m Model) Init() tea.Cmd {
	cmds := []tea.Cmd{
		tea.EnterAltScreen,
		tickCmd(m.pollTick),
	}
	if m.store != nil {
		cmds = append(cmds, fetchSnapshotCmd(m.store, m.ctrl))
	}
	if m.currentView == ViewLogs {
		cmds = append(cmds, m.refreshLogs())
	}
	return tea.Batch(cmds...)
}

// Update implements tea.Model.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.handleKey(msg)

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		if !m.ready {
			m.logViewport = viewport.New(m.width, m.contentHeight())
		}
		m.ready = true
		m.help.Width = m.width
		m.resizeLogViewport()
		return m, nil

	case tea.FocusMsg:
		m.focused = true
		m.applyVisibility()
		return m, m.fetchSnapshot()

	case tea.BlurMsg:
		m.focused = false
		m.applyVisibility()
		return m, nil

	case tickMsg:
		return m.handleTick()

	case snapshotMsg:
		m.snapshot = msg.snapshot
		m.stats = msg.stats
		m.lastUpdated = m.now()
		m.clampSelection()
		return m, nil

	case refreshDoneMsg:
		m.refreshing = false
		m.refreshErr = msg.err
		if msg.err != nil {
			m.logger.Warn("manual refresh failed", "error", msg.err)
		}
		return m, m.fetchSnapshot()

	case logsMsg:
		m.handleLogs(msg)
		return m, nil
	}

	return m, nil
}

// View implements tea.Model.
func (m Model) View() string {
	if !m.ready {
		return "Loading..."
	}
	if m.showHelp {
		return m.renderHelp()
	}
	return m.renderMain()
}

// handleKey processes keyboard input.
func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if m.showHelp {
		// Any key closes help
		m.showHelp = false
		return m, nil
	}

	switch {
	case key.Matches(msg, m.keys.Quit):
		return m, tea.Quit

	case key.Matches(msg, m.keys.Help):
		m.showHelp = true
		return m, nil

	case key.Matches(msg, m.keys.CycleTheme):
		m.theme = GetTheme(NextTheme(m.theme.Name))
		m.applyHelpStyles()
		m.savePrefs()
		return m, nil

	case key.Matches(msg, m.keys.Tab):
		return m.switchView(m.offsetView(1))

	case key.Matches(msg, m.keys.ShiftTab):
		return m.switchView(m.offsetView(-1))

	case key.Matches(msg, m.keys.ViewEngagement):
		return m.switchView(ViewEngagement)

	case key.Matches(msg, m.keys.ViewSessions):
		return m.switchView(ViewSessions)

	case key.Matches(msg, m.keys.ViewHealth):
		return m.switchView(ViewHealth)

	case key.Matches(msg, m.keys.ViewLogs):
		return m.switchView(ViewLogs)

	case key.Matches(msg, m.keys.Refresh):
		if m.ctrl == nil || m.refreshing {
			return m, nil
		}
		m.refreshing = true
		return m, refreshCmd(m.ctx, m.ctrl)

	case key.Matches(msg, m.keys.Pause):
		m.paused = !m.paused
		m.applyVisibility()
		return m, m.fetchSnapshot()
	}

	if m.currentView == ViewLogs {
		return m.handleLogsKey(msg)
	}
	return m.handleRecordsKey(msg)
}

func (m Model) offsetView(delta int) View {
	n := len(viewOrder)
	return viewOrder[((int(m.currentView)+delta)%n+n)%n]
}

func (m Model) switchView(v View) (tea.Model, tea.Cmd) {
	if v == m.currentView {
		return m, nil
	}
	m.currentView = v
	m.savePrefs()
	if v == ViewLogs {
		return m, m.refreshLogs()
	}
	return m, nil
}

// handleRecordsKey moves the selection in a record view.
func (m Model) handleRecordsKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	count := len(m.currentRecords())
	if count == 0 {
		return m, nil
	}
	sel := &m.selected[m.currentView]
	page := max(m.tableRows(), 1)

	switch {
	case key.Matches(msg, m.keys.Down):
		*sel = min(*sel+1, count-1)
	case key.Matches(msg, m.keys.Up):
		*sel = max(*sel-1, 0)
	case key.Matches(msg, m.keys.Top):
		*sel = 0
	case key.Matches(msg, m.keys.Bottom):
		*sel = count - 1
	case key.Matches(msg, m.keys.PageDown):
		*sel = min(*sel+page, count-1)
	case key.Matches(msg, m.keys.PageUp):
		*sel = max(*sel-page, 0)
	}
	return m, nil
}

// applyVisibility forwards focus and pause changes to the controller.
func (m *Model) applyVisibility() {
	visible := m.focused && !m.paused
	if visible == m.visible {
		return
	}
	m.visible = visible
	if m.ctrl != nil {
		m.ctrl.SetVisible(visible)
	}
}

func (m *Model) clampSelection() {
	for _, v := range viewOrder {
		c, ok := v.collection()
		if !ok {
			continue
		}
		n := len(m.snapshot.Data.Records(c))
		m.selected[v] = clamp(m.selected[v], 0, n-1)
	}
}

func (m Model) currentRecords() []analytics.Record {
	c, ok := m.currentView.collection()
	if !ok {
		return nil
	}
	return m.snapshot.Data.Records(c)
}

func (m *Model) savePrefs() {
	if m.prefsPath == "" {
		return
	}
	p := prefs.Prefs{
		Theme:        m.theme.Name,
		View:         m.currentView.String(),
		LogComponent: m.logFilter.Component,
		LogLevel:     m.logFilter.MinLevel,
	}
	if err := prefs.Save(m.prefsPath, p); err != nil {
		m.logger.Warn("save prefs failed", "error", err)
	}
}

func (m *Model) applyHelpStyles() {
	m.help.Styles.ShortKey = lipgloss.NewStyle().Foreground(lipgloss.Color(m.theme.Warning))
	m.help.Styles.ShortDesc = lipgloss.NewStyle().Foreground(lipgloss.Color(m.theme.Muted))
	m.help.Styles.ShortSeparator = lipgloss.NewStyle().Foreground(lipgloss.Color(m.theme.Faint))
}

func (m Model) controllerPolicy() analytics.Policy {
	if m.ctrl != nil {
		return m.ctrl.Policy()
	}
	return analytics.PolicyFor(m.snapshot.Env)
}

// handleTick processes the polling tick.
func (m Model) handleTick() (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd
	if cmd := m.fetchSnapshot(); cmd != nil {
		cmds = append(cmds, cmd)
	}
	if m.currentView == ViewLogs {
		cmds = append(cmds, m.refreshLogs())
	}
	cmds = append(cmds, tickCmd(m.pollTick))
	return m, tea.Batch(cmds...)
}

func (m Model) fetchSnapshot() tea.Cmd {
	if m.store == nil {
		return nil
	}
	return fetchSnapshotCmd(m.store, m.ctrl)
}

func (m Model) contentHeight() int {
	// Header and command bar take one line each.
	return max(m.height-2, 1)
}

// renderMain renders the full UI.
func (m Model) renderMain() string {
	var b strings.Builder
	b.WriteString(m.renderHeader())
	b.WriteString("\n")
	b.WriteString(m.renderCommandBar())
	b.WriteString("\n")
	b.WriteString(m.renderContent())
	return b.String()
}

func (m Model) renderContent() string {
	if m.currentView == ViewLogs {
		return m.renderLogs()
	}
	return m.renderRecords()
}

// Messages

type tickMsg time.Time

type snapshotMsg struct {
	snapshot state.Snapshot
	stats    live.Stats
}

type refreshDoneMsg struct {
	err error
}

type logsMsg struct {
	filter  logtail.Filter
	entries []logtail.Entry
	err     error
}

// Commands

func tickCmd(d time.Duration) tea.Cmd {
	return tea.Tick(d, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

func fetchSnapshotCmd(store *state.Store, ctrl Controller) tea.Cmd {
	return func() tea.Msg {
		msg := snapshotMsg{snapshot: store.Snapshot()}
		if ctrl != nil {
			msg.stats = ctrl.Stats()
		}
		return msg
	}
}

func refreshCmd(ctx context.Context, ctrl Controller) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(ctx, RefreshTimeout)
		defer cancel()
		return refreshDoneMsg{err: ctrl.Refresh(ctx)}
	}
}

// Run starts the Bubble Tea program. It returns nil when ctx is cancelled.
func Run(opts Options) error {
	m := New(opts)
	p := tea.NewProgram(m,
		tea.WithAltScreen(),
		tea.WithReportFocus(),
		tea.WithContext(m.ctx),
	)
	_, err := p.Run()
	if errors.Is(err, tea.ErrProgramKilled) && m.ctx.Err() != nil {
		return nil
	}
	return err
}
