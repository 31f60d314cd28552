package app

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/five82/pulse/internal/analytics"
	"github.com/five82/pulse/internal/config"
	"github.com/five82/pulse/internal/live"
	"github.com/five82/pulse/internal/prefs"
	"github.com/five82/pulse/internal/realtime"
	"github.com/five82/pulse/internal/state"
	"github.com/five82/pulse/internal/supabase"
	"github.com/five82/pulse/internal/ui"
)

// startupTimeout bounds the initial fetch and subscribe before the UI opens.
const startupTimeout = 10 * time.Second

// Options configure the pulse application.
type Options struct {
	ConfigPath string
	PrefsPath  string // empty uses default ~/.config/pulse/prefs.toml
	PollEvery  int    // seconds; zero uses the configured criticality
	PollOnly   bool   // skip the realtime subscription
	Device     string // overrides config when set
	Network    string // overrides config when set
	Debug      bool
}

// Run boots the pulse TUI until the context is cancelled or the user quits.
func Run(ctx context.Context, opts Options) error {
	cfg, err := config.Load(opts.ConfigPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if err := applyOverrides(&cfg, opts); err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	logger, logFile, err := openLogger(cfg.LogFile, opts.Debug)
	if err != nil {
		return err
	}
	defer func() { _ = logFile.Close() }()

	userPrefs, prefsErr := prefs.Load(opts.PrefsPath)
	if prefsErr != nil {
		logger.Warn("ignoring unreadable prefs", "error", prefsErr)
	}

	rest, err := supabase.NewClient(cfg.SupabaseURL, cfg.AnonKey, cfg.Schema)
	if err != nil {
		return fmt.Errorf("init supabase client: %w", err)
	}

	var subscriber live.Subscriber
	if !opts.PollOnly {
		rt, err := realtime.NewClient(realtime.Options{
			ProjectURL: cfg.SupabaseURL,
			APIKey:     cfg.AnonKey,
			Logger:     logger.With("component", "realtime"),
		})
		if err != nil {
			return fmt.Errorf("init realtime client: %w", err)
		}
		defer func() { _ = rt.Close() }()
		subscriber = live.FromRealtime(rt)
	}

	store := &state.Store{}
	coord, err := live.New(live.Options{
		Querier:    rest,
		Subscriber: subscriber,
		Store:      store,
		Logger:     logger.With("component", "live"),
		Env:        cfg.Env,
		Tables:     tablesFrom(cfg.Tables),
		Schema:     cfg.Schema,
		Channel:    cfg.Channel,
		Filter:     filterFrom(cfg),
	})
	if err != nil {
		return fmt.Errorf("init coordinator: %w", err)
	}
	defer func() {
		if cerr := coord.Close(); cerr != nil {
			logger.Warn("close coordinator", "error", cerr)
		}
	}()

	logger.Info("pulse starting",
		"env", cfg.Env.String(),
		"criticality", string(cfg.Criticality),
		"realtime", !opts.PollOnly,
	)

	// A failed first fetch is not fatal: the header shows the error and the
	// poller keeps retrying.
	startCtx, cancel := context.WithTimeout(ctx, startupTimeout)
	if err := coord.Start(startCtx); err != nil {
		logger.Warn("initial fetch failed", "error", err)
	}
	cancel()

	interval := cfg.RefreshInterval()
	if opts.PollEvery > 0 {
		interval = time.Duration(opts.PollEvery) * time.Second
	}
	pollCtx, stopPoller := context.WithCancel(ctx)
	pollerDone := StartPoller(pollCtx, logger.With("component", "poller"), coord, interval)
	defer func() {
		stopPoller()
		<-pollerDone
	}()

	return ui.Run(ui.Options{
		Context:    ctx,
		Store:      store,
		Controller: coord,
		Config:     &cfg,
		Logger:     logger.With("component", "ui"),
		ThemeName:  userPrefs.Theme,
		View:       userPrefs.View,
		PrefsPath:  opts.PrefsPath,
		LogPath:    cfg.LogFile,
		LogFilter:  userPrefs.LogFilter(),
	})
}

// applyOverrides applies command-line settings on top of the loaded config.
func applyOverrides(cfg *config.Config, opts Options) error {
	if v := strings.TrimSpace(opts.Device); v != "" {
		device, err := analytics.ParseDeviceClass(v)
		if err != nil {
			return err
		}
		cfg.Env.Device = device
	}
	if v := strings.TrimSpace(opts.Network); v != "" {
		network, err := analytics.ParseNetworkClass(v)
		if err != nil {
			return err
		}
		cfg.Env.Network = network
	}
	if opts.PollEvery < 0 {
		return errors.New("poll interval must not be negative")
	}
	return nil
}

func tablesFrom(t config.Tables) live.Tables {
	return live.Tables{
		Engagement: t.Engagement,
		Sessions:   t.Sessions,
		Health:     t.Health,
		News:       t.News,
	}
}

// filterFrom builds the equality filter applied to every query and binding.
func filterFrom(cfg config.Config) *supabase.Filter {
	if cfg.FilterColumn == "" {
		return nil
	}
	return &supabase.Filter{Column: cfg.FilterColumn, Op: "eq", Value: cfg.FilterValue}
}
