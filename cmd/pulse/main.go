package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/five82/pulse/internal/app"
)

func main() {
	os.Exit(run())
}

func run() int {
	configPath := flag.String("config", "", "override config path (optional, defaults to ~/.config/pulse/config.toml)")
	prefsPath := flag.String("prefs", "", "override prefs path (optional)")
	pollSeconds := flag.Int("poll", 0, "refresh interval in seconds (optional, defaults to the configured criticality)")
	pollOnly := flag.Bool("poll-only", false, "disable the realtime subscription and poll only")
	device := flag.String("device", "", "device class: desktop or mobile (optional)")
	network := flag.String("network", "", "network class: slow, 3g, 4g, wifi... (optional)")
	debug := flag.Bool("debug", false, "write debug records to the log file")
	flag.Parse()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	opts := app.Options{
		ConfigPath: *configPath,
		PrefsPath:  *prefsPath,
		PollOnly:   *pollOnly,
		Device:     *device,
		Network:    *network,
		Debug:      *debug,
	}
	if poll := *pollSeconds; poll > 0 {
		opts.PollEvery = poll
	}

	if err := app.Run(ctx, opts); err != nil {
		fmt.Fprintf(os.Stderr, "pulse: %v\n", err)
		return 1
	}
	return 0
}
