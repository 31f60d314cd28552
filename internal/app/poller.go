package app

import (
	"context"
	"log/slog"
	"time"
)

const (
	defaultPollInterval = time.Minute
	maxBackoff          = 10 * time.Minute
)

// Refresher is the periodic work the poller drives.
type Refresher interface {
	Refresh(ctx context.Context) error
}

// StartPoller launches a background goroutine that calls r.Refresh every
// interval, backing off exponentially while refreshes fail. It returns
// immediately; the returned channel closes once the goroutine exits after
// ctx is cancelled.
func StartPoller(ctx context.Context, logger *slog.Logger, r Refresher, interval time.Duration) <-chan struct{} {
	if interval <= 0 {
		interval = defaultPollInterval
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	done := make(chan struct{})
	go func() {
		defer close(done)
		failures := 0
		timer := time.NewTimer(interval)
		defer timer.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-timer.C:
			}

			if err := r.Refresh(ctx); err != nil {
				if ctx.Err() != nil {
					return
				}
				failures++
				logger.Warn("poll failed", "error", err, "failures", failures)
			} else {
				failures = 0
			}
			timer.Reset(calculateBackoff(failures, interval))
		}
	}()
	return done
}

// calculateBackoff doubles base for every consecutive failure, capped at
// maxBackoff.
func calculateBackoff(failures int, base time.Duration) time.Duration {
	if failures <= 0 {
		return base
	}
	d := base
	for i := 0; i < failures; i++ {
		d *= 2
		if d >= maxBackoff {
			return maxBackoff
		}
	}
	return d
}
