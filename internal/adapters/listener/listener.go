// Package listener watches the Postgres config-change channel and refreshes
// the scheduler's trigger set when job configs are edited.
package listener

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/devLink-Developer/chatbot-camping/config"
)

// RefreshWaiter blocks until a config-change notification arrives.
type RefreshWaiter interface {
	WaitForRefresh(ctx context.Context) error
}

// Refresher rebuilds the trigger set from the database.
type Refresher interface {
	Refresh(ctx context.Context) error
}

// Options groups dependencies for Listener.
type Options struct {
	Waiter    RefreshWaiter          // Required: notification wait
	Refresher Refresher              // Required: trigger set refresh
	Config    config.SchedulerConfig // Required: wait timeout and backoff
	Logger    *slog.Logger           // Optional: structured logger
}

// Listener runs the LISTEN loop. Each wait is bounded by ListenTimeout so a
// silently dead connection degrades into a periodic refresh instead of a
// stalled scheduler.
type Listener struct {
	waiter    RefreshWaiter
	refresher Refresher
	cfg       config.SchedulerConfig
	logger    *slog.Logger
}

// New constructs a Listener.
func New(opts Options) (*Listener, error) {
	if opts.Waiter == nil {
		return nil, errors.New("RefreshWaiter is required")
	}
	if opts.Refresher == nil {
		return nil, errors.New("Refresher is required")
	}
	var logger *slog.Logger
	if opts.Logger != nil {
		logger = opts.Logger.With("component", "schedule_listener")
	}
	return &Listener{
		waiter:    opts.Waiter,
		refresher: opts.Refresher,
		cfg:       opts.Config,
		logger:    logger,
	}, nil
}

// Run loops until the context is cancelled. Returns nil on graceful shutdown.
func (l *Listener) Run(ctx context.Context) error {
	if l.logger != nil {
		l.logger.Info("schedule listener started",
			"listen_timeout", l.cfg.ListenTimeout,
			"reconnect_backoff", l.cfg.ReconnectBackoff)
	}

	for {
		if ctx.Err() != nil {
			if l.logger != nil {
				l.logger.Info("schedule listener stopped")
			}
			return nil
		}

		waitCtx, cancel := context.WithTimeout(ctx, l.cfg.ListenTimeout)
		err := l.waiter.WaitForRefresh(waitCtx)
		cancel()

		switch {
		case err == nil:
			// A real notification arrived.
			l.refresh(ctx, "notification")
		case errors.Is(err, context.DeadlineExceeded):
			// Bounded wait elapsed; refresh anyway as a safety poll.
			l.refresh(ctx, "timeout")
		case errors.Is(err, context.Canceled):
			// Shutting down; loop exits on the next iteration.
		default:
			if l.logger != nil {
				l.logger.Warn("listen failed, backing off",
					"error", err,
					"backoff", l.cfg.ReconnectBackoff)
			}
			select {
			case <-ctx.Done():
			case <-time.After(l.cfg.ReconnectBackoff):
			}
		}
	}
}

func (l *Listener) refresh(ctx context.Context, reason string) {
	if ctx.Err() != nil {
		return
	}
	if err := l.refresher.Refresh(ctx); err != nil {
		if l.logger != nil {
			l.logger.Error("trigger refresh failed", "reason", reason, "error", err)
		}
		return
	}
	if l.logger != nil {
		l.logger.Debug("trigger set refreshed", "reason", reason)
	}
}
