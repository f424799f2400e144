// Package queueworker drives the message queue: it claims eligible batches
// in both directions and hands them to the processors.
package queueworker

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/devLink-Developer/chatbot-camping/config"
	"github.com/devLink-Developer/chatbot-camping/internal/core"
	"github.com/devLink-Developer/chatbot-camping/internal/domain/model"
	"github.com/devLink-Developer/chatbot-camping/internal/observability/statsd"
	"github.com/devLink-Developer/chatbot-camping/internal/service"
)

// RunnerOptions groups dependencies for Runner.
type RunnerOptions struct {
	DB       *sql.DB                  // Required: used for per-cycle ping hygiene
	Messages core.MessageRepository   // Required: claim source
	Inbound  *service.InboundService  // Required: inbound processor
	Outbound *service.OutboundService // Required: outbound dispatcher
	Config   config.QueueConfig       // Required: poll interval and batch size
	Logger   *slog.Logger             // Optional: structured logger
	Metrics  statsd.Sink              // Optional: metrics sink
}

// dbPinger is the slice of *sql.DB the per-cycle connection hygiene needs.
type dbPinger interface {
	PingContext(ctx context.Context) error
}

// Runner is the queue worker loop. One iteration claims and processes an
// inbound batch then an outbound batch; a started batch always runs to
// completion, shutdown only lands between iterations.
type Runner struct {
	db       dbPinger
	messages core.MessageRepository
	inbound  *service.InboundService
	outbound *service.OutboundService
	cfg      config.QueueConfig
	logger   *slog.Logger
	metrics  statsd.Sink

	mu      sync.Mutex
	cancel  context.CancelFunc
	done    chan struct{}
	started bool
}

// NewRunner constructs a new Runner.
func NewRunner(opts RunnerOptions) (*Runner, error) {
	if opts.DB == nil {
		return nil, errors.New("DB is required")
	}
	if opts.Messages == nil {
		return nil, errors.New("MessageRepository is required")
	}
	if opts.Inbound == nil {
		return nil, errors.New("InboundService is required")
	}
	if opts.Outbound == nil {
		return nil, errors.New("OutboundService is required")
	}
	var logger *slog.Logger
	if opts.Logger != nil {
		logger = opts.Logger.With("component", "queue_worker")
	}
	return &Runner{
		db:       opts.DB,
		messages: opts.Messages,
		inbound:  opts.Inbound,
		outbound: opts.Outbound,
		cfg:      opts.Config,
		logger:   logger,
		metrics:  opts.Metrics,
	}, nil
}

// Start launches the worker goroutine. Calling Start on a running worker is
// a no-op.
func (r *Runner) Start(ctx context.Context) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.started {
		return
	}

	runCtx, cancel := context.WithCancel(ctx)
	r.cancel = cancel
	r.done = make(chan struct{})
	r.started = true

	go func() {
		defer close(r.done)
		r.run(runCtx)
	}()
}

// Stop asks the worker to finish its current iteration and waits for it.
func (r *Runner) Stop() {
	r.mu.Lock()
	if !r.started {
		r.mu.Unlock()
		return
	}
	cancel := r.cancel
	done := r.done
	r.started = false
	r.mu.Unlock()

	cancel()
	<-done
}

// Run drives the loop on the caller's goroutine until the context ends.
// Returns nil on graceful shutdown.
func (r *Runner) Run(ctx context.Context) error {
	r.run(ctx)
	return nil
}

func (r *Runner) run(ctx context.Context) {
	if r.logger != nil {
		r.logger.Info("queue worker started",
			"poll_interval", r.cfg.PollInterval,
			"batch_size", r.cfg.BatchSize)
	}

	for {
		r.cycle(ctx)

		select {
		case <-ctx.Done():
			if r.logger != nil {
				r.logger.Info("queue worker stopped")
			}
			return
		case <-time.After(r.cfg.PollInterval):
		}
	}
}

// cycle runs one claim-and-process pass in both directions.
func (r *Runner) cycle(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}
	started := time.Now()

	// Surface a dead database before claiming instead of failing batch rows.
	if err := r.db.PingContext(ctx); err != nil {
		if r.logger != nil && ctx.Err() == nil {
			r.logger.Warn("database ping failed, skipping cycle", "error", err)
		}
		return
	}

	inbound, err := r.messages.ClaimInbound(ctx, r.cfg.BatchSize)
	if err != nil {
		r.claimError(ctx, model.DirectionIn, err)
	} else if len(inbound) > 0 {
		r.count("queue.claimed", len(inbound), map[string]string{"direction": "in"})
		r.inbound.ProcessBatch(ctx, inbound)
	}

	outbound, err := r.messages.ClaimOutbound(ctx, r.cfg.BatchSize)
	if err != nil {
		r.claimError(ctx, model.DirectionOut, err)
	} else if len(outbound) > 0 {
		r.count("queue.claimed", len(outbound), map[string]string{"direction": "out"})
		r.outbound.DispatchBatch(ctx, outbound)
	}

	// Same hygiene on the way out, so a connection a batch broke is surfaced
	// now instead of at the top of the next cycle.
	if err := r.db.PingContext(ctx); err != nil && r.logger != nil && ctx.Err() == nil {
		r.logger.Warn("database ping failed after cycle", "error", err)
	}

	if r.metrics != nil {
		r.metrics.Timing("queue.cycle", time.Since(started), nil)
	}
}

func (r *Runner) claimError(ctx context.Context, dir model.Direction, err error) {
	if ctx.Err() != nil {
		return
	}
	if r.logger != nil {
		r.logger.Error("batch claim failed", "direction", dir, "error", err)
	}
}

func (r *Runner) count(name string, n int, tags map[string]string) {
	if r.metrics != nil {
		r.metrics.Count(name, int64(n), tags)
	}
}
