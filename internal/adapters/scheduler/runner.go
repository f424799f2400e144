package scheduler

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/devLink-Developer/chatbot-camping/config"
	"github.com/devLink-Developer/chatbot-camping/internal/core"
	"github.com/devLink-Developer/chatbot-camping/internal/domain/model"
	"github.com/devLink-Developer/chatbot-camping/internal/observability/statsd"
)

// Executor runs one job config through the full execution protocol.
type Executor interface {
	Execute(ctx context.Context, configID, triggeredBy string) (*model.RunLog, error)
}

// RunnerOptions groups dependencies for Runner.
type RunnerOptions struct {
	Configs core.JobConfigRepository // Required: job config store
	Engine  Executor                 // Required: job execution engine
	Config  config.SchedulerConfig   // Required: scheduler configuration
	Logger  *slog.Logger             // Optional: structured logger
	Metrics statsd.Sink              // Optional: metrics sink
	Now     func() time.Time         // Optional: clock override for tests
}

// Runner owns the in-memory trigger set and the ticking loop that fires due
// configs. Exactly one process should run it; the process lock enforces that.
type Runner struct {
	configs core.JobConfigRepository
	engine  Executor
	cfg     config.SchedulerConfig
	logger  *slog.Logger
	metrics statsd.Sink
	now     func() time.Time

	mu       sync.Mutex
	triggers map[string]*trigger
}

// NewRunner constructs a new Runner.
func NewRunner(opts RunnerOptions) (*Runner, error) {
	if opts.Configs == nil {
		return nil, errors.New("JobConfigRepository is required")
	}
	if opts.Engine == nil {
		return nil, errors.New("Executor is required")
	}
	var logger *slog.Logger
	if opts.Logger != nil {
		logger = opts.Logger.With("component", "scheduler_runner")
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	return &Runner{
		configs:  opts.Configs,
		engine:   opts.Engine,
		cfg:      opts.Config,
		logger:   logger,
		metrics:  opts.Metrics,
		now:      now,
		triggers: make(map[string]*trigger),
	}, nil
}

// Run drives the scheduler until the context is cancelled. Returns nil on
// graceful shutdown.
func (r *Runner) Run(ctx context.Context) error {
	if err := r.Refresh(ctx); err != nil {
		if r.logger != nil {
			r.logger.Error("initial trigger refresh failed", "error", err)
		}
	}

	group, groupCtx := errgroup.WithContext(ctx)
	group.SetLimit(r.cfg.Workers)

	ticker := time.NewTicker(r.cfg.TickInterval)
	defer ticker.Stop()

	if r.logger != nil {
		r.logger.Info("scheduler started",
			"tick_interval", r.cfg.TickInterval,
			"workers", r.cfg.Workers,
			"triggers", r.triggerCount())
	}

	for {
		select {
		case <-ctx.Done():
			// Let in-flight firings finish before reporting shutdown.
			_ = group.Wait()
			if r.logger != nil {
				r.logger.Info("scheduler stopped")
			}
			return nil
		case <-ticker.C:
			r.tick(groupCtx, group)
		}
	}
}

// Refresh rebuilds the trigger set from the schedulable configs. The
// notification listener calls this whenever the table changes.
func (r *Runner) Refresh(ctx context.Context) error {
	configs, err := r.configs.ListSchedulable(ctx)
	if err != nil {
		return err
	}

	now := r.now()
	next := make(map[string]*trigger, len(configs))
	for _, cfg := range configs {
		fireAt, ferr := NextFire(cfg, now)
		if ferr != nil {
			if r.logger != nil {
				r.logger.Warn("skipping config with bad schedule",
					"config_id", cfg.ID, "name", cfg.Name, "error", ferr)
			}
			continue
		}
		if fireAt == nil {
			continue
		}
		next[cfg.ID] = &trigger{
			configID: cfg.ID,
			name:     cfg.Name,
			nextFire: *fireAt,
			coalesce: cfg.Coalesce,
			grace:    time.Duration(cfg.MisfireGraceSeconds) * time.Second,
		}
		if uerr := r.configs.UpdateNextRun(ctx, cfg.ID, fireAt); uerr != nil && r.logger != nil {
			r.logger.Warn("next run stamp failed", "config_id", cfg.ID, "error", uerr)
		}
	}

	r.mu.Lock()
	r.triggers = next
	r.mu.Unlock()

	if r.logger != nil {
		r.logger.Info("trigger set refreshed", "triggers", len(next))
	}
	return nil
}

// tick reaps stale runs and fires every due trigger.
func (r *Runner) tick(ctx context.Context, group *errgroup.Group) {
	started := r.now()

	if reaped, err := r.configs.ReapStaleRuns(ctx, r.cfg.StaleAfter); err != nil {
		if r.logger != nil {
			r.logger.Error("stale run reap failed", "error", err)
		}
	} else if reaped > 0 && r.logger != nil {
		r.logger.Warn("reaped stale job runs", "count", reaped)
	}

	for _, t := range r.due(started) {
		t := t
		group.Go(func() error {
			if _, err := r.engine.Execute(ctx, t.configID, model.TriggeredByScheduler); err != nil {
				if r.logger != nil {
					r.logger.Error("scheduled firing failed",
						"config_id", t.configID, "name", t.name, "error", err)
				}
			}
			// Firings are isolated; one failure never stops the pool.
			return nil
		})
	}

	if r.metrics != nil {
		r.metrics.Timing("scheduler.tick", r.now().Sub(started), nil)
	}
}

// due collects the triggers that should fire now and advances their next
// firing time so a slow execution cannot double-fire.
func (r *Runner) due(now time.Time) []*trigger {
	r.mu.Lock()
	defer r.mu.Unlock()

	var fire []*trigger
	for _, t := range r.triggers {
		switch t.classify(now) {
		case actionWait:
			continue
		case actionSkipMisfire:
			if r.logger != nil {
				r.logger.Warn("skipping misfired trigger",
					"config_id", t.configID,
					"name", t.name,
					"missed_by", now.Sub(t.nextFire).String())
			}
			if r.metrics != nil {
				r.metrics.Count("scheduler.misfires", 1, map[string]string{"name": t.name})
			}
		case actionFire:
			fire = append(fire, &trigger{configID: t.configID, name: t.name})
		}
		r.advance(t, now)
	}
	return fire
}

// advance recomputes a trigger's next firing from its config. Configs that
// vanished or turned unschedulable drop out of the set.
func (r *Runner) advance(t *trigger, now time.Time) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	cfg, err := r.configs.GetByID(ctx, t.configID)
	if err != nil || !cfg.Schedulable() {
		delete(r.triggers, t.configID)
		return
	}
	fireAt, err := NextFire(cfg, now)
	if err != nil || fireAt == nil {
		delete(r.triggers, t.configID)
		return
	}
	t.nextFire = *fireAt
	t.coalesce = cfg.Coalesce
	t.grace = time.Duration(cfg.MisfireGraceSeconds) * time.Second
	if uerr := r.configs.UpdateNextRun(ctx, cfg.ID, fireAt); uerr != nil && r.logger != nil {
		r.logger.Warn("next run stamp failed", "config_id", cfg.ID, "error", uerr)
	}
}

func (r *Runner) triggerCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.triggers)
}
