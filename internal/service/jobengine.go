package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/devLink-Developer/chatbot-camping/internal/core"
	"github.com/devLink-Developer/chatbot-camping/internal/domain/model"
	"github.com/devLink-Developer/chatbot-camping/internal/observability/statsd"
)

// overlapMessage is recorded when a firing is skipped because the config is
// already running at capacity. The skip is a successful no-op, not a failure.
const overlapMessage = "omitido: ya hay otra instancia en ejecución"

// JobEngineOptions groups dependencies for JobEngine.
type JobEngineOptions struct {
	Configs  core.JobConfigRepository // Required: job config and run log store
	Registry *TaskRegistry            // Required: task name resolution
	Logger   *slog.Logger             // Optional: structured logger
	Metrics  statsd.Sink              // Optional: metrics sink
	Now      func() time.Time         // Optional: clock override for tests
	// StaleAfter force-closes run logs stuck in RUNNING for longer than
	// this before the overlap check. Zero disables the per-run reap.
	StaleAfter time.Duration // Optional
	// NextRun computes the following firing time after a run finishes.
	// Manual-only configs get nil.
	NextRun func(cfg *model.JobConfig, after time.Time) *time.Time // Optional
}

// JobEngine executes one job config through the full run protocol: config
// reload, overlap policy, cooperative cancel flag, run log lifecycle, outcome
// classification, and single-hop chaining.
type JobEngine struct {
	configs    core.JobConfigRepository
	registry   *TaskRegistry
	logger     *slog.Logger
	metrics    statsd.Sink
	now        func() time.Time
	staleAfter time.Duration
	nextRun    func(cfg *model.JobConfig, after time.Time) *time.Time
}

// NewJobEngine constructs a new JobEngine.
func NewJobEngine(opts JobEngineOptions) (*JobEngine, error) {
	if opts.Configs == nil {
		return nil, errors.New("JobConfigRepository is required")
	}
	if opts.Registry == nil {
		return nil, errors.New("TaskRegistry is required")
	}
	var logger *slog.Logger
	if opts.Logger != nil {
		logger = opts.Logger.With("component", "job_engine")
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	return &JobEngine{
		configs:    opts.Configs,
		registry:   opts.Registry,
		logger:     logger,
		metrics:    opts.Metrics,
		now:        now,
		staleAfter: opts.StaleAfter,
		nextRun:    opts.NextRun,
	}, nil
}

// Execute runs one config now. triggeredBy records who fired it (scheduler,
// manual, or a chained parent). The returned run log is terminal.
func (e *JobEngine) Execute(ctx context.Context, configID, triggeredBy string) (*model.RunLog, error) {
	// Always execute against the freshest config; an operator may have
	// edited args or disabled it since the trigger was computed.
	cfg, err := e.configs.GetByID(ctx, configID)
	if err != nil {
		return nil, fmt.Errorf("reload job config: %w", err)
	}

	// Only scheduled firings honor the enabled/paused gates; a manual or
	// chained firing of a disabled config still runs.
	if triggeredBy == model.TriggeredByScheduler && (!cfg.Enabled || cfg.Paused) {
		if e.logger != nil {
			e.logger.Info("skipping inactive job",
				"config_id", cfg.ID,
				"name", cfg.Name,
				"enabled", cfg.Enabled,
				"paused", cfg.Paused)
		}
		return nil, nil
	}

	// Close run logs a crashed worker left in RUNNING so a phantom row
	// cannot trip the overlap guard below.
	if e.staleAfter > 0 {
		if reaped, rerr := e.configs.ReapStaleRuns(ctx, e.staleAfter); rerr != nil {
			if e.logger != nil {
				e.logger.Warn("stale run reap failed", "config_id", cfg.ID, "error", rerr)
			}
		} else if reaped > 0 && e.logger != nil {
			e.logger.Warn("reaped stale job runs", "config_id", cfg.ID, "count", reaped)
		}
	}

	// Overlap policy: count only live runs, so a crashed run that the reaper
	// already closed cannot block the next firing forever.
	running, err := e.configs.CountRunning(ctx, cfg.ID)
	if err != nil {
		return nil, fmt.Errorf("count running: %w", err)
	}
	maxInstances := cfg.MaxInstances
	if maxInstances < 1 {
		maxInstances = 1
	}
	if running >= maxInstances {
		return e.recordSkip(ctx, cfg, triggeredBy)
	}

	// A cancel request targets the run that is live when it is raised. Clear
	// it on start so a stale flag cannot kill this fresh run.
	if err := e.configs.ClearCancel(ctx, cfg.ID); err != nil {
		return nil, fmt.Errorf("clear cancel flag: %w", err)
	}

	runLog, err := e.configs.StartRunLog(ctx, cfg.ID, triggeredBy)
	if err != nil {
		return nil, fmt.Errorf("start run log: %w", err)
	}
	started := e.now()

	status, message := e.runTask(ctx, cfg, runLog)

	duration := e.now().Sub(started).Milliseconds()
	if _, err := e.configs.FinishRunLog(ctx, runLog.ID, status, message, duration); err != nil {
		return nil, fmt.Errorf("finish run log: %w", err)
	}
	runLog.Status = status
	runLog.Message = message
	runLog.DurationMS = &duration

	next := e.computeNext(cfg)
	if err := e.configs.RecordRunResult(ctx, cfg.ID, status, message, duration, next); err != nil && e.logger != nil {
		e.logger.Warn("record run result failed", "config_id", cfg.ID, "error", err)
	}

	if e.metrics != nil {
		e.metrics.Count("jobs.runs", 1, map[string]string{
			"task":   cfg.TaskName,
			"status": string(status),
		})
		e.metrics.Timing("jobs.duration", time.Duration(duration)*time.Millisecond,
			map[string]string{"task": cfg.TaskName})
	}
	if e.logger != nil {
		e.logger.Info("job run finished",
			"config_id", cfg.ID,
			"name", cfg.Name,
			"status", status,
			"duration_ms", duration,
			"triggered_by", triggeredBy)
	}

	e.maybeChain(ctx, cfg, status, triggeredBy)
	return runLog, nil
}

// runTask resolves and invokes the callable, classifying the outcome.
func (e *JobEngine) runTask(ctx context.Context, cfg *model.JobConfig, runLog *model.RunLog) (model.RunStatus, string) {
	task, err := e.registry.Resolve(cfg.TaskName)
	if err != nil {
		return model.RunStatusError, err.Error()
	}

	tc := &taskContext{engine: e, cfg: cfg, runLog: runLog}
	message, err := task(ctx, tc)

	// Classification reads only the task's own result. A cancel request the
	// task never observed must not relabel a run it completed normally.
	switch {
	case errors.Is(err, ErrRunCanceled):
		return model.RunStatusCanceled, nonEmpty(message, "cancelado a pedido del operador")
	case err != nil:
		return model.RunStatusError, err.Error()
	default:
		return model.RunStatusSuccess, message
	}
}

// recordSkip writes the synthetic successful run log for an overlapped firing.
func (e *JobEngine) recordSkip(ctx context.Context, cfg *model.JobConfig, triggeredBy string) (*model.RunLog, error) {
	runLog, err := e.configs.StartRunLog(ctx, cfg.ID, triggeredBy)
	if err != nil {
		return nil, fmt.Errorf("start skip log: %w", err)
	}
	if _, err := e.configs.FinishRunLog(ctx, runLog.ID, model.RunStatusSuccess, overlapMessage, 0); err != nil {
		return nil, fmt.Errorf("finish skip log: %w", err)
	}
	runLog.Status = model.RunStatusSuccess
	runLog.Message = overlapMessage
	// The skip is still the config's latest outcome; stamp the bookkeeping so
	// operators see it on the config listing, not only in the run history.
	if err := e.configs.RecordRunResult(ctx, cfg.ID, model.RunStatusSuccess, overlapMessage, 0, e.computeNext(cfg)); err != nil && e.logger != nil {
		e.logger.Warn("record run result failed", "config_id", cfg.ID, "error", err)
	}
	if e.logger != nil {
		e.logger.Info("skipped overlapping job run", "config_id", cfg.ID, "name", cfg.Name)
	}
	if e.metrics != nil {
		e.metrics.Count("jobs.skipped_overlap", 1, map[string]string{"task": cfg.TaskName})
	}
	return runLog, nil
}

// maybeChain fires the configured follow-up job once. Chained runs never
// chain again, so a cycle of configs cannot run away.
func (e *JobEngine) maybeChain(ctx context.Context, cfg *model.JobConfig, status model.RunStatus, triggeredBy string) {
	if status != model.RunStatusSuccess || cfg.ChainedJobID == nil {
		return
	}
	if *cfg.ChainedJobID == cfg.ID {
		if e.logger != nil {
			e.logger.Warn("ignoring self-chained job", "config_id", cfg.ID)
		}
		return
	}
	if strings.HasPrefix(triggeredBy, model.TriggeredByChainPrefix) {
		return
	}
	// The chained firing bypasses the scheduler gates, so the target's
	// enabled/paused state is checked here.
	chained, err := e.configs.GetByID(ctx, *cfg.ChainedJobID)
	if err != nil {
		if e.logger != nil {
			e.logger.Error("chained job lookup failed",
				"config_id", cfg.ID, "chained_id", *cfg.ChainedJobID, "error", err)
		}
		return
	}
	if !chained.Enabled || chained.Paused {
		if e.logger != nil {
			e.logger.Info("skipping inactive chained job",
				"config_id", cfg.ID,
				"chained_id", chained.ID,
				"enabled", chained.Enabled,
				"paused", chained.Paused)
		}
		return
	}
	if _, err := e.Execute(ctx, *cfg.ChainedJobID, model.TriggeredByChainPrefix+cfg.ID); err != nil && e.logger != nil {
		e.logger.Error("chained job failed to start",
			"config_id", cfg.ID,
			"chained_id", *cfg.ChainedJobID,
			"error", err)
	}
}

func (e *JobEngine) computeNext(cfg *model.JobConfig) *time.Time {
	if e.nextRun == nil || !cfg.Schedulable() {
		return nil
	}
	return e.nextRun(cfg, e.now())
}

func nonEmpty(s, fallback string) string {
	if s != "" {
		return s
	}
	return fallback
}

// taskContext implements TaskContext against the engine's stores.
type taskContext struct {
	engine *JobEngine
	cfg    *model.JobConfig
	runLog *model.RunLog
}

func (tc *taskContext) ShouldCancel(ctx context.Context) bool {
	requested, err := tc.engine.configs.IsCancelRequested(ctx, tc.cfg.ID)
	if err != nil {
		// Fail open; an unreadable flag must not cancel work.
		return false
	}
	return requested
}

func (tc *taskContext) Log(msg string, args ...any) {
	if tc.engine.logger == nil {
		return
	}
	tc.engine.logger.Info(msg, append([]any{
		"config_id", tc.cfg.ID,
		"run_id", tc.runLog.ID,
		"task", tc.cfg.TaskName,
	}, args...)...)
}

func (tc *taskContext) UpdateMessage(ctx context.Context, msg string) error {
	return tc.engine.configs.UpdateRunLogMessage(ctx, tc.runLog.ID, msg)
}

func (tc *taskContext) Args() map[string]any {
	return tc.cfg.TaskArgs
}
