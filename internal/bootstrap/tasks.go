package bootstrap

import (
	"context"
	"fmt"
	"time"

	"github.com/devLink-Developer/chatbot-camping/config"
	"github.com/devLink-Developer/chatbot-camping/internal/core"
	"github.com/devLink-Developer/chatbot-camping/internal/domain/model"
	"github.com/devLink-Developer/chatbot-camping/internal/service"
)

// builtinTaskDeps groups the stores the built-in maintenance tasks read.
type builtinTaskDeps struct {
	Messages core.MessageRepository
	Sessions core.SessionRepository
	Session  config.SessionConfig
}

// registerBuiltinTasks registers the maintenance tasks that ship with the
// application. Job configs reference these by name; deployments add their own
// tasks to the same registry before the scheduler starts.
func registerBuiltinTasks(registry *service.TaskRegistry, deps builtinTaskDeps) {
	registry.Register("sessions.close_expired", closeExpiredSessionsTask(deps))
	registry.Register("queue.report_stats", reportQueueStatsTask(deps))
}

// closeExpiredSessionsTask sweeps sessions idle beyond the timeout back to the
// main menu. Inbound processing closes expired sessions lazily; this catches
// correspondents who never write again. A "timeout_minutes" task arg overrides
// the configured session timeout.
func closeExpiredSessionsTask(deps builtinTaskDeps) service.TaskFunc {
	return func(ctx context.Context, tc service.TaskContext) (string, error) {
		timeout := deps.Session.Timeout
		if v, ok := tc.Args()["timeout_minutes"].(float64); ok && v > 0 {
			timeout = time.Duration(v) * time.Minute
		}
		closed, err := deps.Sessions.CloseExpired(ctx, timeout)
		if err != nil {
			return "", fmt.Errorf("close expired sessions: %w", err)
		}
		return fmt.Sprintf("closed %d expired sessions", closed), nil
	}
}

// reportQueueStatsTask logs the queue depth for both directions on the run
// log, giving operators a periodic snapshot without a metrics stack.
func reportQueueStatsTask(deps builtinTaskDeps) service.TaskFunc {
	return func(ctx context.Context, tc service.TaskContext) (string, error) {
		in, err := deps.Messages.Stats(ctx, model.DirectionIn)
		if err != nil {
			return "", fmt.Errorf("inbound stats: %w", err)
		}
		out, err := deps.Messages.Stats(ctx, model.DirectionOut)
		if err != nil {
			return "", fmt.Errorf("outbound stats: %w", err)
		}
		tc.Log("queue stats",
			"in_pending", in.Pending, "in_processing", in.Processing, "in_failed", in.Failed,
			"out_queued", out.Queued, "out_processing", out.Processing, "out_failed", out.Failed)
		return fmt.Sprintf("in: %d pending, %d failed; out: %d queued, %d failed",
			in.Pending, in.Failed, out.Queued, out.Failed), nil
	}
}
