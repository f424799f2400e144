// Package scheduler runs the generic job scheduler: it keeps the in-memory
// trigger set derived from the job_configs table and fires due entries on a
// bounded worker pool.
package scheduler

import (
	"fmt"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/devLink-Developer/chatbot-camping/internal/domain/model"
)

// cronParser accepts the standard 5-field expressions stored on configs.
var cronParser = cron.NewParser(
	cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)

// NextFire computes the first firing time strictly after the given instant.
// Manual configs never auto-fire and return nil.
func NextFire(cfg *model.JobConfig, after time.Time) (*time.Time, error) {
	switch cfg.ScheduleType {
	case model.ScheduleManual:
		return nil, nil

	case model.ScheduleDaily:
		if cfg.DailyAt == nil {
			return nil, fmt.Errorf("daily config %s has no time of day", cfg.ID)
		}
		next := time.Date(after.Year(), after.Month(), after.Day(),
			cfg.DailyAt.Hour, cfg.DailyAt.Minute, 0, 0, after.Location())
		if !next.After(after) {
			next = next.AddDate(0, 0, 1)
		}
		return &next, nil

	case model.ScheduleInterval:
		if cfg.IntervalMinutes == nil || *cfg.IntervalMinutes <= 0 {
			return nil, fmt.Errorf("interval config %s has no interval", cfg.ID)
		}
		interval := time.Duration(*cfg.IntervalMinutes) * time.Minute
		// Anchor on the last run when one exists so restarts do not reset
		// the cadence.
		anchor := after
		if cfg.LastRunAt != nil {
			anchor = *cfg.LastRunAt
		}
		next := anchor.Add(interval)
		if !next.After(after) {
			next = after.Add(interval)
		}
		return &next, nil

	case model.ScheduleCron:
		schedule, err := cronParser.Parse(cfg.CronExpr)
		if err != nil {
			return nil, fmt.Errorf("cron config %s: %w", cfg.ID, err)
		}
		next := schedule.Next(after)
		if next.IsZero() {
			return nil, nil
		}
		return &next, nil
	}
	return nil, fmt.Errorf("unknown schedule type %q", cfg.ScheduleType)
}

// trigger is one standing entry in the in-memory trigger set.
type trigger struct {
	configID string
	name     string
	nextFire time.Time
	coalesce bool
	grace    time.Duration
}

// dueAction classifies what a tick should do with a trigger.
type dueAction int

const (
	actionWait dueAction = iota
	actionFire
	actionSkipMisfire
)

// classify decides whether the trigger fires now. A firing later than the
// misfire grace period is skipped unless coalesce folds the missed firings
// into a single one.
func (t *trigger) classify(now time.Time) dueAction {
	if t.nextFire.After(now) {
		return actionWait
	}
	if t.grace > 0 && now.Sub(t.nextFire) > t.grace {
		if t.coalesce {
			return actionFire
		}
		return actionSkipMisfire
	}
	return actionFire
}
