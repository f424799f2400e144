package model

import (
	"errors"
	"strings"
	"time"
)

// RunStatus is the lifecycle state of one scheduled-job execution.
type RunStatus string

const (
	RunStatusPending  RunStatus = "PENDING"
	RunStatusRunning  RunStatus = "RUNNING"
	RunStatusSuccess  RunStatus = "SUCCESS"
	RunStatusError    RunStatus = "ERROR"
	RunStatusCanceled RunStatus = "CANCELED"
)

// Valid reports whether the run status is one of the known values.
func (s RunStatus) Valid() bool {
	switch s {
	case RunStatusPending, RunStatusRunning, RunStatusSuccess, RunStatusError, RunStatusCanceled:
		return true
	}
	return false
}

// Terminal reports whether the run status ends the execution.
func (s RunStatus) Terminal() bool {
	return s == RunStatusSuccess || s == RunStatusError || s == RunStatusCanceled
}

// ScheduleType selects how a job config's trigger resolves.
type ScheduleType string

const (
	ScheduleManual   ScheduleType = "MANUAL"
	ScheduleDaily    ScheduleType = "DAILY"
	ScheduleInterval ScheduleType = "INTERVAL"
	ScheduleCron     ScheduleType = "CRON"
)

// Valid reports whether the schedule type is one of the known values.
func (t ScheduleType) Valid() bool {
	switch t {
	case ScheduleManual, ScheduleDaily, ScheduleInterval, ScheduleCron:
		return true
	}
	return false
}

// Trigger sources recorded on run logs.
const (
	TriggeredByScheduler = "scheduler"
	TriggeredByManual    = "manual"
	// TriggeredByChainPrefix prefixes the parent config id on chained firings.
	TriggeredByChainPrefix = "chained:"
)

// JobConfig is one schedulable unit of work over the callable registry.
type JobConfig struct {
	ID          string
	Name        string
	Description string
	// TaskName is the registry key of the callable to invoke.
	TaskName string
	TaskArgs map[string]any

	Enabled bool
	Paused  bool

	ScheduleType    ScheduleType
	DailyAt         *DailyTime
	IntervalMinutes *int
	CronExpr        string

	MaxInstances        int
	Coalesce            bool
	MisfireGraceSeconds int

	CancelRequested   bool
	CancelRequestedAt *time.Time

	// ChainedJobID fires on successful completion; one hop, self-references
	// are ignored.
	ChainedJobID *string

	LastRunAt      *time.Time
	NextRunAt      *time.Time
	LastStatus     *RunStatus
	LastMessage    string
	LastDurationMS *int64

	CreatedAt time.Time
	UpdatedAt time.Time
}

// Schedulable reports whether the config belongs in the active trigger set.
func (c *JobConfig) Schedulable() bool {
	return c.Enabled && !c.Paused && c.ScheduleType != ScheduleManual
}

// Validate checks the invariants required before persisting a config.
func (c *JobConfig) Validate() error {
	if strings.TrimSpace(c.Name) == "" {
		return errors.New("job config name is required")
	}
	if strings.TrimSpace(c.TaskName) == "" {
		return errors.New("job config task name is required")
	}
	if !c.ScheduleType.Valid() {
		return errors.New("invalid schedule type")
	}
	switch c.ScheduleType {
	case ScheduleDaily:
		if c.DailyAt == nil {
			return errors.New("daily schedule requires a time of day")
		}
	case ScheduleInterval:
		if c.IntervalMinutes == nil || *c.IntervalMinutes <= 0 {
			return errors.New("interval schedule requires positive minutes")
		}
	case ScheduleCron:
		if strings.TrimSpace(c.CronExpr) == "" {
			return errors.New("cron schedule requires an expression")
		}
	case ScheduleManual:
	}
	return nil
}

// DailyTime is an hour:minute wall-clock firing time.
type DailyTime struct {
	Hour   int
	Minute int
}

// RunLog is one append-only execution record for a job config.
type RunLog struct {
	ID          string
	ConfigID    string
	TriggeredBy string
	StartedAt   time.Time
	FinishedAt  *time.Time
	Status      RunStatus
	Message     string
	DurationMS  *int64
	CreatedAt   time.Time
}
