package data

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/stdlib"

	"github.com/devLink-Developer/chatbot-camping/internal/data/pgxutil"
	"github.com/devLink-Developer/chatbot-camping/internal/domain/model"
)

// ErrJobConfigNameTaken is returned when creating a config whose name already
// exists.
var ErrJobConfigNameTaken = errors.New("job config name already exists")

// JobConfigChannel is the Postgres notification channel fired whenever the
// schedulable set changes. Scheduler instances LISTEN on it to refresh
// triggers without polling.
const JobConfigChannel = "job_schedule_refresh"

// JobConfigRepo provides database operations for scheduled-job configs and
// their run logs.
type JobConfigRepo struct {
	DB           *sql.DB
	timeProvider TimeProvider
}

// NewJobConfigRepo creates a JobConfigRepo using the wall clock.
func NewJobConfigRepo(db *sql.DB) *JobConfigRepo {
	return &JobConfigRepo{DB: db, timeProvider: RealTimeProvider{}}
}

// NewJobConfigRepoWithTimeProvider creates a JobConfigRepo with a custom
// TimeProvider (useful for testing).
func NewJobConfigRepoWithTimeProvider(db *sql.DB, tp TimeProvider) *JobConfigRepo {
	return &JobConfigRepo{DB: db, timeProvider: tp}
}

const jobConfigColumns = `
  id, name, description, task_name, task_args, enabled, paused,
  schedule_type, daily_hour, daily_minute, interval_minutes, cron_expr,
  max_instances, coalesce_runs, misfire_grace_seconds,
  cancel_requested, cancel_requested_at, chained_job_id,
  last_run_at, next_run_at, last_status, last_message, last_duration_ms,
  created_at, updated_at`

// Create inserts a job config.
func (r *JobConfigRepo) Create(ctx context.Context, cfg *model.JobConfig) (*model.JobConfig, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	args, err := json.Marshal(cfg.TaskArgs)
	if err != nil {
		return nil, fmt.Errorf("marshal task args: %w", err)
	}

	var created *model.JobConfig
	err = pgxutil.WithPgxConn(ctx, r.DB, func(conn *pgx.Conn) error {
		rows, qerr := conn.Query(ctx, `
			INSERT INTO job_configs
			  (name, description, task_name, task_args, enabled, paused,
			   schedule_type, daily_hour, daily_minute, interval_minutes, cron_expr,
			   max_instances, coalesce_runs, misfire_grace_seconds, chained_job_id)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, NULLIF($11, ''),
			        $12, $13, $14, $15)
			RETURNING `+jobConfigColumns,
			cfg.Name, cfg.Description, cfg.TaskName, args, cfg.Enabled, cfg.Paused,
			cfg.ScheduleType, dailyHour(cfg.DailyAt), dailyMinute(cfg.DailyAt),
			cfg.IntervalMinutes, cfg.CronExpr,
			cfg.MaxInstances, cfg.Coalesce, cfg.MisfireGraceSeconds, cfg.ChainedJobID)
		if qerr != nil {
			return qerr
		}
		defer rows.Close()
		c, cerr := collectJobConfig(rows)
		if cerr != nil {
			return cerr
		}
		created = c
		return nil
	})
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation {
			return nil, ErrJobConfigNameTaken
		}
		return nil, fmt.Errorf("create job config: %w", err)
	}
	return created, nil
}

// GetByID retrieves a job config.
func (r *JobConfigRepo) GetByID(ctx context.Context, id string) (*model.JobConfig, error) {
	return r.getOne(ctx, `SELECT `+jobConfigColumns+` FROM job_configs WHERE id = $1`, id)
}

// GetByName retrieves a job config by its unique name.
func (r *JobConfigRepo) GetByName(ctx context.Context, name string) (*model.JobConfig, error) {
	return r.getOne(ctx, `SELECT `+jobConfigColumns+` FROM job_configs WHERE name = $1`, name)
}

func (r *JobConfigRepo) getOne(ctx context.Context, query string, args ...any) (*model.JobConfig, error) {
	var cfg *model.JobConfig
	err := pgxutil.WithPgxConn(ctx, r.DB, func(conn *pgx.Conn) error {
		rows, qerr := conn.Query(ctx, query, args...)
		if qerr != nil {
			return qerr
		}
		defer rows.Close()
		c, cerr := collectJobConfig(rows)
		if cerr != nil {
			return cerr
		}
		cfg = c
		return nil
	})
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrJobConfigNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get job config: %w", err)
	}
	return cfg, nil
}

// List returns every job config ordered by name.
func (r *JobConfigRepo) List(ctx context.Context) ([]*model.JobConfig, error) {
	return r.list(ctx, `SELECT `+jobConfigColumns+` FROM job_configs ORDER BY name`)
}

// ListSchedulable returns the configs the trigger engine should hold: enabled,
// not paused, and not manual-only.
func (r *JobConfigRepo) ListSchedulable(ctx context.Context) ([]*model.JobConfig, error) {
	return r.list(ctx, `
		SELECT `+jobConfigColumns+`
		FROM job_configs
		WHERE enabled AND NOT paused AND schedule_type <> 'MANUAL'
		ORDER BY name`)
}

func (r *JobConfigRepo) list(ctx context.Context, query string, args ...any) ([]*model.JobConfig, error) {
	var configs []*model.JobConfig
	err := pgxutil.WithPgxConn(ctx, r.DB, func(conn *pgx.Conn) error {
		rows, qerr := conn.Query(ctx, query, args...)
		if qerr != nil {
			return qerr
		}
		defer rows.Close()
		cs, cerr := pgx.CollectRows(rows, rowToJobConfig)
		if cerr != nil {
			return cerr
		}
		configs = cs
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("list job configs: %w", err)
	}
	return configs, nil
}

// Update rewrites the mutable fields of a config.
func (r *JobConfigRepo) Update(ctx context.Context, cfg *model.JobConfig) (*model.JobConfig, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	args, err := json.Marshal(cfg.TaskArgs)
	if err != nil {
		return nil, fmt.Errorf("marshal task args: %w", err)
	}

	var updated *model.JobConfig
	err = pgxutil.WithPgxConn(ctx, r.DB, func(conn *pgx.Conn) error {
		rows, qerr := conn.Query(ctx, `
			UPDATE job_configs
			SET name = $2, description = $3, task_name = $4, task_args = $5,
			    enabled = $6, paused = $7, schedule_type = $8,
			    daily_hour = $9, daily_minute = $10, interval_minutes = $11,
			    cron_expr = NULLIF($12, ''), max_instances = $13,
			    coalesce_runs = $14, misfire_grace_seconds = $15,
			    chained_job_id = $16, updated_at = $17
			WHERE id = $1
			RETURNING `+jobConfigColumns,
			cfg.ID, cfg.Name, cfg.Description, cfg.TaskName, args,
			cfg.Enabled, cfg.Paused, cfg.ScheduleType,
			dailyHour(cfg.DailyAt), dailyMinute(cfg.DailyAt), cfg.IntervalMinutes,
			cfg.CronExpr, cfg.MaxInstances, cfg.Coalesce, cfg.MisfireGraceSeconds,
			cfg.ChainedJobID, r.timeProvider.Now().UTC())
		if qerr != nil {
			return qerr
		}
		defer rows.Close()
		c, cerr := collectJobConfig(rows)
		if cerr != nil {
			return cerr
		}
		updated = c
		return nil
	})
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrJobConfigNotFound
	}
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation {
			return nil, ErrJobConfigNameTaken
		}
		return nil, fmt.Errorf("update job config: %w", err)
	}
	return updated, nil
}

// SetPaused pauses or resumes a config.
func (r *JobConfigRepo) SetPaused(ctx context.Context, id string, paused bool) (bool, error) {
	res, err := r.DB.ExecContext(ctx, `
		UPDATE job_configs SET paused = $2, updated_at = $3 WHERE id = $1
	`, id, paused, r.timeProvider.Now().UTC())
	if err != nil {
		return false, fmt.Errorf("set job config paused: %w", err)
	}
	return oneRowAffected(res)
}

// SetEnabled enables or disables a config.
func (r *JobConfigRepo) SetEnabled(ctx context.Context, id string, enabled bool) (bool, error) {
	res, err := r.DB.ExecContext(ctx, `
		UPDATE job_configs SET enabled = $2, updated_at = $3 WHERE id = $1
	`, id, enabled, r.timeProvider.Now().UTC())
	if err != nil {
		return false, fmt.Errorf("set job config enabled: %w", err)
	}
	return oneRowAffected(res)
}

// RequestCancel raises the cooperative cancel flag on a config.
func (r *JobConfigRepo) RequestCancel(ctx context.Context, id string) (bool, error) {
	now := r.timeProvider.Now().UTC()
	res, err := r.DB.ExecContext(ctx, `
		UPDATE job_configs
		SET cancel_requested = true, cancel_requested_at = $2, updated_at = $2
		WHERE id = $1
	`, id, now)
	if err != nil {
		return false, fmt.Errorf("request job cancel: %w", err)
	}
	return oneRowAffected(res)
}

// ClearCancel lowers the cancel flag. Every run clears it on start so a stale
// request cannot cancel a later execution.
func (r *JobConfigRepo) ClearCancel(ctx context.Context, id string) error {
	_, err := r.DB.ExecContext(ctx, `
		UPDATE job_configs
		SET cancel_requested = false, cancel_requested_at = NULL, updated_at = $2
		WHERE id = $1
	`, id, r.timeProvider.Now().UTC())
	if err != nil {
		return fmt.Errorf("clear job cancel: %w", err)
	}
	return nil
}

// IsCancelRequested reads the current cancel flag.
func (r *JobConfigRepo) IsCancelRequested(ctx context.Context, id string) (bool, error) {
	var requested bool
	err := r.DB.QueryRowContext(ctx,
		`SELECT cancel_requested FROM job_configs WHERE id = $1`, id).Scan(&requested)
	if errors.Is(err, sql.ErrNoRows) {
		return false, ErrJobConfigNotFound
	}
	if err != nil {
		return false, fmt.Errorf("read job cancel flag: %w", err)
	}
	return requested, nil
}

// RecordRunResult updates the config's last/next run bookkeeping after an
// execution finishes.
func (r *JobConfigRepo) RecordRunResult(ctx context.Context, id string, status model.RunStatus, message string, durationMS int64, nextRunAt *time.Time) error {
	now := r.timeProvider.Now().UTC()
	_, err := r.DB.ExecContext(ctx, `
		UPDATE job_configs
		SET last_run_at = $2,
		    last_status = $3,
		    last_message = $4,
		    last_duration_ms = $5,
		    next_run_at = $6,
		    updated_at = $2
		WHERE id = $1
	`, id, now, status, message, durationMS, nullableTime(nextRunAt))
	if err != nil {
		return fmt.Errorf("record job run result: %w", err)
	}
	return nil
}

// UpdateNextRun stamps the computed next firing time.
func (r *JobConfigRepo) UpdateNextRun(ctx context.Context, id string, nextRunAt *time.Time) error {
	_, err := r.DB.ExecContext(ctx, `
		UPDATE job_configs SET next_run_at = $2, updated_at = $3 WHERE id = $1
	`, id, nullableTime(nextRunAt), r.timeProvider.Now().UTC())
	if err != nil {
		return fmt.Errorf("update job next run: %w", err)
	}
	return nil
}

// NotifyRefresh fires the config-change channel so listening scheduler
// instances rebuild their trigger sets.
func (r *JobConfigRepo) NotifyRefresh(ctx context.Context, reason string) error {
	_, err := r.DB.ExecContext(ctx, `SELECT pg_notify($1, $2)`, JobConfigChannel, reason)
	if err != nil {
		return fmt.Errorf("notify job config refresh: %w", err)
	}
	return nil
}

// WaitForRefresh blocks on the config-change channel until a notification
// arrives or the context ends. Callers bound the wait with a context timeout
// so the listen loop doubles as a safety poll.
func (r *JobConfigRepo) WaitForRefresh(ctx context.Context) error {
	conn, err := r.DB.Conn(ctx)
	if err != nil {
		return fmt.Errorf("get conn from pool: %w", err)
	}
	defer func() {
		_ = conn.Close()
	}()

	quoted := pgx.Identifier{JobConfigChannel}.Sanitize()
	if _, execErr := conn.ExecContext(ctx, "LISTEN "+quoted); execErr != nil {
		return fmt.Errorf("listen %s: %w", JobConfigChannel, execErr)
	}
	defer func() {
		_, _ = conn.ExecContext(context.Background(), "UNLISTEN "+quoted)
	}()

	return conn.Raw(func(dc any) error {
		sc, ok := dc.(*stdlib.Conn)
		if !ok {
			return errors.New("unexpected driver connection type; expected *stdlib.Conn")
		}
		_, notifyErr := sc.Conn().WaitForNotification(ctx)
		return notifyErr
	})
}

// --- run logs ---

// StartRunLog appends a RUNNING run log for a config and returns it.
func (r *JobConfigRepo) StartRunLog(ctx context.Context, configID, triggeredBy string) (*model.RunLog, error) {
	id := uuid.NewString()
	now := r.timeProvider.Now().UTC()
	log := &model.RunLog{
		ID:          id,
		ConfigID:    configID,
		TriggeredBy: triggeredBy,
		StartedAt:   now,
		Status:      model.RunStatusRunning,
		CreatedAt:   now,
	}
	_, err := r.DB.ExecContext(ctx, `
		INSERT INTO job_run_logs (id, config_id, triggered_by, started_at, status)
		VALUES ($1, $2, $3, $4, 'RUNNING')
	`, id, configID, triggeredBy, now)
	if err != nil {
		return nil, fmt.Errorf("start run log: %w", err)
	}
	return log, nil
}

// FinishRunLog moves a run log to a terminal status. It only applies to runs
// still RUNNING so a reaped execution cannot be overwritten later.
func (r *JobConfigRepo) FinishRunLog(ctx context.Context, id string, status model.RunStatus, message string, durationMS int64) (bool, error) {
	now := r.timeProvider.Now().UTC()
	res, err := r.DB.ExecContext(ctx, `
		UPDATE job_run_logs
		SET status = $2, message = $3, duration_ms = $4, finished_at = $5
		WHERE id = $1 AND status = 'RUNNING'
	`, id, status, message, durationMS, now)
	if err != nil {
		return false, fmt.Errorf("finish run log: %w", err)
	}
	return oneRowAffected(res)
}

// UpdateRunLogMessage replaces the live status message of a RUNNING run.
func (r *JobConfigRepo) UpdateRunLogMessage(ctx context.Context, id, message string) error {
	_, err := r.DB.ExecContext(ctx, `
		UPDATE job_run_logs SET message = $2 WHERE id = $1 AND status = 'RUNNING'
	`, id, message)
	if err != nil {
		return fmt.Errorf("update run log message: %w", err)
	}
	return nil
}

// CountRunning returns the number of RUNNING run logs for a config, used to
// enforce the overlap policy.
func (r *JobConfigRepo) CountRunning(ctx context.Context, configID string) (int, error) {
	var count int
	err := r.DB.QueryRowContext(ctx, `
		SELECT count(*) FROM job_run_logs WHERE config_id = $1 AND status = 'RUNNING'
	`, configID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count running job logs: %w", err)
	}
	return count, nil
}

// ReapStaleRuns marks RUNNING logs older than the threshold as ERROR. It
// returns the number of reaped rows. The message names the exceeded limit so
// operators can tell a reap from a real failure.
func (r *JobConfigRepo) ReapStaleRuns(ctx context.Context, staleAfter time.Duration) (int64, error) {
	now := r.timeProvider.Now().UTC()
	cutoff := now.Add(-staleAfter)
	msg := fmt.Sprintf("marked as failed: exceeded %d minutes in RUNNING state",
		int(staleAfter.Minutes()))
	res, err := r.DB.ExecContext(ctx, `
		UPDATE job_run_logs
		SET status = 'ERROR',
		    message = $2,
		    finished_at = $3,
		    duration_ms = (EXTRACT(EPOCH FROM ($3 - started_at)) * 1000)::bigint
		WHERE status = 'RUNNING' AND started_at < $1
	`, cutoff, msg, now)
	if err != nil {
		return 0, fmt.Errorf("reap stale job runs: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("rows affected: %w", err)
	}
	return n, nil
}

// ListRunLogs returns the most recent run logs for a config.
func (r *JobConfigRepo) ListRunLogs(ctx context.Context, configID string, limit int) ([]*model.RunLog, error) {
	if limit <= 0 {
		limit = 50
	}
	var logs []*model.RunLog
	err := pgxutil.WithPgxConn(ctx, r.DB, func(conn *pgx.Conn) error {
		rows, qerr := conn.Query(ctx, `
			SELECT id, config_id, triggered_by, started_at, finished_at,
			       status, message, duration_ms, created_at
			FROM job_run_logs
			WHERE config_id = $1
			ORDER BY started_at DESC
			LIMIT $2
		`, configID, limit)
		if qerr != nil {
			return qerr
		}
		defer rows.Close()
		ls, cerr := pgx.CollectRows(rows, rowToRunLog)
		if cerr != nil {
			return cerr
		}
		logs = ls
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("list run logs: %w", err)
	}
	return logs, nil
}

// GetRunLog retrieves one run log.
func (r *JobConfigRepo) GetRunLog(ctx context.Context, id string) (*model.RunLog, error) {
	var log *model.RunLog
	err := pgxutil.WithPgxConn(ctx, r.DB, func(conn *pgx.Conn) error {
		rows, qerr := conn.Query(ctx, `
			SELECT id, config_id, triggered_by, started_at, finished_at,
			       status, message, duration_ms, created_at
			FROM job_run_logs WHERE id = $1
		`, id)
		if qerr != nil {
			return qerr
		}
		defer rows.Close()
		logs, cerr := pgx.CollectRows(rows, rowToRunLog)
		if cerr != nil {
			return cerr
		}
		if len(logs) == 0 {
			return pgx.ErrNoRows
		}
		log = logs[0]
		return nil
	})
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrRunLogNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get run log: %w", err)
	}
	return log, nil
}

func dailyHour(t *model.DailyTime) any {
	if t == nil {
		return nil
	}
	return t.Hour
}

func dailyMinute(t *model.DailyTime) any {
	if t == nil {
		return nil
	}
	return t.Minute
}

type jobConfigRow struct {
	ID                  string         `db:"id"`
	Name                string         `db:"name"`
	Description         string         `db:"description"`
	TaskName            string         `db:"task_name"`
	TaskArgs            []byte         `db:"task_args"`
	Enabled             bool           `db:"enabled"`
	Paused              bool           `db:"paused"`
	ScheduleType        string         `db:"schedule_type"`
	DailyHour           sql.NullInt32  `db:"daily_hour"`
	DailyMinute         sql.NullInt32  `db:"daily_minute"`
	IntervalMinutes     sql.NullInt32  `db:"interval_minutes"`
	CronExpr            sql.NullString `db:"cron_expr"`
	MaxInstances        int            `db:"max_instances"`
	Coalesce            bool           `db:"coalesce_runs"`
	MisfireGraceSeconds int            `db:"misfire_grace_seconds"`
	CancelRequested     bool           `db:"cancel_requested"`
	CancelRequestedAt   sql.NullTime   `db:"cancel_requested_at"`
	ChainedJobID        sql.NullString `db:"chained_job_id"`
	LastRunAt           sql.NullTime   `db:"last_run_at"`
	NextRunAt           sql.NullTime   `db:"next_run_at"`
	LastStatus          sql.NullString `db:"last_status"`
	LastMessage         sql.NullString `db:"last_message"`
	LastDurationMS      sql.NullInt64  `db:"last_duration_ms"`
	CreatedAt           time.Time      `db:"created_at"`
	UpdatedAt           time.Time      `db:"updated_at"`
}

func (row *jobConfigRow) toModel() (*model.JobConfig, error) {
	cfg := &model.JobConfig{
		ID:                  row.ID,
		Name:                row.Name,
		Description:         row.Description,
		TaskName:            row.TaskName,
		Enabled:             row.Enabled,
		Paused:              row.Paused,
		ScheduleType:        model.ScheduleType(row.ScheduleType),
		MaxInstances:        row.MaxInstances,
		Coalesce:            row.Coalesce,
		MisfireGraceSeconds: row.MisfireGraceSeconds,
		CancelRequested:     row.CancelRequested,
		CreatedAt:           row.CreatedAt.UTC(),
		UpdatedAt:           row.UpdatedAt.UTC(),
	}
	if len(row.TaskArgs) > 0 {
		if err := json.Unmarshal(row.TaskArgs, &cfg.TaskArgs); err != nil {
			return nil, fmt.Errorf("decode task args: %w", err)
		}
	}
	if row.DailyHour.Valid && row.DailyMinute.Valid {
		cfg.DailyAt = &model.DailyTime{
			Hour:   int(row.DailyHour.Int32),
			Minute: int(row.DailyMinute.Int32),
		}
	}
	if row.IntervalMinutes.Valid {
		v := int(row.IntervalMinutes.Int32)
		cfg.IntervalMinutes = &v
	}
	if row.CronExpr.Valid {
		cfg.CronExpr = row.CronExpr.String
	}
	cfg.CancelRequestedAt = nullTime(row.CancelRequestedAt)
	cfg.ChainedJobID = nullString(row.ChainedJobID)
	cfg.LastRunAt = nullTime(row.LastRunAt)
	cfg.NextRunAt = nullTime(row.NextRunAt)
	if row.LastStatus.Valid {
		s := model.RunStatus(row.LastStatus.String)
		cfg.LastStatus = &s
	}
	if row.LastMessage.Valid {
		cfg.LastMessage = row.LastMessage.String
	}
	if row.LastDurationMS.Valid {
		v := row.LastDurationMS.Int64
		cfg.LastDurationMS = &v
	}
	return cfg, nil
}

func rowToJobConfig(row pgx.CollectableRow) (*model.JobConfig, error) {
	dbRow, err := pgx.RowToStructByName[jobConfigRow](row)
	if err != nil {
		return nil, fmt.Errorf("scan job config row: %w", err)
	}
	return dbRow.toModel()
}

func collectJobConfig(rows pgx.Rows) (*model.JobConfig, error) {
	configs, err := pgx.CollectRows(rows, rowToJobConfig)
	if err != nil {
		return nil, err
	}
	if len(configs) == 0 {
		return nil, pgx.ErrNoRows
	}
	return configs[0], nil
}

type runLogRow struct {
	ID          string         `db:"id"`
	ConfigID    string         `db:"config_id"`
	TriggeredBy string         `db:"triggered_by"`
	StartedAt   time.Time      `db:"started_at"`
	FinishedAt  sql.NullTime   `db:"finished_at"`
	Status      string         `db:"status"`
	Message     sql.NullString `db:"message"`
	DurationMS  sql.NullInt64  `db:"duration_ms"`
	CreatedAt   time.Time      `db:"created_at"`
}

func rowToRunLog(row pgx.CollectableRow) (*model.RunLog, error) {
	dbRow, err := pgx.RowToStructByName[runLogRow](row)
	if err != nil {
		return nil, fmt.Errorf("scan run log row: %w", err)
	}
	log := &model.RunLog{
		ID:          dbRow.ID,
		ConfigID:    dbRow.ConfigID,
		TriggeredBy: dbRow.TriggeredBy,
		StartedAt:   dbRow.StartedAt.UTC(),
		Status:      model.RunStatus(dbRow.Status),
		CreatedAt:   dbRow.CreatedAt.UTC(),
	}
	log.FinishedAt = nullTime(dbRow.FinishedAt)
	if dbRow.Message.Valid {
		log.Message = dbRow.Message.String
	}
	if dbRow.DurationMS.Valid {
		v := dbRow.DurationMS.Int64
		log.DurationMS = &v
	}
	return log, nil
}
