package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/devLink-Developer/chatbot-camping/internal/domain/model"
)

type mockJobConfigRepository struct {
	getByIDFunc           func(ctx context.Context, id string) (*model.JobConfig, error)
	countRunningFunc      func(ctx context.Context, configID string) (int, error)
	clearCancelFunc       func(ctx context.Context, id string) error
	isCancelRequestedFunc func(ctx context.Context, id string) (bool, error)
	startRunLogFunc       func(ctx context.Context, configID, triggeredBy string) (*model.RunLog, error)
	finishRunLogFunc      func(ctx context.Context, id string, status model.RunStatus, message string, durationMS int64) (bool, error)
	recordRunResultFunc   func(ctx context.Context, id string, status model.RunStatus, message string, durationMS int64, nextRunAt *time.Time) error
	updateRunLogMsgFunc   func(ctx context.Context, id, message string) error
	reapStaleRunsFunc     func(ctx context.Context, staleAfter time.Duration) (int64, error)
}

func (m *mockJobConfigRepository) Create(context.Context, *model.JobConfig) (*model.JobConfig, error) {
	return nil, errors.New("not implemented")
}

func (m *mockJobConfigRepository) Update(context.Context, *model.JobConfig) (*model.JobConfig, error) {
	return nil, errors.New("not implemented")
}

func (m *mockJobConfigRepository) GetByID(ctx context.Context, id string) (*model.JobConfig, error) {
	if m.getByIDFunc != nil {
		return m.getByIDFunc(ctx, id)
	}
	return nil, errors.New("not implemented")
}

func (m *mockJobConfigRepository) GetByName(context.Context, string) (*model.JobConfig, error) {
	return nil, errors.New("not implemented")
}

func (m *mockJobConfigRepository) List(context.Context) ([]*model.JobConfig, error) {
	return nil, errors.New("not implemented")
}

func (m *mockJobConfigRepository) ListSchedulable(context.Context) ([]*model.JobConfig, error) {
	return nil, errors.New("not implemented")
}

func (m *mockJobConfigRepository) SetPaused(context.Context, string, bool) (bool, error) {
	return false, errors.New("not implemented")
}

func (m *mockJobConfigRepository) SetEnabled(context.Context, string, bool) (bool, error) {
	return false, errors.New("not implemented")
}

func (m *mockJobConfigRepository) RequestCancel(context.Context, string) (bool, error) {
	return false, errors.New("not implemented")
}

func (m *mockJobConfigRepository) ClearCancel(ctx context.Context, id string) error {
	if m.clearCancelFunc != nil {
		return m.clearCancelFunc(ctx, id)
	}
	return nil
}

func (m *mockJobConfigRepository) IsCancelRequested(ctx context.Context, id string) (bool, error) {
	if m.isCancelRequestedFunc != nil {
		return m.isCancelRequestedFunc(ctx, id)
	}
	return false, nil
}

func (m *mockJobConfigRepository) RecordRunResult(ctx context.Context, id string, status model.RunStatus, message string, durationMS int64, nextRunAt *time.Time) error {
	if m.recordRunResultFunc != nil {
		return m.recordRunResultFunc(ctx, id, status, message, durationMS, nextRunAt)
	}
	return nil
}

func (m *mockJobConfigRepository) UpdateNextRun(context.Context, string, *time.Time) error {
	return errors.New("not implemented")
}

func (m *mockJobConfigRepository) NotifyRefresh(context.Context, string) error {
	return nil
}

func (m *mockJobConfigRepository) StartRunLog(ctx context.Context, configID, triggeredBy string) (*model.RunLog, error) {
	if m.startRunLogFunc != nil {
		return m.startRunLogFunc(ctx, configID, triggeredBy)
	}
	return &model.RunLog{
		ID:          "run-" + configID,
		ConfigID:    configID,
		TriggeredBy: triggeredBy,
		Status:      model.RunStatusRunning,
		StartedAt:   time.Now(),
	}, nil
}

func (m *mockJobConfigRepository) FinishRunLog(ctx context.Context, id string, status model.RunStatus, message string, durationMS int64) (bool, error) {
	if m.finishRunLogFunc != nil {
		return m.finishRunLogFunc(ctx, id, status, message, durationMS)
	}
	return true, nil
}

func (m *mockJobConfigRepository) UpdateRunLogMessage(ctx context.Context, id, message string) error {
	if m.updateRunLogMsgFunc != nil {
		return m.updateRunLogMsgFunc(ctx, id, message)
	}
	return nil
}

func (m *mockJobConfigRepository) CountRunning(ctx context.Context, configID string) (int, error) {
	if m.countRunningFunc != nil {
		return m.countRunningFunc(ctx, configID)
	}
	return 0, nil
}

func (m *mockJobConfigRepository) ReapStaleRuns(ctx context.Context, staleAfter time.Duration) (int64, error) {
	if m.reapStaleRunsFunc != nil {
		return m.reapStaleRunsFunc(ctx, staleAfter)
	}
	return 0, nil
}

func (m *mockJobConfigRepository) ListRunLogs(context.Context, string, int) ([]*model.RunLog, error) {
	return nil, errors.New("not implemented")
}

func (m *mockJobConfigRepository) GetRunLog(context.Context, string) (*model.RunLog, error) {
	return nil, errors.New("not implemented")
}

func enabledJobConfig(id, task string) *model.JobConfig {
	interval := 15
	return &model.JobConfig{
		ID:              id,
		Name:            "job " + id,
		TaskName:        task,
		Enabled:         true,
		ScheduleType:    model.ScheduleInterval,
		IntervalMinutes: &interval,
		MaxInstances:    1,
	}
}

func newEngine(t *testing.T, configs *mockJobConfigRepository, registry *TaskRegistry) *JobEngine {
	t.Helper()
	engine, err := NewJobEngine(JobEngineOptions{
		Configs:  configs,
		Registry: registry,
	})
	require.NoError(t, err)
	return engine
}

func TestExecute_InactiveConfigSkippedOnScheduledFiring(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(cfg *model.JobConfig)
	}{
		{"disabled", func(cfg *model.JobConfig) { cfg.Enabled = false }},
		{"paused", func(cfg *model.JobConfig) { cfg.Paused = true }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := enabledJobConfig("cfg-1", "noop")
			tt.mutate(cfg)
			configs := &mockJobConfigRepository{
				getByIDFunc: func(_ context.Context, id string) (*model.JobConfig, error) {
					return cfg, nil
				},
				startRunLogFunc: func(context.Context, string, string) (*model.RunLog, error) {
					t.Fatal("no run log should be opened for an inactive config")
					return nil, nil
				},
			}
			engine := newEngine(t, configs, NewTaskRegistry())

			runLog, err := engine.Execute(context.Background(), "cfg-1", model.TriggeredByScheduler)
			require.NoError(t, err)
			assert.Nil(t, runLog)
		})
	}
}

func TestExecute_ManualFiringRunsDisabledConfig(t *testing.T) {
	cfg := enabledJobConfig("cfg-1", "noop")
	cfg.Enabled = false
	invoked := false
	registry := NewTaskRegistry()
	registry.Register("noop", func(context.Context, TaskContext) (string, error) {
		invoked = true
		return "corrida manual", nil
	})
	configs := &mockJobConfigRepository{
		getByIDFunc: func(context.Context, string) (*model.JobConfig, error) { return cfg, nil },
	}
	engine := newEngine(t, configs, registry)

	runLog, err := engine.Execute(context.Background(), "cfg-1", model.TriggeredByManual)
	require.NoError(t, err)
	require.NotNil(t, runLog)
	assert.True(t, invoked)
	assert.Equal(t, model.RunStatusSuccess, runLog.Status)
	assert.Equal(t, "corrida manual", runLog.Message)
}

func TestExecute_OverlapWritesSyntheticSuccess(t *testing.T) {
	cfg := enabledJobConfig("cfg-1", "noop")
	invoked := false
	registry := NewTaskRegistry()
	registry.Register("noop", func(context.Context, TaskContext) (string, error) {
		invoked = true
		return "", nil
	})
	var recordedStatus model.RunStatus
	var recordedMessage string
	var recordedDuration int64 = -1
	configs := &mockJobConfigRepository{
		getByIDFunc:      func(context.Context, string) (*model.JobConfig, error) { return cfg, nil },
		countRunningFunc: func(context.Context, string) (int, error) { return 1, nil },
		recordRunResultFunc: func(_ context.Context, _ string, status model.RunStatus, message string, durationMS int64, _ *time.Time) error {
			recordedStatus = status
			recordedMessage = message
			recordedDuration = durationMS
			return nil
		},
	}
	engine := newEngine(t, configs, registry)

	runLog, err := engine.Execute(context.Background(), "cfg-1", model.TriggeredByScheduler)
	require.NoError(t, err)
	require.NotNil(t, runLog)
	assert.Equal(t, model.RunStatusSuccess, runLog.Status)
	assert.Equal(t, "omitido: ya hay otra instancia en ejecución", runLog.Message)
	assert.False(t, invoked)
	// The skip is also the config's latest outcome.
	assert.Equal(t, model.RunStatusSuccess, recordedStatus)
	assert.Equal(t, "omitido: ya hay otra instancia en ejecución", recordedMessage)
	assert.Equal(t, int64(0), recordedDuration)
}

func TestExecute_StaleRunReapedBeforeOverlapCheck(t *testing.T) {
	cfg := enabledJobConfig("cfg-1", "noop")
	invoked := false
	registry := NewTaskRegistry()
	registry.Register("noop", func(context.Context, TaskContext) (string, error) {
		invoked = true
		return "", nil
	})
	reaped := false
	configs := &mockJobConfigRepository{
		getByIDFunc: func(context.Context, string) (*model.JobConfig, error) { return cfg, nil },
		reapStaleRunsFunc: func(_ context.Context, staleAfter time.Duration) (int64, error) {
			assert.Equal(t, 15*time.Minute, staleAfter)
			reaped = true
			return 1, nil
		},
		countRunningFunc: func(context.Context, string) (int, error) {
			// The phantom RUNNING row only disappears once the reap ran.
			if reaped {
				return 0, nil
			}
			return 1, nil
		},
	}
	engine, err := NewJobEngine(JobEngineOptions{
		Configs:    configs,
		Registry:   registry,
		StaleAfter: 15 * time.Minute,
	})
	require.NoError(t, err)

	runLog, err := engine.Execute(context.Background(), "cfg-1", model.TriggeredByManual)
	require.NoError(t, err)
	require.NotNil(t, runLog)
	assert.True(t, reaped)
	assert.True(t, invoked)
	assert.Equal(t, model.RunStatusSuccess, runLog.Status)
}

func TestExecute_SuccessRecordsResultAndNextRun(t *testing.T) {
	cfg := enabledJobConfig("cfg-1", "sweep")
	registry := NewTaskRegistry()
	registry.Register("sweep", func(_ context.Context, tc TaskContext) (string, error) {
		return "cerradas 3 sesiones", nil
	})

	next := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	var recordedNext *time.Time
	var recordedStatus model.RunStatus
	cancelCleared := false
	configs := &mockJobConfigRepository{
		getByIDFunc:     func(context.Context, string) (*model.JobConfig, error) { return cfg, nil },
		clearCancelFunc: func(context.Context, string) error { cancelCleared = true; return nil },
		recordRunResultFunc: func(_ context.Context, _ string, status model.RunStatus, _ string, _ int64, nextRunAt *time.Time) error {
			recordedStatus = status
			recordedNext = nextRunAt
			return nil
		},
	}
	engine, err := NewJobEngine(JobEngineOptions{
		Configs:  configs,
		Registry: registry,
		NextRun: func(*model.JobConfig, time.Time) *time.Time {
			return &next
		},
	})
	require.NoError(t, err)

	runLog, err := engine.Execute(context.Background(), "cfg-1", model.TriggeredByScheduler)
	require.NoError(t, err)
	require.NotNil(t, runLog)
	assert.Equal(t, model.RunStatusSuccess, runLog.Status)
	assert.Equal(t, "cerradas 3 sesiones", runLog.Message)
	assert.True(t, cancelCleared)
	assert.Equal(t, model.RunStatusSuccess, recordedStatus)
	require.NotNil(t, recordedNext)
	assert.Equal(t, next, *recordedNext)
}

func TestExecute_TaskErrorClassifiedAsError(t *testing.T) {
	cfg := enabledJobConfig("cfg-1", "broken")
	registry := NewTaskRegistry()
	registry.Register("broken", func(context.Context, TaskContext) (string, error) {
		return "", errors.New("tabla bloqueada")
	})
	configs := &mockJobConfigRepository{
		getByIDFunc: func(context.Context, string) (*model.JobConfig, error) { return cfg, nil },
	}
	engine := newEngine(t, configs, registry)

	runLog, err := engine.Execute(context.Background(), "cfg-1", model.TriggeredByManual)
	require.NoError(t, err)
	require.NotNil(t, runLog)
	assert.Equal(t, model.RunStatusError, runLog.Status)
	assert.Equal(t, "tabla bloqueada", runLog.Message)
}

func TestExecute_UnknownTaskClassifiedAsError(t *testing.T) {
	cfg := enabledJobConfig("cfg-1", "missing")
	configs := &mockJobConfigRepository{
		getByIDFunc: func(context.Context, string) (*model.JobConfig, error) { return cfg, nil },
	}
	engine := newEngine(t, configs, NewTaskRegistry())

	runLog, err := engine.Execute(context.Background(), "cfg-1", model.TriggeredByManual)
	require.NoError(t, err)
	require.NotNil(t, runLog)
	assert.Equal(t, model.RunStatusError, runLog.Status)
	assert.Contains(t, runLog.Message, "missing")
}

func TestExecute_CanceledTaskClassifiesRunCanceled(t *testing.T) {
	cfg := enabledJobConfig("cfg-1", "slow")
	registry := NewTaskRegistry()
	registry.Register("slow", func(ctx context.Context, tc TaskContext) (string, error) {
		if tc.ShouldCancel(ctx) {
			return "", ErrRunCanceled
		}
		return "", nil
	})
	configs := &mockJobConfigRepository{
		getByIDFunc: func(context.Context, string) (*model.JobConfig, error) { return cfg, nil },
		isCancelRequestedFunc: func(context.Context, string) (bool, error) {
			return true, nil
		},
	}
	engine := newEngine(t, configs, registry)

	runLog, err := engine.Execute(context.Background(), "cfg-1", model.TriggeredByManual)
	require.NoError(t, err)
	require.NotNil(t, runLog)
	assert.Equal(t, model.RunStatusCanceled, runLog.Status)
	assert.Equal(t, "cancelado a pedido del operador", runLog.Message)
}

func TestExecute_CancelRaisedAfterCompletionKeepsSuccess(t *testing.T) {
	cfg := enabledJobConfig("cfg-1", "fast")
	registry := NewTaskRegistry()
	registry.Register("fast", func(context.Context, TaskContext) (string, error) {
		return "todo el trabajo hecho", nil
	})
	configs := &mockJobConfigRepository{
		getByIDFunc: func(context.Context, string) (*model.JobConfig, error) { return cfg, nil },
		// The flag lands in the final instant of the run; the task finished
		// normally and never saw it.
		isCancelRequestedFunc: func(context.Context, string) (bool, error) {
			return true, nil
		},
	}
	engine := newEngine(t, configs, registry)

	runLog, err := engine.Execute(context.Background(), "cfg-1", model.TriggeredByManual)
	require.NoError(t, err)
	require.NotNil(t, runLog)
	assert.Equal(t, model.RunStatusSuccess, runLog.Status)
	assert.Equal(t, "todo el trabajo hecho", runLog.Message)
}

func TestExecute_SuccessfulRunChainsOnce(t *testing.T) {
	parent := enabledJobConfig("parent", "noop")
	childID := "child"
	parent.ChainedJobID = &childID
	child := enabledJobConfig("child", "noop")
	// The child chains back at the parent; the chain prefix guard must stop
	// the cycle after one hop.
	parentID := "parent"
	child.ChainedJobID = &parentID

	registry := NewTaskRegistry()
	registry.Register("noop", func(context.Context, TaskContext) (string, error) {
		return "", nil
	})

	var triggers []string
	configs := &mockJobConfigRepository{
		getByIDFunc: func(_ context.Context, id string) (*model.JobConfig, error) {
			if id == "parent" {
				return parent, nil
			}
			return child, nil
		},
		startRunLogFunc: func(_ context.Context, configID, triggeredBy string) (*model.RunLog, error) {
			triggers = append(triggers, configID+"<-"+triggeredBy)
			return &model.RunLog{ID: "run-" + configID, ConfigID: configID, TriggeredBy: triggeredBy}, nil
		},
	}
	engine := newEngine(t, configs, registry)

	_, err := engine.Execute(context.Background(), "parent", model.TriggeredByScheduler)
	require.NoError(t, err)
	assert.Equal(t, []string{
		"parent<-scheduler",
		"child<-" + model.TriggeredByChainPrefix + "parent",
	}, triggers)
}

func TestExecute_InactiveChainedJobNotFired(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(cfg *model.JobConfig)
	}{
		{"disabled", func(cfg *model.JobConfig) { cfg.Enabled = false }},
		{"paused", func(cfg *model.JobConfig) { cfg.Paused = true }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			parent := enabledJobConfig("parent", "noop")
			childID := "child"
			parent.ChainedJobID = &childID
			child := enabledJobConfig("child", "noop")
			tt.mutate(child)

			registry := NewTaskRegistry()
			registry.Register("noop", func(context.Context, TaskContext) (string, error) {
				return "", nil
			})
			var runs []string
			configs := &mockJobConfigRepository{
				getByIDFunc: func(_ context.Context, id string) (*model.JobConfig, error) {
					if id == "parent" {
						return parent, nil
					}
					return child, nil
				},
				startRunLogFunc: func(_ context.Context, configID, triggeredBy string) (*model.RunLog, error) {
					runs = append(runs, configID)
					return &model.RunLog{ID: "run-" + configID, ConfigID: configID, TriggeredBy: triggeredBy}, nil
				},
			}
			engine := newEngine(t, configs, registry)

			_, err := engine.Execute(context.Background(), "parent", model.TriggeredByScheduler)
			require.NoError(t, err)
			assert.Equal(t, []string{"parent"}, runs)
		})
	}
}

func TestExecute_SelfChainIsIgnored(t *testing.T) {
	cfg := enabledJobConfig("cfg-1", "noop")
	self := "cfg-1"
	cfg.ChainedJobID = &self

	registry := NewTaskRegistry()
	registry.Register("noop", func(context.Context, TaskContext) (string, error) {
		return "", nil
	})
	runs := 0
	configs := &mockJobConfigRepository{
		getByIDFunc: func(context.Context, string) (*model.JobConfig, error) { return cfg, nil },
		startRunLogFunc: func(_ context.Context, configID, triggeredBy string) (*model.RunLog, error) {
			runs++
			return &model.RunLog{ID: "run-1", ConfigID: configID, TriggeredBy: triggeredBy}, nil
		},
	}
	engine := newEngine(t, configs, registry)

	_, err := engine.Execute(context.Background(), "cfg-1", model.TriggeredByManual)
	require.NoError(t, err)
	assert.Equal(t, 1, runs)
}

func TestExecute_FailedRunDoesNotChain(t *testing.T) {
	cfg := enabledJobConfig("cfg-1", "broken")
	childID := "child"
	cfg.ChainedJobID = &childID

	registry := NewTaskRegistry()
	registry.Register("broken", func(context.Context, TaskContext) (string, error) {
		return "", errors.New("boom")
	})
	var seen []string
	configs := &mockJobConfigRepository{
		getByIDFunc: func(_ context.Context, id string) (*model.JobConfig, error) {
			seen = append(seen, id)
			return cfg, nil
		},
	}
	engine := newEngine(t, configs, registry)

	_, err := engine.Execute(context.Background(), "cfg-1", model.TriggeredByScheduler)
	require.NoError(t, err)
	assert.Equal(t, []string{"cfg-1"}, seen)
}

func TestTaskContext_ArgsAndMessageUpdates(t *testing.T) {
	cfg := enabledJobConfig("cfg-1", "report")
	cfg.TaskArgs = map[string]any{"timeout_minutes": 45.0}

	registry := NewTaskRegistry()
	registry.Register("report", func(ctx context.Context, tc TaskContext) (string, error) {
		assert.Equal(t, 45.0, tc.Args()["timeout_minutes"])
		assert.False(t, tc.ShouldCancel(ctx))
		require.NoError(t, tc.UpdateMessage(ctx, "a mitad de camino"))
		return "listo", nil
	})
	var progress []string
	configs := &mockJobConfigRepository{
		getByIDFunc: func(context.Context, string) (*model.JobConfig, error) { return cfg, nil },
		updateRunLogMsgFunc: func(_ context.Context, _, message string) error {
			progress = append(progress, message)
			return nil
		},
	}
	engine := newEngine(t, configs, registry)

	runLog, err := engine.Execute(context.Background(), "cfg-1", model.TriggeredByManual)
	require.NoError(t, err)
	require.NotNil(t, runLog)
	assert.Equal(t, "listo", runLog.Message)
	assert.Equal(t, []string{"a mitad de camino"}, progress)
}

func TestTaskRegistry_ResolveAndNames(t *testing.T) {
	registry := NewTaskRegistry()
	registry.Register("b.second", func(context.Context, TaskContext) (string, error) { return "", nil })
	registry.Register("a.first", func(context.Context, TaskContext) (string, error) { return "", nil })

	fn, err := registry.Resolve("a.first")
	require.NoError(t, err)
	assert.NotNil(t, fn)

	_, err = registry.Resolve("nope")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "nope")

	assert.Equal(t, []string{"a.first", "b.second"}, registry.Names())
}
