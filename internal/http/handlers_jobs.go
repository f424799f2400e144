package httpx

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/devLink-Developer/chatbot-camping/internal/core"
	"github.com/devLink-Developer/chatbot-camping/internal/data"
	"github.com/devLink-Developer/chatbot-camping/internal/domain/model"
)

// JobHandlers exposes the operator surface over job configs and run logs.
type JobHandlers struct {
	Configs core.JobConfigRepository
	Engine  JobExecutor
	Logger  *slog.Logger
}

// JobExecutor runs a job config ad hoc.
type JobExecutor interface {
	Execute(ctx context.Context, configID, triggeredBy string) (*model.RunLog, error)
}

// List returns every job config.
func (h *JobHandlers) List(w http.ResponseWriter, r *http.Request) {
	configs, err := h.Configs.List(r.Context())
	if err != nil {
		WriteError(w, ErrorParams{Code: http.StatusInternalServerError, ErrCode: "list_failed", Err: err})
		return
	}
	WriteJSON(w, http.StatusOK, map[string]any{"configs": configs})
}

// Get returns one job config.
func (h *JobHandlers) Get(w http.ResponseWriter, r *http.Request) {
	cfg, err := h.Configs.GetByID(r.Context(), r.PathValue("id"))
	if err != nil {
		writeConfigError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, cfg)
}

// Pause pauses a config; its triggers drop from the set on the next refresh.
func (h *JobHandlers) Pause(w http.ResponseWriter, r *http.Request) {
	h.setPaused(w, r, true)
}

// Resume re-enables a paused config's triggers.
func (h *JobHandlers) Resume(w http.ResponseWriter, r *http.Request) {
	h.setPaused(w, r, false)
}

func (h *JobHandlers) setPaused(w http.ResponseWriter, r *http.Request, paused bool) {
	id := r.PathValue("id")
	ok, err := h.Configs.SetPaused(r.Context(), id, paused)
	if err != nil {
		WriteError(w, ErrorParams{Code: http.StatusInternalServerError, ErrCode: "update_failed", Err: err})
		return
	}
	if !ok {
		writeConfigError(w, data.ErrJobConfigNotFound)
		return
	}
	if err := h.Configs.NotifyRefresh(r.Context(), "pause_toggle"); err != nil && h.Logger != nil {
		h.Logger.Warn("refresh notify failed", "config_id", id, "error", err)
	}
	WriteJSON(w, http.StatusOK, map[string]any{"id": id, "paused": paused})
}

// TriggerNow fires a config immediately through the normal run protocol
// without touching the standing schedule.
func (h *JobHandlers) TriggerNow(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	runLog, err := h.Engine.Execute(r.Context(), id, model.TriggeredByManual)
	if err != nil {
		writeConfigError(w, err)
		return
	}
	// Manual firings run even disabled or paused configs, so the engine
	// normally always returns a run log here.
	if runLog == nil {
		WriteError(w, ErrorParams{
			Code:    http.StatusConflict,
			ErrCode: "run_skipped",
			Err:     errors.New("run was skipped"),
		})
		return
	}
	WriteJSON(w, http.StatusOK, runLog)
}

// Cancel raises the cooperative cancel flag for the config's live run.
func (h *JobHandlers) Cancel(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	ok, err := h.Configs.RequestCancel(r.Context(), id)
	if err != nil {
		WriteError(w, ErrorParams{Code: http.StatusInternalServerError, ErrCode: "cancel_failed", Err: err})
		return
	}
	if !ok {
		writeConfigError(w, data.ErrJobConfigNotFound)
		return
	}
	WriteJSON(w, http.StatusAccepted, map[string]any{"id": id, "cancel_requested": true})
}

// Refresh fires the trigger-set refresh notification.
func (h *JobHandlers) Refresh(w http.ResponseWriter, r *http.Request) {
	if err := h.Configs.NotifyRefresh(r.Context(), "manual"); err != nil {
		WriteError(w, ErrorParams{Code: http.StatusInternalServerError, ErrCode: "refresh_failed", Err: err})
		return
	}
	WriteJSON(w, http.StatusOK, map[string]string{"status": "refresh requested"})
}

// RunLogs lists the most recent run logs for a config.
func (h *JobHandlers) RunLogs(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	logs, err := h.Configs.ListRunLogs(r.Context(), id, limit)
	if err != nil {
		WriteError(w, ErrorParams{Code: http.StatusInternalServerError, ErrCode: "list_failed", Err: err})
		return
	}
	WriteJSON(w, http.StatusOK, map[string]any{"run_logs": logs})
}

func writeConfigError(w http.ResponseWriter, err error) {
	if errors.Is(err, data.ErrJobConfigNotFound) {
		WriteError(w, ErrorParams{Code: http.StatusNotFound, ErrCode: "config_not_found", Err: err})
		return
	}
	WriteError(w, ErrorParams{Code: http.StatusInternalServerError, ErrCode: "internal_error", Err: err})
}
