package httpx

import (
	"errors"
	"net/http"

	"github.com/devLink-Developer/chatbot-camping/internal/core"
	"github.com/devLink-Developer/chatbot-camping/internal/data"
	"github.com/devLink-Developer/chatbot-camping/internal/domain/model"
)

// QueueHandlers exposes the operator surface over the message queue.
type QueueHandlers struct {
	Messages core.MessageRepository
}

// Stats returns per-status counts for both directions.
func (h *QueueHandlers) Stats(w http.ResponseWriter, r *http.Request) {
	inbound, err := h.Messages.Stats(r.Context(), model.DirectionIn)
	if err != nil {
		WriteError(w, ErrorParams{Code: http.StatusInternalServerError, ErrCode: "stats_failed", Err: err})
		return
	}
	outbound, err := h.Messages.Stats(r.Context(), model.DirectionOut)
	if err != nil {
		WriteError(w, ErrorParams{Code: http.StatusInternalServerError, ErrCode: "stats_failed", Err: err})
		return
	}
	WriteJSON(w, http.StatusOK, map[string]any{
		"inbound":  inbound,
		"outbound": outbound,
	})
}

// GetMessage returns one message row.
func (h *QueueHandlers) GetMessage(w http.ResponseWriter, r *http.Request) {
	msg, err := h.Messages.GetByID(r.Context(), r.PathValue("id"))
	if errors.Is(err, data.ErrMessageNotFound) {
		WriteError(w, ErrorParams{Code: http.StatusNotFound, ErrCode: "message_not_found", Err: err})
		return
	}
	if err != nil {
		WriteError(w, ErrorParams{Code: http.StatusInternalServerError, ErrCode: "internal_error", Err: err})
		return
	}
	WriteJSON(w, http.StatusOK, msg)
}

// Requeue re-drives a failed message. Attempts stay as recorded; the row just
// becomes eligible for claiming again.
func (h *QueueHandlers) Requeue(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	ok, err := h.Messages.Requeue(r.Context(), id)
	if err != nil {
		WriteError(w, ErrorParams{Code: http.StatusInternalServerError, ErrCode: "requeue_failed", Err: err})
		return
	}
	if !ok {
		WriteError(w, ErrorParams{
			Code:    http.StatusConflict,
			ErrCode: "not_requeueable",
			Err:     errors.New("message is not in failed state"),
		})
		return
	}
	WriteJSON(w, http.StatusOK, map[string]string{"id": id, "status": "requeued"})
}
