package httpx

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/devLink-Developer/chatbot-camping/internal/core"
	"github.com/devLink-Developer/chatbot-camping/internal/domain/model"
)

// WebhookHandlers ingests WhatsApp Cloud API webhook deliveries.
type WebhookHandlers struct {
	Messages    core.MessageRepository
	VerifyToken string
	Logger      *slog.Logger
}

// Verify answers the provider's GET subscription handshake.
func (h *WebhookHandlers) Verify(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	if q.Get("hub.mode") == "subscribe" && q.Get("hub.verify_token") == h.VerifyToken && h.VerifyToken != "" {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(q.Get("hub.challenge")))
		return
	}
	http.Error(w, "Forbidden", http.StatusForbidden)
}

// webhookPayload mirrors the slice of the Cloud API event batch we consume.
type webhookPayload struct {
	Entry []struct {
		Changes []struct {
			Value struct {
				Contacts []struct {
					WAID    string `json:"wa_id"`
					Profile struct {
						Name string `json:"name"`
					} `json:"profile"`
				} `json:"contacts"`
				Messages []webhookMessage `json:"messages"`
				Statuses []struct {
					ID        string `json:"id"`
					Status    string `json:"status"`
					Timestamp string `json:"timestamp"`
				} `json:"statuses"`
			} `json:"value"`
		} `json:"changes"`
	} `json:"entry"`
}

type webhookMessage struct {
	From      string `json:"from"`
	ID        string `json:"id"`
	Timestamp string `json:"timestamp"`
	Type      string `json:"type"`
	Text      struct {
		Body string `json:"body"`
	} `json:"text"`
	Interactive struct {
		ButtonReply struct {
			ID string `json:"id"`
		} `json:"button_reply"`
		ListReply struct {
			ID string `json:"id"`
		} `json:"list_reply"`
	} `json:"interactive"`
}

// Receive ingests one POSTed event batch. It always answers 200; the
// provider retries on anything else and per-event trouble is already stored
// or logged.
func (h *WebhookHandlers) Receive(w http.ResponseWriter, r *http.Request) {
	var payload webhookPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		if h.Logger != nil {
			h.Logger.Warn("undecodable webhook payload", "error", err)
		}
		w.WriteHeader(http.StatusOK)
		return
	}

	ctx := r.Context()
	for _, entry := range payload.Entry {
		for _, change := range entry.Changes {
			names := make(map[string]string, len(change.Value.Contacts))
			for _, c := range change.Value.Contacts {
				names[c.WAID] = c.Profile.Name
			}
			for _, msg := range change.Value.Messages {
				h.ingestMessage(ctx, msg, names[msg.From])
			}
			for _, st := range change.Value.Statuses {
				if _, err := h.Messages.ApplyDeliveryStatus(ctx, st.ID, st.Status, parseEpoch(st.Timestamp)); err != nil && h.Logger != nil {
					h.Logger.Warn("delivery status update failed",
						"wa_message_id", st.ID, "status", st.Status, "error", err)
				}
			}
		}
	}
	w.WriteHeader(http.StatusOK)
}

func (h *WebhookHandlers) ingestMessage(ctx context.Context, msg webhookMessage, displayName string) {
	body := msg.Text.Body
	msgType := msg.Type
	// Interactive replies carry the selected option id; fold them back into
	// the same text grammar the navigator already understands.
	if msg.Type == "interactive" {
		if msg.Interactive.ButtonReply.ID != "" {
			body = msg.Interactive.ButtonReply.ID
			msgType = model.MessageTypeText
		} else if msg.Interactive.ListReply.ID != "" {
			body = msg.Interactive.ListReply.ID
			msgType = model.MessageTypeText
		}
	}

	_, err := h.Messages.Create(ctx, &model.CreateMessageRequest{
		PhoneNumber: NormalizePhone(msg.From),
		DisplayName: displayName,
		Direction:   model.DirectionIn,
		MsgType:     msgType,
		Body:        body,
		WAMessageID: msg.ID,
		OriginTS:    parseEpoch(msg.Timestamp),
		QueueStatus: model.QueueStatusPending,
	})
	if err != nil && h.Logger != nil {
		h.Logger.Error("inbound ingest failed",
			"wa_message_id", msg.ID, "from", msg.From, "error", err)
	}
}

// NormalizePhone folds provider wa_ids into the stored E.164-ish form.
// Argentine mobile ids arrive as 549 + area + number; we store +54 without
// the mobile 9 so replies and stored rows share one key.
func NormalizePhone(raw string) string {
	p := strings.TrimSpace(raw)
	if p == "" {
		return p
	}
	if strings.HasPrefix(p, "549") && len(p) > 3 {
		return "+54" + p[3:]
	}
	if !strings.HasPrefix(p, "+") {
		return "+" + p
	}
	return p
}

// parseEpoch converts the provider's second-resolution timestamp string.
// Unparseable values fall back to now so ingestion never stalls on them.
func parseEpoch(s string) time.Time {
	secs, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
	if err != nil || secs <= 0 {
		return time.Now().UTC()
	}
	return time.Unix(secs, 0).UTC()
}
