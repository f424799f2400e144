package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/devLink-Developer/chatbot-camping/config"
	"github.com/devLink-Developer/chatbot-camping/internal/core"
	"github.com/devLink-Developer/chatbot-camping/internal/domain/model"
	"github.com/devLink-Developer/chatbot-camping/internal/observability/statsd"
)

// OutboundServiceOptions groups dependencies for OutboundService.
type OutboundServiceOptions struct {
	Messages core.MessageRepository // Required: message store
	Client   core.MessagingClient   // Required: provider send surface
	Queue    config.QueueConfig     // Required: age and supersession policy
	Logger   *slog.Logger           // Optional: structured logger
	Metrics  statsd.Sink            // Optional: metrics sink
	Now      func() time.Time       // Optional: clock override for tests
}

// OutboundService delivers claimed outbound messages. Before sending it
// applies two guards: stale replies are dropped rather than sent into a dead
// conversation, and replies computed before a newer inbound arrived are
// dropped as superseded.
type OutboundService struct {
	messages core.MessageRepository
	client   core.MessagingClient
	queue    config.QueueConfig
	logger   *slog.Logger
	metrics  statsd.Sink
	now      func() time.Time
}

// NewOutboundService constructs a new OutboundService.
func NewOutboundService(opts OutboundServiceOptions) (*OutboundService, error) {
	if opts.Messages == nil {
		return nil, errors.New("MessageRepository is required")
	}
	if opts.Client == nil {
		return nil, errors.New("MessagingClient is required")
	}
	var logger *slog.Logger
	if opts.Logger != nil {
		logger = opts.Logger.With("component", "outbound_service")
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	return &OutboundService{
		messages: opts.Messages,
		client:   opts.Client,
		queue:    opts.Queue,
		logger:   logger,
		metrics:  opts.Metrics,
		now:      now,
	}, nil
}

// DispatchBatch delivers one claimed batch in order.
func (s *OutboundService) DispatchBatch(ctx context.Context, batch []*model.Message) {
	for _, msg := range batch {
		if err := s.DispatchOne(ctx, msg); err != nil {
			if s.logger != nil {
				s.logger.Error("outbound dispatch failed",
					"message_id", msg.ID,
					"phone", msg.PhoneNumber,
					"error", err)
			}
			if _, ferr := s.messages.MarkFailed(ctx, msg.ID, err.Error()); ferr != nil && s.logger != nil {
				s.logger.Error("mark failed errored", "message_id", msg.ID, "error", ferr)
			}
			s.count("outbound.failed", nil)
		}
	}
}

// DispatchOne sends a single claimed outbound message or drops it with a
// tagged terminal state.
func (s *OutboundService) DispatchOne(ctx context.Context, msg *model.Message) error {
	if dropped, err := s.applyGuards(ctx, msg); err != nil || dropped {
		return err
	}

	waID, path, err := s.send(ctx, msg)
	if err != nil {
		return err
	}

	if path != "" && path != msg.Metadata.DeliveryPath {
		meta := msg.Metadata
		meta.DeliveryPath = path
		if merr := s.messages.UpdateMetadata(ctx, msg.ID, meta); merr != nil && s.logger != nil {
			s.logger.Warn("delivery path update failed", "message_id", msg.ID, "error", merr)
		}
	}

	if _, err := s.messages.MarkSent(ctx, msg.ID, waID); err != nil {
		return fmt.Errorf("mark sent: %w", err)
	}
	s.count("outbound.sent", map[string]string{"path": path})
	return nil
}

// applyGuards drops stale or superseded replies. It returns dropped=true when
// the row reached a terminal state without a send.
func (s *OutboundService) applyGuards(ctx context.Context, msg *model.Message) (bool, error) {
	if s.queue.OutboundMaxAge > 0 && s.now().Sub(msg.OriginTS) > s.queue.OutboundMaxAge {
		if _, err := s.messages.MarkFailed(ctx, msg.ID, model.ErrorExpiredBeforeSend); err != nil {
			return false, fmt.Errorf("mark expired: %w", err)
		}
		if s.logger != nil {
			s.logger.Info("dropped expired outbound",
				"message_id", msg.ID,
				"age", s.now().Sub(msg.OriginTS).String())
		}
		s.count("outbound.dropped", map[string]string{"reason": "expired"})
		return true, nil
	}

	if s.queue.SupersedeDropEnabled && msg.Metadata.ReplyToTS > 0 {
		replyTo := time.UnixMilli(msg.Metadata.ReplyToTS)
		newer, err := s.messages.HasNewerInbound(ctx, msg.PhoneNumber, replyTo)
		if err != nil {
			return false, fmt.Errorf("supersession check: %w", err)
		}
		if newer {
			if _, err := s.messages.MarkFailed(ctx, msg.ID, model.ErrorSuperseded); err != nil {
				return false, fmt.Errorf("mark superseded: %w", err)
			}
			if s.logger != nil {
				s.logger.Info("dropped superseded outbound", "message_id", msg.ID)
			}
			s.count("outbound.dropped", map[string]string{"reason": "superseded"})
			return true, nil
		}
	}
	return false, nil
}

// send pushes the message to the provider. Interactive sets go out in order;
// a failure before anything was delivered falls back to the plain body, a
// failure midway aborts the remainder but keeps what was delivered.
func (s *OutboundService) send(ctx context.Context, msg *model.Message) (waID, path string, err error) {
	if len(msg.Metadata.Interactive) == 0 {
		result, serr := s.client.SendText(ctx, core.SendTextParams{
			To:          msg.PhoneNumber,
			Body:        msg.Text(),
			ReplyToWAID: msg.Metadata.ReplyToWAID,
		})
		if serr != nil {
			return "", "", fmt.Errorf("send text: %w", serr)
		}
		return result.WAMessageID, model.DeliveryPathText, nil
	}

	sent := 0
	lastWAID := ""
	for _, payload := range msg.Metadata.Interactive {
		result, serr := s.client.SendInteractive(ctx, core.SendInteractiveParams{
			To:      msg.PhoneNumber,
			Payload: payload,
		})
		if serr != nil {
			if sent == 0 {
				if s.logger != nil {
					s.logger.Warn("interactive send failed, falling back to text",
						"message_id", msg.ID, "error", serr)
				}
				result, terr := s.client.SendText(ctx, core.SendTextParams{
					To:          msg.PhoneNumber,
					Body:        msg.Text(),
					ReplyToWAID: msg.Metadata.ReplyToWAID,
				})
				if terr != nil {
					return "", "", fmt.Errorf("text fallback: %w", terr)
				}
				return result.WAMessageID, model.DeliveryPathTextFallback, nil
			}
			if s.logger != nil {
				s.logger.Warn("interactive send aborted midway",
					"message_id", msg.ID, "delivered", sent, "error", serr)
			}
			return lastWAID, model.DeliveryPathPartialAborted, nil
		}
		sent++
		lastWAID = result.WAMessageID
	}
	return lastWAID, model.DeliveryPathInteractive, nil
}

func (s *OutboundService) count(name string, tags map[string]string) {
	if s.metrics != nil {
		s.metrics.Count(name, 1, tags)
	}
}
