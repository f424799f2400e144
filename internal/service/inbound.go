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
	"github.com/devLink-Developer/chatbot-camping/internal/domain/navigate"
	"github.com/devLink-Developer/chatbot-camping/internal/observability/statsd"
)

// InboundServiceOptions groups dependencies for InboundService.
type InboundServiceOptions struct {
	Messages core.MessageRepository // Required: message store
	Sessions core.SessionRepository // Required: session store
	Contacts core.ContactRepository // Required: contact roster
	Content  *ContentService        // Required: content resolver and renderer
	Accounts *AccountService        // Optional: used for the mark-read typing flag
	Client   core.MessagingClient   // Optional: used for best-effort read acks
	Response config.ResponseConfig  // Required: reply pacing configuration
	Session  config.SessionConfig   // Required: session timeout configuration
	Logger   *slog.Logger           // Optional: structured logger
	Metrics  statsd.Sink            // Optional: metrics sink
	Now      func() time.Time       // Optional: clock override for tests
}

// InboundService turns claimed inbound messages into queued replies.
//
// For each message it updates the contact roster and session state, decides
// what the user meant (special command, menu selection, greeting, free text),
// renders the reply, and enqueues it with a humanized delay. The caller owns
// claiming and terminal-state bookkeeping happens here.
type InboundService struct {
	messages core.MessageRepository
	sessions core.SessionRepository
	contacts core.ContactRepository
	content  *ContentService
	accounts *AccountService
	client   core.MessagingClient
	response config.ResponseConfig
	session  config.SessionConfig
	logger   *slog.Logger
	metrics  statsd.Sink
	now      func() time.Time
}

// NewInboundService constructs a new InboundService.
func NewInboundService(opts InboundServiceOptions) (*InboundService, error) {
	if opts.Messages == nil {
		return nil, errors.New("MessageRepository is required")
	}
	if opts.Sessions == nil {
		return nil, errors.New("SessionRepository is required")
	}
	if opts.Contacts == nil {
		return nil, errors.New("ContactRepository is required")
	}
	if opts.Content == nil {
		return nil, errors.New("ContentService is required")
	}

	var logger *slog.Logger
	if opts.Logger != nil {
		logger = opts.Logger.With("component", "inbound_service")
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	return &InboundService{
		messages: opts.Messages,
		sessions: opts.Sessions,
		contacts: opts.Contacts,
		content:  opts.Content,
		accounts: opts.Accounts,
		client:   opts.Client,
		response: opts.Response,
		session:  opts.Session,
		logger:   logger,
		metrics:  opts.Metrics,
		now:      now,
	}, nil
}

// ProcessBatch handles one claimed batch in order. A failure on one message
// marks that row failed and moves on; the batch never aborts midway.
func (s *InboundService) ProcessBatch(ctx context.Context, batch []*model.Message) {
	for _, msg := range batch {
		if err := s.ProcessOne(ctx, msg); err != nil {
			if s.logger != nil {
				s.logger.Error("inbound processing failed",
					"message_id", msg.ID,
					"phone", msg.PhoneNumber,
					"error", err)
			}
			if _, ferr := s.messages.MarkFailed(ctx, msg.ID, err.Error()); ferr != nil && s.logger != nil {
				s.logger.Error("mark failed errored", "message_id", msg.ID, "error", ferr)
			}
			s.count("inbound.failed", nil)
		}
	}
}

// ProcessOne handles a single claimed inbound message through to its terminal
// state and enqueues the reply.
func (s *InboundService) ProcessOne(ctx context.Context, msg *model.Message) error {
	started := s.now()
	s.markRead(ctx, msg)

	firstContact, err := s.contacts.RecordInbound(ctx, msg.PhoneNumber, stringOrEmpty(msg.DisplayName), msg.Text())
	if err != nil {
		return fmt.Errorf("record contact: %w", err)
	}

	session, created, err := s.sessions.Ensure(ctx, msg.PhoneNumber, stringOrEmpty(msg.DisplayName))
	if err != nil {
		return fmt.Errorf("ensure session: %w", err)
	}

	expired := false
	if !created && s.session.Timeout > 0 && s.now().Sub(session.LastSeenAt) > s.session.Timeout {
		expired = true
		if err := s.sessions.Reset(ctx, msg.PhoneNumber, "expired"); err != nil {
			return fmt.Errorf("reset expired session: %w", err)
		}
		session.CurrentState = model.RootState
		session.NavHistory = model.DefaultHistory()
	}

	reply, meta, err := s.decide(ctx, msg, session, decision{
		newContact: created || firstContact,
		expired:    expired,
	})
	if err != nil {
		return err
	}

	if err := s.enqueueReply(ctx, msg, reply, meta); err != nil {
		return err
	}

	// Record the routing decision on the inbound row before closing it.
	if err := s.messages.UpdateMetadata(ctx, msg.ID, meta); err != nil && s.logger != nil {
		s.logger.Warn("inbound metadata update failed", "message_id", msg.ID, "error", err)
	}
	if _, err := s.messages.MarkProcessed(ctx, msg.ID); err != nil {
		return fmt.Errorf("mark processed: %w", err)
	}

	s.count("inbound.processed", map[string]string{"action": meta.Action})
	s.timing("inbound.duration", s.now().Sub(started))
	return nil
}

type decision struct {
	newContact bool
	expired    bool
}

// decide picks the reply for one inbound message. Precedence: first contact
// beats session expiry beats non-text beats navigation.
func (s *InboundService) decide(ctx context.Context, msg *model.Message, session *model.Session, d decision) (*RenderedContent, model.MessageMeta, error) {
	meta := model.MessageMeta{
		NewContact:     d.newContact,
		SessionExpired: d.expired,
	}

	if d.newContact {
		meta.Action = navigate.ActionGoMain
		meta.NewState = model.RootState
		welcome, err := s.content.BotMessage(ctx, model.BotMessageWelcome)
		if err != nil {
			return nil, meta, err
		}
		menu, err := s.content.RenderMenu(ctx, model.RootState)
		if err != nil {
			return nil, meta, err
		}
		if err := s.sessions.UpdateNavigation(ctx, msg.PhoneNumber, model.RootState, model.DefaultHistory(), msg.Text()); err != nil {
			return nil, meta, err
		}
		return &RenderedContent{
			Body:        welcome + "\n\n" + menu.Body,
			Interactive: menu.Interactive,
		}, meta, nil
	}

	if d.expired {
		meta.Action = navigate.ActionGoMain
		meta.NewState = model.RootState
		notice, err := s.content.BotMessage(ctx, model.BotMessageSessionExpired)
		if err != nil {
			return nil, meta, err
		}
		menu, err := s.content.RenderMenu(ctx, model.RootState)
		if err != nil {
			return nil, meta, err
		}
		if err := s.sessions.UpdateNavigation(ctx, msg.PhoneNumber, model.RootState, model.DefaultHistory(), msg.Text()); err != nil {
			return nil, meta, err
		}
		return &RenderedContent{
			Body:        notice + "\n\n" + menu.Body,
			Interactive: menu.Interactive,
		}, meta, nil
	}

	if msg.MsgType != model.MessageTypeText {
		meta.InputKind = string(navigate.InputInvalid)
		meta.Action = navigate.ActionError
		if err := s.sessions.Touch(ctx, msg.PhoneNumber, msg.Text()); err != nil {
			return nil, meta, err
		}
		body, err := s.content.BotMessage(ctx, model.BotMessageNonText)
		if err != nil {
			return nil, meta, err
		}
		return &RenderedContent{Body: body}, meta, nil
	}

	v := navigate.Classify(msg.Text())
	meta.InputKind = string(v.Kind)
	meta.Action = v.Action
	meta.Target = v.Target

	if !v.Valid {
		return s.decideInvalid(ctx, msg, v, &meta)
	}

	step, err := navigate.Advance(ctx, s.content, msg.Text(), session.CurrentState, session.NavHistory)
	if err != nil {
		return nil, meta, fmt.Errorf("advance navigation: %w", err)
	}
	if !step.Valid {
		// A well-formed selection that does not exist on this menu.
		return s.decideInvalid(ctx, msg, v, &meta)
	}

	meta.NewState = step.NewState
	meta.Target = step.Target
	if err := s.sessions.UpdateNavigation(ctx, msg.PhoneNumber, step.NewState, step.NewHistory, msg.Text()); err != nil {
		return nil, meta, err
	}
	if err := s.sessions.ResetFailed(ctx, msg.PhoneNumber); err != nil && s.logger != nil {
		s.logger.Warn("reset failed count errored", "phone", msg.PhoneNumber, "error", err)
	}
	rendered, err := s.content.RenderStep(ctx, step)
	if err != nil {
		return nil, meta, err
	}
	return rendered, meta, nil
}

func (s *InboundService) decideInvalid(ctx context.Context, msg *model.Message, v navigate.Validation, meta *model.MessageMeta) (*RenderedContent, model.MessageMeta, error) {
	meta.Action = navigate.ActionError
	if _, err := s.sessions.IncrementFailed(ctx, msg.PhoneNumber); err != nil && s.logger != nil {
		s.logger.Warn("increment failed count errored", "phone", msg.PhoneNumber, "error", err)
	}
	if err := s.sessions.Touch(ctx, msg.PhoneNumber, msg.Text()); err != nil {
		return nil, *meta, err
	}

	name := model.BotMessageInvalidOption
	if navigate.FreeText(v.Cleaned) {
		name = model.BotMessageFreeText
	}
	body, err := s.content.BotMessage(ctx, name)
	if err != nil {
		return nil, *meta, err
	}
	return &RenderedContent{Body: body}, *meta, nil
}

// enqueueReply persists the outbound reply with its humanized not-before time
// and linkage back to the inbound that caused it.
func (s *InboundService) enqueueReply(ctx context.Context, inbound *model.Message, reply *RenderedContent, meta model.MessageMeta) error {
	delay := ResponseDelay(s.response, reply.Body)
	processAfter := s.now().Add(delay)

	outMeta := meta
	outMeta.ReplyToID = inbound.ID
	outMeta.ReplyToWAID = stringOrEmpty(inbound.WAMessageID)
	outMeta.ReplyToTS = inbound.OriginTS.UnixMilli()
	outMeta.DelayMS = delay.Milliseconds()
	outMeta.Interactive = reply.Interactive

	msgType := model.MessageTypeText
	if len(reply.Interactive) > 0 {
		msgType = model.MessageTypeInteractive
	}

	_, err := s.messages.Create(ctx, &model.CreateMessageRequest{
		PhoneNumber:  inbound.PhoneNumber,
		DisplayName:  stringOrEmpty(inbound.DisplayName),
		Direction:    model.DirectionOut,
		MsgType:      msgType,
		Body:         reply.Body,
		QueueStatus:  model.QueueStatusQueued,
		ProcessAfter: &processAfter,
		Metadata:     outMeta,
	})
	if err != nil {
		return fmt.Errorf("enqueue reply: %w", err)
	}
	s.count("outbound.enqueued", nil)
	return nil
}

// markRead acks the inbound message so the user sees the double blue check.
// Failures are logged and ignored; the conversation must not stall on them.
func (s *InboundService) markRead(ctx context.Context, msg *model.Message) {
	if s.client == nil || msg.WAMessageID == nil {
		return
	}
	typing := false
	if s.accounts != nil {
		if account, err := s.accounts.Active(ctx); err == nil {
			typing = account.TypingIndicator
		}
	}
	if err := s.client.MarkRead(ctx, *msg.WAMessageID, typing); err != nil && s.logger != nil {
		s.logger.Debug("mark read failed", "message_id", msg.ID, "error", err)
	}
}

func (s *InboundService) count(name string, tags map[string]string) {
	if s.metrics != nil {
		s.metrics.Count(name, 1, tags)
	}
}

func (s *InboundService) timing(name string, d time.Duration) {
	if s.metrics != nil {
		s.metrics.Timing(name, d, nil)
	}
}

func stringOrEmpty(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
