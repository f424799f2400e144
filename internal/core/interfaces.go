// Package core defines the ports between the service layer and its adapters.
package core

import (
	"context"
	"time"

	"github.com/devLink-Developer/chatbot-camping/internal/domain/model"
	"github.com/devLink-Developer/chatbot-camping/internal/domain/navigate"
)

// This file contains repository interface definitions (ports in hexagonal architecture).
// Service implementations should depend on these interfaces, not concrete implementations.

// MessageRepository defines the interface for the durable message store.
type MessageRepository interface {
	Create(ctx context.Context, req *model.CreateMessageRequest) (*model.Message, error)
	GetByID(ctx context.Context, id string) (*model.Message, error)
	GetInboundByWAMessageID(ctx context.Context, waID string) (*model.Message, error)
	ClaimInbound(ctx context.Context, limit int) ([]*model.Message, error)
	ClaimOutbound(ctx context.Context, limit int) ([]*model.Message, error)
	MarkProcessed(ctx context.Context, id string) (bool, error)
	MarkSent(ctx context.Context, id, waMessageID string) (bool, error)
	MarkFailed(ctx context.Context, id, errMsg string) (bool, error)
	UpdateMetadata(ctx context.Context, id string, meta model.MessageMeta) error
	ApplyDeliveryStatus(ctx context.Context, waMessageID, status string, ts time.Time) (bool, error)
	Requeue(ctx context.Context, id string) (bool, error)
	HasNewerInbound(ctx context.Context, phoneNumber string, after time.Time) (bool, error)
	Stats(ctx context.Context, direction model.Direction) (*model.QueueStats, error)
}

// SessionRepository defines the interface for conversational session state.
type SessionRepository interface {
	GetByPhone(ctx context.Context, phoneNumber string) (*model.Session, error)
	Ensure(ctx context.Context, phoneNumber, displayName string) (*model.Session, bool, error)
	UpdateNavigation(ctx context.Context, phoneNumber, state string, history []string, lastMessage string) error
	Touch(ctx context.Context, phoneNumber, lastMessage string) error
	IncrementFailed(ctx context.Context, phoneNumber string) (int, error)
	ResetFailed(ctx context.Context, phoneNumber string) error
	Reset(ctx context.Context, phoneNumber, reason string) error
	CloseExpired(ctx context.Context, timeout time.Duration) (int, error)
}

// ContactRepository defines the interface for the correspondent roster.
type ContactRepository interface {
	RecordInbound(ctx context.Context, phoneNumber, displayName, lastMessage string) (bool, error)
	GetByPhone(ctx context.Context, phoneNumber string) (*model.Contact, error)
}

// ContentRepository defines the interface for the menu tree and system texts.
type ContentRepository interface {
	navigate.OptionLookup
	GetMenu(ctx context.Context, id string) (*model.Menu, error)
	GetResponse(ctx context.Context, id string) (*model.Response, error)
	GetBotMessage(ctx context.Context, name string) (string, error)
}

// AccountRepository defines the interface for messaging account credentials.
type AccountRepository interface {
	GetActive(ctx context.Context) (*model.WAAccount, error)
}

// CacheRepository defines the interface for the shared cache.
type CacheRepository interface {
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Get(ctx context.Context, key string) ([]byte, error)
	Delete(ctx context.Context, key string) (bool, error)
	SetIfNotExists(ctx context.Context, key string, value []byte, ttl time.Duration) (bool, error)
	Health(ctx context.Context) error
}

// JobConfigRepository defines the interface for scheduled-job configs and
// their run logs.
type JobConfigRepository interface {
	Create(ctx context.Context, cfg *model.JobConfig) (*model.JobConfig, error)
	Update(ctx context.Context, cfg *model.JobConfig) (*model.JobConfig, error)
	GetByID(ctx context.Context, id string) (*model.JobConfig, error)
	GetByName(ctx context.Context, name string) (*model.JobConfig, error)
	List(ctx context.Context) ([]*model.JobConfig, error)
	ListSchedulable(ctx context.Context) ([]*model.JobConfig, error)
	SetPaused(ctx context.Context, id string, paused bool) (bool, error)
	SetEnabled(ctx context.Context, id string, enabled bool) (bool, error)
	RequestCancel(ctx context.Context, id string) (bool, error)
	ClearCancel(ctx context.Context, id string) error
	IsCancelRequested(ctx context.Context, id string) (bool, error)
	RecordRunResult(ctx context.Context, id string, status model.RunStatus, message string, durationMS int64, nextRunAt *time.Time) error
	UpdateNextRun(ctx context.Context, id string, nextRunAt *time.Time) error
	NotifyRefresh(ctx context.Context, reason string) error
	StartRunLog(ctx context.Context, configID, triggeredBy string) (*model.RunLog, error)
	FinishRunLog(ctx context.Context, id string, status model.RunStatus, message string, durationMS int64) (bool, error)
	UpdateRunLogMessage(ctx context.Context, id, message string) error
	CountRunning(ctx context.Context, configID string) (int, error)
	ReapStaleRuns(ctx context.Context, staleAfter time.Duration) (int64, error)
	ListRunLogs(ctx context.Context, configID string, limit int) ([]*model.RunLog, error)
	GetRunLog(ctx context.Context, id string) (*model.RunLog, error)
}

// SendTextParams groups the inputs for a plain text send.
type SendTextParams struct {
	To   string
	Body string
	// ReplyToWAID threads the message under the quoted inbound when set.
	ReplyToWAID string
}

// SendInteractiveParams groups the inputs for one interactive send.
type SendInteractiveParams struct {
	To      string
	Payload model.InteractivePayload
}

// SendResult reports the provider's acceptance of a send.
type SendResult struct {
	WAMessageID string
}

// MessagingClient defines the outbound WhatsApp surface the dispatcher needs.
type MessagingClient interface {
	SendText(ctx context.Context, params SendTextParams) (*SendResult, error)
	SendInteractive(ctx context.Context, params SendInteractiveParams) (*SendResult, error)
	// MarkRead acks an inbound message, optionally showing the typing
	// indicator. Failures are advisory.
	MarkRead(ctx context.Context, waMessageID string, typing bool) error
}
