// Package model defines the persistent domain types shared across the chatbot services.
package model

import (
	"errors"
	"strings"
	"time"
)

// Direction indicates whether a message travelled toward us or away from us.
type Direction string

const (
	DirectionIn     Direction = "in"
	DirectionOut    Direction = "out"
	DirectionSystem Direction = "system"
)

// Valid reports whether the direction is one of the known values.
func (d Direction) Valid() bool {
	switch d {
	case DirectionIn, DirectionOut, DirectionSystem:
		return true
	}
	return false
}

// QueueStatus is the per-row queue lifecycle state of a message.
type QueueStatus string

const (
	// QueueStatusPending marks an inbound row waiting to be claimed.
	QueueStatusPending QueueStatus = "pending"
	// QueueStatusQueued marks an outbound row waiting for its not-before time.
	QueueStatusQueued QueueStatus = "queued"
	// QueueStatusProcessing marks a claimed row owned by exactly one worker.
	QueueStatusProcessing QueueStatus = "processing"
	// QueueStatusProcessed is the terminal state for a handled inbound row.
	QueueStatusProcessed QueueStatus = "processed"
	// QueueStatusSent is the terminal state for a delivered outbound row.
	QueueStatusSent QueueStatus = "sent"
	// QueueStatusFailed is the terminal state for any row that could not be handled.
	QueueStatusFailed QueueStatus = "failed"
)

// Valid reports whether the queue status is one of the known values.
func (s QueueStatus) Valid() bool {
	switch s {
	case QueueStatusPending, QueueStatusQueued, QueueStatusProcessing,
		QueueStatusProcessed, QueueStatusSent, QueueStatusFailed:
		return true
	}
	return false
}

// Terminal reports whether the queue status ends the row's lifecycle.
func (s QueueStatus) Terminal() bool {
	return s == QueueStatusProcessed || s == QueueStatusSent || s == QueueStatusFailed
}

// Error tags recorded on deliberately dropped outbound messages. They let
// operators distinguish "we chose not to send" from "send failed".
const (
	ErrorExpiredBeforeSend = "expired_before_send"
	ErrorSuperseded        = "superseded_by_newer_inbound"
)

// MessageType is the WhatsApp content type of a message.
const (
	MessageTypeText        = "text"
	MessageTypeInteractive = "interactive"
)

// Message is a directional record of one WhatsApp message.
type Message struct {
	ID          string
	PhoneNumber string
	DisplayName *string
	Direction   Direction
	MsgType     string
	Body        *string
	// WAMessageID is the provider-assigned id. For inbound rows the pair
	// (direction=in, WAMessageID) is unique when present, which deduplicates
	// webhook redeliveries at insert time.
	WAMessageID *string
	OriginTS    time.Time
	QueueStatus QueueStatus
	// DeliveryStatus tracks the provider's delivery ack independently of the
	// queue lifecycle (sent/delivered/read from status webhooks).
	DeliveryStatus *string
	DeliveryTS     *time.Time
	// ProcessAfter gates when the row becomes eligible for claiming.
	ProcessAfter *time.Time
	ClaimedAt    *time.Time
	ProcessedAt  *time.Time
	Attempts     int
	LastError    *string
	Metadata     MessageMeta
	CreatedAt    time.Time
}

// Text returns the message body or an empty string.
func (m *Message) Text() string {
	if m.Body == nil {
		return ""
	}
	return *m.Body
}

// MessageMeta carries the structured metadata the processors read and write.
// It is persisted as jsonb; unknown keys written by other tooling survive a
// round-trip only through the raw column, which the core never rewrites
// wholesale outside the fields below.
type MessageMeta struct {
	// Routing decision recorded by the inbound processor.
	InputKind string `json:"input_kind,omitempty"`
	Action    string `json:"action,omitempty"`
	Target    string `json:"target,omitempty"`
	NewState  string `json:"new_state,omitempty"`
	// Reply linkage on outbound rows, used by the supersession guard.
	ReplyToID   string `json:"reply_to_id,omitempty"`
	ReplyToWAID string `json:"reply_to_wa_id,omitempty"`
	ReplyToTS   int64  `json:"reply_to_ts,omitempty"`
	DelayMS     int64  `json:"delay_ms,omitempty"`
	// Flags set during ingestion/processing.
	NewContact     bool   `json:"new_contact,omitempty"`
	SessionExpired bool   `json:"session_expired,omitempty"`
	AccountAlias   string `json:"account_alias,omitempty"`
	// Interactive delivery bookkeeping.
	Interactive  []InteractivePayload `json:"interactive,omitempty"`
	DeliveryPath string               `json:"delivery_path,omitempty"`
}

// InteractivePayload is one provider-shaped interactive message body. The
// dispatcher sends the set in order and falls back to plain text when the
// interactive path fails entirely.
type InteractivePayload struct {
	Kind string `json:"kind"`
	Body string `json:"body"`
}

// Delivery paths recorded in MessageMeta.DeliveryPath.
const (
	DeliveryPathText           = "text"
	DeliveryPathInteractive    = "interactive"
	DeliveryPathTextFallback   = "text_fallback"
	DeliveryPathPartialAborted = "interactive_aborted"
)

// CreateMessageRequest carries the fields needed to insert a message row.
type CreateMessageRequest struct {
	PhoneNumber  string
	DisplayName  string
	Direction    Direction
	MsgType      string
	Body         string
	WAMessageID  string
	OriginTS     time.Time
	QueueStatus  QueueStatus
	ProcessAfter *time.Time
	Metadata     MessageMeta
}

// Validate checks the request for the invariants the store relies on.
func (r *CreateMessageRequest) Validate() error {
	if strings.TrimSpace(r.PhoneNumber) == "" {
		return errors.New("phone number is required")
	}
	if !r.Direction.Valid() {
		return errors.New("invalid message direction")
	}
	if !r.QueueStatus.Valid() {
		return errors.New("invalid queue status")
	}
	return nil
}

// QueueStats summarizes message counts for one direction.
type QueueStats struct {
	Pending    int64 `json:"pending"`
	Queued     int64 `json:"queued"`
	Processing int64 `json:"processing"`
	Processed  int64 `json:"processed"`
	Sent       int64 `json:"sent"`
	Failed     int64 `json:"failed"`
}
