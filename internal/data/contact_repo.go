package data

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/devLink-Developer/chatbot-camping/internal/domain/model"
)

// ContactRepo provides database operations for known correspondents.
type ContactRepo struct {
	DB           *sql.DB
	timeProvider TimeProvider
}

// NewContactRepo creates a ContactRepo using the wall clock.
func NewContactRepo(db *sql.DB) *ContactRepo {
	return &ContactRepo{DB: db, timeProvider: RealTimeProvider{}}
}

// RecordInbound upserts the contact for an inbound message, bumping the
// message counter and refreshing last-contact bookkeeping. It returns true
// when the correspondent was seen for the first time.
func (r *ContactRepo) RecordInbound(ctx context.Context, phoneNumber, displayName, lastMessage string) (bool, error) {
	now := r.timeProvider.Now().UTC()
	var firstContact bool
	err := r.DB.QueryRowContext(ctx, `
		INSERT INTO contacts
		  (phone_number, display_name, first_contact_at, last_contact_at,
		   total_messages, last_message)
		VALUES ($1, NULLIF($2, ''), $3, $3, 1, NULLIF($4, ''))
		ON CONFLICT (phone_number) DO UPDATE
		SET display_name = COALESCE(NULLIF(EXCLUDED.display_name, ''), contacts.display_name),
		    last_contact_at = EXCLUDED.last_contact_at,
		    total_messages = contacts.total_messages + 1,
		    last_message = COALESCE(EXCLUDED.last_message, contacts.last_message)
		RETURNING total_messages = 1
	`, phoneNumber, displayName, now, lastMessage).Scan(&firstContact)
	if err != nil {
		return false, fmt.Errorf("record inbound contact: %w", err)
	}
	return firstContact, nil
}

// GetByPhone retrieves one contact.
func (r *ContactRepo) GetByPhone(ctx context.Context, phoneNumber string) (*model.Contact, error) {
	var (
		c           model.Contact
		displayName sql.NullString
		lastMessage sql.NullString
		firstAt     time.Time
		lastAt      time.Time
	)
	err := r.DB.QueryRowContext(ctx, `
		SELECT phone_number, display_name, first_contact_at, last_contact_at,
		       total_messages, last_message, active
		FROM contacts WHERE phone_number = $1
	`, phoneNumber).Scan(&c.PhoneNumber, &displayName, &firstAt, &lastAt,
		&c.TotalMessages, &lastMessage, &c.Active)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("contact %s: not found", phoneNumber)
	}
	if err != nil {
		return nil, fmt.Errorf("get contact: %w", err)
	}
	c.DisplayName = nullString(displayName)
	c.LastMessage = nullString(lastMessage)
	c.FirstContactAt = firstAt.UTC()
	c.LastContactAt = lastAt.UTC()
	return &c, nil
}
