package data

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/devLink-Developer/chatbot-camping/internal/domain/model"
)

// AccountRepo provides read access to the WhatsApp Business account rows.
type AccountRepo struct {
	DB *sql.DB
}

// NewAccountRepo creates an AccountRepo.
func NewAccountRepo(db *sql.DB) *AccountRepo {
	return &AccountRepo{DB: db}
}

// GetActive returns the single active account. The dispatcher resolves
// credentials through this on every send, behind a short-lived cache.
func (r *AccountRepo) GetActive(ctx context.Context) (*model.WAAccount, error) {
	var a model.WAAccount
	err := r.DB.QueryRowContext(ctx, `
		SELECT id, alias, phone_id, access_token, api_base, api_version,
		       typing_indicator, active
		FROM wa_accounts
		WHERE active
		ORDER BY updated_at DESC
		LIMIT 1
	`).Scan(&a.ID, &a.Alias, &a.PhoneID, &a.AccessToken, &a.APIBase,
		&a.APIVersion, &a.TypingIndicator, &a.Active)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNoActiveAccount
	}
	if err != nil {
		return nil, fmt.Errorf("get active account: %w", err)
	}
	return &a, nil
}
