package service

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/devLink-Developer/chatbot-camping/config"
	"github.com/devLink-Developer/chatbot-camping/internal/core"
	"github.com/devLink-Developer/chatbot-camping/internal/data"
	"github.com/devLink-Developer/chatbot-camping/internal/domain/model"
)

// accountCacheTTL bounds how stale dispatch credentials can be after an
// operator swaps the active account.
const accountCacheTTL = 5 * time.Second

// AccountServiceOptions groups dependencies for AccountService.
type AccountServiceOptions struct {
	Repo     core.AccountRepository // Required: account repository
	Fallback config.WhatsAppConfig  // Optional: env credentials used when no account row exists
	Logger   *slog.Logger           // Optional: structured logger
}

// AccountService resolves the active messaging account, caching it briefly so
// the dispatcher does not hit the database on every send.
type AccountService struct {
	repo     core.AccountRepository
	fallback config.WhatsAppConfig
	logger   *slog.Logger

	mu        sync.Mutex
	cached    *model.WAAccount
	fetchedAt time.Time
}

// NewAccountService constructs a new AccountService.
func NewAccountService(opts AccountServiceOptions) (*AccountService, error) {
	if opts.Repo == nil {
		return nil, errors.New("AccountRepository is required")
	}
	var logger *slog.Logger
	if opts.Logger != nil {
		logger = opts.Logger.With("component", "account_service")
	}
	return &AccountService{
		repo:     opts.Repo,
		fallback: opts.Fallback,
		logger:   logger,
	}, nil
}

// Active returns the account the dispatcher should send with. Database rows
// win; when none exists the env-configured fallback is used if complete.
func (s *AccountService) Active(ctx context.Context) (*model.WAAccount, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cached != nil && time.Since(s.fetchedAt) < accountCacheTTL {
		return s.cached, nil
	}

	account, err := s.repo.GetActive(ctx)
	switch {
	case err == nil:
		s.cached = account
		s.fetchedAt = time.Now()
		return account, nil
	case errors.Is(err, data.ErrNoActiveAccount):
		if s.fallback.PhoneID == "" || s.fallback.AccessToken == "" {
			return nil, data.ErrNoActiveAccount
		}
		account = &model.WAAccount{
			Alias:           "env",
			PhoneID:         s.fallback.PhoneID,
			AccessToken:     s.fallback.AccessToken,
			APIBase:         s.fallback.APIBase,
			APIVersion:      s.fallback.APIVersion,
			TypingIndicator: s.fallback.TypingIndicator,
			Active:          true,
		}
		s.cached = account
		s.fetchedAt = time.Now()
		return account, nil
	default:
		// Serve the stale entry through transient database trouble.
		if s.cached != nil {
			if s.logger != nil {
				s.logger.Warn("account lookup failed, serving cached account",
					"error", err)
			}
			return s.cached, nil
		}
		return nil, err
	}
}

// Invalidate drops the cached account so the next send re-reads it.
func (s *AccountService) Invalidate() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cached = nil
}
