package data

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/devLink-Developer/chatbot-camping/internal/data/pgxutil"
	"github.com/devLink-Developer/chatbot-camping/internal/domain/model"
)

// SessionRepo provides database operations for per-correspondent sessions.
type SessionRepo struct {
	DB           *sql.DB
	timeProvider TimeProvider
}

// NewSessionRepo creates a SessionRepo using the wall clock.
func NewSessionRepo(db *sql.DB) *SessionRepo {
	return &SessionRepo{DB: db, timeProvider: RealTimeProvider{}}
}

// NewSessionRepoWithTimeProvider creates a SessionRepo with a custom
// TimeProvider (useful for testing).
func NewSessionRepoWithTimeProvider(db *sql.DB, tp TimeProvider) *SessionRepo {
	return &SessionRepo{DB: db, timeProvider: tp}
}

const sessionColumns = `
  phone_number, display_name, active, current_state, nav_history,
  last_message, last_message_ts, started_at, last_seen_at, first_contact,
  failed_count, extra, created_at, updated_at`

// GetByPhone retrieves the session for a correspondent.
func (r *SessionRepo) GetByPhone(ctx context.Context, phoneNumber string) (*model.Session, error) {
	var sess *model.Session
	err := pgxutil.WithPgxConn(ctx, r.DB, func(conn *pgx.Conn) error {
		rows, qerr := conn.Query(ctx,
			`SELECT `+sessionColumns+` FROM sessions WHERE phone_number = $1`, phoneNumber)
		if qerr != nil {
			return qerr
		}
		defer rows.Close()
		s, cerr := collectSession(rows)
		if cerr != nil {
			return cerr
		}
		sess = s
		return nil
	})
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrSessionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get session: %w", err)
	}
	return sess, nil
}

// Ensure returns the session for a correspondent, creating a fresh one rooted
// at the main menu when none exists. The second return value reports whether
// a new session was created.
func (r *SessionRepo) Ensure(ctx context.Context, phoneNumber, displayName string) (*model.Session, bool, error) {
	now := r.timeProvider.Now().UTC()
	history, err := json.Marshal(model.DefaultHistory())
	if err != nil {
		return nil, false, fmt.Errorf("marshal nav history: %w", err)
	}

	var sess *model.Session
	var created bool
	err = pgxutil.WithPgxConn(ctx, r.DB, func(conn *pgx.Conn) error {
		rows, qerr := conn.Query(ctx, `
			INSERT INTO sessions
			  (phone_number, display_name, active, current_state, nav_history,
			   started_at, last_seen_at, first_contact)
			VALUES ($1, NULLIF($2, ''), true, $3, $4, $5, $5, true)
			ON CONFLICT (phone_number) DO NOTHING
			RETURNING `+sessionColumns,
			phoneNumber, displayName, model.RootState, history, now)
		if qerr != nil {
			return qerr
		}
		defer rows.Close()
		s, cerr := collectSession(rows)
		if cerr != nil {
			return cerr
		}
		sess = s
		created = true
		return nil
	})
	if errors.Is(err, pgx.ErrNoRows) {
		existing, gerr := r.GetByPhone(ctx, phoneNumber)
		if gerr != nil {
			return nil, false, gerr
		}
		return existing, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("ensure session: %w", err)
	}
	return sess, created, nil
}

// UpdateNavigation persists the post-navigation position of a session and
// stamps the last inbound text.
func (r *SessionRepo) UpdateNavigation(ctx context.Context, phoneNumber, state string, history []string, lastMessage string) error {
	raw, err := json.Marshal(history)
	if err != nil {
		return fmt.Errorf("marshal nav history: %w", err)
	}
	now := r.timeProvider.Now().UTC()
	_, err = r.DB.ExecContext(ctx, `
		UPDATE sessions
		SET current_state = $2,
		    nav_history = $3,
		    last_message = NULLIF($4, ''),
		    last_message_ts = $5,
		    last_seen_at = $5,
		    first_contact = false,
		    updated_at = $5
		WHERE phone_number = $1
	`, phoneNumber, state, raw, lastMessage, now)
	if err != nil {
		return fmt.Errorf("update session navigation: %w", err)
	}
	return nil
}

// Touch refreshes last-seen bookkeeping without moving the session.
func (r *SessionRepo) Touch(ctx context.Context, phoneNumber, lastMessage string) error {
	now := r.timeProvider.Now().UTC()
	_, err := r.DB.ExecContext(ctx, `
		UPDATE sessions
		SET last_message = NULLIF($2, ''),
		    last_message_ts = $3,
		    last_seen_at = $3,
		    first_contact = false,
		    updated_at = $3
		WHERE phone_number = $1
	`, phoneNumber, lastMessage, now)
	if err != nil {
		return fmt.Errorf("touch session: %w", err)
	}
	return nil
}

// IncrementFailed bumps the consecutive invalid-input counter and returns the
// new value.
func (r *SessionRepo) IncrementFailed(ctx context.Context, phoneNumber string) (int, error) {
	var count int
	err := r.DB.QueryRowContext(ctx, `
		UPDATE sessions
		SET failed_count = failed_count + 1, updated_at = $2
		WHERE phone_number = $1
		RETURNING failed_count
	`, phoneNumber, r.timeProvider.Now().UTC()).Scan(&count)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, ErrSessionNotFound
	}
	if err != nil {
		return 0, fmt.Errorf("increment session failed count: %w", err)
	}
	return count, nil
}

// ResetFailed clears the consecutive invalid-input counter.
func (r *SessionRepo) ResetFailed(ctx context.Context, phoneNumber string) error {
	_, err := r.DB.ExecContext(ctx, `
		UPDATE sessions SET failed_count = 0, updated_at = $2 WHERE phone_number = $1
	`, phoneNumber, r.timeProvider.Now().UTC())
	if err != nil {
		return fmt.Errorf("reset session failed count: %w", err)
	}
	return nil
}

// Reset returns an expired or closed session to the main menu, recording why
// and when it was closed. Sessions are reset in place, never deleted.
func (r *SessionRepo) Reset(ctx context.Context, phoneNumber, reason string) error {
	now := r.timeProvider.Now().UTC()
	history, err := json.Marshal(model.DefaultHistory())
	if err != nil {
		return fmt.Errorf("marshal nav history: %w", err)
	}
	extra, err := json.Marshal(model.SessionExtra{
		LastClosedAt:    now.UnixMilli(),
		LastCloseReason: reason,
	})
	if err != nil {
		return fmt.Errorf("marshal session extra: %w", err)
	}
	_, err = r.DB.ExecContext(ctx, `
		UPDATE sessions
		SET current_state = $2,
		    nav_history = $3,
		    failed_count = 0,
		    started_at = $4,
		    last_seen_at = $4,
		    extra = $5,
		    updated_at = $4
		WHERE phone_number = $1
	`, phoneNumber, model.RootState, history, now, extra)
	if err != nil {
		return fmt.Errorf("reset session: %w", err)
	}
	return nil
}

// CloseExpired resets every session idle longer than timeout back to the main
// menu and reports how many were closed. Inbound processing also closes
// expired sessions lazily on the next message; this sweep catches the ones
// that never write again.
func (r *SessionRepo) CloseExpired(ctx context.Context, timeout time.Duration) (int, error) {
	now := r.timeProvider.Now().UTC()
	cutoff := now.Add(-timeout)
	history, err := json.Marshal(model.DefaultHistory())
	if err != nil {
		return 0, fmt.Errorf("marshal nav history: %w", err)
	}
	extra, err := json.Marshal(model.SessionExtra{
		LastClosedAt:    now.UnixMilli(),
		LastCloseReason: "expired_sweep",
	})
	if err != nil {
		return 0, fmt.Errorf("marshal session extra: %w", err)
	}
	res, err := r.DB.ExecContext(ctx, `
		UPDATE sessions
		SET current_state = $1,
		    nav_history = $2,
		    failed_count = 0,
		    started_at = $3,
		    extra = $4,
		    updated_at = $3
		WHERE last_seen_at < $5
		  AND current_state <> $1
	`, model.RootState, history, now, extra, cutoff)
	if err != nil {
		return 0, fmt.Errorf("close expired sessions: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("close expired sessions: %w", err)
	}
	return int(n), nil
}

type sessionRow struct {
	PhoneNumber   string         `db:"phone_number"`
	DisplayName   sql.NullString `db:"display_name"`
	Active        bool           `db:"active"`
	CurrentState  string         `db:"current_state"`
	NavHistory    []byte         `db:"nav_history"`
	LastMessage   sql.NullString `db:"last_message"`
	LastMessageTS sql.NullTime   `db:"last_message_ts"`
	StartedAt     time.Time      `db:"started_at"`
	LastSeenAt    time.Time      `db:"last_seen_at"`
	FirstContact  bool           `db:"first_contact"`
	FailedCount   int            `db:"failed_count"`
	Extra         []byte         `db:"extra"`
	CreatedAt     time.Time      `db:"created_at"`
	UpdatedAt     time.Time      `db:"updated_at"`
}

func (row *sessionRow) toModel() (*model.Session, error) {
	sess := &model.Session{
		PhoneNumber:  row.PhoneNumber,
		Active:       row.Active,
		CurrentState: row.CurrentState,
		StartedAt:    row.StartedAt.UTC(),
		LastSeenAt:   row.LastSeenAt.UTC(),
		FirstContact: row.FirstContact,
		FailedCount:  row.FailedCount,
		CreatedAt:    row.CreatedAt.UTC(),
		UpdatedAt:    row.UpdatedAt.UTC(),
	}
	sess.DisplayName = nullString(row.DisplayName)
	sess.LastMessage = nullString(row.LastMessage)
	sess.LastMessageTS = nullTime(row.LastMessageTS)
	if len(row.NavHistory) > 0 {
		if err := json.Unmarshal(row.NavHistory, &sess.NavHistory); err != nil {
			return nil, fmt.Errorf("decode nav history: %w", err)
		}
	}
	if len(sess.NavHistory) == 0 {
		sess.NavHistory = model.DefaultHistory()
	}
	if len(row.Extra) > 0 {
		if err := json.Unmarshal(row.Extra, &sess.Extra); err != nil {
			return nil, fmt.Errorf("decode session extra: %w", err)
		}
	}
	return sess, nil
}

func collectSession(rows pgx.Rows) (*model.Session, error) {
	sessions, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (*model.Session, error) {
		dbRow, serr := pgx.RowToStructByName[sessionRow](row)
		if serr != nil {
			return nil, fmt.Errorf("scan session row: %w", serr)
		}
		return dbRow.toModel()
	})
	if err != nil {
		return nil, err
	}
	if len(sessions) == 0 {
		return nil, pgx.ErrNoRows
	}
	return sessions[0], nil
}
