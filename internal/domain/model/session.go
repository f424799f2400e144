package model

import "time"

// RootState is the main-menu position every session starts from.
const RootState = "0"

// Session is the per-correspondent conversational state. Sessions are reset
// on expiry, never deleted.
type Session struct {
	PhoneNumber   string
	DisplayName   *string
	Active        bool
	CurrentState  string
	NavHistory    []string
	LastMessage   *string
	LastMessageTS *time.Time
	StartedAt     time.Time
	LastSeenAt    time.Time
	FirstContact  bool
	FailedCount   int
	Extra         SessionExtra
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// SessionExtra holds auxiliary session bookkeeping persisted as jsonb.
type SessionExtra struct {
	LastClosedAt    int64  `json:"last_closed_ms,omitempty"`
	LastCloseReason string `json:"last_close_reason,omitempty"`
}

// DefaultHistory returns a fresh navigation stack rooted at the main menu.
func DefaultHistory() []string {
	return []string{RootState}
}

// Contact is one known correspondent.
type Contact struct {
	PhoneNumber    string
	DisplayName    *string
	FirstContactAt time.Time
	LastContactAt  time.Time
	TotalMessages  int64
	LastMessage    *string
	Active         bool
}
