// Package data contains the PostgreSQL repositories backing the chatbot core.
package data

import "errors"

// Sentinel errors returned by the repositories.
var (
	ErrMessageNotFound   = errors.New("message not found")
	ErrSessionNotFound   = errors.New("session not found")
	ErrJobConfigNotFound = errors.New("job config not found")
	ErrRunLogNotFound    = errors.New("run log not found")
	ErrMenuNotFound      = errors.New("menu not found")
	ErrResponseNotFound  = errors.New("response not found")
	ErrNoActiveAccount   = errors.New("no active messaging account")
)
