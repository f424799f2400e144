package config

import "time"

// QueueConfig contains message queue worker configuration.
type QueueConfig struct {
	// PollInterval is how long the worker sleeps between claim cycles.
	PollInterval time.Duration `env:"POLL_INTERVAL" envDefault:"1s"`

	// BatchSize is the maximum number of rows claimed per direction per cycle.
	BatchSize int `env:"BATCH_SIZE" envDefault:"10"`

	// OutboundMaxAge drops queued replies older than this instead of sending.
	OutboundMaxAge time.Duration `env:"OUTBOUND_MAX_AGE" envDefault:"10m"`

	// SupersedeDropEnabled drops queued replies when a newer inbound message
	// from the same correspondent has arrived since the reply was computed.
	SupersedeDropEnabled bool `env:"SUPERSEDE_DROP_ENABLED" envDefault:"true"`
}

// Sanitize applies guardrails to queue configuration values.
func (q *QueueConfig) Sanitize() {
	if q.PollInterval <= 0 {
		q.PollInterval = time.Second
	}
	if q.BatchSize < 1 {
		q.BatchSize = 1
	}
	if q.OutboundMaxAge <= 0 {
		q.OutboundMaxAge = 10 * time.Minute
	}
}

// ResponseConfig tunes the human-like response pacing applied to replies.
type ResponseConfig struct {
	// MinDelayMS is the floor applied to every computed delay.
	MinDelayMS int `env:"MIN_DELAY_MS" envDefault:"800"`

	// MaxDelayMS caps the typing-time component of the delay.
	MaxDelayMS int `env:"MAX_DELAY_MS" envDefault:"2000"`

	// CharsPerSec is the simulated typing speed.
	CharsPerSec float64 `env:"CHARS_PER_SEC" envDefault:"18"`

	// JitterMS adds up to this much uniform random extra delay.
	JitterMS int `env:"JITTER_MS" envDefault:"250"`
}

// Sanitize applies guardrails to response pacing values.
func (r *ResponseConfig) Sanitize() {
	if r.MinDelayMS < 0 {
		r.MinDelayMS = 0
	}
	if r.MaxDelayMS < r.MinDelayMS {
		r.MaxDelayMS = r.MinDelayMS
	}
	if r.CharsPerSec < 1 {
		r.CharsPerSec = 1
	}
	if r.JitterMS < 0 {
		r.JitterMS = 0
	}
}

// SessionConfig contains conversational session configuration.
type SessionConfig struct {
	// Timeout is the inactivity window after which a session is reset.
	Timeout time.Duration `env:"TIMEOUT" envDefault:"15m"`
}

// Sanitize applies guardrails to session configuration values.
func (s *SessionConfig) Sanitize() {
	if s.Timeout <= 0 {
		s.Timeout = 15 * time.Minute
	}
}
