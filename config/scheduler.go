package config

import "time"

// SchedulerConfig contains generic job scheduler configuration.
type SchedulerConfig struct {
	// TickInterval is how often the trigger engine checks for due firings.
	TickInterval time.Duration `env:"TICK_INTERVAL" envDefault:"1s"`

	// Workers is the size of the pool executing job firings.
	Workers int `env:"WORKERS" envDefault:"8"`

	// StaleAfter force-closes run logs stuck in RUNNING for longer than this.
	StaleAfter time.Duration `env:"STALE_AFTER" envDefault:"15m"`

	// LockPath is the file lock guarding single-process scheduler ownership.
	LockPath string `env:"LOCK_PATH" envDefault:"/tmp/chatbot_scheduler.lock"`

	// ListenTimeout bounds each LISTEN wait so the listener doubles as a
	// safety poll.
	ListenTimeout time.Duration `env:"LISTEN_TIMEOUT" envDefault:"60s"`

	// ReconnectBackoff is the delay before the refresh listener redials a
	// lost connection.
	ReconnectBackoff time.Duration `env:"RECONNECT_BACKOFF" envDefault:"5s"`
}

// Sanitize applies guardrails to scheduler configuration values.
func (s *SchedulerConfig) Sanitize() {
	if s.TickInterval <= 0 {
		s.TickInterval = time.Second
	}
	if s.Workers < 1 {
		s.Workers = 1
	}
	if s.StaleAfter <= 0 {
		s.StaleAfter = 15 * time.Minute
	}
	if s.ListenTimeout <= 0 {
		s.ListenTimeout = time.Minute
	}
	if s.ReconnectBackoff <= 0 {
		s.ReconnectBackoff = 5 * time.Second
	}
}

// MetricsConfig contains StatsD metrics configuration.
type MetricsConfig struct {
	// Enabled turns metric emission on.
	Enabled bool `env:"ENABLED" envDefault:"false"`

	// StatsdAddress is the UDP host:port of the StatsD sink.
	StatsdAddress string `env:"STATSD_ADDRESS" envDefault:""`
}

// IsEnabled reports whether metrics should be emitted.
func (m MetricsConfig) IsEnabled() bool {
	return m.Enabled && m.StatsdAddress != ""
}
