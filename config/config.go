// Package config defines the environment-driven application configuration.
package config

// AppConfig is the main application configuration struct that composes
// domain-specific configuration from separate files.
//
// Configuration is loaded from environment variables using the
// github.com/caarlos0/env library. See individual domain config files for
// details on available environment variables:
//   - database.go: PostgreSQL and Redis configuration
//   - http.go: HTTP server configuration
//   - queue.go: message queue and response pacing configuration
//   - scheduler.go: generic job scheduler configuration
//   - whatsapp.go: WhatsApp Cloud API fallbacks
type AppConfig struct {
	// IsDev controls development mode behavior (verbose logging, relaxed
	// webhook signature checks).
	IsDev bool `env:"DEV" envDefault:"false"`

	Postgres DBConfig    `envPrefix:"DB_"`
	Redis    RedisConfig `envPrefix:"REDIS_"`

	HTTP HTTPConfig `envPrefix:"HTTP_"`

	// Services selects which background services this process runs
	// (comma-separated: http, queue, scheduler).
	Services string `env:"SERVICES" envDefault:"http,queue,scheduler"`

	Queue     QueueConfig     `envPrefix:"QUEUE_"`
	Response  ResponseConfig  `envPrefix:"RESPONSE_"`
	Session   SessionConfig   `envPrefix:"SESSION_"`
	Scheduler SchedulerConfig `envPrefix:"SCHEDULER_"`
	WhatsApp  WhatsAppConfig  `envPrefix:"WA_"`
	Metrics   MetricsConfig   `envPrefix:"METRICS_"`
}

// Sanitize applies guardrails to configuration values loaded from env.
// This should be called after loading configuration from environment variables.
func (c *AppConfig) Sanitize() {
	c.HTTP.Sanitize()
	c.Queue.Sanitize()
	c.Response.Sanitize()
	c.Session.Sanitize()
	c.Scheduler.Sanitize()
}

// GetEnabledServices returns the enabled services based on the Services field.
func (c *AppConfig) GetEnabledServices() (map[ServiceMode]bool, error) {
	return ParseServices(c.Services)
}

// IsHTTPServerEnabled returns true if the HTTP server service is enabled.
func (c *AppConfig) IsHTTPServerEnabled() bool {
	services, err := c.GetEnabledServices()
	if err != nil {
		return false
	}
	return services[ServiceModeHTTP]
}

// IsQueueWorkerEnabled returns true if the message queue worker is enabled.
func (c *AppConfig) IsQueueWorkerEnabled() bool {
	services, err := c.GetEnabledServices()
	if err != nil {
		return false
	}
	return services[ServiceModeQueue]
}

// IsSchedulerEnabled returns true if the generic job scheduler is enabled.
func (c *AppConfig) IsSchedulerEnabled() bool {
	services, err := c.GetEnabledServices()
	if err != nil {
		return false
	}
	return services[ServiceModeScheduler]
}
