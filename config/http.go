package config

// HTTPConfig contains HTTP server configuration.
type HTTPConfig struct {
	// Addr is the address to bind the HTTP server to.
	Addr string `env:"ADDR" envDefault:":8080"`

	// BaseURL is the base URL of the application (e.g., "https://bot.example.com").
	BaseURL string `env:"BASE_URL" envDefault:"http://localhost:8080"`

	// WebhookVerifyToken is the token WhatsApp echoes on webhook verification.
	WebhookVerifyToken string `env:"WEBHOOK_VERIFY_TOKEN" envDefault:""`
}

// Sanitize applies guardrails to HTTP configuration values.
func (h *HTTPConfig) Sanitize() {
	if h.Addr == "" {
		h.Addr = ":8080"
	}
}
