package config

// WhatsAppConfig contains WhatsApp Cloud API fallbacks. A row in the
// wa_accounts table takes precedence over these values; env-only deployments
// work without any account row.
type WhatsAppConfig struct {
	PhoneID     string `env:"PHONE_ID"      envDefault:""`
	AccessToken string `env:"ACCESS_TOKEN"  envDefault:""`
	APIBase     string `env:"API_BASE"      envDefault:"https://graph.facebook.com"`
	APIVersion  string `env:"API_VERSION"   envDefault:"v21.0"`

	// TypingIndicator asks the provider to show a typing hint on mark-read.
	TypingIndicator bool `env:"TYPING_INDICATOR" envDefault:"false"`
}
