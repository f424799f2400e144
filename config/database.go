package config

import "time"

// DBConfig contains PostgreSQL database configuration.
type DBConfig struct {
	Host     string `env:"HOST"     envDefault:"localhost"`
	Port     int    `env:"PORT"     envDefault:"5432"`
	User     string `env:"USER"     envDefault:"chatbot"`
	Password string `env:"PASSWORD" envDefault:"chatbot"`
	Name     string `env:"NAME"     envDefault:"chatbot"`
	SSLMode  string `env:"SSL_MODE" envDefault:"disable"` // Use 'disable' for local dev, 'require' for production
	// RunMigrationsOnStart controls whether the application automatically
	// applies migrations during startup.
	RunMigrationsOnStart bool `env:"RUN_MIGRATIONS_ON_START" envDefault:"true"`
}

// RedisConfig contains Redis configuration for the content cache.
type RedisConfig struct {
	Addr     string `env:"ADDR"     envDefault:"localhost:6379"`
	Password string `env:"PASSWORD" envDefault:""`
	DB       int    `env:"DB"       envDefault:"0"`
	// Enabled disables the Redis-backed content cache entirely when false;
	// rendering falls through to Postgres on every turn.
	Enabled bool `env:"ENABLED" envDefault:"true"`
	// ContentTTL is the TTL for cached rendered menu/response texts.
	ContentTTL time.Duration `env:"CONTENT_TTL" envDefault:"5m"`
}
