// Package configs parses the application configuration from environment
// variables. All variables share the "PREFS_API_" prefix.
package configs

import (
	"time"

	"github.com/caarlos0/env/v6"
	log "github.com/sirupsen/logrus"
)

const envPrefix = "PREFS_API_"

type Config struct {
	Host string `env:"HOST"`
	Port int    `env:"PORT" envDefault:"3000"`

	DatabaseDSN  string `env:"DATABASE_DSN" envDefault:"prefs.db"`
	DatabaseType string `env:"DATABASE_TYPE" envDefault:"sqlite"`

	LogLevel             string        `env:"LOG_LEVEL" envDefault:"info"`
	ServerRequestTimeout time.Duration `env:"SERVER_REQUEST_TIMEOUT" envDefault:"60s"`

	// How often the preference store re-reads the database to catch
	// commits made by other writers. Zero disables the poller.
	StorePollInterval time.Duration `env:"STORE_POLL_INTERVAL" envDefault:"0"`

	// Maximum settings writes per second, process wide. Zero disables
	// write rate limiting.
	SettingsMaxWriteRate int `env:"SETTINGS_MAX_WRITE_RATE" envDefault:"0"`

	DisableIdempotencyMiddleware      bool   `env:"DISABLE_IDEMPOTENCY_MIDDLEWARE" envDefault:"false"`
	IdempotencyMiddlewareDatabaseType string `env:"IDEMPOTENCY_MIDDLEWARE_DATABASE_TYPE" envDefault:"local"`
	IdempotencyMiddlewareRedisURL     string `env:"IDEMPOTENCY_MIDDLEWARE_REDIS_URL"`

	EnableTracing bool `env:"ENABLE_TRACING" envDefault:"false"`
}

// Parse parses environment variables to a valid Config.
func Parse() (*Config, error) {
	cfg := Config{}
	err := env.Parse(&cfg, env.Options{Prefix: envPrefix})
	if err != nil {
		return nil, err
	}
	return &cfg, nil
}

func ConfigureLogger(level string) {
	lvl, err := log.ParseLevel(level)
	if err != nil {
		lvl = log.InfoLevel
	}
	log.SetLevel(lvl)
	log.SetFormatter(&log.JSONFormatter{})
}
