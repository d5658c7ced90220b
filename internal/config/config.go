package config

import (
	"crypto/sha256"
	"encoding/base64"
	"fmt"

	"github.com/caarlos0/env/v11"
)

// Config holds the service settings, loaded from environment variables.
type Config struct {
	Addr          string `env:"GRANT_ADVERTS_ADDR" envDefault:":8080"`
	SQLitePath    string `env:"GRANT_ADVERTS_DB" envDefault:"data/adverts.db"`
	MigrationsDir string `env:"GRANT_ADVERTS_MIGRATIONS_DIR"`
	TemplatePath  string `env:"GRANT_ADVERTS_TEMPLATE"`
	JWTSecret     string `env:"GRANT_ADVERTS_JWT_SECRET"`

	// EmailKey is the base64-encoded 32-byte key protecting editor emails at
	// rest. Empty derives a deterministic dev key; never leave it empty in
	// production.
	EmailKey string `env:"GRANT_ADVERTS_EMAIL_KEY"`

	ElasticAddresses []string `env:"GRANT_ADVERTS_ES_ADDRESSES" envSeparator:","`
	ElasticIndex     string   `env:"GRANT_ADVERTS_ES_INDEX" envDefault:"grant-adverts"`
}

// Load parses configuration from the environment.
func Load() (*Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}
	return &cfg, nil
}

// EmailCipherKey decodes the configured key, falling back to a dev key
// derived from a fixed string when unset.
func (c *Config) EmailCipherKey() ([]byte, error) {
	if c.EmailKey == "" {
		sum := sha256.Sum256([]byte("grant-adverts-dev-email-key"))
		return sum[:], nil
	}
	key, err := base64.StdEncoding.DecodeString(c.EmailKey)
	if err != nil {
		return nil, fmt.Errorf("decode GRANT_ADVERTS_EMAIL_KEY: %w", err)
	}
	return key, nil
}
