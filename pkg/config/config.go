package config

import (
	"fmt"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
)

// Config holds the full service configuration, loaded from the environment
type Config struct {
	Server   ServerConfig
	App      AppConfig
	JWT      JWTConfig
	IdP      IdPConfig
	Database DatabaseConfig
	Email    EmailConfig
}

// ServerConfig holds HTTP listener settings
type ServerConfig struct {
	Host string `env:"IDENT_HOST" env-default:"localhost"`
	Port uint16 `env:"IDENT_PORT" env-default:"4000"`
}

// Addr returns the host:port listen address
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// AppConfig holds application-level settings
type AppConfig struct {
	BaseURL     string `env:"IDENT_BASE_URL" env-default:"http://localhost:3000"`
	DefaultRole string `env:"IDENT_DEFAULT_ROLE" env-default:"user"`
}

// JWTConfig holds token signing settings
type JWTConfig struct {
	Secret        string `env:"IDENT_JWT_SECRET" env-default:"ident-dev-secret"`
	Issuer        string `env:"IDENT_JWT_ISSUER" env-default:"ident"`
	Audience      string `env:"IDENT_JWT_AUDIENCE" env-default:"ident"`
	SessionExpiry string `env:"IDENT_SESSION_EXPIRY" env-default:"15m"`
	RefreshExpiry string `env:"IDENT_REFRESH_EXPIRY" env-default:"24h"`
	ResetExpiry   string `env:"IDENT_RESET_EXPIRY" env-default:"30m"`
}

// IdPConfig holds identity provider settings. An empty BaseURL selects the
// in-memory provider, which is only suitable for development and tests.
type IdPConfig struct {
	BaseURL string `env:"IDENT_IDP_BASE_URL" env-default:""`
	APIKey  string `env:"IDENT_IDP_API_KEY" env-default:""`
}

// DatabaseConfig holds PostgreSQL settings for the profile store. An empty
// Host selects the in-memory store.
type DatabaseConfig struct {
	Host     string `env:"IDENT_PG_HOST" env-default:""`
	Port     uint16 `env:"IDENT_PG_PORT" env-default:"5432"`
	Database string `env:"IDENT_PG_DATABASE" env-default:"ident_db"`
	User     string `env:"IDENT_PG_USER" env-default:"ident"`
	Password string `env:"IDENT_PG_PASSWORD" env-default:"pwd"`
	Schema   string `env:"IDENT_PG_SCHEMA" env-default:"public"`
}

// ToDatabaseURL converts the config to a PostgreSQL connection URL
func (d DatabaseConfig) ToDatabaseURL() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=disable&search_path=%s,public",
		d.User, d.Password, d.Host, d.Port, d.Database, d.Schema)
}

// EmailConfig holds SMTP settings. An empty Host selects the mock notifier.
type EmailConfig struct {
	Host     string `env:"IDENT_EMAIL_HOST" env-default:""`
	Port     int    `env:"IDENT_EMAIL_PORT" env-default:"1025"`
	Username string `env:"IDENT_EMAIL_USERNAME" env-default:""`
	Password string `env:"IDENT_EMAIL_PASSWORD" env-default:""`
	From     string `env:"IDENT_EMAIL_FROM" env-default:"noreply@example.com"`
	TLS      bool   `env:"IDENT_EMAIL_TLS" env-default:"false"`
}

// Load reads the configuration from the environment
func Load() (Config, error) {
	var cfg Config
	if err := cleanenv.ReadEnv(&cfg); err != nil {
		return Config{}, fmt.Errorf("failed to read configuration: %w", err)
	}
	return cfg, nil
}

// ParseExpiry parses a duration string, falling back to a default when the
// value is empty or malformed
func ParseExpiry(value string, fallback time.Duration) time.Duration {
	if value == "" {
		return fallback
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return fallback
	}
	return d
}
