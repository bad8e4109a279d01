// Package config loads process configuration from a YAML file with
// environment variable overrides.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds all configuration for the application.
type Config struct {
	Server       ServerConfig       `yaml:"server"`
	Database     DatabaseConfig     `yaml:"database"`
	Sender       SenderConfig       `yaml:"sender"`
	Confirmation ConfirmationConfig `yaml:"confirmation"`
	Publish      PublishConfig      `yaml:"publish"`
	RateLimit    RateLimitConfig    `yaml:"rate_limit"`
	Log          LogConfig          `yaml:"log"`
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Port int    `yaml:"port"`
	Host string `yaml:"host"`
}

// GetHost returns the server host. Inside a container we listen on all
// interfaces regardless of what the file says.
func (c ServerConfig) GetHost() string {
	if os.Getenv("ECS_CONTAINER_METADATA_URI") != "" || os.Getenv("AWS_EXECUTION_ENV") != "" {
		return "0.0.0.0"
	}
	if host := os.Getenv("SERVER_HOST"); host != "" {
		return host
	}
	return c.Host
}

// DatabaseConfig holds PostgreSQL connection settings.
type DatabaseConfig struct {
	URL          string `yaml:"url"`
	MaxOpenConns int    `yaml:"max_open_conns"`
	MaxIdleConns int    `yaml:"max_idle_conns"`
}

// SenderConfig selects and configures the outbound email provider.
type SenderConfig struct {
	Provider  string         `yaml:"provider"` // "postmark" or "ses"
	FromEmail string         `yaml:"from_email"`
	FromName  string         `yaml:"from_name"`
	Postmark  PostmarkConfig `yaml:"postmark"`
	SES       SESConfig      `yaml:"ses"`
}

// PostmarkConfig holds Postmark API configuration.
type PostmarkConfig struct {
	BaseURL        string `yaml:"base_url"`
	ServerToken    string `yaml:"server_token"`
	TimeoutSeconds int    `yaml:"timeout_seconds"`
}

// Timeout returns the configured timeout as a duration.
func (c PostmarkConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// SESConfig holds AWS SES configuration.
type SESConfig struct {
	Region    string `yaml:"region"`
	AccessKey string `yaml:"access_key"`
	SecretKey string `yaml:"secret_key"`
}

// ConfirmationConfig controls the confirmation email.
type ConfirmationConfig struct {
	// BaseURL is the public confirm endpoint; the token is attached as a
	// query parameter, e.g. https://lists.example.com/confirm
	BaseURL          string `yaml:"base_url"`
	Subject          string `yaml:"subject"`
	TextTemplatePath string `yaml:"text_template_path"`
	HTMLTemplatePath string `yaml:"html_template_path"`
}

// PublishConfig controls the broadcast fan-out.
type PublishConfig struct {
	// Workers bounds the number of simultaneous in-flight sends.
	Workers int `yaml:"workers"`
}

// RateLimitConfig controls the per-IP subscribe rate limiter.
type RateLimitConfig struct {
	Enabled           bool   `yaml:"enabled"`
	RedisAddr         string `yaml:"redis_addr"`
	RequestsPerMinute int    `yaml:"requests_per_minute"`
}

// LogConfig controls structured logging.
type LogConfig struct {
	Level     string `yaml:"level"`
	RedactPII *bool  `yaml:"redact_pii"`
}

// Load reads and parses the configuration file, then applies defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}

	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Server.Host == "" {
		cfg.Server.Host = "localhost"
	}
	if cfg.Database.MaxOpenConns == 0 {
		cfg.Database.MaxOpenConns = 10
	}
	if cfg.Database.MaxIdleConns == 0 {
		cfg.Database.MaxIdleConns = 5
	}
	if cfg.Sender.Provider == "" {
		cfg.Sender.Provider = "postmark"
	}
	if cfg.Sender.Postmark.BaseURL == "" {
		cfg.Sender.Postmark.BaseURL = "https://api.postmarkapp.com"
	}
	if cfg.Sender.Postmark.TimeoutSeconds == 0 {
		cfg.Sender.Postmark.TimeoutSeconds = 30
	}
	if cfg.Sender.SES.Region == "" {
		cfg.Sender.SES.Region = "us-east-1"
	}
	if cfg.Confirmation.Subject == "" {
		cfg.Confirmation.Subject = "Please confirm your subscription"
	}
	if cfg.Publish.Workers == 0 {
		cfg.Publish.Workers = 10
	}
	if cfg.RateLimit.RequestsPerMinute == 0 {
		cfg.RateLimit.RequestsPerMinute = 10
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}

	return &cfg, nil
}

// LoadFromEnv loads configuration with environment variable overrides.
// A .env file (if present) is read first, so secrets can live in .env
// locally and in real env vars in production.
func LoadFromEnv(path string) (*Config, error) {
	_ = godotenv.Load()

	cfg, err := Load(path)
	if err != nil {
		return nil, err
	}

	if v := os.Getenv("DATABASE_URL"); v != "" {
		cfg.Database.URL = v
	}
	if v := os.Getenv("POSTMARK_SERVER_TOKEN"); v != "" {
		cfg.Sender.Postmark.ServerToken = v
	}
	if v := os.Getenv("POSTMARK_BASE_URL"); v != "" {
		cfg.Sender.Postmark.BaseURL = v
	}
	if v := os.Getenv("AWS_SES_ACCESS_KEY"); v != "" {
		cfg.Sender.SES.AccessKey = v
	}
	if v := os.Getenv("AWS_SES_SECRET_KEY"); v != "" {
		cfg.Sender.SES.SecretKey = v
	}
	if v := os.Getenv("AWS_SES_REGION"); v != "" {
		cfg.Sender.SES.Region = v
	}
	if v := os.Getenv("SENDER_FROM_EMAIL"); v != "" {
		cfg.Sender.FromEmail = v
	}
	if v := os.Getenv("CONFIRM_BASE_URL"); v != "" {
		cfg.Confirmation.BaseURL = v
	}
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		cfg.RateLimit.RedisAddr = v
		cfg.RateLimit.Enabled = true
	}

	return cfg, nil
}

// Validate checks the settings that have no workable default.
func (c *Config) Validate() error {
	if c.Database.URL == "" {
		return fmt.Errorf("database.url is required (or set DATABASE_URL)")
	}
	if c.Sender.FromEmail == "" {
		return fmt.Errorf("sender.from_email is required")
	}
	if c.Confirmation.BaseURL == "" {
		return fmt.Errorf("confirmation.base_url is required")
	}
	switch c.Sender.Provider {
	case "postmark", "ses":
	default:
		return fmt.Errorf("sender.provider must be %q or %q, got %q", "postmark", "ses", c.Sender.Provider)
	}
	return nil
}
