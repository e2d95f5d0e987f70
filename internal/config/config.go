// Package config loads runtime settings for the chat service from the
// environment and applies defaults for missing or invalid values.
package config

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/sethvargo/go-envconfig"
)

// Store drivers accepted by STORE_DRIVER.
const (
	StoreSQLite = "sqlite"
	StoreFile   = "file"
	StoreMemory = "memory"
)

// RateLimitConfig defines the parameters for per-connection inbound frame rate limiting.
type RateLimitConfig struct {
	Burst          int           `env:"RATE_LIMIT_BURST,default=5"`
	RefillInterval time.Duration `env:"RATE_LIMIT_REFILL_INTERVAL,default=1s"`
}

// StoreConfig selects and locates the durable store.
type StoreConfig struct {
	Driver  string `env:"STORE_DRIVER,default=sqlite"`
	DataDir string `env:"DATA_DIR,default=data"`
}

// SMTPConfig configures outbound mail. An empty Host selects the logging notifier.
type SMTPConfig struct {
	Host       string `env:"SMTP_HOST"`
	Port       int    `env:"SMTP_PORT,default=587"`
	Username   string `env:"SMTP_USERNAME"`
	Password   string `env:"SMTP_PASSWORD"`
	SenderName string `env:"SMTP_SENDER_NAME,default=GroupChat"`
	Sender     string `env:"SMTP_SENDER"`
	SiteURL    string `env:"SITE_URL,default=http://localhost:8080"`
}

// Config holds the server configuration settings including security controls.
type Config struct {
	Port            string        `env:"PORT,default=:8080"`
	MetricsPort     string        `env:"METRICS_PORT,default=:8081"`
	AllowedOrigins  []string      `env:"ALLOWED_ORIGINS,default=http://localhost:8080"`
	MaxMessageSize  int64         `env:"MAX_MESSAGE_SIZE,default=512"`
	LogLevel        string        `env:"LOG_LEVEL,default=info"`
	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT,default=10s"`
	RateLimit       RateLimitConfig
	Store           StoreConfig
	SMTP            SMTPConfig
}

// Default returns a Config populated with default values for all settings.
func Default() *Config {
	cfg := &Config{}
	if err := envconfig.ProcessWith(context.Background(), cfg, envconfig.MapLookuper(nil)); err != nil {
		panic(fmt.Sprintf("config defaults: %v", err))
	}
	return cfg
}

// Load reads the configuration from the process environment.
func Load(ctx context.Context) (*Config, error) {
	return LoadWith(ctx, envconfig.OsLookuper())
}

// LoadWith reads the configuration through l and sanitizes it.
func LoadWith(ctx context.Context, l envconfig.Lookuper) (*Config, error) {
	cfg := &Config{}
	if err := envconfig.ProcessWith(ctx, cfg, l); err != nil {
		return nil, fmt.Errorf("parsing env vars: %w", err)
	}
	cfg.Sanitize()
	return cfg, nil
}

// Sanitize replaces zero or invalid values with defaults.
func (c *Config) Sanitize() {
	if c.Port == "" {
		c.Port = ":8080"
	}
	if !strings.Contains(c.Port, ":") {
		c.Port = ":" + c.Port
	}

	if c.MaxMessageSize <= 0 {
		c.MaxMessageSize = 512
	}

	if c.RateLimit.Burst <= 0 {
		c.RateLimit.Burst = 5
	}

	if c.RateLimit.RefillInterval <= 0 {
		c.RateLimit.RefillInterval = time.Second
	}

	if c.ShutdownTimeout <= 0 {
		c.ShutdownTimeout = 10 * time.Second
	}

	switch c.Store.Driver {
	case StoreSQLite, StoreFile, StoreMemory:
	default:
		c.Store.Driver = StoreSQLite
	}
	if c.Store.DataDir == "" {
		c.Store.DataDir = "data"
	}

	origins := make([]string, 0, len(c.AllowedOrigins))
	for _, origin := range c.AllowedOrigins {
		if trimmed := strings.TrimSpace(origin); trimmed != "" {
			origins = append(origins, trimmed)
		}
	}
	c.AllowedOrigins = origins
}

// MailEnabled reports whether SMTP delivery is configured.
func (c *Config) MailEnabled() bool {
	return c.SMTP.Host != ""
}
