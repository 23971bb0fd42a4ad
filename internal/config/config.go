package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// Config application configuration
type Config struct {
	// HTTP
	HTTPAddr    string        `env:"HTTP_ADDR" envDefault:":8080"`
	HTTPTimeout time.Duration `env:"HTTP_TIMEOUT" envDefault:"10s"` // Outbound provider calls

	// Database
	DatabasePath string `env:"DATABASE_PATH" envDefault:"./data/codebox.db"`

	// Email
	IMAPDialTimeout time.Duration `env:"IMAP_DIAL_TIMEOUT" envDefault:"10s"`
	IMAPMinInterval time.Duration `env:"IMAP_MIN_INTERVAL" envDefault:"60s"`

	// Verification codes
	CodeTTL         time.Duration `env:"CODE_TTL" envDefault:"3m"`
	CodeDedupWindow time.Duration `env:"CODE_DEDUP_WINDOW" envDefault:"5m"`

	// OAuth
	OAuthAttemptTTL     time.Duration `env:"OAUTH_ATTEMPT_TTL" envDefault:"10m"`
	OAuthRedirectURI    string        `env:"OAUTH_REDIRECT_URI"` // Overrides origin-derived redirect
	GmailClientID       string        `env:"GMAIL_CLIENT_ID"`
	GmailClientSecret   string        `env:"GMAIL_CLIENT_SECRET"`
	OutlookClientID     string        `env:"OUTLOOK_CLIENT_ID"`
	OutlookClientSecret string        `env:"OUTLOOK_CLIENT_SECRET"`

	// Shared OAuth attempt store (optional)
	RedisURL string `env:"REDIS_URL"`

	// Telegram companion bot (optional)
	TelegramToken  string `env:"TELEGRAM_BOT_TOKEN"`
	TelegramChatID int64  `env:"TELEGRAM_CHAT_ID"`
	TelegramUserID int64  `env:"TELEGRAM_USER_ID"` // Codebox user served by the chat

	// Security
	EncryptionKey string `env:"ENCRYPTION_KEY,required"`
	JWTSecret     string `env:"AUTH_JWT_SECRET,required,notEmpty"`

	// Logging
	LogLevel  string `env:"LOG_LEVEL" envDefault:"info"`
	LogFormat string `env:"LOG_FORMAT" envDefault:"text"` // "json" or "text"
}

// TelegramEnabled returns true if the Telegram bot is configured
func (c *Config) TelegramEnabled() bool {
	return c.TelegramToken != "" && c.TelegramChatID != 0 && c.TelegramUserID != 0
}

// Load loads configuration from environment variables
func Load() (*Config, error) {
	// Load .env file if exists (ignore error if not found)
	_ = godotenv.Load()

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks values env tags cannot express
func (c *Config) Validate() error {
	// 32 bytes for AES-256
	if len(c.EncryptionKey) != 32 {
		return fmt.Errorf("ENCRYPTION_KEY must be exactly 32 bytes, got %d", len(c.EncryptionKey))
	}
	if c.HTTPTimeout <= 0 {
		return fmt.Errorf("HTTP_TIMEOUT must be positive")
	}
	if c.CodeTTL <= 0 || c.CodeDedupWindow <= 0 {
		return fmt.Errorf("CODE_TTL and CODE_DEDUP_WINDOW must be positive")
	}
	return nil
}
