package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("ENCRYPTION_KEY", "0123456789abcdef0123456789abcdef")
	t.Setenv("AUTH_JWT_SECRET", "jwt-secret")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.HTTPAddr)
	assert.Equal(t, 10*time.Second, cfg.HTTPTimeout)
	assert.Equal(t, 60*time.Second, cfg.IMAPMinInterval)
	assert.Equal(t, 3*time.Minute, cfg.CodeTTL)
	assert.Equal(t, 5*time.Minute, cfg.CodeDedupWindow)
	assert.Equal(t, 10*time.Minute, cfg.OAuthAttemptTTL)
	assert.False(t, cfg.TelegramEnabled())
}

func TestLoadRejectsBadKey(t *testing.T) {
	t.Setenv("ENCRYPTION_KEY", "too-short")
	t.Setenv("AUTH_JWT_SECRET", "jwt-secret")

	_, err := Load()
	assert.ErrorContains(t, err, "ENCRYPTION_KEY")
}

func TestLoadRequiresJWTSecret(t *testing.T) {
	t.Setenv("ENCRYPTION_KEY", "0123456789abcdef0123456789abcdef")
	t.Setenv("AUTH_JWT_SECRET", "")

	_, err := Load()
	assert.Error(t, err)
}

func TestTelegramEnabled(t *testing.T) {
	cfg := &Config{TelegramToken: "123:abc", TelegramChatID: -100}
	assert.False(t, cfg.TelegramEnabled())

	cfg.TelegramUserID = 7
	assert.True(t, cfg.TelegramEnabled())
}
