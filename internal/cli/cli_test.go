package cli

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mixelka/codebox/internal/config"
	"github.com/mixelka/codebox/internal/oauth"
	"github.com/mixelka/codebox/internal/otp"
	"github.com/mixelka/codebox/pkg/models"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	RootCmd.SetOut(&out)
	RootCmd.SetErr(io.Discard)
	RootCmd.SetArgs(args)
	t.Cleanup(func() { RootCmd.SetArgs(nil) })
	err := RootCmd.Execute()
	return out.String(), err
}

func TestRootCommand(t *testing.T) {
	assert.Equal(t, "codebox", RootCmd.Use)

	var names []string
	for _, c := range RootCmd.Commands() {
		names = append(names, c.Name())
	}
	assert.Subset(t, names, []string{"serve", "otp", "version"})
}

func TestVersionCommand(t *testing.T) {
	out, err := execute(t, "version")
	require.NoError(t, err)
	assert.Contains(t, out, "Codebox Version: "+Version)
}

// Flags are package state, so every run sets all of them
func generateArgs(secret string, digits string, jsonOut bool) []string {
	jsonFlag := "--json=false"
	if jsonOut {
		jsonFlag = "--json"
	}
	return []string{"otp", "generate",
		"--secret", secret,
		"--type", "totp", "--algorithm", "SHA1", "--digits", digits,
		"--period", "30", "--offset", "0", jsonFlag,
	}
}

func TestOtpGenerate(t *testing.T) {
	now = func() time.Time { return time.Unix(59, 0) }
	t.Cleanup(func() { now = time.Now })

	out, err := execute(t, generateArgs("GEZDGNBVGY3TQOJQGEZDGNBVGY3TQOJQ", "8", false)...)
	require.NoError(t, err)
	assert.Equal(t, "94287082 (totp, expires in 1s)\n", out)
}

func TestOtpGenerateJSON(t *testing.T) {
	now = func() time.Time { return time.Unix(59, 0) }
	t.Cleanup(func() { now = time.Now })

	out, err := execute(t, generateArgs("GEZDGNBVGY3TQOJQGEZDGNBVGY3TQOJQ", "8", true)...)
	require.NoError(t, err)
	assert.Contains(t, out, `"code": "94287082"`)
	assert.Contains(t, out, `"remaining": 1`)
}

func TestOtpGenerateInvalidSecret(t *testing.T) {
	_, err := execute(t, generateArgs("not base32 !!", "6", false)...)
	assert.Error(t, err)
}

func TestOtpParse(t *testing.T) {
	out, err := execute(t, "otp", "parse", "otpauth://totp/Example:alice?secret=JBSWY3DPEHPK3PXP&issuer=Example&period=60")
	require.NoError(t, err)
	assert.Contains(t, out, "Issuer:    Example")
	assert.Contains(t, out, "Period:    60")
	assert.Contains(t, out, "Algorithm: SHA1")

	_, err = execute(t, "otp", "parse", "https://example.com")
	assert.ErrorIs(t, err, otp.ErrInvalidURI)
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, slog.LevelDebug, parseLevel("debug"))
	assert.Equal(t, slog.LevelWarn, parseLevel("warn"))
	assert.Equal(t, slog.LevelError, parseLevel("error"))
	assert.Equal(t, slog.LevelInfo, parseLevel("verbose"))
}

func TestOAuthOverrides(t *testing.T) {
	cfg := &config.Config{
		GmailClientID:     "gid",
		GmailClientSecret: "gsecret",
		OutlookClientID:   "only-id",
	}

	overrides := oauthOverrides(cfg)
	require.Len(t, overrides, 1)
	assert.Equal(t, "gid", overrides[models.ProviderGmail].ClientID)
	assert.Equal(t, "gsecret", overrides[models.ProviderGmail].ClientSecret)
}

func TestNewAttemptStore(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	ctx := context.Background()

	store, closeFn, err := newAttemptStore(ctx, &config.Config{OAuthAttemptTTL: time.Minute}, logger)
	require.NoError(t, err)
	closeFn()
	assert.IsType(t, &oauth.MemoryAttemptStore{}, store)

	mr := miniredis.RunT(t)
	store, closeFn, err = newAttemptStore(ctx, &config.Config{
		OAuthAttemptTTL: time.Minute,
		RedisURL:        "redis://" + mr.Addr(),
	}, logger)
	require.NoError(t, err)
	defer closeFn()
	assert.IsType(t, &oauth.RedisAttemptStore{}, store)

	_, _, err = newAttemptStore(ctx, &config.Config{RedisURL: "://bad"}, logger)
	assert.Error(t, err)
}
