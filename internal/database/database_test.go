package database

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mixelka/codebox/pkg/models"
)

func newTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	require.NoError(t, db.Migrate(context.Background()))
	return db
}

func newCode(userID int64, mailbox, code string, at time.Time) *models.VerificationCode {
	return &models.VerificationCode{
		UserID:         userID,
		MailboxAddress: mailbox,
		Service:        "QQ",
		Code:           code,
		CreatedAt:      at,
		ExpiresAt:      at.Add(3 * time.Minute),
	}
}

func TestRecordCodeDedupWindow(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	t0 := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)

	require.NoError(t, db.RecordCode(ctx, newCode(1, "bob@qq.com", "771122", t0), 5*time.Minute))
	err := db.RecordCode(ctx, newCode(1, "bob@qq.com", "771122", t0.Add(2*time.Minute)), 5*time.Minute)
	assert.ErrorIs(t, err, ErrAlreadyExists)

	var count int
	require.NoError(t, db.GetContext(ctx, &count, `SELECT COUNT(*) FROM verification_codes`))
	assert.Equal(t, 1, count)

	second := newCode(1, "bob@qq.com", "771122", t0.Add(6*time.Minute))
	require.NoError(t, db.RecordCode(ctx, second, 5*time.Minute))
	assert.NotZero(t, second.ID)

	require.NoError(t, db.GetContext(ctx, &count, `SELECT COUNT(*) FROM verification_codes`))
	assert.Equal(t, 2, count)
}

func TestRecordCodeDifferentMailboxNotDeduped(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	t0 := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)

	require.NoError(t, db.RecordCode(ctx, newCode(1, "bob@qq.com", "771122", t0), 5*time.Minute))
	require.NoError(t, db.RecordCode(ctx, newCode(1, "alice@qq.com", "771122", t0), 5*time.Minute))
	require.NoError(t, db.RecordCode(ctx, newCode(1, "bob@qq.com", "000001", t0), 5*time.Minute))
}

func TestListActiveCodesExpiry(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	t0 := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)

	require.NoError(t, db.RecordCode(ctx, newCode(1, "bob@qq.com", "012345", t0), 5*time.Minute))

	codes, err := db.ListActiveCodes(ctx, 1, t0.Add(2*time.Minute+59*time.Second))
	require.NoError(t, err)
	require.Len(t, codes, 1)
	assert.Equal(t, "012345", codes[0].Code)
	assert.Equal(t, time.UTC, codes[0].CreatedAt.Location())
	assert.True(t, codes[0].CreatedAt.Equal(t0))

	codes, err = db.ListActiveCodes(ctx, 1, t0.Add(3*time.Minute+time.Second))
	require.NoError(t, err)
	assert.Empty(t, codes)
}

func TestListActiveCodesNewestFirstAndCapped(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	t0 := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)

	for i := 0; i < 12; i++ {
		code := newCode(1, "bob@qq.com", string(rune('A'+i))+"00000", t0.Add(time.Duration(i)*time.Second))
		require.NoError(t, db.RecordCode(ctx, code, 5*time.Minute))
	}
	require.NoError(t, db.RecordCode(ctx, newCode(2, "eve@qq.com", "999999", t0), 5*time.Minute))

	codes, err := db.ListActiveCodes(ctx, 1, t0.Add(time.Minute))
	require.NoError(t, err)
	require.Len(t, codes, ActiveCodesLimit)
	assert.Equal(t, "L00000", codes[0].Code)
	for _, c := range codes {
		assert.Equal(t, int64(1), c.UserID)
	}
}

func TestMarkCodeAsReadIdempotent(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	now := time.Now().UTC()

	code := newCode(1, "bob@qq.com", "123456", now)
	require.NoError(t, db.RecordCode(ctx, code, 5*time.Minute))

	require.NoError(t, db.MarkCodeAsRead(ctx, 1, code.ID))
	require.NoError(t, db.MarkCodeAsRead(ctx, 1, code.ID))

	codes, err := db.ListActiveCodes(ctx, 1, now)
	require.NoError(t, err)
	require.Len(t, codes, 1)
	assert.True(t, codes[0].IsRead)

	assert.ErrorIs(t, db.MarkCodeAsRead(ctx, 2, code.ID), ErrNotFound)
}

func TestPruneCodes(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	t0 := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)

	require.NoError(t, db.RecordCode(ctx, newCode(1, "bob@qq.com", "111111", t0), 5*time.Minute))
	require.NoError(t, db.RecordCode(ctx, newCode(1, "bob@qq.com", "222222", t0.Add(time.Hour)), 5*time.Minute))

	n, err := db.PruneCodes(ctx, t0.Add(time.Minute))
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}

func TestMailboxLifecycle(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	mb := &models.Mailbox{UserID: 7, Address: "bob@qq.com", Provider: models.ProviderQQ, Credentials: "enc-1"}
	require.NoError(t, db.SaveMailbox(ctx, mb))
	assert.NotZero(t, mb.ID)
	assert.Equal(t, models.MailboxActive, mb.Status)

	// Re-authorizing the same address replaces credentials in place
	again := &models.Mailbox{UserID: 7, Address: "bob@qq.com", Provider: models.ProviderIMAP, Credentials: "enc-2"}
	require.NoError(t, db.SaveMailbox(ctx, again))
	assert.Equal(t, mb.ID, again.ID)
	assert.Equal(t, models.ProviderIMAP, again.Provider)

	require.NoError(t, db.UpdateMailboxCredentials(ctx, mb.ID, "enc-3"))
	require.NoError(t, db.SetMailboxStatus(ctx, mb.ID, models.MailboxError))

	got, err := db.GetMailboxByID(ctx, 7, mb.ID)
	require.NoError(t, err)
	assert.Equal(t, "enc-3", got.Credentials)
	assert.Equal(t, models.MailboxError, got.Status)

	_, err = db.GetMailboxByID(ctx, 8, mb.ID)
	assert.ErrorIs(t, err, ErrNotFound)

	list, err := db.GetMailboxesByUser(ctx, 7)
	require.NoError(t, err)
	assert.Len(t, list, 1)

	require.NoError(t, db.DeleteMailbox(ctx, 7, mb.ID))
	assert.ErrorIs(t, db.DeleteMailbox(ctx, 7, mb.ID), ErrNotFound)
}

func TestOAuthClientUpsert(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	_, err := db.GetOAuthClient(ctx, models.ProviderGmail)
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, db.SaveOAuthClient(ctx, &models.OAuthClient{Provider: models.ProviderGmail, ClientID: "a", ClientSecret: "b"}))
	require.NoError(t, db.SaveOAuthClient(ctx, &models.OAuthClient{Provider: models.ProviderGmail, ClientID: "c", ClientSecret: "d"}))

	client, err := db.GetOAuthClient(ctx, models.ProviderGmail)
	require.NoError(t, err)
	assert.Equal(t, "c", client.ClientID)
	assert.Equal(t, "d", client.ClientSecret)
}

func TestAccountOtp(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	_, err := db.GetAccountOtp(ctx, 1, 42)
	assert.ErrorIs(t, err, ErrNotFound)

	cfg := &models.OtpConfig{Secret: "enc", Issuer: "GitHub", Type: models.OtpTOTP, Algorithm: "SHA1", Digits: 6, Period: 30, BackupCodes: []string{"a-b"}}
	require.NoError(t, db.SaveAccountOtp(ctx, 1, 42, cfg))

	got, err := db.GetAccountOtp(ctx, 1, 42)
	require.NoError(t, err)
	assert.Equal(t, "GitHub", got.Issuer)
	assert.Equal(t, []string{"a-b"}, got.BackupCodes)

	require.NoError(t, db.DeleteAccountOtp(ctx, 1, 42))
	_, err = db.GetAccountOtp(ctx, 1, 42)
	assert.ErrorIs(t, err, ErrNotFound)
}
