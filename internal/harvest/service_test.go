package harvest

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mixelka/codebox/internal/database"
	"github.com/mixelka/codebox/internal/email"
	"github.com/mixelka/codebox/pkg/models"
)

type plainVault struct{}

func (plainVault) Encrypt(s string) (string, error) { return s, nil }
func (plainVault) Decrypt(s string) string          { return s }

type fakeIMAP struct {
	mu       sync.Mutex
	calls    map[string]int
	messages map[string][]email.Message
	errs     map[string]error
}

func (f *fakeIMAP) Fetch(_ context.Context, address string, _ models.IMAPLogin, _ time.Time) ([]email.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls[address]++
	return f.messages[address], f.errs[address]
}

func (f *fakeIMAP) count(address string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[address]
}

type fakeNotifier struct {
	batches [][]*models.VerificationCode
}

func (n *fakeNotifier) NotifyCodes(_ context.Context, codes []*models.VerificationCode) error {
	n.batches = append(n.batches, codes)
	return nil
}

type fakeVerifier struct {
	err   error
	login models.IMAPLogin
}

func (v *fakeVerifier) TestLogin(_ context.Context, _ string, login models.IMAPLogin) error {
	v.login = login
	return v.err
}

type fakeResolver struct{}

func (fakeResolver) Resolve(_ context.Context, address string) (string, int, error) {
	return "imap." + email.DomainOf(address), 993, nil
}

type fixture struct {
	service  *Service
	db       *database.DB
	imap     *fakeIMAP
	notifier *fakeNotifier
	verifier *fakeVerifier
	now      *time.Time
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	db, err := database.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	require.NoError(t, db.Migrate(context.Background()))

	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	clock := func() time.Time { return now }

	f := &fixture{
		db:       db,
		imap:     &fakeIMAP{calls: make(map[string]int), messages: make(map[string][]email.Message), errs: make(map[string]error)},
		notifier: &fakeNotifier{},
		verifier: &fakeVerifier{},
		now:      &now,
	}

	poller := email.NewPoller(email.PollerConfig{
		Vault:   plainVault{},
		IMAP:    f.imap,
		Limiter: email.NewRateLimiter(time.Minute, clock),
		Now:     clock,
		Logger:  logger,
	})

	f.service = NewService(Config{
		Mailboxes:   db,
		Codes:       db,
		Poller:      poller,
		Verifier:    f.verifier,
		Resolver:    fakeResolver{},
		Vault:       plainVault{},
		Notifier:    f.notifier,
		CodeTTL:     3 * time.Minute,
		DedupWindow: 5 * time.Minute,
		Now:         clock,
		Logger:      logger,
	})
	return f
}

func (f *fixture) addMailbox(t *testing.T, userID int64, address string) {
	t.Helper()
	_, err := f.service.AddIMAPMailbox(context.Background(), userID, AddIMAPRequest{Address: address, Password: "secret"})
	require.NoError(t, err)
}

func TestRefreshRecordsCodes(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.addMailbox(t, 1, "bob@qq.com")
	f.imap.messages["bob@qq.com"] = []email.Message{
		{From: "Google <no-reply@accounts.google.com>", BodyText: "Your Google verification code is 503911"},
		{From: "Acme Store <shop@acme.io>", BodyText: "您的验证码是 771122"},
		{From: "News <news@example.com>", BodyText: "Nothing to see"},
	}

	codes, err := f.service.Refresh(ctx, 1, time.Time{})
	require.NoError(t, err)
	require.Len(t, codes, 2)

	assert.Equal(t, "503911", codes[0].Code)
	assert.Equal(t, "Google", codes[0].Service)
	assert.Equal(t, "771122", codes[1].Code)
	assert.Equal(t, "Acme Store", codes[1].Service)
	assert.Equal(t, f.now.Add(3*time.Minute), codes[1].ExpiresAt)
	assert.Equal(t, "bob@qq.com", codes[1].MailboxAddress)

	require.Len(t, f.notifier.batches, 1)
	assert.Len(t, f.notifier.batches[0], 2)

	active, err := f.service.ActiveCodes(ctx, 1)
	require.NoError(t, err)
	assert.Len(t, active, 2)
}

func TestRefreshRateLimitIsPerMailbox(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.addMailbox(t, 1, "bob@qq.com")

	f.imap.messages["bob@qq.com"] = []email.Message{{From: "a@b.c", BodyText: "code 111111"}}
	_, err := f.service.Refresh(ctx, 1, time.Time{})
	require.NoError(t, err)

	// Ten seconds later bob is skipped while a second mailbox is polled
	*f.now = f.now.Add(10 * time.Second)
	f.addMailbox(t, 1, "carol@example.com")
	f.imap.messages["bob@qq.com"] = []email.Message{{From: "a@b.c", BodyText: "code 333333"}}
	f.imap.messages["carol@example.com"] = []email.Message{{From: "a@b.c", BodyText: "code 444444"}}

	codes, err := f.service.Refresh(ctx, 1, time.Time{})
	require.NoError(t, err)
	require.Len(t, codes, 1)
	assert.Equal(t, "444444", codes[0].Code)
	assert.Equal(t, 1, f.imap.count("bob@qq.com"))
	assert.Equal(t, 1, f.imap.count("carol@example.com"))
}

func TestRefreshDedupsWithinWindow(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.addMailbox(t, 1, "bob@qq.com")
	f.imap.messages["bob@qq.com"] = []email.Message{{From: "QQ <10000@qq.com>", BodyText: "验证码 771122"}}

	codes, err := f.service.Refresh(ctx, 1, time.Time{})
	require.NoError(t, err)
	require.Len(t, codes, 1)

	*f.now = f.now.Add(2 * time.Minute)
	codes, err = f.service.Refresh(ctx, 1, time.Time{})
	require.NoError(t, err)
	assert.Empty(t, codes)

	*f.now = f.now.Add(4 * time.Minute)
	codes, err = f.service.Refresh(ctx, 1, time.Time{})
	require.NoError(t, err)
	assert.Len(t, codes, 1)
	assert.Len(t, f.notifier.batches, 2)
}

func TestRefreshAbandonedContext(t *testing.T) {
	f := newFixture(t)
	f.addMailbox(t, 1, "bob@qq.com")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	codes, _ := f.service.Refresh(ctx, 1, time.Time{})
	assert.Empty(t, codes)
	assert.Equal(t, 0, f.imap.count("bob@qq.com"))
}

func TestAddIMAPMailbox(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	mailbox, err := f.service.AddIMAPMailbox(ctx, 1, AddIMAPRequest{Address: " Bob@QQ.com ", Password: "authcode"})
	require.NoError(t, err)
	assert.Equal(t, "bob@qq.com", mailbox.Address)
	assert.Equal(t, models.ProviderQQ, mailbox.Provider)
	assert.Equal(t, "imap.qq.com", f.verifier.login.Server)
	assert.Equal(t, 993, f.verifier.login.Port)

	creds, err := models.UnmarshalCredentials(mailbox.Provider, []byte(mailbox.Credentials))
	require.NoError(t, err)
	assert.Equal(t, "authcode", creds.IMAP.Password)

	mailbox, err = f.service.AddIMAPMailbox(ctx, 1, AddIMAPRequest{
		Address: "dave@corp.example", Password: "pw", Server: "mail.corp.example", Port: 1993,
	})
	require.NoError(t, err)
	assert.Equal(t, models.ProviderIMAP, mailbox.Provider)
	assert.Equal(t, 1993, f.verifier.login.Port)

	overview, err := f.service.Mailboxes(ctx, 1)
	require.NoError(t, err)
	assert.Len(t, overview.Authorized, 2)
	assert.Empty(t, overview.Pending)

	require.NoError(t, f.service.RemoveMailbox(ctx, 1, mailbox.ID))
	assert.ErrorIs(t, f.service.RemoveMailbox(ctx, 1, mailbox.ID), database.ErrNotFound)
}

func TestAddIMAPMailboxLoginFailure(t *testing.T) {
	f := newFixture(t)
	f.verifier.err = errors.New("authentication failed")

	_, err := f.service.AddIMAPMailbox(context.Background(), 1, AddIMAPRequest{Address: "bob@qq.com", Password: "bad"})
	assert.ErrorIs(t, err, ErrIMAPLogin)

	_, err = f.service.AddIMAPMailbox(context.Background(), 1, AddIMAPRequest{Address: "nope", Password: "bad"})
	assert.ErrorIs(t, err, ErrIMAPLogin)

	overview, err := f.service.Mailboxes(context.Background(), 1)
	require.NoError(t, err)
	assert.Empty(t, overview.Authorized)
}

func TestMarkRead(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.addMailbox(t, 1, "bob@qq.com")
	f.imap.messages["bob@qq.com"] = []email.Message{{From: "a@b.c", BodyText: "code 555555"}}

	codes, err := f.service.Refresh(ctx, 1, time.Time{})
	require.NoError(t, err)
	require.Len(t, codes, 1)

	require.NoError(t, f.service.MarkRead(ctx, 1, codes[0].ID))
	require.NoError(t, f.service.MarkRead(ctx, 1, codes[0].ID))
	assert.ErrorIs(t, f.service.MarkRead(ctx, 2, codes[0].ID), database.ErrNotFound)

	active, err := f.service.ActiveCodes(ctx, 1)
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.True(t, active[0].IsRead)
}

func TestRefreshTracksMailboxStatus(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.addMailbox(t, 1, "bob@qq.com")

	statusOf := func() models.MailboxStatus {
		mailboxes, err := f.db.GetMailboxesByUser(ctx, 1)
		require.NoError(t, err)
		require.Len(t, mailboxes, 1)
		return mailboxes[0].Status
	}

	f.imap.errs["bob@qq.com"] = errors.New("connection reset")
	_, err := f.service.Refresh(ctx, 1, time.Time{})
	require.NoError(t, err)
	assert.Equal(t, models.MailboxError, statusOf())

	// Rate limited polls leave the status alone
	*f.now = f.now.Add(10 * time.Second)
	delete(f.imap.errs, "bob@qq.com")
	_, err = f.service.Refresh(ctx, 1, time.Time{})
	require.NoError(t, err)
	assert.Equal(t, models.MailboxError, statusOf())

	*f.now = f.now.Add(time.Minute)
	_, err = f.service.Refresh(ctx, 1, time.Time{})
	require.NoError(t, err)
	assert.Equal(t, models.MailboxActive, statusOf())
}
