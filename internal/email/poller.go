package email

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/mixelka/codebox/pkg/models"
)

// DefaultLookback is used when a poll has no since instant
const DefaultLookback = 2 * time.Minute

// TokenSource provides and refreshes OAuth access tokens of mailboxes
type TokenSource interface {
	AccessToken(mailbox *models.Mailbox) (string, error)
	Refresh(ctx context.Context, mailbox *models.Mailbox) (string, error)
}

// Decrypter opens vault-encrypted credential blobs
type Decrypter interface {
	Decrypt(encrypted string) string
}

// APIFetcher is an OAuth-protected mail API adapter
type APIFetcher interface {
	Fetch(ctx context.Context, accessToken string, since time.Time) ([]Message, error)
}

// IMAPFetcher is an IMAP adapter
type IMAPFetcher interface {
	Fetch(ctx context.Context, address string, login models.IMAPLogin, since time.Time) ([]Message, error)
}

// PollerConfig configures a Poller
type PollerConfig struct {
	Tokens  TokenSource
	Vault   Decrypter
	Gmail   APIFetcher
	Outlook APIFetcher
	IMAP    IMAPFetcher
	Limiter *RateLimiter
	Now     func() time.Time
	Logger  *slog.Logger
}

// Poller dispatches mailboxes to their provider adapter
type Poller struct {
	tokens  TokenSource
	vault   Decrypter
	gmail   APIFetcher
	outlook APIFetcher
	imap    IMAPFetcher
	limiter *RateLimiter
	now     func() time.Time
	logger  *slog.Logger
}

// Result of polling one mailbox. Err is informational: Messages holds whatever
// was collected before the failure.
type Result struct {
	Messages []Message
	Skipped  bool
	Err      error
}

// NewPoller creates a new poller
func NewPoller(cfg PollerConfig) *Poller {
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.Limiter == nil {
		cfg.Limiter = NewRateLimiter(time.Minute, cfg.Now)
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Poller{
		tokens:  cfg.Tokens,
		vault:   cfg.Vault,
		gmail:   cfg.Gmail,
		outlook: cfg.Outlook,
		imap:    cfg.IMAP,
		limiter: cfg.Limiter,
		now:     cfg.Now,
		logger:  cfg.Logger.With("component", "poller"),
	}
}

// Poll fetches recent messages of mailbox, newest first. It never fails:
// adapter errors are logged and reported in Result.Err.
func (p *Poller) Poll(ctx context.Context, mailbox *models.Mailbox, since time.Time) Result {
	logger := p.logger.With("mailbox", mailbox.Address, "provider", mailbox.Provider)

	var (
		messages []Message
		err      error
	)

	switch {
	case mailbox.Provider == models.ProviderGmail:
		messages, err = p.pollAPI(ctx, p.gmail, mailbox, since)
	case mailbox.Provider == models.ProviderOutlook:
		messages, err = p.pollAPI(ctx, p.outlook, mailbox, since)
	case mailbox.Provider.IsIMAP():
		p.limiter.Prune()
		if !p.limiter.Acquire(mailbox.Address) {
			logger.Debug("imap fetch rate limited")
			return Result{Skipped: true}
		}
		messages, err = p.pollIMAP(ctx, mailbox, since)
		p.limiter.Release(mailbox.Address, ctx.Err() == nil)
	default:
		err = fmt.Errorf("unknown provider %q", mailbox.Provider)
	}

	if err != nil {
		logger.Warn("mailbox poll failed", "error", err, "collected", len(messages))
	}
	return Result{Messages: messages, Err: err}
}

// pollAPI fetches through an API adapter, refreshing the token once on ErrUnauthorized
func (p *Poller) pollAPI(ctx context.Context, fetcher APIFetcher, mailbox *models.Mailbox, since time.Time) ([]Message, error) {
	if fetcher == nil {
		return nil, fmt.Errorf("no adapter for %s", mailbox.Provider)
	}

	token, err := p.tokens.AccessToken(mailbox)
	if err != nil {
		return nil, fmt.Errorf("failed to load access token: %w", err)
	}

	messages, err := fetcher.Fetch(ctx, token, since)
	if !errors.Is(err, ErrUnauthorized) {
		return messages, err
	}

	token, err = p.tokens.Refresh(ctx, mailbox)
	if err != nil {
		return nil, fmt.Errorf("failed to refresh token: %w", err)
	}
	return fetcher.Fetch(ctx, token, since)
}

func (p *Poller) pollIMAP(ctx context.Context, mailbox *models.Mailbox, since time.Time) ([]Message, error) {
	if p.imap == nil {
		return nil, fmt.Errorf("no adapter for %s", mailbox.Provider)
	}

	creds, err := models.UnmarshalCredentials(mailbox.Provider, []byte(p.vault.Decrypt(mailbox.Credentials)))
	if err != nil {
		return nil, err
	}

	if since.IsZero() {
		since = p.now().Add(-DefaultLookback)
	}
	return p.imap.Fetch(ctx, mailbox.Address, *creds.IMAP, since)
}
