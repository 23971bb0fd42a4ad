package harvest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/mixelka/codebox/internal/database"
	"github.com/mixelka/codebox/internal/email"
	"github.com/mixelka/codebox/internal/parser"
	"github.com/mixelka/codebox/pkg/models"
)

// ErrIMAPLogin is returned when a new IMAP mailbox fails its login test
var ErrIMAPLogin = errors.New("imap login failed")

// retention is how long harvested codes are kept after creation
const retention = 24 * time.Hour

// MailboxStore persists mailbox authorizations
type MailboxStore interface {
	GetMailboxesByUser(ctx context.Context, userID int64) ([]*models.Mailbox, error)
	SaveMailbox(ctx context.Context, mailbox *models.Mailbox) error
	DeleteMailbox(ctx context.Context, userID, id int64) error
	SetMailboxStatus(ctx context.Context, id int64, status models.MailboxStatus) error
}

// CodeStore persists harvested verification codes
type CodeStore interface {
	RecordCode(ctx context.Context, code *models.VerificationCode, window time.Duration) error
	ListActiveCodes(ctx context.Context, userID int64, now time.Time) ([]*models.VerificationCode, error)
	MarkCodeAsRead(ctx context.Context, userID, id int64) error
	PruneCodes(ctx context.Context, cutoff time.Time) (int64, error)
}

// Poller fetches recent messages of one mailbox
type Poller interface {
	Poll(ctx context.Context, mailbox *models.Mailbox, since time.Time) email.Result
}

// PendingSource lists in-progress OAuth authorizations
type PendingSource interface {
	Pending(ctx context.Context, userID int64) ([]*models.AuthAttempt, error)
}

// IMAPVerifier checks IMAP credentials before they are stored
type IMAPVerifier interface {
	TestLogin(ctx context.Context, address string, login models.IMAPLogin) error
}

// ServerResolver finds the IMAP server of an address
type ServerResolver interface {
	Resolve(ctx context.Context, address string) (string, int, error)
}

// Encrypter seals credential blobs
type Encrypter interface {
	Encrypt(plaintext string) (string, error)
}

// Notifier is told about newly inserted codes
type Notifier interface {
	NotifyCodes(ctx context.Context, codes []*models.VerificationCode) error
}

// Recorder receives harvest metrics
type Recorder interface {
	RecordPoll(provider, outcome string)
	RecordCode(outcome string)
}

// Config configures a Service
type Config struct {
	Mailboxes   MailboxStore
	Codes       CodeStore
	Poller      Poller
	Extractor   *parser.Extractor
	Pending     PendingSource
	Verifier    IMAPVerifier
	Resolver    ServerResolver
	Vault       Encrypter
	Notifier    Notifier // Optional
	Metrics     Recorder // Optional
	CodeTTL     time.Duration
	DedupWindow time.Duration
	Now         func() time.Time
	Logger      *slog.Logger
}

// Service turns a user's mailboxes into verification codes
type Service struct {
	mailboxes   MailboxStore
	codes       CodeStore
	poller      Poller
	extractor   *parser.Extractor
	pending     PendingSource
	verifier    IMAPVerifier
	resolver    ServerResolver
	vault       Encrypter
	notifier    Notifier
	metrics     Recorder
	codeTTL     time.Duration
	dedupWindow time.Duration
	now         func() time.Time
	logger      *slog.Logger
}

// Overview lists a user's mailboxes
type Overview struct {
	Authorized []*models.Mailbox     `json:"authorized"`
	Pending    []*models.AuthAttempt `json:"pending"`
}

// AddIMAPRequest adds an IMAP mailbox. Server is resolved from the address when empty.
type AddIMAPRequest struct {
	Address  string
	Password string
	Server   string
	Port     int
}

// NewService creates a new harvest service
func NewService(cfg Config) *Service {
	if cfg.Extractor == nil {
		cfg.Extractor = parser.NewExtractor()
	}
	if cfg.CodeTTL <= 0 {
		cfg.CodeTTL = 3 * time.Minute
	}
	if cfg.DedupWindow <= 0 {
		cfg.DedupWindow = 5 * time.Minute
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	return &Service{
		mailboxes:   cfg.Mailboxes,
		codes:       cfg.Codes,
		poller:      cfg.Poller,
		extractor:   cfg.Extractor,
		pending:     cfg.Pending,
		verifier:    cfg.Verifier,
		resolver:    cfg.Resolver,
		vault:       cfg.Vault,
		notifier:    cfg.Notifier,
		metrics:     cfg.Metrics,
		codeTTL:     cfg.CodeTTL,
		dedupWindow: cfg.DedupWindow,
		now:         cfg.Now,
		logger:      cfg.Logger.With("component", "harvest"),
	}
}

// Refresh polls every mailbox of the user in turn and records the codes found.
// Mailbox failures are skipped; only a failure to list mailboxes is returned.
func (s *Service) Refresh(ctx context.Context, userID int64, since time.Time) ([]*models.VerificationCode, error) {
	mailboxes, err := s.mailboxes.GetMailboxesByUser(ctx, userID)
	if err != nil {
		return nil, err
	}

	created := make([]*models.VerificationCode, 0)
	for _, mailbox := range mailboxes {
		if ctx.Err() != nil {
			s.logger.Info("refresh abandoned", "user_id", userID, "error", ctx.Err())
			break
		}

		res := s.poller.Poll(ctx, mailbox, since)
		s.recordPoll(mailbox.Provider, res)
		s.updateStatus(ctx, mailbox, res)

		for _, msg := range res.Messages {
			if code := s.record(ctx, userID, mailbox, msg); code != nil {
				created = append(created, code)
			}
		}
	}

	if len(created) > 0 {
		s.logger.Info("codes harvested", "user_id", userID, "count", len(created))
		if s.notifier != nil {
			if err := s.notifier.NotifyCodes(ctx, created); err != nil {
				s.logger.Warn("failed to notify codes", "error", err)
			}
		}
	}

	if _, err := s.codes.PruneCodes(ctx, s.now().Add(-retention)); err != nil {
		s.logger.Warn("failed to prune codes", "error", err)
	}

	return created, nil
}

// updateStatus flags IMAP mailboxes whose last fetch failed and clears the flag
// on success. OAuth mailboxes stay active when a token refresh fails.
func (s *Service) updateStatus(ctx context.Context, mailbox *models.Mailbox, res email.Result) {
	status := models.MailboxActive
	switch {
	case !mailbox.Provider.IsIMAP(), res.Skipped:
		return
	case res.Err != nil:
		if ctx.Err() != nil {
			return
		}
		status = models.MailboxError
	}
	if mailbox.Status == status {
		return
	}

	if err := s.mailboxes.SetMailboxStatus(ctx, mailbox.ID, status); err != nil {
		s.logger.Warn("failed to update mailbox status", "mailbox", mailbox.Address, "error", err)
		return
	}
	mailbox.Status = status
}

// record extracts and stores the code of msg; nil when there is none or it is a duplicate
func (s *Service) record(ctx context.Context, userID int64, mailbox *models.Mailbox, msg email.Message) *models.VerificationCode {
	value, service, ok := s.extractor.Extract(msg.BodyText)
	if !ok {
		return nil
	}
	if service == parser.UnknownService {
		if name := parser.DisplayName(msg.From); name != "" {
			service = name
		}
	}

	now := s.now().UTC()
	code := &models.VerificationCode{
		UserID:         userID,
		MailboxAddress: mailbox.Address,
		Service:        service,
		Code:           value,
		CreatedAt:      now,
		ExpiresAt:      now.Add(s.codeTTL),
	}

	err := s.codes.RecordCode(ctx, code, s.dedupWindow)
	switch {
	case errors.Is(err, database.ErrAlreadyExists):
		s.recordCode("deduped")
		return nil
	case err != nil:
		s.recordCode("failed")
		s.logger.Warn("failed to record code", "mailbox", mailbox.Address, "error", err)
		return nil
	}

	s.recordCode("inserted")
	return code
}

// ActiveCodes returns the user's unexpired codes, newest first
func (s *Service) ActiveCodes(ctx context.Context, userID int64) ([]*models.VerificationCode, error) {
	return s.codes.ListActiveCodes(ctx, userID, s.now())
}

// MarkRead marks a code as read
func (s *Service) MarkRead(ctx context.Context, userID, id int64) error {
	return s.codes.MarkCodeAsRead(ctx, userID, id)
}

// Mailboxes returns the user's authorized mailboxes and pending OAuth attempts
func (s *Service) Mailboxes(ctx context.Context, userID int64) (*Overview, error) {
	authorized, err := s.mailboxes.GetMailboxesByUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	overview := &Overview{
		Authorized: authorized,
		Pending:    make([]*models.AuthAttempt, 0),
	}

	if s.pending != nil {
		pending, err := s.pending.Pending(ctx, userID)
		if err != nil {
			s.logger.Warn("failed to list pending authorizations", "error", err)
		} else if pending != nil {
			overview.Pending = pending
		}
	}

	return overview, nil
}

// AddIMAPMailbox stores an IMAP mailbox after a successful login test
func (s *Service) AddIMAPMailbox(ctx context.Context, userID int64, req AddIMAPRequest) (*models.Mailbox, error) {
	address := strings.ToLower(strings.TrimSpace(req.Address))
	if email.DomainOf(address) == "" {
		return nil, fmt.Errorf("%w: invalid email address", ErrIMAPLogin)
	}

	provider := models.ProviderIMAP
	if domain := email.DomainOf(address); domain == "qq.com" || domain == "foxmail.com" {
		provider = models.ProviderQQ
	}

	login := models.IMAPLogin{Server: req.Server, Port: req.Port, Password: req.Password}
	if login.Server == "" {
		host, port, err := s.resolver.Resolve(ctx, address)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrIMAPLogin, err)
		}
		login.Server = host
		if login.Port == 0 {
			login.Port = port
		}
	}
	if login.Port == 0 {
		login.Port = 993
	}

	if err := s.verifier.TestLogin(ctx, address, login); err != nil {
		s.logger.Info("imap login test failed", "mailbox", address, "server", login.Server, "error", err)
		return nil, fmt.Errorf("%w: %v", ErrIMAPLogin, err)
	}

	data, err := models.NewIMAPCredentials(provider, login).Marshal()
	if err != nil {
		return nil, err
	}
	encrypted, err := s.vault.Encrypt(string(data))
	if err != nil {
		return nil, fmt.Errorf("failed to encrypt credentials: %w", err)
	}

	mailbox := &models.Mailbox{
		UserID:      userID,
		Address:     address,
		Provider:    provider,
		Status:      models.MailboxActive,
		Credentials: encrypted,
	}
	if err := s.mailboxes.SaveMailbox(ctx, mailbox); err != nil {
		return nil, err
	}

	s.logger.Info("imap mailbox added", "user_id", userID, "mailbox", address, "server", login.Server)
	return mailbox, nil
}

// RemoveMailbox deletes a mailbox authorization of the user
func (s *Service) RemoveMailbox(ctx context.Context, userID, id int64) error {
	return s.mailboxes.DeleteMailbox(ctx, userID, id)
}

func (s *Service) recordPoll(provider models.Provider, res email.Result) {
	if s.metrics == nil {
		return
	}
	outcome := "ok"
	switch {
	case res.Skipped:
		outcome = "skipped"
	case res.Err != nil:
		outcome = "error"
	}
	s.metrics.RecordPoll(string(provider), outcome)
}

func (s *Service) recordCode(outcome string) {
	if s.metrics != nil {
		s.metrics.RecordCode(outcome)
	}
}
