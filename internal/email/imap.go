package email

import (
	"bytes"
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"log/slog"
	"net"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/emersion/go-imap"
	"github.com/emersion/go-imap/client"
	"github.com/emersion/go-message"
	_ "github.com/emersion/go-message/charset"
	"github.com/emersion/go-message/mail"

	"github.com/mixelka/codebox/internal/parser"
	"github.com/mixelka/codebox/pkg/models"
)

const (
	// MaxIMAPMessages caps the messages returned per IMAP fetch
	MaxIMAPMessages = 5
	// imapFetchWindow is how many of the newest SEARCH hits are fetched
	imapFetchWindow = 10
)

// DialFunc opens the transport connection to an IMAP server
type DialFunc func(ctx context.Context, addr string) (net.Conn, error)

// IMAPConfig configuration for IMAP connections
type IMAPConfig struct {
	DialTimeout time.Duration
	// Dial defaults to implicit TLS
	Dial DialFunc
}

// IMAPClient reads recent messages from IMAP mailboxes over short-lived sessions
type IMAPClient struct {
	timeout time.Duration
	dial    DialFunc
	logger  *slog.Logger
}

// NewIMAPClient creates a new IMAP client
func NewIMAPClient(cfg IMAPConfig, logger *slog.Logger) *IMAPClient {
	timeout := cfg.DialTimeout
	if timeout == 0 {
		timeout = 10 * time.Second
	}

	dial := cfg.Dial
	if dial == nil {
		dialer := &tls.Dialer{NetDialer: &net.Dialer{Timeout: timeout}}
		dial = func(ctx context.Context, addr string) (net.Conn, error) {
			return dialer.DialContext(ctx, "tcp", addr)
		}
	}

	return &IMAPClient{
		timeout: timeout,
		dial:    dial,
		logger:  logger.With("component", "imap"),
	}
}

// session is an authenticated connection with INBOX selected read-only
type session struct {
	client *client.Client
	stop   func() bool
}

func (s *session) close() {
	s.stop()
	s.client.Logout()
}

func (c *IMAPClient) open(ctx context.Context, address string, login models.IMAPLogin) (*session, error) {
	port := login.Port
	if port == 0 {
		port = 993
	}
	addr := net.JoinHostPort(login.Server, strconv.Itoa(port))

	conn, err := c.dial(ctx, addr)
	if err != nil {
		return nil, fmt.Errorf("failed to connect: %w", err)
	}
	// go-imap v1 is not context aware; closing the socket unblocks any pending command
	stop := context.AfterFunc(ctx, func() { conn.Close() })

	imapClient, err := client.New(conn)
	if err != nil {
		stop()
		conn.Close()
		return nil, fmt.Errorf("failed to create IMAP client: %w", err)
	}
	imapClient.Timeout = c.timeout

	s := &session{client: imapClient, stop: stop}

	if err := imapClient.Login(address, login.Password); err != nil {
		s.close()
		return nil, fmt.Errorf("failed to login: %w", err)
	}

	if _, err := imapClient.Select("INBOX", true); err != nil {
		s.close()
		return nil, fmt.Errorf("failed to select INBOX: %w", err)
	}

	return s, nil
}

// TestLogin verifies that the credentials open the mailbox
func (c *IMAPClient) TestLogin(ctx context.Context, address string, login models.IMAPLogin) error {
	s, err := c.open(ctx, address, login)
	if err != nil {
		return err
	}
	s.close()
	return nil
}

// Fetch returns up to MaxIMAPMessages messages dated at or after since, newest first.
// Read state is never changed.
func (c *IMAPClient) Fetch(ctx context.Context, address string, login models.IMAPLogin, since time.Time) ([]Message, error) {
	s, err := c.open(ctx, address, login)
	if err != nil {
		return nil, err
	}
	defer s.close()

	// SEARCH SINCE is day granular and evaluated in the server's zone.
	// Widen by a day and filter on the Date header below.
	criteria := imap.NewSearchCriteria()
	if !since.IsZero() {
		criteria.Since = since.Add(-24 * time.Hour)
	}

	uids, err := s.client.UidSearch(criteria)
	if err != nil {
		return nil, fmt.Errorf("failed to search: %w", err)
	}
	if len(uids) == 0 {
		return nil, nil
	}

	sort.Slice(uids, func(i, j int) bool { return uids[i] < uids[j] })
	if len(uids) > imapFetchWindow {
		uids = uids[len(uids)-imapFetchWindow:]
	}

	seqSet := new(imap.SeqSet)
	seqSet.AddNum(uids...)

	headerSection := &imap.BodySectionName{
		BodyPartName: imap.BodyPartName{Specifier: imap.HeaderSpecifier},
		Peek:         true,
	}
	textSection := &imap.BodySectionName{
		BodyPartName: imap.BodyPartName{Specifier: imap.TextSpecifier},
		Peek:         true,
	}
	items := []imap.FetchItem{
		imap.FetchUid,
		imap.FetchInternalDate,
		headerSection.FetchItem(),
		textSection.FetchItem(),
	}

	fetched := make(chan *imap.Message, len(uids))
	done := make(chan error, 1)
	go func() {
		done <- s.client.UidFetch(seqSet, items, fetched)
	}()

	var messages []Message
	for msg := range fetched {
		parsed, err := parseIMAPMessage(msg)
		if err != nil {
			c.logger.Debug("failed to parse message", "uid", msg.Uid, "error", err)
			continue
		}
		if parsed.Date.Before(since) {
			continue
		}
		messages = append(messages, parsed)
	}

	if err := <-done; err != nil {
		return newest(messages, MaxIMAPMessages), fmt.Errorf("failed to fetch: %w", err)
	}

	return newest(messages, MaxIMAPMessages), nil
}

func parseIMAPMessage(msg *imap.Message) (Message, error) {
	var header, text []byte
	for section, literal := range msg.Body {
		if literal == nil {
			continue
		}
		data, err := io.ReadAll(literal)
		if err != nil {
			return Message{}, fmt.Errorf("failed to read body section: %w", err)
		}
		switch section.Specifier {
		case imap.HeaderSpecifier:
			header = data
		case imap.TextSpecifier:
			text = data
		}
	}
	if header == nil {
		return Message{}, fmt.Errorf("missing header section")
	}

	parsed, err := parseRawMessage(append(header, text...))
	if err != nil {
		return Message{}, err
	}
	if parsed.Date.IsZero() {
		parsed.Date = msg.InternalDate.UTC()
	}
	return parsed, nil
}

// parseRawMessage decodes an RFC 5322 message, preferring its first text/plain part.
// Undecodable charsets and bytes are tolerated.
func parseRawMessage(raw []byte) (Message, error) {
	mr, err := mail.CreateReader(bytes.NewReader(raw))
	if err != nil && !message.IsUnknownCharset(err) {
		return Message{}, fmt.Errorf("failed to create mail reader: %w", err)
	}

	var msg Message
	if from, err := mr.Header.Text("From"); err == nil {
		msg.From = from
	} else {
		msg.From = mr.Header.Get("From")
	}
	if date, err := mr.Header.Date(); err == nil {
		msg.Date = date.UTC()
	}

	var plain, html string
	for plain == "" {
		part, err := mr.NextPart()
		if err == io.EOF {
			break
		}
		if err != nil && (part == nil || !message.IsUnknownCharset(err)) {
			break
		}

		h, ok := part.Header.(*mail.InlineHeader)
		if !ok {
			continue
		}
		ct, _, _ := h.ContentType()
		if ct == "" {
			ct = "text/plain"
		}
		// Keep whatever decoded before a charset error
		body, _ := io.ReadAll(part.Body)

		switch {
		case strings.HasPrefix(ct, "text/plain"):
			plain = strings.ToValidUTF8(string(body), "")
		case strings.HasPrefix(ct, "text/html") && html == "":
			html = strings.ToValidUTF8(string(body), "")
		}
	}

	msg.BodyText = plain
	if strings.TrimSpace(msg.BodyText) == "" && html != "" {
		msg.BodyText = parser.HTMLToText(html)
	}

	return msg, nil
}

func newest(messages []Message, limit int) []Message {
	sort.SliceStable(messages, func(i, j int) bool {
		return messages[i].Date.After(messages[j].Date)
	})
	if len(messages) > limit {
		messages = messages[:limit]
	}
	return messages
}
