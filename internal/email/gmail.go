package email

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/mixelka/codebox/internal/parser"
)

// DefaultGmailBaseURL is the Gmail REST API root
const DefaultGmailBaseURL = "https://gmail.googleapis.com"

// GmailClient reads recent messages through the Gmail API
type GmailClient struct {
	baseURL string
	http    HTTPDoer
	logger  *slog.Logger
}

type gmailListResponse struct {
	Messages []struct {
		ID string `json:"id"`
	} `json:"messages"`
}

type gmailPart struct {
	MimeType string `json:"mimeType"`
	Headers  []struct {
		Name  string `json:"name"`
		Value string `json:"value"`
	} `json:"headers"`
	Body struct {
		Data string `json:"data"`
	} `json:"body"`
	Parts []gmailPart `json:"parts"`
}

type gmailMessage struct {
	ID           string    `json:"id"`
	Snippet      string    `json:"snippet"`
	InternalDate string    `json:"internalDate"`
	Payload      gmailPart `json:"payload"`
}

// NewGmailClient creates a Gmail adapter. An empty baseURL selects the production API.
func NewGmailClient(baseURL string, client HTTPDoer, logger *slog.Logger) *GmailClient {
	if baseURL == "" {
		baseURL = DefaultGmailBaseURL
	}
	return &GmailClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    client,
		logger:  logger.With("component", "gmail"),
	}
}

// Fetch lists up to MaxAPIMessages messages received after since, newest first.
// A zero since selects the last two minutes. Messages that fail to load are
// skipped; ErrUnauthorized aborts the whole fetch.
func (c *GmailClient) Fetch(ctx context.Context, accessToken string, since time.Time) ([]Message, error) {
	query := "newer_than:2m"
	if !since.IsZero() {
		query = "after:" + strconv.FormatInt(since.Unix(), 10)
	}

	params := url.Values{}
	params.Set("q", query)
	params.Set("maxResults", strconv.Itoa(MaxAPIMessages))

	body, err := getJSON(ctx, c.http, c.baseURL+"/gmail/v1/users/me/messages?"+params.Encode(), accessToken)
	if err != nil {
		return nil, err
	}

	var list gmailListResponse
	if err := json.Unmarshal(body, &list); err != nil {
		return nil, fmt.Errorf("failed to parse message list: %w", err)
	}

	var messages []Message
	for i, ref := range list.Messages {
		if i >= MaxAPIMessages {
			break
		}

		msg, err := c.fetchMessage(ctx, accessToken, ref.ID)
		if err != nil {
			if errors.Is(err, ErrUnauthorized) {
				return messages, err
			}
			c.logger.Debug("failed to fetch message", "id", ref.ID, "error", err)
			continue
		}
		messages = append(messages, msg)
	}

	sort.SliceStable(messages, func(i, j int) bool {
		return messages[i].Date.After(messages[j].Date)
	})

	return messages, nil
}

func (c *GmailClient) fetchMessage(ctx context.Context, accessToken, id string) (Message, error) {
	endpoint := c.baseURL + "/gmail/v1/users/me/messages/" + url.PathEscape(id) + "?format=full"
	body, err := getJSON(ctx, c.http, endpoint, accessToken)
	if err != nil {
		return Message{}, err
	}

	var gm gmailMessage
	if err := json.Unmarshal(body, &gm); err != nil {
		return Message{}, fmt.Errorf("failed to parse message: %w", err)
	}

	msg := Message{From: gm.Payload.header("From")}
	if ms, err := strconv.ParseInt(gm.InternalDate, 10, 64); err == nil {
		msg.Date = time.UnixMilli(ms).UTC()
	}

	if text := gm.Payload.find("text/plain"); text != "" {
		msg.BodyText = text
	} else if html := gm.Payload.find("text/html"); html != "" {
		msg.BodyText = parser.HTMLToText(html)
	}
	if strings.TrimSpace(msg.BodyText) == "" {
		msg.BodyText = gm.Snippet
	}

	return msg, nil
}

func (p *gmailPart) header(name string) string {
	for _, h := range p.Headers {
		if strings.EqualFold(h.Name, name) {
			return h.Value
		}
	}
	return ""
}

// find returns the first decoded body of mimeType, depth first
func (p *gmailPart) find(mimeType string) string {
	if strings.HasPrefix(p.MimeType, mimeType) && p.Body.Data != "" {
		if data, err := decodeBase64URL(p.Body.Data); err == nil {
			return data
		}
	}
	for i := range p.Parts {
		if text := p.Parts[i].find(mimeType); text != "" {
			return text
		}
	}
	return ""
}

func decodeBase64URL(s string) (string, error) {
	data, err := base64.RawURLEncoding.DecodeString(strings.TrimRight(s, "="))
	if err != nil {
		return "", err
	}
	return strings.ToValidUTF8(string(data), ""), nil
}
