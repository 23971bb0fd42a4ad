package email

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/mixelka/codebox/internal/parser"
)

// DefaultGraphBaseURL is the Microsoft Graph API root
const DefaultGraphBaseURL = "https://graph.microsoft.com"

// OutlookClient reads recent messages through Microsoft Graph
type OutlookClient struct {
	baseURL string
	http    HTTPDoer
	now     func() time.Time
	logger  *slog.Logger
}

type graphAddress struct {
	EmailAddress struct {
		Name    string `json:"name"`
		Address string `json:"address"`
	} `json:"emailAddress"`
}

type graphMessage struct {
	ReceivedDateTime time.Time    `json:"receivedDateTime"`
	From             graphAddress `json:"from"`
	BodyPreview      string       `json:"bodyPreview"`
	Body             struct {
		ContentType string `json:"contentType"`
		Content     string `json:"content"`
	} `json:"body"`
}

type graphListResponse struct {
	Value []graphMessage `json:"value"`
}

// NewOutlookClient creates a Graph adapter. An empty baseURL selects the production API.
func NewOutlookClient(baseURL string, client HTTPDoer, logger *slog.Logger) *OutlookClient {
	if baseURL == "" {
		baseURL = DefaultGraphBaseURL
	}
	return &OutlookClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    client,
		now:     time.Now,
		logger:  logger.With("component", "outlook"),
	}
}

// Fetch lists up to MaxAPIMessages messages received at or after since, newest
// first. A zero since falls back to the last DefaultLookback.
func (c *OutlookClient) Fetch(ctx context.Context, accessToken string, since time.Time) ([]Message, error) {
	if since.IsZero() {
		since = c.now().Add(-DefaultLookback)
	}

	params := url.Values{}
	params.Set("$top", strconv.Itoa(MaxAPIMessages))
	params.Set("$orderby", "receivedDateTime desc")
	params.Set("$select", "from,body,bodyPreview,receivedDateTime")
	params.Set("$filter", "receivedDateTime ge "+since.UTC().Format(time.RFC3339))

	body, err := getJSON(ctx, c.http, c.baseURL+"/v1.0/me/messages?"+params.Encode(), accessToken)
	if err != nil {
		return nil, err
	}

	var list graphListResponse
	if err := json.Unmarshal(body, &list); err != nil {
		return nil, fmt.Errorf("failed to parse message list: %w", err)
	}

	messages := make([]Message, 0, len(list.Value))
	for i, gm := range list.Value {
		if i >= MaxAPIMessages {
			break
		}

		text := gm.Body.Content
		if strings.EqualFold(gm.Body.ContentType, "html") {
			text = parser.HTMLToText(text)
		}
		if strings.TrimSpace(text) == "" {
			text = gm.BodyPreview
		}

		messages = append(messages, Message{
			From:     formatAddress(gm.From.EmailAddress.Name, gm.From.EmailAddress.Address),
			BodyText: text,
			Date:     gm.ReceivedDateTime.UTC(),
		})
	}

	return messages, nil
}

func formatAddress(name, address string) string {
	switch {
	case name == "":
		return address
	case address == "":
		return name
	default:
		return name + " <" + address + ">"
	}
}
