package email

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// ErrUnauthorized is returned by API adapters when the access token was rejected
var ErrUnauthorized = errors.New("access token rejected")

// MaxAPIMessages caps the number of messages listed per API fetch
const MaxAPIMessages = 10

const maxResponseBodyBytes = 4 << 20

// Message is a fetched mail message reduced to what code extraction needs
type Message struct {
	From     string
	BodyText string
	Date     time.Time
}

// HTTPDoer executes HTTP requests
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// getJSON performs an authenticated GET and returns the response body
func getJSON(ctx context.Context, client HTTPDoer, endpoint, accessToken string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)
	req.Header.Set("Accept", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode == http.StatusUnauthorized {
		return nil, ErrUnauthorized
	}
	if resp.StatusCode != http.StatusOK {
		msg := strings.TrimSpace(string(body))
		if len(msg) > 200 {
			msg = msg[:200]
		}
		return nil, fmt.Errorf("API error: %s (status %d)", msg, resp.StatusCode)
	}

	return body, nil
}
