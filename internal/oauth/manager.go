package oauth

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/mixelka/codebox/pkg/models"
)

// CallbackPath is appended to the origin when deriving redirect URIs
const CallbackPath = "/api/email/oauth/callback"

const maxResponseBodyBytes = 1 << 20

// HTTPDoer executes HTTP requests
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// ClientStore is the global, non-per-user provider configuration store
type ClientStore interface {
	GetOAuthClient(ctx context.Context, provider models.Provider) (*models.OAuthClient, error)
}

// MailboxStore persists mailbox authorizations
type MailboxStore interface {
	SaveMailbox(ctx context.Context, mailbox *models.Mailbox) error
	UpdateMailboxCredentials(ctx context.Context, id int64, credentials string) error
}

// Cipher is the encryption-at-rest vault
type Cipher interface {
	Encrypt(plaintext string) (string, error)
	Decrypt(encrypted string) string
}

// RefreshRecorder receives token refresh outcomes
type RefreshRecorder interface {
	RecordTokenRefresh(provider string, success bool)
}

// ManagerConfig configures a Manager
type ManagerConfig struct {
	Attempts  AttemptStore
	Clients   ClientStore
	Mailboxes MailboxStore
	Vault     Cipher
	// Environment-provided clients take precedence over Clients
	Overrides map[models.Provider]models.OAuthClient
	// RedirectURI overrides origin-derived redirect URIs when set
	RedirectURI string
	Endpoints   map[models.Provider]Endpoints
	HTTPClient  HTTPDoer
	Timeout     time.Duration
	Metrics     RefreshRecorder // Optional
	Now         func() time.Time
	Logger      *slog.Logger
}

// Manager owns the authorization-code flow and refresh-token lifecycle
type Manager struct {
	attempts    AttemptStore
	clients     ClientStore
	mailboxes   MailboxStore
	vault       Cipher
	overrides   map[models.Provider]models.OAuthClient
	redirectURI string
	endpoints   map[models.Provider]Endpoints
	httpClient  HTTPDoer
	metrics     RefreshRecorder
	now         func() time.Time
	logger      *slog.Logger
}

// StartRequest starts an authorization attempt
type StartRequest struct {
	UserID   int64
	Provider models.Provider
	Origin   string // Caller-supplied origin, e.g. https://app.example.com
	Host     string // Inbound request host, used when Origin is empty
	Scheme   string
}

// StartResult is returned by Start
type StartResult struct {
	AuthURL string `json:"auth_url"`
	State   string `json:"state"`
}

type tokenResponse struct {
	AccessToken      string `json:"access_token"`
	RefreshToken     string `json:"refresh_token"`
	TokenType        string `json:"token_type"`
	ExpiresIn        int64  `json:"expires_in"`
	Error            string `json:"error"`
	ErrorDescription string `json:"error_description"`
}

// NewManager creates a new token manager
func NewManager(cfg ManagerConfig) *Manager {
	if cfg.Endpoints == nil {
		cfg.Endpoints = DefaultEndpoints()
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{Timeout: cfg.Timeout}
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	return &Manager{
		attempts:    cfg.Attempts,
		clients:     cfg.Clients,
		mailboxes:   cfg.Mailboxes,
		vault:       cfg.Vault,
		overrides:   cfg.Overrides,
		redirectURI: strings.TrimSpace(cfg.RedirectURI),
		endpoints:   cfg.Endpoints,
		httpClient:  cfg.HTTPClient,
		metrics:     cfg.Metrics,
		now:         cfg.Now,
		logger:      cfg.Logger.With("component", "oauth_manager"),
	}
}

// Start creates a pending attempt and returns the provider authorization URL
func (m *Manager) Start(ctx context.Context, req StartRequest) (*StartResult, error) {
	endpoints, ok := m.endpoints[req.Provider]
	if !ok {
		return nil, ErrUnsupportedProvider
	}

	client, err := m.resolveClient(ctx, req.Provider)
	if err != nil {
		return nil, err
	}

	redirectURI := m.deriveRedirectURI(req)
	if redirectURI == "" {
		return nil, fmt.Errorf("failed to derive redirect uri: no origin or host")
	}

	state, err := generateState()
	if err != nil {
		return nil, err
	}

	attempt := &models.AuthAttempt{
		State:        state,
		UserID:       req.UserID,
		Provider:     req.Provider,
		ClientID:     client.ClientID,
		ClientSecret: client.ClientSecret,
		RedirectURI:  redirectURI,
		CreatedAt:    m.now().UTC(),
		Status:       models.AttemptPending,
	}
	if err := m.attempts.Put(ctx, attempt); err != nil {
		return nil, fmt.Errorf("failed to store attempt: %w", err)
	}

	values := url.Values{}
	values.Set("response_type", "code")
	values.Set("client_id", client.ClientID)
	values.Set("redirect_uri", redirectURI)
	values.Set("scope", strings.Join(endpoints.Scopes, " "))
	values.Set("state", state)
	for k, v := range endpoints.AuthParams {
		values.Set(k, v)
	}

	m.logger.Info("oauth authorization started", "provider", req.Provider, "user_id", req.UserID)

	return &StartResult{
		AuthURL: endpoints.AuthURL + "?" + values.Encode(),
		State:   state,
	}, nil
}

// HandleCallback completes a pending attempt: exchanges code, learns the
// mailbox address and stores the mailbox authorization. Failures mark the
// attempt as errored and are returned wrapped in ErrTokenExchange.
func (m *Manager) HandleCallback(ctx context.Context, code, state string) (*models.AuthAttempt, error) {
	attempt, err := m.attempts.Claim(ctx, state)
	if err != nil {
		return nil, err
	}

	email, err := m.complete(ctx, attempt, code)
	if err != nil {
		m.logger.Warn("oauth callback failed", "provider", attempt.Provider, "user_id", attempt.UserID, "error", err)
		m.finish(ctx, attempt, models.AttemptError, "", err.Error())
		return attempt, fmt.Errorf("%w: %v", ErrTokenExchange, err)
	}

	m.finish(ctx, attempt, models.AttemptSuccess, email, "")
	m.logger.Info("mailbox authorized", "provider", attempt.Provider, "user_id", attempt.UserID, "mailbox", email)
	return attempt, nil
}

// Fail marks a pending attempt as errored, e.g. when the user denied consent
func (m *Manager) Fail(ctx context.Context, state, message string) (*models.AuthAttempt, error) {
	attempt, err := m.attempts.Claim(ctx, state)
	if err != nil {
		return nil, err
	}
	m.finish(ctx, attempt, models.AttemptError, "", message)
	return attempt, nil
}

// Status returns the current attempt for state
func (m *Manager) Status(ctx context.Context, state string) (*models.AuthAttempt, error) {
	return m.attempts.Get(ctx, state)
}

// Pending returns the user's pending attempts
func (m *Manager) Pending(ctx context.Context, userID int64) ([]*models.AuthAttempt, error) {
	return m.attempts.ListPending(ctx, userID)
}

// AccessToken returns the stored access token of an OAuth mailbox
func (m *Manager) AccessToken(mailbox *models.Mailbox) (string, error) {
	creds, err := m.credentials(mailbox)
	if err != nil {
		return "", err
	}
	return creds.OAuth.AccessToken, nil
}

// Refresh exchanges the stored refresh token for a new access token and
// persists the rotated credentials. The mailbox status is left untouched.
func (m *Manager) Refresh(ctx context.Context, mailbox *models.Mailbox) (string, error) {
	token, err := m.refresh(ctx, mailbox)
	if m.metrics != nil {
		m.metrics.RecordTokenRefresh(string(mailbox.Provider), err == nil)
	}
	if err != nil {
		m.logger.Warn("token refresh failed", "mailbox", mailbox.Address, "error", err)
		return "", err
	}
	return token, nil
}

func (m *Manager) refresh(ctx context.Context, mailbox *models.Mailbox) (string, error) {
	endpoints, ok := m.endpoints[mailbox.Provider]
	if !ok {
		return "", ErrUnsupportedProvider
	}

	creds, err := m.credentials(mailbox)
	if err != nil {
		return "", err
	}
	if creds.OAuth.RefreshToken == "" {
		return "", ErrNoRefreshToken
	}

	client, err := m.resolveClient(ctx, mailbox.Provider)
	if err != nil {
		return "", err
	}

	form := url.Values{}
	form.Set("grant_type", "refresh_token")
	form.Set("refresh_token", creds.OAuth.RefreshToken)
	form.Set("client_id", client.ClientID)
	form.Set("client_secret", client.ClientSecret)
	if mailbox.Provider == models.ProviderOutlook {
		form.Set("scope", strings.Join(endpoints.Scopes, " "))
	}

	token, err := m.fetchToken(ctx, endpoints.TokenURL, form)
	if err != nil {
		return "", err
	}

	refreshed := *creds.OAuth
	refreshed.AccessToken = token.AccessToken
	if token.RefreshToken != "" {
		refreshed.RefreshToken = token.RefreshToken
	}
	if token.TokenType != "" {
		refreshed.TokenType = token.TokenType
	}
	refreshed.ExpiresIn = token.ExpiresIn

	encrypted, err := m.encryptCredentials(models.NewOAuthCredentials(mailbox.Provider, refreshed))
	if err != nil {
		return "", err
	}
	if err := m.mailboxes.UpdateMailboxCredentials(ctx, mailbox.ID, encrypted); err != nil {
		return "", err
	}
	mailbox.Credentials = encrypted

	m.logger.Info("access token refreshed", "mailbox", mailbox.Address)
	return refreshed.AccessToken, nil
}

func (m *Manager) complete(ctx context.Context, attempt *models.AuthAttempt, code string) (string, error) {
	endpoints, ok := m.endpoints[attempt.Provider]
	if !ok {
		return "", ErrUnsupportedProvider
	}

	form := url.Values{}
	form.Set("grant_type", "authorization_code")
	form.Set("code", code)
	form.Set("client_id", attempt.ClientID)
	form.Set("client_secret", attempt.ClientSecret)
	// Must match the redirect_uri sent with the authorization request
	form.Set("redirect_uri", attempt.RedirectURI)

	token, err := m.fetchToken(ctx, endpoints.TokenURL, form)
	if err != nil {
		return "", err
	}

	body, err := m.get(ctx, endpoints.ProfileURL, token.AccessToken)
	if err != nil {
		return "", fmt.Errorf("failed to fetch profile: %w", err)
	}
	email, err := profileAddress(attempt.Provider, body)
	if err != nil {
		return "", err
	}

	encrypted, err := m.encryptCredentials(models.NewOAuthCredentials(attempt.Provider, models.OAuthToken{
		AccessToken:  token.AccessToken,
		RefreshToken: token.RefreshToken,
		TokenType:    token.TokenType,
		ExpiresIn:    token.ExpiresIn,
	}))
	if err != nil {
		return "", err
	}

	mailbox := &models.Mailbox{
		UserID:      attempt.UserID,
		Address:     email,
		Provider:    attempt.Provider,
		Status:      models.MailboxActive,
		Credentials: encrypted,
	}
	if err := m.mailboxes.SaveMailbox(ctx, mailbox); err != nil {
		return "", err
	}

	return email, nil
}

func (m *Manager) finish(ctx context.Context, attempt *models.AuthAttempt, status models.AttemptStatus, email, message string) {
	attempt.Status = status
	attempt.Email = email
	attempt.Message = message
	if err := m.attempts.Put(ctx, attempt); err != nil {
		m.logger.Error("failed to update attempt", "error", err)
	}
}

func (m *Manager) resolveClient(ctx context.Context, provider models.Provider) (*models.OAuthClient, error) {
	if client, ok := m.overrides[provider]; ok && client.ClientID != "" && client.ClientSecret != "" {
		client.Provider = provider
		return &client, nil
	}

	if m.clients != nil {
		client, err := m.clients.GetOAuthClient(ctx, provider)
		if err == nil && client.ClientID != "" && client.ClientSecret != "" {
			return client, nil
		}
		if err != nil {
			m.logger.Debug("no stored oauth client", "provider", provider, "error", err)
		}
	}

	return nil, ErrNotConfigured
}

func (m *Manager) deriveRedirectURI(req StartRequest) string {
	if m.redirectURI != "" {
		return m.redirectURI
	}
	if origin := strings.TrimRight(strings.TrimSpace(req.Origin), "/"); origin != "" {
		return origin + CallbackPath
	}
	if req.Host != "" {
		scheme := req.Scheme
		if scheme == "" {
			scheme = "https"
		}
		return scheme + "://" + req.Host + CallbackPath
	}
	return ""
}

func (m *Manager) credentials(mailbox *models.Mailbox) (models.Credentials, error) {
	if !mailbox.Provider.IsOAuth() {
		return models.Credentials{}, ErrUnsupportedProvider
	}
	plaintext := m.vault.Decrypt(mailbox.Credentials)
	return models.UnmarshalCredentials(mailbox.Provider, []byte(plaintext))
}

func (m *Manager) encryptCredentials(creds models.Credentials) (string, error) {
	data, err := creds.Marshal()
	if err != nil {
		return "", err
	}
	encrypted, err := m.vault.Encrypt(string(data))
	if err != nil {
		return "", fmt.Errorf("failed to encrypt credentials: %w", err)
	}
	return encrypted, nil
}

func (m *Manager) fetchToken(ctx context.Context, tokenURL string, form url.Values) (*tokenResponse, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, tokenURL, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")

	resp, err := m.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to send token request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("failed to read token response: %w", err)
	}

	var token tokenResponse
	if err := json.Unmarshal(body, &token); err != nil && resp.StatusCode == http.StatusOK {
		return nil, fmt.Errorf("failed to parse token response: %w", err)
	}

	if resp.StatusCode != http.StatusOK || token.AccessToken == "" {
		msg := token.ErrorDescription
		if msg == "" {
			msg = token.Error
		}
		if msg == "" {
			msg = truncateBody(body)
		}
		return nil, fmt.Errorf("token endpoint error: %s (status %d)", msg, resp.StatusCode)
	}

	return &token, nil
}

func (m *Manager) get(ctx context.Context, endpoint, accessToken string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)

	resp, err := m.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("API error: %s (status %d)", truncateBody(body), resp.StatusCode)
	}
	return body, nil
}

func generateState() (string, error) {
	raw := make([]byte, 32)
	if _, err := rand.Read(raw); err != nil {
		return "", fmt.Errorf("failed to generate oauth state: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(raw), nil
}

func truncateBody(body []byte) string {
	const max = 200
	s := strings.TrimSpace(string(body))
	if len(s) > max {
		return s[:max]
	}
	return s
}
