package models

import (
	"encoding/json"
	"fmt"
)

// OAuthToken credentials of an OAuth mailbox
type OAuthToken struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token,omitempty"`
	TokenType    string `json:"token_type,omitempty"`
	ExpiresIn    int64  `json:"expires_in,omitempty"`
}

// IMAPLogin credentials of an IMAP mailbox
type IMAPLogin struct {
	Server   string `json:"server"`
	Port     int    `json:"port"`
	Password string `json:"password"`
}

// Credentials is a tagged union keyed by Provider.
// Exactly one of OAuth or IMAP is set.
type Credentials struct {
	Provider Provider
	OAuth    *OAuthToken
	IMAP     *IMAPLogin
}

// NewOAuthCredentials builds OAuth credentials for provider
func NewOAuthCredentials(provider Provider, token OAuthToken) Credentials {
	return Credentials{Provider: provider, OAuth: &token}
}

// NewIMAPCredentials builds IMAP credentials for provider
func NewIMAPCredentials(provider Provider, login IMAPLogin) Credentials {
	return Credentials{Provider: provider, IMAP: &login}
}

// Marshal encodes the credential variant as JSON
func (c Credentials) Marshal() ([]byte, error) {
	switch {
	case c.Provider.IsOAuth():
		if c.OAuth == nil {
			return nil, fmt.Errorf("missing oauth credentials for %s", c.Provider)
		}
		return json.Marshal(c.OAuth)
	case c.Provider.IsIMAP():
		if c.IMAP == nil {
			return nil, fmt.Errorf("missing imap credentials for %s", c.Provider)
		}
		return json.Marshal(c.IMAP)
	default:
		return nil, fmt.Errorf("unknown provider %q", c.Provider)
	}
}

// UnmarshalCredentials decodes a credential blob according to provider
func UnmarshalCredentials(provider Provider, data []byte) (Credentials, error) {
	creds := Credentials{Provider: provider}

	switch {
	case provider.IsOAuth():
		var token OAuthToken
		if err := json.Unmarshal(data, &token); err != nil {
			return creds, fmt.Errorf("failed to decode oauth credentials: %w", err)
		}
		creds.OAuth = &token
	case provider.IsIMAP():
		var login IMAPLogin
		if err := json.Unmarshal(data, &login); err != nil {
			return creds, fmt.Errorf("failed to decode imap credentials: %w", err)
		}
		if login.Port == 0 {
			login.Port = 993
		}
		creds.IMAP = &login
	default:
		return creds, fmt.Errorf("unknown provider %q", provider)
	}

	return creds, nil
}
