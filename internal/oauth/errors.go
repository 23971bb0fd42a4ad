package oauth

import "errors"

var (
	// ErrNotConfigured is returned when no client credentials exist for a provider
	ErrNotConfigured = errors.New("oauth client not configured")
	// ErrInvalidState is returned for unknown, expired or already completed states
	ErrInvalidState = errors.New("invalid or expired oauth state")
	// ErrTokenExchange is returned when the provider rejects a token or profile request
	ErrTokenExchange = errors.New("oauth token exchange failed")
	// ErrUnsupportedProvider is returned for providers without an OAuth flow
	ErrUnsupportedProvider = errors.New("provider does not support oauth")
	// ErrNoRefreshToken is returned when a mailbox has no refresh token to use
	ErrNoRefreshToken = errors.New("no refresh token stored")
)
