package models

import "time"

// Provider mailbox provider kind
type Provider string

const (
	ProviderGmail   Provider = "gmail"
	ProviderOutlook Provider = "outlook"
	ProviderQQ      Provider = "qq"
	ProviderIMAP    Provider = "imap"
)

// IsOAuth reports whether the provider is read through an OAuth-protected API
func (p Provider) IsOAuth() bool {
	return p == ProviderGmail || p == ProviderOutlook
}

// IsIMAP reports whether the provider is read over raw IMAP
func (p Provider) IsIMAP() bool {
	return p == ProviderQQ || p == ProviderIMAP
}

// Valid reports whether p is a known provider
func (p Provider) Valid() bool {
	return p.IsOAuth() || p.IsIMAP()
}

// MailboxStatus authorization status
type MailboxStatus string

const (
	MailboxActive MailboxStatus = "active"
	MailboxError  MailboxStatus = "error"
)

// Mailbox represents an authorized mailbox of a user
type Mailbox struct {
	ID          int64         `db:"id" json:"id"`
	UserID      int64         `db:"user_id" json:"-"`
	Address     string        `db:"address" json:"address"`
	Provider    Provider      `db:"provider" json:"provider"`
	Status      MailboxStatus `db:"status" json:"status"`
	Credentials string        `db:"credentials" json:"-"` // Vault-encrypted credentials JSON
	CreatedAt   time.Time     `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time     `db:"updated_at" json:"updated_at"`
}

// OAuthClient OAuth application credentials of a provider
type OAuthClient struct {
	Provider     Provider `db:"provider" json:"provider"`
	ClientID     string   `db:"client_id" json:"client_id"`
	ClientSecret string   `db:"client_secret" json:"-"`
}
