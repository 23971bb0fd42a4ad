package models

import "time"

// VerificationCode represents a code harvested from a mailbox
type VerificationCode struct {
	ID             int64     `json:"id"`
	UserID         int64     `json:"-"`
	MailboxAddress string    `json:"mailbox_address"`
	Service        string    `json:"service"`
	Code           string    `json:"code"`
	AccountName    string    `json:"account_name,omitempty"`
	IsRead         bool      `json:"is_read"`
	CreatedAt      time.Time `json:"created_at"` // UTC
	ExpiresAt      time.Time `json:"expires_at"` // UTC
}
