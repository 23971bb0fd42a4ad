package models

import "time"

// AttemptStatus OAuth authorization attempt status
type AttemptStatus string

const (
	AttemptPending AttemptStatus = "pending"
	// AttemptProcessing marks an attempt whose callback is being handled
	AttemptProcessing AttemptStatus = "processing"
	AttemptSuccess    AttemptStatus = "success"
	AttemptError      AttemptStatus = "error"
	AttemptExpired    AttemptStatus = "expired"
)

// InProgress reports whether the attempt has not reached an outcome yet
func (s AttemptStatus) InProgress() bool {
	return s == AttemptPending || s == AttemptProcessing
}

// AuthAttempt ephemeral OAuth authorization-code attempt, keyed by State
type AuthAttempt struct {
	State        string        `json:"state"`
	UserID       int64         `json:"user_id"`
	Provider     Provider      `json:"provider"`
	ClientID     string        `json:"client_id"`
	ClientSecret string        `json:"client_secret"`
	RedirectURI  string        `json:"redirect_uri"`
	CreatedAt    time.Time     `json:"created_at"`
	Status       AttemptStatus `json:"status"`
	Email        string        `json:"email,omitempty"`
	Message      string        `json:"message,omitempty"`
}
