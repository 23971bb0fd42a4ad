package otp

import (
	"time"

	"github.com/mixelka/codebox/pkg/models"
)

// Code is the current local code of an account
type Code struct {
	Code      string         `json:"code"`
	Type      models.OtpType `json:"type"`
	Remaining int            `json:"remaining"`
	Period    int            `json:"period"`
}

// Generate computes the current code for cfg. Code is empty when the secret is malformed.
func Generate(cfg models.OtpConfig, now time.Time) Code {
	cfg = cfg.Normalized()

	var code string
	if cfg.Type == models.OtpSteam {
		code = GenerateSteamGuardCode(cfg.Secret, cfg.TimeOffset, now)
	} else {
		// hotp accounts carry no stored counter and use the time step
		code = GenerateTOTP(cfg.Secret, cfg.Algorithm, cfg.Digits, cfg.Period, cfg.TimeOffset, now)
	}

	return Code{
		Code:      code,
		Type:      cfg.Type,
		Remaining: Remaining(cfg.Period, cfg.TimeOffset, now),
		Period:    cfg.Period,
	}
}
