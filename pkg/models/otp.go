package models

import "strings"

// OtpType kind of locally computed one-time password
type OtpType string

const (
	OtpTOTP  OtpType = "totp"
	OtpHOTP  OtpType = "hotp"
	OtpSteam OtpType = "steam"
)

// OTP defaults applied when stored values are absent or invalid
const (
	DefaultOtpAlgorithm = "SHA1"
	DefaultOtpDigits    = 6
	DefaultOtpPeriod    = 30
	SteamOtpPeriod      = 30
)

// OtpConfig per-account OTP configuration
type OtpConfig struct {
	Secret      string   `json:"secret"`
	Issuer      string   `json:"issuer"`
	Label       string   `json:"label,omitempty"`
	Type        OtpType  `json:"type"`
	Algorithm   string   `json:"algorithm"`
	Digits      int      `json:"digits"`
	Period      int      `json:"period"`
	TimeOffset  int      `json:"time_offset"`
	BackupCodes []string `json:"backup_codes,omitempty"`
}

// Normalized returns a copy with invalid or missing fields replaced by defaults.
// It never fails: read-time configs are always usable.
func (c OtpConfig) Normalized() OtpConfig {
	switch OtpType(strings.ToLower(string(c.Type))) {
	case OtpHOTP:
		c.Type = OtpHOTP
	case OtpSteam:
		c.Type = OtpSteam
	default:
		c.Type = OtpTOTP
	}

	switch strings.ToUpper(c.Algorithm) {
	case "SHA256", "SHA512":
		c.Algorithm = strings.ToUpper(c.Algorithm)
	default:
		c.Algorithm = DefaultOtpAlgorithm
	}

	if c.Digits < 4 || c.Digits > 8 {
		c.Digits = DefaultOtpDigits
	}
	if c.Period <= 0 {
		c.Period = DefaultOtpPeriod
	}
	if c.Type == OtpSteam {
		c.Period = SteamOtpPeriod
	}

	return c
}
