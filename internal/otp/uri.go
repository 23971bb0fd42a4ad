package otp

import (
	"errors"
	"net/url"
	"regexp"
	"strconv"
	"strings"

	"github.com/mixelka/codebox/pkg/models"
)

// ErrInvalidURI is returned for strings that are not otpauth URIs
var ErrInvalidURI = errors.New("invalid otpauth uri")

var otpauthRegex = regexp.MustCompile(`^otpauth://(totp|hotp)/([^?]+)\?(.+)`)

// ParseURI parses an otpauth://(totp|hotp)/<label>?<query> URI.
// Unknown query keys are ignored; malformed numeric values fall back to defaults.
func ParseURI(uri string) (models.OtpConfig, error) {
	match := otpauthRegex.FindStringSubmatch(strings.TrimSpace(uri))
	if match == nil {
		return models.OtpConfig{}, ErrInvalidURI
	}

	label, err := url.PathUnescape(match[2])
	if err != nil {
		label = match[2]
	}

	params := make(map[string]string)
	for _, pair := range strings.Split(match[3], "&") {
		key, value, ok := strings.Cut(pair, "=")
		if !ok {
			continue
		}
		params[key] = value
	}

	issuer, err := url.PathUnescape(params["issuer"])
	if err != nil {
		issuer = params["issuer"]
	}

	cfg := models.OtpConfig{
		Type:      models.OtpType(match[1]),
		Label:     label,
		Secret:    params["secret"],
		Issuer:    issuer,
		Algorithm: strings.ToUpper(params["algorithm"]),
		Digits:    atoiDefault(params["digits"], models.DefaultOtpDigits),
		Period:    atoiDefault(params["period"], models.DefaultOtpPeriod),
	}
	if cfg.Algorithm == "" {
		cfg.Algorithm = models.DefaultOtpAlgorithm
	}

	return cfg, nil
}

func atoiDefault(s string, def int) int {
	if s == "" {
		return def
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return def
	}
	return n
}
