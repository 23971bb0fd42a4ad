package otp

import (
	"crypto/sha1"
	"encoding/base64"
	"strings"
	"time"

	"github.com/mixelka/codebox/pkg/models"
)

// SteamAlphabet symbols of a Steam Guard code
const SteamAlphabet = "23456789BCDFGHJKMNPQRTVWXY"

const steamCodeLength = 5

// GenerateSteamGuardCode computes a Steam Guard code from a Base64 shared secret.
// A secret that cannot be decoded yields an empty string.
func GenerateSteamGuardCode(secret string, timeOffset int, now time.Time) string {
	key, err := base64.StdEncoding.DecodeString(strings.TrimSpace(secret))
	if err != nil || len(key) == 0 {
		return ""
	}

	code := truncate(hmacSum(sha1.New, key, timeCounter(now, timeOffset, models.SteamOtpPeriod)))

	var sb strings.Builder
	size := uint32(len(SteamAlphabet))
	for i := 0; i < steamCodeLength; i++ {
		sb.WriteByte(SteamAlphabet[code%size])
		code /= size
	}
	return sb.String()
}
