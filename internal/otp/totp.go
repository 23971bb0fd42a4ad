package otp

import (
	"crypto/hmac"
	"crypto/sha1"
	"crypto/sha256"
	"crypto/sha512"
	"encoding/base32"
	"encoding/binary"
	"fmt"
	"hash"
	"strings"
	"time"

	"github.com/mixelka/codebox/pkg/models"
)

// GenerateTOTP computes an RFC 6238 code for the Base32 secret at now+timeOffset.
// A secret that cannot be decoded yields an empty string.
func GenerateTOTP(secret, algorithm string, digits, period, timeOffset int, now time.Time) string {
	key, err := decodeBase32Secret(secret)
	if err != nil {
		return ""
	}
	if period <= 0 {
		period = models.DefaultOtpPeriod
	}
	return GenerateHOTP(key, algorithm, digits, timeCounter(now, timeOffset, period))
}

// GenerateHOTP computes an RFC 4226 code for a raw key and counter
func GenerateHOTP(key []byte, algorithm string, digits int, counter uint64) string {
	if digits < 4 || digits > 8 {
		digits = models.DefaultOtpDigits
	}

	truncated := truncate(hmacSum(hashFunc(algorithm), key, counter))

	mod := uint32(1)
	for i := 0; i < digits; i++ {
		mod *= 10
	}

	return fmt.Sprintf("%0*d", digits, truncated%mod)
}

// Remaining returns seconds left in the current time step
func Remaining(period, timeOffset int, now time.Time) int {
	if period <= 0 {
		period = models.DefaultOtpPeriod
	}
	elapsed := (now.Unix() + int64(timeOffset)) % int64(period)
	if elapsed < 0 {
		elapsed += int64(period)
	}
	return period - int(elapsed)
}

func timeCounter(now time.Time, timeOffset, period int) uint64 {
	ts := now.Unix() + int64(timeOffset)
	if ts < 0 {
		return 0
	}
	return uint64(ts / int64(period))
}

func decodeBase32Secret(secret string) ([]byte, error) {
	cleaned := strings.ToUpper(secret)
	cleaned = strings.ReplaceAll(cleaned, " ", "")
	cleaned = strings.ReplaceAll(cleaned, "-", "")
	if cleaned == "" {
		return nil, fmt.Errorf("empty secret")
	}
	if pad := len(cleaned) % 8; pad != 0 {
		cleaned += strings.Repeat("=", 8-pad)
	}
	return base32.StdEncoding.DecodeString(cleaned)
}

func hashFunc(algorithm string) func() hash.Hash {
	switch strings.ToUpper(algorithm) {
	case "SHA256":
		return sha256.New
	case "SHA512":
		return sha512.New
	default:
		return sha1.New
	}
}

func hmacSum(h func() hash.Hash, key []byte, counter uint64) []byte {
	var msg [8]byte
	binary.BigEndian.PutUint64(msg[:], counter)

	mac := hmac.New(h, key)
	_, _ = mac.Write(msg[:])
	return mac.Sum(nil)
}

// truncate is the RFC 4226 dynamic truncation
func truncate(sum []byte) uint32 {
	offset := sum[len(sum)-1] & 0x0f
	return binary.BigEndian.Uint32(sum[offset:offset+4]) & 0x7fffffff
}
