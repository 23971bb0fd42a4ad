package otp

import (
	"encoding/base32"
	"encoding/base64"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateTOTPRFCVectors(t *testing.T) {
	cases := []struct {
		algorithm string
		key       string
		ts        int64
		code      string
	}{
		{"SHA1", "12345678901234567890", 59, "94287082"},
		{"SHA1", "12345678901234567890", 1111111109, "07081804"},
		{"SHA1", "12345678901234567890", 1234567890, "89005924"},
		{"SHA256", "12345678901234567890123456789012", 59, "46119246"},
		{"SHA256", "12345678901234567890123456789012", 1111111111, "67062674"},
		{"SHA512", "1234567890123456789012345678901234567890123456789012345678901234", 59, "90693936"},
		{"SHA512", "1234567890123456789012345678901234567890123456789012345678901234", 2000000000, "38618901"},
	}

	for _, tc := range cases {
		secret := base32.StdEncoding.EncodeToString([]byte(tc.key))
		got := GenerateTOTP(secret, tc.algorithm, 8, 30, 0, time.Unix(tc.ts, 0))
		assert.Equal(t, tc.code, got, "%s at t=%d", tc.algorithm, tc.ts)
	}
}

func TestGenerateTOTPReferenceSecret(t *testing.T) {
	got := GenerateTOTP("GEZDGNBVGY3TQOJQGEZDGNBVGY3TQOJQ", "SHA1", 8, 30, 0, time.Unix(59, 0))
	assert.Equal(t, "94287082", got)
}

func TestGenerateTOTPNormalizesSecret(t *testing.T) {
	now := time.Unix(59, 0)
	want := GenerateTOTP("GEZDGNBVGY3TQOJQGEZDGNBVGY3TQOJQ", "SHA1", 8, 30, 0, now)

	assert.Equal(t, want, GenerateTOTP("gezd gnbv-gy3t qojq gezd gnbv gy3t qojq", "SHA1", 8, 30, 0, now))
}

func TestGenerateTOTPPadsUnpaddedSecret(t *testing.T) {
	// 11-byte key encodes to 18 chars before padding
	secret := strings.TrimRight(base32.StdEncoding.EncodeToString([]byte("hello world")), "=")
	assert.Len(t, GenerateTOTP(secret, "SHA1", 6, 30, 0, time.Now()), 6)
}

func TestGenerateTOTPTimeOffset(t *testing.T) {
	secret := "GEZDGNBVGY3TQOJQGEZDGNBVGY3TQOJQ"
	shifted := GenerateTOTP(secret, "SHA1", 8, 30, 30, time.Unix(29, 0))
	assert.Equal(t, GenerateTOTP(secret, "SHA1", 8, 30, 0, time.Unix(59, 0)), shifted)
}

func TestGenerateTOTPUnknownAlgorithmDefaultsToSHA1(t *testing.T) {
	got := GenerateTOTP("GEZDGNBVGY3TQOJQGEZDGNBVGY3TQOJQ", "MD5", 8, 30, 0, time.Unix(59, 0))
	assert.Equal(t, "94287082", got)
}

func TestGenerateTOTPMalformedSecretIsEmpty(t *testing.T) {
	assert.Equal(t, "", GenerateTOTP("not!base32", "SHA1", 6, 30, 0, time.Now()))
	assert.Equal(t, "", GenerateTOTP("", "SHA1", 6, 30, 0, time.Now()))
}

func TestGenerateTOTPLengthMatchesDigits(t *testing.T) {
	secret := "JBSWY3DPEHPK3PXP"
	for digits := 4; digits <= 8; digits++ {
		for ts := int64(0); ts < 3000; ts += 30 {
			code := GenerateTOTP(secret, "SHA1", digits, 30, 0, time.Unix(ts, 0))
			require.Len(t, code, digits)
		}
	}
}

func TestRemaining(t *testing.T) {
	assert.Equal(t, 30, Remaining(30, 0, time.Unix(60, 0)))
	assert.Equal(t, 1, Remaining(30, 0, time.Unix(59, 0)))
	assert.Equal(t, 20, Remaining(30, 5, time.Unix(65, 0)))
	assert.Equal(t, 30, Remaining(0, 0, time.Unix(90, 0)))
}

func TestGenerateSteamGuardCodeAlphabet(t *testing.T) {
	secret := base64.StdEncoding.EncodeToString([]byte("steam-shared-secret-0"))
	for ts := int64(0); ts < 30*200; ts += 30 {
		code := GenerateSteamGuardCode(secret, 0, time.Unix(ts, 0))
		require.Len(t, code, 5)
		for _, r := range code {
			require.True(t, strings.ContainsRune(SteamAlphabet, r), "unexpected symbol %q in %s", r, code)
		}
	}
}

func TestGenerateSteamGuardCodeStableWithinPeriod(t *testing.T) {
	secret := base64.StdEncoding.EncodeToString([]byte("steam-shared-secret-0"))
	assert.Equal(t,
		GenerateSteamGuardCode(secret, 0, time.Unix(30, 0)),
		GenerateSteamGuardCode(secret, 0, time.Unix(59, 0)))
}

func TestGenerateSteamGuardCodeRejectsBase32(t *testing.T) {
	assert.Equal(t, "", GenerateSteamGuardCode("JBSWY3DP!", 0, time.Now()))
}
