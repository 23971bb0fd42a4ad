package parser

import (
	"regexp"
	"strings"
	"unicode/utf8"
)

// UnknownService is returned by generic rules that cannot name the sender
const UnknownService = "unknown"

// MaxServiceLength caps display labels derived from sender headers
const MaxServiceLength = 50

// codeWords must appear between a service name and its code, so addresses
// and postal codes in footers are not taken for codes
const codeWords = `(?:验证码|校验码|动态码|code|код)`

type rule struct {
	service string
	regex   *regexp.Regexp
}

// Extractor finds verification codes in message text.
// Rules are evaluated in order and the first match wins.
type Extractor struct {
	rules []rule
}

// NewExtractor creates an extractor with the built-in rule set
func NewExtractor() *Extractor {
	var rules []rule

	// Service-specific rules come first so they win over the generic ones
	for _, s := range []struct {
		service string
		names   string
	}{
		{"Google", `\bGoogle\b`},
		{"Microsoft", `\b(?:Microsoft|Outlook|Hotmail)\b`},
		{"Apple", `\b(?:Apple|iCloud)\b`},
		{"Amazon", `\b(?:Amazon|AWS)\b`},
		{"GitHub", `\bGitHub\b`},
		{"Steam", `\bSteam\b`},
		{"Discord", `\bDiscord\b`},
		{"Telegram", `\bTelegram\b`},
		{"Facebook", `\bFacebook\b`},
		{"Instagram", `\bInstagram\b`},
		{"Twitter", `\b(?:Twitter|X Corp)\b`},
		{"PayPal", `\bPayPal\b`},
		{"OpenAI", `\b(?:OpenAI|ChatGPT)\b`},
		{"TikTok", `(?:\bTikTok\b|抖音)`},
		{"WeChat", `(?:\bWeChat\b|微信)`},
		{"Alipay", `(?:\bAlipay\b|支付宝)`},
		{"QQ", `(?:\bQQ\b|腾讯)`},
	} {
		rules = append(rules, rule{
			service: s.service,
			regex:   regexp.MustCompile(`(?is)` + s.names + `.{0,80}?` + codeWords + `\D{0,30}?\b(\d{5,6})\b`),
		})
	}

	// Google also sends bare "G-123456" codes
	rules = append(rules, rule{service: "Google", regex: regexp.MustCompile(`\bG-(\d{6})\b`)})

	rules = append(rules,
		rule{
			service: UnknownService,
			regex:   regexp.MustCompile(`(?is)` + codeWords + `\D{0,30}?\b(\d{6})\b`),
		},
		rule{
			service: UnknownService,
			regex:   regexp.MustCompile(`(?is)` + codeWords + `\D{0,30}?\b(\d{4})\b`),
		},
		// Standalone 6-digit number anywhere
		rule{
			service: UnknownService,
			regex:   regexp.MustCompile(`(?:^|\D)(\d{6})(?:\D|$)`),
		},
	)

	return &Extractor{rules: rules}
}

// Extract returns the first code found in text and the service it belongs to.
// ok is false when no rule matches.
func (e *Extractor) Extract(text string) (code, service string, ok bool) {
	if text == "" {
		return "", "", false
	}

	for _, r := range e.rules {
		match := r.regex.FindStringSubmatch(text)
		if len(match) > 1 {
			return match[1], r.service, true
		}
	}

	return "", "", false
}

// DisplayName derives a service label from a From header:
// the text before the first '<', or the raw header when there is none.
func DisplayName(from string) string {
	name := strings.TrimSpace(from)
	if i := strings.Index(name, "<"); i >= 0 {
		if display := strings.Trim(strings.TrimSpace(name[:i]), `"`); display != "" {
			name = display
		} else {
			name = strings.Trim(name[i:], "<> ")
		}
	}
	return truncateRunes(name, MaxServiceLength)
}

func truncateRunes(s string, max int) string {
	if utf8.RuneCountInString(s) <= max {
		return s
	}
	runes := []rune(s)
	return string(runes[:max])
}
