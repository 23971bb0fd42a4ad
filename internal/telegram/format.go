package telegram

import (
	"fmt"
	"strings"
	"time"

	appmodels "github.com/mixelka/codebox/pkg/models"
)

// maxMessageLength leaves room under Telegram's 4096 character limit
const maxMessageLength = 4000

// FormatCodes renders codes as Telegram HTML under a bold title
func FormatCodes(title string, codes []*appmodels.VerificationCode) string {
	var sb strings.Builder

	sb.WriteString(fmt.Sprintf("<b>%s</b>\n", escapeHTML(title)))
	for _, code := range codes {
		entry := fmt.Sprintf("\n<b>%s</b>: <code>%s</code>\n%s, expires %s UTC\n",
			escapeHTML(code.Service),
			escapeHTML(code.Code),
			escapeHTML(code.MailboxAddress),
			code.ExpiresAt.UTC().Format(time.TimeOnly),
		)
		if sb.Len()+len(entry) > maxMessageLength {
			sb.WriteString("\n…")
			break
		}
		sb.WriteString(entry)
	}

	return sb.String()
}

// FormatMailboxes renders a mailbox overview
func FormatMailboxes(mailboxes []*appmodels.Mailbox, pending int) string {
	var sb strings.Builder
	sb.WriteString("<b>Connected mailboxes:</b>\n\n")

	for _, mb := range mailboxes {
		statusEmoji := "🟢"
		if mb.Status != appmodels.MailboxActive {
			statusEmoji = "🔴"
		}
		sb.WriteString(fmt.Sprintf("%s <b>%s</b>\n", statusEmoji, escapeHTML(mb.Address)))
		sb.WriteString(fmt.Sprintf("   ID: %d, provider: %s\n\n", mb.ID, mb.Provider))
	}

	if pending > 0 {
		sb.WriteString(fmt.Sprintf("<i>%d authorization(s) pending</i>\n", pending))
	}
	return sb.String()
}

// escapeHTML escapes HTML special characters for Telegram
func escapeHTML(s string) string {
	s = strings.ReplaceAll(s, "&", "&amp;")
	s = strings.ReplaceAll(s, "<", "&lt;")
	s = strings.ReplaceAll(s, ">", "&gt;")
	return s
}
