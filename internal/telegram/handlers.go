package telegram

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"

	"github.com/mixelka/codebox/internal/database"
	"github.com/mixelka/codebox/internal/harvest"
)

// handleConnect handles /connect command
// Usage: /connect email password [imap_server:port]
func (b *Bot) handleConnect(ctx context.Context, tgBot *bot.Bot, update *models.Update) {
	msg := update.Message
	if !b.authorized(ctx, msg) {
		return
	}

	parts := strings.Fields(msg.Text)
	if len(parts) < 3 || len(parts) > 4 {
		b.sendMessage(ctx, msg.Chat.ID, msg.MessageThreadID,
			"Usage: <code>/connect email@example.com password</code>\nOr: <code>/connect email@example.com password imap.server.com:993</code>")
		return
	}

	// The message carries a password
	if err := b.deleteMessage(ctx, msg.Chat.ID, msg.ID); err != nil {
		b.logger.Warn("failed to delete connect message", "error", err)
	}

	req := harvest.AddIMAPRequest{Address: parts[1], Password: parts[2]}
	if len(parts) == 4 {
		host, port, err := splitServer(parts[3])
		if err != nil {
			b.sendMessage(ctx, msg.Chat.ID, msg.MessageThreadID, fmt.Sprintf("Invalid server: %s", escapeHTML(parts[3])))
			return
		}
		req.Server, req.Port = host, port
	}

	mailbox, err := b.harvest.AddIMAPMailbox(ctx, b.userID, req)
	if err != nil {
		b.logger.Info("connect failed", "mailbox", req.Address, "error", err)
		b.sendMessage(ctx, msg.Chat.ID, msg.MessageThreadID, fmt.Sprintf("Connection failed: %s", escapeHTML(err.Error())))
		return
	}

	b.sendMessage(ctx, msg.Chat.ID, msg.MessageThreadID,
		fmt.Sprintf("Mailbox <b>%s</b> connected (ID %d).\nCodes will be collected on /refresh.", escapeHTML(mailbox.Address), mailbox.ID))
}

// handleDisconnect handles /disconnect command
// Usage: /disconnect mailbox_id
func (b *Bot) handleDisconnect(ctx context.Context, tgBot *bot.Bot, update *models.Update) {
	msg := update.Message
	if !b.authorized(ctx, msg) {
		return
	}

	parts := strings.Fields(msg.Text)
	var id int64
	if len(parts) == 2 {
		id, _ = strconv.ParseInt(parts[1], 10, 64)
	}
	if id <= 0 {
		b.sendMessage(ctx, msg.Chat.ID, msg.MessageThreadID, "Usage: <code>/disconnect mailbox_id</code>\nSee /status for ids.")
		return
	}

	err := b.harvest.RemoveMailbox(ctx, b.userID, id)
	switch {
	case errors.Is(err, database.ErrNotFound):
		b.sendMessage(ctx, msg.Chat.ID, msg.MessageThreadID, "Mailbox not found")
	case err != nil:
		b.logger.Error("failed to remove mailbox", "error", err)
		b.sendMessage(ctx, msg.Chat.ID, msg.MessageThreadID, "Failed to remove mailbox")
	default:
		b.sendMessage(ctx, msg.Chat.ID, msg.MessageThreadID, "Mailbox removed")
	}
}

// handleStatus handles /status command
func (b *Bot) handleStatus(ctx context.Context, tgBot *bot.Bot, update *models.Update) {
	msg := update.Message
	if !b.authorized(ctx, msg) {
		return
	}

	overview, err := b.harvest.Mailboxes(ctx, b.userID)
	if err != nil {
		b.logger.Error("failed to list mailboxes", "error", err)
		b.sendMessage(ctx, msg.Chat.ID, msg.MessageThreadID, "Failed to list mailboxes")
		return
	}

	if len(overview.Authorized) == 0 && len(overview.Pending) == 0 {
		b.sendMessage(ctx, msg.Chat.ID, msg.MessageThreadID, "No mailboxes connected")
		return
	}

	b.sendMessage(ctx, msg.Chat.ID, msg.MessageThreadID, FormatMailboxes(overview.Authorized, len(overview.Pending)))
}

// handleCodes handles /codes command
func (b *Bot) handleCodes(ctx context.Context, tgBot *bot.Bot, update *models.Update) {
	msg := update.Message
	if !b.authorized(ctx, msg) {
		return
	}

	codes, err := b.harvest.ActiveCodes(ctx, b.userID)
	if err != nil {
		b.logger.Error("failed to list codes", "error", err)
		b.sendMessage(ctx, msg.Chat.ID, msg.MessageThreadID, "Failed to list codes")
		return
	}
	if len(codes) == 0 {
		b.sendMessage(ctx, msg.Chat.ID, msg.MessageThreadID, "No active codes")
		return
	}

	b.sendMessageWithKeyboard(ctx, msg.Chat.ID, msg.MessageThreadID, FormatCodes("Active codes", codes), BuildCodesKeyboard(codes))
}

// handleRefresh handles /refresh command. New codes arrive through NotifyCodes.
func (b *Bot) handleRefresh(ctx context.Context, tgBot *bot.Bot, update *models.Update) {
	msg := update.Message
	if !b.authorized(ctx, msg) {
		return
	}

	codes, err := b.harvest.Refresh(ctx, b.userID, time.Time{})
	if err != nil {
		b.logger.Error("failed to refresh", "error", err)
		b.sendMessage(ctx, msg.Chat.ID, msg.MessageThreadID, "Refresh failed")
		return
	}
	if len(codes) == 0 {
		b.sendMessage(ctx, msg.Chat.ID, msg.MessageThreadID, "No new codes")
	}
}

// handleCallback handles inline button callbacks
func (b *Bot) handleCallback(ctx context.Context, tgBot *bot.Bot, update *models.Update) {
	callback := update.CallbackQuery
	if callback == nil {
		return
	}
	if callback.Message.Message == nil || callback.Message.Message.Chat.ID != b.chatID {
		b.answerCallback(ctx, callback.ID, "Not allowed", false)
		return
	}

	data, err := DecodeCallback(callback.Data)
	if err != nil {
		b.logger.Error("failed to decode callback", "error", err, "data", callback.Data)
		b.answerCallback(ctx, callback.ID, "Error", false)
		return
	}

	switch data.Action {
	case CallbackMarkRead:
		b.handleMarkRead(ctx, callback, data)
	case CallbackCopyCode:
		b.handleCopyCode(ctx, callback, data)
	default:
		b.answerCallback(ctx, callback.ID, "Unknown action", false)
	}
}

// handleMarkRead handles mark as read callback
func (b *Bot) handleMarkRead(ctx context.Context, callback *models.CallbackQuery, data CallbackData) {
	err := b.harvest.MarkRead(ctx, b.userID, data.CodeID)
	switch {
	case errors.Is(err, database.ErrNotFound):
		b.answerCallback(ctx, callback.ID, "Code not found", false)
	case err != nil:
		b.logger.Error("failed to mark code as read", "error", err)
		b.answerCallback(ctx, callback.ID, "Error", false)
	default:
		b.answerCallback(ctx, callback.ID, "Marked as read", false)
	}
}

// handleCopyCode shows the code in an alert so it can be copied
func (b *Bot) handleCopyCode(ctx context.Context, callback *models.CallbackQuery, data CallbackData) {
	codes, err := b.harvest.ActiveCodes(ctx, b.userID)
	if err != nil {
		b.logger.Error("failed to list codes", "error", err)
		b.answerCallback(ctx, callback.ID, "Error", false)
		return
	}

	for _, code := range codes {
		if code.ID == data.CodeID {
			b.answerCallback(ctx, callback.ID, fmt.Sprintf("%s: %s", code.Service, code.Code), true)
			return
		}
	}
	b.answerCallback(ctx, callback.ID, "Code expired", false)
}

// splitServer parses host[:port]
func splitServer(s string) (string, int, error) {
	if !strings.Contains(s, ":") {
		return s, 0, nil
	}
	host, portStr, err := net.SplitHostPort(s)
	if err != nil {
		return "", 0, err
	}
	port, err := strconv.Atoi(portStr)
	if err != nil || port <= 0 || port > 65535 {
		return "", 0, fmt.Errorf("invalid port %q", portStr)
	}
	return host, port, nil
}
