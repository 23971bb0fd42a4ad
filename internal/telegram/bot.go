package telegram

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"

	"github.com/mixelka/codebox/internal/harvest"
	appmodels "github.com/mixelka/codebox/pkg/models"
)

// Harvester is the mailbox and code service the bot drives
type Harvester interface {
	Refresh(ctx context.Context, userID int64, since time.Time) ([]*appmodels.VerificationCode, error)
	ActiveCodes(ctx context.Context, userID int64) ([]*appmodels.VerificationCode, error)
	MarkRead(ctx context.Context, userID, id int64) error
	Mailboxes(ctx context.Context, userID int64) (*harvest.Overview, error)
	AddIMAPMailbox(ctx context.Context, userID int64, req harvest.AddIMAPRequest) (*appmodels.Mailbox, error)
	RemoveMailbox(ctx context.Context, userID, id int64) error
}

// Bot represents the Telegram bot. It serves one chat on behalf of one user.
type Bot struct {
	bot     *bot.Bot
	harvest Harvester
	chatID  int64
	userID  int64
	logger  *slog.Logger
}

// BotDeps dependencies for creating a bot
type BotDeps struct {
	Token   string
	ChatID  int64
	UserID  int64
	Logger  *slog.Logger
	Options []bot.Option // Extra client options
}

// NewBot creates a new Telegram bot. The harvester is attached with SetHarvester
// because the harvest service notifies through the bot.
func NewBot(deps BotDeps) (*Bot, error) {
	b := &Bot{
		chatID: deps.ChatID,
		userID: deps.UserID,
		logger: deps.Logger.With("component", "telegram_bot"),
	}

	opts := append([]bot.Option{bot.WithDefaultHandler(b.defaultHandler)}, deps.Options...)

	tgBot, err := bot.New(deps.Token, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create telegram bot: %w", err)
	}

	b.bot = tgBot
	b.registerHandlers()

	return b, nil
}

// SetHarvester attaches the code service. Call before Start.
func (b *Bot) SetHarvester(h Harvester) {
	b.harvest = h
}

// registerHandlers registers command handlers
func (b *Bot) registerHandlers() {
	b.bot.RegisterHandler(bot.HandlerTypeMessageText, "/connect", bot.MatchTypePrefix, b.handleConnect)
	b.bot.RegisterHandler(bot.HandlerTypeMessageText, "/disconnect", bot.MatchTypePrefix, b.handleDisconnect)
	b.bot.RegisterHandler(bot.HandlerTypeMessageText, "/status", bot.MatchTypePrefix, b.handleStatus)
	b.bot.RegisterHandler(bot.HandlerTypeMessageText, "/codes", bot.MatchTypePrefix, b.handleCodes)
	b.bot.RegisterHandler(bot.HandlerTypeMessageText, "/refresh", bot.MatchTypePrefix, b.handleRefresh)
	b.bot.RegisterHandler(bot.HandlerTypeMessageText, "/start", bot.MatchTypePrefix, b.handleStart)
	b.bot.RegisterHandler(bot.HandlerTypeMessageText, "/help", bot.MatchTypePrefix, b.handleHelp)
	b.bot.RegisterHandler(bot.HandlerTypeCallbackQueryData, "", bot.MatchTypePrefix, b.handleCallback)
}

// Start polls for updates until ctx is cancelled
func (b *Bot) Start(ctx context.Context) {
	b.logger.Info("starting telegram bot", "chat_id", b.chatID)
	b.bot.Start(ctx)
}

// NotifyCodes posts newly harvested codes of the bot's user to its chat
func (b *Bot) NotifyCodes(ctx context.Context, codes []*appmodels.VerificationCode) error {
	own := make([]*appmodels.VerificationCode, 0, len(codes))
	for _, code := range codes {
		if code.UserID == b.userID {
			own = append(own, code)
		}
	}
	if len(own) == 0 {
		return nil
	}

	_, err := b.sendMessageWithKeyboard(ctx, b.chatID, 0, FormatCodes("New verification codes", own), BuildCodesKeyboard(own))
	if err != nil {
		return fmt.Errorf("failed to send telegram message: %w", err)
	}

	b.logger.Debug("codes sent", "count", len(own))
	return nil
}

// defaultHandler handles unknown messages
func (b *Bot) defaultHandler(ctx context.Context, tgBot *bot.Bot, update *models.Update) {
	if update.Message == nil {
		return
	}

	if update.Message.Text != "" && update.Message.Text[0] == '/' {
		b.logger.Debug("unknown command", "text", update.Message.Text)
	}
}

// handleStart handles /start command
func (b *Bot) handleStart(ctx context.Context, tgBot *bot.Bot, update *models.Update) {
	b.handleHelp(ctx, tgBot, update)
}

// handleHelp handles /help command
func (b *Bot) handleHelp(ctx context.Context, tgBot *bot.Bot, update *models.Update) {
	msg := update.Message
	if msg == nil {
		return
	}

	text := `<b>Codebox</b>

Collects verification codes from your mailboxes.

<b>Commands:</b>
/codes - show active codes
/refresh - check mailboxes now
/status - list connected mailboxes
/connect email password [server:port] - connect an IMAP mailbox
/disconnect id - remove a mailbox

<b>Examples:</b>
<code>/connect me@qq.com authcode</code>
<code>/connect me@example.org password imap.example.org:993</code>

Gmail and Outlook are connected through the web app.`

	b.sendMessage(ctx, msg.Chat.ID, msg.MessageThreadID, text)
}
