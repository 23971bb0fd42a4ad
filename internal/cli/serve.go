package cli

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"github.com/mixelka/codebox/internal/api"
	"github.com/mixelka/codebox/internal/config"
	"github.com/mixelka/codebox/internal/database"
	"github.com/mixelka/codebox/internal/email"
	"github.com/mixelka/codebox/internal/harvest"
	"github.com/mixelka/codebox/internal/metrics"
	"github.com/mixelka/codebox/internal/oauth"
	"github.com/mixelka/codebox/internal/telegram"
	"github.com/mixelka/codebox/internal/vault"
	"github.com/mixelka/codebox/pkg/models"
)

// serveCmd represents the serve command
var serveCmd = &cobra.Command{
	Use:     "serve",
	Aliases: []string{"server", "run"},
	Short:   "Start the HTTP API server",
	Long: `Start the Codebox HTTP API.

The server exposes OTP configuration and generation, mailbox authorization
(OAuth for Gmail and Outlook, password login for IMAP) and on-demand
verification code harvesting. When TELEGRAM_BOT_TOKEN, TELEGRAM_CHAT_ID and
TELEGRAM_USER_ID are set, a Telegram bot is started alongside it.`,
	RunE: runServe,
}

var serveFlags struct {
	Addr string
}

func init() {
	serveCmd.Flags().StringVar(&serveFlags.Addr, "addr", "", "Listen address (overrides HTTP_ADDR)")
	RootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if serveFlags.Addr != "" {
		cfg.HTTPAddr = serveFlags.Addr
	}

	logger := setupLogger(cfg.LogLevel, cfg.LogFormat)
	logger.Info("starting codebox", "version", Version)

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := database.New(cfg.DatabasePath)
	if err != nil {
		return err
	}
	defer db.Close()

	if err := db.Migrate(ctx); err != nil {
		return err
	}
	logger.Info("database migrations completed")

	v, err := vault.New(cfg.EncryptionKey, logger)
	if err != nil {
		return err
	}

	attempts, closeAttempts, err := newAttemptStore(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer closeAttempts()

	m := metrics.NewMetrics("codebox")
	httpClient := &http.Client{Timeout: cfg.HTTPTimeout}

	manager := oauth.NewManager(oauth.ManagerConfig{
		Attempts:    attempts,
		Clients:     db,
		Mailboxes:   db,
		Vault:       v,
		Overrides:   oauthOverrides(cfg),
		RedirectURI: cfg.OAuthRedirectURI,
		HTTPClient:  httpClient,
		Timeout:     cfg.HTTPTimeout,
		Metrics:     m,
		Logger:      logger,
	})

	imapClient := email.NewIMAPClient(email.IMAPConfig{DialTimeout: cfg.IMAPDialTimeout}, logger)
	poller := email.NewPoller(email.PollerConfig{
		Tokens:  manager,
		Vault:   v,
		Gmail:   email.NewGmailClient("", httpClient, logger),
		Outlook: email.NewOutlookClient("", httpClient, logger),
		IMAP:    imapClient,
		Limiter: email.NewRateLimiter(cfg.IMAPMinInterval, nil),
		Logger:  logger,
	})

	hcfg := harvest.Config{
		Mailboxes:   db,
		Codes:       db,
		Poller:      poller,
		Pending:     manager,
		Verifier:    imapClient,
		Resolver:    email.NewResolver(),
		Vault:       v,
		Metrics:     m,
		CodeTTL:     cfg.CodeTTL,
		DedupWindow: cfg.CodeDedupWindow,
		Logger:      logger,
	}

	var tgBot *telegram.Bot
	if cfg.TelegramEnabled() {
		tgBot, err = telegram.NewBot(telegram.BotDeps{
			Token:  cfg.TelegramToken,
			ChatID: cfg.TelegramChatID,
			UserID: cfg.TelegramUserID,
			Logger: logger,
		})
		if err != nil {
			return err
		}
		hcfg.Notifier = tgBot
	}

	service := harvest.NewService(hcfg)

	if tgBot != nil {
		tgBot.SetHarvester(service)
		go tgBot.Start(ctx)
		logger.Info("telegram bot enabled", "chat_id", cfg.TelegramChatID)
	}

	server := api.NewServer(api.Config{
		Addr:      cfg.HTTPAddr,
		JWTSecret: cfg.JWTSecret,
		Otp:       db,
		Vault:     v,
		Mailer:    service,
		OAuth:     manager,
		Metrics:   m,
		Logger:    logger,
	})

	if err := server.Run(ctx); err != nil {
		return err
	}
	logger.Info("codebox stopped")
	return nil
}

// newAttemptStore returns a redis-backed store when REDIS_URL is set, so
// callbacks can land on any instance; otherwise an in-process store.
func newAttemptStore(ctx context.Context, cfg *config.Config, logger *slog.Logger) (oauth.AttemptStore, func(), error) {
	if cfg.RedisURL == "" {
		return oauth.NewMemoryAttemptStore(cfg.OAuthAttemptTTL, nil), func() {}, nil
	}

	opts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to parse REDIS_URL: %w", err)
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	logger.Info("oauth attempts stored in redis", "addr", opts.Addr)
	return oauth.NewRedisAttemptStore(client, cfg.OAuthAttemptTTL, nil), func() { client.Close() }, nil
}

// oauthOverrides returns provider clients configured in the environment
func oauthOverrides(cfg *config.Config) map[models.Provider]models.OAuthClient {
	overrides := make(map[models.Provider]models.OAuthClient)
	if cfg.GmailClientID != "" && cfg.GmailClientSecret != "" {
		overrides[models.ProviderGmail] = models.OAuthClient{
			Provider:     models.ProviderGmail,
			ClientID:     cfg.GmailClientID,
			ClientSecret: cfg.GmailClientSecret,
		}
	}
	if cfg.OutlookClientID != "" && cfg.OutlookClientSecret != "" {
		overrides[models.ProviderOutlook] = models.OAuthClient{
			Provider:     models.ProviderOutlook,
			ClientID:     cfg.OutlookClientID,
			ClientSecret: cfg.OutlookClientSecret,
		}
	}
	return overrides
}
