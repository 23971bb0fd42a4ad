package api

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/mixelka/codebox/internal/harvest"
	"github.com/mixelka/codebox/internal/metrics"
	"github.com/mixelka/codebox/internal/oauth"
	"github.com/mixelka/codebox/pkg/models"
)

// Version reported by the health endpoint
var Version = "dev"

const (
	requestIDHeader = "X-Request-ID"
	maxBodySize     = 1 << 20
	shutdownTimeout = 10 * time.Second
)

// OtpStore persists per-account OTP configs
type OtpStore interface {
	GetAccountOtp(ctx context.Context, userID, accountID int64) (*models.OtpConfig, error)
	SaveAccountOtp(ctx context.Context, userID, accountID int64, cfg *models.OtpConfig) error
	DeleteAccountOtp(ctx context.Context, userID, accountID int64) error
}

// Cipher seals and opens stored secrets
type Cipher interface {
	Encrypt(plaintext string) (string, error)
	Decrypt(encrypted string) string
}

// Mailer is the mailbox and verification code service
type Mailer interface {
	Refresh(ctx context.Context, userID int64, since time.Time) ([]*models.VerificationCode, error)
	ActiveCodes(ctx context.Context, userID int64) ([]*models.VerificationCode, error)
	MarkRead(ctx context.Context, userID, id int64) error
	Mailboxes(ctx context.Context, userID int64) (*harvest.Overview, error)
	AddIMAPMailbox(ctx context.Context, userID int64, req harvest.AddIMAPRequest) (*models.Mailbox, error)
	RemoveMailbox(ctx context.Context, userID, id int64) error
}

// Authorizer runs OAuth authorization-code flows
type Authorizer interface {
	Start(ctx context.Context, req oauth.StartRequest) (*oauth.StartResult, error)
	HandleCallback(ctx context.Context, code, state string) (*models.AuthAttempt, error)
	Fail(ctx context.Context, state, message string) (*models.AuthAttempt, error)
	Status(ctx context.Context, state string) (*models.AuthAttempt, error)
}

// Config holds the server dependencies
type Config struct {
	Addr      string
	JWTSecret string
	Otp       OtpStore
	Vault     Cipher
	Mailer    Mailer
	OAuth     Authorizer
	Metrics   *metrics.Metrics
	Now       func() time.Time
	Logger    *slog.Logger
}

// Server is the HTTP API server
type Server struct {
	router     *gin.Engine
	httpServer *http.Server
	otp        OtpStore
	vault      Cipher
	mailer     Mailer
	oauth      Authorizer
	metrics    *metrics.Metrics
	now        func() time.Time
	logger     *slog.Logger
}

// NewServer creates a new API server
func NewServer(cfg Config) *Server {
	gin.SetMode(gin.ReleaseMode)

	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Metrics == nil {
		cfg.Metrics = metrics.NewMetrics("codebox")
	}

	s := &Server{
		router:  gin.New(),
		otp:     cfg.Otp,
		vault:   cfg.Vault,
		mailer:  cfg.Mailer,
		oauth:   cfg.OAuth,
		metrics: cfg.Metrics,
		now:     cfg.Now,
		logger:  cfg.Logger.With("component", "api"),
	}
	s.httpServer = NewHTTPServer(cfg.Addr, s.router)

	s.router.Use(gin.Recovery())
	s.router.Use(bodyLimitMiddleware(maxBodySize))
	s.router.Use(metrics.Middleware(s.metrics))
	s.router.Use(loggingMiddleware(s.logger))

	s.setupRoutes(AuthMiddleware(cfg.JWTSecret, s.logger))
	return s
}

// Router returns the gin router for testing purposes
func (s *Server) Router() *gin.Engine {
	return s.router
}

// NewHTTPServer creates a configured HTTP server
func NewHTTPServer(addr string, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:         addr,
		Handler:      handler,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 2 * time.Minute, // Refresh polls every mailbox in turn
		IdleTimeout:  120 * time.Second,
	}
}

func (s *Server) setupRoutes(auth gin.HandlerFunc) {
	s.router.GET("/metrics", gin.WrapH(s.metrics.Handler()))
	s.router.GET("/api/health", s.handleHealth)

	// Provider redirect, no bearer token
	s.router.GET(oauth.CallbackPath, s.handleOAuthCallback)

	accounts := s.router.Group("/api/accounts/:id/totp")
	accounts.Use(auth)
	{
		accounts.GET("", s.handleGetOtp)
		accounts.POST("", s.handleSetOtp)
		accounts.DELETE("", s.handleDeleteOtp)
		accounts.POST("/parse", s.handleParseOtp)
		accounts.GET("/generate", s.handleGenerateOtp)
	}

	mail := s.router.Group("/api/email")
	mail.Use(auth)
	{
		mail.GET("/mailboxes", s.handleListMailboxes)
		mail.DELETE("/mailboxes/:id", s.handleDeleteMailbox)
		mail.POST("/imap", s.handleAddIMAP)
		mail.POST("/oauth/:provider/start", s.handleOAuthStart)
		mail.GET("/oauth/status/:state", s.handleOAuthStatus)
		mail.POST("/refresh", s.handleRefresh)
		mail.GET("/codes", s.handleListCodes)
		mail.POST("/codes/:id/read", s.handleMarkRead)
	}
}

// Run serves until ctx is cancelled, then shuts down gracefully
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("starting HTTP server", "addr", s.httpServer.Addr)
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err, ok := <-errCh:
		if ok {
			return fmt.Errorf("failed to serve http: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	s.logger.Info("shutting down HTTP server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("failed to shutdown http server: %w", err)
	}
	return nil
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":    "ok",
		"version":   Version,
		"timestamp": s.now().UTC(),
	})
}

// loggingMiddleware tags each request with an id and logs its completion
func loggingMiddleware(logger *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		requestID := c.GetHeader(requestIDHeader)
		if requestID == "" {
			requestID = uuid.NewString()
		}
		c.Header(requestIDHeader, requestID)
		c.Set("request_id", requestID)

		c.Next()

		logger.Info("request completed",
			"request_id", requestID,
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", c.Writer.Status(),
			"duration_seconds", time.Since(start).Seconds(),
		)
	}
}

// bodyLimitMiddleware limits the size of request bodies
func bodyLimitMiddleware(maxSize int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.Request.Body != nil {
			c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxSize)
		}
		c.Next()
	}
}
