package api

import (
	"bytes"
	"errors"
	"html/template"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/mixelka/codebox/internal/harvest"
	"github.com/mixelka/codebox/internal/oauth"
	"github.com/mixelka/codebox/pkg/models"
)

// AddIMAPRequest adds an IMAP mailbox
type AddIMAPRequest struct {
	Address  string `json:"address" binding:"required,email"`
	Password string `json:"password" binding:"required"`
	Server   string `json:"server"`
	Port     int    `json:"port" binding:"omitempty,min=1,max=65535"`
}

// OAuthStartRequest starts an OAuth authorization
type OAuthStartRequest struct {
	Origin string `json:"origin"`
}

// RefreshRequest polls the user's mailboxes
type RefreshRequest struct {
	Since *time.Time `json:"since"`
}

// AttemptView is the public part of an authorization attempt
type AttemptView struct {
	State     string               `json:"state"`
	Provider  models.Provider      `json:"provider"`
	Status    models.AttemptStatus `json:"status"`
	Email     string               `json:"email,omitempty"`
	Message   string               `json:"message,omitempty"`
	CreatedAt time.Time            `json:"created_at"`
}

func newAttemptView(a *models.AuthAttempt) AttemptView {
	return AttemptView{
		State:     a.State,
		Provider:  a.Provider,
		Status:    a.Status,
		Email:     a.Email,
		Message:   a.Message,
		CreatedAt: a.CreatedAt,
	}
}

func (s *Server) handleListMailboxes(c *gin.Context) {
	overview, err := s.mailer.Mailboxes(c.Request.Context(), currentUser(c))
	if err != nil {
		s.respondError(c, err)
		return
	}

	pending := make([]AttemptView, 0, len(overview.Pending))
	for _, a := range overview.Pending {
		pending = append(pending, newAttemptView(a))
	}
	authorized := overview.Authorized
	if authorized == nil {
		authorized = []*models.Mailbox{}
	}

	c.JSON(http.StatusOK, gin.H{"authorized": authorized, "pending": pending})
}

func (s *Server) handleDeleteMailbox(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	if err := s.mailer.RemoveMailbox(c.Request.Context(), currentUser(c), id); err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "mailbox removed"})
}

func (s *Server) handleAddIMAP(c *gin.Context) {
	var req AddIMAPRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}

	mailbox, err := s.mailer.AddIMAPMailbox(c.Request.Context(), currentUser(c), harvest.AddIMAPRequest{
		Address:  req.Address,
		Password: req.Password,
		Server:   req.Server,
		Port:     req.Port,
	})
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, mailbox)
}

func (s *Server) handleOAuthStart(c *gin.Context) {
	var req OAuthStartRequest
	// Body is optional
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, err.Error())
			return
		}
	}
	if req.Origin == "" {
		req.Origin = c.GetHeader("Origin")
	}

	scheme := "http"
	if c.Request.TLS != nil {
		scheme = "https"
	}
	if proto := c.GetHeader("X-Forwarded-Proto"); proto != "" {
		scheme = proto
	}

	result, err := s.oauth.Start(c.Request.Context(), oauth.StartRequest{
		UserID:   currentUser(c),
		Provider: models.Provider(c.Param("provider")),
		Origin:   req.Origin,
		Host:     c.Request.Host,
		Scheme:   scheme,
	})
	if err != nil {
		s.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"auth_url": result.AuthURL, "state": result.State})
}

func (s *Server) handleOAuthStatus(c *gin.Context) {
	attempt, err := s.oauth.Status(c.Request.Context(), c.Param("state"))
	if err == nil && attempt.UserID != currentUser(c) {
		err = oauth.ErrInvalidState
	}
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, newAttemptView(attempt))
}

var callbackPage = template.Must(template.New("callback").Parse(`<!DOCTYPE html>
<html><head><meta charset="utf-8"><title>{{.Title}}</title></head>
<body><h3>{{.Title}}</h3><p>{{.Detail}}</p><p>You can close this window.</p>
<script>if (window.opener) { window.opener.postMessage({type: "codebox-oauth", status: {{.Status}}}, "*"); }</script>
</body></html>`))

type callbackResult struct {
	Title  string
	Detail string
	Status string
}

func (s *Server) handleOAuthCallback(c *gin.Context) {
	ctx := c.Request.Context()
	state := c.Query("state")

	if providerErr := c.Query("error"); providerErr != "" {
		message := c.Query("error_description")
		if message == "" {
			message = providerErr
		}
		if _, err := s.oauth.Fail(ctx, state, message); err != nil && !errors.Is(err, oauth.ErrInvalidState) {
			s.logger.Warn("failed to record denied authorization", "error", err)
		}
		s.renderCallback(c, http.StatusOK, callbackResult{"Authorization failed", message, string(models.AttemptError)})
		return
	}

	code := c.Query("code")
	if code == "" || state == "" {
		s.renderCallback(c, http.StatusBadRequest, callbackResult{"Authorization failed", "missing code or state", string(models.AttemptError)})
		return
	}

	attempt, err := s.oauth.HandleCallback(ctx, code, state)
	if err != nil {
		status, _ := statusFor(err)
		s.renderCallback(c, status, callbackResult{"Authorization failed", err.Error(), string(models.AttemptError)})
		return
	}

	s.renderCallback(c, http.StatusOK, callbackResult{"Mailbox connected", attempt.Email, string(models.AttemptSuccess)})
}

func (s *Server) renderCallback(c *gin.Context, status int, result callbackResult) {
	var buf bytes.Buffer
	if err := callbackPage.Execute(&buf, result); err != nil {
		s.respondError(c, err)
		return
	}
	c.Data(status, "text/html; charset=utf-8", buf.Bytes())
}

func (s *Server) handleRefresh(c *gin.Context) {
	var req RefreshRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, err.Error())
			return
		}
	}
	var since time.Time
	if req.Since != nil {
		since = req.Since.UTC()
	}

	codes, err := s.mailer.Refresh(c.Request.Context(), currentUser(c), since)
	if err != nil {
		s.respondError(c, err)
		return
	}
	if codes == nil {
		codes = []*models.VerificationCode{}
	}
	c.JSON(http.StatusOK, gin.H{"new_codes": codes})
}

func (s *Server) handleListCodes(c *gin.Context) {
	codes, err := s.mailer.ActiveCodes(c.Request.Context(), currentUser(c))
	if err != nil {
		s.respondError(c, err)
		return
	}
	if codes == nil {
		codes = []*models.VerificationCode{}
	}
	c.JSON(http.StatusOK, gin.H{"codes": codes})
}

func (s *Server) handleMarkRead(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	if err := s.mailer.MarkRead(c.Request.Context(), currentUser(c), id); err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "code marked as read"})
}
