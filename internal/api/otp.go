package api

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/mixelka/codebox/internal/database"
	"github.com/mixelka/codebox/internal/otp"
	"github.com/mixelka/codebox/pkg/models"
)

// OtpRequest sets the OTP config of an account
type OtpRequest struct {
	Secret      string   `json:"secret" binding:"required"`
	Issuer      string   `json:"issuer"`
	Type        string   `json:"type"`
	Algorithm   string   `json:"algorithm"`
	Digits      int      `json:"digits"`
	Period      int      `json:"period"`
	TimeOffset  int      `json:"time_offset"`
	BackupCodes []string `json:"backup_codes"`
}

// ParseOtpRequest imports an otpauth:// URI
type ParseOtpRequest struct {
	URI string `json:"uri" binding:"required"`
}

func (s *Server) handleGetOtp(c *gin.Context) {
	accountID, ok := idParam(c, "id")
	if !ok {
		return
	}

	cfg, err := s.otp.GetAccountOtp(c.Request.Context(), currentUser(c), accountID)
	if errors.Is(err, database.ErrNotFound) {
		c.JSON(http.StatusOK, gin.H{"secret": nil})
		return
	}
	if err != nil {
		s.respondError(c, err)
		return
	}

	view := cfg.Normalized()
	view.Secret = s.vault.Decrypt(cfg.Secret)
	c.JSON(http.StatusOK, view)
}

func (s *Server) handleSetOtp(c *gin.Context) {
	accountID, ok := idParam(c, "id")
	if !ok {
		return
	}
	var req OtpRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}

	cfg := models.OtpConfig{
		Secret:      strings.TrimSpace(req.Secret),
		Issuer:      req.Issuer,
		Type:        models.OtpType(req.Type),
		Algorithm:   req.Algorithm,
		Digits:      req.Digits,
		Period:      req.Period,
		TimeOffset:  req.TimeOffset,
		BackupCodes: req.BackupCodes,
	}
	if err := s.saveOtp(c, accountID, cfg); err != nil {
		s.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "2FA config saved"})
}

func (s *Server) handleParseOtp(c *gin.Context) {
	accountID, ok := idParam(c, "id")
	if !ok {
		return
	}
	var req ParseOtpRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}

	cfg, err := otp.ParseURI(req.URI)
	if err != nil {
		s.respondError(c, err)
		return
	}
	if cfg.Secret == "" {
		s.respondError(c, otp.ErrInvalidURI)
		return
	}
	if cfg.Issuer == "" {
		cfg.Issuer = cfg.Label
	}

	if err := s.saveOtp(c, accountID, cfg); err != nil {
		s.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message": "2FA config imported",
		"issuer":  cfg.Issuer,
		"type":    cfg.Type,
		"digits":  cfg.Digits,
	})
}

func (s *Server) handleDeleteOtp(c *gin.Context) {
	accountID, ok := idParam(c, "id")
	if !ok {
		return
	}
	if err := s.otp.DeleteAccountOtp(c.Request.Context(), currentUser(c), accountID); err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "2FA config deleted"})
}

func (s *Server) handleGenerateOtp(c *gin.Context) {
	accountID, ok := idParam(c, "id")
	if !ok {
		return
	}

	cfg, err := s.otp.GetAccountOtp(c.Request.Context(), currentUser(c), accountID)
	if err != nil {
		if errors.Is(err, database.ErrNotFound) {
			c.JSON(http.StatusNotFound, ErrorResponse{
				Error:   "not_configured",
				Message: "2FA is not configured for this account",
				Code:    http.StatusNotFound,
			})
			return
		}
		s.respondError(c, err)
		return
	}

	plain := *cfg
	plain.Secret = s.vault.Decrypt(cfg.Secret)
	code := otp.Generate(plain, s.now())
	if code.Code == "" {
		badRequest(c, "stored secret is not valid")
		return
	}

	s.metrics.RecordOTP(string(code.Type))
	c.JSON(http.StatusOK, code)
}

func (s *Server) saveOtp(c *gin.Context, accountID int64, cfg models.OtpConfig) error {
	encrypted, err := s.vault.Encrypt(cfg.Secret)
	if err != nil {
		return err
	}
	cfg.Secret = encrypted
	return s.otp.SaveAccountOtp(c.Request.Context(), currentUser(c), accountID, &cfg)
}
