package api

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/mixelka/codebox/internal/database"
	"github.com/mixelka/codebox/internal/harvest"
	"github.com/mixelka/codebox/internal/oauth"
	"github.com/mixelka/codebox/internal/otp"
)

// statusFor maps domain errors to HTTP status codes
func statusFor(err error) (int, string) {
	switch {
	case errors.Is(err, otp.ErrInvalidURI):
		return http.StatusBadRequest, "invalid_uri"
	case errors.Is(err, oauth.ErrNotConfigured):
		return http.StatusBadRequest, "not_configured"
	case errors.Is(err, oauth.ErrUnsupportedProvider):
		return http.StatusBadRequest, "unsupported_provider"
	case errors.Is(err, oauth.ErrInvalidState):
		return http.StatusBadRequest, "invalid_state"
	case errors.Is(err, oauth.ErrTokenExchange):
		return http.StatusBadGateway, "token_exchange_failed"
	case errors.Is(err, harvest.ErrIMAPLogin):
		return http.StatusBadRequest, "imap_login_failed"
	case errors.Is(err, database.ErrNotFound):
		return http.StatusNotFound, "not_found"
	case errors.Is(err, database.ErrAlreadyExists):
		return http.StatusConflict, "already_exists"
	default:
		return http.StatusInternalServerError, "internal_error"
	}
}

// respondError writes err as an ErrorResponse. Internal errors are logged
// and their details are not exposed.
func (s *Server) respondError(c *gin.Context, err error) {
	status, kind := statusFor(err)
	message := err.Error()
	if status == http.StatusInternalServerError {
		s.logger.Error("request failed",
			"request_id", c.GetString("request_id"),
			"path", c.Request.URL.Path,
			"error", err,
		)
		message = "internal server error"
	}
	c.JSON(status, ErrorResponse{Error: kind, Message: message, Code: status})
}

func badRequest(c *gin.Context, message string) {
	c.JSON(http.StatusBadRequest, ErrorResponse{
		Error:   "bad_request",
		Message: message,
		Code:    http.StatusBadRequest,
	})
}

// idParam parses a positive integer path parameter
func idParam(c *gin.Context, name string) (int64, bool) {
	id, err := strconv.ParseInt(c.Param(name), 10, 64)
	if err != nil || id <= 0 {
		badRequest(c, "invalid "+name)
		return 0, false
	}
	return id, true
}
