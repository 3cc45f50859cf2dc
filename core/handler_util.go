package core

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
)

// respondError sends unified error payload {"error": {"code", "message", "status", "timestamp"}}.
func respondError(c *gin.Context, status int, code, message string) {
	c.JSON(status, gin.H{"error": gin.H{
		"code":      code,
		"message":   message,
		"status":    status,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	}})
}

// writeAuthError maps the authentication error taxonomy onto HTTP.
func writeAuthError(c *gin.Context, err error) {
	var verr *ValidationError
	var dup *DuplicateCredentialsError
	switch {
	case errors.As(err, &verr):
		respondError(c, http.StatusBadRequest, "VALIDATION_ERROR", verr.Error())
	case errors.As(err, &dup):
		respondError(c, http.StatusConflict, "DUPLICATE_CREDENTIALS", dup.Error())
	case errors.Is(err, ErrInvalidCredentials):
		respondError(c, http.StatusUnauthorized, "INVALID_CREDENTIALS", "invalid username/email or password")
	case errors.Is(err, ErrIdentityNotFound):
		respondError(c, http.StatusInternalServerError, "IDENTITY_NOT_FOUND", "identity could not be loaded")
	default:
		log.Error().Err(err).Str("path", c.Request.URL.Path).Msg("authentication request failed")
		respondError(c, http.StatusInternalServerError, "INTERNAL_SERVER_ERROR", "internal error")
	}
}
