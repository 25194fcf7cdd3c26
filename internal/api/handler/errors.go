package handler

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/timmy/gigescrow/internal/api/middleware"
	"github.com/timmy/gigescrow/internal/domain"
	"github.com/timmy/gigescrow/internal/logger"
)

// statusFor maps the domain error taxonomy onto HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrUnauthorized):
		return http.StatusForbidden
	case errors.Is(err, domain.ErrInvalidState):
		return http.StatusConflict
	case errors.Is(err, domain.ErrInvalidInput):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrChainUnavailable), errors.Is(err, domain.ErrTransactionBuild):
		return http.StatusBadGateway
	}
	return http.StatusInternalServerError
}

// respondError writes err as a JSON error body. Internal failures are logged
// and reported without detail.
func respondError(c *gin.Context, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		_ = c.Error(err)
		ctx := c.Request.Context()
		logger.FromContext(ctx).WithError(err).Error("Request failed")
		c.JSON(status, gin.H{"error": "internal server error", "request_id": logger.RequestID(ctx)})
		return
	}
	c.JSON(status, gin.H{"error": err.Error()})
}

func badRequest(c *gin.Context, err error) {
	c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
}

// requireActor resolves the calling wallet or writes 401.
func requireActor(c *gin.Context, queryKeys ...string) (string, bool) {
	actor := middleware.Actor(c, queryKeys...)
	if actor == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "authentication required"})
		return "", false
	}
	return actor, true
}

func intQuery(c *gin.Context, key string, def, max int) int {
	v, err := strconv.Atoi(c.Query(key))
	if err != nil || v <= 0 {
		return def
	}
	if max > 0 && v > max {
		return max
	}
	return v
}
