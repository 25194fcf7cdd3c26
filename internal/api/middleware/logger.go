package middleware

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/timmy/gigescrow/internal/logger"
)

const (
	requestIDHeader = "X-Request-ID"
	maxRequestIDLen = 64
)

// RequestLogger attaches a request-scoped logger to the request context and
// writes one summary line per request. An inbound X-Request-ID is reused.
//
// Parameters:
//   - log: base logger; request_id and component=api are added to it.
//
// Returns:
//   - gin.HandlerFunc: middleware handler.
func RequestLogger(log *logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		id := requestID(c.GetHeader(requestIDHeader))
		c.Header(requestIDHeader, id)

		ctx := logger.WithFields(log.WithContext(c.Request.Context()), logger.Fields{
			logger.FieldRequestID: id,
			logger.FieldComponent: "api",
		})
		c.Request = c.Request.WithContext(ctx)
		logger.CtxDebug(ctx, "%s %s from %s", c.Request.Method, c.Request.URL.Path, c.ClientIP())

		c.Next()

		// Re-read: auth and handlers add actor and job tags downstream.
		ctx = c.Request.Context()
		status := c.Writer.Status()
		entry := logger.With(logger.Fields{
			logger.FieldStatus: status,
			logger.FieldSize:   c.Writer.Size(),
		}).Since(start)
		target := c.Request.URL.RequestURI()

		switch {
		case status >= http.StatusInternalServerError:
			entry.Error(ctx, "%s %s failed: %s", c.Request.Method, target, c.Errors.String())
		case status >= http.StatusBadRequest:
			entry.Warn(ctx, "%s %s rejected", c.Request.Method, target)
		default:
			entry.Info(ctx, "%s %s", c.Request.Method, target)
		}
	}
}

func requestID(inbound string) string {
	if inbound == "" || len(inbound) > maxRequestIDLen {
		return uuid.NewString()
	}
	return inbound
}
