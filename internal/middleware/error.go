package middleware

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"github.com/jwalitptl/ward-api/internal/handler"
	apperrors "github.com/jwalitptl/ward-api/pkg/errors"
)

// RetryAfterSeconds is sent with retryable errors.
const RetryAfterSeconds = "1"

// ErrorHandler renders the last error attached with c.Error, unless a
// response has already been written.
func ErrorHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if len(c.Errors) == 0 {
			return
		}

		requestID := c.GetString(ContextRequestID)
		lastErr := c.Errors.Last()

		var appErr *apperrors.AppError
		if !errors.As(lastErr.Err, &appErr) {
			appErr = apperrors.Internal(lastErr.Err)
		}

		event := log.Warn()
		if appErr.StatusCode() >= http.StatusInternalServerError {
			event = log.Error()
		}
		event.
			Err(lastErr.Err).
			Str("request_id", requestID).
			Str("path", c.Request.URL.Path).
			Str("method", c.Request.Method).
			Int("status", appErr.StatusCode()).
			Msg("Request error")

		if c.Writer.Written() {
			return
		}
		if appErr.Retryable {
			c.Header("Retry-After", RetryAfterSeconds)
		}
		c.JSON(appErr.StatusCode(), handler.Response{
			Status:    "error",
			Code:      int(appErr.Code),
			Message:   appErr.Message,
			RequestID: requestID,
		})
	}
}
