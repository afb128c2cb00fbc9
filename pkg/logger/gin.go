package logger

import (
	"log/slog"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const (
	HeaderRequestID = "X-Request-Id"
	// HeaderIgnoreLog tells downstream log shippers to drop the response.
	HeaderIgnoreLog = "X-Ignore-Log"

	ginKeyLogger     = "logger"
	ginKeySuppressed = "logger.suppressed"
)

// RequestID returns the caller supplied request id or a fresh one, and
// echoes it on the response.
func RequestID(c *gin.Context) string {
	rid := c.GetHeader(HeaderRequestID)
	if rid == "" {
		rid = uuid.NewString()
	}
	c.Writer.Header().Set(HeaderRequestID, rid)
	return rid
}

// Bind attaches a request-scoped logger to both the gin and request contexts.
func Bind(c *gin.Context, l *slog.Logger) {
	c.Set(ginKeyLogger, l)
	c.Request = c.Request.WithContext(With(c.Request.Context(), l))
}

// FromGin pulls the request-scoped logger from Gin context.
func FromGin(c *gin.Context) *slog.Logger {
	if v, ok := c.Get(ginKeyLogger); ok {
		if l, ok := v.(*slog.Logger); ok && l != nil {
			return l
		}
	}
	return slog.Default()
}

// MarkSuppressed flags the response so the request summary is not logged.
func MarkSuppressed(c *gin.Context) {
	c.Writer.Header().Set(HeaderIgnoreLog, "true")
	c.Set(ginKeySuppressed, true)
}

func Suppressed(c *gin.Context) bool {
	return c.GetBool(ginKeySuppressed)
}

// LogRequest writes the "request" summary event unless the response was
// marked suppressed.
func LogRequest(c *gin.Context, l *slog.Logger, start time.Time) {
	if Suppressed(c) {
		return
	}

	status := c.Writer.Status()
	path := c.FullPath()
	if path == "" {
		path = c.Request.URL.Path
	}

	attrs := []any{
		"method", c.Request.Method,
		"path", path,
		"status", status,
		"duration_ms", float64(time.Since(start).Milliseconds()),
		"bytes", c.Writer.Size(),
	}
	if len(c.Errors) > 0 {
		attrs = append(attrs, "errors", c.Errors.String())
	}
	if len(c.Errors) > 0 || status >= 500 {
		l.Error("request", attrs...)
		return
	}
	l.Info("request", attrs...)
}
