package observability

import (
	"github.com/gin-gonic/gin"

	"user-gateway/pkg/logger"
)

// SuppressLogs marks responses for the listed paths as not to be logged.
// The marker is set before the handler writes, so the header reaches the
// client and the tracing stage sees it when it finishes.
func SuppressLogs(paths ...string) gin.HandlerFunc {
	set := make(map[string]struct{}, len(paths))
	for _, p := range paths {
		set[p] = struct{}{}
	}
	return func(c *gin.Context) {
		if _, ok := set[c.Request.URL.Path]; ok {
			logger.MarkSuppressed(c)
		}
		c.Next()
	}
}
