package pipeline

import (
	"github.com/gin-gonic/gin"

	"user-gateway/internal/rbac"
)

func Tracing(h gin.HandlerFunc) Stage   { return Stage{Kind: KindTracing, Handler: h} }
func Metrics(h gin.HandlerFunc) Stage   { return Stage{Kind: KindMetrics, Handler: h} }
func LogFilter(h gin.HandlerFunc) Stage { return Stage{Kind: KindLogFilter, Handler: h} }

func Authentication(h gin.HandlerFunc) Stage {
	return Stage{Kind: KindAuthentication, Handler: h}
}

// Authorization enforces p. Use the same policy as the group's Policy field.
func Authorization(p rbac.AccessPolicy) Stage {
	return Stage{Kind: KindAuthorization, Name: "authorization(" + p.String() + ")", Handler: rbac.RequirePolicy(p)}
}
