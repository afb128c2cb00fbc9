package rbac

import (
	"github.com/gin-gonic/gin"

	"user-gateway/internal/apperr"
	"user-gateway/internal/auth"
)

// RequirePolicy blocks requests whose claims do not satisfy p. It must run
// after auth.RequireAccessToken. Denied requests never reach the handler.
func RequirePolicy(p AccessPolicy) gin.HandlerFunc {
	return func(c *gin.Context) {
		claims, ok := auth.ClaimsFromGin(c)
		if !ok {
			c.AbortWithStatusJSON(auth.ErrMissingToken.HTTPStatus(), auth.ErrMissingToken.Body())
			return
		}
		if err := p.Enforce(claims); err != nil {
			e := apperr.From(err)
			c.AbortWithStatusJSON(e.HTTPStatus(), e.Body())
			return
		}
		c.Next()
	}
}

// Allow runs the operation policy against the request claims and writes the
// denial when it fails. Handlers call it before reading the body.
func Allow(c *gin.Context, op OperationPolicy) bool {
	claims, ok := auth.ClaimsFromGin(c)
	if !ok {
		c.AbortWithStatusJSON(auth.ErrMissingToken.HTTPStatus(), auth.ErrMissingToken.Body())
		return false
	}
	if err := op.Check(claims); err != nil {
		e := apperr.From(err)
		c.AbortWithStatusJSON(e.HTTPStatus(), e.Body())
		return false
	}
	return true
}
